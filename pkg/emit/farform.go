package emit

import "msxbasrom/pkg/symtab"

// TrampolineSize is LD A,n + LD HL,nn + JP/CALL nn.
const TrampolineSize = 8

// StubSize is the code placeholder closing a window: LD A,bank ; LD HL,base ; JP BankJump.
const StubSize = TrampolineSize

// SentinelSize is the dead-space marker closing a window before a data range.
const SentinelSize = 3

// Sentinel marks dead space at the end of a window.
var Sentinel = [SentinelSize]byte{0xFF, 0xFF, 0xFF}

// FarForm is the byte layout reserved for one code-stream reference.
//
//	jump/call/fetch: [trampoline 0-7][direct 8-10]
//	cond-jump:       [test 0-1][trampoline 2-9][direct 10-12]
//
// The first two bytes are always a JR when the target turns out to share
// the call site's window.
type FarForm struct {
	Size       int
	Trampoline int // offset of LD A,bank
	Direct     int // offset of the direct instruction's opcode
}

// Form returns the layout used for kind.
func Form(kind symtab.FixupKind) FarForm {
	if kind == symtab.KindCondJump {
		return FarForm{Size: 13, Trampoline: 2, Direct: 10}
	}
	return FarForm{Size: 11, Trampoline: 0, Direct: 8}
}
