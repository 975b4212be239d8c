// Package emit builds the logical instruction stream: an append-only byte
// buffer, the fixups pointing into it, the per-statement ranges and a small
// peephole optimizer over the most recent instructions.
package emit

import (
	"fmt"

	"msxbasrom/pkg/symtab"
	"msxbasrom/pkg/z80"
)

const historyDepth = 5

// Range is a contiguous span of the logical buffer, one per statement or
// sub-phase. Segmentation never splits a range.
type Range struct {
	Start  int
	Length int
	Code   bool // execution may fall into this range from the previous one
	Debug  bool // exported to symbol files
	Name   string
}

// End is the first offset after the range.
func (r Range) End() int {
	return r.Start + r.Length
}

// Options selects the emitter mode.
type Options struct {
	Optimize bool // run the peephole pattern table after every emission
	Far      bool // reserve trampoline bytes for every code-stream reference
}

// Emitter is the single author of the logical buffer.
type Emitter struct {
	buf    []byte
	fixups *symtab.Registry

	// start offsets of the most recent instructions, oldest first
	history []int

	optimize bool
	far      bool

	ranges []Range
	open   bool
	cur    Range

	line     string
	rewrites int
}

// New creates an emitter recording its fixups into reg. Far references
// rely on stable offsets, so Options.Far disables the optimizer.
func New(reg *symtab.Registry, opts Options) *Emitter {
	return &Emitter{
		fixups:   reg,
		history:  make([]int, 0, historyDepth),
		optimize: opts.Optimize && !opts.Far,
		far:      opts.Far,
	}
}

// Far reports whether code-stream references reserve trampoline bytes.
func (e *Emitter) Far() bool { return e.far }

// Optimizing reports whether the peephole optimizer is active.
func (e *Emitter) Optimizing() bool { return e.optimize }

// Len is the current logical length, which is also the next emission offset.
func (e *Emitter) Len() int { return len(e.buf) }

// Bytes returns the logical buffer. The caller must not keep it across
// further emissions.
func (e *Emitter) Bytes() []byte { return e.buf }

// Rewrites counts the peephole rewrites applied so far.
func (e *Emitter) Rewrites() int { return e.rewrites }

// SetLine sets the line label attached to fixups emitted from now on.
func (e *Emitter) SetLine(label string) { e.line = label }

// Barrier forbids the optimizer from rewriting across the current offset.
func (e *Emitter) Barrier() {
	e.history = e.history[:0]
}

// Mark places a barrier and returns the current offset, for label definitions.
func (e *Emitter) Mark() int {
	e.Barrier()
	return len(e.buf)
}

func (e *Emitter) record(start int) {
	if len(e.history) == historyDepth {
		copy(e.history, e.history[1:])
		e.history = e.history[:historyDepth-1]
	}
	e.history = append(e.history, start)
}

// Emit appends one instruction.
func (e *Emitter) Emit(b ...byte) {
	e.record(len(e.buf))
	e.buf = append(e.buf, b...)
	e.peephole()
}

// Ref appends op followed by a 2-byte placeholder referring to sym+step,
// never reserving trampoline bytes. Used for RAM and absolute operands.
func (e *Emitter) Ref(sym *symtab.Symbol, step int, op ...byte) *symtab.Fixup {
	e.record(len(e.buf))
	e.buf = append(e.buf, op...)
	f := e.fixups.Reference(len(e.buf), sym, step, symtab.KindData, e.line)
	e.buf = append(e.buf, 0, 0)
	e.peephole()
	return f
}

// Jump emits JP to sym.
func (e *Emitter) Jump(sym *symtab.Symbol) *symtab.Fixup {
	return e.code(symtab.KindJump, 0, sym, 0)
}

// JumpIf emits JP cc to sym.
func (e *Emitter) JumpIf(cc z80.Cond, sym *symtab.Symbol) *symtab.Fixup {
	return e.code(symtab.KindCondJump, cc, sym, 0)
}

// Call emits CALL to sym.
func (e *Emitter) Call(sym *symtab.Symbol) *symtab.Fixup {
	return e.code(symtab.KindCall, 0, sym, 0)
}

// Fetch loads HL with the address of pool constant sym+step. Across banks
// the kernel copies the constant to RAM and HL points at the copy.
func (e *Emitter) Fetch(sym *symtab.Symbol, step int) *symtab.Fixup {
	return e.code(symtab.KindFetch, 0, sym, step)
}

// CallAbs calls a fixed kernel entry point.
func (e *Emitter) CallAbs(addr uint16) {
	e.Emit(z80.Inst(z80.CALLnn, int(addr))...)
}

// JumpAbs jumps to a fixed kernel entry point.
func (e *Emitter) JumpAbs(addr uint16) {
	e.Emit(z80.Inst(z80.JPnn, int(addr))...)
}

func directOpcode(kind symtab.FixupKind, cc z80.Cond) byte {
	switch kind {
	case symtab.KindJump:
		return z80.JPnn
	case symtab.KindCondJump:
		return cc.JP()
	case symtab.KindCall:
		return z80.CALLnn
	}
	return z80.LDHLnn
}

func (e *Emitter) code(kind symtab.FixupKind, cc z80.Cond, sym *symtab.Symbol, step int) *symtab.Fixup {
	op := directOpcode(kind, cc)
	if !e.far {
		e.record(len(e.buf))
		f := &symtab.Fixup{Offset: len(e.buf) + 1, Symbol: sym, Step: step, Kind: kind, Cond: cc, Site: -1, Line: e.line}
		e.buf = append(e.buf, op, 0, 0)
		e.fixups.Add(f)
		e.peephole()
		return f
	}

	site := len(e.buf)
	form := Form(kind)
	e.buf = append(e.buf, make([]byte, form.Size)...)
	// Until relocation decides otherwise the reference is a same-bank one.
	e.buf[site], e.buf[site+1] = z80.JR, byte(form.Direct-2)
	e.buf[site+form.Direct] = op
	f := &symtab.Fixup{Offset: site + form.Direct + 1, Symbol: sym, Step: step, Kind: kind, Cond: cc, Site: site, Line: e.line}
	e.fixups.Add(f)
	e.Barrier()
	return f
}

// Data appends raw bytes that are never executed and never optimized.
func (e *Emitter) Data(b []byte) {
	e.buf = append(e.buf, b...)
	e.Barrier()
}

// BeginRange opens a new range at the current offset.
func (e *Emitter) BeginRange(name string, code, debug bool) {
	if e.open {
		e.EndRange()
	}
	e.Barrier()
	e.open = true
	e.cur = Range{Start: len(e.buf), Code: code, Debug: debug, Name: name}
}

// EndRange closes the open range and returns it.
func (e *Emitter) EndRange() Range {
	if !e.open {
		return Range{}
	}
	e.cur.Length = len(e.buf) - e.cur.Start
	e.ranges = append(e.ranges, e.cur)
	e.open = false
	e.Barrier()
	return e.cur
}

// Ranges returns the closed ranges in emission order.
func (e *Emitter) Ranges() []Range {
	out := make([]Range, len(e.ranges))
	copy(out, e.ranges)
	return out
}

// String summarizes the emitter state.
func (e *Emitter) String() string {
	return fmt.Sprintf("emitter: %d bytes, %d ranges, %d fixups, %d rewrites", len(e.buf), len(e.ranges), e.fixups.Len(), e.rewrites)
}
