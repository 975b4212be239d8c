// Package target describes the cartridge the compiler writes for: the
// mapper geometry, the addresses of the pre-linked runtime kernel and the
// RAM map. All values are configuration, nothing here is discovered at
// compile time.
package target

// Mapper describes how physical banks become visible to the CPU.
type Mapper struct {
	BankSize       int    // bytes per physical bank
	BanksPerWindow int    // banks visible at once through the window
	WindowBase     uint16 // CPU address of the first window byte
	FirstBank      int    // first bank available to program code; lower banks hold the kernel
	Granularity    int    // the final bank count is rounded up to a multiple of this
	MaxBanks       int    // largest bank count the mapper can address
}

// WindowSize is the number of bytes visible through the window.
func (m Mapper) WindowSize() int {
	return m.BankSize * m.BanksPerWindow
}

// WindowBank returns the first physical bank of program window w.
func (m Mapper) WindowBank(w int) int {
	return m.FirstBank + w*m.BanksPerWindow
}

// RoundBanks rounds n up to the mapper granularity.
func (m Mapper) RoundBanks(n int) int {
	if m.Granularity <= 1 {
		return n
	}
	return (n + m.Granularity - 1) / m.Granularity * m.Granularity
}

// Kernel holds the absolute entry points of the runtime image. Integer
// routines take HL (and DE as second operand); float routines take B:HL (and
// C:DE as the left operand of binary operations); compare routines return A
// as the sign of left minus right.
type Kernel struct {
	Init uint16
	End  uint16

	PrintInt     uint16
	PrintFloat   uint16
	PrintString  uint16
	PrintTab     uint16
	PrintNewline uint16

	IntMul     uint16
	IntDiv     uint16
	IntMod     uint16
	IntCompare uint16
	IntAbs     uint16

	IntToFloat    uint16
	FloatToInt    uint16
	IntToString   uint16
	FloatToString uint16
	StringToInt   uint16
	StringToFloat uint16

	FloatAdd     uint16
	FloatSub     uint16
	FloatMul     uint16
	FloatDiv     uint16
	FloatPow     uint16
	FloatCompare uint16
	FloatLoad    uint16

	StrAssign  uint16
	StrConcat  uint16
	StrCompare uint16
	StrLen     uint16
	StrChr     uint16
	StrAsc     uint16

	BankJump uint16
	BankCall uint16
	BankRead uint16
}

// RAM is the layout of the work area shared by the kernel and the program.
type RAM struct {
	Base          uint16 // first RAM byte
	WorkspaceSize int    // bytes reserved for the kernel from Base
	Top           uint16 // first byte the program may not use

	TempRingPtr uint16 // workspace word holding the temporary string ring address
	ScratchPtr  uint16 // workspace word holding the scratch buffer address

	TempSlots   int // temporary string slots in the ring; BankRead copies into them too
	SlotSize    int // bytes per string slot
	ScratchSize int // rendering scratch buffer size
}

// VarBase is the first address available to program variables.
func (r RAM) VarBase() int {
	return int(r.Base) + r.WorkspaceSize
}

// Config bundles everything the back end assumes about the machine.
type Config struct {
	Mapper Mapper
	Kernel Kernel
	RAM    RAM
}

const kernelTable = 0x4010

// Default returns the MegaROM configuration used by the CLI: 8 KB banks
// paired into a 16 KB window at 0x8000, kernel in banks 0 and 1.
func Default() Config {
	return Config{
		Mapper: Mapper{
			BankSize:       8192,
			BanksPerWindow: 2,
			WindowBase:     0x8000,
			FirstBank:      2,
			Granularity:    16,
			MaxBanks:       256,
		},
		Kernel: defaultKernel(),
		RAM: RAM{
			Base:          0xC000,
			WorkspaceSize: 0x200,
			Top:           0xF380,
			TempRingPtr:   0xC000,
			ScratchPtr:    0xC002,
			TempSlots:     4,
			SlotSize:      256,
			ScratchSize:   256,
		},
	}
}

// defaultKernel lays the entry points out as consecutive 3-byte jump table
// slots, in field order.
func defaultKernel() Kernel {
	next := uint16(kernelTable)
	slot := func() uint16 {
		a := next
		next += 3
		return a
	}
	return Kernel{
		Init:          slot(),
		End:           slot(),
		PrintInt:      slot(),
		PrintFloat:    slot(),
		PrintString:   slot(),
		PrintTab:      slot(),
		PrintNewline:  slot(),
		IntMul:        slot(),
		IntDiv:        slot(),
		IntMod:        slot(),
		IntCompare:    slot(),
		IntAbs:        slot(),
		IntToFloat:    slot(),
		FloatToInt:    slot(),
		IntToString:   slot(),
		FloatToString: slot(),
		StringToInt:   slot(),
		StringToFloat: slot(),
		FloatAdd:      slot(),
		FloatSub:      slot(),
		FloatMul:      slot(),
		FloatDiv:      slot(),
		FloatPow:      slot(),
		FloatCompare:  slot(),
		FloatLoad:     slot(),
		StrAssign:     slot(),
		StrConcat:     slot(),
		StrCompare:    slot(),
		StrLen:        slot(),
		StrChr:        slot(),
		StrAsc:        slot(),
		BankJump:      slot(),
		BankCall:      slot(),
		BankRead:      slot(),
	}
}
