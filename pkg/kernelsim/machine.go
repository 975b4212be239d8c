// Package kernelsim runs compiled cartridges on the z80 interpreter. The
// runtime kernel is not Z80 code here: every jump table entry is a trap that
// implements the routine in Go.
package kernelsim

import (
	"bytes"
	"errors"
	"fmt"

	"msxbasrom/pkg/target"
	"msxbasrom/pkg/z80"
)

const (
	kernelBase = 0x4000
	// bankReturn is the trap that restores the caller's window after a
	// cross-bank CALL returns.
	bankReturn = 0x7FF0
	stackTop   = 0xFF00
)

var errNoProgram = errors.New("kernelsim: no program banks")

// Machine is a cartridge slot, RAM and the CPU executing from them.
type Machine struct {
	CPU *z80.CPU

	cfg   target.Config
	banks [][]byte
	ram   [0x4000]byte
	page  [2]int // banks mapped at WindowBase and WindowBase+BankSize

	out    bytes.Buffer
	col    int
	ring   int // next temporary slot
	frames []int
	// Switches counts window changes made by the bank helpers.
	Switches int
}

// New loads banks (kernel banks first, as the compiler returns them) and
// maps the first program window.
func New(cfg target.Config, banks [][]byte) (*Machine, error) {
	m := &Machine{cfg: cfg, banks: banks}
	if len(banks) <= cfg.Mapper.FirstBank {
		return nil, errNoProgram
	}
	m.CPU = z80.NewCPU(m)
	m.CPU.SP = stackTop
	m.CPU.PC = cfg.Mapper.WindowBase
	m.mapWindow(cfg.Mapper.FirstBank)
	m.installTraps()
	return m, nil
}

func (m *Machine) mapWindow(bank int) {
	for i := range m.page {
		m.page[i] = bank + i
	}
}

// Window returns the bank mapped at the start of the window.
func (m *Machine) Window() int {
	return m.page[0]
}

func (m *Machine) bankByte(bank, off int) byte {
	if bank < 0 || bank >= len(m.banks) || off >= len(m.banks[bank]) {
		return 0xFF
	}
	return m.banks[bank][off]
}

// Read implements z80.Bus.
func (m *Machine) Read(addr uint16) byte {
	mp := m.cfg.Mapper
	a := int(addr)
	switch {
	case a >= kernelBase && a < int(mp.WindowBase):
		off := a - kernelBase
		return m.bankByte(off/mp.BankSize, off%mp.BankSize)
	case a >= int(mp.WindowBase) && a < int(mp.WindowBase)+mp.WindowSize():
		off := a - int(mp.WindowBase)
		return m.bankByte(m.page[off/mp.BankSize], off%mp.BankSize)
	case a >= 0xC000:
		return m.ram[a-0xC000]
	}
	return 0xFF
}

// Write implements z80.Bus. Only RAM is writable.
func (m *Machine) Write(addr uint16, v byte) {
	if addr >= 0xC000 {
		m.ram[int(addr)-0xC000] = v
	}
}

// Run executes until the program reaches End or limit instructions pass.
func (m *Machine) Run(limit int) error {
	if err := m.CPU.Run(limit); err != nil {
		return fmt.Errorf("at %04X (bank %d): %w", m.CPU.PC, m.Window(), err)
	}
	return nil
}

// RunFor executes up to n more instructions. Using them all up while the
// program is still running is not an error.
func (m *Machine) RunFor(n int) error {
	err := m.Run(m.CPU.Steps + n)
	if errors.Is(err, z80.ErrStepLimit) {
		return nil
	}
	return err
}

// Done reports whether the program reached End.
func (m *Machine) Done() bool {
	return m.CPU.Halted
}

// Output is everything the program printed.
func (m *Machine) Output() string {
	return m.out.String()
}

// Peek16 reads a word as the CPU sees it.
func (m *Machine) Peek16(addr uint16) uint16 {
	return m.CPU.Read16(addr)
}

// Int reads an integer variable.
func (m *Machine) Int(addr int) int16 {
	return int16(m.Peek16(uint16(addr)))
}

// Float reads a float variable.
func (m *Machine) Float(addr int) float64 {
	b := []byte{m.Read(uint16(addr)), m.Read(uint16(addr + 1)), m.Read(uint16(addr + 2))}
	return target.FloatFromBytes(b).Value()
}

// String reads a length-prefixed string at addr.
func (m *Machine) String(addr int) string {
	return string(m.readString(uint16(addr)))
}
