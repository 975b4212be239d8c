package kernelsim

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"msxbasrom/pkg/target"
	"msxbasrom/pkg/z80"
)

var (
	ErrDivisionByZero = errors.New("division by zero")
	ErrOverflow       = errors.New("overflow")
	ErrIllegalCall    = errors.New("illegal function call")
)

const tabWidth = 14

// routine is a kernel entry point; it returns to the caller itself unless
// it changes PC.
type routine func(m *Machine, c *z80.CPU) error

func (m *Machine) installTraps() {
	k := m.cfg.Kernel
	table := map[uint16]routine{
		k.Init:          ret,
		k.End:           end,
		k.PrintInt:      printInt,
		k.PrintFloat:    printFloat,
		k.PrintString:   printString,
		k.PrintTab:      printTab,
		k.PrintNewline:  printNewline,
		k.IntMul:        intMul,
		k.IntDiv:        intDiv,
		k.IntMod:        intMod,
		k.IntCompare:    intCompare,
		k.IntAbs:        intAbs,
		k.IntToFloat:    intToFloat,
		k.FloatToInt:    floatToInt,
		k.IntToString:   intToString,
		k.FloatToString: floatToString,
		k.StringToInt:   stringToInt,
		k.StringToFloat: stringToFloat,
		k.FloatAdd:      floatArith(func(a, b float64) float64 { return a + b }),
		k.FloatSub:      floatArith(func(a, b float64) float64 { return a - b }),
		k.FloatMul:      floatArith(func(a, b float64) float64 { return a * b }),
		k.FloatDiv:      floatDiv,
		k.FloatPow:      floatArith(math.Pow),
		k.FloatCompare:  floatCompare,
		k.FloatLoad:     floatLoad,
		k.StrAssign:     strAssign,
		k.StrConcat:     strConcat,
		k.StrCompare:    strCompare,
		k.StrLen:        strLen,
		k.StrChr:        strChr,
		k.StrAsc:        strAsc,
		k.BankJump:      bankJump,
		k.BankCall:      bankCall,
		k.BankRead:      bankRead,
	}
	for addr, r := range table {
		m.CPU.Traps[addr] = func(c *z80.CPU) error { return r(m, c) }
	}
	m.CPU.Traps[bankReturn] = func(c *z80.CPU) error {
		n := len(m.frames)
		if n == 0 {
			return errors.New("bank return without bank call")
		}
		m.mapWindow(m.frames[n-1])
		m.frames = m.frames[:n-1]
		m.Switches++
		c.Ret()
		return nil
	}
}

func ret(m *Machine, c *z80.CPU) error {
	c.Ret()
	return nil
}

func end(m *Machine, c *z80.CPU) error {
	c.Halted = true
	return nil
}

// float registers

func rightFloat(c *z80.CPU) float64 {
	return target.Float{Exp: c.B, Mant: c.HL()}.Value()
}

func leftFloat(c *z80.CPU) float64 {
	return target.Float{Exp: c.C, Mant: c.DE()}.Value()
}

func setFloat(c *z80.CPU, v float64) error {
	f, err := target.EncodeFloat(v)
	if err != nil {
		return ErrOverflow
	}
	c.B = f.Exp
	c.SetHL(f.Mant)
	return nil
}

func sign(v int) byte {
	switch {
	case v < 0:
		return 0xFF
	case v > 0:
		return 1
	}
	return 0
}

// strings

func (m *Machine) readString(addr uint16) []byte {
	n := int(m.Read(addr))
	b := make([]byte, n)
	for i := range b {
		b[i] = m.Read(addr + 1 + uint16(i))
	}
	return b
}

func (m *Machine) writeString(addr uint16, s []byte) {
	if len(s) > 255 {
		s = s[:255]
	}
	m.Write(addr, byte(len(s)))
	for i, b := range s {
		m.Write(addr+1+uint16(i), b)
	}
}

// slot returns the next temporary string slot of the ring.
func (m *Machine) slot() uint16 {
	ram := m.cfg.RAM
	base := m.Peek16(ram.TempRingPtr)
	addr := base + uint16(m.ring*ram.SlotSize)
	m.ring = (m.ring + 1) % ram.TempSlots
	return addr
}

func (m *Machine) temp(c *z80.CPU, s []byte) {
	addr := m.slot()
	m.writeString(addr, s)
	c.SetHL(addr)
}

// printing

func (m *Machine) print(s string) {
	m.out.WriteString(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		m.col = len(s) - i - 1
		return
	}
	m.col += len(s)
}

func formatInt(v int16) string {
	if v < 0 {
		return strconv.Itoa(int(v))
	}
	return " " + strconv.Itoa(int(v))
}

func formatFloat(v float64) string {
	s := strings.ToUpper(strconv.FormatFloat(v, 'g', 6, 64))
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	s = strings.TrimPrefix(s, "0.")
	if len(s) > 0 && !strings.HasPrefix(s, ".") && v != 0 && math.Abs(v) < 1 && !strings.Contains(s, "E") {
		s = "." + s
	}
	if neg {
		return "-" + s
	}
	return " " + s
}

func printInt(m *Machine, c *z80.CPU) error {
	m.print(formatInt(int16(c.HL())) + " ")
	c.Ret()
	return nil
}

func printFloat(m *Machine, c *z80.CPU) error {
	m.print(formatFloat(rightFloat(c)) + " ")
	c.Ret()
	return nil
}

func printString(m *Machine, c *z80.CPU) error {
	m.print(string(m.readString(c.HL())))
	c.Ret()
	return nil
}

func printTab(m *Machine, c *z80.CPU) error {
	n := tabWidth - m.col%tabWidth
	m.print(strings.Repeat(" ", n))
	c.Ret()
	return nil
}

func printNewline(m *Machine, c *z80.CPU) error {
	m.print("\n")
	c.Ret()
	return nil
}

// integers

func intMul(m *Machine, c *z80.CPU) error {
	c.SetHL(uint16(int16(c.HL()) * int16(c.DE())))
	c.Ret()
	return nil
}

func intDiv(m *Machine, c *z80.CPU) error {
	d := int16(c.DE())
	if d == 0 {
		return ErrDivisionByZero
	}
	c.SetHL(uint16(int16(c.HL()) / d))
	c.Ret()
	return nil
}

func intMod(m *Machine, c *z80.CPU) error {
	d := int16(c.DE())
	if d == 0 {
		return ErrDivisionByZero
	}
	c.SetHL(uint16(int16(c.HL()) % d))
	c.Ret()
	return nil
}

func intCompare(m *Machine, c *z80.CPU) error {
	c.A = sign(int(int16(c.HL())) - int(int16(c.DE())))
	c.Ret()
	return nil
}

func intAbs(m *Machine, c *z80.CPU) error {
	v := int16(c.HL())
	if v < 0 {
		v = -v
	}
	c.SetHL(uint16(v))
	c.Ret()
	return nil
}

// conversions

func intToFloat(m *Machine, c *z80.CPU) error {
	if err := setFloat(c, float64(int16(c.HL()))); err != nil {
		return err
	}
	c.Ret()
	return nil
}

func floatToInt(m *Machine, c *z80.CPU) error {
	v := math.Trunc(rightFloat(c))
	if v < -32768 || v > 32767 {
		return ErrOverflow
	}
	c.SetHL(uint16(int16(v)))
	c.Ret()
	return nil
}

func intToString(m *Machine, c *z80.CPU) error {
	m.temp(c, []byte(formatInt(int16(c.HL()))))
	c.Ret()
	return nil
}

func floatToString(m *Machine, c *z80.CPU) error {
	m.temp(c, []byte(formatFloat(rightFloat(c))))
	c.Ret()
	return nil
}

// numericPrefix returns the longest leading part of s that parses as a number.
func numericPrefix(s string) float64 {
	s = strings.TrimSpace(s)
	for n := len(s); n > 0; n-- {
		if v, err := strconv.ParseFloat(s[:n], 64); err == nil {
			return v
		}
	}
	return 0
}

func stringToInt(m *Machine, c *z80.CPU) error {
	v := math.Trunc(numericPrefix(string(m.readString(c.HL()))))
	if v < -32768 || v > 32767 {
		return ErrOverflow
	}
	c.SetHL(uint16(int16(v)))
	c.Ret()
	return nil
}

func stringToFloat(m *Machine, c *z80.CPU) error {
	if err := setFloat(c, numericPrefix(string(m.readString(c.HL())))); err != nil {
		return err
	}
	c.Ret()
	return nil
}

// floats

func floatArith(op func(a, b float64) float64) routine {
	return func(m *Machine, c *z80.CPU) error {
		if err := setFloat(c, op(leftFloat(c), rightFloat(c))); err != nil {
			return err
		}
		c.Ret()
		return nil
	}
}

func floatDiv(m *Machine, c *z80.CPU) error {
	r := rightFloat(c)
	if r == 0 {
		return ErrDivisionByZero
	}
	if err := setFloat(c, leftFloat(c)/r); err != nil {
		return err
	}
	c.Ret()
	return nil
}

func floatCompare(m *Machine, c *z80.CPU) error {
	l, r := leftFloat(c), rightFloat(c)
	switch {
	case l < r:
		c.A = 0xFF
	case l > r:
		c.A = 1
	default:
		c.A = 0
	}
	c.Ret()
	return nil
}

func floatLoad(m *Machine, c *z80.CPU) error {
	addr := c.HL()
	c.B = m.Read(addr)
	c.SetHL(c.Read16(addr + 1))
	c.Ret()
	return nil
}

// string routines

func strAssign(m *Machine, c *z80.CPU) error {
	m.writeString(c.DE(), m.readString(c.HL()))
	c.SetHL(c.DE())
	c.Ret()
	return nil
}

func strConcat(m *Machine, c *z80.CPU) error {
	s := append(m.readString(c.HL()), m.readString(c.DE())...)
	if len(s) > 255 {
		return fmt.Errorf("string too long (%d characters)", len(s))
	}
	m.temp(c, s)
	c.Ret()
	return nil
}

func strCompare(m *Machine, c *z80.CPU) error {
	c.A = sign(bytes.Compare(m.readString(c.HL()), m.readString(c.DE())))
	c.Ret()
	return nil
}

func strLen(m *Machine, c *z80.CPU) error {
	c.SetHL(uint16(m.Read(c.HL())))
	c.Ret()
	return nil
}

func strChr(m *Machine, c *z80.CPU) error {
	if c.H != 0 {
		return ErrIllegalCall
	}
	m.temp(c, []byte{c.L})
	c.Ret()
	return nil
}

func strAsc(m *Machine, c *z80.CPU) error {
	s := m.readString(c.HL())
	if len(s) == 0 {
		return ErrIllegalCall
	}
	c.SetHL(uint16(s[0]))
	c.Ret()
	return nil
}

// bank helpers

func (m *Machine) checkBank(bank int) error {
	if bank < m.cfg.Mapper.FirstBank || bank >= len(m.banks) {
		return fmt.Errorf("bank %d not in cartridge", bank)
	}
	return nil
}

// bankJump maps bank A and continues at HL.
func bankJump(m *Machine, c *z80.CPU) error {
	if err := m.checkBank(int(c.A)); err != nil {
		return err
	}
	m.mapWindow(int(c.A))
	m.Switches++
	c.PC = c.HL()
	return nil
}

// bankCall is reached by CALL, so the caller's return address is already
// on the stack. The callee returns into bankReturn, which remaps the
// caller's window and returns again.
func bankCall(m *Machine, c *z80.CPU) error {
	if err := m.checkBank(int(c.A)); err != nil {
		return err
	}
	m.frames = append(m.frames, m.Window())
	c.Push(bankReturn)
	m.mapWindow(int(c.A))
	m.Switches++
	c.PC = c.HL()
	return nil
}

// bankRead copies the constant at HL in bank A into a temporary slot and
// points HL at the copy.
func bankRead(m *Machine, c *z80.CPU) error {
	bank := int(c.A)
	if err := m.checkBank(bank); err != nil {
		return err
	}
	mp := m.cfg.Mapper
	off := int(c.HL()) - int(mp.WindowBase)
	if off < 0 || off >= mp.WindowSize() {
		return fmt.Errorf("bank read outside window: %04X", c.HL())
	}
	dst := m.slot()
	for i := 0; i < m.cfg.RAM.SlotSize && off+i < mp.WindowSize(); i++ {
		p := off + i
		m.Write(dst+uint16(i), m.bankByte(bank+p/mp.BankSize, p%mp.BankSize))
	}
	c.SetHL(dst)
	c.Ret()
	return nil
}
