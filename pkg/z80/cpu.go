package z80

import (
	"errors"
	"fmt"
)

// Bus is the memory seen by the CPU. Bank switching is the bus's business.
type Bus interface {
	Read(addr uint16) byte
	Write(addr uint16, v byte)
}

// Trap runs instead of the instruction at its address. It must leave PC
// pointing at the next instruction to execute, usually through Ret.
type Trap func(c *CPU) error

// ErrStepLimit is returned by Run when the program does not halt in time.
var ErrStepLimit = errors.New("z80: step limit reached")

// CPU interprets the subset of the Z80 instruction set the compiler emits.
type CPU struct {
	A, B, C, D, E, H, L byte

	PC uint16
	SP uint16

	FZ bool // zero
	FC bool // carry
	FS bool // sign

	Halted bool
	Steps  int

	Bus   Bus
	Traps map[uint16]Trap
}

// NewCPU creates a CPU attached to bus with the stack at the top of memory.
func NewCPU(bus Bus) *CPU {
	return &CPU{
		SP:    0xF380,
		Bus:   bus,
		Traps: make(map[uint16]Trap),
	}
}

func (c *CPU) HL() uint16 { return uint16(c.H)<<8 | uint16(c.L) }
func (c *CPU) DE() uint16 { return uint16(c.D)<<8 | uint16(c.E) }
func (c *CPU) BC() uint16 { return uint16(c.B)<<8 | uint16(c.C) }

func (c *CPU) SetHL(v uint16) { c.H, c.L = byte(v>>8), byte(v) }
func (c *CPU) SetDE(v uint16) { c.D, c.E = byte(v>>8), byte(v) }
func (c *CPU) SetBC(v uint16) { c.B, c.C = byte(v>>8), byte(v) }

// Read16 reads a little-endian word.
func (c *CPU) Read16(addr uint16) uint16 {
	return uint16(c.Bus.Read(addr)) | uint16(c.Bus.Read(addr+1))<<8
}

// Write16 writes a little-endian word.
func (c *CPU) Write16(addr uint16, v uint16) {
	c.Bus.Write(addr, byte(v))
	c.Bus.Write(addr+1, byte(v>>8))
}

func (c *CPU) Push(v uint16) {
	c.SP -= 2
	c.Write16(c.SP, v)
}

func (c *CPU) Pop() uint16 {
	v := c.Read16(c.SP)
	c.SP += 2
	return v
}

// Ret returns from the current subroutine.
func (c *CPU) Ret() {
	c.PC = c.Pop()
}

func (c *CPU) fetch() byte {
	b := c.Bus.Read(c.PC)
	c.PC++
	return b
}

func (c *CPU) fetch16() uint16 {
	v := c.Read16(c.PC)
	c.PC += 2
	return v
}

func (c *CPU) logic(v byte) {
	c.A = v
	c.FZ = v == 0
	c.FS = v&0x80 != 0
	c.FC = false
}

func (c *CPU) cond(cc Cond) bool {
	switch cc {
	case NZ:
		return !c.FZ
	case Z:
		return c.FZ
	case NC:
		return !c.FC
	}
	return c.FC
}

// Step executes one instruction, or the trap registered at PC.
func (c *CPU) Step() error {
	if c.Halted {
		return nil
	}
	c.Steps++

	if trap, ok := c.Traps[c.PC]; ok {
		return trap(c)
	}

	at := c.PC
	op := c.fetch()

	switch op {
	case NOP:
	case HALT:
		c.Halted = true

	case LDBCnn:
		c.SetBC(c.fetch16())
	case LDDEnn:
		c.SetDE(c.fetch16())
	case LDHLnn:
		c.SetHL(c.fetch16())
	case LDHLmem:
		c.SetHL(c.Read16(c.fetch16()))
	case LDnnHL:
		c.Write16(c.fetch16(), c.HL())
	case LDAmem:
		c.A = c.Bus.Read(c.fetch16())
	case LDnnA:
		c.Bus.Write(c.fetch16(), c.A)
	case LDAn:
		c.A = c.fetch()
	case LDBn:
		c.B = c.fetch()

	case LDBA:
		c.B = c.A
	case LDCB:
		c.C = c.B
	case LDCA:
		c.C = c.A
	case LDAB:
		c.A = c.B
	case LDAC:
		c.A = c.C
	case LDAH:
		c.A = c.H
	case LDAL:
		c.A = c.L
	case LDHA:
		c.H = c.A
	case LDLA:
		c.L = c.A
	case LDAHL:
		c.A = c.Bus.Read(c.HL())
	case LDHHL:
		c.H = c.Bus.Read(c.HL())
	case LDBHL:
		c.B = c.Bus.Read(c.HL())
	case LDHLA:
		c.Bus.Write(c.HL(), c.A)
	case LDHLB:
		c.Bus.Write(c.HL(), c.B)
	case LDHLD:
		c.Bus.Write(c.HL(), c.D)
	case LDHLE:
		c.Bus.Write(c.HL(), c.E)

	case INCHL:
		c.SetHL(c.HL() + 1)
	case DECHL:
		c.SetHL(c.HL() - 1)
	case INCA:
		c.A++
		c.FZ = c.A == 0
		c.FS = c.A&0x80 != 0
	case DECA:
		c.A--
		c.FZ = c.A == 0
		c.FS = c.A&0x80 != 0
	case CPL:
		c.A = ^c.A
	case RLCA:
		c.FC = c.A&0x80 != 0
		c.A = c.A<<1 | c.A>>7

	case ADDHLDE, ADDHLHL, ADDHLBC:
		var rr uint16
		switch op {
		case ADDHLDE:
			rr = c.DE()
		case ADDHLHL:
			rr = c.HL()
		default:
			rr = c.BC()
		}
		sum := uint32(c.HL()) + uint32(rr)
		c.FC = sum > 0xFFFF
		c.SetHL(uint16(sum))

	case ANDD:
		c.logic(c.A & c.D)
	case ANDE:
		c.logic(c.A & c.E)
	case ORD:
		c.logic(c.A | c.D)
	case ORE:
		c.logic(c.A | c.E)
	case ORH:
		c.logic(c.A | c.H)
	case ORL:
		c.logic(c.A | c.L)
	case ORA:
		c.logic(c.A)
	case XORD:
		c.logic(c.A ^ c.D)
	case XORE:
		c.logic(c.A ^ c.E)
	case XORn:
		c.logic(c.A ^ c.fetch())

	case PUSHHL:
		c.Push(c.HL())
	case PUSHDE:
		c.Push(c.DE())
	case PUSHBC:
		c.Push(c.BC())
	case POPHL:
		c.SetHL(c.Pop())
	case POPDE:
		c.SetDE(c.Pop())
	case POPBC:
		c.SetBC(c.Pop())
	case EXDEHL:
		hl := c.HL()
		c.SetHL(c.DE())
		c.SetDE(hl)

	case JPnn:
		c.PC = c.fetch16()
	case JR:
		e := int8(c.fetch())
		c.PC = uint16(int(c.PC) + int(e))
	case CALLnn:
		target := c.fetch16()
		c.Push(c.PC)
		c.PC = target
	case RET:
		c.Ret()

	case PrefixCB:
		switch sub := c.fetch(); sub {
		case BIT7B:
			c.FZ = c.B&0x80 == 0
		case RES7B:
			c.B &^= 0x80
		default:
			return fmt.Errorf("z80: unsupported opcode CB %02X at %04X", sub, at)
		}

	case PrefixED:
		switch sub := c.fetch(); sub {
		case SBCHLDE:
			var carry uint32
			if c.FC {
				carry = 1
			}
			hl, de := uint32(c.HL()), uint32(c.DE())
			c.FC = hl < de+carry
			r := uint16(hl - de - carry)
			c.SetHL(r)
			c.FZ = r == 0
			c.FS = r&0x8000 != 0
		case LDDEmem:
			c.SetDE(c.Read16(c.fetch16()))
		case NEG:
			c.FC = c.A != 0
			c.A = -c.A
			c.FZ = c.A == 0
			c.FS = c.A&0x80 != 0
		default:
			return fmt.Errorf("z80: unsupported opcode ED %02X at %04X", sub, at)
		}

	default:
		if cc, ok := CondFromJP(op); ok {
			target := c.fetch16()
			if c.cond(cc) {
				c.PC = target
			}
			return nil
		}
		for cc := NZ; cc <= C; cc++ {
			if cc.JR() == op {
				e := int8(c.fetch())
				if c.cond(cc) {
					c.PC = uint16(int(c.PC) + int(e))
				}
				return nil
			}
		}
		return fmt.Errorf("z80: unsupported opcode %02X at %04X", op, at)
	}
	return nil
}

// Run steps until HALT, an error, or limit instructions.
func (c *CPU) Run(limit int) error {
	for !c.Halted {
		if c.Steps >= limit {
			return ErrStepLimit
		}
		if err := c.Step(); err != nil {
			return err
		}
	}
	return nil
}
