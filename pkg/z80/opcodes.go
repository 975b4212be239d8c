// Package z80 holds the Z80 encodings the code generator emits and a small
// interpreter that executes them.
package z80

const (
	NOP     byte = 0x00
	LDBCnn  byte = 0x01
	RLCA    byte = 0x07
	ADDHLBC byte = 0x09
	LDBn    byte = 0x06
	LDDEnn  byte = 0x11
	ADDHLDE byte = 0x19
	LDHLnn  byte = 0x21
	LDnnHL  byte = 0x22
	INCHL   byte = 0x23
	ADDHLHL byte = 0x29
	LDHLmem byte = 0x2A // LD HL,(nn)
	DECHL   byte = 0x2B
	CPL     byte = 0x2F
	LDnnA   byte = 0x32
	INCA    byte = 0x3C
	DECA    byte = 0x3D
	LDAmem  byte = 0x3A // LD A,(nn)
	LDAn    byte = 0x3E
	LDBA    byte = 0x47
	LDBHL   byte = 0x46 // LD B,(HL)
	LDCB    byte = 0x48
	LDCA    byte = 0x4F
	LDHHL   byte = 0x66 // LD H,(HL)
	LDHA    byte = 0x67
	LDLA    byte = 0x6F
	LDHLB   byte = 0x70 // LD (HL),B
	LDHLD   byte = 0x72 // LD (HL),D
	LDHLE   byte = 0x73 // LD (HL),E
	HALT    byte = 0x76
	LDHLA   byte = 0x77 // LD (HL),A
	LDAB    byte = 0x78
	LDAC    byte = 0x79
	LDAH    byte = 0x7C
	LDAL    byte = 0x7D
	LDAHL   byte = 0x7E // LD A,(HL)
	ANDD    byte = 0xA2
	ANDE    byte = 0xA3
	XORD    byte = 0xAA
	XORE    byte = 0xAB
	ORD     byte = 0xB2
	ORE     byte = 0xB3
	ORH     byte = 0xB4
	ORL     byte = 0xB5
	ORA     byte = 0xB7
	POPBC   byte = 0xC1
	JPnn    byte = 0xC3
	PUSHBC  byte = 0xC5
	RET     byte = 0xC9
	CALLnn  byte = 0xCD
	POPDE   byte = 0xD1
	PUSHDE  byte = 0xD5
	POPHL   byte = 0xE1
	PUSHHL  byte = 0xE5
	EXDEHL  byte = 0xEB
	XORn    byte = 0xEE
	JR      byte = 0x18

	PrefixCB byte = 0xCB
	PrefixED byte = 0xED

	// CB-prefixed
	BIT7B byte = 0x78
	RES7B byte = 0xB8

	// ED-prefixed
	SBCHLDE byte = 0x52
	LDDEmem byte = 0x5B // LD DE,(nn)
	NEG     byte = 0x44
)

// Cond is a branch condition usable by both JP cc and JR cc.
type Cond int

const (
	NZ Cond = iota
	Z
	NC
	C
)

// JP returns the opcode of JP cc,nn.
func (c Cond) JP() byte {
	return [...]byte{0xC2, 0xCA, 0xD2, 0xDA}[c]
}

// JR returns the opcode of JR cc,e.
func (c Cond) JR() byte {
	return [...]byte{0x20, 0x28, 0x30, 0x38}[c]
}

// Not returns the opposite condition.
func (c Cond) Not() Cond {
	return c ^ 1
}

func (c Cond) String() string {
	return [...]string{"NZ", "Z", "NC", "C"}[c]
}

// CondFromJP maps a JP cc opcode back to its condition.
func CondFromJP(op byte) (Cond, bool) {
	for c := NZ; c <= C; c++ {
		if c.JP() == op {
			return c, true
		}
	}
	return 0, false
}

// Word splits v into little-endian bytes.
func Word(v int) (lo, hi byte) {
	return byte(v), byte(v >> 8)
}

// Inst builds an instruction with a little-endian 16-bit operand.
func Inst(op byte, nn int) []byte {
	lo, hi := Word(nn)
	return []byte{op, lo, hi}
}
