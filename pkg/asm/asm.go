// Package asm turns emitted Z80 code back into mnemonics for listings.
package asm

import (
	"fmt"

	"msxbasrom/pkg/z80"
)

var zeroOperandOps = map[byte]string{
	z80.NOP:     "NOP",
	z80.RLCA:    "RLCA",
	z80.ADDHLBC: "ADD HL,BC",
	z80.ADDHLDE: "ADD HL,DE",
	z80.ADDHLHL: "ADD HL,HL",
	z80.INCHL:   "INC HL",
	z80.DECHL:   "DEC HL",
	z80.CPL:     "CPL",
	z80.INCA:    "INC A",
	z80.DECA:    "DEC A",
	z80.LDBA:    "LD B,A",
	z80.LDBHL:   "LD B,(HL)",
	z80.LDCB:    "LD C,B",
	z80.LDCA:    "LD C,A",
	z80.LDHHL:   "LD H,(HL)",
	z80.LDHA:    "LD H,A",
	z80.LDLA:    "LD L,A",
	z80.LDHLB:   "LD (HL),B",
	z80.LDHLD:   "LD (HL),D",
	z80.LDHLE:   "LD (HL),E",
	z80.HALT:    "HALT",
	z80.LDHLA:   "LD (HL),A",
	z80.LDAB:    "LD A,B",
	z80.LDAC:    "LD A,C",
	z80.LDAH:    "LD A,H",
	z80.LDAL:    "LD A,L",
	z80.LDAHL:   "LD A,(HL)",
	z80.ANDD:    "AND D",
	z80.ANDE:    "AND E",
	z80.XORD:    "XOR D",
	z80.XORE:    "XOR E",
	z80.ORD:     "OR D",
	z80.ORE:     "OR E",
	z80.ORH:     "OR H",
	z80.ORL:     "OR L",
	z80.ORA:     "OR A",
	z80.POPBC:   "POP BC",
	z80.PUSHBC:  "PUSH BC",
	z80.RET:     "RET",
	z80.POPDE:   "POP DE",
	z80.PUSHDE:  "PUSH DE",
	z80.POPHL:   "POP HL",
	z80.PUSHHL:  "PUSH HL",
	z80.EXDEHL:  "EX DE,HL",
}

// wordOperandOps take a little-endian address or value; %s is the operand.
var wordOperandOps = map[byte]string{
	z80.LDBCnn:  "LD BC,%s",
	z80.LDDEnn:  "LD DE,%s",
	z80.LDHLnn:  "LD HL,%s",
	z80.LDnnHL:  "LD (%s),HL",
	z80.LDHLmem: "LD HL,(%s)",
	z80.LDnnA:   "LD (%s),A",
	z80.LDAmem:  "LD A,(%s)",
	z80.JPnn:    "JP %s",
	z80.CALLnn:  "CALL %s",
}

var byteOperandOps = map[byte]string{
	z80.LDAn: "LD A,%s",
	z80.LDBn: "LD B,%s",
	z80.XORn: "XOR %s",
}

var relativeOps = map[byte]string{
	z80.JR: "JR %s",
}

var edOps = map[byte]string{
	z80.SBCHLDE: "SBC HL,DE",
	z80.NEG:     "NEG",
}

var cbOps = map[byte]string{
	z80.BIT7B: "BIT 7,B",
	z80.RES7B: "RES 7,B",
}

// branches are the word ops whose operand is a code address.
var branches = map[byte]bool{z80.JPnn: true, z80.CALLnn: true}

func init() {
	for cc := z80.NZ; cc <= z80.C; cc++ {
		wordOperandOps[cc.JP()] = "JP " + cc.String() + ",%s"
		branches[cc.JP()] = true
		relativeOps[cc.JR()] = "JR " + cc.String() + ",%s"
	}
}

// Inst is one decoded instruction.
type Inst struct {
	Addr  uint16
	Bytes []byte
	Text  string
}

// Disassembler decodes instructions. Names, when set, replaces branch
// targets with labels.
type Disassembler struct {
	Names map[uint16]string
}

func (d *Disassembler) target(addr uint16) string {
	if name, ok := d.Names[addr]; ok {
		return name
	}
	return fmt.Sprintf("0x%04X", addr)
}

func word(code []byte) uint16 {
	return uint16(code[0]) | uint16(code[1])<<8
}

func dataByte(code []byte, addr uint16) Inst {
	return Inst{Addr: addr, Bytes: code[:1], Text: fmt.Sprintf("DB 0x%02X", code[0])}
}

// Decode reads the instruction at the start of code, which sits at addr.
// Bytes that do not form a known instruction decode as a single DB.
func (d *Disassembler) Decode(code []byte, addr uint16) Inst {
	if len(code) == 0 {
		return Inst{Addr: addr}
	}
	op := code[0]
	if text, ok := zeroOperandOps[op]; ok {
		return Inst{Addr: addr, Bytes: code[:1], Text: text}
	}
	if format, ok := wordOperandOps[op]; ok && len(code) >= 3 {
		v := word(code[1:])
		operand := fmt.Sprintf("0x%04X", v)
		if branches[op] {
			operand = d.target(v)
		}
		return Inst{Addr: addr, Bytes: code[:3], Text: fmt.Sprintf(format, operand)}
	}
	if format, ok := byteOperandOps[op]; ok && len(code) >= 2 {
		return Inst{Addr: addr, Bytes: code[:2], Text: fmt.Sprintf(format, fmt.Sprintf("0x%02X", code[1]))}
	}
	if format, ok := relativeOps[op]; ok && len(code) >= 2 {
		dest := uint16(int(addr) + 2 + int(int8(code[1])))
		return Inst{Addr: addr, Bytes: code[:2], Text: fmt.Sprintf(format, d.target(dest))}
	}
	if len(code) < 2 {
		return dataByte(code, addr)
	}
	switch op {
	case z80.PrefixED:
		if text, ok := edOps[code[1]]; ok {
			return Inst{Addr: addr, Bytes: code[:2], Text: text}
		}
		if code[1] == z80.LDDEmem && len(code) >= 4 {
			return Inst{Addr: addr, Bytes: code[:4], Text: fmt.Sprintf("LD DE,(0x%04X)", word(code[2:]))}
		}
	case z80.PrefixCB:
		if text, ok := cbOps[code[1]]; ok {
			return Inst{Addr: addr, Bytes: code[:2], Text: text}
		}
	}
	return dataByte(code, addr)
}

// Disassemble decodes all of code, which starts at base.
func (d *Disassembler) Disassemble(code []byte, base uint16) []Inst {
	var out []Inst
	for off := 0; off < len(code); {
		in := d.Decode(code[off:], base+uint16(off))
		out = append(out, in)
		off += len(in.Bytes)
	}
	return out
}

// Disassemble decodes code without label names.
func Disassemble(code []byte, base uint16) []Inst {
	return (&Disassembler{}).Disassemble(code, base)
}
