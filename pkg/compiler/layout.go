package compiler

import (
	"strconv"
	"strings"

	"msxbasrom/pkg/ast"
	"msxbasrom/pkg/symtab"
	"msxbasrom/pkg/target"
)

// Layout is the RAM map chosen after code generation.
type Layout struct {
	VarStart  int
	VarEnd    int
	Ring      int
	Scratch   int // equal to End when no scratch buffer is needed
	End       int
	Footprint int // bytes from RAM base to End
}

func (c *Compiler) floatValue(tok *ast.Token) (target.Float, error) {
	s := strings.TrimRight(strings.TrimSpace(tok.Value), "!#")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return target.Float{}, c.errorf(KindType, "bad float literal %s", tok.Value)
	}
	f, err := target.EncodeFloat(v)
	if err != nil {
		return target.Float{}, c.errorf(KindType, "%v", err)
	}
	return f, nil
}

// constantBytes is the pool representation of a literal.
func (c *Compiler) constantBytes(sym *symtab.Symbol) ([]byte, error) {
	tok := sym.Token
	switch tok.Subtype {
	case ast.String:
		b := make([]byte, 0, len(tok.Value)+1)
		b = append(b, byte(len(tok.Value)))
		return append(b, tok.Value...), nil
	case ast.Single, ast.Double:
		f, err := c.floatValue(tok)
		if err != nil {
			return nil, err
		}
		return f.Bytes(), nil
	case ast.Int:
		v, err := c.intValue(tok)
		if err != nil {
			return nil, err
		}
		return []byte{byte(v), byte(v >> 8)}, nil
	}
	return nil, c.errorf(KindType, "cannot pool %s constant %s", tok.Subtype, tok)
}

// emitConstants appends every pooled literal, one data range each, to the
// tail of the code stream.
func (c *Compiler) emitConstants() error {
	c.line = ""
	for _, sym := range c.syms.Symbols() {
		if sym.Class != symtab.ClassConstant {
			continue
		}
		b, err := c.constantBytes(sym)
		if err != nil {
			return err
		}
		c.em.BeginRange("const "+sym.Name(), false, false)
		if err := c.defineHere(sym); err != nil {
			return err
		}
		sym.Size = len(b)
		c.em.Data(b)
		c.em.EndRange()
	}
	return nil
}

func (c *Compiler) variableSize(sym *symtab.Symbol) int {
	if sym.Token.IsArray {
		return arraySize(sym.Token)
	}
	return c.elementSize(sym.Token.Subtype)
}

// layoutRAM assigns addresses to variables, then the temporary string
// ring, then the scratch buffer when anything renders numbers.
func (c *Compiler) layoutRAM() (*Layout, error) {
	ram := c.cfg.RAM
	l := &Layout{VarStart: ram.VarBase()}
	addr := l.VarStart
	for _, sym := range c.syms.Symbols() {
		if sym.Class != symtab.ClassVariable {
			continue
		}
		sym.Size = c.variableSize(sym)
		if err := c.syms.Define(sym, addr); err != nil {
			return nil, c.wrap(KindStructural, "", err)
		}
		addr += sym.Size
	}
	l.VarEnd = addr

	l.Ring = addr
	c.ring.Size = ram.TempSlots * ram.SlotSize
	if err := c.syms.Define(c.ring, l.Ring); err != nil {
		return nil, c.wrap(KindStructural, "", err)
	}
	addr += c.ring.Size

	l.Scratch = addr
	if c.needScratch {
		c.scratch.Size = ram.ScratchSize
	}
	if err := c.syms.Define(c.scratch, l.Scratch); err != nil {
		return nil, c.wrap(KindStructural, "", err)
	}
	addr += c.scratch.Size

	l.End = addr
	l.Footprint = addr - int(ram.Base)
	if addr > int(ram.Top) {
		return l, c.errorf(KindCapacity, "out of RAM by %d bytes", addr-int(ram.Top))
	}
	return l, nil
}
