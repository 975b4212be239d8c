package compiler

import (
	"math/bits"

	"msxbasrom/pkg/ast"
	"msxbasrom/pkg/symtab"
	"msxbasrom/pkg/z80"
)

// defaultDim is the element count of every dimension of an array used
// without DIM (indices 0 to 10).
const defaultDim = 11

const maxDims = 2

func (c *Compiler) elementSize(t ast.Subtype) int {
	switch {
	case t == ast.Int:
		return 2
	case t.IsFloat():
		return 3
	}
	return c.cfg.RAM.SlotSize
}

// setDims records element counts and the derived byte strides on the
// symbol's canonical token.
func (c *Compiler) setDims(sym *symtab.Symbol, dims []int) {
	tok := sym.Token
	tok.Dims = dims
	tok.Strides = make([]int, len(dims))
	stride := c.elementSize(tok.Subtype)
	for i, d := range dims {
		tok.Strides[i] = stride
		stride *= d
	}
}

func arraySize(tok *ast.Token) int {
	if len(tok.Dims) == 0 {
		return 0
	}
	last := len(tok.Dims) - 1
	return tok.Strides[last] * tok.Dims[last]
}

// arraySymbol interns the array named by n and makes sure it has a shape.
func (c *Compiler) arraySymbol(n *ast.Node) (*symtab.Symbol, error) {
	if len(n.Children) == 0 || len(n.Children) > maxDims {
		return nil, c.errorf(KindStructural, "array %s needs 1 to %d subscripts", n.Token, maxDims)
	}
	sym := c.syms.Intern(n.Token)
	if sym.Token.Dims == nil {
		dims := make([]int, len(n.Children))
		for i := range dims {
			dims[i] = defaultDim
		}
		c.setDims(sym, dims)
	}
	if len(sym.Token.Dims) != len(n.Children) {
		return nil, c.errorf(KindStructural, "array %s has %d dimensions, %d subscripts given", n.Token, len(sym.Token.Dims), len(n.Children))
	}
	return sym, nil
}

// dim handles one DIM entry. Children are the maximum indices.
func (c *Compiler) dim(n *ast.Node) error {
	if n.Token == nil || !n.Token.IsArray {
		return c.errorf(KindStructural, "DIM of non-array %s", n)
	}
	if len(n.Children) == 0 || len(n.Children) > maxDims {
		return c.errorf(KindStructural, "array %s needs 1 to %d dimensions", n.Token, maxDims)
	}
	sym := c.syms.Intern(n.Token)
	if sym.Token.Dims != nil {
		return c.errorf(KindStructural, "array %s already dimensioned", n.Token)
	}
	dims := make([]int, len(n.Children))
	for i, d := range n.Children {
		v, ok := c.literalInt(d)
		if !ok || v < 0 {
			return c.errorf(KindType, "DIM %s needs non-negative integer constants", n.Token)
		}
		dims[i] = v + 1
	}
	c.setDims(sym, dims)
	if size := arraySize(sym.Token); size > 0xFFFF {
		return c.errorf(KindCapacity, "array %s needs %d bytes", n.Token, size)
	}
	return nil
}

// scale multiplies HL by f.
func (c *Compiler) scale(f int) {
	switch {
	case f == 1:
	case bits.OnesCount(uint(f)) == 1:
		for i := bits.TrailingZeros(uint(f)); i > 0; i-- {
			c.em.Emit(z80.ADDHLHL)
		}
	default:
		c.em.Emit(z80.Inst(z80.LDDEnn, f)...)
		c.em.CallAbs(c.cfg.Kernel.IntMul)
	}
}

// elementAddress leaves the address of the element n refers to in HL.
func (c *Compiler) elementAddress(n *ast.Node) (ast.Subtype, error) {
	sym, err := c.arraySymbol(n)
	if err != nil {
		return ast.Null, err
	}
	tok := sym.Token

	folded := 0
	constant := true
	for i, idx := range n.Children {
		v, ok := c.literalInt(idx)
		if !ok {
			constant = false
			break
		}
		if v < 0 || v >= tok.Dims[i] {
			return ast.Null, c.errorf(KindStructural, "subscript %d out of range for %s", v, n.Token)
		}
		folded += v * tok.Strides[i]
	}
	if constant {
		c.em.Ref(sym, folded, z80.LDHLnn)
		return tok.Subtype, nil
	}

	last := len(n.Children) - 1
	for i, idx := range n.Children {
		if v, ok := c.literalInt(idx); ok {
			c.em.Emit(z80.Inst(z80.LDHLnn, (v*tok.Strides[i])&0xFFFF)...)
		} else {
			if _, err := c.evaluateAs(idx, ast.Int); err != nil {
				return ast.Null, err
			}
			c.scale(tok.Strides[i])
		}
		if i > 0 {
			c.em.Emit(z80.POPDE)
			c.em.Emit(z80.ADDHLDE)
		}
		if i < last {
			c.em.Emit(z80.PUSHHL)
		}
	}
	c.em.Ref(sym, 0, z80.LDDEnn)
	c.em.Emit(z80.ADDHLDE)
	return tok.Subtype, nil
}

func (c *Compiler) arrayLoad(n *ast.Node) error {
	t, err := c.elementAddress(n)
	if err != nil {
		return err
	}
	switch {
	case t == ast.Int:
		c.em.Emit(z80.LDAHL)
		c.em.Emit(z80.INCHL)
		c.em.Emit(z80.LDHHL)
		c.em.Emit(z80.LDLA)
	case t.IsFloat():
		c.em.Emit(z80.LDBHL)
		c.em.Emit(z80.INCHL)
		c.em.Emit(z80.LDAHL)
		c.em.Emit(z80.INCHL)
		c.em.Emit(z80.LDHHL)
		c.em.Emit(z80.LDLA)
	}
	return nil
}

// arrayStore evaluates value and stores it into the element target refers to.
func (c *Compiler) arrayStore(target, value *ast.Node) error {
	t, err := c.elementAddress(target)
	if err != nil {
		return err
	}
	c.em.Emit(z80.PUSHHL)
	vt, err := c.evaluate(value)
	if err != nil {
		return err
	}
	if !assignable(vt, t) {
		return c.errorf(KindType, "cannot assign %s to %s", vt, target.Token)
	}
	if err := c.addCast(vt, t); err != nil {
		return err
	}
	c.em.Emit(z80.POPDE)
	switch {
	case t == ast.Int:
		c.em.Emit(z80.EXDEHL)
		c.em.Emit(z80.LDHLE)
		c.em.Emit(z80.INCHL)
		c.em.Emit(z80.LDHLD)
	case t.IsFloat():
		c.em.Emit(z80.EXDEHL)
		c.em.Emit(z80.LDHLB)
		c.em.Emit(z80.INCHL)
		c.em.Emit(z80.LDHLE)
		c.em.Emit(z80.INCHL)
		c.em.Emit(z80.LDHLD)
	default:
		c.em.CallAbs(c.cfg.Kernel.StrAssign)
	}
	return nil
}
