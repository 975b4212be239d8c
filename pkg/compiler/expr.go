package compiler

import (
	"strconv"
	"strings"

	"msxbasrom/pkg/ast"
	"msxbasrom/pkg/symtab"
	"msxbasrom/pkg/z80"
)

// typeOf computes the result type of n once and caches it on the node.
func (c *Compiler) typeOf(n *ast.Node) ast.Subtype {
	if n.Typed {
		return n.Result
	}
	var t ast.Subtype
	switch {
	case n.Op == ast.OpNone:
		if n.Token == nil || (n.Token.Kind != ast.Literal && n.Token.Kind != ast.Identifier) {
			t = ast.Null
			break
		}
		t = n.Token.Subtype
		if t == ast.Blob {
			t = ast.Null
		}
	case n.Op.IsFunction():
		t = c.functionType(n)
	case n.Op == ast.OpNeg:
		t = c.unaryType(n, func(a ast.Subtype) bool { return a.IsNumeric() }, ast.Null)
	case n.Op == ast.OpNot:
		t = c.unaryType(n, func(a ast.Subtype) bool { return a.IsNumeric() }, ast.Int)
	default:
		if len(n.Children) != 2 {
			t = ast.Null
			break
		}
		t = binaryResult(n.Op, c.typeOf(n.Children[0]), c.typeOf(n.Children[1]))
	}
	n.Result, n.Typed = t, true
	return t
}

// unaryType types a one-argument node. fixed is the result type when the
// operator has one, Null to keep the argument's type.
func (c *Compiler) unaryType(n *ast.Node, accept func(ast.Subtype) bool, fixed ast.Subtype) ast.Subtype {
	if len(n.Children) != 1 {
		return ast.Null
	}
	a := c.typeOf(n.Children[0])
	if !accept(a) {
		return ast.Null
	}
	if fixed != ast.Null {
		return fixed
	}
	return a
}

func (c *Compiler) functionType(n *ast.Node) ast.Subtype {
	numeric := func(a ast.Subtype) bool { return a.IsNumeric() }
	str := func(a ast.Subtype) bool { return a == ast.String }
	switch n.Op {
	case ast.FnCint:
		return c.unaryType(n, numeric, ast.Int)
	case ast.FnCsng:
		return c.unaryType(n, numeric, ast.Single)
	case ast.FnCdbl:
		return c.unaryType(n, numeric, ast.Double)
	case ast.FnStr:
		return c.unaryType(n, numeric, ast.String)
	case ast.FnVal:
		return c.unaryType(n, str, ast.Single)
	case ast.FnLen, ast.FnAsc:
		return c.unaryType(n, str, ast.Int)
	case ast.FnAbs:
		return c.unaryType(n, numeric, ast.Null)
	case ast.FnChr:
		return c.unaryType(n, numeric, ast.String)
	}
	return ast.Null
}

// evaluate emits code leaving the value of n in the registers of its type:
// HL for integers and strings, B:HL for floats.
func (c *Compiler) evaluate(n *ast.Node) (ast.Subtype, error) {
	t := c.typeOf(n)
	if t == ast.Null {
		return t, c.errorf(KindType, "type mismatch in %s", n)
	}
	switch {
	case n.Op == ast.OpNone:
		if n.Token.Kind == ast.Literal {
			return t, c.literal(n.Token)
		}
		if n.Token.IsArray {
			return t, c.arrayLoad(n)
		}
		c.loadVar(c.syms.Intern(n.Token), t)
		return t, nil
	case n.Op.IsFunction():
		return t, c.function(n, t)
	case n.Op == ast.OpNeg:
		return t, c.negate(n, t)
	case n.Op == ast.OpNot:
		if _, err := c.evaluateAs(n.Children[0], ast.Int); err != nil {
			return t, err
		}
		c.em.Emit(z80.LDAH)
		c.em.Emit(z80.CPL)
		c.em.Emit(z80.LDHA)
		c.em.Emit(z80.LDAL)
		c.em.Emit(z80.CPL)
		c.em.Emit(z80.LDLA)
		return t, nil
	}
	return t, c.binary(n, t)
}

// evaluateAs evaluates n and converts the result to want.
func (c *Compiler) evaluateAs(n *ast.Node, want ast.Subtype) (ast.Subtype, error) {
	t, err := c.evaluate(n)
	if err != nil {
		return t, err
	}
	return t, c.addCast(t, want)
}

// intValue parses an integer literal. Values above 32767 keep their bit
// pattern, as &H addresses do.
func (c *Compiler) intValue(tok *ast.Token) (int, error) {
	s := strings.TrimSpace(tok.Value)
	v, err := strconv.ParseInt(s, 0, 32)
	if err != nil || v < -32768 || v > 0xFFFF {
		return 0, c.errorf(KindType, "integer literal %s out of range", tok.Value)
	}
	return int(v) & 0xFFFF, nil
}

func (c *Compiler) literal(tok *ast.Token) error {
	switch tok.Subtype {
	case ast.Int:
		v, err := c.intValue(tok)
		if err != nil {
			return err
		}
		c.em.Emit(z80.Inst(z80.LDHLnn, v)...)
	case ast.Single, ast.Double:
		if _, err := c.floatValue(tok); err != nil {
			return err
		}
		c.em.Fetch(c.syms.Intern(tok), 0)
		c.em.CallAbs(c.cfg.Kernel.FloatLoad)
	case ast.String:
		if len(tok.Value) > 255 {
			return c.errorf(KindType, "string literal longer than 255 characters")
		}
		c.em.Fetch(c.syms.Intern(tok), 0)
	default:
		return c.errorf(KindType, "cannot evaluate %s literal", tok.Subtype)
	}
	return nil
}

// literalInt reports the value of n when it is an integer literal, possibly
// negated, or a foldable operation on such literals.
func (c *Compiler) literalInt(n *ast.Node) (int, bool) {
	if len(n.Children) == 2 && n.Token == nil {
		l, lok := c.literalInt(n.Children[0])
		r, rok := c.literalInt(n.Children[1])
		if !lok || !rok {
			return 0, false
		}
		v, ok := foldInt(n.Op, l, r)
		if !ok || v < -32768 || v > 32767 {
			return 0, false
		}
		return v, true
	}
	neg := false
	if n.Op == ast.OpNeg && len(n.Children) == 1 {
		neg, n = true, n.Children[0]
	}
	if n.Op != ast.OpNone || n.Token == nil || n.Token.Kind != ast.Literal || n.Token.Subtype != ast.Int {
		return 0, false
	}
	v, err := strconv.ParseInt(strings.TrimSpace(n.Token.Value), 0, 32)
	if err != nil || v < -32768 || v > 32767 {
		return 0, false
	}
	if neg {
		v = -v
	}
	return int(v), true
}

func (c *Compiler) loadVar(sym *symtab.Symbol, t ast.Subtype) {
	switch {
	case t == ast.Int:
		c.em.Ref(sym, 0, z80.LDHLmem)
	case t.IsFloat():
		c.em.Ref(sym, 0, z80.LDAmem)
		c.em.Emit(z80.LDBA)
		c.em.Ref(sym, 1, z80.LDHLmem)
	case t == ast.String:
		c.em.Ref(sym, 0, z80.LDHLnn)
	}
}

func (c *Compiler) storeVar(sym *symtab.Symbol, t ast.Subtype) {
	switch {
	case t == ast.Int:
		c.em.Ref(sym, 0, z80.LDnnHL)
	case t.IsFloat():
		c.em.Emit(z80.LDAB)
		c.em.Ref(sym, 0, z80.LDnnA)
		c.em.Ref(sym, 1, z80.LDnnHL)
	case t == ast.String:
		c.em.Ref(sym, 0, z80.LDDEnn)
		c.em.CallAbs(c.cfg.Kernel.StrAssign)
	}
}

// spill saves the left operand across the evaluation of the right one.
func (c *Compiler) spill(t ast.Subtype) {
	if t.IsFloat() {
		c.em.Emit(z80.PUSHBC)
	}
	c.em.Emit(z80.PUSHHL)
}

// restoreFloat brings a spilled float back as the left operand in C:DE and
// keeps the right operand in B:HL.
func (c *Compiler) restoreFloat() {
	c.em.Emit(z80.LDAB)
	c.em.Emit(z80.POPDE)
	c.em.Emit(z80.POPBC)
	c.em.Emit(z80.LDCB)
	c.em.Emit(z80.LDBA)
}

func commutative(op ast.Op) bool {
	switch op {
	case ast.OpAdd, ast.OpMul, ast.OpAnd, ast.OpOr, ast.OpXor, ast.OpEq, ast.OpNe:
		return true
	}
	return false
}

// foldInt computes an integer operation on two literals at compile time.
func foldInt(op ast.Op, l, r int) (int, bool) {
	switch op {
	case ast.OpAdd:
		return l + r, true
	case ast.OpSub:
		return l - r, true
	case ast.OpMul:
		return l * r, true
	case ast.OpAnd:
		return l & r, true
	case ast.OpOr:
		return l | r, true
	case ast.OpXor:
		return l ^ r, true
	}
	return 0, false
}

func (c *Compiler) binary(n *ast.Node, t ast.Subtype) error {
	left, right := n.Children[0], n.Children[1]
	lt, rt := c.typeOf(left), c.typeOf(right)
	ot := operandType(n.Op, lt, rt, t)

	if ot == ast.Int {
		l, lok := c.literalInt(left)
		r, rok := c.literalInt(right)
		if lok && rok {
			if v, ok := foldInt(n.Op, l, r); ok {
				c.em.Emit(z80.Inst(z80.LDHLnn, v&0xFFFF)...)
				return nil
			}
		}
	}

	if _, err := c.evaluateAs(left, ot); err != nil {
		return err
	}
	c.spill(ot)
	if _, err := c.evaluateAs(right, ot); err != nil {
		return err
	}

	switch {
	case ot == ast.Int:
		c.intOp(n.Op)
	case ot.IsFloat():
		c.restoreFloat()
		c.floatOp(n.Op)
	case ot == ast.String:
		c.em.Emit(z80.EXDEHL)
		c.em.Emit(z80.POPHL)
		c.stringOp(n.Op)
	}
	return nil
}

// intOp combines HL (right) with the spilled left operand.
func (c *Compiler) intOp(op ast.Op) {
	k := c.cfg.Kernel
	if commutative(op) {
		c.em.Emit(z80.POPDE)
	} else {
		c.em.Emit(z80.EXDEHL)
		c.em.Emit(z80.POPHL)
	}
	switch op {
	case ast.OpAdd:
		c.em.Emit(z80.ADDHLDE)
	case ast.OpSub:
		c.em.Emit(z80.ORA)
		c.em.Emit(z80.PrefixED, z80.SBCHLDE)
	case ast.OpMul:
		c.em.CallAbs(k.IntMul)
	case ast.OpDiv, ast.OpIntDiv:
		c.em.CallAbs(k.IntDiv)
	case ast.OpMod:
		c.em.CallAbs(k.IntMod)
	case ast.OpAnd:
		c.bytewise(z80.ANDD, z80.ANDE)
	case ast.OpOr:
		c.bytewise(z80.ORD, z80.ORE)
	case ast.OpXor:
		c.bytewise(z80.XORD, z80.XORE)
	default:
		c.em.CallAbs(k.IntCompare)
		c.boolFromSign(op)
	}
}

func (c *Compiler) bytewise(hi, lo byte) {
	c.em.Emit(z80.LDAH)
	c.em.Emit(hi)
	c.em.Emit(z80.LDHA)
	c.em.Emit(z80.LDAL)
	c.em.Emit(lo)
	c.em.Emit(z80.LDLA)
}

func (c *Compiler) floatOp(op ast.Op) {
	k := c.cfg.Kernel
	switch op {
	case ast.OpAdd:
		c.em.CallAbs(k.FloatAdd)
	case ast.OpSub:
		c.em.CallAbs(k.FloatSub)
	case ast.OpMul:
		c.em.CallAbs(k.FloatMul)
	case ast.OpDiv:
		c.em.CallAbs(k.FloatDiv)
	case ast.OpPow:
		c.em.CallAbs(k.FloatPow)
	default:
		c.em.CallAbs(k.FloatCompare)
		c.boolFromSign(op)
	}
}

func (c *Compiler) stringOp(op ast.Op) {
	k := c.cfg.Kernel
	if op == ast.OpAdd {
		c.em.CallAbs(k.StrConcat)
		return
	}
	c.em.CallAbs(k.StrCompare)
	c.boolFromSign(op)
}

// boolFromSign turns A = sign(left-right) into HL = -1 when op holds, else 0.
func (c *Compiler) boolFromSign(op ast.Op) {
	var test byte
	skip := z80.NZ
	switch op {
	case ast.OpEq:
		test = z80.ORA
	case ast.OpNe:
		test, skip = z80.ORA, z80.Z
	case ast.OpLt:
		test = z80.INCA
	case ast.OpGe:
		test, skip = z80.INCA, z80.Z
	case ast.OpGt:
		test = z80.DECA
	case ast.OpLe:
		test, skip = z80.DECA, z80.Z
	}
	c.em.Emit(z80.Inst(z80.LDHLnn, 0)...)
	c.em.Emit(test)
	c.em.Emit(skip.JR(), 1)
	c.em.Emit(z80.DECHL)
}

func (c *Compiler) negate(n *ast.Node, t ast.Subtype) error {
	if v, ok := c.literalInt(n); ok && t == ast.Int {
		c.em.Emit(z80.Inst(z80.LDHLnn, v&0xFFFF)...)
		return nil
	}
	if _, err := c.evaluate(n.Children[0]); err != nil {
		return err
	}
	if t.IsFloat() {
		c.em.Emit(z80.LDAB)
		c.em.Emit(z80.XORn, 0x80)
		c.em.Emit(z80.LDBA)
		return nil
	}
	c.em.Emit(z80.EXDEHL)
	c.em.Emit(z80.Inst(z80.LDHLnn, 0)...)
	c.em.Emit(z80.ORA)
	c.em.Emit(z80.PrefixED, z80.SBCHLDE)
	return nil
}

func (c *Compiler) function(n *ast.Node, t ast.Subtype) error {
	k := c.cfg.Kernel
	arg := n.Children[0]
	switch n.Op {
	case ast.FnCint, ast.FnCsng, ast.FnCdbl, ast.FnStr, ast.FnVal:
		_, err := c.evaluateAs(arg, t)
		return err
	case ast.FnLen:
		if _, err := c.evaluate(arg); err != nil {
			return err
		}
		c.em.CallAbs(k.StrLen)
	case ast.FnAsc:
		if _, err := c.evaluate(arg); err != nil {
			return err
		}
		c.em.CallAbs(k.StrAsc)
	case ast.FnChr:
		if _, err := c.evaluateAs(arg, ast.Int); err != nil {
			return err
		}
		c.em.CallAbs(k.StrChr)
	case ast.FnAbs:
		if _, err := c.evaluate(arg); err != nil {
			return err
		}
		if t.IsFloat() {
			c.em.Emit(z80.PrefixCB, z80.RES7B)
		} else {
			c.em.CallAbs(k.IntAbs)
		}
	default:
		return c.errorf(KindType, "unknown function %s", n.Op)
	}
	return nil
}
