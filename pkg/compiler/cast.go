package compiler

import (
	"msxbasrom/pkg/ast"
)

// promote returns the common type two operands are converted to before an
// arithmetic or comparison operator runs. Null means the pair is invalid.
func promote(l, r ast.Subtype) ast.Subtype {
	if l == r {
		return l
	}
	if !l.IsNumeric() || !r.IsNumeric() {
		return ast.Null
	}
	if l == ast.Double || r == ast.Double {
		return ast.Double
	}
	return ast.Single
}

// binaryResult is the type produced by op applied to operands of type l and r.
func binaryResult(op ast.Op, l, r ast.Subtype) ast.Subtype {
	if l == ast.Null || r == ast.Null || l == ast.Blob || r == ast.Blob {
		return ast.Null
	}
	switch {
	case op.IsComparison():
		if promote(l, r) == ast.Null {
			return ast.Null
		}
		return ast.Int
	case op.IsBitwise(), op == ast.OpIntDiv, op == ast.OpMod:
		if l.IsNumeric() && r.IsNumeric() {
			return ast.Int
		}
		return ast.Null
	case op == ast.OpPow:
		if !l.IsNumeric() || !r.IsNumeric() {
			return ast.Null
		}
		if l == ast.Double || r == ast.Double {
			return ast.Double
		}
		return ast.Single
	case op == ast.OpAdd && l == ast.String && r == ast.String:
		return ast.String
	}
	t := promote(l, r)
	if !t.IsNumeric() {
		return ast.Null
	}
	return t
}

// operandType is the type both operands of a binary node are brought to.
func operandType(op ast.Op, l, r, result ast.Subtype) ast.Subtype {
	switch {
	case op.IsComparison():
		return promote(l, r)
	case op.IsBitwise(), op == ast.OpIntDiv, op == ast.OpMod:
		return ast.Int
	}
	return result
}

// addCast emits the conversion of the value in registers from one type to
// another. Single and Double share a layout, so converting between them
// costs nothing.
func (c *Compiler) addCast(from, to ast.Subtype) error {
	k := c.cfg.Kernel
	switch {
	case from == to:
	case from == ast.Int && to.IsFloat():
		c.em.CallAbs(k.IntToFloat)
	case from.IsFloat() && to == ast.Int:
		c.em.CallAbs(k.FloatToInt)
	case from.IsFloat() && to.IsFloat():
	case from == ast.Int && to == ast.String:
		c.needScratch = true
		c.em.CallAbs(k.IntToString)
	case from.IsFloat() && to == ast.String:
		c.needScratch = true
		c.em.CallAbs(k.FloatToString)
	case from == ast.String && to == ast.Int:
		c.em.CallAbs(k.StringToInt)
	case from == ast.String && to.IsFloat():
		c.em.CallAbs(k.StringToFloat)
	default:
		return c.errorf(KindType, "cannot convert %s to %s", from, to)
	}
	return nil
}

// assignable reports whether a value of type from may be stored into a
// variable of type to without an explicit conversion function.
func assignable(from, to ast.Subtype) bool {
	if from.IsNumeric() && to.IsNumeric() {
		return true
	}
	return from == ast.String && to == ast.String
}
