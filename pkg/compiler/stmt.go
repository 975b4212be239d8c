package compiler

import (
	"msxbasrom/pkg/ast"
	"msxbasrom/pkg/symtab"
	"msxbasrom/pkg/z80"
)

func (c *Compiler) statement(n *ast.Node) error {
	switch n.Keyword {
	case ast.StmtRem:
		return nil
	case ast.StmtLet:
		return c.let(n)
	case ast.StmtPrint:
		return c.print(n)
	case ast.StmtGoto, ast.StmtGosub:
		sym, err := c.labelOperand(n)
		if err != nil {
			return err
		}
		if n.Keyword == ast.StmtGoto {
			c.em.Jump(sym)
		} else {
			c.em.Call(sym)
		}
		return nil
	case ast.StmtReturn:
		c.em.Emit(z80.RET)
		return nil
	case ast.StmtEnd:
		c.em.JumpAbs(c.cfg.Kernel.End)
		return nil
	case ast.StmtIf:
		return c.ifStatement(n)
	case ast.StmtBlock:
		return c.block(n)
	case ast.StmtFor:
		return c.forLoop(n)
	case ast.StmtNext:
		return c.next(n)
	case ast.StmtDim:
		for _, a := range n.Children {
			if err := c.dim(a); err != nil {
				return err
			}
		}
		return nil
	case ast.StmtPoke:
		return c.poke(n)
	}
	return c.errorf(KindStructural, "unsupported statement %s", n.Keyword)
}

func (c *Compiler) block(n *ast.Node) error {
	for _, s := range n.Children {
		if err := c.statement(s); err != nil {
			return err
		}
	}
	return nil
}

func (c *Compiler) labelOperand(n *ast.Node) (*symtab.Symbol, error) {
	if len(n.Children) != 1 || n.Children[0].Token == nil || n.Children[0].Token.Value == "" {
		return nil, c.errorf(KindStructural, "%s needs a line number", n.Keyword)
	}
	return c.syms.Label(n.Children[0].Token.Value), nil
}

// defineHere fixes sym at the current code offset.
func (c *Compiler) defineHere(sym *symtab.Symbol) error {
	if err := c.syms.Define(sym, c.codeAddr(c.em.Mark())); err != nil {
		return c.wrap(KindStructural, c.line, err)
	}
	return nil
}

func (c *Compiler) let(n *ast.Node) error {
	if len(n.Children) != 2 {
		return c.errorf(KindStructural, "malformed assignment %s", n)
	}
	target, value := n.Children[0], n.Children[1]
	if target.Token == nil || target.Token.Kind != ast.Identifier {
		return c.errorf(KindStructural, "cannot assign to %s", target)
	}
	if target.Token.IsArray {
		return c.arrayStore(target, value)
	}
	tt := target.Token.Subtype
	vt, err := c.evaluate(value)
	if err != nil {
		return err
	}
	if !assignable(vt, tt) {
		return c.errorf(KindType, "cannot assign %s to %s", vt, target.Token)
	}
	if err := c.addCast(vt, tt); err != nil {
		return err
	}
	c.storeVar(c.syms.Intern(target.Token), tt)
	return nil
}

func (c *Compiler) print(n *ast.Node) error {
	k := c.cfg.Kernel
	newline := true
	for _, a := range n.Children {
		if a.Token != nil && a.Token.Kind == ast.Separator {
			newline = false
			if a.Token.Name == "," {
				c.em.CallAbs(k.PrintTab)
			}
			continue
		}
		newline = true
		t, err := c.evaluate(a)
		if err != nil {
			return err
		}
		switch {
		case t == ast.Int:
			c.needScratch = true
			c.em.CallAbs(k.PrintInt)
		case t.IsFloat():
			c.needScratch = true
			c.em.CallAbs(k.PrintFloat)
		default:
			c.em.CallAbs(k.PrintString)
		}
	}
	if newline {
		c.em.CallAbs(k.PrintNewline)
	}
	return nil
}

// ifStatement evaluates the condition and skips the THEN block when it is
// zero. A THEN that only jumps becomes a single conditional jump.
func (c *Compiler) ifStatement(n *ast.Node) error {
	if len(n.Children) < 2 || len(n.Children) > 3 {
		return c.errorf(KindStructural, "malformed IF %s", n)
	}
	cond, then := n.Children[0], n.Children[1]
	t, err := c.evaluate(cond)
	if err != nil {
		return err
	}
	if t == ast.String {
		return c.errorf(KindType, "IF condition must be numeric")
	}
	// A float is zero exactly when its mantissa is, so every numeric type
	// tests HL without a conversion.
	c.em.Emit(z80.LDAH)
	c.em.Emit(z80.ORL)

	if len(n.Children) == 2 && len(then.Children) == 1 && then.Children[0].Keyword == ast.StmtGoto {
		sym, err := c.labelOperand(then.Children[0])
		if err != nil {
			return err
		}
		c.em.JumpIf(z80.NZ, sym)
		return nil
	}

	elseSym := c.syms.Code("else")
	c.em.JumpIf(z80.Z, elseSym)
	if err := c.block(then); err != nil {
		return err
	}
	if len(n.Children) == 2 {
		return c.defineHere(elseSym)
	}
	endSym := c.syms.Code("endif")
	c.em.Jump(endSym)
	if err := c.defineHere(elseSym); err != nil {
		return err
	}
	if err := c.block(n.Children[2]); err != nil {
		return err
	}
	return c.defineHere(endSym)
}

func (c *Compiler) poke(n *ast.Node) error {
	if len(n.Children) != 2 {
		return c.errorf(KindStructural, "POKE needs an address and a value")
	}
	for i, a := range n.Children {
		t := c.typeOf(a)
		if !t.IsNumeric() {
			return c.errorf(KindType, "POKE operands must be numeric")
		}
		if _, err := c.evaluateAs(a, ast.Int); err != nil {
			return err
		}
		if i == 0 {
			c.em.Emit(z80.PUSHHL)
		}
	}
	c.em.Emit(z80.LDAL)
	c.em.Emit(z80.POPHL)
	c.em.Emit(z80.LDHLA)
	return nil
}
