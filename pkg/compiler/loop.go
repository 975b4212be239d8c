package compiler

import (
	"msxbasrom/pkg/ast"
	"msxbasrom/pkg/symtab"
	"msxbasrom/pkg/z80"
)

// LoopFrame is one open FOR loop.
type LoopFrame struct {
	Var   *symtab.Symbol
	Type  ast.Subtype
	Bound *symtab.Symbol
	Step  *symtab.Symbol
	// StepToken is the literal step, or the implicit integer 1 when the
	// FOR has no STEP clause. Nil for a computed step.
	StepToken *ast.Token

	Retest *symtab.Symbol // increments the variable, then tests
	Exit   *symtab.Fixup  // taken when the test fails; defined by NEXT
	Line   string
}

// forLoop emits the initialisation, the increment and the exit test:
//
//	I = start : B = bound : S = step
//	JP first
//	retest: I = I + S
//	first:  exit when I passes B
func (c *Compiler) forLoop(n *ast.Node) error {
	if len(n.Children) < 3 || len(n.Children) > 4 {
		return c.errorf(KindStructural, "malformed FOR %s", n)
	}
	v := n.Children[0]
	if v.Token == nil || v.Token.Kind != ast.Identifier || v.Token.IsArray {
		return c.errorf(KindStructural, "FOR needs a simple variable")
	}
	vt := v.Token.Subtype
	if !vt.IsNumeric() {
		return c.errorf(KindType, "FOR variable %s must be numeric", v.Token)
	}

	stepNode := ast.IntLit(1)
	if len(n.Children) == 4 {
		stepNode = n.Children[3]
	}

	f := &LoopFrame{
		Var:   c.syms.Intern(v.Token),
		Type:  vt,
		Bound: c.syms.Temp(vt),
		Step:  c.syms.Temp(vt),
		Line:  c.line,
	}
	if stepNode.Op == ast.OpNone && stepNode.Token != nil && stepNode.Token.Kind == ast.Literal {
		f.StepToken = stepNode.Token
	}

	for _, p := range []struct {
		expr *ast.Node
		dst  *symtab.Symbol
	}{
		{n.Children[1], f.Var},
		{n.Children[2], f.Bound},
		{stepNode, f.Step},
	} {
		t, err := c.evaluate(p.expr)
		if err != nil {
			return err
		}
		if !t.IsNumeric() {
			return c.errorf(KindType, "FOR limits must be numeric")
		}
		if err := c.addCast(t, vt); err != nil {
			return err
		}
		c.storeVar(p.dst, vt)
	}

	first := c.syms.Code("for")
	c.em.Jump(first)
	f.Retest = c.syms.Code("next")
	if err := c.defineHere(f.Retest); err != nil {
		return err
	}
	c.increment(f)
	if err := c.defineHere(first); err != nil {
		return err
	}
	c.exitTest(f, stepNode)

	c.loops = append(c.loops, f)
	return nil
}

func (c *Compiler) increment(f *LoopFrame) {
	if f.Type == ast.Int {
		c.em.Ref(f.Var, 0, z80.LDHLmem)
		c.em.Ref(f.Step, 0, z80.PrefixED, z80.LDDEmem)
		c.em.Emit(z80.ADDHLDE)
		c.em.Ref(f.Var, 0, z80.LDnnHL)
		return
	}
	c.loadVar(f.Var, f.Type)
	c.spill(f.Type)
	c.loadVar(f.Step, f.Type)
	c.restoreFloat()
	c.em.CallAbs(c.cfg.Kernel.FloatAdd)
	c.storeVar(f.Var, f.Type)
}

// exitTest leaves the loop once the variable has passed the bound in the
// direction of the step. The compare returns A = sign(I-B); with a negative
// step the sign is flipped first. The loop ends when the result is +1.
func (c *Compiler) exitTest(f *LoopFrame, stepNode *ast.Node) {
	k := c.cfg.Kernel
	exit := c.syms.Code("endfor")

	if f.Type == ast.Int {
		if step, ok := c.literalInt(stepNode); ok {
			first, second := f.Var, f.Bound
			if step < 0 {
				first, second = f.Bound, f.Var
			}
			c.em.Ref(first, 0, z80.LDHLmem)
			c.em.Ref(second, 0, z80.PrefixED, z80.LDDEmem)
			c.em.CallAbs(k.IntCompare)
			c.em.Emit(z80.DECA)
			f.Exit = c.em.JumpIf(z80.Z, exit)
			return
		}
		c.em.Ref(f.Var, 0, z80.LDHLmem)
		c.em.Ref(f.Bound, 0, z80.PrefixED, z80.LDDEmem)
		c.em.CallAbs(k.IntCompare)
		c.stepSign(f.Step, 1)
		f.Exit = c.em.JumpIf(z80.Z, exit)
		return
	}

	c.loadVar(f.Var, f.Type)
	c.spill(f.Type)
	c.loadVar(f.Bound, f.Type)
	c.restoreFloat()
	c.em.CallAbs(k.FloatCompare)
	c.stepSign(f.Step, 0)
	f.Exit = c.em.JumpIf(z80.Z, exit)
}

// stepSign negates A when bit 7 of the step byte at offset is set, then
// leaves Z set when A was +1.
func (c *Compiler) stepSign(step *symtab.Symbol, offset int) {
	c.em.Emit(z80.LDCA)
	c.em.Ref(step, offset, z80.LDAmem)
	c.em.Emit(z80.RLCA)
	c.em.Emit(z80.LDAC)
	c.em.Emit(z80.NC.JR(), 2)
	c.em.Emit(z80.PrefixED, z80.NEG)
	c.em.Emit(z80.DECA)
}

// next closes the innermost loop, or one loop per listed variable.
func (c *Compiler) next(n *ast.Node) error {
	if len(n.Children) == 0 {
		return c.closeLoop(nil)
	}
	for _, v := range n.Children {
		if v.Token == nil || v.Token.Kind != ast.Identifier {
			return c.errorf(KindStructural, "NEXT needs a variable, got %s", v)
		}
		if err := c.closeLoop(c.syms.Intern(v.Token)); err != nil {
			return err
		}
	}
	return nil
}

func (c *Compiler) closeLoop(v *symtab.Symbol) error {
	if len(c.loops) == 0 {
		return c.errorf(KindStructural, "NEXT without FOR")
	}
	f := c.loops[len(c.loops)-1]
	if v != nil && v != f.Var {
		return c.errorf(KindStructural, "NEXT %s does not match FOR %s", v.Name(), f.Var.Name())
	}
	c.loops = c.loops[:len(c.loops)-1]
	c.em.Jump(f.Retest)
	return c.defineHere(f.Exit.Symbol)
}
