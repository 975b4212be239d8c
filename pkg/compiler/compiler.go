// Package compiler is the back end: it evaluates statement trees into Z80
// code, lays out RAM and the constant pool, and links the result either as
// one plain window or as a bank-switched MegaROM image.
package compiler

import (
	"errors"
	"fmt"

	"msxbasrom/pkg/ast"
	"msxbasrom/pkg/emit"
	"msxbasrom/pkg/megarom"
	"msxbasrom/pkg/symtab"
	"msxbasrom/pkg/target"
	"msxbasrom/pkg/z80"
)

// Options selects the output mode.
type Options struct {
	Banked   bool // segment into MegaROM banks with far references
	Optimize bool // peephole rewrites; ignored when Banked
	Config   target.Config
}

// Location is where one range ended up in the final image.
type Location struct {
	Name    string
	Bank    int
	Address uint16
	Length  int
	Code    bool
	Debug   bool
}

// Result is everything a compilation produced.
type Result struct {
	Success bool
	Error   string

	Banks        [][]byte
	BankCount    int
	RAMFootprint int

	Code      []byte // linked plain image, or the logical stream before segmentation
	Ranges    []emit.Range
	Locations []Location
	Fixups    []*symtab.Fixup
	Symbols   *symtab.Table
	Layout    *Layout
	Image     *megarom.Image // banked mode only
	Rewrites  int
}

// Compiler holds the state of one compilation. It is not reusable.
type Compiler struct {
	opts Options
	cfg  target.Config

	syms   *symtab.Table
	fixups *symtab.Registry
	em     *emit.Emitter

	loops []*LoopFrame
	line  string

	ring, scratch *symtab.Symbol
	needScratch   bool
	done          bool
}

// New creates a compiler. A zero Config means target.Default().
func New(opts Options) *Compiler {
	if opts.Config.Mapper.BankSize == 0 {
		opts.Config = target.Default()
	}
	reg := symtab.NewRegistry()
	c := &Compiler{
		opts:   opts,
		cfg:    opts.Config,
		syms:   symtab.NewTable(),
		fixups: reg,
		em:     emit.New(reg, emit.Options{Optimize: opts.Optimize, Far: opts.Banked}),
	}
	c.ring = c.syms.Absolute("_ring")
	c.scratch = c.syms.Absolute("_scratch")
	return c
}

// Compile compiles prog with a fresh Compiler.
func Compile(prog *ast.Program, opts Options) (*Result, error) {
	return New(opts).Compile(prog)
}

// Compile runs every phase. On failure the Result carries the message and
// Success is false; the error is the same *Error.
func (c *Compiler) Compile(prog *ast.Program) (*Result, error) {
	if c.done {
		return nil, errors.New("compiler already used")
	}
	c.done = true

	c.prologue()
	for _, ln := range prog.Lines {
		if err := c.CompileLine(ln); err != nil {
			return fail(err)
		}
	}
	if err := c.finishLoops(); err != nil {
		return fail(err)
	}
	c.epilogue()
	if err := c.emitConstants(); err != nil {
		return fail(err)
	}
	layout, err := c.layoutRAM()
	if err != nil {
		return fail(err)
	}

	res := &Result{
		Ranges:       c.em.Ranges(),
		Fixups:       c.fixups.Fixups(),
		Symbols:      c.syms,
		Layout:       layout,
		RAMFootprint: layout.Footprint,
		Rewrites:     c.em.Rewrites(),
	}
	if err := c.checkUnresolved(); err != nil {
		return fail(err)
	}
	if c.opts.Banked {
		err = c.linkBanked(res)
	} else {
		err = c.linkPlain(res)
	}
	if err != nil {
		return fail(err)
	}
	res.BankCount = len(res.Banks)
	res.Success = true
	return res, nil
}

func fail(err error) (*Result, error) {
	return &Result{Error: err.Error()}, err
}

// codeAddr is the CPU address of a logical offset before segmentation.
func (c *Compiler) codeAddr(off int) int {
	return int(c.cfg.Mapper.WindowBase) + off
}

func (c *Compiler) rangeLimit() int {
	return c.cfg.Mapper.WindowSize() - emit.StubSize
}

// CompileLine compiles one numbered line into its own range.
func (c *Compiler) CompileLine(ln *ast.Line) error {
	c.line = ln.Label
	c.em.SetLine(ln.Label)
	c.em.BeginRange("line "+ln.Label, true, true)
	if err := c.defineHere(c.syms.Label(ln.Label)); err != nil {
		return c.errorf(KindStructural, "duplicate line %s", ln.Label)
	}
	for _, s := range ln.Statements {
		if err := c.statement(s); err != nil {
			return err
		}
	}
	r := c.em.EndRange()
	if r.Length > c.rangeLimit() {
		return c.errorf(KindCapacity, "line compiles to %d bytes, limit is %d", r.Length, c.rangeLimit())
	}
	return nil
}

// prologue publishes the temporary string ring and the scratch buffer to
// the kernel.
func (c *Compiler) prologue() {
	ram := c.cfg.RAM
	c.em.BeginRange("init", true, true)
	c.em.Ref(c.ring, 0, z80.LDHLnn)
	c.em.Emit(z80.Inst(z80.LDnnHL, int(ram.TempRingPtr))...)
	c.em.Ref(c.scratch, 0, z80.LDHLnn)
	c.em.Emit(z80.Inst(z80.LDnnHL, int(ram.ScratchPtr))...)
	c.em.EndRange()
}

// epilogue stops a program that runs off its last line.
func (c *Compiler) epilogue() {
	c.line = ""
	c.em.SetLine("")
	c.em.BeginRange("end", true, true)
	c.em.JumpAbs(c.cfg.Kernel.End)
	c.em.EndRange()
}

func (c *Compiler) finishLoops() error {
	if len(c.loops) == 0 {
		return nil
	}
	f := c.loops[len(c.loops)-1]
	return &Error{Kind: KindStructural, Line: f.Line, Msg: fmt.Sprintf("FOR %s without NEXT", f.Var.Name())}
}

func (c *Compiler) checkUnresolved() error {
	if ue := c.fixups.Unresolved(); ue != nil {
		return c.wrap(KindUnresolved, ue.Fixup.Line, ue)
	}
	return nil
}

// linkPlain patches every fixup in place; the program must fit one window.
func (c *Compiler) linkPlain(res *Result) error {
	m := c.cfg.Mapper
	code := append([]byte(nil), c.em.Bytes()...)
	if len(code) > m.WindowSize() {
		return &Error{Kind: KindCapacity, Msg: fmt.Sprintf("program needs %d bytes, window holds %d; use banked mode", len(code), m.WindowSize())}
	}
	if err := c.fixups.LinkAll(code); err != nil {
		var ue *symtab.UnresolvedError
		if errors.As(err, &ue) {
			return c.wrap(KindUnresolved, ue.Fixup.Line, ue)
		}
		return c.wrap(KindCapacity, "", err)
	}
	res.Code = code

	n := (len(code) + m.BankSize - 1) / m.BankSize
	res.Banks = make([][]byte, m.FirstBank+n)
	for b := range res.Banks {
		res.Banks[b] = make([]byte, m.BankSize)
		if b >= m.FirstBank {
			copy(res.Banks[b], code[(b-m.FirstBank)*m.BankSize:])
		}
	}
	for _, r := range res.Ranges {
		res.Locations = append(res.Locations, Location{
			Name:    r.Name,
			Bank:    m.FirstBank + r.Start/m.BankSize,
			Address: uint16(c.codeAddr(r.Start)),
			Length:  r.Length,
			Code:    r.Code,
			Debug:   r.Debug,
		})
	}
	return nil
}

func (c *Compiler) linkBanked(res *Result) error {
	res.Code = append([]byte(nil), c.em.Bytes()...)
	img, err := megarom.Segment(megarom.Input{
		Code:   res.Code,
		Ranges: res.Ranges,
		Fixups: res.Fixups,
		Config: c.cfg,
	})
	if err != nil {
		var ue *symtab.UnresolvedError
		switch {
		case errors.As(err, &ue):
			return c.wrap(KindUnresolved, ue.Fixup.Line, ue)
		case errors.Is(err, megarom.ErrRangeTooLarge), errors.Is(err, megarom.ErrTooManyBanks):
			return c.wrap(KindCapacity, "", err)
		}
		return c.wrap(KindStructural, "", err)
	}
	res.Image = img
	res.Banks = img.Banks
	for _, p := range img.Placements {
		bank := p.Bank
		if int(p.Address)-int(c.cfg.Mapper.WindowBase) >= c.cfg.Mapper.BankSize {
			bank++
		}
		res.Locations = append(res.Locations, Location{
			Name:    p.Range.Name,
			Bank:    bank,
			Address: p.Address,
			Length:  p.Range.Length,
			Code:    p.Range.Code,
			Debug:   p.Range.Debug,
		})
	}
	return nil
}

// Loops returns the open loop frames, innermost last.
func (c *Compiler) Loops() []*LoopFrame {
	return c.loops
}
