// Package megarom turns one logical instruction stream into fixed-size
// physical banks seen through a switchable window, and resolves every fixup
// either as a same-window reference or through a cross-bank trampoline.
package megarom

import (
	"errors"
	"fmt"
	"sort"

	"msxbasrom/pkg/emit"
	"msxbasrom/pkg/symtab"
	"msxbasrom/pkg/target"
	"msxbasrom/pkg/z80"
)

var (
	// ErrRangeTooLarge is returned when one range cannot fit an empty window.
	ErrRangeTooLarge = errors.New("range larger than one window")
	// ErrTooManyBanks is returned when the image needs more banks than the mapper addresses.
	ErrTooManyBanks = errors.New("bank count exceeds mapper limit")
)

// Input is the complete output of code generation.
type Input struct {
	Code   []byte
	Ranges []emit.Range
	Fixups []*symtab.Fixup
	Config target.Config
}

// Placement is where one range landed.
type Placement struct {
	Range   emit.Range
	Window  int
	Bank    int    // first bank of the window
	Address uint16 // CPU address of the range's first byte
	Skip    int    // bytes inserted before this range so far
}

// Break records an overflow point: the window that was closed and the
// logical offset of the range that moved to the next window.
type Break struct {
	Window   int
	At       int
	Inserted int
	Stub     bool // code stub (true) or data sentinel (false)
}

// Image is the bank organized program.
type Image struct {
	Banks      [][]byte
	BankCount  int
	Windows    int
	Placements []Placement
	Breaks     []Break

	mapper target.Mapper
	phys   []byte
}

// Segment lays the ranges out window by window and relocates every fixup.
func Segment(in Input) (*Image, error) {
	m := in.Config.Mapper
	img := &Image{mapper: m}
	if err := img.layout(in.Code, in.Ranges, in.Config.Kernel); err != nil {
		return nil, err
	}
	for _, f := range in.Fixups {
		if err := img.relocate(f, in.Config.Kernel); err != nil {
			return nil, err
		}
	}
	if err := img.split(); err != nil {
		return nil, err
	}
	return img, nil
}

func (img *Image) layout(code []byte, ranges []emit.Range, k target.Kernel) error {
	m := img.mapper
	ws := m.WindowSize()
	window, used, skip := 0, 0, 0
	next := 0

	for _, r := range ranges {
		if r.Start != next {
			return fmt.Errorf("range %q starts at %d, expected %d", r.Name, r.Start, next)
		}
		next = r.End()
		if r.Length > ws-emit.StubSize {
			return fmt.Errorf("%w: %q is %d bytes, window holds %d", ErrRangeTooLarge, r.Name, r.Length, ws-emit.StubSize)
		}
		// Every window keeps room for the placeholder that may close it.
		if used+r.Length > ws-emit.StubSize {
			at := window*ws + used
			img.grow(window*ws + ws)
			if r.Code {
				img.writeStub(at, m.WindowBank(window+1), k.BankJump)
			} else {
				copy(img.phys[at:], emit.Sentinel[:])
			}
			inserted := ws - used
			img.Breaks = append(img.Breaks, Break{Window: window, At: r.Start, Inserted: inserted, Stub: r.Code})
			skip += inserted
			window++
			used = 0
		}
		at := window*ws + used
		img.grow(at + r.Length)
		copy(img.phys[at:], code[r.Start:r.End()])
		img.Placements = append(img.Placements, Placement{
			Range:   r,
			Window:  window,
			Bank:    m.WindowBank(window),
			Address: uint16(int(m.WindowBase) + used),
			Skip:    skip,
		})
		used += r.Length
	}
	if next != len(code) {
		return fmt.Errorf("ranges cover %d of %d bytes", next, len(code))
	}
	img.Windows = window + 1
	return nil
}

func (img *Image) grow(n int) {
	if n > len(img.phys) {
		img.phys = append(img.phys, make([]byte, n-len(img.phys))...)
	}
}

func (img *Image) put16(at, v int) {
	img.phys[at], img.phys[at+1] = z80.Word(v)
}

// writeStub closes a window that execution falls out of.
func (img *Image) writeStub(at, bank int, helper uint16) {
	img.writeTrampoline(at, bank, int(img.mapper.WindowBase), z80.JPnn, helper)
}

func (img *Image) writeTrampoline(at, bank, addr int, op byte, helper uint16) {
	img.phys[at] = z80.LDAn
	img.phys[at+1] = byte(bank)
	img.phys[at+2] = z80.LDHLnn
	img.put16(at+3, addr)
	img.phys[at+5] = op
	img.put16(at+6, int(helper))
}

// skipAt returns the cumulative shift of the range holding logical offset off.
// An offset shared by a zero-length range and its successor belongs to the
// successor, which is where execution actually continues.
func (img *Image) skipAt(off int) int {
	p := img.placementAt(off)
	if p == nil {
		return 0
	}
	return p.Skip
}

func (img *Image) placementAt(off int) *Placement {
	i := sort.Search(len(img.Placements), func(i int) bool { return img.Placements[i].Range.Start > off })
	if i == 0 {
		return nil
	}
	return &img.Placements[i-1]
}

// Physical maps a logical offset to its offset in the physical image.
func (img *Image) Physical(off int) int {
	return off + img.skipAt(off)
}

// Locate maps a logical code-stream address to its bank and CPU address.
func (img *Image) Locate(addr int) (bank int, cpu uint16) {
	ws := img.mapper.WindowSize()
	p := img.Physical(addr - int(img.mapper.WindowBase))
	return img.mapper.WindowBank(p / ws), uint16(int(img.mapper.WindowBase) + p%ws)
}

func helperFor(kind symtab.FixupKind, k target.Kernel) (byte, uint16) {
	switch kind {
	case symtab.KindCall:
		return z80.CALLnn, k.BankCall
	case symtab.KindFetch:
		return z80.CALLnn, k.BankRead
	}
	return z80.JPnn, k.BankJump
}

func (img *Image) relocate(f *symtab.Fixup, k target.Kernel) error {
	sym := f.Symbol
	if !sym.Resolved() {
		return &symtab.UnresolvedError{Fixup: f}
	}
	ws := img.mapper.WindowSize()
	site := img.Physical(f.Offset)

	if !sym.Class.InCode() {
		if f.Far() {
			return fmt.Errorf("far %s reference to %s %q", f.Kind, sym.Class, sym.Name())
		}
		img.put16(site, sym.Address+f.Step)
		return nil
	}

	bank, addr := img.Locate(sym.Address)
	dest := int(addr) + f.Step
	if !f.Far() {
		img.put16(site, dest)
		return nil
	}

	form := emit.Form(f.Kind)
	p := img.Physical(f.Site)
	direct := p + form.Direct
	// A call stays on BankCall even inside its own window: the callee may
	// fall through a stub, and only the bank return remaps the caller.
	if bank == img.mapper.WindowBank(p/ws) && f.Kind != symtab.KindCall {
		img.phys[p], img.phys[p+1] = z80.JR, byte(form.Direct-2)
		for i := p + 2; i < direct; i++ {
			img.phys[i] = z80.NOP
		}
		img.put16(direct+1, dest)
		return nil
	}

	if f.Kind == symtab.KindCondJump {
		img.phys[p], img.phys[p+1] = f.Cond.Not().JR(), byte(form.Size-2)
	}
	op, helper := helperFor(f.Kind, k)
	img.writeTrampoline(p+form.Trampoline, bank, dest, op, helper)
	for i := direct; i < direct+3; i++ {
		img.phys[i] = z80.NOP
	}
	return nil
}

func (img *Image) split() error {
	m := img.mapper
	used := m.FirstBank + img.Windows*m.BanksPerWindow
	img.BankCount = m.RoundBanks(used)
	if img.BankCount > m.MaxBanks {
		return fmt.Errorf("%w: %d banks needed, mapper addresses %d", ErrTooManyBanks, img.BankCount, m.MaxBanks)
	}
	img.grow(img.Windows * m.WindowSize())
	img.Banks = make([][]byte, img.BankCount)
	for b := range img.Banks {
		img.Banks[b] = make([]byte, m.BankSize)
		if b < m.FirstBank {
			continue
		}
		start := (b - m.FirstBank) * m.BankSize
		if start < len(img.phys) {
			copy(img.Banks[b], img.phys[start:])
		}
	}
	return nil
}

// Bytes returns the program windows back to back, without kernel banks.
func (img *Image) Bytes() []byte {
	return img.phys
}
