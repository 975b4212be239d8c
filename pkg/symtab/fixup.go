package symtab

import (
	"fmt"
	"sort"

	"msxbasrom/pkg/z80"
)

// FixupKind is the instruction a fixup's operand belongs to. Segmentation
// needs it to build the matching cross-bank trampoline.
type FixupKind int

const (
	KindData     FixupKind = iota // plain operand: RAM address or absolute value
	KindJump                      // JP nn
	KindCondJump                  // JP cc,nn
	KindCall                      // CALL nn
	KindFetch                     // LD HL,nn pointing at a pool constant
)

func (k FixupKind) String() string {
	return [...]string{"data", "jump", "cond-jump", "call", "fetch"}[k]
}

// Fixup is one pending 2-byte little-endian patch in the emitted buffer.
type Fixup struct {
	Offset int // first operand byte in the logical buffer
	Symbol *Symbol
	Step   int

	Kind FixupKind
	Cond z80.Cond // KindCondJump only
	// Site is the first byte of the reserved far form, or -1 when the
	// reference was emitted as a bare instruction.
	Site int

	Line string // label of the statement that emitted the reference
}

// Far reports whether trampoline bytes were reserved for this fixup.
func (f *Fixup) Far() bool {
	return f.Site >= 0
}

// Registry owns every fixup of one compilation, ordered by offset.
type Registry struct {
	fixups []*Fixup
}

// NewRegistry returns an empty fixup registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Reference records a bare 2-byte reference at offset.
func (r *Registry) Reference(offset int, sym *Symbol, step int, kind FixupKind, line string) *Fixup {
	f := &Fixup{Offset: offset, Symbol: sym, Step: step, Kind: kind, Site: -1, Line: line}
	r.add(f)
	return f
}

// Add records a fully described fixup.
func (r *Registry) Add(f *Fixup) *Fixup {
	r.add(f)
	return f
}

func (r *Registry) add(f *Fixup) {
	n := len(r.fixups)
	if n == 0 || r.fixups[n-1].Offset <= f.Offset {
		r.fixups = append(r.fixups, f)
		return
	}
	i := sort.Search(n, func(i int) bool { return r.fixups[i].Offset > f.Offset })
	r.fixups = append(r.fixups, nil)
	copy(r.fixups[i+1:], r.fixups[i:])
	r.fixups[i] = f
}

// Len returns the number of recorded fixups.
func (r *Registry) Len() int {
	return len(r.fixups)
}

// Each calls fn for every fixup in offset order.
func (r *Registry) Each(fn func(f *Fixup)) {
	for _, f := range r.fixups {
		fn(f)
	}
}

// Fixups returns a snapshot of the fixups in offset order.
func (r *Registry) Fixups() []*Fixup {
	out := make([]*Fixup, len(r.fixups))
	copy(out, r.fixups)
	return out
}

// Remap rewrites the offset of every fixup at or after from. move returns
// the new offset, or false to drop the fixup. Offsets must stay ordered.
func (r *Registry) Remap(from int, move func(off int) (int, bool)) {
	i := sort.Search(len(r.fixups), func(i int) bool { return r.fixups[i].Offset >= from })
	kept := r.fixups[:i]
	for _, f := range r.fixups[i:] {
		off, ok := move(f.Offset)
		if !ok {
			continue
		}
		f.Offset = off
		kept = append(kept, f)
	}
	for j := len(kept); j < len(r.fixups); j++ {
		r.fixups[j] = nil
	}
	r.fixups = kept
}

// At returns the fixups whose operand starts at off.
func (r *Registry) At(off int) []*Fixup {
	i := sort.Search(len(r.fixups), func(i int) bool { return r.fixups[i].Offset >= off })
	j := i
	for j < len(r.fixups) && r.fixups[j].Offset == off {
		j++
	}
	return r.fixups[i:j]
}

// UnresolvedError reports a reference whose symbol never got an address.
type UnresolvedError struct {
	Fixup *Fixup
}

// IsLabel distinguishes a GOTO/GOSUB to an undeclared line from a typo in
// an expression.
func (e *UnresolvedError) IsLabel() bool {
	return e.Fixup.Symbol.Class == ClassLabel
}

func (e *UnresolvedError) Error() string {
	s := e.Fixup.Symbol
	if e.IsLabel() {
		return fmt.Sprintf("undeclared line label %q", s.Name())
	}
	return fmt.Sprintf("undeclared variable/constant %q", s.Name())
}

// Unresolved returns the first fixup whose symbol has no address.
func (r *Registry) Unresolved() *UnresolvedError {
	for _, f := range r.fixups {
		if !f.Symbol.Resolved() {
			return &UnresolvedError{Fixup: f}
		}
	}
	return nil
}

// LinkAll patches every fixup into buf with its symbol's address plus step.
func (r *Registry) LinkAll(buf []byte) error {
	if err := r.Unresolved(); err != nil {
		return err
	}
	for _, f := range r.fixups {
		if f.Offset < 0 || f.Offset+2 > len(buf) {
			return fmt.Errorf("fixup for %q at offset %d outside buffer of %d bytes", f.Symbol.Name(), f.Offset, len(buf))
		}
		v := f.Symbol.Address + f.Step
		if v < 0 || v > 0xFFFF {
			return fmt.Errorf("address 0x%X of %q does not fit 16 bits", v, f.Symbol.Name())
		}
		buf[f.Offset], buf[f.Offset+1] = z80.Word(v)
	}
	return nil
}
