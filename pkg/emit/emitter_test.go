package emit

import (
	"reflect"
	"testing"

	"github.com/davecgh/go-spew/spew"

	"msxbasrom/pkg/ast"
	"msxbasrom/pkg/symtab"
	"msxbasrom/pkg/z80"
)

func newEmitter(opts Options) (*Emitter, *symtab.Registry, *symtab.Table) {
	reg := symtab.NewRegistry()
	return New(reg, opts), reg, symtab.NewTable()
}

func variable(tab *symtab.Table, name string) *symtab.Symbol {
	return tab.Intern(&ast.Token{Kind: ast.Identifier, Subtype: ast.Int, Name: name})
}

func offsets(reg *symtab.Registry) []int {
	var out []int
	reg.Each(func(f *symtab.Fixup) { out = append(out, f.Offset) })
	return out
}

func TestPeephole(t *testing.T) {
	tests := []struct {
		name     string
		emit     func(e *Emitter, tab *symtab.Table)
		want     []byte
		fixups   []int
		rewrites int
	}{
		{
			name: "PushPop",
			emit: func(e *Emitter, tab *symtab.Table) {
				e.Emit(z80.PUSHHL)
				e.Emit(z80.POPHL)
			},
			want:     nil,
			rewrites: 1,
		},
		{
			name: "SpillSwapReload",
			emit: func(e *Emitter, tab *symtab.Table) {
				e.Emit(z80.PUSHHL)
				e.Ref(variable(tab, "X"), 0, z80.LDHLnn)
				e.Emit(z80.EXDEHL)
				e.Emit(z80.POPHL)
			},
			want:     []byte{z80.LDDEnn, 0, 0},
			fixups:   []int{1},
			rewrites: 1,
		},
		{
			name: "SpillSwapReloadMemory",
			emit: func(e *Emitter, tab *symtab.Table) {
				e.Emit(z80.PUSHHL)
				e.Ref(variable(tab, "X"), 0, z80.LDHLmem)
				e.Emit(z80.EXDEHL)
				e.Emit(z80.POPHL)
			},
			want:     []byte{z80.PrefixED, z80.LDDEmem, 0, 0},
			fixups:   []int{2},
			rewrites: 1,
		},
		{
			name: "SpillLoadReload",
			emit: func(e *Emitter, tab *symtab.Table) {
				e.Emit(z80.PUSHHL)
				e.Ref(variable(tab, "X"), 0, z80.LDHLmem)
				e.Emit(z80.POPDE)
			},
			want:     []byte{z80.EXDEHL, z80.LDHLmem, 0, 0},
			fixups:   []int{2},
			rewrites: 1,
		},
		{
			name: "StoreReload",
			emit: func(e *Emitter, tab *symtab.Table) {
				x := variable(tab, "X")
				e.Ref(x, 0, z80.LDnnHL)
				e.Ref(x, 0, z80.LDHLmem)
			},
			want:     []byte{z80.LDnnHL, 0, 0},
			fixups:   []int{1},
			rewrites: 1,
		},
		{
			name: "StoreOtherVariable",
			emit: func(e *Emitter, tab *symtab.Table) {
				e.Ref(variable(tab, "X"), 0, z80.LDnnHL)
				e.Ref(variable(tab, "Y"), 0, z80.LDHLmem)
			},
			want:   []byte{z80.LDnnHL, 0, 0, z80.LDHLmem, 0, 0},
			fixups: []int{1, 4},
		},
		{
			name: "Barrier",
			emit: func(e *Emitter, tab *symtab.Table) {
				e.Emit(z80.PUSHHL)
				e.Mark()
				e.Emit(z80.POPHL)
			},
			want: []byte{z80.PUSHHL, z80.POPHL},
		},
		{
			name: "Cascade",
			emit: func(e *Emitter, tab *symtab.Table) {
				// PUSH HL ; PUSH HL ; POP HL ; POP HL collapses twice.
				e.Emit(z80.PUSHHL)
				e.Emit(z80.PUSHHL)
				e.Emit(z80.POPHL)
				e.Emit(z80.POPHL)
			},
			want:     nil,
			rewrites: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, reg, tab := newEmitter(Options{Optimize: true})
			tt.emit(e, tab)
			if len(e.Bytes()) != len(tt.want) || (len(tt.want) > 0 && !reflect.DeepEqual(e.Bytes(), tt.want)) {
				t.Errorf("bytes: expected % X, got % X", tt.want, e.Bytes())
			}
			if got := offsets(reg); !reflect.DeepEqual(got, tt.fixups) {
				t.Errorf("fixups: expected %v, got %v\n%s", tt.fixups, got, spew.Sdump(reg.Fixups()))
			}
			if e.Rewrites() != tt.rewrites {
				t.Errorf("rewrites: expected %d, got %d", tt.rewrites, e.Rewrites())
			}
		})
	}
}

func TestNoOptimize(t *testing.T) {
	e, _, _ := newEmitter(Options{})
	e.Emit(z80.PUSHHL)
	e.Emit(z80.POPHL)
	if e.Len() != 2 || e.Rewrites() != 0 {
		t.Errorf("unoptimized emitter rewrote code: % X", e.Bytes())
	}
	if e.Optimizing() {
		t.Errorf("Optimizing should be false")
	}
}

func TestDirectReferences(t *testing.T) {
	e, reg, tab := newEmitter(Options{})
	l := tab.Label("10")
	e.SetLine("5")
	e.Jump(l)
	e.JumpIf(z80.Z, l)
	e.Call(l)
	e.Fetch(l, 3)

	want := []byte{z80.JPnn, 0, 0, z80.Z.JP(), 0, 0, z80.CALLnn, 0, 0, z80.LDHLnn, 0, 0}
	if !reflect.DeepEqual(e.Bytes(), want) {
		t.Errorf("bytes: expected % X, got % X", want, e.Bytes())
	}
	kinds := []symtab.FixupKind{symtab.KindJump, symtab.KindCondJump, symtab.KindCall, symtab.KindFetch}
	for i, f := range reg.Fixups() {
		if f.Offset != i*3+1 || f.Kind != kinds[i] || f.Far() || f.Line != "5" {
			t.Errorf("fixup %d: unexpected %+v", i, f)
		}
	}
	if reg.Fixups()[3].Step != 3 {
		t.Errorf("fetch step lost")
	}
}

func TestFarForms(t *testing.T) {
	e, reg, tab := newEmitter(Options{Far: true, Optimize: true})
	if e.Optimizing() {
		t.Fatalf("far mode must disable the optimizer")
	}
	l := tab.Label("10")

	e.Jump(l)
	if e.Len() != 11 {
		t.Fatalf("jump far form: expected 11 bytes, got %d", e.Len())
	}
	e.JumpIf(z80.NC, l)
	if e.Len() != 24 {
		t.Fatalf("cond jump far form: expected 13 bytes, got %d", e.Len()-11)
	}

	b := e.Bytes()
	if b[0] != z80.JR || b[1] != 6 || b[8] != z80.JPnn {
		t.Errorf("jump placeholder: % X", b[:11])
	}
	if b[11] != z80.JR || b[12] != 8 || b[21] != z80.NC.JP() {
		t.Errorf("cond jump placeholder: % X", b[11:])
	}

	fx := reg.Fixups()
	if fx[0].Site != 0 || fx[0].Offset != 9 {
		t.Errorf("jump fixup: %+v", fx[0])
	}
	if fx[1].Site != 11 || fx[1].Offset != 22 || fx[1].Cond != z80.NC {
		t.Errorf("cond jump fixup: %+v", fx[1])
	}
	if !fx[0].Far() {
		t.Errorf("far form fixup should report Far")
	}

	// RAM operands never reserve a far form.
	e.Ref(variable(tab, "X"), 0, z80.LDHLmem)
	if e.Len() != 27 {
		t.Errorf("data reference: expected 3 bytes, got %d", e.Len()-24)
	}
}

func TestRanges(t *testing.T) {
	e, _, _ := newEmitter(Options{})
	if r := e.EndRange(); r != (Range{}) {
		t.Errorf("EndRange without open range: %+v", r)
	}
	e.BeginRange("init", true, false)
	e.Emit(z80.NOP)
	e.BeginRange("line 10", true, true)
	e.Emit(z80.NOP, z80.NOP)
	r := e.EndRange()
	if r.Start != 1 || r.Length != 2 || r.End() != 3 {
		t.Errorf("unexpected range %+v", r)
	}
	e.BeginRange("const A", false, false)
	e.Data([]byte{1, 2, 3, 4})
	e.EndRange()

	want := []Range{
		{Start: 0, Length: 1, Code: true, Name: "init"},
		{Start: 1, Length: 2, Code: true, Debug: true, Name: "line 10"},
		{Start: 3, Length: 4, Name: "const A"},
	}
	if got := e.Ranges(); !reflect.DeepEqual(got, want) {
		t.Errorf("ranges:\n%s", spew.Sdump(got))
	}
}
