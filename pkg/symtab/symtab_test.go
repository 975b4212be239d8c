package symtab

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"msxbasrom/pkg/ast"
)

func TestInternDeduplicates(t *testing.T) {
	tab := NewTable()

	a := tab.Intern(&ast.Token{Kind: ast.Identifier, Subtype: ast.Int, Name: "a"})
	b := tab.Intern(&ast.Token{Kind: ast.Identifier, Subtype: ast.Int, Name: "A"})
	if a != b {
		t.Errorf("identifier lookup should ignore case")
	}

	s := tab.Intern(&ast.Token{Kind: ast.Identifier, Subtype: ast.String, Name: "A"})
	if s == a {
		t.Errorf("A$ and A%% must be different symbols")
	}
	arr := tab.Intern(&ast.Token{Kind: ast.Identifier, Subtype: ast.Int, Name: "A", IsArray: true})
	if arr == a {
		t.Errorf("A%%() and A%% must be different symbols")
	}

	c1 := tab.Intern(&ast.Token{Kind: ast.Literal, Subtype: ast.String, Value: "HI"})
	c2 := tab.Intern(&ast.Token{Kind: ast.Literal, Subtype: ast.String, Value: "HI"})
	if c1 != c2 {
		t.Errorf("identical constants should collapse")
	}
	if c1.Class != ClassConstant {
		t.Errorf("literal class: expected constant, got %s", c1.Class)
	}
	if tab.Len() != 4 {
		t.Errorf("expected 4 symbols, got %d", tab.Len())
	}
}

func TestLabelsAndTemps(t *testing.T) {
	tab := NewTable()
	if tab.Label("10") != tab.Label("10") {
		t.Errorf("labels should be keyed by text")
	}
	t1 := tab.Temp(ast.Int)
	t2 := tab.Temp(ast.Single)
	if t1 == t2 || t1.Name() == t2.Name() {
		t.Errorf("temps must be distinct, got %q and %q", t1.Name(), t2.Name())
	}
	if t2.Subtype() != ast.Single {
		t.Errorf("temp subtype: expected single, got %s", t2.Subtype())
	}
	code := tab.Code("for")
	if code.Class != ClassCode || !strings.HasPrefix(code.Name(), "_for") {
		t.Errorf("unexpected code symbol %s %q", code.Class, code.Name())
	}
	if !code.Class.InCode() || ClassVariable.InCode() || ClassAbsolute.InCode() {
		t.Errorf("InCode misclassifies symbol classes")
	}
}

func TestDefine(t *testing.T) {
	tab := NewTable()
	l := tab.Label("20")
	if err := tab.Define(l, 0); err == nil {
		t.Errorf("expected error defining at address 0")
	}
	if err := tab.Define(l, 0x8010); err != nil {
		t.Fatalf("Define failed: %v", err)
	}
	if err := tab.Define(l, 0x8020); err == nil {
		t.Errorf("expected duplicate definition error")
	}
	if l.Address != 0x8010 {
		t.Errorf("address: expected 0x8010, got 0x%04X", l.Address)
	}
}

func TestRegistryOrdering(t *testing.T) {
	tab := NewTable()
	sym := tab.Label("10")
	r := NewRegistry()
	r.Reference(10, sym, 0, KindJump, "10")
	r.Reference(2, sym, 0, KindJump, "10")
	r.Reference(6, sym, 0, KindData, "10")

	var got []int
	r.Each(func(f *Fixup) { got = append(got, f.Offset) })
	if want := []int{2, 6, 10}; !reflect.DeepEqual(got, want) {
		t.Errorf("offsets: expected %v, got %v", want, got)
	}
	if at := r.At(6); len(at) != 1 || at[0].Kind != KindData {
		t.Errorf("At(6): unexpected %v", at)
	}
	if at := r.At(7); len(at) != 0 {
		t.Errorf("At(7): expected none, got %d", len(at))
	}
}

func TestRegistryRemap(t *testing.T) {
	tab := NewTable()
	sym := tab.Label("10")
	r := NewRegistry()
	for _, off := range []int{1, 5, 9, 13} {
		r.Reference(off, sym, 0, KindData, "")
	}
	// Drop the fixup at 5 and shift later ones down by two.
	r.Remap(5, func(off int) (int, bool) {
		if off == 5 {
			return 0, false
		}
		return off - 2, true
	})
	var got []int
	for _, f := range r.Fixups() {
		got = append(got, f.Offset)
	}
	if want := []int{1, 7, 11}; !reflect.DeepEqual(got, want) {
		t.Errorf("offsets after remap: expected %v, got %v", want, got)
	}
}

func TestLinkAll(t *testing.T) {
	tab := NewTable()
	target := tab.Label("30")
	v := tab.Intern(&ast.Token{Kind: ast.Identifier, Subtype: ast.Int, Name: "X"})
	r := NewRegistry()
	r.Reference(1, target, 0, KindJump, "10")
	r.Reference(4, v, 1, KindData, "10")

	if err := tab.Define(target, 0x8006); err != nil {
		t.Fatal(err)
	}
	if err := tab.Define(v, 0xC200); err != nil {
		t.Fatal(err)
	}
	buf := []byte{0xC3, 0, 0, 0x2A, 0, 0}
	if err := r.LinkAll(buf); err != nil {
		t.Fatalf("LinkAll failed: %v", err)
	}
	want := []byte{0xC3, 0x06, 0x80, 0x2A, 0x01, 0xC2}
	if !reflect.DeepEqual(buf, want) {
		t.Errorf("linked buffer: expected % X, got % X", want, buf)
	}

	r.Reference(5, v, 0, KindData, "")
	if err := r.LinkAll(buf); err == nil {
		t.Errorf("expected out of buffer error")
	}
}

func TestUnresolved(t *testing.T) {
	tab := NewTable()
	r := NewRegistry()
	r.Reference(1, tab.Label("99"), 0, KindJump, "10")
	err := r.LinkAll(make([]byte, 3))

	var ue *UnresolvedError
	if !errors.As(err, &ue) {
		t.Fatalf("expected *UnresolvedError, got %v", err)
	}
	if !ue.IsLabel() || ue.Fixup.Line != "10" {
		t.Errorf("unexpected unresolved error %+v", ue.Fixup)
	}
	if !strings.Contains(err.Error(), `"99"`) {
		t.Errorf("error should name the label: %v", err)
	}

	v := tab.Intern(&ast.Token{Kind: ast.Identifier, Subtype: ast.Int, Name: "Q"})
	r2 := NewRegistry()
	r2.Reference(0, v, 0, KindData, "")
	if ue := r2.Unresolved(); ue == nil || ue.IsLabel() {
		t.Errorf("expected a variable unresolved error, got %v", ue)
	}
}

func TestTableString(t *testing.T) {
	tab := NewTable()
	if got := tab.String(); got != "Symbols: (empty)\n" {
		t.Errorf("empty table: got %q", got)
	}
	l := tab.Label("10")
	_ = tab.Define(l, 0x8000)
	if got := tab.String(); !strings.Contains(got, "0x8000") || !strings.Contains(got, "label") {
		t.Errorf("table dump missing label: %q", got)
	}
}
