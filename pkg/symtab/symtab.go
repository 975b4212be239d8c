// Package symtab interns identifiers and line labels and records the
// fixups that patch their addresses into emitted code.
package symtab

import (
	"fmt"
	"sort"
	"strings"

	"msxbasrom/pkg/ast"
)

// Class tells which address space a symbol lives in.
type Class int

const (
	ClassVariable Class = iota // RAM: program identifiers and synthetic loop values
	ClassConstant              // code stream: literal pool entries
	ClassLabel                 // code stream: line labels
	ClassCode                  // code stream: labels created by the code generator
	ClassAbsolute              // fixed addresses defined by layout (ring, scratch buffer)
)

func (c Class) String() string {
	return [...]string{"variable", "constant", "label", "code", "absolute"}[c]
}

// InCode reports whether the symbol's address points into the emitted code
// stream and therefore moves during segmentation.
func (c Class) InCode() bool {
	return c == ClassConstant || c == ClassLabel || c == ClassCode
}

// Symbol is a resolvable name. Address 0 means not resolved yet.
type Symbol struct {
	Address int
	Class   Class
	Token   *ast.Token // identifier or literal; nil for labels
	Label   string
	Size    int
}

// Resolved reports whether the address has been fixed.
func (s *Symbol) Resolved() bool {
	return s.Address != 0
}

// Name is a human readable name for diagnostics and symbol files.
func (s *Symbol) Name() string {
	if s.Token != nil {
		return s.Token.String()
	}
	return s.Label
}

// Subtype returns the value category of an identifier or literal symbol.
func (s *Symbol) Subtype() ast.Subtype {
	if s.Token == nil {
		return ast.Null
	}
	return s.Token.Subtype
}

type identKey struct {
	kind    ast.Kind
	subtype ast.Subtype
	name    string
	value   string
	array   bool
}

// Table interns identifier, literal and label symbols.
// Identical constants collapse to one Symbol; labels are keyed by their text.
type Table struct {
	idents map[identKey]*Symbol
	labels map[string]*Symbol
	order  []*Symbol

	nextTemp int
}

// NewTable returns an empty symbol table.
func NewTable() *Table {
	return &Table{
		idents: make(map[identKey]*Symbol),
		labels: make(map[string]*Symbol),
	}
}

// Intern returns the symbol for tok, creating it on first sight.
// Array metadata filled on tok later must be read from the returned
// symbol's Token, which is the first token seen for that key.
func (t *Table) Intern(tok *ast.Token) *Symbol {
	k := identKey{kind: tok.Kind, subtype: tok.Subtype, name: strings.ToUpper(tok.Name), value: tok.Value, array: tok.IsArray}
	if sym, ok := t.idents[k]; ok {
		return sym
	}
	class := ClassVariable
	if tok.Kind == ast.Literal {
		class = ClassConstant
	}
	sym := &Symbol{Class: class, Token: tok}
	t.idents[k] = sym
	t.order = append(t.order, sym)
	return sym
}

// Label returns the symbol of a line label.
func (t *Table) Label(text string) *Symbol {
	if sym, ok := t.labels[text]; ok {
		return sym
	}
	sym := &Symbol{Class: ClassLabel, Label: text}
	t.labels[text] = sym
	t.order = append(t.order, sym)
	return sym
}

// Temp creates an anonymous RAM variable, used for loop bounds and steps.
func (t *Table) Temp(typ ast.Subtype) *Symbol {
	t.nextTemp++
	tok := &ast.Token{Kind: ast.Identifier, Subtype: typ, Name: fmt.Sprintf("_T%d", t.nextTemp)}
	sym := &Symbol{Class: ClassVariable, Token: tok, Label: tok.Name}
	t.order = append(t.order, sym)
	return sym
}

// Code creates an anonymous code label.
func (t *Table) Code(prefix string) *Symbol {
	t.nextTemp++
	sym := &Symbol{Class: ClassCode, Label: fmt.Sprintf("_%s%d", prefix, t.nextTemp)}
	t.order = append(t.order, sym)
	return sym
}

// Absolute creates a named symbol whose address layout assigns.
func (t *Table) Absolute(name string) *Symbol {
	sym := &Symbol{Class: ClassAbsolute, Label: name}
	t.order = append(t.order, sym)
	return sym
}

// Define fixes the address of sym. A symbol is defined exactly once.
func (t *Table) Define(sym *Symbol, addr int) error {
	if sym.Resolved() {
		return fmt.Errorf("duplicate definition of %s %q", sym.Class, sym.Name())
	}
	if addr == 0 {
		return fmt.Errorf("cannot define %q at address 0", sym.Name())
	}
	sym.Address = addr
	return nil
}

// Symbols returns every symbol in creation order.
func (t *Table) Symbols() []*Symbol {
	out := make([]*Symbol, len(t.order))
	copy(out, t.order)
	return out
}

// Len returns the number of symbols.
func (t *Table) Len() int {
	return len(t.order)
}

// String returns a deterministically ordered dump of the table.
func (t *Table) String() string {
	syms := t.Symbols()
	sort.SliceStable(syms, func(i, j int) bool {
		if syms[i].Class != syms[j].Class {
			return syms[i].Class < syms[j].Class
		}
		return syms[i].Address < syms[j].Address
	})
	var sb strings.Builder
	if len(syms) == 0 {
		sb.WriteString("Symbols: (empty)\n")
		return sb.String()
	}
	sb.WriteString("Symbols:\n")
	for _, s := range syms {
		fmt.Fprintf(&sb, "  %-20s  %-8s 0x%04X (Size: %d)\n", s.Name(), s.Class, s.Address, s.Size)
	}
	return sb.String()
}
