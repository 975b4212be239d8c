package ast

import (
	"fmt"
	"strings"
)

// Kind is the lexical category of a token.
type Kind int

const (
	KindNone Kind = iota
	Keyword
	Identifier
	Operator
	Separator
	Literal
)

func (k Kind) String() string {
	switch k {
	case Keyword:
		return "keyword"
	case Identifier:
		return "identifier"
	case Operator:
		return "operator"
	case Separator:
		return "separator"
	case Literal:
		return "literal"
	}
	return "none"
}

// Subtype is the value category carried by a token or computed for a node.
type Subtype int

const (
	Null Subtype = iota // no value, or an invalid combination
	Int                 // 16-bit integer
	Single              // single precision float
	Double              // double precision float, same runtime layout as Single
	String              // pointer to a length-prefixed buffer
	Blob                // raw bytes
)

func (s Subtype) String() string {
	switch s {
	case Int:
		return "integer"
	case Single:
		return "single"
	case Double:
		return "double"
	case String:
		return "string"
	case Blob:
		return "blob"
	}
	return "unknown"
}

// IsNumeric reports whether s is an integer or a float.
func (s Subtype) IsNumeric() bool {
	return s == Int || s == Single || s == Double
}

// IsFloat reports whether s uses the float calling convention.
func (s Subtype) IsFloat() bool {
	return s == Single || s == Double
}

// Token is one lexical unit handed over by the front end.
//
//	A%(3,4)   Token{Kind: Identifier, Subtype: Int, Name: "A", IsArray: true}
//	"HI"      Token{Kind: Literal, Subtype: String, Value: "HI"}
//
// Dims and Strides are filled when the array is dimensioned; everything else
// is fixed once the token is built.
type Token struct {
	Kind    Kind
	Subtype Subtype
	Name    string
	Value   string
	Line    int

	IsArray bool
	Dims    []int // element count per dimension
	Strides []int // byte distance between consecutive elements per dimension
}

func (t *Token) String() string {
	switch t.Kind {
	case Literal:
		if t.Subtype == String {
			return fmt.Sprintf("%q", t.Value)
		}
		return t.Value
	case Identifier:
		name := t.Name + suffix(t.Subtype)
		if t.IsArray {
			name += "()"
		}
		return name
	}
	if t.Name != "" {
		return t.Name
	}
	return t.Value
}

func suffix(s Subtype) string {
	switch s {
	case Int:
		return "%"
	case Single:
		return "!"
	case Double:
		return "#"
	case String:
		return "$"
	}
	return ""
}

// Node is one node of a statement or expression tree.
//
// Statement roots carry a Keyword; operator and function nodes carry an Op;
// identifier and literal leaves carry only their Token. Result is written
// once by the evaluator.
type Node struct {
	Token    *Token
	Keyword  Statement
	Op       Op
	Children []*Node

	Result Subtype
	Typed  bool
}

func (n *Node) String() string {
	var sb strings.Builder
	n.write(&sb)
	return sb.String()
}

func (n *Node) write(sb *strings.Builder) {
	switch {
	case n.Keyword != StmtNone:
		sb.WriteString(n.Keyword.String())
	case n.Op != OpNone:
		sb.WriteString(n.Op.String())
	case n.Token != nil:
		sb.WriteString(n.Token.String())
	default:
		sb.WriteString("?")
	}
	if len(n.Children) == 0 {
		return
	}
	sb.WriteString("(")
	for i, c := range n.Children {
		if i > 0 {
			sb.WriteString(", ")
		}
		c.write(sb)
	}
	sb.WriteString(")")
}

// Line is one numbered source line and its statements in order.
type Line struct {
	Label      string
	Statements []*Node
}

// Program is the ordered list of lines produced by the front end.
type Program struct {
	Lines []*Line
}

// Ident builds an identifier leaf.
func Ident(name string, typ Subtype) *Node {
	return &Node{Token: &Token{Kind: Identifier, Subtype: typ, Name: name}}
}

// ArrayRef builds an array element reference with the given index expressions.
func ArrayRef(name string, typ Subtype, indices ...*Node) *Node {
	return &Node{Token: &Token{Kind: Identifier, Subtype: typ, Name: name, IsArray: true}, Children: indices}
}

// Lit builds a literal leaf; value is the literal's source text.
func Lit(typ Subtype, value string) *Node {
	return &Node{Token: &Token{Kind: Literal, Subtype: typ, Value: value}}
}

// IntLit builds an integer literal leaf.
func IntLit(v int) *Node {
	return Lit(Int, fmt.Sprint(v))
}

// Sep builds a PRINT separator leaf (";" or ",").
func Sep(text string) *Node {
	return &Node{Token: &Token{Kind: Separator, Name: text}}
}

// Expr builds an operator or function node.
func Expr(op Op, args ...*Node) *Node {
	return &Node{Op: op, Children: args}
}

// Stmt builds a statement root.
func Stmt(kw Statement, args ...*Node) *Node {
	return &Node{Token: &Token{Kind: Keyword, Name: kw.String()}, Keyword: kw, Children: args}
}

// LabelRef builds the target operand of GOTO/GOSUB.
func LabelRef(label string) *Node {
	return &Node{Token: &Token{Kind: Literal, Subtype: Int, Value: label}}
}
