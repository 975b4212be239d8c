package compiler

import "fmt"

// ErrorKind classifies a compile failure. Every kind is fatal.
type ErrorKind int

const (
	KindType       ErrorKind = iota + 1 // invalid operand combination
	KindUnresolved                      // reference to a symbol that never got an address
	KindCapacity                        // RAM, window or bank limits exceeded
	KindStructural                      // loop nesting, duplicate definitions, malformed trees
)

func (k ErrorKind) String() string {
	switch k {
	case KindType:
		return "type error"
	case KindUnresolved:
		return "unresolved symbol"
	case KindCapacity:
		return "capacity error"
	case KindStructural:
		return "structural error"
	}
	return "error"
}

// Error is a compile failure tied to the line label that caused it.
type Error struct {
	Kind ErrorKind
	Line string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Line != "" {
		return fmt.Sprintf("line %s: %s", e.Line, e.Msg)
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (c *Compiler) errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Line: c.line, Msg: fmt.Sprintf(format, args...)}
}

func (c *Compiler) wrap(kind ErrorKind, line string, err error) *Error {
	return &Error{Kind: kind, Line: line, Msg: err.Error(), Err: err}
}
