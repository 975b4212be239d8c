package basic

import "fmt"

// TokenType identifies the category of a lexed token.
type TokenType int

const (
	EOF     TokenType = iota // sentinel: end of input
	NEWLINE                  // end of a source line

	// Literals
	IDENTIFIER // variable name, suffix included
	NUMBER     // numeric literal
	STRING     // string literal "..."

	// Keywords
	REM
	LET
	PRINT
	GOTO
	GOSUB
	RETURN
	IF
	THEN
	ELSE
	FOR
	TO
	STEP
	NEXT
	DIM
	POKE
	END
	FUNCTION // built-in function name; Lexeme holds it

	// Word operators
	AND
	OR
	XOR
	NOT
	MOD

	// Punctuation
	LPAREN    // (
	RPAREN    // )
	COMMA     // ,
	SEMICOLON // ;
	COLON     // :

	// Operators
	PLUS       // +
	MINUS      // -
	STAR       // *
	SLASH      // /
	BACKSLASH  // \
	CARET      // ^
	EQUALS     // =
	NOT_EQ     // <>
	LESS       // <
	LESS_EQ    // <=
	GREATER    // >
	GREATER_EQ // >=
)

var tokenNames = [...]string{
	EOF:        "EOF",
	NEWLINE:    "NEWLINE",
	IDENTIFIER: "IDENTIFIER",
	NUMBER:     "NUMBER",
	STRING:     "STRING",
	REM:        "REM",
	LET:        "LET",
	PRINT:      "PRINT",
	GOTO:       "GOTO",
	GOSUB:      "GOSUB",
	RETURN:     "RETURN",
	IF:         "IF",
	THEN:       "THEN",
	ELSE:       "ELSE",
	FOR:        "FOR",
	TO:         "TO",
	STEP:       "STEP",
	NEXT:       "NEXT",
	DIM:        "DIM",
	POKE:       "POKE",
	END:        "END",
	FUNCTION:   "FUNCTION",
	AND:        "AND",
	OR:         "OR",
	XOR:        "XOR",
	NOT:        "NOT",
	MOD:        "MOD",
	LPAREN:     "LPAREN",
	RPAREN:     "RPAREN",
	COMMA:      "COMMA",
	SEMICOLON:  "SEMICOLON",
	COLON:      "COLON",
	PLUS:       "PLUS",
	MINUS:      "MINUS",
	STAR:       "STAR",
	SLASH:      "SLASH",
	BACKSLASH:  "BACKSLASH",
	CARET:      "CARET",
	EQUALS:     "EQUALS",
	NOT_EQ:     "NOT_EQ",
	LESS:       "LESS",
	LESS_EQ:    "LESS_EQ",
	GREATER:    "GREATER",
	GREATER_EQ: "GREATER_EQ",
}

func (t TokenType) String() string {
	if int(t) < len(tokenNames) && tokenNames[t] != "" {
		return tokenNames[t]
	}
	return fmt.Sprintf("TokenType(%d)", int(t))
}

// Token is a single lexical unit produced by the Lexer.
type Token struct {
	Type   TokenType
	Lexeme string // uppercased for keywords and identifiers; raw text for literals
	Line   int    // 1-based physical source line
}

func (t Token) String() string {
	return fmt.Sprintf("%-10s %-14q  line %d", t.Type, t.Lexeme, t.Line)
}
