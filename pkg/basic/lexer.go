package basic

import (
	"fmt"
	"strings"
	"unicode"
)

// keywords maps uppercased source words to their TokenType.
var keywords = map[string]TokenType{
	"REM":    REM,
	"LET":    LET,
	"PRINT":  PRINT,
	"GOTO":   GOTO,
	"GOSUB":  GOSUB,
	"RETURN": RETURN,
	"IF":     IF,
	"THEN":   THEN,
	"ELSE":   ELSE,
	"FOR":    FOR,
	"TO":     TO,
	"STEP":   STEP,
	"NEXT":   NEXT,
	"DIM":    DIM,
	"POKE":   POKE,
	"END":    END,
	"AND":    AND,
	"OR":     OR,
	"XOR":    XOR,
	"NOT":    NOT,
	"MOD":    MOD,
}

var functions = map[string]bool{
	"CINT": true, "CSNG": true, "CDBL": true, "STR$": true, "VAL": true,
	"LEN": true, "ABS": true, "CHR$": true, "ASC": true,
}

// Lexer holds all mutable state for a single scanning pass over src.
type Lexer struct {
	src  []rune
	pos  int // index of the next rune to consume
	line int // current 1-based source line
}

func newLexer(src string) *Lexer {
	return &Lexer{src: []rune(src), line: 1}
}

func (l *Lexer) peek() rune {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

func (l *Lexer) peek2() rune {
	if l.pos+1 >= len(l.src) {
		return 0
	}
	return l.src[l.pos+1]
}

// advance consumes one rune and returns it. Newlines are counted by the
// caller so NEWLINE tokens carry the line they end.
func (l *Lexer) advance() rune {
	if l.pos >= len(l.src) {
		return 0
	}
	r := l.src[l.pos]
	l.pos++
	return r
}

func (l *Lexer) skipBlanks() {
	for l.pos < len(l.src) && l.peek() != '\n' && unicode.IsSpace(l.peek()) {
		l.advance()
	}
}

// restOfLine consumes everything up to, not including, the newline.
func (l *Lexer) restOfLine() string {
	start := l.pos
	for l.pos < len(l.src) && l.peek() != '\n' {
		l.advance()
	}
	return strings.TrimSpace(string(l.src[start:l.pos]))
}

// scanWord collects an identifier or keyword, including a type suffix.
func (l *Lexer) scanWord() Token {
	line := l.line
	start := l.pos
	for l.pos < len(l.src) {
		r := l.peek()
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			break
		}
		l.advance()
	}
	if strings.ContainsRune("%!#$", l.peek()) {
		l.advance()
	}
	word := strings.ToUpper(string(l.src[start:l.pos]))
	if tt, ok := keywords[word]; ok {
		if tt == REM {
			return Token{Type: REM, Lexeme: l.restOfLine(), Line: line}
		}
		return Token{Type: tt, Lexeme: word, Line: line}
	}
	if functions[word] {
		return Token{Type: FUNCTION, Lexeme: word, Line: line}
	}
	return Token{Type: IDENTIFIER, Lexeme: word, Line: line}
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }

// scanNumber collects a decimal literal with optional fraction, exponent
// and type suffix, or an &H hex literal.
func (l *Lexer) scanNumber() (Token, error) {
	line := l.line
	start := l.pos

	if l.peek() == '&' {
		l.advance()
		if r := unicode.ToUpper(l.advance()); r != 'H' {
			return Token{}, fmt.Errorf("line %d: unsupported & literal", line)
		}
		digits := l.pos
		for l.pos < len(l.src) && strings.ContainsRune("0123456789abcdefABCDEF", l.peek()) {
			l.advance()
		}
		if l.pos == digits {
			return Token{}, fmt.Errorf("line %d: &H without digits", line)
		}
		return Token{Type: NUMBER, Lexeme: "0x" + string(l.src[digits:l.pos]), Line: line}, nil
	}

	for isDigit(l.peek()) {
		l.advance()
	}
	if l.peek() == '.' {
		l.advance()
		for isDigit(l.peek()) {
			l.advance()
		}
	}
	if r := unicode.ToUpper(l.peek()); (r == 'E' || r == 'D') && (isDigit(l.peek2()) || l.peek2() == '+' || l.peek2() == '-') {
		l.advance()
		if l.peek() == '+' || l.peek() == '-' {
			l.advance()
		}
		for isDigit(l.peek()) {
			l.advance()
		}
	}
	if strings.ContainsRune("%!#", l.peek()) {
		l.advance()
	}
	return Token{Type: NUMBER, Lexeme: strings.ToUpper(string(l.src[start:l.pos])), Line: line}, nil
}

func (l *Lexer) scanString() (Token, error) {
	line := l.line
	l.advance() // opening "
	start := l.pos
	for l.pos < len(l.src) && l.peek() != '"' && l.peek() != '\n' {
		l.advance()
	}
	val := string(l.src[start:l.pos])
	// An unterminated string runs to the end of the line.
	if l.peek() == '"' {
		l.advance()
	}
	return Token{Type: STRING, Lexeme: val, Line: line}, nil
}

func (l *Lexer) nextToken() (Token, error) {
	l.skipBlanks()
	if l.pos >= len(l.src) {
		return Token{Type: EOF, Line: l.line}, nil
	}

	ch := l.peek()
	line := l.line

	switch {
	case ch == '\n':
		l.advance()
		l.line++
		return Token{Type: NEWLINE, Lexeme: "\n", Line: line}, nil
	case unicode.IsLetter(ch):
		return l.scanWord(), nil
	case isDigit(ch), ch == '.' && isDigit(l.peek2()), ch == '&':
		return l.scanNumber()
	case ch == '"':
		return l.scanString()
	case ch == '\'':
		l.advance()
		return Token{Type: REM, Lexeme: l.restOfLine(), Line: line}, nil
	}

	l.advance()
	switch ch {
	case '?':
		return Token{PRINT, "PRINT", line}, nil
	case '(':
		return Token{LPAREN, "(", line}, nil
	case ')':
		return Token{RPAREN, ")", line}, nil
	case ',':
		return Token{COMMA, ",", line}, nil
	case ';':
		return Token{SEMICOLON, ";", line}, nil
	case ':':
		return Token{COLON, ":", line}, nil
	case '+':
		return Token{PLUS, "+", line}, nil
	case '-':
		return Token{MINUS, "-", line}, nil
	case '*':
		return Token{STAR, "*", line}, nil
	case '/':
		return Token{SLASH, "/", line}, nil
	case '\\':
		return Token{BACKSLASH, "\\", line}, nil
	case '^':
		return Token{CARET, "^", line}, nil
	case '=':
		return Token{EQUALS, "=", line}, nil
	case '<':
		switch l.peek() {
		case '=':
			l.advance()
			return Token{LESS_EQ, "<=", line}, nil
		case '>':
			l.advance()
			return Token{NOT_EQ, "<>", line}, nil
		}
		return Token{LESS, "<", line}, nil
	case '>':
		if l.peek() == '=' {
			l.advance()
			return Token{GREATER_EQ, ">=", line}, nil
		}
		return Token{GREATER, ">", line}, nil
	}
	return Token{}, fmt.Errorf("unexpected character %q on line %d", ch, line)
}

// Lex scans src into tokens. The slice always ends with EOF.
func Lex(src string) ([]Token, error) {
	l := newLexer(src)
	var tokens []Token
	for {
		tok, err := l.nextToken()
		if err != nil {
			return tokens, err
		}
		tokens = append(tokens, tok)
		if tok.Type == EOF {
			return tokens, nil
		}
	}
}
