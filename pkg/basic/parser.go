package basic

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"msxbasrom/pkg/ast"
)

// Parser consumes the flat token slice produced by the Lexer and builds the
// statement trees handed to the compiler.
//
// Grammar:
//
//	program    = line*
//	line       = NUMBER statements (NEWLINE | EOF)
//	statements = statement (":" statement)*
//	statement  = REM | [LET] lvalue "=" expr | PRINT items | GOTO NUMBER | GOSUB NUMBER
//	           | RETURN | END | IF expr (THEN branch | GOTO NUMBER) [ELSE branch]
//	           | FOR IDENT "=" expr TO expr [STEP expr] | NEXT [IDENT ("," IDENT)*]
//	           | DIM lvalue ("," lvalue)* | POKE expr "," expr
//	branch     = NUMBER | statements
//	expr       = xor
//	xor        = or (XOR or)*
//	or         = and (OR and)*
//	and        = not (AND not)*
//	not        = NOT not | relational
//	relational = additive (("=" | "<>" | "<" | "<=" | ">" | ">=") additive)*
//	additive   = mod (("+" | "-") mod)*
//	mod        = intdiv (MOD intdiv)*
//	intdiv     = term ("\" term)*
//	term       = unary (("*" | "/") unary)*
//	unary      = ("-" | "+") unary | power
//	power      = primary ("^" signed)*
//	primary    = NUMBER | STRING | IDENT ["(" expr ("," expr)* ")"] | FUNCTION "(" expr ")" | "(" expr ")"
type Parser struct {
	tokens      []Token
	pos         int
	sourceLines []string
}

func NewParser(tokens []Token, rawSource string) *Parser {
	return &Parser{tokens: tokens, sourceLines: strings.Split(rawSource, "\n")}
}

// fmtError wraps an error message with the source line where the token appears.
func (p *Parser) fmtError(tok Token, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	lineIdx := tok.Line - 1

	snippet := "<source unavailable>"
	if lineIdx >= 0 && lineIdx < len(p.sourceLines) {
		snippet = strings.TrimSpace(p.sourceLines[lineIdx])
	}
	return fmt.Errorf("line %d: %s\n  |> %s", tok.Line, msg, snippet)
}

func (p *Parser) peek() Token {
	if p.pos >= len(p.tokens) {
		return Token{Type: EOF}
	}
	return p.tokens[p.pos]
}

func (p *Parser) advance() Token {
	tok := p.peek()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return tok
}

func (p *Parser) expect(tt TokenType) (Token, error) {
	tok := p.advance()
	if tok.Type != tt {
		return tok, p.fmtError(tok, "expected %s, got %s (%q)", tt, tok.Type, tok.Lexeme)
	}
	return tok, nil
}

func (p *Parser) atStatementEnd() bool {
	switch p.peek().Type {
	case COLON, NEWLINE, EOF, ELSE, REM:
		return true
	}
	return false
}

// Parse builds a program from tokens. Lines come out sorted by number.
func Parse(tokens []Token, src string) (*ast.Program, error) {
	p := NewParser(tokens, src)
	prog := &ast.Program{}
	numbers := map[*ast.Line]int{}
	for {
		for p.peek().Type == NEWLINE {
			p.advance()
		}
		if p.peek().Type == EOF {
			break
		}
		num, err := p.expect(NUMBER)
		if err != nil {
			return nil, err
		}
		n, err := strconv.Atoi(num.Lexeme)
		if err != nil || n < 0 || n > 65529 {
			return nil, p.fmtError(num, "bad line number %q", num.Lexeme)
		}
		ln := &ast.Line{Label: strconv.Itoa(n)}
		if p.peek().Type != NEWLINE && p.peek().Type != EOF {
			if ln.Statements, err = p.parseStatements(); err != nil {
				return nil, err
			}
		}
		switch tok := p.advance(); tok.Type {
		case NEWLINE, EOF:
		case ELSE:
			return nil, p.fmtError(tok, "ELSE without IF")
		default:
			return nil, p.fmtError(tok, "unexpected %s (%q)", tok.Type, tok.Lexeme)
		}
		numbers[ln] = n
		prog.Lines = append(prog.Lines, ln)
	}
	sort.SliceStable(prog.Lines, func(i, j int) bool {
		return numbers[prog.Lines[i]] < numbers[prog.Lines[j]]
	})
	return prog, nil
}

// ParseSource lexes and parses src.
func ParseSource(src string) (*ast.Program, error) {
	tokens, err := Lex(src)
	if err != nil {
		return nil, err
	}
	return Parse(tokens, src)
}

func (p *Parser) parseStatements() ([]*ast.Node, error) {
	var stmts []*ast.Node
	for {
		s, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, s)
		// ' may close a statement without a colon
		if p.peek().Type == REM {
			p.advance()
			return append(stmts, ast.Stmt(ast.StmtRem)), nil
		}
		if p.peek().Type != COLON {
			return stmts, nil
		}
		p.advance()
		if t := p.peek().Type; t == NEWLINE || t == EOF || t == ELSE {
			return stmts, nil
		}
	}
}

func (p *Parser) parseStatement() (*ast.Node, error) {
	tok := p.peek()
	switch tok.Type {
	case REM:
		p.advance()
		return ast.Stmt(ast.StmtRem), nil
	case LET:
		p.advance()
		return p.parseAssignment()
	case IDENTIFIER:
		return p.parseAssignment()
	case PRINT:
		p.advance()
		return p.parsePrint()
	case GOTO, GOSUB:
		p.advance()
		target, err := p.parseLineRef()
		if err != nil {
			return nil, err
		}
		kw := ast.StmtGoto
		if tok.Type == GOSUB {
			kw = ast.StmtGosub
		}
		return ast.Stmt(kw, target), nil
	case RETURN:
		p.advance()
		return ast.Stmt(ast.StmtReturn), nil
	case END:
		p.advance()
		return ast.Stmt(ast.StmtEnd), nil
	case IF:
		p.advance()
		return p.parseIf()
	case FOR:
		p.advance()
		return p.parseFor()
	case NEXT:
		p.advance()
		return p.parseNext()
	case DIM:
		p.advance()
		return p.parseDim()
	case POKE:
		p.advance()
		addr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(COMMA); err != nil {
			return nil, err
		}
		val, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		return ast.Stmt(ast.StmtPoke, addr, val), nil
	}
	return nil, p.fmtError(tok, "unexpected %s (%q) at start of statement", tok.Type, tok.Lexeme)
}

func (p *Parser) parseLineRef() (*ast.Node, error) {
	tok, err := p.expect(NUMBER)
	if err != nil {
		return nil, err
	}
	n, err := strconv.Atoi(tok.Lexeme)
	if err != nil {
		return nil, p.fmtError(tok, "bad line number %q", tok.Lexeme)
	}
	return ast.LabelRef(strconv.Itoa(n)), nil
}

func (p *Parser) parseAssignment() (*ast.Node, error) {
	target, err := p.parseLValue()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(EQUALS); err != nil {
		return nil, err
	}
	value, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	return ast.Stmt(ast.StmtLet, target, value), nil
}

// identToken splits a variable lexeme into name and type.
// Unsuffixed names are integers.
func identToken(tok Token) *ast.Token {
	name, typ := tok.Lexeme, ast.Int
	switch {
	case strings.HasSuffix(name, "%"):
		name = strings.TrimSuffix(name, "%")
	case strings.HasSuffix(name, "!"):
		name, typ = strings.TrimSuffix(name, "!"), ast.Single
	case strings.HasSuffix(name, "#"):
		name, typ = strings.TrimSuffix(name, "#"), ast.Double
	case strings.HasSuffix(name, "$"):
		name, typ = strings.TrimSuffix(name, "$"), ast.String
	}
	return &ast.Token{Kind: ast.Identifier, Subtype: typ, Name: name, Line: tok.Line}
}

// parseLValue parses a variable or an array element.
func (p *Parser) parseLValue() (*ast.Node, error) {
	tok, err := p.expect(IDENTIFIER)
	if err != nil {
		return nil, err
	}
	n := &ast.Node{Token: identToken(tok)}
	if p.peek().Type != LPAREN {
		return n, nil
	}
	p.advance()
	n.Token.IsArray = true
	for {
		idx, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		n.Children = append(n.Children, idx)
		if p.peek().Type != COMMA {
			break
		}
		p.advance()
	}
	if _, err := p.expect(RPAREN); err != nil {
		return nil, err
	}
	return n, nil
}

func (p *Parser) parsePrint() (*ast.Node, error) {
	stmt := ast.Stmt(ast.StmtPrint)
	for !p.atStatementEnd() {
		switch p.peek().Type {
		case SEMICOLON:
			p.advance()
			stmt.Children = append(stmt.Children, ast.Sep(";"))
		case COMMA:
			p.advance()
			stmt.Children = append(stmt.Children, ast.Sep(","))
		default:
			e, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			stmt.Children = append(stmt.Children, e)
		}
	}
	return stmt, nil
}

// parseBranch parses what follows THEN or ELSE.
func (p *Parser) parseBranch() (*ast.Node, error) {
	if p.peek().Type == NUMBER {
		target, err := p.parseLineRef()
		if err != nil {
			return nil, err
		}
		return ast.Stmt(ast.StmtBlock, ast.Stmt(ast.StmtGoto, target)), nil
	}
	stmts, err := p.parseStatements()
	if err != nil {
		return nil, err
	}
	return ast.Stmt(ast.StmtBlock, stmts...), nil
}

func (p *Parser) parseIf() (*ast.Node, error) {
	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	var then *ast.Node
	switch tok := p.advance(); tok.Type {
	case THEN:
		if then, err = p.parseBranch(); err != nil {
			return nil, err
		}
	case GOTO:
		target, err := p.parseLineRef()
		if err != nil {
			return nil, err
		}
		then = ast.Stmt(ast.StmtBlock, ast.Stmt(ast.StmtGoto, target))
	default:
		return nil, p.fmtError(tok, "expected THEN or GOTO, got %s (%q)", tok.Type, tok.Lexeme)
	}
	stmt := ast.Stmt(ast.StmtIf, cond, then)
	if p.peek().Type == ELSE {
		p.advance()
		els, err := p.parseBranch()
		if err != nil {
			return nil, err
		}
		stmt.Children = append(stmt.Children, els)
	}
	return stmt, nil
}

func (p *Parser) parseFor() (*ast.Node, error) {
	tok, err := p.expect(IDENTIFIER)
	if err != nil {
		return nil, err
	}
	v := &ast.Node{Token: identToken(tok)}
	if _, err := p.expect(EQUALS); err != nil {
		return nil, err
	}
	start, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TO); err != nil {
		return nil, err
	}
	bound, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	stmt := ast.Stmt(ast.StmtFor, v, start, bound)
	if p.peek().Type == STEP {
		p.advance()
		step, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		stmt.Children = append(stmt.Children, step)
	}
	return stmt, nil
}

func (p *Parser) parseNext() (*ast.Node, error) {
	stmt := ast.Stmt(ast.StmtNext)
	if p.atStatementEnd() {
		return stmt, nil
	}
	for {
		tok, err := p.expect(IDENTIFIER)
		if err != nil {
			return nil, err
		}
		stmt.Children = append(stmt.Children, &ast.Node{Token: identToken(tok)})
		if p.peek().Type != COMMA {
			return stmt, nil
		}
		p.advance()
	}
}

func (p *Parser) parseDim() (*ast.Node, error) {
	stmt := ast.Stmt(ast.StmtDim)
	for {
		a, err := p.parseLValue()
		if err != nil {
			return nil, err
		}
		if !a.Token.IsArray {
			return nil, p.fmtError(p.peek(), "DIM %s needs dimensions", a.Token)
		}
		stmt.Children = append(stmt.Children, a)
		if p.peek().Type != COMMA {
			return stmt, nil
		}
		p.advance()
	}
}

// expressions

var binaryOps = map[TokenType]ast.Op{
	PLUS:       ast.OpAdd,
	MINUS:      ast.OpSub,
	STAR:       ast.OpMul,
	SLASH:      ast.OpDiv,
	BACKSLASH:  ast.OpIntDiv,
	MOD:        ast.OpMod,
	CARET:      ast.OpPow,
	EQUALS:     ast.OpEq,
	NOT_EQ:     ast.OpNe,
	LESS:       ast.OpLt,
	LESS_EQ:    ast.OpLe,
	GREATER:    ast.OpGt,
	GREATER_EQ: ast.OpGe,
	AND:        ast.OpAnd,
	OR:         ast.OpOr,
	XOR:        ast.OpXor,
}

var functionOps = map[string]ast.Op{
	"CINT": ast.FnCint,
	"CSNG": ast.FnCsng,
	"CDBL": ast.FnCdbl,
	"STR$": ast.FnStr,
	"VAL":  ast.FnVal,
	"LEN":  ast.FnLen,
	"ABS":  ast.FnAbs,
	"CHR$": ast.FnChr,
	"ASC":  ast.FnAsc,
}

func (p *Parser) parseExpression() (*ast.Node, error) {
	return p.parseBinary(0)
}

// levels lists binary operators from loosest to tightest binding. NOT and
// unary minus sit between the levels and are handled by parseBinary.
var levels = [][]TokenType{
	{XOR},
	{OR},
	{AND},
	nil, // NOT
	{EQUALS, NOT_EQ, LESS, LESS_EQ, GREATER, GREATER_EQ},
	{PLUS, MINUS},
	{MOD},
	{BACKSLASH},
	{STAR, SLASH},
}

func (p *Parser) parseBinary(level int) (*ast.Node, error) {
	if level == len(levels) {
		return p.parseUnary()
	}
	if levels[level] == nil {
		if p.peek().Type == NOT {
			p.advance()
			operand, err := p.parseBinary(level)
			if err != nil {
				return nil, err
			}
			return ast.Expr(ast.OpNot, operand), nil
		}
		return p.parseBinary(level + 1)
	}
	left, err := p.parseBinary(level + 1)
	if err != nil {
		return nil, err
	}
	for matches(p.peek().Type, levels[level]) {
		op := binaryOps[p.advance().Type]
		right, err := p.parseBinary(level + 1)
		if err != nil {
			return nil, err
		}
		left = ast.Expr(op, left, right)
	}
	return left, nil
}

func matches(tt TokenType, set []TokenType) bool {
	for _, t := range set {
		if t == tt {
			return true
		}
	}
	return false
}

func (p *Parser) parseUnary() (*ast.Node, error) {
	switch p.peek().Type {
	case MINUS:
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return ast.Expr(ast.OpNeg, operand), nil
	case PLUS:
		p.advance()
		return p.parseUnary()
	}
	return p.parsePower()
}

func (p *Parser) parsePower() (*ast.Node, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for p.peek().Type == CARET {
		p.advance()
		neg := false
		if p.peek().Type == MINUS {
			p.advance()
			neg = true
		}
		right, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		if neg {
			right = ast.Expr(ast.OpNeg, right)
		}
		left = ast.Expr(ast.OpPow, left, right)
	}
	return left, nil
}

// numberToken types a numeric literal: integers up to 65535 without a
// float marker are Int, # makes a Double, anything else is Single.
func numberToken(tok Token) *ast.Token {
	text := tok.Lexeme
	lit := &ast.Token{Kind: ast.Literal, Line: tok.Line}
	switch {
	case strings.HasPrefix(text, "0x"):
		lit.Subtype, lit.Value = ast.Int, text
		return lit
	case strings.HasSuffix(text, "%"):
		lit.Subtype, lit.Value = ast.Int, strings.TrimSuffix(text, "%")
		return lit
	case strings.HasSuffix(text, "#"):
		lit.Subtype, text = ast.Double, strings.TrimSuffix(text, "#")
	case strings.HasSuffix(text, "!"):
		lit.Subtype, text = ast.Single, strings.TrimSuffix(text, "!")
	case strings.ContainsAny(text, ".ED"):
		lit.Subtype = ast.Single
	default:
		if v, err := strconv.Atoi(text); err == nil && v <= 0xFFFF {
			lit.Subtype, lit.Value = ast.Int, text
			return lit
		}
		lit.Subtype = ast.Single
	}
	if strings.Contains(text, "D") {
		lit.Subtype = ast.Double
		text = strings.ReplaceAll(text, "D", "E")
	}
	lit.Value = text
	return lit
}

func (p *Parser) parsePrimary() (*ast.Node, error) {
	tok := p.peek()
	switch tok.Type {
	case NUMBER:
		p.advance()
		return &ast.Node{Token: numberToken(tok)}, nil
	case STRING:
		p.advance()
		return &ast.Node{Token: &ast.Token{Kind: ast.Literal, Subtype: ast.String, Value: tok.Lexeme, Line: tok.Line}}, nil
	case IDENTIFIER:
		return p.parseLValue()
	case FUNCTION:
		p.advance()
		if _, err := p.expect(LPAREN); err != nil {
			return nil, err
		}
		arg, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(RPAREN); err != nil {
			return nil, err
		}
		return ast.Expr(functionOps[tok.Lexeme], arg), nil
	case LPAREN:
		p.advance()
		e, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(RPAREN); err != nil {
			return nil, err
		}
		return e, nil
	}
	return nil, p.fmtError(tok, "unexpected %s (%q) in expression", tok.Type, tok.Lexeme)
}
