package ast

// Op enumerates every operator and built-in function the evaluator knows.
// The front end resolves source text to an Op once; code generation never
// compares names.
type Op int

const (
	OpNone Op = iota

	// binary arithmetic
	OpAdd
	OpSub
	OpMul
	OpDiv    // /
	OpIntDiv // \
	OpMod
	OpPow

	// comparison
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe

	// bitwise / logical
	OpAnd
	OpOr
	OpXor
	OpNot

	OpNeg

	// built-in functions
	FnCint
	FnCsng
	FnCdbl
	FnStr
	FnVal
	FnLen
	FnAbs
	FnChr
	FnAsc
)

var opNames = map[Op]string{
	OpAdd:    "+",
	OpSub:    "-",
	OpMul:    "*",
	OpDiv:    "/",
	OpIntDiv: "\\",
	OpMod:    "MOD",
	OpPow:    "^",
	OpEq:     "=",
	OpNe:     "<>",
	OpLt:     "<",
	OpLe:     "<=",
	OpGt:     ">",
	OpGe:     ">=",
	OpAnd:    "AND",
	OpOr:     "OR",
	OpXor:    "XOR",
	OpNot:    "NOT",
	OpNeg:    "NEG",
	FnCint:   "CINT",
	FnCsng:   "CSNG",
	FnCdbl:   "CDBL",
	FnStr:    "STR$",
	FnVal:    "VAL",
	FnLen:    "LEN",
	FnAbs:    "ABS",
	FnChr:    "CHR$",
	FnAsc:    "ASC",
}

func (o Op) String() string {
	if s, ok := opNames[o]; ok {
		return s
	}
	return "none"
}

// IsComparison reports whether o yields a boolean from two operands.
func (o Op) IsComparison() bool {
	return o >= OpEq && o <= OpGe
}

// IsBitwise reports whether o works on the integer bit pattern.
func (o Op) IsBitwise() bool {
	return o == OpAnd || o == OpOr || o == OpXor
}

// IsFunction reports whether o is a built-in function call.
func (o Op) IsFunction() bool {
	return o >= FnCint
}

// Statement enumerates the statement keywords handed to the back end.
type Statement int

const (
	StmtNone Statement = iota
	StmtRem
	StmtLet
	StmtPrint
	StmtGoto
	StmtGosub
	StmtReturn
	StmtIf
	StmtBlock
	StmtFor
	StmtNext
	StmtDim
	StmtPoke
	StmtEnd
)

var stmtNames = [...]string{
	StmtNone:   "NONE",
	StmtRem:    "REM",
	StmtLet:    "LET",
	StmtPrint:  "PRINT",
	StmtGoto:   "GOTO",
	StmtGosub:  "GOSUB",
	StmtReturn: "RETURN",
	StmtIf:     "IF",
	StmtBlock:  "BLOCK",
	StmtFor:    "FOR",
	StmtNext:   "NEXT",
	StmtDim:    "DIM",
	StmtPoke:   "POKE",
	StmtEnd:    "END",
}

func (s Statement) String() string {
	if int(s) < len(stmtNames) {
		return stmtNames[s]
	}
	return "NONE"
}
