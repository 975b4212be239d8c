package compiler

import (
	"errors"
	"fmt"
	"math/rand"
	"reflect"
	"strings"
	"testing"

	"github.com/davecgh/go-spew/spew"

	"msxbasrom/pkg/ast"
	"msxbasrom/pkg/basic"
	"msxbasrom/pkg/emit"
	"msxbasrom/pkg/symtab"
	"msxbasrom/pkg/target"
	"msxbasrom/pkg/z80"
)

func mustParse(t *testing.T, src string) *ast.Program {
	t.Helper()
	prog, err := basic.ParseSource(src)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	return prog
}

func mustCompile(t *testing.T, src string, opts Options) *Result {
	t.Helper()
	res, err := Compile(mustParse(t, src), opts)
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	if !res.Success {
		t.Fatalf("compile reported failure without error: %s", res.Error)
	}
	return res
}

func location(t *testing.T, res *Result, name string) Location {
	t.Helper()
	for _, l := range res.Locations {
		if l.Name == name {
			return l
		}
	}
	t.Fatalf("no location %q in:\n%s", name, spew.Sdump(res.Locations))
	return Location{}
}

func TestGotoResolvesToLineAddress(t *testing.T) {
	k := target.Default().Kernel
	res := mustCompile(t, "10 GOTO 30\n30 PRINT 1\n", Options{})

	// init publishes the ring and scratch pointers in 12 bytes.
	ln10 := location(t, res, "line 10")
	ln30 := location(t, res, "line 30")
	if ln10.Address != 0x800C || ln30.Address != 0x800F || ln30.Bank != 2 {
		t.Fatalf("unexpected locations:\n%s", spew.Sdump(res.Locations))
	}
	if got := res.Code[12:15]; !reflect.DeepEqual(got, []byte{z80.JPnn, 0x0F, 0x80}) {
		t.Errorf("GOTO 30: expected C3 0F 80, got % X", got)
	}

	lo, hi := z80.Word(int(k.PrintInt))
	want := []byte{z80.LDHLnn, 1, 0, z80.CALLnn, lo, hi}
	if got := res.Code[15:21]; !reflect.DeepEqual(got, want) {
		t.Errorf("PRINT 1: expected % X, got % X", want, got)
	}
	if res.BankCount != 3 || len(res.Banks) != 3 {
		t.Errorf("plain image: expected 3 banks, got %d", res.BankCount)
	}
	if !reflect.DeepEqual(res.Banks[2][:len(res.Code)], res.Code) {
		t.Errorf("bank 2 does not hold the linked code")
	}
}

func TestPrologueAndLayout(t *testing.T) {
	res := mustCompile(t, "10 PRINT 1\n", Options{})
	l := res.Layout
	want := Layout{VarStart: 0xC200, VarEnd: 0xC200, Ring: 0xC200, Scratch: 0xC600, End: 0xC700, Footprint: 0x700}
	if *l != want {
		t.Errorf("layout: expected %+v, got %+v", want, *l)
	}
	ram := target.Default().RAM
	rlo, rhi := z80.Word(int(ram.TempRingPtr))
	slo, shi := z80.Word(int(ram.ScratchPtr))
	init := []byte{
		z80.LDHLnn, 0x00, 0xC2, z80.LDnnHL, rlo, rhi,
		z80.LDHLnn, 0x00, 0xC6, z80.LDnnHL, slo, shi,
	}
	if got := res.Code[:12]; !reflect.DeepEqual(got, init) {
		t.Errorf("prologue: expected % X, got % X", init, got)
	}
}

func TestRAMFootprint(t *testing.T) {
	res := mustCompile(t, "10 A=1: B!=2: C$=\"X\": DIM D(9)\n", Options{})
	if res.RAMFootprint != 0x719 {
		t.Errorf("footprint: expected 0x719, got 0x%X", res.RAMFootprint)
	}
	if res.Layout.VarEnd != 0xC319 || res.Layout.Scratch != res.Layout.End {
		t.Errorf("unexpected layout %+v", *res.Layout)
	}

	want := map[string]int{"A%": 0xC200, "B!": 0xC202, "C$": 0xC205, "D%()": 0xC305}
	got := map[string]int{}
	for _, s := range res.Symbols.Symbols() {
		if s.Class == symtab.ClassVariable {
			got[s.Name()] = s.Address
		}
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("variable addresses: expected %v, got %v", want, got)
	}
}

func TestForWithoutStep(t *testing.T) {
	c := New(Options{})
	prog := mustParse(t, "10 FOR I=1 TO 3\n20 NEXT I\n")

	if err := c.CompileLine(prog.Lines[0]); err != nil {
		t.Fatal(err)
	}
	loops := c.Loops()
	if len(loops) != 1 {
		t.Fatalf("expected one open loop, got %d", len(loops))
	}
	f := loops[0]
	if f.StepToken == nil || f.StepToken.Value != "1" || f.StepToken.Subtype != ast.Int {
		t.Errorf("implicit step: got %+v", f.StepToken)
	}
	if f.Var.Name() != "I%" || f.Line != "10" || f.Bound == f.Step {
		t.Errorf("unexpected frame %+v", f)
	}
	if f.Retest.Address == 0 || f.Exit == nil || f.Exit.Symbol.Resolved() {
		t.Errorf("retest must be defined and exit pending after FOR")
	}

	if err := c.CompileLine(prog.Lines[1]); err != nil {
		t.Fatal(err)
	}
	if len(c.Loops()) != 0 {
		t.Errorf("NEXT should pop exactly one frame, %d left", len(c.Loops()))
	}
	if !f.Exit.Symbol.Resolved() {
		t.Errorf("NEXT should define the exit label")
	}
}

func TestNextPopsOneFramePerVariable(t *testing.T) {
	c := New(Options{})
	prog := mustParse(t, "10 FOR I=1 TO 2: FOR J=1 TO 2: FOR K=1 TO 2\n20 NEXT K, J\n")
	for _, ln := range prog.Lines {
		if err := c.CompileLine(ln); err != nil {
			t.Fatal(err)
		}
	}
	if loops := c.Loops(); len(loops) != 1 || loops[0].Var.Name() != "I%" {
		t.Errorf("expected only the I loop open, got %d frames", len(loops))
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		kind ErrorKind
		line string
		msg  string
	}{
		{"Assign Number To String", "10 A$=1", KindType, "10", "cannot assign"},
		{"Add String And Number", "10 PRINT \"A\"+1", KindType, "10", "type mismatch"},
		{"String Condition", "10 IF \"A\" THEN 20\n20 END", KindType, "10", "IF condition"},
		{"String Loop Variable", "10 FOR A$=1 TO 2", KindType, "10", "must be numeric"},
		{"Non Constant Dim", "10 DIM A(N)", KindType, "10", "constants"},
		{"Len Of Number", "10 A=LEN(5)", KindType, "10", "type mismatch"},
		{"Undeclared Line", "10 GOTO 99", KindUnresolved, "10", `undeclared line label "99"`},
		{"Undeclared Gosub", "10 END\n20 GOSUB 5", KindUnresolved, "20", `"5"`},
		{"Out Of RAM", "10 DIM A$(50)", KindCapacity, "", "out of RAM by 1408 bytes"},
		{"Array Too Large", "10 DIM A$(300)", KindCapacity, "10", "needs 77056 bytes"},
		{"Next Without For", "10 NEXT", KindStructural, "10", "NEXT without FOR"},
		{"For Without Next", "10 FOR I=1 TO 2\n20 PRINT I", KindStructural, "10", "FOR I% without NEXT"},
		{"Next Mismatch", "10 FOR I=1 TO 2: FOR J=1 TO 2: NEXT I", KindStructural, "10", "NEXT I% does not match FOR J%"},
		{"Dim Twice", "10 DIM A(3): DIM A(4)", KindStructural, "10", "already dimensioned"},
		{"Too Many Subscripts", "10 A(1,2,3)=1", KindStructural, "10", "subscripts"},
		{"Subscript Range", "10 A(11)=1", KindStructural, "10", "out of range"},
		{"Dimension Mismatch", "10 DIM A(3)\n20 A(1,1)=2", KindStructural, "20", "has 1 dimensions"},
		{"Duplicate Line", "10 END\n10 END", KindStructural, "10", "duplicate line 10"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Compile(mustParse(t, tt.src), Options{})
			if err == nil {
				t.Fatalf("expected %s", tt.kind)
			}
			var ce *Error
			if !errors.As(err, &ce) {
				t.Fatalf("expected *Error, got %T: %v", err, err)
			}
			if ce.Kind != tt.kind || ce.Line != tt.line {
				t.Errorf("expected %s on line %q, got %s on line %q: %v", tt.kind, tt.line, ce.Kind, ce.Line, err)
			}
			if !strings.Contains(err.Error(), tt.msg) {
				t.Errorf("error %q does not mention %q", err, tt.msg)
			}
			if res == nil || res.Success || res.Error != err.Error() {
				t.Errorf("result should carry the failure, got %+v", res)
			}
		})
	}
}

func TestUnresolvedUnwraps(t *testing.T) {
	_, err := Compile(mustParse(t, "10 GOTO 99"), Options{})
	var ue *symtab.UnresolvedError
	if !errors.As(err, &ue) || !ue.IsLabel() {
		t.Fatalf("expected wrapped *symtab.UnresolvedError, got %v", err)
	}
}

func TestPlainProgramTooLarge(t *testing.T) {
	src := bigProgram(2000)
	_, err := Compile(mustParse(t, src), Options{})
	var ce *Error
	if !errors.As(err, &ce) || ce.Kind != KindCapacity || !strings.Contains(err.Error(), "use banked mode") {
		t.Fatalf("expected window capacity error, got %v", err)
	}
}

func TestCompilerSingleUse(t *testing.T) {
	c := New(Options{})
	prog := mustParse(t, "10 END\n")
	if _, err := c.Compile(prog); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Compile(prog); err == nil {
		t.Errorf("second Compile on the same compiler should fail")
	}
}

func TestConstantPool(t *testing.T) {
	res := mustCompile(t, "10 PRINT \"HI\": PRINT \"HI\": A!=1.5\n", Options{})
	var names []string
	for _, r := range res.Ranges {
		if !r.Code {
			names = append(names, r.Name)
		}
	}
	want := []string{`const "HI"`, "const 1.5"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("data ranges: expected %v, got %v", want, names)
	}
	hi := location(t, res, `const "HI"`)
	off := int(hi.Address) - 0x8000
	if got := res.Code[off : off+3]; !reflect.DeepEqual(got, []byte{2, 'H', 'I'}) {
		t.Errorf("pooled string: got % X", got)
	}
	f := location(t, res, "const 1.5")
	off = int(f.Address) - 0x8000
	want15, _ := target.EncodeFloat(1.5)
	if got := res.Code[off : off+3]; !reflect.DeepEqual(got, want15.Bytes()) {
		t.Errorf("pooled float: got % X", got)
	}
}

func TestConstantFolding(t *testing.T) {
	res := mustCompile(t, "10 A=2+3*4\n", Options{})
	line := location(t, res, "line 10")
	off := int(line.Address) - 0x8000
	want := []byte{z80.LDHLnn, 14, 0, z80.LDnnHL, 0x00, 0xC2}
	if got := res.Code[off : off+line.Length]; !reflect.DeepEqual(got, want) {
		t.Errorf("folded assignment: expected % X, got % X", want, got)
	}
}

func TestOptimizeShrinksCode(t *testing.T) {
	src := "10 A=1\n20 B=A+2\n30 C=B*A\n"
	plain := mustCompile(t, src, Options{})
	opt := mustCompile(t, src, Options{Optimize: true})
	if opt.Rewrites == 0 || len(opt.Code) >= len(plain.Code) {
		t.Errorf("optimizer did nothing: %d rewrites, %d vs %d bytes", opt.Rewrites, len(opt.Code), len(plain.Code))
	}
	banked := mustCompile(t, src, Options{Optimize: true, Banked: true})
	if banked.Rewrites != 0 {
		t.Errorf("banked mode must not optimize, got %d rewrites", banked.Rewrites)
	}
}

// bigProgram returns n lines that each increment A, then prints A.
func bigProgram(n int) string {
	var sb strings.Builder
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&sb, "%d A=A+1\n", i*10)
	}
	fmt.Fprintf(&sb, "%d PRINT A\n", (n+1)*10)
	return sb.String()
}

// randomProgram builds n numbered lines of one to six statements drawn
// from a mix of short and long forms, with jumps to arbitrary lines.
func randomProgram(n int, seed int64) string {
	rng := rand.New(rand.NewSource(seed))
	stmts := []func() string{
		func() string { return "A=A+1" },
		func() string { return "B!=B!*1.5" },
		func() string { return `PRINT "X";A` },
		func() string { return fmt.Sprintf("GOTO %d", (rng.Intn(n)+1)*10) },
		func() string { return fmt.Sprintf("GOSUB %d", (rng.Intn(n)+1)*10) },
		func() string { return fmt.Sprintf("IF A>%d THEN %d", rng.Intn(100), (rng.Intn(n)+1)*10) },
		func() string { return `C$="AB"+C$` },
		func() string { return "POKE &HD000,A" },
	}
	var sb strings.Builder
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&sb, "%d ", i*10)
		k := rng.Intn(6) + 1
		for j := 0; j < k; j++ {
			if j > 0 {
				sb.WriteString(": ")
			}
			sb.WriteString(stmts[rng.Intn(len(stmts))]())
		}
		sb.WriteByte('\n')
	}
	fmt.Fprintf(&sb, "%d END\n", (n+1)*10)
	return sb.String()
}

// packWindows counts the windows needed when no range may split and each
// window keeps room for its closing stub.
func packWindows(ranges []emit.Range, usable int) int {
	windows, used := 1, 0
	for _, r := range ranges {
		if used+r.Length > usable {
			windows++
			used = 0
		}
		used += r.Length
	}
	return windows
}

func TestBankedManyLabels(t *testing.T) {
	res := mustCompile(t, randomProgram(5000, 1), Options{Banked: true})
	m := target.Default().Mapper
	usable := m.WindowSize() - emit.StubSize

	total := 0
	for _, r := range res.Ranges {
		total += r.Length
	}
	windows := packWindows(res.Ranges, usable)
	if floor := (total + usable - 1) / usable; windows < floor {
		t.Fatalf("packing %d bytes into %d windows is impossible", total, windows)
	}
	if res.Image == nil || res.Image.Windows != windows || len(res.Image.Breaks) != windows-1 {
		t.Fatalf("expected %d windows with %d breaks, got %+v", windows, windows-1, res.Image)
	}
	want := m.RoundBanks(m.FirstBank + windows*m.BanksPerWindow)
	if res.BankCount != want || len(res.Banks) != want {
		t.Errorf("expected %d banks, got %d (%d slices)", want, res.BankCount, len(res.Banks))
	}
	if res.BankCount <= m.Granularity {
		t.Errorf("program of %d bytes should need more than %d banks", total, m.Granularity)
	}

	lines := 0
	for _, l := range res.Locations {
		if !strings.HasPrefix(l.Name, "line ") {
			continue
		}
		lines++
		w := int(l.Address) - int(m.WindowBase)
		if w < 0 || w+l.Length > usable {
			t.Errorf("%s at 0x%04X crosses its window", l.Name, l.Address)
		}
		if l.Bank < m.FirstBank || l.Bank >= res.BankCount {
			t.Errorf("%s in bank %d", l.Name, l.Bank)
		}
	}
	if lines != 5001 {
		t.Errorf("expected 5001 line locations, got %d", lines)
	}
	for _, f := range res.Fixups {
		if !f.Symbol.Resolved() {
			t.Errorf("fixup at %d to %s unresolved", f.Offset, f.Symbol.Name())
		}
	}
}

func TestErrorKindString(t *testing.T) {
	kinds := map[ErrorKind]string{
		KindType:       "type error",
		KindUnresolved: "unresolved symbol",
		KindCapacity:   "capacity error",
		KindStructural: "structural error",
		ErrorKind(0):   "error",
	}
	for k, want := range kinds {
		if k.String() != want {
			t.Errorf("%d: expected %q, got %q", int(k), want, k.String())
		}
	}
	e := &Error{Kind: KindCapacity, Msg: "out of RAM"}
	if e.Error() != "out of RAM" {
		t.Errorf("error without line: got %q", e.Error())
	}
}
