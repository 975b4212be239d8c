package kernelsim

import (
	"errors"
	"strings"
	"testing"

	"msxbasrom/pkg/target"
	"msxbasrom/pkg/z80"
)

func cat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// cartridge returns n empty banks with code placed at the start of the
// given banks.
func cartridge(cfg target.Config, n int, code map[int][]byte) [][]byte {
	banks := make([][]byte, n)
	for i := range banks {
		banks[i] = make([]byte, cfg.Mapper.BankSize)
		copy(banks[i], code[i])
	}
	return banks
}

func runMachine(t *testing.T, cfg target.Config, banks [][]byte) *Machine {
	t.Helper()
	m, err := New(cfg, banks)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := m.Run(10_000); err != nil {
		t.Fatalf("Run failed: %v (output %q)", err, m.Output())
	}
	return m
}

func TestPrintRoutines(t *testing.T) {
	cfg := target.Default()
	k := cfg.Kernel
	f, _ := target.EncodeFloat(-1.5)
	code := cat(
		z80.Inst(z80.LDHLnn, 5),
		z80.Inst(z80.CALLnn, int(k.PrintInt)),
		z80.Inst(z80.CALLnn, int(k.PrintTab)),
		[]byte{z80.LDBn, f.Exp},
		z80.Inst(z80.LDHLnn, int(f.Mant)),
		z80.Inst(z80.CALLnn, int(k.PrintFloat)),
		z80.Inst(z80.CALLnn, int(k.PrintNewline)),
		z80.Inst(z80.JPnn, int(k.End)),
	)
	m := runMachine(t, cfg, cartridge(cfg, 4, map[int][]byte{2: code}))
	want := " 5 " + strings.Repeat(" ", 11) + "-1.5 \n"
	if got := m.Output(); got != want {
		t.Errorf("output: expected %q, got %q", want, got)
	}
}

func TestFormat(t *testing.T) {
	ints := []struct {
		in   int16
		want string
	}{{0, " 0"}, {42, " 42"}, {-7, "-7"}, {-32768, "-32768"}}
	for _, tt := range ints {
		if got := formatInt(tt.in); got != tt.want {
			t.Errorf("formatInt(%d): expected %q, got %q", tt.in, tt.want, got)
		}
	}
	floats := []struct {
		in   float64
		want string
	}{{0, " 0"}, {1.5, " 1.5"}, {0.5, " .5"}, {-0.25, "-.25"}, {100, " 100"}}
	for _, tt := range floats {
		if got := formatFloat(tt.in); got != tt.want {
			t.Errorf("formatFloat(%v): expected %q, got %q", tt.in, tt.want, got)
		}
	}
}

func TestIntegerRoutines(t *testing.T) {
	cfg := target.Default()
	k := cfg.Kernel
	tests := []struct {
		name    string
		routine uint16
		hl, de  uint16
		wantHL  uint16
		wantA   byte
		checkA  bool
		wantErr error
	}{
		{name: "Mul", routine: k.IntMul, hl: 6, de: 7, wantHL: 42},
		{name: "MulWraps", routine: k.IntMul, hl: 300, de: 300, wantHL: uint16(int16(300*300 - 65536))},
		{name: "Div", routine: k.IntDiv, hl: uint16(0xFFF9), de: 2, wantHL: uint16(0xFFFD)}, // -7/2 = -3
		{name: "Mod", routine: k.IntMod, hl: 7, de: 3, wantHL: 1},
		{name: "DivZero", routine: k.IntDiv, hl: 1, de: 0, wantErr: ErrDivisionByZero},
		{name: "Abs", routine: k.IntAbs, hl: uint16(0xFFFB), wantHL: 5},
		{name: "CompareLess", routine: k.IntCompare, hl: uint16(0xFFFF), de: 1, wantA: 0xFF, checkA: true},
		{name: "CompareEqual", routine: k.IntCompare, hl: 9, de: 9, wantA: 0, checkA: true},
		{name: "CompareGreater", routine: k.IntCompare, hl: 10, de: 9, wantA: 1, checkA: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code := cat(
				z80.Inst(z80.LDHLnn, int(tt.hl)),
				z80.Inst(z80.LDDEnn, int(tt.de)),
				z80.Inst(z80.CALLnn, int(tt.routine)),
				z80.Inst(z80.JPnn, int(k.End)),
			)
			m, err := New(cfg, cartridge(cfg, 4, map[int][]byte{2: code}))
			if err != nil {
				t.Fatal(err)
			}
			err = m.Run(100)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if tt.checkA {
				if m.CPU.A != tt.wantA {
					t.Errorf("A: expected 0x%02X, got 0x%02X", tt.wantA, m.CPU.A)
				}
				return
			}
			if m.CPU.HL() != tt.wantHL {
				t.Errorf("HL: expected 0x%04X, got 0x%04X", tt.wantHL, m.CPU.HL())
			}
		})
	}
}

func TestBankJump(t *testing.T) {
	cfg := target.Default()
	k := cfg.Kernel
	base := int(cfg.Mapper.WindowBase)
	code := map[int][]byte{
		2: cat([]byte{z80.LDAn, 4}, z80.Inst(z80.LDHLnn, base), z80.Inst(z80.JPnn, int(k.BankJump))),
		4: cat(z80.Inst(z80.LDHLnn, 7), z80.Inst(z80.CALLnn, int(k.PrintInt)), z80.Inst(z80.JPnn, int(k.End))),
	}
	m := runMachine(t, cfg, cartridge(cfg, 6, code))
	if m.Output() != " 7 " {
		t.Errorf("output: got %q", m.Output())
	}
	if m.Window() != 4 || m.Switches != 1 {
		t.Errorf("expected window 4 after one switch, got window %d, %d switches", m.Window(), m.Switches)
	}
}

func TestBankCallReturns(t *testing.T) {
	cfg := target.Default()
	k := cfg.Kernel
	base := int(cfg.Mapper.WindowBase)
	code := map[int][]byte{
		2: cat(
			[]byte{z80.LDAn, 4},
			z80.Inst(z80.LDHLnn, base),
			z80.Inst(z80.CALLnn, int(k.BankCall)),
			z80.Inst(z80.LDHLnn, 2),
			z80.Inst(z80.CALLnn, int(k.PrintInt)),
			z80.Inst(z80.JPnn, int(k.End)),
		),
		4: cat(z80.Inst(z80.LDHLnn, 1), z80.Inst(z80.CALLnn, int(k.PrintInt)), []byte{z80.RET}),
	}
	m := runMachine(t, cfg, cartridge(cfg, 6, code))
	if m.Output() != " 1  2 " {
		t.Errorf("output: got %q", m.Output())
	}
	if m.Window() != 2 || m.Switches != 2 {
		t.Errorf("expected window 2 after two switches, got window %d, %d switches", m.Window(), m.Switches)
	}
	if m.CPU.SP != stackTop {
		t.Errorf("stack not unwound: SP=0x%04X", m.CPU.SP)
	}
}

func TestBankReadUsesRing(t *testing.T) {
	cfg := target.Default()
	k := cfg.Kernel
	ram := cfg.RAM
	base := int(cfg.Mapper.WindowBase)
	read := cat([]byte{z80.LDAn, 4}, z80.Inst(z80.LDHLnn, base), z80.Inst(z80.CALLnn, int(k.BankRead)))
	code := map[int][]byte{
		2: cat(
			z80.Inst(z80.LDHLnn, 0xD000),
			z80.Inst(z80.LDnnHL, int(ram.TempRingPtr)),
			read,
			[]byte{z80.PUSHHL},
			read,
			z80.Inst(z80.CALLnn, int(k.PrintString)),
			[]byte{z80.POPHL},
			z80.Inst(z80.CALLnn, int(k.PrintString)),
			z80.Inst(z80.JPnn, int(k.End)),
		),
		4: {2, 'H', 'I'},
	}
	m := runMachine(t, cfg, cartridge(cfg, 6, code))
	if m.Output() != "HIHI" {
		t.Errorf("output: got %q", m.Output())
	}
	if m.String(0xD000) != "HI" || m.String(0xD000+ram.SlotSize) != "HI" {
		t.Errorf("consecutive reads should fill consecutive slots")
	}
	if m.Window() != 2 {
		t.Errorf("bank read must not change the window, got %d", m.Window())
	}
}

func TestStringRoutines(t *testing.T) {
	cfg := target.Default()
	k := cfg.Kernel
	ram := cfg.RAM
	code := cat(
		z80.Inst(z80.LDHLnn, 0xD000),
		z80.Inst(z80.LDnnHL, int(ram.TempRingPtr)),
		z80.Inst(z80.LDHLnn, 0xE000),
		z80.Inst(z80.LDDEnn, 0xE010),
		z80.Inst(z80.CALLnn, int(k.StrConcat)),
		z80.Inst(z80.CALLnn, int(k.PrintString)),
		z80.Inst(z80.LDHLnn, 0xE000),
		z80.Inst(z80.LDDEnn, 0xE010),
		z80.Inst(z80.CALLnn, int(k.StrCompare)),
		[]byte{z80.HALT},
	)
	m, err := New(cfg, cartridge(cfg, 4, map[int][]byte{2: code}))
	if err != nil {
		t.Fatal(err)
	}
	m.writeString(0xE000, []byte("AB"))
	m.writeString(0xE010, []byte("CD"))
	if err := m.Run(100); err != nil {
		t.Fatal(err)
	}
	if m.Output() != "ABCD" {
		t.Errorf("concat output: got %q", m.Output())
	}
	if m.CPU.A != 0xFF {
		t.Errorf("compare AB with CD: expected 0xFF, got 0x%02X", m.CPU.A)
	}
}

func TestMachineErrors(t *testing.T) {
	cfg := target.Default()
	if _, err := New(cfg, cartridge(cfg, 2, nil)); !errors.Is(err, errNoProgram) {
		t.Errorf("expected errNoProgram, got %v", err)
	}

	k := cfg.Kernel
	code := cat([]byte{z80.LDAn, 9}, z80.Inst(z80.LDHLnn, 0x8000), z80.Inst(z80.JPnn, int(k.BankJump)))
	m, err := New(cfg, cartridge(cfg, 4, map[int][]byte{2: code}))
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Run(100); err == nil {
		t.Errorf("expected error jumping to a missing bank")
	}

	// ROM is read-only.
	m.Write(0x8000, 0x99)
	if m.Read(0x8000) != z80.LDAn {
		t.Errorf("write to ROM changed it")
	}
	m.Write(0xC300, 0x99)
	if m.Read(0xC300) != 0x99 {
		t.Errorf("write to RAM lost")
	}
}

func TestRunFor(t *testing.T) {
	cfg := target.Default()
	k := cfg.Kernel

	spin := []byte{z80.JR, 0xFE}
	m, err := New(cfg, cartridge(cfg, 4, map[int][]byte{2: spin}))
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := m.RunFor(50); err != nil {
			t.Fatalf("RunFor: %v", err)
		}
	}
	if m.Done() || m.CPU.Steps != 150 {
		t.Errorf("expected a running program after 150 steps, got done=%v steps=%d", m.Done(), m.CPU.Steps)
	}

	code := cat(
		z80.Inst(z80.LDHLnn, 7),
		z80.Inst(z80.CALLnn, int(k.PrintInt)),
		z80.Inst(z80.JPnn, int(k.End)),
	)
	m, err = New(cfg, cartridge(cfg, 4, map[int][]byte{2: code}))
	if err != nil {
		t.Fatal(err)
	}
	if err := m.RunFor(1000); err != nil {
		t.Fatalf("RunFor: %v", err)
	}
	if !m.Done() || m.Output() != " 7 " {
		t.Errorf("expected finished program printing \" 7 \", got done=%v %q", m.Done(), m.Output())
	}
}
