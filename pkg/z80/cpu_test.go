package z80

import (
	"errors"
	"testing"
)

// flat is a 64 KB RAM bus for tests.
type flat [0x10000]byte

func (m *flat) Read(addr uint16) byte     { return m[addr] }
func (m *flat) Write(addr uint16, v byte) { m[addr] = v }

// load places code at 0 and returns a CPU ready to run it.
func load(code ...byte) (*CPU, *flat) {
	mem := &flat{}
	copy(mem[:], code)
	return NewCPU(mem), mem
}

func cat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func run(t *testing.T, c *CPU) {
	t.Helper()
	if err := c.Run(10_000); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
}

func TestLoadStore(t *testing.T) {
	c, mem := load(cat(
		Inst(LDHLnn, 0x1234),
		Inst(LDnnHL, 0x9000),
		Inst(LDDEnn, 0),
		[]byte{PrefixED, LDDEmem, 0x00, 0x90},
		Inst(LDHLmem, 0x9000),
		Inst(LDnnA, 0xA000),
		[]byte{HALT},
	)...)
	c.A = 0x5A
	run(t, c)
	if got := c.Read16(0x9000); got != 0x1234 {
		t.Errorf("LD (nn),HL: expected 0x1234, got 0x%04X", got)
	}
	if c.DE() != 0x1234 || c.HL() != 0x1234 {
		t.Errorf("reload: expected DE=HL=0x1234, got DE=0x%04X HL=0x%04X", c.DE(), c.HL())
	}
	if mem[0xA000] != 0x5A {
		t.Errorf("LD (nn),A: expected 0x5A, got 0x%02X", mem[0xA000])
	}
}

func TestArithmetic(t *testing.T) {
	tests := []struct {
		name   string
		code   []byte
		wantHL uint16
		wantC  bool
		wantZ  bool
	}{
		{
			name:   "AddNoCarry",
			code:   cat(Inst(LDHLnn, 1000), Inst(LDDEnn, 234), []byte{ADDHLDE, HALT}),
			wantHL: 1234,
		},
		{
			name:   "AddCarry",
			code:   cat(Inst(LDHLnn, 0xFFFF), Inst(LDDEnn, 2), []byte{ADDHLDE, HALT}),
			wantHL: 1,
			wantC:  true,
		},
		{
			name:   "Double",
			code:   cat(Inst(LDHLnn, 0x0101), []byte{ADDHLHL, HALT}),
			wantHL: 0x0202,
		},
		{
			name:   "SubtractZero",
			code:   cat(Inst(LDHLnn, 7), Inst(LDDEnn, 7), []byte{ORA, PrefixED, SBCHLDE, HALT}),
			wantHL: 0,
			wantZ:  true,
		},
		{
			name:   "SubtractBorrow",
			code:   cat(Inst(LDHLnn, 3), Inst(LDDEnn, 5), []byte{ORA, PrefixED, SBCHLDE, HALT}),
			wantHL: 0xFFFE,
			wantC:  true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := load(tt.code...)
			run(t, c)
			if c.HL() != tt.wantHL {
				t.Errorf("HL: expected 0x%04X, got 0x%04X", tt.wantHL, c.HL())
			}
			if c.FC != tt.wantC {
				t.Errorf("carry: expected %v, got %v", tt.wantC, c.FC)
			}
			if tt.wantZ && !c.FZ {
				t.Errorf("expected Z set")
			}
		})
	}
}

func TestStackAndCalls(t *testing.T) {
	// 0: CALL 8 ; HALT ... 8: PUSH HL ; POP DE ; RET
	code := make([]byte, 12)
	copy(code, Inst(CALLnn, 8))
	code[3] = HALT
	copy(code[8:], []byte{PUSHHL, POPDE, RET})
	c, _ := load(code...)
	c.SetHL(0xBEEF)
	run(t, c)
	if c.DE() != 0xBEEF {
		t.Errorf("PUSH/POP: expected DE=0xBEEF, got 0x%04X", c.DE())
	}
	if c.SP != 0xF380 {
		t.Errorf("stack not unwound: SP=0x%04X", c.SP)
	}
	if c.PC != 4 {
		t.Errorf("expected to halt after the call, PC=0x%04X", c.PC)
	}
}

func TestConditionalJumps(t *testing.T) {
	// LD A,0 ; OR A ; JR Z,+2 ; LD A,1 (skipped) ; JP NZ,0 ; HALT
	code := cat([]byte{LDAn, 0, ORA, Z.JR(), 2, LDAn, 1}, Inst(NZ.JP(), 0), []byte{HALT})
	c, _ := load(code...)
	run(t, c)
	if c.A != 0 {
		t.Errorf("JR Z not taken: A=%d", c.A)
	}
	if !c.Halted {
		t.Errorf("expected halt")
	}
}

func TestCondHelpers(t *testing.T) {
	for cc := NZ; cc <= C; cc++ {
		back, ok := CondFromJP(cc.JP())
		if !ok || back != cc {
			t.Errorf("CondFromJP(%s.JP()): got %v, %v", cc, back, ok)
		}
	}
	if Z.Not() != NZ || NC.Not() != C {
		t.Errorf("Not: unexpected mapping")
	}
	if _, ok := CondFromJP(JPnn); ok {
		t.Errorf("JP nn is not conditional")
	}
}

func TestBitOps(t *testing.T) {
	c, _ := load(LDBn, 0xC1, PrefixCB, RES7B, LDAB, RLCA, PrefixED, NEG, HALT)
	run(t, c)
	if c.B != 0x41 {
		t.Errorf("RES 7,B: expected 0x41, got 0x%02X", c.B)
	}
	// RLCA(0x41) = 0x82, NEG = 0x7E
	if c.A != 0x7E || !c.FC {
		t.Errorf("RLCA/NEG: expected A=0x7E with carry, got 0x%02X carry=%v", c.A, c.FC)
	}
}

func TestTraps(t *testing.T) {
	c, _ := load(cat(Inst(CALLnn, 0x4000), []byte{HALT})...)
	called := false
	c.Traps[0x4000] = func(c *CPU) error {
		called = true
		c.SetHL(42)
		c.Ret()
		return nil
	}
	run(t, c)
	if !called || c.HL() != 42 {
		t.Errorf("trap not run: called=%v HL=%d", called, c.HL())
	}

	boom := errors.New("boom")
	c, _ = load(cat(Inst(CALLnn, 0x4000), []byte{HALT})...)
	c.Traps[0x4000] = func(*CPU) error { return boom }
	if err := c.Run(100); !errors.Is(err, boom) {
		t.Errorf("expected trap error, got %v", err)
	}
}

func TestErrors(t *testing.T) {
	c, _ := load(0xDD)
	if err := c.Run(10); err == nil {
		t.Errorf("expected unsupported opcode error")
	}
	c, _ = load(JR, 0xFE)
	if err := c.Run(50); !errors.Is(err, ErrStepLimit) {
		t.Errorf("expected step limit, got %v", err)
	}
}
