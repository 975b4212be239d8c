package emit

import (
	"bytes"

	"msxbasrom/pkg/symtab"
	"msxbasrom/pkg/z80"
)

// inst is one recorded instruction. b aliases the buffer.
type inst struct {
	start int
	b     []byte
}

// pattern rewrites the last n instructions. It returns the replacement
// instructions and, for every fixup operand that survives, its old offset
// relative to the first matched instruction mapped to its new one. Operands
// missing from moves are dropped.
type pattern struct {
	name    string
	n       int
	rewrite func(e *Emitter, in []inst) (repl [][]byte, moves map[int]int, ok bool)
}

// Longer patterns first: a reload that completes a 4-instruction idiom must
// not be consumed by a 3-instruction one.
var patterns = []pattern{
	{name: "spill-load-swap-reload", n: 4, rewrite: spillSwapReload},
	{name: "spill-load-reload", n: 3, rewrite: spillLoadReload},
	{name: "store-reload", n: 2, rewrite: storeReload},
	{name: "push-pop", n: 2, rewrite: pushPop},
}

func is(in inst, op ...byte) bool {
	return bytes.Equal(in.b, op)
}

func isLoadHL(in inst) bool {
	return len(in.b) == 3 && (in.b[0] == z80.LDHLnn || in.b[0] == z80.LDHLmem)
}

// PUSH HL ; POP HL
func pushPop(e *Emitter, in []inst) ([][]byte, map[int]int, bool) {
	if is(in[0], z80.PUSHHL) && is(in[1], z80.POPHL) {
		return nil, nil, true
	}
	return nil, nil, false
}

// PUSH HL ; LD HL,nn ; EX DE,HL ; POP HL  =>  LD DE,nn
// PUSH HL ; LD HL,(nn) ; EX DE,HL ; POP HL  =>  LD DE,(nn)
func spillSwapReload(e *Emitter, in []inst) ([][]byte, map[int]int, bool) {
	if !is(in[0], z80.PUSHHL) || !isLoadHL(in[1]) || !is(in[2], z80.EXDEHL) || !is(in[3], z80.POPHL) {
		return nil, nil, false
	}
	operand := in[1].b[1:3]
	if in[1].b[0] == z80.LDHLnn {
		return [][]byte{{z80.LDDEnn, operand[0], operand[1]}}, map[int]int{2: 1}, true
	}
	return [][]byte{{z80.PrefixED, z80.LDDEmem, operand[0], operand[1]}}, map[int]int{2: 2}, true
}

// PUSH HL ; LD HL,nn ; POP DE  =>  EX DE,HL ; LD HL,nn
func spillLoadReload(e *Emitter, in []inst) ([][]byte, map[int]int, bool) {
	if !is(in[0], z80.PUSHHL) || !isLoadHL(in[1]) || !is(in[2], z80.POPDE) {
		return nil, nil, false
	}
	load := append([]byte{}, in[1].b...)
	return [][]byte{{z80.EXDEHL}, load}, map[int]int{2: 2}, true
}

// LD (nn),HL ; LD HL,(nn)  =>  LD (nn),HL
func storeReload(e *Emitter, in []inst) ([][]byte, map[int]int, bool) {
	if len(in[0].b) != 3 || in[0].b[0] != z80.LDnnHL || len(in[1].b) != 3 || in[1].b[0] != z80.LDHLmem {
		return nil, nil, false
	}
	if !e.sameOperand(in[0].start+1, in[1].start+1) {
		return nil, nil, false
	}
	store := append([]byte{}, in[0].b...)
	return [][]byte{store}, map[int]int{1: 1}, true
}

// sameOperand reports whether the operands at a and b denote the same address.
func (e *Emitter) sameOperand(a, b int) bool {
	fa, fb := e.fixups.At(a), e.fixups.At(b)
	if len(fa) != len(fb) || len(fa) > 1 {
		return false
	}
	if len(fa) == 0 {
		return bytes.Equal(e.buf[a:a+2], e.buf[b:b+2])
	}
	return fa[0].Symbol == fb[0].Symbol && fa[0].Step == fb[0].Step &&
		fa[0].Kind == symtab.KindData && fb[0].Kind == symtab.KindData
}

// last returns the n most recent instructions, oldest first.
func (e *Emitter) last(n int) ([]inst, bool) {
	if len(e.history) < n {
		return nil, false
	}
	starts := e.history[len(e.history)-n:]
	out := make([]inst, n)
	for i, s := range starts {
		end := len(e.buf)
		if i+1 < n {
			end = starts[i+1]
		}
		out[i] = inst{start: s, b: e.buf[s:end]}
	}
	return out, true
}

func (e *Emitter) peephole() {
	if !e.optimize {
		return
	}
	for e.applyOne() {
	}
}

func (e *Emitter) applyOne() bool {
	for _, p := range patterns {
		in, ok := e.last(p.n)
		if !ok {
			continue
		}
		repl, moves, ok := p.rewrite(e, in)
		if !ok {
			continue
		}
		e.replace(p.n, in[0].start, repl, moves)
		return true
	}
	return false
}

// replace undoes the last n instructions starting at start and emits repl
// in their place. Fixups are moved in the same step so no caller ever sees
// the buffer and the registry disagree.
func (e *Emitter) replace(n, start int, repl [][]byte, moves map[int]int) {
	oldLen := len(e.buf) - start
	var flat []byte
	for _, r := range repl {
		flat = append(flat, r...)
	}
	shrink := oldLen - len(flat)

	e.fixups.Remap(start, func(off int) (int, bool) {
		if off < start+oldLen {
			rel, ok := moves[off-start]
			return start + rel, ok
		}
		return off - shrink, true
	})
	e.buf = append(e.buf[:start], flat...)

	e.history = e.history[:len(e.history)-n]
	pos := start
	for _, r := range repl {
		e.record(pos)
		pos += len(r)
	}
	e.rewrites++
}
