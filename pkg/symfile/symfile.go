// Package symfile writes the addresses of compiled lines for debuggers.
package symfile

import (
	"fmt"
	"io"
	"strings"
)

// Format selects the output syntax.
type Format int

const (
	None  Format = iota
	Plain        // NAME EQU 0xADDR ; bank N
	NoICE        // DEF NAME ADDR
)

// ParseFormat maps a flag value to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return None, nil
	case "plain":
		return Plain, nil
	case "noice":
		return NoICE, nil
	}
	return None, fmt.Errorf("unknown symbol format %q (want none, plain or noice)", s)
}

// Entry is one exported address.
type Entry struct {
	Name    string
	Bank    int
	Address uint16
}

// Symbol turns a range name such as "line 10" into an assembler-safe label.
func Symbol(name string) string {
	var sb strings.Builder
	for _, r := range strings.ToUpper(name) {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	return sb.String()
}

// Write prints entries in the given format. None writes nothing.
func Write(w io.Writer, f Format, entries []Entry) error {
	for _, e := range entries {
		var err error
		switch f {
		case None:
			return nil
		case Plain:
			_, err = fmt.Fprintf(w, "%-16s EQU 0x%04X ; bank %d\n", Symbol(e.Name), e.Address, e.Bank)
		case NoICE:
			_, err = fmt.Fprintf(w, "DEF %s %04X\n", Symbol(e.Name), e.Address)
		default:
			return fmt.Errorf("unknown symbol format %d", f)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
