package asm

import (
	"fmt"
	"io"
	"strings"

	"msxbasrom/pkg/compiler"
	"msxbasrom/pkg/target"
)

// Block is one range of the compiled image as the CPU sees it.
type Block struct {
	Name  string
	Bank  int
	Addr  uint16
	Code  bool
	Bytes []byte
}

// Blocks cuts the linked banks of res into one block per range.
func Blocks(res *compiler.Result, m target.Mapper) []Block {
	blocks := make([]Block, 0, len(res.Locations))
	for _, l := range res.Locations {
		window := m.FirstBank + (l.Bank-m.FirstBank)/m.BanksPerWindow*m.BanksPerWindow
		b := make([]byte, l.Length)
		for i := range b {
			off := int(l.Address) - int(m.WindowBase) + i
			bank := window + off/m.BankSize
			if bank < len(res.Banks) {
				b[i] = res.Banks[bank][off%m.BankSize]
			}
		}
		blocks = append(blocks, Block{Name: l.Name, Bank: l.Bank, Addr: l.Address, Code: l.Code, Bytes: b})
	}
	return blocks
}

// Names maps the address of every code block to its name. In banked images
// one address exists once per window, so labels are only used for plain
// images.
func Names(blocks []Block) map[uint16]string {
	names := make(map[uint16]string)
	for _, b := range blocks {
		if b.Code {
			if _, dup := names[b.Addr]; dup {
				return nil
			}
			names[b.Addr] = b.Name
		}
	}
	return names
}

const bytesPerRow = 8

// WriteListing prints every block: code as disassembly, data as DB rows.
func WriteListing(w io.Writer, blocks []Block, names map[uint16]string) error {
	d := &Disassembler{Names: names}
	for _, b := range blocks {
		if _, err := fmt.Fprintf(w, "; %s (bank %d)\n", b.Name, b.Bank); err != nil {
			return err
		}
		if !b.Code {
			for off := 0; off < len(b.Bytes); off += bytesPerRow {
				row := b.Bytes[off:min(off+bytesPerRow, len(b.Bytes))]
				hex := make([]string, len(row))
				for i, v := range row {
					hex[i] = fmt.Sprintf("0x%02X", v)
				}
				if _, err := fmt.Fprintf(w, "%04X  DB %s\n", int(b.Addr)+off, strings.Join(hex, ",")); err != nil {
					return err
				}
			}
			continue
		}
		for _, in := range d.Disassemble(b.Bytes, b.Addr) {
			if _, err := fmt.Fprintf(w, "%04X  %-12s  %s\n", in.Addr, fmt.Sprintf("% X", in.Bytes), in.Text); err != nil {
				return err
			}
		}
	}
	return nil
}
