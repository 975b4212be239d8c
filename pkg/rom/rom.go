// Package rom serializes compiled banks into a cartridge file.
package rom

import (
	"fmt"
	"io"
	"os"

	"msxbasrom/pkg/target"
)

// Build returns the cartridge image: the kernel (padded to the reserved
// banks, or zeros when kernel is nil) followed by the program banks.
func Build(m target.Mapper, kernel []byte, banks [][]byte) ([]byte, error) {
	reserved := m.FirstBank * m.BankSize
	if len(kernel) > reserved {
		return nil, fmt.Errorf("kernel is %d bytes, %d banks hold %d", len(kernel), m.FirstBank, reserved)
	}
	if len(banks) < m.FirstBank {
		return nil, fmt.Errorf("image has %d banks, expected at least %d", len(banks), m.FirstBank)
	}
	out := make([]byte, 0, len(banks)*m.BankSize)
	out = append(out, kernel...)
	out = append(out, make([]byte, reserved-len(kernel))...)
	for i, b := range banks[m.FirstBank:] {
		if len(b) != m.BankSize {
			return nil, fmt.Errorf("bank %d is %d bytes, want %d", m.FirstBank+i, len(b), m.BankSize)
		}
		out = append(out, b...)
	}
	return out, nil
}

// Write writes the cartridge image to w.
func Write(w io.Writer, m target.Mapper, kernel []byte, banks [][]byte) (int, error) {
	img, err := Build(m, kernel, banks)
	if err != nil {
		return 0, err
	}
	return w.Write(img)
}

// WriteFile writes the cartridge image to path.
func WriteFile(path string, m target.Mapper, kernel []byte, banks [][]byte) (int, error) {
	img, err := Build(m, kernel, banks)
	if err != nil {
		return 0, err
	}
	return len(img), os.WriteFile(path, img, 0o644)
}

// Split cuts a cartridge image back into banks, for running it.
func Split(m target.Mapper, img []byte) ([][]byte, error) {
	if len(img)%m.BankSize != 0 {
		return nil, fmt.Errorf("image is %d bytes, not a multiple of %d", len(img), m.BankSize)
	}
	banks := make([][]byte, len(img)/m.BankSize)
	for i := range banks {
		banks[i] = img[i*m.BankSize : (i+1)*m.BankSize]
	}
	return banks, nil
}
