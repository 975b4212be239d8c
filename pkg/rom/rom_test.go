package rom

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"msxbasrom/pkg/target"
)

var mapper = target.Mapper{BankSize: 16, BanksPerWindow: 2, WindowBase: 0x8000, FirstBank: 2, Granularity: 1, MaxBanks: 8}

func banks(n int) [][]byte {
	out := make([][]byte, n)
	for i := range out {
		out[i] = bytes.Repeat([]byte{byte(i)}, mapper.BankSize)
	}
	return out
}

func TestBuild(t *testing.T) {
	img, err := Build(mapper, []byte{'A', 'B'}, banks(4))
	if err != nil {
		t.Fatal(err)
	}
	if len(img) != 4*mapper.BankSize {
		t.Fatalf("expected %d bytes, got %d", 4*mapper.BankSize, len(img))
	}
	reserved := make([]byte, 2*mapper.BankSize)
	copy(reserved, "AB")
	if !bytes.Equal(img[:32], reserved) {
		t.Errorf("kernel banks: got % X", img[:32])
	}
	if img[32] != 2 || img[63] != 3 {
		t.Errorf("program banks out of place: % X", img[32:])
	}
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name   string
		kernel []byte
		banks  [][]byte
	}{
		{"Kernel Too Large", make([]byte, 33), banks(3)},
		{"Missing Reserved Banks", nil, banks(1)},
		{"Short Bank", nil, append(banks(2), []byte{1})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Build(mapper, tt.kernel, tt.banks); err == nil {
				t.Errorf("expected an error")
			}
		})
	}
}

func TestWriteFileAndSplit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prog.rom")
	in := banks(3)
	n, err := WriteFile(path, mapper, nil, in)
	if err != nil {
		t.Fatal(err)
	}
	img, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if n != len(img) {
		t.Errorf("WriteFile reported %d bytes, file has %d", n, len(img))
	}
	out, err := Split(mapper, img)
	if err != nil {
		t.Fatal(err)
	}
	in[0], in[1] = make([]byte, 16), make([]byte, 16)
	if !reflect.DeepEqual(out, in) {
		t.Errorf("split banks differ from the written ones")
	}
	if _, err := Split(mapper, img[:5]); err == nil {
		t.Errorf("split of a partial bank should fail")
	}
}
