package target

import (
	"fmt"
	"math"
)

// Float is the runtime float format: one exponent/sign byte and a 16-bit
// mantissa. Exp bit 7 is the sign, bits 0-6 the exponent biased by 64; the
// mantissa is normalized so bit 15 is set for every non-zero value.
// The value is Mant/65536 * 2^(exp-64). Zero is all bits clear.
type Float struct {
	Exp  byte
	Mant uint16
}

const (
	floatBias   = 64
	floatSign   = 0x80
	floatExpMax = 0x7F
)

// EncodeFloat converts f to the runtime format. Values too small to
// represent become zero; values too large are an error.
func EncodeFloat(f float64) (Float, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Float{}, fmt.Errorf("float %v cannot be represented", f)
	}
	if f == 0 {
		return Float{}, nil
	}
	var sign byte
	if f < 0 {
		sign = floatSign
		f = -f
	}
	frac, exp := math.Frexp(f)
	mant := math.Round(frac * 65536)
	if mant >= 65536 {
		mant = 32768
		exp++
	}
	e := exp + floatBias
	if e <= 0 {
		return Float{}, nil
	}
	if e > floatExpMax {
		return Float{}, fmt.Errorf("float %v out of range", f)
	}
	return Float{Exp: sign | byte(e), Mant: uint16(mant)}, nil
}

// Value converts the runtime format back to a float64.
func (f Float) Value() float64 {
	if f.Mant == 0 {
		return 0
	}
	v := math.Ldexp(float64(f.Mant)/65536, int(f.Exp&floatExpMax)-floatBias)
	if f.Exp&floatSign != 0 {
		return -v
	}
	return v
}

// Bytes returns the in-memory layout: exponent, mantissa low, mantissa high.
func (f Float) Bytes() []byte {
	return []byte{f.Exp, byte(f.Mant), byte(f.Mant >> 8)}
}

// FloatFromBytes decodes the in-memory layout produced by Bytes.
func FloatFromBytes(b []byte) Float {
	return Float{Exp: b[0], Mant: uint16(b[1]) | uint16(b[2])<<8}
}
