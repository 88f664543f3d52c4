package numeric

import (
	"math"
	"math/big"
	"testing"
)

func TestInt(t *testing.T) {
	tests := []struct {
		input  any
		name   string
		bits   int
		want   int64
		wantOK bool
	}{
		{int32(100), "int32 in s32", 32, 100, true},
		{int64(math.MaxInt32), "int64 max s32", 32, math.MaxInt32, true},
		{int64(math.MaxInt32 + 1), "int64 above s32", 32, 0, false},
		{int64(math.MinInt32), "int64 min s32", 32, math.MinInt32, true},
		{int64(math.MinInt32 - 1), "int64 below s32", 32, 0, false},
		{uint64(1) << 63, "2^63 in s32", 32, 0, false},
		{uint64(1) << 63, "2^63 in s64", 64, 0, false},
		{uint64(math.MaxInt64), "max int64 in s64", 64, math.MaxInt64, true},
		{int8(-128), "int8 min s8", 8, -128, true},
		{int(128), "int 128 s8", 8, 0, false},
		{uint16(32767), "uint16 s16", 16, 32767, true},
		{float64(42), "float64 integral", 32, 42, true},
		{float64(3.5), "float64 fractional", 32, 0, false},
		{math.Exp2(63), "float64 2^63", 64, 0, false},
		{big.NewInt(-5), "big small", 8, -5, true},
		{new(big.Int).Lsh(big.NewInt(1), 70), "big huge", 64, 0, false},
		{"12", "string", 32, 0, false},
		{nil, "nil", 32, 0, false},
		{true, "bool", 32, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Int(tt.input, tt.bits)
			if ok != tt.wantOK {
				t.Fatalf("Int(%v, %d) ok = %v, want %v", tt.input, tt.bits, ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("Int(%v, %d) = %d, want %d", tt.input, tt.bits, got, tt.want)
			}
		})
	}
}

func TestUint(t *testing.T) {
	tests := []struct {
		input  any
		name   string
		bits   int
		want   uint64
		wantOK bool
	}{
		{uint8(255), "uint8 max u8", 8, 255, true},
		{int(256), "int 256 u8", 8, 0, false},
		{int(-1), "negative", 32, 0, false},
		{int64(math.MaxUint32), "max u32", 32, math.MaxUint32, true},
		{uint64(math.MaxUint64), "max u64", 64, math.MaxUint64, true},
		{float64(-1), "float negative", 32, 0, false},
		{float64(7), "float integral", 16, 7, true},
		{big.NewInt(-1), "big negative", 64, 0, false},
		{"x", "string", 32, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Uint(tt.input, tt.bits)
			if ok != tt.wantOK {
				t.Fatalf("Uint(%v, %d) ok = %v, want %v", tt.input, tt.bits, ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("Uint(%v, %d) = %d, want %d", tt.input, tt.bits, got, tt.want)
			}
		})
	}
}

func TestValidChar(t *testing.T) {
	tests := []struct {
		r    rune
		want bool
	}{
		{'a', true},
		{0x10FFFF, true},
		{0xD800, false},
		{0xDFFF, false},
		{0x110000, false},
		{-1, false},
	}
	for _, tt := range tests {
		if got := ValidChar(tt.r); got != tt.want {
			t.Errorf("ValidChar(%#x) = %v, want %v", tt.r, got, tt.want)
		}
	}
}

func TestFitsFloat(t *testing.T) {
	tests := []struct {
		name string
		f    float64
		bits int
		want bool
	}{
		{"small f32", 1.5, 32, true},
		{"max f32", math.MaxFloat32, 32, true},
		{"above f32", 1e300, 32, false},
		{"below f32", -1e300, 32, false},
		{"inf f32", math.Inf(1), 32, true},
		{"nan f32", math.NaN(), 32, true},
		{"large f64", 1e300, 64, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FitsFloat(tt.f, tt.bits); got != tt.want {
				t.Errorf("FitsFloat(%v, %d) = %v, want %v", tt.f, tt.bits, got, tt.want)
			}
		})
	}
}
