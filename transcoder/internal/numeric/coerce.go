package numeric

import (
	"math"
	"math/big"
)

// Int converts value to a signed integer of the given width (8, 16, 32 or
// 64). It reports false if value is not an integral number or does not fit.
func Int(value any, bits int) (int64, bool) {
	var v int64
	switch x := value.(type) {
	case int:
		v = int64(x)
	case int8:
		v = int64(x)
	case int16:
		v = int64(x)
	case int32:
		v = int64(x)
	case int64:
		v = x
	case uint:
		if uint64(x) > math.MaxInt64 {
			return 0, false
		}
		v = int64(x)
	case uint8:
		v = int64(x)
	case uint16:
		v = int64(x)
	case uint32:
		v = int64(x)
	case uint64:
		if x > math.MaxInt64 {
			return 0, false
		}
		v = int64(x)
	case float32:
		return floatToInt(float64(x), bits)
	case float64:
		return floatToInt(x, bits)
	case *big.Int:
		if x == nil || !x.IsInt64() {
			return 0, false
		}
		v = x.Int64()
	default:
		return 0, false
	}
	return v, FitsInt(v, bits)
}

// Uint converts value to an unsigned integer of the given width. Negative
// values never fit.
func Uint(value any, bits int) (uint64, bool) {
	var v uint64
	switch x := value.(type) {
	case uint:
		v = uint64(x)
	case uint8:
		v = uint64(x)
	case uint16:
		v = uint64(x)
	case uint32:
		v = uint64(x)
	case uint64:
		v = x
	case int, int8, int16, int32, int64:
		i, _ := Int(x, 64)
		if i < 0 {
			return 0, false
		}
		v = uint64(i)
	case float32:
		return floatToUint(float64(x), bits)
	case float64:
		return floatToUint(x, bits)
	case *big.Int:
		if x == nil || !x.IsUint64() {
			return 0, false
		}
		v = x.Uint64()
	default:
		return 0, false
	}
	return v, FitsUint(v, bits)
}

// FitsInt reports whether v is representable as a signed integer of bits.
func FitsInt(v int64, bits int) bool {
	if bits >= 64 {
		return true
	}
	limit := int64(1) << (bits - 1)
	return v >= -limit && v < limit
}

// FitsUint reports whether v is representable as an unsigned integer of bits.
func FitsUint(v uint64, bits int) bool {
	if bits >= 64 {
		return true
	}
	return v < uint64(1)<<bits
}

// FitsFloat reports whether f is representable as a float of bits without
// becoming infinite. Infinities and NaN are representable at any width.
func FitsFloat(f float64, bits int) bool {
	if bits >= 64 || math.IsInf(f, 0) || math.IsNaN(f) {
		return true
	}
	return math.Abs(f) <= math.MaxFloat32
}

func floatToInt(f float64, bits int) (int64, bool) {
	// 2^63 is exactly representable; anything at or above it overflows int64.
	if f != math.Trunc(f) || f < -math.Exp2(63) || f >= math.Exp2(63) {
		return 0, false
	}
	v := int64(f)
	return v, FitsInt(v, bits)
}

func floatToUint(f float64, bits int) (uint64, bool) {
	if f != math.Trunc(f) || f < 0 || f >= math.Exp2(64) {
		return 0, false
	}
	v := uint64(f)
	return v, FitsUint(v, bits)
}

// ValidChar rejects surrogates (0xD800-0xDFFF) and values >= 0x110000.
func ValidChar(r rune) bool {
	if r >= 0xD800 && r <= 0xDFFF {
		return false
	}
	return r >= 0 && r < 0x110000
}
