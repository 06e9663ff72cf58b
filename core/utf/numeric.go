// Package utf provides the byte-level helpers the register machine shares:
// record varints, text collations and SQL numeric text scanning.
package utf

import (
	"math"
	"strconv"
)

// IsSpace returns true if the byte is an ASCII whitespace character.
func IsSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\v' || c == '\f'
}

// IsDigit returns true if the byte is an ASCII digit.
func IsDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// ParseInt scans a decimal integer from z. Leading and trailing whitespace
// is allowed. The returned value is the longest numeric prefix, clamped to
// the int64 range on overflow. ok is true only when z holds nothing but a
// well-formed integer that fits in 64 bits.
func ParseInt(z []byte) (v int64, ok bool) {
	i := 0
	for i < len(z) && IsSpace(z[i]) {
		i++
	}
	neg := false
	if i < len(z) && (z[i] == '-' || z[i] == '+') {
		neg = z[i] == '-'
		i++
	}
	start := i
	var u uint64
	overflow := false
	for i < len(z) && IsDigit(z[i]) {
		d := uint64(z[i] - '0')
		if u > (math.MaxUint64-d)/10 {
			overflow = true
		} else {
			u = u*10 + d
		}
		i++
	}
	digits := i - start
	for i < len(z) && IsSpace(z[i]) {
		i++
	}

	switch {
	case overflow || (!neg && u > math.MaxInt64) || (neg && u > 1<<63):
		if neg {
			return math.MinInt64, false
		}
		return math.MaxInt64, false
	case neg:
		v = -int64(u)
	default:
		v = int64(u)
	}
	return v, digits > 0 && i == len(z)
}

// ParseFloat scans a decimal real number from z. The value of the longest
// numeric prefix is returned, or 0 if there is none. ok is true only when z
// holds nothing but a well-formed number with optional surrounding
// whitespace.
func ParseFloat(z []byte) (r float64, ok bool) {
	i := 0
	for i < len(z) && IsSpace(z[i]) {
		i++
	}
	start := i
	if i < len(z) && (z[i] == '-' || z[i] == '+') {
		i++
	}
	mantissa := 0
	for i < len(z) && IsDigit(z[i]) {
		i++
		mantissa++
	}
	if i < len(z) && z[i] == '.' {
		i++
		for i < len(z) && IsDigit(z[i]) {
			i++
			mantissa++
		}
	}
	if mantissa == 0 {
		return 0, false
	}
	end := i
	if i < len(z) && (z[i] == 'e' || z[i] == 'E') {
		j := i + 1
		if j < len(z) && (z[j] == '-' || z[j] == '+') {
			j++
		}
		if j < len(z) && IsDigit(z[j]) {
			for j < len(z) && IsDigit(z[j]) {
				j++
			}
			end = j
		}
	}
	r, err := strconv.ParseFloat(string(z[start:end]), 64)
	if err != nil && r == 0 && !math.IsInf(r, 0) {
		// Underflow reports ErrRange with a zero result, which is still the
		// right value.
		r = 0
	}
	i = end
	for i < len(z) && IsSpace(z[i]) {
		i++
	}
	return r, i == len(z)
}

// FormatReal renders a real the way SQL text conversion does: 15
// significant digits, always with a decimal point or exponent.
func FormatReal(r float64) string {
	switch {
	case math.IsInf(r, 1):
		return "Inf"
	case math.IsInf(r, -1):
		return "-Inf"
	case math.IsNaN(r):
		return "NaN"
	}
	s := strconv.FormatFloat(r, 'g', 15, 64)
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '.':
			return s
		case 'e':
			return s[:i] + ".0" + s[i:]
		}
	}
	return s + ".0"
}
