package vdbe

import (
	"math"
	"strconv"

	"github.com/FocuswithJustin/vdbecore/core/errors"
	"github.com/FocuswithJustin/vdbecore/core/utf"
)

// Affinity is the type preference of a column or expression. Every value
// at or above AffNumeric is numeric.
type Affinity byte

// Column affinity types
const (
	AffNone    Affinity = 'A' // No preference, also spelled BLOB
	AffText    Affinity = 'B'
	AffNumeric Affinity = 'C'
	AffInteger Affinity = 'D'
	AffReal    Affinity = 'E'
)

// String returns the SQL name of the affinity.
func (a Affinity) String() string {
	switch a {
	case AffNone:
		return "BLOB"
	case AffText:
		return "TEXT"
	case AffNumeric:
		return "NUMERIC"
	case AffInteger:
		return "INTEGER"
	case AffReal:
		return "REAL"
	}
	return "AFF(" + strconv.Itoa(int(a)) + ")"
}

// IsNumeric reports whether the affinity pushes text toward numbers.
func (a Affinity) IsNumeric() bool {
	return a >= AffNumeric
}

// realToInt truncates toward zero, saturating at the int64 range.
func realToInt(r float64) int64 {
	switch {
	case math.IsNaN(r):
		return 0
	case r <= math.MinInt64:
		return math.MinInt64
	case r >= math.MaxInt64:
		return math.MaxInt64
	}
	return int64(r)
}

// IntValue returns the value as an integer. Reals are truncated, strings
// and blobs contribute their longest numeric prefix, anything else is 0.
func (m *Mem) IntValue() int64 {
	f := m.Flags()
	switch {
	case f&MemInt != 0:
		return m.intPayload()
	case f&MemReal != 0:
		return realToInt(m.realPayload())
	case f&(MemStr|MemBlob) != 0:
		v, _ := utf.ParseInt(m.z)
		return v
	}
	return 0
}

// RealValue returns the value as a real number.
func (m *Mem) RealValue() float64 {
	f := m.Flags()
	switch {
	case f&MemReal != 0:
		return m.realPayload()
	case f&MemInt != 0:
		return float64(m.intPayload())
	case f&(MemStr|MemBlob) != 0:
		r, _ := utf.ParseFloat(m.z)
		return r
	}
	return 0
}

// IntegerAffinity converts a real that holds an exact integer to MemInt.
// The extreme int64 values are excluded because a real that rounds to them
// is not exact.
func (m *Mem) IntegerAffinity() {
	r := m.realPayload()
	i := realToInt(r)
	if r == float64(i) && i > math.MinInt64 && i < math.MaxInt64 {
		m.setIntPayload(i, false)
		m.setTypeFlag(MemInt)
	}
}

// Integerify forces the value to an integer.
func (m *Mem) Integerify() {
	if m.Flags()&MemInt == 0 {
		m.setIntPayload(m.IntValue(), false)
	}
	m.setTypeFlag(MemInt)
}

// Realify forces the value to a real.
func (m *Mem) Realify() {
	m.setRealPayload(m.RealValue(), false)
	m.setTypeFlag(MemReal)
}

// Numerify converts a string or blob to the best fitting number and drops
// the text and blob representations. Numbers and NULL are left as they are.
func (m *Mem) Numerify() {
	if m.Flags()&(MemInt|MemReal|MemNull) == 0 {
		if v, ok := utf.ParseInt(m.z); ok {
			m.setIntPayload(v, false)
			m.setTypeFlag(MemInt)
		} else {
			m.setRealPayload(m.RealValue(), false)
			m.setTypeFlag(MemReal)
			m.IntegerAffinity()
		}
	}
	m.SetFlags(m.Flags() &^ (MemStr | MemBlob))
}

// numericType reports how the value would behave in arithmetic: MemInt,
// MemReal or 0 for text that is not a number. For strings and blobs the
// parsed number is left in the payload fields but the flags are untouched.
func (m *Mem) numericType() MemFlags {
	f := m.Flags()
	if f&(MemInt|MemReal) != 0 {
		return f & (MemInt | MemReal)
	}
	if f&(MemStr|MemBlob) != 0 {
		r, ok := utf.ParseFloat(m.z)
		if !ok {
			return 0
		}
		m.setRealPayload(r, false)
		if v, ok := utf.ParseInt(m.z); ok {
			m.setIntPayload(v, false)
			return MemInt
		}
		return MemReal
	}
	return 0
}

// ApplyNumericAffinity adds a numeric representation to a string that
// looks like a number. With forceInt a real holding an exact integer is
// converted to MemInt. Anything that is not purely a string is untouched.
func (m *Mem) ApplyNumericAffinity(forceInt bool) {
	f := m.Flags()
	if f&(MemStr|MemInt|MemReal) != MemStr {
		return
	}
	r, ok := utf.ParseFloat(m.z)
	if !ok {
		return
	}
	if v, ok := utf.ParseInt(m.z); ok {
		m.setIntPayload(v, false)
		m.SetFlags(f | MemInt)
		return
	}
	m.setRealPayload(r, false)
	m.SetFlags(f | MemReal)
	if forceInt {
		m.IntegerAffinity()
	}
}

// ApplyAffinity applies a column affinity. Numeric affinities turn
// numeric-looking text into numbers and prefer integers over exact reals,
// text affinity gives numbers a string form, and AffNone does nothing.
func (m *Mem) ApplyAffinity(aff Affinity) {
	f := m.Flags()
	switch {
	case aff >= AffNumeric:
		if f&MemInt != 0 {
			return
		}
		if f&MemReal != 0 {
			m.IntegerAffinity()
		} else if f&MemStr != 0 {
			m.ApplyNumericAffinity(true)
		}
	case aff == AffText:
		if f&MemStr == 0 && f&(MemInt|MemReal) != 0 {
			m.Stringify(true)
		}
	}
}

// Stringify gives a number a text representation. With force the numeric
// flags are dropped so the value becomes text only.
func (m *Mem) Stringify(force bool) {
	f := m.Flags()
	var s string
	switch {
	case f&MemInt != 0:
		s = strconv.FormatInt(m.intPayload(), 10)
	case f&MemReal != 0:
		s = utf.FormatReal(m.realPayload())
	default:
		return
	}
	m.z = []byte(s)
	m.nZero = 0
	f = f&^(MemEphem|MemStatic|MemDyn|MemZero) | MemStr | MemTerm
	if force {
		f &^= MemInt | MemReal
	}
	m.SetFlags(f)
}

// Cast converts the value to the given affinity the way CAST does. NULL
// stays NULL. A cast to AffNone is not supported.
func (m *Mem) Cast(aff Affinity) error {
	f := m.Flags()
	if f&MemNull != 0 {
		return nil
	}
	switch aff {
	case AffNone:
		return errors.NewUnsupported("cast", "conversion to BLOB affinity")
	case AffNumeric:
		m.Numerify()
	case AffInteger:
		m.Integerify()
	case AffReal:
		m.Realify()
	case AffText:
		m.ExpandBlob()
		f = m.Flags()
		m.SetFlags(f | (f&MemBlob)>>3)
		m.ApplyAffinity(AffText)
		m.SetFlags(m.Flags() &^ (MemInt | MemReal | MemBlob | MemZero))
	default:
		return errors.NewVM(errors.Misuse, "unknown affinity %d", aff)
	}
	return nil
}

// TextValue returns the value as text, giving numbers a string form in
// place. NULL yields the empty string.
func (m *Mem) TextValue() string {
	f := m.Flags()
	switch {
	case f&(MemNull|MemUndefined) != 0:
		return ""
	case f&MemStr != 0:
		return string(m.z)
	case f&MemBlob != 0:
		m.ExpandBlob()
		return string(m.z)
	}
	m.Stringify(false)
	return string(m.z)
}

// BlobValue returns the value as bytes. Numbers are stringified first.
func (m *Mem) BlobValue() []byte {
	f := m.Flags()
	switch {
	case f&(MemNull|MemUndefined) != 0:
		return nil
	case f&(MemStr|MemBlob) != 0:
		m.ExpandBlob()
		return m.z
	}
	m.Stringify(false)
	return m.z
}
