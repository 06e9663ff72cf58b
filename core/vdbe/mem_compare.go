package vdbe

import (
	"bytes"

	"github.com/FocuswithJustin/vdbecore/core/utf"
)

// Compare compares m with other. NULL sorts before numbers, numbers before
// text and text before blobs. Integers compare exactly, mixed numbers as
// reals, text with coll and blobs byte by byte including zero padding.
func (m *Mem) Compare(other *Mem, coll utf.Collation) int {
	f1 := m.Flags()
	f2 := other.Flags()
	combined := f1 | f2

	if combined&MemNull != 0 {
		return int(f2&MemNull) - int(f1&MemNull)
	}

	if combined&(MemInt|MemReal) != 0 {
		if f1&f2&MemInt != 0 {
			return compareInt(m.intPayload(), other.intPayload())
		}
		if f1&(MemInt|MemReal) == 0 {
			return 1
		}
		if f2&(MemInt|MemReal) == 0 {
			return -1
		}
		return compareReal(m.RealValue(), other.RealValue())
	}

	if combined&MemStr != 0 {
		if f1&MemStr == 0 {
			return 1
		}
		if f2&MemStr == 0 {
			return -1
		}
		return coll.Compare(m.z, other.z)
	}

	return compareBlob(m.z, m.zeroTail(f1), other.z, other.zeroTail(f2))
}

func (m *Mem) zeroTail(f MemFlags) int {
	if f&MemZero != 0 {
		return m.nZero
	}
	return 0
}

func compareInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compareReal(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// compareBlob compares a followed by za zero bytes with b followed by zb
// zero bytes.
func compareBlob(a []byte, za int, b []byte, zb int) int {
	if za == 0 && zb == 0 {
		return bytes.Compare(a, b)
	}
	la, lb := len(a)+za, len(b)+zb
	n := la
	if lb < n {
		n = lb
	}
	for i := 0; i < n; i++ {
		var ca, cb byte
		if i < len(a) {
			ca = a[i]
		}
		if i < len(b) {
			cb = b[i]
		}
		if ca != cb {
			if ca < cb {
				return -1
			}
			return 1
		}
	}
	return compareInt(int64(la), int64(lb))
}
