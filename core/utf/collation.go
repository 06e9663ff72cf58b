package utf

import (
	"bytes"
	"strings"
)

// CollationType represents the collation sequence type.
type CollationType int

const (
	// BINARY performs byte-by-byte comparison
	BINARY CollationType = iota

	// NOCASE folds ASCII A-Z to a-z before comparing
	NOCASE

	// RTRIM ignores trailing spaces during comparison
	RTRIM
)

// Collation names a text comparison function.
type Collation struct {
	Type CollationType
	Name string
}

// Binary is the default collation.
var Binary = Collation{Type: BINARY, Name: "BINARY"}

// BuiltinCollations are the collations available to programs by name.
var BuiltinCollations = map[string]Collation{
	"BINARY": Binary,
	"NOCASE": {Type: NOCASE, Name: "NOCASE"},
	"RTRIM":  {Type: RTRIM, Name: "RTRIM"},
}

// LookupCollation finds a builtin collation by case-insensitive name.
func LookupCollation(name string) (Collation, bool) {
	c, ok := BuiltinCollations[strings.ToUpper(name)]
	return c, ok
}

// Compare compares two byte strings. The result is negative, zero or
// positive as a sorts before, equal to or after b.
func (c Collation) Compare(a, b []byte) int {
	switch c.Type {
	case NOCASE:
		return compareNoCase(a, b)
	case RTRIM:
		return bytes.Compare(rtrimSpaces(a), rtrimSpaces(b))
	default:
		return bytes.Compare(a, b)
	}
}

// String returns the collation name.
func (c Collation) String() string {
	if c.Name == "" {
		return "BINARY"
	}
	return c.Name
}

// UpperToLower maps ASCII uppercase letters to lowercase.
var UpperToLower [256]byte

func init() {
	for i := 0; i < 256; i++ {
		UpperToLower[i] = byte(i)
	}
	for i := 'A'; i <= 'Z'; i++ {
		UpperToLower[i] = byte(i - 'A' + 'a')
	}
}

func compareNoCase(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		ca, cb := UpperToLower[a[i]], UpperToLower[b[i]]
		if ca != cb {
			if ca < cb {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	}
	return 0
}

func rtrimSpaces(s []byte) []byte {
	i := len(s)
	for i > 0 && s[i-1] == ' ' {
		i--
	}
	return s[:i]
}
