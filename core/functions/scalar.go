package functions

import (
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"
)

// RegisterScalarFunctions registers all scalar functions.
func RegisterScalarFunctions(r *Registry) {
	// String functions
	r.Register(NewScalarFunc("length", 1, lengthFunc))
	r.Register(NewScalarFunc("substr", -1, substrFunc)) // 2 or 3 args
	r.Register(NewScalarFunc("upper", 1, upperFunc))
	r.Register(NewScalarFunc("lower", 1, lowerFunc))
	r.Register(NewScalarFunc("trim", -1, trimFunc(strings.Trim)))       // 1 or 2 args
	r.Register(NewScalarFunc("ltrim", -1, trimFunc(strings.TrimLeft)))  // 1 or 2 args
	r.Register(NewScalarFunc("rtrim", -1, trimFunc(strings.TrimRight))) // 1 or 2 args
	r.Register(NewScalarFunc("replace", 3, replaceFunc))
	r.Register(NewScalarFunc("instr", 2, instrFunc))
	r.Register(NewScalarFunc("hex", 1, hexFunc))
	r.Register(NewScalarFunc("quote", 1, quoteFunc))

	// Type functions
	r.Register(NewScalarFunc("typeof", 1, typeofFunc))
	r.Register(NewScalarFunc("coalesce", -1, coalesceFunc)) // variadic
	r.Register(NewScalarFunc("ifnull", 2, ifnullFunc))
	r.Register(NewScalarFunc("nullif", 2, nullifFunc))
	r.Register(NewScalarFunc("iif", 3, iifFunc))

	// Blob functions
	r.Register(NewScalarFunc("zeroblob", 1, zeroblobFunc))

	// Pattern matching
	r.Register(NewScalarFunc("regexp", 2, regexpFunc))
}

// lengthFunc implements length(X): characters for text, bytes for blobs
// and the length of the text form for numbers.
func lengthFunc(args []Value) (Value, error) {
	switch args[0].Type() {
	case TypeNull:
		return NewNullValue(), nil
	case TypeBlob:
		return NewIntValue(int64(len(args[0].AsBlob()))), nil
	default:
		return NewIntValue(int64(utf8.RuneCountInString(args[0].AsString()))), nil
	}
}

// substrFunc implements substr(X, Y [, Z]). Y is 1-indexed and a negative
// Y counts from the end. A negative Z takes characters before Y.
func substrFunc(args []Value) (Value, error) {
	if len(args) < 2 || len(args) > 3 {
		return nil, fmt.Errorf("substr() requires 2 or 3 arguments")
	}
	for _, a := range args {
		if a.IsNull() {
			return NewNullValue(), nil
		}
	}

	isBlob := args[0].Type() == TypeBlob
	var units []string
	var blob []byte
	if isBlob {
		blob = args[0].AsBlob()
	} else {
		for _, r := range args[0].AsString() {
			units = append(units, string(r))
		}
	}
	length := int64(len(units))
	if isBlob {
		length = int64(len(blob))
	}

	start := args[1].AsInt64()
	count := length
	hasCount := len(args) == 3
	if hasCount {
		count = args[2].AsInt64()
	}

	if start < 0 {
		start += length
		if start < 0 {
			if hasCount {
				count += start
			}
			start = 0
		}
	} else if start > 0 {
		start--
	} else if hasCount && count > 0 {
		// substr(X, 0, N) covers one character less than substr(X, 1, N).
		count--
	}
	if count < 0 {
		if -count > start {
			count = start
		} else {
			count = -count
		}
		start -= count
	}
	end := start + count
	if start > length {
		start = length
	}
	if end > length {
		end = length
	}
	if end < start {
		end = start
	}

	if isBlob {
		return NewBlobValue(append([]byte(nil), blob[start:end]...)), nil
	}
	return NewTextValue(strings.Join(units[start:end], "")), nil
}

// upperFunc implements upper(X) for ASCII letters.
func upperFunc(args []Value) (Value, error) {
	if args[0].IsNull() {
		return NewNullValue(), nil
	}
	return NewTextValue(mapASCII(args[0].AsString(), 'a', 'z', 'A'-'a')), nil
}

// lowerFunc implements lower(X) for ASCII letters.
func lowerFunc(args []Value) (Value, error) {
	if args[0].IsNull() {
		return NewNullValue(), nil
	}
	return NewTextValue(mapASCII(args[0].AsString(), 'A', 'Z', 'a'-'A')), nil
}

func mapASCII(s string, lo, hi byte, delta int) string {
	b := []byte(s)
	for i, c := range b {
		if c >= lo && c <= hi {
			b[i] = byte(int(c) + delta)
		}
	}
	return string(b)
}

// trimFunc builds trim, ltrim and rtrim. The optional second argument
// lists the characters to remove; the default is a space.
func trimFunc(trim func(string, string) string) func([]Value) (Value, error) {
	return func(args []Value) (Value, error) {
		if len(args) < 1 || len(args) > 2 {
			return nil, fmt.Errorf("trim functions require 1 or 2 arguments")
		}
		if args[0].IsNull() {
			return NewNullValue(), nil
		}
		cutset := " "
		if len(args) == 2 {
			if args[1].IsNull() {
				return NewNullValue(), nil
			}
			cutset = args[1].AsString()
		}
		return NewTextValue(trim(args[0].AsString(), cutset)), nil
	}
}

// replaceFunc implements replace(X, Y, Z).
func replaceFunc(args []Value) (Value, error) {
	for _, a := range args {
		if a.IsNull() {
			return NewNullValue(), nil
		}
	}
	from := args[1].AsString()
	if from == "" {
		return NewTextValue(args[0].AsString()), nil
	}
	return NewTextValue(strings.ReplaceAll(args[0].AsString(), from, args[2].AsString())), nil
}

// instrFunc implements instr(X, Y): the 1-based character position of Y
// in X, or 0.
func instrFunc(args []Value) (Value, error) {
	if args[0].IsNull() || args[1].IsNull() {
		return NewNullValue(), nil
	}
	if args[0].Type() == TypeBlob && args[1].Type() == TypeBlob {
		i := strings.Index(string(args[0].AsBlob()), string(args[1].AsBlob()))
		return NewIntValue(int64(i + 1)), nil
	}
	hay, needle := args[0].AsString(), args[1].AsString()
	i := strings.Index(hay, needle)
	if i < 0 {
		return NewIntValue(0), nil
	}
	return NewIntValue(int64(utf8.RuneCountInString(hay[:i]) + 1)), nil
}

// hexFunc implements hex(X).
func hexFunc(args []Value) (Value, error) {
	if args[0].IsNull() {
		return NewTextValue(""), nil
	}
	return NewTextValue(strings.ToUpper(hex.EncodeToString(args[0].AsBlob()))), nil
}

// quoteFunc implements quote(X): the value as a SQL literal.
func quoteFunc(args []Value) (Value, error) {
	switch args[0].Type() {
	case TypeNull:
		return NewTextValue("NULL"), nil
	case TypeInteger, TypeFloat:
		return NewTextValue(args[0].AsString()), nil
	case TypeBlob:
		return NewTextValue("X'" + strings.ToUpper(hex.EncodeToString(args[0].AsBlob())) + "'"), nil
	default:
		return NewTextValue("'" + strings.ReplaceAll(args[0].AsString(), "'", "''") + "'"), nil
	}
}

// typeofFunc implements typeof(X)
func typeofFunc(args []Value) (Value, error) {
	return NewTextValue(args[0].Type().String()), nil
}

// coalesceFunc implements coalesce(X, Y, ...): the first non-NULL argument.
func coalesceFunc(args []Value) (Value, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("coalesce() requires at least 2 arguments")
	}
	for _, arg := range args {
		if !arg.IsNull() {
			return arg, nil
		}
	}
	return NewNullValue(), nil
}

// ifnullFunc implements ifnull(X, Y)
func ifnullFunc(args []Value) (Value, error) {
	if !args[0].IsNull() {
		return args[0], nil
	}
	return args[1], nil
}

// nullifFunc implements nullif(X, Y): NULL if X equals Y, otherwise X.
func nullifFunc(args []Value) (Value, error) {
	if !args[0].IsNull() && !args[1].IsNull() && CompareValues(args[0], args[1]) == 0 {
		return NewNullValue(), nil
	}
	return args[0], nil
}

// iifFunc implements iif(X, Y, Z)
func iifFunc(args []Value) (Value, error) {
	if !args[0].IsNull() && args[0].AsFloat64() != 0 {
		return args[1], nil
	}
	return args[2], nil
}

// zeroblobFunc implements zeroblob(N)
func zeroblobFunc(args []Value) (Value, error) {
	if args[0].IsNull() {
		return NewNullValue(), nil
	}
	n := args[0].AsInt64()
	if n < 0 {
		n = 0
	}
	return NewBlobValue(make([]byte, n)), nil
}
