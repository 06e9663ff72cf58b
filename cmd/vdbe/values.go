package main

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/FocuswithJustin/vdbecore/core/vdbe"
)

// parseValue reads a command-line literal: NULL, an integer, a real, a
// 'quoted string', a x'hex' blob or bare text.
func parseValue(s string) (interface{}, error) {
	switch {
	case strings.EqualFold(s, "NULL"):
		return nil, nil
	case len(s) >= 3 && (s[0] == 'x' || s[0] == 'X') && s[1] == '\'' && s[len(s)-1] == '\'':
		b, err := hex.DecodeString(s[2 : len(s)-1])
		if err != nil {
			return nil, fmt.Errorf("invalid blob %s: %w", s, err)
		}
		return b, nil
	case len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'':
		return strings.ReplaceAll(s[1:len(s)-1], "''", "'"), nil
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f, nil
	}
	return s, nil
}

// toMem wraps a parsed value in a register cell.
func toMem(v interface{}) *vdbe.Mem {
	switch x := v.(type) {
	case int64:
		return vdbe.NewMemInt(x)
	case float64:
		return vdbe.NewMemReal(x)
	case string:
		return vdbe.NewMemStr(x)
	case []byte:
		return vdbe.NewMemBlob(x)
	}
	return vdbe.NewMemNull()
}

// bind binds parsed values to parameters 1, 2, ...
func bind(v *vdbe.VDBE, values []string) error {
	for i, s := range values {
		val, err := parseValue(s)
		if err != nil {
			return err
		}
		n := i + 1
		switch x := val.(type) {
		case int64:
			err = v.BindInt(n, x)
		case float64:
			err = v.BindReal(n, x)
		case string:
			err = v.BindText(n, x)
		case []byte:
			err = v.BindBlob(n, x)
		default:
			err = v.BindNull(n)
		}
		if err != nil {
			return fmt.Errorf("bind parameter %d: %w", n, err)
		}
	}
	return nil
}

// formatValue renders a row value the way the sqlite3 shell does.
func formatValue(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		s := strconv.FormatFloat(x, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eEnN") {
			s += ".0"
		}
		return s
	case []byte:
		return "x'" + strings.ToUpper(hex.EncodeToString(x)) + "'"
	}
	return fmt.Sprint(v)
}

func formatRow(row []interface{}) string {
	parts := make([]string, len(row))
	for i, v := range row {
		parts[i] = formatValue(v)
	}
	return strings.Join(parts, "|")
}
