package vdbe

import (
	"math"
	"testing"

	"github.com/FocuswithJustin/vdbecore/core/errors"
	"github.com/FocuswithJustin/vdbecore/core/utf"
)

func TestMemBasicTypes(t *testing.T) {
	t.Run("Null", func(t *testing.T) {
		mem := NewMemNull()
		if !mem.IsNull() {
			t.Error("Expected NULL flag to be set")
		}
		if mem.IntValue() != 0 {
			t.Error("NULL should convert to 0 integer")
		}
		if mem.Value() != nil {
			t.Errorf("Value() = %v, want nil", mem.Value())
		}
	})

	t.Run("Integer", func(t *testing.T) {
		mem := NewMemInt(42)
		if !mem.IsInt() {
			t.Error("Expected INT flag to be set")
		}
		if mem.IntValue() != 42 {
			t.Errorf("Expected 42, got %d", mem.IntValue())
		}
		if mem.TextValue() != "42" {
			t.Errorf("Expected '42', got '%s'", mem.TextValue())
		}
		if !mem.IsInt() || !mem.IsStr() {
			t.Error("TextValue should add a string form and keep the integer")
		}
	})

	t.Run("Real", func(t *testing.T) {
		mem := NewMemReal(3.14159)
		if !mem.IsReal() {
			t.Error("Expected REAL flag to be set")
		}
		if mem.RealValue() != 3.14159 {
			t.Errorf("Expected 3.14159, got %f", mem.RealValue())
		}
		if got := NewMemReal(100).TextValue(); got != "100.0" {
			t.Errorf("TextValue(100.0) = %q, want 100.0", got)
		}
	})

	t.Run("NaN", func(t *testing.T) {
		if !NewMemReal(math.NaN()).IsNull() {
			t.Error("NaN should be stored as NULL")
		}
		mem := NewMemInt(1)
		mem.SetReal(math.NaN())
		if !mem.IsNull() {
			t.Error("SetReal(NaN) should leave NULL")
		}
	})

	t.Run("String", func(t *testing.T) {
		mem := NewMemStr("hello")
		if !mem.IsStr() {
			t.Error("Expected STR flag to be set")
		}
		if mem.TextValue() != "hello" {
			t.Errorf("Expected 'hello', got '%s'", mem.TextValue())
		}
		if mem.Type() != TypeText {
			t.Errorf("Type() = %v, want text", mem.Type())
		}
	})

	t.Run("Blob", func(t *testing.T) {
		data := []byte{1, 2, 3, 4, 5}
		mem := NewMemBlob(data)
		data[0] = 9
		if !mem.IsBlob() {
			t.Error("Expected BLOB flag to be set")
		}
		blob := mem.BlobValue()
		if len(blob) != 5 || blob[0] != 1 {
			t.Errorf("BlobValue() = %v, want a private copy of 1..5", blob)
		}
	})

	t.Run("Undefined", func(t *testing.T) {
		mem := NewMem()
		if !mem.IsUndefined() || mem.Type() != TypeNull {
			t.Error("a new cell should be undefined and read as NULL")
		}
		mem.SetInt(3)
		mem.Release()
		if !mem.IsUndefined() {
			t.Error("Release should leave the cell undefined")
		}
	})
}

func TestMemZeroBlob(t *testing.T) {
	mem := NewMemZeroBlob(4)
	if mem.Len() != 4 || len(mem.Bytes()) != 0 {
		t.Fatalf("zero blob Len=%d bytes=%d, want 4 and 0", mem.Len(), len(mem.Bytes()))
	}
	if !mem.TooBig(3) || mem.TooBig(4) {
		t.Error("TooBig should count the zero padding")
	}
	mem.ExpandBlob()
	if mem.Flags()&MemZero != 0 || len(mem.Bytes()) != 4 {
		t.Errorf("ExpandBlob left flags %#x and %d bytes", mem.Flags(), len(mem.Bytes()))
	}
}

func TestMemConversions(t *testing.T) {
	tests := []struct {
		name     string
		mem      *Mem
		wantInt  int64
		wantReal float64
	}{
		{"IntText", NewMemStr("123"), 123, 123},
		{"RealText", NewMemStr("3.5"), 3, 3.5},
		{"Prefix", NewMemStr("12abc"), 12, 12},
		{"Garbage", NewMemStr("abc"), 0, 0},
		{"Spaces", NewMemStr("  -7  "), -7, -7},
		{"Real", NewMemReal(-2.75), -2, -2.75},
		{"HugeReal", NewMemReal(1e300), math.MaxInt64, 1e300},
		{"Null", NewMemNull(), 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.mem.IntValue(); got != tt.wantInt {
				t.Errorf("IntValue() = %d, want %d", got, tt.wantInt)
			}
			if got := tt.mem.RealValue(); got != tt.wantReal {
				t.Errorf("RealValue() = %g, want %g", got, tt.wantReal)
			}
		})
	}

	t.Run("Integerify", func(t *testing.T) {
		mem := NewMemStr("123")
		mem.Integerify()
		if mem.Flags()&MemTypeMask != MemInt || mem.IntValue() != 123 {
			t.Errorf("Integerify gave %s", mem)
		}
	})

	t.Run("Realify", func(t *testing.T) {
		mem := NewMemInt(42)
		mem.Realify()
		if !mem.IsReal() || mem.IsInt() || mem.RealValue() != 42.0 {
			t.Errorf("Realify gave %s", mem)
		}
	})

	t.Run("Numerify", func(t *testing.T) {
		for _, tc := range []struct {
			in   string
			want interface{}
		}{
			{"17", int64(17)},
			{"2.0", int64(2)},
			{"2.5", 2.5},
			{"x", int64(0)},
		} {
			mem := NewMemStr(tc.in)
			mem.Numerify()
			if mem.IsStr() || mem.Value() != tc.want {
				t.Errorf("Numerify(%q) = %s, want %v", tc.in, mem, tc.want)
			}
		}
	})
}

func TestApplyAffinity(t *testing.T) {
	tests := []struct {
		name      string
		mem       *Mem
		aff       Affinity
		wantFlags MemFlags
		wantValue interface{}
	}{
		{"NumericExactReal", NewMemStr("48.00"), AffNumeric, MemInt, int64(48)},
		{"NumericReal", NewMemStr("48.5"), AffNumeric, MemStr | MemReal, 48.5},
		{"NumericInt", NewMemStr("48"), AffInteger, MemStr | MemInt, int64(48)},
		{"NumericText", NewMemStr("abc"), AffNumeric, MemStr, "abc"},
		{"RealToInt", NewMemReal(3.0), AffReal, MemInt, int64(3)},
		{"RealStays", NewMemReal(3.5), AffNumeric, MemReal, 3.5},
		{"TextFromInt", NewMemInt(5), AffText, MemStr, "5"},
		{"TextFromReal", NewMemReal(0.5), AffText, MemStr, "0.5"},
		{"NoneKeepsText", NewMemStr("1"), AffNone, MemStr, "1"},
		{"BlobUntouched", NewMemBlob([]byte("7")), AffNumeric, MemBlob, []byte("7")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.mem.ApplyAffinity(tt.aff)
			if got := tt.mem.Flags() & (MemStr | MemInt | MemReal | MemBlob); got != tt.wantFlags {
				t.Errorf("flags = %#x, want %#x", got, tt.wantFlags)
			}
			got := tt.mem.Value()
			if b, ok := tt.wantValue.([]byte); ok {
				if string(got.([]byte)) != string(b) {
					t.Errorf("value = %v, want %v", got, b)
				}
				return
			}
			if got != tt.wantValue {
				t.Errorf("value = %#v, want %#v", got, tt.wantValue)
			}
		})
	}
}

func TestCast(t *testing.T) {
	tests := []struct {
		name string
		mem  *Mem
		aff  Affinity
		want interface{}
	}{
		{"TextToInteger", NewMemStr("12.9"), AffInteger, int64(12)},
		{"TextToReal", NewMemStr("5"), AffReal, 5.0},
		{"GarbageToNumeric", NewMemStr("abc"), AffNumeric, int64(0)},
		{"RealToNumeric", NewMemStr("1e2"), AffNumeric, int64(100)},
		{"IntToText", NewMemInt(7), AffText, "7"},
		{"BlobToText", NewMemBlob([]byte("hi")), AffText, "hi"},
		{"NullStaysNull", NewMemNull(), AffInteger, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.mem.Cast(tt.aff); err != nil {
				t.Fatalf("Cast failed: %v", err)
			}
			if got := tt.mem.Value(); got != tt.want {
				t.Errorf("Cast = %#v, want %#v", got, tt.want)
			}
		})
	}

	if err := NewMemInt(1).Cast(AffNone); !errors.Is(err, errors.ErrUnsupported) {
		t.Errorf("Cast to BLOB affinity error = %v, want ErrUnsupported", err)
	}
}

func TestMemCompare(t *testing.T) {
	nocase, _ := utf.LookupCollation("nocase")
	tests := []struct {
		name string
		a, b *Mem
		coll utf.Collation
		want int
	}{
		{"NullsEqual", NewMemNull(), NewMemNull(), utf.Binary, 0},
		{"NullFirst", NewMemNull(), NewMemInt(-100), utf.Binary, -1},
		{"IntLess", NewMemInt(1), NewMemInt(2), utf.Binary, -1},
		{"MixedNumbers", NewMemReal(2.5), NewMemInt(2), utf.Binary, 1},
		{"EqualMixed", NewMemInt(3), NewMemReal(3.0), utf.Binary, 0},
		{"NumberBeforeText", NewMemInt(99), NewMemStr("1"), utf.Binary, -1},
		{"TextAfterNumber", NewMemStr("1"), NewMemReal(99), utf.Binary, 1},
		{"TextBinary", NewMemStr("ABC"), NewMemStr("abc"), utf.Binary, -1},
		{"TextNocase", NewMemStr("ABC"), NewMemStr("abc"), nocase, 0},
		{"TextBeforeBlob", NewMemStr("z"), NewMemBlob([]byte("a")), utf.Binary, -1},
		{"BlobBytes", NewMemBlob([]byte{1, 2}), NewMemBlob([]byte{1, 3}), utf.Binary, -1},
		{"ZeroBlobEqual", NewMemZeroBlob(3), NewMemBlob([]byte{0, 0, 0}), utf.Binary, 0},
		{"ZeroBlobShorter", NewMemZeroBlob(2), NewMemBlob([]byte{0, 0, 1}), utf.Binary, -1},
		{"ZeroBlobLonger", NewMemZeroBlob(3), NewMemBlob([]byte{0, 0}), utf.Binary, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Compare(tt.b, tt.coll); got != tt.want {
				t.Errorf("Compare(%s, %s) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestMemCopies(t *testing.T) {
	t.Run("ShallowCopyShares", func(t *testing.T) {
		src := NewMemBlob([]byte("abc"))
		dst := NewMem()
		dst.ShallowCopy(src, MemEphem)
		if dst.Flags()&MemEphem == 0 {
			t.Error("shallow copy should be marked ephemeral")
		}
		src.Bytes()[0] = 'x'
		if string(dst.Bytes()) != "xbc" {
			t.Errorf("shallow copy = %q, want it to see the source change", dst.Bytes())
		}
		dst.MakeWriteable()
		src.Bytes()[0] = 'y'
		if string(dst.Bytes()) != "xbc" || dst.Flags()&MemEphem != 0 {
			t.Errorf("MakeWriteable copy = %q flags %#x", dst.Bytes(), dst.Flags())
		}
	})

	t.Run("CopyIsDeep", func(t *testing.T) {
		src := NewMemStr("abc")
		dst := NewMemInt(5)
		dst.Copy(src)
		src.Bytes()[0] = 'x'
		if dst.TextValue() != "abc" {
			t.Errorf("deep copy = %q, want abc", dst.TextValue())
		}
	})

	t.Run("MoveLeavesNull", func(t *testing.T) {
		src := NewMemStr("abc")
		dst := NewMemInt(5)
		dst.Move(src)
		if dst.TextValue() != "abc" || !src.IsNull() {
			t.Errorf("after Move dst=%s src=%s", dst, src)
		}
	})

	t.Run("SetIntDropsText", func(t *testing.T) {
		mem := NewMemStr("abc")
		mem.SetInt(9)
		if mem.Flags() != MemInt || mem.Bytes() != nil {
			t.Errorf("SetInt left flags %#x and %q", mem.Flags(), mem.Bytes())
		}
	})
}

func TestAffinityString(t *testing.T) {
	tests := []struct {
		aff  Affinity
		want string
	}{
		{AffNone, "BLOB"},
		{AffText, "TEXT"},
		{AffNumeric, "NUMERIC"},
		{AffInteger, "INTEGER"},
		{AffReal, "REAL"},
	}
	for _, tt := range tests {
		if got := tt.aff.String(); got != tt.want {
			t.Errorf("Affinity(%c).String() = %q, want %q", byte(tt.aff), got, tt.want)
		}
	}
	if AffText.IsNumeric() || !AffInteger.IsNumeric() {
		t.Error("IsNumeric misclassified TEXT or INTEGER")
	}
}
