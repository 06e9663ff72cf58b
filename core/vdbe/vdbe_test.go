package vdbe

import (
	"context"
	"math"
	"reflect"
	"strings"
	"testing"

	"github.com/FocuswithJustin/vdbecore/core/errors"
	"github.com/FocuswithJustin/vdbecore/core/utf"
)

func op(code Opcode, p1, p2, p3 int) *Instruction {
	return &Instruction{Opcode: code, P1: p1, P2: p2, P3: p3}
}

func withP5(in *Instruction, p5 uint16) *Instruction {
	in.P5 = p5
	return in
}

// load returns an instruction that stores val in register reg.
func load(reg int, val interface{}) *Instruction {
	switch x := val.(type) {
	case nil:
		return op(OpNull, 0, reg, 0)
	case int:
		return &Instruction{Opcode: OpInt64, P2: reg, P4: P4Union{I64: int64(x)}, P4Type: P4Int64}
	case int64:
		return &Instruction{Opcode: OpInt64, P2: reg, P4: P4Union{I64: x}, P4Type: P4Int64}
	case float64:
		return &Instruction{Opcode: OpReal, P2: reg, P4: P4Union{R: x}, P4Type: P4Real}
	case string:
		return &Instruction{Opcode: OpString8, P2: reg, P4: P4Union{Z: x}, P4Type: P4Static}
	case []byte:
		return &Instruction{Opcode: OpBlob, P2: reg, P4: P4Union{B: x}, P4Type: P4Blob}
	}
	panic("load: unsupported value")
}

func newProgram(t *testing.T, cfg Config, nMem int, ops ...*Instruction) *VDBE {
	t.Helper()
	v := NewWithConfig(cfg)
	if err := v.Load(&Program{Ops: ops, NumMem: nMem}); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return v
}

func rows(t *testing.T, v *VDBE) [][]interface{} {
	t.Helper()
	var out [][]interface{}
	for {
		st, err := v.Step(context.Background())
		if err != nil {
			t.Fatalf("Step failed: %v", err)
		}
		if st == StatusDone {
			return out
		}
		out = append(out, v.Row())
	}
}

// single runs a program that produces exactly one row of one column.
func single(t *testing.T, v *VDBE) interface{} {
	t.Helper()
	got := rows(t, v)
	if len(got) != 1 || len(got[0]) != 1 {
		t.Fatalf("program produced %v, want one value", got)
	}
	return got[0][0]
}

// branchTaken runs setup followed by b and reports whether b jumped.
func branchTaken(t *testing.T, setup []*Instruction, b *Instruction) bool {
	t.Helper()
	n := len(setup)
	b.P2 = n + 3
	ops := append(append([]*Instruction{}, setup...),
		b,
		op(OpInteger, 0, 9, 0),
		op(OpGoto, 0, n+4, 0),
		op(OpInteger, 1, 9, 0),
		op(OpResultRow, 9, 1, 0),
		op(OpHalt, 0, 0, 0),
	)
	return single(t, newProgram(t, DefaultConfig(), 10, ops...)) == int64(1)
}

func TestSimpleProgram(t *testing.T) {
	v := newProgram(t, DefaultConfig(), 3,
		op(OpInit, 0, 1, 0),
		op(OpInteger, 42, 1, 0),
		op(OpResultRow, 1, 1, 0),
		op(OpHalt, 0, 0, 0),
	)
	got := rows(t, v)
	if len(got) != 1 || got[0][0] != int64(42) {
		t.Fatalf("rows = %v, want [[42]]", got)
	}
	if st, err := v.Step(context.Background()); st != StatusDone || err != nil {
		t.Errorf("Step after completion = %v, %v, want DONE", st, err)
	}
}

func TestArithmetic(t *testing.T) {
	tests := []struct {
		name        string
		code        Opcode
		left, right interface{}
		want        interface{}
	}{
		{"AddReals", OpAdd, 2.3, 4.5, 6.8},
		{"AddInts", OpAdd, 2, 3, int64(5)},
		{"AddOverflow", OpAdd, int64(math.MaxInt64), 1, float64(math.MaxInt64)},
		{"Subtract", OpSubtract, 10, 4, int64(6)},
		{"Multiply", OpMultiply, 3, 4, int64(12)},
		{"MultiplyReal", OpMultiply, 2.5, 2, 5.0},
		{"DivideInts", OpDivide, 7, 2, int64(3)},
		{"DivideMixed", OpDivide, 6, 4.0, 1.5},
		{"DivideByZero", OpDivide, 1, 0, nil},
		{"DivideByZeroReal", OpDivide, 1.0, 0.0, nil},
		{"Remainder", OpRemainder, -7, 3, int64(-1)},
		{"RemainderReal", OpRemainder, 7.5, 2, 1.0},
		{"RemainderByZero", OpRemainder, 5, 0, nil},
		{"TextNotNumber", OpAdd, "abc", 1, int64(1)},
		{"TextReal", OpAdd, "1.5", 1, 2.5},
		{"TextInt", OpMultiply, "6", "7", int64(42)},
		{"NullLeft", OpAdd, nil, 1, nil},
		{"NullRight", OpMultiply, 3, nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newProgram(t, DefaultConfig(), 3,
				load(0, tt.right),
				load(1, tt.left),
				op(tt.code, 0, 1, 2),
				op(OpResultRow, 2, 1, 0),
				op(OpHalt, 0, 0, 0),
			)
			if got := single(t, v); got != tt.want {
				t.Errorf("%v %s %v = %#v, want %#v", tt.left, tt.code, tt.right, got, tt.want)
			}
		})
	}
}

func TestCompareJump(t *testing.T) {
	nocase := utf.BuiltinCollations["NOCASE"]
	withColl := func(in *Instruction, c utf.Collation) *Instruction {
		in.P4.Coll = &c
		in.P4Type = P4CollSeq
		return in
	}
	intAndText := []*Instruction{load(1, 9), load(3, "5")}
	nulls := []*Instruction{op(OpNull, 0, 1, 0), load(3, 5)}
	bothNull := []*Instruction{op(OpNull, 0, 1, 0), op(OpNull, 0, 3, 0)}
	cleared := []*Instruction{op(OpNull, 1, 1, 3)}

	tests := []struct {
		name  string
		setup []*Instruction
		b     *Instruction
		want  bool
	}{
		{"LtInts", []*Instruction{load(1, 5), load(3, 3)}, op(OpLt, 1, 0, 3), true},
		{"GeInts", []*Instruction{load(1, 5), load(3, 3)}, op(OpGe, 1, 0, 3), false},
		{"LeEqual", []*Instruction{load(1, 2.0), load(3, 2)}, op(OpLe, 1, 0, 3), true},
		{"TextAboveNumber", intAndText, op(OpLt, 1, 0, 3), false},
		{"NumericAffinity", intAndText, withP5(op(OpLt, 1, 0, 3), uint16(AffNumeric)), true},
		{"TextAffinity", []*Instruction{load(1, 5), load(3, "5")}, withP5(op(OpEq, 1, 0, 3), uint16(AffText)), true},
		{"NoAffinityIntVsText", []*Instruction{load(1, 5), load(3, "5")}, op(OpEq, 1, 0, 3), false},
		{"NullNeverEqual", nulls, op(OpEq, 1, 0, 3), false},
		{"NullNeverUnequal", nulls, op(OpNe, 1, 0, 3), false},
		{"JumpIfNull", nulls, withP5(op(OpEq, 1, 0, 3), SQLJumpIfNull), true},
		{"IsBothNull", bothNull, withP5(op(OpEq, 1, 0, 3), SQLNullEq), true},
		{"IsOneNull", nulls, withP5(op(OpEq, 1, 0, 3), SQLNullEq), false},
		{"IsNotOneNull", nulls, withP5(op(OpNe, 1, 0, 3), SQLNullEq), true},
		{"ClearedNeverIs", cleared, withP5(op(OpEq, 1, 0, 3), SQLNullEq), false},
		{"ClearedIsNot", cleared, withP5(op(OpNe, 1, 0, 3), SQLNullEq), true},
		{"Binary", []*Instruction{load(1, "abc"), load(3, "ABC")}, op(OpEq, 1, 0, 3), false},
		{"Nocase", []*Instruction{load(1, "abc"), load(3, "ABC")}, withColl(op(OpEq, 1, 0, 3), nocase), true},
		{"Blobs", []*Instruction{load(1, []byte{0, 0}), load(3, []byte{0, 0})}, op(OpEq, 1, 0, 3), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := branchTaken(t, tt.setup, tt.b); got != tt.want {
				t.Errorf("jumped = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCompareRestoresTypes(t *testing.T) {
	v := newProgram(t, DefaultConfig(), 4,
		load(1, 9),
		load(3, "5"),
		withP5(op(OpLt, 1, 4, 3), uint16(AffNumeric)),
		op(OpNoop, 0, 0, 0),
		op(OpHalt, 0, 0, 0),
	)
	if err := v.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if m := v.Mem[3]; m.IsInt() || !m.IsStr() {
		t.Errorf("register 3 flags = %#x, want text only", m.Flags())
	}
	if m := v.Mem[1]; !m.IsInt() || m.IsStr() {
		t.Errorf("register 1 flags = %#x, want integer only", m.Flags())
	}
}

func TestCompareStoreP2(t *testing.T) {
	tests := []struct {
		name  string
		code  Opcode
		left  interface{}
		right interface{}
		want  interface{}
	}{
		{"True", OpLt, 3, 5, int64(1)},
		{"False", OpGt, 3, 5, int64(0)},
		{"Null", OpEq, nil, 5, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newProgram(t, DefaultConfig(), 4,
				load(3, tt.left),
				load(1, tt.right),
				withP5(op(tt.code, 1, 2, 3), SQLStoreP2),
				op(OpResultRow, 2, 1, 0),
				op(OpHalt, 0, 0, 0),
			)
			if got := single(t, v); got != tt.want {
				t.Errorf("stored %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestConditionalBranches(t *testing.T) {
	tests := []struct {
		name  string
		setup []*Instruction
		b     *Instruction
		want  bool
	}{
		{"IfTrue", []*Instruction{load(1, 2)}, op(OpIf, 1, 0, 0), true},
		{"IfZero", []*Instruction{load(1, 0)}, op(OpIf, 1, 0, 0), false},
		{"IfReal", []*Instruction{load(1, 0.5)}, op(OpIf, 1, 0, 0), true},
		{"IfNull", []*Instruction{load(1, nil)}, op(OpIf, 1, 0, 0), false},
		{"IfNullP3", []*Instruction{load(1, nil)}, op(OpIf, 1, 0, 1), true},
		{"IfNot", []*Instruction{load(1, 0)}, op(OpIfNot, 1, 0, 0), true},
		{"IfNotNull", []*Instruction{load(1, nil)}, op(OpIfNot, 1, 0, 1), true},
		{"IfPos", []*Instruction{load(1, 1)}, op(OpIfPos, 1, 0, 0), true},
		{"IfPosZero", []*Instruction{load(1, 0)}, op(OpIfPos, 1, 0, 0), false},
		{"IfZeroReaches", []*Instruction{load(1, 5)}, op(OpIfZero, 1, 0, -5), true},
		{"IfZeroShort", []*Instruction{load(1, 5)}, op(OpIfZero, 1, 0, -4), false},
		{"IsNull", []*Instruction{load(1, nil)}, op(OpIsNull, 1, 0, 0), true},
		{"NotNull", []*Instruction{load(1, "x")}, op(OpNotNull, 1, 0, 0), true},
		{"MustBeIntText", []*Instruction{load(1, "abc")}, op(OpMustBeInt, 1, 0, 0), true},
		{"MustBeIntNumber", []*Instruction{load(1, "7")}, op(OpMustBeInt, 1, 0, 0), false},
		{"MustBeIntReal", []*Instruction{load(1, 2.5)}, op(OpMustBeInt, 1, 0, 0), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := branchTaken(t, tt.setup, tt.b); got != tt.want {
				t.Errorf("jumped = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSubroutines(t *testing.T) {
	t.Run("GosubReturn", func(t *testing.T) {
		v := newProgram(t, DefaultConfig(), 3,
			op(OpGosub, 1, 4, 0),
			op(OpResultRow, 2, 1, 0),
			op(OpHalt, 0, 0, 0),
			op(OpNoop, 0, 0, 0),
			op(OpInteger, 20, 2, 0),
			op(OpReturn, 1, 0, 0),
		)
		if got := single(t, v); got != int64(20) {
			t.Errorf("subroutine result = %v, want 20", got)
		}
	})

	t.Run("Coroutine", func(t *testing.T) {
		v := newProgram(t, DefaultConfig(), 3,
			op(OpInitCoroutine, 1, 4, 1),
			op(OpInteger, 7, 2, 0),
			op(OpYield, 1, 0, 0),
			op(OpEndCoroutine, 1, 0, 0),
			op(OpYield, 1, 7, 0),
			op(OpResultRow, 2, 1, 0),
			op(OpGoto, 0, 4, 0),
			op(OpHalt, 0, 0, 0),
		)
		got := rows(t, v)
		if !reflect.DeepEqual(got, [][]interface{}{{int64(7)}}) {
			t.Errorf("coroutine rows = %v, want [[7]]", got)
		}
	})

	t.Run("ReturnWithoutAddress", func(t *testing.T) {
		v := newProgram(t, DefaultConfig(), 2,
			load(1, "x"),
			op(OpReturn, 1, 0, 0),
		)
		if err := v.Run(context.Background()); errors.CodeOf(err) != errors.Internal {
			t.Errorf("Return on text code = %v, want INTERNAL", errors.CodeOf(err))
		}
	})
}

func TestOnce(t *testing.T) {
	v := newProgram(t, DefaultConfig(), 3,
		op(OpInteger, 100, 1, 0),
		op(OpInteger, 3, 2, 0),
		op(OpOnce, 0, 4, 0),
		op(OpAddImm, 1, 3, 0),
		op(OpAddImm, 2, -1, 0),
		op(OpIfPos, 2, 2, 0),
		op(OpResultRow, 1, 1, 0),
		op(OpHalt, 0, 0, 0),
	)
	if got := single(t, v); got != int64(103) {
		t.Errorf("counter = %v, want 103", got)
	}
}

func TestJumpAfterCompare(t *testing.T) {
	tests := []struct {
		name string
		desc bool
		want int64
	}{
		{"Ascending", false, -1},
		{"Descending", true, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmp := op(OpCompare, 0, 1, 1)
			cmp.P4.KeyInfo = &KeyInfo{Collations: []utf.Collation{utf.Binary}, Desc: []bool{tt.desc}}
			cmp.P4Type = P4KeyInfo
			v := newProgram(t, DefaultConfig(), 3,
				op(OpInteger, 1, 0, 0),
				op(OpInteger, 2, 1, 0),
				cmp,
				op(OpJump, 4, 6, 8),
				op(OpInteger, -1, 2, 0),
				op(OpGoto, 0, 10, 0),
				op(OpInteger, 0, 2, 0),
				op(OpGoto, 0, 10, 0),
				op(OpInteger, 1, 2, 0),
				op(OpGoto, 0, 10, 0),
				op(OpResultRow, 2, 1, 0),
				op(OpHalt, 0, 0, 0),
			)
			if got := single(t, v); got != tt.want {
				t.Errorf("branch = %v, want %d", got, tt.want)
			}
		})
	}
}

func TestRegisterMoves(t *testing.T) {
	v := newProgram(t, DefaultConfig(), 8,
		load(0, "abc"),
		load(1, 5),
		op(OpCopy, 0, 2, 1),  // r2, r3 = r0, r1
		op(OpSCopy, 0, 4, 0), // r4 borrows r0
		op(OpMove, 1, 5, 1),  // r5 = r1, r1 = NULL
		op(OpNull, 0, 6, 7),
		op(OpResultRow, 0, 8, 0),
		op(OpHalt, 0, 0, 0),
	)
	got := rows(t, v)
	want := [][]interface{}{{"abc", nil, "abc", int64(5), "abc", int64(5), nil, nil}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("rows = %v, want %v", got, want)
	}
}

func TestHaltErrors(t *testing.T) {
	t.Run("WithMessage", func(t *testing.T) {
		halt := op(OpHalt, int(errors.Constraint), 0, 0)
		halt.P4.Z = "UNIQUE constraint failed: t.a"
		halt.P4Type = P4Static
		v := newProgram(t, DefaultConfig(), 1, op(OpNoop, 0, 0, 0), halt)

		st, err := v.Step(context.Background())
		if st != StatusError || errors.CodeOf(err) != errors.Constraint {
			t.Fatalf("Step = %v, %v; want ERROR with CONSTRAINT", st, err)
		}
		var vm *errors.VMError
		if !errors.As(err, &vm) || vm.Op != "Halt" || vm.PC != 1 {
			t.Errorf("error = %#v, want Halt at 1", err)
		}
		if !strings.Contains(err.Error(), "UNIQUE constraint failed: t.a") {
			t.Errorf("message %q lost the halt text", err.Error())
		}

		st2, err2 := v.Step(context.Background())
		if st2 != StatusError || err2 != err || v.Err() != err {
			t.Errorf("second Step = %v, %v; want the stored error", st2, err2)
		}
	})

	t.Run("DefaultMessage", func(t *testing.T) {
		v := newProgram(t, DefaultConfig(), 1, op(OpHalt, int(errors.Constraint), 0, 0))
		err := v.Run(context.Background())
		if err == nil || !strings.HasSuffix(err.Error(), "CONSTRAINT failed") {
			t.Errorf("error = %v, want CONSTRAINT failed", err)
		}
	})

	t.Run("MustBeIntMismatch", func(t *testing.T) {
		v := newProgram(t, DefaultConfig(), 1, load(0, "4.5"), op(OpMustBeInt, 0, 0, 0))
		if err := v.Run(context.Background()); errors.CodeOf(err) != errors.Mismatch {
			t.Errorf("MustBeInt code = %v, want MISMATCH", errors.CodeOf(err))
		}
	})

	t.Run("TooBig", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.MaxRecordSize = 3
		v := newProgram(t, cfg, 1, load(0, "abcd"))
		if err := v.Run(context.Background()); !errors.Is(err, errors.ErrTooBig) {
			t.Errorf("String8 error = %v, want ErrTooBig", err)
		}
	})

	t.Run("BadJump", func(t *testing.T) {
		v := newProgram(t, DefaultConfig(), 1, op(OpGoto, 0, 99, 0))
		if err := v.Run(context.Background()); errors.CodeOf(err) != errors.Internal {
			t.Errorf("Goto code = %v, want INTERNAL", errors.CodeOf(err))
		}
	})
}

func TestInterrupt(t *testing.T) {
	loop := []*Instruction{
		op(OpInteger, 1, 0, 0),
		op(OpGoto, 0, 0, 0),
	}

	v := newProgram(t, DefaultConfig(), 1, loop...)
	v.Interrupt()
	err := v.Run(context.Background())
	if !errors.Is(err, errors.ErrInterrupt) {
		t.Fatalf("Run error = %v, want ErrInterrupt", err)
	}

	if err := v.Reset(); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = v.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run error = %v, want context.Canceled", err)
	}
	if errors.CodeOf(err) != errors.Interrupt {
		t.Errorf("code = %v, want INTERRUPT", errors.CodeOf(err))
	}
}

func TestCacheModesAgree(t *testing.T) {
	ops := func() []*Instruction {
		return []*Instruction{
			op(OpInteger, 0, 1, 0),
			op(OpInteger, 10, 2, 0),
			op(OpAdd, 2, 1, 1),
			op(OpAddImm, 2, -1, 0),
			op(OpIfPos, 2, 2, 0),
			load(3, 0.5),
			op(OpMultiply, 3, 1, 4),
			load(5, "x"),
			op(OpConcat, 1, 5, 6),
			op(OpResultRow, 1, 6, 0),
			op(OpHalt, 0, 0, 0),
		}
	}
	want := [][]interface{}{{int64(55), int64(0), 0.5, 27.5, "x", "x55"}}

	configs := []struct {
		name   string
		use    bool
		debug  bool
		intern int
	}{
		{"Off", false, false, 0},
		{"On", true, false, 0},
		{"Debug", true, true, 0},
		{"TinyIntern", true, true, 4},
	}
	for _, c := range configs {
		t.Run(c.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.UseCache = c.use
			cfg.DebugCache = c.debug
			if c.intern > 0 {
				cfg.InternLimit = c.intern
			}
			v := newProgram(t, cfg, 7, ops()...)
			if got := rows(t, v); !reflect.DeepEqual(got, want) {
				t.Errorf("rows = %v, want %v", got, want)
			}
			if !c.use && v.CacheHolder().Interned() != 1 {
				t.Errorf("disabled cache interned %d states", v.CacheHolder().Interned())
			}
		})
	}
}

func TestFunctionCalls(t *testing.T) {
	tests := []struct {
		name string
		fn   string
		narg int
		args []interface{}
		want interface{}
	}{
		{"AbsInt", "abs", 1, []interface{}{-3}, int64(3)},
		{"AbsReal", "abs", 1, []interface{}{-2.5}, 2.5},
		{"AbsNull", "abs", 1, []interface{}{nil}, nil},
		{"LengthText", "length", 1, []interface{}{"héllo"}, int64(5)},
		{"LengthNumber", "length", 1, []interface{}{12345}, int64(5)},
		{"LengthBlob", "length", 1, []interface{}{[]byte{1, 2, 3}}, int64(3)},
		{"Typeof", "typeof", 1, []interface{}{1.5}, "real"},
		{"TypeofNull", "TYPEOF", 1, []interface{}{nil}, "null"},
		{"Coalesce", "coalesce", -1, []interface{}{nil, 7}, int64(7)},
		{"CoalesceAllNull", "coalesce", -1, []interface{}{nil, nil}, nil},
		{"Upper", "upper", 1, []interface{}{"abc"}, "ABC"},
	}
	for _, native := range []bool{true, false} {
		for _, tt := range tests {
			name := tt.name
			if !native {
				name += "Registry"
			}
			t.Run(name, func(t *testing.T) {
				cfg := DefaultConfig()
				cfg.NativeFunctions = native
				ops := make([]*Instruction, 0, len(tt.args)+3)
				for i, a := range tt.args {
					ops = append(ops, load(i, a))
				}
				call := op(OpFunction, 0, 0, 5)
				call.P4.Func = &FuncDef{Name: tt.fn, NArg: tt.narg}
				call.P4Type = P4FuncDef
				call.P5 = uint16(len(tt.args))
				ops = append(ops, call, op(OpResultRow, 5, 1, 0), op(OpHalt, 0, 0, 0))

				v := newProgram(t, cfg, 6, ops...)
				if got := single(t, v); got != tt.want {
					t.Errorf("%s(%v) = %#v, want %#v", tt.fn, tt.args, got, tt.want)
				}
			})
		}
	}

	t.Run("Unknown", func(t *testing.T) {
		v := NewWithConfig(DefaultConfig())
		v.AllocMemory(2)
		v.AddOpWithP4Func(OpFunction, 0, 0, 1, &FuncDef{Name: "nosuch", NArg: 1})
		err := v.Run(context.Background())
		if errors.CodeOf(err) != errors.Error || !strings.Contains(err.Error(), "no such function") {
			t.Errorf("Run error = %v, want no such function", err)
		}
	})
}

func TestRecordOpcodes(t *testing.T) {
	t.Run("MakeRecord", func(t *testing.T) {
		v := newProgram(t, DefaultConfig(), 4,
			op(OpInteger, 1, 0, 0),
			op(OpNull, 0, 1, 0),
			load(2, "hi"),
			op(OpMakeRecord, 0, 3, 3),
			op(OpResultRow, 3, 1, 0),
			op(OpHalt, 0, 0, 0),
		)
		want := []byte{0x04, 0x01, 0x00, 0x11, 0x01, 'h', 'i'}
		got, ok := single(t, v).([]byte)
		if !ok || string(got) != string(want) {
			t.Errorf("record = % x, want % x", got, want)
		}
	})

	t.Run("MakeRecordAffinity", func(t *testing.T) {
		mk := op(OpMakeRecord, 0, 2, 2)
		mk.P4.Z = "DB"
		mk.P4Type = P4Static
		v := newProgram(t, DefaultConfig(), 3,
			load(0, "12"),
			load(1, 5),
			mk,
			op(OpResultRow, 0, 3, 0),
			op(OpHalt, 0, 0, 0),
		)
		got := rows(t, v)[0]
		if got[0] != int64(12) || got[1] != "5" {
			t.Errorf("fields after affinity = %v, want 12 and '5'", got[:2])
		}
	})

	t.Run("Concat", func(t *testing.T) {
		v := newProgram(t, DefaultConfig(), 3,
			load(0, "ab"),
			load(1, 12),
			op(OpConcat, 1, 0, 2),
			op(OpResultRow, 2, 1, 0),
			op(OpHalt, 0, 0, 0),
		)
		if got := single(t, v); got != "ab12" {
			t.Errorf("concat = %#v, want \"ab12\"", got)
		}
	})

	t.Run("MustBeInt", func(t *testing.T) {
		v := newProgram(t, DefaultConfig(), 1,
			load(0, "42"),
			op(OpMustBeInt, 0, 0, 0),
			op(OpResultRow, 0, 1, 0),
			op(OpHalt, 0, 0, 0),
		)
		if got := single(t, v); got != int64(42) {
			t.Errorf("MustBeInt = %#v, want 42", got)
		}
		if v.Mem[0].IsStr() {
			t.Error("MustBeInt should leave an integer only")
		}
	})

	t.Run("Cast", func(t *testing.T) {
		v := newProgram(t, DefaultConfig(), 2,
			load(0, "3.0"),
			op(OpCast, 0, int(AffInteger), 0),
			load(1, 7),
			op(OpCast, 1, int(AffText), 0),
			op(OpResultRow, 0, 2, 0),
			op(OpHalt, 0, 0, 0),
		)
		got := rows(t, v)[0]
		if got[0] != int64(3) || got[1] != "7" {
			t.Errorf("casts = %v, want [3 7]", got)
		}
	})
}

func TestBindVariables(t *testing.T) {
	v := NewWithConfig(DefaultConfig())
	err := v.Load(&Program{
		Ops: []*Instruction{
			op(OpVariable, 1, 0, 0),
			op(OpVariable, 2, 1, 0),
			op(OpVariable, 3, 2, 0),
			op(OpResultRow, 0, 3, 0),
			op(OpHalt, 0, 0, 0),
		},
		NumMem:  3,
		NumVar:  3,
		Columns: []string{"a", "b", "c"},
	})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := v.BindInt(1, 42); err != nil {
		t.Fatalf("BindInt failed: %v", err)
	}
	v.BindText(2, "hi")
	v.BindBlob(3, []byte{9})
	if err := v.BindInt(4, 1); errors.CodeOf(err) != errors.Misuse {
		t.Errorf("BindInt(4) code = %v, want MISUSE", errors.CodeOf(err))
	}

	st, err := v.Step(context.Background())
	if st != StatusRow || err != nil {
		t.Fatalf("Step = %v, %v, want ROW", st, err)
	}
	want := []interface{}{int64(42), "hi", []byte{9}}
	if got := v.Row(); !reflect.DeepEqual(got, want) {
		t.Errorf("row = %v, want %v", got, want)
	}
	if err := v.BindInt(1, 7); errors.CodeOf(err) != errors.Misuse {
		t.Errorf("bind while running code = %v, want MISUSE", errors.CodeOf(err))
	}

	if err := v.Reset(); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	v.BindReal(1, 1.5)
	v.BindNull(3)
	got := rows(t, v)
	want2 := [][]interface{}{{1.5, "hi", nil}}
	if !reflect.DeepEqual(got, want2) {
		t.Errorf("rows after rebind = %v, want %v", got, want2)
	}
}

func TestResetAndRerun(t *testing.T) {
	v := newProgram(t, DefaultConfig(), 1,
		op(OpInteger, 3, 0, 0),
		op(OpResultRow, 0, 1, 0),
		op(OpAddImm, 0, -1, 0),
		op(OpIfPos, 0, 1, 0),
		op(OpHalt, 0, 0, 0),
	)
	want := [][]interface{}{{int64(3)}, {int64(2)}, {int64(1)}}
	for run := 0; run < 2; run++ {
		if got := rows(t, v); !reflect.DeepEqual(got, want) {
			t.Errorf("run %d rows = %v, want %v", run, got, want)
		}
		if n := v.Counters().VMStep; n != 11 {
			t.Errorf("run %d VMStep = %d, want 11", run, n)
		}
		if err := v.Reset(); err != nil {
			t.Fatalf("Reset failed: %v", err)
		}
	}
}

func TestColumnAccessors(t *testing.T) {
	v := NewWithConfig(DefaultConfig())
	err := v.Load(&Program{
		Ops: []*Instruction{
			op(OpInteger, 7, 0, 0),
			load(1, "seven"),
			load(2, 7.5),
			load(3, []byte{1, 2}),
			op(OpNull, 0, 4, 0),
			op(OpResultRow, 0, 5, 0),
			op(OpHalt, 0, 0, 0),
		},
		NumMem:  5,
		Columns: []string{"n", "s", "r", "b", "z"},
	})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if st, err := v.Step(context.Background()); st != StatusRow || err != nil {
		t.Fatalf("Step = %v, %v, want ROW", st, err)
	}

	if v.ColumnCount() != 5 || v.ColumnName(1) != "s" || v.ColumnName(9) != "" {
		t.Errorf("columns: count %d, name(1) %q, name(9) %q", v.ColumnCount(), v.ColumnName(1), v.ColumnName(9))
	}
	types := []ColumnType{TypeInteger, TypeText, TypeFloat, TypeBlob, TypeNull}
	for i, want := range types {
		if got := v.ColumnType(i); got != want {
			t.Errorf("ColumnType(%d) = %v, want %v", i, got, want)
		}
	}
	if got := v.ColumnInt(2); got != 7 {
		t.Errorf("ColumnInt(2) = %d, want 7", got)
	}
	if got := v.ColumnReal(0); got != 7.0 {
		t.Errorf("ColumnReal(0) = %v, want 7", got)
	}
	if got := v.ColumnText(2); got != "7.5" {
		t.Errorf("ColumnText(2) = %q, want 7.5", got)
	}
	if got := v.ColumnBlob(3); string(got) != "\x01\x02" {
		t.Errorf("ColumnBlob(3) = %v, want [1 2]", got)
	}
	if got := v.ColumnValue(4); got != nil {
		t.Errorf("ColumnValue(4) = %v, want nil", got)
	}

	if st, _ := v.Step(context.Background()); st != StatusDone {
		t.Fatalf("second Step = %v, want DONE", st)
	}
	if got := v.ColumnValue(0); got != nil {
		t.Errorf("ColumnValue after completion = %v, want nil", got)
	}
}

type recordingTracer struct {
	events []TraceEvent
}

func (r *recordingTracer) Trace(ev TraceEvent) {
	r.events = append(r.events, ev)
}

func TestTracer(t *testing.T) {
	rec := &recordingTracer{}
	v := newProgram(t, DefaultConfig(), 1,
		op(OpInteger, 1, 0, 0),
		op(OpResultRow, 0, 1, 0),
		op(OpHalt, int(errors.Constraint), 0, 0),
	)
	v.Tracer = rec
	v.Run(context.Background())

	if len(rec.events) != 3 {
		t.Fatalf("traced %d events, want 3", len(rec.events))
	}
	wantOps := []string{"Integer", "ResultRow", "Halt"}
	for i, ev := range rec.events {
		if ev.Opcode != wantOps[i] || ev.PC != i || ev.StatementID != v.StatementID {
			t.Errorf("event %d = %+v, want %s at %d", i, ev, wantOps[i], i)
		}
	}
	last := rec.events[2]
	if last.Status != "ERROR" || !strings.Contains(last.Error, "CONSTRAINT failed") {
		t.Errorf("halt event = %+v, want an ERROR status", last)
	}
}

func TestExplainProgram(t *testing.T) {
	v := New()
	if got := v.ExplainProgram(); got != "Empty program" {
		t.Errorf("ExplainProgram() = %q on an empty program", got)
	}
	v.AddOp(OpInteger, 1, 0, 0)
	addr := v.AddOpWithP4Str(OpString8, 0, 1, 0, "hi")
	v.SetComment(addr, "greeting")

	out := v.ExplainProgram()
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("listing has %d lines, want 4:\n%s", len(lines), out)
	}
	if !strings.Contains(lines[2], "Integer") || !strings.Contains(lines[3], `"hi"`) || !strings.Contains(lines[3], "greeting") {
		t.Errorf("unexpected listing:\n%s", out)
	}
	if v.NumOps() != 2 {
		t.Errorf("NumOps() = %d, want 2", v.NumOps())
	}
}

func TestStepWithoutProgram(t *testing.T) {
	v := New()
	if _, err := v.Step(context.Background()); errors.CodeOf(err) != errors.Misuse {
		t.Errorf("Step on an empty statement code = %v, want MISUSE", errors.CodeOf(err))
	}
}

func TestLookupOpcode(t *testing.T) {
	for code, name := range OpcodeNames {
		got, ok := LookupOpcode(strings.ToUpper(name))
		if !ok || got != code {
			t.Errorf("LookupOpcode(%q) = %v, %v", name, got, ok)
		}
	}
	if _, ok := LookupOpcode("Bogus"); ok {
		t.Error("LookupOpcode found an unknown name")
	}
	if len(OpcodeNames) != int(numOpcodes) {
		t.Errorf("%d names for %d opcodes", len(OpcodeNames), numOpcodes)
	}
}
