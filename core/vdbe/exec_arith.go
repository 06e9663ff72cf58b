package vdbe

import (
	"math"

	"github.com/FocuswithJustin/vdbecore/core/errors"
)

// execArith implements Add, Subtract, Multiply, Divide and Remainder:
// P3 = P2 op P1. Two integers stay integers unless the result overflows,
// division or remainder by zero is NULL, and a real result that holds an
// exact integer is narrowed back unless a real operand was involved.
func (v *VDBE) execArith(instr *Instruction) error {
	in1, err := v.GetMem(instr.P1)
	if err != nil {
		return err
	}
	in2, err := v.GetMem(instr.P2)
	if err != nil {
		return err
	}
	out, err := v.GetMem(instr.P3)
	if err != nil {
		return err
	}

	type1 := in1.numericType()
	type2 := in2.numericType()
	if (in1.Flags()|in2.Flags())&(MemNull|MemUndefined) != 0 {
		out.SetNull()
		return nil
	}

	bIntint := false
	if type1&type2&MemInt != 0 {
		iA := in1.intPayload()
		iB := in2.intPayload()
		constant := in1.isConstantInt() && in2.isConstantInt()
		iR, ok, null := intArith(instr.Opcode, iA, iB)
		if null {
			out.SetNull()
			return nil
		}
		if ok {
			out.setInt(iR, constant)
			return nil
		}
		bIntint = true
	}

	rA := operandReal(in1, type1)
	rB := operandReal(in2, type2)
	var rR float64
	switch instr.Opcode {
	case OpAdd:
		rR = rB + rA
	case OpSubtract:
		rR = rB - rA
	case OpMultiply:
		rR = rB * rA
	case OpDivide:
		if rA == 0 {
			out.SetNull()
			return nil
		}
		rR = rB / rA
	case OpRemainder:
		iA := realToInt(rA)
		iB := realToInt(rB)
		if iA == 0 {
			out.SetNull()
			return nil
		}
		if iA == -1 {
			iA = 1
		}
		rR = float64(iB % iA)
	default:
		return errors.NewVM(errors.Internal, "not an arithmetic opcode: %s", instr.Opcode)
	}

	if math.IsNaN(rR) {
		out.SetNull()
		return nil
	}
	out.setReal(rR, false)
	if (type1|type2)&MemReal == 0 && !bIntint {
		out.IntegerAffinity()
	}
	return nil
}

// operandReal returns the real value of an arithmetic operand whose
// numericType is t. Text that is not a number contributes its numeric
// prefix.
func operandReal(m *Mem, t MemFlags) float64 {
	switch t {
	case MemInt:
		return float64(m.intPayload())
	case MemReal:
		return m.realPayload()
	}
	return m.RealValue()
}

// intArith computes b op a on integers. ok is false when the result does
// not fit and the caller must use reals; null is true when the result is
// NULL.
func intArith(op Opcode, a, b int64) (r int64, ok bool, null bool) {
	switch op {
	case OpAdd:
		r = b + a
		if (a > 0 && r < b) || (a < 0 && r > b) {
			return 0, false, false
		}
	case OpSubtract:
		r = b - a
		if (a < 0 && r < b) || (a > 0 && r > b) {
			return 0, false, false
		}
	case OpMultiply:
		if !mulFits(a, b) {
			return 0, false, false
		}
		r = a * b
	case OpDivide:
		if a == 0 {
			return 0, false, true
		}
		if a == -1 && b == math.MinInt64 {
			return 0, false, false
		}
		r = b / a
	case OpRemainder:
		if a == 0 {
			return 0, false, true
		}
		if a == -1 {
			a = 1
		}
		r = b % a
	}
	return r, true, false
}

func mulFits(a, b int64) bool {
	if a == 0 || b == 0 {
		return true
	}
	r := a * b
	if (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
		return false
	}
	return r/b == a
}

func (v *VDBE) execAddImm(instr *Instruction) error {
	// P1 += P2
	mem, err := v.GetMem(instr.P1)
	if err != nil {
		return err
	}
	mem.Integerify()
	mem.setInt(mem.intPayload()+int64(instr.P2), false)
	return nil
}

// execConcat stores the text of P2 followed by the text of P1 in P3. NULL
// in either operand gives NULL.
func (v *VDBE) execConcat(instr *Instruction) error {
	in1, err := v.GetMem(instr.P1)
	if err != nil {
		return err
	}
	in2, err := v.GetMem(instr.P2)
	if err != nil {
		return err
	}
	out, err := v.GetMem(instr.P3)
	if err != nil {
		return err
	}
	if in1.IsNull() || in2.IsNull() {
		out.SetNull()
		return nil
	}
	a := in2.TextValue()
	b := in1.TextValue()
	if len(a)+len(b) > v.config.MaxRecordSize {
		return errors.NewVM(errors.TooBig, "concatenation of %d bytes exceeds limit", len(a)+len(b))
	}
	buf := make([]byte, 0, len(a)+len(b))
	buf = append(buf, a...)
	buf = append(buf, b...)
	out.SetText(buf, MemDyn)
	return nil
}
