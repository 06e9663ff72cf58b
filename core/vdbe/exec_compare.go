package vdbe

import (
	"github.com/FocuswithJustin/vdbecore/core/errors"
)

// execCompareJump implements Eq, Ne, Lt, Le, Gt and Ge. Register P3 is
// compared with register P1 and the program jumps to P2 when the relation
// holds, or with SQLStoreP2 the truth value is stored in register P2.
//
// P5 carries an affinity that is applied to both operands for the
// comparison only; the operands are left with their original types.
func (v *VDBE) execCompareJump(instr *Instruction) error {
	in1, err := v.GetMem(instr.P1)
	if err != nil {
		return err
	}
	in3, err := v.GetMem(instr.P3)
	if err != nil {
		return err
	}
	flags1 := in1.Flags()
	flags3 := in3.Flags()

	var res int
	if (flags1|flags3)&MemNull != 0 {
		if instr.P5&SQLNullEq == 0 {
			// Comparison with NULL is NULL: never true
			if instr.P5&SQLStoreP2 != 0 {
				out, err := v.GetMem(instr.P2)
				if err != nil {
					return err
				}
				out.SetNull()
				return nil
			}
			if instr.P5&SQLJumpIfNull != 0 {
				return v.jumpTo(instr.P2)
			}
			return nil
		}
		// IS and IS NOT: equal only when both are real NULLs
		if flags1&flags3&MemNull != 0 && (flags1|flags3)&MemCleared == 0 {
			res = 0
		} else {
			res = 1
		}
	} else {
		aff := Affinity(instr.P5 & SQLAffMask)
		switch {
		case aff >= AffNumeric:
			in1.ApplyNumericAffinity(false)
			in3.ApplyNumericAffinity(false)
		case aff == AffText:
			if flags1&MemStr == 0 && flags1&(MemInt|MemReal) != 0 {
				in1.Stringify(true)
			}
			if flags3&MemStr == 0 && flags3&(MemInt|MemReal) != 0 {
				in3.Stringify(true)
			}
		}
		if in1.Flags()&MemZero != 0 {
			in1.ExpandBlob()
			flags1 &^= MemZero
		}
		if in3.Flags()&MemZero != 0 {
			in3.ExpandBlob()
			flags3 &^= MemZero
		}
		res = in3.Compare(in1, instr.p4Coll())

		if in1.Flags() != flags1 {
			in1.SetFlags(flags1)
		}
		if in3.Flags() != flags3 {
			in3.SetFlags(flags3)
		}
	}

	var cond bool
	switch instr.Opcode {
	case OpEq:
		cond = res == 0
	case OpNe:
		cond = res != 0
	case OpLt:
		cond = res < 0
	case OpLe:
		cond = res <= 0
	case OpGt:
		cond = res > 0
	case OpGe:
		cond = res >= 0
	default:
		return errors.NewVM(errors.Internal, "not a comparison opcode: %s", instr.Opcode)
	}

	if instr.P5&SQLStoreP2 != 0 {
		out, err := v.GetMem(instr.P2)
		if err != nil {
			return err
		}
		var b int64
		if cond {
			b = 1
		}
		out.SetInt(b)
		return nil
	}
	if cond {
		return v.jumpTo(instr.P2)
	}
	return nil
}

// execCompare compares the P3 registers starting at P1 with the P3
// registers starting at P2 using the key description in P4, and keeps the
// result for the following OpJump.
func (v *VDBE) execCompare(instr *Instruction) error {
	left, err := v.memRange(instr.P1, instr.P3)
	if err != nil {
		return err
	}
	right, err := v.memRange(instr.P2, instr.P3)
	if err != nil {
		return err
	}
	var ki *KeyInfo
	if instr.P4Type == P4KeyInfo {
		ki = instr.P4.KeyInfo
	}
	v.iCompare = 0
	for i := range left {
		res := left[i].Compare(right[i], ki.Collation(i))
		if res != 0 {
			if ki.IsDesc(i) {
				res = -res
			}
			v.iCompare = res
			return nil
		}
	}
	return nil
}
