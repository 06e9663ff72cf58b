package vdbe

import (
	"context"

	"github.com/FocuswithJustin/vdbecore/core/errors"
	"github.com/FocuswithJustin/vdbecore/core/utf"
)

// execInstruction executes a single instruction. PC already addresses the
// following instruction; jumps overwrite it.
func (v *VDBE) execInstruction(ctx context.Context, instr *Instruction) (stepResult, error) {
	switch instr.Opcode {

	// Control flow opcodes
	case OpInit:
		return stepContinue, v.execInit(instr)
	case OpGoto:
		return stepContinue, v.execGoto(ctx, instr)
	case OpGosub:
		return stepContinue, v.execGosub(instr)
	case OpReturn:
		return stepContinue, v.execReturn(instr)
	case OpYield:
		return stepContinue, v.execYield(instr)
	case OpInitCoroutine:
		return stepContinue, v.execInitCoroutine(instr)
	case OpEndCoroutine:
		return stepContinue, v.execEndCoroutine(instr)
	case OpHalt:
		return v.execHalt(instr)
	case OpIf, OpIfNot:
		return stepContinue, v.execIf(instr)
	case OpIfPos:
		return stepContinue, v.execIfPos(instr)
	case OpIfZero:
		return stepContinue, v.execIfZero(instr)
	case OpIsNull, OpNotNull:
		return stepContinue, v.execIsNull(instr)
	case OpOnce:
		return stepContinue, v.execOnce(instr)
	case OpCompare:
		return stepContinue, v.execCompare(instr)
	case OpJump:
		return stepContinue, v.execJump(instr)
	case OpNoop, OpExplain:
		return stepContinue, nil

	// Register operations
	case OpInteger:
		return stepContinue, v.execInteger(instr)
	case OpInt64:
		return stepContinue, v.execInt64(instr)
	case OpReal:
		return stepContinue, v.execReal(instr)
	case OpString, OpString8:
		return stepContinue, v.execString(instr)
	case OpBlob:
		return stepContinue, v.execBlob(instr)
	case OpNull:
		return stepContinue, v.execNull(instr)
	case OpVariable:
		return stepContinue, v.execVariable(instr)
	case OpMove:
		return stepContinue, v.execMove(instr)
	case OpCopy:
		return stepContinue, v.execCopy(instr)
	case OpSCopy:
		return stepContinue, v.execSCopy(instr)
	case OpResultRow:
		return v.execResultRow(instr)

	// Arithmetic
	case OpAdd, OpSubtract, OpMultiply, OpDivide, OpRemainder:
		return stepContinue, v.execArith(instr)
	case OpAddImm:
		return stepContinue, v.execAddImm(instr)
	case OpConcat:
		return stepContinue, v.execConcat(instr)

	// Comparison
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
		return stepContinue, v.execCompareJump(instr)

	// Type conversion
	case OpAffinity:
		return stepContinue, v.execAffinity(instr)
	case OpRealAffinity:
		return stepContinue, v.execRealAffinity(instr)
	case OpCast:
		return stepContinue, v.execCast(instr)
	case OpMustBeInt:
		return stepContinue, v.execMustBeInt(instr)

	// Cursor operations
	case OpOpenRead, OpOpenWrite:
		return stepContinue, v.execOpen(ctx, instr)
	case OpOpenEphemeral:
		return stepContinue, v.execOpenEphemeral(ctx, instr)
	case OpOpenPseudo:
		return stepContinue, v.execOpenPseudo(instr)
	case OpClose:
		return stepContinue, v.CloseCursor(instr.P1)
	case OpRewind, OpSort, OpLast:
		return stepContinue, v.execRewind(instr)
	case OpNext, OpPrev:
		return stepContinue, v.execNext(ctx, instr)
	case OpSeekLT, OpSeekLE, OpSeekGE, OpSeekGT:
		return stepContinue, v.execSeekCmp(instr)
	case OpSeek:
		return stepContinue, v.execSeek(instr)
	case OpNotExists:
		return stepContinue, v.execNotExists(instr)
	case OpFound, OpNotFound:
		return stepContinue, v.execFound(instr)
	case OpIdxLE, OpIdxGT, OpIdxLT, OpIdxGE:
		return stepContinue, v.execIdxCmp(instr)
	case OpIdxRowid:
		return stepContinue, v.execIdxRowid(instr)
	case OpColumn:
		return stepContinue, v.execColumn(instr)
	case OpRowid:
		return stepContinue, v.execRowid(instr)
	case OpNullRow:
		return stepContinue, v.execNullRow(instr)
	case OpSequence:
		return stepContinue, v.execSequence(instr)
	case OpNewRowid:
		return stepContinue, v.execNewRowid(instr)
	case OpInsert:
		return stepContinue, v.execInsert(instr)
	case OpDelete:
		return stepContinue, v.execDelete(instr)
	case OpIdxInsert:
		return stepContinue, v.execIdxInsert(instr)

	// Records
	case OpMakeRecord:
		return stepContinue, v.execMakeRecord(instr)

	// Functions
	case OpFunction:
		return stepContinue, v.execFunction(instr)
	case OpAggStep:
		return stepContinue, v.execAggStep(instr)
	case OpAggFinal:
		return stepContinue, v.execAggFinal(instr)
	case OpCollSeq:
		return stepContinue, v.execCollSeq(instr)

	default:
		return stepContinue, errors.NewVM(errors.Internal, "unimplemented opcode: %s", instr.Opcode.String())
	}
}

// jumpTo checks a jump target and moves the program counter there.
func (v *VDBE) jumpTo(addr int) error {
	if addr < 0 || addr > len(v.Program) {
		return errors.NewVM(errors.Internal, "invalid jump address: %d", addr)
	}
	v.PC = addr
	return nil
}

// memRange returns n registers starting at first.
func (v *VDBE) memRange(first, n int) ([]*Mem, error) {
	if n < 0 || first < 0 || first+n > len(v.Mem) {
		return nil, errors.NewVM(errors.Misuse, "register range %d..%d out of range [0, %d)", first, first+n-1, len(v.Mem))
	}
	return v.Mem[first : first+n], nil
}

// p4Coll returns the collation in P4, or BINARY when there is none.
func (in *Instruction) p4Coll() utf.Collation {
	if in.P4Type == P4CollSeq && in.P4.Coll != nil {
		return *in.P4.Coll
	}
	return utf.Binary
}
