package vdbe

import (
	"context"

	"github.com/FocuswithJustin/vdbecore/core/errors"
)

func (v *VDBE) execInit(instr *Instruction) error {
	// Jump to P2 if P2 > 0
	if instr.P2 > 0 {
		return v.jumpTo(instr.P2)
	}
	return nil
}

func (v *VDBE) execGoto(ctx context.Context, instr *Instruction) error {
	if err := v.checkInterrupt(ctx); err != nil {
		return err
	}
	return v.jumpTo(instr.P2)
}

func (v *VDBE) execGosub(instr *Instruction) error {
	// Save our own address in P1, jump to P2
	mem, err := v.GetMem(instr.P1)
	if err != nil {
		return err
	}
	mem.setInt(int64(v.PC-1), true)
	return v.jumpTo(instr.P2)
}

func (v *VDBE) execReturn(instr *Instruction) error {
	// Jump to the instruction after the address in P1
	mem, err := v.GetMem(instr.P1)
	if err != nil {
		return err
	}
	if !mem.IsInt() {
		return errors.NewVM(errors.Internal, "return register %d holds no address", instr.P1)
	}
	addr := mem.intPayload()
	mem.SetFlags(MemUndefined)
	return v.jumpTo(int(addr) + 1)
}

// execYield swaps the program counter with the address in P1.
func (v *VDBE) execYield(instr *Instruction) error {
	mem, err := v.GetMem(instr.P1)
	if err != nil {
		return err
	}
	mem.AssureFlags(MemInt)
	addr := mem.intPayload()
	mem.setInt(int64(v.PC-1), true)
	return v.jumpTo(int(addr) + 1)
}

func (v *VDBE) execInitCoroutine(instr *Instruction) error {
	// P1 = P3-1 so that the first Yield enters the coroutine at P3
	mem, err := v.GetMem(instr.P1)
	if err != nil {
		return err
	}
	mem.setInt(int64(instr.P3-1), true)
	if instr.P2 != 0 {
		return v.jumpTo(instr.P2)
	}
	return nil
}

// execEndCoroutine returns to the Yield that last entered the coroutine
// and follows that Yield's P2.
func (v *VDBE) execEndCoroutine(instr *Instruction) error {
	mem, err := v.GetMem(instr.P1)
	if err != nil {
		return err
	}
	addr := int(mem.IntValue())
	if addr < 0 || addr >= len(v.Program) || v.Program[addr].Opcode != OpYield {
		return errors.NewVM(errors.Internal, "coroutine register %d does not address a Yield", instr.P1)
	}
	mem.SetFlags(MemUndefined)
	return v.jumpTo(v.Program[addr].P2)
}

func (v *VDBE) execHalt(instr *Instruction) (stepResult, error) {
	if instr.P1 == 0 {
		return stepHalt, nil
	}
	code := errors.Code(instr.P1)
	msg := instr.P4.Z
	if msg == "" {
		msg = code.String() + " failed"
	}
	return stepContinue, errors.NewVM(code, "%s", msg)
}

func (v *VDBE) execIf(instr *Instruction) error {
	// Jump to P2 if P1 is true (OpIf) or false (OpIfNot). NULL jumps when
	// P3 is non-zero.
	mem, err := v.GetMem(instr.P1)
	if err != nil {
		return err
	}
	var cond bool
	if mem.IsNull() {
		cond = instr.P3 != 0
	} else {
		cond = mem.RealValue() != 0
		if instr.Opcode == OpIfNot {
			cond = !cond
		}
	}
	if cond {
		return v.jumpTo(instr.P2)
	}
	return nil
}

func (v *VDBE) execIfPos(instr *Instruction) error {
	mem, err := v.GetMem(instr.P1)
	if err != nil {
		return err
	}
	if mem.IntValue() > 0 {
		return v.jumpTo(instr.P2)
	}
	return nil
}

// execIfZero adds P3 to register P1 and jumps to P2 if the sum is zero.
// A constant counter stays constant.
func (v *VDBE) execIfZero(instr *Instruction) error {
	mem, err := v.GetMem(instr.P1)
	if err != nil {
		return err
	}
	constant := mem.isConstantInt()
	val := mem.IntValue() + int64(instr.P3)
	mem.setInt(val, constant)
	if val == 0 {
		return v.jumpTo(instr.P2)
	}
	return nil
}

func (v *VDBE) execIsNull(instr *Instruction) error {
	mem, err := v.GetMem(instr.P1)
	if err != nil {
		return err
	}
	if mem.IsNull() == (instr.Opcode == OpIsNull) {
		return v.jumpTo(instr.P2)
	}
	return nil
}

func (v *VDBE) execOnce(instr *Instruction) error {
	// Fall through the first time, jump to P2 afterwards
	if instr.P1 < 0 {
		return errors.NewVM(errors.Misuse, "negative once flag %d", instr.P1)
	}
	for len(v.onceFlags) <= instr.P1 {
		v.onceFlags = append(v.onceFlags, false)
	}
	if v.onceFlags[instr.P1] {
		return v.jumpTo(instr.P2)
	}
	v.onceFlags[instr.P1] = true
	return nil
}

func (v *VDBE) execJump(instr *Instruction) error {
	// Jump to P1, P2 or P3 as the last OpCompare found less, equal or greater
	target := instr.P2
	switch {
	case v.iCompare < 0:
		target = instr.P1
	case v.iCompare > 0:
		target = instr.P3
	}
	v.iCompare = 0
	return v.jumpTo(target)
}

func (v *VDBE) execCollSeq(instr *Instruction) error {
	v.collSeq = instr.p4Coll()
	if instr.P1 == 0 {
		return nil
	}
	mem, err := v.GetMem(instr.P1)
	if err != nil {
		return err
	}
	mem.setInt(0, true)
	return nil
}
