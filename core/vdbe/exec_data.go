package vdbe

import (
	"github.com/FocuswithJustin/vdbecore/core/errors"
)

func (v *VDBE) execInteger(instr *Instruction) error {
	// P2 = P1
	mem, err := v.GetMem(instr.P2)
	if err != nil {
		return err
	}
	mem.setInt(int64(instr.P1), true)
	return nil
}

func (v *VDBE) execInt64(instr *Instruction) error {
	// P2 = P4 (64-bit integer)
	mem, err := v.GetMem(instr.P2)
	if err != nil {
		return err
	}
	if instr.P4Type == P4Int32 {
		mem.setInt(int64(instr.P4.I), true)
		return nil
	}
	mem.setInt(instr.P4.I64, true)
	return nil
}

func (v *VDBE) execReal(instr *Instruction) error {
	// P2 = P4 (real)
	mem, err := v.GetMem(instr.P2)
	if err != nil {
		return err
	}
	mem.setReal(instr.P4.R, true)
	return nil
}

func (v *VDBE) execString(instr *Instruction) error {
	// P2 = P4 (string)
	mem, err := v.GetMem(instr.P2)
	if err != nil {
		return err
	}
	if len(instr.P4.Z) > v.config.MaxRecordSize {
		return errors.NewVM(errors.TooBig, "string of %d bytes exceeds limit", len(instr.P4.Z))
	}
	mem.SetText([]byte(instr.P4.Z), MemStatic)
	return nil
}

func (v *VDBE) execBlob(instr *Instruction) error {
	// P2 = P4 (blob)
	mem, err := v.GetMem(instr.P2)
	if err != nil {
		return err
	}
	if len(instr.P4.B) > v.config.MaxRecordSize {
		return errors.NewVM(errors.TooBig, "blob of %d bytes exceeds limit", len(instr.P4.B))
	}
	mem.SetBlobBytes(instr.P4.B, MemStatic)
	return nil
}

// execNull stores NULL in registers P2 through P3, or only P2 when P3 is
// smaller. A non-zero P1 marks the NULLs as cleared so that comparisons
// with NULLEQ never find them equal.
func (v *VDBE) execNull(instr *Instruction) error {
	last := instr.P3
	if last < instr.P2 {
		last = instr.P2
	}
	mems, err := v.memRange(instr.P2, last-instr.P2+1)
	if err != nil {
		return err
	}
	flags := MemNull
	if instr.P1 != 0 {
		flags |= MemCleared
	}
	for _, mem := range mems {
		mem.agg = nil
		mem.z = nil
		mem.nZero = 0
		mem.SetFlags(flags)
	}
	return nil
}

func (v *VDBE) execVariable(instr *Instruction) error {
	// P2 = parameter P1 (1-based)
	if instr.P1 < 1 || instr.P1 > len(v.Vars) {
		return errors.NewVM(errors.Misuse, "parameter %d out of range [1, %d]", instr.P1, len(v.Vars))
	}
	mem, err := v.GetMem(instr.P2)
	if err != nil {
		return err
	}
	val := v.Vars[instr.P1-1]
	if val.TooBig(v.config.MaxRecordSize) {
		return errors.NewVM(errors.TooBig, "parameter %d exceeds size limit", instr.P1)
	}
	mem.ShallowCopy(val, MemStatic)
	return nil
}

func (v *VDBE) execMove(instr *Instruction) error {
	// Move P3 registers from P1 to P2
	n := instr.P3
	if n <= 0 {
		n = 1
	}
	src, err := v.memRange(instr.P1, n)
	if err != nil {
		return err
	}
	dst, err := v.memRange(instr.P2, n)
	if err != nil {
		return err
	}
	for i := range src {
		dst[i].Move(src[i])
	}
	return nil
}

func (v *VDBE) execCopy(instr *Instruction) error {
	// Deep copy P3+1 registers from P1 to P2
	src, err := v.memRange(instr.P1, instr.P3+1)
	if err != nil {
		return err
	}
	dst, err := v.memRange(instr.P2, instr.P3+1)
	if err != nil {
		return err
	}
	for i := range src {
		dst[i].Copy(src[i])
	}
	return nil
}

func (v *VDBE) execSCopy(instr *Instruction) error {
	// Shallow copy P1 to P2
	src, err := v.GetMem(instr.P1)
	if err != nil {
		return err
	}
	dst, err := v.GetMem(instr.P2)
	if err != nil {
		return err
	}
	dst.ShallowCopy(src, MemEphem)
	return nil
}

// execResultRow publishes registers P1 through P1+P2-1 as the current row.
// Borrowed buffers are copied first because the cursors they point into
// may move before the caller reads the row.
func (v *VDBE) execResultRow(instr *Instruction) (stepResult, error) {
	row, err := v.memRange(instr.P1, instr.P2)
	if err != nil {
		return stepContinue, err
	}
	for _, mem := range row {
		if mem.Flags()&MemEphem != 0 {
			mem.MakeWriteable()
		}
	}
	v.ResultRow = row
	v.IncrCacheCtr()
	return stepRow, nil
}

func (v *VDBE) execAffinity(instr *Instruction) error {
	// Apply the affinity string P4 to P2 registers starting at P1
	aff := instr.P4.Z
	n := instr.P2
	if n == 0 {
		n = len(aff)
	}
	mems, err := v.memRange(instr.P1, n)
	if err != nil {
		return err
	}
	for i, mem := range mems {
		if i >= len(aff) {
			break
		}
		mem.ApplyAffinity(Affinity(aff[i]))
	}
	return nil
}

func (v *VDBE) execRealAffinity(instr *Instruction) error {
	mem, err := v.GetMem(instr.P1)
	if err != nil {
		return err
	}
	if mem.IsInt() {
		mem.Realify()
	}
	return nil
}

func (v *VDBE) execCast(instr *Instruction) error {
	// CAST(P1 AS affinity P2)
	mem, err := v.GetMem(instr.P1)
	if err != nil {
		return err
	}
	mem.ExpandBlob()
	return mem.Cast(Affinity(instr.P2))
}

// execMustBeInt converts P1 to an integer. If it cannot be converted
// exactly the program jumps to P2, or fails when P2 is zero.
func (v *VDBE) execMustBeInt(instr *Instruction) error {
	mem, err := v.GetMem(instr.P1)
	if err != nil {
		return err
	}
	if !mem.IsInt() {
		mem.ApplyAffinity(AffNumeric)
		if !mem.IsInt() {
			if instr.P2 == 0 {
				return errors.NewVM(errors.Mismatch, "datatype mismatch")
			}
			return v.jumpTo(instr.P2)
		}
	}
	mem.setTypeFlag(MemInt)
	return nil
}

// execMakeRecord encodes P2 registers starting at P1 into a record in P3,
// applying the affinity string P4 first.
func (v *VDBE) execMakeRecord(instr *Instruction) error {
	fields, err := v.memRange(instr.P1, instr.P2)
	if err != nil {
		return err
	}
	out, err := v.GetMem(instr.P3)
	if err != nil {
		return err
	}
	return MakeRecord(out, fields, instr.P4.Z, v.config.FileFormat, v.config.MaxRecordSize)
}
