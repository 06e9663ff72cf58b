package vdbe

import (
	"context"
	"math"

	"github.com/FocuswithJustin/vdbecore/core/errors"
	"github.com/FocuswithJustin/vdbecore/internal/logging"
)

// setCursor installs c in slot i, closing whatever was there.
func (v *VDBE) setCursor(i int, c *Cursor) error {
	if i < 0 {
		return errors.NewVM(errors.Misuse, "negative cursor index %d", i)
	}
	if i >= len(v.Cursors) {
		if err := v.AllocCursors(i + 1); err != nil {
			return err
		}
	}
	if old := v.Cursors[i]; old != nil {
		if err := old.close(); err != nil {
			return err
		}
	}
	v.Cursors[i] = c
	return nil
}

// btCursor returns cursor i, which must be backed by storage.
func (v *VDBE) btCursor(i int) (*Cursor, error) {
	c, err := v.GetCursor(i)
	if err != nil {
		return nil, err
	}
	if c.Bt == nil {
		return nil, errors.NewVM(errors.Misuse, "cursor %d has no storage", i)
	}
	return c, nil
}

func (in *Instruction) p4KeyInfo() *KeyInfo {
	if in.P4Type == P4KeyInfo {
		return in.P4.KeyInfo
	}
	return nil
}

func (v *VDBE) execOpen(ctx context.Context, instr *Instruction) error {
	// Open cursor P1 on the tree rooted at P2
	if v.Storage == nil {
		return errors.NewVM(errors.Misuse, "no storage attached")
	}
	ki := instr.p4KeyInfo()
	writable := instr.Opcode == OpOpenWrite
	bt, err := v.Storage.Open(instr.P2, writable, ki)
	if err != nil {
		return err
	}
	c := &Cursor{
		CurType:  CursorBTree,
		IsTable:  ki == nil,
		Writable: writable,
		Bt:       bt,
		KeyInfo:  ki,
		NField:   ki.NField(),
	}
	if err := v.setCursor(instr.P1, c); err != nil {
		bt.Close()
		return err
	}
	logging.CursorEvent(ctx, v.StatementID, "open", instr.P1, "root", instr.P2, "write", writable)
	return nil
}

func (v *VDBE) execOpenEphemeral(ctx context.Context, instr *Instruction) error {
	// Open cursor P1 on a new private tree of P2 columns
	if v.Storage == nil {
		return errors.NewVM(errors.Misuse, "no storage attached")
	}
	ki := instr.p4KeyInfo()
	bt, err := v.Storage.OpenEphemeral(ki)
	if err != nil {
		return err
	}
	c := &Cursor{
		CurType:  CursorBTree,
		IsTable:  ki == nil,
		Writable: true,
		Bt:       bt,
		KeyInfo:  ki,
		NField:   instr.P2,
	}
	if err := v.setCursor(instr.P1, c); err != nil {
		bt.Close()
		return err
	}
	logging.CursorEvent(ctx, v.StatementID, "open ephemeral", instr.P1, "columns", instr.P2)
	return nil
}

func (v *VDBE) execOpenPseudo(instr *Instruction) error {
	// Cursor P1 reads the single row held in register P2
	if _, err := v.GetMem(instr.P2); err != nil {
		return err
	}
	return v.setCursor(instr.P1, &Cursor{
		CurType:   CursorPseudo,
		IsTable:   true,
		PseudoReg: instr.P2,
		NField:    instr.P3,
	})
}

// execRewind implements Rewind, Sort and Last: move to the first (or last)
// entry and jump to P2 if there is none.
func (v *VDBE) execRewind(instr *Instruction) error {
	c, err := v.btCursor(instr.P1)
	if err != nil {
		return err
	}
	var empty bool
	if instr.Opcode == OpLast {
		empty, err = c.Bt.Last()
	} else {
		empty, err = c.Bt.First()
	}
	if err != nil {
		return err
	}
	if instr.Opcode == OpSort {
		v.counters.Sort++
	}
	c.DeferredMoveto = false
	c.NullRow = empty
	c.invalidate()
	if empty {
		return v.jumpTo(instr.P2)
	}
	return nil
}

// execNext implements Next and Prev. While the cursor finds another entry
// the program loops back to P2 and the statement counter P5 is bumped.
func (v *VDBE) execNext(ctx context.Context, instr *Instruction) error {
	c, err := v.btCursor(instr.P1)
	if err != nil {
		return err
	}
	var more bool
	if instr.Opcode == OpPrev {
		more, err = c.Bt.Previous()
	} else {
		more, err = c.Bt.Next()
	}
	if err != nil {
		return err
	}
	c.invalidate()
	if !more {
		c.NullRow = true
		return nil
	}
	c.NullRow = false
	v.addCounter(instr.P5)
	if err := v.checkInterrupt(ctx); err != nil {
		return err
	}
	return v.jumpTo(instr.P2)
}

// execSeekCmp implements SeekLT, SeekLE, SeekGE and SeekGT. The cursor is
// left on the entry nearest the key in the direction of the comparison;
// if no entry satisfies it the program jumps to P2.
//
// Table cursors take the rowid from register P3. Index cursors take a key
// of P4 registers starting at P3.
func (v *VDBE) execSeekCmp(instr *Instruction) error {
	c, err := v.btCursor(instr.P1)
	if err != nil {
		return err
	}
	op := instr.Opcode
	c.NullRow = false
	c.DeferredMoveto = false
	c.invalidate()

	var res int
	if c.IsTable {
		in3, err := v.GetMem(instr.P3)
		if err != nil {
			return err
		}
		in3.ApplyNumericAffinity(false)
		iKey := in3.IntValue()
		if !in3.IsInt() {
			if !in3.IsReal() {
				return v.jumpTo(instr.P2)
			}
			// iKey is the real truncated toward zero. Adjust the
			// comparison so that seeking the integer finds the same rows.
			r := in3.RealValue()
			if r < float64(iKey) {
				if op == OpSeekGT {
					op = OpSeekGE
				} else if op == OpSeekLE {
					op = OpSeekLT
				}
			} else if r > float64(iKey) {
				if op == OpSeekLT {
					op = OpSeekLE
				} else if op == OpSeekGE {
					op = OpSeekGT
				}
			}
		}
		res, err = c.Bt.MovetoRowid(iKey)
		if err != nil {
			return err
		}
	} else {
		mems, err := v.memRange(instr.P3, int(instr.P4.I))
		if err != nil {
			return err
		}
		key := &UnpackedRecord{KeyInfo: c.KeyInfo, Mems: mems, DefaultRC: 1}
		if op == OpSeekGT || op == OpSeekLE {
			key.DefaultRC = -1
		}
		res, err = c.Bt.MovetoKey(key)
		if err != nil {
			return err
		}
	}

	notFound := false
	if op == OpSeekGE || op == OpSeekGT {
		if res < 0 || (res == 0 && op == OpSeekGT) {
			ok, err := c.Bt.Next()
			if err != nil {
				return err
			}
			notFound = !ok
		}
	} else {
		if res > 0 || (res == 0 && op == OpSeekLT) {
			ok, err := c.Bt.Previous()
			if err != nil {
				return err
			}
			notFound = !ok
		} else {
			notFound = !c.Bt.Valid()
		}
	}
	if notFound {
		return v.jumpTo(instr.P2)
	}
	return nil
}

func (v *VDBE) execSeek(instr *Instruction) error {
	// Deferred seek of cursor P1 to the rowid in register P2
	c, err := v.btCursor(instr.P1)
	if err != nil {
		return err
	}
	mem, err := v.GetMem(instr.P2)
	if err != nil {
		return err
	}
	c.NullRow = false
	c.MovetoTarget = mem.IntValue()
	c.DeferredMoveto = true
	c.invalidate()
	return nil
}

func (v *VDBE) execNotExists(instr *Instruction) error {
	// Jump to P2 if table cursor P1 has no row with the rowid in P3
	c, err := v.btCursor(instr.P1)
	if err != nil {
		return err
	}
	mem, err := v.GetMem(instr.P3)
	if err != nil {
		return err
	}
	res, err := c.Bt.MovetoRowid(mem.IntValue())
	if err != nil {
		return err
	}
	c.NullRow = false
	c.DeferredMoveto = false
	c.SeekResult = res
	c.invalidate()
	if res != 0 {
		return v.jumpTo(instr.P2)
	}
	return nil
}

// execFound implements Found and NotFound on index cursor P1. With P4 > 0
// the key is P4 registers starting at P3; otherwise register P3 holds a
// record.
func (v *VDBE) execFound(instr *Instruction) error {
	c, err := v.btCursor(instr.P1)
	if err != nil {
		return err
	}
	var key *UnpackedRecord
	if n := int(instr.P4.I); instr.P4Type == P4Int32 && n > 0 {
		mems, err := v.memRange(instr.P3, n)
		if err != nil {
			return err
		}
		key = &UnpackedRecord{KeyInfo: c.KeyInfo, Mems: mems}
	} else {
		rec, err := v.GetMem(instr.P3)
		if err != nil {
			return err
		}
		key, err = UnpackRecord(c.KeyInfo, rec.BlobValue())
		if err != nil {
			return err
		}
	}
	res, err := c.Bt.MovetoKey(key)
	if err != nil {
		return err
	}
	c.NullRow = false
	c.DeferredMoveto = false
	c.SeekResult = res
	c.invalidate()
	if (res == 0) == (instr.Opcode == OpFound) {
		return v.jumpTo(instr.P2)
	}
	return nil
}

// execIdxCmp implements IdxLE, IdxGT, IdxLT and IdxGE: compare the index
// entry under cursor P1 with the key of P4 registers at P3 and jump to P2
// when the relation holds. Fields of the entry beyond the key are ignored.
func (v *VDBE) execIdxCmp(instr *Instruction) error {
	c, err := v.btCursor(instr.P1)
	if err != nil {
		return err
	}
	if err := c.moveto(); err != nil {
		return err
	}
	mems, err := v.memRange(instr.P3, int(instr.P4.I))
	if err != nil {
		return err
	}
	key := &UnpackedRecord{KeyInfo: c.KeyInfo, Mems: mems}
	if instr.Opcode == OpIdxLE || instr.Opcode == OpIdxGT {
		key.DefaultRC = -1
	}
	res, err := c.Bt.CompareKey(key)
	if err != nil {
		return err
	}
	if instr.Opcode == OpIdxLE || instr.Opcode == OpIdxLT {
		res = -res
	} else {
		res++
	}
	if res > 0 {
		return v.jumpTo(instr.P2)
	}
	return nil
}

func (v *VDBE) execIdxRowid(instr *Instruction) error {
	// P2 = rowid stored as the last field of the index entry under P1
	c, err := v.btCursor(instr.P1)
	if err != nil {
		return err
	}
	out, err := v.GetMem(instr.P2)
	if err != nil {
		return err
	}
	if c.NullRow {
		out.SetNull()
		return nil
	}
	if err := c.moveto(); err != nil {
		return err
	}
	key, err := c.Bt.Key()
	if err != nil {
		return err
	}
	types, offsets, err := RecordHeader(key)
	if err != nil {
		return err
	}
	if len(types) == 0 {
		return errors.NewVM(errors.Corrupt, "index entry has no rowid")
	}
	last := len(types) - 1
	_, err = out.SerialGet(key[offsets[last]:], types[last], 0)
	return err
}

// rowBytes returns the record under cursor c, or nil when there is none.
func (v *VDBE) rowBytes(c *Cursor) ([]byte, error) {
	if c.CurType == CursorPseudo {
		reg, err := v.GetMem(c.PseudoReg)
		if err != nil {
			return nil, err
		}
		if reg.Flags()&(MemBlob|MemStr) == 0 {
			return nil, nil
		}
		return reg.BlobValue(), nil
	}
	if !c.Bt.Valid() {
		return nil, nil
	}
	if c.IsTable {
		return c.Bt.Data()
	}
	return c.Bt.Key()
}

// execColumn reads column P2 of the row under cursor P1 into register P3.
// A record with fewer fields gives the default in P4, or NULL.
//
// The parsed header is kept on the cursor until the cursor moves or a row
// is returned to the caller.
func (v *VDBE) execColumn(instr *Instruction) error {
	c, err := v.GetCursor(instr.P1)
	if err != nil {
		return err
	}
	out, err := v.GetMem(instr.P3)
	if err != nil {
		return err
	}
	if c.NullRow {
		out.SetNull()
		return nil
	}
	if err := c.moveto(); err != nil {
		return err
	}

	if c.CacheStatus != v.CacheCtr || c.CurType == CursorPseudo {
		row, err := v.rowBytes(c)
		if err != nil {
			return err
		}
		c.row = row
		c.types, c.offsets = nil, nil
		if len(row) > 0 {
			c.types, c.offsets, err = RecordHeader(row)
			if err != nil {
				return err
			}
		}
		c.CacheStatus = v.CacheCtr
	}

	if instr.P2 < 0 || instr.P2 >= len(c.types) {
		instr.setDefault(out)
		return nil
	}
	_, err = out.SerialGet(c.row[c.offsets[instr.P2]:], c.types[instr.P2], 0)
	return err
}

// setDefault stores the P4 operand of an OpColumn in m, or NULL.
func (in *Instruction) setDefault(m *Mem) {
	switch in.P4Type {
	case P4Int32:
		m.SetInt(int64(in.P4.I))
	case P4Int64:
		m.SetInt(in.P4.I64)
	case P4Real:
		m.SetReal(in.P4.R)
	case P4Static:
		m.SetStr(in.P4.Z)
	case P4Blob:
		m.SetBlob(in.P4.B)
	default:
		m.SetNull()
	}
}

func (v *VDBE) execRowid(instr *Instruction) error {
	// P2 = rowid of the row under cursor P1
	c, err := v.btCursor(instr.P1)
	if err != nil {
		return err
	}
	out, err := v.GetMem(instr.P2)
	if err != nil {
		return err
	}
	switch {
	case c.NullRow:
		out.SetNull()
	case c.DeferredMoveto:
		out.SetInt(c.MovetoTarget)
	default:
		rowid, err := c.Bt.Rowid()
		if err != nil {
			return err
		}
		out.SetInt(rowid)
	}
	return nil
}

func (v *VDBE) execNullRow(instr *Instruction) error {
	c, err := v.GetCursor(instr.P1)
	if err != nil {
		return err
	}
	c.NullRow = true
	c.invalidate()
	return nil
}

func (v *VDBE) execSequence(instr *Instruction) error {
	// P2 = next sequence number of cursor P1
	c, err := v.GetCursor(instr.P1)
	if err != nil {
		return err
	}
	out, err := v.GetMem(instr.P2)
	if err != nil {
		return err
	}
	out.SetInt(c.SeqCount)
	c.SeqCount++
	return nil
}

// execNewRowid stores in P2 a rowid one larger than the largest in the
// table of cursor P1.
func (v *VDBE) execNewRowid(instr *Instruction) error {
	c, err := v.btCursor(instr.P1)
	if err != nil {
		return err
	}
	out, err := v.GetMem(instr.P2)
	if err != nil {
		return err
	}
	empty, err := c.Bt.Last()
	if err != nil {
		return err
	}
	rowid := int64(1)
	if !empty {
		last, err := c.Bt.Rowid()
		if err != nil {
			return err
		}
		if last == math.MaxInt64 {
			return errors.NewVM(errors.Full, "database or disk is full")
		}
		rowid = last + 1
	}
	c.LastRowid = rowid
	c.DeferredMoveto = false
	c.invalidate()
	out.SetInt(rowid)
	return nil
}

// execInsert writes the record in P2 under the rowid in P3 through table
// cursor P1.
func (v *VDBE) execInsert(instr *Instruction) error {
	c, err := v.btCursor(instr.P1)
	if err != nil {
		return err
	}
	if !c.Writable {
		return errors.NewVM(errors.Misuse, "cursor %d is read-only", instr.P1)
	}
	data, err := v.GetMem(instr.P2)
	if err != nil {
		return err
	}
	key, err := v.GetMem(instr.P3)
	if err != nil {
		return err
	}
	if !key.IsInt() {
		return errors.NewVM(errors.Mismatch, "rowid register %d is not an integer", instr.P3)
	}
	rowid := key.intPayload()
	var payload []byte
	if !data.IsNull() {
		payload = data.BlobValue()
	}
	if err := c.Bt.Insert(rowid, nil, payload); err != nil {
		return err
	}
	if instr.P5&OpflagNChange != 0 {
		v.NumChanges++
	}
	if instr.P5&OpflagLastRowid != 0 {
		v.LastInsertRowid = rowid
	}
	c.DeferredMoveto = false
	c.NullRow = false
	c.invalidate()
	return nil
}

func (v *VDBE) execDelete(instr *Instruction) error {
	// Delete the entry under cursor P1
	c, err := v.btCursor(instr.P1)
	if err != nil {
		return err
	}
	if !c.Writable {
		return errors.NewVM(errors.Misuse, "cursor %d is read-only", instr.P1)
	}
	if err := c.moveto(); err != nil {
		return err
	}
	if err := c.Bt.Delete(); err != nil {
		return err
	}
	if uint16(instr.P2)&OpflagNChange != 0 {
		v.NumChanges++
	}
	c.invalidate()
	return nil
}

func (v *VDBE) execIdxInsert(instr *Instruction) error {
	// Insert the record in P2 into index cursor P1
	c, err := v.btCursor(instr.P1)
	if err != nil {
		return err
	}
	if !c.Writable {
		return errors.NewVM(errors.Misuse, "cursor %d is read-only", instr.P1)
	}
	rec, err := v.GetMem(instr.P2)
	if err != nil {
		return err
	}
	if !rec.IsBlob() {
		return errors.NewVM(errors.Misuse, "index key register %d is not a record", instr.P2)
	}
	if err := c.Bt.Insert(0, rec.BlobValue(), nil); err != nil {
		return err
	}
	if instr.P5&OpflagNChange != 0 {
		v.NumChanges++
	}
	c.invalidate()
	return nil
}
