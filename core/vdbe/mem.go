package vdbe

import (
	"fmt"
	"math"
)

// MemFlags represents the type and state flags for a Mem structure.
type MemFlags uint16

// Memory cell type flags - these indicate what type of value is stored.
// MemStr must stay exactly three bits below MemBlob; Cast relies on it.
const (
	MemNull      MemFlags = 0x0001 // Value is NULL
	MemStr       MemFlags = 0x0002 // Value is a string
	MemInt       MemFlags = 0x0004 // Value is an integer
	MemReal      MemFlags = 0x0008 // Value is a real number
	MemBlob      MemFlags = 0x0010 // Value is a BLOB
	MemRowSet    MemFlags = 0x0020 // Value is a row set
	MemFrame     MemFlags = 0x0040 // Value is a sub-program frame
	MemUndefined MemFlags = 0x0080 // Value is undefined
	MemCleared   MemFlags = 0x0100 // NULL set by OP_Null, not from data
	MemTypeMask  MemFlags = 0x01ff // Mask of type bits
	MemAffMask   MemFlags = 0x001f // Mask of the bits that decide a SQL type

	// Extra modifier flags
	MemTerm   MemFlags = 0x0200 // String buffer is complete text
	MemDyn    MemFlags = 0x0400 // Buffer was handed to the cell, which now owns it
	MemStatic MemFlags = 0x0800 // z points to static data
	MemEphem  MemFlags = 0x1000 // z points to data owned by someone else
	MemAgg    MemFlags = 0x2000 // Cell holds an aggregate context
	MemZero   MemFlags = 0x4000 // nZero zero bytes follow z
)

// memDynamic are the flags that mean the cell owns something that must be
// dropped before the cell is overwritten.
const memDynamic = MemAgg | MemDyn | MemRowSet | MemFrame

// Mem represents a memory cell in the VDBE. It can hold NULL, an integer,
// a real, a string or a blob. When the cell is bound to a cache slot every
// read and write of the flags and numeric payloads goes through the
// CacheHolder; the fields below remain the backing store.
type Mem struct {
	i int64   // Integer value (MemInt)
	r float64 // Real value (MemReal)
	z []byte  // String or blob value, len(z) is the byte count

	flags MemFlags
	nZero int // Zero bytes appended to a MemZero blob

	agg *aggContext // Aggregate state (MemAgg)

	slot  int // Cache slot, negative when uncached
	cache *CacheHolder
}

// NewMem creates a new undefined memory cell.
func NewMem() *Mem {
	return &Mem{flags: MemUndefined, slot: -1}
}

// NewMemNull creates a new NULL memory cell.
func NewMemNull() *Mem {
	return &Mem{flags: MemNull, slot: -1}
}

// NewMemInt creates a new integer memory cell.
func NewMemInt(val int64) *Mem {
	return &Mem{flags: MemInt, i: val, slot: -1}
}

// NewMemReal creates a new real memory cell. NaN becomes NULL.
func NewMemReal(val float64) *Mem {
	if math.IsNaN(val) {
		return NewMemNull()
	}
	return &Mem{flags: MemReal, r: val, slot: -1}
}

// NewMemStr creates a new string memory cell.
func NewMemStr(val string) *Mem {
	return &Mem{flags: MemStr | MemTerm, z: []byte(val), slot: -1}
}

// NewMemBlob creates a new blob memory cell holding a copy of val.
func NewMemBlob(val []byte) *Mem {
	z := make([]byte, len(val))
	copy(z, val)
	return &Mem{flags: MemBlob, z: z, slot: -1}
}

// NewMemZeroBlob creates a blob of n zero bytes without materializing them.
func NewMemZeroBlob(n int) *Mem {
	return &Mem{flags: MemBlob | MemZero, nZero: n, slot: -1}
}

func (m *Mem) cached() bool {
	return m.cache != nil && m.slot >= 0
}

// Flags returns the current flags.
func (m *Mem) Flags() MemFlags {
	if m.cached() {
		return m.cache.getFlags(m)
	}
	return m.flags
}

// SetFlags replaces the flags.
func (m *Mem) SetFlags(f MemFlags) {
	if m.cached() {
		m.cache.setFlags(m, f, true)
		return
	}
	m.flags = f
}

// AssureFlags tells the cache that the cell already holds flags f. The
// backing store is only written if it disagrees.
func (m *Mem) AssureFlags(f MemFlags) {
	if m.cached() {
		m.cache.setFlags(m, f, false)
		return
	}
	m.flags = f
}

// setTypeFlag replaces the type bits and drops MemZero, keeping the storage
// modifiers.
func (m *Mem) setTypeFlag(f MemFlags) {
	m.SetFlags(m.Flags()&^(MemTypeMask|MemZero) | f)
}

func (m *Mem) intPayload() int64 {
	if m.cached() {
		return m.cache.getInt(m)
	}
	return m.i
}

func (m *Mem) setIntPayload(v int64, constant bool) {
	m.i = v
	if m.cached() {
		m.cache.intWritten(m.slot, v, constant)
	}
}

// isConstantInt reports whether the integer payload is a cached constant.
func (m *Mem) isConstantInt() bool {
	return m.cached() && m.cache.IsConstantInt(m)
}

func (m *Mem) realPayload() float64 {
	if m.cached() {
		return m.cache.getReal(m)
	}
	return m.r
}

func (m *Mem) setRealPayload(v float64, constant bool) {
	m.r = v
	if m.cached() {
		m.cache.realWritten(m.slot, v, constant)
	}
}

// invalidate forgets anything the cache knows about the cell. Used after
// the backing fields are written directly.
func (m *Mem) invalidate() {
	if m.cached() {
		m.cache.Invalidate(m.slot)
	}
}

// IsNull returns true if the value is NULL.
func (m *Mem) IsNull() bool {
	return m.Flags()&MemNull != 0
}

// IsInt returns true if the value is an integer.
func (m *Mem) IsInt() bool {
	return m.Flags()&MemInt != 0
}

// IsReal returns true if the value is a real number.
func (m *Mem) IsReal() bool {
	return m.Flags()&MemReal != 0
}

// IsStr returns true if the value is a string.
func (m *Mem) IsStr() bool {
	return m.Flags()&MemStr != 0
}

// IsBlob returns true if the value is a blob.
func (m *Mem) IsBlob() bool {
	return m.Flags()&MemBlob != 0
}

// IsNumeric returns true if the value is an integer or real.
func (m *Mem) IsNumeric() bool {
	return m.Flags()&(MemInt|MemReal) != 0
}

// IsUndefined returns true if the cell has never been given a value or was
// released.
func (m *Mem) IsUndefined() bool {
	return m.Flags()&MemUndefined != 0
}

// Len returns the byte length of a string or blob, counting zero padding.
func (m *Mem) Len() int {
	n := len(m.z)
	if m.Flags()&MemZero != 0 {
		n += m.nZero
	}
	return n
}

// Bytes returns the raw buffer without zero padding. The slice is shared
// with the cell.
func (m *Mem) Bytes() []byte {
	return m.z
}

// release drops aggregate contexts, frames and owned buffers so the cell
// can take a new value.
func (m *Mem) release() {
	if m.Flags()&memDynamic != 0 {
		m.agg = nil
		m.z = nil
		m.nZero = 0
		m.SetFlags(MemNull)
	}
}

// Release frees everything the cell holds and leaves it undefined.
func (m *Mem) Release() {
	m.agg = nil
	m.z = nil
	m.nZero = 0
	m.SetFlags(MemUndefined)
}

// SetNull sets the value to NULL, keeping any borrowed buffer reference.
func (m *Mem) SetNull() {
	if m.Flags()&memDynamic != 0 {
		m.release()
		return
	}
	m.setTypeFlag(MemNull)
}

// SetInt sets the value to an integer.
func (m *Mem) SetInt(val int64) {
	m.setInt(val, false)
}

func (m *Mem) setInt(val int64, constant bool) {
	if m.Flags() != MemInt {
		m.release()
		m.z = nil
		m.SetFlags(MemInt)
	}
	m.setIntPayload(val, constant)
}

// SetReal sets the value to a real number. NaN is stored as NULL.
func (m *Mem) SetReal(val float64) {
	m.setReal(val, false)
}

func (m *Mem) setReal(val float64, constant bool) {
	if math.IsNaN(val) {
		m.SetNull()
		return
	}
	if m.Flags() != MemReal {
		m.release()
		m.z = nil
		m.SetFlags(MemReal)
	}
	m.setRealPayload(val, constant)
}

// SetText stores text. With MemStatic or MemEphem the cell borrows z,
// with MemDyn it takes ownership of z, and with 0 it keeps its own copy.
func (m *Mem) SetText(z []byte, storage MemFlags) {
	m.setBytes(z, MemStr|MemTerm, storage)
}

// SetBlobBytes stores a blob with the same storage rules as SetText.
func (m *Mem) SetBlobBytes(z []byte, storage MemFlags) {
	m.setBytes(z, MemBlob, storage)
}

func (m *Mem) setBytes(z []byte, typ, storage MemFlags) {
	m.release()
	storage &= MemStatic | MemEphem | MemDyn
	if storage == 0 {
		buf := make([]byte, len(z))
		copy(buf, z)
		z = buf
	}
	m.z = z
	m.nZero = 0
	m.SetFlags(typ | storage)
}

// SetStr sets the value to a string.
func (m *Mem) SetStr(val string) {
	m.SetText([]byte(val), MemDyn)
}

// SetBlob sets the value to a copy of val.
func (m *Mem) SetBlob(val []byte) {
	m.SetBlobBytes(val, 0)
}

// SetZeroBlob sets the value to n zero bytes without allocating them.
func (m *Mem) SetZeroBlob(n int) {
	m.release()
	m.z = nil
	m.nZero = n
	m.SetFlags(MemBlob | MemZero)
}

// TooBig reports whether a string or blob is longer than limit bytes.
func (m *Mem) TooBig(limit int) bool {
	if m.Flags()&(MemStr|MemBlob) == 0 {
		return false
	}
	return m.Len() > limit
}

// ExpandBlob materializes the zero padding of a MemZero blob.
func (m *Mem) ExpandBlob() {
	f := m.Flags()
	if f&MemZero == 0 {
		return
	}
	buf := make([]byte, len(m.z)+m.nZero)
	copy(buf, m.z)
	m.z = buf
	m.nZero = 0
	m.SetFlags(f&^(MemZero|MemEphem|MemStatic|MemDyn) | MemTerm)
}

// MakeWriteable gives the cell its own copy of a borrowed buffer.
func (m *Mem) MakeWriteable() {
	m.ExpandBlob()
	f := m.Flags()
	if f&(MemStr|MemBlob) == 0 || f&(MemEphem|MemStatic) == 0 {
		return
	}
	buf := make([]byte, len(m.z))
	copy(buf, m.z)
	m.z = buf
	m.SetFlags(f&^(MemEphem|MemStatic) | MemTerm)
}

// ShallowCopy makes m a copy of from that shares its buffer. Unless from
// holds static data, the copy is tagged with srcType (MemEphem or
// MemStatic) to record that it borrows.
func (m *Mem) ShallowCopy(from *Mem, srcType MemFlags) {
	if m.Flags()&memDynamic != 0 {
		m.release()
	}
	f := from.Flags()
	if f&MemReal != 0 {
		m.setRealPayload(from.realPayload(), false)
	}
	if f&MemInt != 0 {
		m.setIntPayload(from.intPayload(), false)
	}
	m.z = from.z
	m.nZero = from.nZero
	m.agg = nil
	if f&MemStatic == 0 {
		f &^= MemDyn | MemStatic | MemEphem | MemAgg
		f |= srcType
	}
	m.SetFlags(f)
}

// Copy makes m a deep copy of from.
func (m *Mem) Copy(from *Mem) {
	m.ShallowCopy(from, MemEphem)
	if m.Flags()&MemEphem != 0 {
		m.MakeWriteable()
	}
}

// Move transfers the value of from into m and leaves from NULL.
func (m *Mem) Move(from *Mem) {
	if m == from {
		return
	}
	m.release()
	f := from.Flags()
	m.i = from.intPayload()
	m.r = from.realPayload()
	m.z = from.z
	m.nZero = from.nZero
	m.agg = from.agg
	m.flags = f
	m.invalidate()
	m.AssureFlags(f)

	from.z = nil
	from.agg = nil
	from.nZero = 0
	from.SetFlags(MemNull)
}

// ColumnType is the SQL storage class of a value as seen by callers.
type ColumnType int

// Storage classes, numbered as the C API numbers them.
const (
	TypeInteger ColumnType = 1
	TypeFloat   ColumnType = 2
	TypeText    ColumnType = 3
	TypeBlob    ColumnType = 4
	TypeNull    ColumnType = 5
)

func (t ColumnType) String() string {
	switch t {
	case TypeInteger:
		return "integer"
	case TypeFloat:
		return "real"
	case TypeText:
		return "text"
	case TypeBlob:
		return "blob"
	}
	return "null"
}

// Type returns the storage class of the value. NULL wins over every other
// bit, then integer, real, text and blob in that order.
func (m *Mem) Type() ColumnType {
	f := m.Flags()
	switch {
	case f&(MemNull|MemUndefined) != 0:
		return TypeNull
	case f&MemInt != 0:
		return TypeInteger
	case f&MemReal != 0:
		return TypeFloat
	case f&MemStr != 0:
		return TypeText
	}
	return TypeBlob
}

// Value returns the value as a Go value: nil, int64, float64, string or
// []byte.
func (m *Mem) Value() interface{} {
	switch m.Type() {
	case TypeInteger:
		return m.intPayload()
	case TypeFloat:
		return m.realPayload()
	case TypeText:
		return string(m.z)
	case TypeBlob:
		m.ExpandBlob()
		return append([]byte(nil), m.z...)
	}
	return nil
}

// String returns a string representation of the memory cell for debugging.
func (m *Mem) String() string {
	f := m.Flags()
	switch {
	case f&MemUndefined != 0:
		return "UNDEFINED"
	case f&MemNull != 0:
		return "NULL"
	case f&MemInt != 0:
		return fmt.Sprintf("INT(%d)", m.intPayload())
	case f&MemReal != 0:
		return fmt.Sprintf("REAL(%g)", m.realPayload())
	case f&MemStr != 0:
		return fmt.Sprintf("STR(%q)", string(m.z))
	case f&MemBlob != 0:
		return fmt.Sprintf("BLOB(%d bytes)", m.Len())
	}
	return "UNDEFINED"
}
