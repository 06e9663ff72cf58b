package vdbe

import (
	"math"

	"github.com/FocuswithJustin/vdbecore/core/errors"
	"github.com/FocuswithJustin/vdbecore/core/utf"
)

// Record format:
//
//	[header size varint][serial type varint]...[content]...
//
// Serial types:
//
//	0      NULL
//	1..6   big-endian signed integer of 1, 2, 3, 4, 6 or 8 bytes
//	7      IEEE 754 big-endian float
//	8, 9   the integers 0 and 1, no content
//	10, 11 reserved
//	N>=12  even: blob of (N-12)/2 bytes, odd: text of (N-13)/2 bytes

// maxSixByte is the largest magnitude stored in a 6 byte integer.
const maxSixByte = (int64(0x00008000) << 32) - 1

var serialTypeSizes = [12]int{0, 1, 2, 3, 4, 6, 8, 8, 0, 0, 0, 0}

// SerialTypeLen returns the content length of a serial type.
func SerialTypeLen(serialType uint32) int {
	if serialType >= 12 {
		return int(serialType-12) / 2
	}
	return serialTypeSizes[serialType]
}

func intSerialType(i int64, fileFormat int) uint32 {
	var u uint64
	if i < 0 {
		if i < -maxSixByte {
			return 6
		}
		u = uint64(-i)
	} else {
		u = uint64(i)
	}
	switch {
	case u <= 1 && fileFormat > 4:
		return 8 + uint32(u)
	case u <= 127:
		return 1
	case u <= 32767:
		return 2
	case u <= 8388607:
		return 3
	case u <= 2147483647:
		return 4
	case u <= uint64(maxSixByte):
		return 5
	}
	return 6
}

// SerialTypeLenHdr classifies the value for the record format. It returns
// the serial type, the content length and the number of header bytes the
// serial type needs.
func (m *Mem) SerialTypeLenHdr(fileFormat int) (serialType uint32, length int, hdrLen int) {
	f := m.Flags()
	switch {
	case f&(MemNull|MemUndefined) != 0:
		serialType = 0
	case f&MemInt != 0:
		serialType = intSerialType(m.intPayload(), fileFormat)
	case f&MemReal != 0:
		serialType = 7
	default:
		n := m.Len()
		serialType = uint32(n*2 + 12)
		if f&MemStr != 0 {
			serialType++
		}
	}
	length = SerialTypeLen(serialType)
	hdrLen = 1
	if serialType > 127 {
		hdrLen = utf.VarintLen(uint64(serialType))
	}
	return serialType, length, hdrLen
}

// SerialPut writes the content of the value for the given serial type into
// buf and returns the number of bytes written. Zero padding of a MemZero
// blob is not written.
func (m *Mem) SerialPut(buf []byte, serialType uint32) int {
	if serialType >= 12 {
		return copy(buf, m.z)
	}
	n := serialTypeSizes[serialType]
	if n == 0 {
		return 0
	}
	var v uint64
	if serialType == 7 {
		v = math.Float64bits(m.realPayload())
	} else {
		v = uint64(m.intPayload())
	}
	for i := n - 1; i >= 0; i-- {
		buf[i] = byte(v)
		v >>= 8
	}
	return n
}

// SerialGet decodes one field of the given serial type from buf into m.
// With storage MemEphem text and blobs borrow buf; with 0 they are copied.
func (m *Mem) SerialGet(buf []byte, serialType uint32, storage MemFlags) (int, error) {
	if serialType == 10 || serialType == 11 {
		return 0, errors.NewVM(errors.Corrupt, "reserved serial type %d", serialType)
	}
	n := SerialTypeLen(serialType)
	if len(buf) < n {
		return 0, errors.NewVM(errors.Corrupt, "field of %d bytes overruns record", n)
	}
	switch {
	case serialType == 0:
		m.SetNull()
	case serialType == 7:
		m.SetReal(math.Float64frombits(getBigEndian(buf[:8])))
	case serialType == 8:
		m.SetInt(0)
	case serialType == 9:
		m.SetInt(1)
	case serialType < 7:
		v := getBigEndian(buf[:n])
		shift := uint(64 - 8*n)
		m.SetInt(int64(v<<shift) >> shift)
	case serialType&1 == 1:
		m.SetText(buf[:n], storage)
	default:
		m.SetBlobBytes(buf[:n], storage)
	}
	return n, nil
}

func getBigEndian(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

// RecordHeader parses the header of a record and returns the serial type
// and content offset of every field.
func RecordHeader(buf []byte) (types []uint32, offsets []int, err error) {
	hdrSize, n := utf.GetVarint(buf)
	if n == 0 || hdrSize < uint64(n) || hdrSize > uint64(len(buf)) {
		return nil, nil, errors.NewVM(errors.Corrupt, "bad record header size %d", hdrSize)
	}
	pos := n
	off := int(hdrSize)
	for pos < int(hdrSize) {
		st, k := utf.GetVarint(buf[pos:int(hdrSize)])
		if k == 0 || st > math.MaxUint32 {
			return nil, nil, errors.NewVM(errors.Corrupt, "bad serial type at header offset %d", pos)
		}
		pos += k
		types = append(types, uint32(st))
		offsets = append(offsets, off)
		off += SerialTypeLen(uint32(st))
	}
	if off > len(buf) {
		return nil, nil, errors.NewVM(errors.Corrupt, "record content of %d bytes exceeds buffer of %d", off, len(buf))
	}
	return types, offsets, nil
}

// DecodeRecord decodes every field of a record into new cells.
func DecodeRecord(buf []byte) ([]*Mem, error) {
	types, offsets, err := RecordHeader(buf)
	if err != nil {
		return nil, err
	}
	mems := make([]*Mem, len(types))
	for i, st := range types {
		m := NewMem()
		if _, err := m.SerialGet(buf[offsets[i]:], st, 0); err != nil {
			return nil, err
		}
		mems[i] = m
	}
	return mems, nil
}

// MakeRecord applies affinity to fields and encodes them into out as a
// record blob. A zero-padded blob at the end of the record keeps its
// padding in out's zero count instead of the buffer.
func MakeRecord(out *Mem, fields []*Mem, affinity string, fileFormat int, maxSize int) error {
	for j, m := range fields {
		if j >= len(affinity) {
			break
		}
		m.ApplyAffinity(Affinity(affinity[j]))
	}

	type fieldSize struct {
		serialType uint32
		length     int
		hdrLen     int
	}
	sizes := make([]fieldSize, len(fields))
	nData, nHdr, nZero := 0, 0, 0
	for j := len(fields) - 1; j >= 0; j-- {
		m := fields[j]
		st, length, hdrLen := m.SerialTypeLenHdr(fileFormat)
		if m.Flags()&MemZero != 0 {
			if nData != 0 {
				m.ExpandBlob()
			} else {
				nZero += m.nZero
				length -= m.nZero
			}
		}
		sizes[j] = fieldSize{st, length, hdrLen}
		nData += length
		nHdr += hdrLen
	}

	if nHdr <= 126 {
		nHdr++
	} else {
		nVarint := utf.VarintLen(uint64(nHdr))
		nHdr += nVarint
		if nVarint < utf.VarintLen(uint64(nHdr)) {
			nHdr++
		}
	}
	nByte := nHdr + nData
	if nByte+nZero > maxSize {
		return errors.NewVM(errors.TooBig, "record of %d bytes exceeds limit of %d", nByte+nZero, maxSize)
	}

	buf := make([]byte, nByte)
	i := utf.PutVarint(buf, uint64(nHdr))
	j := nHdr
	for k, m := range fields {
		st := sizes[k].serialType
		if sizes[k].hdrLen == 1 {
			buf[i] = byte(st)
			i++
		} else {
			i += utf.PutVarint(buf[i:], uint64(st))
		}
		j += m.SerialPut(buf[j:], st)
	}

	out.release()
	out.z = buf
	out.nZero = nZero
	out.agg = nil
	if nZero > 0 {
		out.SetFlags(MemBlob | MemZero)
	} else {
		out.SetFlags(MemBlob)
	}
	return nil
}

// KeyInfo describes how index keys compare: one collation and sort order
// per key column.
type KeyInfo struct {
	Collations []utf.Collation
	Desc       []bool
}

// NField returns the number of key columns described.
func (k *KeyInfo) NField() int {
	if k == nil {
		return 0
	}
	return len(k.Collations)
}

// Collation returns the collation of key column i.
func (k *KeyInfo) Collation(i int) utf.Collation {
	if k == nil || i >= len(k.Collations) {
		return utf.Binary
	}
	return k.Collations[i]
}

// IsDesc reports whether key column i sorts in descending order.
func (k *KeyInfo) IsDesc(i int) bool {
	return k != nil && i < len(k.Desc) && k.Desc[i]
}

// UnpackedRecord is a search key held as cells rather than record bytes.
// DefaultRC is the result of a comparison when every field of the key
// matches a prefix of the record.
type UnpackedRecord struct {
	KeyInfo   *KeyInfo
	Mems      []*Mem
	DefaultRC int
}

// UnpackRecord decodes a record into an UnpackedRecord.
func UnpackRecord(ki *KeyInfo, buf []byte) (*UnpackedRecord, error) {
	mems, err := DecodeRecord(buf)
	if err != nil {
		return nil, err
	}
	return &UnpackedRecord{KeyInfo: ki, Mems: mems}, nil
}

// RecordCompare compares the record key1 with the unpacked key. The result
// is negative when key1 sorts first. Fields beyond the unpacked key are
// ignored, and if all compared fields are equal the key's DefaultRC is
// returned.
func RecordCompare(key1 []byte, key *UnpackedRecord) (int, error) {
	types, offsets, err := RecordHeader(key1)
	if err != nil {
		return 0, err
	}
	var tmp Mem
	tmp.slot = -1
	for i, want := range key.Mems {
		if i >= len(types) {
			break
		}
		if _, err := tmp.SerialGet(key1[offsets[i]:], types[i], MemEphem); err != nil {
			return 0, err
		}
		rc := tmp.Compare(want, key.KeyInfo.Collation(i))
		if rc != 0 {
			if key.KeyInfo.IsDesc(i) {
				rc = -rc
			}
			return rc, nil
		}
	}
	return key.DefaultRC, nil
}
