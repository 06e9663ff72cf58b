package utf

// Varints follow the record format: 1 to 9 bytes, big-endian groups of 7
// bits with the high bit set on every byte but the last. The ninth byte, if
// present, carries a full 8 bits.
//
//     7 bits - A
//    14 bits - BA
//    21 bits - BBA
//    ...
//    64 bits - BBBBBBBBC

// MaxVarintLen is the longest encoding PutVarint produces.
const MaxVarintLen = 9

// PutVarint encodes v into buf and returns the number of bytes written.
// buf must be at least MaxVarintLen bytes long unless VarintLen(v) is known
// to fit.
func PutVarint(buf []byte, v uint64) int {
	if v <= 0x7f {
		buf[0] = byte(v)
		return 1
	}
	if v <= 0x3fff {
		buf[0] = byte((v>>7)&0x7f) | 0x80
		buf[1] = byte(v & 0x7f)
		return 2
	}
	return putVarint64(buf, v)
}

func putVarint64(buf []byte, v uint64) int {
	if v&(uint64(0xff000000)<<32) != 0 {
		buf[8] = byte(v)
		v >>= 8
		for i := 7; i >= 0; i-- {
			buf[i] = byte(v&0x7f) | 0x80
			v >>= 7
		}
		return 9
	}

	var temp [10]byte
	n := 0
	for {
		temp[n] = byte(v&0x7f) | 0x80
		n++
		v >>= 7
		if v == 0 {
			break
		}
	}
	temp[0] &= 0x7f
	for i := 0; i < n; i++ {
		buf[i] = temp[n-1-i]
	}
	return n
}

// AppendVarint appends the encoding of v to buf.
func AppendVarint(buf []byte, v uint64) []byte {
	var tmp [MaxVarintLen]byte
	n := PutVarint(tmp[:], v)
	return append(buf, tmp[:n]...)
}

// GetVarint decodes a varint from buf and returns the value and the number
// of bytes read. A truncated or empty buffer yields (0, 0).
func GetVarint(buf []byte) (uint64, int) {
	if len(buf) == 0 {
		return 0, 0
	}
	if buf[0] < 0x80 {
		return uint64(buf[0]), 1
	}

	var v uint64
	for i := 0; i < 8; i++ {
		if i >= len(buf) {
			return 0, 0
		}
		v = v<<7 | uint64(buf[i]&0x7f)
		if buf[i] < 0x80 {
			return v, i + 1
		}
	}
	if len(buf) < 9 {
		return 0, 0
	}
	return v<<8 | uint64(buf[8]), 9
}

// VarintLen returns the number of bytes needed to encode v.
func VarintLen(v uint64) int {
	if v <= 0x7f {
		return 1
	}
	if v <= 0x3fff {
		return 2
	}
	if v&(uint64(0xff000000)<<32) != 0 {
		return 9
	}
	i := 1
	for v >>= 7; v != 0; v >>= 7 {
		i++
	}
	return i
}
