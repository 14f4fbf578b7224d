// Package bits has little-endian helpers for packing integers and
// length-prefixed strings into byte slices. Each Put function writes at the
// start of b and returns the remainder; each Get function reads from the start
// of b and returns the value and the remainder. Callers are responsible for
// sizing b.
package bits

func Put8(b []byte, v uint8) []byte {
	b[0] = v
	return b[1:]
}

func Put16(b []byte, v uint16) []byte {
	b[0] = uint8(v)
	b[1] = uint8(v >> 8)
	return b[2:]
}

func Put32(b []byte, v uint32) []byte {
	b[0] = uint8(v)
	b[1] = uint8(v >> 8)
	b[2] = uint8(v >> 16)
	b[3] = uint8(v >> 24)
	return b[4:]
}

// Puts writes v prefixed by its 16-bit length.
func Puts(b []byte, v string) []byte {
	vlen := uint16(len(v))
	b = Put16(b, vlen)
	copy(b, v)
	return b[vlen:]
}

// PutLongs writes v prefixed by its 32-bit length, for values that may not
// fit in 64 KiB.
func PutLongs(b []byte, v string) []byte {
	vlen := uint32(len(v))
	b = Put32(b, vlen)
	copy(b, v)
	return b[vlen:]
}

func Get8(b []byte) (uint8, []byte) {
	return b[0], b[1:]
}

func Get16(b []byte) (uint16, []byte) {
	v := uint16(b[0])
	v += uint16(b[1]) << 8
	return v, b[2:]
}

func Get32(b []byte) (uint32, []byte) {
	v := uint32(b[0])
	v += uint32(b[1]) << 8
	v += uint32(b[2]) << 16
	v += uint32(b[3]) << 24
	return v, b[4:]
}

func Gets(b []byte) (string, []byte) {
	var vlen uint16
	vlen, b = Get16(b)
	return string(b[:vlen]), b[vlen:]
}

func GetLongs(b []byte) (string, []byte) {
	var vlen uint32
	vlen, b = Get32(b)
	return string(b[:vlen]), b[vlen:]
}
