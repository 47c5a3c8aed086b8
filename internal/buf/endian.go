// Package buf reads and writes the little-endian words of object headers and
// poison fills.
package buf

import "encoding/binary"

// U32LE reads a little-endian uint32 from b. Returns 0 when b is too short.
func U32LE(b []byte) uint32 {
	if len(b) < 4 {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

// PutU32LE writes v as little-endian into b. It is a no-op when b is too short.
func PutU32LE(b []byte, v uint32) {
	if len(b) < 4 {
		return
	}
	binary.LittleEndian.PutUint32(b, v)
}

// FillU32LE repeats v across b as little-endian words. A trailing partial
// word is left untouched.
func FillU32LE(b []byte, v uint32) {
	for len(b) >= 4 {
		binary.LittleEndian.PutUint32(b, v)
		b = b[4:]
	}
}
