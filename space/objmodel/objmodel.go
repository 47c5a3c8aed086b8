// Package objmodel is a minimal object layout for memory handed out by a
// region space. Every object starts with an 8-byte header:
//
//	0x00  class id  (uint32, little-endian; 0 means "no object here")
//	0x04  size      (uint32, little-endian; total object size in bytes)
//
// The region space only needs two facts about an object, its size and whether
// a header is installed, and Model answers both from the header bytes.
package objmodel

import (
	"errors"

	"github.com/joshuapare/regionspace/internal/buf"
)

// HeaderSize is the size of an object header in bytes.
const HeaderSize = 8

const (
	classIDOffset = 0
	sizeOffset    = 4
)

var (
	// ErrShortBuffer indicates the destination cannot hold the object.
	ErrShortBuffer = errors.New("objmodel: buffer smaller than object")

	// ErrBadClass indicates a zero class id, which is reserved for "no object".
	ErrBadClass = errors.New("objmodel: class id must be non-zero")

	// ErrTooSmall indicates a size smaller than the header.
	ErrTooSmall = errors.New("objmodel: object smaller than header")
)

// Model reads object headers. The zero value is ready to use.
type Model struct{}

// SizeOf returns the object size recorded in header, or 0 if the header is
// truncated.
func (Model) SizeOf(header []byte) uintptr {
	if len(header) < HeaderSize {
		return 0
	}
	return uintptr(buf.U32LE(header[sizeOffset:]))
}

// IsObject reports whether header carries an installed class id.
func (Model) IsObject(header []byte) bool {
	return len(header) >= HeaderSize && buf.U32LE(header[classIDOffset:]) != 0
}

// ClassID returns the class id stored in header.
func ClassID(header []byte) uint32 {
	return buf.U32LE(header)
}

// Write installs a header for an object of size bytes at the start of mem.
// The payload after the header is left untouched. The stores are plain:
// readers on other goroutines must synchronize with the writer first.
func Write(mem []byte, classID, size uint32) error {
	if classID == 0 {
		return ErrBadClass
	}
	if size < HeaderSize {
		return ErrTooSmall
	}
	if uint64(len(mem)) < uint64(size) {
		return ErrShortBuffer
	}
	buf.PutU32LE(mem[sizeOffset:], size)
	buf.PutU32LE(mem[classIDOffset:], classID)
	return nil
}
