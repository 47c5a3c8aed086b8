// Package memmap provides the anonymous memory mapping that backs a region
// space, plus helpers to zero-and-release and protect sub-ranges of it.
//
// The mapping is created once and never moves, so the address of its first
// byte is stable for the lifetime of the Mapping and can be used as the base
// of an address space.
package memmap

import (
	"errors"
	"fmt"
	"os"
	"unsafe"

	"github.com/joshuapare/regionspace/internal/units"
)

// Access selects the protection applied by Protect.
type Access int

const (
	// ReadWrite makes the range readable and writable.
	ReadWrite Access = iota
	// None makes any access to the range fault.
	None
)

// ErrClosed is returned by operations on an unmapped Mapping.
var ErrClosed = errors.New("memmap: mapping closed")

// Mapping is an anonymous, zero-filled, read-write memory mapping.
type Mapping struct {
	data     []byte
	addr     uintptr
	pageSize uintptr
	unmap    func([]byte) error
}

// Map creates an anonymous mapping of size bytes. size is rounded up to the
// OS page size.
func Map(size int) (*Mapping, error) {
	if size <= 0 {
		return nil, fmt.Errorf("memmap: invalid size %d", size)
	}
	page := uintptr(os.Getpagesize())
	size = int(units.RoundUp(uintptr(size), page))
	data, unmap, err := mapAnon(size)
	if err != nil {
		return nil, fmt.Errorf("memmap: map %d bytes: %w", size, err)
	}
	return &Mapping{
		data:     data,
		addr:     uintptr(unsafe.Pointer(unsafe.SliceData(data))),
		pageSize: page,
		unmap:    unmap,
	}, nil
}

// Bytes returns the mapped memory.
func (m *Mapping) Bytes() []byte { return m.data }

// Addr returns the address of the first mapped byte.
func (m *Mapping) Addr() uintptr { return m.addr }

// Len returns the mapping size in bytes.
func (m *Mapping) Len() int { return len(m.data) }

// PageSize returns the page size the mapping was created with.
func (m *Mapping) PageSize() uintptr { return m.pageSize }

// Release zeroes [off, off+length) and hands the whole pages inside it back to
// the OS. Partial pages at either edge are only zeroed.
func (m *Mapping) Release(off, length uintptr) error {
	if m.data == nil {
		return ErrClosed
	}
	if length == 0 {
		return nil
	}
	if off+length > uintptr(len(m.data)) {
		return fmt.Errorf("memmap: release [%d,+%d) out of bounds (%d)", off, length, len(m.data))
	}
	end := off + length
	pageStart := units.RoundUp(m.addr+off, m.pageSize) - m.addr
	pageEnd := units.RoundDown(m.addr+end, m.pageSize) - m.addr
	if pageStart >= pageEnd {
		clear(m.data[off:end])
		return nil
	}
	clear(m.data[off:pageStart])
	clear(m.data[pageEnd:end])
	return releasePages(m.data[pageStart:pageEnd])
}

// Protect changes the protection of the pages covering [off, off+length).
func (m *Mapping) Protect(off, length uintptr, access Access) error {
	if m.data == nil {
		return ErrClosed
	}
	if length == 0 {
		return nil
	}
	start := units.RoundDown(m.addr+off, m.pageSize) - m.addr
	end := units.RoundUp(m.addr+off+length, m.pageSize) - m.addr
	if end > uintptr(len(m.data)) {
		end = uintptr(len(m.data))
	}
	return protect(m.data[start:end], access)
}

// Close unmaps the memory. Calling Close twice is a no-op.
func (m *Mapping) Close() error {
	if m.data == nil {
		return nil
	}
	data := m.data
	m.data = nil
	return m.unmap(data)
}
