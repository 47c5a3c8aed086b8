// Package rbtable implements a table-lookup read barrier table: one entry per
// fixed-size granule of a heap range, set while that granule belongs to
// from-space and references into it must be redirected.
package rbtable

import (
	"fmt"
	"sync/atomic"
)

// Table is safe for concurrent readers; writers are expected to run while
// mutators are paused.
type Table struct {
	begin   uintptr
	size    uintptr
	granule uintptr
	entries []atomic.Bool
}

// New creates a table covering [begin, begin+size) with one entry per granule
// bytes. granule must be a power of two and begin granule-aligned.
func New(begin, size, granule uintptr) (*Table, error) {
	if granule == 0 || granule&(granule-1) != 0 {
		return nil, fmt.Errorf("rbtable: granule %d not a power of two", granule)
	}
	if begin&(granule-1) != 0 {
		return nil, fmt.Errorf("rbtable: begin %#x not aligned to %d", begin, granule)
	}
	return &Table{
		begin:   begin,
		size:    size,
		granule: granule,
		entries: make([]atomic.Bool, (size+granule-1)/granule),
	}, nil
}

// SetRange marks every granule overlapping [begin, end).
func (t *Table) SetRange(begin, end uintptr) { t.store(begin, end, true) }

// ClearRange unmarks every granule overlapping [begin, end).
func (t *Table) ClearRange(begin, end uintptr) { t.store(begin, end, false) }

// IsSet reports whether the granule containing addr is marked. Addresses
// outside the table are never marked.
func (t *Table) IsSet(addr uintptr) bool {
	if addr < t.begin || addr >= t.begin+t.size {
		return false
	}
	return t.entries[(addr-t.begin)/t.granule].Load()
}

// SetAll marks the whole table.
func (t *Table) SetAll() { t.store(t.begin, t.begin+t.size, true) }

// ClearAll unmarks the whole table.
func (t *Table) ClearAll() { t.store(t.begin, t.begin+t.size, false) }

// NumSet returns the number of marked granules.
func (t *Table) NumSet() int {
	n := 0
	for i := range t.entries {
		if t.entries[i].Load() {
			n++
		}
	}
	return n
}

func (t *Table) store(begin, end uintptr, v bool) {
	if begin < t.begin {
		begin = t.begin
	}
	if limit := t.begin + t.size; end > limit {
		end = limit
	}
	if begin >= end {
		return
	}
	first := (begin - t.begin) / t.granule
	last := (end - t.begin + t.granule - 1) / t.granule
	for i := first; i < last; i++ {
		t.entries[i].Store(v)
	}
}
