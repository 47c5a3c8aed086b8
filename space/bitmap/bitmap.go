// Package bitmap implements a mark bitmap over a contiguous address range,
// one bit per Granule bytes. It is the live-object index a region space falls
// back to when a region's objects cannot be walked by pointer arithmetic.
//
// Set, Clear and Test are safe for concurrent use. Range operations are not
// atomic as a whole; callers serialize them against concurrent marking.
package bitmap

import (
	"fmt"
	"math/bits"
	"sync/atomic"
)

// Granule is the number of bytes covered by one bit.
const Granule = 8

const bitsPerWord = 64

// Bitmap marks addresses within [HeapBegin, HeapLimit).
type Bitmap struct {
	begin uintptr
	size  uintptr
	words []uint64
}

// New creates a bitmap covering [begin, begin+size). begin must be
// Granule-aligned.
func New(begin, size uintptr) (*Bitmap, error) {
	if begin%Granule != 0 {
		return nil, fmt.Errorf("bitmap: begin %#x not %d-byte aligned", begin, Granule)
	}
	nbits := (size + Granule - 1) / Granule
	return &Bitmap{
		begin: begin,
		size:  size,
		words: make([]uint64, (nbits+bitsPerWord-1)/bitsPerWord),
	}, nil
}

// HeapBegin returns the first covered address.
func (b *Bitmap) HeapBegin() uintptr { return b.begin }

// HeapLimit returns the address one past the last covered byte.
func (b *Bitmap) HeapLimit() uintptr { return b.begin + b.size }

// HeapSize returns the covered size in bytes.
func (b *Bitmap) HeapSize() uintptr { return b.size }

// SetHeapSize shrinks (or regrows, up to the original allocation) the covered
// range. Bits beyond the new limit are cleared.
func (b *Bitmap) SetHeapSize(size uintptr) {
	maxSize := uintptr(len(b.words)) * bitsPerWord * Granule
	if size > maxSize {
		size = maxSize
	}
	if size < b.size {
		b.clearBits(size/Granule, b.size/Granule)
	}
	b.size = size
}

// HasAddress reports whether addr is covered.
func (b *Bitmap) HasAddress(addr uintptr) bool {
	return addr >= b.begin && addr < b.begin+b.size
}

func (b *Bitmap) index(addr uintptr) (word int, mask uint64) {
	bit := (addr - b.begin) / Granule
	return int(bit / bitsPerWord), uint64(1) << (bit % bitsPerWord)
}

// Set marks addr and reports whether it was already marked.
func (b *Bitmap) Set(addr uintptr) bool {
	w, mask := b.index(addr)
	old := atomic.OrUint64(&b.words[w], mask)
	return old&mask != 0
}

// Clear unmarks addr and reports whether it was marked.
func (b *Bitmap) Clear(addr uintptr) bool {
	w, mask := b.index(addr)
	old := atomic.AndUint64(&b.words[w], ^mask)
	return old&mask != 0
}

// Test reports whether addr is marked.
func (b *Bitmap) Test(addr uintptr) bool {
	w, mask := b.index(addr)
	return atomic.LoadUint64(&b.words[w])&mask != 0
}

// ClearRange unmarks every address in [begin, end).
func (b *Bitmap) ClearRange(begin, end uintptr) {
	begin, end = b.clip(begin, end)
	if begin >= end {
		return
	}
	b.clearBits((begin-b.begin)/Granule, (end-b.begin+Granule-1)/Granule)
}

// ClearAll unmarks everything.
func (b *Bitmap) ClearAll() {
	for i := range b.words {
		atomic.StoreUint64(&b.words[i], 0)
	}
}

// clearBits clears bit indices [from, to).
func (b *Bitmap) clearBits(from, to uintptr) {
	for from < to {
		w := from / bitsPerWord
		shift := from % bitsPerWord
		n := uintptr(bitsPerWord) - shift
		if to-from < n {
			n = to - from
		}
		if n == bitsPerWord {
			atomic.StoreUint64(&b.words[w], 0)
		} else {
			mask := ((uint64(1) << n) - 1) << shift
			atomic.AndUint64(&b.words[w], ^mask)
		}
		from += n
	}
}

func (b *Bitmap) clip(begin, end uintptr) (uintptr, uintptr) {
	if begin < b.begin {
		begin = b.begin
	}
	if limit := b.begin + b.size; end > limit {
		end = limit
	}
	return begin, end
}

// VisitMarkedRange calls visit for every marked address in [begin, end), in
// increasing address order.
func (b *Bitmap) VisitMarkedRange(begin, end uintptr, visit func(addr uintptr)) {
	begin, end = b.clip(begin, end)
	if begin >= end {
		return
	}
	first := (begin - b.begin) / Granule
	last := (end - b.begin + Granule - 1) / Granule // exclusive
	for w := first / bitsPerWord; w*bitsPerWord < last; w++ {
		word := atomic.LoadUint64(&b.words[w])
		base := w * bitsPerWord
		if base < first {
			word &^= (uint64(1) << (first - base)) - 1
		}
		if base+bitsPerWord > last {
			word &= (uint64(1) << (last - base)) - 1
		}
		for word != 0 {
			tz := uintptr(bits.TrailingZeros64(word))
			visit(b.begin + (base+tz)*Granule)
			word &= word - 1
		}
	}
}

// CountMarkedRange returns the number of marked addresses in [begin, end).
func (b *Bitmap) CountMarkedRange(begin, end uintptr) int {
	n := 0
	b.VisitMarkedRange(begin, end, func(uintptr) { n++ })
	return n
}
