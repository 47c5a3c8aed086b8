package memmap

import (
	"context"
	"sort"
)

// defaultRangeCapacity is the pre-allocated capacity for release ranges.
const defaultRangeCapacity = 64

// Range is a byte range relative to the start of a Mapping.
type Range struct {
	Off uintptr
	Len uintptr
}

// End returns the offset one past the last byte of the range.
func (r Range) End() uintptr { return r.Off + r.Len }

// ReleaseList gathers ranges whose pages should be released and releases them
// in one batch, so callers can collect under a lock and release without it.
//
// NOT thread-safe. Only one goroutine should use it at a time.
type ReleaseList struct {
	ranges []Range
}

// NewReleaseList creates an empty release list.
func NewReleaseList() *ReleaseList {
	return &ReleaseList{ranges: make([]Range, 0, defaultRangeCapacity)}
}

// Add records a range. A range that starts exactly where the previously added
// one ends extends it instead of appending.
func (l *ReleaseList) Add(off, length uintptr) {
	if length == 0 {
		return
	}
	if n := len(l.ranges); n > 0 && l.ranges[n-1].End() == off {
		l.ranges[n-1].Len += length
		return
	}
	l.ranges = append(l.ranges, Range{Off: off, Len: length})
}

// Len returns the number of recorded (uncoalesced) ranges.
func (l *ReleaseList) Len() int { return len(l.ranges) }

// Ranges returns the coalesced ranges: sorted, non-overlapping, with adjacent
// ranges merged.
func (l *ReleaseList) Ranges() []Range {
	return l.coalesce()
}

// Release zeroes and releases every coalesced range in m, then clears the list.
// The context is checked between ranges; on cancellation some ranges may
// already have been released.
func (l *ReleaseList) Release(ctx context.Context, m *Mapping) error {
	if len(l.ranges) == 0 {
		return nil
	}
	for _, r := range l.coalesce() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := m.Release(r.Off, r.Len); err != nil {
			return err
		}
	}
	l.Reset()
	return nil
}

// Reset clears all recorded ranges.
func (l *ReleaseList) Reset() {
	l.ranges = l.ranges[:0]
}

func (l *ReleaseList) coalesce() []Range {
	if len(l.ranges) == 0 {
		return nil
	}

	sorted := make([]Range, len(l.ranges))
	copy(sorted, l.ranges)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Off < sorted[j].Off
	})

	merged := make([]Range, 0, len(sorted))
	current := sorted[0]
	for _, next := range sorted[1:] {
		if next.Off <= current.End() {
			if next.End() > current.End() {
				current.Len = next.End() - current.Off
			}
			continue
		}
		merged = append(merged, current)
		current = next
	}
	return append(merged, current)
}
