package space

import (
	"fmt"
	"io"

	"github.com/joshuapare/regionspace/internal/units"
)

// Dump writes a one-line summary of the space.
func (rs *RegionSpace) Dump(w io.Writer) error {
	_, err := fmt.Fprintf(w, "%s %#x-%#x\n", rs.name, uintptr(rs.begin), uintptr(rs.Limit()))
	return err
}

// DumpRegions writes one line per usable region.
func (rs *RegionSpace) DumpRegions(w io.Writer) error {
	return rs.dumpRegions(w, false)
}

// DumpNonFreeRegions writes one line per in-use region.
func (rs *RegionSpace) DumpNonFreeRegions(w io.Writer) error {
	return rs.dumpRegions(w, true)
}

func (rs *RegionSpace) dumpRegions(w io.Writer, nonFreeOnly bool) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	for i := 0; i < rs.numRegions; i++ {
		r := &rs.regions[i]
		if nonFreeOnly && r.IsFree() {
			continue
		}
		if err := rs.dumpRegion(w, r); err != nil {
			return err
		}
	}
	return nil
}

// DumpRegionForObject writes the line of the region holding obj.
func (rs *RegionSpace) DumpRegionForObject(w io.Writer, obj Ref) error {
	r := rs.RefToRegion(obj)
	if r == nil {
		return fmt.Errorf("%w: %#x", ErrNotInSpace, uintptr(obj))
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.dumpRegion(w, r)
}

func (rs *RegionSpace) dumpRegion(w io.Writer, r *Region) error {
	live := r.LiveBytes()
	liveStr := "unknown"
	if live != LiveBytesUnknown {
		liveStr = fmt.Sprint(live)
	}
	_, err := fmt.Fprintf(w, "Region[%d]=%#x-%#x-%#x state=%s type=%s objects_allocated=%d alloc_time=%d live_bytes=%s",
		r.idx, uintptr(r.begin), uintptr(r.Top()), uintptr(r.end),
		r.State(), r.Type(), r.objectsAllocated.Load(), r.AllocTime(), liveStr)
	if err != nil {
		return err
	}
	if live != LiveBytesUnknown {
		var ratio float64
		if allocated := units.RoundUp(r.BytesAllocated(), RegionSize); allocated > 0 {
			ratio = float64(live) / float64(allocated)
		}
		gap := rs.longestConsecutiveFreeBytes(r)
		if _, err := fmt.Fprintf(w, " ratio_over_allocated=%.3f longest_consecutive_free_bytes=%d (%s)",
			ratio, gap, units.PrettySize(gap)); err != nil {
			return err
		}
	}
	thread := "none"
	if t := r.Thread(); t != nil {
		thread = t.Name()
	}
	_, err = fmt.Fprintf(w, " is_newly_allocated=%t is_a_tlab=%t thread=%s\n",
		r.IsNewlyAllocated(), r.IsTLAB(), thread)
	return err
}
