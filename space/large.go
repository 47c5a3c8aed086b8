package space

import (
	"fmt"

	"github.com/joshuapare/regionspace/internal/units"
)

// AllocLarge allocates numBytes (more than RegionSize) as a run of
// contiguous regions: a Large head followed by LargeTail regions. The whole
// run is charged to the object.
func (rs *RegionSpace) AllocLarge(numBytes uintptr, domain Domain) AllocResult {
	if debugChecks {
		assertf(numBytes > RegionSize, "large alloc of %d bytes fits a region", numBytes)
	}
	needed := int(units.DivRoundUp(numBytes, RegionSize))
	rs.mu.Lock()
	defer rs.mu.Unlock()
	// Keep enough free regions to evacuate everything in use.
	if domain == Mutator && (rs.numNonFreeRegions+needed)*2 > rs.numRegions {
		return AllocResult{}
	}
	if !rs.opts.CyclicAllocation {
		res, _ := rs.allocLargeInRange(0, rs.numRegions, needed, domain)
		return res
	}
	res, next := rs.allocLargeInRange(rs.cyclicAllocRegionIndex, rs.numRegions, needed, domain)
	if !res.OK() {
		// Wrap around. The run may end just before the cyclic index.
		end := min(rs.cyclicAllocRegionIndex+needed-1, rs.numRegions)
		res, next = rs.allocLargeInRange(0, end, needed, domain)
	}
	if res.OK() {
		rs.cyclicAllocRegionIndex = next % rs.numRegions
	}
	return res
}

// allocLargeInRange searches [begin, end) for needed contiguous free
// regions and claims the first run found. It returns the index just past
// the run. mu must be held.
func (rs *RegionSpace) allocLargeInRange(begin, end, needed int, domain Domain) (AllocResult, int) {
	left := begin
	for left+needed <= end {
		right := left
		for right-left < needed && rs.regions[right].IsFree() {
			right++
		}
		if right-left < needed {
			// regions[right] is in use; no run can contain it.
			left = right + 1
			continue
		}
		return rs.claimLargeRun(left, needed, domain), left + needed
	}
	return AllocResult{}, 0
}

func (rs *RegionSpace) claimLargeRun(first, needed int, domain Domain) AllocResult {
	allocated := uintptr(needed) * RegionSize
	head := &rs.regions[first]
	for p := first; p < first+needed; p++ {
		r := &rs.regions[p]
		if p == first {
			r.unfreeLarge(rs.time)
		} else {
			r.unfreeLargeTail(rs.time)
		}
		rs.unfreeRegion(r)
		if domain == Evacuation {
			rs.numEvacRegions++
		} else {
			r.setNewlyAllocated()
			rs.numNonFreeRegions++
		}
	}
	head.setTop(head.begin + Ref(allocated))
	return AllocResult{
		Obj:                  head.begin,
		BytesAllocated:       allocated,
		UsableSize:           allocated,
		BytesTLBulkAllocated: allocated,
	}
}

// FreeLarge releases the large object at obj, which was allocated in domain
// with bytesAllocated bytes. Every region of its run is zeroed, released and
// returned to Free.
func (rs *RegionSpace) FreeLarge(obj Ref, bytesAllocated uintptr, domain Domain) error {
	if !rs.Contains(obj) {
		return fmt.Errorf("%w: %#x", ErrNotInSpace, uintptr(obj))
	}
	if debugChecks {
		assertf(units.IsAligned(uintptr(obj), RegionSize), "large object %#x not region aligned", uintptr(obj))
	}
	begin := obj
	end := Ref(units.RoundUp(uintptr(obj)+bytesAllocated, RegionSize))
	rs.mu.Lock()
	defer rs.mu.Unlock()
	for addr := begin; addr < end; addr += Ref(RegionSize) {
		r := rs.refToRegionLocked(addr)
		if debugChecks {
			if addr == begin {
				assertf(r.IsLarge(), "free large: region %d is %s", r.idx, r.State())
			} else {
				assertf(r.IsLargeTail(), "free large: region %d is %s", r.idx, r.State())
			}
		}
		rs.clearRegion(r, true)
		if domain == Evacuation {
			rs.numEvacRegions--
		} else {
			rs.numNonFreeRegions--
		}
	}
	if debugChecks && end < rs.Limit() {
		next := rs.refToRegionLocked(end)
		assertf(!next.IsLargeTail(), "free large: region %d after the run is a large tail", next.idx)
	}
	return nil
}
