package space

import (
	"sync/atomic"

	"github.com/joshuapare/regionspace/internal/units"
)

// alignSize rounds an allocation request up to Alignment. A zero-byte
// request still gets a distinct address.
func alignSize(numBytes uintptr) uintptr {
	if numBytes == 0 {
		return Alignment
	}
	return units.RoundUp(numBytes, Alignment)
}

// Alloc allocates numBytes for a mutator. A zero result means the space is
// exhausted and the caller should collect.
func (rs *RegionSpace) Alloc(numBytes uintptr) AllocResult {
	return rs.AllocNonvirtual(alignSize(numBytes), Mutator)
}

// AllocThreadUnsafe is Alloc for callers that have stopped every other
// mutator.
func (rs *RegionSpace) AllocThreadUnsafe(numBytes uintptr) AllocResult {
	return rs.AllocNonvirtual(alignSize(numBytes), Mutator)
}

func (rs *RegionSpace) cursor(domain Domain) *atomic.Pointer[Region] {
	if domain == Evacuation {
		return &rs.evacRegion
	}
	return &rs.currentRegion
}

// AllocNonvirtual allocates numBytes, which must be a multiple of
// Alignment, in domain. Requests larger than a region go to AllocLarge.
//
// The current region is tried without the lock first. On failure the lock
// is taken, the (possibly replaced) current region is tried again, and only
// then is a fresh region installed. The new region becomes visible to other
// allocators after this call's object has been carved out of it.
func (rs *RegionSpace) AllocNonvirtual(numBytes uintptr, domain Domain) AllocResult {
	if debugChecks {
		assertf(numBytes%Alignment == 0, "alloc size %d not aligned", numBytes)
	}
	if numBytes > RegionSize {
		return rs.AllocLarge(numBytes, domain)
	}
	cur := rs.cursor(domain)
	if r := cur.Load(); r != nil {
		if res := r.Alloc(numBytes); res.OK() {
			return res
		}
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if r := cur.Load(); r != nil {
		if res := r.Alloc(numBytes); res.OK() {
			return res
		}
	}
	r := rs.allocateRegion(domain)
	if r == nil {
		return AllocResult{}
	}
	res := r.Alloc(numBytes)
	if debugChecks {
		assertf(res.OK(), "alloc of %d bytes failed in fresh region %d", numBytes, r.idx)
	}
	cur.Store(r)
	return res
}

// allocateRegion takes the first free region (or the next one after the
// cyclic index) and marks it Allocated. Mutator requests are refused once
// half the regions are in use so that evacuation always finds room. mu must
// be held.
func (rs *RegionSpace) allocateRegion(domain Domain) *Region {
	if domain == Mutator && (rs.numNonFreeRegions+1)*2 > rs.numRegions {
		rs.log.Debug("region allocation refused: evacuation reserve",
			"non_free", rs.numNonFreeRegions, "regions", rs.numRegions)
		return nil
	}
	for i := 0; i < rs.numRegions; i++ {
		idx := i
		if rs.opts.CyclicAllocation {
			idx = (rs.cyclicAllocRegionIndex + i) % rs.numRegions
		}
		r := &rs.regions[idx]
		if !r.IsFree() {
			continue
		}
		if rs.opts.CyclicAllocation {
			rs.cyclicAllocRegionIndex = (idx + 1) % rs.numRegions
		}
		r.unfree(rs.time)
		rs.unfreeRegion(r)
		if domain == Evacuation {
			rs.numEvacRegions++
		} else {
			r.setNewlyAllocated()
			rs.numNonFreeRegions++
		}
		return r
	}
	rs.log.Debug("out of free regions", "domain", domain,
		"non_free", rs.numNonFreeRegions, "evac", rs.numEvacRegions)
	return nil
}

// Free is not supported: objects are reclaimed a region at a time.
func (rs *RegionSpace) Free(Ref) (uintptr, error) { return 0, ErrFreeUnsupported }

// FreeList is not supported: objects are reclaimed a region at a time.
func (rs *RegionSpace) FreeList([]Ref) (uintptr, error) { return 0, ErrFreeUnsupported }
