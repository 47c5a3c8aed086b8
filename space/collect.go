package space

import (
	"context"
	"time"

	"github.com/joshuapare/regionspace/internal/buf"
	"github.com/joshuapare/regionspace/internal/memmap"
	"github.com/joshuapare/regionspace/internal/units"
)

// poisonWord fills the dead gaps of surviving regions when
// Options.PoisonDeadObjects is set.
const poisonWord = 0xBADDB01D

// SetFromSpace starts a collection cycle. Every in-use region is tagged
// FromSpace if it should be evacuated under mode, UnevacFromSpace otherwise.
// A large object is decided once, by its head, for its whole run. rb, if
// non-nil, gets the address range of each from-space region set and every
// other range cleared.
//
// Mutators must be paused and their TLABs revoked. Afterwards the next
// allocation in either domain installs a fresh region.
func (rs *RegionSpace) SetFromSpace(rb ReadBarrierTable, mode EvacMode, clearLiveBytes bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if debugChecks {
		rs.verifyNonFreeRegionLimit()
	}
	rs.time++
	rs.partialTLABs = rs.partialTLABs[:0]

	iterLimit := rs.nonFreeRegionIndexLimit
	if rb != nil {
		iterLimit = rs.numRegions
	}
	var (
		expectedTails      int
		prevLargeEvacuated bool
		numFrom, numUnevac int
	)
	for i := 0; i < iterLimit; i++ {
		r := &rs.regions[i]
		if r.IsFree() {
			if debugChecks {
				assertf(expectedTails == 0, "free region %d inside a large object", i)
			}
			if rb != nil {
				rb.ClearRange(uintptr(r.begin), uintptr(r.end))
			}
			continue
		}
		if debugChecks {
			assertf(r.IsInToSpace(), "region %d in %s at start of cycle", i, r.Type())
		}
		var evacuate bool
		if expectedTails == 0 {
			if debugChecks {
				assertf(r.IsAllocated() || r.IsLarge(), "region %d: unexpected %s", i, r.State())
			}
			evacuate = r.ShouldBeEvacuated(mode)
			if r.IsLarge() {
				prevLargeEvacuated = evacuate
				// A marked, newly allocated large object that stays in place
				// would never get its live bytes counted.
				if rs.opts.Generational && !evacuate && r.IsNewlyAllocated() {
					rs.markBitmap.Clear(uintptr(r.begin))
				}
				expectedTails = int(units.DivRoundUp(r.BytesAllocated(), RegionSize)) - 1
			}
		} else {
			if debugChecks {
				assertf(r.IsLargeTail(), "region %d: expected large tail, got %s", i, r.State())
			}
			evacuate = prevLargeEvacuated
			expectedTails--
		}
		if evacuate {
			r.setAsFromSpace()
			numFrom++
		} else {
			r.setAsUnevacFromSpace(clearLiveBytes)
			numUnevac++
		}
		if rb != nil {
			if evacuate {
				rb.SetRange(uintptr(r.begin), uintptr(r.end))
			} else {
				rb.ClearRange(uintptr(r.begin), uintptr(r.end))
			}
		}
	}
	if debugChecks {
		assertf(expectedTails == 0, "large object runs past the non-free limit")
	}
	rs.currentRegion.Store(nil)
	rs.evacRegion.Store(nil)
	rs.log.Debug("set from-space",
		"time", rs.time,
		"mode", mode,
		"from", numFrom,
		"unevac", numUnevac,
		"non_free_limit", rs.nonFreeRegionIndexLimit)
}

// ClearFromSpace ends a collection cycle. From-space regions, and unevac
// regions found to hold no live bytes, are zeroed, released and returned to
// Free. The remaining unevac regions become ToSpace again. It returns the
// bytes and objects reclaimed. With clearBitmap the mark bitmap is cleared
// for every reclaimed region.
//
// Evacuation regions allocated during the cycle count as in-use afterwards.
func (rs *RegionSpace) ClearFromSpace(clearBitmap bool) (clearedBytes, clearedObjects uint64) {
	releases := memmap.NewReleaseList()
	rs.mu.Lock()
	defer rs.mu.Unlock()
	for i := 0; i < rs.nonFreeRegionIndexLimit; i++ {
		r := &rs.regions[i]
		switch {
		case r.IsInFromSpace():
			releases.Add(rs.offsetOf(r.begin), RegionSize)
		case r.IsInUnevacFromSpace() && r.LiveBytes() == 0 && !r.IsLargeTail():
			n := 1
			for i+n < rs.numRegions && rs.regions[i+n].IsLargeTail() {
				n++
			}
			releases.Add(rs.offsetOf(r.begin), uintptr(n)*RegionSize)
			i += n - 1
		}
	}

	// mu stays held until retagging so no gathered range is reallocated
	// before its pages are released.
	ranges := releases.Ranges()
	start := time.Now()
	if err := releases.Release(context.Background(), rs.mapping); err != nil {
		rs.log.Warn("page release failed, zeroing in place", "ranges", len(ranges), "err", err)
		for _, rg := range ranges {
			clear(rs.mem[rg.Off-rs.mapOff : rg.End()-rs.mapOff])
		}
	}
	rs.afterRelease(ranges, clearBitmap)
	releaseTime := time.Since(start)
	if rs.testHookReleased != nil {
		rs.testHookReleased(ranges)
	}

	rs.maxPeakNumNonFreeRegions = max(rs.maxPeakNumNonFreeRegions, rs.numNonFreeRegions+rs.numEvacRegions)
	for i := 0; i < rs.nonFreeRegionIndexLimit; i++ {
		r := &rs.regions[i]
		switch {
		case r.IsInFromSpace():
			clearedBytes += uint64(r.BytesAllocated())
			clearedObjects += r.ObjectsAllocated()
			rs.numNonFreeRegions--
			r.reset()

		case r.IsInUnevacFromSpace() && r.LiveBytes() == 0 && !r.IsLargeTail():
			// Nothing survived: reclaim now rather than next cycle, and
			// keep Walk away from dead large objects.
			clearedBytes += uint64(r.BytesAllocated())
			clearedObjects += r.ObjectsAllocated()
			r.reset()
			n := 1
			for i+n < rs.numRegions && rs.regions[i+n].IsLargeTail() {
				rs.regions[i+n].reset()
				n++
			}
			rs.numNonFreeRegions -= n
			if !clearBitmap {
				rs.markBitmap.ClearRange(uintptr(r.begin), uintptr(r.begin)+uintptr(n)*RegionSize)
			}
			i += n - 1

		case r.IsInUnevacFromSpace() && r.IsLarge():
			r.setUnevacFromSpaceAsToSpace()
			for i+1 < rs.numRegions && rs.regions[i+1].IsLargeTail() {
				i++
				rs.regions[i].setUnevacFromSpaceAsToSpace()
			}

		case r.IsInUnevacFromSpace() && r.AllAllocatedBytesAreLive():
			r.setUnevacFromSpaceAsToSpace()
			// Extend over following fully live regions so the bitmap is
			// cleared in one call.
			n := 1
			for i+n < rs.numRegions {
				next := &rs.regions[i+n]
				if !next.IsAllocated() || !next.IsInUnevacFromSpace() || !next.AllAllocatedBytesAreLive() {
					break
				}
				next.setUnevacFromSpaceAsToSpace()
				n++
			}
			// Every object is live, so Walk never needs the bitmap here.
			// A generational collector keeps the marks as its old
			// generation.
			if !rs.opts.Generational {
				rs.markBitmap.ClearRange(uintptr(r.begin), uintptr(r.begin)+uintptr(n)*RegionSize)
			}
			i += n - 1

		case r.IsInUnevacFromSpace():
			if rs.opts.PoisonDeadObjects && r.LiveBytes() != LiveBytesUnknown {
				rs.poisonDeadObjects(r)
			}
			r.setUnevacFromSpaceAsToSpace()
		}
	}
	rs.setNonFreeRegionLimit(rs.lastNonFreeRegion() + 1)
	rs.evacRegion.Store(nil)
	rs.numNonFreeRegions += rs.numEvacRegions
	rs.numEvacRegions = 0
	rs.log.Debug("cleared from-space",
		"time", rs.time,
		"cleared_bytes", units.PrettySize(clearedBytes),
		"cleared_objects", clearedObjects,
		"released_ranges", len(ranges),
		"release_time", releaseTime,
		"non_free", rs.numNonFreeRegions)
	return clearedBytes, clearedObjects
}

// afterRelease protects released ranges (mapping offsets) and clears their
// mark bits as configured.
func (rs *RegionSpace) afterRelease(ranges []memmap.Range, clearBitmap bool) {
	for _, rg := range ranges {
		if rs.opts.ProtectClearedRegions {
			if err := rs.mapping.Protect(rg.Off, rg.Len, memmap.None); err != nil {
				rs.log.Warn("protect cleared range", "off", rg.Off, "len", rg.Len, "err", err)
			}
		}
		if clearBitmap {
			begin := uintptr(rs.begin) + rg.Off - rs.mapOff
			rs.markBitmap.ClearRange(begin, begin+rg.Len)
		}
	}
}

func (rs *RegionSpace) lastNonFreeRegion() int {
	for i := rs.nonFreeRegionIndexLimit - 1; i >= 0; i-- {
		if !rs.regions[i].IsFree() {
			return i
		}
	}
	return -1
}

// poisonDeadObjects overwrites every byte of r between marked objects.
func (rs *RegionSpace) poisonDeadObjects(r *Region) {
	prev := uintptr(r.begin)
	top := uintptr(r.Top())
	rs.markBitmap.VisitMarkedRange(prev, top, func(addr uintptr) {
		if addr > prev {
			rs.poison(prev, addr)
		}
		size := rs.objects.SizeOf(rs.header(Ref(addr)))
		prev = units.RoundUp(addr+size, Alignment)
	})
	if prev < top {
		rs.poison(prev, top)
	}
}

func (rs *RegionSpace) poison(begin, end uintptr) {
	buf.FillU32LE(rs.Bytes(Ref(begin), end-begin), poisonWord)
}

// AddLiveBytes records n live bytes for the region holding ref.
func (rs *RegionSpace) AddLiveBytes(ref Ref, n uintptr) {
	r := rs.RefToRegion(ref)
	if debugChecks {
		assertf(r != nil, "live bytes for %#x outside the space", uintptr(ref))
	}
	r.addLiveBytes(uint64(n))
}

// ZeroLiveBytesForLargeObject resets the live bytes of every region of the
// large object at obj, so that the next marking recounts it.
func (rs *RegionSpace) ZeroLiveBytesForLargeObject(obj Ref) {
	if debugChecks {
		assertf(rs.IsLargeObject(obj), "%#x is not a large object", uintptr(obj))
	}
	size := rs.objects.SizeOf(rs.header(obj))
	end := obj + Ref(units.RoundUp(size, RegionSize))
	rs.mu.Lock()
	defer rs.mu.Unlock()
	for addr := obj; addr < end; addr += Ref(RegionSize) {
		r := rs.refToRegionLocked(addr)
		if debugChecks {
			if addr == obj {
				assertf(r.IsLarge(), "region %d is %s, want Large", r.idx, r.State())
			} else {
				assertf(r.IsLargeTail(), "region %d is %s, want LargeTail", r.idx, r.State())
			}
		}
		r.zeroLiveBytes()
	}
}

// SetAllRegionLiveBytesZero resets live bytes of every in-use region that
// was not allocated this cycle.
func (rs *RegionSpace) SetAllRegionLiveBytesZero() {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	for i := 0; i < rs.nonFreeRegionIndexLimit; i++ {
		r := &rs.regions[i]
		if !r.IsFree() && !r.IsNewlyAllocated() {
			r.zeroLiveBytes()
		}
	}
}

// AllRegionLiveBytesZeroOrCleared reports whether no in-use region has a
// positive live byte count.
func (rs *RegionSpace) AllRegionLiveBytesZeroOrCleared() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	for i := 0; i < rs.nonFreeRegionIndexLimit; i++ {
		r := &rs.regions[i]
		if r.IsFree() {
			continue
		}
		if live := r.LiveBytes(); live != 0 && live != LiveBytesUnknown {
			return false
		}
	}
	return true
}
