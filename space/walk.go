package space

import "github.com/joshuapare/regionspace/internal/units"

// Walk calls visit for every object in every in-use region, in address
// order. Mutators must be paused.
func (rs *RegionSpace) Walk(visit func(obj Ref)) { rs.walk(false, visit) }

// WalkToSpace is Walk restricted to to-space regions.
func (rs *RegionSpace) WalkToSpace(visit func(obj Ref)) { rs.walk(true, visit) }

func (rs *RegionSpace) walk(toSpaceOnly bool, visit func(obj Ref)) {
	n := int(rs.Capacity() / RegionSize)
	for i := 0; i < n; i++ {
		r := &rs.regions[i]
		if r.IsFree() || (toSpaceOnly && !r.IsInToSpace()) {
			continue
		}
		switch r.State() {
		case RegionStateLarge:
			visit(r.begin)
		case RegionStateLargeTail:
		default:
			rs.walkNonLargeRegion(r, visit)
		}
	}
}

// walkNonLargeRegion visits the objects of an Allocated region. Unless every
// allocated byte is known to be live, dead objects may sit between live
// ones, and only the mark bitmap can tell them apart.
func (rs *RegionSpace) walkNonLargeRegion(r *Region, visit func(obj Ref)) {
	pos := uintptr(r.begin)
	top := uintptr(r.Top())
	if !r.AllAllocatedBytesAreLive() {
		rs.markBitmap.VisitMarkedRange(pos, top, func(addr uintptr) { visit(Ref(addr)) })
		return
	}
	for pos < top {
		hdr := rs.header(Ref(pos))
		if !rs.objects.IsObject(hdr) {
			// Allocated but not yet initialized.
			break
		}
		visit(Ref(pos))
		size := rs.objects.SizeOf(hdr)
		if size == 0 {
			break
		}
		pos = units.RoundUp(pos+size, Alignment)
	}
}

// ScanUnevacFromSpace visits the marked objects of all unevac regions,
// handing bm one range per run of adjacent unevac regions.
func (rs *RegionSpace) ScanUnevacFromSpace(bm MarkedRangeVisitor, visit func(obj Ref)) {
	rs.mu.Lock()
	limit := rs.nonFreeRegionIndexLimit
	rs.mu.Unlock()
	var blockBegin, blockEnd uintptr
	flush := func() {
		if blockBegin != 0 {
			bm.VisitMarkedRange(blockBegin, blockEnd, func(addr uintptr) { visit(Ref(addr)) })
			blockBegin = 0
		}
	}
	for i := 0; i < limit; i++ {
		r := &rs.regions[i]
		if !r.IsInUnevacFromSpace() {
			flush()
			continue
		}
		if blockBegin == 0 {
			blockBegin = uintptr(r.begin)
		}
		blockEnd = uintptr(r.end)
	}
	flush()
}

// LongestConsecutiveFreeBytes returns the widest gap between live objects
// of the region at idx, counting from its beginning. A free region is one
// whole gap; a large object region has none.
func (rs *RegionSpace) LongestConsecutiveFreeBytes(idx int) uint64 {
	r := rs.Region(idx)
	if r == nil {
		return 0
	}
	return rs.longestConsecutiveFreeBytes(r)
}

func (rs *RegionSpace) longestConsecutiveFreeBytes(r *Region) uint64 {
	switch r.State() {
	case RegionStateFree:
		return uint64(RegionSize)
	case RegionStateLarge, RegionStateLargeTail:
		return 0
	}
	var maxGap uintptr
	prevEnd := uintptr(r.begin)
	rs.walkNonLargeRegion(r, func(obj Ref) {
		maxGap = max(maxGap, uintptr(obj)-prevEnd)
		size := rs.objects.SizeOf(rs.header(obj))
		prevEnd = units.RoundUp(uintptr(obj)+size, Alignment)
	})
	return uint64(maxGap)
}
