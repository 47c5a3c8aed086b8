package space

// Contains reports whether ref lies in [Begin, Limit).
func (rs *RegionSpace) Contains(ref Ref) bool {
	return ref >= rs.begin && ref < rs.Limit()
}

// RegionIdxForRef returns the index of the region holding ref, which must
// be in the space.
func (rs *RegionSpace) RegionIdxForRef(ref Ref) int {
	if debugChecks {
		assertf(rs.Contains(ref), "%#x outside the space", uintptr(ref))
	}
	return int(uintptr(ref-rs.begin) / RegionSize)
}

// RefToRegion returns the region holding ref, or nil when ref is not in the
// space. Safe without the lock: regions never move.
func (rs *RegionSpace) RefToRegion(ref Ref) *Region {
	if !rs.Contains(ref) {
		return nil
	}
	return &rs.regions[rs.RegionIdxForRef(ref)]
}

func (rs *RegionSpace) refToRegionLocked(ref Ref) *Region {
	return &rs.regions[rs.RegionIdxForRef(ref)]
}

// Region returns the region at idx, or nil.
func (rs *RegionSpace) Region(idx int) *Region {
	if idx < 0 || idx >= int(rs.Capacity()/RegionSize) {
		return nil
	}
	return &rs.regions[idx]
}

// RegionTypeOf returns the type of the region holding ref, or
// RegionTypeNone if ref is not in the space.
func (rs *RegionSpace) RegionTypeOf(ref Ref) RegionType {
	if r := rs.RefToRegion(ref); r != nil {
		return r.Type()
	}
	return RegionTypeNone
}

// IsInFromSpace reports whether ref lies in a region being evacuated.
func (rs *RegionSpace) IsInFromSpace(ref Ref) bool {
	return rs.RegionTypeOf(ref) == RegionTypeFromSpace
}

// IsInToSpace reports whether ref lies in a to-space region.
func (rs *RegionSpace) IsInToSpace(ref Ref) bool {
	return rs.RegionTypeOf(ref) == RegionTypeToSpace
}

// IsInUnevacFromSpace reports whether ref lies in a region collected in
// place.
func (rs *RegionSpace) IsInUnevacFromSpace(ref Ref) bool {
	return rs.RegionTypeOf(ref) == RegionTypeUnevacFromSpace
}

// IsInNewlyAllocatedRegion reports whether ref is in a region allocated by
// a mutator since the last SetFromSpace.
func (rs *RegionSpace) IsInNewlyAllocatedRegion(ref Ref) bool {
	r := rs.RefToRegion(ref)
	return r != nil && r.IsNewlyAllocated()
}

// IsRegionNewlyAllocated is IsInNewlyAllocatedRegion by region index.
func (rs *RegionSpace) IsRegionNewlyAllocated(idx int) bool {
	r := rs.Region(idx)
	return r != nil && r.IsNewlyAllocated()
}

// IsLargeObject reports whether ref is the start of a large object.
func (rs *RegionSpace) IsLargeObject(ref Ref) bool {
	r := rs.RefToRegion(ref)
	return r != nil && r.IsLarge() && r.begin == ref
}

// NumRegions returns the number of usable regions.
func (rs *RegionSpace) NumRegions() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.numRegions
}

// NumNonFreeRegions returns the number of in-use regions, excluding those
// allocated for evacuation during the current cycle.
func (rs *RegionSpace) NumNonFreeRegions() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.numNonFreeRegions
}

// NumEvacRegions returns the number of regions allocated for evacuation
// during the current cycle.
func (rs *RegionSpace) NumEvacRegions() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.numEvacRegions
}

// MaxPeakNumNonFreeRegions returns the highest in-use region count seen at
// the end of a cycle.
func (rs *RegionSpace) MaxPeakNumNonFreeRegions() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.maxPeakNumNonFreeRegions
}

// NonFreeRegionIndexLimit returns the index past the last in-use region.
func (rs *RegionSpace) NonFreeRegionIndexLimit() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.nonFreeRegionIndexLimit
}

// Time returns the number of collection cycles started.
func (rs *RegionSpace) Time() uint32 {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.time
}

// BytesAllocated returns the bytes in use across all regions.
func (rs *RegionSpace) BytesAllocated() uint64 { return rs.BytesAllocatedIn(RegionTypeAll) }

// ObjectsAllocated returns the objects allocated across all regions.
func (rs *RegionSpace) ObjectsAllocated() uint64 { return rs.ObjectsAllocatedIn(RegionTypeAll) }

// BytesAllocatedInFromSpace is BytesAllocatedIn(RegionTypeFromSpace).
func (rs *RegionSpace) BytesAllocatedInFromSpace() uint64 {
	return rs.BytesAllocatedIn(RegionTypeFromSpace)
}

// BytesAllocatedInUnevacFromSpace is
// BytesAllocatedIn(RegionTypeUnevacFromSpace).
func (rs *RegionSpace) BytesAllocatedInUnevacFromSpace() uint64 {
	return rs.BytesAllocatedIn(RegionTypeUnevacFromSpace)
}

// ObjectsAllocatedInFromSpace is ObjectsAllocatedIn(RegionTypeFromSpace).
func (rs *RegionSpace) ObjectsAllocatedInFromSpace() uint64 {
	return rs.ObjectsAllocatedIn(RegionTypeFromSpace)
}

// ObjectsAllocatedInUnevacFromSpace is
// ObjectsAllocatedIn(RegionTypeUnevacFromSpace).
func (rs *RegionSpace) ObjectsAllocatedInUnevacFromSpace() uint64 {
	return rs.ObjectsAllocatedIn(RegionTypeUnevacFromSpace)
}

// BytesAllocatedIn sums BytesAllocated over in-use regions of type t.
func (rs *RegionSpace) BytesAllocatedIn(t RegionType) uint64 {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	var n uint64
	for i := 0; i < rs.numRegions; i++ {
		r := &rs.regions[i]
		if !r.IsFree() && r.Type().matches(t) {
			n += uint64(r.BytesAllocated())
		}
	}
	return n
}

// ObjectsAllocatedIn sums ObjectsAllocated over in-use regions of type t.
func (rs *RegionSpace) ObjectsAllocatedIn(t RegionType) uint64 {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	var n uint64
	for i := 0; i < rs.numRegions; i++ {
		r := &rs.regions[i]
		if !r.IsFree() && r.Type().matches(t) {
			n += r.ObjectsAllocated()
		}
	}
	return n
}

// FromSpaceSize returns the bytes covered by from-space regions.
func (rs *RegionSpace) FromSpaceSize() uint64 { return rs.sizeOf(RegionTypeFromSpace) }

// UnevacFromSpaceSize returns the bytes covered by unevac regions.
func (rs *RegionSpace) UnevacFromSpaceSize() uint64 { return rs.sizeOf(RegionTypeUnevacFromSpace) }

// ToSpaceSize returns the bytes covered by to-space regions.
func (rs *RegionSpace) ToSpaceSize() uint64 { return rs.sizeOf(RegionTypeToSpace) }

func (rs *RegionSpace) sizeOf(t RegionType) uint64 {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	var n uint64
	for i := 0; i < rs.numRegions; i++ {
		if rs.regions[i].Type() == t {
			n += uint64(RegionSize)
		}
	}
	return n
}

// Snapshot is a consistent copy of the space's bookkeeping.
type Snapshot struct {
	Begin, Limit             Ref
	Time                     uint32
	NumRegions               int
	NumNonFreeRegions        int
	NumEvacRegions           int
	NonFreeRegionIndexLimit  int
	MaxPeakNumNonFreeRegions int
	Regions                  []RegionInfo
}

// Snapshot copies the bookkeeping of every usable region under the lock.
func (rs *RegionSpace) Snapshot() Snapshot {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	s := Snapshot{
		Begin:                    rs.begin,
		Limit:                    rs.Limit(),
		Time:                     rs.time,
		NumRegions:               rs.numRegions,
		NumNonFreeRegions:        rs.numNonFreeRegions,
		NumEvacRegions:           rs.numEvacRegions,
		NonFreeRegionIndexLimit:  rs.nonFreeRegionIndexLimit,
		MaxPeakNumNonFreeRegions: rs.maxPeakNumNonFreeRegions,
		Regions:                  make([]RegionInfo, rs.numRegions),
	}
	for i := range s.Regions {
		s.Regions[i] = rs.regions[i].Info()
	}
	return s
}
