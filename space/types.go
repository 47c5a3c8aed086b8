package space

// Ref is the address of an object in the space. The zero Ref means "no
// object".
type Ref uintptr

// ObjectModel answers the two questions the space asks about objects. header
// starts at the object's first byte and extends at least to the end of the
// object's region.
type ObjectModel interface {
	// SizeOf returns the size of the object in bytes.
	SizeOf(header []byte) uintptr
	// IsObject reports whether an object header is installed.
	IsObject(header []byte) bool
}

// MarkedRangeVisitor visits the marked addresses in [begin, end) in ascending
// order. *bitmap.Bitmap implements it.
type MarkedRangeVisitor interface {
	VisitMarkedRange(begin, end uintptr, visit func(addr uintptr))
}

// ReadBarrierTable records which address ranges are in from-space.
// *rbtable.Table implements it.
type ReadBarrierTable interface {
	SetRange(begin, end uintptr)
	ClearRange(begin, end uintptr)
}

// RegionState is the allocation state of a region.
type RegionState uint32

const (
	// RegionStateFree regions hold no objects.
	RegionStateFree RegionState = iota
	// RegionStateAllocated regions hold bump-allocated objects.
	RegionStateAllocated
	// RegionStateLarge is the first region of a large object.
	RegionStateLarge
	// RegionStateLargeTail is any following region of a large object.
	RegionStateLargeTail
)

// String returns the state name used in dumps.
func (s RegionState) String() string {
	switch s {
	case RegionStateFree:
		return "Free"
	case RegionStateAllocated:
		return "Allocated"
	case RegionStateLarge:
		return "Large"
	case RegionStateLargeTail:
		return "LargeTail"
	default:
		return "Unknown"
	}
}

// RegionType is the role of a region in the current collection cycle.
type RegionType uint32

const (
	// RegionTypeNone is the type of a free region.
	RegionTypeNone RegionType = iota
	// RegionTypeToSpace regions hold objects that survive the current cycle.
	RegionTypeToSpace
	// RegionTypeFromSpace regions are evacuated and freed by ClearFromSpace.
	RegionTypeFromSpace
	// RegionTypeUnevacFromSpace regions are collected in place: their live
	// objects stay put and the region becomes to-space again.
	RegionTypeUnevacFromSpace
	// RegionTypeAll matches every type in queries. No region has it.
	RegionTypeAll
)

// String returns the type name used in dumps.
func (t RegionType) String() string {
	switch t {
	case RegionTypeNone:
		return "None"
	case RegionTypeToSpace:
		return "ToSpace"
	case RegionTypeFromSpace:
		return "FromSpace"
	case RegionTypeUnevacFromSpace:
		return "UnevacFromSpace"
	case RegionTypeAll:
		return "All"
	default:
		return "Unknown"
	}
}

func (t RegionType) matches(want RegionType) bool {
	return want == RegionTypeAll || t == want
}

// EvacMode selects which regions SetFromSpace evacuates.
type EvacMode int

const (
	// EvacModeNewlyAllocated evacuates regions allocated since the last cycle.
	EvacModeNewlyAllocated EvacMode = iota
	// EvacModeLivePercentNewlyAllocated additionally evacuates older regions
	// whose live percentage fell below EvacuateLivePercentThreshold.
	EvacModeLivePercentNewlyAllocated
	// EvacModeForceAll evacuates every region.
	EvacModeForceAll
)

// String returns the mode name used in logs.
func (m EvacMode) String() string {
	switch m {
	case EvacModeNewlyAllocated:
		return "NewlyAllocated"
	case EvacModeLivePercentNewlyAllocated:
		return "LivePercentNewlyAllocated"
	case EvacModeForceAll:
		return "ForceAll"
	default:
		return "Unknown"
	}
}

// Domain says who is allocating. Mutator allocations are subject to the
// evacuation reserve; Evacuation allocations hold the copies made during a
// collection and may use it.
type Domain int

const (
	// Mutator allocations come from application threads.
	Mutator Domain = iota
	// Evacuation allocations receive objects copied out of from-space.
	Evacuation
)

// String returns the domain name used in logs.
func (d Domain) String() string {
	if d == Evacuation {
		return "Evacuation"
	}
	return "Mutator"
}

// AllocResult describes an allocation. The zero value means the allocation
// failed.
type AllocResult struct {
	// Obj is the address of the new object.
	Obj Ref
	// BytesAllocated is the number of bytes charged to the object.
	BytesAllocated uintptr
	// UsableSize is the number of bytes the caller may use.
	UsableSize uintptr
	// BytesTLBulkAllocated is the number of bytes taken from the space,
	// which for a new TLAB exceeds the object itself.
	BytesTLBulkAllocated uintptr
}

// OK reports whether the allocation succeeded.
func (r AllocResult) OK() bool { return r.Obj != 0 }
