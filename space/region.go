package space

import (
	"math"
	"sync/atomic"

	"github.com/joshuapare/regionspace/internal/units"
)

// LiveBytesUnknown is the live byte count of a region whose liveness has not
// been computed this cycle.
const LiveBytesUnknown = math.MaxUint64

// Region is one RegionSize slice of the space. Regions are owned by their
// RegionSpace and are never moved or reallocated; only their tags change.
//
// The exported methods are safe to call concurrently. Tag transitions happen
// only inside the space, with its lock held.
type Region struct {
	idx   int
	begin Ref
	end   Ref

	top              atomic.Uintptr
	state            atomic.Uint32
	typ              atomic.Uint32
	liveBytes        atomic.Uint64
	objectsAllocated atomic.Uint64
	isNewlyAllocated atomic.Bool
	allocTime        atomic.Uint32

	isTLAB atomic.Bool
	thread atomic.Pointer[Thread]
}

func (r *Region) init(idx int, begin, end Ref) {
	r.idx = idx
	r.begin = begin
	r.end = end
	r.reset()
}

func (r *Region) reset() {
	r.top.Store(uintptr(r.begin))
	r.state.Store(uint32(RegionStateFree))
	r.typ.Store(uint32(RegionTypeNone))
	r.liveBytes.Store(LiveBytesUnknown)
	r.objectsAllocated.Store(0)
	r.isNewlyAllocated.Store(false)
	r.allocTime.Store(0)
	r.isTLAB.Store(false)
	r.thread.Store(nil)
}

// Idx returns the region's index in its space.
func (r *Region) Idx() int { return r.idx }

// Begin returns the first address of the region.
func (r *Region) Begin() Ref { return r.begin }

// End returns the address one past the region.
func (r *Region) End() Ref { return r.end }

// Top returns the bump pointer. For a Large region it lies past End.
func (r *Region) Top() Ref { return Ref(r.top.Load()) }

func (r *Region) setTop(top Ref) { r.top.Store(uintptr(top)) }

// State returns the region's allocation state.
func (r *Region) State() RegionState { return RegionState(r.state.Load()) }

// Type returns the region's role in the current collection cycle.
func (r *Region) Type() RegionType { return RegionType(r.typ.Load()) }

// IsFree reports whether the region holds nothing.
func (r *Region) IsFree() bool { return r.State() == RegionStateFree }

// IsAllocated reports whether the region holds bump-allocated objects.
func (r *Region) IsAllocated() bool { return r.State() == RegionStateAllocated }

// IsLarge reports whether the region is the head of a large object.
func (r *Region) IsLarge() bool { return r.State() == RegionStateLarge }

// IsLargeTail reports whether the region continues a large object.
func (r *Region) IsLargeTail() bool { return r.State() == RegionStateLargeTail }

// IsInToSpace reports whether the region is to-space.
func (r *Region) IsInToSpace() bool { return r.Type() == RegionTypeToSpace }

// IsInFromSpace reports whether the region is being evacuated.
func (r *Region) IsInFromSpace() bool { return r.Type() == RegionTypeFromSpace }

// IsInUnevacFromSpace reports whether the region is collected in place.
func (r *Region) IsInUnevacFromSpace() bool { return r.Type() == RegionTypeUnevacFromSpace }

// IsInNoSpace reports whether the region has no type, which holds exactly
// for free regions.
func (r *Region) IsInNoSpace() bool { return r.Type() == RegionTypeNone }

// IsNewlyAllocated reports whether the region was allocated by a mutator
// since the last SetFromSpace.
func (r *Region) IsNewlyAllocated() bool { return r.isNewlyAllocated.Load() }

func (r *Region) setNewlyAllocated() { r.isNewlyAllocated.Store(true) }

// IsTLAB reports whether the region is handed out as a thread-local buffer.
func (r *Region) IsTLAB() bool { return r.isTLAB.Load() }

// Thread returns the thread owning the region's TLAB, or nil.
func (r *Region) Thread() *Thread { return r.thread.Load() }

// AllocTime returns the space time at which the region was allocated.
func (r *Region) AllocTime() uint32 { return r.allocTime.Load() }

// LiveBytes returns the live byte count recorded for this cycle, or
// LiveBytesUnknown.
func (r *Region) LiveBytes() uint64 { return r.liveBytes.Load() }

// Alloc bump-allocates numBytes, which must be a multiple of Alignment. It
// never blocks; a zero result means the region is full.
func (r *Region) Alloc(numBytes uintptr) AllocResult {
	if debugChecks {
		assertf(r.IsAllocated() && r.IsInToSpace(), "alloc in region %d (%s, %s)", r.idx, r.State(), r.Type())
		assertf(numBytes%Alignment == 0, "alloc size %d not aligned", numBytes)
	}
	end := uintptr(r.end)
	for {
		oldTop := r.top.Load()
		if oldTop > end || numBytes > end-oldTop {
			return AllocResult{}
		}
		if r.top.CompareAndSwap(oldTop, oldTop+numBytes) {
			r.objectsAllocated.Add(1)
			return AllocResult{
				Obj:                  Ref(oldTop),
				BytesAllocated:       numBytes,
				UsableSize:           numBytes,
				BytesTLBulkAllocated: numBytes,
			}
		}
	}
}

// BytesAllocated returns the number of bytes in use. A Large region
// reports its whole span; a TLAB region reports up to the end of the
// owning thread's buffer.
func (r *Region) BytesAllocated() uintptr {
	switch r.State() {
	case RegionStateLarge:
		return uintptr(r.Top() - r.begin)
	case RegionStateLargeTail, RegionStateFree:
		return 0
	}
	if r.IsTLAB() {
		if t := r.Thread(); t != nil {
			// The thread may be revoking or moving on; its end only counts
			// while it still lies in this region.
			if end := t.end.Load(); end >= uintptr(r.begin) && end <= uintptr(r.end) {
				return end - uintptr(r.begin)
			}
		}
	}
	return uintptr(r.Top() - r.begin)
}

// ObjectsAllocated returns the number of objects allocated in the region.
// The count is approximate while allocations are in flight.
func (r *Region) ObjectsAllocated() uint64 {
	switch r.State() {
	case RegionStateLarge:
		return 1
	case RegionStateLargeTail, RegionStateFree:
		return 0
	}
	return r.objectsAllocated.Load()
}

func (r *Region) unfree(allocTime uint32) {
	if debugChecks {
		assertf(r.IsFree(), "unfree of region %d in state %s", r.idx, r.State())
	}
	r.allocTime.Store(allocTime)
	r.state.Store(uint32(RegionStateAllocated))
	r.typ.Store(uint32(RegionTypeToSpace))
}

func (r *Region) unfreeLarge(allocTime uint32) {
	if debugChecks {
		assertf(r.IsFree(), "unfree large of region %d in state %s", r.idx, r.State())
	}
	r.allocTime.Store(allocTime)
	r.state.Store(uint32(RegionStateLarge))
	r.typ.Store(uint32(RegionTypeToSpace))
}

func (r *Region) unfreeLargeTail(allocTime uint32) {
	if debugChecks {
		assertf(r.IsFree(), "unfree large tail of region %d in state %s", r.idx, r.State())
	}
	r.allocTime.Store(allocTime)
	r.state.Store(uint32(RegionStateLargeTail))
	r.typ.Store(uint32(RegionTypeToSpace))
}

func (r *Region) setAsFromSpace() {
	if debugChecks {
		assertf(!r.IsFree() && r.IsInToSpace(), "region %d to from-space from %s/%s", r.idx, r.State(), r.Type())
	}
	r.typ.Store(uint32(RegionTypeFromSpace))
	r.isNewlyAllocated.Store(false)
	r.liveBytes.Store(LiveBytesUnknown)
}

func (r *Region) setAsUnevacFromSpace(clearLiveBytes bool) {
	if debugChecks {
		assertf(!r.IsFree() && r.IsInToSpace(), "region %d to unevac from %s/%s", r.idx, r.State(), r.Type())
	}
	r.typ.Store(uint32(RegionTypeUnevacFromSpace))
	// Live bytes of a newly allocated region were never counted.
	if r.IsNewlyAllocated() {
		clearLiveBytes = true
		r.isNewlyAllocated.Store(false)
	}
	if clearLiveBytes {
		r.liveBytes.Store(0)
	}
}

func (r *Region) setUnevacFromSpaceAsToSpace() {
	if debugChecks {
		assertf(!r.IsFree() && r.IsInUnevacFromSpace(), "region %d to to-space from %s/%s", r.idx, r.State(), r.Type())
	}
	r.typ.Store(uint32(RegionTypeToSpace))
}

// ShouldBeEvacuated decides whether SetFromSpace evacuates the region under
// mode. It does not modify the region. For a large object only the head is
// consulted.
func (r *Region) ShouldBeEvacuated(mode EvacMode) bool {
	if debugChecks {
		assertf(r.IsAllocated() || r.IsLarge(), "evacuation decision for region %d in state %s", r.idx, r.State())
	}
	if !r.IsAllocated() && !r.IsLarge() {
		return false
	}
	if mode == EvacModeForceAll {
		return true
	}
	if r.IsNewlyAllocated() {
		// A newly allocated large object has no liveness data yet and
		// stays in place.
		return r.IsAllocated()
	}
	if mode != EvacModeLivePercentNewlyAllocated {
		return false
	}
	live := r.LiveBytes()
	if live == LiveBytesUnknown {
		return false
	}
	if r.IsLarge() {
		return live == 0
	}
	allocated := uint64(units.RoundUp(r.BytesAllocated(), RegionSize))
	return live*100 < EvacuateLivePercentThreshold*allocated
}

func (r *Region) addLiveBytes(n uint64) {
	if debugChecks {
		assertf(!r.IsLargeTail(), "live bytes added to large tail %d", r.idx)
		assertf(r.LiveBytes() != LiveBytesUnknown, "live bytes added to region %d with unknown liveness", r.idx)
	}
	r.liveBytes.Add(n)
}

func (r *Region) zeroLiveBytes() { r.liveBytes.Store(0) }

// AllAllocatedBytesAreLive reports whether every allocated byte was found
// live. It is false while liveness is unknown.
func (r *Region) AllAllocatedBytesAreLive() bool {
	live := r.LiveBytes()
	return live != LiveBytesUnknown && live == uint64(r.Top()-r.begin)
}

func (r *Region) recordThreadLocalAllocations(numObjects uint64, numBytes uintptr) {
	if debugChecks {
		assertf(r.IsAllocated() && r.IsInToSpace(), "tlab record in region %d (%s, %s)", r.idx, r.State(), r.Type())
		assertf(uintptr(r.begin)+numBytes <= uintptr(r.end), "tlab overruns region %d", r.idx)
	}
	r.objectsAllocated.Add(numObjects)
	r.setTop(r.begin + Ref(numBytes))
	r.isTLAB.Store(false)
	r.thread.Store(nil)
}

// RegionInfo is a point-in-time copy of a region's fields.
type RegionInfo struct {
	Idx              int
	Begin, Top, End  Ref
	State            RegionState
	Type             RegionType
	LiveBytes        uint64
	ObjectsAllocated uint64
	BytesAllocated   uintptr
	IsNewlyAllocated bool
	IsTLAB           bool
	AllocTime        uint32
}

// Info returns a copy of the region's fields.
func (r *Region) Info() RegionInfo {
	return RegionInfo{
		Idx:              r.idx,
		Begin:            r.begin,
		Top:              r.Top(),
		End:              r.end,
		State:            r.State(),
		Type:             r.Type(),
		LiveBytes:        r.LiveBytes(),
		ObjectsAllocated: r.objectsAllocated.Load(),
		BytesAllocated:   r.BytesAllocated(),
		IsNewlyAllocated: r.IsNewlyAllocated(),
		IsTLAB:           r.IsTLAB(),
		AllocTime:        r.AllocTime(),
	}
}
