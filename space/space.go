package space

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/joshuapare/regionspace/internal/memmap"
	"github.com/joshuapare/regionspace/internal/units"
	"github.com/joshuapare/regionspace/space/bitmap"
)

// RegionSpace is a heap of fixed-size regions. It is safe for concurrent
// use, subject to the preconditions documented on individual methods.
type RegionSpace struct {
	name    string
	opts    Options
	log     *slog.Logger
	objects ObjectModel

	mapping *memmap.Mapping
	mapOff  uintptr // offset of Begin() within mapping
	mem     []byte  // [Begin(), Begin()+NonGrowthLimitCapacity())
	begin   Ref
	limit   atomic.Uintptr

	markBitmap *bitmap.Bitmap

	// mu guards region transitions, the counters below and cursor
	// installation. Cursors are read without it on the fast path.
	mu                       sync.Mutex
	regions                  []Region
	numRegions               int
	numNonFreeRegions        int
	numEvacRegions           int
	maxPeakNumNonFreeRegions int
	nonFreeRegionIndexLimit  int
	cyclicAllocRegionIndex   int
	time                     uint32
	partialTLABs             []partialTLAB
	tlabThreads              map[*Thread]struct{}

	// nil means no region assigned; the next allocation installs one.
	currentRegion atomic.Pointer[Region]
	evacRegion    atomic.Pointer[Region]

	// testHookReleased, if set, runs after ClearFromSpace releases pages.
	testHookReleased func(ranges []memmap.Range)
}

// New maps a space of opts.Capacity bytes, rounded up to RegionSize. A nil
// opts uses DefaultOptions.
func New(name string, opts *Options) (*RegionSpace, error) {
	o := opts.withDefaults()
	capacity := units.RoundUp(o.Capacity, RegionSize)
	if capacity == 0 || capacity < o.Capacity {
		return nil, ErrCapacity
	}
	// Over-map by one region so Begin() can be RegionSize-aligned.
	m, err := memmap.Map(int(capacity + RegionSize))
	if err != nil {
		return nil, fmt.Errorf("regionspace: map %s: %w", units.PrettySize(uint64(capacity)), err)
	}
	begin := units.RoundUp(m.Addr(), RegionSize)
	off := begin - m.Addr()
	bm, err := bitmap.New(begin, capacity)
	if err != nil {
		_ = m.Close()
		return nil, err
	}
	numRegions := int(capacity / RegionSize)
	rs := &RegionSpace{
		name:        name,
		opts:        o,
		log:         o.Logger.With("space", name),
		objects:     o.Objects,
		mapping:     m,
		mapOff:      off,
		mem:         m.Bytes()[off : off+capacity],
		begin:       Ref(begin),
		markBitmap:  bm,
		regions:     make([]Region, numRegions),
		numRegions:  numRegions,
		tlabThreads: make(map[*Thread]struct{}),
	}
	rs.limit.Store(begin + capacity)
	for i := range rs.regions {
		rb := rs.begin + Ref(uintptr(i)*RegionSize)
		rs.regions[i].init(i, rb, rb+Ref(RegionSize))
	}
	rs.log.Debug("region space created",
		"begin", fmt.Sprintf("%#x", begin),
		"capacity", units.PrettySize(uint64(capacity)),
		"regions", numRegions)
	return rs, nil
}

// Close unmaps the space. No reference into the space may be used after.
func (rs *RegionSpace) Close() error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.currentRegion.Store(nil)
	rs.evacRegion.Store(nil)
	return rs.mapping.Close()
}

// Name returns the name given to New.
func (rs *RegionSpace) Name() string { return rs.name }

// Begin returns the first address of the space.
func (rs *RegionSpace) Begin() Ref { return rs.begin }

// Limit returns the address one past the usable part of the space.
func (rs *RegionSpace) Limit() Ref { return Ref(rs.limit.Load()) }

// Capacity returns the usable size in bytes.
func (rs *RegionSpace) Capacity() uintptr { return uintptr(rs.Limit() - rs.begin) }

// NonGrowthLimitCapacity returns the mapped size, ignoring any growth limit.
func (rs *RegionSpace) NonGrowthLimitCapacity() uintptr { return uintptr(len(rs.mem)) }

// MarkBitmap returns the bitmap Walk consults for regions whose objects are
// not all live.
func (rs *RegionSpace) MarkBitmap() *bitmap.Bitmap { return rs.markBitmap }

// Objects returns the object model the space was configured with.
func (rs *RegionSpace) Objects() ObjectModel { return rs.objects }

// Bytes returns the n bytes at ref, or nil if they are not inside the space.
func (rs *RegionSpace) Bytes(ref Ref, n uintptr) []byte {
	if ref < rs.begin {
		return nil
	}
	off := uintptr(ref - rs.begin)
	if off > uintptr(len(rs.mem)) || n > uintptr(len(rs.mem))-off {
		return nil
	}
	return rs.mem[off : off+n : off+n]
}

// header returns the bytes from obj to the limit, for the object model.
func (rs *RegionSpace) header(obj Ref) []byte {
	off := uintptr(obj - rs.begin)
	return rs.mem[off:uintptr(rs.Limit()-rs.begin)]
}

// ClampGrowthLimit shrinks the usable part of the space to newCapacity
// bytes, rounded down to whole regions. It fails if regions past the new
// limit are in use.
func (rs *RegionSpace) ClampGrowthLimit(newCapacity uintptr) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if newCapacity > rs.NonGrowthLimitCapacity() {
		return fmt.Errorf("%w: %s exceeds capacity %s", ErrGrowthLimit,
			units.PrettySize(uint64(newCapacity)), units.PrettySize(uint64(rs.NonGrowthLimitCapacity())))
	}
	newNumRegions := int(newCapacity / RegionSize)
	if newNumRegions == 0 {
		return fmt.Errorf("%w: %s is less than one region", ErrGrowthLimit, units.PrettySize(uint64(newCapacity)))
	}
	if rs.nonFreeRegionIndexLimit > newNumRegions {
		rs.log.Warn("cannot clamp region space: regions in use beyond growth limit",
			"new_regions", newNumRegions,
			"non_free_limit", rs.nonFreeRegionIndexLimit)
		return fmt.Errorf("%w: region %d in use", ErrGrowthLimit, rs.nonFreeRegionIndexLimit-1)
	}
	rs.numRegions = newNumRegions
	if rs.cyclicAllocRegionIndex >= rs.numRegions {
		rs.cyclicAllocRegionIndex = 0
	}
	size := uintptr(newNumRegions) * RegionSize
	rs.limit.Store(uintptr(rs.begin) + size)
	rs.markBitmap.SetHeapSize(size)
	return nil
}

// Clear returns every region to Free. Thread-local buffers are revoked
// without reuse. The caller must ensure no mutator is allocating.
func (rs *RegionSpace) Clear() {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	for t := range rs.tlabThreads {
		rs.revokeThreadLocalBuffersLocked(t, false)
	}
	for i := range rs.regions[:rs.numRegions] {
		r := &rs.regions[i]
		if !r.IsFree() {
			rs.clearRegion(r, true)
		}
	}
	rs.numNonFreeRegions = 0
	rs.numEvacRegions = 0
	rs.nonFreeRegionIndexLimit = 0
	rs.cyclicAllocRegionIndex = 0
	rs.partialTLABs = rs.partialTLABs[:0]
	rs.currentRegion.Store(nil)
	rs.evacRegion.Store(nil)
	rs.markBitmap.ClearAll()
}

// Protect makes the whole space inaccessible. Any access faults until
// Unprotect.
func (rs *RegionSpace) Protect() error {
	return rs.mapping.Protect(rs.mapOff, rs.Capacity(), memmap.None)
}

// Unprotect restores read-write access to the whole space.
func (rs *RegionSpace) Unprotect() error {
	return rs.mapping.Protect(rs.mapOff, rs.Capacity(), memmap.ReadWrite)
}

// unfreeRegion does the bookkeeping shared by every Free to in-use
// transition. mu must be held and the state already set.
func (rs *RegionSpace) unfreeRegion(r *Region) {
	rs.adjustNonFreeRegionLimit(r.idx)
	if rs.opts.ProtectClearedRegions {
		if err := rs.mapping.Protect(rs.offsetOf(r.begin), RegionSize, memmap.ReadWrite); err != nil {
			rs.log.Warn("unprotect region", "region", r.idx, "err", err)
		}
	}
}

// clearRegion returns r to Free. mu must be held.
func (rs *RegionSpace) clearRegion(r *Region, zeroAndRelease bool) {
	r.reset()
	if zeroAndRelease {
		rs.zeroAndRelease(r.begin, RegionSize)
	}
	if rs.opts.ProtectClearedRegions {
		if err := rs.mapping.Protect(rs.offsetOf(r.begin), RegionSize, memmap.None); err != nil {
			rs.log.Warn("protect cleared region", "region", r.idx, "err", err)
		}
	}
}

// zeroAndRelease zeroes [begin, begin+n) and hands its pages back to the OS.
func (rs *RegionSpace) zeroAndRelease(begin Ref, n uintptr) {
	if err := rs.mapping.Release(rs.offsetOf(begin), n); err != nil {
		rs.log.Warn("page release failed, zeroing in place",
			"begin", fmt.Sprintf("%#x", uintptr(begin)), "len", n, "err", err)
		off := uintptr(begin - rs.begin)
		clear(rs.mem[off : off+n])
	}
}

func (rs *RegionSpace) offsetOf(ref Ref) uintptr { return rs.mapOff + uintptr(ref-rs.begin) }

func (rs *RegionSpace) adjustNonFreeRegionLimit(idx int) {
	if debugChecks {
		assertf(idx < rs.numRegions, "region %d beyond %d regions", idx, rs.numRegions)
	}
	rs.nonFreeRegionIndexLimit = max(rs.nonFreeRegionIndexLimit, idx+1)
	if debugChecks {
		rs.verifyNonFreeRegionLimit()
	}
}

func (rs *RegionSpace) setNonFreeRegionLimit(limit int) {
	rs.nonFreeRegionIndexLimit = limit
	if debugChecks {
		rs.verifyNonFreeRegionLimit()
	}
}

func (rs *RegionSpace) verifyNonFreeRegionLimit() {
	for i := rs.nonFreeRegionIndexLimit; i < rs.numRegions; i++ {
		assertf(rs.regions[i].IsFree(), "region %d beyond non-free limit %d is %s",
			i, rs.nonFreeRegionIndexLimit, rs.regions[i].State())
	}
}
