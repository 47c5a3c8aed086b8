package space

import (
	"sort"
	"sync/atomic"
)

// Thread is a mutator's handle for thread-local allocation. It owns at most
// one TLAB at a time: [start, end) handed out by the space, of which
// [start, pos) is used. limit is the end of the backing region, up to which
// the TLAB may grow.
//
// A Thread must be used by one goroutine at a time. The space reads its
// fields concurrently for accounting.
type Thread struct {
	name    string
	start   atomic.Uintptr
	pos     atomic.Uintptr
	end     atomic.Uintptr
	limit   atomic.Uintptr
	objects atomic.Uint64
}

// NewThread returns a Thread without a TLAB.
func NewThread(name string) *Thread { return &Thread{name: name} }

// Name returns the name given to NewThread.
func (t *Thread) Name() string { return t.name }

// HasTLAB reports whether the thread currently owns a TLAB.
func (t *Thread) HasTLAB() bool { return t.start.Load() != 0 }

// TLABStart returns the first address of the TLAB, or 0.
func (t *Thread) TLABStart() Ref { return Ref(t.start.Load()) }

// TLABPos returns the next address to be allocated.
func (t *Thread) TLABPos() Ref { return Ref(t.pos.Load()) }

// TLABEnd returns the end of the TLAB.
func (t *Thread) TLABEnd() Ref { return Ref(t.end.Load()) }

// TLABSize returns the unused bytes in the TLAB.
func (t *Thread) TLABSize() uintptr { return t.end.Load() - t.pos.Load() }

// TLABRemainingCapacity returns the bytes the TLAB could still hand out if
// grown to the end of its region.
func (t *Thread) TLABRemainingCapacity() uintptr { return t.limit.Load() - t.pos.Load() }

// ObjectsAllocated returns the objects allocated in the current TLAB.
func (t *Thread) ObjectsAllocated() uint64 { return t.objects.Load() }

func (t *Thread) setTLAB(start, end, limit uintptr) {
	t.start.Store(start)
	t.pos.Store(start)
	t.end.Store(end)
	t.limit.Store(limit)
	t.objects.Store(0)
}

func (t *Thread) resetTLAB() { t.setTLAB(0, 0, 0) }

func (t *Thread) expandTLAB(n uintptr) { t.end.Add(n) }

// bumpAlloc allocates n bytes from the TLAB, or returns 0.
func (t *Thread) bumpAlloc(n uintptr) Ref {
	pos := t.pos.Load()
	if pos == 0 || n > t.end.Load()-pos {
		return 0
	}
	t.pos.Store(pos + n)
	t.objects.Add(1)
	return Ref(pos)
}

type partialTLAB struct {
	free   uintptr
	region *Region
}

// insertPartialTLAB keeps the pool ordered by free bytes, largest first.
// Among equal sizes the newest entry goes last.
func (rs *RegionSpace) insertPartialTLAB(free uintptr, r *Region) {
	i := sort.Search(len(rs.partialTLABs), func(i int) bool {
		return rs.partialTLABs[i].free < free
	})
	rs.partialTLABs = append(rs.partialTLABs, partialTLAB{})
	copy(rs.partialTLABs[i+1:], rs.partialTLABs[i:])
	rs.partialTLABs[i] = partialTLAB{free: free, region: r}
}

// NumPartialTLABs returns the number of pooled partial TLABs.
func (rs *RegionSpace) NumPartialTLABs() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return len(rs.partialTLABs)
}

// AllocTLAB allocates numBytes for t, preferring its TLAB. When the TLAB is
// too small it is grown within its region, then replaced by a new one; as a
// last resort the object is allocated outside any TLAB.
func (rs *RegionSpace) AllocTLAB(t *Thread, numBytes uintptr) AllocResult {
	n := alignSize(numBytes)
	if obj := t.bumpAlloc(n); obj != 0 {
		return AllocResult{Obj: obj, BytesAllocated: n, UsableSize: n}
	}
	if n > RegionSize {
		return rs.AllocNonvirtual(n, Mutator)
	}
	if rs.opts.PartialTLABs && t.HasTLAB() && n <= t.TLABRemainingCapacity() {
		minExpand := n - t.TLABSize()
		expand := max(minExpand, min(t.limit.Load()-t.end.Load(), PartialTLABSize))
		t.expandTLAB(expand)
		obj := t.bumpAlloc(n)
		return AllocResult{Obj: obj, BytesAllocated: n, UsableSize: n, BytesTLBulkAllocated: expand}
	}
	size := RegionSize
	if rs.opts.PartialTLABs {
		size = max(n, PartialTLABSize)
	}
	if bulk, ok := rs.AllocNewTLAB(t, size); ok {
		obj := t.bumpAlloc(n)
		return AllocResult{Obj: obj, BytesAllocated: n, UsableSize: n, BytesTLBulkAllocated: bulk}
	}
	return rs.AllocNonvirtual(n, Mutator)
}

// AllocNewTLAB gives t a TLAB of size bytes, revoking its current one. The
// largest pooled partial TLAB that fits is used first, then a fresh region.
// It returns the number of bytes taken from the space.
func (rs *RegionSpace) AllocNewTLAB(t *Thread, size uintptr) (uintptr, bool) {
	if debugChecks {
		assertf(size > 0 && size <= RegionSize && size%Alignment == 0, "tlab size %d", size)
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.revokeThreadLocalBuffersLocked(t, rs.opts.PartialTLABs)

	var r *Region
	if rs.opts.PartialTLABs && len(rs.partialTLABs) > 0 && rs.partialTLABs[0].free >= size {
		r = rs.partialTLABs[0].region
		rs.partialTLABs = rs.partialTLABs[1:]
	} else {
		r = rs.allocateRegion(Mutator)
		if r == nil {
			return 0, false
		}
	}
	start := uintptr(r.Top())
	if debugChecks {
		assertf(r.IsAllocated() && !r.IsTLAB(), "tlab from region %d (%s, tlab=%v)", r.idx, r.State(), r.IsTLAB())
		assertf(start+size <= uintptr(r.end), "tlab of %d bytes overruns region %d", size, r.idx)
	}
	r.isTLAB.Store(true)
	r.thread.Store(t)
	r.setTop(r.end)
	t.setTLAB(start, start+size, uintptr(r.end))
	rs.tlabThreads[t] = struct{}{}
	return size, true
}

// RevokeThreadLocalBuffers returns t's TLAB to the space. Its unused tail
// is pooled for reuse when partial TLABs are enabled.
func (rs *RegionSpace) RevokeThreadLocalBuffers(t *Thread) {
	rs.RevokeThreadLocalBuffersReuse(t, rs.opts.PartialTLABs)
}

// RevokeThreadLocalBuffersReuse is RevokeThreadLocalBuffers with explicit
// control over pooling the unused tail.
func (rs *RegionSpace) RevokeThreadLocalBuffersReuse(t *Thread, reuse bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.revokeThreadLocalBuffersLocked(t, reuse)
}

// RevokeAllThreadLocalBuffers revokes the TLAB of every thread that holds
// one. Mutators must be paused.
func (rs *RegionSpace) RevokeAllThreadLocalBuffers() {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	for t := range rs.tlabThreads {
		rs.revokeThreadLocalBuffersLocked(t, rs.opts.PartialTLABs)
	}
}

// ThreadLocalBuffersRevoked reports whether no thread holds a TLAB.
func (rs *RegionSpace) ThreadLocalBuffersRevoked() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return len(rs.tlabThreads) == 0
}

func (rs *RegionSpace) revokeThreadLocalBuffersLocked(t *Thread, reuse bool) {
	delete(rs.tlabThreads, t)
	start := t.TLABStart()
	if start == 0 {
		return
	}
	r := rs.refToRegionLocked(start)
	pos := t.pos.Load()
	if debugChecks {
		assertf(r.Thread() == t, "region %d tlab owned by another thread", r.idx)
		assertf(pos >= uintptr(r.begin) && pos <= uintptr(r.end), "tlab pos %#x outside region %d", pos, r.idx)
	}
	r.recordThreadLocalAllocations(t.ObjectsAllocated(), pos-uintptr(r.begin))
	if remaining := uintptr(r.end) - pos; reuse && remaining >= PartialTLABSize {
		rs.insertPartialTLAB(remaining, r)
	}
	t.resetTLAB()
}
