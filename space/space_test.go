package space

import (
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestNew_Layout(t *testing.T) {
	rs := newTestSpace(t, 8)

	assert.Equal(t, "test", rs.Name())
	assert.Equal(t, 8, rs.NumRegions())
	assert.Equal(t, 8*RegionSize, rs.Capacity())
	assert.Zero(t, uintptr(rs.Begin())%RegionSize, "begin must be region aligned")
	assert.Equal(t, rs.Begin()+Ref(8*RegionSize), rs.Limit())
	assert.Equal(t, uintptr(rs.Begin()), rs.MarkBitmap().HeapBegin())

	for i := range 8 {
		r := rs.Region(i)
		require.NotNil(t, r)
		assert.Equal(t, i, r.Idx())
		assert.Equal(t, rs.Begin()+Ref(uintptr(i)*RegionSize), r.Begin())
		assert.True(t, r.IsFree())
	}
	assert.Nil(t, rs.Region(8))
	assert.Nil(t, rs.Region(-1))
}

func TestNew_RoundsCapacityUp(t *testing.T) {
	o := DefaultOptions()
	o.Capacity = RegionSize + 1
	rs, err := New("odd", o)
	require.NoError(t, err)
	defer rs.Close()
	assert.Equal(t, 2, rs.NumRegions())
}

func TestNew_ZeroCapacity(t *testing.T) {
	o := DefaultOptions()
	o.Capacity = 0
	_, err := New("empty", o)
	require.ErrorIs(t, err, ErrCapacity)
}

func TestNew_NilOptions(t *testing.T) {
	rs, err := New("default", nil)
	require.NoError(t, err)
	defer rs.Close()
	assert.Equal(t, uintptr(DefaultCapacity), rs.Capacity())
}

// TestAlloc_Sequential allocates 64, 128 and 256 bytes into an empty space.
func TestAlloc_Sequential(t *testing.T) {
	rs := newTestSpace(t, 4)

	a := rs.Alloc(64)
	b := rs.Alloc(128)
	c := rs.Alloc(256)
	require.True(t, a.OK() && b.OK() && c.OK())

	r := rs.RefToRegion(a.Obj)
	require.NotNil(t, r)
	assert.Equal(t, r.Begin(), a.Obj)
	assert.Equal(t, r.Begin()+64, b.Obj)
	assert.Equal(t, r.Begin()+192, c.Obj)
	assert.Equal(t, uintptr(448), r.BytesAllocated())
	assert.Equal(t, uint64(448), rs.BytesAllocated())
	assert.Equal(t, uint64(3), rs.ObjectsAllocated())
	assert.True(t, r.IsNewlyAllocated())
	assert.True(t, r.IsInToSpace())
	assert.Equal(t, 1, rs.NumNonFreeRegions())
}

func TestAlloc_RoundsToAlignment(t *testing.T) {
	rs := newTestSpace(t, 4)

	for _, n := range []uintptr{0, 1, 7, 8, 9, 13, 100} {
		res := rs.Alloc(n)
		require.True(t, res.OK())
		assert.Zero(t, uintptr(res.Obj)%Alignment, "Alloc(%d) not aligned", n)
		assert.Zero(t, res.BytesAllocated%Alignment)
		assert.GreaterOrEqual(t, res.BytesAllocated, max(n, Alignment))
	}
}

func TestAlloc_InstallsNewRegionWhenFull(t *testing.T) {
	rs := newTestSpace(t, 4)

	first := rs.Alloc(RegionSize - 64)
	require.True(t, first.OK())
	second := rs.Alloc(128)
	require.True(t, second.OK())

	assert.NotEqual(t, rs.RegionIdxForRef(first.Obj), rs.RegionIdxForRef(second.Obj))
	assert.Equal(t, rs.RefToRegion(second.Obj).Begin(), second.Obj)
	assert.Equal(t, 2, rs.NumNonFreeRegions())

	// Later allocations continue in the new region.
	third := rs.Alloc(64)
	assert.Equal(t, rs.RegionIdxForRef(second.Obj), rs.RegionIdxForRef(third.Obj))
}

// TestAlloc_MutatorReserve checks that mutators stop at half the regions so
// that evacuation always has room.
func TestAlloc_MutatorReserve(t *testing.T) {
	rs := newTestSpace(t, 4)

	require.True(t, rs.Alloc(RegionSize).OK())
	require.True(t, rs.Alloc(RegionSize).OK())
	assert.False(t, rs.Alloc(RegionSize).OK(), "third region would eat the evacuation reserve")
	assert.Equal(t, 2, rs.NumNonFreeRegions())

	// Evacuation may use the reserve.
	res := rs.AllocNonvirtual(RegionSize, Evacuation)
	require.True(t, res.OK())
	r := rs.RefToRegion(res.Obj)
	assert.False(t, r.IsNewlyAllocated(), "evacuation regions are not newly allocated")
	assert.Equal(t, 1, rs.NumEvacRegions())
	assert.Equal(t, 2, rs.NumNonFreeRegions())
}

func TestAlloc_DomainsUseSeparateRegions(t *testing.T) {
	rs := newTestSpace(t, 8)

	m := rs.AllocNonvirtual(64, Mutator)
	e := rs.AllocNonvirtual(64, Evacuation)
	m2 := rs.AllocNonvirtual(64, Mutator)
	e2 := rs.AllocNonvirtual(64, Evacuation)

	assert.NotEqual(t, rs.RegionIdxForRef(m.Obj), rs.RegionIdxForRef(e.Obj))
	assert.Equal(t, m.Obj+64, m2.Obj)
	assert.Equal(t, e.Obj+64, e2.Obj)
}

func TestAlloc_Concurrent(t *testing.T) {
	rs := newTestSpace(t, 16)

	const workers = 8
	const perWorker = 500
	var (
		mu   sync.Mutex
		objs []AllocResult
	)
	var g errgroup.Group
	for w := range workers {
		g.Go(func() error {
			local := make([]AllocResult, 0, perWorker)
			for i := range perWorker {
				res := rs.Alloc(uintptr(64 + 8*((w+i)%32)))
				if !res.OK() {
					return errors.New("allocation failed")
				}
				local = append(local, res)
			}
			mu.Lock()
			objs = append(objs, local...)
			mu.Unlock()
			return nil
		})
	}
	require.NoError(t, g.Wait())

	sort.Slice(objs, func(i, j int) bool { return objs[i].Obj < objs[j].Obj })
	var total uint64
	for i, res := range objs {
		require.True(t, rs.Contains(res.Obj))
		total += uint64(res.BytesAllocated)
		if i > 0 {
			prev := objs[i-1]
			require.LessOrEqual(t, prev.Obj+Ref(prev.BytesAllocated), res.Obj, "allocations overlap")
		}
		// Small objects never straddle regions.
		require.Equal(t, rs.RegionIdxForRef(res.Obj), rs.RegionIdxForRef(res.Obj+Ref(res.BytesAllocated)-1))
	}
	assert.Equal(t, total, rs.BytesAllocated())
	assert.Equal(t, uint64(workers*perWorker), rs.ObjectsAllocated())
}

func TestFree_Unsupported(t *testing.T) {
	rs := newTestSpace(t, 4)
	obj := rs.Alloc(64).Obj

	_, err := rs.Free(obj)
	require.ErrorIs(t, err, ErrFreeUnsupported)
	require.ErrorIs(t, err, errors.ErrUnsupported)

	_, err = rs.FreeList([]Ref{obj})
	require.ErrorIs(t, err, ErrFreeUnsupported)
}

func TestQueries_OutsideSpace(t *testing.T) {
	rs := newTestSpace(t, 4)

	outside := rs.Limit() + 8
	assert.False(t, rs.Contains(outside))
	assert.False(t, rs.Contains(rs.Begin()-8))
	assert.Nil(t, rs.RefToRegion(outside))
	assert.Equal(t, RegionTypeNone, rs.RegionTypeOf(outside))
	assert.False(t, rs.IsInToSpace(outside))
	assert.False(t, rs.IsLargeObject(outside))
	assert.Nil(t, rs.Bytes(outside, 8))
	assert.Nil(t, rs.Bytes(rs.Limit()-4, 8))
}

func TestBytes_ViewsBackingMemory(t *testing.T) {
	rs := newTestSpace(t, 4)
	obj := rs.Alloc(32).Obj

	b := rs.Bytes(obj, 32)
	require.Len(t, b, 32)
	for _, v := range b {
		require.Zero(t, v, "fresh memory is zeroed")
	}
	b[0] = 0xAB
	assert.Equal(t, byte(0xAB), rs.Bytes(obj, 1)[0])
}

func TestClampGrowthLimit(t *testing.T) {
	t.Run("shrinks", func(t *testing.T) {
		rs := newTestSpace(t, 8)
		require.True(t, rs.Alloc(64).OK())

		require.NoError(t, rs.ClampGrowthLimit(4*RegionSize+100))
		assert.Equal(t, 4, rs.NumRegions())
		assert.Equal(t, 4*RegionSize, rs.Capacity())
		assert.Equal(t, 8*RegionSize, rs.NonGrowthLimitCapacity())
		assert.Equal(t, uintptr(rs.Limit()), rs.MarkBitmap().HeapLimit())
		assert.Nil(t, rs.Region(4))
	})

	t.Run("beyond capacity", func(t *testing.T) {
		rs := newTestSpace(t, 4)
		require.ErrorIs(t, rs.ClampGrowthLimit(5*RegionSize), ErrGrowthLimit)
	})

	t.Run("regions in use", func(t *testing.T) {
		rs := newTestSpace(t, 8)
		require.True(t, rs.AllocLarge(5*RegionSize, Evacuation).OK())
		require.ErrorIs(t, rs.ClampGrowthLimit(4*RegionSize), ErrGrowthLimit)
		assert.Equal(t, 8, rs.NumRegions())
	})
}

func TestClear_ResetsEverything(t *testing.T) {
	rs := newTestSpace(t, 8)
	obj := allocObject(t, rs, 128)
	require.True(t, rs.AllocLarge(2*RegionSize, Mutator).OK())
	require.True(t, rs.AllocNonvirtual(64, Evacuation).OK())
	th := NewThread("t")
	require.True(t, rs.AllocTLAB(th, 64).OK())
	mark(rs, obj)

	rs.Clear()

	assert.Zero(t, rs.NumNonFreeRegions())
	assert.Zero(t, rs.NumEvacRegions())
	assert.Zero(t, rs.NonFreeRegionIndexLimit())
	assert.True(t, rs.ThreadLocalBuffersRevoked())
	assert.False(t, th.HasTLAB())
	assert.False(t, rs.MarkBitmap().Test(uintptr(obj)))
	for i := range rs.NumRegions() {
		assert.True(t, rs.Region(i).IsFree())
	}
	assert.Zero(t, rs.Bytes(obj, 1)[0], "cleared memory is zeroed")

	// The space is usable again from region 0.
	res := rs.Alloc(64)
	require.True(t, res.OK())
	assert.Equal(t, rs.Begin(), res.Obj)
}

func TestProtectClearedRegions_ReuseIsWritable(t *testing.T) {
	rs := newTestSpace(t, 4, func(o *Options) { o.ProtectClearedRegions = true })

	res := rs.AllocLarge(2*RegionSize, Evacuation)
	require.True(t, res.OK())
	rs.Bytes(res.Obj, 1)[0] = 1
	require.NoError(t, rs.FreeLarge(res.Obj, res.BytesAllocated, Evacuation))

	// Reallocating unprotects the run before handing it out.
	again := rs.AllocLarge(2*RegionSize, Evacuation)
	require.True(t, again.OK())
	assert.Equal(t, res.Obj, again.Obj)
	mem := rs.Bytes(again.Obj, 2*RegionSize)
	assert.Zero(t, mem[0])
	mem[len(mem)-1] = 1
}

func TestProtectUnprotect(t *testing.T) {
	rs := newTestSpace(t, 2)
	require.NoError(t, rs.Protect())
	require.NoError(t, rs.Unprotect())
	obj := rs.Alloc(8).Obj
	rs.Bytes(obj, 8)[0] = 1
}

func TestNonFreeRegionIndexLimit_Tracks(t *testing.T) {
	rs := newTestSpace(t, 8)
	assert.Zero(t, rs.NonFreeRegionIndexLimit())

	require.True(t, rs.Alloc(64).OK())
	assert.Equal(t, 1, rs.NonFreeRegionIndexLimit())

	require.True(t, rs.AllocLarge(3*RegionSize, Evacuation).OK())
	assert.Equal(t, 4, rs.NonFreeRegionIndexLimit())
}

func TestSnapshot(t *testing.T) {
	rs := newTestSpace(t, 4)
	obj := rs.Alloc(64).Obj

	s := rs.Snapshot()
	require.Len(t, s.Regions, 4)
	assert.Equal(t, rs.Begin(), s.Begin)
	assert.Equal(t, 1, s.NumNonFreeRegions)
	info := s.Regions[rs.RegionIdxForRef(obj)]
	assert.Equal(t, RegionStateAllocated, info.State)
	assert.Equal(t, uintptr(64), info.BytesAllocated)
	assert.True(t, info.IsNewlyAllocated)
}
