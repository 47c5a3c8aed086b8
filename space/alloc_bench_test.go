package space

import "testing"

// BenchmarkRegion_Alloc measures the lock-free bump path of a single region.
func BenchmarkRegion_Alloc(b *testing.B) {
	rs := newTestSpace(b, 4)
	r := benchRegion(b, rs)

	b.ResetTimer()
	b.ReportAllocs()

	for range b.N {
		if !r.Alloc(64).OK() {
			b.StopTimer()
			r.top.Store(uintptr(r.begin))
			b.StartTimer()
		}
	}
}

// BenchmarkRegionSpace_Alloc measures mutator allocation through the shared
// cursor, including region changes.
func BenchmarkRegionSpace_Alloc(b *testing.B) {
	rs := newTestSpace(b, 64)

	b.ResetTimer()
	b.ReportAllocs()

	for i := range b.N {
		size := uintptr(64 + (i%64)*8) // 64-568 bytes
		if !rs.Alloc(size).OK() {
			b.StopTimer()
			rs.Clear()
			b.StartTimer()
		}
	}
}

// BenchmarkRegionSpace_AllocParallel measures contended allocation on the
// shared cursor.
func BenchmarkRegionSpace_AllocParallel(b *testing.B) {
	rs := newTestSpace(b, 1024)

	b.ResetTimer()
	b.ReportAllocs()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			// Exhaustion is expected once the reserve is reached.
			rs.Alloc(64)
		}
	})
}

// BenchmarkRegionSpace_AllocTLAB measures thread-local allocation.
func BenchmarkRegionSpace_AllocTLAB(b *testing.B) {
	rs := newTestSpace(b, 64)
	th := NewThread("bench")

	b.ResetTimer()
	b.ReportAllocs()

	for range b.N {
		if !rs.AllocTLAB(th, 64).OK() {
			b.StopTimer()
			rs.Clear()
			b.StartTimer()
		}
	}
}

// BenchmarkCollectionCycle measures SetFromSpace and ClearFromSpace over a
// space whose newly allocated regions are all reclaimed.
func BenchmarkCollectionCycle(b *testing.B) {
	rs := newTestSpace(b, 64)

	b.ResetTimer()
	b.ReportAllocs()

	for range b.N {
		b.StopTimer()
		for rs.Alloc(4096).OK() {
		}
		b.StartTimer()
		rs.SetFromSpace(nil, EvacModeNewlyAllocated, false)
		rs.ClearFromSpace(true)
	}
}

// benchRegion hands out one mutator region outside the cursor.
func benchRegion(b *testing.B, rs *RegionSpace) *Region {
	b.Helper()
	rs.mu.Lock()
	defer rs.mu.Unlock()
	r := rs.allocateRegion(Mutator)
	if r == nil {
		b.Fatal("no free region")
	}
	return r
}
