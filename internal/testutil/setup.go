package testutil

import (
	"testing"

	"github.com/joshuapare/regionspace/internal/units"
	"github.com/joshuapare/regionspace/space"
	"github.com/joshuapare/regionspace/space/objmodel"
)

// ClassID is the class id written by WriteObject.
const ClassID = 7

// NewSpace creates a region space with numRegions regions and closes it when
// the test ends. Each fn is applied to a copy of space.DefaultOptions.
//
// Example:
//
//	rs := testutil.NewSpace(t, 16, func(o *space.Options) { o.CyclicAllocation = true })
func NewSpace(t testing.TB, numRegions int, fns ...func(*space.Options)) *space.RegionSpace {
	t.Helper()
	opts := space.DefaultOptions()
	opts.Capacity = uintptr(numRegions) * space.RegionSize
	for _, fn := range fns {
		fn(opts)
	}
	rs, err := space.New("testutil", opts)
	if err != nil {
		t.Fatalf("Failed to create region space: %v", err)
	}
	t.Cleanup(func() {
		if err := rs.Close(); err != nil {
			t.Errorf("Failed to close region space: %v", err)
		}
	})
	return rs
}

// WriteObject installs an object header for size bytes at obj.
func WriteObject(t testing.TB, rs *space.RegionSpace, obj space.Ref, size uintptr) {
	t.Helper()
	if err := objmodel.Write(rs.Bytes(obj, size), ClassID, uint32(size)); err != nil {
		t.Fatalf("Failed to write object at %#x: %v", uintptr(obj), err)
	}
}

// AllocObject allocates a mutator object of size bytes and writes its header.
func AllocObject(t testing.TB, rs *space.RegionSpace, size uintptr) space.Ref {
	t.Helper()
	res := rs.Alloc(size)
	if !res.OK() {
		t.Fatalf("Alloc(%d) failed", size)
	}
	WriteObject(t, rs, res.Obj, res.BytesAllocated)
	return res.Obj
}

// Mark sets obj's mark bit and, when the region's live bytes are known,
// counts the object as live.
func Mark(rs *space.RegionSpace, obj space.Ref) {
	rs.MarkBitmap().Set(uintptr(obj))
	r := rs.RefToRegion(obj)
	if r == nil || r.LiveBytes() == space.LiveBytesUnknown {
		return
	}
	size := rs.Objects().SizeOf(rs.Bytes(obj, objmodel.HeaderSize))
	rs.AddLiveBytes(obj, units.RoundUp(size, space.Alignment))
}
