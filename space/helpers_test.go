package space

import (
	"testing"

	"github.com/joshuapare/regionspace/internal/units"
	"github.com/joshuapare/regionspace/space/objmodel"
	"github.com/stretchr/testify/require"
)

// testClass is the class id installed by writeObject.
const testClass = 7

// newTestSpace creates a space of numRegions regions that is closed when the
// test ends. Options are applied on top of DefaultOptions.
func newTestSpace(t testing.TB, numRegions int, opts ...func(*Options)) *RegionSpace {
	t.Helper()
	o := DefaultOptions()
	o.Capacity = uintptr(numRegions) * RegionSize
	for _, fn := range opts {
		fn(o)
	}
	rs, err := New("test", o)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rs.Close() })
	return rs
}

// writeObject installs an object header for size bytes at obj.
func writeObject(t testing.TB, rs *RegionSpace, obj Ref, size uintptr) {
	t.Helper()
	require.NoError(t, objmodel.Write(rs.Bytes(obj, size), testClass, uint32(size)))
}

// allocObject allocates and initializes a mutator object of size bytes.
func allocObject(t testing.TB, rs *RegionSpace, size uintptr) Ref {
	t.Helper()
	res := rs.Alloc(size)
	require.True(t, res.OK(), "Alloc(%d) should succeed", size)
	writeObject(t, rs, res.Obj, res.BytesAllocated)
	return res.Obj
}

// markLive marks obj in the space's bitmap and counts its bytes as live.
// The region's live bytes must be known, as they are for unevac regions
// after SetFromSpace.
func markLive(rs *RegionSpace, obj Ref) {
	size := rs.Objects().SizeOf(rs.header(obj))
	mark(rs, obj)
	rs.AddLiveBytes(obj, units.RoundUp(size, Alignment))
}

// mark sets obj's mark bit without touching live bytes.
func mark(rs *RegionSpace, obj Ref) {
	rs.MarkBitmap().Set(uintptr(obj))
}
