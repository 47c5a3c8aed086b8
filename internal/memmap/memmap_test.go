package memmap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMapping(t *testing.T, size int) *Mapping {
	t.Helper()
	m, err := Map(size)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, m.Close()) })
	return m
}

func TestMap_ZeroFilledAndWritable(t *testing.T) {
	m := newTestMapping(t, 1<<20)

	require.Equal(t, 1<<20, m.Len())
	require.NotZero(t, m.Addr())
	data := m.Bytes()
	for i := 0; i < len(data); i += 4096 {
		require.Zero(t, data[i], "byte %d should start zeroed", i)
	}

	data[0] = 0xAA
	data[len(data)-1] = 0xBB
	assert.Equal(t, byte(0xAA), m.Bytes()[0])
	assert.Equal(t, byte(0xBB), m.Bytes()[len(data)-1])
}

func TestMap_RoundsUpToPage(t *testing.T) {
	m := newTestMapping(t, 100)
	assert.Equal(t, int(m.PageSize()), m.Len())
}

func TestMap_InvalidSize(t *testing.T) {
	_, err := Map(0)
	require.Error(t, err)
}

func TestRelease_ZeroesRange(t *testing.T) {
	m := newTestMapping(t, 64<<10)
	data := m.Bytes()
	for i := range data {
		data[i] = 0x5A
	}

	// Unaligned on both ends so partial pages are cleared by hand.
	off, length := uintptr(100), uintptr(3*m.PageSize())
	require.NoError(t, m.Release(off, length))

	for i := range data {
		if uintptr(i) >= off && uintptr(i) < off+length {
			require.Zero(t, data[i], "byte %d should be released", i)
		} else {
			require.Equal(t, byte(0x5A), data[i], "byte %d outside range must survive", i)
		}
	}
}

func TestRelease_OutOfBounds(t *testing.T) {
	m := newTestMapping(t, 4096)
	require.Error(t, m.Release(0, uintptr(m.Len())+1))
}

func TestClose_Twice(t *testing.T) {
	m, err := Map(4096)
	require.NoError(t, err)
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
	require.ErrorIs(t, m.Release(0, 1), ErrClosed)
}

func TestProtect_RoundTrip(t *testing.T) {
	m := newTestMapping(t, 64<<10)
	require.NoError(t, m.Protect(0, uintptr(m.Len()), None))
	require.NoError(t, m.Protect(0, uintptr(m.Len()), ReadWrite))
	m.Bytes()[0] = 1
	assert.Equal(t, byte(1), m.Bytes()[0])
}

func TestReleaseList_ExtendsContiguous(t *testing.T) {
	l := NewReleaseList()
	l.Add(0, 4096)
	l.Add(4096, 4096)
	l.Add(16384, 4096)

	assert.Equal(t, 2, l.Len())
	assert.Equal(t, []Range{{Off: 0, Len: 8192}, {Off: 16384, Len: 4096}}, l.Ranges())
}

func TestReleaseList_CoalescesOutOfOrder(t *testing.T) {
	l := NewReleaseList()
	l.Add(8192, 4096)
	l.Add(0, 4096)
	l.Add(4096, 4096)
	l.Add(8192, 100) // overlap

	assert.Equal(t, []Range{{Off: 0, Len: 12288}}, l.Ranges())
}

func TestReleaseList_IgnoresEmpty(t *testing.T) {
	l := NewReleaseList()
	l.Add(0, 0)
	assert.Zero(t, l.Len())
	assert.Nil(t, l.Ranges())
}

func TestReleaseList_Release(t *testing.T) {
	m := newTestMapping(t, 64<<10)
	data := m.Bytes()
	for i := range data {
		data[i] = 0xFF
	}

	l := NewReleaseList()
	l.Add(0, 8192)
	l.Add(32768, 8192)
	require.NoError(t, l.Release(context.Background(), m))

	assert.Zero(t, data[0])
	assert.Zero(t, data[8191])
	assert.Equal(t, byte(0xFF), data[8192])
	assert.Zero(t, data[32768])
	assert.Zero(t, l.Len(), "release should reset the list")
}

func TestReleaseList_ReleaseCancelled(t *testing.T) {
	m := newTestMapping(t, 8192)
	l := NewReleaseList()
	l.Add(0, 4096)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, l.Release(ctx, m), context.Canceled)
	assert.Equal(t, 1, l.Len(), "cancelled release keeps pending ranges")
}
