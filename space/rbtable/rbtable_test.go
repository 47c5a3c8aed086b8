package rbtable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testBegin   = uintptr(0x40000000)
	testGranule = uintptr(256 << 10)
)

func newTestTable(t *testing.T, n uintptr) *Table {
	t.Helper()
	tbl, err := New(testBegin, n*testGranule, testGranule)
	require.NoError(t, err)
	return tbl
}

func TestNew_Validation(t *testing.T) {
	_, err := New(testBegin, testGranule, 3)
	require.Error(t, err)
	_, err = New(testBegin+1, testGranule, testGranule)
	require.Error(t, err)
}

func TestSetRange_GranuleCoverage(t *testing.T) {
	tbl := newTestTable(t, 8)

	tbl.SetRange(testBegin+testGranule, testBegin+3*testGranule)

	assert.False(t, tbl.IsSet(testBegin))
	assert.True(t, tbl.IsSet(testBegin+testGranule))
	assert.True(t, tbl.IsSet(testBegin+3*testGranule-1))
	assert.False(t, tbl.IsSet(testBegin+3*testGranule))
	assert.Equal(t, 2, tbl.NumSet())
}

func TestSetRange_PartialGranuleMarksWhole(t *testing.T) {
	tbl := newTestTable(t, 4)
	tbl.SetRange(testBegin+10, testBegin+20)
	assert.True(t, tbl.IsSet(testBegin+testGranule-8))
	assert.Equal(t, 1, tbl.NumSet())
}

func TestClearRangeAndAll(t *testing.T) {
	tbl := newTestTable(t, 4)
	tbl.SetAll()
	assert.Equal(t, 4, tbl.NumSet())

	tbl.ClearRange(testBegin, testBegin+testGranule)
	assert.Equal(t, 3, tbl.NumSet())
	assert.False(t, tbl.IsSet(testBegin))

	tbl.ClearAll()
	assert.Zero(t, tbl.NumSet())
}

func TestOutOfRange(t *testing.T) {
	tbl := newTestTable(t, 2)
	tbl.SetRange(0, testBegin-1)
	tbl.SetRange(testBegin+2*testGranule, testBegin+4*testGranule)
	assert.Zero(t, tbl.NumSet())
	assert.False(t, tbl.IsSet(testBegin-1))
	assert.False(t, tbl.IsSet(testBegin+2*testGranule))
}
