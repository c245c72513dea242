package rowgroup

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/strata/pkg/column"
	"github.com/ajitpratap0/strata/pkg/compression"
)

func fixture(t *testing.T, rows int) *RowGroup {
	t.Helper()
	rg := New()
	require.NoError(t, rg.AddColumn(i32Column(t, rows, func(i int) int32 { return int32(i) }), nil))
	require.NoError(t, rg.AddColumn(strColumn(t, rows), bitColumn(t, rows, func(i int) bool { return i%7 == 0 })))
	return rg
}

func TestCursorWindows(t *testing.T) {
	rg := fixture(t, 150)
	cur := rg.Cursor()

	var counts []int
	row := 0
	for cur.Next() {
		counts = append(counts, cur.BatchCount())
		assert.Equal(t, uint64(row), cur.Offset())

		ints, err := cur.BatchI32(0)
		require.NoError(t, err)
		strs, err := cur.BatchStr(1)
		require.NoError(t, err)
		nulls, err := cur.BatchNulls(1)
		require.NoError(t, err)
		require.Len(t, ints, cur.BatchCount())
		for k := range ints {
			assert.Equal(t, int32(row+k), ints[k])
			assert.Equal(t, fmt.Sprintf("cx %d", row+k), strs[k])
			assert.Equal(t, (row+k)%7 == 0, nulls[k])
		}
		row += cur.BatchCount()
	}
	assert.Equal(t, []int{64, 64, 22}, counts)
	assert.Equal(t, 0, cur.BatchCount())
	assert.False(t, cur.Next())

	_, err := cur.BatchI32(0)
	assert.ErrorIs(t, err, ErrNoBatch)
}

func TestCursorSparseAccess(t *testing.T) {
	rg := fixture(t, 300)
	cur := rg.Cursor()

	batch := 0
	for cur.Next() {
		// the string column is only read on every third window
		if batch%3 == 2 {
			strs, err := cur.BatchStr(1)
			require.NoError(t, err)
			assert.Equal(t, fmt.Sprintf("cx %d", cur.Offset()), strs[0])
		}
		batch++
	}
	assert.Equal(t, 5, batch)
}

func TestCursorCachesAndRewinds(t *testing.T) {
	rg := fixture(t, 200)
	cur := rg.Cursor()
	require.True(t, cur.Next())
	require.True(t, cur.Next())

	a, err := cur.BatchI32(0)
	require.NoError(t, err)
	b, err := cur.BatchI32(0)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, int32(64), b[0])

	cur.Rewind()
	require.True(t, cur.Next())
	first, err := cur.BatchI32(0)
	require.NoError(t, err)
	assert.Equal(t, int32(0), first[0])

	require.True(t, cur.Seek(130))
	assert.Equal(t, uint64(128), cur.Offset())
	v, err := cur.Value(1, 2)
	require.NoError(t, err)
	assert.Equal(t, column.StrValue("cx 130"), v)
	assert.False(t, cur.Seek(200))
}

func TestCursorLazyCompressed(t *testing.T) {
	src := &memSource{}
	rg := New()
	values := i32Column(t, 130, func(i int) int32 { return int32(i * 3) })
	nulls := bitColumn(t, 130, func(int) bool { return false })
	vd, nd := lazyFrom(t, src, compression.LZ4, values, nulls)
	require.NoError(t, rg.AddLazyColumn(vd, nd))

	cur := rg.Cursor()
	require.True(t, cur.Next())
	require.True(t, cur.Next())
	require.True(t, cur.Next())
	ints, err := cur.BatchI32(0)
	require.NoError(t, err)
	assert.Equal(t, []int32{384, 387}, ints)
}

func TestCursorErrors(t *testing.T) {
	rg := fixture(t, 10)
	cur := rg.Cursor()
	require.True(t, cur.Next())

	_, err := cur.BatchI64(0)
	assert.ErrorIs(t, err, column.ErrTypeMismatch)
	_, err = cur.BatchI32(5)
	assert.ErrorIs(t, err, ErrColumnRange)
	_, err = cur.BatchI32(-1)
	assert.ErrorIs(t, err, ErrColumnRange)
	_, err = cur.Value(0, 10)
	assert.Error(t, err)
}

func TestEmptyRowGroup(t *testing.T) {
	assert.False(t, New().Cursor().Next())

	rg := New()
	require.NoError(t, rg.AddColumn(column.New(column.I64, column.Identity), nil))
	cur := rg.Cursor()
	assert.False(t, cur.Next())
	assert.Equal(t, 0, cur.BatchCount())
}
