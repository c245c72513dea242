package arrowconv

import (
	"bytes"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/strata/pkg/column"
	"github.com/ajitpratap0/strata/pkg/compression"
	"github.com/ajitpratap0/strata/pkg/rgfile"
	"github.com/ajitpratap0/strata/pkg/rowgroup"
)

func table(t *testing.T, from, n int) *rowgroup.RowGroup {
	t.Helper()
	b := column.New(column.Bit, column.Identity)
	i32 := column.New(column.I32, column.Identity)
	i64 := column.New(column.I64, column.Identity)
	flt := column.New(column.Flt, column.Identity)
	dbl := column.New(column.Dbl, column.Identity)
	str := column.New(column.Str, column.Identity)
	nulls := column.New(column.Bit, column.Identity)
	for i := from; i < from+n; i++ {
		require.NoError(t, b.PutBit(i%2 == 0))
		require.NoError(t, i32.PutI32(int32(i)))
		require.NoError(t, i64.PutI64(int64(-i)))
		require.NoError(t, flt.PutFlt(float32(i)+0.5))
		require.NoError(t, dbl.PutDbl(float64(i)/4))
		require.NoError(t, str.PutStr(fmt.Sprintf("row-%d", i)))
		require.NoError(t, nulls.PutBit(i%5 == 0))
	}
	rg := rowgroup.New()
	require.NoError(t, rg.AddColumn(b, nil))
	require.NoError(t, rg.AddColumn(i32, nil))
	require.NoError(t, rg.AddColumn(i64, nil))
	require.NoError(t, rg.AddColumn(flt, nil))
	require.NoError(t, rg.AddColumn(dbl, nil))
	require.NoError(t, rg.AddColumn(str, nulls))
	return rg
}

func TestRecord(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	rg := table(t, 0, 130)
	defer rg.Close()
	rec, err := Record(mem, rg, nil)
	require.NoError(t, err)
	defer rec.Release()

	require.Equal(t, int64(130), rec.NumRows())
	require.Equal(t, int64(6), rec.NumCols())
	assert.Equal(t, "c5", rec.ColumnName(5))
	assert.Equal(t, arrow.PrimitiveTypes.Int32, rec.Schema().Field(1).Type)

	bits := rec.Column(0).(*array.Boolean)
	i32 := rec.Column(1).(*array.Int32)
	i64 := rec.Column(2).(*array.Int64)
	flt := rec.Column(3).(*array.Float32)
	dbl := rec.Column(4).(*array.Float64)
	str := rec.Column(5).(*array.String)
	for i := 0; i < 130; i++ {
		assert.Equal(t, i%2 == 0, bits.Value(i))
		assert.Equal(t, int32(i), i32.Value(i))
		assert.Equal(t, int64(-i), i64.Value(i))
		assert.Equal(t, float32(i)+0.5, flt.Value(i))
		assert.Equal(t, float64(i)/4, dbl.Value(i))
		if i%5 == 0 {
			assert.True(t, str.IsNull(i))
		} else {
			assert.Equal(t, fmt.Sprintf("row-%d", i), str.Value(i))
		}
		assert.False(t, i32.IsNull(i))
	}
	assert.Equal(t, 26, str.NullN())
}

func TestSchemaNames(t *testing.T) {
	s, err := Schema([]column.Type{column.I64, column.Str}, []string{"id", "name"})
	require.NoError(t, err)
	assert.Equal(t, "id", s.Field(0).Name)
	assert.True(t, s.Field(1).Nullable)

	_, err = Schema([]column.Type{column.I64}, []string{"a", "b"})
	assert.Error(t, err)
	_, err = DataType(column.Type(42))
	assert.Error(t, err)
}

func TestWriteIPC(t *testing.T) {
	path := filepath.Join(t.TempDir(), "table.rgf")
	w, err := rgfile.Create(path)
	require.NoError(t, err)
	for _, typ := range []column.Type{column.Bit, column.I32, column.I64, column.Flt, column.Dbl, column.Str} {
		require.NoError(t, w.AddColumn(typ, column.Identity, compression.Zstd, 0))
	}
	for _, n := range []int{70, 30} {
		rg := table(t, int(w.RowCount()), n)
		require.NoError(t, w.AddRowGroup(rg))
		require.NoError(t, rg.Close())
	}
	require.NoError(t, w.Close())

	file, err := rgfile.Open(path)
	require.NoError(t, err)
	defer file.Close()

	var buf bytes.Buffer
	rows, err := WriteIPC(&buf, file, []string{"b", "i32", "i64", "flt", "dbl", "str"})
	require.NoError(t, err)
	assert.Equal(t, int64(100), rows)

	fr, err := ipc.NewFileReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer fr.Close()
	require.Equal(t, 2, fr.NumRecords())
	assert.Equal(t, "i64", fr.Schema().Field(2).Name)

	rec, err := fr.Record(1)
	require.NoError(t, err)
	assert.Equal(t, int64(30), rec.NumRows())
	assert.Equal(t, int32(70), rec.Column(1).(*array.Int32).Value(0))
	assert.Equal(t, "row-71", rec.Column(5).(*array.String).Value(1))
	assert.True(t, rec.Column(5).IsNull(5))
}
