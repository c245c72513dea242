package column

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/strata/pkg/errors"
)

type countingReleaser struct{ n int }

func (r *countingReleaser) Release() error {
	r.n++
	return nil
}

func TestColumnPutUpdatesIndex(t *testing.T) {
	t.Run("i32", func(t *testing.T) {
		c := New(I32, Identity)
		for _, v := range []int32{5, -3, 12, 0} {
			require.NoError(t, c.PutI32(v))
		}
		ix := c.Index()
		assert.Equal(t, uint64(4), ix.Count)
		assert.Equal(t, int32(-3), ix.Min.I32())
		assert.Equal(t, int32(12), ix.Max.I32())
		assert.Len(t, c.Export(), 16)
	})

	t.Run("bit", func(t *testing.T) {
		c := New(Bit, Identity)
		require.NoError(t, c.PutBit(true))
		require.NoError(t, c.PutBit(true))
		ix := c.Index()
		assert.True(t, ix.Min.Bool())
		assert.True(t, ix.Max.Bool())

		require.NoError(t, c.PutBit(false))
		ix = c.Index()
		assert.False(t, ix.Min.Bool())
		assert.True(t, ix.Max.Bool())
	})

	t.Run("bit words", func(t *testing.T) {
		c := New(Bit, Identity)
		for i := 0; i < 65; i++ {
			require.NoError(t, c.PutBit(i == 64))
		}
		assert.Len(t, c.Export(), 16)
		assert.Equal(t, byte(1), c.Export()[8])
	})

	t.Run("str lengths", func(t *testing.T) {
		c := New(Str, Identity)
		for _, v := range []string{"abc", "", "hello world"} {
			require.NoError(t, c.PutStr(v))
		}
		ix := c.Index()
		assert.Equal(t, I64, ix.Min.Type())
		assert.Equal(t, int64(0), ix.Min.I64())
		assert.Equal(t, int64(11), ix.Max.I64())
	})

	t.Run("nan widens", func(t *testing.T) {
		c := New(Dbl, Identity)
		require.NoError(t, c.PutDbl(1.5))
		require.NoError(t, c.PutDbl(math.NaN()))
		require.NoError(t, c.PutDbl(2.5))
		ix := c.Index()
		assert.True(t, math.IsInf(ix.Min.Dbl(), -1))
		assert.True(t, math.IsInf(ix.Max.Dbl(), 1))
	})
}

func TestColumnPutRejects(t *testing.T) {
	c := New(I64, Identity)
	err := c.PutI32(1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTypeMismatch)
	assert.True(t, errors.IsType(err, errors.ErrorTypeSchema))

	src := New(I64, Identity)
	require.NoError(t, src.PutI64(7))
	rel := &countingReleaser{}
	wrapped, err := Wrap(I64, Identity, src.Export(), src.Index(), rel)
	require.NoError(t, err)
	assert.True(t, wrapped.Immutable())
	assert.ErrorIs(t, wrapped.PutI64(8), ErrImmutable)

	require.NoError(t, wrapped.Close())
	require.NoError(t, wrapped.Close())
	assert.Equal(t, 1, rel.n)
	assert.ErrorIs(t, wrapped.PutI64(8), ErrClosed)
}

func TestColumnImportAndOwned(t *testing.T) {
	src := New(I32, Identity)
	for i := int32(0); i < 100; i++ {
		require.NoError(t, src.PutI32(i*2))
	}

	imported, err := Import(I32, Identity, src.Export(), 100)
	require.NoError(t, err)
	assert.True(t, imported.Immutable())
	assert.Equal(t, src.Index(), imported.Index())
	assert.ErrorIs(t, imported.PutI32(1), ErrImmutable)

	buf := append([]byte(nil), src.Export()...)
	owned, err := NewOwned(I32, Identity, buf, src.Index())
	require.NoError(t, err)
	assert.False(t, owned.Immutable())
	require.NoError(t, owned.PutI32(-1))
	assert.Equal(t, uint64(101), owned.Len())
	assert.Equal(t, int32(-1), owned.Index().Min.I32())
}

func TestColumnImportStr(t *testing.T) {
	src := New(Str, Identity)
	for _, v := range []string{"a", "bbbb", "cc"} {
		require.NoError(t, src.PutStr(v))
	}
	imported, err := Import(Str, Identity, src.Export(), 3)
	require.NoError(t, err)
	assert.Equal(t, int64(1), imported.Index().Min.I64())
	assert.Equal(t, int64(4), imported.Index().Max.I64())

	_, err = Import(Str, Identity, src.Export()[:9], 3)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestColumnShortBuffer(t *testing.T) {
	_, err := Wrap(I64, Identity, make([]byte, 8), Index{Count: 2}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeCorrupt))
}

func TestColumnCountOverflow(t *testing.T) {
	// Counts whose byte size wraps 64 bits must not pass the length check.
	tests := []struct {
		typ   Type
		count uint64
	}{
		{I32, 1<<62 + 1},
		{I64, 1<<61 + 1},
		{Dbl, math.MaxUint64},
		{Str, 1<<62 + 1},
		{Bit, math.MaxUint64},
		{Bit, math.MaxUint64 - 62},
	}
	for _, tt := range tests {
		t.Run(tt.typ.String(), func(t *testing.T) {
			_, err := Wrap(tt.typ, Identity, make([]byte, 400), Index{Count: tt.count}, nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrCorrupt)

			_, err = NewOwned(tt.typ, Identity, make([]byte, 400), Index{Count: tt.count})
			assert.ErrorIs(t, err, ErrCorrupt)
		})
	}
}

func TestPayloadBounds(t *testing.T) {
	str := New(Str, Identity)
	for _, v := range []string{"a", "bbbb", "cc"} {
		require.NoError(t, str.PutStr(v))
	}
	lo, hi, ok := PayloadBounds(Str, str.Index())
	require.True(t, ok)
	assert.Equal(t, uint64(3*5), lo)
	assert.Equal(t, uint64(3*8), hi)
	assert.NoError(t, CheckPayload(Str, str.Index(), uint64(len(str.Export()))))

	lo, hi, ok = PayloadBounds(Bit, Index{Count: 65})
	require.True(t, ok)
	assert.Equal(t, uint64(16), lo)
	assert.Equal(t, uint64(16), hi)

	_, _, ok = PayloadBounds(I32, Index{Count: 1<<62 + 1})
	assert.False(t, ok)
	_, _, ok = PayloadBounds(Str, Index{Count: 1, Min: I64Value(5), Max: I64Value(2)})
	assert.False(t, ok)

	err := CheckPayload(I64, Index{Count: 3}, 25)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeCorrupt))
	assert.NoError(t, CheckPayload(I64, Index{Count: 3}, 24))
}

func TestColumnPayloadTrimsImportedTail(t *testing.T) {
	src := New(Str, Identity)
	require.NoError(t, src.PutStr("ab"))
	require.NoError(t, src.PutStr("cde"))
	buf := append(append([]byte(nil), src.Export()...), 0xee, 0xee)

	imported, err := Import(Str, Identity, buf, 2)
	require.NoError(t, err)
	assert.Equal(t, src.Export(), imported.Payload())

	wide, err := Import(I32, Identity, make([]byte, 20), 3)
	require.NoError(t, err)
	assert.Len(t, wide.Payload(), 12)
}

func TestColumnPutValue(t *testing.T) {
	tests := []struct {
		typ Type
		v   Value
	}{
		{Bit, BoolValue(true)},
		{I32, I32Value(-4)},
		{I64, I64Value(1 << 40)},
		{Flt, FltValue(1.25)},
		{Dbl, DblValue(-2.5)},
		{Str, StrValue("x")},
	}
	for _, tt := range tests {
		t.Run(tt.typ.String(), func(t *testing.T) {
			c := New(tt.typ, Identity)
			require.NoError(t, c.Put(tt.v))
			assert.Equal(t, uint64(1), c.Len())
			if tt.typ != Str {
				assert.Equal(t, tt.v, c.Index().Min)
				assert.Equal(t, tt.v, c.Index().Max)
			}
		})
	}
}

func TestIndexBinary(t *testing.T) {
	c := New(Flt, Identity)
	require.NoError(t, c.PutFlt(-1.5))
	require.NoError(t, c.PutFlt(3.25))

	buf := c.Index().AppendBinary(nil)
	require.Len(t, buf, IndexSize)
	ix, err := DecodeIndex(Flt, buf)
	require.NoError(t, err)
	assert.Equal(t, c.Index(), ix)

	_, err = DecodeIndex(Flt, buf[:10])
	assert.Error(t, err)
}

func TestParseType(t *testing.T) {
	for _, name := range []string{"bit", "I32", "int64", "float", "dbl", "string"} {
		typ, err := ParseType(name)
		require.NoError(t, err, name)
		assert.True(t, typ.Valid())
	}
	_, err := ParseType("decimal")
	assert.Error(t, err)
}

func TestParseValue(t *testing.T) {
	v, err := ParseValue(I32, "-12")
	require.NoError(t, err)
	assert.Equal(t, I32Value(-12), v)

	v, err = ParseValue(Bit, "true")
	require.NoError(t, err)
	assert.True(t, v.Bool())

	_, err = ParseValue(I32, "3000000000")
	assert.Error(t, err)
}
