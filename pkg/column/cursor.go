package column

import (
	"encoding/binary"
	"math"

	"github.com/ajitpratap0/strata/pkg/errors"
	"github.com/ajitpratap0/strata/pkg/strings"
)

// Cursor iterates over a column's encoded values in batches of up to
// BatchSize. The row count is fixed when the cursor is created; values
// appended afterwards are not visited.
//
// Batch slices are reused between calls and are only valid until the next
// call on the same cursor. Strings returned by NextBatchStr are views into the
// column buffer and stay valid while the column is open.
type Cursor struct {
	col   *Column
	data  []byte
	typ   Type
	count uint64
	row   uint64
	off   int
	err   error

	bits []bool
	i32  []int32
	i64  []int64
	flt  []float32
	dbl  []float64
	str  []string
}

// NewCursor returns a cursor positioned at the first value of col.
func NewCursor(col *Column) *Cursor {
	return newCursor(col, col.index.Count)
}

func newCursor(col *Column, count uint64) *Cursor {
	return &Cursor{
		col:   col,
		data:  col.data,
		typ:   col.typ,
		count: count,
	}
}

// Rewind moves the cursor back to the first value and clears any error.
func (c *Cursor) Rewind() {
	c.row = 0
	c.off = 0
	c.err = nil
}

// Valid reports whether values remain and no error occurred.
func (c *Cursor) Valid() bool {
	return c.err == nil && c.row < c.count
}

// Position returns the number of values consumed.
func (c *Cursor) Position() uint64 {
	return c.row
}

// Remaining returns the number of values not yet consumed.
func (c *Cursor) Remaining() uint64 {
	return c.count - c.row
}

// Err returns the error that stopped the cursor, if any.
func (c *Cursor) Err() error {
	return c.err
}

// Skip advances past up to n values and returns the number skipped, which is
// less than n at the end of the data or when a corrupt string is found.
func (c *Cursor) Skip(n uint64) uint64 {
	if c.err != nil {
		return 0
	}
	if rem := c.count - c.row; n > rem {
		n = rem
	}
	switch c.typ {
	case Bit:
		c.row += n
	case Str:
		for i := uint64(0); i < n; i++ {
			if _, ok := c.nextStr(); !ok {
				return i
			}
		}
	default:
		c.row += n
		c.off += int(n) * c.typ.Width()
	}
	return n
}

func (c *Cursor) take() int {
	n := c.count - c.row
	if n > BatchSize {
		n = BatchSize
	}
	return int(n)
}

func (c *Cursor) check(t Type) error {
	if c.err != nil {
		return c.err
	}
	if c.typ != t {
		return errors.Wrap(ErrTypeMismatch, errors.ErrorTypeSchema, "read "+t.String()+" batch from "+c.typ.String()+" column")
	}
	return nil
}

// NextBatchBit decodes the next batch of a Bit column.
func (c *Cursor) NextBatchBit() ([]bool, error) {
	if err := c.check(Bit); err != nil {
		return nil, err
	}
	n := c.take()
	if c.bits == nil {
		c.bits = make([]bool, BatchSize)
	}
	out := c.bits[:n]
	for i := range out {
		r := c.row + uint64(i)
		word := binary.LittleEndian.Uint64(c.data[(r/64)*8:])
		out[i] = word&(1<<(r%64)) != 0
	}
	c.row += uint64(n)
	return out, nil
}

// NextBatchI32 decodes the next batch of an I32 column.
func (c *Cursor) NextBatchI32() ([]int32, error) {
	if err := c.check(I32); err != nil {
		return nil, err
	}
	n := c.take()
	if c.i32 == nil {
		c.i32 = make([]int32, BatchSize)
	}
	out := c.i32[:n]
	for i := range out {
		out[i] = int32(binary.LittleEndian.Uint32(c.data[c.off:]))
		c.off += 4
	}
	c.row += uint64(n)
	return out, nil
}

// NextBatchI64 decodes the next batch of an I64 column.
func (c *Cursor) NextBatchI64() ([]int64, error) {
	if err := c.check(I64); err != nil {
		return nil, err
	}
	n := c.take()
	if c.i64 == nil {
		c.i64 = make([]int64, BatchSize)
	}
	out := c.i64[:n]
	for i := range out {
		out[i] = int64(binary.LittleEndian.Uint64(c.data[c.off:]))
		c.off += 8
	}
	c.row += uint64(n)
	return out, nil
}

// NextBatchFlt decodes the next batch of a Flt column.
func (c *Cursor) NextBatchFlt() ([]float32, error) {
	if err := c.check(Flt); err != nil {
		return nil, err
	}
	n := c.take()
	if c.flt == nil {
		c.flt = make([]float32, BatchSize)
	}
	out := c.flt[:n]
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(c.data[c.off:]))
		c.off += 4
	}
	c.row += uint64(n)
	return out, nil
}

// NextBatchDbl decodes the next batch of a Dbl column.
func (c *Cursor) NextBatchDbl() ([]float64, error) {
	if err := c.check(Dbl); err != nil {
		return nil, err
	}
	n := c.take()
	if c.dbl == nil {
		c.dbl = make([]float64, BatchSize)
	}
	out := c.dbl[:n]
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(c.data[c.off:]))
		c.off += 8
	}
	c.row += uint64(n)
	return out, nil
}

// NextBatchStr decodes the next batch of a Str column.
func (c *Cursor) NextBatchStr() ([]string, error) {
	if err := c.check(Str); err != nil {
		return nil, err
	}
	n := c.take()
	if c.str == nil {
		c.str = make([]string, BatchSize)
	}
	out := c.str[:n]
	for i := range out {
		s, ok := c.nextStr()
		if !ok {
			return nil, c.err
		}
		out[i] = s
	}
	return out, nil
}

// nextStr decodes one length-prefixed string and advances the cursor.
func (c *Cursor) nextStr() (string, bool) {
	if len(c.data)-c.off < 4 {
		c.fail("truncated string length")
		return "", false
	}
	size := int(binary.LittleEndian.Uint32(c.data[c.off:]))
	start := c.off + 4
	if size > len(c.data)-start {
		c.fail("string length past end of column")
		return "", false
	}
	c.off = start + size
	c.row++
	return strings.BytesToString(c.data[start:c.off]), true
}

func (c *Cursor) fail(msg string) {
	c.err = errors.Wrap(ErrCorrupt, errors.ErrorTypeCorrupt, msg).
		WithDetail("row", c.row).
		WithDetail("offset", c.off)
}
