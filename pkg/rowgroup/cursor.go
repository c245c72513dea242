package rowgroup

import (
	"github.com/ajitpratap0/strata/pkg/column"
	"github.com/ajitpratap0/strata/pkg/errors"
)

// ErrNoBatch is returned by batch accessors when the cursor is not positioned
// on a batch.
var ErrNoBatch = errors.New(errors.ErrorTypeState, "cursor has no current batch")

// Cursor walks a row group in windows of column.BatchSize rows shared by all
// columns. Each column gets its own column cursor on first access, which is
// skipped forward to the shared window, so columns that are read only on some
// batches cost nothing on the others. Requesting an earlier window than a
// column has already passed rewinds that column.
type Cursor struct {
	rg      *RowGroup
	offset  uint64
	count   int
	started bool
	values  []columnCursor
	nulls   []columnCursor
}

type columnCursor struct {
	cur    *column.Cursor
	col    *column.Column
	cached bool
	at     uint64

	bits []bool
	i32  []int32
	i64  []int64
	flt  []float32
	dbl  []float64
	str  []string
}

// Cursor returns a cursor positioned before the first batch.
func (rg *RowGroup) Cursor() *Cursor {
	return &Cursor{rg: rg}
}

// RowGroup returns the row group the cursor reads.
func (c *Cursor) RowGroup() *RowGroup { return c.rg }

// Next advances to the next window and reports whether it holds any rows.
func (c *Cursor) Next() bool {
	rows := c.rg.RowCount()
	if !c.started {
		c.started = true
		c.offset = 0
	} else if c.offset < rows {
		c.offset += column.BatchSize
	}
	if c.offset >= rows {
		c.offset = rows
		c.count = 0
		return false
	}
	c.count = column.BatchSize
	if rem := rows - c.offset; rem < column.BatchSize {
		c.count = int(rem)
	}
	return true
}

// BatchCount returns the number of rows in the current window, which is
// column.BatchSize except for the last window and 0 when exhausted.
func (c *Cursor) BatchCount() int { return c.count }

// Offset returns the row index of the first row in the current window.
func (c *Cursor) Offset() uint64 { return c.offset }

// Rewind positions the cursor before the first batch. Column cursors are
// rewound lazily when next accessed.
func (c *Cursor) Rewind() {
	c.started = false
	c.offset = 0
	c.count = 0
}

// Seek positions the cursor on the window containing row. It returns false
// if row is past the end.
func (c *Cursor) Seek(row uint64) bool {
	c.started = true
	c.offset = row - row%column.BatchSize
	c.count = 0
	rows := c.rg.RowCount()
	if c.offset >= rows {
		c.offset = rows
		return false
	}
	c.count = column.BatchSize
	if rem := rows - c.offset; rem < column.BatchSize {
		c.count = int(rem)
	}
	return true
}

// prepare returns the column cursor for column i positioned at the current
// window. The bool result is true when the window's batch is already cached.
func (c *Cursor) prepare(i int, nulls bool) (*columnCursor, bool, error) {
	if c.count == 0 {
		return nil, false, ErrNoBatch
	}
	set := &c.values
	if nulls {
		set = &c.nulls
	}
	if i >= len(*set) {
		if i >= c.rg.ColumnCount() || i < 0 {
			return nil, false, rangeError(i, c.rg.ColumnCount())
		}
		grown := make([]columnCursor, c.rg.ColumnCount())
		copy(grown, *set)
		*set = grown
	}
	if i < 0 {
		return nil, false, rangeError(i, c.rg.ColumnCount())
	}
	cc := &(*set)[i]
	if cc.cur == nil {
		var (
			col *column.Column
			err error
		)
		if nulls {
			col, err = c.rg.Nulls(i)
		} else {
			col, err = c.rg.Column(i)
		}
		if err != nil {
			return nil, false, err
		}
		cc.col = col
		cc.cur = column.NewCursor(col)
	}
	if cc.cached && cc.at == c.offset {
		return cc, true, nil
	}
	cc.cached = false

	pos := cc.cur.Position()
	if pos > c.offset {
		cc.cur.Rewind()
		pos = 0
	}
	if pos < c.offset {
		want := c.offset - pos
		if got := cc.cur.Skip(want); got != want {
			if err := cc.cur.Err(); err != nil {
				return nil, false, err
			}
			return nil, false, errors.Wrap(column.ErrCorrupt, errors.ErrorTypeCorrupt, "column shorter than row group").
				WithDetail("column", i).
				WithDetail("offset", c.offset)
		}
	}
	return cc, false, nil
}

func (c *Cursor) done(cc *columnCursor, n int) error {
	if n != c.count {
		return errors.Wrap(column.ErrCorrupt, errors.ErrorTypeCorrupt, "short column batch").
			WithDetail("offset", c.offset).
			WithDetail("expected", c.count).
			WithDetail("actual", n)
	}
	cc.cached = true
	cc.at = c.offset
	return nil
}

// BatchBit returns the current window of Bit column i.
func (c *Cursor) BatchBit(i int) ([]bool, error) {
	return c.batchBit(i, false)
}

// BatchNulls returns the null flags of column i for the current window.
func (c *Cursor) BatchNulls(i int) ([]bool, error) {
	return c.batchBit(i, true)
}

func (c *Cursor) batchBit(i int, nulls bool) ([]bool, error) {
	cc, cached, err := c.prepare(i, nulls)
	if err != nil {
		return nil, err
	}
	if cached {
		return cc.bits, nil
	}
	b, err := cc.cur.NextBatchBit()
	if err != nil {
		return nil, err
	}
	cc.bits = b
	return b, c.done(cc, len(b))
}

// BatchI32 returns the current window of I32 column i.
func (c *Cursor) BatchI32(i int) ([]int32, error) {
	cc, cached, err := c.prepare(i, false)
	if err != nil {
		return nil, err
	}
	if cached {
		return cc.i32, nil
	}
	b, err := cc.cur.NextBatchI32()
	if err != nil {
		return nil, err
	}
	cc.i32 = b
	return b, c.done(cc, len(b))
}

// BatchI64 returns the current window of I64 column i.
func (c *Cursor) BatchI64(i int) ([]int64, error) {
	cc, cached, err := c.prepare(i, false)
	if err != nil {
		return nil, err
	}
	if cached {
		return cc.i64, nil
	}
	b, err := cc.cur.NextBatchI64()
	if err != nil {
		return nil, err
	}
	cc.i64 = b
	return b, c.done(cc, len(b))
}

// BatchFlt returns the current window of Flt column i.
func (c *Cursor) BatchFlt(i int) ([]float32, error) {
	cc, cached, err := c.prepare(i, false)
	if err != nil {
		return nil, err
	}
	if cached {
		return cc.flt, nil
	}
	b, err := cc.cur.NextBatchFlt()
	if err != nil {
		return nil, err
	}
	cc.flt = b
	return b, c.done(cc, len(b))
}

// BatchDbl returns the current window of Dbl column i.
func (c *Cursor) BatchDbl(i int) ([]float64, error) {
	cc, cached, err := c.prepare(i, false)
	if err != nil {
		return nil, err
	}
	if cached {
		return cc.dbl, nil
	}
	b, err := cc.cur.NextBatchDbl()
	if err != nil {
		return nil, err
	}
	cc.dbl = b
	return b, c.done(cc, len(b))
}

// BatchStr returns the current window of Str column i. The strings borrow
// the column's bytes.
func (c *Cursor) BatchStr(i int) ([]string, error) {
	cc, cached, err := c.prepare(i, false)
	if err != nil {
		return nil, err
	}
	if cached {
		return cc.str, nil
	}
	b, err := cc.cur.NextBatchStr()
	if err != nil {
		return nil, err
	}
	cc.str = b
	return b, c.done(cc, len(b))
}

// Value returns row k of the current window of column i as a tagged value.
func (c *Cursor) Value(i, k int) (column.Value, error) {
	typ, ok := c.rg.ColumnType(i)
	if !ok {
		return column.Value{}, rangeError(i, c.rg.ColumnCount())
	}
	if k < 0 || k >= c.count {
		return column.Value{}, errors.Newf(errors.ErrorTypeValidation, "row %d outside batch of %d", k, c.count)
	}
	switch typ {
	case column.Bit:
		b, err := c.BatchBit(i)
		if err != nil {
			return column.Value{}, err
		}
		return column.BoolValue(b[k]), nil
	case column.I32:
		b, err := c.BatchI32(i)
		if err != nil {
			return column.Value{}, err
		}
		return column.I32Value(b[k]), nil
	case column.I64:
		b, err := c.BatchI64(i)
		if err != nil {
			return column.Value{}, err
		}
		return column.I64Value(b[k]), nil
	case column.Flt:
		b, err := c.BatchFlt(i)
		if err != nil {
			return column.Value{}, err
		}
		return column.FltValue(b[k]), nil
	case column.Dbl:
		b, err := c.BatchDbl(i)
		if err != nil {
			return column.Value{}, err
		}
		return column.DblValue(b[k]), nil
	default:
		b, err := c.BatchStr(i)
		if err != nil {
			return column.Value{}, err
		}
		return column.StrValue(b[k]), nil
	}
}
