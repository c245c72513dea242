// Package rowcursor turns predicate bitmasks over 64-row batches into
// single-row iteration over a row group.
package rowcursor

import (
	"math/bits"

	"github.com/ajitpratap0/strata/pkg/column"
	"github.com/ajitpratap0/strata/pkg/errors"
	"github.com/ajitpratap0/strata/pkg/match"
	"github.com/ajitpratap0/strata/pkg/predicate"
	"github.com/ajitpratap0/strata/pkg/rowgroup"
)

// ErrNoRow is returned by getters when the cursor is not on a row.
var ErrNoRow = errors.New(errors.ErrorTypeState, "cursor is not positioned on a row")

// idle marks a consumed batch: the next call to Next loads another one.
const idle = match.Width

// Cursor yields the rows of a row group that match a predicate, in
// ascending row order. It is not safe for concurrent use.
type Cursor struct {
	rg      *rowgroup.RowGroup
	pred    *predicate.Predicate
	verdict predicate.Result
	batches *rowgroup.Cursor
	mask    uint64
	pos     int
	onRow   bool
	err     error
}

// New returns a cursor over the rows of rg matching pred. A nil pred matches
// every row. The predicate is validated against rg and its zone-map verdict
// computed once.
func New(rg *rowgroup.RowGroup, pred *predicate.Predicate) (*Cursor, error) {
	if pred == nil {
		pred = predicate.True()
	}
	if err := pred.Validate(rg); err != nil {
		return nil, err
	}
	return &Cursor{
		rg:      rg,
		pred:    pred,
		verdict: pred.MatchIndexes(rg),
		batches: rg.Cursor(),
		pos:     idle,
	}, nil
}

// Verdict returns the zone-map result for the whole row group.
func (c *Cursor) Verdict() predicate.Result { return c.verdict }

// RowGroup returns the row group being iterated.
func (c *Cursor) RowGroup() *rowgroup.RowGroup { return c.rg }

// Next advances to the next matching row. It returns false when no rows
// remain or an error occurred; Err distinguishes the two.
func (c *Cursor) Next() bool {
	c.onRow = false
	if c.err != nil || c.verdict == predicate.NoRows {
		return false
	}
	for {
		if c.pos < idle-1 {
			if rest := c.mask &^ match.Mask(c.pos+1); rest != 0 {
				c.pos = bits.TrailingZeros64(rest)
				c.onRow = true
				return true
			}
		}
		if !c.load() {
			return false
		}
	}
}

// load evaluates the next batch that has at least one match.
func (c *Cursor) load() bool {
	c.pos = idle
	c.mask = 0
	for c.batches.Next() {
		if c.verdict == predicate.AllRows {
			c.mask = match.Mask(c.batches.BatchCount())
		} else {
			m, _, err := c.pred.MatchRows(c.batches)
			if err != nil {
				c.err = err
				return false
			}
			c.mask = m
		}
		if c.mask != 0 {
			c.pos = -1
			return true
		}
	}
	return false
}

// Err returns the error that stopped iteration, if any.
func (c *Cursor) Err() error { return c.err }

// Rewind restarts iteration at the first row and clears any error.
func (c *Cursor) Rewind() {
	c.batches.Rewind()
	c.mask = 0
	c.pos = idle
	c.onRow = false
	c.err = nil
}

// Count returns the number of matching rows. Row groups decided by their
// zone maps are answered without a scan; otherwise every batch is evaluated.
// The cursor is rewound afterwards.
func (c *Cursor) Count() (uint64, error) {
	switch c.verdict {
	case predicate.NoRows:
		return 0, nil
	case predicate.AllRows:
		return c.rg.RowCount(), nil
	}
	c.Rewind()
	defer c.Rewind()
	var n uint64
	for c.batches.Next() {
		m, _, err := c.pred.MatchRows(c.batches)
		if err != nil {
			return 0, err
		}
		n += uint64(bits.OnesCount64(m))
	}
	return n, nil
}

// Row returns the index of the current row within the row group.
func (c *Cursor) Row() (uint64, error) {
	if !c.onRow {
		return 0, ErrNoRow
	}
	return c.batches.Offset() + uint64(c.pos), nil
}

// Bit returns the current row's value in Bit column col.
func (c *Cursor) Bit(col int) (bool, error) {
	if !c.onRow {
		return false, ErrNoRow
	}
	b, err := c.batches.BatchBit(col)
	if err != nil {
		return false, err
	}
	return b[c.pos], nil
}

// I32 returns the current row's value in I32 column col.
func (c *Cursor) I32(col int) (int32, error) {
	if !c.onRow {
		return 0, ErrNoRow
	}
	b, err := c.batches.BatchI32(col)
	if err != nil {
		return 0, err
	}
	return b[c.pos], nil
}

// I64 returns the current row's value in I64 column col.
func (c *Cursor) I64(col int) (int64, error) {
	if !c.onRow {
		return 0, ErrNoRow
	}
	b, err := c.batches.BatchI64(col)
	if err != nil {
		return 0, err
	}
	return b[c.pos], nil
}

// Flt returns the current row's value in Flt column col.
func (c *Cursor) Flt(col int) (float32, error) {
	if !c.onRow {
		return 0, ErrNoRow
	}
	b, err := c.batches.BatchFlt(col)
	if err != nil {
		return 0, err
	}
	return b[c.pos], nil
}

// Dbl returns the current row's value in Dbl column col.
func (c *Cursor) Dbl(col int) (float64, error) {
	if !c.onRow {
		return 0, ErrNoRow
	}
	b, err := c.batches.BatchDbl(col)
	if err != nil {
		return 0, err
	}
	return b[c.pos], nil
}

// Str returns the current row's value in Str column col. The string borrows
// the column's bytes and is valid while the row group is open.
func (c *Cursor) Str(col int) (string, error) {
	if !c.onRow {
		return "", ErrNoRow
	}
	b, err := c.batches.BatchStr(col)
	if err != nil {
		return "", err
	}
	return b[c.pos], nil
}

// IsNull reports whether the current row's value in column col is null.
func (c *Cursor) IsNull(col int) (bool, error) {
	if !c.onRow {
		return false, ErrNoRow
	}
	b, err := c.batches.BatchNulls(col)
	if err != nil {
		return false, err
	}
	return b[c.pos], nil
}

// Value returns the current row's value in column col as a tagged value.
func (c *Cursor) Value(col int) (column.Value, error) {
	if !c.onRow {
		return column.Value{}, ErrNoRow
	}
	return c.batches.Value(col, c.pos)
}
