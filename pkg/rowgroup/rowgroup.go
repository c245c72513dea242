// Package rowgroup holds a horizontal slice of a table: parallel value and
// null columns that share one row count.
//
// Columns are added either eagerly, as ready *column.Column values that stay
// owned by the caller, or lazily, as descriptors pointing into a Source. A
// lazy column is materialized on first access and cached: uncompressed
// payloads are wrapped in place (borrowing a Source reference), compressed
// payloads are decompressed into a buffer owned by the row group. Row groups
// pruned by their zone maps therefore never touch column bytes.
package rowgroup

import (
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/strata/pkg/column"
	"github.com/ajitpratap0/strata/pkg/compression"
	"github.com/ajitpratap0/strata/pkg/errors"
	"github.com/ajitpratap0/strata/pkg/metrics"
)

var (
	// ErrRowCount is returned when a column's row count differs from the
	// row group's.
	ErrRowCount = errors.New(errors.ErrorTypeSchema, "row count mismatch")
	// ErrNullsType is returned when a nulls column is not of type Bit.
	ErrNullsType = errors.New(errors.ErrorTypeSchema, "nulls column must be bit typed")
	// ErrColumnRange is returned for a column index outside the row group.
	ErrColumnRange = errors.New(errors.ErrorTypeValidation, "column index out of range")
	// ErrClosed is returned by accessors after Close.
	ErrClosed = errors.New(errors.ErrorTypeState, "row group is closed")
)

// Source provides the bytes behind lazy columns. *mmap.Region implements it.
type Source interface {
	// Slice returns n bytes starting at off, failing if the range is out of
	// bounds.
	Slice(off, n uint64) ([]byte, error)
	// Acquire takes a reference that keeps slices valid until Release.
	Acquire() error
	Release() error
}

// Descriptor locates a lazy column inside a Source.
type Descriptor struct {
	Type             column.Type
	Encoding         column.Encoding
	Compression      compression.Type
	Source           Source
	Offset           uint64
	Size             uint64
	DecompressedSize uint64
	Index            column.Index
}

type part struct {
	col   *column.Column
	desc  *Descriptor
	owned bool
}

func (p *part) typ() column.Type {
	if p.desc != nil {
		return p.desc.Type
	}
	return p.col.Type()
}

func (p *part) encoding() column.Encoding {
	if p.desc != nil {
		return p.desc.Encoding
	}
	return p.col.Encoding()
}

func (p *part) index() column.Index {
	if p.desc != nil {
		return p.desc.Index
	}
	return p.col.Index()
}

type slot struct {
	values part
	nulls  part
}

// RowGroup is a set of columns sharing a row count. It is not safe for
// concurrent use.
type RowGroup struct {
	slots   []slot
	rows    uint64
	closed  bool
	logger  *zap.Logger
	metrics *metrics.Collector
}

// Option configures a RowGroup.
type Option func(*RowGroup)

// WithLogger sets the logger used for materialization events.
func WithLogger(logger *zap.Logger) Option {
	return func(rg *RowGroup) {
		if logger != nil {
			rg.logger = logger
		}
	}
}

// WithMetrics records materializations on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(rg *RowGroup) {
		rg.metrics = c
	}
}

// New returns an empty row group.
func New(opts ...Option) *RowGroup {
	rg := &RowGroup{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(rg)
	}
	return rg
}

func (rg *RowGroup) checkShape(rows, nullRows uint64, nullsType column.Type) error {
	if rg.closed {
		return ErrClosed
	}
	if nullsType != column.Bit {
		return errors.Wrap(ErrNullsType, errors.ErrorTypeSchema, "add column").
			WithDetail("nulls_type", nullsType.String())
	}
	if nullRows != rows {
		return errors.Wrap(ErrRowCount, errors.ErrorTypeSchema, "nulls and values differ").
			WithDetail("values", rows).
			WithDetail("nulls", nullRows)
	}
	if len(rg.slots) > 0 && rows != rg.rows {
		return errors.Wrap(ErrRowCount, errors.ErrorTypeSchema, "column differs from row group").
			WithDetail("column", len(rg.slots)).
			WithDetail("rows", rows).
			WithDetail("expected", rg.rows)
	}
	return nil
}

// AddColumn appends a ready column. The row group references values and
// nulls without owning them; the caller closes them after the row group is
// done. A nil nulls column is replaced with an all-false one owned by the
// row group.
func (rg *RowGroup) AddColumn(values, nulls *column.Column) error {
	if values == nil {
		return errors.New(errors.ErrorTypeValidation, "values column is nil")
	}
	owned := false
	if nulls == nil {
		var err error
		if nulls, err = NoNulls(values.Len()); err != nil {
			return err
		}
		owned = true
	}
	if err := rg.checkShape(values.Len(), nulls.Len(), nulls.Type()); err != nil {
		if owned {
			nulls.Close()
		}
		return err
	}
	rg.rows = values.Len()
	rg.slots = append(rg.slots, slot{
		values: part{col: values},
		nulls:  part{col: nulls, owned: owned},
	})
	return nil
}

// AddLazyColumn appends a column whose bytes are read on first access.
func (rg *RowGroup) AddLazyColumn(values, nulls Descriptor) error {
	for _, d := range []*Descriptor{&values, &nulls} {
		if d.Source == nil {
			return errors.New(errors.ErrorTypeValidation, "lazy column has no source")
		}
		if !d.Type.Valid() || !d.Encoding.Valid() || !d.Compression.Valid() {
			return errors.Newf(errors.ErrorTypeSchema, "unsupported column descriptor %s/%s/%s",
				d.Type, d.Encoding, d.Compression)
		}
	}
	if err := rg.checkShape(values.Index.Count, nulls.Index.Count, nulls.Type); err != nil {
		return err
	}
	rg.rows = values.Index.Count
	rg.slots = append(rg.slots, slot{
		values: part{desc: &values},
		nulls:  part{desc: &nulls},
	})
	return nil
}

// NoNulls returns an owned Bit column of rows false values.
func NoNulls(rows uint64) (*column.Column, error) {
	data := make([]byte, (rows+63)/64*8)
	ix := column.EmptyIndex(column.Bit)
	ix.Count = rows
	return column.NewOwned(column.Bit, column.Identity, data, ix)
}

// ColumnCount returns the number of columns.
func (rg *RowGroup) ColumnCount() int { return len(rg.slots) }

// RowCount returns the number of rows shared by all columns.
func (rg *RowGroup) RowCount() uint64 { return rg.rows }

// ColumnType returns the type of column i without materializing it, or false
// if i is out of range.
func (rg *RowGroup) ColumnType(i int) (column.Type, bool) {
	if i < 0 || i >= len(rg.slots) {
		return 0, false
	}
	return rg.slots[i].values.typ(), true
}

// ColumnEncoding returns the encoding of column i. It returns Identity if i is
// out of range.
func (rg *RowGroup) ColumnEncoding(i int) column.Encoding {
	if i < 0 || i >= len(rg.slots) {
		return column.Identity
	}
	return rg.slots[i].values.encoding()
}

// ColumnIndex returns the zone map of column i without materializing it.
func (rg *RowGroup) ColumnIndex(i int) (column.Index, error) {
	if i < 0 || i >= len(rg.slots) {
		return column.Index{}, rangeError(i, len(rg.slots))
	}
	return rg.slots[i].values.index(), nil
}

// NullsIndex returns the zone map of column i's null flags.
func (rg *RowGroup) NullsIndex(i int) (column.Index, error) {
	if i < 0 || i >= len(rg.slots) {
		return column.Index{}, rangeError(i, len(rg.slots))
	}
	return rg.slots[i].nulls.index(), nil
}

// Column returns the values of column i, materializing it if needed.
func (rg *RowGroup) Column(i int) (*column.Column, error) {
	if err := rg.check(i); err != nil {
		return nil, err
	}
	return rg.materialize(&rg.slots[i].values, i, "values")
}

// Nulls returns the null flags of column i, materializing them if needed.
func (rg *RowGroup) Nulls(i int) (*column.Column, error) {
	if err := rg.check(i); err != nil {
		return nil, err
	}
	return rg.materialize(&rg.slots[i].nulls, i, "nulls")
}

// Materialized reports whether column i's values are resident.
func (rg *RowGroup) Materialized(i int) bool {
	return i >= 0 && i < len(rg.slots) && rg.slots[i].values.col != nil
}

func (rg *RowGroup) check(i int) error {
	if rg.closed {
		return ErrClosed
	}
	if i < 0 || i >= len(rg.slots) {
		return rangeError(i, len(rg.slots))
	}
	return nil
}

func rangeError(i, n int) error {
	return errors.Wrap(ErrColumnRange, errors.ErrorTypeValidation, "lookup column").
		WithDetail("column", i).
		WithDetail("columns", n)
}

func (rg *RowGroup) materialize(p *part, i int, kind string) (*column.Column, error) {
	if p.col != nil {
		return p.col, nil
	}
	start := time.Now()
	d := p.desc
	raw, err := d.Source.Slice(d.Offset, d.Size)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeCorrupt, "locate "+kind+" payload").
			WithDetail("column", i)
	}

	var col *column.Column
	decompressed := 0
	if d.Compression == compression.None {
		if err := d.Source.Acquire(); err != nil {
			return nil, err
		}
		col, err = column.Wrap(d.Type, d.Encoding, raw, d.Index, d.Source)
		if err != nil {
			d.Source.Release()
		}
	} else {
		var data []byte
		err = column.CheckPayload(d.Type, d.Index, d.DecompressedSize)
		if err == nil && d.DecompressedSize > math.MaxInt {
			err = errors.Newf(errors.ErrorTypeCorrupt, "decompressed size %d overflows int", d.DecompressedSize)
		}
		if err == nil {
			data, err = compression.Decompress(d.Compression, raw, int(d.DecompressedSize))
		}
		if err == nil {
			decompressed = len(data)
			col, err = column.NewOwned(d.Type, d.Encoding, data, d.Index)
		}
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeCorrupt, "materialize "+kind).
			WithDetail("column", i).
			WithDetail("compression", d.Compression.String())
	}

	elapsed := time.Since(start)
	rg.metrics.ColumnMaterialized(d.Compression.String(), decompressed, elapsed)
	rg.logger.Debug("materialized column",
		zap.Int("column", i),
		zap.String("kind", kind),
		zap.Stringer("type", d.Type),
		zap.Stringer("compression", d.Compression),
		zap.Uint64("size", d.Size),
		zap.Duration("elapsed", elapsed))

	p.col = col
	p.owned = true
	return col, nil
}

// Close releases the columns the row group owns: materialized lazy columns
// and synthesized null columns. Eagerly added columns are left to the
// caller. Close is idempotent.
func (rg *RowGroup) Close() error {
	if rg.closed {
		return nil
	}
	rg.closed = true
	var first error
	for i := range rg.slots {
		for _, p := range []*part{&rg.slots[i].values, &rg.slots[i].nulls} {
			if p.owned && p.col != nil {
				if err := p.col.Close(); err != nil && first == nil {
					first = err
				}
			}
			if p.desc != nil {
				p.col = nil
			}
		}
	}
	return first
}
