// Package reader streams the rows of a row-group file that match a
// predicate.
//
// Row groups whose zone maps rule the predicate out are skipped without
// touching their column payloads. Rows come out in row-group order, then in
// ascending row order within a group. The first error stops the stream and
// is kept until Rewind.
package reader

import (
	"context"

	"go.uber.org/zap"

	"github.com/ajitpratap0/strata/pkg/column"
	"github.com/ajitpratap0/strata/pkg/errors"
	"github.com/ajitpratap0/strata/pkg/metrics"
	"github.com/ajitpratap0/strata/pkg/predicate"
	"github.com/ajitpratap0/strata/pkg/rgfile"
	"github.com/ajitpratap0/strata/pkg/rowcursor"
	"github.com/ajitpratap0/strata/pkg/rowgroup"
)

// Reader iterates matching rows across every row group of a file. It is not
// safe for concurrent use.
type Reader struct {
	file      *rgfile.Reader
	ownsFile  bool
	pred      *predicate.Predicate
	optimized bool

	group   int
	base    uint64
	rg      *rowgroup.RowGroup
	cur     *rowcursor.Cursor
	matched uint64
	err     error

	ctx     context.Context
	logger  *zap.Logger
	metrics *metrics.Collector
}

// Option configures a Reader.
type Option func(*Reader)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Reader) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics records scanned and pruned row groups and matched rows on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(r *Reader) {
		r.metrics = c
	}
}

// WithContext sets the context that row-group loads are traced under.
func WithContext(ctx context.Context) Option {
	return func(r *Reader) {
		if ctx != nil {
			r.ctx = ctx
		}
	}
}

// New returns a Reader over file. A nil pred matches every row. The caller
// keeps ownership of file.
func New(file *rgfile.Reader, pred *predicate.Predicate, opts ...Option) *Reader {
	if pred == nil {
		pred = predicate.True()
	}
	r := &Reader{
		file:   file,
		pred:   pred,
		group:  -1,
		ctx:    context.Background(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Open opens path and returns a Reader that closes the file on Close.
func Open(path string, pred *predicate.Predicate, opts ...Option) (*Reader, error) {
	r := New(nil, pred, opts...)
	file, err := rgfile.OpenContext(r.ctx, path,
		rgfile.WithLogger(r.logger),
		rgfile.WithMetrics(r.metrics),
		rgfile.WithAdvice(true))
	if err != nil {
		return nil, err
	}
	r.file = file
	r.ownsFile = true
	return r, nil
}

// File returns the underlying file reader.
func (r *Reader) File() *rgfile.Reader { return r.file }

// Predicate returns the predicate rows are filtered with.
func (r *Reader) Predicate() *predicate.Predicate { return r.pred }

// Next advances to the next matching row. It returns false at the end of
// the file or on error; Err tells them apart. Once an error occurred Next
// keeps returning false until Rewind.
func (r *Reader) Next() bool {
	if r.err != nil {
		return false
	}
	for {
		if r.cur != nil {
			if r.cur.Next() {
				r.matched++
				return true
			}
			if err := r.cur.Err(); err != nil {
				r.fail(err)
				return false
			}
			r.closeGroup()
		}
		if r.group+1 >= r.file.RowGroupCount() {
			return false
		}
		if !r.openGroup(r.group + 1) {
			return false
		}
	}
}

// openGroup positions the reader on row group i. A pruned row group is
// closed again immediately and reported as success with no cursor.
func (r *Reader) openGroup(i int) bool {
	rg, err := r.file.RowGroupContext(r.ctx, i)
	if err != nil {
		r.fail(err)
		return false
	}
	r.group = i
	cur, err := rowcursor.New(rg, r.pred)
	if err != nil {
		rg.Close()
		r.fail(err)
		return false
	}
	if !r.optimized {
		r.pred.Optimize(rg)
		r.optimized = true
	}

	if cur.Verdict() == predicate.NoRows {
		r.metrics.RowGroupPruned()
		r.logger.Debug("pruned row group", zap.Int("row_group", i), zap.Uint64("rows", rg.RowCount()))
		r.base += rg.RowCount()
		rg.Close()
		return true
	}
	r.metrics.RowGroupScanned()
	r.logger.Debug("scanning row group",
		zap.Int("row_group", i),
		zap.Uint64("rows", rg.RowCount()),
		zap.Stringer("verdict", cur.Verdict()))
	r.rg = rg
	r.cur = cur
	return true
}

func (r *Reader) closeGroup() {
	if r.rg == nil {
		return
	}
	r.metrics.RowsMatched(r.matched)
	r.matched = 0
	r.base += r.rg.RowCount()
	if err := r.rg.Close(); err != nil {
		r.logger.Warn("failed to close row group", zap.Int("row_group", r.group), errors.Field(err))
	}
	r.rg = nil
	r.cur = nil
}

func (r *Reader) fail(err error) {
	r.err = err
	r.logger.Error("read failed", zap.Int("row_group", r.group), errors.Field(err))
	r.closeGroup()
}

// Err returns the error that stopped iteration, if any.
func (r *Reader) Err() error { return r.err }

// Rewind clears any error and restarts at the first row group.
func (r *Reader) Rewind() {
	r.closeGroup()
	r.group = -1
	r.base = 0
	r.err = nil
}

// Count returns the number of matching rows in the file. Row groups decided
// by their zone maps are counted without a scan. Count does not move the
// reader.
func (r *Reader) Count() (uint64, error) {
	var total uint64
	for i := 0; i < r.file.RowGroupCount(); i++ {
		n, err := r.countGroup(i)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

func (r *Reader) countGroup(i int) (uint64, error) {
	rg, err := r.file.RowGroupContext(r.ctx, i)
	if err != nil {
		return 0, err
	}
	defer rg.Close()
	cur, err := rowcursor.New(rg, r.pred)
	if err != nil {
		return 0, err
	}
	if cur.Verdict() == predicate.NoRows {
		r.metrics.RowGroupPruned()
	} else {
		r.metrics.RowGroupScanned()
	}
	return cur.Count()
}

// RowGroupIndex returns the index of the current row group, or -1 before
// the first call to Next.
func (r *Reader) RowGroupIndex() int { return r.group }

// Row returns the index of the current row within the file.
func (r *Reader) Row() (uint64, error) {
	if r.cur == nil {
		return 0, rowcursor.ErrNoRow
	}
	row, err := r.cur.Row()
	return r.base + row, err
}

// Bit returns the current row's value in Bit column col.
func (r *Reader) Bit(col int) (bool, error) {
	if r.cur == nil {
		return false, rowcursor.ErrNoRow
	}
	return r.cur.Bit(col)
}

// I32 returns the current row's value in I32 column col.
func (r *Reader) I32(col int) (int32, error) {
	if r.cur == nil {
		return 0, rowcursor.ErrNoRow
	}
	return r.cur.I32(col)
}

// I64 returns the current row's value in I64 column col.
func (r *Reader) I64(col int) (int64, error) {
	if r.cur == nil {
		return 0, rowcursor.ErrNoRow
	}
	return r.cur.I64(col)
}

// Flt returns the current row's value in Flt column col.
func (r *Reader) Flt(col int) (float32, error) {
	if r.cur == nil {
		return 0, rowcursor.ErrNoRow
	}
	return r.cur.Flt(col)
}

// Dbl returns the current row's value in Dbl column col.
func (r *Reader) Dbl(col int) (float64, error) {
	if r.cur == nil {
		return 0, rowcursor.ErrNoRow
	}
	return r.cur.Dbl(col)
}

// Str returns the current row's value in Str column col. The string aliases
// file memory and is valid until the reader moves to another row group.
func (r *Reader) Str(col int) (string, error) {
	if r.cur == nil {
		return "", rowcursor.ErrNoRow
	}
	return r.cur.Str(col)
}

// IsNull reports whether column col is null in the current row.
func (r *Reader) IsNull(col int) (bool, error) {
	if r.cur == nil {
		return false, rowcursor.ErrNoRow
	}
	return r.cur.IsNull(col)
}

// Value returns the current row's value in column col.
func (r *Reader) Value(col int) (column.Value, error) {
	if r.cur == nil {
		return column.Value{}, rowcursor.ErrNoRow
	}
	return r.cur.Value(col)
}

// Close releases the current row group and, for readers returned by Open,
// the file.
func (r *Reader) Close() error {
	r.closeGroup()
	if r.ownsFile {
		r.ownsFile = false
		return r.file.Close()
	}
	return nil
}
