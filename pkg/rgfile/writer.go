package rgfile

import (
	"context"
	"encoding/binary"
	"os"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ajitpratap0/strata/pkg/column"
	"github.com/ajitpratap0/strata/pkg/compression"
	"github.com/ajitpratap0/strata/pkg/errors"
	"github.com/ajitpratap0/strata/pkg/metrics"
	"github.com/ajitpratap0/strata/pkg/observability"
	"github.com/ajitpratap0/strata/pkg/pool"
	"github.com/ajitpratap0/strata/pkg/rowgroup"
)

var (
	scratch = pool.NewBufferPool()
	padding [alignment]byte
)

// Writer appends row groups to a new file. Columns are declared with
// AddColumn before the first row group. A Writer is not safe for concurrent
// use, and only one Writer may target a file at a time.
type Writer struct {
	file    *os.File
	path    string
	descs   []Descriptor
	codecs  []compression.Codec
	groups  []RowGroupHeader
	rows    uint64
	offset  uint64
	started bool
	done    bool
	closed  bool

	logger  *zap.Logger
	metrics *metrics.Collector
}

// Create truncates or creates path and returns a Writer for it.
func Create(path string, opts ...Option) (*Writer, error) {
	o := buildOptions(opts)
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to create file").WithDetail("path", path)
	}
	o.logger.Debug("created row group file", zap.String("path", path))
	return &Writer{
		file:    file,
		path:    path,
		logger:  o.logger.With(zap.String("path", path)),
		metrics: o.metrics,
	}, nil
}

// Path returns the file path.
func (w *Writer) Path() string { return w.path }

// Descriptors returns the declared columns.
func (w *Writer) Descriptors() []Descriptor {
	return append([]Descriptor(nil), w.descs...)
}

// RowGroupCount returns the number of row groups written so far.
func (w *Writer) RowGroupCount() int { return len(w.groups) }

// RowCount returns the number of rows written so far.
func (w *Writer) RowCount() uint64 { return w.rows }

// AddColumn declares the next column. A level of 0 selects the codec default.
func (w *Writer) AddColumn(t column.Type, enc column.Encoding, comp compression.Type, level int) error {
	if w.done {
		return ErrFinished
	}
	if w.started {
		return ErrHeaderWritten
	}
	if !t.Valid() || !enc.Valid() {
		return errors.Newf(errors.ErrorTypeSchema, "unsupported column %s/%s", t, enc)
	}
	if level == 0 {
		level = compression.DefaultLevel(comp)
	}
	codec, err := compression.Get(comp, level)
	if err != nil {
		return err
	}
	w.descs = append(w.descs, Descriptor{Type: t, Encoding: enc, Compression: comp, Level: int32(level)})
	w.codecs = append(w.codecs, codec)
	return nil
}

func (w *Writer) writeHeader() error {
	if w.started {
		return nil
	}
	var buf [HeaderSize]byte
	binary.LittleEndian.PutUint64(buf[:], Magic)
	if _, err := w.file.WriteAt(buf[:], 0); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "write header")
	}
	w.started = true
	w.offset = HeaderSize
	return nil
}

// AddRowGroup writes rg. See AddRowGroupContext.
func (w *Writer) AddRowGroup(rg *rowgroup.RowGroup) error {
	return w.AddRowGroupContext(context.Background(), rg)
}

// AddRowGroupContext writes rg's columns, which must match the declared
// descriptors in type and encoding. A failed write truncates the file back
// to where the row group started, leaving earlier row groups intact.
func (w *Writer) AddRowGroupContext(ctx context.Context, rg *rowgroup.RowGroup) (err error) {
	if w.done {
		return ErrFinished
	}
	if err := w.checkSchema(rg); err != nil {
		return err
	}

	_, span := observability.StartSpan(ctx, "rgfile.write_row_group",
		attribute.Int("row_group", len(w.groups)),
		attribute.Int64("rows", int64(rg.RowCount())))
	defer func() { observability.EndSpan(span, err) }()

	if err := w.writeHeader(); err != nil {
		return err
	}
	start := time.Now()
	begin := w.offset
	hdr, end, err := w.writeRowGroup(rg)
	if err != nil {
		w.rollback(begin, err)
		return err
	}

	w.groups = append(w.groups, hdr)
	w.rows += rg.RowCount()
	w.offset = end
	elapsed := time.Since(start)
	w.metrics.RowGroupWritten(rg.RowCount(), int64(end-begin), elapsed)
	w.logger.Debug("wrote row group",
		zap.Int("row_group", len(w.groups)-1),
		zap.Uint64("rows", rg.RowCount()),
		zap.Uint64("offset", hdr.Offset),
		zap.Uint64("size", end-begin),
		zap.Duration("elapsed", elapsed))
	return nil
}

func (w *Writer) checkSchema(rg *rowgroup.RowGroup) error {
	if rg == nil {
		return errors.New(errors.ErrorTypeValidation, "row group is nil")
	}
	if rg.ColumnCount() != len(w.descs) {
		return errors.Newf(errors.ErrorTypeSchema, "row group has %d columns, file has %d",
			rg.ColumnCount(), len(w.descs))
	}
	for i, d := range w.descs {
		t, _ := rg.ColumnType(i)
		enc := rg.ColumnEncoding(i)
		if t != d.Type || enc != d.Encoding {
			return errors.Newf(errors.ErrorTypeSchema, "column %d is %s/%s, file declares %s/%s",
				i, t, enc, d.Type, d.Encoding).
				WithDetail("column", i)
		}
	}
	return nil
}

func (w *Writer) writeRowGroup(rg *rowgroup.RowGroup) (RowGroupHeader, uint64, error) {
	pos := w.offset
	headers := make([]ColumnHeader, 0, 2*len(w.descs))
	for i := range w.descs {
		values, err := rg.Column(i)
		if err != nil {
			return RowGroupHeader{}, 0, err
		}
		nulls, err := rg.Nulls(i)
		if err != nil {
			return RowGroupHeader{}, 0, err
		}
		for _, col := range []*column.Column{values, nulls} {
			h, err := w.writePayload(i, col, pos)
			if err != nil {
				return RowGroupHeader{}, 0, err
			}
			headers = append(headers, h)
			pos = h.Offset + align(h.Size)
		}
	}

	hdr := RowGroupHeader{Offset: w.offset, Size: pos - w.offset}
	buf := scratch.Get(len(headers) * ColumnHeaderSize)[:0]
	for _, h := range headers {
		buf = h.appendBinary(buf)
	}
	_, err := w.file.WriteAt(buf, int64(pos))
	scratch.Put(buf)
	if err != nil {
		return RowGroupHeader{}, 0, errors.Wrap(err, errors.ErrorTypeFile, "write column headers")
	}
	return hdr, pos + uint64(len(headers)*ColumnHeaderSize), nil
}

func (w *Writer) writePayload(i int, col *column.Column, pos uint64) (ColumnHeader, error) {
	raw := col.Payload()
	payload := raw
	if w.descs[i].Compression != compression.None && len(raw) > 0 {
		buf, err := w.codecs[i].Compress(scratch.Get(len(raw))[:0], raw)
		if err != nil {
			return ColumnHeader{}, errors.Wrap(err, errors.ErrorTypeCompression, "compress column").
				WithDetail("column", i)
		}
		defer scratch.Put(buf)
		payload = buf
	}

	if _, err := w.file.WriteAt(payload, int64(pos)); err != nil {
		return ColumnHeader{}, errors.Wrap(err, errors.ErrorTypeFile, "write column payload").
			WithDetail("column", i)
	}
	size := uint64(len(payload))
	if pad := align(size) - size; pad > 0 {
		if _, err := w.file.WriteAt(padding[:pad], int64(pos+size)); err != nil {
			return ColumnHeader{}, errors.Wrap(err, errors.ErrorTypeFile, "write padding")
		}
	}
	w.metrics.BytesWritten(int64(align(size)))
	return ColumnHeader{
		Size:             size,
		DecompressedSize: uint64(len(raw)),
		Offset:           pos,
		Index:            col.Index(),
	}, nil
}

func (w *Writer) rollback(offset uint64, cause error) {
	w.logger.Warn("rolling back row group",
		zap.Uint64("offset", offset),
		errors.Field(cause))
	if err := w.file.Truncate(int64(offset)); err != nil {
		w.logger.Error("failed to truncate after failed row group", zap.Error(err))
	}
}

// Finish writes the trailer and optionally syncs the file to stable storage.
// Calling Finish again is a no-op.
func (w *Writer) Finish(sync bool) error {
	if w.done {
		return nil
	}
	if w.closed {
		return ErrFinished
	}
	if err := w.writeHeader(); err != nil {
		return err
	}

	size := len(w.groups)*RowGroupHeaderSize + len(w.descs)*DescriptorSize + FooterSize
	buf := scratch.Get(size)[:0]
	defer func() { scratch.Put(buf) }()
	for _, g := range w.groups {
		buf = g.appendBinary(buf)
	}
	for _, d := range w.descs {
		buf = d.appendBinary(buf)
	}
	buf = Footer{
		RowGroups: uint32(len(w.groups)),
		Columns:   uint32(len(w.descs)),
		Rows:      w.rows,
		Magic:     Magic,
	}.appendBinary(buf)

	if _, err := w.file.WriteAt(buf, int64(w.offset)); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "write trailer")
	}
	end := int64(w.offset) + int64(len(buf))
	if err := w.file.Truncate(end); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "truncate file")
	}
	if sync {
		if err := syncFile(w.file); err != nil {
			return errors.Wrap(err, errors.ErrorTypeFile, "sync file")
		}
	}
	w.done = true
	w.logger.Info("finished row group file",
		zap.Int("row_groups", len(w.groups)),
		zap.Int("columns", len(w.descs)),
		zap.Uint64("rows", w.rows),
		zap.Int64("size", end))
	return nil
}

// Close finishes the file if Finish was not called and closes it.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	err := w.Finish(false)
	w.closed = true
	if cerr := w.file.Close(); cerr != nil && err == nil {
		err = errors.Wrap(cerr, errors.ErrorTypeFile, "close file")
	}
	return err
}
