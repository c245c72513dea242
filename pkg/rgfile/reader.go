package rgfile

import (
	"context"
	"encoding/binary"
	"math"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ajitpratap0/strata/pkg/column"
	"github.com/ajitpratap0/strata/pkg/compression"
	"github.com/ajitpratap0/strata/pkg/errors"
	"github.com/ajitpratap0/strata/pkg/metrics"
	"github.com/ajitpratap0/strata/pkg/mmap"
	"github.com/ajitpratap0/strata/pkg/observability"
	"github.com/ajitpratap0/strata/pkg/rowgroup"
)

// Reader maps a row-group file and hands out lazy row groups. Row groups
// and columns obtained from a Reader stay valid after Close until they are
// closed themselves; the mapping is released with the last reference.
type Reader struct {
	region *mmap.Region
	footer Footer
	descs  []Descriptor
	groups []RowGroupHeader
	closed bool

	logger  *zap.Logger
	metrics *metrics.Collector
}

// Open maps path and validates its metadata. See OpenContext.
func Open(path string, opts ...Option) (*Reader, error) {
	return OpenContext(context.Background(), path, opts...)
}

// OpenContext maps path and validates the footer, the header and the bounds
// of every metadata array and row group before any payload is read.
func OpenContext(ctx context.Context, path string, opts ...Option) (r *Reader, err error) {
	_, span := observability.StartSpan(ctx, "rgfile.open", attribute.String("path", path))
	defer func() { observability.EndSpan(span, err) }()

	o := buildOptions(opts)
	region, err := mmap.Open(path, mmap.WithLogger(o.logger))
	if err != nil {
		return nil, err
	}
	r = &Reader{
		region:  region,
		logger:  o.logger.With(zap.String("path", path)),
		metrics: o.metrics,
	}
	if err := r.load(); err != nil {
		region.Release()
		return nil, errors.Wrap(err, errors.ErrorTypeCorrupt, "invalid row group file").WithDetail("path", path)
	}
	if o.advice != mmap.Normal {
		if err := region.Advise(o.advice); err != nil {
			r.logger.Warn("madvise failed", zap.Error(err))
		}
	}
	span.SetAttributes(
		attribute.Int("row_groups", len(r.groups)),
		attribute.Int("columns", len(r.descs)))
	r.logger.Debug("opened row group file",
		zap.Int("row_groups", len(r.groups)),
		zap.Int("columns", len(r.descs)),
		zap.Uint64("rows", r.footer.Rows))
	return r, nil
}

func (r *Reader) load() error {
	data := r.region.Bytes()
	size := uint64(len(data))
	if size < HeaderSize+FooterSize {
		return errors.Newf(errors.ErrorTypeCorrupt, "file of %d bytes is too small", size)
	}

	r.footer = decodeFooter(data[size-FooterSize:])
	if r.footer.Magic != Magic {
		return errors.Wrap(ErrBadMagic, errors.ErrorTypeCorrupt, "footer").
			WithDetail("magic", r.footer.Magic)
	}
	if m := binary.LittleEndian.Uint64(data); m != Magic {
		return errors.Wrap(ErrBadMagic, errors.ErrorTypeCorrupt, "header").WithDetail("magic", m)
	}

	descLen := uint64(r.footer.Columns) * DescriptorSize
	groupLen := uint64(r.footer.RowGroups) * RowGroupHeaderSize
	metaEnd := size - FooterSize
	if descLen+groupLen > metaEnd-HeaderSize {
		return errors.Newf(errors.ErrorTypeCorrupt, "metadata for %d row groups and %d columns exceeds file",
			r.footer.RowGroups, r.footer.Columns)
	}
	descOff := metaEnd - descLen
	groupOff := descOff - groupLen

	r.descs = make([]Descriptor, r.footer.Columns)
	for i := range r.descs {
		d, err := decodeDescriptor(data[descOff+uint64(i)*DescriptorSize:])
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeCorrupt, "decode descriptor").WithDetail("column", i)
		}
		r.descs[i] = d
	}

	headersLen := uint64(2*len(r.descs)) * ColumnHeaderSize
	r.groups = make([]RowGroupHeader, r.footer.RowGroups)
	var rows uint64
	for i := range r.groups {
		g := decodeRowGroupHeader(data[groupOff+uint64(i)*RowGroupHeaderSize:])
		if g.Offset < HeaderSize || g.Offset > groupOff || g.Size > groupOff-g.Offset ||
			headersLen > groupOff-g.Offset-g.Size {
			return errors.Newf(errors.ErrorTypeCorrupt, "row group %d [%d, +%d) outside data section", i, g.Offset, g.Size).
				WithDetail("row_group", i)
		}
		r.groups[i] = g
		if len(r.descs) > 0 {
			h, err := r.columnHeader(g, 0, r.descs[0].Type, r.descs[0].Compression)
			if err != nil {
				return err
			}
			rows += h.Index.Count
		}
	}
	if rows != r.footer.Rows {
		return errors.Newf(errors.ErrorTypeCorrupt, "footer counts %d rows, row groups hold %d", r.footer.Rows, rows)
	}
	return nil
}

func (r *Reader) columnHeader(g RowGroupHeader, k int, t column.Type, comp compression.Type) (ColumnHeader, error) {
	off := g.Offset + g.Size + uint64(k)*ColumnHeaderSize
	buf, err := r.region.Slice(off, ColumnHeaderSize)
	if err != nil {
		return ColumnHeader{}, err
	}
	h, err := decodeColumnHeader(t, buf)
	if err != nil {
		return ColumnHeader{}, err
	}
	if h.Offset < g.Offset || h.Size > g.Size || h.Offset-g.Offset > g.Size-h.Size {
		return ColumnHeader{}, errors.Newf(errors.ErrorTypeCorrupt, "payload [%d, +%d) outside row group", h.Offset, h.Size)
	}
	if err := checkPayloadSize(h, t, comp); err != nil {
		return ColumnHeader{}, err
	}
	return h, nil
}

// checkPayloadSize ties a header's sizes to its zone-map count so nothing
// later reads past a payload or allocates for a size the file cannot hold.
func checkPayloadSize(h ColumnHeader, t column.Type, comp compression.Type) error {
	if comp == compression.None || h.Size == 0 {
		if h.DecompressedSize != h.Size {
			return errors.Newf(errors.ErrorTypeCorrupt, "stored payload of %d bytes claims %d decompressed",
				h.Size, h.DecompressedSize)
		}
	} else if h.DecompressedSize > compression.MaxExpansion(comp, h.Size) || h.DecompressedSize > math.MaxInt {
		return errors.Newf(errors.ErrorTypeCorrupt, "%s payload of %d bytes cannot decode to %d",
			comp, h.Size, h.DecompressedSize)
	}
	return column.CheckPayload(t, h.Index, h.DecompressedSize)
}

// Path returns the mapped file's path.
func (r *Reader) Path() string { return r.region.Path() }

// Size returns the file size in bytes.
func (r *Reader) Size() int { return r.region.Len() }

// RowGroupCount returns the number of row groups.
func (r *Reader) RowGroupCount() int { return len(r.groups) }

// ColumnCount returns the number of columns.
func (r *Reader) ColumnCount() int { return len(r.descs) }

// RowCount returns the total number of rows.
func (r *Reader) RowCount() uint64 { return r.footer.Rows }

// Descriptors returns the column descriptors.
func (r *Reader) Descriptors() []Descriptor {
	return append([]Descriptor(nil), r.descs...)
}

// RowGroupHeader returns the header of row group i.
func (r *Reader) RowGroupHeader(i int) (RowGroupHeader, error) {
	if r.closed {
		return RowGroupHeader{}, ErrClosed
	}
	if i < 0 || i >= len(r.groups) {
		return RowGroupHeader{}, errors.Newf(errors.ErrorTypeValidation, "row group %d out of range [0, %d)", i, len(r.groups))
	}
	return r.groups[i], nil
}

// ColumnHeaders returns the 2*N column headers of row group i: values then
// nulls for each column.
func (r *Reader) ColumnHeaders(i int) ([]ColumnHeader, error) {
	g, err := r.RowGroupHeader(i)
	if err != nil {
		return nil, err
	}
	headers := make([]ColumnHeader, 0, 2*len(r.descs))
	for c, d := range r.descs {
		for k, t := range [2]column.Type{d.Type, column.Bit} {
			h, err := r.columnHeader(g, 2*c+k, t, d.Compression)
			if err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeCorrupt, "read column header").
					WithDetail("row_group", i).
					WithDetail("column", c)
			}
			headers = append(headers, h)
		}
	}
	return headers, nil
}

// RowGroup returns row group i with lazily materialized columns. See
// RowGroupContext.
func (r *Reader) RowGroup(i int) (*rowgroup.RowGroup, error) {
	return r.RowGroupContext(context.Background(), i)
}

// RowGroupContext returns row group i. Only its column headers are read;
// payloads are mapped or decompressed when a column is first accessed. The
// caller closes the row group.
func (r *Reader) RowGroupContext(ctx context.Context, i int) (rg *rowgroup.RowGroup, err error) {
	_, span := observability.StartSpan(ctx, "rgfile.row_group", attribute.Int("row_group", i))
	defer func() { observability.EndSpan(span, err) }()

	headers, err := r.ColumnHeaders(i)
	if err != nil {
		return nil, err
	}
	rg = rowgroup.New(rowgroup.WithLogger(r.logger), rowgroup.WithMetrics(r.metrics))
	for c, d := range r.descs {
		vh, nh := headers[2*c], headers[2*c+1]
		values := rowgroup.Descriptor{
			Type:             d.Type,
			Encoding:         d.Encoding,
			Compression:      d.Compression,
			Source:           r.region,
			Offset:           vh.Offset,
			Size:             vh.Size,
			DecompressedSize: vh.DecompressedSize,
			Index:            vh.Index,
		}
		nulls := values
		nulls.Type = column.Bit
		nulls.Encoding = column.Identity
		nulls.Offset = nh.Offset
		nulls.Size = nh.Size
		nulls.DecompressedSize = nh.DecompressedSize
		nulls.Index = nh.Index
		if err := rg.AddLazyColumn(values, nulls); err != nil {
			rg.Close()
			return nil, errors.Wrap(err, errors.ErrorTypeCorrupt, "build row group").
				WithDetail("row_group", i).
				WithDetail("column", c)
		}
	}
	span.SetAttributes(attribute.Int64("rows", int64(rg.RowCount())))
	return rg, nil
}

// Close drops the reader's reference to the mapping. Closing twice is a
// no-op.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.region.Release()
}
