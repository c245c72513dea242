// Package rgfile reads and writes strata row-group files.
//
// A file is a header magic, a sequence of row groups and a trailer:
//
//	header      u64 magic
//	row group   values and nulls payload per column, each 8-byte aligned,
//	            then 2*N column headers {size, decompressed_size, offset, index}
//	trailer     row-group headers {size, offset}, column descriptors
//	            {type, encoding, compression, level}, footer
//	            {u32 row_groups, u32 columns, u64 rows, u64 magic}
//
// All integers are little-endian. The footer sits at a fixed distance from
// the end of the file, so every metadata array is located by subtracting
// sizes from EOF.
package rgfile

import (
	"encoding/binary"

	"github.com/ajitpratap0/strata/pkg/column"
	"github.com/ajitpratap0/strata/pkg/compression"
	"github.com/ajitpratap0/strata/pkg/errors"
)

const (
	// Magic is "STXRGF01" read as a little-endian u64.
	Magic uint64 = 0x3130464752585453

	HeaderSize         = 8
	ColumnHeaderSize   = 24 + column.IndexSize
	RowGroupHeaderSize = 16
	DescriptorSize     = 16
	FooterSize         = 24

	alignment = 8
)

var (
	// ErrFinished is returned by writer calls after Finish or Close.
	ErrFinished = errors.New(errors.ErrorTypeState, "writer is finished")
	// ErrHeaderWritten is returned by AddColumn once a row group was written.
	ErrHeaderWritten = errors.New(errors.ErrorTypeState, "columns are fixed once data is written")
	// ErrBadMagic is returned when the header or footer magic is wrong.
	ErrBadMagic = errors.New(errors.ErrorTypeCorrupt, "bad magic")
	// ErrClosed is returned by reader calls after Close.
	ErrClosed = errors.New(errors.ErrorTypeState, "reader is closed")
)

// Descriptor describes one column of the file.
type Descriptor struct {
	Type        column.Type
	Encoding    column.Encoding
	Compression compression.Type
	Level       int32
}

// ColumnHeader locates one values or nulls payload of a row group.
type ColumnHeader struct {
	Size             uint64
	DecompressedSize uint64
	Offset           uint64
	Index            column.Index
}

// RowGroupHeader locates a row group's payloads. Its column headers start at
// Offset+Size.
type RowGroupHeader struct {
	Size   uint64
	Offset uint64
}

// Footer is the fixed-size trailer.
type Footer struct {
	RowGroups uint32
	Columns   uint32
	Rows      uint64
	Magic     uint64
}

func align(n uint64) uint64 {
	return (n + alignment - 1) &^ (alignment - 1)
}

func (d Descriptor) appendBinary(buf []byte) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(d.Type))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(d.Encoding))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(d.Compression))
	return binary.LittleEndian.AppendUint32(buf, uint32(d.Level))
}

func decodeDescriptor(buf []byte) (Descriptor, error) {
	d := Descriptor{
		Type:        column.Type(binary.LittleEndian.Uint32(buf)),
		Encoding:    column.Encoding(binary.LittleEndian.Uint32(buf[4:])),
		Compression: compression.Type(binary.LittleEndian.Uint32(buf[8:])),
		Level:       int32(binary.LittleEndian.Uint32(buf[12:])),
	}
	if !d.Type.Valid() || !d.Encoding.Valid() || !d.Compression.Valid() {
		return Descriptor{}, errors.Newf(errors.ErrorTypeCorrupt, "unsupported column descriptor %s/%s/%s",
			d.Type, d.Encoding, d.Compression)
	}
	return d, nil
}

func (h ColumnHeader) appendBinary(buf []byte) []byte {
	buf = binary.LittleEndian.AppendUint64(buf, h.Size)
	buf = binary.LittleEndian.AppendUint64(buf, h.DecompressedSize)
	buf = binary.LittleEndian.AppendUint64(buf, h.Offset)
	return h.Index.AppendBinary(buf)
}

func decodeColumnHeader(t column.Type, buf []byte) (ColumnHeader, error) {
	ix, err := column.DecodeIndex(t, buf[24:])
	if err != nil {
		return ColumnHeader{}, errors.Wrap(err, errors.ErrorTypeCorrupt, "decode column index")
	}
	return ColumnHeader{
		Size:             binary.LittleEndian.Uint64(buf),
		DecompressedSize: binary.LittleEndian.Uint64(buf[8:]),
		Offset:           binary.LittleEndian.Uint64(buf[16:]),
		Index:            ix,
	}, nil
}

func (h RowGroupHeader) appendBinary(buf []byte) []byte {
	buf = binary.LittleEndian.AppendUint64(buf, h.Size)
	return binary.LittleEndian.AppendUint64(buf, h.Offset)
}

func decodeRowGroupHeader(buf []byte) RowGroupHeader {
	return RowGroupHeader{
		Size:   binary.LittleEndian.Uint64(buf),
		Offset: binary.LittleEndian.Uint64(buf[8:]),
	}
}

func (f Footer) appendBinary(buf []byte) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, f.RowGroups)
	buf = binary.LittleEndian.AppendUint32(buf, f.Columns)
	buf = binary.LittleEndian.AppendUint64(buf, f.Rows)
	return binary.LittleEndian.AppendUint64(buf, f.Magic)
}

func decodeFooter(buf []byte) Footer {
	return Footer{
		RowGroups: binary.LittleEndian.Uint32(buf),
		Columns:   binary.LittleEndian.Uint32(buf[4:]),
		Rows:      binary.LittleEndian.Uint64(buf[8:]),
		Magic:     binary.LittleEndian.Uint64(buf[16:]),
	}
}
