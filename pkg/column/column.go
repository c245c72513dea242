package column

import (
	"encoding/binary"
	"math"

	"github.com/ajitpratap0/strata/pkg/errors"
)

var (
	// ErrImmutable is returned by Put on a column that wraps borrowed memory.
	ErrImmutable = errors.New(errors.ErrorTypeState, "column is immutable")
	// ErrTypeMismatch is returned when a typed operation targets a column of
	// another type.
	ErrTypeMismatch = errors.New(errors.ErrorTypeSchema, "column type mismatch")
	// ErrCorrupt is returned when encoded bytes do not match the column metadata.
	ErrCorrupt = errors.New(errors.ErrorTypeCorrupt, "corrupt column data")
	// ErrClosed is returned by operations on a closed column.
	ErrClosed = errors.New(errors.ErrorTypeState, "column is closed")
)

// Releaser is held by a column that borrows memory it does not own, such as a
// region of a memory-mapped file. Release is called exactly once when the
// column is closed.
type Releaser interface {
	Release() error
}

// Column is an append-only typed buffer with an incrementally maintained
// zone-map index. A Column is not safe for concurrent mutation.
type Column struct {
	typ       Type
	enc       Encoding
	data      []byte
	index     Index
	immutable bool
	borrow    Releaser
	closed    bool
}

// New returns an empty mutable column that owns its buffer.
func New(t Type, enc Encoding) *Column {
	return &Column{
		typ:   t,
		enc:   enc,
		index: EmptyIndex(t),
	}
}

// Wrap returns an immutable column over borrowed bytes, typically a slice of
// a memory-mapped file. The column takes over the caller's reference: borrow
// (which may be nil) is released when the column is closed. The index is
// trusted as stored.
func Wrap(t Type, enc Encoding, data []byte, index Index, borrow Releaser) (*Column, error) {
	if err := checkSize(t, data, index.Count); err != nil {
		return nil, err
	}
	return &Column{
		typ:       t,
		enc:       enc,
		data:      data,
		index:     index,
		immutable: true,
		borrow:    borrow,
	}, nil
}

// NewOwned returns a mutable column that takes ownership of data, typically a
// freshly decompressed buffer. Further puts append after the existing values.
func NewOwned(t Type, enc Encoding, data []byte, index Index) (*Column, error) {
	if err := checkSize(t, data, index.Count); err != nil {
		return nil, err
	}
	if t == Bit {
		// Appends address bits by row; drop trailing words past the last row.
		data = data[:bitWords(index.Count)*8]
	}
	return &Column{
		typ:   t,
		enc:   enc,
		data:  data,
		index: index,
	}, nil
}

// Import returns an immutable column over data holding count values and
// computes its index with a single scan.
func Import(t Type, enc Encoding, data []byte, count uint64) (*Column, error) {
	if err := checkSize(t, data, count); err != nil {
		return nil, err
	}
	c := &Column{typ: t, enc: enc, data: data, index: EmptyIndex(t), immutable: true}
	ix, err := scanIndex(c, count)
	if err != nil {
		return nil, err
	}
	c.index = ix
	return c, nil
}

func bitWords(count uint64) uint64 {
	return (count + 63) / 64
}

func checkSize(t Type, data []byte, count uint64) error {
	if !t.Valid() {
		return errors.Newf(errors.ErrorTypeSchema, "unknown column type %d", uint32(t))
	}
	// Compare against the number of values data can hold; count is read from
	// disk and multiplying it may wrap.
	n := uint64(len(data))
	var fits uint64
	switch t {
	case Bit:
		fits = n / 8 * 64
	case Str:
		fits = n / 4
	default:
		fits = n / uint64(t.Width())
	}
	if count > fits {
		return errors.Wrap(ErrCorrupt, errors.ErrorTypeCorrupt, "column buffer too short").
			WithDetail("type", t.String()).
			WithDetail("count", count).
			WithDetail("size", len(data))
	}
	return nil
}

// PayloadBounds returns the smallest and largest encoded size of a column of
// type t described by ix. Str bounds follow from the length zone map. ok is
// false when the index cannot describe any real column, such as a count whose
// encoding would not fit in 64 bits.
func PayloadBounds(t Type, ix Index) (lo, hi uint64, ok bool) {
	if !t.Valid() {
		return 0, 0, false
	}
	per := func(width uint64) (uint64, bool) {
		if width != 0 && ix.Count > math.MaxUint64/width {
			return 0, false
		}
		return ix.Count * width, true
	}
	switch t {
	case Bit:
		size := bitWords(ix.Count) * 8
		if ix.Count > math.MaxUint64-63 {
			size = (math.MaxUint64/64 + 1) * 8
		}
		return size, size, true
	case Str:
		if ix.Count == 0 {
			return 0, 0, true
		}
		minLen, maxLen := ix.Min.I64(), ix.Max.I64()
		if minLen < 0 || minLen > maxLen || maxLen > math.MaxUint32 {
			return 0, 0, false
		}
		if lo, ok = per(4 + uint64(minLen)); !ok {
			return 0, 0, false
		}
		hi, ok = per(4 + uint64(maxLen))
		return lo, hi, ok
	default:
		size, ok := per(uint64(t.Width()))
		return size, size, ok
	}
}

// CheckPayload reports whether size bytes can encode the column ix
// describes.
func CheckPayload(t Type, ix Index, size uint64) error {
	lo, hi, ok := PayloadBounds(t, ix)
	if !ok || size < lo || size > hi {
		return errors.Wrap(ErrCorrupt, errors.ErrorTypeCorrupt, "payload size does not match zone map").
			WithDetail("type", t.String()).
			WithDetail("count", ix.Count).
			WithDetail("size", size)
	}
	return nil
}

func scanIndex(c *Column, count uint64) (Index, error) {
	ix := EmptyIndex(c.typ)
	cur := newCursor(c, count)
	for cur.Valid() {
		switch c.typ {
		case Bit:
			batch, err := cur.NextBatchBit()
			if err != nil {
				return Index{}, err
			}
			for _, v := range batch {
				ix.observeBit(v)
			}
		case I32:
			batch, err := cur.NextBatchI32()
			if err != nil {
				return Index{}, err
			}
			for _, v := range batch {
				ix.observeInt(I32, int64(v))
			}
		case I64:
			batch, err := cur.NextBatchI64()
			if err != nil {
				return Index{}, err
			}
			for _, v := range batch {
				ix.observeInt(I64, v)
			}
		case Flt:
			batch, err := cur.NextBatchFlt()
			if err != nil {
				return Index{}, err
			}
			for _, v := range batch {
				ix.observeFloat(Flt, float64(v))
			}
		case Dbl:
			batch, err := cur.NextBatchDbl()
			if err != nil {
				return Index{}, err
			}
			for _, v := range batch {
				ix.observeFloat(Dbl, v)
			}
		case Str:
			batch, err := cur.NextBatchStr()
			if err != nil {
				return Index{}, err
			}
			for _, v := range batch {
				ix.observeLen(len(v))
			}
		}
	}
	if err := cur.Err(); err != nil {
		return Index{}, err
	}
	return ix, nil
}

// Type returns the element type.
func (c *Column) Type() Type { return c.typ }

// Encoding returns the encoding tag.
func (c *Column) Encoding() Encoding { return c.enc }

// Index returns the zone map.
func (c *Column) Index() Index { return c.index }

// Len returns the number of values.
func (c *Column) Len() uint64 { return c.index.Count }

// Immutable reports whether puts are rejected.
func (c *Column) Immutable() bool { return c.immutable }

// Export returns the encoded buffer without copying. The slice must not be
// modified and is invalidated by the next put.
func (c *Column) Export() []byte { return c.data }

// Payload returns the encoded bytes of the column's values, dropping any
// trailing bytes a wrapped or imported buffer carries past the last value.
func (c *Column) Payload() []byte {
	n := uint64(len(c.data))
	switch c.typ {
	case Bit:
		n = bitWords(c.index.Count) * 8
	case Str:
		var off uint64
		for i := uint64(0); i < c.index.Count && off+4 <= n; i++ {
			off += 4 + uint64(binary.LittleEndian.Uint32(c.data[off:]))
		}
		n = min(off, n)
	default:
		n = c.index.Count * uint64(c.typ.Width())
	}
	return c.data[:min(n, uint64(len(c.data)))]
}

// Close releases borrowed memory. Closing twice is a no-op.
func (c *Column) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.data = nil
	if c.borrow != nil {
		b := c.borrow
		c.borrow = nil
		return b.Release()
	}
	return nil
}

func (c *Column) checkPut(t Type) error {
	switch {
	case c.closed:
		return ErrClosed
	case c.immutable:
		return ErrImmutable
	case c.typ != t:
		return errors.Wrap(ErrTypeMismatch, errors.ErrorTypeSchema, "put "+t.String()+" into "+c.typ.String()+" column")
	}
	return nil
}

// PutBit appends a boolean to a Bit column.
func (c *Column) PutBit(v bool) error {
	if err := c.checkPut(Bit); err != nil {
		return err
	}
	row := c.index.Count
	if row%64 == 0 {
		c.data = append(c.data, 0, 0, 0, 0, 0, 0, 0, 0)
	}
	if v {
		word := c.data[(row/64)*8:]
		binary.LittleEndian.PutUint64(word, binary.LittleEndian.Uint64(word)|1<<(row%64))
	}
	c.index.observeBit(v)
	return nil
}

// PutI32 appends to an I32 column.
func (c *Column) PutI32(v int32) error {
	if err := c.checkPut(I32); err != nil {
		return err
	}
	c.data = binary.LittleEndian.AppendUint32(c.data, uint32(v))
	c.index.observeInt(I32, int64(v))
	return nil
}

// PutI64 appends to an I64 column.
func (c *Column) PutI64(v int64) error {
	if err := c.checkPut(I64); err != nil {
		return err
	}
	c.data = binary.LittleEndian.AppendUint64(c.data, uint64(v))
	c.index.observeInt(I64, v)
	return nil
}

// PutFlt appends to a Flt column.
func (c *Column) PutFlt(v float32) error {
	if err := c.checkPut(Flt); err != nil {
		return err
	}
	c.data = binary.LittleEndian.AppendUint32(c.data, math.Float32bits(v))
	c.index.observeFloat(Flt, float64(v))
	return nil
}

// PutDbl appends to a Dbl column.
func (c *Column) PutDbl(v float64) error {
	if err := c.checkPut(Dbl); err != nil {
		return err
	}
	c.data = binary.LittleEndian.AppendUint64(c.data, math.Float64bits(v))
	c.index.observeFloat(Dbl, v)
	return nil
}

// PutStr appends to a Str column.
func (c *Column) PutStr(v string) error {
	if err := c.checkPut(Str); err != nil {
		return err
	}
	if uint64(len(v)) > math.MaxUint32 {
		return errors.New(errors.ErrorTypeValidation, "string longer than 4GiB")
	}
	c.data = binary.LittleEndian.AppendUint32(c.data, uint32(len(v)))
	c.data = append(c.data, v...)
	c.index.observeLen(len(v))
	return nil
}

// Put appends a tagged value, dispatching on its type.
func (c *Column) Put(v Value) error {
	switch v.typ {
	case Bit:
		return c.PutBit(v.b)
	case I32:
		return c.PutI32(int32(v.i))
	case I64:
		return c.PutI64(v.i)
	case Flt:
		return c.PutFlt(float32(v.f))
	case Dbl:
		return c.PutDbl(v.f)
	case Str:
		return c.PutStr(v.s)
	}
	return errors.Newf(errors.ErrorTypeSchema, "unknown value type %d", uint32(v.typ))
}
