package column

import (
	"encoding/binary"
	"fmt"
	"math"
)

// IndexSize is the encoded size of an Index.
const IndexSize = 24

// Index is the zone map of a column: the number of values and type-specific
// bounds.
//
//	Bit      Min is the AND of all values, Max the OR
//	I32/I64  numeric bounds
//	Flt/Dbl  numeric bounds; a NaN widens them to [-Inf, +Inf]
//	Str      Min and Max are I64 values holding byte lengths
//
// Str bounds are lengths only, so they can prune equality and containment by
// length but never order comparisons.
type Index struct {
	Count uint64
	Min   Value
	Max   Value
}

// EmptyIndex returns the index of a column with no values.
func EmptyIndex(t Type) Index {
	bound := zeroBound(t)
	return Index{Min: bound, Max: bound}
}

func zeroBound(t Type) Value {
	if t == Str {
		return I64Value(0)
	}
	return Value{typ: t}
}

// AppendBinary appends the 24-byte encoding {u64 count, u64 min, u64 max}.
func (ix Index) AppendBinary(buf []byte) []byte {
	buf = binary.LittleEndian.AppendUint64(buf, ix.Count)
	buf = binary.LittleEndian.AppendUint64(buf, ix.Min.bits())
	buf = binary.LittleEndian.AppendUint64(buf, ix.Max.bits())
	return buf
}

// DecodeIndex decodes an index of a column of type t.
func DecodeIndex(t Type, buf []byte) (Index, error) {
	if len(buf) < IndexSize {
		return Index{}, fmt.Errorf("column index needs %d bytes, have %d", IndexSize, len(buf))
	}
	ix := Index{Count: binary.LittleEndian.Uint64(buf)}
	minBits := binary.LittleEndian.Uint64(buf[8:])
	maxBits := binary.LittleEndian.Uint64(buf[16:])
	if t == Str {
		ix.Min = I64Value(int64(minBits))
		ix.Max = I64Value(int64(maxBits))
	} else {
		ix.Min = valueFromBits(t, minBits)
		ix.Max = valueFromBits(t, maxBits)
	}
	return ix, nil
}

func (ix *Index) observeBit(v bool) {
	if ix.Count == 0 {
		ix.Min, ix.Max = BoolValue(v), BoolValue(v)
	} else {
		ix.Min.b = ix.Min.b && v
		ix.Max.b = ix.Max.b || v
	}
	ix.Count++
}

func (ix *Index) observeInt(t Type, v int64) {
	if ix.Count == 0 {
		ix.Min = Value{typ: t, i: v}
		ix.Max = ix.Min
	} else {
		if v < ix.Min.i {
			ix.Min.i = v
		}
		if v > ix.Max.i {
			ix.Max.i = v
		}
	}
	ix.Count++
}

func (ix *Index) observeFloat(t Type, v float64) {
	if math.IsNaN(v) {
		ix.Min = Value{typ: t, f: math.Inf(-1)}
		ix.Max = Value{typ: t, f: math.Inf(1)}
	} else if ix.Count == 0 {
		ix.Min = Value{typ: t, f: v}
		ix.Max = ix.Min
	} else {
		if v < ix.Min.f {
			ix.Min.f = v
		}
		if v > ix.Max.f {
			ix.Max.f = v
		}
	}
	ix.Count++
}

func (ix *Index) observeLen(n int) {
	ix.observeInt(I64, int64(n))
}
