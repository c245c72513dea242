// Package column implements the typed, append-only column buffers stored in
// row groups, their zone-map indexes and the batch cursors that decode them.
//
// Encodings are little-endian:
//
//	Bit  bit-packed into 64-bit words, row r at word r/64, bit r%64
//	I32  4 bytes per value
//	I64  8 bytes per value
//	Flt  4 bytes per value (IEEE 754 binary32)
//	Dbl  8 bytes per value (IEEE 754 binary64)
//	Str  u32 byte length followed by the bytes
package column

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// BatchSize is the number of rows decoded per cursor batch. It matches the
// width of the uint64 match bitmask.
const BatchSize = 64

// Type is the element type of a column.
type Type uint32

const (
	Bit Type = iota
	I32
	I64
	Flt
	Dbl
	Str
)

var typeNames = [...]string{"bit", "i32", "i64", "flt", "dbl", "str"}

func (t Type) String() string {
	if t.Valid() {
		return typeNames[t]
	}
	return "type(" + strconv.FormatUint(uint64(t), 10) + ")"
}

// Valid reports whether t is a known column type.
func (t Type) Valid() bool {
	return t <= Str
}

// Width returns the encoded size of one value for fixed-width types, and 0
// for Bit and Str.
func (t Type) Width() int {
	switch t {
	case I32, Flt:
		return 4
	case I64, Dbl:
		return 8
	default:
		return 0
	}
}

// ParseType parses a type name as printed by Type.String.
func ParseType(s string) (Type, error) {
	for i, name := range typeNames {
		if strings.EqualFold(s, name) {
			return Type(i), nil
		}
	}
	switch strings.ToLower(s) {
	case "bool":
		return Bit, nil
	case "int32":
		return I32, nil
	case "int64":
		return I64, nil
	case "float", "float32":
		return Flt, nil
	case "double", "float64":
		return Dbl, nil
	case "string":
		return Str, nil
	}
	return 0, fmt.Errorf("unknown column type %q", s)
}

// Encoding identifies how values are laid out in the column buffer. Only the
// identity encoding exists; the field is reserved for dictionary and RLE.
type Encoding uint32

const (
	Identity Encoding = iota
)

func (e Encoding) String() string {
	if e == Identity {
		return "identity"
	}
	return "encoding(" + strconv.FormatUint(uint64(e), 10) + ")"
}

// Valid reports whether e is a known encoding.
func (e Encoding) Valid() bool {
	return e == Identity
}

// Value is a tagged scalar. The tag is the type of the column the value
// belongs to or is compared against.
type Value struct {
	typ Type
	b   bool
	i   int64
	f   float64
	s   string
}

// BoolValue returns a Bit value.
func BoolValue(v bool) Value { return Value{typ: Bit, b: v} }

// I32Value returns an I32 value.
func I32Value(v int32) Value { return Value{typ: I32, i: int64(v)} }

// I64Value returns an I64 value.
func I64Value(v int64) Value { return Value{typ: I64, i: v} }

// FltValue returns a Flt value.
func FltValue(v float32) Value { return Value{typ: Flt, f: float64(v)} }

// DblValue returns a Dbl value.
func DblValue(v float64) Value { return Value{typ: Dbl, f: v} }

// StrValue returns a Str value.
func StrValue(v string) Value { return Value{typ: Str, s: v} }

// Type returns the value's tag.
func (v Value) Type() Type { return v.typ }

// Bool returns the payload of a Bit value.
func (v Value) Bool() bool { return v.b }

// I32 returns the payload of an I32 value.
func (v Value) I32() int32 { return int32(v.i) }

// I64 returns the payload of an I64 value.
func (v Value) I64() int64 { return v.i }

// Flt returns the payload of a Flt value.
func (v Value) Flt() float32 { return float32(v.f) }

// Dbl returns the payload of a Dbl value.
func (v Value) Dbl() float64 { return v.f }

// Str returns the payload of a Str value.
func (v Value) Str() string { return v.s }

// Interface returns the payload as a Go value of the natural type.
func (v Value) Interface() interface{} {
	switch v.typ {
	case Bit:
		return v.b
	case I32:
		return int32(v.i)
	case I64:
		return v.i
	case Flt:
		return float32(v.f)
	case Dbl:
		return v.f
	default:
		return v.s
	}
}

func (v Value) String() string {
	switch v.typ {
	case Bit:
		return strconv.FormatBool(v.b)
	case I32, I64:
		return strconv.FormatInt(v.i, 10)
	case Flt:
		return strconv.FormatFloat(v.f, 'g', -1, 32)
	case Dbl:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	default:
		return strconv.Quote(v.s)
	}
}

// ParseValue parses s as a value of type t.
func ParseValue(t Type, s string) (Value, error) {
	switch t {
	case Bit:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return Value{}, err
		}
		return BoolValue(b), nil
	case I32:
		n, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return Value{}, err
		}
		return I32Value(int32(n)), nil
	case I64:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Value{}, err
		}
		return I64Value(n), nil
	case Flt:
		f, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return Value{}, err
		}
		return FltValue(float32(f)), nil
	case Dbl:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Value{}, err
		}
		return DblValue(f), nil
	case Str:
		return StrValue(s), nil
	}
	return Value{}, fmt.Errorf("unknown column type %v", t)
}

// bits encodes v into the 8-byte slot used by on-disk zone maps.
func (v Value) bits() uint64 {
	switch v.typ {
	case Bit:
		if v.b {
			return 1
		}
		return 0
	case I32, I64:
		return uint64(v.i)
	case Flt:
		return uint64(math.Float32bits(float32(v.f)))
	case Dbl:
		return math.Float64bits(v.f)
	default:
		return uint64(len(v.s))
	}
}

// valueFromBits is the inverse of bits.
func valueFromBits(t Type, b uint64) Value {
	switch t {
	case Bit:
		return BoolValue(b != 0)
	case I32:
		return I32Value(int32(uint32(b)))
	case I64:
		return I64Value(int64(b))
	case Flt:
		return FltValue(math.Float32frombits(uint32(b)))
	case Dbl:
		return DblValue(math.Float64frombits(b))
	default:
		return Value{typ: t}
	}
}
