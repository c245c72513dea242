// Package match implements the comparison kernels used to filter 64-row
// batches. Every kernel returns a bitmask in which bit i is set iff the i-th
// value satisfies the comparison. Inputs longer than 64 values are truncated;
// bits at or above len(values) are never set.
//
// Two implementations exist for the numeric kernels: a plain loop and an
// eight-lane unrolled loop that the compiler lowers to branch-free compares.
// The unrolled path is selected at init when the CPU has wide vector units.
// Both produce identical masks.
package match

import (
	"golang.org/x/sys/cpu"
)

// Width is the maximum number of values evaluated per call.
const Width = 64

type number interface {
	~int32 | ~int64 | ~float32 | ~float64
}

var (
	eqBit func([]bool, bool) uint64
	eqI32 func([]int32, int32) uint64
	ltI32 func([]int32, int32) uint64
	gtI32 func([]int32, int32) uint64
	eqI64 func([]int64, int64) uint64
	ltI64 func([]int64, int64) uint64
	gtI64 func([]int64, int64) uint64
	eqFlt func([]float32, float32) uint64
	ltFlt func([]float32, float32) uint64
	gtFlt func([]float32, float32) uint64
	eqDbl func([]float64, float64) uint64
	ltDbl func([]float64, float64) uint64
	gtDbl func([]float64, float64) uint64

	vectorized bool
)

func init() {
	SetVectorized(cpu.X86.HasAVX2 || cpu.ARM64.HasASIMD)
}

// SetVectorized selects the unrolled kernels when on is true and the plain
// loops otherwise.
func SetVectorized(on bool) {
	vectorized = on
	if on {
		eqBit = eqBitWide
		eqI32, ltI32, gtI32 = eqWide[int32], ltWide[int32], gtWide[int32]
		eqI64, ltI64, gtI64 = eqWide[int64], ltWide[int64], gtWide[int64]
		eqFlt, ltFlt, gtFlt = eqWide[float32], ltWide[float32], gtWide[float32]
		eqDbl, ltDbl, gtDbl = eqWide[float64], ltWide[float64], gtWide[float64]
		return
	}
	eqBit = eqBitPure
	eqI32, ltI32, gtI32 = eqPure[int32], ltPure[int32], gtPure[int32]
	eqI64, ltI64, gtI64 = eqPure[int64], ltPure[int64], gtPure[int64]
	eqFlt, ltFlt, gtFlt = eqPure[float32], ltPure[float32], gtPure[float32]
	eqDbl, ltDbl, gtDbl = eqPure[float64], ltPure[float64], gtPure[float64]
}

// Vectorized reports whether the unrolled kernels are active.
func Vectorized() bool {
	return vectorized
}

// Mask returns a mask with the low n bits set.
func Mask(n int) uint64 {
	if n >= Width {
		return ^uint64(0)
	}
	if n <= 0 {
		return 0
	}
	return 1<<uint(n) - 1
}

// Numeric and boolean kernels. Floats use IEEE comparison, so NaN never
// matches Eq, Lt or Gt.

// EqBit sets bit i when xs[i] is equal to v.
func EqBit(xs []bool, v bool) uint64 { return eqBit(clip(xs), v) }

// EqI32 sets bit i when xs[i] is equal to v.
func EqI32(xs []int32, v int32) uint64 { return eqI32(clip(xs), v) }

// LtI32 sets bit i when xs[i] is less than v.
func LtI32(xs []int32, v int32) uint64 { return ltI32(clip(xs), v) }

// GtI32 sets bit i when xs[i] is greater than v.
func GtI32(xs []int32, v int32) uint64 { return gtI32(clip(xs), v) }

// EqI64 sets bit i when xs[i] is equal to v.
func EqI64(xs []int64, v int64) uint64 { return eqI64(clip(xs), v) }

// LtI64 sets bit i when xs[i] is less than v.
func LtI64(xs []int64, v int64) uint64 { return ltI64(clip(xs), v) }

// GtI64 sets bit i when xs[i] is greater than v.
func GtI64(xs []int64, v int64) uint64 { return gtI64(clip(xs), v) }

// EqFlt sets bit i when xs[i] is equal to v.
func EqFlt(xs []float32, v float32) uint64 { return eqFlt(clip(xs), v) }

// LtFlt sets bit i when xs[i] is less than v.
func LtFlt(xs []float32, v float32) uint64 { return ltFlt(clip(xs), v) }

// GtFlt sets bit i when xs[i] is greater than v.
func GtFlt(xs []float32, v float32) uint64 { return gtFlt(clip(xs), v) }

// EqDbl sets bit i when xs[i] is equal to v.
func EqDbl(xs []float64, v float64) uint64 { return eqDbl(clip(xs), v) }

// LtDbl sets bit i when xs[i] is less than v.
func LtDbl(xs []float64, v float64) uint64 { return ltDbl(clip(xs), v) }

// GtDbl sets bit i when xs[i] is greater than v.
func GtDbl(xs []float64, v float64) uint64 { return gtDbl(clip(xs), v) }

func clip[T any](xs []T) []T {
	if len(xs) > Width {
		return xs[:Width]
	}
	return xs
}

func b2u(b bool) uint64 {
	var r uint64
	if b {
		r = 1
	}
	return r
}

func eqBitPure(xs []bool, v bool) uint64 {
	var m uint64
	for i, x := range xs {
		if x == v {
			m |= 1 << uint(i)
		}
	}
	return m
}

func eqPure[T number](xs []T, v T) uint64 {
	var m uint64
	for i, x := range xs {
		if x == v {
			m |= 1 << uint(i)
		}
	}
	return m
}

func ltPure[T number](xs []T, v T) uint64 {
	var m uint64
	for i, x := range xs {
		if x < v {
			m |= 1 << uint(i)
		}
	}
	return m
}

func gtPure[T number](xs []T, v T) uint64 {
	var m uint64
	for i, x := range xs {
		if x > v {
			m |= 1 << uint(i)
		}
	}
	return m
}

func eqBitWide(xs []bool, v bool) uint64 {
	var m uint64
	i := 0
	for ; i+8 <= len(xs); i += 8 {
		x := xs[i : i+8 : i+8]
		m |= (b2u(x[0] == v) |
			b2u(x[1] == v)<<1 |
			b2u(x[2] == v)<<2 |
			b2u(x[3] == v)<<3 |
			b2u(x[4] == v)<<4 |
			b2u(x[5] == v)<<5 |
			b2u(x[6] == v)<<6 |
			b2u(x[7] == v)<<7) << uint(i)
	}
	for ; i < len(xs); i++ {
		m |= b2u(xs[i] == v) << uint(i)
	}
	return m
}

func eqWide[T number](xs []T, v T) uint64 {
	var m uint64
	i := 0
	for ; i+8 <= len(xs); i += 8 {
		x := xs[i : i+8 : i+8]
		m |= (b2u(x[0] == v) |
			b2u(x[1] == v)<<1 |
			b2u(x[2] == v)<<2 |
			b2u(x[3] == v)<<3 |
			b2u(x[4] == v)<<4 |
			b2u(x[5] == v)<<5 |
			b2u(x[6] == v)<<6 |
			b2u(x[7] == v)<<7) << uint(i)
	}
	for ; i < len(xs); i++ {
		m |= b2u(xs[i] == v) << uint(i)
	}
	return m
}

func ltWide[T number](xs []T, v T) uint64 {
	var m uint64
	i := 0
	for ; i+8 <= len(xs); i += 8 {
		x := xs[i : i+8 : i+8]
		m |= (b2u(x[0] < v) |
			b2u(x[1] < v)<<1 |
			b2u(x[2] < v)<<2 |
			b2u(x[3] < v)<<3 |
			b2u(x[4] < v)<<4 |
			b2u(x[5] < v)<<5 |
			b2u(x[6] < v)<<6 |
			b2u(x[7] < v)<<7) << uint(i)
	}
	for ; i < len(xs); i++ {
		m |= b2u(xs[i] < v) << uint(i)
	}
	return m
}

func gtWide[T number](xs []T, v T) uint64 {
	var m uint64
	i := 0
	for ; i+8 <= len(xs); i += 8 {
		x := xs[i : i+8 : i+8]
		m |= (b2u(x[0] > v) |
			b2u(x[1] > v)<<1 |
			b2u(x[2] > v)<<2 |
			b2u(x[3] > v)<<3 |
			b2u(x[4] > v)<<4 |
			b2u(x[5] > v)<<5 |
			b2u(x[6] > v)<<6 |
			b2u(x[7] > v)<<7) << uint(i)
	}
	for ; i < len(xs); i++ {
		m |= b2u(xs[i] > v) << uint(i)
	}
	return m
}
