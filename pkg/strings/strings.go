// Package strings provides zero-copy string conversion for strata.
//
// String columns hand out views over their encoded bytes, which may live in a
// memory-mapped file. Callers that need to keep a value beyond the lifetime of
// its column must copy it (strings.Clone from the standard library).
package strings

import "unsafe"

// BytesToString converts byte slice to string without allocation
// WARNING: The returned string shares memory with the byte slice.
// Do not modify the byte slice after calling this function.
func BytesToString(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return unsafe.String(unsafe.SliceData(b), len(b))
}
