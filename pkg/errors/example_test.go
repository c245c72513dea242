// Package errors provides examples of structured error handling in strata.
package errors_test

import (
	"fmt"
	"io"

	"github.com/ajitpratap0/strata/pkg/errors"
)

// Example demonstrates basic error creation.
func Example() {
	err := errors.New(errors.ErrorTypeCorrupt, "bad footer magic").
		WithDetail("path", "data.rg").
		WithDetail("offset", 4096)

	fmt.Println(err.Error())

	// Output:
	// corrupt: bad footer magic
}

// ExampleWrap shows how to wrap existing errors with context.
func ExampleWrap() {
	err := errors.Wrap(io.ErrUnexpectedEOF, errors.ErrorTypeCompression, "zstd payload truncated").
		WithDetail("column", 3)

	if errors.IsType(err, errors.ErrorTypeCompression) {
		fmt.Println("This is a codec error")
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		fmt.Println("Cause was unexpected EOF")
	}

	// Output:
	// This is a codec error
	// Cause was unexpected EOF
}

// ExampleIsType demonstrates that the type check walks the cause chain.
func ExampleIsType() {
	inner := errors.New(errors.ErrorTypeSchema, "row count mismatch")
	outer := errors.Wrap(inner, errors.ErrorTypeState, "add row group failed")

	fmt.Println(errors.IsType(outer, errors.ErrorTypeSchema))
	fmt.Println(errors.IsType(outer, errors.ErrorTypeFile))

	// Output:
	// true
	// false
}
