// Package errors provides structured error handling for strata.
//
// Errors carry an ErrorType that classifies the failure the way the storage
// engine reports it: I/O failures, corrupt files, schema mismatches, invalid
// predicates, codec failures and call-order violations. Package-level
// sentinels (column.ErrImmutable, rgfile.ErrFinished, ...) are wrapped as the
// Cause so callers can keep using errors.Is.
package errors

import (
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeInternal represents internal invariant violations
	ErrorTypeInternal ErrorType = "internal"
	// ErrorTypeValidation represents invalid arguments or predicates
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeFile represents open/stat/mmap/write/fsync failures
	ErrorTypeFile ErrorType = "file"
	// ErrorTypeCorrupt represents malformed on-disk data
	ErrorTypeCorrupt ErrorType = "corrupt"
	// ErrorTypeSchema represents row count, type or encoding mismatches
	ErrorTypeSchema ErrorType = "schema"
	// ErrorTypeCompression represents codec failures
	ErrorTypeCompression ErrorType = "compression"
	// ErrorTypeState represents operations issued in the wrong order
	ErrorTypeState ErrorType = "state"
)

// Error is a classified error with optional key/value details such as the
// file path, row group or column it concerns.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail records key=value on e and returns e.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// MarshalLogObject writes the type, message and details of every *Error in
// the chain, outermost first, so details added at different layers all reach
// the log line.
func (e *Error) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("type", string(e.Type))
	enc.AddString("message", e.Message)
	for err := error(e); err != nil; err = errors.Unwrap(err) {
		se, ok := err.(*Error)
		if !ok {
			continue
		}
		keys := make([]string, 0, len(se.Details))
		for k := range se.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if err := enc.AddReflected(k, se.Details[k]); err != nil {
				return err
			}
		}
	}
	return nil
}

// New creates a new error with the given type and message
func New(errType ErrorType, message string) *Error {
	return &Error{Type: errType, Message: message}
}

// Newf creates a new error with a formatted message
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{Type: errType, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err. It returns nil when err is nil.
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Type: errType, Message: message, Cause: err}
}

// IsType checks if any error in the chain is of the given type
func IsType(err error, errType ErrorType) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Type == errType {
			return true
		}
		err = e.Cause
	}
	return false
}

// TypeOf returns the type of the outermost *Error in err's chain, or
// ErrorTypeInternal when there is none.
func TypeOf(err error) ErrorType {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeInternal
}

// Field returns a zap field for err. Structured errors are logged as an
// object carrying their details; anything else falls back to zap.Error.
func Field(err error) zap.Field {
	var e *Error
	if errors.As(err, &e) {
		return zap.Object("error", e)
	}
	return zap.Error(err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
