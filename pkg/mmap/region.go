// Package mmap provides read-only, reference-counted memory mappings of files.
//
// A Region starts with one reference held by whoever opened it. Each borrower
// of the mapped bytes (for example a column wrapping a slice of the file)
// takes its own reference with Acquire and drops it with Release. The mapping
// is removed when the last reference is released, so borrowed slices stay
// valid for as long as their holder keeps its reference.
package mmap

import (
	"os"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/ajitpratap0/strata/pkg/errors"
)

// ErrReleased is returned when acquiring or releasing a region whose mapping
// has already been removed.
var ErrReleased = errors.New(errors.ErrorTypeState, "mmap region released")

// Advice is an access pattern hint passed to the kernel.
type Advice int

const (
	// Normal removes any previous hint
	Normal Advice = iota
	// Sequential expects reads in ascending order
	Sequential
	// Random expects scattered reads
	Random
	// WillNeed asks the kernel to read ahead
	WillNeed
)

// Region is a read-only mapping of a whole file.
type Region struct {
	path   string
	data   []byte
	refs   atomic.Int64
	logger *zap.Logger
}

// Option configures a Region.
type Option func(*Region)

// WithLogger sets the logger used for map/unmap events.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Region) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Open maps path read-only. The returned region holds one reference. An empty
// file yields a region with no bytes.
func Open(path string, opts ...Option) (*Region, error) {
	r := &Region{path: path, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to open file").WithDetail("path", path)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to stat file").WithDetail("path", path)
	}
	size := stat.Size()
	if size > 0 {
		if int64(int(size)) != size {
			return nil, errors.New(errors.ErrorTypeFile, "file too large to map").WithDetail("size", size)
		}
		data, err := mmap(int(file.Fd()), int(size))
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to mmap file").WithDetail("path", path)
		}
		r.data = data
	}
	r.refs.Store(1)
	r.logger.Debug("mapped file", zap.String("path", path), zap.Int64("size", size))
	return r, nil
}

// Path returns the mapped file's path.
func (r *Region) Path() string { return r.path }

// Len returns the mapped size in bytes.
func (r *Region) Len() int { return len(r.data) }

// Bytes returns the whole mapping. The slice is valid while the caller holds
// a reference and must not be written to.
func (r *Region) Bytes() []byte { return r.data }

// Slice returns data[off:off+n] after checking bounds.
func (r *Region) Slice(off, n uint64) ([]byte, error) {
	size := uint64(len(r.data))
	if off > size || n > size-off {
		return nil, errors.Newf(errors.ErrorTypeCorrupt, "range [%d, +%d) outside mapping of %d bytes", off, n, size)
	}
	return r.data[off : off+n : off+n], nil
}

// Refs returns the current reference count.
func (r *Region) Refs() int64 { return r.refs.Load() }

// Acquire takes an additional reference.
func (r *Region) Acquire() error {
	for {
		n := r.refs.Load()
		if n <= 0 {
			return ErrReleased
		}
		if r.refs.CompareAndSwap(n, n+1) {
			return nil
		}
	}
}

// Release drops a reference and unmaps the file when none remain.
func (r *Region) Release() error {
	for {
		n := r.refs.Load()
		if n <= 0 {
			return ErrReleased
		}
		if !r.refs.CompareAndSwap(n, n-1) {
			continue
		}
		if n > 1 {
			return nil
		}
		data := r.data
		r.data = nil
		r.logger.Debug("unmapped file", zap.String("path", r.path))
		if data == nil {
			return nil
		}
		if err := munmap(data); err != nil {
			return errors.Wrap(err, errors.ErrorTypeFile, "failed to munmap file").WithDetail("path", r.path)
		}
		return nil
	}
}

// Advise passes an access pattern hint for the whole mapping. Failures are
// returned but the mapping stays usable.
func (r *Region) Advise(a Advice) error {
	if len(r.data) == 0 {
		return nil
	}
	if err := madvise(r.data, a); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "madvise failed").WithDetail("advice", int(a))
	}
	return nil
}
