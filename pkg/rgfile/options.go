package rgfile

import (
	"go.uber.org/zap"

	"github.com/ajitpratap0/strata/pkg/metrics"
	"github.com/ajitpratap0/strata/pkg/mmap"
)

type options struct {
	logger  *zap.Logger
	metrics *metrics.Collector
	advice  mmap.Advice
}

// Option configures a Writer or Reader.
type Option func(*options)

func buildOptions(opts []Option) options {
	o := options{logger: zap.NewNop(), advice: mmap.Normal}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics records writes, scans and materializations on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(o *options) {
		o.metrics = c
	}
}

// WithAdvice hints the kernel about the reader's access pattern: sequential
// for full scans, random for point lookups. Writers ignore it.
func WithAdvice(sequential bool) Option {
	return func(o *options) {
		if sequential {
			o.advice = mmap.Sequential
		} else {
			o.advice = mmap.Random
		}
	}
}
