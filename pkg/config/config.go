package config

import (
	"fmt"
	"time"

	"github.com/ajitpratap0/strata/pkg/column"
	"github.com/ajitpratap0/strata/pkg/compression"
	"github.com/ajitpratap0/strata/pkg/logger"
	"github.com/ajitpratap0/strata/pkg/observability"
)

// Config is the complete strata configuration, organized into one section per
// concern.
type Config struct {
	// Writer controls how row-group files are produced
	Writer WriterConfig `yaml:"writer" json:"writer"`

	// Reader controls scans
	Reader ReaderConfig `yaml:"reader" json:"reader"`

	// Logging configures the global zap logger
	Logging logger.Config `yaml:"logging" json:"logging"`

	// Metrics configures Prometheus collection
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`

	// Tracing configures OpenTelemetry spans
	Tracing TracingConfig `yaml:"tracing" json:"tracing"`
}

// WriterConfig contains row-group file writer settings.
type WriterConfig struct {
	// Compression is the codec for every column (none, lz4, lz4hc, zstd)
	Compression string `yaml:"compression" json:"compression"`
	// Level is passed to the codec; 0 selects its default
	Level int `yaml:"level" json:"level"`
	// RowGroupSize is the number of rows per row group
	RowGroupSize int `yaml:"row_group_size" json:"row_group_size"`
	// Sync flushes the file to stable storage on finish
	Sync bool `yaml:"sync" json:"sync"`
}

// ReaderConfig contains scan settings.
type ReaderConfig struct {
	// Sequential advises the kernel that files are read front to back
	Sequential bool `yaml:"sequential" json:"sequential"`
	// CaseSensitive is the default for string comparisons in filters
	CaseSensitive bool `yaml:"case_sensitive" json:"case_sensitive"`
	// Vectorized enables the unrolled match kernels when the CPU allows
	Vectorized bool `yaml:"vectorized" json:"vectorized"`
}

// MetricsConfig contains metrics settings.
type MetricsConfig struct {
	// Enabled activates metrics collection
	Enabled bool `yaml:"enabled" json:"enabled"`
	// Component labels every series
	Component string `yaml:"component" json:"component"`
}

// TracingConfig contains tracing settings.
type TracingConfig struct {
	// Enabled installs a tracer provider
	Enabled bool `yaml:"enabled" json:"enabled"`
	// Exporter selects the span exporter (stdout or none)
	Exporter string `yaml:"exporter" json:"exporter"`
	// SampleRate controls trace sampling (0.0-1.0)
	SampleRate float64 `yaml:"sample_rate" json:"sample_rate"`
	// PrettyPrint indents exported spans
	PrettyPrint bool `yaml:"pretty_print" json:"pretty_print"`
	// BatchTimeout is the span export interval
	BatchTimeout time.Duration `yaml:"batch_timeout" json:"batch_timeout"`
}

// Default returns a configuration with production defaults.
func Default() *Config {
	return &Config{
		Writer: WriterConfig{
			Compression:  compression.LZ4.String(),
			RowGroupSize: 64 * 1024,
		},
		Reader: ReaderConfig{
			Sequential:    true,
			CaseSensitive: true,
			Vectorized:    true,
		},
		Logging: logger.DefaultConfig(),
		Metrics: MetricsConfig{
			Enabled:   true,
			Component: "strata",
		},
		Tracing: TracingConfig{
			Exporter:     "stdout",
			SampleRate:   1.0,
			BatchTimeout: time.Second,
		},
	}
}

// Validate checks that every value is usable.
func (c *Config) Validate() error {
	comp, err := c.Writer.CompressionType()
	if err != nil {
		return err
	}
	if c.Writer.Level != 0 {
		if _, err := compression.NewCodec(comp, c.Writer.Level); err != nil {
			return fmt.Errorf("writer.level: %w", err)
		}
	}
	if c.Writer.RowGroupSize <= 0 {
		return fmt.Errorf("writer.row_group_size must be positive")
	}
	if _, err := logger.New(c.Logging); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if c.Metrics.Enabled && c.Metrics.Component == "" {
		return fmt.Errorf("metrics.component is required when metrics are enabled")
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return fmt.Errorf("tracing.sample_rate must be within [0, 1]")
	}
	switch c.Tracing.Exporter {
	case "", "stdout", "none":
	default:
		return fmt.Errorf("tracing.exporter %q is not supported", c.Tracing.Exporter)
	}
	return nil
}

// CompressionType parses the configured codec.
func (w *WriterConfig) CompressionType() (compression.Type, error) {
	if w.Compression == "" {
		return compression.None, nil
	}
	return compression.ParseType(w.Compression)
}

// Descriptor returns the writer settings as a column declaration for type t.
func (w *WriterConfig) Descriptor(t column.Type) (column.Type, column.Encoding, compression.Type, int, error) {
	comp, err := w.CompressionType()
	if err != nil {
		return 0, 0, 0, 0, err
	}
	return t, column.Identity, comp, w.Level, nil
}

// Observability converts the tracing section to the tracer setup.
func (t *TracingConfig) Observability(service string) observability.TracingConfig {
	cfg := observability.DefaultTracingConfig()
	cfg.ServiceName = service
	cfg.SamplingRate = t.SampleRate
	cfg.PrettyPrint = t.PrettyPrint
	if t.Exporter != "" {
		cfg.ExporterType = t.Exporter
	}
	if t.BatchTimeout > 0 {
		cfg.BatchTimeout = t.BatchTimeout
	}
	return cfg
}
