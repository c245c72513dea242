// Package metrics exposes Prometheus metrics for strata's storage engine.
//
// Metrics are registered once on the default registry and labelled by
// component. Writers and readers record through a Collector bound to their
// component name:
//
//	collector := metrics.NewCollector("rgfile_writer")
//	collector.RowGroupWritten(rows, bytes, time.Since(start))
//
// A nil *Collector is valid and records nothing, so instrumented code does not
// need to check whether metrics are enabled.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

var (
	// RowGroupsWritten counts row groups appended to files.
	RowGroupsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strata_row_groups_written_total",
			Help: "Total number of row groups written",
		},
		[]string{"component"},
	)

	// RowsWritten counts rows appended to files.
	RowsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strata_rows_written_total",
			Help: "Total number of rows written",
		},
		[]string{"component"},
	)

	// BytesWritten counts payload and metadata bytes written.
	BytesWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strata_bytes_written_total",
			Help: "Total number of bytes written to row group files",
		},
		[]string{"component"},
	)

	// RowGroupsScanned counts row groups whose rows were evaluated.
	RowGroupsScanned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strata_row_groups_scanned_total",
			Help: "Total number of row groups scanned row by row",
		},
		[]string{"component"},
	)

	// RowGroupsPruned counts row groups skipped by zone-map evaluation.
	RowGroupsPruned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strata_row_groups_pruned_total",
			Help: "Total number of row groups skipped by zone maps",
		},
		[]string{"component"},
	)

	// ColumnsMaterialized counts lazy columns made resident.
	// Labels: component, compression
	ColumnsMaterialized = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strata_columns_materialized_total",
			Help: "Total number of lazy columns materialized",
		},
		[]string{"component", "compression"},
	)

	// BytesDecompressed counts bytes produced by decompression.
	BytesDecompressed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strata_bytes_decompressed_total",
			Help: "Total number of bytes produced by column decompression",
		},
		[]string{"component"},
	)

	// RowsMatched counts rows emitted by predicate-filtered scans.
	RowsMatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strata_rows_matched_total",
			Help: "Total number of rows matching scan predicates",
		},
		[]string{"component"},
	)

	// WriteLatency tracks row group write durations in seconds.
	WriteLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "strata_row_group_write_seconds",
			Help:    "Row group write latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		},
		[]string{"component"},
	)

	// MaterializeLatency tracks lazy column materialization in seconds.
	MaterializeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "strata_column_materialize_seconds",
			Help:    "Lazy column materialization latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
		},
		[]string{"component", "compression"},
	)

	// Throughput tracks scan throughput in rows per second.
	Throughput = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "strata_scan_rows_per_second",
			Help: "Current scan throughput in rows per second",
		},
		[]string{"component"},
	)
)

// Collector records metrics for one component.
type Collector struct {
	name              string
	rowGroupsWritten  prometheus.Counter
	rowsWritten       prometheus.Counter
	bytesWritten      prometheus.Counter
	rowGroupsScanned  prometheus.Counter
	rowGroupsPruned   prometheus.Counter
	bytesDecompressed prometheus.Counter
	rowsMatched       prometheus.Counter
	writeLatency      prometheus.Observer
	startTime         time.Time
}

// NewCollector returns a collector whose metrics carry the given component
// label.
func NewCollector(name string) *Collector {
	return &Collector{
		name:              name,
		rowGroupsWritten:  RowGroupsWritten.WithLabelValues(name),
		rowsWritten:       RowsWritten.WithLabelValues(name),
		bytesWritten:      BytesWritten.WithLabelValues(name),
		rowGroupsScanned:  RowGroupsScanned.WithLabelValues(name),
		rowGroupsPruned:   RowGroupsPruned.WithLabelValues(name),
		bytesDecompressed: BytesDecompressed.WithLabelValues(name),
		rowsMatched:       RowsMatched.WithLabelValues(name),
		writeLatency:      WriteLatency.WithLabelValues(name),
		startTime:         time.Now(),
	}
}

// Name returns the component label.
func (c *Collector) Name() string {
	if c == nil {
		return ""
	}
	return c.name
}

// RowGroupWritten records one row group of rows rows occupying size bytes.
func (c *Collector) RowGroupWritten(rows uint64, size int64, d time.Duration) {
	if c == nil {
		return
	}
	c.rowGroupsWritten.Inc()
	c.rowsWritten.Add(float64(rows))
	c.bytesWritten.Add(float64(size))
	c.writeLatency.Observe(d.Seconds())
}

// BytesWritten records metadata bytes written outside row groups.
func (c *Collector) BytesWritten(size int64) {
	if c == nil {
		return
	}
	c.bytesWritten.Add(float64(size))
}

// RowGroupScanned records a row group whose rows are evaluated.
func (c *Collector) RowGroupScanned() {
	if c == nil {
		return
	}
	c.rowGroupsScanned.Inc()
}

// RowGroupPruned records a row group skipped by its zone maps.
func (c *Collector) RowGroupPruned() {
	if c == nil {
		return
	}
	c.rowGroupsPruned.Inc()
}

// ColumnMaterialized records a lazy column made resident. decompressed is the
// number of bytes produced by the codec, zero for mapped columns.
func (c *Collector) ColumnMaterialized(compression string, decompressed int, d time.Duration) {
	if c == nil {
		return
	}
	ColumnsMaterialized.WithLabelValues(c.name, compression).Inc()
	MaterializeLatency.WithLabelValues(c.name, compression).Observe(d.Seconds())
	if decompressed > 0 {
		c.bytesDecompressed.Add(float64(decompressed))
	}
}

// RowsMatched records n rows emitted by a filtered scan.
func (c *Collector) RowsMatched(n uint64) {
	if c == nil || n == 0 {
		return
	}
	c.rowsMatched.Add(float64(n))
}

// Stats is a point-in-time copy of a collector's counters.
type Stats struct {
	RowGroupsWritten  float64
	RowsWritten       float64
	BytesWritten      float64
	RowGroupsScanned  float64
	RowGroupsPruned   float64
	BytesDecompressed float64
	RowsMatched       float64
	Uptime            time.Duration
}

// Snapshot reads the collector's counters.
func (c *Collector) Snapshot() Stats {
	if c == nil {
		return Stats{}
	}
	return Stats{
		RowGroupsWritten:  counterValue(c.rowGroupsWritten),
		RowsWritten:       counterValue(c.rowsWritten),
		BytesWritten:      counterValue(c.bytesWritten),
		RowGroupsScanned:  counterValue(c.rowGroupsScanned),
		RowGroupsPruned:   counterValue(c.rowGroupsPruned),
		BytesDecompressed: counterValue(c.bytesDecompressed),
		RowsMatched:       counterValue(c.rowsMatched),
		Uptime:            time.Since(c.startTime),
	}
}

// ColumnsMaterialized returns how many columns were materialized with the
// given compression.
func (c *Collector) ColumnsMaterialized(compression string) float64 {
	if c == nil {
		return 0
	}
	return counterValue(ColumnsMaterialized.WithLabelValues(c.name, compression))
}

func counterValue(counter prometheus.Counter) float64 {
	var m dto.Metric
	if err := counter.Write(&m); err != nil || m.Counter == nil {
		return 0
	}
	return m.Counter.GetValue()
}

// Timer measures an operation's duration from creation.
type Timer struct {
	start time.Time
	name  string
}

// NewTimer starts a timer.
func NewTimer(name string) *Timer {
	return &Timer{
		start: time.Now(),
		name:  name,
	}
}

// Name returns the timer's name.
func (t *Timer) Name() string { return t.name }

// Stop returns the time elapsed since the timer was created. It can be called
// more than once.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}

// ThroughputTracker tracks rows per second over time windows. Safe for
// concurrent use.
type ThroughputTracker struct {
	mu        sync.Mutex
	count     int64
	lastReset time.Time
	component string
}

// NewThroughputTracker returns a tracker reporting under component.
func NewThroughputTracker(component string) *ThroughputTracker {
	return &ThroughputTracker{
		lastReset: time.Now(),
		component: component,
	}
}

// Increment adds n rows.
func (t *ThroughputTracker) Increment(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.count += n
}

// GetAndReset returns rows per second since the last reset, publishes it to
// the Throughput gauge and starts a new window.
func (t *ThroughputTracker) GetAndReset() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	elapsed := time.Since(t.lastReset).Seconds()
	if elapsed == 0 {
		return 0
	}

	throughput := float64(t.count) / elapsed
	t.count = 0
	t.lastReset = time.Now()

	Throughput.WithLabelValues(t.component).Set(throughput)
	return throughput
}
