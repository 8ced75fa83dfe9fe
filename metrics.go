package fscache

import (
	"context"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope of every instrument.
const meterName = "github.com/jmgilman/go/fscache"

// Metrics counts cache activity. Counters are kept in process for Snapshot
// and mirrored to OpenTelemetry instruments.
type Metrics struct {
	hits          atomic.Int64
	misses        atomic.Int64
	writes        atomic.Int64
	writeFailures atomic.Int64
	evictions     atomic.Int64
	errors        atomic.Int64
	startTime     time.Time

	lookups   metric.Int64Counter
	writeOps  metric.Int64Counter
	evictOps  metric.Int64Counter
	failures  metric.Int64Counter
	sweepTime metric.Float64Histogram
}

// MetricsSnapshot is a point-in-time copy of the counters.
type MetricsSnapshot struct {
	Hits          int64
	Misses        int64
	Writes        int64
	WriteFailures int64
	Evictions     int64
	Errors        int64
	HitRate       float64
	Uptime        time.Duration
}

// NewMetrics creates the instruments on provider. A nil provider uses the
// global one, which is a no-op until the host installs an SDK.
func NewMetrics(provider metric.MeterProvider) (*Metrics, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter(meterName)

	m := &Metrics{startTime: time.Now()}
	var err error

	if m.lookups, err = meter.Int64Counter(
		"fscache.lookups",
		metric.WithDescription("Reads by result (hit or miss) and reason"),
		metric.WithUnit("1"),
	); err != nil {
		return nil, err
	}
	if m.writeOps, err = meter.Int64Counter(
		"fscache.writes",
		metric.WithDescription("Entry writes by status"),
		metric.WithUnit("1"),
	); err != nil {
		return nil, err
	}
	if m.evictOps, err = meter.Int64Counter(
		"fscache.evictions",
		metric.WithDescription("Entry files removed because they were expired or unreadable"),
		metric.WithUnit("1"),
	); err != nil {
		return nil, err
	}
	if m.failures, err = meter.Int64Counter(
		"fscache.failures",
		metric.WithDescription("Failures downgraded to a miss or false result"),
		metric.WithUnit("1"),
	); err != nil {
		return nil, err
	}
	if m.sweepTime, err = meter.Float64Histogram(
		"fscache.sweep.duration",
		metric.WithDescription("Duration of purge and clear sweeps"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

// RecordHit records a cache hit.
func (m *Metrics) RecordHit(ctx context.Context, op Operation) {
	if m == nil {
		return
	}
	m.hits.Add(1)
	m.lookups.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", string(op)),
		attribute.String("result", "hit"),
	))
}

// RecordMiss records a cache miss with its reason.
func (m *Metrics) RecordMiss(ctx context.Context, op Operation, reason string) {
	if m == nil {
		return
	}
	m.misses.Add(1)
	m.lookups.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", string(op)),
		attribute.String("result", "miss"),
		attribute.String("reason", reason),
	))
}

// RecordWrite records the outcome of an entry write.
func (m *Metrics) RecordWrite(ctx context.Context, ok bool) {
	if m == nil {
		return
	}
	status := "ok"
	if ok {
		m.writes.Add(1)
	} else {
		m.writeFailures.Add(1)
		status = "failed"
	}
	m.writeOps.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordEviction records removal of an expired or corrupt entry file.
func (m *Metrics) RecordEviction(ctx context.Context, op Operation, reason string) {
	if m == nil {
		return
	}
	m.evictions.Add(1)
	m.evictOps.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", string(op)),
		attribute.String("reason", reason),
	))
}

// RecordError records a failure that the caller only sees as a miss or false.
func (m *Metrics) RecordError(ctx context.Context, op Operation) {
	if m == nil {
		return
	}
	m.errors.Add(1)
	m.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", string(op))))
}

// RecordSweep records the duration of a clear or purge sweep.
func (m *Metrics) RecordSweep(ctx context.Context, op Operation, d time.Duration) {
	if m == nil {
		return
	}
	m.sweepTime.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("operation", string(op))))
}

// Snapshot returns the current counter values.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	s := MetricsSnapshot{
		Hits:          m.hits.Load(),
		Misses:        m.misses.Load(),
		Writes:        m.writes.Load(),
		WriteFailures: m.writeFailures.Load(),
		Evictions:     m.evictions.Load(),
		Errors:        m.errors.Load(),
		Uptime:        time.Since(m.startTime),
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}
