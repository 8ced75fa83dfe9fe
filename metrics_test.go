package fscache

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// counterValue sums the data points of an int64 counter whose attributes
// include every pair in attrs.
func counterValue(t *testing.T, rm metricdata.ResourceMetrics, name string, attrs ...attribute.KeyValue) int64 {
	t.Helper()
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "metric %s is not an int64 sum", name)
		points:
			for _, dp := range sum.DataPoints {
				for _, want := range attrs {
					got, ok := dp.Attributes.Value(want.Key)
					if !ok || got != want.Value {
						continue points
					}
				}
				total += dp.Value
			}
		}
	}
	return total
}

func TestMetrics_OpenTelemetry(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(ctx) })

	s, _, clock := setupTestStore[string](t, Config{}, WithMeterProvider(provider))

	_, err := s.Set(ctx, "a", "1", TTLSeconds(5))
	require.NoError(t, err)
	_, err = s.Set(ctx, "nil-free", "2", DefaultTTL())
	require.NoError(t, err)

	_, _ = s.Get(ctx, "a", "")
	_, _ = s.Get(ctx, "absent", "")
	clock.Advance(time.Minute)
	_, _ = s.Get(ctx, "a", "")
	s.Purge(ctx)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	assert.Equal(t, int64(2), counterValue(t, rm, "fscache.writes", attribute.String("status", "ok")))
	assert.Equal(t, int64(1), counterValue(t, rm, "fscache.lookups", attribute.String("result", "hit")))
	assert.Equal(t, int64(2), counterValue(t, rm, "fscache.lookups", attribute.String("result", "miss")))
	assert.Equal(t, int64(1), counterValue(t, rm, "fscache.lookups",
		attribute.String("result", "miss"), attribute.String("reason", ReasonExpired)))
	assert.Equal(t, int64(1), counterValue(t, rm, "fscache.evictions",
		attribute.String("operation", string(OpGet)), attribute.String("reason", ReasonExpired)))
}

func TestMetrics_Snapshot(t *testing.T) {
	ctx := context.Background()
	s, _, _ := setupTestStore[int](t, Config{})

	_, err := s.Set(ctx, "k", 1, DefaultTTL())
	require.NoError(t, err)
	_, err = s.Set(ctx, "k", 1, TTLSeconds(-1))
	require.NoError(t, err)
	_, err = s.Set(ctx, "n", 2, DefaultTTL())
	require.NoError(t, err)

	_, _ = s.Get(ctx, "n", 0)
	_, _ = s.Get(ctx, "n", 0)
	_, _ = s.Get(ctx, "k", 0)
	_, _ = s.Get(ctx, "missing", 0)

	snap := s.Metrics().Snapshot()
	assert.Equal(t, int64(3), snap.Writes)
	assert.Zero(t, snap.WriteFailures)
	assert.Equal(t, int64(2), snap.Hits)
	assert.Equal(t, int64(2), snap.Misses)
	assert.Equal(t, int64(1), snap.Evictions)
	assert.InDelta(t, 0.5, snap.HitRate, 1e-9)
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	assert.NotPanics(t, func() {
		m.RecordHit(ctx, OpGet)
		m.RecordMiss(ctx, OpGet, ReasonNotFound)
		m.RecordWrite(ctx, false)
		m.RecordEviction(ctx, OpPurge, ReasonCorrupt)
		m.RecordError(ctx, OpSet)
		m.RecordSweep(ctx, OpClear, time.Second)
	})
	assert.Equal(t, MetricsSnapshot{}, m.Snapshot())
}

func TestNewMetrics_GlobalProvider(t *testing.T) {
	m, err := NewMetrics(nil)
	require.NoError(t, err)
	m.RecordHit(context.Background(), OpGet)
	assert.Equal(t, int64(1), m.Snapshot().Hits)
}

func TestMetrics_LookupOutcomes(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(ctx) })

	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: LogLevelDebug, Output: &buf})
	s, mem, _ := setupTestStore[string](t, Config{}, WithMeterProvider(provider), WithLogger(logger))

	_, err := s.Set(ctx, "k", "v", DefaultTTL())
	require.NoError(t, err)
	require.NoError(t, mem.WriteFile(PathFor(testDir, "bad"), []byte("nope"), 0o600))

	_, err = s.Lookup(ctx, "k")
	require.NoError(t, err)
	_, err = s.Lookup(ctx, "absent")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Lookup(ctx, "bad")
	assert.ErrorIs(t, err, ErrCorrupt)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	op := attribute.String("operation", string(OpLookup))
	assert.Equal(t, int64(1), counterValue(t, rm, "fscache.lookups", op, attribute.String("result", "hit")))
	assert.Equal(t, int64(1), counterValue(t, rm, "fscache.lookups", op,
		attribute.String("result", "miss"), attribute.String("reason", ReasonNotFound)))
	assert.Equal(t, int64(1), counterValue(t, rm, "fscache.lookups", op,
		attribute.String("result", "miss"), attribute.String("reason", ReasonCorrupt)))

	snap := s.Metrics().Snapshot()
	assert.Equal(t, int64(1), snap.Hits)
	assert.Equal(t, int64(2), snap.Misses)

	out := buf.String()
	assert.Contains(t, out, "operation=lookup")
	assert.Contains(t, out, "reason=corrupt")
	assert.Contains(t, out, "cache hit")
	assert.ElementsMatch(t, []string{FileName("bad"), FileName("k")}, dirNames(t, mem),
		"Lookup never removes files")
}
