package fscache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: LogLevelWarn, Output: &buf})
	ctx := context.Background()

	logger.Debug(ctx, "debug message")
	logger.Info(ctx, "info message")
	logger.Warn(ctx, "warn message", "k", "v")
	logger.Error(ctx, "error message")

	out := buf.String()
	assert.NotContains(t, out, "debug message")
	assert.NotContains(t, out, "info message")
	assert.Contains(t, out, "warn message")
	assert.Contains(t, out, "k=v")
	assert.Contains(t, out, "error message")
}

func TestLogger_With(t *testing.T) {
	var buf bytes.Buffer
	base := NewSlogLogger(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	ctx := context.Background()

	base.WithOperation(OpGet).WithKey("user-1").Info(ctx, "hello")
	base.Info(ctx, "plain")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "get", first["operation"])
	assert.Equal(t, "user-1", first["key"])

	var second map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.NotContains(t, second, "operation", "With must not mutate the parent")
}

func TestNewZerologLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologLogger(zerolog.New(&buf).Level(zerolog.InfoLevel)).With("dir", "/cache")
	ctx := context.Background()

	logger.Debug(ctx, "hidden")
	logger.Warn(ctx, "cache miss", "reason", ReasonExpired, "count", 3)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "cache miss", entry["message"])
	assert.Equal(t, "/cache", entry["dir"])
	assert.Equal(t, "expired", entry["reason"])
	assert.EqualValues(t, 3, entry["count"])
}

func TestNopLogger(t *testing.T) {
	ctx := context.Background()

	nop := NewNopLogger()
	assert.Same(t, nop, nop.With("k", "v"))
	assert.NotPanics(t, func() {
		nop.Info(ctx, "discarded")
		nop.WithOperation(OpPurge).Error(ctx, "discarded")
	})

	var nilLogger *Logger
	assert.NotPanics(t, func() {
		nilLogger.Debug(ctx, "discarded")
		nilLogger.With("k", "v").Warn(ctx, "discarded")
		LogCacheHit(ctx, nilLogger, OpGet, "k")
		LogCacheMiss(ctx, nilLogger, OpGet, "k", ReasonNotFound, nil)
		LogFailure(ctx, nilLogger, OpSet, "k", errors.New("boom"))
		LogCleanup(ctx, nilLogger, OpPurge, PurgeResult{}, time.Second)
	})
}

func TestLogHelpers(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: LogLevelDebug, Output: &buf})
	ctx := context.Background()

	LogCacheMiss(ctx, logger, OpGet, "k", ReasonCorrupt, errors.New("bad padding"))
	LogEviction(ctx, logger, OpPurge, "abc.cache", ReasonExpired)
	LogCleanup(ctx, logger, OpPurge, PurgeResult{Scanned: 3, RemovedExpired: 1, Kept: 2}, 5*time.Millisecond)

	out := buf.String()
	assert.Contains(t, out, "reason=corrupt")
	assert.Contains(t, out, `error="bad padding"`)
	assert.Contains(t, out, "file=abc.cache")
	assert.Contains(t, out, "removed_expired=1")
	assert.Contains(t, out, "kept=2")
}

func TestStore_LogsMissReasons(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: LogLevelDebug, Output: &buf})
	ctx := context.Background()

	s, mem, clock := setupTestStore[string](t, Config{}, WithLogger(logger))
	_, err := s.Set(ctx, "k", "v", TTLSeconds(1))
	require.NoError(t, err)
	clock.Advance(time.Minute)
	require.NoError(t, mem.WriteFile(PathFor(testDir, "bad"), []byte("nope"), 0o600))

	_, _ = s.Get(ctx, "k", "")
	_, _ = s.Get(ctx, "bad", "")
	_, _ = s.Get(ctx, "absent", "")

	out := buf.String()
	assert.Contains(t, out, "reason=expired")
	assert.Contains(t, out, "reason=corrupt")
	assert.Contains(t, out, "reason=not_found")
	assert.Contains(t, out, "cache entry evicted")
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    LogLevel
		wantErr bool
	}{
		{input: "debug", want: LogLevelDebug},
		{input: "INFO", want: LogLevelInfo},
		{input: "warn", want: LogLevelWarn},
		{input: "warning", want: LogLevelWarn},
		{input: "error", want: LogLevelError},
		{input: "verbose", want: LogLevelInfo, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLogLevel(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
			if !tt.wantErr {
				assert.Equal(t, strings.ToLower(tt.input)[:4], got.String()[:4])
			}
		})
	}
}
