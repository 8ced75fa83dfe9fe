package fscache

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// LogLevel represents different logging levels
type LogLevel int

// Log levels, lowest first.
const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

// Logger provides structured logging for the cache.
// It wraps different backends behind one type; the zero value and a nil
// *Logger discard everything.
type Logger struct {
	impl loggerImpl
}

// loggerImpl is implemented by each logging backend.
type loggerImpl interface {
	log(ctx context.Context, level LogLevel, msg string, args []any)
	with(args []any) loggerImpl
}

// Debug logs debug-level messages
func (l *Logger) Debug(ctx context.Context, msg string, args ...any) {
	l.log(ctx, LogLevelDebug, msg, args)
}

// Info logs info-level messages
func (l *Logger) Info(ctx context.Context, msg string, args ...any) {
	l.log(ctx, LogLevelInfo, msg, args)
}

// Warn logs warning-level messages
func (l *Logger) Warn(ctx context.Context, msg string, args ...any) {
	l.log(ctx, LogLevelWarn, msg, args)
}

// Error logs error-level messages
func (l *Logger) Error(ctx context.Context, msg string, args ...any) {
	l.log(ctx, LogLevelError, msg, args)
}

func (l *Logger) log(ctx context.Context, level LogLevel, msg string, args []any) {
	if l == nil || l.impl == nil {
		return
	}
	l.impl.log(ctx, level, msg, args)
}

// With returns a logger with additional context fields
func (l *Logger) With(args ...any) *Logger {
	if l == nil || l.impl == nil {
		return l
	}
	if _, ok := l.impl.(nopLogger); ok {
		return l
	}
	return &Logger{impl: l.impl.with(args)}
}

// WithOperation returns a logger with operation context
func (l *Logger) WithOperation(op Operation) *Logger {
	return l.With("operation", string(op))
}

// WithKey returns a logger with key context.
func (l *Logger) WithKey(key string) *Logger {
	return l.With("key", key)
}

// LogConfig holds configuration for the cache logger.
type LogConfig struct {
	// Level sets the minimum log level (debug, info, warn, error)
	Level LogLevel
	// EnableCallerInfo includes file and line number in logs
	EnableCallerInfo bool
	// Output receives log lines. Defaults to os.Stderr.
	Output io.Writer
}

// DefaultLogConfig returns a default logging configuration.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:  LogLevelInfo,
		Output: os.Stderr,
	}
}

// NewLogger creates a slog-backed text logger with the given configuration.
func NewLogger(config LogConfig) *Logger {
	out := config.Output
	if out == nil {
		out = os.Stderr
	}
	handler := slog.NewTextHandler(out, &slog.HandlerOptions{
		Level:     config.Level.slogLevel(),
		AddSource: config.EnableCallerInfo,
	})
	return NewSlogLogger(slog.New(handler))
}

// NewSlogLogger wraps an existing slog.Logger.
func NewSlogLogger(logger *slog.Logger) *Logger {
	if logger == nil {
		return NewNopLogger()
	}
	return &Logger{impl: &slogLogger{logger: logger}}
}

// NewZerologLogger wraps an existing zerolog.Logger. Level filtering is left
// to the zerolog logger.
func NewZerologLogger(logger zerolog.Logger) *Logger {
	return &Logger{impl: &zerologLogger{logger: logger}}
}

// NewNopLogger creates a no-op logger that discards all log messages.
func NewNopLogger() *Logger {
	return &Logger{impl: nopLogger{}}
}

func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "debug"
	case LogLevelInfo:
		return "info"
	case LogLevelWarn:
		return "warn"
	case LogLevelError:
		return "error"
	default:
		return fmt.Sprintf("LogLevel(%d)", int(l))
	}
}

// slogLogger implements loggerImpl using slog.
type slogLogger struct {
	logger *slog.Logger
}

func (l *slogLogger) log(ctx context.Context, level LogLevel, msg string, args []any) {
	l.logger.Log(ctx, level.slogLevel(), msg, args...)
}

func (l *slogLogger) with(args []any) loggerImpl {
	return &slogLogger{logger: l.logger.With(args...)}
}

// zerologLogger implements loggerImpl using zerolog.
type zerologLogger struct {
	logger zerolog.Logger
}

func (l *zerologLogger) log(ctx context.Context, level LogLevel, msg string, args []any) {
	var ev *zerolog.Event
	switch level {
	case LogLevelDebug:
		ev = l.logger.Debug()
	case LogLevelWarn:
		ev = l.logger.Warn()
	case LogLevelError:
		ev = l.logger.Error()
	default:
		ev = l.logger.Info()
	}
	ev.Ctx(ctx).Fields(args).Msg(msg)
}

func (l *zerologLogger) with(args []any) loggerImpl {
	return &zerologLogger{logger: l.logger.With().Fields(args).Logger()}
}

// nopLogger is a no-op logger implementation that discards all messages.
type nopLogger struct{}

func (nopLogger) log(context.Context, LogLevel, string, []any) {}
func (n nopLogger) with([]any) loggerImpl                      { return n }

// Operation represents different types of cache operations for logging.
type Operation string

// Operation constants for cache operations
const (
	OpGet    Operation = "get"
	OpSet    Operation = "set"
	OpDelete Operation = "delete"
	OpHas    Operation = "has"
	OpLookup Operation = "lookup"
	OpClear  Operation = "clear"
	OpPurge  Operation = "purge"
)

// Miss and eviction reasons.
const (
	ReasonNotFound = "not_found"
	ReasonExpired  = "expired"
	ReasonCorrupt  = "corrupt"
	ReasonIO       = "io_error"
	ReasonClosed   = "closed"
)

// LogCacheHit logs a cache hit event.
func LogCacheHit(ctx context.Context, logger *Logger, operation Operation, key string) {
	logger.Debug(ctx, "cache hit",
		"operation", string(operation),
		"key", key,
		"result", "hit")
}

// LogCacheMiss logs a cache miss event.
func LogCacheMiss(ctx context.Context, logger *Logger, operation Operation, key, reason string, err error) {
	fields := []any{
		"operation", string(operation),
		"key", key,
		"reason", reason,
		"result", "miss",
	}
	if err != nil {
		fields = append(fields, "error", err.Error())
	}
	logger.Debug(ctx, "cache miss", fields...)
}

// LogEviction logs an entry file removed because it was expired or unreadable.
func LogEviction(ctx context.Context, logger *Logger, operation Operation, file, reason string) {
	logger.Debug(ctx, "cache entry evicted",
		"operation", string(operation),
		"file", file,
		"reason", reason)
}

// LogFailure logs an operation whose failure is reported to the caller only
// as false.
func LogFailure(ctx context.Context, logger *Logger, operation Operation, key string, err error) {
	logger.Warn(ctx, "cache operation failed",
		"operation", string(operation),
		"key", key,
		"reason", ReasonIO,
		"error", err.Error())
}

// LogCleanup logs sweep operations.
func LogCleanup(ctx context.Context, logger *Logger, operation Operation, result PurgeResult, duration time.Duration) {
	logger.Info(ctx, "cache cleanup completed",
		"operation", string(operation),
		"scanned", result.Scanned,
		"removed_expired", result.RemovedExpired,
		"removed_corrupt", result.RemovedCorrupt,
		"kept", result.Kept,
		"failed", result.Failed,
		"duration_ms", duration.Milliseconds())
}

// ParseLogLevel parses a string log level into a LogLevel.
func ParseLogLevel(level string) (LogLevel, error) {
	switch strings.ToLower(level) {
	case "debug":
		return LogLevelDebug, nil
	case "info":
		return LogLevelInfo, nil
	case "warn", "warning":
		return LogLevelWarn, nil
	case "error":
		return LogLevelError, nil
	default:
		return LogLevelInfo, fmt.Errorf("invalid log level: %s", level)
	}
}
