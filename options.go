package fscache

import (
	"fmt"
	"io"
	"time"

	"github.com/jmgilman/go/fs/core"
	"go.opentelemetry.io/otel/metric"
)

// Option configures a Store. Options are applied in order after the Config
// passed to New, so they override it.
type Option func(*options) error

type options struct {
	cfg           Config
	fs            core.FS
	logger        *Logger
	clock         func() time.Time
	random        io.Reader
	meterProvider metric.MeterProvider
}

// WithFilesystem sets the filesystem the cache directory lives on.
// Defaults to the local filesystem.
//
// Example:
//
//	store, _ := fscache.New[string](cfg, fscache.WithFilesystem(billy.NewMemory()))
func WithFilesystem(fsys core.FS) Option {
	return func(o *options) error {
		if fsys == nil {
			return fmt.Errorf("%w: filesystem cannot be nil", ErrInvalidConfig)
		}
		o.fs = fsys
		return nil
	}
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(logger *Logger) Option {
	return func(o *options) error {
		o.logger = logger
		return nil
	}
}

// WithClock sets the wall clock used for expiration.
func WithClock(clock func() time.Time) Option {
	return func(o *options) error {
		if clock == nil {
			return fmt.Errorf("%w: clock cannot be nil", ErrInvalidConfig)
		}
		o.clock = clock
		return nil
	}
}

// WithRandom sets the source of initialization vectors. Defaults to
// crypto/rand.
func WithRandom(r io.Reader) Option {
	return func(o *options) error {
		if r == nil {
			return fmt.Errorf("%w: random source cannot be nil", ErrInvalidConfig)
		}
		o.random = r
		return nil
	}
}

// WithDefaultTTL sets the default lifetime in seconds. Unlike
// Config.DefaultTTL, negative values are rejected.
func WithDefaultTTL(seconds int64) Option {
	return func(o *options) error {
		if seconds < 0 {
			return fmt.Errorf("%w: default TTL cannot be negative, got %d", ErrInvalidConfig, seconds)
		}
		o.cfg.DefaultTTL = seconds
		return nil
	}
}

// WithCipher sets the cipher name.
func WithCipher(name string) Option {
	return func(o *options) error {
		o.cfg.Cipher = name
		return nil
	}
}

// WithSecret sets the encryption secret. An empty secret disables encryption.
func WithSecret(secret string) Option {
	return func(o *options) error {
		o.cfg.Secret = secret
		return nil
	}
}

// WithCodec sets the serialization format.
func WithCodec(name string) Option {
	return func(o *options) error {
		o.cfg.Codec = name
		return nil
	}
}

// WithPurgeAllFiles makes Purge treat every regular file in the directory as
// a candidate instead of only .cache files.
func WithPurgeAllFiles() Option {
	return func(o *options) error {
		o.cfg.PurgeAllFiles = true
		return nil
	}
}

// WithMeterProvider sets the OpenTelemetry meter provider. Defaults to the
// global provider.
func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(o *options) error {
		o.meterProvider = provider
		return nil
	}
}
