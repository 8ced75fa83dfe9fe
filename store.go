package fscache

import (
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"reflect"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jmgilman/go/fs/billy"
	"github.com/jmgilman/go/fs/core"

	"github.com/jmgilman/go/fscache/internal/envelope"
	"github.com/jmgilman/go/fscache/internal/storage"
)

// Store is a filesystem-backed cache of values of type V.
//
// Each entry is one file in a flat directory, named by the SHA-256 digest of
// its key. A Store is safe for concurrent use; concurrent writers of the same
// key race and the last rename wins.
type Store[V any] struct {
	opts    options
	cfg     Config
	dir     string
	storage *storage.Storage
	env     *envelope.Envelope
	logger  *Logger
	metrics *Metrics
	now     func() time.Time
	closed  atomic.Bool
}

// New validates cfg, applies opts and opens the cache directory, creating it
// if missing. It fails with ErrInvalidConfig, ErrUnsupportedCipher or
// ErrDirectoryUnwritable.
func New[V any](cfg Config, opts ...Option) (*Store[V], error) {
	o := options{cfg: cfg}
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, err
		}
	}
	return newStore[V](o)
}

func newStore[V any](o options) (*Store[V], error) {
	o.cfg.SetDefaults()
	if err := o.cfg.Validate(); err != nil {
		return nil, err
	}

	if o.fs == nil {
		o.fs = billy.NewLocal()
	}
	if o.logger == nil {
		o.logger = NewNopLogger()
	}
	if o.clock == nil {
		o.clock = time.Now
	}

	dir := o.cfg.Dir
	if o.fs.Type() == core.FSTypeLocal {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to resolve %q: %w", ErrInvalidConfig, dir, err)
		}
		dir = abs
	}

	codec, err := envelope.LookupCodec(o.cfg.Codec)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	encCtx, err := envelope.NewContext(o.cfg.Secret, o.cfg.Cipher)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedCipher, err)
	}

	st, err := storage.New(o.fs, dir)
	if err != nil {
		encCtx.Destroy()
		return nil, fmt.Errorf("%w: %w", ErrDirectoryUnwritable, err)
	}

	metrics, err := NewMetrics(o.meterProvider)
	if err != nil {
		encCtx.Destroy()
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	s := &Store[V]{
		opts:    o,
		cfg:     o.cfg,
		dir:     dir,
		storage: st,
		env:     envelope.New(codec, encCtx, o.random),
		logger:  o.logger.With("dir", dir),
		metrics: metrics,
		now:     o.clock,
	}

	s.logger.Debug(context.Background(), "cache opened",
		"cipher", encCtx.CipherName(),
		"encrypted", encCtx.Enabled(),
		"codec", codec.Name(),
		"default_ttl", o.cfg.DefaultTTL)

	return s, nil
}

// Dir returns the absolute cache directory.
func (s *Store[V]) Dir() string {
	return s.dir
}

// Config returns the effective configuration.
func (s *Store[V]) Config() Config {
	return s.cfg
}

// Metrics returns the store's counters.
func (s *Store[V]) Metrics() *Metrics {
	return s.metrics
}

// Reconfigure returns a new Store over the same directory with opts applied
// on top of this store's configuration. The receiver is not modified.
func (s *Store[V]) Reconfigure(opts ...Option) (*Store[V], error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	o := s.opts
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, err
		}
	}
	return newStore[V](o)
}

// Close zeroes the encryption key. Afterwards reads miss, writes return
// false and Lookup returns ErrClosed. Close is idempotent.
func (s *Store[V]) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.env.Context().Destroy()
	s.logger.Debug(context.Background(), "cache closed")
	return nil
}

// Get returns the value stored under key, or def when the entry is missing,
// expired or unreadable. Expired and unreadable entry files are removed.
func (s *Store[V]) Get(ctx context.Context, key string, def V) (V, error) {
	if err := ValidateKey(key); err != nil {
		return def, err
	}
	if v, ok := s.get(ctx, OpGet, key); ok {
		return v, nil
	}
	return def, nil
}

// get looks up key and evicts the entry file if it is expired or corrupt.
func (s *Store[V]) get(ctx context.Context, op Operation, key string) (V, bool) {
	value, err := s.lookup(ctx, key)
	if err == nil {
		LogCacheHit(ctx, s.logger, op, key)
		s.metrics.RecordHit(ctx, op)
		return value, true
	}

	reason := missReason(err)
	LogCacheMiss(ctx, s.logger, op, key, reason, err)
	s.metrics.RecordMiss(ctx, op, reason)
	if reason == ReasonIO {
		s.metrics.RecordError(ctx, op)
	}
	if reason == ReasonExpired || reason == ReasonCorrupt {
		s.evict(ctx, op, FileName(key), reason)
	}

	var zero V
	return zero, false
}

// Has reports whether key holds an unexpired, readable entry. Unlike Get it
// never removes files.
func (s *Store[V]) Has(ctx context.Context, key string) (bool, error) {
	if err := ValidateKey(key); err != nil {
		return false, err
	}
	_, err := s.lookup(ctx, key)
	if err != nil {
		reason := missReason(err)
		LogCacheMiss(ctx, s.logger, OpHas, key, reason, err)
		s.metrics.RecordMiss(ctx, OpHas, reason)
		return false, nil
	}
	s.metrics.RecordHit(ctx, OpHas)
	return true, nil
}

// Lookup is the diagnostic form of Get. It never removes files and reports
// why a value is unavailable: ErrNotFound, ErrExpired, ErrCorrupt (wrapping
// the decode failure), ErrClosed or the underlying I/O error.
func (s *Store[V]) Lookup(ctx context.Context, key string) (V, error) {
	if err := ValidateKey(key); err != nil {
		var zero V
		return zero, err
	}

	value, err := s.lookup(ctx, key)
	if err != nil {
		reason := missReason(err)
		LogCacheMiss(ctx, s.logger, OpLookup, key, reason, err)
		s.metrics.RecordMiss(ctx, OpLookup, reason)
		if reason == ReasonIO {
			s.metrics.RecordError(ctx, OpLookup)
		}
		return value, err
	}
	LogCacheHit(ctx, s.logger, OpLookup, key)
	s.metrics.RecordHit(ctx, OpLookup)
	return value, nil
}

func (s *Store[V]) lookup(ctx context.Context, key string) (V, error) {
	var zero V
	if s.closed.Load() {
		return zero, ErrClosed
	}

	name := FileName(key)
	data, err := s.storage.Read(ctx, name)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return zero, ErrNotFound
		}
		return zero, err
	}

	value, exp, err := envelope.Decode[V](s.env, data)
	if err != nil {
		if stderrors.Is(err, envelope.ErrDestroyed) {
			return zero, ErrClosed
		}
		return zero, fmt.Errorf("%w: %s: %w", ErrCorrupt, name, err)
	}
	if !s.alive(exp) {
		return zero, fmt.Errorf("%w: expired at %d", ErrExpired, exp)
	}
	return value, nil
}

// alive reports whether an entry with expiration exp may still be served.
func (s *Store[V]) alive(exp int64) bool {
	return exp > s.now().Unix()
}

// Set stores value under key for ttl. It returns false when the value cannot
// be encoded or written; the reason is logged.
func (s *Store[V]) Set(ctx context.Context, key string, value V, ttl TTL) (bool, error) {
	if err := ValidateKey(key); err != nil {
		return false, err
	}
	if err := s.set(ctx, key, value, ttl); err != nil {
		LogFailure(ctx, s.logger, OpSet, key, err)
		s.metrics.RecordWrite(ctx, false)
		s.metrics.RecordError(ctx, OpSet)
		return false, nil
	}
	s.metrics.RecordWrite(ctx, true)
	return true, nil
}

func (s *Store[V]) set(ctx context.Context, key string, value V, ttl TTL) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if isNil(value) {
		return fmt.Errorf("nil values cannot be cached")
	}

	exp := ttl.Resolve(s.now(), s.cfg.DefaultTTL)
	data, err := s.env.Encode(value, exp)
	if err != nil {
		if stderrors.Is(err, envelope.ErrDestroyed) {
			return ErrClosed
		}
		return fmt.Errorf("failed to encode entry: %w", err)
	}
	if err := s.storage.WriteAtomically(ctx, FileName(key), data); err != nil {
		return err
	}

	s.logger.Debug(ctx, "cache entry stored",
		"operation", string(OpSet),
		"key", key,
		"expiration", exp,
		"size", len(data))
	return nil
}

// Delete removes the entry for key. Deleting an absent key succeeds.
func (s *Store[V]) Delete(ctx context.Context, key string) (bool, error) {
	if err := ValidateKey(key); err != nil {
		return false, err
	}
	if err := s.remove(ctx, FileName(key)); err != nil {
		LogFailure(ctx, s.logger, OpDelete, key, err)
		s.metrics.RecordError(ctx, OpDelete)
		return false, nil
	}
	return true, nil
}

func (s *Store[V]) remove(ctx context.Context, name string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return s.storage.Remove(ctx, name)
}

// evict removes an expired or unreadable entry file. A concurrent removal of
// the same file is not an error.
func (s *Store[V]) evict(ctx context.Context, op Operation, name, reason string) bool {
	if err := s.storage.Remove(ctx, name); err != nil {
		s.logger.Warn(ctx, "failed to evict cache entry",
			"operation", string(op),
			"file", name,
			"reason", reason,
			"error", err.Error())
		s.metrics.RecordError(ctx, op)
		return false
	}
	LogEviction(ctx, s.logger, op, name, reason)
	s.metrics.RecordEviction(ctx, op, reason)
	return true
}

// tempFileGrace is how old a temporary file must be before Clear treats it
// as abandoned. Younger ones may belong to a Set still in flight.
const tempFileGrace = time.Minute

// Clear removes every entry file and any abandoned temporary files. It keeps
// going after a failure and returns false if anything could not be removed.
func (s *Store[V]) Clear(ctx context.Context) bool {
	if s.closed.Load() {
		return false
	}
	start := time.Now()

	files, err := s.entryFiles(ctx, false)
	if err != nil {
		s.logger.Warn(ctx, "failed to list cache directory", "operation", string(OpClear), "error", err.Error())
		s.metrics.RecordError(ctx, OpClear)
		return false
	}

	ok := true
	removed := 0
	for _, f := range files {
		if err := s.storage.Remove(ctx, f.Name); err != nil {
			ok = false
			s.logger.Warn(ctx, "failed to remove cache entry",
				"operation", string(OpClear), "file", f.Name, "error", err.Error())
			s.metrics.RecordError(ctx, OpClear)
			continue
		}
		removed++
	}

	temps, err := s.storage.CleanupTempFiles(ctx, time.Now().Add(-tempFileGrace))
	if err != nil {
		ok = false
		s.logger.Warn(ctx, "failed to remove temporary files", "operation", string(OpClear), "error", err.Error())
	}

	s.metrics.RecordSweep(ctx, OpClear, time.Since(start))
	s.logger.Info(ctx, "cache cleared",
		"operation", string(OpClear),
		"entries_removed", removed,
		"temp_files_removed", temps,
		"success", ok)
	return ok
}

// Count returns the number of entry files, expired ones included.
func (s *Store[V]) Count(ctx context.Context) (int, error) {
	files, err := s.entryFiles(ctx, false)
	if err != nil {
		return 0, err
	}
	return len(files), nil
}

// Size returns the total size in bytes of all entry files.
func (s *Store[V]) Size(ctx context.Context) (int64, error) {
	files, err := s.entryFiles(ctx, false)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, f := range files {
		total += f.Size
	}
	return total, nil
}

// entryFiles lists the regular files in the cache directory. Unless all is
// set, only files with the .cache suffix are returned.
func (s *Store[V]) entryFiles(ctx context.Context, all bool) ([]storage.File, error) {
	files, err := s.storage.ListFiles(ctx)
	if err != nil {
		return nil, err
	}
	if all {
		return files, nil
	}
	out := files[:0]
	for _, f := range files {
		if strings.HasSuffix(f.Name, FileSuffix) {
			out = append(out, f)
		}
	}
	return out, nil
}

// missReason classifies a lookup failure for logs and metrics.
func missReason(err error) string {
	switch {
	case stderrors.Is(err, ErrNotFound):
		return ReasonNotFound
	case stderrors.Is(err, ErrExpired):
		return ReasonExpired
	case stderrors.Is(err, ErrCorrupt):
		return ReasonCorrupt
	case stderrors.Is(err, ErrClosed):
		return ReasonClosed
	default:
		return ReasonIO
	}
}

// isNil reports whether v serializes as null.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Chan, reflect.Func:
		return rv.IsNil()
	default:
		return false
	}
}
