package fscache

import (
	"github.com/jmgilman/go/errors"
)

// Sentinel errors. Each carries a platform error code so hosts can map them
// with errors.GetCode; callers compare with errors.Is.
var (
	// ErrInvalidKey is returned synchronously by every key-taking operation
	// before the filesystem is touched.
	ErrInvalidKey = errors.New(errors.CodeInvalidInput, "invalid cache key")

	// ErrDirectoryUnwritable is returned by New when the cache directory
	// cannot be created or written.
	ErrDirectoryUnwritable = errors.New(errors.CodeForbidden, "cache directory is not writable")

	// ErrInvalidConfig is returned when a Config or Option is rejected.
	ErrInvalidConfig = errors.New(errors.CodeInvalidConfig, "invalid cache configuration")

	// ErrUnsupportedCipher is returned when the configured cipher is unknown.
	ErrUnsupportedCipher = errors.New(errors.CodeInvalidConfig, "unsupported cipher")

	// ErrNotFound is returned by Lookup when no entry file exists.
	ErrNotFound = errors.New(errors.CodeNotFound, "cache entry not found")

	// ErrExpired is returned by Lookup when the entry exists but has expired.
	ErrExpired = errors.New(errors.CodeNotFound, "cache entry has expired")

	// ErrCorrupt is returned by Lookup when the entry cannot be decoded.
	ErrCorrupt = errors.New(errors.CodeInternal, "cache entry is corrupted")

	// ErrClosed is returned by Lookup after Close.
	ErrClosed = errors.New(errors.CodeUnavailable, "cache is closed")
)
