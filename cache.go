package fscache

import "context"

// Cache is the generic cache contract implemented by Store.
//
// Read and write failures are reported as a miss or false. The only error
// returned for a reachable directory is ErrInvalidKey.
type Cache[V any] interface {
	Get(ctx context.Context, key string, def V) (V, error)
	Set(ctx context.Context, key string, value V, ttl TTL) (bool, error)
	Delete(ctx context.Context, key string) (bool, error)
	Has(ctx context.Context, key string) (bool, error)
	Clear(ctx context.Context) bool
	GetMultiple(ctx context.Context, keys []string, def V) (map[string]V, error)
	SetMultiple(ctx context.Context, entries map[string]V, ttl TTL) (bool, error)
	DeleteMultiple(ctx context.Context, keys []string) (bool, error)
}

// Purger reclaims expired and unreadable entries.
type Purger interface {
	PurgeReport(ctx context.Context) (PurgeResult, error)
}

var (
	_ Cache[any] = (*Store[any])(nil)
	_ Purger     = (*Store[any])(nil)
)
