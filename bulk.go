package fscache

import (
	"context"
	stderrors "errors"
	"slices"
)

// GetMultiple returns a map holding, for every key, its value or def. Every
// key is validated before any file is read. Expired and unreadable entries
// are removed as Get does.
func (s *Store[V]) GetMultiple(ctx context.Context, keys []string, def V) (map[string]V, error) {
	for _, key := range keys {
		if err := ValidateKey(key); err != nil {
			return nil, err
		}
	}

	out := make(map[string]V, len(keys))
	for _, key := range keys {
		if v, ok := s.get(ctx, OpGet, key); ok {
			out[key] = v
		} else {
			out[key] = def
		}
	}
	return out, nil
}

// SetMultiple stores every entry with the same ttl. It continues past
// failures and returns true only if every entry was written. Invalid keys are
// skipped and reported together as an ErrInvalidKey error.
func (s *Store[V]) SetMultiple(ctx context.Context, entries map[string]V, ttl TTL) (bool, error) {
	keys := make([]string, 0, len(entries))
	for key := range entries {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	return s.each(keys, func(key string) (bool, error) {
		return s.Set(ctx, key, entries[key], ttl)
	})
}

// DeleteMultiple deletes every key. It continues past failures and returns
// true only if every deletion succeeded. Invalid keys are skipped and
// reported together as an ErrInvalidKey error.
func (s *Store[V]) DeleteMultiple(ctx context.Context, keys []string) (bool, error) {
	return s.each(keys, func(key string) (bool, error) {
		return s.Delete(ctx, key)
	})
}

func (s *Store[V]) each(keys []string, fn func(key string) (bool, error)) (bool, error) {
	all := true
	var errs []error
	for _, key := range keys {
		ok, err := fn(key)
		if err != nil {
			errs = append(errs, err)
		}
		if !ok {
			all = false
		}
	}
	return all, stderrors.Join(errs...)
}
