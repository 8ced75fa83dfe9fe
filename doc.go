// Package fscache provides a filesystem-backed key/value cache with
// per-entry expiration and optional symmetric encryption.
//
// Every entry is a single file in one flat directory, named by the hex
// SHA-256 digest of its key with a ".cache" suffix. A file holds the
// serialized record {value, expiration}; when a secret is configured the
// record is encrypted and stored as BASE64(IV || CIPHERTEXT).
//
// # Usage
//
//	store, err := fscache.New[Profile](fscache.Config{
//	    Dir:        "/var/cache/myapp",
//	    Secret:     os.Getenv("CACHE_SECRET"),
//	    DefaultTTL: 3600,
//	})
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	ok, err := store.Set(ctx, "user-42", profile, fscache.TTLDuration(10*time.Minute))
//	p, err := store.Get(ctx, "user-42", Profile{})
//
// # Failure Model
//
// Read, decode and write failures never surface as errors. Get and Has
// report a miss, Set, Delete, Clear and Purge report false, and the cause is
// logged and counted. Malformed keys are the exception and fail with
// ErrInvalidKey before the filesystem is touched. Lookup returns the
// underlying cause (ErrNotFound, ErrExpired, ErrCorrupt, ErrClosed) for
// diagnostics and tests.
//
// # Expiration
//
// An entry is served while its expiration is strictly after the current
// Unix second. Get and GetMultiple remove expired or unreadable files when
// they find them; Has never does. Purge sweeps the whole directory and
// Janitor runs Purge on a cron schedule.
//
// # Encryption
//
// The key is the SHA-256 digest of the secret truncated to the cipher's key
// size. Whether a file is encrypted is not recorded in the file: a store
// must read with the secret it wrote with. Files written under another
// secret read as misses and are reclaimed by Get or Purge.
//
// # Concurrency
//
// A Store is safe for concurrent use. Writes go to a temporary file that is
// renamed over the entry, so readers see either the old or the new entry.
// Writers of the same key race and the last rename wins. Nothing coordinates
// separate processes.
package fscache
