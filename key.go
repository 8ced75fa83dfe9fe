package fscache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
)

// FileSuffix is appended to the hashed key to form an entry file name.
const FileSuffix = ".cache"

// forbiddenKeyChars may not appear anywhere in a key.
const forbiddenKeyChars = `{}()/\@:`

// ValidateKey reports whether key may be used with the cache. The empty key
// and keys containing any of { } ( ) / \ @ : are rejected with ErrInvalidKey.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: key cannot be empty", ErrInvalidKey)
	}
	if i := strings.IndexAny(key, forbiddenKeyChars); i >= 0 {
		return fmt.Errorf("%w: %q contains reserved character %q", ErrInvalidKey, key, key[i])
	}
	return nil
}

// FileName returns the entry file name for key: the hex SHA-256 digest of the
// key followed by FileSuffix. The key is assumed to be valid.
func FileName(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:]) + FileSuffix
}

// PathFor returns the entry file path for key under baseDir.
func PathFor(baseDir, key string) string {
	return filepath.Join(baseDir, FileName(key))
}
