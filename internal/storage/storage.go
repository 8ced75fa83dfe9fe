// Package storage provides atomic filesystem operations over a single flat
// cache directory.
//
// Storage uses core.FS for filesystem abstraction, supporting both OS and
// in-memory filesystems. Writes go to a hidden temporary file in the same
// directory and are renamed over the target, so readers observe either the
// previous file or the complete new one.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmgilman/go/fs/core"
	"github.com/oklog/ulid/v2"
)

const (
	// tempMarker is embedded in the name of every in-flight write.
	tempMarker = ".tmp-"
	// probePrefix names the file used to check the directory is writable.
	probePrefix = ".probe-"

	dirPerm  fs.FileMode = 0o755
	filePerm fs.FileMode = 0o600
)

// ErrUnwritable is returned when the root directory cannot be created or written.
var ErrUnwritable = errors.New("directory is not writable")

// Storage provides atomic, idempotent file operations rooted at one directory.
type Storage struct {
	fs   core.FS
	root string
}

// New creates a storage instance rooted at root. The directory is created if
// missing and probed for writability; any failure wraps ErrUnwritable.
func New(fsys core.FS, root string) (*Storage, error) {
	if fsys == nil {
		return nil, fmt.Errorf("filesystem cannot be nil")
	}
	if root == "" {
		return nil, fmt.Errorf("root path cannot be empty")
	}

	if err := fsys.MkdirAll(root, dirPerm); err != nil {
		return nil, fmt.Errorf("%w: failed to create %q: %w", ErrUnwritable, root, err)
	}

	info, err := fsys.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to stat %q: %w", ErrUnwritable, root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %q is not a directory", ErrUnwritable, root)
	}

	s := &Storage{fs: fsys, root: root}
	if err := s.probe(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnwritable, err)
	}

	return s, nil
}

// Root returns the directory this storage is rooted at.
func (s *Storage) Root() string {
	return s.root
}

// Path returns the full path of name inside the root directory.
func (s *Storage) Path(name string) string {
	return filepath.Join(s.root, name)
}

// probe writes and removes a uniquely named file.
func (s *Storage) probe() error {
	path := s.Path(probePrefix + ulid.Make().String())
	if err := s.fs.WriteFile(path, nil, filePerm); err != nil {
		return fmt.Errorf("failed to write probe file: %w", err)
	}
	if err := s.fs.Remove(path); err != nil {
		return fmt.Errorf("failed to remove probe file: %w", err)
	}
	return nil
}

// WriteAtomically writes data to name using a temporary file and rename.
// Either the complete file is written or the previous content is kept.
func (s *Storage) WriteAtomically(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	fullPath := s.Path(name)
	tempPath := s.Path(TempName(name))

	if err := s.writeFile(tempPath, data); err != nil {
		_ = s.fs.Remove(tempPath)
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := s.fs.Rename(tempPath, fullPath); err != nil {
		_ = s.fs.Remove(tempPath)
		return fmt.Errorf("failed to rename temp file to %q: %w", fullPath, err)
	}

	return nil
}

// writeFile creates path, writes data and syncs when the file supports it.
func (s *Storage) writeFile(path string, data []byte) error {
	file, err := s.fs.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file %q: %w", path, err)
	}

	if _, err := file.Write(data); err != nil {
		_ = file.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}

	if syncer, ok := file.(core.Syncer); ok {
		if err := syncer.Sync(); err != nil {
			_ = file.Close()
			return fmt.Errorf("failed to sync file: %w", err)
		}
	}

	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}
	return nil
}

// Read returns the content of name. A missing file yields an error matching
// fs.ErrNotExist.
func (s *Storage) Read(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}

	data, err := s.fs.ReadFile(s.Path(name))
	if err != nil {
		return nil, fmt.Errorf("failed to read %q: %w", name, err)
	}
	return data, nil
}

// Remove removes name from the storage. Removing a missing file is not an error.
func (s *Storage) Remove(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	err := s.fs.Remove(s.Path(name))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove file %q: %w", name, err)
	}
	return nil
}

// File describes a regular file in the root directory.
type File struct {
	Name string
	Size int64
}

// ListFiles returns the regular files in the root directory, excluding
// in-flight temporary files. Subdirectories are never listed.
func (s *Storage) ListFiles(ctx context.Context) ([]File, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}

	entries, err := s.fs.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %q: %w", s.root, err)
	}

	files := make([]File, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() || IsTempName(entry.Name()) {
			continue
		}
		var size int64
		if info, err := entry.Info(); err == nil {
			size = info.Size()
		}
		files = append(files, File{Name: entry.Name(), Size: size})
	}

	return files, nil
}

// CleanupTempFiles removes temporary and probe files created before cutoff.
// Their age is taken from the ULID in the name; names without a valid ULID
// are always removed. It returns how many files were removed.
func (s *Storage) CleanupTempFiles(ctx context.Context, cutoff time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("context cancelled: %w", err)
	}

	entries, err := s.fs.ReadDir(s.root)
	if err != nil {
		return 0, fmt.Errorf("failed to read directory %q: %w", s.root, err)
	}

	var (
		removed int
		errs    []error
	)
	for _, entry := range entries {
		if entry.IsDir() || !IsTempName(entry.Name()) {
			continue
		}
		if created, ok := tempCreated(entry.Name()); ok && !created.Before(cutoff) {
			continue
		}
		if err := s.Remove(ctx, entry.Name()); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}

	return removed, errors.Join(errs...)
}

// TempName returns a unique temporary name for an in-flight write of name.
func TempName(name string) string {
	return TempNameAt(name, time.Now())
}

// TempNameAt returns a unique temporary name stamped with t.
func TempNameAt(name string, t time.Time) string {
	return "." + name + tempMarker + ulid.MustNew(ulid.Timestamp(t), ulid.DefaultEntropy()).String()
}

// tempCreated extracts the creation time encoded in a temp or probe name.
func tempCreated(name string) (time.Time, bool) {
	var id string
	if i := strings.LastIndex(name, tempMarker); i >= 0 {
		id = name[i+len(tempMarker):]
	} else {
		id = strings.TrimPrefix(name, probePrefix)
	}
	u, err := ulid.ParseStrict(id)
	if err != nil {
		return time.Time{}, false
	}
	return ulid.Time(u.Time()), true
}

// IsTempName reports whether name belongs to an in-flight write or a probe.
func IsTempName(name string) bool {
	if !strings.HasPrefix(name, ".") {
		return false
	}
	return strings.Contains(name, tempMarker) || strings.HasPrefix(name, probePrefix)
}
