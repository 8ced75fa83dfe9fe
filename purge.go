package fscache

import (
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/jmgilman/go/fscache/internal/envelope"
)

// PurgeResult summarizes one purge sweep.
type PurgeResult struct {
	// Scanned is the number of candidate files examined.
	Scanned int
	// RemovedExpired counts entries removed because they had expired.
	RemovedExpired int
	// RemovedCorrupt counts files removed because they could not be read or decoded.
	RemovedCorrupt int
	// Kept counts valid, unexpired entries left in place.
	Kept int
	// Failed counts files that should have been removed but were not.
	Failed int
}

// Removed returns the total number of files removed.
func (r PurgeResult) Removed() int {
	return r.RemovedExpired + r.RemovedCorrupt
}

// Purge removes expired, unreadable and structurally invalid entries. It
// returns false if the directory could not be listed or any removal failed.
func (s *Store[V]) Purge(ctx context.Context) bool {
	res, err := s.PurgeReport(ctx)
	return err == nil && res.Failed == 0
}

// PurgeReport performs the purge sweep and reports what it did.
//
// Candidates are the files with the .cache suffix, or every regular file
// when the store was configured with PurgeAllFiles. Directories and
// in-flight temporary files are never candidates. Per-file failures are
// counted in Failed and returned joined.
func (s *Store[V]) PurgeReport(ctx context.Context) (PurgeResult, error) {
	var res PurgeResult
	if s.closed.Load() {
		return res, ErrClosed
	}
	start := time.Now()

	files, err := s.entryFiles(ctx, s.cfg.PurgeAllFiles)
	if err != nil {
		s.logger.Warn(ctx, "failed to list cache directory", "operation", string(OpPurge), "error", err.Error())
		s.metrics.RecordError(ctx, OpPurge)
		return res, fmt.Errorf("failed to list cache directory: %w", err)
	}

	var errs []error
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		res.Scanned++

		reason, err := s.inspect(ctx, f.Name)
		switch {
		case err != nil:
			res.Failed++
			errs = append(errs, err)
			continue
		case reason == "":
			res.Kept++
			continue
		}

		if !s.evict(ctx, OpPurge, f.Name, reason) {
			res.Failed++
			errs = append(errs, fmt.Errorf("failed to remove %s", f.Name))
			continue
		}
		if reason == ReasonExpired {
			res.RemovedExpired++
		} else {
			res.RemovedCorrupt++
		}
	}

	elapsed := time.Since(start)
	s.metrics.RecordSweep(ctx, OpPurge, elapsed)
	LogCleanup(ctx, s.logger, OpPurge, res, elapsed)

	return res, stderrors.Join(errs...)
}

// inspect returns the eviction reason for a candidate file, or "" if it is a
// valid, unexpired entry. A file removed concurrently since listing counts
// as kept.
func (s *Store[V]) inspect(ctx context.Context, name string) (string, error) {
	data, err := s.storage.Read(ctx, name)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		if ctx.Err() != nil {
			return "", err
		}
		return ReasonCorrupt, nil
	}

	_, exp, err := envelope.Decode[V](s.env, data)
	if err != nil {
		if stderrors.Is(err, envelope.ErrDestroyed) {
			return "", ErrClosed
		}
		return ReasonCorrupt, nil
	}
	if !s.alive(exp) {
		return ReasonExpired, nil
	}
	return "", nil
}
