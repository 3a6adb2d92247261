// Package index maintains a flat listing of the regular files under the
// shared root, used by the search and showfiles commands.
//
// Readers load the current Snapshot through an atomic pointer and never
// block. Refresh walks the tree into a new Snapshot and swaps it in;
// refreshes and upserts are serialized by a mutex so a slow walk cannot be
// overwritten by an older one.
package index

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/filebox/internal/logger"
	"github.com/marmos91/filebox/pkg/sandbox"
)

// Metrics receives index events. A nil Metrics disables collection.
type Metrics interface {
	ObserveRefresh(d time.Duration, err error)
	SetEntries(n int)
}

// Indexer owns the snapshot for one root. It is safe for concurrent use.
type Indexer struct {
	root    string
	backend Backend
	metrics Metrics

	mu   sync.Mutex // serializes Refresh and Upsert
	snap atomic.Pointer[Snapshot]
}

// New returns an Indexer over root with an empty snapshot. A nil backend
// uses a MemoryBackend. Call Load to restore a persisted snapshot and
// Refresh to build a fresh one.
func New(root string, backend Backend, metrics Metrics) (*Indexer, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve index root %q: %w", root, err)
	}
	if backend == nil {
		backend = NewMemoryBackend()
	}
	ix := &Indexer{root: abs, backend: backend, metrics: metrics}
	ix.snap.Store(newSnapshot(nil, time.Time{}))
	return ix, nil
}

// Root returns the indexed directory.
func (ix *Indexer) Root() string {
	return ix.root
}

// Backend returns the persistence backend.
func (ix *Indexer) Backend() Backend {
	return ix.backend
}

// Snapshot returns the current snapshot.
func (ix *Indexer) Snapshot() *Snapshot {
	return ix.snap.Load()
}

// Len returns the number of indexed files.
func (ix *Indexer) Len() int {
	return ix.snap.Load().Len()
}

// Lookup searches the current snapshot and returns the virtual directory of
// the first match.
func (ix *Indexer) Lookup(name string) (string, bool) {
	e, ok := ix.snap.Load().Lookup(name)
	if !ok {
		return "", false
	}
	return e.Location(), true
}

// List returns the entries under directories matching filter.
func (ix *Indexer) List(filter string) []Entry {
	return ix.snap.Load().List(filter)
}

// Load replaces the snapshot with whatever the backend persisted.
func (ix *Indexer) Load(ctx context.Context) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	entries, builtAt, err := ix.backend.Load(ctx)
	if err != nil {
		return err
	}
	ix.publish(newSnapshot(entries, builtAt))
	logger.Debug("Index loaded", logger.KeyBackend, ix.backend.Name(), logger.KeyEntries, len(entries))
	return nil
}

// Refresh walks the root and publishes a new snapshot. The previous snapshot
// stays visible until the walk completes. On error the previous snapshot is
// kept.
func (ix *Indexer) Refresh(ctx context.Context) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	start := time.Now()
	entries, err := ix.walk(ctx)
	if err == nil {
		builtAt := time.Now()
		ix.publish(newSnapshot(entries, builtAt))
		if serr := ix.backend.Save(ctx, entries, builtAt); serr != nil {
			logger.Warn("Failed to persist index", logger.KeyBackend, ix.backend.Name(), logger.KeyError, serr)
		}
	}
	if ix.metrics != nil {
		ix.metrics.ObserveRefresh(time.Since(start), err)
	}
	if err != nil {
		return fmt.Errorf("index refresh: %w", err)
	}

	logger.Debug("Index refreshed",
		logger.KeyEntries, len(entries),
		logger.KeyDurationMs, float64(time.Since(start).Microseconds())/1000.0)
	return nil
}

// Upsert adds or replaces one entry without walking the tree.
func (ix *Indexer) Upsert(ctx context.Context, e Entry) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.publish(ix.snap.Load().with(e))
	if err := ix.backend.Put(ctx, e); err != nil {
		return fmt.Errorf("persist index entry %q: %w", e.Path, err)
	}
	return nil
}

// UpsertFile stats an absolute path under the root and upserts it.
func (ix *Indexer) UpsertFile(ctx context.Context, abs string) error {
	info, err := os.Stat(abs)
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(ix.root, abs)
	if err != nil {
		return err
	}
	return ix.Upsert(ctx, Entry{
		Path:    filepath.ToSlash(rel),
		Size:    info.Size(),
		ModTime: info.ModTime(),
	})
}

// Close releases the backend.
func (ix *Indexer) Close() error {
	return ix.backend.Close()
}

func (ix *Indexer) publish(s *Snapshot) {
	ix.snap.Store(s)
	if ix.metrics != nil {
		ix.metrics.SetEntries(s.Len())
	}
}

// indexable reports whether a path component can be served. Uploads in
// progress and names that cannot travel on a single line are skipped.
func indexable(name string) bool {
	return !sandbox.IsTemp(name) && !strings.ContainsAny(name, "\r\n")
}

// walk lists regular files under the root. Symlinks are not followed.
// Unreadable subdirectories are skipped; an unreadable root is an error.
func (ix *Indexer) walk(ctx context.Context) ([]Entry, error) {
	var entries []Entry
	err := filepath.WalkDir(ix.root, func(p string, d fs.DirEntry, err error) error {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if err != nil {
			if p == ix.root {
				return err
			}
			logger.Debug("Index skipping unreadable path", logger.KeyPath, p, logger.KeyError, err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if p != ix.root && !indexable(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			logger.Debug("Index skipping file", logger.KeyPath, p, logger.KeyError, err)
			return nil
		}
		rel, err := filepath.Rel(ix.root, p)
		if err != nil {
			return nil
		}
		entries = append(entries, Entry{
			Path:    filepath.ToSlash(rel),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}
