package index

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/marmos91/filebox/internal/logger"
)

// DefaultDebounce is how long the watcher waits after the last change
// before rebuilding.
const DefaultDebounce = 500 * time.Millisecond

// Watcher rebuilds the index after filesystem changes under the root.
// fsnotify watches are not recursive, so every directory is added
// individually and new directories are added as they appear.
type Watcher struct {
	ix       *Indexer
	fsw      *fsnotify.Watcher
	debounce time.Duration
}

// NewWatcher registers watches on the root and all of its directories.
func NewWatcher(ix *Indexer, debounce time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	w := &Watcher{ix: ix, fsw: fsw, debounce: debounce}
	if err := w.addTree(ix.root); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.fsw.Add(p); err != nil {
			if p == dir {
				return fmt.Errorf("failed to watch %q: %w", p, err)
			}
			logger.Debug("Cannot watch directory", logger.KeyPath, p, logger.KeyError, err)
		}
		return nil
	})
}

// Run processes events until ctx is cancelled, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) {
	defer func() { _ = w.fsw.Close() }()

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Lstat(event.Name); err == nil && info.IsDir() {
					if err := w.addTree(event.Name); err != nil {
						logger.Debug("Cannot watch new directory", logger.KeyPath, event.Name, logger.KeyError, err)
					}
				}
			}
			if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
				continue
			}
			timer.Reset(w.debounce)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logger.Warn("File watcher error", logger.KeyError, err)

		case <-timer.C:
			if err := w.ix.Refresh(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("Index refresh after change failed", logger.KeyError, err)
			}
		}
	}
}
