package sync

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

const debounceInterval = 300 * time.Millisecond

// Watcher monitors the source tree and feeds the parent directory of every
// changed path into the eval queue. Excluded subtrees are not watched.
type Watcher struct {
	root    string
	excl    *ExclusionSet
	queue   *EvalQueue
	watcher *fsnotify.Watcher
}

// NewWatcher creates a filesystem watcher for the source root.
func NewWatcher(root string, excl *ExclusionSet, queue *EvalQueue) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		root:    root,
		excl:    excl,
		queue:   queue,
		watcher: w,
	}, nil
}

// Start begins watching and debouncing events. Blocks until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	l := sub("watcher")
	if err := w.addRecursive(w.root); err != nil {
		return err
	}

	l.Info("watching", "root", w.root)

	// Debounce timer and pending paths
	pending := make(map[string]struct{})
	timer := time.NewTimer(debounceInterval)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			w.watcher.Close()
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}

			rel, ok := w.toRelPath(event.Name)
			if !ok || (w.excl.ExcludedPath(rel, false) && w.excl.ExcludedPath(rel, true)) {
				continue
			}

			pending[parentRel(rel)] = struct{}{}

			// Reset debounce timer
			timer.Reset(debounceInterval)

			// If a new directory was created, watch it and anything already inside
			if event.Has(fsnotify.Create) {
				w.addRecursive(event.Name) //nolint:errcheck
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			l.Warn("watcher error", "err", err)

		case <-timer.C:
			// Debounce timer fired: flush pending paths to queue
			if len(pending) > 0 {
				paths := make([]string, 0, len(pending))
				for p := range pending {
					paths = append(paths, p)
				}
				w.queue.PushMany(paths)
				l.Debug("flushed to queue", "paths", len(paths))
				pending = make(map[string]struct{})
			}
		}
	}
}

// toRelPath converts an absolute path under the root to a relative path.
// The root itself is not a change target.
func (w *Watcher) toRelPath(absPath string) (string, bool) {
	rel, err := filepath.Rel(w.root, absPath)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return rel, true
}

// addRecursive adds a directory and all non-excluded subdirectories to the watcher.
func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip inaccessible dirs
		}
		if !d.IsDir() {
			return nil
		}
		if rel, ok := w.toRelPath(path); ok && w.excl.ExcludedPath(rel, true) {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
}

// Close closes the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
