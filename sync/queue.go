package sync

import (
	"log/slog"
	"path/filepath"
	"strings"
	gosync "sync"
)

// EvalQueue is a thread-safe set-based queue of relative directory paths
// awaiting a mirror pass. A path is dropped when it or one of its ancestors
// is already queued, and queuing an ancestor absorbs its queued
// descendants, since mirroring a directory covers its whole subtree.
// Pop returns paths in FIFO order. The root is "".
type EvalQueue struct {
	mu     gosync.Mutex
	set    map[string]struct{}
	order  []string
	notify chan struct{} // signaled when items are added
}

// NewEvalQueue creates a new eval queue.
func NewEvalQueue() *EvalQueue {
	return &EvalQueue{
		set:    make(map[string]struct{}),
		notify: make(chan struct{}, 1),
	}
}

// Push adds a path to the queue.
func (q *EvalQueue) Push(path string) {
	q.PushMany([]string{path})
}

// PushMany adds multiple paths to the queue.
func (q *EvalQueue) PushMany(paths []string) {
	q.mu.Lock()
	added := 0
	for _, path := range paths {
		if q.pushLocked(cleanRel(path)) {
			added++
		}
	}
	newLen := len(q.order)
	q.mu.Unlock()

	if logEnabled(slog.LevelDebug) {
		sub("queue").Debug("push", "requested", len(paths), "added", added, "queueLen", newLen)
	}

	if added > 0 {
		// Non-blocking signal
		select {
		case q.notify <- struct{}{}:
		default:
		}
	}
}

func (q *EvalQueue) pushLocked(path string) bool {
	for p := path; ; p = parentRel(p) {
		if _, exists := q.set[p]; exists {
			return false
		}
		if p == "" {
			break
		}
	}

	kept := q.order[:0]
	for _, queued := range q.order {
		if isUnder(path, queued) {
			delete(q.set, queued)
			continue
		}
		kept = append(kept, queued)
	}
	q.order = append(kept, path)
	q.set[path] = struct{}{}
	return true
}

// Pop removes and returns the next path. Blocks until a path is available
// or the done channel is closed. Returns ("", false) when done.
func (q *EvalQueue) Pop(done <-chan struct{}) (string, bool) {
	for {
		q.mu.Lock()
		if len(q.order) > 0 {
			path := q.order[0]
			q.order = q.order[1:]
			delete(q.set, path)
			remaining := len(q.order)
			q.mu.Unlock()
			if logEnabled(slog.LevelDebug) {
				sub("queue").Debug("pop", "path", path, "queueLen", remaining)
			}
			return path, true
		}
		q.mu.Unlock()

		// Wait for signal or done
		select {
		case <-done:
			sub("queue").Debug("pop cancelled")
			return "", false
		case <-q.notify:
			// Loop back to check queue
		}
	}
}

// Len returns the current queue size.
func (q *EvalQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.order)
}

func cleanRel(rel string) string {
	return filepath.Join(splitRel(rel)...)
}

func parentRel(rel string) string {
	parent := filepath.Dir(rel)
	if parent == "." {
		return ""
	}
	return parent
}

// isUnder reports whether rel lies strictly below ancestor.
func isUnder(ancestor, rel string) bool {
	if rel == ancestor {
		return false
	}
	if ancestor == "" {
		return true
	}
	return strings.HasPrefix(rel, ancestor+string(filepath.Separator))
}
