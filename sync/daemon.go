package sync

import (
	"context"
	"errors"
	"os"
	"path/filepath"
)

// Daemon keeps the destination mirrored while the source changes: an
// initial full run, then a watcher feeding the eval queue and a single
// worker mirroring each queued directory. Runs never overlap.
type Daemon struct {
	engine *Engine
	queue  *EvalQueue
}

// NewDaemon creates a watch-mode daemon around engine. The engine must use
// the OS filesystem since changes are observed with fsnotify.
func NewDaemon(engine *Engine) *Daemon {
	return &Daemon{
		engine: engine,
		queue:  NewEvalQueue(),
	}
}

// Queue returns the eval queue.
func (d *Daemon) Queue() *EvalQueue {
	return d.queue
}

// Run performs the initial mirror, starts the watcher, then processes the
// eval queue. Blocks until ctx is cancelled. Only the initial run and
// watcher setup are fatal; later pass failures are logged and the daemon
// keeps going.
func (d *Daemon) Run(ctx context.Context) error {
	l := sub("daemon")
	roots := d.engine.Roots()
	l.Info("watch daemon starting", "source", roots.Source, "dest", roots.Dest)

	// Phase 1: full mirror
	if _, err := d.engine.Run(); err != nil {
		l.Error("initial mirror failed, daemon aborting", "err", err)
		return err
	}

	// Phase 2: watcher in background
	watcher, err := NewWatcher(roots.Source, d.engine.excl, d.queue)
	if err != nil {
		l.Error("watcher creation failed, daemon aborting", "err", err)
		return err
	}
	defer watcher.Close()

	go func() {
		if err := watcher.Start(ctx); err != nil && ctx.Err() == nil {
			l.Warn("watcher stopped unexpectedly", "err", err)
		}
	}()

	// Phase 3: worker loop
	l.Info("worker loop started")
	done := ctx.Done()
	for {
		rel, ok := d.queue.Pop(done)
		if !ok {
			l.Info("worker stopping, context cancelled")
			break
		}
		d.mirrorPass(rel)
	}

	l.Info("watch daemon stopped")
	return nil
}

// mirrorPass mirrors the nearest existing source directory at or above rel,
// so a deleted directory is pruned through its parent.
func (d *Daemon) mirrorPass(rel string) {
	l := sub("daemon")
	src := d.engine.Roots().Source
	for rel != "" {
		info, err := d.engine.fs.Stat(filepath.Join(src, rel))
		if err == nil && info.IsDir() {
			break
		}
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			l.Warn("stat queued path failed", "path", rel, "err", err)
		}
		rel = parentRel(rel)
	}

	report, err := d.engine.MirrorAt(rel)
	if err != nil {
		l.Error("mirror pass failed", "path", rel, "err", err)
		return
	}
	if report.Changed() || len(report.PruneFailures) > 0 {
		l.Info("mirror pass", "path", rel, "summary", report.String())
	} else {
		l.Debug("mirror pass, no changes", "path", rel)
	}
}
