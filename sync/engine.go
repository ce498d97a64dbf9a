package sync

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/maruel/natural"
	"github.com/samber/lo"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/spf13/afero"
)

// Options tunes a run.
type Options struct {
	// DryRun reports the changes a run would make without mutating anything.
	DryRun bool
	// TrashDir, when set, receives orphans (in a dated subdirectory) instead
	// of deleting them. It must be absolute and lie outside both roots,
	// symlinks included; see ResolveTrashDir.
	TrashDir string
}

func (o Options) validate(roots Roots) error {
	if o.TrashDir == "" {
		return nil
	}
	trash := resolveExisting(o.TrashDir)
	if within(roots.Dest, trash) || within(roots.Source, trash) {
		return fmt.Errorf("trash dir %s must be outside both roots", o.TrashDir)
	}
	return nil
}

// Engine mirrors a source tree onto a destination tree. An Engine holds no
// mutable state between runs and is not safe for concurrent runs.
type Engine struct {
	fs    afero.Fs
	roots Roots
	excl  *ExclusionSet
	opts  Options
}

// NewEngine creates an engine for validated roots (see ResolveRoots).
// A nil exclusion set excludes nothing.
func NewEngine(fsys afero.Fs, roots Roots, excl *ExclusionSet, opts Options) *Engine {
	return &Engine{fs: fsys, roots: roots, excl: excl, opts: opts}
}

// Roots returns the root pair.
func (e *Engine) Roots() Roots {
	return e.roots
}

// Run mirrors the whole tree.
func (e *Engine) Run() (*Report, error) {
	l := sub("mirror")
	l.Info("mirror starting", "source", e.roots.Source, "dest", e.roots.Dest,
		"dryRun", e.opts.DryRun, "match", e.excl.Mode().String(), "exclude", e.excl.Patterns())
	if usage, err := disk.Usage(e.roots.Dest); err == nil {
		l.Info("destination disk", "free", humanize.Bytes(usage.Free), "used", fmt.Sprintf("%.1f%%", usage.UsedPercent))
	} else {
		l.Debug("destination disk usage unavailable", "err", err)
	}

	report, err := e.MirrorAt("")
	if err != nil {
		l.Error("mirror aborted", "err", err, "changes", len(report.Changes))
		return report, err
	}
	l.Info("mirror complete", "dest", e.roots.Dest, "elapsed", report.Elapsed, "summary", report.String())
	return report, nil
}

// MirrorAt brings dest/rel into agreement with source/rel. rel is relative
// to the roots ("" for the whole tree); source/rel must exist. Traversal is
// depth-first over an explicit stack and stops at the first fatal error.
func (e *Engine) MirrorAt(rel string) (*Report, error) {
	start := nowFunc()
	report := &Report{DryRun: e.opts.DryRun}
	defer func() { report.Elapsed = nowFunc().Sub(start) }()

	if err := e.opts.validate(e.roots); err != nil {
		return report, err
	}
	segs := splitRel(rel)
	if lo.Contains(segs, "..") {
		return report, fmt.Errorf("relative path %q escapes root", rel)
	}
	root := Entry{
		Src: filepath.Join(append([]string{e.roots.Source}, segs...)...),
		Dst: filepath.Join(append([]string{e.roots.Dest}, segs...)...),
		Rel: segs,
	}
	info, err := e.fs.Stat(root.Src)
	if err != nil {
		return report, &OpError{Op: "stat", Path: root.Src, Kind: ErrList, Err: err}
	}
	root.Kind = kindOf(info)

	stack := []Entry{root}
	for len(stack) > 0 {
		entry := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		children, err := e.visit(entry, report)
		if err != nil {
			return report, err
		}
		// Push in reverse so children pop in listing order.
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, children[i])
		}
	}
	return report, nil
}

// visit processes one node and returns the source children to visit next.
func (e *Engine) visit(entry Entry, r *Report) ([]Entry, error) {
	l := sub("mirror")
	rel := entry.RelPath()

	if e.excl.Excluded(entry.Rel, entry.Kind == KindDir) {
		r.Excluded++
		l.Debug("excluded", "path", rel)
		return nil, nil
	}

	srcInfo, err := e.fs.Stat(entry.Src)
	if err != nil {
		return nil, &OpError{Op: "stat", Path: entry.Src, Kind: ErrList, Err: err}
	}
	entry.Kind = kindOf(srcInfo)

	st := State{SrcDir: entry.Kind == KindDir}
	dstInfo, err := e.fs.Stat(entry.Dst)
	switch {
	case err == nil:
		st.DstExists = true
		st.DstDir = dstInfo.IsDir()
	case !errors.Is(err, os.ErrNotExist):
		return nil, &OpError{Op: "stat", Path: entry.Dst, Kind: ErrList, Err: err}
	}

	if !st.SrcDir && st.DstExists && !st.DstDir {
		same, err := SameContent(e.fs, entry.Src, entry.Dst)
		if err != nil {
			return nil, &OpError{Op: "compare", Path: entry.Src, Kind: ErrCopy, Err: err}
		}
		st.Same = same
	}

	action := st.Action()
	if logEnabled(slog.LevelDebug) {
		l.Debug("visit", "path", rel, "kind", entry.Kind.String(), "action", action.String())
	}

	switch action {
	case ActionKeep:
		r.FilesUnchanged++
		return nil, nil
	case ActionReplace:
		if err := e.replace(entry, st, r); err != nil {
			return nil, err
		}
	}

	if entry.Kind == KindFile {
		return nil, e.copyFile(entry, action, srcInfo.Size(), r)
	}
	return e.syncDir(entry, action, r)
}

// replace removes a destination entry of the wrong kind. Unlike orphan
// pruning this must succeed, otherwise the source entry cannot be mirrored.
func (e *Engine) replace(entry Entry, st State, r *Report) error {
	rel := entry.RelPath()
	was := KindFile
	if st.DstDir {
		was = KindDir
	}
	sub("mirror").Info("replacing", "path", rel, "was", was.String(), "now", entry.Kind.String())
	r.record(ActionReplace, rel)
	r.Removed++
	if e.opts.DryRun {
		return nil
	}
	if err := e.fs.RemoveAll(entry.Dst); err != nil {
		return &OpError{Op: "remove", Path: entry.Dst, Kind: ErrRemove, Err: err}
	}
	return nil
}

func (e *Engine) copyFile(entry Entry, action Action, size int64, r *Report) error {
	rel := entry.RelPath()
	if action != ActionReplace {
		r.record(action, rel)
	}
	if action == ActionUpdate {
		r.FilesUpdated++
	} else {
		r.FilesCopied++
	}

	if e.opts.DryRun {
		r.BytesCopied += size
		sub("mirror").Info("would copy", "path", rel, "action", action.String(), "size", size)
		return nil
	}

	n, err := SafeCopy(e.fs, entry.Src, entry.Dst)
	if err != nil {
		return &OpError{Op: "copy", Path: entry.Dst, Kind: ErrCopy, Err: err}
	}
	r.BytesCopied += n
	sub("mirror").Info("copied", "path", rel, "action", action.String(), "size", n)
	return nil
}

func (e *Engine) syncDir(entry Entry, action Action, r *Report) ([]Entry, error) {
	l := sub("mirror")
	rel := entry.RelPath()

	dstPresent := action == ActionDescend
	if !dstPresent {
		if action != ActionReplace {
			r.record(ActionCreateDir, rel)
		}
		r.DirsCreated++
		if !e.opts.DryRun {
			if err := e.fs.MkdirAll(entry.Dst, dirPerm); err != nil {
				return nil, &OpError{Op: "mkdir", Path: entry.Dst, Kind: ErrCreateDir, Err: err}
			}
			l.Debug("dir created", "path", rel)
		}
	}

	srcInfos, err := afero.ReadDir(e.fs, entry.Src)
	if err != nil {
		return nil, &OpError{Op: "list", Path: entry.Src, Kind: ErrList, Err: err}
	}
	var dstInfos []os.FileInfo
	if dstPresent {
		dstInfos, err = afero.ReadDir(e.fs, entry.Dst)
		if err != nil {
			return nil, &OpError{Op: "list", Path: entry.Dst, Kind: ErrList, Err: err}
		}
	}

	_, orphans := lo.Difference(names(srcInfos), names(dstInfos))
	sort.Slice(orphans, func(i, j int) bool { return natural.Less(orphans[i], orphans[j]) })

	dstByName := lo.KeyBy(dstInfos, func(fi os.FileInfo) string { return fi.Name() })
	for _, orphan := range orphans {
		info := dstByName[orphan]
		child := entry.child(orphan, kindOf(info))
		if e.excl.Excluded(child.Rel, child.Kind == KindDir) {
			r.Excluded++
			l.Debug("orphan excluded, kept", "path", child.RelPath())
			continue
		}
		e.prune(child, r)
	}

	sort.Slice(srcInfos, func(i, j int) bool { return natural.Less(srcInfos[i].Name(), srcInfos[j].Name()) })
	children := make([]Entry, 0, len(srcInfos))
	for _, fi := range srcInfos {
		children = append(children, entry.child(fi.Name(), kindOf(fi)))
	}
	return children, nil
}

// prune removes an orphan. An orphan that is already gone is a success; any other
// failure is logged and recorded but never aborts the run.
func (e *Engine) prune(orphan Entry, r *Report) {
	l := sub("mirror")
	rel := orphan.RelPath()

	if e.opts.DryRun {
		r.record(ActionRemove, rel)
		r.Removed++
		l.Info("would remove", "path", rel, "kind", orphan.Kind.String())
		return
	}

	var err error
	switch {
	case e.opts.TrashDir != "":
		var trashPath string
		trashPath, err = SoftDelete(e.fs, orphan.Dst, e.opts.TrashDir)
		if err == nil {
			l.Info("orphan moved to trash", "path", rel, "trash", trashPath)
		}
	case orphan.Kind == KindDir:
		err = e.fs.RemoveAll(orphan.Dst)
	default:
		err = e.fs.Remove(orphan.Dst)
	}

	if errors.Is(err, os.ErrNotExist) {
		l.Debug("orphan already gone", "path", rel)
		return
	}
	if err != nil {
		l.Warn("orphan remove failed", "path", rel, "kind", orphan.Kind.String(), "err", err)
		r.PruneFailures = append(r.PruneFailures, PruneFailure{Path: rel, Err: err.Error()})
		return
	}
	r.record(ActionRemove, rel)
	r.Removed++
	if e.opts.TrashDir == "" {
		l.Info("orphan removed", "path", rel, "kind", orphan.Kind.String())
	}
}

func names(infos []os.FileInfo) []string {
	return lo.Map(infos, func(fi os.FileInfo, _ int) string { return fi.Name() })
}
