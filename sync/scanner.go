package sync

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/maruel/natural"
	"github.com/spf13/afero"
)

// ScanTree walks root and returns a FileStat for each non-excluded entry,
// keyed by OS-native relative path. Excluded subtrees are not descended.
func ScanTree(fsys afero.Fs, root string, excl *ExclusionSet) (map[string]FileStat, error) {
	l := sub("scanner")
	l.Debug("scan start", "root", root)
	result := make(map[string]FileStat)

	err := afero.Walk(fsys, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			l.Warn("scan walk error", "path", path, "err", err)
			return err
		}

		// Skip the root itself
		if path == root {
			return nil
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		if excl.ExcludedPath(relPath, info.IsDir()) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		result[relPath] = FileStat{
			Name:  info.Name(),
			Size:  info.Size(),
			Mtime: info.ModTime().UnixNano(),
			IsDir: info.IsDir(),
		}
		return nil
	})

	l.Debug("scan complete", "root", root, "entries", len(result))
	return result, err
}

// DiffType classifies a difference between source and destination.
type DiffType string

const (
	DiffMissing  DiffType = "missing"  // in source only
	DiffExtra    DiffType = "extra"    // in destination only
	DiffModified DiffType = "modified" // file content differs
	DiffKind     DiffType = "kind"     // file on one side, dir on the other
)

// Difference is one relative path where the destination does not mirror
// the source.
type Difference struct {
	Path string   `yaml:"path"`
	Type DiffType `yaml:"type"`
}

// Compare scans both roots and reports every non-excluded path at which
// the destination differs from the source. File contents are compared
// byte for byte. An empty result means a run would change nothing.
func Compare(fsys afero.Fs, roots Roots, excl *ExclusionSet) ([]Difference, error) {
	src, err := ScanTree(fsys, roots.Source, excl)
	if err != nil {
		return nil, fmt.Errorf("scan source: %w", err)
	}
	dst, err := ScanTree(fsys, roots.Dest, excl)
	if err != nil {
		return nil, fmt.Errorf("scan destination: %w", err)
	}

	var diffs []Difference
	for rel, s := range src {
		d, ok := dst[rel]
		switch {
		case !ok:
			diffs = append(diffs, Difference{Path: rel, Type: DiffMissing})
		case s.IsDir != d.IsDir:
			diffs = append(diffs, Difference{Path: rel, Type: DiffKind})
		case !s.IsDir:
			same, err := SameContent(fsys, filepath.Join(roots.Source, rel), filepath.Join(roots.Dest, rel))
			if err != nil {
				return nil, fmt.Errorf("compare %s: %w", rel, err)
			}
			if !same {
				diffs = append(diffs, Difference{Path: rel, Type: DiffModified})
			}
		}
	}
	for rel := range dst {
		if _, ok := src[rel]; !ok {
			diffs = append(diffs, Difference{Path: rel, Type: DiffExtra})
		}
	}

	sort.Slice(diffs, func(i, j int) bool { return natural.Less(diffs[i].Path, diffs[j].Path) })
	return diffs, nil
}
