package sync

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
)

// ResolveRoots expands, absolutizes and symlink-resolves both roots, then
// checks that each exists as a directory and that neither contains the
// other. Nothing is mutated.
func ResolveRoots(fsys afero.Fs, source, dest string) (Roots, error) {
	src, err := resolvePath(source)
	if err != nil {
		return Roots{}, fmt.Errorf("resolve source root: %w", err)
	}
	dst, err := resolvePath(dest)
	if err != nil {
		return Roots{}, fmt.Errorf("resolve destination root: %w", err)
	}

	roots := Roots{Source: src, Dest: dst}
	if err := checkRoot(fsys, "source", src); err != nil {
		return roots, err
	}
	if err := checkRoot(fsys, "destination", dst); err != nil {
		return roots, err
	}
	if within(src, dst) || within(dst, src) {
		return roots, fmt.Errorf("%s and %s: %w", src, dst, ErrRootsOverlap)
	}
	return roots, nil
}

func resolvePath(p string) (string, error) {
	expanded, err := homedir.Expand(p)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", err
	}
	// Missing roots are reported by checkRoot with the absolute path.
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	return abs, nil
}

// ResolveTrashDir expands and absolutizes a trash directory and resolves
// symlinks in its longest existing prefix, so it can be compared with
// resolved roots. The directory itself need not exist yet.
func ResolveTrashDir(trash string) (string, error) {
	expanded, err := homedir.Expand(trash)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", err
	}
	return resolveExisting(abs), nil
}

// resolveExisting resolves symlinks in the longest existing prefix of abs
// and re-appends the missing tail.
func resolveExisting(abs string) string {
	var tail []string
	for p := abs; ; p = filepath.Dir(p) {
		if resolved, err := filepath.EvalSymlinks(p); err == nil {
			return filepath.Join(append([]string{resolved}, tail...)...)
		}
		parent := filepath.Dir(p)
		if parent == p {
			return abs
		}
		tail = append([]string{filepath.Base(p)}, tail...)
	}
}

func checkRoot(fsys afero.Fs, role, path string) error {
	info, err := fsys.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return &RootMissingError{Role: role, Path: path}
	}
	if err != nil {
		return fmt.Errorf("stat %s root: %w", role, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s root %s: %w", role, path, ErrRootNotDir)
	}
	return nil
}

// within reports whether child equals parent or lies below it.
func within(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
