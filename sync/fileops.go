package sync

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

const (
	copyChunkSize = 256 * 1024 // 256KB per chunk
	tmpSuffix     = ".mirror-tmp"
	maxNameLen    = 255
	tmpRandLen    = 10 // upper bound of the random part afero.TempFile inserts
	dirPerm       = 0o755
)

// ErrSourceModified is returned when SafeCopy detects that the source
// file was modified during the copy.
var ErrSourceModified = errors.New("source modified during copy")

// tmpPattern returns the afero.TempFile pattern used while copying to dst.
// The hidden, randomized name never equals a mirrored sibling. Names that
// would exceed the filesystem limit are shortened with a stable hash.
func tmpPattern(dst string) string {
	base := filepath.Base(dst)
	if 1+len(base)+1+tmpRandLen+len(tmpSuffix) > maxNameLen {
		sum := sha1.Sum([]byte(base))
		short := hex.EncodeToString(sum[:])[:16]
		keep := maxNameLen - 1 - 1 - tmpRandLen - len(tmpSuffix) - 1 - len(short)
		base = base[:keep] + "-" + short
	}
	return "." + base + "-*" + tmpSuffix
}

// SafeCopy copies src over dst all-or-nothing:
// 1. Record src mtime
// 2. Copy to a fresh temp file next to dst in chunks
// 3. Verify src mtime unchanged
// 4. Apply src mtime and permissions, then rename over dst
//
// The temp file is removed on every failure path, so dst is either the old
// content or the new content. Returns the number of bytes copied.
func SafeCopy(fsys afero.Fs, src, dst string) (int64, error) {
	srcInfo, err := fsys.Stat(src)
	if err != nil {
		return 0, fmt.Errorf("stat src: %w", err)
	}
	mtime1 := srcInfo.ModTime().UnixNano()

	srcFile, err := fsys.Open(src)
	if err != nil {
		return 0, fmt.Errorf("open src: %w", err)
	}
	defer srcFile.Close()

	tmpFile, err := afero.TempFile(fsys, filepath.Dir(dst), tmpPattern(dst))
	if err != nil {
		return 0, fmt.Errorf("create tmp: %w", err)
	}
	tmpPath := tmpFile.Name()

	n, copyErr := io.CopyBuffer(tmpFile, srcFile, make([]byte, copyChunkSize))
	if closeErr := tmpFile.Close(); copyErr == nil && closeErr != nil {
		copyErr = fmt.Errorf("close tmp: %w", closeErr)
	}
	if copyErr != nil {
		fsys.Remove(tmpPath) //nolint:errcheck
		return 0, fmt.Errorf("copy to tmp: %w", copyErr)
	}

	srcInfo2, err := fsys.Stat(src)
	if err != nil {
		fsys.Remove(tmpPath) //nolint:errcheck
		return 0, fmt.Errorf("re-stat src: %w", err)
	}
	if srcInfo2.ModTime().UnixNano() != mtime1 {
		fsys.Remove(tmpPath) //nolint:errcheck
		return 0, ErrSourceModified
	}

	if err := fsys.Chmod(tmpPath, srcInfo.Mode().Perm()); err != nil {
		fsys.Remove(tmpPath) //nolint:errcheck
		return 0, fmt.Errorf("chmod tmp: %w", err)
	}
	// Preserve source mtime on destination
	if err := fsys.Chtimes(tmpPath, nowFunc(), srcInfo.ModTime()); err != nil {
		fsys.Remove(tmpPath) //nolint:errcheck
		return 0, fmt.Errorf("chtimes tmp: %w", err)
	}

	if err := fsys.Rename(tmpPath, dst); err != nil {
		fsys.Remove(tmpPath) //nolint:errcheck
		return 0, fmt.Errorf("rename tmp to dst: %w", err)
	}

	return n, nil
}

// SameContent reports whether a and b hold identical bytes. Sizes are
// compared first; equal sizes are always confirmed by reading both files.
func SameContent(fsys afero.Fs, a, b string) (bool, error) {
	aInfo, err := fsys.Stat(a)
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", a, err)
	}
	bInfo, err := fsys.Stat(b)
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", b, err)
	}
	if aInfo.Size() != bInfo.Size() {
		return false, nil
	}

	fa, err := fsys.Open(a)
	if err != nil {
		return false, fmt.Errorf("open %s: %w", a, err)
	}
	defer fa.Close()
	fb, err := fsys.Open(b)
	if err != nil {
		return false, fmt.Errorf("open %s: %w", b, err)
	}
	defer fb.Close()

	bufA := make([]byte, copyChunkSize)
	bufB := make([]byte, copyChunkSize)
	for {
		na, errA := io.ReadFull(fa, bufA)
		nb, errB := io.ReadFull(fb, bufB)
		if !bytes.Equal(bufA[:na], bufB[:nb]) {
			return false, nil
		}
		aDone := errors.Is(errA, io.EOF) || errors.Is(errA, io.ErrUnexpectedEOF)
		bDone := errors.Is(errB, io.EOF) || errors.Is(errB, io.ErrUnexpectedEOF)
		if errA != nil && !aDone {
			return false, fmt.Errorf("read %s: %w", a, errA)
		}
		if errB != nil && !bDone {
			return false, fmt.Errorf("read %s: %w", b, errB)
		}
		if aDone || bDone {
			return aDone == bDone, nil
		}
	}
}

// SoftDelete moves path into the trash directory (trashRoot/YYYY-MM-DD/).
// Returns the final trash path.
func SoftDelete(fsys afero.Fs, path, trashRoot string) (string, error) {
	dateDir := filepath.Join(trashRoot, nowFunc().Format("2006-01-02"))
	if err := fsys.MkdirAll(dateDir, dirPerm); err != nil {
		return "", fmt.Errorf("mkdir trash: %w", err)
	}

	base := filepath.Base(path)
	trashPath := filepath.Join(dateDir, base)

	// Handle name collision in trash
	if _, err := fsys.Stat(trashPath); err == nil {
		ext := filepath.Ext(base)
		name := base[:len(base)-len(ext)]
		for i := 1; ; i++ {
			trashPath = filepath.Join(dateDir, fmt.Sprintf("%s_%d%s", name, i, ext))
			if _, err := fsys.Stat(trashPath); errors.Is(err, os.ErrNotExist) {
				break
			}
		}
	}

	if err := fsys.Rename(path, trashPath); err != nil {
		return "", fmt.Errorf("move to trash: %w", err)
	}

	return trashPath, nil
}
