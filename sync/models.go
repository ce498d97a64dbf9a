package sync

import (
	"os"
	"path/filepath"
	"time"
)

// nowFunc is the time source, replaceable in tests.
var nowFunc = time.Now

// Kind tags an entry as a file or a directory.
type Kind int

const (
	KindFile Kind = iota
	KindDir
)

func (k Kind) String() string {
	if k == KindDir {
		return "dir"
	}
	return "file"
}

func kindOf(info os.FileInfo) Kind {
	if info.IsDir() {
		return KindDir
	}
	return KindFile
}

// Roots is the (source, destination) pair anchoring a run.
// Both paths are absolute and symlink-resolved; see ResolveRoots.
type Roots struct {
	Source string `yaml:"source"`
	Dest   string `yaml:"dest"`
}

// Entry is a node visited during traversal. Rel holds the path segments
// relative to the source root and is empty for the root itself.
type Entry struct {
	Src  string
	Dst  string
	Rel  []string
	Kind Kind
}

// RelPath returns the OS-native relative path, or "" for the root.
func (e Entry) RelPath() string {
	return filepath.Join(e.Rel...)
}

func (e Entry) child(name string, kind Kind) Entry {
	rel := make([]string, len(e.Rel), len(e.Rel)+1)
	copy(rel, e.Rel)
	return Entry{
		Src:  filepath.Join(e.Src, name),
		Dst:  filepath.Join(e.Dst, name),
		Rel:  append(rel, name),
		Kind: kind,
	}
}

// FileStat holds the stat information used by ScanTree and Compare.
type FileStat struct {
	Name  string
	Size  int64
	Mtime int64 // nanoseconds
	IsDir bool
}
