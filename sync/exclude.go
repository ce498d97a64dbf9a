package sync

import (
	"bufio"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// DefaultExclusions are the build and cache outputs that are never mirrored
// or pruned.
var DefaultExclusions = []string{
	"DerivedDataCache",
	"Intermediate",
	"Saved/Cooked",
	"Binaries",
}

// MatchMode selects how multi-segment patterns are matched against a
// relative path.
type MatchMode int

const (
	// MatchSubpath excludes a path when any contiguous run of its segments
	// matches all segments of a pattern. "Saved/Cooked" excludes
	// Saved/Cooked and everything below it.
	MatchSubpath MatchMode = iota
	// MatchSegment excludes a path when any single segment matches a whole
	// pattern. A pattern containing "/" can never match in this mode.
	MatchSegment
)

func (m MatchMode) String() string {
	if m == MatchSegment {
		return "segment"
	}
	return "subpath"
}

// ParseMatchMode parses "segment" or "subpath".
func ParseMatchMode(s string) (MatchMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "subpath":
		return MatchSubpath, nil
	case "segment":
		return MatchSegment, nil
	}
	return MatchSubpath, fmt.Errorf("unknown match mode %q (want segment or subpath)", s)
}

// ExclusionSet holds the patterns whose subtrees are skipped in both
// directions. The zero value and a nil set exclude nothing.
type ExclusionSet struct {
	mode     MatchMode
	patterns []excludePattern
}

type excludePattern struct {
	raw      string
	segments []string
	dirOnly  bool // trailing / in source line
}

// PatternError represents an invalid exclusion pattern.
type PatternError struct {
	Pattern string
	Err     error
}

func (e *PatternError) Error() string {
	return fmt.Sprintf("invalid exclude pattern %q: %v", e.Pattern, e.Err)
}

func (e *PatternError) Unwrap() error { return e.Err }

// NewExclusionSet compiles patterns. Each pattern is a slash or
// OS-separated relative path whose segments may use path.Match globs.
// A trailing "/" restricts the final segment to directories.
func NewExclusionSet(mode MatchMode, patterns ...string) (*ExclusionSet, error) {
	s := &ExclusionSet{mode: mode}
	for _, raw := range patterns {
		line := strings.TrimSpace(filepath.ToSlash(raw))
		if line == "" {
			continue
		}
		p := excludePattern{raw: line}
		if strings.HasSuffix(line, "/") {
			line = strings.TrimRight(line, "/")
			p.dirOnly = true
		}
		line = strings.TrimLeft(line, "/")
		if line == "" {
			return nil, &PatternError{Pattern: raw, Err: fmt.Errorf("empty path")}
		}
		p.raw = line
		p.segments = strings.Split(line, "/")
		for _, seg := range p.segments {
			if seg == "" || seg == "." || seg == ".." {
				return nil, &PatternError{Pattern: raw, Err: fmt.Errorf("bad segment %q", seg)}
			}
			if _, err := path.Match(seg, "x"); err != nil {
				return nil, &PatternError{Pattern: raw, Err: err}
			}
		}
		s.patterns = append(s.patterns, p)
	}
	return s, nil
}

// Mode returns the match mode.
func (s *ExclusionSet) Mode() MatchMode {
	if s == nil {
		return MatchSubpath
	}
	return s.mode
}

// Patterns returns the compiled patterns in their normalized form.
func (s *ExclusionSet) Patterns() []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s.patterns))
	for i, p := range s.patterns {
		out[i] = p.raw
		if p.dirOnly {
			out[i] += "/"
		}
	}
	return out
}

// Excluded reports whether the relative path rel is inside an excluded
// subtree. isDir describes the last segment; all earlier segments are
// directories. The root (empty rel) is never excluded.
func (s *ExclusionSet) Excluded(rel []string, isDir bool) bool {
	if s == nil || len(rel) == 0 {
		return false
	}
	for _, p := range s.patterns {
		if s.mode == MatchSegment {
			if p.matchSegment(rel, isDir) {
				return true
			}
			continue
		}
		if p.matchSubpath(rel, isDir) {
			return true
		}
	}
	return false
}

// ExcludedPath is Excluded for an OS-native relative path.
func (s *ExclusionSet) ExcludedPath(rel string, isDir bool) bool {
	return s.Excluded(splitRel(rel), isDir)
}

func (p excludePattern) matchSegment(rel []string, isDir bool) bool {
	last := len(rel) - 1
	for i, seg := range rel {
		if p.dirOnly && i == last && !isDir {
			continue
		}
		if matched, _ := path.Match(p.raw, seg); matched {
			return true
		}
	}
	return false
}

func (p excludePattern) matchSubpath(rel []string, isDir bool) bool {
	n := len(p.segments)
	last := len(rel) - 1
	for start := 0; start+n <= len(rel); start++ {
		if p.dirOnly && start+n-1 == last && !isDir {
			continue
		}
		ok := true
		for j, pat := range p.segments {
			if matched, _ := path.Match(pat, rel[start+j]); !matched {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

// LoadExcludeFile reads exclusion patterns from an ignore file: one pattern
// per line, blank lines and lines starting with # are skipped.
func LoadExcludeFile(fsys afero.Fs, name string) ([]string, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open exclude file: %w", err)
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read exclude file: %w", err)
	}
	return patterns, nil
}

// splitRel splits an OS-native or slash-separated relative path into
// segments, dropping empty and "." segments.
func splitRel(rel string) []string {
	var out []string
	for _, seg := range strings.Split(filepath.ToSlash(rel), "/") {
		if seg == "" || seg == "." {
			continue
		}
		out = append(out, seg)
	}
	return out
}
