package sync

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Change is one destination mutation, performed or (in dry-run) planned.
type Change struct {
	Action Action `yaml:"action"`
	Path   string `yaml:"path"`
}

// PruneFailure is an orphan that could not be removed. Prune failures do
// not fail the run.
type PruneFailure struct {
	Path string `yaml:"path"`
	Err  string `yaml:"err"`
}

// Report summarizes one run.
type Report struct {
	DryRun         bool           `yaml:"dryRun"`
	DirsCreated    int            `yaml:"dirsCreated"`
	FilesCopied    int            `yaml:"filesCopied"`
	FilesUpdated   int            `yaml:"filesUpdated"`
	FilesUnchanged int            `yaml:"filesUnchanged"`
	Removed        int            `yaml:"removed"`
	Excluded       int            `yaml:"excluded"`
	BytesCopied    int64          `yaml:"bytesCopied"`
	Changes        []Change       `yaml:"changes,omitempty"`
	PruneFailures  []PruneFailure `yaml:"pruneFailures,omitempty"`
	Elapsed        time.Duration  `yaml:"elapsed"`
}

func (r *Report) record(action Action, rel string) {
	r.Changes = append(r.Changes, Change{Action: action, Path: rel})
}

// Changed reports whether the run mutated (or would mutate) the destination.
func (r *Report) Changed() bool {
	return len(r.Changes) > 0
}

// Count returns how many changes of the given action were recorded.
func (r *Report) Count(action Action) int {
	n := 0
	for _, c := range r.Changes {
		if c.Action == action {
			n++
		}
	}
	return n
}

func (r *Report) String() string {
	var b strings.Builder
	if r.DryRun {
		b.WriteString("[dry-run] ")
	}
	fmt.Fprintf(&b, "%d copied, %d updated, %d unchanged, %d dirs created, %d removed, %d excluded, %s transferred",
		r.FilesCopied, r.FilesUpdated, r.FilesUnchanged, r.DirsCreated, r.Removed, r.Excluded,
		humanize.Bytes(uint64(r.BytesCopied)))
	if n := len(r.PruneFailures); n > 0 {
		fmt.Fprintf(&b, ", %d prune failures", n)
	}
	return b.String()
}
