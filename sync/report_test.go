package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestReport_String(t *testing.T) {
	r := &Report{
		FilesCopied:    3,
		FilesUpdated:   1,
		FilesUnchanged: 7,
		DirsCreated:    2,
		Removed:        1,
		Excluded:       4,
		BytesCopied:    1500000,
	}
	assert.Equal(t, "3 copied, 1 updated, 7 unchanged, 2 dirs created, 1 removed, 4 excluded, 1.5 MB transferred", r.String())

	r.DryRun = true
	r.PruneFailures = []PruneFailure{{Path: "locked.bin", Err: "busy"}}
	assert.Equal(t, "[dry-run] 3 copied, 1 updated, 7 unchanged, 2 dirs created, 1 removed, 4 excluded, 1.5 MB transferred, 1 prune failures", r.String())
}

func TestReport_CountAndChanged(t *testing.T) {
	r := &Report{}
	assert.False(t, r.Changed())

	r.record(ActionCopy, "a")
	r.record(ActionCopy, "b")
	r.record(ActionRemove, "c")

	assert.True(t, r.Changed())
	assert.Equal(t, 2, r.Count(ActionCopy))
	assert.Equal(t, 1, r.Count(ActionRemove))
	assert.Equal(t, 0, r.Count(ActionUpdate))
}

func TestReport_YAML(t *testing.T) {
	r := &Report{DryRun: true, FilesCopied: 1, Elapsed: 2 * time.Second}
	r.record(ActionCopy, "Content/a.uasset")

	out, err := yaml.Marshal(r)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal(out, &decoded))
	assert.Equal(t, true, decoded["dryRun"])
	assert.Equal(t, 1, decoded["filesCopied"])
	assert.Equal(t, []any{map[string]any{"action": "copy", "path": "Content/a.uasset"}}, decoded["changes"])
	assert.NotContains(t, decoded, "pruneFailures")
}
