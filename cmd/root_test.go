package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/ibarkgames/scripts/sync"
)

type cliEnv struct {
	backup  string
	project string
}

func setupCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	dir := t.TempDir()
	env := &cliEnv{
		backup:  filepath.Join(dir, "Backup"),
		project: filepath.Join(dir, "Project"),
	}
	require.NoError(t, os.MkdirAll(env.backup, 0755))
	require.NoError(t, os.MkdirAll(env.project, 0755))
	return env
}

func (env *cliEnv) write(t *testing.T, root, rel, data string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, []byte(data), 0644))
}

func (env *cliEnv) exists(rel string) bool {
	_, err := os.Stat(filepath.Join(env.project, filepath.FromSlash(rel)))
	return err == nil
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--quiet"))
	err := cmd.Execute()
	return out.String(), err
}

func TestPull_Success(t *testing.T) {
	env := setupCLIEnv(t)
	env.write(t, env.backup, "Content/a.uasset", "a")
	env.write(t, env.backup, "Intermediate/obj.o", "o")
	env.write(t, env.project, "stale.txt", "s")

	out, err := execute(t, env.backup, env.project)
	require.NoError(t, err)

	project, _ := filepath.EvalSymlinks(env.project)
	assert.Contains(t, out, "Pull complete → "+project)
	assert.Contains(t, out, "Time: ")
	assert.True(t, env.exists("Content/a.uasset"))
	assert.False(t, env.exists("Intermediate"))
	assert.False(t, env.exists("stale.txt"))
}

func TestPull_MissingBackup(t *testing.T) {
	env := setupCLIEnv(t)
	env.write(t, env.project, "keep.txt", "k")
	missing := filepath.Join(filepath.Dir(env.backup), "Gone")

	_, err := execute(t, missing, env.project)
	require.Error(t, err)
	assert.ErrorIs(t, err, sync.ErrRootMissing)
	assert.Contains(t, err.Error(), "Backup folder not found")
	assert.True(t, env.exists("keep.txt"))
}

func TestPull_MissingProject(t *testing.T) {
	env := setupCLIEnv(t)
	missing := filepath.Join(filepath.Dir(env.project), "Gone")

	_, err := execute(t, env.backup, missing)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Local project folder not found")
}

func TestPull_DryRun(t *testing.T) {
	env := setupCLIEnv(t)
	env.write(t, env.backup, "new.txt", "n")
	env.write(t, env.project, "orphan.txt", "o")

	out, err := execute(t, env.backup, env.project, "--dry-run")
	require.NoError(t, err)

	assert.Contains(t, out, "Dry run complete")
	assert.Contains(t, out, "copy    new.txt")
	assert.Contains(t, out, "remove  orphan.txt")
	assert.False(t, env.exists("new.txt"))
	assert.True(t, env.exists("orphan.txt"))
}

func TestPull_ExtraExcludes(t *testing.T) {
	env := setupCLIEnv(t)
	env.write(t, env.backup, "Saved/Logs/game.log", "log")
	env.write(t, env.backup, "Content/a.uasset", "a")
	env.write(t, env.project, "Saved/Autosaves/auto.umap", "auto")

	ignore := filepath.Join(t.TempDir(), "mirrorignore")
	require.NoError(t, os.WriteFile(ignore, []byte("# local only\nSaved/Autosaves\n"), 0644))

	_, err := execute(t, env.backup, env.project, "--exclude", "*.log", "--exclude-from", ignore)
	require.NoError(t, err)

	assert.True(t, env.exists("Content/a.uasset"))
	assert.False(t, env.exists("Saved/Logs/game.log"))
	assert.True(t, env.exists("Saved/Autosaves/auto.umap"))
}

func TestPull_NoDefaultExcludes(t *testing.T) {
	env := setupCLIEnv(t)
	env.write(t, env.backup, "Binaries/game.exe", "exe")

	_, err := execute(t, env.backup, env.project, "--no-default-excludes")
	require.NoError(t, err)
	assert.True(t, env.exists("Binaries/game.exe"))
}

func TestPull_MatchModeFromEnv(t *testing.T) {
	env := setupCLIEnv(t)
	env.write(t, env.backup, "Saved/Cooked/pak.pak", "p")
	t.Setenv("MIRROR_MATCH", "segment")

	_, err := execute(t, env.backup, env.project)
	require.NoError(t, err)
	assert.True(t, env.exists("Saved/Cooked/pak.pak"), "segment matching never fires on Saved/Cooked")
}

func TestPull_ConfigFile(t *testing.T) {
	env := setupCLIEnv(t)
	env.write(t, env.backup, "Content/a.uasset", "a")
	env.write(t, env.project, "orphan.txt", "o")

	cfg := filepath.Join(t.TempDir(), "mirror.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("dry-run: true\n"), 0644))

	out, err := execute(t, env.backup, env.project, "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "Dry run complete")
	assert.True(t, env.exists("orphan.txt"))
}

func TestPull_InvalidMatchMode(t *testing.T) {
	env := setupCLIEnv(t)
	_, err := execute(t, env.backup, env.project, "--match", "prefix")
	assert.Error(t, err)
}

func TestPull_WatchRejectsDryRun(t *testing.T) {
	env := setupCLIEnv(t)
	_, err := execute(t, env.backup, env.project, "--watch", "--dry-run")
	assert.Error(t, err)
}

func TestVerify(t *testing.T) {
	env := setupCLIEnv(t)
	env.write(t, env.backup, "a.txt", "a")
	env.write(t, env.project, "b.txt", "b")

	out, err := execute(t, "verify", env.backup, env.project)
	require.ErrorIs(t, err, ErrTreesDiffer)
	assert.Contains(t, out, "missing  a.txt")
	assert.Contains(t, out, "extra    b.txt")

	out, err = execute(t, "verify", env.backup, env.project, "--yaml")
	require.ErrorIs(t, err, ErrTreesDiffer)
	var diffs []sync.Difference
	require.NoError(t, yaml.Unmarshal([]byte(out), &diffs))
	assert.Equal(t, []sync.Difference{
		{Path: "a.txt", Type: sync.DiffMissing},
		{Path: "b.txt", Type: sync.DiffExtra},
	}, diffs)

	_, err = execute(t, env.backup, env.project)
	require.NoError(t, err)

	out, err = execute(t, "verify", env.backup, env.project)
	require.NoError(t, err)
	assert.Contains(t, out, "In sync")
}

func TestPull_TrashThroughSymlinkRejected(t *testing.T) {
	env := setupCLIEnv(t)
	env.write(t, env.project, "orphan.txt", "o")
	link := filepath.Join(filepath.Dir(env.project), "ProjectLink")
	if err := os.Symlink(env.project, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	_, err := execute(t, env.backup, env.project, "--trash", filepath.Join(link, ".trash"))
	require.Error(t, err)
	assert.True(t, env.exists("orphan.txt"))
}
