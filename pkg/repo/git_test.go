package repo

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// initRepo builds a throwaway repository with one commit on main.
func initRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}

	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, "git %v: %s", args, out)
	}

	run("init")
	run("symbolic-ref", "HEAD", "refs/heads/main")
	run("config", "user.email", "herd@example.com")
	run("config", "user.name", "herd")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("herd\n"), 0o644))
	run("add", ".")
	run("commit", "-m", "initial layout")
	return dir
}

func TestCreateBranch(t *testing.T) {
	root := initRepo(t)
	g := NewGit(root, "main")
	ctx := context.Background()

	name, err := g.CreateBranch(ctx, "herd/fresco/herd-7-herd-spawn", "")
	require.NoError(t, err)
	assert.Equal(t, "herd/fresco/herd-7-herd-spawn", name)
	assert.True(t, g.branchExists(ctx, name))

	// Creating it again is fine.
	_, err = g.CreateBranch(ctx, name, "")
	require.NoError(t, err)

	_, err = g.CreateBranch(ctx, "", "")
	require.Error(t, err)
}

func TestCreateWorktree(t *testing.T) {
	root := initRepo(t)
	g := NewGit(root, "main")
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "fresco-herd-7")
	got, err := g.CreateWorktree(ctx, "herd/fresco/herd-7-herd-spawn", path)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(got, "README.md"))

	// Same path again returns it without error.
	again, err := g.CreateWorktree(ctx, "herd/fresco/herd-7-herd-spawn", path)
	require.NoError(t, err)
	assert.Equal(t, got, again)

	require.NoError(t, g.RemoveWorktree(ctx, got))
	assert.NoDirExists(t, got)
}

func TestLog(t *testing.T) {
	root := initRepo(t)
	g := NewGit(root, "main")
	ctx := context.Background()

	require.NoError(t, os.WriteFile(filepath.Join(root, "bus.go"), []byte("package bus\n"), 0o644))
	cmd := exec.Command("git", "add", ".")
	cmd.Dir = root
	require.NoError(t, cmd.Run())
	cmd = exec.Command("git", "commit", "-m", "add bus skeleton")
	cmd.Dir = root
	require.NoError(t, cmd.Run())

	commits, err := g.Log(ctx, time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, commits, 2)
	assert.Equal(t, "add bus skeleton", commits[0].Subject)
	assert.Equal(t, "herd", commits[0].Author)
	assert.False(t, commits[0].When.IsZero())

	limited, err := g.Log(ctx, time.Time{}, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	none, err := g.Log(ctx, time.Now().Add(time.Hour), 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestPushWithoutRemoteFails(t *testing.T) {
	root := initRepo(t)
	g := NewGit(root, "main")

	err := g.Push(context.Background(), "main")
	require.Error(t, err)
}
