// Package repo backs the Repo adapter port: branches and worktrees through
// the git CLI, pull requests through the GitHub REST API.
package repo

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/herd-sh/herd/pkg/adapters"
)

// Git runs git against a fixed repository root.
type Git struct {
	root       string
	baseBranch string
	logger     *slog.Logger
}

// NewGit creates a git runner for the repository at root. baseBranch is
// what new branches fork from when no base is given.
func NewGit(root, baseBranch string) *Git {
	if baseBranch == "" {
		baseBranch = "main"
	}
	return &Git{
		root:       root,
		baseBranch: baseBranch,
		logger:     slog.Default().With("component", "git"),
	}
}

// run executes git in dir, folding stderr into the error.
func (g *Git) run(ctx context.Context, dir string, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return nil
}

// output executes git in dir and returns trimmed stdout.
func (g *Git) output(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return strings.TrimSpace(string(out)), nil
}

// branchExists checks local then remote refs.
func (g *Git) branchExists(ctx context.Context, name string) bool {
	if err := g.run(ctx, g.root, "show-ref", "--verify", "--quiet", "refs/heads/"+name); err == nil {
		return true
	}
	err := g.run(ctx, g.root, "show-ref", "--verify", "--quiet", "refs/remotes/origin/"+name)
	return err == nil
}

// CreateBranch creates name from base (default branch when empty).
// Already-existing branches are fine; spawn retries hit this path.
func (g *Git) CreateBranch(ctx context.Context, name, base string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("branch name is required")
	}
	if base == "" {
		base = g.baseBranch
	}

	if g.branchExists(ctx, name) {
		return name, nil
	}

	// Best effort: a fresh origin/<base> if there is a remote.
	if err := g.run(ctx, g.root, "fetch", "origin", base); err != nil {
		g.logger.Debug("fetch before branch skipped", "base", base, "error", err)
	}

	start := base
	if err := g.run(ctx, g.root, "show-ref", "--verify", "--quiet", "refs/remotes/origin/"+base); err == nil {
		start = "origin/" + base
	}
	if err := g.run(ctx, g.root, "branch", name, start); err != nil {
		return "", err
	}
	return name, nil
}

// CreateWorktree attaches branch at path. An existing worktree at the
// same path is returned as-is so repeated spawns for one ticket reuse it.
func (g *Git) CreateWorktree(ctx context.Context, branch, path string) (string, error) {
	if branch == "" || path == "" {
		return "", fmt.Errorf("branch and path are required")
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve worktree path: %w", err)
	}
	if _, err := os.Stat(abs); err == nil {
		return abs, nil
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o750); err != nil {
		return "", fmt.Errorf("create worktree parent: %w", err)
	}

	var args []string
	if g.branchExists(ctx, branch) {
		args = []string{"worktree", "add", abs, branch}
	} else {
		args = []string{"worktree", "add", "-b", branch, abs, g.baseBranch}
	}
	if err := g.run(ctx, g.root, args...); err != nil {
		return "", err
	}
	return abs, nil
}

// RemoveWorktree detaches the worktree, falling back to a directory
// removal plus prune when git refuses.
func (g *Git) RemoveWorktree(ctx context.Context, path string) error {
	if err := g.run(ctx, g.root, "worktree", "remove", "--force", path); err != nil {
		if rmErr := os.RemoveAll(path); rmErr != nil {
			return fmt.Errorf("remove worktree directory: %w", rmErr)
		}
		_ = g.run(ctx, g.root, "worktree", "prune")
	}
	return nil
}

// Push publishes branch to origin with upstream tracking.
func (g *Git) Push(ctx context.Context, branch string) error {
	if branch == "" {
		return fmt.Errorf("branch name is required")
	}
	return g.run(ctx, g.root, "push", "-u", "origin", branch)
}

// logFieldSep keeps subjects with embedded pipes parseable.
const logFieldSep = "\x1f"

// Log reads recent commits on the default branch.
func (g *Git) Log(ctx context.Context, since time.Time, limit int) ([]adapters.Commit, error) {
	args := []string{"log", "--pretty=format:%H" + logFieldSep + "%an" + logFieldSep + "%aI" + logFieldSep + "%s"}
	if !since.IsZero() {
		args = append(args, "--since="+since.UTC().Format(time.RFC3339))
	}
	if limit > 0 {
		args = append(args, "-n", strconv.Itoa(limit))
	}

	out, err := g.output(ctx, g.root, args...)
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}

	var commits []adapters.Commit
	for _, line := range strings.Split(out, "\n") {
		parts := strings.SplitN(line, logFieldSep, 4)
		if len(parts) != 4 {
			continue
		}
		c := adapters.Commit{Hash: parts[0], Author: parts[1], Subject: parts[3]}
		if when, err := time.Parse(time.RFC3339, parts[2]); err == nil {
			c.When = when
		}
		commits = append(commits, c)
	}
	return commits, nil
}
