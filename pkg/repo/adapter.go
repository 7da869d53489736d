package repo

import (
	"context"
	"time"

	"github.com/herd-sh/herd/pkg/adapters"
)

// Adapter composes the git CLI and the GitHub client into the Repo port.
// The GitHub half is optional: without a configured repository, PR
// operations report not-configured and local git keeps working.
type Adapter struct {
	git *Git
	gh  *GitHub
}

var _ adapters.Repo = (*Adapter)(nil)

// NewAdapter wires the two halves. gh may be nil.
func NewAdapter(git *Git, gh *GitHub) *Adapter {
	return &Adapter{git: git, gh: gh}
}

func (a *Adapter) CreateBranch(ctx context.Context, name, base string) (string, error) {
	return a.git.CreateBranch(ctx, name, base)
}

func (a *Adapter) CreateWorktree(ctx context.Context, branch, path string) (string, error) {
	return a.git.CreateWorktree(ctx, branch, path)
}

func (a *Adapter) RemoveWorktree(ctx context.Context, path string) error {
	return a.git.RemoveWorktree(ctx, path)
}

func (a *Adapter) Push(ctx context.Context, branch string) error {
	return a.git.Push(ctx, branch)
}

func (a *Adapter) Log(ctx context.Context, since time.Time, limit int) ([]adapters.Commit, error) {
	return a.git.Log(ctx, since, limit)
}

func (a *Adapter) CreatePR(ctx context.Context, title, body, head, base string) (string, error) {
	if a.gh == nil {
		return "", adapters.NotConfigured("github")
	}
	return a.gh.CreatePR(ctx, title, body, head, base)
}

func (a *Adapter) GetPR(ctx context.Context, id string) (adapters.PRRecord, error) {
	if a.gh == nil {
		return adapters.PRRecord{}, adapters.NotConfigured("github")
	}
	return a.gh.GetPR(ctx, id)
}

func (a *Adapter) MergePR(ctx context.Context, id string) error {
	if a.gh == nil {
		return adapters.NotConfigured("github")
	}
	return a.gh.MergePR(ctx, id)
}

func (a *Adapter) AddPRComment(ctx context.Context, id, body string) error {
	if a.gh == nil {
		return adapters.NotConfigured("github")
	}
	return a.gh.AddPRComment(ctx, id, body)
}
