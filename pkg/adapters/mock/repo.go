package mock

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/herd-sh/herd/pkg/adapters"
)

// Repo is an in-memory code host and working-copy manager.
type Repo struct {
	mu        sync.Mutex
	branches  map[string]string // branch -> base
	worktrees map[string]string // path -> branch
	pushed    []string
	prs       map[string]adapters.PRRecord
	prComment map[string][]string
	prSeq     int
	commits   []adapters.Commit
	now       func() time.Time

	Err error
}

var _ adapters.Repo = (*Repo)(nil)

// NewRepo builds an empty repo.
func NewRepo() *Repo {
	return &Repo{
		branches:  make(map[string]string),
		worktrees: make(map[string]string),
		prs:       make(map[string]adapters.PRRecord),
		prComment: make(map[string][]string),
		now:       time.Now,
	}
}

// SeedCommits sets what Log returns.
func (m *Repo) SeedCommits(commits []adapters.Commit) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commits = commits
}

// Branches returns the branches created so far.
func (m *Repo) Branches() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.branches))
	for k, v := range m.branches {
		out[k] = v
	}
	return out
}

// Worktrees returns path -> branch for live worktrees.
func (m *Repo) Worktrees() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.worktrees))
	for k, v := range m.worktrees {
		out[k] = v
	}
	return out
}

// PRComments returns the comments added to one PR.
func (m *Repo) PRComments(id string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prComment[id]...)
}

func (m *Repo) CreateBranch(_ context.Context, name, base string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return "", m.Err
	}
	m.branches[name] = base
	return name, nil
}

func (m *Repo) CreateWorktree(_ context.Context, branch, path string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return "", m.Err
	}
	if _, ok := m.worktrees[path]; ok {
		return "", fmt.Errorf("worktree %s already exists", path)
	}
	m.worktrees[path] = branch
	return path, nil
}

func (m *Repo) RemoveWorktree(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if _, ok := m.worktrees[path]; !ok {
		return fmt.Errorf("worktree %s not found", path)
	}
	delete(m.worktrees, path)
	return nil
}

func (m *Repo) Push(_ context.Context, branch string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.pushed = append(m.pushed, branch)
	return nil
}

func (m *Repo) CreatePR(_ context.Context, title, body, head, base string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return "", m.Err
	}
	m.prSeq++
	id := strconv.Itoa(m.prSeq)
	m.prs[id] = adapters.PRRecord{
		ID:        id,
		Number:    m.prSeq,
		Title:     title,
		Body:      body,
		State:     "open",
		Head:      head,
		Base:      base,
		CreatedAt: m.now().UTC(),
	}
	return id, nil
}

func (m *Repo) GetPR(_ context.Context, id string) (adapters.PRRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return adapters.PRRecord{}, m.Err
	}
	pr, ok := m.prs[id]
	if !ok {
		return adapters.PRRecord{}, fmt.Errorf("pr %s: %w", id, adapters.ErrNotFound)
	}
	return pr, nil
}

func (m *Repo) MergePR(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	pr, ok := m.prs[id]
	if !ok {
		return fmt.Errorf("pr %s: %w", id, adapters.ErrNotFound)
	}
	pr.Merged = true
	pr.State = "merged"
	m.prs[id] = pr
	return nil
}

func (m *Repo) AddPRComment(_ context.Context, id, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if _, ok := m.prs[id]; !ok {
		return fmt.Errorf("pr %s: %w", id, adapters.ErrNotFound)
	}
	m.prComment[id] = append(m.prComment[id], body)
	return nil
}

func (m *Repo) Log(_ context.Context, since time.Time, limit int) ([]adapters.Commit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var out []adapters.Commit
	for _, c := range m.commits {
		if !since.IsZero() && c.When.Before(since) {
			continue
		}
		out = append(out, c)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
