package tools

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/herd-sh/herd/pkg/adapters"
	"github.com/herd-sh/herd/pkg/adapters/mock"
	"github.com/herd-sh/herd/pkg/bus"
	"github.com/herd-sh/herd/pkg/checkin"
	"github.com/herd-sh/herd/pkg/config"
	"github.com/herd-sh/herd/pkg/events"
	"github.com/herd-sh/herd/pkg/graph"
	"github.com/herd-sh/herd/pkg/identity"
	"github.com/herd-sh/herd/pkg/memory"
	"github.com/herd-sh/herd/pkg/store"
	"github.com/herd-sh/herd/pkg/tier"
)

// mocks bundles the fake adapters behind a handler set so tests can seed
// and inspect them.
type mocks struct {
	store   *mock.Store
	tickets *mock.Tickets
	notify  *mock.Notify
	repo    *mock.Repo
	agent   *mock.Agent
}

// newTestHandlers builds a handler set over temp-dir stores and mock
// adapters. Identity env vars are cleared so callers resolve from
// parameters alone.
func newTestHandlers(t *testing.T) (*Handlers, *mocks) {
	t.Helper()
	for _, k := range []string{identity.EnvAgentName, identity.EnvInstanceID, identity.EnvTeam, identity.EnvOrg, identity.EnvHost} {
		t.Setenv(k, "")
	}

	dir := t.TempDir()
	roster := tier.DefaultRoster()

	b, err := bus.Open(filepath.Join(dir, "messages.db"), roster)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	mem := memory.New(filepath.Join(dir, "memory.db"), nil)
	t.Cleanup(func() { _ = mem.Close() })
	g := graph.New(filepath.Join(dir, "graph.db"))
	t.Cleanup(func() { _ = g.Close() })

	m := &mocks{
		store:   mock.NewStore(),
		tickets: mock.NewTickets(),
		notify:  mock.NewNotify(),
		repo:    mock.NewRepo(),
		agent:   mock.NewAgent(),
	}

	cfg := config.Default()
	cfg.ProjectPath = dir
	cfg.Spawn.WorktreeRoot = filepath.Join(dir, "worktrees")
	cfg.Spawn.RolesDir = filepath.Join(dir, "roles")
	cfg.Spawn.CraftStandardsPath = filepath.Join(dir, "craft.md")
	cfg.Spawn.GuidelinesPath = filepath.Join(dir, "guidelines.md")
	cfg.Spawn.StatusDocPath = filepath.Join(dir, "status.md")
	cfg.Slack.Channel = "#herd"
	cfg.Slack.DecisionsChannel = "#herd-decisions"

	h := New(Handlers{
		Config:   cfg,
		Roster:   roster,
		Bus:      b,
		Checkins: checkin.NewRegistry(),
		Adapters: &adapters.Registry{
			Store:   m.store,
			Tickets: m.tickets,
			Notify:  m.notify,
			Repo:    m.repo,
			Agent:   m.agent,
		},
		Ops:    store.NewOps(m.store),
		Memory: mem,
		Graph:  g,
		Events: events.NewManager(),
	})
	return h, m
}

func TestDispatchUnknownTool(t *testing.T) {
	h, _ := newTestHandlers(t)
	r := NewRegistry(h)

	_, err := r.Dispatch(context.Background(), "herd_fly", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownTool)
}

func TestDispatchStampsSuccess(t *testing.T) {
	h, _ := newTestHandlers(t)
	r := NewRegistry(h)

	res, err := r.Dispatch(context.Background(), "herd_get_messages", map[string]any{"caller": "mason"})
	require.NoError(t, err)
	assert.Equal(t, true, res["success"])
}

func TestDispatchKeepsFailureEnvelope(t *testing.T) {
	h, _ := newTestHandlers(t)
	r := NewRegistry(h)

	// A send without a body is an expected failure, not a Go error.
	res, err := r.Dispatch(context.Background(), "herd_send", map[string]any{"to": "mason"})
	require.NoError(t, err)
	assert.Equal(t, false, res["success"])
	assert.Contains(t, res["error"], "required")
}

func TestDispatchToleratesNilArgs(t *testing.T) {
	h, _ := newTestHandlers(t)
	r := NewRegistry(h)

	res, err := r.Dispatch(context.Background(), "herd_catchup", nil)
	require.NoError(t, err)
	assert.Equal(t, true, res["success"])
	assert.Equal(t, identity.UnknownAgent, res["agent"])
}

func TestRegistryListsFullToolSet(t *testing.T) {
	h, _ := newTestHandlers(t)
	r := NewRegistry(h)

	names := r.Names()
	assert.Len(t, names, 17)
	assert.Equal(t, "herd_send", names[0])
	assert.Contains(t, names, "herd_harvest_tokens")

	specs := r.Specs()
	require.Len(t, specs, len(names))
	for i, s := range specs {
		assert.Equal(t, names[i], s.Name)
		assert.NotEmpty(t, s.Description)
	}
}
