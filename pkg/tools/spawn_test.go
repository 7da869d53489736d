package tools

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/herd-sh/herd/pkg/adapters"
	"github.com/herd-sh/herd/pkg/graph"
	"github.com/herd-sh/herd/pkg/models"
)

// writeSpawnFixtures lays down the role, craft, and guidelines files the
// briefing assembler reads.
func writeSpawnFixtures(t *testing.T, h *Handlers) {
	t.Helper()
	require.NoError(t, os.MkdirAll(h.Config.Spawn.RolesDir, 0o755))
	require.NoError(t, os.WriteFile(h.Config.RolePath("mason"), []byte("You are Mason, the backend builder."), 0o644))

	craft := `# Craft Standards

## Backend (mason)

Wrap errors with context.

### Testing

Table tests for parsers.

## Frontend (fresco)

No inline styles.
`
	require.NoError(t, os.WriteFile(h.Config.Spawn.CraftStandardsPath, []byte(craft), 0o644))
	require.NoError(t, os.WriteFile(h.Config.Spawn.GuidelinesPath, []byte("Small PRs. Green CI before review."), 0o644))
}

func TestSpawnForTicket(t *testing.T) {
	h, m := newTestHandlers(t)
	ctx := context.Background()
	writeSpawnFixtures(t, h)
	m.tickets.Seed(adapters.TicketSnapshot{
		ID:          "HERD-3",
		Title:       "Build the importer",
		Description: "CSV first.",
		Status:      "todo",
		Priority:    "high",
	})

	res, err := h.spawn(ctx, map[string]any{"role": "mason", "ticket_id": "HERD-3", "model": "opus", "caller": "steve"})
	require.NoError(t, err)
	require.NotContains(t, res, "error")

	assert.Equal(t, "mason", res["agent"])
	assert.Equal(t, "herd/mason/herd-3-herd-spawn", res["branch_name"])
	assert.Equal(t, filepath.Join(h.Config.Spawn.WorktreeRoot, "mason-herd-3"), res["worktree_path"])

	payload := res["context_payload"].(string)
	assert.Contains(t, payload, "# Briefing: Mason")
	assert.Contains(t, payload, "You are Mason, the backend builder.")
	assert.Contains(t, payload, "Wrap errors with context.")
	assert.NotContains(t, payload, "No inline styles.") // other roles' craft sections stay out
	assert.Contains(t, payload, "Small PRs.")
	assert.Contains(t, payload, "## Ticket HERD-3: Build the importer")
	assert.Contains(t, payload, "CSV first.")
	assert.Contains(t, payload, "Priority: high")
	assert.Contains(t, payload, "Never push to main.")

	// Branch cut from the configured base, worktree created on it.
	assert.Equal(t, "main", m.repo.Branches()["herd/mason/herd-3-herd-spawn"])

	agents := res["agents"].([]string)
	require.Len(t, agents, 1)
	ent, err := m.store.Get(ctx, models.TypeAgent, agents[0])
	require.NoError(t, err)
	inst := ent.(*models.Agent)
	assert.Equal(t, "mason", inst.Name)
	assert.Equal(t, models.AgentStateRunning, inst.State)
	assert.Equal(t, "HERD-3", inst.TicketID)
	assert.Equal(t, "opus", inst.Model)
	assert.Equal(t, "steve", inst.SpawnedBy)

	evs, err := m.store.Events(ctx, models.CategoryLifecycle, models.EventFilter{EntityID: agents[0], Kind: models.KindSpawned})
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, "mason", evs[0].Payload["agent"])

	// The ticket moved locally and at the tracker.
	entT, err := m.store.Get(ctx, models.TypeTicket, "HERD-3")
	require.NoError(t, err)
	assert.Equal(t, "in_progress", entT.(*models.Ticket).Status)
	assert.Equal(t, "mason", entT.(*models.Ticket).Assignee)
	assert.Equal(t, true, res["linear_synced"])
	snap, err := m.tickets.Get(ctx, "HERD-3")
	require.NoError(t, err)
	assert.Equal(t, "in_progress", snap.Status)

	// The graph now ties mason to HERD-3 for checkin restriction.
	ids, err := h.Graph.Neighbors(ctx, graph.NodeTicket, "HERD-3", graph.EdgeAssignedTo)
	require.NoError(t, err)
	assert.Contains(t, ids, "mason")
}

func TestSpawnBareCapacity(t *testing.T) {
	h, m := newTestHandlers(t)
	ctx := context.Background()

	// The role name resolves to its agent code.
	res, err := h.spawn(ctx, map[string]any{"role": "backend", "count": float64(3), "caller": "steve"})
	require.NoError(t, err)
	require.NotContains(t, res, "error")
	assert.Equal(t, "mason", res["agent"])
	assert.Len(t, res["agents"].([]string), 3)
	assert.Equal(t, 3, res["count"])

	ents, err := m.store.List(ctx, models.TypeAgent, models.AgentFilter{Name: "mason", State: models.AgentStateRunning})
	require.NoError(t, err)
	assert.Len(t, ents, 3)

	// Bare spawns carry no ticket, worktree, or payload.
	for _, req := range m.agent.SpawnRequests() {
		assert.Empty(t, req.TicketID)
		assert.Empty(t, req.Worktree)
		assert.Empty(t, req.Context)
	}
}

func TestSpawnValidation(t *testing.T) {
	h, _ := newTestHandlers(t)
	ctx := context.Background()

	res, err := h.spawn(ctx, map[string]any{"role": "plumber"})
	require.NoError(t, err)
	assert.Equal(t, false, res["success"])
	assert.Contains(t, res["valid_agents"], "mason")

	res, err = h.spawn(ctx, map[string]any{"role": "mason", "ticket_id": "HERD-1", "count": float64(2)})
	require.NoError(t, err)
	assert.Equal(t, false, res["success"])
	assert.Contains(t, res["error"], "count=1")

	res, err = h.spawn(ctx, map[string]any{"role": "mason", "count": float64(0)})
	require.NoError(t, err)
	assert.Equal(t, false, res["success"])
}

func TestDecommissionStopsEveryInstance(t *testing.T) {
	h, m := newTestHandlers(t)
	ctx := context.Background()

	_, err := h.spawn(ctx, map[string]any{"role": "mason", "count": float64(2), "caller": "steve"})
	require.NoError(t, err)

	res, err := h.decommission(ctx, map[string]any{"agent_name": "backend", "caller": "steve"})
	require.NoError(t, err)
	assert.Equal(t, "mason", res["target_agent"])
	assert.Equal(t, 2, res["instances_ended"])
	assert.Equal(t, "steve", res["requested_by"])

	ents, err := m.store.List(ctx, models.TypeAgent, models.AgentFilter{Name: "mason", State: models.AgentStateStopped})
	require.NoError(t, err)
	require.Len(t, ents, 2)
	for _, e := range ents {
		a := e.(*models.Agent)
		require.NotNil(t, a.EndedAt)

		// The process was asked to exit too.
		st, err := m.agent.Status(ctx, a.ID)
		require.NoError(t, err)
		assert.False(t, st.Running)
	}

	evs, err := m.store.Events(ctx, models.CategoryLifecycle, models.EventFilter{Kind: models.KindDecommissioned})
	require.NoError(t, err)
	assert.Len(t, evs, 2)

	// Idempotent: nothing left to stop.
	res, err = h.decommission(ctx, map[string]any{"agent_name": "mason"})
	require.NoError(t, err)
	assert.Equal(t, 0, res["instances_ended"])
}

func TestStanddownUsesItsOwnEventKind(t *testing.T) {
	h, m := newTestHandlers(t)
	ctx := context.Background()

	_, err := h.spawn(ctx, map[string]any{"role": "fresco", "caller": "steve"})
	require.NoError(t, err)

	res, err := h.standdown(ctx, map[string]any{"agent_name": "fresco", "caller": "steve"})
	require.NoError(t, err)
	assert.Equal(t, 1, res["instances_ended"])

	evs, err := m.store.Events(ctx, models.CategoryLifecycle, models.EventFilter{Kind: models.KindStanddown})
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, "fresco", evs[0].Payload["agent"])
	assert.Equal(t, "steve", evs[0].Payload["by"])
}
