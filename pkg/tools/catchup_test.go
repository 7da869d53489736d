package tools

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/herd-sh/herd/pkg/adapters"
	"github.com/herd-sh/herd/pkg/models"
)

func TestCatchupSinceLastInstance(t *testing.T) {
	h, m := newTestHandlers(t)
	ctx := context.Background()
	now := time.Now().UTC()
	ended := now.Add(-2 * time.Hour)

	_, err := m.store.Save(ctx, &models.Agent{ID: "mason-old", Name: "mason", State: models.AgentStateStopped, EndedAt: &ended})
	require.NoError(t, err)
	_, err = m.store.Save(ctx, &models.Ticket{ID: "HERD-3", Title: "Build the importer", Status: "in_progress", Assignee: "mason"})
	require.NoError(t, err)
	require.NoError(t, m.store.Append(ctx, models.Event{
		EntityID: "HERD-3",
		Category: models.CategoryTicket,
		Kind:     models.KindStatusChanged,
		Payload:  map[string]any{"new_status": "in_progress", "by": "steve"},
	}))
	m.repo.SeedCommits([]adapters.Commit{
		{Hash: "aaaa111122223333", Subject: "Old work", When: now.Add(-3 * time.Hour)},
		{Hash: "bbbb444455556666", Subject: "New work", When: now.Add(-1 * time.Hour)},
	})
	m.tickets.Seed(adapters.TicketSnapshot{ID: "HERD-3", Title: "Build the importer", Status: "in_progress", Assignee: "mason"})
	_, err = m.notify.Post(ctx, "mason is close on the importer", "#herd", "", "")
	require.NoError(t, err)

	res, err := h.catchup(ctx, map[string]any{"caller": "mason"})
	require.NoError(t, err)
	require.NotContains(t, res, "error")

	assert.Equal(t, "mason", res["agent"])
	assert.Equal(t, ended.Format(time.RFC3339), res["since"])

	commits := res["commits"].([]map[string]any)
	require.Len(t, commits, 1)
	assert.Equal(t, "New work", commits[0]["subject"])

	activity := res["ticket_activity"].([]map[string]any)
	require.Len(t, activity, 1)
	assert.Equal(t, "HERD-3", activity[0]["ticket"])

	assigned := res["assigned_tickets"].([]map[string]any)
	require.Len(t, assigned, 1)
	assert.Equal(t, "HERD-3", assigned[0]["id"])

	threads := res["threads"].([]map[string]any)
	require.Len(t, threads, 1)
	assert.Contains(t, threads[0]["text"], "close on the importer")

	assert.Equal(t, 6, res["summary_lines"])
}

func TestCatchupWindowFloor(t *testing.T) {
	h, _ := newTestHandlers(t)

	res, err := h.catchup(context.Background(), map[string]any{"caller": "fresco"})
	require.NoError(t, err)

	since, err := time.Parse(time.RFC3339, res["since"].(string))
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().UTC().Add(-catchupWindow), since, time.Minute)
}
