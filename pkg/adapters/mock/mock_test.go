package mock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/herd-sh/herd/pkg/adapters"
	"github.com/herd-sh/herd/pkg/models"
)

func TestStoreSoftDelete(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	_, err := s.Save(ctx, &models.Agent{ID: "fresco-1", Name: "fresco", State: models.AgentStateRunning})
	require.NoError(t, err)

	got, err := s.Get(ctx, models.TypeAgent, "fresco-1")
	require.NoError(t, err)
	assert.Equal(t, "fresco", got.(*models.Agent).Name)

	require.NoError(t, s.Delete(ctx, models.TypeAgent, "fresco-1"))
	_, err = s.Get(ctx, models.TypeAgent, "fresco-1")
	assert.ErrorIs(t, err, adapters.ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, models.TypeAgent, "fresco-1"), adapters.ErrNotFound)
}

func TestStoreListFilters(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	for _, a := range []*models.Agent{
		{ID: "fresco-1", Name: "fresco", Team: "alpha", State: models.AgentStateRunning},
		{ID: "picasso-1", Name: "picasso", Team: "alpha", State: models.AgentStateStopped},
		{ID: "steve-1", Name: "steve", Team: "beta", State: models.AgentStateRunning},
	} {
		_, err := s.Save(ctx, a)
		require.NoError(t, err)
	}

	running, err := s.List(ctx, models.TypeAgent, models.AgentFilter{State: models.AgentStateRunning})
	require.NoError(t, err)
	assert.Len(t, running, 2)

	alpha, err := s.Count(ctx, models.TypeAgent, models.AgentFilter{Team: "alpha"})
	require.NoError(t, err)
	assert.Equal(t, 2, alpha)
}

func TestStoreListClones(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	_, err := s.Save(ctx, &models.Ticket{ID: "HERD-1", Title: "original", Status: "open"})
	require.NoError(t, err)

	got, err := s.Get(ctx, models.TypeTicket, "HERD-1")
	require.NoError(t, err)
	got.(*models.Ticket).Title = "mutated"

	again, err := s.Get(ctx, models.TypeTicket, "HERD-1")
	require.NoError(t, err)
	assert.Equal(t, "original", again.(*models.Ticket).Title)
}

func TestStoreEventsOrderedAndFiltered(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	base := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Append(ctx, models.Event{
			EntityID:  "fresco-1",
			Category:  models.CategoryLifecycle,
			Kind:      models.KindSpawned,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	evs, err := s.Events(ctx, models.CategoryLifecycle, models.EventFilter{EntityID: "fresco-1"})
	require.NoError(t, err)
	require.Len(t, evs, 3)
	assert.True(t, evs[0].CreatedAt.Before(evs[1].CreatedAt))

	evs, err = s.Events(ctx, models.CategoryLifecycle, models.EventFilter{Since: base.Add(90 * time.Second)})
	require.NoError(t, err)
	assert.Len(t, evs, 1)
}

func TestStoreErrInjection(t *testing.T) {
	s := NewStore()
	boom := errors.New("backend down")
	s.Err = boom

	_, err := s.Get(context.Background(), models.TypeAgent, "x")
	assert.ErrorIs(t, err, boom)
	_, err = s.Save(context.Background(), &models.Agent{ID: "x"})
	assert.ErrorIs(t, err, boom)
}

func TestTicketsLifecycle(t *testing.T) {
	m := NewTickets()
	ctx := context.Background()

	id, err := m.Create(ctx, "fix the bus", adapters.TicketOptions{Assignee: "fresco"})
	require.NoError(t, err)
	assert.Equal(t, "MOCK-1", id)

	res, err := m.Transition(ctx, id, "in_progress", "starting", "")
	require.NoError(t, err)
	assert.Equal(t, "backlog", res.PreviousStatus)
	assert.Equal(t, "in_progress", res.NewStatus)
	assert.Equal(t, "status_changed", res.EventType)

	res, err = m.Transition(ctx, id, "blocked", "", "HERD-9")
	require.NoError(t, err)
	assert.Equal(t, "blocked", res.EventType)
	assert.Contains(t, m.Comments(id), "blocked by HERD-9")

	list, err := m.List(ctx, adapters.TicketQuery{Assignee: "fresco"})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = m.Get(ctx, "MOCK-99")
	assert.ErrorIs(t, err, adapters.ErrNotFound)
}

func TestNotifyThreadsAndSearch(t *testing.T) {
	m := NewNotify()
	ctx := context.Background()

	root, err := m.Post(ctx, "deploy started", "#ops", "herd", "")
	require.NoError(t, err)
	_, err = m.PostThread(ctx, root.Timestamp, "deploy finished", "#ops")
	require.NoError(t, err)

	replies, err := m.ThreadReplies(ctx, "#ops", root.Timestamp)
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Equal(t, "deploy finished", replies[0].Text)

	hits, err := m.SearchMessages(ctx, "DEPLOY", 10)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestRepoPRFlow(t *testing.T) {
	m := NewRepo()
	ctx := context.Background()

	_, err := m.CreateBranch(ctx, "herd/fresco/herd-7-herd-spawn", "main")
	require.NoError(t, err)
	_, err = m.CreateWorktree(ctx, "herd/fresco/herd-7-herd-spawn", "/tmp/fresco-herd-7")
	require.NoError(t, err)
	_, err = m.CreateWorktree(ctx, "other", "/tmp/fresco-herd-7")
	require.Error(t, err, "duplicate worktree path")

	id, err := m.CreatePR(ctx, "HERD-7 fix", "body", "herd/fresco/herd-7-herd-spawn", "main")
	require.NoError(t, err)

	pr, err := m.GetPR(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "open", pr.State)
	assert.Equal(t, 1, pr.Number)

	require.NoError(t, m.MergePR(ctx, id))
	pr, err = m.GetPR(ctx, id)
	require.NoError(t, err)
	assert.True(t, pr.Merged)
	assert.Equal(t, "merged", pr.State)

	require.NoError(t, m.RemoveWorktree(ctx, "/tmp/fresco-herd-7"))
	assert.Empty(t, m.Worktrees())
}

func TestAgentSpawnStatusStop(t *testing.T) {
	m := NewAgent()
	ctx := context.Background()

	res, err := m.Spawn(ctx, adapters.SpawnRequest{AgentCode: "fresco", TicketID: "HERD-7"})
	require.NoError(t, err)
	assert.Contains(t, res.InstanceID, "fresco-")

	st, err := m.Status(ctx, res.InstanceID)
	require.NoError(t, err)
	assert.True(t, st.Running)

	require.NoError(t, m.Stop(ctx, res.InstanceID))
	st, err = m.Status(ctx, res.InstanceID)
	require.NoError(t, err)
	assert.False(t, st.Running)
	require.NotNil(t, st.ExitCode)
	assert.Equal(t, 0, *st.ExitCode)

	_, err = m.Spawn(ctx, adapters.SpawnRequest{})
	require.Error(t, err)
}
