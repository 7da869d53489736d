package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/herd-sh/herd/pkg/adapters"
	"github.com/herd-sh/herd/pkg/database"
	"github.com/herd-sh/herd/pkg/models"
)

func openTestStore(t *testing.T) *SQLStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "herd.db")
	client, err := database.NewClient(context.Background(), database.DefaultConfig(path))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return New(client)
}

func TestSaveGetRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ticket := &models.Ticket{ID: "DBC-99", Title: "Build the thing", Status: "todo"}
	id, err := s.Save(ctx, ticket)
	require.NoError(t, err)
	assert.Equal(t, "DBC-99", id)

	got, err := s.Get(ctx, models.TypeTicket, "DBC-99")
	require.NoError(t, err)
	loaded := got.(*models.Ticket)
	assert.Equal(t, "Build the thing", loaded.Title)
	assert.Equal(t, "todo", loaded.Status)
	assert.False(t, loaded.Meta.ModifiedAt.IsZero())
	assert.Nil(t, loaded.Meta.DeletedAt)
}

func TestSaveUpdatesExisting(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Save(ctx, &models.Ticket{ID: "T-1", Title: "v1", Status: "todo"})
	require.NoError(t, err)
	first, err := s.Get(ctx, models.TypeTicket, "T-1")
	require.NoError(t, err)

	_, err = s.Save(ctx, &models.Ticket{ID: "T-1", Title: "v2", Status: "in_progress"})
	require.NoError(t, err)

	got, err := s.Get(ctx, models.TypeTicket, "T-1")
	require.NoError(t, err)
	loaded := got.(*models.Ticket)
	assert.Equal(t, "v2", loaded.Title)
	// created_at survives updates.
	assert.Equal(t,
		first.(*models.Ticket).Meta.CreatedAt.UnixMilli(),
		loaded.Meta.CreatedAt.UnixMilli())

	n, err := s.Count(ctx, models.TypeTicket, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSoftDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Save(ctx, &models.Ticket{ID: "T-2", Title: "doomed", Status: "todo"})
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, models.TypeTicket, "T-2"))

	_, err = s.Get(ctx, models.TypeTicket, "T-2")
	assert.ErrorIs(t, err, adapters.ErrNotFound)

	list, err := s.List(ctx, models.TypeTicket, nil)
	require.NoError(t, err)
	assert.Empty(t, list)

	// Deleting again reports not found.
	assert.ErrorIs(t, s.Delete(ctx, models.TypeTicket, "T-2"), adapters.ErrNotFound)

	// Re-saving the same id re-inserts without resurrecting the old row.
	_, err = s.Save(ctx, &models.Ticket{ID: "T-2", Title: "reborn", Status: "todo"})
	require.NoError(t, err)
	got, err := s.Get(ctx, models.TypeTicket, "T-2")
	require.NoError(t, err)
	assert.Equal(t, "reborn", got.(*models.Ticket).Title)
	assert.Nil(t, got.(*models.Ticket).Meta.DeletedAt)
}

func TestListFilters(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	seed := []*models.Agent{
		{ID: "i1", Name: "mason", Team: "avalon", State: models.AgentStateRunning},
		{ID: "i2", Name: "mason", Team: "avalon", State: models.AgentStateStopped},
		{ID: "i3", Name: "fresco", Team: "camelot", State: models.AgentStateRunning},
	}
	for _, a := range seed {
		_, err := s.Save(ctx, a)
		require.NoError(t, err)
	}

	running, err := s.List(ctx, models.TypeAgent, models.AgentFilter{State: models.AgentStateRunning})
	require.NoError(t, err)
	require.Len(t, running, 2)

	masons, err := s.List(ctx, models.TypeAgent, models.AgentFilter{Name: "mason", State: models.AgentStateRunning})
	require.NoError(t, err)
	require.Len(t, masons, 1)
	assert.Equal(t, "i1", masons[0].EntityID())

	n, err := s.Count(ctx, models.TypeAgent, models.AgentFilter{Team: "avalon"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestEventsAscendingPerEntity(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 8, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		err := s.Append(ctx, models.Event{
			EntityID:  "T-9",
			Category:  models.CategoryTicket,
			Kind:      models.KindStatusChanged,
			Payload:   map[string]any{"step": i},
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}
	// A different entity's event does not leak into the query.
	require.NoError(t, s.Append(ctx, models.Event{
		EntityID: "T-10", Category: models.CategoryTicket, Kind: models.KindAssigned,
	}))

	events, err := s.Events(ctx, models.CategoryTicket, models.EventFilter{EntityID: "T-9"})
	require.NoError(t, err)
	require.Len(t, events, 4)
	for i, ev := range events {
		assert.Equal(t, float64(i), ev.Payload["step"])
		if i > 0 {
			assert.False(t, ev.CreatedAt.Before(events[i-1].CreatedAt))
		}
	}
}

func TestEventsAppendOnlyPrefixExtension(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, models.Event{EntityID: "a1", Category: models.CategoryLifecycle, Kind: models.KindSpawned}))
	first, err := s.Events(ctx, models.CategoryLifecycle, models.EventFilter{EntityID: "a1"})
	require.NoError(t, err)

	require.NoError(t, s.Append(ctx, models.Event{EntityID: "a1", Category: models.CategoryLifecycle, Kind: models.KindStopped}))
	second, err := s.Events(ctx, models.CategoryLifecycle, models.EventFilter{EntityID: "a1"})
	require.NoError(t, err)

	require.Len(t, second, len(first)+1)
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
	}
}

func TestEventsSinceAndLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 8, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Append(ctx, models.Event{
			EntityID:  "i1",
			Category:  models.CategoryToken,
			Kind:      models.KindTokenUsage,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	events, err := s.Events(ctx, models.CategoryToken, models.EventFilter{Since: base.Add(2 * time.Hour)})
	require.NoError(t, err)
	assert.Len(t, events, 3)

	events, err = s.Events(ctx, models.CategoryToken, models.EventFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestStorageInfo(t *testing.T) {
	s := openTestStore(t)

	info, err := s.StorageInfo(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, info.Path)
	assert.Greater(t, info.SizeBytes, int64(0))
}

func TestSeedModelsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, SeedModels(ctx, s))
	before, err := s.Count(ctx, models.TypeModel, nil)
	require.NoError(t, err)
	assert.Greater(t, before, 0)

	// Operator overrides survive reseeding.
	_, err = s.Save(ctx, &models.Model{ID: "claude-opus-4", InputPrice: 1})
	require.NoError(t, err)
	require.NoError(t, SeedModels(ctx, s))

	got, err := s.Get(ctx, models.TypeModel, "claude-opus-4")
	require.NoError(t, err)
	assert.Equal(t, float64(1), got.(*models.Model).InputPrice)

	after, err := s.Count(ctx, models.TypeModel, nil)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}
