package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/herd-sh/herd/pkg/adapters/mock"
	"github.com/herd-sh/herd/pkg/models"
)

func TestResolveParamWins(t *testing.T) {
	t.Setenv(EnvAgentName, "steve")
	t.Setenv(EnvInstanceID, "env-inst")
	t.Setenv(EnvTeam, "avalon")

	id := Resolve("mason")
	assert.Equal(t, "mason", id.Agent)
	assert.Equal(t, "env-inst", id.Instance)
	assert.Equal(t, "avalon", id.Team)
}

func TestResolveFullAddressParam(t *testing.T) {
	t.Setenv(EnvInstanceID, "env-inst")
	t.Setenv(EnvTeam, "env-team")

	id := Resolve("mason.i7@camelot")
	assert.Equal(t, "mason", id.Agent)
	assert.Equal(t, "i7", id.Instance)
	assert.Equal(t, "camelot", id.Team)
}

func TestResolveEnvFallback(t *testing.T) {
	t.Setenv(EnvAgentName, "fresco")
	t.Setenv(EnvInstanceID, "")
	t.Setenv(EnvTeam, "")

	id := Resolve("")
	assert.Equal(t, "fresco", id.Agent)
	assert.Empty(t, id.Instance)
}

func TestResolveUnknown(t *testing.T) {
	t.Setenv(EnvAgentName, "")
	t.Setenv(EnvInstanceID, "")

	id := Resolve("")
	assert.Equal(t, UnknownAgent, id.Agent)
}

func TestAddressAndReaderKey(t *testing.T) {
	id := Identity{Agent: "mason", Instance: "i1", Team: "avalon"}
	assert.Equal(t, "mason.i1@avalon", id.Address())
	assert.Equal(t, "i1", id.ReaderKey())

	bare := Identity{Agent: "mason"}
	assert.Equal(t, "mason", bare.Address())
	assert.Equal(t, "mason", bare.ReaderKey())
}

func TestEnsureRegistered(t *testing.T) {
	ctx := context.Background()
	st := mock.NewStore()
	id := Identity{Agent: "mason", Instance: "mason-a1b2c3", Team: "avalon"}

	created, err := EnsureRegistered(ctx, st, id)
	require.NoError(t, err)
	assert.True(t, created)

	got, err := st.Get(ctx, models.TypeAgent, "mason-a1b2c3")
	require.NoError(t, err)
	agent := got.(*models.Agent)
	assert.Equal(t, "mason", agent.Name)
	assert.Equal(t, "avalon", agent.Team)
	assert.Equal(t, models.AgentStateRunning, agent.State)

	evs, err := st.Events(ctx, models.CategoryLifecycle, models.EventFilter{EntityID: "mason-a1b2c3"})
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, models.KindSpawned, evs[0].Kind)

	created, err = EnsureRegistered(ctx, st, id)
	require.NoError(t, err)
	assert.False(t, created, "a known instance must not be re-registered")
}

func TestEnsureRegisteredSkipsTransient(t *testing.T) {
	ctx := context.Background()

	created, err := EnsureRegistered(ctx, mock.NewStore(), Identity{Agent: "steve"})
	require.NoError(t, err)
	assert.False(t, created, "instance-less callers stay unregistered")

	created, err = EnsureRegistered(ctx, nil, Identity{Agent: "mason", Instance: "i1"})
	require.NoError(t, err)
	assert.False(t, created)
}
