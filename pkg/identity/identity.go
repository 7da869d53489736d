// Package identity resolves the caller of a tool call to a durable agent
// identity. Resolution order: explicit parameter, then the HERD_AGENT_NAME
// environment variable, then the literal "unknown". Instance, team, org and
// host come from the environment only.
package identity

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/herd-sh/herd/pkg/adapters"
	"github.com/herd-sh/herd/pkg/address"
	"github.com/herd-sh/herd/pkg/models"
)

// Environment variables consulted during resolution.
const (
	EnvAgentName  = "HERD_AGENT_NAME"
	EnvInstanceID = "HERD_INSTANCE_ID"
	EnvTeam       = "HERD_TEAM"
	EnvOrg        = "HERD_ORG"
	EnvHost       = "HERD_HOST"
)

// UnknownAgent is the fallback agent code when nothing identifies the caller.
const UnknownAgent = "unknown"

// Identity is the resolved caller of a tool call.
type Identity struct {
	Agent    string
	Instance string
	Team     string
	Org      string
	Host     string
}

// Resolve builds the caller identity. The param may be an agent code or a
// full address ("mason.i1@avalon"); address parts present in the param win
// over the environment.
func Resolve(param string) Identity {
	id := Identity{
		Instance: os.Getenv(EnvInstanceID),
		Team:     os.Getenv(EnvTeam),
		Org:      os.Getenv(EnvOrg),
		Host:     os.Getenv(EnvHost),
	}

	if param != "" {
		parsed := address.Parse(param)
		id.Agent = parsed.Agent
		if parsed.Instance != "" {
			id.Instance = parsed.Instance
		}
		if parsed.Team != "" {
			id.Team = parsed.Team
		}
		return id
	}

	if name := os.Getenv(EnvAgentName); name != "" {
		id.Agent = name
		return id
	}

	id.Agent = UnknownAgent
	return id
}

// Address renders the identity as a bus address.
func (id Identity) Address() string {
	return address.Address{Agent: id.Agent, Instance: id.Instance, Team: id.Team}.Render()
}

// ReaderKey is the key used for @everyone read tracking: the instance id, or
// the agent code when the caller runs without one.
func (id Identity) ReaderKey() string {
	if id.Instance != "" {
		return id.Instance
	}
	return id.Agent
}

// EnsureRegistered records a first-seen instance id as a new Agent entity
// with a lifecycle "spawned" event. Callers without an instance id are
// transient and never registered. Returns true when a new entity was
// created.
func EnsureRegistered(ctx context.Context, store adapters.Store, id Identity) (bool, error) {
	if id.Instance == "" || store == nil {
		return false, nil
	}

	_, err := store.Get(ctx, models.TypeAgent, id.Instance)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, adapters.ErrNotFound) {
		return false, err
	}

	now := time.Now().UTC()
	agent := &models.Agent{
		ID:        id.Instance,
		Name:      id.Agent,
		Team:      id.Team,
		State:     models.AgentStateRunning,
		SpawnedAt: now,
	}
	if _, err := store.Save(ctx, agent); err != nil {
		return false, err
	}

	ev := models.Event{
		ID:       uuid.New().String(),
		EntityID: id.Instance,
		Category: models.CategoryLifecycle,
		Kind:     models.KindSpawned,
		Payload: map[string]any{
			"agent": id.Agent,
			"team":  id.Team,
		},
	}
	if err := store.Append(ctx, ev); err != nil {
		return true, err
	}
	return true, nil
}
