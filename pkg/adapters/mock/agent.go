package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/herd-sh/herd/pkg/adapters"
)

// Agent fakes the subprocess spawner. Spawn hands back an instance id
// immediately; Stop flips the instance to exited.
type Agent struct {
	mu        sync.Mutex
	instances map[string]*adapters.AgentStatus
	spawned   []adapters.SpawnRequest
	now       func() time.Time

	Err error
}

var _ adapters.Agent = (*Agent)(nil)

// NewAgent builds an empty spawner.
func NewAgent() *Agent {
	return &Agent{
		instances: make(map[string]*adapters.AgentStatus),
		now:       time.Now,
	}
}

// SpawnRequests returns every request received, in order.
func (m *Agent) SpawnRequests() []adapters.SpawnRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]adapters.SpawnRequest(nil), m.spawned...)
}

func (m *Agent) Spawn(_ context.Context, req adapters.SpawnRequest) (adapters.SpawnResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return adapters.SpawnResult{}, m.Err
	}
	if req.AgentCode == "" {
		return adapters.SpawnResult{}, fmt.Errorf("agent code is required")
	}

	id := req.AgentCode + "-" + uuid.NewString()[:8]
	started := m.now().UTC()
	m.instances[id] = &adapters.AgentStatus{
		InstanceID: id,
		Running:    true,
		PID:        10000 + len(m.instances),
		StartedAt:  started,
	}
	m.spawned = append(m.spawned, req)
	return adapters.SpawnResult{
		InstanceID: id,
		Agent:      req.AgentCode,
		TicketID:   req.TicketID,
		Model:      req.Model,
		Worktree:   req.Worktree,
		Branch:     req.Branch,
		SpawnedAt:  started,
	}, nil
}

func (m *Agent) Status(_ context.Context, instanceID string) (adapters.AgentStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return adapters.AgentStatus{}, m.Err
	}
	st, ok := m.instances[instanceID]
	if !ok {
		return adapters.AgentStatus{}, fmt.Errorf("instance %s: %w", instanceID, adapters.ErrNotFound)
	}
	return *st, nil
}

func (m *Agent) Stop(_ context.Context, instanceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	st, ok := m.instances[instanceID]
	if !ok {
		return fmt.Errorf("instance %s: %w", instanceID, adapters.ErrNotFound)
	}
	st.Running = false
	code := 0
	st.ExitCode = &code
	return nil
}
