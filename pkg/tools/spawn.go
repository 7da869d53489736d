package tools

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/herd-sh/herd/pkg/adapters"
	"github.com/herd-sh/herd/pkg/events"
	"github.com/herd-sh/herd/pkg/graph"
	"github.com/herd-sh/herd/pkg/identity"
	"github.com/herd-sh/herd/pkg/models"
)

// spawn starts agent instances. With a ticket_id it runs the full ticket
// pipeline: register the ticket, cut a branch and worktree, assemble the
// context payload, start the instance, and move the ticket to in_progress.
// Without one it pre-allocates bare capacity from the roster.
func (h *Handlers) spawn(ctx context.Context, args map[string]any) (map[string]any, error) {
	role := stringArg(args, "role")
	if role == "" {
		return errResult("role is required"), nil
	}
	code, ok := h.Roster.ResolveCode(role)
	if !ok {
		r := errResult("unknown role %q", role)
		r["valid_agents"] = h.Roster.Known()
		return r, nil
	}

	count := intArg(args, "count", 1)
	if count < 1 {
		return errResult("count must be at least 1"), nil
	}
	ticketID := stringArg(args, "ticket_id")
	if ticketID != "" && count != 1 {
		return errResult("ticket-bound spawns take count=1"), nil
	}
	model := stringArg(args, "model")
	caller := identity.Resolve(stringArg(args, "caller"))

	runner, err := h.Adapters.NeedAgent()
	if err != nil {
		return errResult("%v", err), nil
	}
	st, err := h.Adapters.NeedStore()
	if err != nil {
		return errResult("%v", err), nil
	}

	if ticketID == "" {
		return h.spawnBare(ctx, runner, st, code, model, caller, count)
	}
	return h.spawnForTicket(ctx, runner, st, code, model, caller, ticketID)
}

// spawnBare starts count instances with no ticket linkage, worktree, or
// context payload.
func (h *Handlers) spawnBare(ctx context.Context, runner adapters.Agent, st adapters.Store, code, model string, caller identity.Identity, count int) (map[string]any, error) {
	h.Adapters.WriteLock.Lock()
	defer h.Adapters.WriteLock.Unlock()

	instances := make([]string, 0, count)
	for i := 0; i < count; i++ {
		res, err := runner.Spawn(ctx, adapters.SpawnRequest{AgentCode: code, Model: model})
		if err != nil {
			return errResult("spawning %s failed after %d instances: %v", code, len(instances), err), nil
		}
		if err := h.registerInstance(ctx, st, res, caller.Agent); err != nil {
			return errResult("recording instance %s failed: %v", res.InstanceID, err), nil
		}
		instances = append(instances, res.InstanceID)
	}
	return map[string]any{
		"agent":  code,
		"agents": instances,
		"count":  len(instances),
	}, nil
}

// spawnForTicket runs the single-instance ticket pipeline.
func (h *Handlers) spawnForTicket(ctx context.Context, runner adapters.Agent, st adapters.Store, code, model string, caller identity.Identity, ticketID string) (map[string]any, error) {
	repo, err := h.Adapters.NeedRepo()
	if err != nil {
		return errResult("%v", err), nil
	}

	h.Adapters.WriteLock.Lock()
	defer h.Adapters.WriteLock.Unlock()

	ticket, err := h.ensureTicket(ctx, st, ticketID)
	if err != nil {
		if errors.Is(err, adapters.ErrNotFound) {
			return errResult("ticket %s not found", ticketID), nil
		}
		return errResult("%v", err), nil
	}

	lower := strings.ToLower(ticketID)
	branch := fmt.Sprintf("herd/%s/%s-herd-spawn", code, lower)
	base := h.Config.GitHub.BaseBranch
	if base == "" {
		base = "main"
	}
	if _, err := repo.CreateBranch(ctx, branch, base); err != nil {
		return errResult("creating branch %s failed: %v", branch, err), nil
	}
	worktree, err := repo.CreateWorktree(ctx, branch, filepath.Join(h.Config.Spawn.WorktreeRoot, code+"-"+lower))
	if err != nil {
		return errResult("creating worktree failed: %v", err), nil
	}

	payload := h.assembleBriefing(code, ticket, worktree, branch)

	res, err := runner.Spawn(ctx, adapters.SpawnRequest{
		AgentCode: code,
		TicketID:  ticketID,
		Context:   payload,
		Model:     model,
		Worktree:  worktree,
		Branch:    branch,
	})
	if err != nil {
		return errResult("spawning %s failed: %v", code, err), nil
	}
	if err := h.registerInstance(ctx, st, res, caller.Agent); err != nil {
		return errResult("recording instance %s failed: %v", res.InstanceID, err), nil
	}
	if h.graphReady() {
		h.syncAssignmentGraph(ctx, code, ticketID)
	}

	// Ticket moves to in_progress locally; tracker sync is best-effort.
	previous := ticket.Status
	ticket.Status = "in_progress"
	ticket.Assignee = code
	if _, err := st.Save(ctx, ticket); err != nil {
		return errResult("saving ticket failed: %v", err), nil
	}
	if err := st.Append(ctx, models.Event{
		ID:       uuid.New().String(),
		EntityID: ticketID,
		Category: models.CategoryTicket,
		Kind:     models.KindStatusChanged,
		Payload: map[string]any{
			"previous_status": previous,
			"new_status":      "in_progress",
			"by":              caller.Agent,
		},
	}); err != nil {
		return errResult("recording transition failed: %v", err), nil
	}

	synced := false
	if trackerID(ticketID) && h.Adapters.Tickets != nil {
		if _, terr := h.Adapters.Tickets.Transition(ctx, ticketID, "in_progress", "", ""); terr == nil {
			synced = true
		} else if !errors.Is(terr, adapters.ErrUnsupportedStatus) {
			h.logger.Warn("Tracker transition sync failed", "ticket", ticketID, "error", terr)
		}
	}

	return map[string]any{
		"agent":           code,
		"agents":          []string{res.InstanceID},
		"count":           1,
		"ticket_id":       ticketID,
		"worktree_path":   worktree,
		"branch_name":     branch,
		"context_payload": payload,
		"model":           res.Model,
		"linear_synced":   synced,
	}, nil
}

// registerInstance persists the Agent entity and its lifecycle event for a
// freshly spawned instance and announces it on the event stream.
func (h *Handlers) registerInstance(ctx context.Context, st adapters.Store, res adapters.SpawnResult, spawnedBy string) error {
	agent := &models.Agent{
		ID:        res.InstanceID,
		Name:      res.Agent,
		State:     models.AgentStateRunning,
		Model:     res.Model,
		TicketID:  res.TicketID,
		Worktree:  res.Worktree,
		Branch:    res.Branch,
		SpawnedBy: spawnedBy,
		SpawnedAt: res.SpawnedAt,
	}
	if _, err := st.Save(ctx, agent); err != nil {
		return err
	}
	if err := st.Append(ctx, models.Event{
		ID:       uuid.New().String(),
		EntityID: res.InstanceID,
		Category: models.CategoryLifecycle,
		Kind:     models.KindSpawned,
		Payload: map[string]any{
			"agent":  res.Agent,
			"ticket": res.TicketID,
			"model":  res.Model,
			"by":     spawnedBy,
		},
	}); err != nil {
		return err
	}

	if h.graphReady() {
		if err := h.Graph.MergeNode(ctx, graph.NodeAgent, map[string]any{"id": res.Agent}); err == nil {
			_ = h.Graph.MergeNode(ctx, graph.NodeSession, map[string]any{"id": res.InstanceID, "agent": res.Agent})
			if err := h.Graph.CreateEdge(ctx, graph.EdgeSpawnedBy, graph.NodeSession, res.InstanceID, graph.NodeAgent, res.Agent, nil); err != nil {
				h.logger.Debug("graph spawn edge failed", "instance", res.InstanceID, "error", err)
			}
		}
	}

	h.publish(events.TypeAgentSpawned, "herd_spawn", map[string]any{
		"agent":    res.Agent,
		"instance": res.InstanceID,
		"ticket":   res.TicketID,
	})
	return nil
}

// decommission stops every running instance of an agent.
func (h *Handlers) decommission(ctx context.Context, args map[string]any) (map[string]any, error) {
	return h.stopInstances(ctx, args, models.KindDecommissioned)
}

// standdown is decommission under the cooperative shutdown phrase.
func (h *Handlers) standdown(ctx context.Context, args map[string]any) (map[string]any, error) {
	return h.stopInstances(ctx, args, models.KindStanddown)
}

// stopInstances is the shared core of decommission and standdown: mark every
// running instance STOPPED, stamp ended_at, append one lifecycle event per
// instance, and ask the agent adapter to kill the process. Idempotent: no
// running instances means instances_ended 0, not an error.
func (h *Handlers) stopInstances(ctx context.Context, args map[string]any, kind string) (map[string]any, error) {
	name := stringArg(args, "agent_name")
	if name == "" {
		return errResult("agent_name is required"), nil
	}
	if code, ok := h.Roster.ResolveCode(name); ok {
		name = code
	}
	caller := identity.Resolve(stringArg(args, "caller"))

	st, err := h.Adapters.NeedStore()
	if err != nil {
		return errResult("%v", err), nil
	}

	h.Adapters.WriteLock.Lock()
	defer h.Adapters.WriteLock.Unlock()

	ents, err := st.List(ctx, models.TypeAgent, models.AgentFilter{Name: name, State: models.AgentStateRunning})
	if err != nil {
		return errResult("%v", err), nil
	}

	now := time.Now().UTC()
	ended := 0
	for _, e := range ents {
		a, ok := e.(*models.Agent)
		if !ok {
			continue
		}
		a.State = models.AgentStateStopped
		a.EndedAt = &now
		if _, err := st.Save(ctx, a); err != nil {
			return errResult("stopping %s failed: %v", a.ID, err), nil
		}
		if err := st.Append(ctx, models.Event{
			ID:       uuid.New().String(),
			EntityID: a.ID,
			Category: models.CategoryLifecycle,
			Kind:     kind,
			Payload:  map[string]any{"agent": name, "by": caller.Agent},
		}); err != nil {
			return errResult("recording stop for %s failed: %v", a.ID, err), nil
		}

		if h.Adapters.Agent != nil {
			if err := h.Adapters.Agent.Stop(ctx, a.ID); err != nil && !errors.Is(err, adapters.ErrNotFound) {
				h.logger.Warn("Stopping agent process failed", "instance", a.ID, "error", err)
			}
		}
		h.publish(events.TypeAgentStopped, kind, map[string]any{
			"agent":    name,
			"instance": a.ID,
		})
		ended++
	}

	return map[string]any{
		"target_agent":    name,
		"previous_status": models.AgentStateRunning,
		"new_status":      models.AgentStateStopped,
		"instances_ended": ended,
		"requested_by":    caller.Agent,
	}, nil
}
