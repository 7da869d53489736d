package tools

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/herd-sh/herd/pkg/adapters"
	"github.com/herd-sh/herd/pkg/graph"
	"github.com/herd-sh/herd/pkg/identity"
	"github.com/herd-sh/herd/pkg/models"
)

// trackerIDPattern matches tracker-issued ticket ids like "HERD-42". Only
// ids of this shape are synced back to the tracker.
var trackerIDPattern = regexp.MustCompile(`^[A-Z][A-Z0-9]*-\d+$`)

// trackerID reports whether the id looks tracker-issued.
func trackerID(id string) bool { return trackerIDPattern.MatchString(id) }

// ensureTicket returns the local ticket, registering it from the tracker on
// first sight when the id looks tracker-issued and a tracker is configured.
func (h *Handlers) ensureTicket(ctx context.Context, st adapters.Store, id string) (*models.Ticket, error) {
	ent, err := st.Get(ctx, models.TypeTicket, id)
	if err == nil {
		return ent.(*models.Ticket), nil
	}
	if !errors.Is(err, adapters.ErrNotFound) {
		return nil, err
	}
	if !trackerID(id) || h.Adapters.Tickets == nil {
		return nil, err
	}

	snap, terr := h.Adapters.Tickets.Get(ctx, id)
	if terr != nil {
		return nil, fmt.Errorf("ticket %s not found locally and tracker lookup failed: %w", id, terr)
	}
	t := &models.Ticket{
		ID:          snap.ID,
		Title:       snap.Title,
		Description: snap.Description,
		Status:      snap.Status,
		Assignee:    snap.Assignee,
		Priority:    snap.Priority,
		URL:         snap.URL,
		Source:      "linear",
	}
	if _, err := st.Save(ctx, t); err != nil {
		return nil, err
	}
	h.logger.Info("Registered ticket from tracker", "ticket", id)
	return t, nil
}

// latestRunningInstance returns the newest RUNNING instance of the named
// agent, or nil when none is up.
func latestRunningInstance(ctx context.Context, st adapters.Store, agent string) (*models.Agent, error) {
	ents, err := st.List(ctx, models.TypeAgent, models.AgentFilter{Name: agent, State: models.AgentStateRunning})
	if err != nil {
		return nil, err
	}
	var latest *models.Agent
	for _, e := range ents {
		a, ok := e.(*models.Agent)
		if !ok {
			continue
		}
		if latest == nil || a.SpawnedAt.After(latest.SpawnedAt) {
			latest = a
		}
	}
	return latest, nil
}

// assign hands a ticket to an agent: a ticket event, a local status change,
// and a best-effort tracker sync.
func (h *Handlers) assign(ctx context.Context, args map[string]any) (map[string]any, error) {
	ticketID := stringArg(args, "ticket_id")
	agentName := stringArg(args, "agent_name")
	if ticketID == "" || agentName == "" {
		return errResult("ticket_id and agent_name are required"), nil
	}
	priority := stringArg(args, "priority")
	caller := identity.Resolve(stringArg(args, "caller"))

	st, err := h.Adapters.NeedStore()
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

	instance, err := latestRunningInstance(ctx, st, agentName)
	if err != nil {
		return errResult("%v", err), nil
	}

	ev := models.Event{
		ID:       uuid.New().String(),
		EntityID: ticketID,
		Category: models.CategoryTicket,
		Kind:     models.KindAssigned,
		Payload: map[string]any{
			"assigned_to": agentName,
			"assigned_by": caller.Agent,
		},
	}
	if priority != "" {
		ev.Payload["priority"] = priority
	}
	if err := st.Append(ctx, ev); err != nil {
		return errResult("recording assignment failed: %v", err), nil
	}

	ticket.Status = "assigned"
	ticket.Assignee = agentName
	if priority != "" {
		ticket.Priority = priority
	}
	if _, err := st.Save(ctx, ticket); err != nil {
		return errResult("saving ticket failed: %v", err), nil
	}

	if h.graphReady() {
		h.syncAssignmentGraph(ctx, agentName, ticketID)
	}

	synced := false
	if trackerID(ticketID) && h.Adapters.Tickets != nil {
		fields := map[string]string{"assignee": agentName}
		if priority != "" {
			fields["priority"] = priority
		}
		if err := h.Adapters.Tickets.Update(ctx, ticketID, fields); err != nil {
			h.logger.Warn("Tracker assign sync failed", "ticket", ticketID, "error", err)
		} else {
			synced = true
		}
	}

	result := map[string]any{
		"assigned": true,
		"agent":    agentName,
		"ticket": map[string]any{
			"id":     ticket.ID,
			"title":  ticket.Title,
			"status": ticket.Status,
		},
		"linear_synced": synced,
	}
	if instance != nil {
		result["agent_instance_code"] = instance.ID
	} else {
		result["note"] = fmt.Sprintf("%s has no running instance; assignment recorded for its next spawn", agentName)
	}
	return result, nil
}

// syncAssignmentGraph mirrors an assignment into the structural graph so the
// checkin context pane can restrict peers by ticket. Best-effort.
func (h *Handlers) syncAssignmentGraph(ctx context.Context, agent, ticketID string) {
	if err := h.Graph.MergeNode(ctx, graph.NodeAgent, map[string]any{"id": agent}); err != nil {
		h.logger.Debug("graph agent merge failed", "agent", agent, "error", err)
		return
	}
	if err := h.Graph.MergeNode(ctx, graph.NodeTicket, map[string]any{"id": ticketID}); err != nil {
		h.logger.Debug("graph ticket merge failed", "ticket", ticketID, "error", err)
		return
	}
	if err := h.Graph.CreateEdge(ctx, graph.EdgeAssignedTo, graph.NodeAgent, agent, graph.NodeTicket, ticketID, nil); err != nil {
		h.logger.Debug("graph assignment edge failed", "ticket", ticketID, "error", err)
	}
}

// transition moves a ticket to a new status, recording elapsed time since
// the previous transition and syncing recognized statuses to the tracker.
func (h *Handlers) transition(ctx context.Context, args map[string]any) (map[string]any, error) {
	ticketID := stringArg(args, "ticket_id")
	toStatus := stringArg(args, "to_status")
	if ticketID == "" || toStatus == "" {
		return errResult("ticket_id and to_status are required"), nil
	}
	blockedBy := stringArg(args, "blocked_by")
	note := stringArg(args, "note")
	caller := identity.Resolve(stringArg(args, "caller"))

	st, err := h.Adapters.NeedStore()
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

	eventType := models.KindStatusChanged
	if toStatus == "blocked" {
		eventType = models.KindBlocked
	}

	elapsed, err := minutesSinceLastTransition(ctx, st, ticketID)
	if err != nil {
		return errResult("%v", err), nil
	}

	previous := ticket.Status
	ev := models.Event{
		ID:       uuid.New().String(),
		EntityID: ticketID,
		Category: models.CategoryTicket,
		Kind:     eventType,
		Payload: map[string]any{
			"previous_status": previous,
			"new_status":      toStatus,
			"elapsed_minutes": elapsed,
			"by":              caller.Agent,
		},
	}
	if blockedBy != "" {
		ev.Payload["blocked_by"] = blockedBy
	}
	if note != "" {
		ev.Payload["note"] = note
	}
	if err := st.Append(ctx, ev); err != nil {
		return errResult("recording transition failed: %v", err), nil
	}

	ticket.Status = toStatus
	ticket.BlockedBy = blockedBy
	if _, err := st.Save(ctx, ticket); err != nil {
		return errResult("saving ticket failed: %v", err), nil
	}

	result := map[string]any{
		"transition_id": ev.ID,
		"ticket": map[string]any{
			"id":              ticket.ID,
			"previous_status": previous,
			"new_status":      toStatus,
		},
		"event_type": eventType,
	}

	if trackerID(ticketID) && h.Adapters.Tickets != nil {
		_, terr := h.Adapters.Tickets.Transition(ctx, ticketID, toStatus, note, blockedBy)
		switch {
		case terr == nil:
			result["linear_synced"] = true
		case errors.Is(terr, adapters.ErrUnsupportedStatus):
			// The tracker has no equivalent state; local truth stands.
			result["linear_synced"] = false
		default:
			result["linear_synced"] = false
			result["linear_sync_error"] = terr.Error()
		}
	}
	return result, nil
}

// minutesSinceLastTransition measures the gap from the newest transition
// event on the ticket to now. The first transition measures as zero.
func minutesSinceLastTransition(ctx context.Context, st adapters.Store, ticketID string) (float64, error) {
	evs, err := st.Events(ctx, models.CategoryTicket, models.EventFilter{EntityID: ticketID})
	if err != nil {
		return 0, err
	}
	var last time.Time
	for _, ev := range evs {
		if ev.Kind != models.KindStatusChanged && ev.Kind != models.KindBlocked {
			continue
		}
		if ev.CreatedAt.After(last) {
			last = ev.CreatedAt
		}
	}
	if last.IsZero() {
		return 0, nil
	}
	return time.Since(last).Minutes(), nil
}
