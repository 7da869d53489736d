package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/herd-sh/herd/pkg/adapters"
	"github.com/herd-sh/herd/pkg/identity"
	"github.com/herd-sh/herd/pkg/models"
)

// catchupWindow caps how far back a catchup reaches, whatever the caller's
// last instance says.
const catchupWindow = 7 * 24 * time.Hour

// catchup summarizes what happened since the caller's last ended instance:
// ticket movement, git history, tracker state, handoffs, decisions, and
// channel threads. Each section is best-effort; a missing adapter skips its
// section instead of failing the whole picture.
func (h *Handlers) catchup(ctx context.Context, args map[string]any) (map[string]any, error) {
	caller := identity.Resolve(stringArg(args, "caller"))

	st, err := h.Adapters.NeedStore()
	if err != nil {
		return errResult("%v", err), nil
	}

	cutoff := h.catchupCutoff(ctx, st, caller.Agent)

	result := map[string]any{
		"agent": caller.Agent,
		"since": cutoff.Format(time.RFC3339),
	}
	var summary []string

	// Ticket activity across the tickets this agent worked on.
	ticketEvents := []map[string]any{}
	tickets, err := st.List(ctx, models.TypeTicket, models.TicketFilter{Assignee: caller.Agent})
	if err == nil {
		for _, e := range tickets {
			t, ok := e.(*models.Ticket)
			if !ok {
				continue
			}
			evs, err := st.Events(ctx, models.CategoryTicket, models.EventFilter{EntityID: t.ID, Since: cutoff})
			if err != nil {
				continue
			}
			for _, ev := range evs {
				ticketEvents = append(ticketEvents, map[string]any{
					"ticket":     t.ID,
					"kind":       ev.Kind,
					"payload":    ev.Payload,
					"created_at": ev.CreatedAt.Format(time.RFC3339),
				})
			}
		}
	}
	result["ticket_activity"] = ticketEvents
	summary = append(summary, fmt.Sprintf("%d ticket events", len(ticketEvents)))

	// Git log from the cutoff.
	commits := []map[string]any{}
	if h.Adapters.Repo != nil {
		if log, err := h.Adapters.Repo.Log(ctx, cutoff, 50); err == nil {
			for _, c := range log {
				commits = append(commits, map[string]any{
					"hash":    shortHash(c.Hash),
					"subject": c.Subject,
					"author":  c.Author,
				})
			}
		}
	}
	result["commits"] = commits
	summary = append(summary, fmt.Sprintf("%d commits", len(commits)))

	// Open tracker tickets assigned to this agent.
	assigned := []map[string]any{}
	if h.Adapters.Tickets != nil {
		if snaps, err := h.Adapters.Tickets.List(ctx, adapters.TicketQuery{Assignee: caller.Agent}); err == nil {
			for _, s := range snaps {
				assigned = append(assigned, map[string]any{
					"id":     s.ID,
					"title":  s.Title,
					"status": s.Status,
				})
			}
		}
	}
	result["assigned_tickets"] = assigned
	summary = append(summary, fmt.Sprintf("%d assigned tickets", len(assigned)))

	// Handoffs and decisions.
	handoffs := h.pendingHandoffs(ctx)
	result["pending_handoffs"] = decisionMaps(handoffs)
	summary = append(summary, fmt.Sprintf("%d pending handoffs", len(handoffs)))

	arch := h.decisionsSince(ctx, st, models.DecisionFilter{DecisionType: "architecture", Since: cutoff})
	result["architecture_decisions"] = decisionMaps(arch)

	own := h.decisionsSince(ctx, st, models.DecisionFilter{Author: caller.Agent, Since: cutoff})
	result["own_decisions"] = decisionMaps(own)
	summary = append(summary, fmt.Sprintf("%d decisions (%d architecture)", len(own)+len(arch), len(arch)))

	// Channel threads mentioning the agent, when the backend can search.
	threads := []map[string]any{}
	if s, ok := h.Adapters.Notify.(adapters.Searcher); ok {
		if msgs, err := s.SearchMessages(ctx, caller.Agent, 10); err == nil {
			for _, m := range msgs {
				threads = append(threads, map[string]any{
					"user":      m.User,
					"text":      m.Text,
					"thread_id": m.ThreadID,
				})
			}
		}
	}
	result["threads"] = threads
	summary = append(summary, fmt.Sprintf("%d channel threads", len(threads)))

	result["summary"] = summary
	result["summary_lines"] = len(summary)
	return result, nil
}

// catchupCutoff finds the caller's most recent ended instance and caps the
// lookback at the catchup window.
func (h *Handlers) catchupCutoff(ctx context.Context, st adapters.Store, agent string) time.Time {
	floor := time.Now().UTC().Add(-catchupWindow)

	ents, err := st.List(ctx, models.TypeAgent, models.AgentFilter{Name: agent, State: models.AgentStateStopped})
	if err != nil {
		return floor
	}
	var latest time.Time
	for _, e := range ents {
		a, ok := e.(*models.Agent)
		if !ok || a.EndedAt == nil {
			continue
		}
		if a.EndedAt.After(latest) {
			latest = *a.EndedAt
		}
	}
	if latest.After(floor) {
		return latest
	}
	return floor
}

func (h *Handlers) decisionsSince(ctx context.Context, st adapters.Store, f models.DecisionFilter) []*models.Decision {
	ents, err := st.List(ctx, models.TypeDecision, f)
	if err != nil {
		h.logger.Debug("decision listing failed", "error", err)
		return nil
	}
	return decisionSlice(ents)
}

func decisionMaps(ds []*models.Decision) []map[string]any {
	out := make([]map[string]any, 0, len(ds))
	for _, d := range ds {
		m := map[string]any{
			"id":            d.ID,
			"decision_type": d.DecisionType,
			"decision":      d.Decision,
			"author":        d.Author,
		}
		if d.HDRNumber != "" {
			m["hdr_number"] = d.HDRNumber
		}
		if d.TicketCode != "" {
			m["ticket_code"] = d.TicketCode
		}
		out = append(out, m)
	}
	return out
}
