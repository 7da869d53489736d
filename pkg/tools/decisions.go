package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/herd-sh/herd/pkg/adapters"
	"github.com/herd-sh/herd/pkg/identity"
	"github.com/herd-sh/herd/pkg/memory"
	"github.com/herd-sh/herd/pkg/models"
)

// recordDecision persists a decision record and announces it on the
// decisions channel. The store write is authoritative; the announcement is
// best-effort and reports its own failure.
func (h *Handlers) recordDecision(ctx context.Context, args map[string]any) (map[string]any, error) {
	decisionType := stringArg(args, "decision_type")
	decision := stringArg(args, "decision")
	if decisionType == "" || decision == "" {
		return errResult("decision_type and decision are required"), nil
	}
	context_ := stringArg(args, "context")
	rationale := stringArg(args, "rationale")
	ticketCode := stringArg(args, "ticket_code")
	caller := identity.Resolve(stringArg(args, "caller"))

	var alternatives []string
	for _, a := range sliceArg(args, "alternatives") {
		if s, ok := a.(string); ok && strings.TrimSpace(s) != "" {
			alternatives = append(alternatives, strings.TrimSpace(s))
		}
	}

	st, err := h.Adapters.NeedStore()
	if err != nil {
		return errResult("%v", err), nil
	}

	h.Adapters.WriteLock.Lock()
	defer h.Adapters.WriteLock.Unlock()

	rec := &models.Decision{
		ID:           uuid.New().String(),
		DecisionType: decisionType,
		Context:      context_,
		Decision:     decision,
		Rationale:    rationale,
		Alternatives: alternatives,
		TicketCode:   ticketCode,
		Author:       caller.Agent,
		Status:       "recorded",
	}

	// Architecture decisions get a durable HDR number from the memory
	// index, which also keeps a searchable copy of the context.
	if decisionType == "architecture" && h.Memory != nil {
		if hdr, err := h.Memory.NextHDRNumber(ctx); err == nil {
			rec.HDRNumber = hdr
			if _, err := h.Memory.Store(ctx, memory.Entry{
				MemoryType: memory.TypeDecisionContext,
				AgentName:  caller.Agent,
				TicketID:   ticketCode,
				Content:    fmt.Sprintf("%s\n\nDecision: %s\n\nRationale: %s", context_, decision, rationale),
				Summary:    decision,
				Metadata:   map[string]any{"hdr_number": hdr, "decision_type": decisionType},
			}); err != nil {
				h.logger.Warn("Decision memory write failed", "hdr", hdr, "error", err)
			}
		} else {
			h.logger.Warn("HDR numbering unavailable", "error", err)
		}
	}

	if _, err := st.Save(ctx, rec); err != nil {
		return errResult("saving decision failed: %v", err), nil
	}

	result := map[string]any{
		"decision_id":   rec.ID,
		"decision_type": decisionType,
		"author":        caller.Agent,
	}
	if rec.HDRNumber != "" {
		result["hdr_number"] = rec.HDRNumber
	}

	if h.Adapters.Notify != nil {
		msg := decisionAnnouncement(rec)
		channel := h.Config.Slack.DecisionsChannel
		if _, err := h.Adapters.Notify.Post(ctx, msg, channel, "", ""); err != nil {
			result["posted_to_slack"] = false
			result["slack_error"] = err.Error()
		} else {
			result["posted_to_slack"] = true
		}
	} else {
		result["posted_to_slack"] = false
	}
	return result, nil
}

// decisionAnnouncement renders the channel post for a recorded decision.
func decisionAnnouncement(d *models.Decision) string {
	var b strings.Builder
	if d.HDRNumber != "" {
		fmt.Fprintf(&b, "*%s — %s decision* by %s\n", d.HDRNumber, d.DecisionType, d.Author)
	} else {
		fmt.Fprintf(&b, "*%s decision* by %s\n", d.DecisionType, d.Author)
	}
	fmt.Fprintf(&b, "Decision: %s\n", d.Decision)
	if d.Rationale != "" {
		fmt.Fprintf(&b, "Rationale: %s\n", d.Rationale)
	}
	if len(d.Alternatives) > 0 {
		fmt.Fprintf(&b, "Alternatives considered: %s\n", strings.Join(d.Alternatives, "; "))
	}
	if d.TicketCode != "" {
		fmt.Fprintf(&b, "Ticket: %s\n", d.TicketCode)
	}
	return strings.TrimRight(b.String(), "\n")
}

// assumeCommitCount bounds the git history included in an identity prompt.
const assumeCommitCount = 10

// assume composes the identity prompt an operator pastes into a fresh
// session to take over an agent role. Every adapter-backed section is
// best-effort; missing surfaces are skipped rather than failing the prompt.
func (h *Handlers) assume(ctx context.Context, args map[string]any) (map[string]any, error) {
	name := stringArg(args, "agent_name")
	if name == "" {
		return errResult("agent_name is required"), nil
	}
	code, ok := h.Roster.ResolveCode(name)
	if !ok {
		r := errResult("unknown agent %q", name)
		r["valid_agents"] = h.Roster.Known()
		return r, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# You are %s\n\n", titleCaser.String(code))
	b.WriteString(h.roleSection(code))
	b.WriteString("\n\n")
	b.WriteString(h.craftSection(code))
	b.WriteString("\n\n")
	b.WriteString(h.guidelinesSection())
	b.WriteString("\n\n")

	if path := h.Config.Spawn.StatusDocPath; path != "" {
		b.WriteString("## Current status\n\n")
		b.WriteString(readOrPlaceholder(path, "status document"))
		b.WriteString("\n\n")
	}

	if h.Adapters.Repo != nil {
		if commits, err := h.Adapters.Repo.Log(ctx, time.Time{}, assumeCommitCount); err == nil && len(commits) > 0 {
			b.WriteString("## Recent commits\n\n")
			for _, c := range commits {
				fmt.Fprintf(&b, "- %s %s\n", shortHash(c.Hash), c.Subject)
			}
			b.WriteString("\n")
		}
	}

	if h.Adapters.Tickets != nil {
		if snaps, err := h.Adapters.Tickets.List(ctx, adapters.TicketQuery{Assignee: code}); err == nil && len(snaps) > 0 {
			b.WriteString("## Your tickets\n\n")
			for _, s := range snaps {
				fmt.Fprintf(&b, "- %s [%s] %s\n", s.ID, s.Status, s.Title)
			}
			b.WriteString("\n")
		}
	}

	if h.Adapters.Store != nil {
		if handoffs := h.pendingHandoffs(ctx); len(handoffs) > 0 {
			b.WriteString("## Pending handoffs\n\n")
			for _, d := range handoffs {
				fmt.Fprintf(&b, "- %s (from %s)\n", d.Decision, d.Author)
			}
			b.WriteString("\n")
		}
		if decisions := h.recentDecisions(ctx, "", 5); len(decisions) > 0 {
			b.WriteString("## Recent decisions\n\n")
			for _, d := range decisions {
				fmt.Fprintf(&b, "- %s: %s\n", d.DecisionType, d.Decision)
			}
			b.WriteString("\n")
		}
	}

	fmt.Fprintf(&b, "Check in with herd_checkin as %s before picking up work, and again whenever your status changes.\n", code)

	return map[string]any{"agent": code, "prompt": b.String()}, nil
}

// pendingHandoffs lists handoff decisions still waiting for a taker.
func (h *Handlers) pendingHandoffs(ctx context.Context) []*models.Decision {
	ents, err := h.Adapters.Store.List(ctx, models.TypeDecision, models.DecisionFilter{DecisionType: "handoff", Status: "pending"})
	if err != nil {
		h.logger.Debug("handoff listing failed", "error", err)
		return nil
	}
	return decisionSlice(ents)
}

// recentDecisions lists the newest decisions, optionally by author.
func (h *Handlers) recentDecisions(ctx context.Context, author string, limit int) []*models.Decision {
	ents, err := h.Adapters.Store.List(ctx, models.TypeDecision, models.DecisionFilter{Author: author})
	if err != nil {
		h.logger.Debug("decision listing failed", "error", err)
		return nil
	}
	ds := decisionSlice(ents)
	if len(ds) > limit {
		ds = ds[len(ds)-limit:]
	}
	return ds
}

func decisionSlice(ents []models.Entity) []*models.Decision {
	out := make([]*models.Decision, 0, len(ents))
	for _, e := range ents {
		if d, ok := e.(*models.Decision); ok {
			out = append(out, d)
		}
	}
	return out
}

func shortHash(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}
