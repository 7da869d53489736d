package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/herd-sh/herd/pkg/bus"
	"github.com/herd-sh/herd/pkg/events"
	"github.com/herd-sh/herd/pkg/graph"
	"github.com/herd-sh/herd/pkg/identity"
	"github.com/herd-sh/herd/pkg/metrics"
	"github.com/herd-sh/herd/pkg/tier"
)

// send enqueues a message on the bus. Delivery is mailbox-style: the send
// never blocks on a reader.
func (h *Handlers) send(_ context.Context, args map[string]any) (map[string]any, error) {
	to := stringArg(args, "to")
	body := stringArg(args, "message")
	if to == "" || body == "" {
		return errResult("to and message are required"), nil
	}
	msgType := stringArg(args, "type")
	if msgType != "" && !tier.Execution.AllowsMessageType(msgType) {
		return errResult("unknown message type %q: use directive, inform, or flag", msgType), nil
	}
	priority := stringArg(args, "priority")
	if priority != "" && priority != bus.PriorityNormal && priority != bus.PriorityUrgent {
		return errResult("unknown priority %q: use normal or urgent", priority), nil
	}

	caller := identity.Resolve(stringArg(args, "from"))
	msg, err := h.Bus.Send(caller.Address(), to, body, msgType, priority)
	if err != nil {
		return errResult("send failed: %v", err), nil
	}

	h.publish(events.TypeMessageSent, "herd_send", map[string]any{
		"from": msg.From,
		"to":   msg.To,
		"type": msg.Type,
	})
	return map[string]any{
		"message_id": msg.ID,
		"delivered":  true,
		"from":       msg.From,
		"to":         msg.To,
		"type":       msg.Type,
		"priority":   msg.Priority,
	}, nil
}

// checkinTool is the canonical pull point: heartbeat, drain, context pane.
func (h *Handlers) checkinTool(ctx context.Context, args map[string]any) (map[string]any, error) {
	status := stringArg(args, "status")
	if status == "" {
		return errResult("status is required"), nil
	}

	caller := identity.Resolve(stringArg(args, "caller"))
	callerTier := h.Roster.Classify(caller.Agent)
	addr := caller.Address()
	ticket := stringArg(args, "ticket")

	h.Checkins.Record(addr, status, caller.Agent, caller.Team, ticket)
	metrics.CheckinsTotal.Inc()

	if h.Adapters != nil {
		if created, err := identity.EnsureRegistered(ctx, h.Adapters.Store, caller); err != nil {
			h.logger.Warn("Instance registration failed", "address", addr, "error", err)
		} else if created {
			h.logger.Info("Registered self-started instance", "address", addr)
		}
	}

	msgs := h.drain(caller, callerTier)

	var pane any
	if budget := callerTier.ContextBudget(); budget > 0 {
		if s := h.contextPane(ctx, caller, ticket, budget); s != "" {
			pane = s
		}
	}

	h.publish(events.TypeCheckin, "herd_checkin", map[string]any{
		"agent":   caller.Agent,
		"address": addr,
		"status":  status,
	})
	return map[string]any{
		"agent":         caller.Agent,
		"address":       addr,
		"messages":      msgs,
		"context":       pane,
		"heartbeat_ack": true,
	}, nil
}

// getMessages is the drain-only variant of checkin: no heartbeat, no pane.
func (h *Handlers) getMessages(_ context.Context, args map[string]any) (map[string]any, error) {
	caller := identity.Resolve(stringArg(args, "caller"))
	msgs := h.drain(caller, h.Roster.Classify(caller.Agent))
	return map[string]any{
		"agent":    caller.Agent,
		"messages": msgs,
		"count":    len(msgs),
	}, nil
}

// drain pulls everything deliverable to the caller and drops the types the
// caller's tier does not receive.
func (h *Handlers) drain(caller identity.Identity, t tier.Tier) []map[string]any {
	raw := h.Bus.Read(caller.Agent, caller.Instance, caller.Team)
	out := make([]map[string]any, 0, len(raw))
	for _, m := range raw {
		if !t.AllowsMessageType(m.Type) {
			continue
		}
		out = append(out, map[string]any{
			"id":       m.ID,
			"from":     m.From,
			"to":       m.To,
			"body":     m.Body,
			"type":     m.Type,
			"priority": m.Priority,
			"sent_at":  m.SentAt.Format(time.RFC3339),
		})
	}
	return out
}

// contextPane renders the peer snapshot for one checkin. Peers come from the
// registry filtered to the caller's team; when the graph knows the caller's
// ticket, only agents assigned to it remain. The caller is excluded from the
// lines but counted in the active total. Empty pane means no peers survived
// the filters.
func (h *Handlers) contextPane(ctx context.Context, caller identity.Identity, ticket string, budget int) string {
	active := h.Checkins.Active(caller.Team)
	total := len(active)

	var allowed map[string]bool
	if ticket != "" && h.graphReady() {
		ids, err := h.Graph.Neighbors(ctx, graph.NodeTicket, ticket, graph.EdgeAssignedTo)
		if err == nil {
			allowed = make(map[string]bool, len(ids))
			for _, id := range ids {
				allowed[id] = true
			}
		} else {
			h.logger.Debug("graph restriction skipped", "ticket", ticket, "error", err)
		}
	}

	self := caller.Address()
	addrs := make([]string, 0, len(active))
	for addr, e := range active {
		if addr == self {
			continue
		}
		if allowed != nil && !allowed[e.Agent] {
			continue
		}
		addrs = append(addrs, addr)
	}
	if len(addrs) == 0 {
		return ""
	}
	sort.Strings(addrs)

	lines := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		e := active[addr]
		if tag := h.Checkins.Staleness(addr); tag != "" {
			lines = append(lines, fmt.Sprintf("%s (%s): %s", addr, tag, e.Status))
		} else {
			lines = append(lines, fmt.Sprintf("%s: %s", addr, e.Status))
		}
	}

	pane := strings.Join(lines, ". ") + fmt.Sprintf(". %d agents active.", total)
	if limit := budget * 4; len(pane) > limit {
		pane = pane[:limit] + "..."
	}
	return pane
}
