package tools

import (
	"context"
	"strings"
	"time"

	"github.com/herd-sh/herd/pkg/identity"
	"github.com/herd-sh/herd/pkg/memory"
)

// remember stores one memory in the semantic index. Backend failures come
// back as error results; the runtime keeps serving without its memory.
func (h *Handlers) remember(ctx context.Context, args map[string]any) (map[string]any, error) {
	if h.Memory == nil {
		return errResult("memory not configured"), nil
	}
	content := stringArg(args, "content")
	memType := stringArg(args, "memory_type")
	if content == "" || memType == "" {
		return errResult("content and memory_type are required"), nil
	}
	if !memory.ValidType(memType) {
		return errResult("invalid memory_type %q: use one of session_summary, decision_context, pattern, preference, thread, lesson, observation", memType), nil
	}

	agent := stringArg(args, "agent")
	if agent == "" {
		agent = identity.Resolve(stringArg(args, "caller")).Agent
	}

	id, err := h.Memory.Store(ctx, memory.Entry{
		MemoryType: memType,
		AgentName:  agent,
		TicketID:   stringArg(args, "ticket_id"),
		SprintID:   stringArg(args, "sprint_id"),
		Content:    content,
		Summary:    stringArg(args, "summary"),
		Metadata:   mapArg(args, "metadata"),
	})
	if err != nil {
		return errResult("storing memory failed: %v", err), nil
	}
	return map[string]any{"memory_id": id, "memory_type": memType}, nil
}

// recall searches the semantic index by similarity, nearest first.
func (h *Handlers) recall(ctx context.Context, args map[string]any) (map[string]any, error) {
	if h.Memory == nil {
		return errResult("memory not configured"), nil
	}
	query := stringArg(args, "query")
	if query == "" {
		return errResult("query is required"), nil
	}

	hits, err := h.Memory.Recall(ctx, query, memory.Filters{
		MemoryType: stringArg(args, "memory_type"),
		AgentName:  stringArg(args, "agent"),
		TicketID:   stringArg(args, "ticket_id"),
		SprintID:   stringArg(args, "sprint_id"),
		Limit:      intArg(args, "limit", 0),
	})
	if err != nil {
		return errResult("recall failed: %v", err), nil
	}

	memories := make([]map[string]any, 0, len(hits))
	for _, r := range hits {
		m := map[string]any{
			"id":          r.ID,
			"memory_type": r.MemoryType,
			"content":     r.Content,
			"created_at":  r.CreatedAt.Format(time.RFC3339),
			"_distance":   r.Distance,
		}
		if r.Summary != "" {
			m["summary"] = r.Summary
		}
		if r.AgentName != "" {
			m["agent"] = r.AgentName
		}
		if r.TicketID != "" {
			m["ticket_id"] = r.TicketID
		}
		if len(r.Metadata) > 0 {
			m["metadata"] = r.Metadata
		}
		memories = append(memories, m)
	}
	return map[string]any{"memories": memories, "count": len(memories)}, nil
}

// graphTool runs a read query against the structural graph.
func (h *Handlers) graphTool(ctx context.Context, args map[string]any) (map[string]any, error) {
	if h.Graph == nil {
		return errResult("graph not configured"), nil
	}
	query := stringArg(args, "query")
	if query == "" {
		return errResult("query is required"), nil
	}

	var params []any
	for _, p := range sliceArg(args, "params") {
		params = append(params, p)
	}

	rows, err := h.Graph.Query(ctx, query, params)
	if err != nil {
		if strings.Contains(err.Error(), "must be a SELECT") {
			return errResult("%v", err), nil
		}
		return errResult("graph query failed: %v", err), nil
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	return map[string]any{"rows": rows, "count": len(rows)}, nil
}
