package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/herd-sh/herd/pkg/events"
	"github.com/herd-sh/herd/pkg/metrics"
)

// ErrUnknownTool is returned by Dispatch for names nothing registered.
// The transport maps it to its not-found path.
var ErrUnknownTool = errors.New("unknown tool")

// HandlerFunc is one tool implementation. Args arrive already decoded from
// the transport's JSON body.
type HandlerFunc func(ctx context.Context, args map[string]any) (map[string]any, error)

// Tool is one callable operation.
type Tool struct {
	Name        string
	Description string
	Handler     HandlerFunc
}

// Spec is the wire-visible description of a tool, served by GET /api/v1/tools.
type Spec struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Registry maps tool names to handlers and owns the dispatch envelope.
type Registry struct {
	tools map[string]Tool
	order []string
	h     *Handlers
}

// NewRegistry registers the full herd tool set over the handler surfaces.
func NewRegistry(h *Handlers) *Registry {
	r := &Registry{tools: make(map[string]Tool), h: h}
	for _, t := range []Tool{
		{"herd_send", "Send a message to an agent, @anyone, or @everyone", h.send},
		{"herd_checkin", "Record a heartbeat, drain messages, and get the team context pane", h.checkinTool},
		{"herd_get_messages", "Drain pending messages without checking in", h.getMessages},
		{"herd_spawn", "Spawn one or more agent instances, optionally bound to a ticket", h.spawn},
		{"herd_assign", "Assign a ticket to an agent", h.assign},
		{"herd_transition", "Move a ticket to a new status", h.transition},
		{"herd_review", "Record a review verdict and post it to the PR and the channel", h.review},
		{"herd_metrics", "Run a named metrics query over the operational store", h.metricsTool},
		{"herd_catchup", "Summarize activity since the caller's last ended instance", h.catchup},
		{"herd_record_decision", "Record a decision and announce it on the decisions channel", h.recordDecision},
		{"herd_assume", "Compose the identity prompt for taking over an agent role", h.assume},
		{"herd_recall", "Search semantic memory by similarity", h.recall},
		{"herd_remember", "Store a memory in the semantic index", h.remember},
		{"herd_graph", "Run a read query against the structural graph", h.graphTool},
		{"herd_decommission", "Stop all running instances of an agent", h.decommission},
		{"herd_standdown", "Stand down all running instances of an agent", h.standdown},
		{"herd_harvest_tokens", "Aggregate token usage from session transcripts into cost events", h.harvestTokens},
	} {
		r.register(t)
	}
	return r
}

func (r *Registry) register(t Tool) {
	r.tools[t.Name] = t
	r.order = append(r.order, t.Name)
}

// Specs lists the registered tools in registration order.
func (r *Registry) Specs() []Spec {
	out := make([]Spec, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		out = append(out, Spec{Name: t.Name, Description: t.Description})
	}
	return out
}

// Names lists the registered tool names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Dispatch runs one tool call and applies the result envelope: success=true
// is stamped when the handler did not set the key, counters and a runtime
// event are emitted per call.
func (r *Registry) Dispatch(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
	if args == nil {
		args = map[string]any{}
	}

	result, err := t.Handler(ctx, args)
	if err != nil {
		metrics.ToolCalls.WithLabelValues(name, "error").Inc()
		r.h.publish(events.TypeToolFailed, name, map[string]any{"error": err.Error()})
		return nil, err
	}
	if result == nil {
		result = map[string]any{}
	}
	if _, has := result["success"]; !has {
		result["success"] = true
	}

	outcome := "ok"
	if ok, _ := result["success"].(bool); !ok {
		outcome = "error"
		r.h.publish(events.TypeToolFailed, name, map[string]any{"error": result["error"]})
	} else {
		r.h.publish(events.TypeToolCompleted, name, nil)
	}
	metrics.ToolCalls.WithLabelValues(name, outcome).Inc()
	return result, nil
}

// errResult is the failure envelope for expected failures. Extra key-value
// pairs land in the result alongside success and error.
func errResult(format string, a ...any) map[string]any {
	return map[string]any{"success": false, "error": fmt.Sprintf(format, a...)}
}
