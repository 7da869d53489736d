// Package tools implements the herd_* operations exposed to agents.
//
// Handlers follow one result convention: expected failures (bad input, an
// unconfigured adapter, a backend refusal) come back as a result map with
// success=false and an error string, while Go errors are reserved for
// programmer mistakes and surface as transport 500s. The registrar stamps
// success=true on any result that does not carry the key.
package tools

import (
	"log/slog"

	"github.com/herd-sh/herd/pkg/adapters"
	"github.com/herd-sh/herd/pkg/bus"
	"github.com/herd-sh/herd/pkg/checkin"
	"github.com/herd-sh/herd/pkg/config"
	"github.com/herd-sh/herd/pkg/events"
	"github.com/herd-sh/herd/pkg/graph"
	"github.com/herd-sh/herd/pkg/memory"
	"github.com/herd-sh/herd/pkg/store"
	"github.com/herd-sh/herd/pkg/tier"
)

// Handlers carries the runtime surfaces the tool set composes. Memory,
// Graph and Events may be nil; handlers degrade to structured errors or
// skip the optional leg. Ops is non-nil exactly when Adapters.Store is.
type Handlers struct {
	Config   *config.Config
	Roster   *tier.Roster
	Bus      *bus.Bus
	Checkins *checkin.Registry
	Adapters *adapters.Registry
	Ops      *store.Ops
	Memory   *memory.Store
	Graph    *graph.Graph
	Events   *events.Manager

	logger *slog.Logger
}

// New wires a handler set over the given surfaces.
func New(h Handlers) *Handlers {
	h.logger = slog.Default().With("component", "tools")
	return &h
}

// publish emits a runtime event when an event manager is attached.
func (h *Handlers) publish(eventType, source string, data map[string]any) {
	if h.Events != nil {
		h.Events.Publish(eventType, source, data)
	}
}

// graphReady reports whether graph-dependent code paths should run.
func (h *Handlers) graphReady() bool {
	return h.Graph != nil && h.Graph.Available()
}
