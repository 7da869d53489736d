package adapters

import "sync"

// Adapter slot names used in health output and not-configured errors.
const (
	SlotStore   = "store"
	SlotTickets = "tickets"
	SlotNotify  = "notify"
	SlotRepo    = "repo"
	SlotAgent   = "agent"
)

// Registry holds whichever adapters were configured at startup. Nil slots
// are legal: the runtime serves without them and tools report
// "not configured" when they need one.
//
// WriteLock serializes compound writes that span adapters. Tools writing to
// Store + Tickets + Notify in one operation hold it across all legs so
// externally observable ordering (tracker update before its notification)
// is preserved. It is deliberately one lock, not per-adapter.
type Registry struct {
	Store   Store
	Tickets Tickets
	Notify  Notify
	Repo    Repo
	Agent   Agent

	WriteLock sync.Mutex
}

// Configured reports whether the named slot holds an adapter.
func (r *Registry) Configured(slot string) bool {
	switch slot {
	case SlotStore:
		return r.Store != nil
	case SlotTickets:
		return r.Tickets != nil
	case SlotNotify:
		return r.Notify != nil
	case SlotRepo:
		return r.Repo != nil
	case SlotAgent:
		return r.Agent != nil
	}
	return false
}

// NeedStore returns the Store adapter or a not-configured error.
func (r *Registry) NeedStore() (Store, error) {
	if r.Store == nil {
		return nil, NotConfigured(SlotStore)
	}
	return r.Store, nil
}

// NeedTickets returns the Tickets adapter or a not-configured error.
func (r *Registry) NeedTickets() (Tickets, error) {
	if r.Tickets == nil {
		return nil, NotConfigured(SlotTickets)
	}
	return r.Tickets, nil
}

// NeedNotify returns the Notify adapter or a not-configured error.
func (r *Registry) NeedNotify() (Notify, error) {
	if r.Notify == nil {
		return nil, NotConfigured(SlotNotify)
	}
	return r.Notify, nil
}

// NeedRepo returns the Repo adapter or a not-configured error.
func (r *Registry) NeedRepo() (Repo, error) {
	if r.Repo == nil {
		return nil, NotConfigured(SlotRepo)
	}
	return r.Repo, nil
}

// NeedAgent returns the Agent adapter or a not-configured error.
func (r *Registry) NeedAgent() (Agent, error) {
	if r.Agent == nil {
		return nil, NotConfigured(SlotAgent)
	}
	return r.Agent, nil
}
