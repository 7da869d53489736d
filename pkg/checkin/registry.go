// Package checkin tracks agent heartbeats in memory.
//
// Heartbeats are cheap to refresh, so the registry is process-resident with
// no persistence: after a restart agents simply check in again.
package checkin

import (
	"sync"
	"time"
)

// Lifecycle thresholds. An entry is fresh under 5 minutes, stale from 5 to
// 10, unresponsive past 10.
const (
	FreshWindow       = 5 * time.Minute
	UnresponsiveAfter = 10 * time.Minute
)

// Staleness tags returned by Staleness. Fresh entries tag as the empty
// string.
const (
	TagStale        = "stale"
	TagUnresponsive = "unresponsive"
)

// Entry is one agent's latest heartbeat.
type Entry struct {
	Address   string    `json:"address"`
	Status    string    `json:"status"`
	Agent     string    `json:"agent"`
	Team      string    `json:"team,omitempty"`
	Ticket    string    `json:"ticket,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Registry maps addresses to their latest heartbeat. One lock serializes all
// access.
type Registry struct {
	mu      sync.Mutex
	entries map[string]Entry
	now     func() time.Time
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]Entry),
		now:     time.Now,
	}
}

// Record overwrites the entry for the address and stamps it with the current
// UTC time.
func (r *Registry) Record(addr, status, agent, team, ticket string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[addr] = Entry{
		Address:   addr,
		Status:    status,
		Agent:     agent,
		Team:      team,
		Ticket:    ticket,
		Timestamp: r.now().UTC(),
	}
}

// Active returns entries younger than the unresponsive threshold, keyed by
// address. An empty team matches every entry.
func (r *Registry) Active(team string) map[string]Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now().UTC()
	out := make(map[string]Entry)
	for addr, e := range r.entries {
		if now.Sub(e.Timestamp) >= UnresponsiveAfter {
			continue
		}
		if team != "" && e.Team != team {
			continue
		}
		out[addr] = e
	}
	return out
}

// Staleness classifies the entry's age: "" (fresh or unknown address),
// "stale", or "unresponsive".
func (r *Registry) Staleness(addr string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[addr]
	if !ok {
		return ""
	}
	age := r.now().UTC().Sub(e.Timestamp)
	switch {
	case age >= UnresponsiveAfter:
		return TagUnresponsive
	case age >= FreshWindow:
		return TagStale
	default:
		return ""
	}
}

// Get returns the entry recorded for an address.
func (r *Registry) Get(addr string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[addr]
	return e, ok
}

// Evict removes entries whose last heartbeat is older than the retention
// window and returns how many were dropped.
func (r *Registry) Evict(olderThan time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now().UTC()
	removed := 0
	for addr, e := range r.entries {
		if now.Sub(e.Timestamp) > olderThan {
			delete(r.entries, addr)
			removed++
		}
	}
	return removed
}

// Len returns the number of recorded entries regardless of age.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
