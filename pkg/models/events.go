package models

import "time"

// EventCategory groups events by the ledger they belong to.
type EventCategory string

// Event categories.
const (
	CategoryLifecycle EventCategory = "lifecycle"
	CategoryTicket    EventCategory = "ticket"
	CategoryPR        EventCategory = "pr"
	CategoryReview    EventCategory = "review"
	CategoryToken     EventCategory = "token"
)

// Well-known event kinds within the categories.
const (
	KindSpawned        = "spawned"
	KindStopped        = "stopped"
	KindDecommissioned = "decommissioned"
	KindStanddown      = "standdown"
	KindSubmittedPR    = "submitted_pr"
	KindAssigned       = "assigned"
	KindBlocked        = "blocked"
	KindStatusChanged  = "status_changed"
	KindCommit         = "commit"
	KindPush           = "push"
	KindReviewSubmit   = "submitted"
	KindReviewFinding  = "finding"
	KindTokenUsage     = "usage"
)

// Event is one append-only ledger record. Events are never mutated or
// deleted after append.
type Event struct {
	ID        string         `json:"id"`
	EntityID  string         `json:"entity_id"`
	Category  EventCategory  `json:"category"`
	Kind      string         `json:"kind"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// EventFilter narrows an events query. Zero fields are ignored.
type EventFilter struct {
	EntityID string    `json:"entity_id,omitempty"`
	Kind     string    `json:"kind,omitempty"`
	Since    time.Time `json:"since,omitempty"`
	Limit    int       `json:"limit,omitempty"`
}
