// Package models defines the closed set of entities and events the
// operational store persists, plus the typed filters used to query them.
package models

import "time"

// EntityType identifies one of the seven stored entity kinds.
type EntityType string

// Entity type values.
const (
	TypeAgent       EntityType = "agent"
	TypeTicket      EntityType = "ticket"
	TypePullRequest EntityType = "pull_request"
	TypeReview      EntityType = "review"
	TypeDecision    EntityType = "decision"
	TypeModel       EntityType = "model"
	TypeSprint      EntityType = "sprint"
)

// Agent lifecycle states.
const (
	AgentStateRunning = "RUNNING"
	AgentStateStopped = "STOPPED"
)

// Meta carries the bookkeeping timestamps every entity shares. The store
// stamps ModifiedAt on every save; DeletedAt marks a soft delete.
type Meta struct {
	CreatedAt  time.Time  `json:"created_at,omitempty"`
	ModifiedAt time.Time  `json:"modified_at,omitempty"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty"`
}

// Entity is any record the operational store can persist.
type Entity interface {
	EntityID() string
	EntityType() EntityType
	EntityMeta() *Meta
}

// Agent is one runtime incarnation of a role.
type Agent struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Team      string     `json:"team,omitempty"`
	State     string     `json:"state"`
	Model     string     `json:"model,omitempty"`
	TicketID  string     `json:"ticket_id,omitempty"`
	Worktree  string     `json:"worktree,omitempty"`
	Branch    string     `json:"branch,omitempty"`
	SpawnedBy string     `json:"spawned_by,omitempty"`
	SpawnedAt time.Time  `json:"spawned_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Meta      Meta       `json:"meta"`
}

func (a *Agent) EntityID() string       { return a.ID }
func (a *Agent) EntityType() EntityType { return TypeAgent }
func (a *Agent) EntityMeta() *Meta      { return &a.Meta }

// Ticket is a unit of work, usually mirrored from the external tracker.
type Ticket struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status"`
	Assignee    string `json:"assignee,omitempty"`
	Priority    string `json:"priority,omitempty"`
	SprintID    string `json:"sprint_id,omitempty"`
	BlockedBy   string `json:"blocked_by,omitempty"`
	URL         string `json:"url,omitempty"`
	Source      string `json:"source,omitempty"`
	Meta        Meta   `json:"meta"`
}

func (t *Ticket) EntityID() string       { return t.ID }
func (t *Ticket) EntityType() EntityType { return TypeTicket }
func (t *Ticket) EntityMeta() *Meta      { return &t.Meta }

// PullRequest tracks a change set on the code host.
type PullRequest struct {
	ID       string `json:"id"`
	Number   int    `json:"number"`
	TicketID string `json:"ticket_id,omitempty"`
	Title    string `json:"title,omitempty"`
	Branch   string `json:"branch,omitempty"`
	Author   string `json:"author,omitempty"`
	State    string `json:"state,omitempty"`
	URL      string `json:"url,omitempty"`
	Meta     Meta   `json:"meta"`
}

func (p *PullRequest) EntityID() string       { return p.ID }
func (p *PullRequest) EntityType() EntityType { return TypePullRequest }
func (p *PullRequest) EntityMeta() *Meta      { return &p.Meta }

// Review verdicts.
const (
	VerdictPass             = "pass"
	VerdictFail             = "fail"
	VerdictPassWithAdvisory = "pass_with_advisory"
)

// Review is one review round on a pull request.
type Review struct {
	ID            string `json:"id"`
	PRNumber      int    `json:"pr_number"`
	TicketID      string `json:"ticket_id,omitempty"`
	Reviewer      string `json:"reviewer"`
	Verdict       string `json:"verdict"`
	Round         int    `json:"round"`
	FindingsCount int    `json:"findings_count"`
	Meta          Meta   `json:"meta"`
}

func (r *Review) EntityID() string       { return r.ID }
func (r *Review) EntityType() EntityType { return TypeReview }
func (r *Review) EntityMeta() *Meta      { return &r.Meta }

// Decision is a recorded decision, including HDR architecture records and
// pending handoff documents.
type Decision struct {
	ID           string   `json:"id"`
	DecisionType string   `json:"decision_type"`
	Context      string   `json:"context,omitempty"`
	Decision     string   `json:"decision"`
	Rationale    string   `json:"rationale,omitempty"`
	Alternatives []string `json:"alternatives,omitempty"`
	TicketCode   string   `json:"ticket_code,omitempty"`
	Author       string   `json:"author,omitempty"`
	HDRNumber    string   `json:"hdr_number,omitempty"`
	Status       string   `json:"status,omitempty"`
	Meta         Meta     `json:"meta"`
}

func (d *Decision) EntityID() string       { return d.ID }
func (d *Decision) EntityType() EntityType { return TypeDecision }
func (d *Decision) EntityMeta() *Meta      { return &d.Meta }

// Model carries per-million-token pricing for one model identifier.
type Model struct {
	ID              string  `json:"id"`
	DisplayName     string  `json:"display_name,omitempty"`
	InputPrice      float64 `json:"input_price"`
	OutputPrice     float64 `json:"output_price"`
	CacheReadPrice  float64 `json:"cache_read_price"`
	CacheWritePrice float64 `json:"cache_write_price"`
	Meta            Meta    `json:"meta"`
}

func (m *Model) EntityID() string       { return m.ID }
func (m *Model) EntityType() EntityType { return TypeModel }
func (m *Model) EntityMeta() *Meta      { return &m.Meta }

// Sprint is a planning window used by velocity metrics.
type Sprint struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Goal    string    `json:"goal,omitempty"`
	StartAt time.Time `json:"start_at,omitempty"`
	EndAt   time.Time `json:"end_at,omitempty"`
	Meta    Meta      `json:"meta"`
}

func (s *Sprint) EntityID() string       { return s.ID }
func (s *Sprint) EntityType() EntityType { return TypeSprint }
func (s *Sprint) EntityMeta() *Meta      { return &s.Meta }

// New returns a zero value of the entity struct for a type, for decoding.
// The second return is false for unknown types.
func New(t EntityType) (Entity, bool) {
	switch t {
	case TypeAgent:
		return &Agent{}, true
	case TypeTicket:
		return &Ticket{}, true
	case TypePullRequest:
		return &PullRequest{}, true
	case TypeReview:
		return &Review{}, true
	case TypeDecision:
		return &Decision{}, true
	case TypeModel:
		return &Model{}, true
	case TypeSprint:
		return &Sprint{}, true
	}
	return nil, false
}
