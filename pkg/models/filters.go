package models

import "time"

// Predicate ops understood by store backends.
const (
	OpEq    = "eq"
	OpSince = "since"
)

// Predicate is one compiled filter condition. Field names refer to the
// entity's JSON keys.
type Predicate struct {
	Field string
	Op    string
	Value any
}

// Filter is the common shape of the per-entity filter structs. Backends
// compile the predicates; zero-valued fields never emit one.
type Filter interface {
	Predicates() []Predicate
}

// AgentFilter narrows agent listings.
type AgentFilter struct {
	Name  string
	State string
	Team  string
	Since time.Time
}

func (f AgentFilter) Predicates() []Predicate {
	var ps []Predicate
	if f.Name != "" {
		ps = append(ps, Predicate{Field: "name", Op: OpEq, Value: f.Name})
	}
	if f.State != "" {
		ps = append(ps, Predicate{Field: "state", Op: OpEq, Value: f.State})
	}
	if f.Team != "" {
		ps = append(ps, Predicate{Field: "team", Op: OpEq, Value: f.Team})
	}
	if !f.Since.IsZero() {
		ps = append(ps, Predicate{Op: OpSince, Value: f.Since})
	}
	return ps
}

// TicketFilter narrows ticket listings.
type TicketFilter struct {
	Status   string
	Assignee string
	SprintID string
	Since    time.Time
}

func (f TicketFilter) Predicates() []Predicate {
	var ps []Predicate
	if f.Status != "" {
		ps = append(ps, Predicate{Field: "status", Op: OpEq, Value: f.Status})
	}
	if f.Assignee != "" {
		ps = append(ps, Predicate{Field: "assignee", Op: OpEq, Value: f.Assignee})
	}
	if f.SprintID != "" {
		ps = append(ps, Predicate{Field: "sprint_id", Op: OpEq, Value: f.SprintID})
	}
	if !f.Since.IsZero() {
		ps = append(ps, Predicate{Op: OpSince, Value: f.Since})
	}
	return ps
}

// PullRequestFilter narrows pull-request listings.
type PullRequestFilter struct {
	TicketID string
	State    string
	Since    time.Time
}

func (f PullRequestFilter) Predicates() []Predicate {
	var ps []Predicate
	if f.TicketID != "" {
		ps = append(ps, Predicate{Field: "ticket_id", Op: OpEq, Value: f.TicketID})
	}
	if f.State != "" {
		ps = append(ps, Predicate{Field: "state", Op: OpEq, Value: f.State})
	}
	if !f.Since.IsZero() {
		ps = append(ps, Predicate{Op: OpSince, Value: f.Since})
	}
	return ps
}

// ReviewFilter narrows review listings.
type ReviewFilter struct {
	PRNumber int
	Reviewer string
	Verdict  string
	Since    time.Time
}

func (f ReviewFilter) Predicates() []Predicate {
	var ps []Predicate
	if f.PRNumber != 0 {
		ps = append(ps, Predicate{Field: "pr_number", Op: OpEq, Value: f.PRNumber})
	}
	if f.Reviewer != "" {
		ps = append(ps, Predicate{Field: "reviewer", Op: OpEq, Value: f.Reviewer})
	}
	if f.Verdict != "" {
		ps = append(ps, Predicate{Field: "verdict", Op: OpEq, Value: f.Verdict})
	}
	if !f.Since.IsZero() {
		ps = append(ps, Predicate{Op: OpSince, Value: f.Since})
	}
	return ps
}

// DecisionFilter narrows decision listings.
type DecisionFilter struct {
	DecisionType string
	Author       string
	Status       string
	TicketCode   string
	Since        time.Time
}

func (f DecisionFilter) Predicates() []Predicate {
	var ps []Predicate
	if f.DecisionType != "" {
		ps = append(ps, Predicate{Field: "decision_type", Op: OpEq, Value: f.DecisionType})
	}
	if f.Author != "" {
		ps = append(ps, Predicate{Field: "author", Op: OpEq, Value: f.Author})
	}
	if f.Status != "" {
		ps = append(ps, Predicate{Field: "status", Op: OpEq, Value: f.Status})
	}
	if f.TicketCode != "" {
		ps = append(ps, Predicate{Field: "ticket_code", Op: OpEq, Value: f.TicketCode})
	}
	if !f.Since.IsZero() {
		ps = append(ps, Predicate{Op: OpSince, Value: f.Since})
	}
	return ps
}

// SprintFilter narrows sprint listings.
type SprintFilter struct {
	Name  string
	Since time.Time
}

func (f SprintFilter) Predicates() []Predicate {
	var ps []Predicate
	if f.Name != "" {
		ps = append(ps, Predicate{Field: "name", Op: OpEq, Value: f.Name})
	}
	if !f.Since.IsZero() {
		ps = append(ps, Predicate{Op: OpSince, Value: f.Since})
	}
	return ps
}
