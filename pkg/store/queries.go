package store

import (
	"context"
	"time"

	"github.com/herd-sh/herd/pkg/adapters"
	"github.com/herd-sh/herd/pkg/models"
)

// Ops is the semantic query layer over the Store port. It never issues raw
// SQL; every answer is composed from port calls so any conforming backend
// serves it.
type Ops struct {
	store adapters.Store
	now   func() time.Time
}

// NewOps wraps a Store port.
func NewOps(s adapters.Store) *Ops {
	return &Ops{store: s, now: time.Now}
}

// ActiveAgents returns all agent instances currently in the RUNNING state.
func (o *Ops) ActiveAgents(ctx context.Context) ([]*models.Agent, error) {
	ents, err := o.store.List(ctx, models.TypeAgent, models.AgentFilter{State: models.AgentStateRunning})
	if err != nil {
		return nil, err
	}
	agents := make([]*models.Agent, 0, len(ents))
	for _, e := range ents {
		if a, ok := e.(*models.Agent); ok {
			agents = append(agents, a)
		}
	}
	return agents, nil
}

// Timeline is a ticket's full event history with the summed transition time.
type Timeline struct {
	Ticket              *models.Ticket `json:"ticket"`
	Events              []models.Event `json:"events"`
	TotalElapsedMinutes float64        `json:"total_elapsed_minutes"`
}

// TicketTimeline returns the ticket, its events in order, and the sum of
// elapsed_minutes across its transitions.
func (o *Ops) TicketTimeline(ctx context.Context, ticketID string) (*Timeline, error) {
	ent, err := o.store.Get(ctx, models.TypeTicket, ticketID)
	if err != nil {
		return nil, err
	}
	events, err := o.store.Events(ctx, models.CategoryTicket, models.EventFilter{EntityID: ticketID})
	if err != nil {
		return nil, err
	}

	var total float64
	for _, ev := range events {
		total += payloadFloat(ev.Payload, "elapsed_minutes")
	}
	return &Timeline{
		Ticket:              ent.(*models.Ticket),
		Events:              events,
		TotalElapsedMinutes: total,
	}, nil
}

// CostSummary aggregates token events into totals and per-agent / per-model
// breakdowns.
type CostSummary struct {
	TotalTokens  int64              `json:"total_tokens"`
	TotalCostUSD float64            `json:"total_cost_usd"`
	ByAgent      map[string]float64 `json:"by_agent"`
	ByModel      map[string]float64 `json:"by_model"`
	PeriodStart  time.Time          `json:"period_start"`
}

// Costs sums TokenEvents since the given time (zero means all time).
func (o *Ops) Costs(ctx context.Context, since time.Time) (*CostSummary, error) {
	events, err := o.store.Events(ctx, models.CategoryToken, models.EventFilter{Since: since})
	if err != nil {
		return nil, err
	}

	sum := &CostSummary{
		ByAgent:     make(map[string]float64),
		ByModel:     make(map[string]float64),
		PeriodStart: since,
	}
	for _, ev := range events {
		cost := payloadFloat(ev.Payload, "cost_usd")
		sum.TotalCostUSD += cost
		sum.TotalTokens += int64(payloadFloat(ev.Payload, "input_tokens") +
			payloadFloat(ev.Payload, "output_tokens") +
			payloadFloat(ev.Payload, "cache_read_tokens") +
			payloadFloat(ev.Payload, "cache_create_tokens"))
		if agent := payloadString(ev.Payload, "agent"); agent != "" {
			sum.ByAgent[agent] += cost
		}
		if model := payloadString(ev.Payload, "model"); model != "" {
			sum.ByModel[model] += cost
		}
	}
	return sum, nil
}

// ReviewerStats is one reviewer's slice of the review summary.
type ReviewerStats struct {
	Reviews  int     `json:"reviews"`
	Passed   int     `json:"passed"`
	Findings int     `json:"findings"`
	PassRate float64 `json:"pass_rate"`
}

// ReviewSummary aggregates review records.
type ReviewSummary struct {
	TotalReviews         int                      `json:"total_reviews"`
	PassRate             float64                  `json:"pass_rate"`
	AvgFindingsPerReview float64                  `json:"avg_findings_per_review"`
	ByReviewer           map[string]ReviewerStats `json:"by_reviewer"`
}

// Reviews summarizes reviews since the given time. Pass and
// pass-with-advisory verdicts both count as passing.
func (o *Ops) Reviews(ctx context.Context, since time.Time) (*ReviewSummary, error) {
	ents, err := o.store.List(ctx, models.TypeReview, models.ReviewFilter{Since: since})
	if err != nil {
		return nil, err
	}

	sum := &ReviewSummary{ByReviewer: make(map[string]ReviewerStats)}
	passed := 0
	findings := 0
	for _, e := range ents {
		r, ok := e.(*models.Review)
		if !ok {
			continue
		}
		sum.TotalReviews++
		findings += r.FindingsCount

		pass := r.Verdict == models.VerdictPass || r.Verdict == models.VerdictPassWithAdvisory
		if pass {
			passed++
		}
		st := sum.ByReviewer[r.Reviewer]
		st.Reviews++
		st.Findings += r.FindingsCount
		if pass {
			st.Passed++
		}
		sum.ByReviewer[r.Reviewer] = st
	}

	if sum.TotalReviews > 0 {
		sum.PassRate = float64(passed) / float64(sum.TotalReviews)
		sum.AvgFindingsPerReview = float64(findings) / float64(sum.TotalReviews)
	}
	for reviewer, st := range sum.ByReviewer {
		if st.Reviews > 0 {
			st.PassRate = float64(st.Passed) / float64(st.Reviews)
			sum.ByReviewer[reviewer] = st
		}
	}
	return sum, nil
}

// BlockedTickets returns all tickets currently in blocked status.
func (o *Ops) BlockedTickets(ctx context.Context) ([]*models.Ticket, error) {
	ents, err := o.store.List(ctx, models.TypeTicket, models.TicketFilter{Status: "blocked"})
	if err != nil {
		return nil, err
	}
	tickets := make([]*models.Ticket, 0, len(ents))
	for _, e := range ents {
		if t, ok := e.(*models.Ticket); ok {
			tickets = append(tickets, t)
		}
	}
	return tickets, nil
}

// StaleAgents returns running agents whose newest lifecycle event is older
// than the threshold. Agents with no lifecycle events at all fall back to
// their spawn time.
func (o *Ops) StaleAgents(ctx context.Context, threshold time.Duration) ([]*models.Agent, error) {
	running, err := o.ActiveAgents(ctx)
	if err != nil {
		return nil, err
	}
	cutoff := o.now().UTC().Add(-threshold)

	var stale []*models.Agent
	for _, a := range running {
		events, err := o.store.Events(ctx, models.CategoryLifecycle, models.EventFilter{EntityID: a.ID})
		if err != nil {
			return nil, err
		}
		last := a.SpawnedAt
		if n := len(events); n > 0 {
			last = events[n-1].CreatedAt
		}
		if last.Before(cutoff) {
			stale = append(stale, a)
		}
	}
	return stale, nil
}

// ReviewRoundCount returns how many reviews a pull request has accumulated.
func (o *Ops) ReviewRoundCount(ctx context.Context, prNumber int) (int, error) {
	return o.store.Count(ctx, models.TypeReview, models.ReviewFilter{PRNumber: prNumber})
}

func payloadFloat(p map[string]any, key string) float64 {
	if p == nil {
		return 0
	}
	switch v := p[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

func payloadString(p map[string]any, key string) string {
	if p == nil {
		return ""
	}
	if v, ok := p[key].(string); ok {
		return v
	}
	return ""
}
