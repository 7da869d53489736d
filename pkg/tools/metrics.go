package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/herd-sh/herd/pkg/adapters"
	"github.com/herd-sh/herd/pkg/models"
)

// canonicalQueries maps query names and their aliases to the canonical name.
var canonicalQueries = map[string]string{
	"cost_per_ticket":      "cost_per_ticket",
	"token_costs":          "cost_per_ticket",
	"agent_performance":    "agent_performance",
	"model_efficiency":     "model_efficiency",
	"review_effectiveness": "review_effectiveness",
	"review_stats":         "review_effectiveness",
	"sprint_velocity":      "sprint_velocity",
	"velocity":             "sprint_velocity",
	"pipeline_efficiency":  "pipeline_efficiency",
	"headline":             "headline",
}

// parsePeriod resolves a period name to a [since, until) window. Unset
// until means "through now". Named periods are relative; the ISO form
// "2026-01-01..2026-01-31" bounds both ends (inclusive end day).
func parsePeriod(now time.Time, period string) (since, until time.Time, err error) {
	switch period {
	case "":
		return time.Time{}, time.Time{}, nil
	case "today":
		y, m, d := now.UTC().Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), time.Time{}, nil
	case "this_week":
		return now.UTC().AddDate(0, 0, -7), time.Time{}, nil
	case "this_sprint":
		return now.UTC().AddDate(0, 0, -14), time.Time{}, nil
	case "last_30d":
		return now.UTC().AddDate(0, 0, -30), time.Time{}, nil
	}

	if start, end, ok := strings.Cut(period, ".."); ok {
		s, serr := time.Parse("2006-01-02", start)
		e, eerr := time.Parse("2006-01-02", end)
		if serr != nil || eerr != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("period range must be YYYY-MM-DD..YYYY-MM-DD, got %q", period)
		}
		return s, e.AddDate(0, 0, 1), nil
	}
	return time.Time{}, time.Time{}, fmt.Errorf("unknown period %q", period)
}

// inWindow applies the optional until bound; since is already applied by the
// store filter.
func inWindow(t, until time.Time) bool {
	return until.IsZero() || t.Before(until)
}

// metricsTool answers a named metrics query by composing store-port reads.
// The query name is validated before any adapter is touched.
func (h *Handlers) metricsTool(ctx context.Context, args map[string]any) (map[string]any, error) {
	name := stringArg(args, "query")
	canonical, ok := canonicalQueries[name]
	if !ok {
		return errResult("unknown metrics query %q", name), nil
	}
	since, until, err := parsePeriod(time.Now(), stringArg(args, "period"))
	if err != nil {
		return errResult("%v", err), nil
	}

	st, err := h.Adapters.NeedStore()
	if err != nil {
		return errResult("%v", err), nil
	}

	var data map[string]any
	switch canonical {
	case "cost_per_ticket":
		data, err = h.costPerTicket(ctx, st, since, until)
	case "agent_performance":
		data, err = h.agentPerformance(ctx, st, since, until)
	case "model_efficiency":
		data, err = h.modelEfficiency(ctx, st, since, until)
	case "review_effectiveness":
		data, err = h.reviewEffectiveness(ctx, st, since, until, stringArg(args, "group_by"))
	case "sprint_velocity":
		data, err = h.sprintVelocity(ctx, st, since, until)
	case "pipeline_efficiency":
		data, err = h.pipelineEfficiency(ctx, st, since, until)
	case "headline":
		data, err = h.headline(ctx, since)
	}
	if err != nil {
		return errResult("%v", err), nil
	}

	data["query"] = canonical
	if !since.IsZero() {
		data["period_start"] = since.Format(time.RFC3339)
	}
	if !until.IsZero() {
		data["period_end"] = until.Format(time.RFC3339)
	}
	return data, nil
}

// costPerTicket groups token spend by the ticket each instance worked on.
// Instances with no ticket pool under "(unassigned)".
func (h *Handlers) costPerTicket(ctx context.Context, st adapters.Store, since, until time.Time) (map[string]any, error) {
	events, err := st.Events(ctx, models.CategoryToken, models.EventFilter{Since: since})
	if err != nil {
		return nil, err
	}

	byTicket := map[string]float64{}
	var totalCost float64
	var totalTokens int64
	for _, ev := range events {
		if !inWindow(ev.CreatedAt, until) {
			continue
		}
		cost := payloadNumber(ev.Payload, "cost_usd")
		totalCost += cost
		totalTokens += int64(payloadNumber(ev.Payload, "input_tokens") +
			payloadNumber(ev.Payload, "output_tokens") +
			payloadNumber(ev.Payload, "cache_read_tokens") +
			payloadNumber(ev.Payload, "cache_create_tokens"))

		ticket := "(unassigned)"
		if ent, err := st.Get(ctx, models.TypeAgent, ev.EntityID); err == nil {
			if a, ok := ent.(*models.Agent); ok && a.TicketID != "" {
				ticket = a.TicketID
			}
		}
		byTicket[ticket] += cost
	}

	return map[string]any{
		"total_cost_usd": totalCost,
		"total_tokens":   totalTokens,
		"by_ticket":      byTicket,
	}, nil
}

// agentPerformance reports instance counts and spend per agent code.
func (h *Handlers) agentPerformance(ctx context.Context, st adapters.Store, since, until time.Time) (map[string]any, error) {
	ents, err := st.List(ctx, models.TypeAgent, models.AgentFilter{Since: since})
	if err != nil {
		return nil, err
	}

	type perf struct {
		Instances int     `json:"instances"`
		Running   int     `json:"running"`
		CostUSD   float64 `json:"cost_usd"`
	}
	byAgent := map[string]*perf{}
	for _, e := range ents {
		a, ok := e.(*models.Agent)
		if !ok || !inWindow(a.SpawnedAt, until) {
			continue
		}
		p := byAgent[a.Name]
		if p == nil {
			p = &perf{}
			byAgent[a.Name] = p
		}
		p.Instances++
		if a.State == models.AgentStateRunning {
			p.Running++
		}
	}

	events, err := st.Events(ctx, models.CategoryToken, models.EventFilter{Since: since})
	if err != nil {
		return nil, err
	}
	for _, ev := range events {
		if !inWindow(ev.CreatedAt, until) {
			continue
		}
		name, _ := ev.Payload["agent"].(string)
		if name == "" {
			continue
		}
		p := byAgent[name]
		if p == nil {
			p = &perf{}
			byAgent[name] = p
		}
		p.CostUSD += payloadNumber(ev.Payload, "cost_usd")
	}

	out := make(map[string]any, len(byAgent))
	for name, p := range byAgent {
		out[name] = map[string]any{
			"instances": p.Instances,
			"running":   p.Running,
			"cost_usd":  p.CostUSD,
		}
	}
	return map[string]any{"by_agent": out}, nil
}

// modelEfficiency reports token and cost totals per model.
func (h *Handlers) modelEfficiency(ctx context.Context, st adapters.Store, since, until time.Time) (map[string]any, error) {
	events, err := st.Events(ctx, models.CategoryToken, models.EventFilter{Since: since})
	if err != nil {
		return nil, err
	}

	type usage struct {
		in, out, cacheRead, cacheCreate float64
		cost                            float64
	}
	byModel := map[string]*usage{}
	for _, ev := range events {
		if !inWindow(ev.CreatedAt, until) {
			continue
		}
		model, _ := ev.Payload["model"].(string)
		if model == "" {
			continue
		}
		u := byModel[model]
		if u == nil {
			u = &usage{}
			byModel[model] = u
		}
		u.in += payloadNumber(ev.Payload, "input_tokens")
		u.out += payloadNumber(ev.Payload, "output_tokens")
		u.cacheRead += payloadNumber(ev.Payload, "cache_read_tokens")
		u.cacheCreate += payloadNumber(ev.Payload, "cache_create_tokens")
		u.cost += payloadNumber(ev.Payload, "cost_usd")
	}

	out := make(map[string]any, len(byModel))
	for model, u := range byModel {
		out[model] = map[string]any{
			"input_tokens":        int64(u.in),
			"output_tokens":       int64(u.out),
			"cache_read_tokens":   int64(u.cacheRead),
			"cache_create_tokens": int64(u.cacheCreate),
			"cost_usd":            u.cost,
		}
	}
	return map[string]any{"by_model": out}, nil
}

// reviewEffectiveness reports pass rates, optionally grouped by finding
// category.
func (h *Handlers) reviewEffectiveness(ctx context.Context, st adapters.Store, since, until time.Time, groupBy string) (map[string]any, error) {
	sum, err := h.Ops.Reviews(ctx, since)
	if err != nil {
		return nil, err
	}
	data := map[string]any{
		"total_reviews":           sum.TotalReviews,
		"pass_rate":               sum.PassRate,
		"avg_findings_per_review": sum.AvgFindingsPerReview,
		"by_reviewer":             sum.ByReviewer,
	}

	if groupBy == "category" {
		events, err := st.Events(ctx, models.CategoryReview, models.EventFilter{Kind: models.KindReviewFinding, Since: since})
		if err != nil {
			return nil, err
		}
		byCategory := map[string]int{}
		for _, ev := range events {
			if !inWindow(ev.CreatedAt, until) {
				continue
			}
			cat, _ := ev.Payload["category"].(string)
			if cat == "" {
				cat = "(uncategorized)"
			}
			byCategory[cat]++
		}
		data["by_category"] = byCategory
	}
	return data, nil
}

// doneStatuses are the ticket states velocity counts as completed.
var doneStatuses = map[string]bool{"done": true, "completed": true, "merged": true}

// sprintVelocity counts tickets completed in the window, by agent.
func (h *Handlers) sprintVelocity(ctx context.Context, st adapters.Store, since, until time.Time) (map[string]any, error) {
	events, err := st.Events(ctx, models.CategoryTicket, models.EventFilter{Kind: models.KindStatusChanged, Since: since})
	if err != nil {
		return nil, err
	}

	completed := 0
	byAgent := map[string]int{}
	seen := map[string]bool{}
	for _, ev := range events {
		if !inWindow(ev.CreatedAt, until) {
			continue
		}
		status, _ := ev.Payload["new_status"].(string)
		if !doneStatuses[status] || seen[ev.EntityID] {
			continue
		}
		seen[ev.EntityID] = true
		completed++
		if by, _ := ev.Payload["by"].(string); by != "" {
			byAgent[by]++
		}
	}
	return map[string]any{
		"completed_tickets": completed,
		"by_agent":          byAgent,
	}, nil
}

// pipelineEfficiency averages transition dwell time per target status.
func (h *Handlers) pipelineEfficiency(ctx context.Context, st adapters.Store, since, until time.Time) (map[string]any, error) {
	events, err := st.Events(ctx, models.CategoryTicket, models.EventFilter{Since: since})
	if err != nil {
		return nil, err
	}

	type stage struct {
		transitions int
		minutes     float64
	}
	stages := map[string]*stage{}
	for _, ev := range events {
		if !inWindow(ev.CreatedAt, until) {
			continue
		}
		if ev.Kind != models.KindStatusChanged && ev.Kind != models.KindBlocked {
			continue
		}
		status, _ := ev.Payload["new_status"].(string)
		if status == "" {
			continue
		}
		s := stages[status]
		if s == nil {
			s = &stage{}
			stages[status] = s
		}
		s.transitions++
		s.minutes += payloadNumber(ev.Payload, "elapsed_minutes")
	}

	out := make(map[string]any, len(stages))
	for status, s := range stages {
		avg := 0.0
		if s.transitions > 0 {
			avg = s.minutes / float64(s.transitions)
		}
		out[status] = map[string]any{
			"transitions": s.transitions,
			"avg_minutes": avg,
		}
	}
	return map[string]any{"stages": out}, nil
}

// headline is the one-glance fleet summary.
func (h *Handlers) headline(ctx context.Context, since time.Time) (map[string]any, error) {
	if since.IsZero() {
		since = time.Now().UTC().AddDate(0, 0, -30)
	}

	agents, err := h.Ops.ActiveAgents(ctx)
	if err != nil {
		return nil, err
	}
	blocked, err := h.Ops.BlockedTickets(ctx)
	if err != nil {
		return nil, err
	}
	costs, err := h.Ops.Costs(ctx, since)
	if err != nil {
		return nil, err
	}
	reviews, err := h.Ops.Reviews(ctx, since)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"active_agents":    len(agents),
		"blocked_tickets":  len(blocked),
		"total_cost_usd":   costs.TotalCostUSD,
		"review_pass_rate": reviews.PassRate,
		"bus_depth":        h.Bus.Depth(),
		"checkins":         h.Checkins.Len(),
	}, nil
}

// payloadNumber reads a numeric payload value, tolerating the types JSON
// round-trips produce.
func payloadNumber(p map[string]any, key string) float64 {
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
