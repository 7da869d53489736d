package linear

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/herd-sh/herd/pkg/adapters"
)

// issueFields is the snapshot shape shared by the issue queries.
type issueFields struct {
	ID            string    `json:"id"`
	Identifier    string    `json:"identifier"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	URL           string    `json:"url"`
	PriorityLabel string    `json:"priorityLabel"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
	Assignee      *struct {
		DisplayName string `json:"displayName"`
	} `json:"assignee"`
	State struct {
		Name string `json:"name"`
	} `json:"state"`
}

func (f issueFields) snapshot() adapters.TicketSnapshot {
	snap := adapters.TicketSnapshot{
		ID:          f.Identifier,
		Title:       f.Title,
		Description: f.Description,
		Status:      CanonicalStatus(f.State.Name),
		Priority:    strings.ToLower(f.PriorityLabel),
		URL:         f.URL,
		CreatedAt:   f.CreatedAt,
		UpdatedAt:   f.UpdatedAt,
	}
	if f.Assignee != nil {
		snap.Assignee = f.Assignee.DisplayName
	}
	return snap
}

// Tickets implements adapters.Tickets over the Linear API.
type Tickets struct {
	client  *Client
	teamKey string
	logger  *slog.Logger

	mu     sync.Mutex
	teamID string
}

var _ adapters.Tickets = (*Tickets)(nil)

// NewTickets creates a Linear-backed tracker adapter. Returns nil when no
// API key is configured; the caller leaves the Tickets slot empty.
func NewTickets(apiKey, teamKey string) *Tickets {
	if apiKey == "" {
		return nil
	}
	return NewTicketsWithClient(NewClient(apiKey), teamKey)
}

// NewTicketsWithClient builds the adapter over a pre-built client, for
// tests with a mock endpoint.
func NewTicketsWithClient(client *Client, teamKey string) *Tickets {
	return &Tickets{
		client:  client,
		teamKey: teamKey,
		logger:  slog.Default().With("component", "linear-tickets"),
	}
}

const issueQuery = `query Issue($id: String!) {
  issue(id: $id) {
    id identifier title description url priorityLabel createdAt updatedAt
    assignee { displayName }
    state { name }
  }
}`

// fetch returns the raw issue, ErrNotFound when Linear has no such id.
func (t *Tickets) fetch(ctx context.Context, id string) (issueFields, error) {
	var data struct {
		Issue *issueFields `json:"issue"`
	}
	if err := t.client.execute(ctx, issueQuery, map[string]any{"id": id}, &data); err != nil {
		if strings.Contains(err.Error(), "Entity not found") {
			return issueFields{}, fmt.Errorf("ticket %s: %w", id, adapters.ErrNotFound)
		}
		return issueFields{}, err
	}
	if data.Issue == nil {
		return issueFields{}, fmt.Errorf("ticket %s: %w", id, adapters.ErrNotFound)
	}
	return *data.Issue, nil
}

func (t *Tickets) Get(ctx context.Context, id string) (adapters.TicketSnapshot, error) {
	issue, err := t.fetch(ctx, id)
	if err != nil {
		return adapters.TicketSnapshot{}, err
	}
	return issue.snapshot(), nil
}

// resolveTeamID looks up the team's uuid by its key, once.
func (t *Tickets) resolveTeamID(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.teamID != "" {
		return t.teamID, nil
	}
	if t.teamKey == "" {
		return "", fmt.Errorf("linear team key is not configured")
	}

	var data struct {
		Teams struct {
			Nodes []struct {
				ID  string `json:"id"`
				Key string `json:"key"`
			} `json:"nodes"`
		} `json:"teams"`
	}
	query := `query Teams($key: String!) {
  teams(filter: { key: { eq: $key } }) { nodes { id key } }
}`
	if err := t.client.execute(ctx, query, map[string]any{"key": t.teamKey}, &data); err != nil {
		return "", err
	}
	if len(data.Teams.Nodes) == 0 {
		return "", fmt.Errorf("linear team %q not found", t.teamKey)
	}
	t.teamID = data.Teams.Nodes[0].ID
	return t.teamID, nil
}

func (t *Tickets) Create(ctx context.Context, title string, opts adapters.TicketOptions) (string, error) {
	teamID, err := t.resolveTeamID(ctx)
	if err != nil {
		return "", err
	}

	input := map[string]any{
		"teamId": teamID,
		"title":  title,
	}
	if opts.Description != "" {
		input["description"] = opts.Description
	}
	if p, ok := priorityValues[strings.ToLower(opts.Priority)]; ok {
		input["priority"] = p
	}
	if opts.Assignee != "" {
		// Assignment needs a user uuid; identifiers from the roster don't
		// map to Linear users, so assignment is recorded in the description.
		t.logger.Debug("skipping assignee on create, no user mapping", "assignee", opts.Assignee)
	}

	var data struct {
		IssueCreate struct {
			Success bool `json:"success"`
			Issue   struct {
				Identifier string `json:"identifier"`
			} `json:"issue"`
		} `json:"issueCreate"`
	}
	mutation := `mutation CreateIssue($input: IssueCreateInput!) {
  issueCreate(input: $input) { success issue { identifier } }
}`
	if err := t.client.execute(ctx, mutation, map[string]any{"input": input}, &data); err != nil {
		return "", err
	}
	if !data.IssueCreate.Success {
		return "", fmt.Errorf("linear refused issue create")
	}
	return data.IssueCreate.Issue.Identifier, nil
}

const issueUpdateMutation = `mutation UpdateIssue($id: String!, $input: IssueUpdateInput!) {
  issueUpdate(id: $id, input: $input) { success }
}`

func (t *Tickets) Update(ctx context.Context, id string, fields map[string]string) error {
	input := map[string]any{}
	for k, v := range fields {
		switch k {
		case "title":
			input["title"] = v
		case "description":
			input["description"] = v
		case "priority":
			if p, ok := priorityValues[strings.ToLower(v)]; ok {
				input["priority"] = p
			}
		default:
			t.logger.Debug("ignoring unmapped ticket field", "field", k)
		}
	}
	if len(input) == 0 {
		return nil
	}

	var data struct {
		IssueUpdate struct {
			Success bool `json:"success"`
		} `json:"issueUpdate"`
	}
	if err := t.client.execute(ctx, issueUpdateMutation, map[string]any{"id": id, "input": input}, &data); err != nil {
		return err
	}
	if !data.IssueUpdate.Success {
		return fmt.Errorf("linear refused issue update for %s", id)
	}
	return nil
}

func (t *Tickets) Transition(ctx context.Context, id, toStatus, note, blockedBy string) (adapters.TransitionResult, error) {
	stateName, ok := StateName(toStatus)
	if !ok {
		return adapters.TransitionResult{}, fmt.Errorf("%q: %w", toStatus, adapters.ErrUnsupportedStatus)
	}

	var data struct {
		Issue *struct {
			ID        string    `json:"id"`
			UpdatedAt time.Time `json:"updatedAt"`
			State     struct {
				Name string `json:"name"`
			} `json:"state"`
			Team struct {
				States struct {
					Nodes []struct {
						ID   string `json:"id"`
						Name string `json:"name"`
					} `json:"nodes"`
				} `json:"states"`
			} `json:"team"`
		} `json:"issue"`
	}
	query := `query IssueForTransition($id: String!) {
  issue(id: $id) {
    id updatedAt state { name }
    team { states { nodes { id name } } }
  }
}`
	if err := t.client.execute(ctx, query, map[string]any{"id": id}, &data); err != nil {
		return adapters.TransitionResult{}, err
	}
	if data.Issue == nil {
		return adapters.TransitionResult{}, fmt.Errorf("ticket %s: %w", id, adapters.ErrNotFound)
	}

	var stateID string
	for _, s := range data.Issue.Team.States.Nodes {
		if strings.EqualFold(s.Name, stateName) {
			stateID = s.ID
			break
		}
	}
	if stateID == "" {
		return adapters.TransitionResult{}, fmt.Errorf("workflow has no state %q: %w", stateName, adapters.ErrUnsupportedStatus)
	}

	var upd struct {
		IssueUpdate struct {
			Success bool `json:"success"`
		} `json:"issueUpdate"`
	}
	vars := map[string]any{"id": data.Issue.ID, "input": map[string]any{"stateId": stateID}}
	if err := t.client.execute(ctx, issueUpdateMutation, vars, &upd); err != nil {
		return adapters.TransitionResult{}, err
	}
	if !upd.IssueUpdate.Success {
		return adapters.TransitionResult{}, fmt.Errorf("linear refused transition for %s", id)
	}

	if note != "" {
		if err := t.comment(ctx, data.Issue.ID, note); err != nil {
			t.logger.Warn("transition note not posted", "ticket", id, "error", err)
		}
	}
	if blockedBy != "" {
		if err := t.comment(ctx, data.Issue.ID, "Blocked by "+blockedBy); err != nil {
			t.logger.Warn("blocked-by note not posted", "ticket", id, "error", err)
		}
	}

	res := adapters.TransitionResult{
		PreviousStatus: CanonicalStatus(data.Issue.State.Name),
		NewStatus:      toStatus,
		EventType:      "status_changed",
	}
	if toStatus == "blocked" {
		res.EventType = "blocked"
	}
	if !data.Issue.UpdatedAt.IsZero() {
		res.ElapsedMinutes = time.Since(data.Issue.UpdatedAt).Minutes()
	}
	return res, nil
}

// comment posts a body against an issue uuid.
func (t *Tickets) comment(ctx context.Context, issueUUID, body string) error {
	var data struct {
		CommentCreate struct {
			Success bool `json:"success"`
		} `json:"commentCreate"`
	}
	mutation := `mutation CreateComment($input: CommentCreateInput!) {
  commentCreate(input: $input) { success }
}`
	vars := map[string]any{"input": map[string]any{"issueId": issueUUID, "body": body}}
	if err := t.client.execute(ctx, mutation, vars, &data); err != nil {
		return err
	}
	if !data.CommentCreate.Success {
		return fmt.Errorf("linear refused comment")
	}
	return nil
}

func (t *Tickets) AddComment(ctx context.Context, id, body string) error {
	issue, err := t.fetch(ctx, id)
	if err != nil {
		return err
	}
	return t.comment(ctx, issue.ID, body)
}

func (t *Tickets) List(ctx context.Context, q adapters.TicketQuery) ([]adapters.TicketSnapshot, error) {
	filter := map[string]any{}
	if q.Assignee != "" {
		filter["assignee"] = map[string]any{"displayName": map[string]any{"eq": q.Assignee}}
	}
	if q.Status != "" {
		name, ok := StateName(q.Status)
		if !ok {
			return nil, fmt.Errorf("%q: %w", q.Status, adapters.ErrUnsupportedStatus)
		}
		filter["state"] = map[string]any{"name": map[string]any{"eq": name}}
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}

	var data struct {
		Issues struct {
			Nodes []issueFields `json:"nodes"`
		} `json:"issues"`
	}
	query := `query Issues($filter: IssueFilter, $first: Int!) {
  issues(filter: $filter, first: $first) {
    nodes {
      id identifier title description url priorityLabel createdAt updatedAt
      assignee { displayName }
      state { name }
    }
  }
}`
	if err := t.client.execute(ctx, query, map[string]any{"filter": filter, "first": limit}, &data); err != nil {
		return nil, err
	}

	out := make([]adapters.TicketSnapshot, 0, len(data.Issues.Nodes))
	for _, n := range data.Issues.Nodes {
		out = append(out, n.snapshot())
	}
	return out, nil
}
