package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/herd-sh/herd/pkg/adapters"
)

// Tickets is an in-memory tracker.
type Tickets struct {
	mu       sync.Mutex
	tickets  map[string]adapters.TicketSnapshot
	comments map[string][]string
	seq      int
	now      func() time.Time

	Err error
}

var _ adapters.Tickets = (*Tickets)(nil)

// NewTickets builds an empty tracker.
func NewTickets() *Tickets {
	return &Tickets{
		tickets:  make(map[string]adapters.TicketSnapshot),
		comments: make(map[string][]string),
		now:      time.Now,
	}
}

// Seed inserts a ticket directly, for test setup.
func (m *Tickets) Seed(t adapters.TicketSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tickets[t.ID] = t
}

// Comments returns the comments recorded against a ticket.
func (m *Tickets) Comments(id string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.comments[id]...)
}

func (m *Tickets) Get(_ context.Context, id string) (adapters.TicketSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return adapters.TicketSnapshot{}, m.Err
	}
	t, ok := m.tickets[id]
	if !ok {
		return adapters.TicketSnapshot{}, fmt.Errorf("ticket %s: %w", id, adapters.ErrNotFound)
	}
	return t, nil
}

func (m *Tickets) Create(_ context.Context, title string, opts adapters.TicketOptions) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return "", m.Err
	}
	m.seq++
	id := fmt.Sprintf("MOCK-%d", m.seq)
	m.tickets[id] = adapters.TicketSnapshot{
		ID:          id,
		Title:       title,
		Description: opts.Description,
		Status:      "backlog",
		Assignee:    opts.Assignee,
		Priority:    opts.Priority,
		CreatedAt:   m.now().UTC(),
		UpdatedAt:   m.now().UTC(),
	}
	return id, nil
}

func (m *Tickets) Update(_ context.Context, id string, fields map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	t, ok := m.tickets[id]
	if !ok {
		return fmt.Errorf("ticket %s: %w", id, adapters.ErrNotFound)
	}
	for k, v := range fields {
		switch k {
		case "title":
			t.Title = v
		case "description":
			t.Description = v
		case "assignee":
			t.Assignee = v
		case "priority":
			t.Priority = v
		case "status":
			t.Status = v
		}
	}
	t.UpdatedAt = m.now().UTC()
	m.tickets[id] = t
	return nil
}

func (m *Tickets) Transition(_ context.Context, id, toStatus, note, blockedBy string) (adapters.TransitionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return adapters.TransitionResult{}, m.Err
	}
	t, ok := m.tickets[id]
	if !ok {
		return adapters.TransitionResult{}, fmt.Errorf("ticket %s: %w", id, adapters.ErrNotFound)
	}

	res := adapters.TransitionResult{
		PreviousStatus: t.Status,
		NewStatus:      toStatus,
		EventType:      "status_changed",
	}
	if toStatus == "blocked" {
		res.EventType = "blocked"
	}
	if !t.UpdatedAt.IsZero() {
		res.ElapsedMinutes = m.now().Sub(t.UpdatedAt).Minutes()
	}

	t.Status = toStatus
	t.UpdatedAt = m.now().UTC()
	m.tickets[id] = t
	if note != "" {
		m.comments[id] = append(m.comments[id], note)
	}
	if blockedBy != "" {
		m.comments[id] = append(m.comments[id], "blocked by "+blockedBy)
	}
	return res, nil
}

func (m *Tickets) AddComment(_ context.Context, id, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if _, ok := m.tickets[id]; !ok {
		return fmt.Errorf("ticket %s: %w", id, adapters.ErrNotFound)
	}
	m.comments[id] = append(m.comments[id], body)
	return nil
}

func (m *Tickets) List(_ context.Context, q adapters.TicketQuery) ([]adapters.TicketSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}

	var out []adapters.TicketSnapshot
	for _, t := range m.tickets {
		if q.Assignee != "" && t.Assignee != q.Assignee {
			continue
		}
		if q.Status != "" && t.Status != q.Status {
			continue
		}
		out = append(out, t)
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}
