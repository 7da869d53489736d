// Package mock provides in-memory implementations of all five adapter
// ports. They back the end-to-end tests and the local development mode,
// where no tracker, chat workspace, or code host is reachable.
package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/herd-sh/herd/pkg/adapters"
	"github.com/herd-sh/herd/pkg/models"
)

// Store keeps entities and events in maps, mirroring the sqlite store's
// soft-delete and append-only semantics.
type Store struct {
	mu       sync.Mutex
	entities map[models.EntityType]map[string]models.Entity
	events   []models.Event
	seq      int
	now      func() time.Time

	// Err, when set, is returned by every call. Tests use it to simulate
	// a down backend.
	Err error
}

var _ adapters.Store = (*Store)(nil)

// NewStore builds an empty Store.
func NewStore() *Store {
	return &Store{
		entities: make(map[models.EntityType]map[string]models.Entity),
		now:      time.Now,
	}
}

// SetClock overrides the timestamp source.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// clone round-trips through JSON so callers never share pointers with
// the map.
func clone(e models.Entity) (models.Entity, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	fresh, ok := models.New(e.EntityType())
	if !ok {
		return nil, fmt.Errorf("unknown entity type %q", e.EntityType())
	}
	if err := json.Unmarshal(raw, fresh); err != nil {
		return nil, err
	}
	return fresh, nil
}

func (s *Store) Get(_ context.Context, t models.EntityType, id string) (models.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	e, ok := s.entities[t][id]
	if !ok || e.EntityMeta().DeletedAt != nil {
		return nil, adapters.ErrNotFound
	}
	return clone(e)
}

func (s *Store) List(_ context.Context, t models.EntityType, f models.Filter) ([]models.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}

	var out []models.Entity
	for _, e := range s.entities[t] {
		if e.EntityMeta().DeletedAt != nil {
			continue
		}
		ok, err := matches(e, f)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		c, err := clone(e)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].EntityMeta().CreatedAt.Before(out[j].EntityMeta().CreatedAt)
	})
	return out, nil
}

// matches applies the filter's predicates against the entity's JSON view.
func matches(e models.Entity, f models.Filter) (bool, error) {
	if f == nil {
		return true, nil
	}
	preds := f.Predicates()
	if len(preds) == 0 {
		return true, nil
	}

	raw, err := json.Marshal(e)
	if err != nil {
		return false, err
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return false, err
	}

	for _, p := range preds {
		switch p.Op {
		case models.OpEq:
			got, ok := fields[p.Field]
			if !ok || fmt.Sprint(got) != fmt.Sprint(p.Value) {
				return false, nil
			}
		case models.OpSince:
			since, ok := p.Value.(time.Time)
			if !ok {
				return false, fmt.Errorf("since predicate needs a time.Time, got %T", p.Value)
			}
			if e.EntityMeta().CreatedAt.Before(since) {
				return false, nil
			}
		default:
			return false, fmt.Errorf("unknown predicate op %q", p.Op)
		}
	}
	return true, nil
}

func (s *Store) Save(_ context.Context, e models.Entity) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return "", s.Err
	}
	if e.EntityID() == "" {
		return "", fmt.Errorf("entity id is required")
	}

	c, err := clone(e)
	if err != nil {
		return "", err
	}

	t := c.EntityType()
	if s.entities[t] == nil {
		s.entities[t] = make(map[string]models.Entity)
	}

	now := s.now().UTC()
	meta := c.EntityMeta()
	if prev, ok := s.entities[t][c.EntityID()]; ok && prev.EntityMeta().DeletedAt == nil {
		meta.CreatedAt = prev.EntityMeta().CreatedAt
	} else {
		meta.CreatedAt = now
	}
	meta.ModifiedAt = now
	meta.DeletedAt = nil

	s.entities[t][c.EntityID()] = c
	return c.EntityID(), nil
}

func (s *Store) Delete(_ context.Context, t models.EntityType, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	e, ok := s.entities[t][id]
	if !ok || e.EntityMeta().DeletedAt != nil {
		return adapters.ErrNotFound
	}
	now := s.now().UTC()
	e.EntityMeta().DeletedAt = &now
	return nil
}

func (s *Store) Append(_ context.Context, ev models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if ev.ID == "" {
		s.seq++
		ev.ID = fmt.Sprintf("evt-%d", s.seq)
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = s.now().UTC()
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *Store) Count(ctx context.Context, t models.EntityType, f models.Filter) (int, error) {
	list, err := s.List(ctx, t, f)
	if err != nil {
		return 0, err
	}
	return len(list), nil
}

func (s *Store) Events(_ context.Context, c models.EventCategory, f models.EventFilter) ([]models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}

	var out []models.Event
	for _, ev := range s.events {
		if ev.Category != c {
			continue
		}
		if f.EntityID != "" && ev.EntityID != f.EntityID {
			continue
		}
		if f.Kind != "" && ev.Kind != f.Kind {
			continue
		}
		if !f.Since.IsZero() && ev.CreatedAt.Before(f.Since) {
			continue
		}
		out = append(out, ev)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *Store) StorageInfo(context.Context) (adapters.StorageInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return adapters.StorageInfo{}, s.Err
	}
	return adapters.StorageInfo{Path: ":memory:", LastModified: s.now().UTC()}, nil
}
