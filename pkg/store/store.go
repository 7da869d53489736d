// Package store persists the seven entity kinds and the append-only event
// ledger in SQLite, and layers the semantic coordination queries on top of
// the Store port.
//
// Entities live in one table keyed by (type, id) with the record body as
// JSON; filters compile to json_extract predicates. Soft deletion sets
// deleted_at and hides the row from Get, List and Count. Events are
// append-only and come back in non-decreasing created_at order per entity.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/herd-sh/herd/pkg/adapters"
	"github.com/herd-sh/herd/pkg/database"
	"github.com/herd-sh/herd/pkg/models"
)

// SQLStore implements the Store port on a sqlite database.
type SQLStore struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// New wraps an opened database client.
func New(client *database.Client) *SQLStore {
	return &SQLStore{db: client.DB(), path: client.Path(), now: time.Now}
}

// Get returns the entity with the given type and id, or ErrNotFound when it
// is missing or soft-deleted.
func (s *SQLStore) Get(ctx context.Context, t models.EntityType, id string) (models.Entity, error) {
	var body string
	err := s.db.QueryRowContext(ctx,
		`SELECT body FROM entities WHERE type = ? AND id = ? AND deleted_at IS NULL`,
		string(t), id,
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, adapters.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying %s %s: %w", t, id, err)
	}
	return decodeEntity(t, body)
}

// List returns all live entities of the type matching the filter, oldest
// first.
func (s *SQLStore) List(ctx context.Context, t models.EntityType, f models.Filter) ([]models.Entity, error) {
	where, args := compileFilter(t, f)
	q := `SELECT body FROM entities WHERE ` + where + ` ORDER BY created_at ASC, rowid ASC`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", t, err)
	}
	defer rows.Close()

	var out []models.Entity
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		e, err := decodeEntity(t, body)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Save upserts the entity and stamps modified_at. Saving an id whose row was
// soft-deleted re-inserts it as a fresh record instead of resurrecting the
// old one.
func (s *SQLStore) Save(ctx context.Context, e models.Entity) (string, error) {
	if e.EntityID() == "" {
		return "", fmt.Errorf("%w: entity id is empty", adapters.ErrNotFound)
	}
	now := s.now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback() }()

	createdAt := now
	var prevCreated sql.NullInt64
	var prevDeleted sql.NullInt64
	err = tx.QueryRowContext(ctx,
		`SELECT created_at, deleted_at FROM entities WHERE type = ? AND id = ?`,
		string(e.EntityType()), e.EntityID(),
	).Scan(&prevCreated, &prevDeleted)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// fresh insert
	case err != nil:
		return "", err
	case prevDeleted.Valid:
		// Re-insert over a soft-deleted row: new lifetime, new created_at.
	default:
		createdAt = time.UnixMilli(prevCreated.Int64).UTC()
	}

	meta := e.EntityMeta()
	meta.CreatedAt = createdAt
	meta.ModifiedAt = now
	meta.DeletedAt = nil

	body, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("encoding %s %s: %w", e.EntityType(), e.EntityID(), err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO entities (type, id, body, created_at, modified_at, deleted_at)
		 VALUES (?, ?, ?, ?, ?, NULL)
		 ON CONFLICT (type, id) DO UPDATE SET
		   body = excluded.body,
		   created_at = excluded.created_at,
		   modified_at = excluded.modified_at,
		   deleted_at = NULL`,
		string(e.EntityType()), e.EntityID(), string(body),
		createdAt.UnixMilli(), now.UnixMilli(),
	)
	if err != nil {
		return "", fmt.Errorf("saving %s %s: %w", e.EntityType(), e.EntityID(), err)
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return e.EntityID(), nil
}

// Delete soft-deletes the entity. Deleting a missing or already-deleted id
// returns ErrNotFound.
func (s *SQLStore) Delete(ctx context.Context, t models.EntityType, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE entities SET deleted_at = ? WHERE type = ? AND id = ? AND deleted_at IS NULL`,
		s.now().UTC().UnixMilli(), string(t), id,
	)
	if err != nil {
		return fmt.Errorf("deleting %s %s: %w", t, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return adapters.ErrNotFound
	}
	return nil
}

// Append writes one event to the ledger. Events are never mutated or deleted
// afterwards. A missing id or created_at is filled in.
func (s *SQLStore) Append(ctx context.Context, ev models.Event) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = s.now().UTC()
	}
	payload := "{}"
	if ev.Payload != nil {
		data, err := json.Marshal(ev.Payload)
		if err != nil {
			return fmt.Errorf("encoding event payload: %w", err)
		}
		payload = string(data)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (id, entity_id, category, kind, body, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.EntityID, string(ev.Category), ev.Kind, payload, ev.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("appending %s/%s event: %w", ev.Category, ev.Kind, err)
	}
	return nil
}

// Count returns the number of live entities matching the filter.
func (s *SQLStore) Count(ctx context.Context, t models.EntityType, f models.Filter) (int, error) {
	where, args := compileFilter(t, f)
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entities WHERE `+where, args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting %s: %w", t, err)
	}
	return n, nil
}

// Events returns ledger entries of a category ascending by created_at
// (append order breaks ties).
func (s *SQLStore) Events(ctx context.Context, c models.EventCategory, f models.EventFilter) ([]models.Event, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT id, entity_id, category, kind, body, created_at FROM events WHERE category = ?`)
	args := []any{string(c)}

	if f.EntityID != "" {
		sb.WriteString(` AND entity_id = ?`)
		args = append(args, f.EntityID)
	}
	if f.Kind != "" {
		sb.WriteString(` AND kind = ?`)
		args = append(args, f.Kind)
	}
	if !f.Since.IsZero() {
		sb.WriteString(` AND created_at >= ?`)
		args = append(args, f.Since.UTC().UnixMilli())
	}
	sb.WriteString(` ORDER BY created_at ASC, rowid ASC`)
	if f.Limit > 0 {
		sb.WriteString(` LIMIT ?`)
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("querying %s events: %w", c, err)
	}
	defer rows.Close()

	var out []models.Event
	for rows.Next() {
		var ev models.Event
		var category, body string
		var createdAt int64
		if err := rows.Scan(&ev.ID, &ev.EntityID, &category, &ev.Kind, &body, &createdAt); err != nil {
			return nil, err
		}
		ev.Category = models.EventCategory(category)
		ev.CreatedAt = time.UnixMilli(createdAt).UTC()
		if body != "" && body != "{}" {
			if err := json.Unmarshal([]byte(body), &ev.Payload); err != nil {
				return nil, fmt.Errorf("decoding event %s payload: %w", ev.ID, err)
			}
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// StorageInfo stats the backing database file.
func (s *SQLStore) StorageInfo(_ context.Context) (adapters.StorageInfo, error) {
	fi, err := os.Stat(s.path)
	if err != nil {
		return adapters.StorageInfo{Path: s.path}, fmt.Errorf("stat %s: %w", s.path, err)
	}
	return adapters.StorageInfo{
		Path:         s.path,
		SizeBytes:    fi.Size(),
		LastModified: fi.ModTime().UTC(),
	}, nil
}

// compileFilter renders the WHERE clause for a typed filter. Field-equality
// predicates address the JSON body; since addresses the created_at column.
func compileFilter(t models.EntityType, f models.Filter) (string, []any) {
	var sb strings.Builder
	sb.WriteString(`type = ? AND deleted_at IS NULL`)
	args := []any{string(t)}

	if f == nil {
		return sb.String(), args
	}
	for _, p := range f.Predicates() {
		switch p.Op {
		case models.OpEq:
			sb.WriteString(` AND json_extract(body, '$.` + p.Field + `') = ?`)
			args = append(args, p.Value)
		case models.OpSince:
			sb.WriteString(` AND created_at >= ?`)
			if ts, ok := p.Value.(time.Time); ok {
				args = append(args, ts.UTC().UnixMilli())
			} else {
				args = append(args, p.Value)
			}
		}
	}
	return sb.String(), args
}

func decodeEntity(t models.EntityType, body string) (models.Entity, error) {
	e, ok := models.New(t)
	if !ok {
		return nil, fmt.Errorf("unknown entity type %q", t)
	}
	if err := json.Unmarshal([]byte(body), e); err != nil {
		return nil, fmt.Errorf("decoding %s body: %w", t, err)
	}
	return e, nil
}
