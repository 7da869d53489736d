// Package graph is the structural store: a labeled property graph over
// sqlite that records who decided, touched, reviewed, and blocked what.
// It answers relationship questions the operational store's flat entity
// tables cannot, and the runtime degrades cleanly when it is absent.
package graph

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Node labels. Every node is keyed by (label, id).
const (
	NodeDecision   = "Decision"
	NodeAgent      = "Agent"
	NodeTicket     = "Ticket"
	NodeFile       = "File"
	NodeRepository = "Repository"
	NodeSession    = "Session"
	NodeConcept    = "Concept"
)

// Edge labels. TaggedWith is the one multi-source relation: any label
// may tag into Concept.
const (
	EdgeDecides     = "Decides"
	EdgeImplements  = "Implements"
	EdgeTouches     = "Touches"
	EdgeReviews     = "Reviews"
	EdgeSupersedes  = "Supersedes"
	EdgeDependsOn   = "DependsOn"
	EdgeSpawnedBy   = "SpawnedBy"
	EdgeAssignedTo  = "AssignedTo"
	EdgeBlockedBy   = "BlockedBy"
	EdgeCompletedBy = "CompletedBy"
	EdgeBelongsTo   = "BelongsTo"
	EdgeTaggedWith  = "TaggedWith"
)

var nodeLabels = map[string]bool{
	NodeDecision:   true,
	NodeAgent:      true,
	NodeTicket:     true,
	NodeFile:       true,
	NodeRepository: true,
	NodeSession:    true,
	NodeConcept:    true,
}

var edgeLabels = map[string]bool{
	EdgeDecides:     true,
	EdgeImplements:  true,
	EdgeTouches:     true,
	EdgeReviews:     true,
	EdgeSupersedes:  true,
	EdgeDependsOn:   true,
	EdgeSpawnedBy:   true,
	EdgeAssignedTo:  true,
	EdgeBlockedBy:   true,
	EdgeCompletedBy: true,
	EdgeBelongsTo:   true,
	EdgeTaggedWith:  true,
}

// ValidNodeLabel reports whether label names a known node kind.
func ValidNodeLabel(label string) bool { return nodeLabels[label] }

// ValidEdgeLabel reports whether rel names a known relation.
func ValidEdgeLabel(rel string) bool { return edgeLabels[rel] }

// Graph is the sqlite-backed property graph. The file is opened lazily
// on first use.
type Graph struct {
	path string

	mu  sync.Mutex
	db  *sql.DB
	now func() time.Time
}

// New builds a Graph over the given sqlite path.
func New(path string) *Graph {
	return &Graph{path: path, now: time.Now}
}

// Available reports whether the graph can open its database. It never
// panics; consumers use it to skip graph writes when the store is down.
func (g *Graph) Available() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, err := g.ensureLocked()
	return err == nil
}

// Close releases the database if it was ever opened.
func (g *Graph) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.db == nil {
		return nil
	}
	err := g.db.Close()
	g.db = nil
	return err
}

func (g *Graph) ensureLocked() (*sql.DB, error) {
	if g.db != nil {
		return g.db, nil
	}

	db, err := sql.Open("sqlite", g.path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open graph db %s: %w", g.path, err)
	}
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS nodes (
			label      TEXT NOT NULL,
			id         TEXT NOT NULL,
			props      TEXT NOT NULL DEFAULT '{}',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (label, id)
		);
		CREATE TABLE IF NOT EXISTS edges (
			id         TEXT PRIMARY KEY,
			rel        TEXT NOT NULL,
			from_label TEXT NOT NULL,
			from_id    TEXT NOT NULL,
			to_label   TEXT NOT NULL,
			to_id      TEXT NOT NULL,
			props      TEXT NOT NULL DEFAULT '{}',
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_edges_rel ON edges(rel);
		CREATE INDEX IF NOT EXISTS idx_edges_from ON edges(from_label, from_id);
		CREATE INDEX IF NOT EXISTS idx_edges_to ON edges(to_label, to_id);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create graph schema: %w", err)
	}
	g.db = db
	return db, nil
}

// MergeNode upserts a node. props must carry a string "id"; on an
// existing node the remaining props replace what was stored before, so
// merging twice with the same props is idempotent.
func (g *Graph) MergeNode(ctx context.Context, label string, props map[string]any) error {
	if !ValidNodeLabel(label) {
		return fmt.Errorf("unknown node label %q", label)
	}
	id, ok := props["id"].(string)
	if !ok || id == "" {
		return fmt.Errorf("merge %s: props must include a string id", label)
	}

	rest := make(map[string]any, len(props))
	for k, v := range props {
		if k != "id" {
			rest[k] = v
		}
	}
	propsJSON, err := json.Marshal(rest)
	if err != nil {
		return fmt.Errorf("encode node props: %w", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	db, err := g.ensureLocked()
	if err != nil {
		return err
	}

	nowMs := g.now().UnixMilli()
	_, err = db.ExecContext(ctx, `
		INSERT INTO nodes (label, id, props, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(label, id) DO UPDATE SET props = excluded.props, updated_at = excluded.updated_at`,
		label, id, string(propsJSON), nowMs, nowMs,
	)
	if err != nil {
		return fmt.Errorf("merge node %s/%s: %w", label, id, err)
	}
	return nil
}

// CreateEdge links two existing nodes. Both endpoints must already be
// merged; a missing endpoint is an error, not an implicit insert.
func (g *Graph) CreateEdge(ctx context.Context, rel, fromLabel, fromID, toLabel, toID string, props map[string]any) error {
	if !ValidEdgeLabel(rel) {
		return fmt.Errorf("unknown edge label %q", rel)
	}
	if !ValidNodeLabel(fromLabel) || !ValidNodeLabel(toLabel) {
		return fmt.Errorf("unknown endpoint label in %s -> %s", fromLabel, toLabel)
	}
	if rel == EdgeTaggedWith && toLabel != NodeConcept {
		return fmt.Errorf("TaggedWith edges must point at a Concept, got %s", toLabel)
	}

	if props == nil {
		props = map[string]any{}
	}
	propsJSON, err := json.Marshal(props)
	if err != nil {
		return fmt.Errorf("encode edge props: %w", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	db, err := g.ensureLocked()
	if err != nil {
		return err
	}

	for _, ep := range []struct{ label, id string }{{fromLabel, fromID}, {toLabel, toID}} {
		var one int
		err := db.QueryRowContext(ctx, `SELECT 1 FROM nodes WHERE label = ? AND id = ?`, ep.label, ep.id).Scan(&one)
		if err == sql.ErrNoRows {
			return fmt.Errorf("edge endpoint %s/%s not found", ep.label, ep.id)
		}
		if err != nil {
			return fmt.Errorf("verify edge endpoint %s/%s: %w", ep.label, ep.id, err)
		}
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO edges (id, rel, from_label, from_id, to_label, to_id, props, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), rel, fromLabel, fromID, toLabel, toID, string(propsJSON), g.now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("create edge %s: %w", rel, err)
	}
	return nil
}

// Node fetches one node's props (including its id) or nil when absent.
func (g *Graph) Node(ctx context.Context, label, id string) (map[string]any, error) {
	if !ValidNodeLabel(label) {
		return nil, fmt.Errorf("unknown node label %q", label)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	db, err := g.ensureLocked()
	if err != nil {
		return nil, err
	}

	var propsJSON string
	err = db.QueryRowContext(ctx, `SELECT props FROM nodes WHERE label = ? AND id = ?`, label, id).Scan(&propsJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch node %s/%s: %w", label, id, err)
	}

	props := map[string]any{}
	if err := json.Unmarshal([]byte(propsJSON), &props); err != nil {
		return nil, fmt.Errorf("decode node %s/%s props: %w", label, id, err)
	}
	props["id"] = id
	return props, nil
}

// Neighbors returns ids of nodes reachable from (label, id) over rel,
// following the edge in either direction.
func (g *Graph) Neighbors(ctx context.Context, label, id, rel string) ([]string, error) {
	if !ValidEdgeLabel(rel) {
		return nil, fmt.Errorf("unknown edge label %q", rel)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	db, err := g.ensureLocked()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT to_id FROM edges WHERE rel = ? AND from_label = ? AND from_id = ?
		UNION
		SELECT from_id FROM edges WHERE rel = ? AND to_label = ? AND to_id = ?`,
		rel, label, id, rel, label, id)
	if err != nil {
		return nil, fmt.Errorf("fetch %s neighbors of %s/%s: %w", rel, label, id, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var nid string
		if err := rows.Scan(&nid); err != nil {
			return nil, err
		}
		ids = append(ids, nid)
	}
	return ids, rows.Err()
}

// Query runs parameterized SQL over the graph tables and returns rows
// keyed by column name. Only read statements are accepted; mutation goes
// through MergeNode and CreateEdge so stamps stay consistent.
func (g *Graph) Query(ctx context.Context, query string, params []any) ([]map[string]any, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(query))
	if !strings.HasPrefix(trimmed, "SELECT") && !strings.HasPrefix(trimmed, "WITH") {
		return nil, fmt.Errorf("graph query must be a SELECT")
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	db, err := g.ensureLocked()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("graph query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			if b, ok := values[i].([]byte); ok {
				row[c] = string(b)
			} else {
				row[c] = values[i]
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
