// Package memory is the long-lived vector store: free-form text entries
// embedded at write time and recalled by semantic similarity. It backs
// recall across agent lifetimes, where the operational store only keeps
// structured entities.
package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Memory types accepted by Store. Anything else is rejected so the
// vector table does not silt up with unsearchable categories.
const (
	TypeSessionSummary  = "session_summary"
	TypeDecisionContext = "decision_context"
	TypePattern         = "pattern"
	TypePreference      = "preference"
	TypeThread          = "thread"
	TypeLesson          = "lesson"
	TypeObservation     = "observation"
)

var validTypes = map[string]bool{
	TypeSessionSummary:  true,
	TypeDecisionContext: true,
	TypePattern:         true,
	TypePreference:      true,
	TypeThread:          true,
	TypeLesson:          true,
	TypeObservation:     true,
}

// ValidType reports whether t is one of the accepted memory types.
func ValidType(t string) bool { return validTypes[t] }

// Entry is one memory to be stored.
type Entry struct {
	MemoryType string
	AgentName  string
	TicketID   string
	SprintID   string
	Content    string
	Summary    string
	Metadata   map[string]any
}

// Recalled is one recall hit, nearest first.
type Recalled struct {
	ID         string
	MemoryType string
	AgentName  string
	TicketID   string
	SprintID   string
	Content    string
	Summary    string
	Metadata   map[string]any
	CreatedAt  time.Time
	Distance   float64
}

// Filters narrow a recall before the similarity ranking runs.
type Filters struct {
	MemoryType string
	AgentName  string
	TicketID   string
	SprintID   string
	Since      time.Time
	Limit      int
}

const defaultRecallLimit = 5

// Store is the sqlite-backed vector memory. The database file is opened
// lazily on first use so a runtime without the memory feature configured
// never creates it.
type Store struct {
	path     string
	embedder Embedder

	mu  sync.Mutex
	db  *sql.DB
	now func() time.Time
}

// New builds a Store over the given sqlite path. A nil embedder gets the
// deterministic hashing fallback.
func New(path string, embedder Embedder) *Store {
	if embedder == nil {
		embedder = HashEmbedder{}
	}
	return &Store{path: path, embedder: embedder, now: time.Now}
}

// Available reports whether the store can open its database.
func (s *Store) Available() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.ensureLocked()
	return err == nil
}

// Close releases the underlying database if it was ever opened.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// ensureLocked opens the database and creates or upgrades the schema.
// Callers hold s.mu.
func (s *Store) ensureLocked() (*sql.DB, error) {
	if s.db != nil {
		return s.db, nil
	}

	db, err := sql.Open("sqlite", s.path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open memory db %s: %w", s.path, err)
	}
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	s.db = db
	return db, nil
}

// migrate creates the memories table, dropping any pre-summary layout.
// Embeddings changed shape when summaries were added, so old rows are
// not worth carrying forward.
func migrate(db *sql.DB) error {
	var name string
	err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'memories'`).Scan(&name)
	switch {
	case err == sql.ErrNoRows:
		// fresh database
	case err != nil:
		return fmt.Errorf("inspect memory schema: %w", err)
	default:
		hasSummary, err := columnExists(db, "memories", "summary")
		if err != nil {
			return err
		}
		if !hasSummary {
			slog.Warn("memory schema outdated, rebuilding", "table", "memories")
			if _, err := db.Exec(`DROP TABLE memories`); err != nil {
				return fmt.Errorf("drop outdated memories table: %w", err)
			}
		}
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS memories (
			id          TEXT PRIMARY KEY,
			memory_type TEXT NOT NULL,
			agent_name  TEXT NOT NULL DEFAULT '',
			ticket_id   TEXT NOT NULL DEFAULT '',
			sprint_id   TEXT NOT NULL DEFAULT '',
			content     TEXT NOT NULL,
			summary     TEXT NOT NULL DEFAULT '',
			embedding   TEXT NOT NULL,
			metadata    TEXT NOT NULL DEFAULT '{}',
			created_at  INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_memories_type ON memories(memory_type);
		CREATE INDEX IF NOT EXISTS idx_memories_agent ON memories(agent_name);
		CREATE INDEX IF NOT EXISTS idx_memories_ticket ON memories(ticket_id);
	`)
	if err != nil {
		return fmt.Errorf("create memories table: %w", err)
	}
	return nil
}

func columnExists(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query(fmt.Sprintf(`PRAGMA table_info(%s)`, table))
	if err != nil {
		return false, fmt.Errorf("read %s columns: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notNull    int
			dflt       sql.NullString
			primaryKey int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &primaryKey); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// Store embeds and persists one entry, returning its generated id.
func (s *Store) Store(ctx context.Context, entry Entry) (string, error) {
	if !ValidType(entry.MemoryType) {
		return "", fmt.Errorf("invalid memory_type %q", entry.MemoryType)
	}
	if strings.TrimSpace(entry.Content) == "" {
		return "", fmt.Errorf("content is required")
	}

	// The summary, when present, is the searchable surface; the full
	// content often carries noise a short summary distills away.
	text := entry.Summary
	if strings.TrimSpace(text) == "" {
		text = entry.Content
	}
	vector, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return "", fmt.Errorf("embed content: %w", err)
	}
	embJSON, err := json.Marshal(vector)
	if err != nil {
		return "", err
	}
	meta := entry.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	db, err := s.ensureLocked()
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	_, err = db.ExecContext(ctx, `
		INSERT INTO memories (id, memory_type, agent_name, ticket_id, sprint_id, content, summary, embedding, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, entry.MemoryType, entry.AgentName, entry.TicketID, entry.SprintID,
		entry.Content, entry.Summary, string(embJSON), string(metaJSON), s.now().UnixMilli(),
	)
	if err != nil {
		return "", fmt.Errorf("store memory: %w", err)
	}
	return id, nil
}

// Recall embeds the query, applies the filters in SQL, then ranks the
// survivors by cosine distance in memory. The candidate set is small
// enough (single-team runtime) that brute force beats an index.
func (s *Store) Recall(ctx context.Context, query string, f Filters) ([]Recalled, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query is required")
	}
	if f.MemoryType != "" && !ValidType(f.MemoryType) {
		return nil, fmt.Errorf("invalid memory_type %q", f.MemoryType)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = defaultRecallLimit
	}

	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	db, err := s.ensureLocked()
	if err != nil {
		return nil, err
	}

	where := []string{"1 = 1"}
	args := []any{}
	if f.MemoryType != "" {
		where = append(where, "memory_type = ?")
		args = append(args, f.MemoryType)
	}
	if f.AgentName != "" {
		where = append(where, "agent_name = ?")
		args = append(args, f.AgentName)
	}
	if f.TicketID != "" {
		where = append(where, "ticket_id = ?")
		args = append(args, f.TicketID)
	}
	if f.SprintID != "" {
		where = append(where, "sprint_id = ?")
		args = append(args, f.SprintID)
	}
	if !f.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, f.Since.UnixMilli())
	}

	rows, err := db.QueryContext(ctx, `
		SELECT id, memory_type, agent_name, ticket_id, sprint_id, content, summary, embedding, metadata, created_at
		FROM memories WHERE `+strings.Join(where, " AND "), args...)
	if err != nil {
		return nil, fmt.Errorf("recall memories: %w", err)
	}
	defer rows.Close()

	var hits []Recalled
	for rows.Next() {
		var (
			r                 Recalled
			embJSON, metaJSON string
			createdAt         int64
		)
		if err := rows.Scan(&r.ID, &r.MemoryType, &r.AgentName, &r.TicketID, &r.SprintID,
			&r.Content, &r.Summary, &embJSON, &metaJSON, &createdAt); err != nil {
			return nil, err
		}
		var vector []float32
		if err := json.Unmarshal([]byte(embJSON), &vector); err != nil {
			slog.Warn("skipping memory with corrupt embedding", "id", r.ID, "error", err)
			continue
		}
		if err := json.Unmarshal([]byte(metaJSON), &r.Metadata); err != nil {
			r.Metadata = map[string]any{}
		}
		r.CreatedAt = time.UnixMilli(createdAt).UTC()
		r.Distance = cosineDistance(queryVec, vector)
		hits = append(hits, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

var hdrPattern = regexp.MustCompile(`HDR-(\d{4})`)

// NextHDRNumber scans decision_context metadata for the highest recorded
// decision number and returns the next one, starting at HDR-0001.
func (s *Store) NextHDRNumber(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	db, err := s.ensureLocked()
	if err != nil {
		return "", err
	}

	rows, err := db.QueryContext(ctx, `SELECT metadata FROM memories WHERE memory_type = ?`, TypeDecisionContext)
	if err != nil {
		return "", fmt.Errorf("scan decision numbers: %w", err)
	}
	defer rows.Close()

	max := 0
	for rows.Next() {
		var metaJSON string
		if err := rows.Scan(&metaJSON); err != nil {
			return "", err
		}
		for _, m := range hdrPattern.FindAllStringSubmatch(metaJSON, -1) {
			var n int
			fmt.Sscanf(m[1], "%d", &n)
			if n > max {
				max = n
			}
		}
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	return fmt.Sprintf("HDR-%04d", max+1), nil
}
