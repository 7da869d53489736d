// Package adapters declares the five capability ports the runtime composes:
// Store, Tickets, Notify, Repo, and Agent. Implementations are loaded at
// startup; a missing implementation leaves its slot nil and tools that need
// it return a structured "not configured" result instead of failing the
// process.
//
// All methods may be called concurrently from multiple tool handlers;
// implementations serialize their own state.
package adapters

import (
	"context"
	"time"

	"github.com/herd-sh/herd/pkg/models"
)

// Store is typed entity and event persistence. Get returns ErrNotFound for
// missing or soft-deleted ids. List and Count always exclude soft-deleted
// rows. Events come back ascending by created_at.
type Store interface {
	Get(ctx context.Context, t models.EntityType, id string) (models.Entity, error)
	List(ctx context.Context, t models.EntityType, f models.Filter) ([]models.Entity, error)
	Save(ctx context.Context, e models.Entity) (string, error)
	Delete(ctx context.Context, t models.EntityType, id string) error
	Append(ctx context.Context, ev models.Event) error
	Count(ctx context.Context, t models.EntityType, f models.Filter) (int, error)
	Events(ctx context.Context, c models.EventCategory, f models.EventFilter) ([]models.Event, error)
	StorageInfo(ctx context.Context) (StorageInfo, error)
}

// Tickets is the external tracker.
type Tickets interface {
	Get(ctx context.Context, id string) (TicketSnapshot, error)
	Create(ctx context.Context, title string, opts TicketOptions) (string, error)
	Update(ctx context.Context, id string, fields map[string]string) error
	Transition(ctx context.Context, id, toStatus, note, blockedBy string) (TransitionResult, error)
	AddComment(ctx context.Context, id, body string) error
	List(ctx context.Context, q TicketQuery) ([]TicketSnapshot, error)
}

// Notify posts to the notification channel.
type Notify interface {
	Post(ctx context.Context, message, channel, username, icon string) (PostResult, error)
	PostThread(ctx context.Context, threadID, message, channel string) (PostResult, error)
	ThreadReplies(ctx context.Context, channel, threadID string) ([]ThreadMessage, error)
}

// Searcher is an optional extension of Notify. Conformance is checked
// structurally at the call site; backends without search are skipped.
type Searcher interface {
	SearchMessages(ctx context.Context, query string, limit int) ([]ThreadMessage, error)
}

// Repo is the code host plus local working copies.
type Repo interface {
	CreateBranch(ctx context.Context, name, base string) (string, error)
	CreateWorktree(ctx context.Context, branch, path string) (string, error)
	RemoveWorktree(ctx context.Context, path string) error
	Push(ctx context.Context, branch string) error
	CreatePR(ctx context.Context, title, body, head, base string) (string, error)
	GetPR(ctx context.Context, id string) (PRRecord, error)
	MergePR(ctx context.Context, id string) error
	AddPRComment(ctx context.Context, id, body string) error
	Log(ctx context.Context, since time.Time, limit int) ([]Commit, error)
}

// Agent spawns and supervises detached agent subprocesses.
type Agent interface {
	Spawn(ctx context.Context, req SpawnRequest) (SpawnResult, error)
	Status(ctx context.Context, instanceID string) (AgentStatus, error)
	Stop(ctx context.Context, instanceID string) error
}
