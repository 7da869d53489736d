package adapters

import "time"

// StorageInfo describes the operational store's backing file.
type StorageInfo struct {
	Path         string    `json:"path"`
	SizeBytes    int64     `json:"size_bytes"`
	LastModified time.Time `json:"last_modified"`
}

// TicketSnapshot is the tracker's view of a ticket.
type TicketSnapshot struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Status      string    `json:"status"`
	Assignee    string    `json:"assignee,omitempty"`
	Priority    string    `json:"priority,omitempty"`
	URL         string    `json:"url,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}

// TicketOptions carries optional fields for ticket creation.
type TicketOptions struct {
	Description string `json:"description,omitempty"`
	Assignee    string `json:"assignee,omitempty"`
	Priority    string `json:"priority,omitempty"`
	Team        string `json:"team,omitempty"`
}

// TicketQuery filters tracker listings.
type TicketQuery struct {
	Assignee string `json:"assignee,omitempty"`
	Status   string `json:"status,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// TransitionResult reports a tracker state change.
type TransitionResult struct {
	PreviousStatus string  `json:"previous_status"`
	NewStatus      string  `json:"new_status"`
	EventType      string  `json:"event_type"`
	ElapsedMinutes float64 `json:"elapsed_minutes,omitempty"`
}

// PostResult identifies a posted notification.
type PostResult struct {
	MessageID string `json:"message_id"`
	Channel   string `json:"channel"`
	Timestamp string `json:"timestamp"`
}

// ThreadMessage is one message inside a notification thread.
type ThreadMessage struct {
	User      string `json:"user,omitempty"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp,omitempty"`
	ThreadID  string `json:"thread_id,omitempty"`
}

// PRRecord is the code host's view of a pull request.
type PRRecord struct {
	ID        string    `json:"id"`
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	Body      string    `json:"body,omitempty"`
	State     string    `json:"state"`
	Head      string    `json:"head,omitempty"`
	Base      string    `json:"base,omitempty"`
	Author    string    `json:"author,omitempty"`
	URL       string    `json:"url,omitempty"`
	Merged    bool      `json:"merged"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Commit is one entry from the repository log.
type Commit struct {
	Hash    string    `json:"hash"`
	Author  string    `json:"author,omitempty"`
	Subject string    `json:"subject"`
	When    time.Time `json:"when,omitempty"`
}

// SpawnRequest asks the Agent adapter for a new detached instance. The
// worktree and branch are prepared by the caller via the Repo adapter
// before spawning.
type SpawnRequest struct {
	AgentCode string `json:"agent"`
	TicketID  string `json:"ticket_id,omitempty"`
	Context   string `json:"context,omitempty"`
	Model     string `json:"model,omitempty"`
	Worktree  string `json:"worktree,omitempty"`
	Branch    string `json:"branch,omitempty"`
}

// SpawnResult reports a started instance.
type SpawnResult struct {
	InstanceID string    `json:"instance_id"`
	Agent      string    `json:"agent"`
	TicketID   string    `json:"ticket_id,omitempty"`
	Model      string    `json:"model,omitempty"`
	Worktree   string    `json:"worktree,omitempty"`
	Branch     string    `json:"branch,omitempty"`
	SpawnedAt  time.Time `json:"spawned_at"`
}

// AgentStatus reports liveness of a spawned instance.
type AgentStatus struct {
	InstanceID string    `json:"instance_id"`
	Running    bool      `json:"running"`
	PID        int       `json:"pid,omitempty"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	ExitCode   *int      `json:"exit_code,omitempty"`
}
