// Package session maps chat threads to long-lived coordinator sessions.
// Each thread gets one claude session; follow-up messages resume it by id.
// Idle sessions are reaped on a timer.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/herd-sh/herd/pkg/claude"
	"github.com/herd-sh/herd/pkg/metrics"
)

const (
	reapInterval       = 30 * time.Second
	defaultIdleTimeout = 180 * time.Second
)

// shutdownPhrases close the thread's session instead of being forwarded.
var shutdownPhrases = []string{"go to sleep", "stand down", "standdown", "terminate", "shutdown"}

func isShutdownPhrase(text string) bool {
	text = strings.ToLower(strings.TrimSpace(text))
	for _, p := range shutdownPhrases {
		if text == p {
			return true
		}
	}
	return false
}

// Runner abstracts the claude CLI so tests can fake it.
type Runner interface {
	Run(ctx context.Context, opts claude.RunOptions) (claude.RunResult, error)
}

// Session is one live thread-bound conversation.
type Session struct {
	ThreadID     string
	SessionID    string
	User         string
	StartedAt    time.Time
	LastActivity time.Time

	cancelRun context.CancelFunc // set while a run is in flight
}

// Options configure the manager.
type Options struct {
	SystemPrompt string
	WorkDir      string
	IdleTimeout  time.Duration
}

// Manager owns the thread → session map and the idle reaper.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	pending  map[string]chan struct{}

	runner       Runner
	systemPrompt string
	workDir      string
	idleTimeout  time.Duration
	logger       *slog.Logger
	now          func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewManager builds a manager and starts its reaper loop.
func NewManager(runner Runner, opts Options) *Manager {
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = defaultIdleTimeout
	}
	m := &Manager{
		sessions:     make(map[string]*Session),
		pending:      make(map[string]chan struct{}),
		runner:       runner,
		systemPrompt: opts.SystemPrompt,
		workDir:      opts.WorkDir,
		idleTimeout:  opts.IdleTimeout,
		logger:       slog.Default().With("component", "session"),
		now:          time.Now,
		stopCh:       make(chan struct{}),
	}
	m.wg.Add(1)
	go m.reapLoop()
	return m
}

// Active counts live sessions.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// HandleMessage routes one chat message: shutdown phrases close the
// session, the first message on a thread starts one, everything else
// resumes. Concurrent first messages on the same thread serialize on the
// pending channel so only one session is created.
func (m *Manager) HandleMessage(ctx context.Context, threadID, text, user string) (string, error) {
	if threadID == "" {
		return "", fmt.Errorf("thread id is required")
	}
	if isShutdownPhrase(text) {
		if m.end(threadID, "closed") {
			return "Standing down. Session closed.", nil
		}
		return "No active session for this thread.", nil
	}

	for {
		m.mu.Lock()
		if s, ok := m.sessions[threadID]; ok {
			sid := s.SessionID
			m.mu.Unlock()
			return m.resume(ctx, threadID, sid, text, user)
		}
		if waitCh, ok := m.pending[threadID]; ok {
			m.mu.Unlock()
			select {
			case <-waitCh:
			case <-ctx.Done():
				return "", ctx.Err()
			}
			continue
		}
		ch := make(chan struct{})
		m.pending[threadID] = ch
		m.mu.Unlock()
		return m.begin(ctx, threadID, ch, text, user)
	}
}

// begin runs the first invocation for a thread and registers the session
// id the CLI reports.
func (m *Manager) begin(ctx context.Context, threadID string, pendingCh chan struct{}, text, user string) (string, error) {
	defer func() {
		m.mu.Lock()
		delete(m.pending, threadID)
		m.mu.Unlock()
		close(pendingCh)
	}()

	res, err := m.runner.Run(ctx, claude.RunOptions{
		Prompt:       userPrompt(user, text),
		SystemPrompt: m.systemPrompt,
		WorkDir:      m.workDir,
	})
	if err != nil {
		return "", fmt.Errorf("starting session failed: %w", err)
	}

	now := m.now()
	m.mu.Lock()
	m.sessions[threadID] = &Session{
		ThreadID:     threadID,
		SessionID:    res.SessionID,
		User:         user,
		StartedAt:    now,
		LastActivity: now,
	}
	m.mu.Unlock()
	metrics.ChatSessionsActive.Inc()

	m.logger.Info("session started", "thread", threadID, "session", res.SessionID, "user", user)
	return res.Reply, nil
}

// resume feeds a follow-up into an existing session. Each resumed run
// reports a fresh session id; the session tracks the latest.
func (m *Manager) resume(ctx context.Context, threadID, sessionID, text, user string) (string, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	m.mu.Lock()
	s, ok := m.sessions[threadID]
	if !ok {
		m.mu.Unlock()
		return "", fmt.Errorf("session for thread %s has ended", threadID)
	}
	s.cancelRun = cancel
	s.LastActivity = m.now()
	m.mu.Unlock()

	res, err := m.runner.Run(runCtx, claude.RunOptions{
		Prompt:   userPrompt(user, text),
		ResumeID: sessionID,
		WorkDir:  m.workDir,
	})

	m.mu.Lock()
	if s, ok := m.sessions[threadID]; ok {
		s.cancelRun = nil
		s.LastActivity = m.now()
		if err == nil && res.SessionID != "" {
			s.SessionID = res.SessionID
		}
	}
	m.mu.Unlock()

	if err != nil {
		return "", fmt.Errorf("session follow-up failed: %w", err)
	}
	return res.Reply, nil
}

// end closes a thread's session, canceling any in-flight run. Reports
// whether a session existed.
func (m *Manager) end(threadID, reason string) bool {
	m.mu.Lock()
	s, ok := m.sessions[threadID]
	if ok {
		if s.cancelRun != nil {
			s.cancelRun()
		}
		delete(m.sessions, threadID)
	}
	m.mu.Unlock()

	if ok {
		metrics.ChatSessionsActive.Dec()
		m.logger.Info("session ended", "thread", threadID, "session", s.SessionID, "reason", reason)
	}
	return ok
}

func (m *Manager) reapLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(reapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.reapIdle()
		}
	}
}

// reapIdle evicts sessions idle past the timeout. Canceling the run
// context SIGTERMs any in-flight process; the runner escalates to SIGKILL
// after 5s on its own.
func (m *Manager) reapIdle() {
	now := m.now()
	var expired []*Session

	m.mu.Lock()
	for id, s := range m.sessions {
		if now.Sub(s.LastActivity) > m.idleTimeout {
			if s.cancelRun != nil {
				s.cancelRun()
			}
			delete(m.sessions, id)
			expired = append(expired, s)
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		metrics.ChatSessionsActive.Dec()
		m.logger.Info("session expired",
			"thread", s.ThreadID, "session", s.SessionID,
			"idle", now.Sub(s.LastActivity).Round(time.Second))
	}
}

// Close stops the reaper and ends every session.
func (m *Manager) Close() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()

	m.mu.Lock()
	for id, s := range m.sessions {
		if s.cancelRun != nil {
			s.cancelRun()
		}
		delete(m.sessions, id)
		metrics.ChatSessionsActive.Dec()
	}
	m.mu.Unlock()
}

// userPrompt prefixes the message with who sent it.
func userPrompt(user, text string) string {
	if user == "" {
		return text
	}
	return fmt.Sprintf("%s says: %s", user, text)
}
