// Package events is the in-process pub/sub feeding the /ws/events stream.
// Publishers never block: subscribers that stop draining lose events, and
// the drop counter keeps score.
package events

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// subscriberBuffer is each subscriber's channel capacity. A full buffer
// drops the event for that subscriber only.
const subscriberBuffer = 64

// Common event types published by the runtime.
const (
	TypeToolCompleted  = "tool.completed"
	TypeToolFailed     = "tool.failed"
	TypeMessageSent    = "message.sent"
	TypeCheckin        = "checkin.recorded"
	TypeAgentSpawned   = "agent.spawned"
	TypeAgentStopped   = "agent.stopped"
	TypeSessionStarted = "session.started"
	TypeSessionEnded   = "session.ended"
)

// Event is one runtime occurrence pushed to stream subscribers.
type Event struct {
	Type      string         `json:"type"`
	Source    string         `json:"source,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Manager fans events out to subscriber channels.
type Manager struct {
	mu          sync.RWMutex
	subscribers map[string]chan Event
	dropped     atomic.Int64
	logger      *slog.Logger
	now         func() time.Time
}

// NewManager builds an empty manager.
func NewManager() *Manager {
	return &Manager{
		subscribers: make(map[string]chan Event),
		logger:      slog.Default().With("component", "events"),
		now:         time.Now,
	}
}

// Subscribe registers a buffered channel and returns its id for later
// Unsubscribe. The channel closes on Unsubscribe.
func (m *Manager) Subscribe() (string, <-chan Event) {
	id := uuid.NewString()
	ch := make(chan Event, subscriberBuffer)
	m.mu.Lock()
	m.subscribers[id] = ch
	m.mu.Unlock()
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel. Unknown ids are
// a no-op.
func (m *Manager) Unsubscribe(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.subscribers[id]
	if !ok {
		return
	}
	delete(m.subscribers, id)
	close(ch)
}

// Publish stamps and fans out the event without blocking. Full subscriber
// buffers drop it.
func (m *Manager) Publish(eventType, source string, data map[string]any) {
	evt := Event{
		Type:      eventType,
		Source:    source,
		Data:      data,
		Timestamp: m.now().UTC(),
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	for id, ch := range m.subscribers {
		select {
		case ch <- evt:
		default:
			m.dropped.Add(1)
			m.logger.Debug("subscriber buffer full, event dropped",
				"subscriber", id, "type", eventType)
		}
	}
}

// Subscribers counts registered channels.
func (m *Manager) Subscribers() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscribers)
}

// Dropped returns how many events were lost to full buffers since start.
func (m *Manager) Dropped() int64 {
	return m.dropped.Load()
}
