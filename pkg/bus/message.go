package bus

import (
	"time"
)

// Message priorities. Priority is advisory; it does not reorder delivery.
const (
	PriorityNormal = "normal"
	PriorityUrgent = "urgent"
)

// TTL is how long an unconsumed message stays deliverable. Expired messages
// are pruned from both tiers on the next read.
const TTL = time.Hour

// Message is a bus message. Immutable after send except for ReadBy, which
// accumulates reader keys for @everyone broadcasts.
type Message struct {
	ID       string    `json:"id"`
	Seq      uint64    `json:"seq"`
	From     string    `json:"from_addr"`
	To       string    `json:"to_addr"`
	Body     string    `json:"body"`
	Type     string    `json:"type"`
	Priority string    `json:"priority"`
	SentAt   time.Time `json:"sent_at"`
	ReadBy   []string  `json:"read_by,omitempty"`
}

// expired reports whether the message has outlived the TTL at the given time.
func (m *Message) expired(now time.Time) bool {
	return now.Sub(m.SentAt) >= TTL
}

// readBy reports whether the reader key is already in the read set.
func (m *Message) readBy(key string) bool {
	for _, k := range m.ReadBy {
		if k == key {
			return true
		}
	}
	return false
}

// markRead adds the reader key to the read set if absent.
func (m *Message) markRead(key string) {
	if !m.readBy(key) {
		m.ReadBy = append(m.ReadBy, key)
	}
}

// clone returns a copy safe to hand to callers.
func (m *Message) clone() Message {
	out := *m
	if m.ReadBy != nil {
		out.ReadBy = append([]string(nil), m.ReadBy...)
	}
	return out
}
