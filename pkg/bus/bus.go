// Package bus is the in-process message bus with a durable on-disk mirror.
//
// Two tiers: an ordered in-memory hot list for sub-millisecond delivery, and
// a bbolt mirror keyed by message id so undelivered messages survive a
// restart. Sends write to both; consumption removes from both. The mirror is
// best-effort: a failed disk write keeps the message in memory and logs a
// warning instead of failing the send.
package bus

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/herd-sh/herd/pkg/address"
	"github.com/herd-sh/herd/pkg/metrics"
	"github.com/herd-sh/herd/pkg/tier"
)

var messagesBucket = []byte("messages")

// Bus routes messages between agents. All operations serialize on one lock;
// reads are O(n) in queue depth, which is fine at coordination volumes.
type Bus struct {
	mu     sync.Mutex
	hot    []*Message
	seq    uint64
	db     *bolt.DB
	roster *tier.Roster
	now    func() time.Time // swapped in tests
}

// Open creates the mirror file (and parent directories) if needed and
// rehydrates the hot list from it, discarding entries older than the TTL and
// any that no longer unmarshal.
func Open(path string, roster *tier.Roster) (*Bus, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating bus directory: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bus mirror: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(messagesBucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating messages bucket: %w", err)
	}

	b := &Bus{db: db, roster: roster, now: time.Now}
	if err := b.rehydrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	metrics.BusDepth.Set(float64(len(b.hot)))
	return b, nil
}

// rehydrate loads live messages from the mirror into the hot list in send
// order. Expired and corrupt entries are removed from disk and skipped.
func (b *Bus) rehydrate() error {
	now := b.now().UTC()
	var stale [][]byte

	err := b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(messagesBucket)
		err := bkt.ForEach(func(k, v []byte) error {
			var m Message
			if err := json.Unmarshal(v, &m); err != nil {
				slog.Warn("Dropping corrupt bus mirror entry", "key", string(k), "error", err)
				stale = append(stale, append([]byte(nil), k...))
				return nil
			}
			if m.expired(now) {
				stale = append(stale, append([]byte(nil), k...))
				return nil
			}
			b.hot = append(b.hot, &m)
			if m.Seq > b.seq {
				b.seq = m.Seq
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := bkt.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("rehydrating bus: %w", err)
	}

	sort.Slice(b.hot, func(i, j int) bool { return b.hot[i].Seq < b.hot[j].Seq })
	if n := len(b.hot); n > 0 {
		slog.Info("Bus rehydrated from mirror", "messages", n)
	}
	return nil
}

// Send enqueues a message and mirrors it to disk. The returned message
// carries the assigned id and send time. A mirror write failure is logged
// and absorbed; the message still delivers within this process lifetime.
func (b *Bus) Send(from, to, body, msgType, priority string) (Message, error) {
	if msgType == "" {
		msgType = tier.TypeDirective
	}
	if priority == "" {
		priority = PriorityNormal
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	m := &Message{
		ID:       uuid.New().String(),
		Seq:      b.seq,
		From:     from,
		To:       to,
		Body:     body,
		Type:     msgType,
		Priority: priority,
		SentAt:   b.now().UTC(),
	}
	b.hot = append(b.hot, m)
	b.mirrorPut(m)

	metrics.MessagesSent.WithLabelValues(msgType).Inc()
	metrics.BusDepth.Set(float64(len(b.hot)))
	return m.clone(), nil
}

// Read drains every message deliverable to the caller, in FIFO send order.
//
// Delivery rules:
//   - direct name: agent matches, no instance on the address, team empty or
//     equal to the caller's team;
//   - name@team / name.inst@team: team (and instance, when present) must
//     match exactly;
//   - @anyone: consumed by the first non-mechanical reader whose team
//     matches the scope;
//   - @everyone: delivered once per reader key (instance id, or agent code
//     when the caller has no instance); the message stays until it expires;
//   - leaders additionally consume team-scoped messages addressed to other
//     codes on their team. A leader is a qualified @anyone consumer too:
//     first read wins, leader included.
func (b *Bus) Read(agent, instance, team string) []Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pruneLocked()

	readerKey := instance
	if readerKey == "" {
		readerKey = agent
	}
	isLeader := b.roster.IsLeader(agent)
	isMechanical := b.roster.IsMechanical(agent)

	var delivered []Message
	var remaining []*Message
	for _, m := range b.hot {
		to := address.Parse(m.To)
		teamOK := to.Team == "" || to.Team == team

		switch {
		case to.IsAnyone():
			if isMechanical || !teamOK {
				remaining = append(remaining, m)
				continue
			}
			delivered = append(delivered, m.clone())
			b.mirrorDelete(m.ID)

		case to.IsEveryone():
			if !teamOK || m.readBy(readerKey) {
				remaining = append(remaining, m)
				continue
			}
			if b.isSender(m, agent, instance) {
				// Senders never receive their own broadcast; their key
				// joins the read set on this first encounter.
				m.markRead(readerKey)
				b.mirrorPut(m)
				remaining = append(remaining, m)
				continue
			}
			m.markRead(readerKey)
			b.mirrorPut(m)
			delivered = append(delivered, m.clone())
			remaining = append(remaining, m)

		case to.Agent == agent:
			if to.Instance != "" && to.Instance != instance {
				remaining = append(remaining, m)
				continue
			}
			if !teamOK {
				remaining = append(remaining, m)
				continue
			}
			delivered = append(delivered, m.clone())
			b.mirrorDelete(m.ID)

		case isLeader && to.Team != "" && to.Team == team:
			// Leader visibility: team-scoped traffic for other codes.
			delivered = append(delivered, m.clone())
			b.mirrorDelete(m.ID)

		default:
			remaining = append(remaining, m)
		}
	}
	b.hot = remaining

	metrics.MessagesDelivered.Add(float64(len(delivered)))
	metrics.BusDepth.Set(float64(len(b.hot)))
	return delivered
}

// isSender reports whether the caller is the message's sender. Instance ids
// disambiguate multiple incarnations of the same code.
func (b *Bus) isSender(m *Message, agent, instance string) bool {
	from := address.Parse(m.From)
	return from.Agent == agent && from.Instance == instance
}

// Prune drops expired messages outside the read path, so queues drain even
// when nobody reads. Returns the number of messages dropped.
func (b *Bus) Prune() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := b.pruneLocked()
	metrics.BusDepth.Set(float64(len(b.hot)))
	return n
}

// pruneLocked drops hot-list entries older than the TTL and removes their
// mirror keys. Caller holds the lock.
func (b *Bus) pruneLocked() int {
	now := b.now().UTC()
	kept := b.hot[:0]
	expired := 0
	for _, m := range b.hot {
		if m.expired(now) {
			b.mirrorDelete(m.ID)
			expired++
			continue
		}
		kept = append(kept, m)
	}
	b.hot = kept
	if expired > 0 {
		metrics.MessagesExpired.Add(float64(expired))
		slog.Debug("Pruned expired messages", "count", expired)
	}
	return expired
}

// Depth returns the current hot-list size.
func (b *Bus) Depth() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.hot)
}

// Close releases the mirror handle.
func (b *Bus) Close() error {
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}

// Available reports whether the durable mirror is open.
func (b *Bus) Available() bool {
	return b != nil && b.db != nil
}

func (b *Bus) mirrorPut(m *Message) {
	data, err := json.Marshal(m)
	if err != nil {
		slog.Warn("Failed to encode message for mirror", "message_id", m.ID, "error", err)
		return
	}
	err = b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(messagesBucket).Put([]byte(m.ID), data)
	})
	if err != nil {
		slog.Warn("Bus mirror write failed; message is memory-only", "message_id", m.ID, "error", err)
	}
}

func (b *Bus) mirrorDelete(id string) {
	err := b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(messagesBucket).Delete([]byte(id))
	})
	if err != nil {
		slog.Warn("Bus mirror delete failed", "message_id", id, "error", err)
	}
}
