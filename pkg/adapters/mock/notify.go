package mock

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/herd-sh/herd/pkg/adapters"
)

// Post is one recorded notification.
type Post struct {
	Message   string
	Channel   string
	Username  string
	Icon      string
	ThreadID  string
	Timestamp string
}

// Notify records posts instead of sending them. It also implements
// adapters.Searcher so search-dependent paths are testable.
type Notify struct {
	mu    sync.Mutex
	posts []Post
	seq   int

	Err error
}

var (
	_ adapters.Notify   = (*Notify)(nil)
	_ adapters.Searcher = (*Notify)(nil)
)

// NewNotify builds an empty notifier.
func NewNotify() *Notify {
	return &Notify{}
}

// Posts returns everything recorded so far.
func (m *Notify) Posts() []Post {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Post(nil), m.posts...)
}

func (m *Notify) record(p Post) adapters.PostResult {
	m.seq++
	p.Timestamp = fmt.Sprintf("1700000000.%06d", m.seq)
	m.posts = append(m.posts, p)
	return adapters.PostResult{MessageID: p.Timestamp, Channel: p.Channel, Timestamp: p.Timestamp}
}

func (m *Notify) Post(_ context.Context, message, channel, username, icon string) (adapters.PostResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return adapters.PostResult{}, m.Err
	}
	return m.record(Post{Message: message, Channel: channel, Username: username, Icon: icon}), nil
}

func (m *Notify) PostThread(_ context.Context, threadID, message, channel string) (adapters.PostResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return adapters.PostResult{}, m.Err
	}
	return m.record(Post{Message: message, Channel: channel, ThreadID: threadID}), nil
}

func (m *Notify) ThreadReplies(_ context.Context, channel, threadID string) ([]adapters.ThreadMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var out []adapters.ThreadMessage
	for _, p := range m.posts {
		if p.ThreadID == threadID && (channel == "" || p.Channel == channel) {
			out = append(out, adapters.ThreadMessage{Text: p.Message, Timestamp: p.Timestamp, ThreadID: p.ThreadID})
		}
	}
	return out, nil
}

func (m *Notify) SearchMessages(_ context.Context, query string, limit int) ([]adapters.ThreadMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var out []adapters.ThreadMessage
	for _, p := range m.posts {
		if strings.Contains(strings.ToLower(p.Message), strings.ToLower(query)) {
			out = append(out, adapters.ThreadMessage{Text: p.Message, Timestamp: p.Timestamp, ThreadID: p.ThreadID})
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}
