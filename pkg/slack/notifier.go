// Package slack backs the Notify adapter port with a Slack workspace.
// Posts are masked before leaving the process; thread reads and history
// search round out the port so agents can follow decision threads.
package slack

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/herd-sh/herd/pkg/adapters"
	"github.com/herd-sh/herd/pkg/masking"
)

const searchWindow = 24 * time.Hour

// NotifierConfig holds the parameters needed to construct a Notifier.
type NotifierConfig struct {
	Token   string
	Channel string
}

// Notifier implements adapters.Notify and adapters.Searcher over the
// Slack Web API.
type Notifier struct {
	client  *Client
	channel string
	masker  *masking.Service
	logger  *slog.Logger
}

var (
	_ adapters.Notify   = (*Notifier)(nil)
	_ adapters.Searcher = (*Notifier)(nil)
)

// NewNotifier creates a Slack-backed notifier.
// Returns nil if Token or Channel is empty; the caller leaves the Notify
// slot unconfigured in that case.
func NewNotifier(cfg NotifierConfig, masker *masking.Service) *Notifier {
	if cfg.Token == "" || cfg.Channel == "" {
		return nil
	}
	return newNotifier(NewClient(cfg.Token), cfg.Channel, masker)
}

// NewNotifierWithClient creates a Notifier backed by a pre-built Client.
// Useful for testing with a mock API server.
func NewNotifierWithClient(client *Client, channel string, masker *masking.Service) *Notifier {
	return newNotifier(client, channel, masker)
}

func newNotifier(client *Client, channel string, masker *masking.Service) *Notifier {
	return &Notifier{
		client:  client,
		channel: channel,
		masker:  masker,
		logger:  slog.Default().With("component", "slack-notifier"),
	}
}

// Post sends a masked message to the given channel, falling back to the
// default channel when none is named.
func (n *Notifier) Post(ctx context.Context, message, channel, username, icon string) (adapters.PostResult, error) {
	if channel == "" {
		channel = n.channel
	}

	respChannel, ts, err := n.client.PostMessage(ctx, channel, n.masker.Mask(message), username, icon, "")
	if err != nil {
		return adapters.PostResult{}, err
	}
	return adapters.PostResult{MessageID: ts, Channel: respChannel, Timestamp: ts}, nil
}

// PostThread sends a masked reply under an existing message.
func (n *Notifier) PostThread(ctx context.Context, threadID, message, channel string) (adapters.PostResult, error) {
	if threadID == "" {
		return adapters.PostResult{}, fmt.Errorf("thread id is required")
	}
	if channel == "" {
		channel = n.channel
	}

	respChannel, ts, err := n.client.PostMessage(ctx, channel, n.masker.Mask(message), "", "", threadID)
	if err != nil {
		return adapters.PostResult{}, err
	}
	return adapters.PostResult{MessageID: ts, Channel: respChannel, Timestamp: ts}, nil
}

// ThreadReplies returns every message in a thread.
func (n *Notifier) ThreadReplies(ctx context.Context, channel, threadID string) ([]adapters.ThreadMessage, error) {
	if channel == "" {
		channel = n.channel
	}

	msgs, err := n.client.ThreadReplies(ctx, channel, threadID)
	if err != nil {
		return nil, err
	}

	out := make([]adapters.ThreadMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, adapters.ThreadMessage{
			User:      m.User,
			Text:      collectMessageText(m),
			Timestamp: m.Timestamp,
			ThreadID:  m.ThreadTimestamp,
		})
	}
	return out, nil
}

// SearchMessages scans recent default-channel history for the query.
func (n *Notifier) SearchMessages(ctx context.Context, query string, limit int) ([]adapters.ThreadMessage, error) {
	msgs, err := n.client.SearchHistory(ctx, n.channel, query, limit, searchWindow)
	if err != nil {
		return nil, err
	}

	out := make([]adapters.ThreadMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, adapters.ThreadMessage{
			User:      m.User,
			Text:      collectMessageText(m),
			Timestamp: m.Timestamp,
			ThreadID:  m.ThreadTimestamp,
		})
	}
	return out, nil
}
