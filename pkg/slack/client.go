package slack

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	goslack "github.com/slack-go/slack"
)

const postTimeout = 10 * time.Second

// Client is a thin wrapper around the slack-go SDK.
type Client struct {
	api    *goslack.Client
	logger *slog.Logger
}

// NewClient creates a new Slack API client.
func NewClient(token string) *Client {
	return &Client{
		api:    goslack.New(token),
		logger: slog.Default().With("component", "slack-client"),
	}
}

// NewClientWithAPIURL creates a Slack API client that targets a custom API URL.
// Useful for testing with a mock server.
func NewClientWithAPIURL(token, apiURL string) *Client {
	return &Client{
		api:    goslack.New(token, goslack.OptionAPIURL(apiURL)),
		logger: slog.Default().With("component", "slack-client"),
	}
}

// PostMessage sends a message to a channel. If threadTS is non-empty, the
// message is posted as a threaded reply. Returns the channel and message
// timestamp, which together identify the post for later threading.
func (c *Client) PostMessage(ctx context.Context, channel, text, username, icon, threadTS string) (string, string, error) {
	ctx, cancel := context.WithTimeout(ctx, postTimeout)
	defer cancel()

	opts := []goslack.MsgOption{
		goslack.MsgOptionText(text, false),
	}
	if username != "" {
		opts = append(opts, goslack.MsgOptionUsername(username))
	}
	if icon != "" {
		opts = append(opts, goslack.MsgOptionIconEmoji(icon))
	}
	if threadTS != "" {
		opts = append(opts, goslack.MsgOptionTS(threadTS))
	}

	respChannel, ts, err := c.api.PostMessageContext(ctx, channel, opts...)
	if err != nil {
		return "", "", fmt.Errorf("chat.postMessage failed: %w", err)
	}
	return respChannel, ts, nil
}

// ThreadReplies fetches every message in a thread, the root included.
func (c *Client) ThreadReplies(ctx context.Context, channel, threadTS string) ([]goslack.Message, error) {
	params := &goslack.GetConversationRepliesParameters{
		ChannelID: channel,
		Timestamp: threadTS,
		Limit:     200,
	}

	var all []goslack.Message
	for {
		msgs, hasMore, nextCursor, err := c.api.GetConversationRepliesContext(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("conversations.replies failed: %w", err)
		}
		all = append(all, msgs...)
		if !hasMore {
			return all, nil
		}
		params.Cursor = nextCursor
	}
}

// SearchHistory scans recent channel history for messages containing the
// query text. Matching is normalized substring search; bot tokens cannot
// use the search API, so this is the search the runtime can actually do.
func (c *Client) SearchHistory(ctx context.Context, channel, query string, limit int, window time.Duration) ([]goslack.Message, error) {
	oldest := fmt.Sprintf("%d", time.Now().Add(-window).Unix())

	params := &goslack.GetConversationHistoryParameters{
		ChannelID: channel,
		Oldest:    oldest,
		Limit:     200,
	}
	history, err := c.api.GetConversationHistoryContext(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("conversations.history failed: %w", err)
	}

	normalizedQuery := normalizeText(query)
	var hits []goslack.Message
	for _, msg := range history.Messages {
		text := collectMessageText(msg)
		if strings.Contains(normalizeText(text), normalizedQuery) {
			hits = append(hits, msg)
			if limit > 0 && len(hits) >= limit {
				break
			}
		}
	}
	return hits, nil
}
