// Package linear backs the Tickets adapter port with the Linear GraphQL
// API. The client is hand-rolled over net/http; the API surface the
// runtime needs is four queries and three mutations, not worth a codegen
// dependency.
package linear

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const defaultEndpoint = "https://api.linear.app/graphql"

// Client executes GraphQL operations against Linear.
type Client struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
	logger     *slog.Logger
}

// NewClient creates a Linear API client.
func NewClient(apiKey string) *Client {
	return NewClientWithEndpoint(apiKey, defaultEndpoint)
}

// NewClientWithEndpoint creates a client that targets a custom endpoint.
// Useful for testing with a mock server.
func NewClientWithEndpoint(apiKey, endpoint string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		endpoint:   endpoint,
		apiKey:     apiKey,
		logger:     slog.Default().With("component", "linear-client"),
	}
}

// graphQLError is one entry from the response's errors array.
type graphQLError struct {
	Message string `json:"message"`
}

// execute posts one operation and decodes response.data into out.
func (c *Client) execute(ctx context.Context, query string, variables map[string]any, out any) error {
	payload, err := json.Marshal(map[string]any{
		"query":     query,
		"variables": variables,
	})
	if err != nil {
		return fmt.Errorf("encode graphql request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setAuthHeader(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("linear request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("Linear returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []graphQLError  `json:"errors"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("decode graphql response: %w", err)
	}
	if len(envelope.Errors) > 0 {
		msgs := make([]string, len(envelope.Errors))
		for i, e := range envelope.Errors {
			msgs[i] = e.Message
		}
		return fmt.Errorf("linear: %s", strings.Join(msgs, "; "))
	}

	if out != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("decode graphql data: %w", err)
		}
	}
	return nil
}

// setAuthHeader applies the key in the form Linear expects: personal API
// keys go in raw, OAuth access tokens get the Bearer prefix.
func (c *Client) setAuthHeader(req *http.Request) {
	if c.apiKey == "" {
		return
	}
	if strings.HasPrefix(c.apiKey, "lin_api_") {
		req.Header.Set("Authorization", c.apiKey)
		return
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
}
