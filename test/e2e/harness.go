// Package e2e boots a complete herd instance — real bus, real sqlite
// stores, mock process control — and exercises it over the HTTP API.
package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/herd-sh/herd/pkg/adapters"
	"github.com/herd-sh/herd/pkg/adapters/mock"
	"github.com/herd-sh/herd/pkg/api"
	"github.com/herd-sh/herd/pkg/config"
	"github.com/herd-sh/herd/pkg/runtime"
)

// TestApp is one booted herd instance.
type TestApp struct {
	Config  *config.Config
	Runtime *runtime.Runtime
	Agent   *mock.Agent // replaces the subprocess spawner
	Notify  *mock.Notify

	BaseURL string
	WSURL   string

	httpSrv *httptest.Server
	t       *testing.T
}

type testAppConfig struct {
	mutate  func(*config.Config)
	notify  *mock.Notify
	tickets adapters.Tickets
}

// TestAppOption configures the app before boot.
type TestAppOption func(*testAppConfig)

// WithConfig mutates the default config before the runtime starts.
func WithConfig(mutate func(*config.Config)) TestAppOption {
	return func(c *testAppConfig) { c.mutate = mutate }
}

// WithNotifier injects a notify adapter; without one the instance runs
// unannounced, like a herd with no Slack token.
func WithNotifier(n *mock.Notify) TestAppOption {
	return func(c *testAppConfig) { c.notify = n }
}

// WithTickets injects a ticket tracker adapter.
func WithTickets(tr adapters.Tickets) TestAppOption {
	return func(c *testAppConfig) { c.tickets = tr }
}

// NewTestApp boots the runtime over temp directories and serves it on an
// ephemeral port. Everything shuts down with the test.
func NewTestApp(t *testing.T, opts ...TestAppOption) *TestApp {
	t.Helper()

	var tc testAppConfig
	for _, opt := range opts {
		opt(&tc)
	}

	cfg := config.Default()
	cfg.ProjectPath = t.TempDir()
	if tc.mutate != nil {
		tc.mutate(cfg)
	}

	rt, err := runtime.New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })

	// Process control is always mocked: scenarios assert lifecycle state,
	// not subprocess behavior.
	agent := mock.NewAgent()
	rt.Adapters.Agent = agent
	if tc.notify != nil {
		rt.Adapters.Notify = tc.notify
	}
	if tc.tickets != nil {
		rt.Adapters.Tickets = tc.tickets
	}

	srv := api.NewServer(api.Deps{
		Config:   cfg,
		Tools:    rt.Tools,
		Adapters: rt.Adapters,
		Memory:   rt.Memory,
		Graph:    rt.Graph,
		Events:   rt.Events,
		Sessions: rt.Sessions,
	})
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(hs.Close)

	return &TestApp{
		Config:  cfg,
		Runtime: rt,
		Agent:   agent,
		Notify:  tc.notify,
		BaseURL: hs.URL,
		WSURL:   "ws" + strings.TrimPrefix(hs.URL, "http"),
		httpSrv: hs,
		t:       t,
	}
}

// CallTool posts one tool invocation and returns the decoded envelope.
func (app *TestApp) CallTool(t *testing.T, name string, args map[string]any) map[string]any {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(args))

	resp, err := http.Post(app.BaseURL+"/api/v1/tools/"+name, "application/json", &buf)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode, "tool %s", name)

	var envelope map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	return envelope
}

// CallToolData asserts the call succeeded and returns its data payload.
func (app *TestApp) CallToolData(t *testing.T, name string, args map[string]any) map[string]any {
	t.Helper()

	envelope := app.CallTool(t, name, args)
	require.Equal(t, true, envelope["success"], "tool %s: %v", name, envelope["error"])
	data, _ := envelope["data"].(map[string]any)
	return data
}

// Health fetches the health envelope.
func (app *TestApp) Health(t *testing.T) map[string]any {
	t.Helper()

	resp, err := http.Get(app.BaseURL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

// DialEvents opens the websocket event stream and waits for the
// subscription to register so published events cannot race past it.
func (app *TestApp) DialEvents(t *testing.T) *websocket.Conn {
	t.Helper()

	conn, resp, err := websocket.DefaultDialer.Dial(app.WSURL+"/ws/events", nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool {
		return app.Runtime.Events.Subscribers() > 0
	}, time.Second, 5*time.Millisecond)
	return conn
}

// Messages drained from a checkin or herd_get_messages data payload.
func messagesOf(t *testing.T, data map[string]any) []map[string]any {
	t.Helper()

	raw, ok := data["messages"].([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(raw))
	for _, m := range raw {
		out = append(out, m.(map[string]any))
	}
	return out
}
