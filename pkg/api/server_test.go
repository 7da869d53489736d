package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/herd-sh/herd/pkg/adapters"
	"github.com/herd-sh/herd/pkg/adapters/mock"
	"github.com/herd-sh/herd/pkg/bus"
	"github.com/herd-sh/herd/pkg/checkin"
	"github.com/herd-sh/herd/pkg/config"
	"github.com/herd-sh/herd/pkg/events"
	"github.com/herd-sh/herd/pkg/graph"
	"github.com/herd-sh/herd/pkg/memory"
	"github.com/herd-sh/herd/pkg/tier"
	"github.com/herd-sh/herd/pkg/tools"
)

type fakeChat struct {
	lastThread string
	lastText   string
	lastUser   string
	reply      string
	err        error
}

func (f *fakeChat) HandleMessage(_ context.Context, threadID, text, user string) (string, error) {
	f.lastThread, f.lastText, f.lastUser = threadID, text, user
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

type testEnv struct {
	srv  *Server
	deps Deps
	chat *fakeChat
}

// newTestEnv wires a server over a real bus and tool registry. The tool
// handler set deliberately has no operational store so herd_metrics is a
// ready-made expected-failure case.
func newTestEnv(t *testing.T, mutate func(*Deps)) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.ProjectPath = t.TempDir()

	b, err := bus.Open(filepath.Join(t.TempDir(), "bus.db"), tier.DefaultRoster())
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	h := tools.New(tools.Handlers{
		Config:   cfg,
		Roster:   tier.DefaultRoster(),
		Bus:      b,
		Checkins: checkin.NewRegistry(),
		Adapters: &adapters.Registry{},
		Events:   events.NewManager(),
	})

	chat := &fakeChat{reply: "on it"}
	deps := Deps{
		Config:   cfg,
		Tools:    tools.NewRegistry(h),
		Adapters: &adapters.Registry{Store: mock.NewStore()},
		Events:   events.NewManager(),
		Sessions: chat,
	}
	if mutate != nil {
		mutate(&deps)
	}
	return &testEnv{srv: NewServer(deps), deps: deps, chat: chat}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(w, req)

	var decoded map[string]any
	if w.Body.Len() > 0 && strings.Contains(w.Header().Get("Content-Type"), "json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded))
	}
	return w, decoded
}

func TestHealthReportsEverySurface(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) {
		d.Memory = memory.New(filepath.Join(t.TempDir(), "memory.db"), nil)
		d.Graph = graph.New(filepath.Join(t.TempDir(), "graph.db"))
	})

	w, body := env.do(t, http.MethodGet, "/health", "", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, body["version"])

	adaptersHealth := body["adapters"].(map[string]any)
	assert.Equal(t, "ok", adaptersHealth["store"])
	assert.Equal(t, "unavailable", adaptersHealth["tickets"])
	assert.Equal(t, "unavailable", adaptersHealth["notify"])
	assert.Equal(t, "unavailable", adaptersHealth["repo"])
	assert.Equal(t, "unavailable", adaptersHealth["agent"])

	stores := body["stores"].(map[string]any)
	assert.Equal(t, "ok", stores["operational"])
	assert.Equal(t, "ok", stores["vector"])
	assert.Equal(t, "ok", stores["graph"])
}

func TestHealthDegradesWithoutStore(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) {
		d.Adapters = &adapters.Registry{}
	})

	w, body := env.do(t, http.MethodGet, "/health", "", nil)

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "degraded", body["status"])
	stores := body["stores"].(map[string]any)
	assert.Equal(t, "unavailable", stores["operational"])
}

func TestBearerAuth(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) {
		d.Config.API.Token = "s3cret"
	})

	w, _ := env.do(t, http.MethodGet, "/api/v1/tools", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = env.do(t, http.MethodGet, "/api/v1/tools", "wrong", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = env.do(t, http.MethodGet, "/api/v1/tools", "s3cret", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// Health stays open for probes.
	w, _ = env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestBearerAuthDisabledWithoutToken(t *testing.T) {
	env := newTestEnv(t, nil)

	w, _ := env.do(t, http.MethodGet, "/api/v1/tools", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestListTools(t *testing.T) {
	env := newTestEnv(t, nil)

	w, body := env.do(t, http.MethodGet, "/api/v1/tools", "", nil)

	require.Equal(t, http.StatusOK, w.Code)
	specs := body["tools"].([]any)
	require.Len(t, specs, 17)
	first := specs[0].(map[string]any)
	assert.Equal(t, "herd_send", first["name"])
	assert.NotEmpty(t, first["description"])
}

func TestCallToolSuccessEnvelope(t *testing.T) {
	env := newTestEnv(t, nil)

	w, body := env.do(t, http.MethodPost, "/api/v1/tools/herd_send", "", map[string]any{
		"to":      "mason",
		"message": "hello",
	})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])
	assert.NotContains(t, body, "error")

	data := body["data"].(map[string]any)
	assert.NotEmpty(t, data["message_id"])
	assert.Equal(t, true, data["delivered"])
	assert.Equal(t, "mason", data["to"])
}

func TestCallToolExpectedFailureEnvelope(t *testing.T) {
	env := newTestEnv(t, nil)

	w, body := env.do(t, http.MethodPost, "/api/v1/tools/herd_metrics", "", map[string]any{
		"query": "headline",
	})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["success"])
	assert.Contains(t, body["error"], "store not configured")
	assert.NotContains(t, body, "data")
}

func TestCallToolUnknown(t *testing.T) {
	env := newTestEnv(t, nil)

	w, body := env.do(t, http.MethodPost, "/api/v1/tools/herd_nope", "", map[string]any{})

	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, false, body["success"])
	assert.Contains(t, body["error"], "herd_nope")
}

func TestCallToolRejectsBadJSON(t *testing.T) {
	env := newTestEnv(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tools/herd_send", strings.NewReader("{"))
	w := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChatMintsThreadID(t *testing.T) {
	env := newTestEnv(t, nil)

	w, body := env.do(t, http.MethodPost, "/api/v1/chat", "", map[string]any{
		"text": "status?",
		"user": "steve",
	})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "on it", body["reply"])
	assert.NotEmpty(t, body["thread_id"])
	assert.Equal(t, body["thread_id"], env.chat.lastThread)
	assert.Equal(t, "status?", env.chat.lastText)
	assert.Equal(t, "steve", env.chat.lastUser)
}

func TestChatKeepsCallerThreadID(t *testing.T) {
	env := newTestEnv(t, nil)

	w, body := env.do(t, http.MethodPost, "/api/v1/chat", "", map[string]any{
		"thread_id": "T-1",
		"text":      "how is the importer going?",
	})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "T-1", body["thread_id"])
	assert.Equal(t, "T-1", env.chat.lastThread)
}

func TestChatValidation(t *testing.T) {
	env := newTestEnv(t, nil)

	w, body := env.do(t, http.MethodPost, "/api/v1/chat", "", map[string]any{"text": "  "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, body["error"], "text is required")
}

func TestChatWithoutSessions(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) { d.Sessions = nil })

	w, _ := env.do(t, http.MethodPost, "/api/v1/chat", "", map[string]any{"text": "hi"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestChatUpstreamFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	env.chat.err = errors.New("agent runner exited early")

	w, body := env.do(t, http.MethodPost, "/api/v1/chat", "", map[string]any{"text": "hi"})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, body["error"], "exited early")
}

func TestEventStream(t *testing.T) {
	env := newTestEnv(t, nil)
	ts := httptest.NewServer(env.srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/events"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	require.Eventually(t, func() bool {
		return env.deps.Events.Subscribers() == 1
	}, time.Second, 5*time.Millisecond)

	env.deps.Events.Publish(events.TypeCheckin, "herd_checkin", map[string]any{"agent": "mason"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var evt events.Event
	require.NoError(t, conn.ReadJSON(&evt))
	assert.Equal(t, events.TypeCheckin, evt.Type)
	assert.Equal(t, "herd_checkin", evt.Source)
	assert.Equal(t, "mason", evt.Data["agent"])
}

func TestEventStreamOriginAllowlist(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) {
		d.Config.API.AllowedWSOrigins = []string{"https://herd.example"}
	})
	ts := httptest.NewServer(env.srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/events"

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	conn, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://herd.example"}})
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	conn.Close()
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)

	w, _ := env.do(t, http.MethodGet, "/metrics", "", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "herd_bus_depth")
}
