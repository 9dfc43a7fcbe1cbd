package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sidekick/internal/agent"
	"sidekick/internal/bus"
	"sidekick/internal/runlog"
	"sidekick/internal/subagent"
)

const secret = "test-secret"

func newServer(t *testing.T, cfg Config, opts ...Option) (*Server, *bus.MessageBus) {
	t.Helper()
	if cfg.Secret == "" {
		cfg.Secret = secret
	}
	b := bus.New(8)
	return NewServer(cfg, b, opts...), b
}

func do(t *testing.T, s *Server, method, path, body string, auth bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if auth {
		req.Header.Set("Authorization", "Bearer "+s.Secret())
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestNotifyAccepted(t *testing.T) {
	s, b := newServer(t, Config{DefaultChannel: "telegram", DefaultChatID: "42"})

	rec := do(t, s, http.MethodPost, "/notify", `{"message":"build finished"}`, true)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "accepted", decode(t, rec)["status"])

	msg, err := b.ConsumeInbound(context.Background())
	require.NoError(t, err)
	assert.Equal(t, bus.SystemChannel, msg.Channel)
	assert.Equal(t, "webhook", msg.SenderID)
	assert.Equal(t, "telegram:42", msg.ChatID)
	assert.Equal(t, "build finished", msg.Content)
}

func TestNotifyExplicitDestination(t *testing.T) {
	s, b := newServer(t, Config{DefaultChannel: "telegram", DefaultChatID: "42"})

	rec := do(t, s, http.MethodPost, "/notify", `{"message":"hi","channel":"cli","chat_id":"direct"}`, true)
	require.Equal(t, http.StatusAccepted, rec.Code)

	msg, err := b.ConsumeInbound(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "cli:direct", msg.ChatID)
}

func TestNotifyErrors(t *testing.T) {
	tests := []struct {
		name   string
		cfg    Config
		body   string
		auth   bool
		status int
		errMsg string
	}{
		{name: "no auth", body: `{"message":"x"}`, status: http.StatusUnauthorized, errMsg: "unauthorized"},
		{name: "invalid json", body: `{`, auth: true, status: http.StatusBadRequest, errMsg: "invalid JSON body"},
		{name: "missing message", body: `{"message":"  "}`, auth: true, status: http.StatusBadRequest, errMsg: "message is required"},
		{name: "no destination", body: `{"message":"x"}`, auth: true, status: http.StatusBadRequest, errMsg: "no destination"},
		{name: "no chat id", cfg: Config{DefaultChannel: "telegram"}, body: `{"message":"x"}`, auth: true, status: http.StatusBadRequest, errMsg: "no destination"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, b := newServer(t, tt.cfg)
			rec := do(t, s, http.MethodPost, "/notify", tt.body, tt.auth)
			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, decode(t, rec)["error"], tt.errMsg)
			assert.Equal(t, 0, b.InboundLen())
		})
	}
}

func TestNotifyWrongSecret(t *testing.T) {
	s, _ := newServer(t, Config{DefaultChannel: "cli", DefaultChatID: "direct"})
	req := httptest.NewRequest(http.MethodPost, "/notify", strings.NewReader(`{"message":"x"}`))
	req.Header.Set("Authorization", "Bearer wrong")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGeneratedSecret(t *testing.T) {
	a := NewServer(Config{}, bus.New(1))
	b := NewServer(Config{}, bus.New(1))
	assert.Len(t, a.Secret(), 32)
	assert.NotEqual(t, a.Secret(), b.Secret())
}

func TestHealth(t *testing.T) {
	s, _ := newServer(t, Config{})
	rec := do(t, s, http.MethodGet, "/health", "", false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])
}

type fakeSubagents struct {
	tasks     []subagent.TaskInfo
	cancelled []string
}

func (f *fakeSubagents) RunningCount() int             { return len(f.tasks) }
func (f *fakeSubagents) Running() []subagent.TaskInfo { return f.tasks }
func (f *fakeSubagents) Cancel(id string) bool {
	for _, t := range f.tasks {
		if t.ID == id {
			f.cancelled = append(f.cancelled, id)
			return true
		}
	}
	return false
}

func TestSubagentEndpoints(t *testing.T) {
	subs := &fakeSubagents{tasks: []subagent.TaskInfo{{ID: "abcd1234", Label: "research", Channel: "cli", ChatID: "direct"}}}
	s, _ := newServer(t, Config{}, WithSubagents(subs))

	rec := do(t, s, http.MethodGet, "/v1/subagents", "", false)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, float64(1), body["running"])
	tasks := body["tasks"].([]any)
	require.Len(t, tasks, 1)
	assert.Equal(t, "abcd1234", tasks[0].(map[string]any)["id"])

	assert.Equal(t, http.StatusUnauthorized, do(t, s, http.MethodDelete, "/v1/subagents/abcd1234", "", false).Code)
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodDelete, "/v1/subagents/missing", "", true).Code)
	assert.Equal(t, http.StatusAccepted, do(t, s, http.MethodDelete, "/v1/subagents/abcd1234", "", true).Code)
	assert.Equal(t, []string{"abcd1234"}, subs.cancelled)
}

func TestSubagentsUnavailable(t *testing.T) {
	s, _ := newServer(t, Config{})
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/v1/subagents", "", false).Code)
}

type fakeRuns struct {
	limit int
	runs  []runlog.Run
}

func (f *fakeRuns) Recent(_ context.Context, limit int) ([]runlog.Run, error) {
	f.limit = limit
	return f.runs, nil
}

func TestListRuns(t *testing.T) {
	runs := &fakeRuns{runs: []runlog.Run{{ID: "r1", Status: "completed", FinishedAt: time.Now()}}}
	s, _ := newServer(t, Config{}, WithRunHistory(runs))

	rec := do(t, s, http.MethodGet, "/v1/runs?limit=5", "", false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, runs.limit)
	assert.Len(t, decode(t, rec)["runs"], 1)

	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/v1/runs?limit=x", "", false).Code)
}

type fakeChat struct {
	err error
}

func (f *fakeChat) ProcessStream(_ context.Context, content, channel, chatID string, emit func(agent.Event)) (string, error) {
	emit(agent.Event{Type: agent.EventToolCall, Data: map[string]any{"name": "list_dir"}})
	emit(agent.Event{Type: agent.EventToolResult, Data: map[string]string{"name": "list_dir", "content": "a.txt"}})
	if f.err != nil {
		return "", f.err
	}
	return "echo: " + content + " @ " + channel + ":" + chatID, nil
}

func TestChatStreamsEvents(t *testing.T) {
	s, _ := newServer(t, Config{}, WithChat(&fakeChat{}))

	rec := do(t, s, http.MethodPost, "/v1/chat", `{"session_id":"s1","message":"hello"}`, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, "id: 1\nevent: tool_call\n")
	assert.Contains(t, body, "id: 2\nevent: tool_result\n")
	assert.Contains(t, body, "id: 3\nevent: done\ndata: {\"content\":\"echo: hello @ api:s1\"}\n\n")
}

func TestChatErrors(t *testing.T) {
	s, _ := newServer(t, Config{}, WithChat(&fakeChat{err: errors.New("provider down")}))

	assert.Equal(t, http.StatusUnauthorized, do(t, s, http.MethodPost, "/v1/chat", `{}`, false).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, "/v1/chat", `{`, true).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, "/v1/chat", `{"session_id":"s"}`, true).Code)

	rec := do(t, s, http.MethodPost, "/v1/chat", `{"session_id":"s","message":"m"}`, true)
	assert.Contains(t, rec.Body.String(), "event: error\ndata: {\"error\":\"provider down\"}")
}

type routeChannel struct{}

func (routeChannel) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /webhook/test", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
}

func TestChannelRoutes(t *testing.T) {
	s, _ := newServer(t, Config{}, WithRoutes(routeChannel{}))
	assert.Equal(t, http.StatusTeapot, do(t, s, http.MethodPost, "/webhook/test", "", false).Code)
}

func TestListenAndServeStopsOnCancel(t *testing.T) {
	s, _ := newServer(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
