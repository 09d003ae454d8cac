package server

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskpulse-backend/internal/auth"
	"taskpulse-backend/internal/chat"
	"taskpulse-backend/internal/enrichment"
	"taskpulse-backend/internal/realtime"
	"taskpulse-backend/internal/tasks"
)

type stubReplier struct {
	ReplyFunc func(ctx context.Context, msg string) (string, error)
}

func (s *stubReplier) Reply(ctx context.Context, msg string) (string, error) {
	return s.ReplyFunc(ctx, msg)
}

type testApp struct {
	srv   *httptest.Server
	relay *realtime.Relay
}

func newTestApp(t *testing.T, replier chat.Replier, secret []byte) *testApp {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	store := tasks.NewMemoryStore()
	broker := realtime.NewBroker(logger)
	store.OnChange(broker.PublishTaskChange)

	relay := realtime.NewRelay(broker, time.Hour, logger)
	if replier == nil {
		replier = &stubReplier{ReplyFunc: func(context.Context, string) (string, error) { return "ok", nil }}
	}
	router := NewRouter(Deps{
		Tasks:          tasks.NewService(store, enrichment.Disabled{}, nil, logger),
		Relay:          relay,
		Chat:           replier,
		EnrichmentAuth: auth.New(secret, auth.SubjectEnrichment, logger),
		Logger:         logger,
	})

	srv := httptest.NewServer(CORS(nil, router))
	t.Cleanup(srv.Close)
	return &testApp{srv: srv, relay: relay}
}

func (a *testApp) do(t *testing.T, method, path, body string, header ...string) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, a.srv.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	resp, err := a.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

type sseFrame struct {
	Type    string          `json:"type"`
	Message string          `json:"message"`
	Event   string          `json:"event"`
	ID      string          `json:"id"`
	Data    json.RawMessage `json:"data"`
}

func readFrame(t *testing.T, r *bufio.Reader) sseFrame {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		var f sseFrame
		require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(strings.TrimPrefix(line, "data:"))), &f))
		return f
	}
}

func TestEndToEnd_TaskLifecycleWithStream(t *testing.T) {
	app := newTestApp(t, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, app.srv.URL+"/tasks/stream", nil)
	require.NoError(t, err)
	stream, err := app.srv.Client().Do(req)
	require.NoError(t, err)
	defer stream.Body.Close()
	frames := bufio.NewReader(stream.Body)
	require.Equal(t, "connected", readFrame(t, frames).Type)

	resp, body := app.do(t, http.MethodPost, "/tasks", `{"title":"Buy milk"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created tasks.Task
	require.NoError(t, json.Unmarshal(body, &created))
	assert.True(t, created.NeedsEnrichment)
	assert.Equal(t, tasks.StatusPending, created.Status)

	insert := readFrame(t, frames)
	assert.Equal(t, "task_updated", insert.Type)
	assert.Equal(t, "INSERT", insert.Event)
	assert.Equal(t, created.ID, insert.ID)

	_, body = app.do(t, http.MethodGet, "/tasks", "")
	var list []tasks.Task
	require.NoError(t, json.Unmarshal(body, &list))
	require.NotEmpty(t, list)
	assert.Equal(t, created.ID, list[0].ID)

	resp, body = app.do(t, http.MethodPatch, "/tasks/"+created.ID, `{"status":"done"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var updated tasks.Task
	require.NoError(t, json.Unmarshal(body, &updated))
	assert.Equal(t, tasks.StatusDone, updated.Status)
	assert.True(t, updated.NeedsEnrichment)

	update := readFrame(t, frames)
	assert.Equal(t, "UPDATE", update.Event)
	assert.Equal(t, created.ID, update.ID)

	_, body = app.do(t, http.MethodGet, "/tasks/stats", "")
	assert.JSONEq(t, `{"created":1,"done":1,"progress":100}`, string(body))

	resp, _ = app.do(t, http.MethodDelete, "/tasks/"+created.ID, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "DELETE", readFrame(t, frames).Event)

	cancel()
	assert.Eventually(t, func() bool { return app.relay.Active() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestRouter_TaskErrors(t *testing.T) {
	app := newTestApp(t, nil, nil)

	resp, body := app.do(t, http.MethodPost, "/tasks", `{"title":"   "}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), `"error"`)

	resp, _ = app.do(t, http.MethodPost, "/tasks", `{bad json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = app.do(t, http.MethodGet, "/tasks/not-a-uuid", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = app.do(t, http.MethodPatch, "/tasks/6f1c1f7e-8d0c-4a8e-9d7a-1f5e2b1c0a11", `{"status":"done"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = app.do(t, http.MethodDelete, "/tasks/6f1c1f7e-8d0c-4a8e-9d7a-1f5e2b1c0a11", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"success":true}`, string(body))

	resp, _ = app.do(t, http.MethodGet, "/tasks?status=archived", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = app.do(t, http.MethodPut, "/tasks", `{}`)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestRouter_EnrichmentRequiresTokenWhenConfigured(t *testing.T) {
	secret := []byte("callback-secret")
	app := newTestApp(t, nil, secret)

	_, body := app.do(t, http.MethodPost, "/tasks", `{"title":"Plan trip"}`)
	var created tasks.Task
	require.NoError(t, json.Unmarshal(body, &created))

	path := "/tasks/" + created.ID + "/enrichment"
	payload := `{"description":"Pick dates","steps":[{"order":1,"text":"Check calendar"}]}`

	resp, _ := app.do(t, http.MethodPatch, path, payload)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	tok, err := auth.GenerateToken(secret, auth.SubjectEnrichment, time.Minute)
	require.NoError(t, err)
	resp, body = app.do(t, http.MethodPatch, path, payload, "Authorization", "Bearer "+tok)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var enriched tasks.Task
	require.NoError(t, json.Unmarshal(body, &enriched))
	assert.False(t, enriched.NeedsEnrichment)
	require.NotNil(t, enriched.Description)
	assert.Equal(t, "Pick dates", *enriched.Description)
	assert.NotNil(t, enriched.AILastRunAt)
}

func TestRouter_Chat(t *testing.T) {
	replier := &stubReplier{ReplyFunc: func(_ context.Context, msg string) (string, error) {
		return "echo: " + msg, nil
	}}
	app := newTestApp(t, replier, nil)

	for _, path := range []string{"/chat", "/chat/typebot"} {
		resp, body := app.do(t, http.MethodPost, path, `{"text":"hello"}`)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.JSONEq(t, `{"reply":"echo: hello"}`, string(body))
	}
}

func TestRouter_CORSPreflight(t *testing.T) {
	app := newTestApp(t, nil, nil)

	resp, _ := app.do(t, http.MethodOptions, "/tasks", "",
		"Origin", "http://localhost:3000",
		"Access-Control-Request-Method", http.MethodPatch)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), http.MethodPatch)
}

func TestRouter_Health(t *testing.T) {
	app := newTestApp(t, nil, nil)
	resp, body := app.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))
}

func TestRecover(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	h := Recover(logger, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Internal server error"}`, rec.Body.String())
}

func TestNew_BaseContextCancelsStreams(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	relay := realtime.NewRelay(realtime.NewBroker(logger), time.Hour, logger)

	base, cancel := context.WithCancel(context.Background())
	srv := New(base, Options{Addr: "127.0.0.1:0"}, relay)

	ts := httptest.NewUnstartedServer(srv.Handler)
	ts.Config.BaseContext = srv.BaseContext
	ts.Start()
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "connected", readFrame(t, bufio.NewReader(resp.Body)).Type)
	assert.Eventually(t, func() bool { return relay.Active() == 1 }, time.Second, 10*time.Millisecond)

	cancel()
	assert.Eventually(t, func() bool { return relay.Active() == 0 }, 2*time.Second, 10*time.Millisecond)
}
