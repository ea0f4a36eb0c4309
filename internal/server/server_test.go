package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phobologic/pytutor/internal/cache"
	"github.com/phobologic/pytutor/internal/config"
	"github.com/phobologic/pytutor/internal/model"
	"github.com/phobologic/pytutor/internal/querylog"
)

func newServer(t *testing.T, mutate func(*Options)) *Server {
	t.Helper()
	opts := Options{Config: config.Default(), Logger: zerolog.Nop()}
	if mutate != nil {
		mutate(&opts)
	}
	return New(opts)
}

func postJSON(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/exec", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) model.Trace {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var trace model.Trace
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &trace))
	return trace
}

func TestExecJSON(t *testing.T) {
	t.Parallel()

	h := newServer(t, nil).Handler()
	rec := postJSON(t, h, `{"user_script": "x = 1\ny = x + 1", "request": "execute"}`)
	trace := decode(t, rec)
	require.Len(t, trace, 3)
	assert.Equal(t, model.StepLine, trace[0].Event)
	assert.True(t, trace[2].IsTopLevelReturn())
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestExecForm(t *testing.T) {
	t.Parallel()

	h := newServer(t, nil).Handler()
	form := url.Values{"user_script": {"print('hi')\n"}}
	req := httptest.NewRequest(http.MethodPost, "/exec", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	trace := decode(t, rec)
	assert.Equal(t, "hi\n", *trace[len(trace)-1].Stdout)
}

func TestExecBadRequests(t *testing.T) {
	t.Parallel()

	h := newServer(t, nil).Handler()
	tests := []struct {
		name string
		body string
		want string
	}{
		{"not json", `{`, "decoding request"},
		{"missing script", `{"request": "execute"}`, "missing user_script"},
		{"unknown request", `{"user_script": "", "request": "delete"}`, "unknown request"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := postJSON(t, h, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.want)
		})
	}
}

func TestExecBodyLimit(t *testing.T) {
	t.Parallel()

	h := newServer(t, func(o *Options) { o.Config.Server.MaxBodyBytes = 16 }).Handler()
	rec := postJSON(t, h, `{"user_script": "x = 1111111111111111111111"}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestExecUsesConfiguredBudget(t *testing.T) {
	t.Parallel()

	h := newServer(t, func(o *Options) { o.Config.MaxSteps = 5 }).Handler()
	trace := decode(t, postJSON(t, h, `{"user_script": "while True:\n    pass\n"}`))
	require.Len(t, trace, 6)
	assert.Equal(t, model.InstructionLimitReached, trace[5].Event)
}

func TestExecMethodNotAllowed(t *testing.T) {
	t.Parallel()

	h := newServer(t, nil).Handler()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/exec", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	newServer(t, nil).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok\n", rec.Body.String())
}

func TestQueryLogAndCache(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	qlog, err := querylog.Open(ctx, filepath.Join(dir, "q.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = qlog.Close() })
	c, err := cache.Open(filepath.Join(dir, "cache"))
	require.NoError(t, err)

	h := newServer(t, func(o *Options) {
		o.QueryLog = qlog
		o.Cache = c
	}).Handler()

	body := `{"user_script": "1 / 0\n"}`
	first := postJSON(t, h, body)
	second := postJSON(t, h, body)
	assert.JSONEq(t, first.Body.String(), second.Body.String())

	entries, err := qlog.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.True(t, entries[0].HadError)
	assert.Equal(t, "1 / 0\n", entries[0].Script)
	assert.Equal(t, "192.0.2.1", entries[0].RemoteIP)
	assert.Equal(t, second.Header().Get("X-Request-Id"), entries[0].RequestID)

	cfg := config.Default()
	key, err := cache.Key("1 / 0\n", cache.Params{MaxSteps: cfg.MaxSteps, StableIDs: cfg.StableIDs, MaxDepth: cfg.MaxDepth})
	require.NoError(t, err)
	_, err = c.Get(key)
	assert.NoError(t, err)
}

func TestRemoteIP(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodPost, "/exec", nil)
	r.RemoteAddr = "10.1.2.3:5555"
	assert.Equal(t, "10.1.2.3", remoteIP(r))
	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", remoteIP(r))
}

func TestServeStopsWithContext(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := newServer(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
