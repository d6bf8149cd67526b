package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sessionlog/internal/api"
	"sessionlog/internal/models"
	"sessionlog/internal/observability/metrics"
	"sessionlog/internal/query"
	"sessionlog/internal/storage"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestHandler(t *testing.T) *api.Handler {
	t.Helper()
	store, err := storage.NewJSONRepository(filepath.Join(t.TempDir(), "store.json"))
	require.NoError(t, err)
	handler := api.NewHandler(store, discardLogger())
	handler.Metrics = metrics.New()
	return handler
}

func newTestServer(t *testing.T, cfg Config) (*Server, *metrics.Recorder) {
	t.Helper()
	recorder := metrics.New()
	if cfg.Logger == nil {
		cfg.Logger = discardLogger()
	}
	cfg.Metrics = recorder
	srv, err := New(newTestHandler(t), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })
	return srv, recorder
}

func TestNewReturnsErrorWhenHandlerNil(t *testing.T) {
	t.Parallel()

	srv, err := New(nil, Config{})
	if err == nil {
		t.Fatalf("expected error when handler is nil, got server: %#v", srv)
	}
}

func TestNewRejectsMalformedOrigin(t *testing.T) {
	_, err := New(newTestHandler(t), Config{CORS: CORSConfig{AllowedOrigins: []string{"example.com"}}, Logger: discardLogger()})
	assert.Error(t, err)
}

func TestServerRoutesUsersCollection(t *testing.T) {
	srv, recorder := newTestServer(t, Config{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/users/", strings.NewReader(`{"name":"Ada"}`)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/users", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var users []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &users))
	assert.Len(t, users, 1)

	series, err := testutil.GatherAndCount(recorder.Registry(), "sessionlog_http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 2, series)
}

func TestServerExposesHealthAndMetrics(t *testing.T) {
	srv, _ := newTestServer(t, Config{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sessionlog_http_requests_total")
}

func TestServerAllowsAnyOriginByDefault(t *testing.T) {
	srv, _ := newTestServer(t, Config{})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/users/", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPatch)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPatch)
}

func TestServerRestrictsConfiguredOrigins(t *testing.T) {
	srv, _ := newTestServer(t, Config{CORS: CORSConfig{AllowedOrigins: []string{"https://App.Example.com"}}})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/v1/users/", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestServerAppliesClientRateLimit(t *testing.T) {
	srv, _ := newTestServer(t, Config{RateLimit: RateLimitConfig{ClientLimit: 2}})

	statuses := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/users/", nil)
		req.RemoteAddr = "198.51.100.7:4321"
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		statuses = append(statuses, rec.Code)
		if rec.Code == http.StatusTooManyRequests {
			assert.NotEmpty(t, rec.Header().Get("Retry-After"))
		}
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, statuses)

	// health checks are not throttled
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.RemoteAddr = "198.51.100.7:4321"
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRecoverMiddlewareWritesGenericError(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))

	handler := requestIDMiddlewareWithGenerator(logger, func() string { return "req-1" },
		recoverMiddleware(logger, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			panic("boom")
		})))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/users", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"an unexpected error occurred"}`, rec.Body.String())
	assert.Contains(t, logs.String(), `"request_id":"req-1"`)
	assert.Contains(t, logs.String(), "panic: boom")
}

// panickingStore blows up on list queries.
type panickingStore struct {
	storage.Repository
}

func (panickingStore) Find(context.Context, string, query.Filter) ([]models.Document, error) {
	panic("cursor exploded")
}

func TestServerCountsRecoveredPanics(t *testing.T) {
	recorder := metrics.New()
	handler := api.NewHandler(panickingStore{}, discardLogger())
	handler.Metrics = recorder
	srv, err := New(handler, Config{Logger: discardLogger(), Metrics: recorder})
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/users", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `status="500"`)
}

func TestRecoverMiddlewareRepanicsOnAbort(t *testing.T) {
	handler := recoverMiddleware(discardLogger(), http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))
	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}
