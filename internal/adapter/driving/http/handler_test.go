package httphandler_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httphandler "github.com/ericfisherdev/repowatch/internal/adapter/driving/http"
	"github.com/ericfisherdev/repowatch/internal/application"
	"github.com/ericfisherdev/repowatch/internal/domain/model"
)

// --- Mock implementations ---

type mockWatcher struct {
	status    application.WatchStatus
	refreshFn func(ctx context.Context, name string) error
	refreshed []string
}

func (m *mockWatcher) Status() application.WatchStatus { return m.status }

func (m *mockWatcher) Refresh(ctx context.Context, name string) error {
	m.refreshed = append(m.refreshed, name)
	if m.refreshFn != nil {
		return m.refreshFn(ctx, name)
	}
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var finished = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func healthyStatus() application.WatchStatus {
	return application.WatchStatus{
		Started: finished.Add(-time.Hour),
		Cycles:  3,
		Concerns: map[model.Concern]application.ConcernStatus{
			model.ConcernNews:  {RunID: "run-news", Finished: finished, Succeeded: 4, Failed: 1},
			model.ConcernForks: {RunID: "run-forks", Finished: finished, Succeeded: 5, TimedOut: 1},
		},
	}
}

func setupMux(w *mockWatcher, reg *prometheus.Registry) http.Handler {
	logger := discardLogger()
	var gatherer prometheus.Gatherer
	if reg != nil {
		gatherer = reg
	}
	return httphandler.NewServeMux(httphandler.NewHandler(w, gatherer, logger), logger)
}

func serve(t *testing.T, mux http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestHealth_OK(t *testing.T) {
	mux := setupMux(&mockWatcher{status: healthyStatus()}, nil)

	rec := serve(t, mux, http.MethodGet, "/healthz", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))

	var resp httphandler.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 3, resp.Cycles)
	require.Len(t, resp.Concerns, 2)
	assert.Equal(t, "forks", resp.Concerns[0].Concern)
	assert.Equal(t, 1, resp.Concerns[0].TimedOut)
	assert.Equal(t, "news", resp.Concerns[1].Concern)
	assert.Equal(t, "run-news", resp.Concerns[1].RunID)
	assert.Equal(t, "2026-03-01T12:00:00Z", resp.Concerns[1].Finished)
	assert.Empty(t, resp.Concerns[1].Error)
}

func TestHealth_Starting(t *testing.T) {
	mux := setupMux(&mockWatcher{}, nil)

	rec := serve(t, mux, http.MethodGet, "/healthz", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp httphandler.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "starting", resp.Status)
	assert.Empty(t, resp.Started)
	assert.Empty(t, resp.Concerns)
}

func TestHealth_DegradedOnStateError(t *testing.T) {
	status := healthyStatus()
	news := status.Concerns[model.ConcernNews]
	news.Err = errors.New("saving state: disk full")
	status.Concerns[model.ConcernNews] = news

	mux := setupMux(&mockWatcher{status: status}, nil)

	rec := serve(t, mux, http.MethodGet, "/healthz", "")

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var resp httphandler.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "saving state: disk full", resp.Concerns[1].Error)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	application.NewMetrics(reg)
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "repowatch_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	mux := setupMux(&mockWatcher{}, reg)

	rec := serve(t, mux, http.MethodGet, "/metrics", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "repowatch_test_total 1")
}

func TestRefresh_All(t *testing.T) {
	w := &mockWatcher{status: healthyStatus()}
	mux := setupMux(w, nil)

	rec := serve(t, mux, http.MethodPost, "/api/v1/refresh", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{""}, w.refreshed)

	var resp httphandler.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestRefresh_OneRepository(t *testing.T) {
	tests := []struct {
		name   string
		target string
		body   string
	}{
		{"json body", "/api/v1/refresh", `{"repository":"widgets"}`},
		{"query", "/api/v1/refresh?repo=widgets", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &mockWatcher{status: healthyStatus()}
			mux := setupMux(w, nil)

			rec := serve(t, mux, http.MethodPost, tt.target, tt.body)

			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, []string{"widgets"}, w.refreshed)
		})
	}
}

func TestRefresh_Errors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		err      error
		wantCode int
		wantMsg  string
	}{
		{"invalid body", `{"repository":`, nil, http.StatusBadRequest, "invalid request body"},
		{"not tracked", `{"repository":"nope"}`, application.ErrRepositoryNotTracked, http.StatusNotFound, "repository not tracked"},
		{"canceled", "", context.Canceled, http.StatusGatewayTimeout, "refresh did not finish"},
		{"state error", "", errors.New("news: saving state: disk full"), http.StatusInternalServerError, "news: saving state: disk full"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &mockWatcher{refreshFn: func(context.Context, string) error { return tt.err }}
			mux := setupMux(w, nil)

			rec := serve(t, mux, http.MethodPost, "/api/v1/refresh", tt.body)

			require.Equal(t, tt.wantCode, rec.Code)
			var resp map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantMsg, resp["error"])
		})
	}
}

func TestRefresh_MethodNotAllowed(t *testing.T) {
	mux := setupMux(&mockWatcher{}, nil)

	rec := serve(t, mux, http.MethodGet, "/api/v1/refresh", "")

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRecoveryMiddleware(t *testing.T) {
	w := &mockWatcher{refreshFn: func(context.Context, string) error { panic("boom") }}
	mux := setupMux(w, nil)

	rec := serve(t, mux, http.MethodPost, "/api/v1/refresh", "")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal server error")
}
