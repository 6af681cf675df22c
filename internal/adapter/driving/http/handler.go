// Package httphandler serves the watch-mode HTTP surface: health, metrics,
// and manual refresh.
package httphandler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ericfisherdev/repowatch/internal/application"
)

// maxBodyBytes bounds the refresh request body.
const maxBodyBytes = 4 << 10

// Watcher is the part of the watch service the handler drives.
type Watcher interface {
	Status() application.WatchStatus
	Refresh(ctx context.Context, name string) error
}

// Handler is the HTTP driving adapter for watch mode.
type Handler struct {
	watcher  Watcher
	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

// NewHandler creates a Handler. A nil gatherer serves the default registry.
func NewHandler(watcher Watcher, gatherer prometheus.Gatherer, logger *slog.Logger) *Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Handler{
		watcher:  watcher,
		gatherer: gatherer,
		logger:   logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with logging and recovery middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", h.Health)
	mux.Handle("GET /metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("POST /api/v1/refresh", h.Refresh)

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)

	return wrapped
}

// Health reports the outcome of the last batch of every concern. It answers
// 503 when a batch could not load or write state.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	status := h.watcher.Status()
	code := http.StatusOK
	if !status.Healthy() {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, toHealthResponse(status))
}

// Refresh runs every concern now, for one repository or for all of them, and
// answers with the resulting health once the cycle finishes.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Repository == "" {
		req.Repository = r.URL.Query().Get("repo")
	}

	err := h.watcher.Refresh(r.Context(), req.Repository)
	switch {
	case err == nil:
	case errors.Is(err, application.ErrRepositoryNotTracked):
		writeError(w, http.StatusNotFound, "repository not tracked")
		return
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "refresh did not finish")
		return
	default:
		h.logger.Error("refresh failed", "repo", req.Repository, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, toHealthResponse(h.watcher.Status()))
}
