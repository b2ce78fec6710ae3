package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"hookstats/internal/analytics"
	"hookstats/internal/config"
	"hookstats/internal/db"
	"hookstats/internal/metrics"
	"hookstats/internal/rdb"
	"hookstats/internal/teams"
	"hookstats/internal/telemetry"
)

// MetricStore is the query surface the metric endpoints consume.
type MetricStore interface {
	ReviewTurnaround(ctx context.Context, f metrics.Filters) (*metrics.TurnaroundReport, error)
	CommentResolution(ctx context.Context, f metrics.Filters) (*metrics.ResolutionReport, error)
	CrossTeamReviews(ctx context.Context, f metrics.Filters) (*metrics.CrossTeamReport, error)
	UserPullRequests(ctx context.Context, f metrics.Filters) (*metrics.UserPRsReport, error)
}

// EventStore is the ingestion surface.
type EventStore interface {
	InsertEvent(ctx context.Context, e db.Event) (bool, error)
	Ping(ctx context.Context) error
}

// Handler holds all dependencies of the HTTP layer.
type Handler struct {
	store     MetricStore
	events    EventStore
	cache     *rdb.Client
	analytics *analytics.Client
	teams     *teams.Directory
	collector *telemetry.Collector
	cfg       *config.Config
	log       *zap.Logger
}

func New(store MetricStore, events EventStore, cache *rdb.Client, an *analytics.Client, dir *teams.Directory, col *telemetry.Collector, cfg *config.Config, log *zap.Logger) *Handler {
	return &Handler{
		store:     store,
		events:    events,
		cache:     cache,
		analytics: an,
		teams:     dir,
		collector: col,
		cfg:       cfg,
		log:       log,
	}
}

// ── Response helpers ───────────────────────────────────────────────────────────

func (h *Handler) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("encoding response", zap.Error(err))
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// clientError reports a validation failure with its cause; the message is
// safe to show because it only ever describes the request.
func (h *Handler) clientError(w http.ResponseWriter, msg string) {
	h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}

// serverError logs the full error and returns a generic body. A canceled
// request context is the client hanging up, not a failure worth a 500.
func (h *Handler) serverError(w http.ResponseWriter, r *http.Request, op string, err error) {
	if errors.Is(err, context.Canceled) {
		h.log.Debug("request canceled", zap.String("op", op))
		return
	}
	h.log.Error("request failed",
		zap.String("op", op),
		zap.String("path", r.URL.Path),
		zap.String("query", r.URL.RawQuery),
		zap.Error(err),
	)
	h.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
}

// Health reports liveness of the database dependency.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.events.Ping(r.Context()); err != nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
