package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"hookstats/internal/metrics"
	"hookstats/internal/rdb"
)

// ReviewTurnaround serves GET /api/metrics/turnaround.
func (h *Handler) ReviewTurnaround(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilters(r, defaultPageSize)
	if err != nil {
		h.clientError(w, err.Error())
		return
	}
	h.serveMetric(w, r, "turnaround", f, func(ctx context.Context, f metrics.Filters) (any, error) {
		return h.store.ReviewTurnaround(ctx, f)
	})
}

// CommentResolution serves GET /api/metrics/comment-resolution-time.
func (h *Handler) CommentResolution(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilters(r, defaultPageSize)
	if err != nil {
		h.clientError(w, err.Error())
		return
	}
	h.serveMetric(w, r, "comment-resolution-time", f, func(ctx context.Context, f metrics.Filters) (any, error) {
		return h.store.CommentResolution(ctx, f)
	})
}

// CrossTeamReviews serves GET /api/metrics/cross-team-reviews.
func (h *Handler) CrossTeamReviews(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilters(r, defaultPageSize)
	if err != nil {
		h.clientError(w, err.Error())
		return
	}
	h.serveMetric(w, r, "cross-team-reviews", f, func(ctx context.Context, f metrics.Filters) (any, error) {
		return h.store.CrossTeamReviews(ctx, f)
	})
}

// UserPRs serves GET /api/metrics/user-prs.
func (h *Handler) UserPRs(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilters(r, defaultUserPRsPageSize)
	if err != nil {
		h.clientError(w, err.Error())
		return
	}
	if f.Role, err = metrics.ParseRole(r.URL.Query().Get("role")); err != nil {
		h.clientError(w, err.Error())
		return
	}
	h.serveMetric(w, r, "user-prs", f, func(ctx context.Context, f metrics.Filters) (any, error) {
		return h.store.UserPullRequests(ctx, f)
	})
}

// serveMetric runs one metric computation behind the response cache and
// records its latency. Cached entries are served verbatim; the cache key is
// the endpoint plus the raw query string, so distinct filters never collide.
func (h *Handler) serveMetric(w http.ResponseWriter, r *http.Request, endpoint string, f metrics.Filters, compute func(context.Context, metrics.Filters) (any, error)) {
	cacheKey := endpoint + "?" + r.URL.RawQuery
	if h.cache != nil {
		if body, ok := h.cache.Get(r.Context(), cacheKey); ok {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-Cache", "hit")
			w.WriteHeader(http.StatusOK)
			w.Write(body)
			return
		}
	}

	start := time.Now()
	report, err := compute(r.Context(), f)
	if err != nil {
		h.serverError(w, r, endpoint, err)
		return
	}
	took := time.Since(start)
	if h.collector != nil {
		h.collector.QueryDuration.WithLabelValues(endpoint).Observe(took.Seconds())
	}
	h.analytics.CaptureQuery(r.RemoteAddr, endpoint, took)

	if h.cache != nil {
		if body, err := json.Marshal(report); err == nil {
			h.cache.Set(r.Context(), cacheKey, body, rdb.CacheTTL)
		}
	}
	h.writeJSON(w, http.StatusOK, report)
}
