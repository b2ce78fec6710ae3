package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"hookstats/internal/analytics"
	"hookstats/internal/config"
	"hookstats/internal/db"
	"hookstats/internal/metrics"
	"hookstats/internal/teams"
)

type stubStore struct {
	turnaround *metrics.TurnaroundReport
	lastFilter metrics.Filters
	err        error
}

func (s *stubStore) ReviewTurnaround(_ context.Context, f metrics.Filters) (*metrics.TurnaroundReport, error) {
	s.lastFilter = f
	return s.turnaround, s.err
}

func (s *stubStore) CommentResolution(_ context.Context, f metrics.Filters) (*metrics.ResolutionReport, error) {
	s.lastFilter = f
	return &metrics.ResolutionReport{}, s.err
}

func (s *stubStore) CrossTeamReviews(_ context.Context, f metrics.Filters) (*metrics.CrossTeamReport, error) {
	s.lastFilter = f
	return &metrics.CrossTeamReport{}, s.err
}

func (s *stubStore) UserPullRequests(_ context.Context, f metrics.Filters) (*metrics.UserPRsReport, error) {
	s.lastFilter = f
	return &metrics.UserPRsReport{}, s.err
}

type stubEvents struct {
	inserted []db.Event
	dup      bool
	err      error
}

func (s *stubEvents) InsertEvent(_ context.Context, e db.Event) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	s.inserted = append(s.inserted, e)
	return !s.dup, nil
}

func (s *stubEvents) Ping(context.Context) error { return nil }

func newTestHandler(store MetricStore, events EventStore) *Handler {
	return New(store, events, nil, analytics.New("", zap.NewNop()), teams.Empty(), nil, &config.Config{}, zap.NewNop())
}

// ── Filter parsing ─────────────────────────────────────────────────────────────

func TestParseFiltersDefaults(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/metrics/review-turnaround", nil)
	f, err := parseFilters(r, defaultPageSize)
	require.NoError(t, err)
	assert.Nil(t, f.Start)
	assert.Nil(t, f.End)
	assert.Equal(t, 1, f.Page)
	assert.Equal(t, 25, f.PageSize)
}

func TestParseFiltersFull(t *testing.T) {
	q := url.Values{}
	q.Set("start_time", "2026-01-01T00:00:00Z")
	q.Set("end_time", "2026-02-01T00:00:00Z")
	q.Add("repositories", "org/a")
	q.Add("repositories", "org/b")
	q.Add("users", "alice")
	q.Add("exclude_users", "bot")
	q.Set("page", "3")
	q.Set("page_size", "50")
	r := httptest.NewRequest(http.MethodGet, "/x?"+q.Encode(), nil)

	f, err := parseFilters(r, defaultPageSize)
	require.NoError(t, err)
	assert.Equal(t, []string{"org/a", "org/b"}, f.Repositories)
	assert.Equal(t, []string{"alice"}, f.Users)
	assert.Equal(t, []string{"bot"}, f.ExcludeUsers)
	assert.Equal(t, 3, f.Page)
	assert.Equal(t, 50, f.PageSize)
	require.NotNil(t, f.Start)
	assert.Equal(t, 2026, f.Start.Year())
}

func TestParseFiltersRejectsBadInput(t *testing.T) {
	for _, query := range []string{
		"start_time=yesterday",
		"end_time=2026-13-01T00:00:00Z",
		"page=0",
		"page=-2",
		"page_size=abc",
		"start_time=2026-02-01T00:00:00Z&end_time=2026-01-01T00:00:00Z",
	} {
		r := httptest.NewRequest(http.MethodGet, "/x?"+query, nil)
		_, err := parseFilters(r, defaultPageSize)
		assert.Error(t, err, "query %q should be rejected", query)
	}
}

func TestParseFiltersCapsPageSize(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/x?page_size=5000", nil)
	f, err := parseFilters(r, defaultPageSize)
	require.NoError(t, err)
	assert.Equal(t, maxPageSize, f.PageSize)
}

// ── Metric endpoints ───────────────────────────────────────────────────────────

func TestReviewTurnaroundOK(t *testing.T) {
	store := &stubStore{turnaround: &metrics.TurnaroundReport{
		Summary: metrics.TurnaroundSummary{TotalPRsAnalyzed: 7},
	}}
	h := newTestHandler(store, &stubEvents{})

	rec := httptest.NewRecorder()
	h.ReviewTurnaround(rec, httptest.NewRequest(http.MethodGet, "/api/metrics/review-turnaround?users=alice", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Summary struct {
			TotalPRsAnalyzed int `json:"total_prs_analyzed"`
		} `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 7, body.Summary.TotalPRsAnalyzed)
	assert.Equal(t, []string{"alice"}, store.lastFilter.Users)
}

func TestReviewTurnaroundBadTime(t *testing.T) {
	h := newTestHandler(&stubStore{}, &stubEvents{})
	rec := httptest.NewRecorder()
	h.ReviewTurnaround(rec, httptest.NewRequest(http.MethodGet, "/x?start_time=nope", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "start_time")
}

func TestMetricEndpointStoreFailure(t *testing.T) {
	h := newTestHandler(&stubStore{err: errors.New("connection refused")}, &stubEvents{})
	rec := httptest.NewRecorder()
	h.CrossTeamReviews(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused", "internal detail must not leak")
}

func TestUserPRsRejectsUnknownRole(t *testing.T) {
	h := newTestHandler(&stubStore{}, &stubEvents{})
	rec := httptest.NewRecorder()
	h.UserPRs(rec, httptest.NewRequest(http.MethodGet, "/x?role=committers", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUserPRsPassesRole(t *testing.T) {
	store := &stubStore{}
	h := newTestHandler(store, &stubEvents{})
	rec := httptest.NewRecorder()
	h.UserPRs(rec, httptest.NewRequest(http.MethodGet, "/x?role=pr_reviewers", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, metrics.RolePRReviewers, store.lastFilter.Role)
	assert.Equal(t, defaultUserPRsPageSize, store.lastFilter.PageSize)
}

// ── Webhook ingestion ──────────────────────────────────────────────────────────

func webhookRequest(eventType, deliveryID, body string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("X-GitHub-Event", eventType)
	r.Header.Set("X-GitHub-Delivery", deliveryID)
	return r
}

func TestWebhookStoresEvent(t *testing.T) {
	events := &stubEvents{}
	h := newTestHandler(&stubStore{}, events)

	rec := httptest.NewRecorder()
	h.Webhook(rec, webhookRequest("pull_request", "d-1", `{
		"action": "opened",
		"repository": {"full_name": "org/repo"},
		"sender": {"login": "alice"},
		"pull_request": {"number": 1, "user": {"login": "alice"}}
	}`))

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, events.inserted, 1)
	e := events.inserted[0]
	assert.Equal(t, "d-1", e.DeliveryID)
	assert.Equal(t, "pull_request", e.EventType)
	assert.Equal(t, "org/repo", e.Repository)
	require.NotNil(t, e.PRNumber)
	assert.Equal(t, 1, *e.PRNumber)
}

func TestWebhookStoresMalformedPayloadWithError(t *testing.T) {
	events := &stubEvents{}
	h := newTestHandler(&stubStore{}, events)

	rec := httptest.NewRecorder()
	h.Webhook(rec, webhookRequest("pull_request", "d-err", `{
		"action": "opened",
		"repository": {"full_name": "org/repo"},
		"sender": {"login": "alice"},
		"pull_request": {"number": "not-a-number"}
	}`))

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, events.inserted, 1)
	e := events.inserted[0]
	assert.Equal(t, "error", e.Status)
	require.NotNil(t, e.ErrorMessage)
	assert.Equal(t, "org/repo", e.Repository)
	assert.Nil(t, e.PRNumber)
}

func TestWebhookRejectsUnreadablePayload(t *testing.T) {
	events := &stubEvents{}
	h := newTestHandler(&stubStore{}, events)

	rec := httptest.NewRecorder()
	h.Webhook(rec, webhookRequest("pull_request", "d-bad", `not json`))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, events.inserted)
}

func TestWebhookMissingHeaders(t *testing.T) {
	h := newTestHandler(&stubStore{}, &stubEvents{})
	r := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	h.Webhook(rec, r)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookDuplicateDelivery(t *testing.T) {
	h := newTestHandler(&stubStore{}, &stubEvents{dup: true})
	rec := httptest.NewRecorder()
	h.Webhook(rec, webhookRequest("pull_request", "d-1", `{
		"action": "opened",
		"repository": {"full_name": "org/repo"},
		"sender": {"login": "alice"},
		"pull_request": {"number": 1, "user": {"login": "alice"}}
	}`))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "duplicate")
}

func TestWebhookInsertFailure(t *testing.T) {
	h := newTestHandler(&stubStore{}, &stubEvents{err: errors.New("db down")})
	rec := httptest.NewRecorder()
	h.Webhook(rec, webhookRequest("pull_request", "d-1", `{
		"action": "opened",
		"repository": {"full_name": "org/repo"},
		"sender": {"login": "alice"},
		"pull_request": {"number": 1, "user": {"login": "alice"}}
	}`))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
