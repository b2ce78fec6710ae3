package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"hookstats/internal/metrics"
)

const (
	defaultPageSize = 25
	maxPageSize     = 100

	// The PR listing historically defaults smaller than the thread listing.
	defaultUserPRsPageSize = 10
)

// parseFilters extracts the shared filter set from the query string.
// Validation failures surface as client errors with the offending parameter
// named.
func parseFilters(r *http.Request, pageSizeDefault int) (metrics.Filters, error) {
	q := r.URL.Query()
	var f metrics.Filters

	var err error
	if f.Start, err = parseTimeParam(q.Get("start_time"), "start_time"); err != nil {
		return f, err
	}
	if f.End, err = parseTimeParam(q.Get("end_time"), "end_time"); err != nil {
		return f, err
	}
	if f.Start != nil && f.End != nil && f.End.Before(*f.Start) {
		return f, fmt.Errorf("end_time must not precede start_time")
	}

	f.Repositories = q["repositories"]
	f.Users = q["users"]
	f.ExcludeUsers = q["exclude_users"]
	f.ReviewerTeam = q.Get("reviewer_team")
	f.PRTeam = q.Get("pr_team")

	if f.Page, err = parsePositiveInt(q.Get("page"), "page", 1); err != nil {
		return f, err
	}
	if f.PageSize, err = parsePositiveInt(q.Get("page_size"), "page_size", pageSizeDefault); err != nil {
		return f, err
	}
	if f.PageSize > maxPageSize {
		f.PageSize = maxPageSize
	}
	return f, nil
}

func parseTimeParam(raw, name string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be RFC 3339, got %q", name, raw)
	}
	return &t, nil
}

func parsePositiveInt(raw, name string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", name, raw)
	}
	return n, nil
}
