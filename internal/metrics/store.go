// Package metrics derives review-flow metrics from the append-only webhook
// event store. Every metric is recomputed per request by scanning the
// (filtered) event history; nothing here writes to the store.
//
// Each endpoint follows the same staged derivation: a CTE anchors the
// earliest "opened" event per (repository, pr_number), further CTEs find the
// earliest qualifying milestone event per PR, and the final select derives
// elapsed hours. Independent sub-queries of one request run concurrently via
// errgroup: the first failure cancels the rest and the request reports a
// single error.
package metrics

import (
	"context"
	"database/sql"
	"time"
)

// Querier is the slice of database/sql the assemblers need. *sql.DB
// satisfies it.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store runs metric queries against a webhook event store.
type Store struct {
	q Querier
}

// NewStore wraps an open query executor. The store does not own the
// connection lifecycle; main acquires and releases it.
func NewStore(q Querier) *Store {
	return &Store{q: q}
}

// Filters is the normalized filter set shared by the metric endpoints.
// Nil/empty fields mean "no filter". Page is 1-indexed.
type Filters struct {
	Start        *time.Time
	End          *time.Time
	Repositories []string
	Users        []string
	ExcludeUsers []string
	ReviewerTeam string
	PRTeam       string
	Role         Role
	Page         int
	PageSize     int
}

// Offset returns the row offset for the current page.
func (f Filters) Offset() int {
	return (f.Page - 1) * f.PageSize
}
