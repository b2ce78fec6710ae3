// Package query builds parameterized SQL fragments for the metric queries.
//
// All metric endpoints compose their WHERE clauses from the same small set of
// filter builders, sharing a Params binder so that positional placeholders
// stay aligned with the argument list handed to the driver no matter which
// filters a request supplies.
package query

import "fmt"

// Params accumulates query arguments in a fixed order and hands out the
// matching $N placeholder for each. Values are never deduplicated: binding
// the same value twice yields two placeholders, because two fragments may
// legitimately need independent positions.
type Params struct {
	values          []any
	paginationStart int // index of the first LIMIT/OFFSET value, -1 if unmarked
}

// NewParams returns an empty binder.
func NewParams() *Params {
	return &Params{paginationStart: -1}
}

// Add appends v and returns its placeholder. The placeholder position always
// equals the value's index in Values(); anything else would silently corrupt
// every query built against this binder.
func (p *Params) Add(v any) string {
	p.values = append(p.values, v)
	return fmt.Sprintf("$%d", len(p.values))
}

// MarkPaginationStart records the current length as the boundary between
// filter parameters and the LIMIT/OFFSET suffix. Call it once, immediately
// before adding the pagination values.
func (p *Params) MarkPaginationStart() {
	p.paginationStart = len(p.values)
}

// Values returns every bound value in add-order.
func (p *Params) Values() []any {
	return p.values
}

// ValuesExcludingPagination returns the values added before the pagination
// boundary. A count query built from the same filter fragments binds these,
// so its placeholders line up even though it carries no LIMIT/OFFSET.
// Without a marked boundary it is identical to Values().
func (p *Params) ValuesExcludingPagination() []any {
	if p.paginationStart < 0 {
		return p.values
	}
	return p.values[:p.paginationStart]
}

// Clone returns an independent copy. Sibling queries that share a filter
// prefix but diverge afterwards (e.g. one adds a reviewer filter) each take
// a clone so later Adds do not renumber the other's placeholders.
func (p *Params) Clone() *Params {
	c := &Params{
		values:          make([]any, len(p.values)),
		paginationStart: p.paginationStart,
	}
	copy(c.values, p.values)
	return c
}
