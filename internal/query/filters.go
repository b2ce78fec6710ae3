package query

import "time"

// Each builder returns a predicate fragment beginning with " AND ", or the
// empty string when the filter value is absent. Absent values must not touch
// the binder: the final placeholder numbering depends only on which filters
// are present, in the fixed order the assembler concatenates them.

// TimeFilter bounds col (a timestamptz column, optionally table-qualified)
// to the half-open/closed range the caller supplied. Either bound may be nil.
func TimeFilter(p *Params, col string, start, end *time.Time) string {
	var f string
	if start != nil {
		f += " AND " + col + " >= " + p.Add(*start)
	}
	if end != nil {
		f += " AND " + col + " <= " + p.Add(*end)
	}
	return f
}

// RepositoryFilter matches col against the whole list bound as a single
// text[] parameter, not one parameter per repository.
func RepositoryFilter(p *Params, col string, repos []string) string {
	if len(repos) == 0 {
		return ""
	}
	return " AND " + col + " = ANY(" + p.Add(repos) + ")"
}

// UserFilter includes rows where col is one of users.
func UserFilter(p *Params, col string, users []string) string {
	if len(users) == 0 {
		return ""
	}
	return " AND " + col + " = ANY(" + p.Add(users) + ")"
}

// ExcludeUserFilter drops rows where col is one of users.
func ExcludeUserFilter(p *Params, col string, users []string) string {
	if len(users) == 0 {
		return ""
	}
	return " AND " + col + " != ALL(" + p.Add(users) + ")"
}

// EqFilter is a single-value equality filter (reviewer_team, pr_sig_label).
func EqFilter(p *Params, col, value string) string {
	if value == "" {
		return ""
	}
	return " AND " + col + " = " + p.Add(value)
}
