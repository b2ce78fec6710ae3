package metrics

import (
	"database/sql"
	"strings"
	"time"
)

// Null-handling helpers for response shaping. Nullable SQL outputs become
// nil JSON fields; durations are rounded here because this is the final
// formatting step.

func nullStr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullTimeRFC3339(v sql.NullTime) *string {
	if !v.Valid {
		return nil
	}
	s := v.Time.UTC().Format(time.RFC3339)
	return &s
}

func nullRounded(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	r := round1(v.Float64)
	return &r
}

// splitList undoes the ARRAY_TO_STRING aggregation. Logins and repository
// names cannot contain commas, so a plain split is safe.
func splitList(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.Split(s, ",")
}
