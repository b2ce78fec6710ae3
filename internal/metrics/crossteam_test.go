package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sptr(s string) *string { return &s }

func TestBucketByTeam(t *testing.T) {
	rows := []teamCount{
		{Team: sptr("sig-storage"), Count: 5},
		{Team: nil, Count: 3},
	}
	buckets := bucketByTeam(rows)
	assert.Equal(t, map[string]int{"sig-storage": 5, "unknown": 3}, buckets)
}

func TestBucketByTeamMergesNullRows(t *testing.T) {
	// Two NULL rows cannot occur from a single GROUP BY, but the fold must
	// still sum rather than overwrite.
	rows := []teamCount{
		{Team: nil, Count: 2},
		{Team: nil, Count: 3},
	}
	assert.Equal(t, map[string]int{"unknown": 5}, bucketByTeam(rows))
}

func TestBucketByTeamEmpty(t *testing.T) {
	assert.Empty(t, bucketByTeam(nil))
}

func TestBuildCrossTeamQueriesArgs(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f := Filters{
		Start:        &start,
		Repositories: []string{"org/repo"},
		ReviewerTeam: "sig-node",
		PRTeam:       "sig-storage",
		Page:         1,
		PageSize:     50,
	}
	countQ, dataQ, byReviewerQ, byPRQ, dataArgs, filterArgs := buildCrossTeamQueries(f)

	require.Len(t, dataArgs, 6, "time, repos, reviewer team, pr team, limit, offset")
	assert.Equal(t, dataArgs[:4], filterArgs)

	assert.Contains(t, dataQ, "LIMIT $5 OFFSET $6")
	for name, q := range map[string]string{"count": countQ, "by reviewer team": byReviewerQ, "by pr team": byPRQ} {
		assert.NotContains(t, q, "LIMIT", "%s query is unpaginated", name)
		assert.Contains(t, q, "is_cross_team = TRUE", "%s query shares the cross-team predicate", name)
	}
	assert.Contains(t, countQ, "reviewer_team = $3")
	assert.Contains(t, countQ, "pr_sig_label = $4")
}

func TestBuildCrossTeamQueriesNoFilters(t *testing.T) {
	countQ, dataQ, _, _, dataArgs, filterArgs := buildCrossTeamQueries(Filters{Page: 1, PageSize: 50})
	assert.Empty(t, filterArgs)
	require.Len(t, dataArgs, 2)
	assert.NotContains(t, countQ, "$1")
	assert.Contains(t, dataQ, "LIMIT $1 OFFSET $2")
}
