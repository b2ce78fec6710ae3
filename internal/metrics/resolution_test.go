package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarizeThreads(t *testing.T) {
	d := threadDurations{
		resolution: []float64{2, 10},
		response:   []float64{1, 3},
		comments:   []float64{3, 5, 1},
		resolved:   2,
	}
	s := summarizeThreads(d, 10)

	assert.Equal(t, 6.0, s.AvgResolutionTimeHours)
	assert.Equal(t, 6.0, s.MedianResolutionTimeHours)
	assert.Equal(t, 2.0, s.AvgTimeToFirstResponseHours)
	assert.Equal(t, 3.0, s.AvgCommentsPerThread)
	assert.Equal(t, 10, s.TotalThreadsAnalyzed, "total comes from the full filtered set, not the page")
	assert.Equal(t, 20.0, s.ResolutionRate, "rate uses the page's resolved count over the full total")
}

func TestSummarizeThreadsRoundsAggregatesOnce(t *testing.T) {
	// Each value rounds to 1.1 on its own, but the full-precision mean is
	// 1.1533. Summaries must round the aggregate, not the inputs.
	d := threadDurations{
		resolution: []float64{1.14, 1.14, 1.18},
		resolved:   3,
	}
	s := summarizeThreads(d, 3)

	assert.Equal(t, 1.2, s.AvgResolutionTimeHours)
	assert.Equal(t, 1.1, s.MedianResolutionTimeHours)
}

func TestSummarizeThreadsEmptyPage(t *testing.T) {
	s := summarizeThreads(threadDurations{}, 0)
	assert.Equal(t, 0.0, s.AvgResolutionTimeHours)
	assert.Equal(t, 0.0, s.MedianResolutionTimeHours)
	assert.Equal(t, 0.0, s.ResolutionRate)
	assert.Equal(t, 0, s.TotalThreadsAnalyzed)
}

func TestBuildResolutionQueriesArgs(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	f := Filters{Start: &start, Repositories: []string{"org/repo"}, Page: 2, PageSize: 20}
	threadsQ, repoQ, threadArgs, filterArgs := buildResolutionQueries(f)

	require.Len(t, threadArgs, 4, "time, repos, limit, offset")
	assert.Equal(t, threadArgs[:2], filterArgs, "repo stats reuse the filter prefix without pagination")
	assert.Equal(t, 20, threadArgs[2])
	assert.Equal(t, 20, threadArgs[3], "page 2 of 20 skips the first 20 rows")

	assert.Contains(t, threadsQ, "LIMIT $3 OFFSET $4")
	assert.NotContains(t, repoQ, "LIMIT")
}

func TestBuildResolutionQueriesPredicates(t *testing.T) {
	threadsQ, repoQ, _, _ := buildResolutionQueries(Filters{Page: 1, PageSize: 10})

	assert.Contains(t, threadsQ, "event_type = 'pull_request_review_thread'")
	assert.Contains(t, threadsQ, "CROSS JOIN counted_threads", "total rides along on every page row")
	assert.Contains(t, threadsQ, "'check_run'->>'name' = 'can-be-merged'")
	assert.Contains(t, threadsQ, "ORDER BY twr.first_comment_at DESC")
	assert.Contains(t, repoQ, "COUNT(DISTINCT CASE WHEN action = 'resolved' THEN thread_node_id END)")
}
