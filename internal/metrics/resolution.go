package metrics

import (
	"context"
	"database/sql"
	"fmt"

	"golang.org/x/sync/errgroup"

	"hookstats/internal/query"
)

// Thread is one review-comment thread with its derived timings. Nullable
// fields stay nil in the JSON output rather than being coerced to zero.
type Thread struct {
	ThreadNodeID             string   `json:"thread_node_id"`
	Repository               string   `json:"repository"`
	PRNumber                 int      `json:"pr_number"`
	FirstCommentAt           *string  `json:"first_comment_at"`
	ResolvedAt               *string  `json:"resolved_at"`
	ResolutionTimeHours      *float64 `json:"resolution_time_hours"`
	TimeToFirstResponseHours *float64 `json:"time_to_first_response_hours"`
	CommentCount             int      `json:"comment_count"`
	Resolver                 *string  `json:"resolver"`
	Participants             []string `json:"participants"`
	FilePath                 *string  `json:"file_path"`
	CanBeMergedAt            *string  `json:"can_be_merged_at"`
	TimeFromCanBeMergedHours *float64 `json:"time_from_can_be_merged_hours"`
}

// ResolutionSummary aggregates the current page of threads; total and the
// resolution-rate denominator come from the full filtered set.
type ResolutionSummary struct {
	AvgResolutionTimeHours      float64 `json:"avg_resolution_time_hours"`
	MedianResolutionTimeHours   float64 `json:"median_resolution_time_hours"`
	AvgTimeToFirstResponseHours float64 `json:"avg_time_to_first_response_hours"`
	AvgCommentsPerThread        float64 `json:"avg_comments_per_thread"`
	TotalThreadsAnalyzed        int     `json:"total_threads_analyzed"`
	ResolutionRate              float64 `json:"resolution_rate"`
}

// ResolutionRepoStats is one per-repository thread breakdown row.
type ResolutionRepoStats struct {
	Repository             string  `json:"repository"`
	AvgResolutionTimeHours float64 `json:"avg_resolution_time_hours"`
	TotalThreads           int     `json:"total_threads"`
	ResolvedThreads        int     `json:"resolved_threads"`
}

// ResolutionReport is the response of the comment-resolution endpoint.
type ResolutionReport struct {
	Summary      ResolutionSummary     `json:"summary"`
	ByRepository []ResolutionRepoStats `json:"by_repository"`
	Threads      []Thread              `json:"threads"`
	Pagination   Pagination            `json:"pagination"`
}

// canBeMergedCTE finds the first successful can-be-merged check run per PR.
// check_run payloads carry the PR number only inside the nested
// pull_requests array, so the key is extracted from the payload.
func canBeMergedCTE(timeFilter, repoFilter string) string {
	return `
        can_be_merged AS (
            SELECT
                w.repository,
                (w.payload->'check_run'->>'pull_requests')::jsonb->0->>'number' AS pr_number_text,
                MIN(w.created_at) AS can_be_merged_at
            FROM webhooks w
            WHERE w.event_type = 'check_run'
              AND w.payload->'check_run'->>'name' = 'can-be-merged'
              AND w.payload->'check_run'->>'conclusion' = 'success'` + timeFilter + repoFilter + `
            GROUP BY w.repository, (w.payload->'check_run'->>'pull_requests')::jsonb->0->>'number'
        )`
}

// buildResolutionQueries assembles the paginated threads query and the
// per-repository stats query over one shared binder. The threads query binds
// the full parameter list; repo stats reuse the filter-only prefix.
func buildResolutionQueries(f Filters) (threadsQuery, repoStatsQuery string, threadArgs, filterArgs []any) {
	p := query.NewParams()
	timeFilter := query.TimeFilter(p, "w.created_at", f.Start, f.End)
	repoFilter := query.RepositoryFilter(p, "w.repository", f.Repositories)

	p.MarkPaginationStart()
	limitPh := p.Add(f.PageSize)
	offsetPh := p.Add(f.Offset())

	threadsQuery = `
        WITH` + canBeMergedCTE(timeFilter, repoFilter) + `,
        thread_events AS (
            SELECT
                w.repository,
                w.pr_number,
                w.action,
                w.created_at,
                w.payload->'thread'->>'node_id' AS thread_node_id,
                w.payload->'thread'->>'path' AS file_path,
                w.payload->'thread'->'comments' AS comments_array,
                jsonb_array_length(w.payload->'thread'->'comments') AS comment_count,
                w.payload->'thread'->'comments'->0->>'created_at' AS first_comment_at,
                w.payload->'thread'->'comments'->1->>'created_at' AS second_comment_at,
                w.payload->'sender'->>'login' AS resolver
            FROM webhooks w
            WHERE w.event_type = 'pull_request_review_thread'
              AND w.pr_number IS NOT NULL
              AND w.payload->'thread'->>'node_id' IS NOT NULL` + timeFilter + repoFilter + `
        ),
        resolved_threads AS (
            SELECT thread_node_id, repository, pr_number, created_at AS resolved_at, resolver
            FROM thread_events
            WHERE action = 'resolved'
        ),
        thread_metadata AS (
            SELECT DISTINCT ON (thread_node_id)
                thread_node_id,
                repository,
                pr_number,
                file_path,
                comment_count,
                first_comment_at::timestamptz AS first_comment_at,
                second_comment_at::timestamptz AS second_comment_at,
                comments_array
            FROM thread_events
            ORDER BY thread_node_id, created_at
        ),
        thread_participants AS (
            SELECT
                tm.thread_node_id,
                ARRAY_TO_STRING(ARRAY_AGG(DISTINCT comment->'user'->>'login'), ',') AS participants
            FROM thread_metadata tm,
                 jsonb_array_elements(tm.comments_array) AS comment
            WHERE comment->'user'->>'login' IS NOT NULL
            GROUP BY tm.thread_node_id
        ),
        threads_with_resolution AS (
            SELECT
                tm.thread_node_id,
                tm.repository,
                tm.pr_number,
                tm.file_path,
                tm.first_comment_at,
                CASE
                    WHEN tm.second_comment_at IS NOT NULL
                    THEN EXTRACT(EPOCH FROM (tm.second_comment_at - tm.first_comment_at)) / 3600
                    ELSE NULL
                END AS time_to_first_response_hours,
                rt.resolved_at,
                rt.resolver,
                CASE
                    WHEN rt.resolved_at IS NOT NULL
                    THEN EXTRACT(EPOCH FROM (rt.resolved_at - tm.first_comment_at)) / 3600
                    ELSE NULL
                END AS resolution_time_hours,
                tm.comment_count,
                tp.participants,
                cm.can_be_merged_at,
                CASE
                    WHEN rt.resolved_at IS NOT NULL AND cm.can_be_merged_at IS NOT NULL
                    THEN EXTRACT(EPOCH FROM (rt.resolved_at - cm.can_be_merged_at)) / 3600
                    ELSE NULL
                END AS time_from_can_be_merged_hours
            FROM thread_metadata tm
            LEFT JOIN resolved_threads rt ON tm.thread_node_id = rt.thread_node_id
            LEFT JOIN thread_participants tp ON tm.thread_node_id = tp.thread_node_id
            LEFT JOIN can_be_merged cm ON tm.repository = cm.repository AND tm.pr_number::text = cm.pr_number_text
        ),
        counted_threads AS (
            SELECT COUNT(*) AS total_count FROM threads_with_resolution
        )
        SELECT
            twr.thread_node_id,
            twr.repository,
            twr.pr_number,
            twr.file_path,
            twr.first_comment_at,
            twr.time_to_first_response_hours,
            twr.resolved_at,
            twr.resolver,
            twr.resolution_time_hours,
            twr.comment_count,
            twr.participants,
            twr.can_be_merged_at,
            twr.time_from_can_be_merged_hours,
            ct.total_count
        FROM threads_with_resolution twr
        CROSS JOIN counted_threads ct
        ORDER BY twr.first_comment_at DESC
        LIMIT ` + limitPh + ` OFFSET ` + offsetPh

	repoStatsQuery = `
        WITH thread_events AS (
            SELECT
                w.repository,
                w.action,
                w.payload->'thread'->>'node_id' AS thread_node_id
            FROM webhooks w
            WHERE w.event_type = 'pull_request_review_thread'
              AND w.pr_number IS NOT NULL
              AND w.payload->'thread'->>'node_id' IS NOT NULL` + timeFilter + repoFilter + `
        ),
        thread_counts AS (
            SELECT
                repository,
                COUNT(DISTINCT thread_node_id) AS total_threads,
                COUNT(DISTINCT CASE WHEN action = 'resolved' THEN thread_node_id END) AS resolved_threads
            FROM thread_events
            GROUP BY repository
        ),
        resolved_times AS (
            SELECT
                w.repository,
                w.payload->'thread'->'comments'->0->>'created_at' AS first_comment_at_text,
                w.created_at AS resolved_at
            FROM webhooks w
            WHERE w.event_type = 'pull_request_review_thread'
              AND w.action = 'resolved'
              AND w.payload->'thread'->>'node_id' IS NOT NULL` + timeFilter + repoFilter + `
        ),
        resolution_times_calculated AS (
            SELECT
                repository,
                EXTRACT(EPOCH FROM (resolved_at - first_comment_at_text::timestamptz)) / 3600 AS resolution_hours
            FROM resolved_times
            WHERE first_comment_at_text IS NOT NULL
        )
        SELECT
            tc.repository,
            tc.total_threads,
            tc.resolved_threads,
            COALESCE(AVG(rtc.resolution_hours), 0.0) AS avg_resolution_time_hours
        FROM thread_counts tc
        LEFT JOIN resolution_times_calculated rtc ON tc.repository = rtc.repository
        GROUP BY tc.repository, tc.total_threads, tc.resolved_threads
        ORDER BY tc.total_threads DESC`

	return threadsQuery, repoStatsQuery, p.Values(), p.ValuesExcludingPagination()
}

// threadDurations carries the page's full-precision values for the summary.
// The per-thread response fields are rounded for display during scanning,
// so the aggregates must be fed from here, not from the shaped threads:
// averaging already-rounded values would round twice.
type threadDurations struct {
	resolution []float64
	response   []float64
	comments   []float64
	resolved   int
}

// summarizeThreads reduces a page of threads into the summary block.
// total is the full filtered thread count; the averages and the resolved
// numerator come from the page, which is how the numbers have always read.
// Rounding happens exactly once, on each aggregate.
func summarizeThreads(d threadDurations, total int) ResolutionSummary {
	return ResolutionSummary{
		AvgResolutionTimeHours:      round1(mean(d.resolution)),
		MedianResolutionTimeHours:   round1(median(d.resolution)),
		AvgTimeToFirstResponseHours: round1(mean(d.response)),
		AvgCommentsPerThread:        round1(mean(d.comments)),
		TotalThreadsAnalyzed:        total,
		ResolutionRate:              round1(rate(d.resolved, total)),
	}
}

// CommentResolution computes per-thread resolution metrics with pagination.
func (s *Store) CommentResolution(ctx context.Context, f Filters) (*ResolutionReport, error) {
	threadsQuery, repoStatsQuery, threadArgs, filterArgs := buildResolutionQueries(f)

	var (
		threads   []Thread
		durations threadDurations
		total     int
		byRepo    []ResolutionRepoStats
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		threads, durations, total, err = s.scanThreads(ctx, threadsQuery, threadArgs)
		return err
	})
	g.Go(func() (err error) {
		byRepo, err = s.scanResolutionByRepo(ctx, repoStatsQuery, filterArgs)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &ResolutionReport{
		Summary:      summarizeThreads(durations, total),
		ByRepository: byRepo,
		Threads:      threads,
		Pagination:   NewPagination(total, f.Page, f.PageSize),
	}, nil
}

func (s *Store) scanThreads(ctx context.Context, q string, args []any) ([]Thread, threadDurations, int, error) {
	var d threadDurations
	rows, err := s.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, d, 0, fmt.Errorf("threads query: %w", err)
	}
	defer rows.Close()

	threads := []Thread{}
	total := 0
	for rows.Next() {
		var (
			t              Thread
			filePath       sql.NullString
			firstComment   sql.NullTime
			responseHours  sql.NullFloat64
			resolvedAt     sql.NullTime
			resolver       sql.NullString
			resolutionHrs  sql.NullFloat64
			commentCount   sql.NullInt64
			participants   sql.NullString
			canBeMergedAt  sql.NullTime
			fromMergeHours sql.NullFloat64
		)
		if err := rows.Scan(
			&t.ThreadNodeID, &t.Repository, &t.PRNumber, &filePath, &firstComment,
			&responseHours, &resolvedAt, &resolver, &resolutionHrs, &commentCount,
			&participants, &canBeMergedAt, &fromMergeHours, &total,
		); err != nil {
			return nil, d, 0, err
		}
		if resolutionHrs.Valid {
			d.resolution = append(d.resolution, resolutionHrs.Float64)
			d.resolved++
		}
		if responseHours.Valid {
			d.response = append(d.response, responseHours.Float64)
		}
		if commentCount.Int64 > 0 {
			d.comments = append(d.comments, float64(commentCount.Int64))
		}
		t.FilePath = nullStr(filePath)
		t.FirstCommentAt = nullTimeRFC3339(firstComment)
		t.TimeToFirstResponseHours = nullRounded(responseHours)
		t.ResolvedAt = nullTimeRFC3339(resolvedAt)
		t.Resolver = nullStr(resolver)
		t.ResolutionTimeHours = nullRounded(resolutionHrs)
		t.CommentCount = int(commentCount.Int64)
		t.Participants = splitList(participants.String)
		t.CanBeMergedAt = nullTimeRFC3339(canBeMergedAt)
		t.TimeFromCanBeMergedHours = nullRounded(fromMergeHours)
		threads = append(threads, t)
	}
	return threads, d, total, rows.Err()
}

func (s *Store) scanResolutionByRepo(ctx context.Context, q string, args []any) ([]ResolutionRepoStats, error) {
	rows, err := s.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("repo stats query: %w", err)
	}
	defer rows.Close()
	out := []ResolutionRepoStats{}
	for rows.Next() {
		var (
			r   ResolutionRepoStats
			avg float64
		)
		if err := rows.Scan(&r.Repository, &r.TotalThreads, &r.ResolvedThreads, &avg); err != nil {
			return nil, err
		}
		r.AvgResolutionTimeHours = round1(avg)
		out = append(out, r)
	}
	return out, rows.Err()
}
