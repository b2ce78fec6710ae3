package metrics

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"hookstats/internal/query"
)

// TurnaroundSummary covers all PRs opened in range. The per-milestone
// averages are conditional on the milestone having occurred, while
// total_prs_analyzed counts every opened PR; the apparent mismatch between
// the two is intentional and load-bearing for existing dashboards.
type TurnaroundSummary struct {
	AvgTimeToFirstReviewHours           float64 `json:"avg_time_to_first_review_hours"`
	AvgTimeToApprovalHours              float64 `json:"avg_time_to_approval_hours"`
	AvgTimeToFirstVerifiedHours         float64 `json:"avg_time_to_first_verified_hours"`
	AvgTimeToFirstChangesRequestedHours float64 `json:"avg_time_to_first_changes_requested_hours"`
	AvgPRLifecycleHours                 float64 `json:"avg_pr_lifecycle_hours"`
	TotalPRsAnalyzed                    int     `json:"total_prs_analyzed"`
}

// TurnaroundRepoStats is one by-repository breakdown row.
type TurnaroundRepoStats struct {
	Repository                          string  `json:"repository"`
	AvgTimeToFirstReviewHours           float64 `json:"avg_time_to_first_review_hours"`
	AvgTimeToApprovalHours              float64 `json:"avg_time_to_approval_hours"`
	AvgTimeToFirstVerifiedHours         float64 `json:"avg_time_to_first_verified_hours"`
	AvgTimeToFirstChangesRequestedHours float64 `json:"avg_time_to_first_changes_requested_hours"`
	AvgPRLifecycleHours                 float64 `json:"avg_pr_lifecycle_hours"`
	TotalPRs                            int     `json:"total_prs"`
}

// TurnaroundReviewerStats is one by-reviewer breakdown row.
type TurnaroundReviewerStats struct {
	Reviewer             string   `json:"reviewer"`
	AvgResponseTimeHours float64  `json:"avg_response_time_hours"`
	TotalReviews         int      `json:"total_reviews"`
	RepositoriesReviewed []string `json:"repositories_reviewed"`
}

// TurnaroundReport is the response of the turnaround endpoint.
type TurnaroundReport struct {
	Summary      TurnaroundSummary         `json:"summary"`
	ByRepository []TurnaroundRepoStats     `json:"by_repository"`
	ByReviewer   []TurnaroundReviewerStats `json:"by_reviewer"`
}

// prOpenedCTE anchors the earliest 'opened' event per (repository,
// pr_number); ties on created_at are broken arbitrarily by the engine.
func prOpenedCTE(timeFilter, repoFilter string) string {
	return `
        pr_opened AS (
            SELECT
                repository,
                pr_number,
                MIN(created_at) AS opened_at
            FROM webhooks
            WHERE event_type = 'pull_request'
              AND action = 'opened'
              AND pr_number IS NOT NULL` + timeFilter + repoFilter + `
            GROUP BY repository, pr_number
        )`
}

// firstReviewCTE finds the earliest non-self review per anchored PR.
// Self-reviews (sender = pr_author) never count as a first review.
func firstReviewCTE(userFilter, excludeFilter string) string {
	return `
        first_review AS (
            SELECT
                w.repository,
                w.pr_number,
                MIN(w.created_at) AS first_review_at
            FROM webhooks w
            INNER JOIN pr_opened po ON w.repository = po.repository AND w.pr_number = po.pr_number
            WHERE w.event_type = 'pull_request_review'
              AND w.action = 'submitted'
              AND w.sender IS DISTINCT FROM w.pr_author` + userFilter + excludeFilter + `
            GROUP BY w.repository, w.pr_number
        )`
}

func firstApprovalCTE() string {
	return `
        first_approval AS (
            SELECT
                w.repository,
                w.pr_number,
                MIN(w.created_at) AS first_approval_at
            FROM webhooks w
            INNER JOIN pr_opened po ON w.repository = po.repository AND w.pr_number = po.pr_number
            WHERE w.event_type = 'pull_request'
              AND w.action = 'labeled'
              AND w.label_name LIKE 'approved-%'
            GROUP BY w.repository, w.pr_number
        )`
}

func firstVerifiedCTE() string {
	return `
        first_verified AS (
            SELECT
                w.repository,
                w.pr_number,
                MIN(w.created_at) AS first_verified_at
            FROM webhooks w
            INNER JOIN pr_opened po ON w.repository = po.repository AND w.pr_number = po.pr_number
            WHERE w.event_type = 'pull_request'
              AND w.action = 'labeled'
              AND LOWER(w.label_name) LIKE '%verified%'
            GROUP BY w.repository, w.pr_number
        )`
}

func firstChangesRequestedCTE() string {
	return `
        first_changes_requested AS (
            SELECT
                w.repository,
                w.pr_number,
                MIN(w.created_at) AS first_changes_requested_at
            FROM webhooks w
            INNER JOIN pr_opened po ON w.repository = po.repository AND w.pr_number = po.pr_number
            WHERE w.event_type = 'pull_request_review'
              AND w.action = 'submitted'
              AND w.payload->'review'->>'state' = 'changes_requested'
            GROUP BY w.repository, w.pr_number
        )`
}

func prClosedCTE() string {
	return `
        pr_closed AS (
            SELECT
                w.repository,
                w.pr_number,
                MIN(w.created_at) AS closed_at
            FROM webhooks w
            INNER JOIN pr_opened po ON w.repository = po.repository AND w.pr_number = po.pr_number
            WHERE w.event_type = 'pull_request'
              AND w.action = 'closed'
            GROUP BY w.repository, w.pr_number
        )`
}

// turnaroundQueries holds the eight assembled statements plus the two
// argument lists. Only the reviewer-centric statements (first review,
// by-repository, by-reviewer) see the user include/exclude filters; approval,
// verified, changes-requested, lifecycle, and the total count stay global for
// the time/repository filters because they track PR completion states, not
// reviewer activity.
type turnaroundQueries struct {
	firstReview      string
	approval         string
	verified         string
	changesRequested string
	lifecycle        string
	totalPRs         string
	byRepository     string
	byReviewer       string

	baseArgs     []any
	reviewerArgs []any
}

func buildTurnaroundQueries(f Filters) turnaroundQueries {
	base := query.NewParams()
	timeFilter := query.TimeFilter(base, "created_at", f.Start, f.End)
	repoFilter := query.RepositoryFilter(base, "repository", f.Repositories)

	// Reviewer queries share the base prefix and extend it on a clone so the
	// base placeholders keep their positions in both argument lists.
	reviewer := base.Clone()
	userFilter := query.UserFilter(reviewer, "w.sender", f.Users)
	excludeFilter := query.ExcludeUserFilter(reviewer, "w.sender", f.ExcludeUsers)

	opened := prOpenedCTE(timeFilter, repoFilter)

	q := turnaroundQueries{
		baseArgs:     base.Values(),
		reviewerArgs: reviewer.Values(),
	}

	q.firstReview = `
        WITH` + opened + `,` + firstReviewCTE(userFilter, excludeFilter) + `
        SELECT
            EXTRACT(EPOCH FROM (fr.first_review_at - po.opened_at)) / 3600 AS hours_to_first_review
        FROM pr_opened po
        INNER JOIN first_review fr ON po.repository = fr.repository AND po.pr_number = fr.pr_number`

	q.approval = `
        WITH` + opened + `,` + firstApprovalCTE() + `
        SELECT
            EXTRACT(EPOCH FROM (fa.first_approval_at - po.opened_at)) / 3600 AS hours_to_approval
        FROM pr_opened po
        INNER JOIN first_approval fa ON po.repository = fa.repository AND po.pr_number = fa.pr_number`

	q.verified = `
        WITH` + opened + `,` + firstVerifiedCTE() + `
        SELECT
            EXTRACT(EPOCH FROM (fv.first_verified_at - po.opened_at)) / 3600 AS hours_to_verified
        FROM pr_opened po
        INNER JOIN first_verified fv ON po.repository = fv.repository AND po.pr_number = fv.pr_number`

	q.changesRequested = `
        WITH` + opened + `,` + firstChangesRequestedCTE() + `
        SELECT
            EXTRACT(EPOCH FROM (fcr.first_changes_requested_at - po.opened_at)) / 3600 AS hours_to_changes_requested
        FROM pr_opened po
        INNER JOIN first_changes_requested fcr ON po.repository = fcr.repository AND po.pr_number = fcr.pr_number`

	// Lifecycle is the one summary metric restricted to PRs that reached a
	// terminal state; still-open PRs contribute nothing here.
	q.lifecycle = `
        WITH` + opened + `,` + prClosedCTE() + `
        SELECT
            AVG(EXTRACT(EPOCH FROM (pc.closed_at - po.opened_at)) / 3600) AS avg_hours,
            COUNT(*) AS total_prs
        FROM pr_opened po
        INNER JOIN pr_closed pc ON po.repository = pc.repository AND po.pr_number = pc.pr_number`

	// total_prs_analyzed counts ALL opened PRs in range, deliberately
	// decoupled from the per-milestone denominators above.
	q.totalPRs = `
        SELECT COUNT(DISTINCT (repository, pr_number)) AS total_prs
        FROM webhooks
        WHERE event_type = 'pull_request'
          AND action = 'opened'
          AND pr_number IS NOT NULL` + timeFilter + repoFilter

	q.byRepository = `
        WITH` + opened + `,` +
		firstReviewCTE(userFilter, excludeFilter) + `,` +
		firstApprovalCTE() + `,` +
		firstVerifiedCTE() + `,` +
		firstChangesRequestedCTE() + `,` +
		prClosedCTE() + `
        SELECT
            po.repository,
            ROUND(AVG(EXTRACT(EPOCH FROM (fr.first_review_at - po.opened_at)) / 3600)::numeric, 1) AS avg_time_to_first_review_hours,
            ROUND(AVG(EXTRACT(EPOCH FROM (fa.first_approval_at - po.opened_at)) / 3600)::numeric, 1) AS avg_time_to_approval_hours,
            ROUND(AVG(EXTRACT(EPOCH FROM (fv.first_verified_at - po.opened_at)) / 3600)::numeric, 1) AS avg_time_to_first_verified_hours,
            ROUND(AVG(EXTRACT(EPOCH FROM (fcr.first_changes_requested_at - po.opened_at)) / 3600)::numeric, 1) AS avg_time_to_first_changes_requested_hours,
            ROUND(AVG(EXTRACT(EPOCH FROM (pc.closed_at - po.opened_at)) / 3600)::numeric, 1) AS avg_pr_lifecycle_hours,
            COUNT(DISTINCT po.pr_number) AS total_prs
        FROM pr_opened po
        LEFT JOIN first_review fr ON po.repository = fr.repository AND po.pr_number = fr.pr_number
        LEFT JOIN first_approval fa ON po.repository = fa.repository AND po.pr_number = fa.pr_number
        LEFT JOIN first_verified fv ON po.repository = fv.repository AND po.pr_number = fv.pr_number
        LEFT JOIN first_changes_requested fcr ON po.repository = fcr.repository AND po.pr_number = fcr.pr_number
        LEFT JOIN pr_closed pc ON po.repository = pc.repository AND po.pr_number = pc.pr_number
        GROUP BY po.repository
        ORDER BY total_prs DESC`

	q.byReviewer = `
        WITH` + opened + `
        SELECT
            w.sender AS reviewer,
            ROUND(AVG(EXTRACT(EPOCH FROM (w.created_at - po.opened_at)) / 3600)::numeric, 1) AS avg_response_time_hours,
            COUNT(*) AS total_reviews,
            ARRAY_TO_STRING(ARRAY_AGG(DISTINCT w.repository ORDER BY w.repository), ',') AS repositories
        FROM webhooks w
        INNER JOIN pr_opened po ON w.repository = po.repository AND w.pr_number = po.pr_number
        WHERE w.event_type = 'pull_request_review'
          AND w.action = 'submitted'
          AND w.sender IS DISTINCT FROM w.pr_author` + userFilter + excludeFilter + `
        GROUP BY w.sender
        ORDER BY total_reviews DESC`

	return q
}

// summarizeTurnaround reduces the per-PR duration rows into the summary.
// Averages are taken over full-precision hours and rounded once here.
func summarizeTurnaround(firstReview, approval, verified, changesRequested []float64, lifecycleAvg sql.NullFloat64, totalPRs int) TurnaroundSummary {
	s := TurnaroundSummary{
		AvgTimeToFirstReviewHours:           round1(mean(firstReview)),
		AvgTimeToApprovalHours:              round1(mean(approval)),
		AvgTimeToFirstVerifiedHours:         round1(mean(verified)),
		AvgTimeToFirstChangesRequestedHours: round1(mean(changesRequested)),
		TotalPRsAnalyzed:                    totalPRs,
	}
	if lifecycleAvg.Valid {
		s.AvgPRLifecycleHours = round1(lifecycleAvg.Float64)
	}
	return s
}

// ReviewTurnaround computes the turnaround report. The eight sub-queries run
// concurrently; any failure cancels the rest and fails the request whole.
func (s *Store) ReviewTurnaround(ctx context.Context, f Filters) (*TurnaroundReport, error) {
	qs := buildTurnaroundQueries(f)

	var (
		firstReview      []float64
		approval         []float64
		verified         []float64
		changesRequested []float64
		lifecycleAvg     sql.NullFloat64
		totalPRs         int
		byRepo           []TurnaroundRepoStats
		byReviewer       []TurnaroundReviewerStats
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		firstReview, err = s.scanHours(ctx, qs.firstReview, qs.reviewerArgs)
		return err
	})
	g.Go(func() (err error) {
		approval, err = s.scanHours(ctx, qs.approval, qs.baseArgs)
		return err
	})
	g.Go(func() (err error) {
		verified, err = s.scanHours(ctx, qs.verified, qs.baseArgs)
		return err
	})
	g.Go(func() (err error) {
		changesRequested, err = s.scanHours(ctx, qs.changesRequested, qs.baseArgs)
		return err
	})
	g.Go(func() error {
		var n int
		if err := s.q.QueryRowContext(ctx, qs.lifecycle, qs.baseArgs...).Scan(&lifecycleAvg, &n); err != nil {
			return fmt.Errorf("pr lifecycle query: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := s.q.QueryRowContext(ctx, qs.totalPRs, qs.baseArgs...).Scan(&totalPRs); err != nil {
			return fmt.Errorf("total prs query: %w", err)
		}
		return nil
	})
	g.Go(func() (err error) {
		byRepo, err = s.scanTurnaroundByRepo(ctx, qs.byRepository, qs.reviewerArgs)
		return err
	})
	g.Go(func() (err error) {
		byReviewer, err = s.scanTurnaroundByReviewer(ctx, qs.byReviewer, qs.reviewerArgs)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &TurnaroundReport{
		Summary:      summarizeTurnaround(firstReview, approval, verified, changesRequested, lifecycleAvg, totalPRs),
		ByRepository: byRepo,
		ByReviewer:   byReviewer,
	}, nil
}

// scanHours collects a single non-null float column of per-PR durations.
func (s *Store) scanHours(ctx context.Context, q string, args []any) ([]float64, error) {
	rows, err := s.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("duration query: %w", err)
	}
	defer rows.Close()
	var out []float64
	for rows.Next() {
		var h sql.NullFloat64
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		if h.Valid {
			out = append(out, h.Float64)
		}
	}
	return out, rows.Err()
}

func (s *Store) scanTurnaroundByRepo(ctx context.Context, q string, args []any) ([]TurnaroundRepoStats, error) {
	rows, err := s.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("by-repository query: %w", err)
	}
	defer rows.Close()
	out := []TurnaroundRepoStats{}
	for rows.Next() {
		var (
			r                                            TurnaroundRepoStats
			firstReview, approval, verified, cr, closeAt sql.NullFloat64
		)
		if err := rows.Scan(&r.Repository, &firstReview, &approval, &verified, &cr, &closeAt, &r.TotalPRs); err != nil {
			return nil, err
		}
		r.AvgTimeToFirstReviewHours = firstReview.Float64
		r.AvgTimeToApprovalHours = approval.Float64
		r.AvgTimeToFirstVerifiedHours = verified.Float64
		r.AvgTimeToFirstChangesRequestedHours = cr.Float64
		r.AvgPRLifecycleHours = closeAt.Float64
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) scanTurnaroundByReviewer(ctx context.Context, q string, args []any) ([]TurnaroundReviewerStats, error) {
	rows, err := s.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("by-reviewer query: %w", err)
	}
	defer rows.Close()
	out := []TurnaroundReviewerStats{}
	for rows.Next() {
		var (
			r        TurnaroundReviewerStats
			avg      sql.NullFloat64
			repoList string
		)
		if err := rows.Scan(&r.Reviewer, &avg, &r.TotalReviews, &repoList); err != nil {
			return nil, err
		}
		r.AvgResponseTimeHours = avg.Float64
		if repoList != "" {
			r.RepositoriesReviewed = strings.Split(repoList, ",")
		} else {
			r.RepositoriesReviewed = []string{}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
