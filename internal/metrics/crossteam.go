package metrics

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"hookstats/internal/query"
)

// unknownTeam is the bucket for rows whose team affiliation is NULL.
// NULL means "affiliation unknown", which is a real answer the dashboard
// needs to see, not a row to drop.
const unknownTeam = "unknown"

// CrossTeamReview is one cross-team review row.
type CrossTeamReview struct {
	PRNumber     int     `json:"pr_number"`
	Repository   string  `json:"repository"`
	Reviewer     string  `json:"reviewer"`
	ReviewerTeam *string `json:"reviewer_team"`
	PRSigLabel   *string `json:"pr_sig_label"`
	ReviewType   string  `json:"review_type"`
	CreatedAt    string  `json:"created_at"`
}

// CrossTeamSummary groups review counts by team; NULL teams surface under
// the "unknown" key.
type CrossTeamSummary struct {
	TotalCrossTeamReviews int            `json:"total_cross_team_reviews"`
	ByReviewerTeam        map[string]int `json:"by_reviewer_team"`
	ByPRTeam              map[string]int `json:"by_pr_team"`
}

// CrossTeamReport is the response of the cross-team reviews endpoint.
type CrossTeamReport struct {
	Data       []CrossTeamReview `json:"data"`
	Summary    CrossTeamSummary  `json:"summary"`
	Pagination Pagination        `json:"pagination"`
}

// crossTeamPredicate is the shared WHERE body of all four cross-team
// statements. is_cross_team is precomputed at ingestion; queries only
// filter and group on it.
const crossTeamPredicate = `
        FROM webhooks
        WHERE event_type = 'pull_request_review'
          AND is_cross_team = TRUE`

// buildCrossTeamQueries assembles the count/data/summary quartet over one
// binder. The data query alone binds the pagination suffix; count and the
// two summaries bind the filter-only prefix so all four stay consistent.
func buildCrossTeamQueries(f Filters) (countQ, dataQ, byReviewerTeamQ, byPRTeamQ string, dataArgs, filterArgs []any) {
	p := query.NewParams()
	filter := query.TimeFilter(p, "created_at", f.Start, f.End) +
		query.RepositoryFilter(p, "repository", f.Repositories) +
		query.EqFilter(p, "reviewer_team", f.ReviewerTeam) +
		query.EqFilter(p, "pr_sig_label", f.PRTeam)

	p.MarkPaginationStart()
	limitPh := p.Add(f.PageSize)
	offsetPh := p.Add(f.Offset())

	countQ = `
        SELECT COUNT(*) AS total` + crossTeamPredicate + filter

	dataQ = `
        SELECT
            pr_number,
            repository,
            sender AS reviewer,
            reviewer_team,
            pr_sig_label,
            action AS review_type,
            created_at` + crossTeamPredicate + filter + `
        ORDER BY created_at DESC
        LIMIT ` + limitPh + ` OFFSET ` + offsetPh

	byReviewerTeamQ = `
        SELECT reviewer_team, COUNT(*) AS count` + crossTeamPredicate + filter + `
        GROUP BY reviewer_team
        ORDER BY count DESC`

	byPRTeamQ = `
        SELECT pr_sig_label, COUNT(*) AS count` + crossTeamPredicate + filter + `
        GROUP BY pr_sig_label
        ORDER BY count DESC`

	return countQ, dataQ, byReviewerTeamQ, byPRTeamQ, p.Values(), p.ValuesExcludingPagination()
}

// teamCount is one GROUP BY team row; Team is nil when affiliation is
// unknown.
type teamCount struct {
	Team  *string
	Count int
}

// bucketByTeam folds team rows into the summary map, normalizing NULL team
// names to the "unknown" bucket instead of emitting a null key.
func bucketByTeam(rows []teamCount) map[string]int {
	out := make(map[string]int, len(rows))
	for _, r := range rows {
		key := unknownTeam
		if r.Team != nil {
			key = *r.Team
		}
		out[key] += r.Count
	}
	return out
}

// CrossTeamReviews lists reviews flagged cross-team at ingestion, with
// pagination and per-team summaries. The four statements run concurrently.
func (s *Store) CrossTeamReviews(ctx context.Context, f Filters) (*CrossTeamReport, error) {
	countQ, dataQ, byReviewerTeamQ, byPRTeamQ, dataArgs, filterArgs := buildCrossTeamQueries(f)

	var (
		total          int
		data           []CrossTeamReview
		byReviewerTeam []teamCount
		byPRTeam       []teamCount
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.q.QueryRowContext(ctx, countQ, filterArgs...).Scan(&total); err != nil {
			return fmt.Errorf("cross-team count query: %w", err)
		}
		return nil
	})
	g.Go(func() (err error) {
		data, err = s.scanCrossTeamReviews(ctx, dataQ, dataArgs)
		return err
	})
	g.Go(func() (err error) {
		byReviewerTeam, err = s.scanTeamCounts(ctx, byReviewerTeamQ, filterArgs)
		return err
	})
	g.Go(func() (err error) {
		byPRTeam, err = s.scanTeamCounts(ctx, byPRTeamQ, filterArgs)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &CrossTeamReport{
		Data: data,
		Summary: CrossTeamSummary{
			TotalCrossTeamReviews: total,
			ByReviewerTeam:        bucketByTeam(byReviewerTeam),
			ByPRTeam:              bucketByTeam(byPRTeam),
		},
		Pagination: NewPagination(total, f.Page, f.PageSize),
	}, nil
}

func (s *Store) scanCrossTeamReviews(ctx context.Context, q string, args []any) ([]CrossTeamReview, error) {
	rows, err := s.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("cross-team data query: %w", err)
	}
	defer rows.Close()
	out := []CrossTeamReview{}
	for rows.Next() {
		var (
			r            CrossTeamReview
			reviewerTeam sql.NullString
			prSigLabel   sql.NullString
			createdAt    time.Time
		)
		if err := rows.Scan(&r.PRNumber, &r.Repository, &r.Reviewer, &reviewerTeam, &prSigLabel, &r.ReviewType, &createdAt); err != nil {
			return nil, err
		}
		r.ReviewerTeam = nullStr(reviewerTeam)
		r.PRSigLabel = nullStr(prSigLabel)
		r.CreatedAt = createdAt.UTC().Format(time.RFC3339)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) scanTeamCounts(ctx context.Context, q string, args []any) ([]teamCount, error) {
	rows, err := s.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("team summary query: %w", err)
	}
	defer rows.Close()
	var out []teamCount
	for rows.Next() {
		var (
			tc   teamCount
			team sql.NullString
		)
		if err := rows.Scan(&team, &tc.Count); err != nil {
			return nil, err
		}
		tc.Team = nullStr(team)
		out = append(out, tc)
	}
	return out, rows.Err()
}
