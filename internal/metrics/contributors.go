package metrics

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"hookstats/internal/query"
)

// Role selects which relationship between a user and a PR the user-prs
// endpoint filters on. The set is closed: anything else is a client error
// detected before a query is built.
type Role string

const (
	// RoleNone lists PRs filtered by author without role-specific joins.
	RoleNone Role = ""
	// RolePRCreators attributes each PR to exactly one creator, taken from
	// the earliest event per (repository, pr_number).
	RolePRCreators Role = "pr_creators"
	// RolePRReviewers matches submitted non-self reviews.
	RolePRReviewers Role = "pr_reviewers"
	// RolePRApprovers matches 'approved-<user>' label events.
	RolePRApprovers Role = "pr_approvers"
	// RolePRLGTM matches 'lgtm-<user>' label events.
	RolePRLGTM Role = "pr_lgtm"
)

// Label prefixes carry the acting user as a suffix; SUBSTRING is 1-indexed,
// so the offset is len(prefix)+1.
const (
	approvedLabelOffset = 10 // len("approved-") + 1
	lgtmLabelOffset     = 6  // len("lgtm-") + 1
)

// ParseRole validates a role query value. The empty string is RoleNone.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleNone, RolePRCreators, RolePRReviewers, RolePRApprovers, RolePRLGTM:
		return Role(s), nil
	}
	return RoleNone, fmt.Errorf("invalid role %q, must be one of: pr_creators, pr_reviewers, pr_approvers, pr_lgtm", s)
}

// roleBaseCondition is the event predicate identifying the role's
// qualifying events.
func roleBaseCondition(r Role) string {
	switch r {
	case RolePRReviewers:
		return "events.event_type = 'pull_request_review' AND events.action = 'submitted' AND events.sender IS DISTINCT FROM events.pr_author"
	case RolePRApprovers:
		return "events.event_type = 'pull_request' AND events.action = 'labeled' AND events.label_name LIKE 'approved-%'"
	case RolePRLGTM:
		return "events.event_type = 'pull_request' AND events.action = 'labeled' AND events.label_name LIKE 'lgtm-%'"
	}
	return ""
}

// roleLabelOffset returns the SUBSTRING offset extracting the user from the
// role's label name, or 0 for roles attributed by sender.
func roleLabelOffset(r Role) int {
	switch r {
	case RolePRApprovers:
		return approvedLabelOffset
	case RolePRLGTM:
		return lgtmLabelOffset
	}
	return 0
}

// UserPR is one PR row of the user-prs listing. Display fields prefer the
// extracted columns and fall back to payload paths, so events recorded
// before the columns existed still render.
type UserPR struct {
	Number       int     `json:"number"`
	Title        *string `json:"title"`
	Owner        *string `json:"owner"`
	Repository   string  `json:"repository"`
	State        *string `json:"state"`
	Merged       bool    `json:"merged"`
	URL          *string `json:"url"`
	CreatedAt    *string `json:"created_at"`
	UpdatedAt    *string `json:"updated_at"`
	CommitsCount int     `json:"commits_count"`
	HeadSHA      *string `json:"head_sha"`
}

// UserPRsReport is the response of the user-prs endpoint.
type UserPRsReport struct {
	Data       []UserPR   `json:"data"`
	Pagination Pagination `json:"pagination"`
}

// prMergedStatusCTE folds every event of a PR into a single merged flag.
// A PR is merged if any of its events says so.
func prMergedStatusCTE() string {
	return `
        pr_merged_status AS (
            SELECT
                repository,
                pr_number,
                BOOL_OR(COALESCE(pr_merged, (payload->'pull_request'->>'merged')::boolean, FALSE)) AS merged
            FROM webhooks
            WHERE pr_number IS NOT NULL
            GROUP BY repository, pr_number
        )`
}

// prCreatorsCTE picks exactly one creator event per (repository, pr_number):
// the earliest one, so a PR referenced by many events is counted once.
func prCreatorsCTE(timeFilter, repoFilter string) string {
	return `
        pr_creators AS (
            SELECT DISTINCT ON (repository, pr_number)
                repository,
                pr_number,
                COALESCE(
                    pr_author,
                    payload->'pull_request'->'user'->>'login',
                    payload->'issue'->'user'->>'login'
                ) AS pr_creator
            FROM webhooks
            WHERE pr_number IS NOT NULL` + timeFilter + repoFilter + `
            ORDER BY repository, pr_number, created_at ASC
        )`
}

// prDetailColumns selects the display fields for one PR row, preferring the
// extracted scalar columns over payload-path lookups.
const prDetailColumns = `
                pr_data.pr_number,
                COALESCE(
                    pr_data.pr_title,
                    pr_data.payload->'pull_request'->>'title',
                    pr_data.payload->'issue'->>'title'
                ) AS title,
                %s AS owner,
                pr_data.repository,
                COALESCE(
                    pr_data.pr_state,
                    pr_data.payload->'pull_request'->>'state',
                    pr_data.payload->'issue'->>'state'
                ) AS state,
                COALESCE(pms.merged, FALSE) AS merged,
                COALESCE(
                    pr_data.pr_html_url,
                    pr_data.payload->'pull_request'->>'html_url',
                    pr_data.payload->'issue'->>'html_url'
                ) AS url,
                COALESCE(
                    pr_data.payload->'pull_request'->>'created_at',
                    pr_data.payload->'issue'->>'created_at'
                ) AS created_at,
                COALESCE(
                    pr_data.payload->'pull_request'->>'updated_at',
                    pr_data.payload->'issue'->>'updated_at'
                ) AS updated_at,
                COALESCE(pr_data.pr_commits_count, 0) AS commits_count,
                pr_data.payload->'pull_request'->'head'->>'sha' AS head_sha`

// buildEventRoleQueries assembles the count/data pair for event-based roles
// (reviewers, approvers, lgtm). Time filters apply to the qualifying event,
// not to PR creation, and the attributed user comes from the matching event
// (sender, or the label-name suffix for label roles).
func buildEventRoleQueries(f Filters) (countQ, dataQ string, dataArgs, countArgs []any) {
	p := query.NewParams()
	conds := []string{roleBaseCondition(f.Role)}

	if offset := roleLabelOffset(f.Role); offset > 0 {
		if len(f.Users) > 0 {
			conds = append(conds, fmt.Sprintf("SUBSTRING(events.label_name FROM %d) = ANY(%s)", offset, p.Add(f.Users)))
		}
		if len(f.ExcludeUsers) > 0 {
			conds = append(conds, fmt.Sprintf("SUBSTRING(events.label_name FROM %d) != ALL(%s)", offset, p.Add(f.ExcludeUsers)))
		}
	} else {
		if len(f.Users) > 0 {
			conds = append(conds, "events.sender = ANY("+p.Add(f.Users)+")")
		}
		if len(f.ExcludeUsers) > 0 {
			conds = append(conds, "events.sender != ALL("+p.Add(f.ExcludeUsers)+")")
		}
	}
	if f.Start != nil {
		conds = append(conds, "events.created_at >= "+p.Add(*f.Start))
	}
	if f.End != nil {
		conds = append(conds, "events.created_at <= "+p.Add(*f.End))
	}
	if len(f.Repositories) > 0 {
		conds = append(conds, "events.repository = ANY("+p.Add(f.Repositories)+")")
	}
	eventWhere := strings.Join(conds, " AND ")

	matchingEvents := `
        matching_events AS (
            SELECT DISTINCT events.repository, events.pr_number
            FROM webhooks events
            WHERE ` + eventWhere + `
              AND events.pr_number IS NOT NULL
        )`

	// EXISTS guards against counting events whose PR has no detail row to
	// join against in the data query.
	countQ = `
        WITH` + matchingEvents + `
        SELECT COUNT(*) AS total
        FROM matching_events
        WHERE EXISTS (
            SELECT 1 FROM webhooks pr_data
            WHERE pr_data.repository = matching_events.repository
              AND pr_data.pr_number = matching_events.pr_number
              AND pr_data.pr_number IS NOT NULL
        )`

	p.MarkPaginationStart()
	limitPh := p.Add(f.PageSize)
	offsetPh := p.Add(f.Offset())

	owner := `COALESCE(
                    pr_data.pr_author,
                    pr_data.payload->'pull_request'->'user'->>'login',
                    pr_data.payload->'issue'->'user'->>'login'
                )`
	dataQ = `
        WITH` + matchingEvents + `,` + prMergedStatusCTE() + `
        SELECT DISTINCT ON (pr_data.repository, pr_data.pr_number)` +
		fmt.Sprintf(prDetailColumns, owner) + `
        FROM matching_events
        INNER JOIN webhooks pr_data
            ON pr_data.repository = matching_events.repository
            AND pr_data.pr_number = matching_events.pr_number
            AND pr_data.pr_number IS NOT NULL
        LEFT JOIN pr_merged_status pms
            ON pms.repository = pr_data.repository
            AND pms.pr_number = pr_data.pr_number
        ORDER BY pr_data.repository, pr_data.pr_number DESC, pr_data.created_at DESC
        LIMIT ` + limitPh + ` OFFSET ` + offsetPh

	return countQ, dataQ, p.Values(), p.ValuesExcludingPagination()
}

// buildCreatorQueries assembles the count/data pair for the pr_creators
// role.
func buildCreatorQueries(f Filters) (countQ, dataQ string, dataArgs, countArgs []any) {
	p := query.NewParams()
	timeFilter := query.TimeFilter(p, "created_at", f.Start, f.End)
	repoFilter := query.RepositoryFilter(p, "repository", f.Repositories)
	userFilter := query.UserFilter(p, "pr_creator", f.Users)
	excludeFilter := query.ExcludeUserFilter(p, "pr_creator", f.ExcludeUsers)

	cte := prCreatorsCTE(timeFilter, repoFilter)

	countQ = `
        WITH` + cte + `
        SELECT COUNT(*) AS total
        FROM pr_creators
        WHERE pr_creator IS NOT NULL` + userFilter + excludeFilter

	p.MarkPaginationStart()
	limitPh := p.Add(f.PageSize)
	offsetPh := p.Add(f.Offset())

	dataQ = `
        WITH` + cte + `,` + prMergedStatusCTE() + `
        SELECT DISTINCT ON (pr_data.repository, pr_data.pr_number)` +
		fmt.Sprintf(prDetailColumns, "pc.pr_creator") + `
        FROM pr_creators pc
        INNER JOIN webhooks pr_data
            ON pr_data.repository = pc.repository
            AND pr_data.pr_number = pc.pr_number
            AND pr_data.pr_number IS NOT NULL
        LEFT JOIN pr_merged_status pms
            ON pms.repository = pr_data.repository
            AND pms.pr_number = pr_data.pr_number
        WHERE pc.pr_creator IS NOT NULL` + userFilter + excludeFilter + `
        ORDER BY pr_data.repository, pr_data.pr_number DESC, pr_data.created_at DESC
        LIMIT ` + limitPh + ` OFFSET ` + offsetPh

	return countQ, dataQ, p.Values(), p.ValuesExcludingPagination()
}

// buildAuthorQueries assembles the count/data pair for the role-less
// listing, filtering on the extracted pr_author column only.
func buildAuthorQueries(f Filters) (countQ, dataQ string, dataArgs, countArgs []any) {
	p := query.NewParams()
	var conds []string
	if len(f.Users) > 0 {
		conds = append(conds, "pr_author = ANY("+p.Add(f.Users)+")")
	}
	if len(f.ExcludeUsers) > 0 {
		conds = append(conds, "pr_author != ALL("+p.Add(f.ExcludeUsers)+")")
	}
	if f.Start != nil {
		conds = append(conds, "created_at >= "+p.Add(*f.Start))
	}
	if f.End != nil {
		conds = append(conds, "created_at <= "+p.Add(*f.End))
	}
	if len(f.Repositories) > 0 {
		conds = append(conds, "repository = ANY("+p.Add(f.Repositories)+")")
	}
	where := "1=1"
	if len(conds) > 0 {
		where = strings.Join(conds, " AND ")
	}

	countQ = `
        SELECT COUNT(DISTINCT pr_number) AS total
        FROM webhooks
        WHERE event_type = 'pull_request'
          AND pr_number IS NOT NULL
          AND ` + where

	p.MarkPaginationStart()
	limitPh := p.Add(f.PageSize)
	offsetPh := p.Add(f.Offset())

	dataQ = `
        SELECT DISTINCT ON (repository, pr_number)
            pr_number,
            pr_title AS title,
            pr_author AS owner,
            repository,
            pr_state AS state,
            COALESCE(pr_merged, FALSE) AS merged,
            pr_html_url AS url,
            payload->'pull_request'->>'created_at' AS created_at,
            payload->'pull_request'->>'updated_at' AS updated_at,
            COALESCE(pr_commits_count, 0) AS commits_count,
            payload->'pull_request'->'head'->>'sha' AS head_sha
        FROM webhooks
        WHERE event_type = 'pull_request'
          AND pr_number IS NOT NULL
          AND ` + where + `
        ORDER BY repository, pr_number DESC, webhooks.created_at DESC
        LIMIT ` + limitPh + ` OFFSET ` + offsetPh

	return countQ, dataQ, p.Values(), p.ValuesExcludingPagination()
}

// buildUserPRQueries dispatches on the closed role set.
func buildUserPRQueries(f Filters) (countQ, dataQ string, dataArgs, countArgs []any) {
	switch f.Role {
	case RolePRReviewers, RolePRApprovers, RolePRLGTM:
		return buildEventRoleQueries(f)
	case RolePRCreators:
		return buildCreatorQueries(f)
	default:
		return buildAuthorQueries(f)
	}
}

// UserPullRequests lists PRs filtered by user and role, paginated. The count
// and data queries share one filter predicate; the count binds the
// filter-only prefix so both see the same rows.
func (s *Store) UserPullRequests(ctx context.Context, f Filters) (*UserPRsReport, error) {
	countQ, dataQ, dataArgs, countArgs := buildUserPRQueries(f)

	var (
		total int
		prs   []UserPR
	)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.q.QueryRowContext(ctx, countQ, countArgs...).Scan(&total); err != nil {
			return fmt.Errorf("user prs count query: %w", err)
		}
		return nil
	})
	g.Go(func() (err error) {
		prs, err = s.scanUserPRs(ctx, dataQ, dataArgs)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &UserPRsReport{
		Data:       prs,
		Pagination: NewPagination(total, f.Page, f.PageSize),
	}, nil
}

func (s *Store) scanUserPRs(ctx context.Context, q string, args []any) ([]UserPR, error) {
	rows, err := s.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("user prs data query: %w", err)
	}
	defer rows.Close()
	out := []UserPR{}
	for rows.Next() {
		var (
			pr                  UserPR
			title, owner, state sql.NullString
			url, created        sql.NullString
			updated, headSHA    sql.NullString
		)
		if err := rows.Scan(&pr.Number, &title, &owner, &pr.Repository, &state, &pr.Merged,
			&url, &created, &updated, &pr.CommitsCount, &headSHA); err != nil {
			return nil, err
		}
		pr.Title = nullStr(title)
		pr.Owner = nullStr(owner)
		pr.State = nullStr(state)
		pr.URL = nullStr(url)
		pr.CreatedAt = nullStr(created)
		pr.UpdatedAt = nullStr(updated)
		pr.HeadSHA = nullStr(headSHA)
		out = append(out, pr)
	}
	return out, rows.Err()
}
