// Package gh turns raw webhook deliveries into storable events. Known event
// types parse through go-github's typed structs; anything else is kept as a
// minimal envelope so the payload is never lost.
package gh

import (
	"encoding/json"
	"fmt"

	"github.com/google/go-github/v68/github"

	"hookstats/internal/db"
	"hookstats/internal/teams"
)

// envelope covers the fields every GitHub webhook carries, for event types
// without a typed representation.
type envelope struct {
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
	Sender struct {
		Login string `json:"login"`
	} `json:"sender"`
	Action string `json:"action"`
}

// typedEvents are the event types extracted through go-github structs. A
// malformed payload of one of these still stores as an envelope.
var typedEvents = map[string]bool{
	"pull_request":               true,
	"pull_request_review":        true,
	"pull_request_review_thread": true,
	"issue_comment":              true,
	"check_run":                  true,
}

// ParseEvent extracts the denormalized columns for one delivery. The teams
// directory classifies review events as cross-team; pass teams.Empty() to
// leave the classification columns NULL. When an error is returned alongside
// an event with a repository, the envelope fields are usable and the event
// should be stored with the error recorded.
func ParseEvent(deliveryID, eventType string, payload []byte, dir *teams.Directory) (db.Event, error) {
	e := db.Event{
		DeliveryID: deliveryID,
		EventType:  eventType,
		Payload:    payload,
		Status:     "ok",
	}

	parsed, err := github.ParseWebHook(eventType, payload)
	if err != nil {
		ev, envErr := parseEnvelope(e, payload)
		if envErr != nil {
			return ev, envErr
		}
		if typedEvents[eventType] {
			// The envelope is readable, so the delivery is stored; the
			// typed-parse failure travels with it for the error columns.
			return ev, fmt.Errorf("delivery %s: parsing %s payload: %w", deliveryID, eventType, err)
		}
		// Unknown to go-github, still worth storing.
		return ev, nil
	}

	switch ev := parsed.(type) {
	case *github.PullRequestEvent:
		e.Repository = ev.GetRepo().GetFullName()
		e.Sender = ev.GetSender().GetLogin()
		e.Action = strPtr(ev.GetAction())
		if pr := ev.GetPullRequest(); pr != nil {
			e.PRNumber = intPtr(pr.GetNumber())
			e.PRAuthor = strPtr(pr.GetUser().GetLogin())
			e.PRTitle = strPtr(pr.GetTitle())
			e.PRState = strPtr(pr.GetState())
			merged := pr.GetMerged()
			e.PRMerged = &merged
			e.PRHTMLURL = strPtr(pr.GetHTMLURL())
			e.PRCommitsCount = intPtr(pr.GetCommits())
		}
		if lbl := ev.GetLabel(); lbl != nil {
			e.LabelName = strPtr(lbl.GetName())
		}

	case *github.PullRequestReviewEvent:
		e.Repository = ev.GetRepo().GetFullName()
		e.Sender = ev.GetSender().GetLogin()
		e.Action = strPtr(ev.GetAction())
		if pr := ev.GetPullRequest(); pr != nil {
			e.PRNumber = intPtr(pr.GetNumber())
			e.PRAuthor = strPtr(pr.GetUser().GetLogin())
			e.PRTitle = strPtr(pr.GetTitle())
			e.PRState = strPtr(pr.GetState())
			e.PRHTMLURL = strPtr(pr.GetHTMLURL())

			c := dir.Classify(e.Sender, labelNames(pr.Labels))
			e.ReviewerTeam = c.ReviewerTeam
			e.PRSigLabel = c.PRSigLabel
			e.IsCrossTeam = c.IsCrossTeam
		}

	case *github.PullRequestReviewThreadEvent:
		e.Repository = ev.GetRepo().GetFullName()
		e.Sender = ev.GetSender().GetLogin()
		e.Action = strPtr(ev.GetAction())
		if pr := ev.GetPullRequest(); pr != nil {
			e.PRNumber = intPtr(pr.GetNumber())
			e.PRAuthor = strPtr(pr.GetUser().GetLogin())
		}

	case *github.IssueCommentEvent:
		e.Repository = ev.GetRepo().GetFullName()
		e.Sender = ev.GetSender().GetLogin()
		e.Action = strPtr(ev.GetAction())
		// Comments on PRs arrive as issue_comment; the issue number is the
		// PR number only when the issue is a PR.
		if issue := ev.GetIssue(); issue != nil && issue.IsPullRequest() {
			e.PRNumber = intPtr(issue.GetNumber())
			e.PRAuthor = strPtr(issue.GetUser().GetLogin())
			e.PRTitle = strPtr(issue.GetTitle())
			e.PRState = strPtr(issue.GetState())
			e.PRHTMLURL = strPtr(issue.GetHTMLURL())
		}

	case *github.CheckRunEvent:
		e.Repository = ev.GetRepo().GetFullName()
		e.Sender = ev.GetSender().GetLogin()
		e.Action = strPtr(ev.GetAction())
		if cr := ev.GetCheckRun(); cr != nil && len(cr.PullRequests) > 0 {
			e.PRNumber = intPtr(cr.PullRequests[0].GetNumber())
		}

	default:
		return parseEnvelope(e, payload)
	}

	if e.Repository == "" {
		return e, fmt.Errorf("delivery %s: missing repository", deliveryID)
	}
	return e, nil
}

func parseEnvelope(e db.Event, payload []byte) (db.Event, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return e, fmt.Errorf("delivery %s: %w", e.DeliveryID, err)
	}
	if env.Repository.FullName == "" {
		return e, fmt.Errorf("delivery %s: missing repository", e.DeliveryID)
	}
	e.Repository = env.Repository.FullName
	e.Sender = env.Sender.Login
	if env.Action != "" {
		e.Action = &env.Action
	}
	return e, nil
}

func labelNames(labels []*github.Label) []string {
	names := make([]string, 0, len(labels))
	for _, l := range labels {
		names = append(names, l.GetName())
	}
	return names
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func intPtr(n int) *int {
	if n == 0 {
		return nil
	}
	return &n
}
