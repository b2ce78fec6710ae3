// seed inserts a batch of synthetic webhook deliveries so the metric
// endpoints have data to chew on during development:
//
//	go run ./cmd/seed
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/joho/godotenv"

	"hookstats/internal/config"
	"hookstats/internal/db"
)

var repos = []string{
	"acme/storage",
	"acme/scheduler",
	"acme/gateway",
	"acme/console",
}

var users = []string{"alice", "bob", "carol", "dave", "erin"}

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	database, err := db.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()

	ctx := context.Background()
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	total := 0

	for prNum := 1; prNum <= 40; prNum++ {
		repo := repos[rng.Intn(len(repos))]
		author := users[rng.Intn(len(users))]
		opened := time.Now().Add(-time.Duration(rng.Intn(30*24)) * time.Hour)

		total += insert(ctx, database, prEvent(repo, prNum, author, "opened", opened))

		// Most PRs get a review within a day or two.
		if rng.Intn(10) < 8 {
			reviewer := users[rng.Intn(len(users))]
			for reviewer == author {
				reviewer = users[rng.Intn(len(users))]
			}
			reviewedAt := opened.Add(time.Duration(1+rng.Intn(48)) * time.Hour)
			total += insert(ctx, database, reviewEvent(repo, prNum, author, reviewer, reviewedAt))

			labeledAt := reviewedAt.Add(time.Duration(rng.Intn(12)) * time.Hour)
			total += insert(ctx, database, labelEvent(repo, prNum, author, "approved-"+reviewer, labeledAt))
			total += insert(ctx, database, prEvent(repo, prNum, author, "closed", labeledAt.Add(2*time.Hour)))
		}
	}

	log.Printf("seeded %d webhook events", total)
}

func insert(ctx context.Context, database *db.DB, e db.Event) int {
	ok, err := database.InsertEvent(ctx, e)
	if err != nil {
		log.Fatalf("insert failed: %v", err)
	}
	if !ok {
		return 0
	}
	return 1
}

func prEvent(repo string, prNum int, author, action string, at time.Time) db.Event {
	payload, _ := json.Marshal(map[string]any{
		"action":     action,
		"repository": map[string]any{"full_name": repo},
		"sender":     map[string]any{"login": author},
		"pull_request": map[string]any{
			"number":     prNum,
			"user":       map[string]any{"login": author},
			"state":      "open",
			"created_at": at.UTC().Format(time.RFC3339),
		},
	})
	return db.Event{
		DeliveryID: fmt.Sprintf("seed-%s-%d-%s-%d", repo, prNum, action, at.Unix()),
		Repository: repo,
		EventType:  "pull_request",
		Action:     &action,
		PRNumber:   &prNum,
		Sender:     author,
		PRAuthor:   &author,
		Payload:    payload,
		Status:     "ok",
		CreatedAt:  &at,
	}
}

func reviewEvent(repo string, prNum int, author, reviewer string, at time.Time) db.Event {
	action := "submitted"
	payload, _ := json.Marshal(map[string]any{
		"action":     action,
		"repository": map[string]any{"full_name": repo},
		"sender":     map[string]any{"login": reviewer},
		"review":     map[string]any{"state": "approved"},
		"pull_request": map[string]any{
			"number": prNum,
			"user":   map[string]any{"login": author},
		},
	})
	return db.Event{
		DeliveryID: fmt.Sprintf("seed-%s-%d-review-%d", repo, prNum, at.Unix()),
		Repository: repo,
		EventType:  "pull_request_review",
		Action:     &action,
		PRNumber:   &prNum,
		Sender:     reviewer,
		PRAuthor:   &author,
		Payload:    payload,
		Status:     "ok",
		CreatedAt:  &at,
	}
}

func labelEvent(repo string, prNum int, author, label string, at time.Time) db.Event {
	action := "labeled"
	payload, _ := json.Marshal(map[string]any{
		"action":     action,
		"repository": map[string]any{"full_name": repo},
		"sender":     map[string]any{"login": author},
		"label":      map[string]any{"name": label},
		"pull_request": map[string]any{
			"number": prNum,
			"user":   map[string]any{"login": author},
		},
	})
	return db.Event{
		DeliveryID: fmt.Sprintf("seed-%s-%d-%s-%d", repo, prNum, label, at.Unix()),
		Repository: repo,
		EventType:  "pull_request",
		Action:     &action,
		PRNumber:   &prNum,
		Sender:     author,
		PRAuthor:   &author,
		LabelName:  &label,
		Payload:    payload,
		Status:     "ok",
		CreatedAt:  &at,
	}
}
