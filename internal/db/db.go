package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// DB wraps the Postgres connection pool.
type DB struct {
	conn *sql.DB
}

// ── Model types ────────────────────────────────────────────────────────────────

// Event is one stored webhook delivery. The payload keeps the full JSON
// body; the scalar columns are denormalized copies extracted at ingestion so
// the analytical queries avoid payload-path lookups on hot paths. Pointer
// fields persist as NULL when the delivery does not carry them.
type Event struct {
	DeliveryID     string
	Repository     string
	EventType      string
	Action         *string
	PRNumber       *int
	Sender         string
	PRAuthor       *string
	PRTitle        *string
	PRState        *string
	PRMerged       *bool
	PRHTMLURL      *string
	PRCommitsCount *int
	LabelName      *string
	Payload        []byte

	ReviewerTeam *string
	PRSigLabel   *string
	IsCrossTeam  *bool

	DurationMS   int
	Status       string
	ErrorMessage *string

	// CreatedAt overrides the insertion timestamp when non-nil; live
	// ingestion leaves it nil and takes the database clock.
	CreatedAt *time.Time
}

// ── Constructor ────────────────────────────────────────────────────────────────

func New(databaseURL string) (*DB, error) {
	conn, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("opening db: %w", err)
	}
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	d := &DB{conn: conn}
	return d, d.migrate()
}

func (d *DB) Close() error { return d.conn.Close() }

// Conn exposes the pool for the query layer.
func (d *DB) Conn() *sql.DB { return d.conn }

func (d *DB) Ping(ctx context.Context) error { return d.conn.PingContext(ctx) }

// ── Schema ─────────────────────────────────────────────────────────────────────

func (d *DB) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS webhooks (
			id               UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			delivery_id      TEXT        NOT NULL UNIQUE,
			repository       TEXT        NOT NULL,
			event_type       TEXT        NOT NULL,
			action           TEXT,
			pr_number        INTEGER,
			sender           TEXT        NOT NULL DEFAULT '',
			pr_author        TEXT,
			pr_title         TEXT,
			pr_state         TEXT,
			pr_merged        BOOLEAN,
			pr_html_url      TEXT,
			pr_commits_count INTEGER,
			label_name       TEXT,
			payload          JSONB       NOT NULL,
			is_cross_team    BOOLEAN,
			reviewer_team    VARCHAR(100),
			pr_sig_label     VARCHAR(100),
			created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			processed_at     TIMESTAMPTZ,
			duration_ms      INTEGER     DEFAULT 0,
			status           TEXT        DEFAULT 'ok',
			error_message    TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS ix_webhooks_event_type ON webhooks(event_type)`,
		`CREATE INDEX IF NOT EXISTS ix_webhooks_created_at ON webhooks(created_at)`,
		`CREATE INDEX IF NOT EXISTS ix_webhooks_sender     ON webhooks(sender)`,
		`CREATE INDEX IF NOT EXISTS ix_webhooks_label_name ON webhooks(label_name)`,
		`CREATE INDEX IF NOT EXISTS ix_webhooks_repo_pr_created
			ON webhooks(repository, pr_number, created_at)
			WHERE pr_number IS NOT NULL`,
		`CREATE INDEX IF NOT EXISTS ix_webhooks_cross_team
			ON webhooks(is_cross_team, reviewer_team, pr_sig_label)
			WHERE is_cross_team IS NOT NULL`,
	}
	for _, s := range stmts {
		if _, err := d.conn.Exec(s); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// ── Inserts ─────────────────────────────────────────────────────────────────────

// InsertEvent stores one delivery. Redeliveries are dropped on the
// delivery_id unique constraint; the returned bool reports whether a row was
// actually written.
func (d *DB) InsertEvent(ctx context.Context, e Event) (bool, error) {
	res, err := d.conn.ExecContext(ctx, `
		INSERT INTO webhooks (
			delivery_id, repository, event_type, action, pr_number, sender,
			pr_author, pr_title, pr_state, pr_merged, pr_html_url, pr_commits_count,
			label_name, payload, is_cross_team, reviewer_team, pr_sig_label,
			created_at, processed_at, duration_ms, status, error_message
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,COALESCE($18,NOW()),NOW(),$19,$20,$21)
		ON CONFLICT (delivery_id) DO NOTHING
	`,
		e.DeliveryID, e.Repository, e.EventType, e.Action, e.PRNumber, e.Sender,
		e.PRAuthor, e.PRTitle, e.PRState, e.PRMerged, e.PRHTMLURL, e.PRCommitsCount,
		e.LabelName, e.Payload, e.IsCrossTeam, e.ReviewerTeam, e.PRSigLabel,
		e.CreatedAt, e.DurationMS, e.Status, e.ErrorMessage,
	)
	if err != nil {
		return false, fmt.Errorf("insert webhook event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
