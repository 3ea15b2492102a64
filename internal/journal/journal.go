// Package journal records completed and failed index builds in PostgreSQL so
// that operators can see when an index was built, from how many documents,
// and how long it took.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/adaptive-index/pkg/resilience"
)

type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Run is one row of the build journal.
type Run struct {
	ID         uuid.UUID
	DataDir    string
	SplitLevel int
	Status     Status
	Documents  int
	Tokens     int
	Masters    int
	Skipped    int
	StartedAt  time.Time
	FinishedAt time.Time
	Error      string
}

// Execer is satisfied by *sql.DB and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const schema = `
CREATE TABLE IF NOT EXISTS index_builds (
	id          UUID PRIMARY KEY,
	data_dir    TEXT        NOT NULL,
	split_level INTEGER     NOT NULL,
	status      TEXT        NOT NULL,
	documents   INTEGER     NOT NULL DEFAULT 0,
	tokens      INTEGER     NOT NULL DEFAULT 0,
	masters     INTEGER     NOT NULL DEFAULT 0,
	skipped     INTEGER     NOT NULL DEFAULT 0,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ,
	error       TEXT
)`

const upsert = `
INSERT INTO index_builds
	(id, data_dir, split_level, status, documents, tokens, masters, skipped, started_at, finished_at, error)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (id) DO UPDATE SET
	status      = EXCLUDED.status,
	documents   = EXCLUDED.documents,
	tokens      = EXCLUDED.tokens,
	masters     = EXCLUDED.masters,
	skipped     = EXCLUDED.skipped,
	finished_at = EXCLUDED.finished_at,
	error       = EXCLUDED.error`

// Journal writes build runs through an Execer, retrying transient failures.
type Journal struct {
	db     Execer
	retry  resilience.RetryConfig
	logger *slog.Logger
}

func New(db Execer) *Journal {
	return &Journal{
		db: db,
		retry: resilience.RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 200 * time.Millisecond,
		},
		logger: slog.Default().With("component", "build-journal"),
	}
}

// EnsureSchema creates the journal table if it does not exist.
func (j *Journal) EnsureSchema(ctx context.Context) error {
	if _, err := j.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating index_builds table: %w", err)
	}
	return nil
}

// Record inserts run, or updates the row with the same ID.
func (j *Journal) Record(ctx context.Context, run Run) error {
	var finished sql.NullTime
	if !run.FinishedAt.IsZero() {
		finished = sql.NullTime{Time: run.FinishedAt, Valid: true}
	}
	var errText sql.NullString
	if run.Error != "" {
		errText = sql.NullString{String: run.Error, Valid: true}
	}

	err := resilience.Retry(ctx, "journal-record", j.retry, func() error {
		_, err := j.db.ExecContext(ctx, upsert,
			run.ID.String(), run.DataDir, run.SplitLevel, string(run.Status),
			run.Documents, run.Tokens, run.Masters, run.Skipped,
			run.StartedAt, finished, errText,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("recording build %s: %w", run.ID, err)
	}
	j.logger.Debug("build recorded", "build_id", run.ID, "status", run.Status)
	return nil
}
