// Package journal persists relay outcomes in PostgreSQL.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/stagekeeper/internal/dbx"
	"github.com/dmitrijs2005/stagekeeper/internal/server/migrations"
	"github.com/dmitrijs2005/stagekeeper/internal/server/relay"
	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
)

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// newID is a seam for deterministic relay row ids in tests.
var newID = uuid.New

// PostgresJournal records relays into the relays and relay_attempts tables.
type PostgresJournal struct {
	db *sql.DB
}

func NewPostgresJournal(db *sql.DB) *PostgresJournal {
	return &PostgresJournal{db: db}
}

// RunMigrations applies the embedded goose migrations.
func (j *PostgresJournal) RunMigrations(ctx context.Context) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return gooseUpContext(ctx, j.db, ".")
}

// RecordRelay stores rec and its attempts in one transaction.
func (j *PostgresJournal) RecordRelay(ctx context.Context, rec *relay.Record) error {
	relayID := newID()

	return dbx.WithTx(ctx, j.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		query := `
			INSERT INTO relays (id, stage_id, file_name, session_id, endpoint, status_code, success, error, started_at, finished_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`
		if _, err := tx.ExecContext(ctx, query,
			relayID, rec.StageID, rec.FileName, rec.Session, rec.Endpoint, rec.StatusCode,
			rec.Success, rec.Error, rec.StartedAt, rec.FinishedAt); err != nil {
			return fmt.Errorf("db error: %w", err)
		}

		for i, a := range rec.Attempts {
			var msg string
			if a.Err != nil {
				msg = a.Err.Error()
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO relay_attempts (relay_id, seq, endpoint, status_code, error) VALUES ($1, $2, $3, $4, $5)`,
				relayID, i, a.Endpoint, a.StatusCode, msg); err != nil {
				return fmt.Errorf("db error: %w", err)
			}
		}
		return nil
	})
}

// Entry is a stored relay outcome.
type Entry struct {
	StageID    uuid.UUID
	FileName   string
	Endpoint   string
	StatusCode int
	Success    bool
	Error      string
	FinishedAt time.Time
}

// ListByStage returns the journal entries for a stage id, newest first.
func (j *PostgresJournal) ListByStage(ctx context.Context, stageID uuid.UUID) ([]*Entry, error) {
	query := `
		SELECT stage_id, file_name, endpoint, status_code, success, error, finished_at
		FROM relays WHERE stage_id=$1 ORDER BY finished_at DESC
	`
	rows, err := j.db.QueryContext(ctx, query, stageID)
	if err != nil {
		return nil, fmt.Errorf("failed to select relays: %w", err)
	}
	defer rows.Close()

	var result []*Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.StageID, &e.FileName, &e.Endpoint, &e.StatusCode, &e.Success, &e.Error, &e.FinishedAt); err != nil {
			return nil, err
		}
		result = append(result, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
