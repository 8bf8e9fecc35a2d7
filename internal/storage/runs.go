// Package storage keeps the history of conversion runs.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/spherical/slide-creator/internal/config"
)

// Common errors
var (
	ErrNotFound = errors.New("record not found")
)

// DB represents a database connection interface.
type DB interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Run is one recorded conversion
type Run struct {
	ID             uuid.UUID       `json:"id"`
	PDFPath        string          `json:"pdf_path"`
	OutputPath     string          `json:"output_path"`
	State          string          `json:"state"`
	FailureReason  string          `json:"failure_reason,omitempty"`
	FailureMessage string          `json:"failure_message,omitempty"`
	SlideCount     int             `json:"slide_count"`
	ConceptCount   int             `json:"concept_count"`
	ImageCount     int             `json:"image_count"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	StartedAt      time.Time       `json:"started_at"`
	FinishedAt     *time.Time      `json:"finished_at,omitempty"`
}

const schemaSQL = `
	CREATE TABLE IF NOT EXISTS conversion_runs (
		id              TEXT PRIMARY KEY,
		pdf_path        TEXT NOT NULL,
		output_path     TEXT NOT NULL,
		state           TEXT NOT NULL,
		failure_reason  TEXT NOT NULL DEFAULT '',
		failure_message TEXT NOT NULL DEFAULT '',
		slide_count     INTEGER NOT NULL DEFAULT 0,
		concept_count   INTEGER NOT NULL DEFAULT 0,
		image_count     INTEGER NOT NULL DEFAULT 0,
		metadata        TEXT NOT NULL DEFAULT '{}',
		started_at      TIMESTAMP NOT NULL,
		finished_at     TIMESTAMP NULL
	)
`

// Open connects to the configured run history database. A "none" driver
// returns a nil handle.
func Open(cfg config.DatabaseConfig) (*sql.DB, error) {
	var (
		db  *sql.DB
		err error
	)
	switch cfg.Driver {
	case "", "none":
		return nil, nil
	case "sqlite":
		db, err = sql.Open("sqlite3", cfg.SQLite.Path)
		if err == nil {
			// sqlite serialises writers anyway
			db.SetMaxOpenConns(1)
		}
	case "postgres":
		db, err = sql.Open("postgres", cfg.Postgres.DSN)
		if err == nil {
			db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
			db.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
			db.SetConnMaxLifetime(cfg.Postgres.ConnMaxLifetime)
		}
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.Driver, err)
	}
	return db, nil
}

// RunRepository handles conversion run records.
type RunRepository struct {
	db  DB
	now func() time.Time
}

// NewRunRepository creates a new run repository.
func NewRunRepository(db DB) *RunRepository {
	return &RunRepository{db: db, now: time.Now}
}

// EnsureSchema creates the runs table when it does not exist.
func (r *RunRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create conversion_runs: %w", err)
	}
	return nil
}

// Create records the start of a run.
func (r *RunRepository) Create(ctx context.Context, run *Run) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = r.now().UTC()
	}
	if len(run.Metadata) == 0 {
		run.Metadata = json.RawMessage("{}")
	}

	query := `
		INSERT INTO conversion_runs (id, pdf_path, output_path, state, metadata, started_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query,
		run.ID.String(), run.PDFPath, run.OutputPath, run.State, string(run.Metadata), run.StartedAt,
	)
	return err
}

// Finish stores the outcome of a run.
func (r *RunRepository) Finish(ctx context.Context, run *Run) error {
	finished := r.now().UTC()
	run.FinishedAt = &finished
	if len(run.Metadata) == 0 {
		run.Metadata = json.RawMessage("{}")
	}

	query := `
		UPDATE conversion_runs
		SET state = $1, failure_reason = $2, failure_message = $3, slide_count = $4,
			concept_count = $5, image_count = $6, metadata = $7, finished_at = $8
		WHERE id = $9
	`
	res, err := r.db.ExecContext(ctx, query,
		run.State, run.FailureReason, run.FailureMessage, run.SlideCount,
		run.ConceptCount, run.ImageCount, string(run.Metadata), finished, run.ID.String(),
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

const selectRun = `
	SELECT id, pdf_path, output_path, state, failure_reason, failure_message,
		slide_count, concept_count, image_count, metadata, started_at, finished_at
	FROM conversion_runs
`

// GetByID retrieves a run by ID.
func (r *RunRepository) GetByID(ctx context.Context, id uuid.UUID) (*Run, error) {
	row := r.db.QueryRowContext(ctx, selectRun+" WHERE id = $1", id.String())
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return run, err
}

// ListRecent returns the most recently started runs first.
func (r *RunRepository) ListRecent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, selectRun+" ORDER BY started_at DESC LIMIT $1", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(s scanner) (*Run, error) {
	var (
		run      Run
		id       string
		metadata string
		finished sql.NullTime
	)
	err := s.Scan(
		&id, &run.PDFPath, &run.OutputPath, &run.State, &run.FailureReason, &run.FailureMessage,
		&run.SlideCount, &run.ConceptCount, &run.ImageCount, &metadata, &run.StartedAt, &finished,
	)
	if err != nil {
		return nil, err
	}
	if run.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid run id %q: %w", id, err)
	}
	run.Metadata = json.RawMessage(metadata)
	if finished.Valid {
		t := finished.Time
		run.FinishedAt = &t
	}
	return &run, nil
}
