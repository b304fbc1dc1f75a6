// Package store persists a history of pipeline runs in SQLite. It is
// an audit trail for the CLI's history view, never a cache: a recorded
// run does not short-circuit reprocessing of the same paper.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Run is one pipeline execution record.
type Run struct {
	ID              int64  `json:"id"`
	Identifier      string `json:"identifier"` // arXiv id/URL or local file path
	Title           string `json:"title"`
	PDFPath         string `json:"pdf_path"`
	ProcessingMode  string `json:"processing_mode"`
	BodyMode        string `json:"body_mode"`
	Status          string `json:"status"` // running, done, error
	Pages           int    `json:"pages"`
	Regions         int    `json:"regions"`
	SummaryPath     string `json:"summary_path,omitempty"`
	ExplanationPath string `json:"explanation_path,omitempty"`
	Error           string `json:"error,omitempty"`
	CreatedAt       string `json:"created_at"`
	FinishedAt      string `json:"finished_at,omitempty"`
}

// Store wraps the SQLite database for run history.
type Store struct {
	db     *sql.DB
	closed bool
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS runs (
    id INTEGER PRIMARY KEY,
    identifier TEXT NOT NULL,
    title TEXT,
    pdf_path TEXT,
    processing_mode TEXT NOT NULL,
    body_mode TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'running',
    pages INTEGER DEFAULT 0,
    regions INTEGER DEFAULT 0,
    summary_path TEXT,
    explanation_path TEXT,
    error TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    finished_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);
`

// New opens (or creates) the run database at dbPath and initialises
// the schema.
func New(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialising schema: %w", err)
	}

	return &Store{db: db}, nil
}

// ErrClosed is returned when operating on a closed store.
var ErrClosed = fmt.Errorf("store: closed")

// InsertRun records the start of a run and returns its id.
func (s *Store) InsertRun(ctx context.Context, r Run) (int64, error) {
	if s.closed {
		return 0, ErrClosed
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (identifier, title, pdf_path, processing_mode, body_mode, status)
		VALUES (?, ?, ?, ?, ?, 'running')`,
		r.Identifier, r.Title, r.PDFPath, r.ProcessingMode, r.BodyMode)
	if err != nil {
		return 0, fmt.Errorf("inserting run: %w", err)
	}
	return res.LastInsertId()
}

// CompleteRun marks a run done with its output artifacts and counters.
func (s *Store) CompleteRun(ctx context.Context, id int64, pages, regions int, summaryPath, explanationPath string) error {
	if s.closed {
		return ErrClosed
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET status = 'done', pages = ?, regions = ?, summary_path = ?,
		    explanation_path = ?, finished_at = ?
		WHERE id = ?`,
		pages, regions, summaryPath, explanationPath, now(), id)
	if err != nil {
		return fmt.Errorf("completing run %d: %w", id, err)
	}
	return nil
}

// FailRun marks a run errored with the failure message.
func (s *Store) FailRun(ctx context.Context, id int64, runErr error) error {
	if s.closed {
		return ErrClosed
	}
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = 'error', error = ?, finished_at = ? WHERE id = ?`,
		msg, now(), id)
	if err != nil {
		return fmt.Errorf("failing run %d: %w", id, err)
	}
	return nil
}

// GetRun fetches one run by id.
func (s *Store) GetRun(ctx context.Context, id int64) (Run, error) {
	if s.closed {
		return Run{}, ErrClosed
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT id, identifier, COALESCE(title,''), COALESCE(pdf_path,''),
		       processing_mode, body_mode, status, pages, regions,
		       COALESCE(summary_path,''), COALESCE(explanation_path,''),
		       COALESCE(error,''), created_at, COALESCE(finished_at,'')
		FROM runs WHERE id = ?`, id)
	return scanRun(row)
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if s.closed {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, identifier, COALESCE(title,''), COALESCE(pdf_path,''),
		       processing_mode, body_mode, status, pages, regions,
		       COALESCE(summary_path,''), COALESCE(explanation_path,''),
		       COALESCE(error,''), created_at, COALESCE(finished_at,'')
		FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Close shuts the store down. Further calls return ErrClosed.
func (s *Store) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (Run, error) {
	var r Run
	err := row.Scan(&r.ID, &r.Identifier, &r.Title, &r.PDFPath,
		&r.ProcessingMode, &r.BodyMode, &r.Status, &r.Pages, &r.Regions,
		&r.SummaryPath, &r.ExplanationPath, &r.Error, &r.CreatedAt, &r.FinishedAt)
	if err != nil {
		return Run{}, fmt.Errorf("scanning run: %w", err)
	}
	return r, nil
}

func now() string {
	return time.Now().UTC().Format("2006-01-02 15:04:05")
}
