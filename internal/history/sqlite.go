package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no run matches a query.
var ErrNotFound = errors.New("run not found")

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteStore opens (creating if needed) a run history database.
// Use ":memory:" for an in-memory database, or a file path for persistence.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("create history directory: %w", err)
			}
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initialize(); err != nil {
		_ = db.Close() // Best effort cleanup on initialization error
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		branch TEXT NOT NULL,
		commit_hash TEXT NOT NULL,
		source TEXT NOT NULL,
		status TEXT NOT NULL,
		failed_step TEXT NOT NULL DEFAULT '',
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL DEFAULT 0
	);
	CREATE TABLE IF NOT EXISTS run_steps (
		run_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		name TEXT NOT NULL,
		duration_ms INTEGER NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (run_id, seq)
	);
	CREATE INDEX IF NOT EXISTS idx_runs_branch ON runs(branch, started_at);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// RecordStart inserts a run in its initial state.
func (s *SQLiteStore) RecordStart(ctx context.Context, run Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO runs (id, branch, commit_hash, source, status, started_at) VALUES (?, ?, ?, ?, ?, ?)",
		run.ID, run.Branch, run.Commit, run.Source, run.Status, run.StartedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// RecordStep appends a step outcome to a run.
func (s *SQLiteStore) RecordStep(ctx context.Context, runID string, rec StepRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO run_steps (run_id, seq, name, duration_ms, error)
		 VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM run_steps WHERE run_id = ?), ?, ?, ?)`,
		runID, runID, rec.Name, rec.DurationMS, rec.Error,
	)
	if err != nil {
		return fmt.Errorf("insert run step: %w", err)
	}
	return nil
}

// RecordFinish marks a run finished with its terminal status.
func (s *SQLiteStore) RecordFinish(ctx context.Context, runID, status, failedStep string, finishedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE runs SET status = ?, failed_step = ?, finished_at = ? WHERE id = ?",
		status, failedStep, finishedAt.Unix(), runID,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetRun loads a run and its steps.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT id, branch, commit_hash, source, status, failed_step, started_at, finished_at FROM runs WHERE id = ?", id)
	run, err := scanRun(row)
	if err != nil {
		return nil, err
	}
	if err := s.loadSteps(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

// LatestRun returns the most recently started run for a branch; an empty
// branch matches any branch.
func (s *SQLiteStore) LatestRun(ctx context.Context, branch string) (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT id, branch, commit_hash, source, status, failed_step, started_at, finished_at
		 FROM runs WHERE (? = '' OR branch = ?) ORDER BY started_at DESC, id DESC LIMIT 1`, branch, branch)
	run, err := scanRun(row)
	if err != nil {
		return nil, err
	}
	if err := s.loadSteps(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns up to limit runs, newest first, without step details.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, branch, commit_hash, source, status, failed_step, started_at, finished_at
		 FROM runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started, finished int64
		if err := rows.Scan(&r.ID, &r.Branch, &r.Commit, &r.Source, &r.Status, &r.FailedStep, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt = time.Unix(started, 0)
		if finished > 0 {
			r.FinishedAt = time.Unix(finished, 0)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var r Run
	var started, finished int64
	err := row.Scan(&r.ID, &r.Branch, &r.Commit, &r.Source, &r.Status, &r.FailedStep, &started, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}
	r.StartedAt = time.Unix(started, 0)
	if finished > 0 {
		r.FinishedAt = time.Unix(finished, 0)
	}
	return &r, nil
}

func (s *SQLiteStore) loadSteps(ctx context.Context, run *Run) error {
	rows, err := s.db.QueryContext(ctx,
		"SELECT name, duration_ms, error FROM run_steps WHERE run_id = ? ORDER BY seq", run.ID)
	if err != nil {
		return fmt.Errorf("query run steps: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rec StepRecord
		if err := rows.Scan(&rec.Name, &rec.DurationMS, &rec.Error); err != nil {
			return fmt.Errorf("scan run step: %w", err)
		}
		run.Steps = append(run.Steps, rec)
	}
	return rows.Err()
}
