// Package history persists deploy run outcomes so operators can answer
// "what ran, when, and how far did it get" after the fact.
package history

import (
	"context"
	"time"
)

// Run is one recorded pipeline execution.
type Run struct {
	ID         string       `json:"id"`
	Branch     string       `json:"branch"`
	Commit     string       `json:"commit"`
	Source     string       `json:"source"`
	Status     string       `json:"status"`
	FailedStep string       `json:"failed_step,omitempty"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at,omitzero"`
	Steps      []StepRecord `json:"steps,omitempty"`
}

// StepRecord is the stored outcome of one executed step.
type StepRecord struct {
	Name       string `json:"name"`
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// Store records and queries deploy runs.
type Store interface {
	RecordStart(ctx context.Context, run Run) error
	RecordStep(ctx context.Context, runID string, rec StepRecord) error
	RecordFinish(ctx context.Context, runID, status, failedStep string, finishedAt time.Time) error
	GetRun(ctx context.Context, id string) (*Run, error)
	// LatestRun returns the most recently started run; an empty branch
	// matches any branch.
	LatestRun(ctx context.Context, branch string) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]Run, error)
	Close() error
}
