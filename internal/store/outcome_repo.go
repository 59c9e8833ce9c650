package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RunStatus mirrors the runs status column.
type RunStatus string

// Run statuses persisted in the runs table.
const (
	RunRunning  RunStatus = "running"
	RunFinished RunStatus = "finished"
)

// OutcomeRecord is one terminal item outcome.
type OutcomeRecord struct {
	RunID uuid.UUID
	URL   string
	// Item is the zero-based position in the de-duplicated input.
	Item     int
	Outcome  string
	Strategy string
	Path     string
	Bytes    int64
	Attempts int
	Elapsed  time.Duration
	// Error is nil for succeeded items.
	Error      *string
	RecordedAt time.Time
}

// OutcomeRepository persists run lifecycle and item outcomes.
type OutcomeRepository interface {
	// StartRun inserts the run row, idempotently.
	StartRun(ctx context.Context, runID uuid.UUID, startedAt time.Time, total int) error
	// RecordOutcome upserts the outcome for (run, url).
	RecordOutcome(ctx context.Context, rec OutcomeRecord) error
	// FinishRun marks the run finished and stores the final counts.
	FinishRun(ctx context.Context, runID uuid.UUID, finishedAt time.Time, succeeded, failed int) error
}
