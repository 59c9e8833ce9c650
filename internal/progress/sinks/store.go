package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/doc-harvester/internal/progress"
	"github.com/JakeFAU/doc-harvester/internal/store"
)

// StoreSink persists run lifecycle and item outcomes via a
// store.OutcomeRepository.
type StoreSink struct {
	repo   store.OutcomeRepository
	logger *zap.Logger

	mu     sync.Mutex
	counts map[uuid.UUID]*runCounts
}

type runCounts struct {
	succeeded int
	failed    int
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo store.OutcomeRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger, counts: make(map[uuid.UUID]*runCounts)}
}

// Consume forwards run and item events to the repository. It respects ctx
// deadlines and returns the first repository error.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	for _, evt := range batch {
		runID := evt.RunUUID()
		switch evt.Stage {
		case progress.StageRunStart:
			if err := s.repo.StartRun(ctx, runID, evt.TS, evt.Total); err != nil {
				return fmt.Errorf("start run: %w", err)
			}
		case progress.StageItemDone:
			if err := s.repo.RecordOutcome(ctx, outcomeRecord(evt)); err != nil {
				return fmt.Errorf("record outcome: %w", err)
			}
			s.count(runID, evt.Succeeded())
		case progress.StageRunDone:
			c := s.take(runID)
			if err := s.repo.FinishRun(ctx, runID, evt.TS, c.succeeded, c.failed); err != nil {
				return fmt.Errorf("finish run: %w", err)
			}
		}
	}
	return nil
}

func (s *StoreSink) count(runID uuid.UUID, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.counts[runID]
	if c == nil {
		c = &runCounts{}
		s.counts[runID] = c
	}
	if ok {
		c.succeeded++
	} else {
		c.failed++
	}
}

func (s *StoreSink) take(runID uuid.UUID) runCounts {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.counts[runID]
	delete(s.counts, runID)
	if c == nil {
		return runCounts{}
	}
	return *c
}

func outcomeRecord(evt progress.Event) store.OutcomeRecord {
	rec := store.OutcomeRecord{
		RunID:      evt.RunUUID(),
		URL:        evt.URL,
		Item:       evt.Item,
		Outcome:    string(evt.Outcome),
		Strategy:   string(evt.Strategy),
		Path:       evt.Path,
		Bytes:      evt.Bytes,
		Attempts:   evt.Attempt,
		Elapsed:    evt.Dur,
		RecordedAt: evt.TS,
	}
	if !evt.Succeeded() && evt.Note != "" {
		note := evt.Note
		rec.Error = &note
	}
	return rec
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}
