// Package dispatcher schedules source items through the per-item pipeline
// in fixed-size batches, resting between items and between batches.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/doc-harvester/internal/harvest"
	"github.com/JakeFAU/doc-harvester/internal/progress"
)

// Processor runs one item to a terminal result.
type Processor interface {
	Process(ctx context.Context, item harvest.SourceItem) harvest.ItemResult
}

// Recorder receives each terminal result as soon as it is known. It reports
// whether the result was kept.
type Recorder interface {
	Record(result harvest.ItemResult) bool
}

// Config controls batching and pacing.
type Config struct {
	BatchSize int
	ItemRest  time.Duration
	BatchRest time.Duration
}

// Outcomes lists terminal results in processing order, split by outcome.
type Outcomes struct {
	Succeeded []harvest.ItemResult
	Failed    []harvest.ItemResult
}

// Total returns the number of terminal results.
func (o Outcomes) Total() int {
	return len(o.Succeeded) + len(o.Failed)
}

// Dispatcher drives the items strictly one at a time.
type Dispatcher struct {
	proc     Processor
	recorder Recorder
	clock    harvest.Clock
	emitter  progress.Emitter
	runID    [16]byte
	cfg      Config
	logger   *zap.Logger
}

// New creates a Dispatcher.
func New(
	proc Processor,
	recorder Recorder,
	clock harvest.Clock,
	emitter progress.Emitter,
	runID [16]byte,
	cfg Config,
	logger *zap.Logger,
) (*Dispatcher, error) {
	if proc == nil || clock == nil {
		return nil, errors.New("dispatcher requires a processor and a clock")
	}
	if cfg.BatchSize < 1 {
		return nil, fmt.Errorf("batch size must be >= 1, got %d", cfg.BatchSize)
	}
	if cfg.ItemRest < 0 || cfg.BatchRest < 0 {
		return nil, errors.New("rest intervals must be >= 0")
	}
	if emitter == nil {
		emitter = progress.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		proc:     proc,
		recorder: recorder,
		clock:    clock,
		emitter:  emitter,
		runID:    runID,
		cfg:      cfg,
		logger:   logger.Named("dispatcher"),
	}, nil
}

// Partition splits items into contiguous chunks of size; the last may be shorter.
func Partition(items []harvest.SourceItem, size int) [][]harvest.SourceItem {
	if size < 1 || len(items) == 0 {
		return nil
	}
	batches := make([][]harvest.SourceItem, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		batches = append(batches, items[start:end])
	}
	return batches
}

// Run processes every item exactly once and returns one terminal result per
// item. A single item's failure never stops the run. When ctx is canceled
// the remaining items are recorded as failed with harvest.ErrCanceled.
func (d *Dispatcher) Run(ctx context.Context, items []harvest.SourceItem) Outcomes {
	start := d.clock.Now()
	batches := Partition(items, d.cfg.BatchSize)
	d.emit(progress.Event{Stage: progress.StageRunStart, Total: len(items)})
	d.logger.Info("run started",
		zap.Int("items", len(items)),
		zap.Int("batches", len(batches)),
		zap.Int("batch_size", d.cfg.BatchSize),
	)

	var out Outcomes
	done := 0
	for b, batch := range batches {
		d.logger.Info("batch started", zap.Int("batch", b+1), zap.Int("of", len(batches)), zap.Int("items", len(batch)))
		for _, item := range batch {
			var res harvest.ItemResult
			if ctx.Err() != nil {
				res = canceled(item)
			} else {
				res = d.proc.Process(ctx, item)
			}
			d.collect(&out, res)
			done++

			if done < len(items) {
				d.rest(ctx, d.cfg.ItemRest, "item")
			}
		}
		if b < len(batches)-1 {
			d.rest(ctx, d.cfg.BatchRest, "batch")
		}
	}

	d.emit(progress.Event{
		Stage: progress.StageRunDone,
		Total: out.Total(),
		Dur:   d.clock.Now().Sub(start),
		Note:  fmt.Sprintf("succeeded=%d failed=%d", len(out.Succeeded), len(out.Failed)),
	})
	d.logger.Info("run finished",
		zap.Int("succeeded", len(out.Succeeded)),
		zap.Int("failed", len(out.Failed)),
	)
	return out
}

func (d *Dispatcher) collect(out *Outcomes, res harvest.ItemResult) {
	if res.Outcome == harvest.OutcomeSucceeded {
		out.Succeeded = append(out.Succeeded, res)
	} else {
		res.Outcome = harvest.OutcomeFailed
		out.Failed = append(out.Failed, res)
	}
	if d.recorder != nil && !d.recorder.Record(res) {
		d.logger.Warn("result not recorded", zap.String("url", res.Item.URL))
	}
}

func (d *Dispatcher) rest(ctx context.Context, dur time.Duration, kind string) {
	if dur <= 0 || ctx.Err() != nil {
		return
	}
	d.logger.Debug("resting", zap.String("after", kind), zap.Duration("for", dur))
	_ = d.clock.Sleep(ctx, dur)
}

func canceled(item harvest.SourceItem) harvest.ItemResult {
	return harvest.ItemResult{Item: item, Outcome: harvest.OutcomeFailed, Err: harvest.ErrCanceled}
}

func (d *Dispatcher) emit(evt progress.Event) {
	evt.RunID = d.runID
	evt.TS = d.clock.Now()
	d.emitter.Emit(evt)
}
