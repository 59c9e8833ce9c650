// Package report accumulates per-item outcomes while a run is in progress
// and renders the end-of-run report in text, JSON, and YAML, plus a styled
// terminal summary.
package report

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/doc-harvester/internal/harvest"
)

// Entry is the report line for one source item.
type Entry struct {
	URL      string           `json:"url" yaml:"url"`
	Outcome  harvest.Outcome  `json:"outcome" yaml:"outcome"`
	Path     string           `json:"path,omitempty" yaml:"path,omitempty"`
	Strategy harvest.Strategy `json:"strategy,omitempty" yaml:"strategy,omitempty"`
	Bytes    int64            `json:"bytes,omitempty" yaml:"bytes,omitempty"`
	SHA256   string           `json:"sha256,omitempty" yaml:"sha256,omitempty"`
	Error    string           `json:"error,omitempty" yaml:"error,omitempty"`
	Attempts int              `json:"attempts" yaml:"attempts"`
	Elapsed  time.Duration    `json:"elapsed_ns" yaml:"elapsed"`
}

// Run is the finalized, immutable record of a batch run.
type Run struct {
	ID          uuid.UUID `json:"run_id" yaml:"run_id"`
	StartedAt   time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt  time.Time `json:"finished_at" yaml:"finished_at"`
	Total       int       `json:"total" yaml:"total"`
	Succeeded   int       `json:"succeeded" yaml:"succeeded"`
	Failed      int       `json:"failed" yaml:"failed"`
	SuccessRate float64   `json:"success_rate" yaml:"success_rate"`
	Items       []Entry   `json:"items" yaml:"items"`
}

// SucceededEntries returns the succeeded entries in recording order.
func (r Run) SucceededEntries() []Entry {
	return r.filter(harvest.OutcomeSucceeded)
}

// FailedEntries returns the failed entries in recording order.
func (r Run) FailedEntries() []Entry {
	return r.filter(harvest.OutcomeFailed)
}

func (r Run) filter(o harvest.Outcome) []Entry {
	var out []Entry
	for _, e := range r.Items {
		if e.Outcome == o {
			out = append(out, e)
		}
	}
	return out
}

// SuccessRate is succeeded/total, defined as 0 for an empty run.
func SuccessRate(succeeded, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(succeeded) / float64(total)
}

// Aggregator collects terminal results as they arrive. It is safe for
// concurrent use.
type Aggregator struct {
	clock harvest.Clock
	id    uuid.UUID
	start time.Time

	mu      sync.Mutex
	entries []Entry
	seen    map[string]struct{}
	final   *Run
}

// NewAggregator starts an aggregation for run id.
func NewAggregator(id uuid.UUID, clock harvest.Clock) *Aggregator {
	return &Aggregator{
		clock: clock,
		id:    id,
		start: clock.Now(),
		seen:  make(map[string]struct{}),
	}
}

// Record adds one terminal result. Non-terminal results, duplicates of an
// already recorded URL, and anything after Finalize are ignored; the return
// value reports whether the result was kept.
func (a *Aggregator) Record(res harvest.ItemResult) bool {
	if !res.Outcome.Terminal() {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.final != nil {
		return false
	}
	if _, dup := a.seen[res.Item.URL]; dup {
		return false
	}
	a.seen[res.Item.URL] = struct{}{}
	a.entries = append(a.entries, entryFor(res))
	return true
}

// Snapshot returns the run so far without finalizing it.
func (a *Aggregator) Snapshot() Run {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.final != nil {
		return *a.final
	}
	return a.build(time.Time{})
}

// Finalize freezes the run. Later calls return the same Run.
func (a *Aggregator) Finalize() Run {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.final == nil {
		run := a.build(a.clock.Now())
		a.final = &run
	}
	return *a.final
}

func (a *Aggregator) build(finished time.Time) Run {
	run := Run{
		ID:         a.id,
		StartedAt:  a.start,
		FinishedAt: finished,
		Items:      append([]Entry(nil), a.entries...),
	}
	for _, e := range a.entries {
		if e.Outcome == harvest.OutcomeSucceeded {
			run.Succeeded++
		} else {
			run.Failed++
		}
	}
	run.Total = run.Succeeded + run.Failed
	run.SuccessRate = SuccessRate(run.Succeeded, run.Total)
	return run
}

func entryFor(res harvest.ItemResult) Entry {
	e := Entry{
		URL:      res.Item.URL,
		Outcome:  res.Outcome,
		Error:    res.Reason(),
		Attempts: len(res.Attempts),
		Elapsed:  res.Elapsed,
	}
	if res.File != nil {
		e.Path = res.File.Path
		e.Strategy = res.File.Strategy
		e.Bytes = res.File.Bytes
		e.SHA256 = res.File.SHA256
	}
	return e
}
