package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/doc-harvester/internal/progress"
)

// PrometheusSink exports run progress via Prometheus. It owns collectors for
// runs started/running, item and attempt completions, bytes fetched, and item
// durations.
type PrometheusSink struct {
	runsStarted    prometheus.Counter
	runsRunning    prometheus.Gauge
	itemsCompleted *prometheus.CounterVec
	attempts       *prometheus.CounterVec
	bytesFetched   *prometheus.CounterVec
	itemDuration   *prometheus.HistogramVec

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docharvest_runs_started_total",
			Help: "Total batch runs that have started.",
		}),
		runsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "docharvest_runs_running",
			Help: "Current number of running batch runs.",
		}),
		itemsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docharvest_items_completed_total",
			Help: "Items finished partitioned by outcome and fetch strategy.",
		}, []string{"outcome", "strategy"}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docharvest_attempts_total",
			Help: "Fetch attempts partitioned by outcome and final state.",
		}, []string{"outcome", "state"}),
		bytesFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docharvest_bytes_fetched_total",
			Help: "Document bytes written partitioned by fetch strategy.",
		}, []string{"strategy"}),
		itemDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docharvest_item_duration_seconds",
			Help:    "Wall time per item including retries.",
			Buckets: []float64{5, 15, 30, 45, 60, 90, 120, 180, 300},
		}, []string{"outcome"}),
		tracker: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsRunning,
		s.itemsCompleted,
		s.attempts,
		s.bytesFetched,
		s.itemDuration,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStart:
		s.runsStarted.Inc()
		if s.tracker.start(evt.RunID) {
			s.runsRunning.Inc()
		}
	case progress.StageRunDone:
		if s.tracker.complete(evt.RunID) {
			s.runsRunning.Dec()
		}
	case progress.StageAttemptDone:
		state := evt.State
		if state == "" {
			state = "unknown"
		}
		s.attempts.WithLabelValues(string(evt.Outcome), state).Inc()
	case progress.StageItemDone:
		strategy := string(evt.Strategy)
		if strategy == "" {
			strategy = "none"
		}
		s.itemsCompleted.WithLabelValues(string(evt.Outcome), strategy).Inc()
		if evt.Bytes > 0 {
			s.bytesFetched.WithLabelValues(strategy).Add(float64(evt.Bytes))
		}
		if evt.Dur > 0 {
			s.itemDuration.WithLabelValues(string(evt.Outcome)).Observe(evt.Dur.Seconds())
		}
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type runTracker struct {
	mu      sync.Mutex
	running map[[16]byte]struct{}
}

func newRunTracker() *runTracker {
	return &runTracker{running: make(map[[16]byte]struct{})}
}

func (t *runTracker) start(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *runTracker) complete(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
