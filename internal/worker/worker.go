// Package worker runs one source item through the conversion site: submit
// the URL, wait for the job redirect, poll for the download control, and
// fetch the file, restarting the whole sequence on failure.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/doc-harvester/internal/harvest"
	"github.com/JakeFAU/doc-harvester/internal/poller"
	"github.com/JakeFAU/doc-harvester/internal/progress"
)

// Remote describes the conversion site's fixed page contract.
type Remote struct {
	LandingURL       string
	InputSelector    string
	RedirectHost     string
	DownloadSelector string
	LinkAttribute    string
	RedirectTimeout  time.Duration
	RedirectPoll     time.Duration
}

// Config controls Worker behavior.
type Config struct {
	Remote    Remote
	Readiness poller.Params
}

// Worker executes the per-item pipeline. It drives a single shared browser
// and must not be used from more than one goroutine.
type Worker struct {
	browser harvest.Browser
	fetcher harvest.Fetcher
	clock   harvest.Clock
	retry   RetryPolicy
	emitter progress.Emitter
	runID   [16]byte
	cfg     Config
	logger  *zap.Logger
}

// New constructs a Worker. A nil emitter discards progress events.
func New(
	browser harvest.Browser,
	fetcher harvest.Fetcher,
	clock harvest.Clock,
	retry RetryPolicy,
	emitter progress.Emitter,
	runID [16]byte,
	cfg Config,
	logger *zap.Logger,
) (*Worker, error) {
	if browser == nil || fetcher == nil || clock == nil || retry == nil {
		return nil, errors.New("worker requires browser, fetcher, clock, and retry policy")
	}
	if err := cfg.Readiness.Validate(); err != nil {
		return nil, fmt.Errorf("readiness: %w", err)
	}
	if cfg.Remote.LandingURL == "" || cfg.Remote.InputSelector == "" || cfg.Remote.DownloadSelector == "" {
		return nil, errors.New("remote landing url, input selector, and download selector are required")
	}
	if cfg.Remote.LinkAttribute == "" {
		cfg.Remote.LinkAttribute = "href"
	}
	if cfg.Remote.RedirectTimeout <= 0 {
		cfg.Remote.RedirectTimeout = 30 * time.Second
	}
	if cfg.Remote.RedirectPoll <= 0 {
		cfg.Remote.RedirectPoll = 500 * time.Millisecond
	}
	if emitter == nil {
		emitter = progress.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		browser: browser,
		fetcher: fetcher,
		clock:   clock,
		retry:   retry,
		emitter: emitter,
		runID:   runID,
		cfg:     cfg,
		logger:  logger.Named("worker"),
	}, nil
}

// Process runs item to a terminal outcome. Attempts are strictly sequential;
// a success ends the loop and no attempt follows it.
func (w *Worker) Process(ctx context.Context, item harvest.SourceItem) harvest.ItemResult {
	logger := w.logger.With(zap.String("url", item.URL), zap.Int("item", item.Index))
	start := w.clock.Now()
	w.emit(progress.Event{Stage: progress.StageItemStart, URL: item.URL, Item: item.Index})

	result := harvest.ItemResult{Item: item, Outcome: harvest.OutcomeFailed}
	for n := 1; ; n++ {
		attempt := w.attempt(ctx, item, n)
		result.Attempts = append(result.Attempts, attempt)
		w.emitAttempt(attempt)

		if attempt.Outcome == harvest.OutcomeSucceeded {
			result.Outcome = harvest.OutcomeSucceeded
			result.File = attempt.File
			result.Err = nil
			logger.Info("item fetched",
				zap.Int("attempt", n),
				zap.String("path", attempt.File.Path),
				zap.String("strategy", string(attempt.File.Strategy)),
			)
			break
		}
		result.Err = attempt.Err
		if !w.retry.ShouldRetry(attempt.Err, n) {
			logger.Warn("item failed", zap.Int("attempts", n), zap.Error(attempt.Err))
			break
		}
		delay := w.retry.Backoff(n)
		logger.Info("attempt failed, retrying",
			zap.Int("attempt", n),
			zap.Duration("delay", delay),
			zap.Error(attempt.Err),
		)
		if err := w.clock.Sleep(ctx, delay); err != nil {
			result.Err = fmt.Errorf("%w: %w", harvest.ErrCanceled, attempt.Err)
			break
		}
	}
	if result.Outcome == harvest.OutcomeFailed && ctx.Err() != nil && !errors.Is(result.Err, harvest.ErrCanceled) {
		result.Err = fmt.Errorf("%w: %w", harvest.ErrCanceled, result.Err)
	}
	result.Elapsed = w.clock.Now().Sub(start)
	w.emitItem(result)
	return result
}

// attempt performs one full pass of the state machine.
func (w *Worker) attempt(ctx context.Context, item harvest.SourceItem, n int) harvest.FetchAttempt {
	a := harvest.FetchAttempt{
		Item:      item,
		Number:    n,
		Outcome:   harvest.OutcomePending,
		State:     harvest.StateStart,
		StartedAt: w.clock.Now(),
	}
	fetched, err := w.walk(ctx, item, &a)
	a.Elapsed = w.clock.Now().Sub(a.StartedAt)
	if err != nil {
		a.Err = harvest.FailedIn(a.State, err)
		a.State = harvest.StateFailed
		a.Outcome = harvest.OutcomeFailed
		return a
	}
	a.File = fetched
	a.State = harvest.StateDone
	a.Outcome = harvest.OutcomeSucceeded
	return a
}

// walk advances a through the states, leaving a.State at the last state
// reached when it returns an error.
func (w *Worker) walk(ctx context.Context, item harvest.SourceItem, a *harvest.FetchAttempt) (*harvest.Fetched, error) {
	remote := w.cfg.Remote
	logger := w.logger.With(zap.String("url", item.URL), zap.Int("attempt", a.Number))

	if err := w.submit(ctx, item.URL); err != nil {
		return nil, err
	}
	advance(a, harvest.StateSubmitted)

	if err := w.awaitRedirect(ctx); err != nil {
		return nil, err
	}
	advance(a, harvest.StateRedirected)
	logger.Debug("conversion job accepted")

	res, err := poller.AwaitReady(ctx, w.clock, func(ctx context.Context) (harvest.Element, error) {
		return w.browser.Inspect(ctx, remote.DownloadSelector, remote.LinkAttribute)
	}, w.cfg.Readiness)
	if err != nil {
		return nil, err
	}
	if !res.Ready {
		advance(a, harvest.StateLinkFailed)
		return nil, fmt.Errorf("%w: waited %s over %d checks", harvest.ErrLinkNotReady, res.Elapsed, res.Checks)
	}
	advance(a, harvest.StateLinkReady)
	logger.Debug("download link ready", zap.Duration("waited", res.Elapsed))

	link, err := harvest.NewDownloadLink(res.Element.Attr)
	if err != nil {
		return nil, err
	}
	fetched, err := w.fetcher.Fetch(ctx, link, item)
	if err != nil {
		return nil, err
	}
	advance(a, harvest.StateFetched)
	return fetched, nil
}

func (w *Worker) submit(ctx context.Context, sourceURL string) error {
	remote := w.cfg.Remote
	if err := w.browser.Navigate(ctx, remote.LandingURL); err != nil {
		return err
	}
	if err := w.browser.WaitElement(ctx, remote.InputSelector, harvest.WaitPresence); err != nil {
		return err
	}
	return w.browser.Submit(ctx, remote.InputSelector, sourceURL)
}

func (w *Worker) awaitRedirect(ctx context.Context) error {
	remote := w.cfg.Remote
	var last string
	_, err := poller.Until(ctx, w.clock, remote.RedirectTimeout, remote.RedirectPoll, func(ctx context.Context) (bool, error) {
		loc, err := w.browser.Location(ctx)
		if err != nil {
			return false, err
		}
		last = loc
		return strings.Contains(loc, remote.RedirectHost), nil
	})
	if errors.Is(err, poller.ErrTimeout) {
		return fmt.Errorf("%w: still at %q after %s", harvest.ErrRedirectTimeout, last, remote.RedirectTimeout)
	}
	return err
}

// advance moves a to next. Illegal transitions indicate a bug in walk.
func advance(a *harvest.FetchAttempt, next harvest.State) {
	if !a.State.CanTransition(next) {
		panic(fmt.Sprintf("illegal transition %s -> %s", a.State, next))
	}
	a.State = next
}

func (w *Worker) emit(evt progress.Event) {
	evt.RunID = w.runID
	evt.TS = w.clock.Now()
	w.emitter.Emit(evt)
}

func (w *Worker) emitAttempt(a harvest.FetchAttempt) {
	evt := progress.Event{
		Stage:   progress.StageAttemptDone,
		URL:     a.Item.URL,
		Item:    a.Item.Index,
		Attempt: a.Number,
		Outcome: a.Outcome,
		State:   a.State.String(),
		Dur:     a.Elapsed,
		Note:    a.Error(),
	}
	if a.File != nil {
		evt.Strategy = a.File.Strategy
		evt.Path = a.File.Path
		evt.Bytes = a.File.Bytes
	}
	w.emit(evt)
}

func (w *Worker) emitItem(r harvest.ItemResult) {
	evt := progress.Event{
		Stage:   progress.StageItemDone,
		URL:     r.Item.URL,
		Item:    r.Item.Index,
		Attempt: len(r.Attempts),
		Outcome: r.Outcome,
		Dur:     r.Elapsed,
		Note:    r.Reason(),
	}
	if r.File != nil {
		evt.Strategy = r.File.Strategy
		evt.Path = r.File.Path
		evt.Bytes = r.File.Bytes
	}
	w.emit(evt)
}
