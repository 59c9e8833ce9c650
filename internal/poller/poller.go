// Package poller implements deadline-bounded polling on top of an injectable
// clock: a generic Until loop and the readiness wait used for the remote
// download control.
package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JakeFAU/doc-harvester/internal/harvest"
)

// ErrTimeout is returned by Until when the condition never held.
var ErrTimeout = errors.New("poll deadline exceeded")

// Params bounds a readiness wait.
type Params struct {
	MinWait  time.Duration
	MaxWait  time.Duration
	Interval time.Duration
}

// Validate checks MinWait <= MaxWait and Interval > 0.
func (p Params) Validate() error {
	if p.Interval <= 0 {
		return fmt.Errorf("poll interval must be > 0, got %s", p.Interval)
	}
	if p.MinWait < 0 {
		return fmt.Errorf("min wait must be >= 0, got %s", p.MinWait)
	}
	if p.MinWait > p.MaxWait {
		return fmt.Errorf("min wait %s exceeds max wait %s", p.MinWait, p.MaxWait)
	}
	return nil
}

// LocateFunc checks for the target element once.
type LocateFunc func(ctx context.Context) (harvest.Element, error)

// Result is the outcome of AwaitReady.
type Result struct {
	Ready   bool
	Element harvest.Element
	Elapsed time.Duration
	Checks  int
}

// AwaitReady sleeps MinWait, then checks every Interval until the element is
// actionable or MaxWait has elapsed. The sleep before the last check is
// clipped so one check always lands on the deadline. Check errors count as
// "not ready". The returned error is non-nil only for invalid params or a
// done context.
func AwaitReady(ctx context.Context, clock harvest.Clock, locate LocateFunc, p Params) (Result, error) {
	if err := p.Validate(); err != nil {
		return Result{}, err
	}
	start := clock.Now()
	var res Result
	if err := clock.Sleep(ctx, p.MinWait); err != nil {
		res.Elapsed = clock.Now().Sub(start)
		return res, err
	}
	for {
		el, err := locate(ctx)
		res.Checks++
		res.Elapsed = clock.Now().Sub(start)
		if err == nil && el.Actionable() {
			res.Ready = true
			res.Element = el
			return res, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, ctxErr
		}
		remaining := p.MaxWait - res.Elapsed
		if remaining <= 0 {
			return res, nil
		}
		if err := clock.Sleep(ctx, min(p.Interval, remaining)); err != nil {
			res.Elapsed = clock.Now().Sub(start)
			return res, err
		}
	}
}

// CondFunc reports whether the awaited condition holds.
type CondFunc func(ctx context.Context) (bool, error)

// Until evaluates cond immediately and then every interval until it returns
// true or timeout elapses. Condition errors are treated as false; the last one
// is wrapped into the timeout error.
func Until(ctx context.Context, clock harvest.Clock, timeout, interval time.Duration, cond CondFunc) (time.Duration, error) {
	if interval <= 0 {
		return 0, fmt.Errorf("poll interval must be > 0, got %s", interval)
	}
	start := clock.Now()
	var lastErr error
	for {
		ok, err := cond(ctx)
		elapsed := clock.Now().Sub(start)
		if err == nil && ok {
			return elapsed, nil
		}
		if err != nil {
			lastErr = err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return elapsed, ctxErr
		}
		remaining := timeout - elapsed
		if remaining <= 0 {
			if lastErr != nil {
				return elapsed, fmt.Errorf("%w after %s: %w", ErrTimeout, elapsed, lastErr)
			}
			return elapsed, fmt.Errorf("%w after %s", ErrTimeout, elapsed)
		}
		if err := clock.Sleep(ctx, min(interval, remaining)); err != nil {
			return clock.Now().Sub(start), err
		}
	}
}
