package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/doc-harvester/internal/clock/fake"
	"github.com/JakeFAU/doc-harvester/internal/harvest"
	"github.com/JakeFAU/doc-harvester/internal/poller"
	"github.com/JakeFAU/doc-harvester/internal/progress"
)

func testConfig() Config {
	return Config{
		Remote: Remote{
			LandingURL:       landingURL,
			InputSelector:    inputSel,
			RedirectHost:     redirectHost,
			DownloadSelector: downloadSel,
			RedirectTimeout:  30 * time.Second,
			RedirectPoll:     500 * time.Millisecond,
		},
		Readiness: poller.Params{MinWait: 12 * time.Second, MaxWait: 42 * time.Second, Interval: time.Second},
	}
}

type harness struct {
	clock   *fake.Clock
	browser *fakeBrowser
	fetcher *fakeFetcher
	events  *recordingEmitter
	worker  *Worker
}

func newHarness(t *testing.T, maxAttempts int) *harness {
	t.Helper()
	clk := fake.New(epoch)
	h := &harness{
		clock:   clk,
		browser: newFakeBrowser(clk),
		fetcher: newFakeFetcher(),
		events:  &recordingEmitter{},
	}
	w, err := New(h.browser, h.fetcher, clk, NewFixedRetryPolicy(maxAttempts, 5*time.Second),
		h.events, progress.UUIDToBytes([16]byte{1}), testConfig(), nil)
	require.NoError(t, err)
	h.worker = w
	return h
}

func TestProcessSucceedsFirstAttempt(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 3)
	item := harvest.SourceItem{URL: "https://src/a.pdf"}

	res := h.worker.Process(context.Background(), item)
	require.Equal(t, harvest.OutcomeSucceeded, res.Outcome)
	require.NoError(t, res.Err)
	require.Len(t, res.Attempts, 1)
	assert.Equal(t, "/downloads/a.pdf", res.Path())
	assert.Equal(t, harvest.StateDone, res.Attempts[0].State)
	assert.Equal(t, []string{"https://src/a.pdf"}, h.browser.submitted)
	assert.Equal(t, []string{"https://cdn.convert.test/out/1"}, h.fetcher.links)
	// redirect after 2s, min wait 12s, ready at 15s from submit
	assert.Equal(t, 15*time.Second, res.Elapsed)
	assert.Equal(t, []progress.Stage{
		progress.StageItemStart, progress.StageAttemptDone, progress.StageItemDone,
	}, h.events.stages())
}

func TestProcessReadinessTimeoutExhaustsAttempts(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 3)
	h.browser.readyAfter = func(string) (time.Duration, bool) { return 0, false }

	res := h.worker.Process(context.Background(), harvest.SourceItem{URL: "https://src/b.pdf"})
	require.Equal(t, harvest.OutcomeFailed, res.Outcome)
	require.ErrorIs(t, res.Err, harvest.ErrLinkNotReady)
	require.Len(t, res.Attempts, 3)
	for i, a := range res.Attempts {
		assert.Equal(t, i+1, a.Number)
		assert.Equal(t, harvest.OutcomeFailed, a.Outcome)
		var se *harvest.StateError
		require.ErrorAs(t, a.Err, &se)
		assert.Equal(t, harvest.StateLinkFailed, se.State)
	}
	assert.Equal(t, 3, h.browser.navigations)
	assert.Empty(t, h.fetcher.links)

	var retryDelays int
	for _, d := range h.clock.Sleeps() {
		if d == 5*time.Second {
			retryDelays++
		}
	}
	assert.Equal(t, 2, retryDelays, "delay between attempts but not after the last")
	assert.Contains(t, res.Reason(), "link_failed")
}

func TestProcessRetriesWholeFlowAfterFetchFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 3)
	h.fetcher.fails["https://src/c.pdf"] = 1

	res := h.worker.Process(context.Background(), harvest.SourceItem{URL: "https://src/c.pdf"})
	require.Equal(t, harvest.OutcomeSucceeded, res.Outcome)
	require.Len(t, res.Attempts, 2)
	assert.ErrorIs(t, res.Attempts[0].Err, harvest.ErrFallbackTimeout)
	assert.Equal(t, 2, h.browser.navigations)
	// each attempt derives a fresh link
	assert.Equal(t, []string{"https://cdn.convert.test/out/1", "https://cdn.convert.test/out/2"}, h.fetcher.links)
}

func TestProcessRedirectTimeout(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 1)
	h.browser.redirectAfter = time.Hour

	res := h.worker.Process(context.Background(), harvest.SourceItem{URL: "https://src/d.pdf"})
	require.Equal(t, harvest.OutcomeFailed, res.Outcome)
	require.ErrorIs(t, res.Err, harvest.ErrRedirectTimeout)
	require.Len(t, res.Attempts, 1)
	assert.Equal(t, 30*time.Second, res.Elapsed)
}

func TestProcessNavigationFailureRecovers(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 3)
	h.browser.navigateErr = func(n int) error {
		if n == 1 {
			return errors.New("net::ERR_CONNECTION_RESET")
		}
		return nil
	}

	res := h.worker.Process(context.Background(), harvest.SourceItem{URL: "https://src/e.pdf"})
	require.Equal(t, harvest.OutcomeSucceeded, res.Outcome)
	require.Len(t, res.Attempts, 2)
	assert.Contains(t, res.Attempts[0].Error(), "start: net::ERR_CONNECTION_RESET")
}

func TestProcessStopsOnCancellation(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 3)
	ctx, cancel := context.WithCancel(context.Background())
	h.browser.navigateErr = func(int) error {
		cancel()
		return context.Canceled
	}

	res := h.worker.Process(ctx, harvest.SourceItem{URL: "https://src/f.pdf"})
	require.Equal(t, harvest.OutcomeFailed, res.Outcome)
	require.ErrorIs(t, res.Err, harvest.ErrCanceled)
	require.Len(t, res.Attempts, 1)
}

func TestNewValidates(t *testing.T) {
	t.Parallel()

	clk := fake.New(epoch)
	b := newFakeBrowser(clk)
	f := newFakeFetcher()
	policy := NewFixedRetryPolicy(3, time.Second)

	_, err := New(nil, f, clk, policy, nil, [16]byte{}, testConfig(), nil)
	require.Error(t, err)

	bad := testConfig()
	bad.Readiness.MinWait = time.Hour
	_, err = New(b, f, clk, policy, nil, [16]byte{}, bad, nil)
	require.ErrorContains(t, err, "readiness")

	bad = testConfig()
	bad.Remote.LandingURL = ""
	_, err = New(b, f, clk, policy, nil, [16]byte{}, bad, nil)
	require.Error(t, err)
}

func TestFixedRetryPolicy(t *testing.T) {
	t.Parallel()

	p := NewFixedRetryPolicy(3, 5*time.Second)
	boom := errors.New("boom")
	assert.True(t, p.ShouldRetry(boom, 1))
	assert.True(t, p.ShouldRetry(boom, 2))
	assert.False(t, p.ShouldRetry(boom, 3))
	assert.False(t, p.ShouldRetry(nil, 1))
	assert.False(t, p.ShouldRetry(context.Canceled, 1))
	assert.True(t, p.ShouldRetry(harvest.ErrLinkNotReady, 1))
	assert.Equal(t, 5*time.Second, p.Backoff(1))
	assert.Equal(t, 3, p.MaxAttempts)

	clamped := NewFixedRetryPolicy(0, -time.Second)
	assert.Equal(t, 1, clamped.MaxAttempts)
	assert.Zero(t, clamped.Backoff(1))
}
