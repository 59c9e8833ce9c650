package download

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/doc-harvester/internal/clock/fake"
	"github.com/JakeFAU/doc-harvester/internal/harvest"
)

// stubTrigger simulates a browser download: it writes a partial file on
// trigger and renames it to final after completeAfter clock sleeps.
type stubTrigger struct {
	dir           string
	partial       string
	final         string
	completeAfter int
	err           error
	urls          []string
}

func (s *stubTrigger) TriggerDownload(_ context.Context, url string) error {
	s.urls = append(s.urls, url)
	if s.err != nil {
		return s.err
	}
	if s.partial != "" {
		return os.WriteFile(filepath.Join(s.dir, s.partial), []byte("partial"), 0o600)
	}
	return nil
}

func (s *stubTrigger) attach(clk *fake.Clock) {
	sleeps := 0
	clk.OnSleep(func(time.Time) {
		sleeps++
		if sleeps != s.completeAfter || s.final == "" {
			return
		}
		if s.partial != "" {
			_ = os.Rename(filepath.Join(s.dir, s.partial), filepath.Join(s.dir, s.final))
			return
		}
		_ = os.WriteFile(filepath.Join(s.dir, s.final), []byte("document"), 0o600)
	})
}

func TestFallbackWaitsForPartialToFinish(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	clk := fake.New(time.Unix(0, 0))
	trig := &stubTrigger{dir: store.Dir(), partial: "book.pdf.crdownload", final: "book.pdf", completeAfter: 3}
	trig.attach(clk)

	fb := NewFallback(trig, store, clk, FallbackConfig{Timeout: 10 * time.Second, PollInterval: time.Second}, nil)
	got, err := fb.Fetch(context.Background(), "https://dl/book.pdf", "book.pdf")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(store.Dir(), "book.pdf"), got.Path)
	assert.Equal(t, harvest.StrategyBrowser, got.Strategy)
	assert.EqualValues(t, len("partial"), got.Bytes)
	assert.Equal(t, 3*time.Second, clk.Slept())
	assert.Equal(t, []string{"https://dl/book.pdf"}, trig.urls)
}

func TestFallbackAdoptsBrowserRename(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	require.NoError(t, os.WriteFile(filepath.Join(store.Dir(), "book.pdf"), []byte("older run"), 0o600))
	clk := fake.New(time.Unix(0, 0))
	trig := &stubTrigger{dir: store.Dir(), final: "book (1).pdf", completeAfter: 1}
	trig.attach(clk)

	fb := NewFallback(trig, store, clk, FallbackConfig{Timeout: 5 * time.Second, PollInterval: time.Second}, nil)
	got, err := fb.Fetch(context.Background(), "https://dl/x", "book.pdf")
	require.NoError(t, err)
	assert.Equal(t, "book_1.pdf", filepath.Base(got.Path))
	assert.ElementsMatch(t, []string{"book.pdf", "book_1.pdf"}, listFiles(t, store.Dir()))
}

func TestFallbackAcceptsAlternateName(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	clk := fake.New(time.Unix(0, 0))
	trig := &stubTrigger{dir: store.Dir(), final: "server-name.pdf", completeAfter: 2}
	trig.attach(clk)

	fb := NewFallback(trig, store, clk, FallbackConfig{Timeout: 5 * time.Second, PollInterval: time.Second}, nil)
	got, err := fb.Fetch(context.Background(), "https://dl/server-name.pdf", "Some-Title.pdf", "server-name.pdf")
	require.NoError(t, err)
	assert.Equal(t, "Some-Title.pdf", filepath.Base(got.Path))
}

func TestFallbackTimesOut(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	clk := fake.New(time.Unix(0, 0))
	trig := &stubTrigger{dir: store.Dir(), partial: "book.pdf.crdownload"}

	fb := NewFallback(trig, store, clk, FallbackConfig{Timeout: 4 * time.Second, PollInterval: time.Second}, nil)
	_, err := fb.Fetch(context.Background(), "https://dl/book.pdf", "book.pdf")
	require.ErrorIs(t, err, harvest.ErrFallbackTimeout)
	assert.Equal(t, 4*time.Second, clk.Slept())
}

func TestFallbackIgnoresUnchangedExistingFile(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	require.NoError(t, os.WriteFile(filepath.Join(store.Dir(), "book.pdf"), []byte("older"), 0o600))
	clk := fake.New(time.Unix(0, 0))
	trig := &stubTrigger{dir: store.Dir()}

	fb := NewFallback(trig, store, clk, FallbackConfig{Timeout: 2 * time.Second, PollInterval: time.Second}, nil)
	_, err := fb.Fetch(context.Background(), "https://dl/book.pdf", "book.pdf")
	require.ErrorIs(t, err, harvest.ErrFallbackTimeout)
}

func TestFallbackIgnoresStalePartials(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	require.NoError(t, os.WriteFile(filepath.Join(store.Dir(), "Unconfirmed 1.crdownload"), nil, 0o600))
	clk := fake.New(time.Unix(0, 0))
	trig := &stubTrigger{dir: store.Dir(), final: "book.pdf", completeAfter: 1}
	trig.attach(clk)

	fb := NewFallback(trig, store, clk, FallbackConfig{Timeout: 3 * time.Second, PollInterval: time.Second}, nil)
	_, err := fb.Fetch(context.Background(), "https://dl/book.pdf", "book.pdf")
	require.NoError(t, err)
}

func TestFallbackTriggerError(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	clk := fake.New(time.Unix(0, 0))
	boom := errors.New("target closed")
	fb := NewFallback(&stubTrigger{err: boom}, store, clk, FallbackConfig{}, nil)

	_, err := fb.Fetch(context.Background(), "https://dl/book.pdf", "book.pdf")
	require.ErrorIs(t, err, boom)
	assert.Empty(t, clk.Sleeps())
}
