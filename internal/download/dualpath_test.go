package download

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/doc-harvester/internal/clock/fake"
	"github.com/JakeFAU/doc-harvester/internal/harvest"
)

func TestDualPathDirectSuccessSkipsBrowser(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("%PDF-1.7"))
	}))
	t.Cleanup(srv.Close)

	store := newStore(t)
	clk := fake.New(time.Unix(0, 0))
	trig := &stubTrigger{dir: store.Dir()}
	dp := NewDualPath(
		NewDirect(srv.Client(), store, DirectConfig{}, nil),
		NewFallback(trig, store, clk, FallbackConfig{}, nil),
		clk, ".pdf", nil,
	)

	link, err := harvest.NewDownloadLink(srv.URL + "/dl")
	require.NoError(t, err)
	got, err := dp.Fetch(context.Background(), link, harvest.SourceItem{URL: "https://a/x.pdf"})
	require.NoError(t, err)
	assert.Equal(t, "x.pdf", filepath.Base(got.Path))
	assert.Empty(t, trig.urls)

	_, err = dp.Fetch(context.Background(), link, harvest.SourceItem{URL: "https://a/x.pdf"})
	require.ErrorIs(t, err, harvest.ErrLinkConsumed)
}

func TestDualPathFallsBackToBrowser(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	store := newStore(t)
	clk := fake.New(time.Unix(0, 0))
	trig := &stubTrigger{dir: store.Dir(), partial: "y.pdf.crdownload", final: "y.pdf", completeAfter: 2}
	trig.attach(clk)
	dp := NewDualPath(
		NewDirect(srv.Client(), store, DirectConfig{}, nil),
		NewFallback(trig, store, clk, FallbackConfig{Timeout: 60 * time.Second, PollInterval: time.Second}, nil),
		clk, ".pdf", nil,
	)

	link, err := harvest.NewDownloadLink(srv.URL + "/dl")
	require.NoError(t, err)
	got, err := dp.Fetch(context.Background(), link, harvest.SourceItem{URL: "https://a/y.pdf"})
	require.NoError(t, err)
	assert.Equal(t, harvest.StrategyBrowser, got.Strategy)
	assert.Equal(t, []string{"y.pdf"}, listFiles(t, store.Dir()))
	assert.Equal(t, []string{srv.URL + "/dl"}, trig.urls)
}

func TestDualPathBothFail(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	store := newStore(t)
	clk := fake.New(time.Unix(0, 0))
	dp := NewDualPath(
		NewDirect(srv.Client(), store, DirectConfig{}, nil),
		NewFallback(&stubTrigger{dir: store.Dir()}, store, clk, FallbackConfig{Timeout: 3 * time.Second, PollInterval: time.Second}, nil),
		clk, ".pdf", nil,
	)

	link, err := harvest.NewDownloadLink(srv.URL)
	require.NoError(t, err)
	_, err = dp.Fetch(context.Background(), link, harvest.SourceItem{URL: "https://a/z.pdf"})
	var fe *harvest.FetchError
	require.ErrorAs(t, err, &fe)
	assert.ErrorIs(t, err, harvest.ErrDirectFetch)
	assert.ErrorIs(t, err, harvest.ErrFallbackTimeout)
	assert.Empty(t, listFiles(t, store.Dir()))
}
