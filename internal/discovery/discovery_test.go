package discovery

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/doc-harvester/internal/browser"
	"github.com/JakeFAU/doc-harvester/internal/clock/fake"
)

type fakeSource struct {
	mu          sync.Mutex
	pages       map[string]string
	errs        map[string]error
	requested   []string
	interactive bool
	reread      string
	rereads     int
}

func (f *fakeSource) FetchPage(_ context.Context, url string) (Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requested = append(f.requested, url)
	if err := f.errs[url]; err != nil {
		return Page{}, err
	}
	return Page{URL: url, Status: 200, HTML: f.pages[url]}, nil
}

func (f *fakeSource) Interactive() bool { return f.interactive }

func (f *fakeSource) Reread(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rereads++
	return f.reread, nil
}

type recordingObserver struct {
	results []string
	fresh   int
	dups    int
}

func (o *recordingObserver) ObserveDiscoveryPage(_ string, result string, fresh, duplicates int) {
	o.results = append(o.results, result)
	o.fresh += fresh
	o.dups += duplicates
}

func baseConfig() Config {
	return Config{
		Query:          "annual report",
		Pages:          3,
		Start:          0,
		ResultsPerPage: 10,
		TargetDomain:   "scribd.com",
		SearchURL:      "https://www.google.com/search",
		DelayMin:       3 * time.Second,
		DelayMax:       7 * time.Second,
		CaptchaWait:    30 * time.Second,
	}
}

func mustPageURL(t *testing.T, start int) string {
	t.Helper()
	u, err := PageURL("https://www.google.com/search", "annual report", start)
	require.NoError(t, err)
	return u
}

func fixedJitter(d time.Duration) Option {
	return WithJitter(func(lo, hi time.Duration) time.Duration { return d })
}

func TestRunPagesDedupesAndPaces(t *testing.T) {
	t.Parallel()

	page2 := `<div class="MjjYud"><a class="zReHs" href="https://www.scribd.com/document/1/Annual-Report"><h3>Again</h3></a></div>
<div class="MjjYud"><a class="zReHs" href="https://www.scribd.com/document/9/New"><h3>New</h3></a></div>`
	src := &fakeSource{
		pages: map[string]string{
			mustPageURL(t, 0):  primaryPage,
			mustPageURL(t, 10): page2,
		},
		errs: map[string]error{mustPageURL(t, 20): errors.New("net::ERR_TIMED_OUT")},
	}
	clk := fake.New(time.Unix(0, 0))
	obs := &recordingObserver{}
	d, err := New(src, clk, baseConfig(), nil, fixedJitter(4*time.Second), WithObserver(obs))
	require.NoError(t, err)

	res, err := d.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{mustPageURL(t, 0), mustPageURL(t, 10), mustPageURL(t, 20)}, src.requested)
	assert.Equal(t, []time.Duration{4 * time.Second, 4 * time.Second}, clk.Sleeps(), "no delay before the first page")

	require.Len(t, res.Links, 3)
	assert.Equal(t, "Annual Report", res.Links[0].Title, "first occurrence wins")
	assert.Equal(t, "https://www.scribd.com/document/9/New", res.Links[2].URL)
	assert.Equal(t, 1, res.Duplicates)

	require.Len(t, res.Pages, 3)
	assert.Equal(t, 2, res.Pages[0].Added)
	assert.Equal(t, 1, res.Pages[1].Duplicates)
	assert.Error(t, res.Pages[2].Err)
	assert.Equal(t, []string{StrategyPrimary, StrategyPrimary, "error"}, obs.results)
	assert.Equal(t, 3, obs.fresh)
	assert.Equal(t, 1, obs.dups)
}

func TestRunStartOffset(t *testing.T) {
	t.Parallel()

	src := &fakeSource{pages: map[string]string{}}
	cfg := baseConfig()
	cfg.Pages = 2
	cfg.Start = 30
	cfg.ResultsPerPage = 20
	d, err := New(src, fake.New(time.Unix(0, 0)), cfg, nil, fixedJitter(0))
	require.NoError(t, err)

	_, err = d.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{mustPageURL(t, 30), mustPageURL(t, 50)}, src.requested)
}

func TestRunWaitsForManualCaptchaSolve(t *testing.T) {
	t.Parallel()

	src := &fakeSource{
		pages:       map[string]string{mustPageURL(t, 0): `<p>unusual traffic from your network</p>`},
		interactive: true,
		reread:      primaryPage,
	}
	cfg := baseConfig()
	cfg.Pages = 1
	clk := fake.New(time.Unix(0, 0))
	d, err := New(src, clk, cfg, nil)
	require.NoError(t, err)

	res, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, src.rereads)
	assert.Equal(t, []time.Duration{30 * time.Second}, clk.Sleeps())
	assert.Len(t, res.Links, 2)
	assert.True(t, res.Pages[0].Blocked)
}

func TestRunHeadlessBlockedPageIsEmpty(t *testing.T) {
	t.Parallel()

	src := &fakeSource{pages: map[string]string{mustPageURL(t, 0): `<p>captcha</p>`}}
	cfg := baseConfig()
	cfg.Pages = 1
	obs := &recordingObserver{}
	d, err := New(src, fake.New(time.Unix(0, 0)), cfg, nil, WithObserver(obs))
	require.NoError(t, err)

	res, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, src.rereads)
	assert.Empty(t, res.Links)
	assert.Equal(t, []string{"blocked"}, obs.results)
}

func TestRunCanceledDuringDelay(t *testing.T) {
	t.Parallel()

	src := &fakeSource{pages: map[string]string{mustPageURL(t, 0): primaryPage}}
	ctx, cancel := context.WithCancel(context.Background())
	clk := fake.New(time.Unix(0, 0))
	src.pages[mustPageURL(t, 0)] = primaryPage
	d, err := New(src, clk, baseConfig(), nil, WithJitter(func(lo, _ time.Duration) time.Duration {
		cancel()
		return lo
	}))
	require.NoError(t, err)

	res, err := d.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Len(t, res.Links, 2, "links found before cancellation are kept")
	assert.Len(t, src.requested, 1)
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	mutate := func(f func(*Config)) Config {
		c := baseConfig()
		f(&c)
		return c
	}
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"query", mutate(func(c *Config) { c.Query = "" }), "query is required"},
		{"pages", mutate(func(c *Config) { c.Pages = 0 }), "discovery.pages"},
		{"start", mutate(func(c *Config) { c.Start = -1 }), "discovery.start"},
		{"rpp", mutate(func(c *Config) { c.ResultsPerPage = 0 }), "discovery.results_per_page"},
		{"domain", mutate(func(c *Config) { c.TargetDomain = "" }), "discovery.target_domain"},
		{"delays", mutate(func(c *Config) { c.DelayMax = time.Second }), "delay_min <= delay_max"},
		{"search url", mutate(func(c *Config) { c.SearchURL = "" }), "discovery.search_url"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.ErrorContains(t, tc.cfg.Validate(), tc.want)
		})
	}
	require.NoError(t, baseConfig().Validate())
}

func TestUniformStaysInRange(t *testing.T) {
	t.Parallel()

	for range 200 {
		d := uniform(3*time.Second, 7*time.Second)
		require.GreaterOrEqual(t, d, 3*time.Second)
		require.LessOrEqual(t, d, 7*time.Second)
	}
	require.Equal(t, time.Second, uniform(time.Second, time.Second))
}

func TestPageURL(t *testing.T) {
	t.Parallel()

	got, err := PageURL("https://www.google.com/search?hl=en", "site:scribd.com manual", 20)
	require.NoError(t, err)
	assert.Equal(t, "https://www.google.com/search?hl=en&q=site%3Ascribd.com+manual&start=20", got)
}

func TestWriteCSV(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, []Link{
		{Title: "Annual Report, 2023", URL: "https://www.scribd.com/document/1"},
		{Title: "", URL: "https://www.scribd.com/document/2"},
	}))
	assert.Equal(t, "Title,URL\n\"Annual Report, 2023\",https://www.scribd.com/document/1\n,https://www.scribd.com/document/2\n", buf.String())
}

type fakeLoader struct {
	visible bool
}

func (f fakeLoader) PageHTML(_ context.Context, url string, settle time.Duration) (browser.Page, error) {
	if settle != 2*time.Second {
		return browser.Page{}, errors.New("unexpected settle")
	}
	return browser.Page{URL: url, Status: 200, HTML: "<html></html>"}, nil
}

func (f fakeLoader) CurrentHTML(context.Context) (string, error) { return "<p>current</p>", nil }

func (f fakeLoader) Visible() bool { return f.visible }

func TestBrowserSource(t *testing.T) {
	t.Parallel()

	src := NewBrowserSource(fakeLoader{visible: true}, 2*time.Second)
	p, err := src.FetchPage(context.Background(), "https://www.google.com/search?q=x")
	require.NoError(t, err)
	assert.Equal(t, 200, p.Status)
	assert.True(t, src.Interactive())
	html, err := src.Reread(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "<p>current</p>", html)
}
