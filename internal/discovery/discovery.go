package discovery

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/doc-harvester/internal/harvest"
)

// Page is a loaded search result page.
type Page struct {
	URL    string
	Status int
	HTML   string
}

// Source loads search result pages.
type Source interface {
	FetchPage(ctx context.Context, url string) (Page, error)
}

// Rereader is implemented by sources that show a page to a human, who may
// solve a captcha in place. Reread returns the current document without
// navigating.
type Rereader interface {
	Interactive() bool
	Reread(ctx context.Context) (string, error)
}

// Observer receives per-page counts, typically metrics.Metrics.
type Observer interface {
	ObserveDiscoveryPage(pageURL, result string, fresh, duplicates int)
}

// Config controls paging, pacing, and filtering.
type Config struct {
	Query          string
	Pages          int
	Start          int
	ResultsPerPage int
	TargetDomain   string
	SearchURL      string
	DelayMin       time.Duration
	DelayMax       time.Duration
	CaptchaWait    time.Duration
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch {
	case c.Query == "":
		return errors.New("search query is required")
	case c.Pages < 1:
		return fmt.Errorf("discovery.pages must be >= 1, got %d", c.Pages)
	case c.Start < 0:
		return fmt.Errorf("discovery.start must be >= 0, got %d", c.Start)
	case c.ResultsPerPage < 1:
		return fmt.Errorf("discovery.results_per_page must be >= 1, got %d", c.ResultsPerPage)
	case c.TargetDomain == "":
		return errors.New("discovery.target_domain is required")
	case c.DelayMin < 0 || c.DelayMax < c.DelayMin:
		return errors.New("discovery delays must satisfy 0 <= delay_min <= delay_max")
	}
	if _, err := url.Parse(c.SearchURL); err != nil || c.SearchURL == "" {
		return fmt.Errorf("discovery.search_url is invalid: %q", c.SearchURL)
	}
	return nil
}

// PageResult summarizes one result page.
type PageResult struct {
	Number     int
	URL        string
	Strategy   string
	Found      int
	Added      int
	Duplicates int
	Blocked    bool
	Err        error
}

// Result is the outcome of a discovery run.
type Result struct {
	Links      []Link
	Duplicates int
	Pages      []PageResult
}

// Discoverer walks result pages for one query.
type Discoverer struct {
	src      Source
	clock    harvest.Clock
	cfg      Config
	logger   *zap.Logger
	observer Observer
	jitter   func(lo, hi time.Duration) time.Duration
}

// Option customizes a Discoverer.
type Option func(*Discoverer)

// WithObserver reports per-page counts to o.
func WithObserver(o Observer) Option {
	return func(d *Discoverer) { d.observer = o }
}

// WithJitter replaces the uniform random delay source.
func WithJitter(f func(lo, hi time.Duration) time.Duration) Option {
	return func(d *Discoverer) { d.jitter = f }
}

// New creates a Discoverer.
func New(src Source, clock harvest.Clock, cfg Config, logger *zap.Logger, opts ...Option) (*Discoverer, error) {
	if src == nil || clock == nil {
		return nil, errors.New("discoverer requires a page source and a clock")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Discoverer{
		src:    src,
		clock:  clock,
		cfg:    cfg,
		logger: logger.Named("discovery"),
		jitter: uniform,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

func uniform(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	// #nosec G404 -- pacing jitter, not security sensitive.
	return lo + time.Duration(rand.Int64N(int64(hi-lo)+1))
}

// PageURL builds the result page URL for query starting at result start.
func PageURL(searchURL, query string, start int) (string, error) {
	u, err := url.Parse(searchURL)
	if err != nil {
		return "", fmt.Errorf("parse search url: %w", err)
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("start", strconv.Itoa(start))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Run walks every configured page. A page that fails to load counts as empty;
// only cancellation stops the run early, in which case the links found so far
// are returned with ctx's error.
func (d *Discoverer) Run(ctx context.Context) (Result, error) {
	var res Result
	seen := make(map[string]struct{})

	d.logger.Info("discovery started",
		zap.String("query", d.cfg.Query),
		zap.Int("pages", d.cfg.Pages),
		zap.String("target_domain", d.cfg.TargetDomain),
	)
	for page := 0; page < d.cfg.Pages; page++ {
		if page > 0 {
			delay := d.jitter(d.cfg.DelayMin, d.cfg.DelayMax)
			d.logger.Info("waiting before next page", zap.Duration("delay", delay))
			if err := d.clock.Sleep(ctx, delay); err != nil {
				return res, err
			}
		}
		start := d.cfg.Start + page*d.cfg.ResultsPerPage
		pr := d.page(ctx, page+1, start)
		if err := ctx.Err(); err != nil {
			return res, err
		}
		for _, link := range pr.links {
			if _, dup := seen[link.URL]; dup {
				pr.Duplicates++
				d.logger.Debug("skipped duplicate link", zap.String("url", link.URL))
				continue
			}
			seen[link.URL] = struct{}{}
			res.Links = append(res.Links, link)
			pr.Added++
		}
		res.Duplicates += pr.Duplicates
		res.Pages = append(res.Pages, pr.PageResult)

		result := pr.Strategy
		switch {
		case pr.Err != nil:
			result = "error"
		case pr.Blocked && pr.Found == 0:
			result = "blocked"
		}
		if d.observer != nil {
			d.observer.ObserveDiscoveryPage(pr.URL, result, pr.Added, pr.Duplicates)
		}
		d.logger.Info("page processed",
			zap.Int("page", pr.Number),
			zap.Int("start", start),
			zap.String("strategy", pr.Strategy),
			zap.Int("found", pr.Found),
			zap.Int("added", pr.Added),
			zap.Int("duplicates", pr.Duplicates),
		)
	}
	d.logger.Info("discovery finished",
		zap.Int("links", len(res.Links)),
		zap.Int("duplicates", res.Duplicates),
	)
	return res, nil
}

type pageLinks struct {
	PageResult
	links []Link
}

func (d *Discoverer) page(ctx context.Context, number, start int) pageLinks {
	pr := pageLinks{PageResult: PageResult{Number: number, Strategy: StrategyNone}}
	pageURL, err := PageURL(d.cfg.SearchURL, d.cfg.Query, start)
	if err != nil {
		pr.Err = err
		return pr
	}
	pr.URL = pageURL
	logger := d.logger.With(zap.Int("page", number), zap.String("url", pageURL))

	p, err := d.src.FetchPage(ctx, pageURL)
	if err != nil {
		pr.Err = err
		logger.Warn("result page failed to load", zap.Error(err))
		return pr
	}
	html := p.HTML
	if Blocked(html, d.cfg.TargetDomain) {
		pr.Blocked = true
		logger.Warn("result structure not detected; the engine may be showing a captcha", zap.Int("status", p.Status))
		html = d.awaitManualSolve(ctx, logger, html)
	}

	links, strategy, err := Extract(html, d.cfg.TargetDomain)
	if err != nil {
		pr.Err = err
		logger.Warn("result page could not be parsed", zap.Error(err))
		return pr
	}
	pr.links = links
	pr.Found = len(links)
	pr.Strategy = strategy
	return pr
}

// awaitManualSolve gives a human CaptchaWait to solve a challenge in a
// visible browser, then re-reads the page. Headless sources keep html.
func (d *Discoverer) awaitManualSolve(ctx context.Context, logger *zap.Logger, html string) string {
	rr, ok := d.src.(Rereader)
	if !ok || !rr.Interactive() || d.cfg.CaptchaWait <= 0 {
		return html
	}
	logger.Warn("solve the captcha in the browser window", zap.Duration("wait", d.cfg.CaptchaWait))
	if err := d.clock.Sleep(ctx, d.cfg.CaptchaWait); err != nil {
		return html
	}
	fresh, err := rr.Reread(ctx)
	if err != nil {
		logger.Warn("re-reading page after captcha wait failed", zap.Error(err))
		return html
	}
	return fresh
}
