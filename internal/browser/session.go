// Package browser drives a single Chrome tab through chromedp. The Session
// implements harvest.Browser and also serves rendered pages for discovery.
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"

	"github.com/JakeFAU/doc-harvester/internal/harvest"
)

// Config controls how the browser is launched.
type Config struct {
	Headless      bool
	ExecPath      string
	UserAgent     string
	DownloadDir   string
	NavTimeout    time.Duration
	ActionTimeout time.Duration
}

// knownBrowsers are tried in order when no executable is configured.
// chromedp falls back to its own Chrome lookup when none exist.
var knownBrowsers = []string{
	"/usr/bin/brave-browser",
	"/usr/bin/brave",
	"/snap/bin/brave",
	"/Applications/Brave Browser.app/Contents/MacOS/Brave Browser",
	`C:\Program Files\BraveSoftware\Brave-Browser\Application\brave.exe`,
}

// Session owns one browser process and one tab. It is not safe for
// concurrent use; calls are serialized.
type Session struct {
	cfg           Config
	logger        *zap.Logger
	mu            sync.Mutex
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	status        statusTracker
}

// statusTracker remembers the HTTP status of the latest document response.
type statusTracker struct {
	mu     sync.Mutex
	status int
	url    string
}

func (t *statusTracker) captureEvent(ev any) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument || resp.Response == nil {
		return
	}
	t.mu.Lock()
	t.status = int(resp.Response.Status)
	t.url = resp.Response.URL
	t.mu.Unlock()
}

func (t *statusTracker) reset() {
	t.mu.Lock()
	t.status, t.url = 0, ""
	t.mu.Unlock()
}

func (t *statusTracker) snapshot() (int, string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status, t.url
}

var _ harvest.Browser = (*Session)(nil)

// New launches the browser and configures silent downloads. A launch failure
// is a setup error and is returned to the caller.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 30 * time.Second
	}
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = 30 * time.Second
	}
	if cfg.ExecPath == "" {
		cfg.ExecPath = detectBrowser()
	}
	logger = logger.Named("browser")

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(cfg)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(logger.Sugar().Debugf),
		chromedp.WithErrorf(logger.Sugar().Debugf),
	)
	s := &Session{
		cfg:           cfg,
		logger:        logger,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}

	chromedp.ListenTarget(browserCtx, s.status.captureEvent)
	warm := []chromedp.Action{network.Enable()}
	if cfg.DownloadDir != "" {
		warm = append(warm, cdpbrowser.SetDownloadBehavior(cdpbrowser.SetDownloadBehaviorBehaviorAllow).
			WithDownloadPath(cfg.DownloadDir).
			WithEventsEnabled(true))
	}
	if err := chromedp.Run(browserCtx, warm...); err != nil {
		s.Close()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}
	forwardCancel(ctx, s.Close)

	logger.Info("browser ready",
		zap.Bool("headless", cfg.Headless),
		zap.String("exec_path", cfg.ExecPath),
		zap.String("download_dir", cfg.DownloadDir),
	)
	return s, nil
}

func allocatorOptions(cfg Config) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("no-service-autorun", true),
		chromedp.Flag("password-store", "basic"),
		chromedp.WindowSize(1366, 900),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	return opts
}

func detectBrowser() string {
	for _, candidate := range knownBrowsers {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
	}
	return ""
}

func forwardCancel(parent context.Context, cancel func()) {
	if parent == nil {
		return
	}
	go func() {
		<-parent.Done()
		cancel()
	}()
}

// Close shuts the tab and the browser process. Safe to call more than once.
func (s *Session) Close() {
	s.browserCancel()
	s.allocCancel()
}

// Visible reports whether the browser window is shown to the user.
func (s *Session) Visible() bool {
	return !s.cfg.Headless
}

// run executes actions on the tab, bounded by timeout and by ctx.
func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	runCtx, cancel := context.WithTimeout(s.browserCtx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// Navigate loads url and waits for the document body.
func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := s.run(ctx, s.cfg.NavTimeout,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

// WaitElement blocks until selector is present (or visible and enabled for WaitClickable).
func (s *Session) WaitElement(ctx context.Context, selector string, mode harvest.WaitMode) error {
	actions := []chromedp.Action{chromedp.WaitReady(selector, chromedp.ByQuery)}
	if mode == harvest.WaitClickable {
		actions = append(actions,
			chromedp.WaitVisible(selector, chromedp.ByQuery),
			chromedp.WaitEnabled(selector, chromedp.ByQuery),
		)
	}
	if err := s.run(ctx, s.cfg.ActionTimeout, actions...); err != nil {
		return fmt.Errorf("wait for %q: %w", selector, err)
	}
	return nil
}

const inspectScript = `(() => {
	const el = document.querySelector(%s);
	if (!el) return {present: false};
	const style = window.getComputedStyle(el);
	const rect = el.getBoundingClientRect();
	const visible = style.display !== 'none' && style.visibility !== 'hidden' && rect.width > 0 && rect.height > 0;
	const enabled = !el.disabled && el.getAttribute('aria-disabled') !== 'true' && !el.classList.contains('disabled');
	const name = %s;
	let attr = el.getAttribute(name) || '';
	if (attr && typeof el[name] === 'string' && el[name]) attr = el[name];
	return {present: true, enabled: enabled, visible: visible, attr: attr};
})()`

type elementState struct {
	Present bool   `json:"present"`
	Enabled bool   `json:"enabled"`
	Visible bool   `json:"visible"`
	Attr    string `json:"attr"`
}

// Inspect snapshots the first element matching selector in a single
// round-trip. Property values win over raw attributes so relative hrefs
// come back resolved.
func (s *Session) Inspect(ctx context.Context, selector, attr string) (harvest.Element, error) {
	script, err := buildInspectScript(selector, attr)
	if err != nil {
		return harvest.Element{}, err
	}
	var state elementState
	if err := s.run(ctx, s.cfg.ActionTimeout, chromedp.Evaluate(script, &state)); err != nil {
		return harvest.Element{}, fmt.Errorf("inspect %q: %w", selector, err)
	}
	return harvest.Element(state), nil
}

func buildInspectScript(selector, attr string) (string, error) {
	sel, err := json.Marshal(selector)
	if err != nil {
		return "", fmt.Errorf("encode selector: %w", err)
	}
	name, err := json.Marshal(attr)
	if err != nil {
		return "", fmt.Errorf("encode attribute: %w", err)
	}
	return fmt.Sprintf(inspectScript, sel, name), nil
}

// Submit clears the input matched by selector, types text, and presses Enter.
func (s *Session) Submit(ctx context.Context, selector, text string) error {
	if err := s.run(ctx, s.cfg.ActionTimeout,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, text, chromedp.ByQuery),
		chromedp.SendKeys(selector, kb.Enter, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("submit into %q: %w", selector, err)
	}
	return nil
}

// Location returns the tab's current URL.
func (s *Session) Location(ctx context.Context) (string, error) {
	var loc string
	if err := s.run(ctx, s.cfg.ActionTimeout, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("read location: %w", err)
	}
	return loc, nil
}

// errAborted is how Chrome reports a navigation that turned into a download.
const errAborted = "net::ERR_ABORTED"

// TriggerDownload navigates to url so the browser's own download handling
// saves the response into the configured directory.
func (s *Session) TriggerDownload(ctx context.Context, url string) error {
	err := s.run(ctx, s.cfg.NavTimeout, chromedp.ActionFunc(func(ctx context.Context) error {
		_, _, errText, isDownload, err := page.Navigate(url).Do(ctx)
		if err != nil {
			return err
		}
		if errText != "" && !(isDownload || errText == errAborted) {
			return errors.New(errText)
		}
		return nil
	}))
	if err != nil && !strings.Contains(err.Error(), errAborted) {
		return fmt.Errorf("trigger download %s: %w", url, err)
	}
	return nil
}

// Page is a rendered document.
type Page struct {
	URL    string
	Status int
	HTML   string
}

// PageHTML loads url, lets scripts settle for settle, and returns the
// rendered document with the final URL and document status.
func (s *Session) PageHTML(ctx context.Context, url string, settle time.Duration) (Page, error) {
	var html, finalURL string
	s.status.reset()
	actions := []chromedp.Action{
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}
	if settle > 0 {
		actions = append(actions, chromedp.Sleep(settle))
	}
	actions = append(actions,
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err := s.run(ctx, s.cfg.NavTimeout+settle, actions...); err != nil {
		return Page{}, fmt.Errorf("render %s: %w", url, err)
	}
	status, _ := s.status.snapshot()
	return Page{URL: finalURL, Status: status, HTML: html}, nil
}

// CurrentHTML returns the rendered document without navigating.
func (s *Session) CurrentHTML(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, s.cfg.ActionTimeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read document: %w", err)
	}
	return html, nil
}
