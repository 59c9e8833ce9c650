package harvest

import (
	"strings"
	"sync"
	"time"
)

// SourceItem is one input URL to be converted and fetched.
type SourceItem struct {
	URL   string
	Index int
}

// Dedupe drops repeated URLs, keeping the first occurrence and its order.
// Blank entries are skipped. Indexes are reassigned from zero.
func Dedupe(urls []string) []SourceItem {
	seen := make(map[string]struct{}, len(urls))
	items := make([]SourceItem, 0, len(urls))
	for _, raw := range urls {
		u := strings.TrimSpace(raw)
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		items = append(items, SourceItem{URL: u, Index: len(items)})
	}
	return items
}

// Outcome is the state of an attempt or item.
type Outcome string

// Outcome values.
const (
	OutcomePending   Outcome = "pending"
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
)

// Terminal reports whether the outcome is final.
func (o Outcome) Terminal() bool {
	return o == OutcomeSucceeded || o == OutcomeFailed
}

// Strategy names the path that produced a fetched file.
type Strategy string

// Fetch strategies.
const (
	StrategyDirect  Strategy = "direct"
	StrategyBrowser Strategy = "browser"
)

// Fetched describes a file written by the fetcher.
type Fetched struct {
	Path     string
	Strategy Strategy
	Bytes    int64
	SHA256   string
}

// FetchAttempt records one pass of the per-item pipeline.
type FetchAttempt struct {
	Item      SourceItem
	Number    int
	Outcome   Outcome
	State     State
	File      *Fetched
	Err       error
	StartedAt time.Time
	Elapsed   time.Duration
}

// Error returns the failure detail, or "" when the attempt did not fail.
func (a FetchAttempt) Error() string {
	if a.Err == nil {
		return ""
	}
	return a.Err.Error()
}

// ItemResult is the terminal record for one source item.
type ItemResult struct {
	Item     SourceItem
	Outcome  Outcome
	File     *Fetched
	Err      error
	Attempts []FetchAttempt
	Elapsed  time.Duration
}

// Path returns the resolved file path for a succeeded item.
func (r ItemResult) Path() string {
	if r.File == nil {
		return ""
	}
	return r.File.Path
}

// Reason returns the failure detail for a failed item.
func (r ItemResult) Reason() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// DownloadLink is a resolved target URL valid for a single attempt.
// It can be consumed once; later calls fail with ErrLinkConsumed.
type DownloadLink struct {
	mu       sync.Mutex
	url      string
	consumed bool
}

// NewDownloadLink wraps a resolved URL. Empty values are rejected.
func NewDownloadLink(raw string) (*DownloadLink, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrEmptyLink
	}
	return &DownloadLink{url: raw}, nil
}

// Consume hands out the URL exactly once.
func (l *DownloadLink) Consume() (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.consumed {
		return "", ErrLinkConsumed
	}
	l.consumed = true
	return l.url, nil
}

// String exposes the URL for logging without consuming it.
func (l *DownloadLink) String() string {
	return l.url
}
