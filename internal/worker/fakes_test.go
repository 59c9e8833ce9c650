package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/doc-harvester/internal/clock/fake"
	"github.com/JakeFAU/doc-harvester/internal/harvest"
	"github.com/JakeFAU/doc-harvester/internal/progress"
)

const (
	landingURL   = "https://convert.test/"
	inputSel     = "div.input-box input"
	downloadSel  = "a.btn.btn-lg.btn-success"
	redirectHost = "jobs.convert.test"
)

var epoch = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

// fakeBrowser simulates the conversion site. After a submit it redirects
// once redirectAfter has elapsed and exposes the link once readyAfter has
// elapsed, both measured on the fake clock from the submit time.
type fakeBrowser struct {
	clock *fake.Clock

	mu            sync.Mutex
	redirectAfter time.Duration
	readyAfter    func(url string) (time.Duration, bool)
	navigateErr   func(attempt int) error
	linkFor       func(source string) string
	onDownload    func(url string)
	submittedAt   time.Time
	current       string
	submitted     []string
	navigations   int
	downloads     []string
}

func newFakeBrowser(clock *fake.Clock) *fakeBrowser {
	return &fakeBrowser{
		clock:         clock,
		redirectAfter: 2 * time.Second,
		readyAfter: func(string) (time.Duration, bool) {
			return 15 * time.Second, true
		},
	}
}

func (b *fakeBrowser) Navigate(_ context.Context, url string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.navigations++
	if b.navigateErr != nil {
		if err := b.navigateErr(b.navigations); err != nil {
			return err
		}
	}
	b.current = url
	b.submittedAt = time.Time{}
	return nil
}

func (b *fakeBrowser) WaitElement(_ context.Context, selector string, _ harvest.WaitMode) error {
	if selector != inputSel {
		return fmt.Errorf("unexpected selector %q", selector)
	}
	return nil
}

func (b *fakeBrowser) Submit(_ context.Context, selector, text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if selector != inputSel {
		return fmt.Errorf("unexpected selector %q", selector)
	}
	b.submitted = append(b.submitted, text)
	b.submittedAt = b.clock.Now()
	return nil
}

func (b *fakeBrowser) Location(context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.submittedAt.IsZero() && b.clock.Now().Sub(b.submittedAt) >= b.redirectAfter {
		b.current = "https://" + redirectHost + "/job/1"
	}
	return b.current, nil
}

func (b *fakeBrowser) Inspect(_ context.Context, selector, attr string) (harvest.Element, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if selector != downloadSel || attr != "href" {
		return harvest.Element{}, fmt.Errorf("unexpected inspect %q %q", selector, attr)
	}
	if !strings.Contains(b.current, redirectHost) {
		return harvest.Element{}, errors.New("no such element")
	}
	source := b.submitted[len(b.submitted)-1]
	after, ok := b.readyAfter(source)
	if !ok || b.clock.Now().Sub(b.submittedAt) < after {
		return harvest.Element{Present: true, Visible: true}, nil
	}
	link := "https://cdn.convert.test/out/" + fmt.Sprint(len(b.submitted))
	if b.linkFor != nil {
		link = b.linkFor(source)
	}
	return harvest.Element{Present: true, Enabled: true, Visible: true, Attr: link}, nil
}

func (b *fakeBrowser) TriggerDownload(_ context.Context, url string) error {
	b.mu.Lock()
	b.downloads = append(b.downloads, url)
	hook := b.onDownload
	b.mu.Unlock()
	if hook != nil {
		hook(url)
	}
	return nil
}

// fakeFetcher fails the first `fails` calls per source URL.
type fakeFetcher struct {
	mu    sync.Mutex
	fails map[string]int
	calls map[string]int
	links []string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{fails: map[string]int{}, calls: map[string]int{}}
}

func (f *fakeFetcher) Fetch(_ context.Context, link *harvest.DownloadLink, source harvest.SourceItem) (*harvest.Fetched, error) {
	target, err := link.Consume()
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.links = append(f.links, target)
	f.calls[source.URL]++
	if f.calls[source.URL] <= f.fails[source.URL] {
		return nil, &harvest.FetchError{Direct: harvest.ErrDirectFetch, Fallback: harvest.ErrFallbackTimeout}
	}
	name := source.URL[strings.LastIndex(source.URL, "/")+1:]
	return &harvest.Fetched{Path: "/downloads/" + name, Strategy: harvest.StrategyDirect, Bytes: 10}, nil
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *recordingEmitter) Emit(evt progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingEmitter) stages() []progress.Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]progress.Stage, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Stage)
	}
	return out
}
