package discovery

import (
	"context"
	"time"

	"github.com/JakeFAU/doc-harvester/internal/browser"
)

type pageLoader interface {
	PageHTML(ctx context.Context, url string, settle time.Duration) (browser.Page, error)
	CurrentHTML(ctx context.Context) (string, error)
	Visible() bool
}

// BrowserSource loads result pages in a real browser session.
type BrowserSource struct {
	session pageLoader
	settle  time.Duration
}

// NewBrowserSource wraps a session. settle is how long to let scripts run
// after the document is ready.
func NewBrowserSource(session pageLoader, settle time.Duration) *BrowserSource {
	return &BrowserSource{session: session, settle: settle}
}

// FetchPage implements Source.
func (b *BrowserSource) FetchPage(ctx context.Context, url string) (Page, error) {
	p, err := b.session.PageHTML(ctx, url, b.settle)
	if err != nil {
		return Page{}, err
	}
	return Page{URL: p.URL, Status: p.Status, HTML: p.HTML}, nil
}

// Interactive implements Rereader.
func (b *BrowserSource) Interactive() bool {
	return b.session.Visible()
}

// Reread implements Rereader.
func (b *BrowserSource) Reread(ctx context.Context) (string, error) {
	return b.session.CurrentHTML(ctx)
}
