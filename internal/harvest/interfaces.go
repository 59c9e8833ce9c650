package harvest

import (
	"context"
	"time"
)

// Clock supplies time and a cancellable sleep so waits can be faked in tests.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// WaitMode selects how strictly an element must be available.
type WaitMode int

// Wait modes for Browser.WaitElement.
const (
	WaitPresence WaitMode = iota
	WaitClickable
)

// Element is a snapshot of a DOM element's state.
type Element struct {
	Present bool
	Enabled bool
	Visible bool
	Attr    string
}

// Actionable reports whether the element can be used as a download control.
func (e Element) Actionable() bool {
	return e.Present && e.Enabled && e.Visible && e.Attr != ""
}

// Browser is the capability set the pipeline needs from an automated browser.
// Implementations are stateful and must not be used concurrently.
type Browser interface {
	Navigate(ctx context.Context, url string) error
	WaitElement(ctx context.Context, selector string, mode WaitMode) error
	Inspect(ctx context.Context, selector, attr string) (Element, error)
	Submit(ctx context.Context, selector, text string) error
	Location(ctx context.Context) (string, error)
	TriggerDownload(ctx context.Context, url string) error
}

// Fetcher retrieves a resolved link into the destination directory.
type Fetcher interface {
	Fetch(ctx context.Context, link *DownloadLink, source SourceItem) (*Fetched, error)
}
