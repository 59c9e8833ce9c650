package download

import (
	"context"
	"net/url"
	"path"

	"go.uber.org/zap"

	"github.com/JakeFAU/doc-harvester/internal/harvest"
)

// DualPath implements harvest.Fetcher: direct transfer first, browser fallback second.
type DualPath struct {
	direct     *Direct
	fallback   *Fallback
	clock      harvest.Clock
	defaultExt string
	logger     *zap.Logger
}

// NewDualPath combines the two strategies.
func NewDualPath(direct *Direct, fallback *Fallback, clock harvest.Clock, defaultExt string, logger *zap.Logger) *DualPath {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DualPath{
		direct:     direct,
		fallback:   fallback,
		clock:      clock,
		defaultExt: defaultExt,
		logger:     logger.Named("fetch"),
	}
}

// Fetch consumes link and writes exactly one file named after the source URL.
func (d *DualPath) Fetch(ctx context.Context, link *harvest.DownloadLink, source harvest.SourceItem) (*harvest.Fetched, error) {
	target, err := link.Consume()
	if err != nil {
		return nil, err
	}
	name := Filename(source.URL, d.clock.Now(), d.defaultExt)
	logger := d.logger.With(zap.String("url", source.URL), zap.String("file", name))

	fetched, directErr := d.direct.Fetch(ctx, target, name)
	if directErr == nil {
		return fetched, nil
	}
	logger.Warn("direct fetch failed, falling back to browser", zap.Error(directErr))
	if ctx.Err() != nil {
		return nil, &harvest.FetchError{Direct: directErr, Fallback: ctx.Err()}
	}

	names := []string{name}
	if alt := linkName(target); alt != "" && alt != name {
		names = append(names, alt)
	}
	fetched, fallbackErr := d.fallback.Fetch(ctx, target, names...)
	if fallbackErr != nil {
		return nil, &harvest.FetchError{Direct: directErr, Fallback: fallbackErr}
	}
	logger.Info("browser fallback succeeded", zap.String("path", fetched.Path))
	return fetched, nil
}

// linkName is the name a browser would likely pick from the link itself.
func linkName(target string) string {
	u, err := url.Parse(target)
	if err != nil {
		return ""
	}
	p, err := url.PathUnescape(u.EscapedPath())
	if err != nil {
		p = u.Path
	}
	base := sanitize(path.Base(p))
	if base == "" || path.Ext(base) == "" {
		return ""
	}
	return base
}
