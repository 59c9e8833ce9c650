package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/doc-harvester/internal/harvest"
	"github.com/JakeFAU/doc-harvester/internal/hash/sha256"
	"github.com/JakeFAU/doc-harvester/internal/storage/local"
)

// DirectConfig tunes the direct strategy.
type DirectConfig struct {
	UserAgent string
	Timeout   time.Duration
}

// Direct streams a link straight to disk over HTTP.
type Direct struct {
	client *http.Client
	store  *local.BlobStore
	cfg    DirectConfig
	logger *zap.Logger
}

// NewDirect builds the direct strategy. A nil client gets NewHTTPClient.
func NewDirect(client *http.Client, store *local.BlobStore, cfg DirectConfig, logger *zap.Logger) *Direct {
	if client == nil {
		client = NewHTTPClient()
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Direct{client: client, store: store, cfg: cfg, logger: logger.Named("direct")}
}

// Fetch downloads target into a freshly reserved file derived from name.
// The file is only created after a 2xx response and is removed on any failure.
func (d *Direct) Fetch(ctx context.Context, target, name string) (*harvest.Fetched, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", harvest.ErrDirectFetch, err)
	}
	req.Header.Set("User-Agent", d.cfg.UserAgent)
	req.Header.Set("Accept", "application/pdf,application/octet-stream,*/*;q=0.8")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", harvest.ErrDirectFetch, err)
	}
	defer resp.Body.Close() //nolint:errcheck // body fully consumed or abandoned

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: unexpected status %s", harvest.ErrDirectFetch, resp.Status)
	}

	f, err := d.store.Reserve(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", harvest.ErrDirectFetch, err)
	}
	dst := f.Name()
	digest := sha256.NewDigest(f)
	_, copyErr := io.Copy(digest, resp.Body)
	closeErr := f.Close()
	switch {
	case copyErr != nil:
		err = fmt.Errorf("stream body: %w", copyErr)
	case closeErr != nil:
		err = fmt.Errorf("close file: %w", closeErr)
	case digest.Len() == 0:
		err = fmt.Errorf("empty response body")
	}
	if err != nil {
		if rmErr := os.Remove(dst); rmErr != nil {
			d.logger.Warn("remove partial file", zap.String("path", dst), zap.Error(rmErr))
		}
		return nil, fmt.Errorf("%w: %w", harvest.ErrDirectFetch, err)
	}

	d.logger.Debug("direct transfer complete",
		zap.String("path", dst),
		zap.Int64("bytes", digest.Len()),
	)
	return &harvest.Fetched{
		Path:     dst,
		Strategy: harvest.StrategyDirect,
		Bytes:    digest.Len(),
		SHA256:   digest.Sum(),
	}, nil
}
