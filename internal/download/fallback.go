package download

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/doc-harvester/internal/harvest"
	"github.com/JakeFAU/doc-harvester/internal/hash/sha256"
	"github.com/JakeFAU/doc-harvester/internal/poller"
	"github.com/JakeFAU/doc-harvester/internal/storage/local"
)

// Trigger starts a browser-native download of url.
type Trigger interface {
	TriggerDownload(ctx context.Context, url string) error
}

// FallbackConfig tunes the browser strategy.
type FallbackConfig struct {
	Timeout       time.Duration
	PollInterval  time.Duration
	PartialSuffix string
}

// Fallback hands the link to the browser and watches the directory for the result.
type Fallback struct {
	trigger Trigger
	store   *local.BlobStore
	clock   harvest.Clock
	cfg     FallbackConfig
	logger  *zap.Logger
}

// NewFallback builds the browser strategy.
func NewFallback(trigger Trigger, store *local.BlobStore, clock harvest.Clock, cfg FallbackConfig, logger *zap.Logger) *Fallback {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.PartialSuffix == "" {
		cfg.PartialSuffix = ".crdownload"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fallback{trigger: trigger, store: store, clock: clock, cfg: cfg, logger: logger.Named("fallback")}
}

// Fetch triggers the download and waits until a new file matching one of
// names exists and no partial download is left in the directory. The file is
// then moved to a disambiguated variant of names[0] if the browser chose a
// different name.
func (f *Fallback) Fetch(ctx context.Context, target string, names ...string) (*harvest.Fetched, error) {
	if len(names) == 0 {
		return nil, errors.New("expected file name is required")
	}
	before, err := f.snapshot()
	if err != nil {
		return nil, err
	}
	if err := f.trigger.TriggerDownload(ctx, target); err != nil {
		return nil, fmt.Errorf("trigger browser download: %w", err)
	}

	var found string
	elapsed, err := poller.Until(ctx, f.clock, f.cfg.Timeout, f.cfg.PollInterval, func(context.Context) (bool, error) {
		path, ok, scanErr := f.completed(before, names)
		if ok {
			found = path
		}
		return ok, scanErr
	})
	if err != nil {
		if errors.Is(err, poller.ErrTimeout) {
			return nil, fmt.Errorf("%w: waited %s for %s", harvest.ErrFallbackTimeout, elapsed, names[0])
		}
		return nil, err
	}

	final, err := f.store.Adopt(found, names[0])
	if err != nil {
		return nil, err
	}
	sum, size, err := sha256.File(final)
	if err != nil {
		return nil, err
	}
	f.logger.Debug("browser download complete",
		zap.String("path", final),
		zap.Duration("elapsed", elapsed),
	)
	return &harvest.Fetched{Path: final, Strategy: harvest.StrategyBrowser, Bytes: size, SHA256: sum}, nil
}

func (f *Fallback) snapshot() (map[string]time.Time, error) {
	entries, err := os.ReadDir(f.store.Dir())
	if err != nil {
		return nil, fmt.Errorf("read destination: %w", err)
	}
	seen := make(map[string]time.Time, len(entries))
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}
		seen[entry.Name()] = info.ModTime()
	}
	return seen, nil
}

// completed scans the directory once. It reports the first new or modified
// file matching names, but only once no partial download for this transfer
// remains. Partial files left over from earlier runs are ignored.
func (f *Fallback) completed(before map[string]time.Time, names []string) (string, bool, error) {
	entries, err := os.ReadDir(f.store.Dir())
	if err != nil {
		return "", false, fmt.Errorf("read destination: %w", err)
	}
	var match string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, f.cfg.PartialSuffix) {
			_, stale := before[name]
			if !stale || matchesAny(strings.TrimSuffix(name, f.cfg.PartialSuffix), names) {
				return "", false, nil
			}
			continue
		}
		if entry.IsDir() || match != "" || !matchesAny(name, names) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if prev, ok := before[name]; ok && !info.ModTime().After(prev) {
			continue
		}
		match = filepath.Join(f.store.Dir(), name)
	}
	return match, match != "", nil
}

// matchesAny accepts name or the browser's "stem (N).ext" rename of it.
func matchesAny(got string, names []string) bool {
	for _, want := range names {
		if got == want {
			return true
		}
		ext := filepath.Ext(want)
		stem := strings.TrimSuffix(want, ext)
		if !strings.HasPrefix(got, stem+" (") || !strings.HasSuffix(got, ")"+ext) {
			continue
		}
		n := strings.TrimSuffix(strings.TrimPrefix(got, stem+" ("), ")"+ext)
		if n != "" && strings.Trim(n, "0123456789") == "" {
			return true
		}
	}
	return false
}
