package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/doc-harvester/internal/browser"
	"github.com/JakeFAU/doc-harvester/internal/clock/system"
	"github.com/JakeFAU/doc-harvester/internal/config"
	"github.com/JakeFAU/doc-harvester/internal/discovery"
	collyfetcher "github.com/JakeFAU/doc-harvester/internal/fetcher/colly"
)

func newDiscoverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "discover QUERY...",
		Short: "Scrapes search results for document URLs",
		Long: `Runs QUERY against the search engine, walks the requested result pages,
and keeps links on the target domain. Results are written as a Title,URL CSV
to --output, or listed on stdout when no output is given.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runDiscoverCommand,
	}

	f := cmd.Flags()
	f.IntP("pages", "p", 0, "result pages to walk")
	bindFlag(cmd, "pages", "discovery.pages")
	f.Int("start", 0, "result offset of the first page")
	bindFlag(cmd, "start", "discovery.start")
	f.String("domain", "", "only keep links on this domain")
	bindFlag(cmd, "domain", "discovery.target_domain")
	f.String("engine", "", "page source: browser or http")
	bindFlag(cmd, "engine", "discovery.engine")
	f.StringP("output", "o", "", "CSV file to write")
	bindFlag(cmd, "output", "discovery.output")
	f.Bool("headless", true, "run the browser without a window; a visible browser allows solving captchas")
	bindFlag(cmd, "headless", "browser.headless")
	return cmd
}

func runDiscoverCommand(cmd *cobra.Command, args []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	query := strings.Join(args, " ")
	return runDiscovery(ctx, appInstance, query, cmd.OutOrStdout())
}

func runDiscovery(ctx context.Context, app *App, query string, out io.Writer) error {
	cfg := app.Config
	logger := app.Logger.With(zap.String("query", query))

	src, closeSrc, err := discoverySource(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeSrc()

	d, err := discovery.New(src, system.New(), discovery.Config{
		Query:          query,
		Pages:          cfg.Discovery.Pages,
		Start:          cfg.Discovery.Start,
		ResultsPerPage: cfg.Discovery.ResultsPerPage,
		TargetDomain:   cfg.Discovery.TargetDomain,
		SearchURL:      cfg.Discovery.SearchURL,
		DelayMin:       cfg.Discovery.DelayMin,
		DelayMax:       cfg.Discovery.DelayMax,
		CaptchaWait:    cfg.Discovery.CaptchaWait,
	}, logger, discovery.WithObserver(app.Metrics))
	if err != nil {
		return err
	}

	res, runErr := d.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return fmt.Errorf("discover: %w", runErr)
	}
	logger.Info("discovery finished",
		zap.Int("links", len(res.Links)),
		zap.Int("duplicates", res.Duplicates),
		zap.Int("pages", len(res.Pages)),
	)

	if cfg.Discovery.Output == "" {
		return listLinks(out, res.Links)
	}
	if err := writeLinksCSV(cfg.Discovery.Output, res.Links); err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "Saved %d links to %s\n", len(res.Links), cfg.Discovery.Output)
	return err
}

// discoverySource picks the page source for the configured engine. The
// returned func releases it.
func discoverySource(ctx context.Context, cfg config.Config, logger *zap.Logger) (discovery.Source, func(), error) {
	if cfg.Discovery.Engine == config.EngineHTTP {
		return collyfetcher.New(collyfetcher.Config{
			UserAgent: cfg.Browser.UserAgent,
			Timeout:   cfg.Browser.NavTimeout,
			Headers:   http.Header{"Accept-Language": {"en-US,en;q=0.9"}},
		}), func() {}, nil
	}
	session, err := browser.New(ctx, browser.Config{
		Headless:      cfg.Browser.Headless,
		ExecPath:      cfg.Browser.ExecPath,
		UserAgent:     cfg.Browser.UserAgent,
		NavTimeout:    cfg.Browser.NavTimeout,
		ActionTimeout: cfg.Browser.ActionTimeout,
	}, logger.Named("browser"))
	if err != nil {
		return nil, nil, fmt.Errorf("start browser: %w", err)
	}
	return discovery.NewBrowserSource(session, cfg.Discovery.Settle), session.Close, nil
}

func writeLinksCSV(path string, links []discovery.Link) (err error) {
	f, err := os.Create(path) // #nosec G304 -- path comes from the operator's own flag or config
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
	}()
	return discovery.WriteCSV(f, links)
}

func listLinks(w io.Writer, links []discovery.Link) error {
	if len(links) == 0 {
		_, err := fmt.Fprintln(w, "No links found.")
		return err
	}
	for i, l := range links {
		if _, err := fmt.Fprintf(w, "%3d. %s\n     %s\n", i+1, l.Title, l.URL); err != nil {
			return err
		}
	}
	return nil
}
