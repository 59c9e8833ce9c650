package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/doc-harvester/internal/api"
	"github.com/JakeFAU/doc-harvester/internal/browser"
	"github.com/JakeFAU/doc-harvester/internal/clock/system"
	"github.com/JakeFAU/doc-harvester/internal/dispatcher"
	"github.com/JakeFAU/doc-harvester/internal/download"
	"github.com/JakeFAU/doc-harvester/internal/harvest"
	idgen "github.com/JakeFAU/doc-harvester/internal/id/uuid"
	"github.com/JakeFAU/doc-harvester/internal/input"
	"github.com/JakeFAU/doc-harvester/internal/metrics"
	"github.com/JakeFAU/doc-harvester/internal/poller"
	"github.com/JakeFAU/doc-harvester/internal/progress"
	"github.com/JakeFAU/doc-harvester/internal/report"
	"github.com/JakeFAU/doc-harvester/internal/storage/local"
	"github.com/JakeFAU/doc-harvester/internal/worker"
)

const shutdownTimeout = 30 * time.Second

func newFetchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch INPUT",
		Short: "Downloads every document listed in INPUT",
		Long: `Reads source URLs from INPUT (a CSV with a URL column, or one URL per
line), submits each to the conversion site, and saves the resulting file.
Items run one at a time in batches. A report is written when the run ends,
including after Ctrl-C.`,
		Args: cobra.ExactArgs(1),
		RunE: runFetchCommand,
	}

	f := cmd.Flags()
	f.StringP("dest", "d", "", "destination directory for downloads")
	bindFlag(cmd, "dest", "destination.dir")
	f.Bool("headless", true, "run the browser without a window")
	bindFlag(cmd, "headless", "browser.headless")
	f.Int("batch-size", 0, "items per batch")
	bindFlag(cmd, "batch-size", "batch.size")
	f.Int("max-attempts", 0, "attempts per item before it is marked failed")
	bindFlag(cmd, "max-attempts", "retry.max_attempts")
	f.String("server-addr", "", "serve run status on this address, e.g. :8080")
	bindFlag(cmd, "server-addr", "server.addr")
	f.StringSlice("report-format", nil, "report formats: text, json, yaml")
	bindFlag(cmd, "report-format", "report.formats")
	return cmd
}

func runFetchCommand(cmd *cobra.Command, args []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	items, err := input.ReadURLs(args[0])
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	return runPipeline(ctx, cancel, appInstance, items, cmd.OutOrStdout())
}

// pipeline holds the per-run services that outlive item processing.
type pipeline struct {
	app     *App
	runID   [16]byte
	clock   *system.Clock
	agg     *report.Aggregator
	hub     *progress.Hub
	docs    *local.BlobStore
	reports *local.BlobStore
	formats []report.Format
	logger  *zap.Logger
}

func runPipeline(ctx context.Context, cancel context.CancelFunc, app *App, items []harvest.SourceItem, out io.Writer) error {
	cfg := app.Config
	id, err := idgen.NewUUIDGenerator().NewRunID()
	if err != nil {
		return err
	}
	logger := app.Logger.With(zap.String("run_id", id.String()))

	formats, err := cfg.ReportFormats()
	if err != nil {
		return err
	}
	docs, err := local.New(local.Config{BaseDir: cfg.Destination.Dir})
	if err != nil {
		return fmt.Errorf("destination: %w", err)
	}
	reports, err := local.New(local.Config{BaseDir: cfg.ReportDir()})
	if err != nil {
		return fmt.Errorf("report dir: %w", err)
	}

	// A browser that cannot start is a setup error: nothing has run yet and
	// no report is written.
	session, err := browser.New(ctx, browser.Config{
		Headless:      cfg.Browser.Headless,
		ExecPath:      cfg.Browser.ExecPath,
		UserAgent:     cfg.Browser.UserAgent,
		DownloadDir:   docs.Dir(),
		NavTimeout:    cfg.Browser.NavTimeout,
		ActionTimeout: cfg.Browser.ActionTimeout,
	}, logger.Named("browser"))
	if err != nil {
		return fmt.Errorf("start browser: %w", err)
	}
	defer session.Close()

	sinks, closeSinks, err := buildSinks(ctx, app, logger)
	if err != nil {
		return err
	}
	defer closeSinks()

	clk := system.New()
	p := &pipeline{
		app:     app,
		runID:   progress.UUIDToBytes(id),
		clock:   clk,
		agg:     report.NewAggregator(id, clk),
		hub:     progress.NewHub(progress.Config{Logger: logger.Named("progress")}, sinks...),
		docs:    docs,
		reports: reports,
		formats: formats,
		logger:  logger,
	}

	d, err := p.dispatcher(session)
	if err != nil {
		p.closeHub(ctx)
		return err
	}

	if cfg.Server.Addr != "" {
		srv, err := api.NewServer(api.Config{
			Run:        p.agg,
			Metrics:    app.Metrics.Handler(),
			Middleware: []func(http.Handler) http.Handler{app.Metrics.Middleware},
			Cancel:     cancel,
		}, logger.Named("api"))
		if err == nil {
			_, err = srv.Start(cfg.Server.Addr)
		}
		if err != nil {
			p.closeHub(ctx)
			return err
		}
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
			defer done()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("status server shutdown failed", zap.Error(err))
			}
		}()
	}

	outcomes := d.Run(ctx, items)
	logger.Info("run complete",
		zap.Int("succeeded", len(outcomes.Succeeded)),
		zap.Int("failed", len(outcomes.Failed)),
	)
	return p.finish(ctx, out)
}

// dispatcher builds the download stack and worker around session.
func (p *pipeline) dispatcher(session *browser.Session) (*dispatcher.Dispatcher, error) {
	cfg := p.app.Config
	direct := download.NewDirect(download.NewHTTPClient(), p.docs, download.DirectConfig{
		UserAgent: cfg.Download.UserAgent,
		Timeout:   cfg.Download.DirectTimeout,
	}, p.logger)
	fallback := download.NewFallback(session, p.docs, p.clock, download.FallbackConfig{
		Timeout:       cfg.Download.FallbackTimeout,
		PollInterval:  cfg.Download.FallbackPoll,
		PartialSuffix: cfg.Download.PartialSuffix,
	}, p.logger)
	fetcher := download.NewDualPath(direct, fallback, p.clock, cfg.Download.DefaultExtension, p.logger)

	w, err := worker.New(
		session,
		fetcher,
		p.clock,
		worker.NewFixedRetryPolicy(cfg.Retry.MaxAttempts, cfg.Retry.Delay),
		p.hub,
		p.runID,
		worker.Config{
			Remote: worker.Remote{
				LandingURL:       cfg.Remote.LandingURL,
				InputSelector:    cfg.Remote.InputSelector,
				RedirectHost:     cfg.Remote.RedirectHost,
				DownloadSelector: cfg.Remote.DownloadSelector,
				LinkAttribute:    cfg.Remote.LinkAttribute,
				RedirectTimeout:  cfg.Remote.RedirectTimeout,
				RedirectPoll:     cfg.Remote.RedirectPoll,
			},
			Readiness: poller.Params{
				MinWait:  cfg.Readiness.MinWait,
				MaxWait:  cfg.Readiness.MaxWait,
				Interval: cfg.Readiness.PollInterval,
			},
		},
		p.logger,
	)
	if err != nil {
		return nil, fmt.Errorf("init worker: %w", err)
	}

	d, err := dispatcher.New(w, p.agg, p.clock, p.hub, p.runID, dispatcher.Config{
		BatchSize: cfg.Batch.Size,
		ItemRest:  cfg.Batch.ItemRest,
		BatchRest: cfg.Batch.BatchRest,
	}, p.logger)
	if err != nil {
		return nil, fmt.Errorf("init dispatcher: %w", err)
	}
	return d, nil
}

// closeHub drains progress events to the sinks.
func (p *pipeline) closeHub(ctx context.Context) {
	closeCtx, done := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer done()
	if err := p.hub.Close(closeCtx); err != nil {
		p.logger.Warn("progress hub did not drain", zap.Error(err))
	}
	if dropped := p.hub.Dropped(); dropped > 0 {
		p.logger.Warn("progress events dropped", zap.Int64("count", dropped))
	}
}

// finish drains progress, then writes reports, the console summary, and the
// metrics textfile. It runs even when ctx is canceled.
func (p *pipeline) finish(ctx context.Context, out io.Writer) error {
	run := p.agg.Finalize()
	cfg := p.app.Config
	p.closeHub(ctx)

	closeCtx, done := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer done()

	var errs []error
	uris, err := report.Write(closeCtx, p.reports, run, p.formats)
	if err != nil {
		errs = append(errs, fmt.Errorf("write report: %w", err))
	}
	for _, uri := range uris {
		p.logger.Info("report written", zap.String("uri", uri))
	}
	if err := report.PrintSummary(out, run); err != nil {
		errs = append(errs, fmt.Errorf("print summary: %w", err))
	}
	if cfg.Metrics.Textfile != "" {
		if err := metrics.WriteTextfile(cfg.Metrics.Textfile, p.app.Metrics.Registry()); err != nil {
			errs = append(errs, err)
		}
	}
	if ctx.Err() != nil {
		p.logger.Warn("run stopped before all items finished", zap.Error(ctx.Err()))
	}
	return errors.Join(errs...)
}
