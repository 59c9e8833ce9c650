package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/JakeFAU/doc-harvester/internal/config"
	"github.com/JakeFAU/doc-harvester/internal/logging"
	"github.com/JakeFAU/doc-harvester/internal/metrics"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// configKeyAnnotation marks a flag as an override for a config key.
const configKeyAnnotation = "docharvest/config-key"

// App carries the loaded configuration and shared services into subcommands.
type App struct {
	Config  config.Config
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// Close flushes buffered log output.
func (a *App) Close() {
	logging.Sync(a.Logger)
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(cmd *cobra.Command) (*App, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, fmt.Errorf("read --config: %w", err)
	}
	cfg, err := config.Load(path, boundFlags(cmd))
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	return &App{Config: cfg, Logger: logger, Metrics: metrics.New()}, nil
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docharvest",
		Short: "Collects documents through a conversion site and finds new ones in search results.",
		Long: `docharvest drives a browser through a remote conversion service to
download documents from a list of URLs, with retries, pacing, and a run report.
The discover command scrapes search results for new document URLs.`,
		SilenceUsage: true,

		// Config and logger are built once the subcommand's flags are parsed.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd)
			if err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(*App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	cmd.PersistentFlags().String("config", "", "config file (yaml, json, or toml)")

	cmd.AddCommand(newFetchCmd())
	cmd.AddCommand(newDiscoverCmd())
	return cmd
}

// Execute is the main entry point.
func Execute() {
	root := newRootCmd()
	if err := root.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func resolveApp(ctx context.Context) (*App, error) {
	appInstance, ok := ctx.Value(appKey).(*App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// bindFlag ties flag name on cmd to a config key so an explicit value
// overrides files and environment.
func bindFlag(cmd *cobra.Command, name, key string) {
	if err := cmd.Flags().SetAnnotation(name, configKeyAnnotation, []string{key}); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", name, err))
	}
}

func boundFlags(cmd *cobra.Command) map[string]*pflag.Flag {
	out := make(map[string]*pflag.Flag)
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if keys := f.Annotations[configKeyAnnotation]; len(keys) == 1 {
			out[keys[0]] = f
		}
	})
	return out
}
