// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/JakeFAU/doc-harvester/internal/report"
)

// EnvPrefix namespaces environment overrides, e.g. DOCHARVEST_BATCH_SIZE.
const EnvPrefix = "DOCHARVEST"

// DefaultUserAgent is a current desktop Chrome string.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Destination DestinationConfig `mapstructure:"destination"`
	Browser     BrowserConfig     `mapstructure:"browser"`
	Remote      RemoteConfig      `mapstructure:"remote"`
	Readiness   ReadinessConfig   `mapstructure:"readiness"`
	Retry       RetryConfig       `mapstructure:"retry"`
	Batch       BatchConfig       `mapstructure:"batch"`
	Download    DownloadConfig    `mapstructure:"download"`
	Report      ReportConfig      `mapstructure:"report"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Server      ServerConfig      `mapstructure:"server"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Storage     StorageConfig     `mapstructure:"storage"`
	DB          DBConfig          `mapstructure:"db"`
	PubSub      PubSubConfig      `mapstructure:"pubsub"`
	Discovery   DiscoveryConfig   `mapstructure:"discovery"`
}

// DestinationConfig says where downloaded documents land.
type DestinationConfig struct {
	Dir string `mapstructure:"dir"`
}

// BrowserConfig controls the automated browser session.
type BrowserConfig struct {
	Headless      bool          `mapstructure:"headless"`
	ExecPath      string        `mapstructure:"exec_path"`
	UserAgent     string        `mapstructure:"user_agent"`
	NavTimeout    time.Duration `mapstructure:"nav_timeout"`
	ActionTimeout time.Duration `mapstructure:"action_timeout"`
}

// RemoteConfig describes the conversion site the worker drives.
type RemoteConfig struct {
	LandingURL       string        `mapstructure:"landing_url"`
	InputSelector    string        `mapstructure:"input_selector"`
	RedirectHost     string        `mapstructure:"redirect_host"`
	DownloadSelector string        `mapstructure:"download_selector"`
	LinkAttribute    string        `mapstructure:"link_attribute"`
	RedirectTimeout  time.Duration `mapstructure:"redirect_timeout"`
	RedirectPoll     time.Duration `mapstructure:"redirect_poll"`
}

// ReadinessConfig bounds the wait for the download control.
type ReadinessConfig struct {
	MinWait      time.Duration `mapstructure:"min_wait"`
	MaxWait      time.Duration `mapstructure:"max_wait"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// RetryConfig controls whole-flow retries per item.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Delay       time.Duration `mapstructure:"delay"`
}

// BatchConfig controls pacing between items and batches.
type BatchConfig struct {
	Size      int           `mapstructure:"size"`
	ItemRest  time.Duration `mapstructure:"item_rest"`
	BatchRest time.Duration `mapstructure:"batch_rest"`
}

// DownloadConfig tunes the direct and browser download paths.
type DownloadConfig struct {
	UserAgent        string        `mapstructure:"user_agent"`
	DirectTimeout    time.Duration `mapstructure:"direct_timeout"`
	FallbackTimeout  time.Duration `mapstructure:"fallback_timeout"`
	FallbackPoll     time.Duration `mapstructure:"fallback_poll"`
	DefaultExtension string        `mapstructure:"default_extension"`
	PartialSuffix    string        `mapstructure:"partial_suffix"`
}

// ReportConfig controls run report output. An empty Dir means the destination dir.
type ReportConfig struct {
	Dir     string   `mapstructure:"dir"`
	Formats []string `mapstructure:"formats"`
}

// LoggingConfig controls zap logger selection.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// ServerConfig enables the status server when Addr is set.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// MetricsConfig enables a node-exporter textfile dump at exit.
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"`
}

// StorageConfig configures the optional GCS mirror.
type StorageConfig struct {
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// DBConfig configures the optional Postgres outcome store.
type DBConfig struct {
	DSN   string `mapstructure:"dsn"`
	Table string `mapstructure:"table"`
}

// PubSubConfig configures optional outcome publishing.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// DiscoveryConfig drives the search-result scraper.
type DiscoveryConfig struct {
	Pages          int           `mapstructure:"pages"`
	Start          int           `mapstructure:"start"`
	ResultsPerPage int           `mapstructure:"results_per_page"`
	TargetDomain   string        `mapstructure:"target_domain"`
	DelayMin       time.Duration `mapstructure:"delay_min"`
	DelayMax       time.Duration `mapstructure:"delay_max"`
	Engine         string        `mapstructure:"engine"`
	CaptchaWait    time.Duration `mapstructure:"captcha_wait"`
	Settle         time.Duration `mapstructure:"settle"`
	SearchURL      string        `mapstructure:"search_url"`
	Output         string        `mapstructure:"output"`
}

// Discovery engines.
const (
	EngineBrowser = "browser"
	EngineHTTP    = "http"
)

// Load reads configuration from defaults, an optional file, environment
// variables, and bound flags, in increasing precedence. flags maps config
// keys to the command-line flags that override them.
func Load(path string, flags map[string]*pflag.Flag) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	for key, flag := range flags {
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return Config{}, fmt.Errorf("bind flag %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("destination.dir", "downloads")

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.user_agent", DefaultUserAgent)
	v.SetDefault("browser.nav_timeout", 30*time.Second)
	v.SetDefault("browser.action_timeout", 30*time.Second)

	v.SetDefault("remote.landing_url", "https://mydocdownloader.com/")
	v.SetDefault("remote.input_selector", "div.input-box input")
	v.SetDefault("remote.redirect_host", "compress-pdf.vietdreamhouse.com")
	v.SetDefault("remote.download_selector", "a.btn.btn-lg.btn-success")
	v.SetDefault("remote.link_attribute", "href")
	v.SetDefault("remote.redirect_timeout", 30*time.Second)
	v.SetDefault("remote.redirect_poll", 500*time.Millisecond)

	v.SetDefault("readiness.min_wait", 12*time.Second)
	v.SetDefault("readiness.max_wait", 42*time.Second)
	v.SetDefault("readiness.poll_interval", time.Second)

	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.delay", 5*time.Second)

	v.SetDefault("batch.size", 3)
	v.SetDefault("batch.item_rest", 2*time.Second)
	v.SetDefault("batch.batch_rest", 10*time.Second)

	v.SetDefault("download.user_agent", DefaultUserAgent)
	v.SetDefault("download.direct_timeout", 60*time.Second)
	v.SetDefault("download.fallback_timeout", 60*time.Second)
	v.SetDefault("download.fallback_poll", time.Second)
	v.SetDefault("download.default_extension", ".pdf")
	v.SetDefault("download.partial_suffix", ".crdownload")

	v.SetDefault("report.dir", "")
	v.SetDefault("report.formats", []string{"text", "json"})

	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("server.addr", "")
	v.SetDefault("metrics.textfile", "")

	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.prefix", "documents")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "fetch_outcomes")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")

	v.SetDefault("discovery.pages", 1)
	v.SetDefault("discovery.start", 0)
	v.SetDefault("discovery.results_per_page", 10)
	v.SetDefault("discovery.target_domain", "scribd.com")
	v.SetDefault("discovery.delay_min", 3*time.Second)
	v.SetDefault("discovery.delay_max", 7*time.Second)
	v.SetDefault("discovery.engine", EngineBrowser)
	v.SetDefault("discovery.captcha_wait", 30*time.Second)
	v.SetDefault("discovery.settle", 2*time.Second)
	v.SetDefault("discovery.search_url", "https://www.google.com/search")
	v.SetDefault("discovery.output", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Destination.Dir == "" {
		return fmt.Errorf("destination.dir is required")
	}
	if c.Readiness.PollInterval <= 0 {
		return fmt.Errorf("readiness.poll_interval must be > 0")
	}
	if c.Readiness.MinWait < 0 {
		return fmt.Errorf("readiness.min_wait must be >= 0")
	}
	if c.Readiness.MinWait > c.Readiness.MaxWait {
		return fmt.Errorf("readiness.min_wait must be <= readiness.max_wait")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be >= 1")
	}
	if c.Retry.Delay < 0 {
		return fmt.Errorf("retry.delay must be >= 0")
	}
	if c.Batch.Size < 1 {
		return fmt.Errorf("batch.size must be >= 1")
	}
	if c.Batch.ItemRest < 0 || c.Batch.BatchRest < 0 {
		return fmt.Errorf("batch rests must be >= 0")
	}
	timeouts := []struct {
		key string
		val time.Duration
	}{
		{"browser.nav_timeout", c.Browser.NavTimeout},
		{"browser.action_timeout", c.Browser.ActionTimeout},
		{"remote.redirect_timeout", c.Remote.RedirectTimeout},
		{"remote.redirect_poll", c.Remote.RedirectPoll},
		{"download.direct_timeout", c.Download.DirectTimeout},
		{"download.fallback_timeout", c.Download.FallbackTimeout},
		{"download.fallback_poll", c.Download.FallbackPoll},
	}
	for _, t := range timeouts {
		if t.val <= 0 {
			return fmt.Errorf("%s must be > 0", t.key)
		}
	}
	if c.Remote.LandingURL == "" {
		return fmt.Errorf("remote.landing_url is required")
	}
	if _, err := c.ReportFormats(); err != nil {
		return err
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is set")
	}
	if c.Discovery.DelayMin < 0 || c.Discovery.DelayMin > c.Discovery.DelayMax {
		return fmt.Errorf("discovery.delay_min must be between 0 and discovery.delay_max")
	}
	switch c.Discovery.Engine {
	case EngineBrowser, EngineHTTP:
	default:
		return fmt.Errorf("discovery.engine must be %q or %q, got %q", EngineBrowser, EngineHTTP, c.Discovery.Engine)
	}
	return nil
}

// ReportFormats parses report.formats. An empty list falls back to text.
func (c Config) ReportFormats() ([]report.Format, error) {
	if len(c.Report.Formats) == 0 {
		return []report.Format{report.FormatText}, nil
	}
	out := make([]report.Format, 0, len(c.Report.Formats))
	for _, raw := range c.Report.Formats {
		f, err := report.ParseFormat(raw)
		if err != nil {
			return nil, fmt.Errorf("report.formats: %w", err)
		}
		out = append(out, f)
	}
	return out, nil
}

// ReportDir returns where run reports are written.
func (c Config) ReportDir() string {
	if c.Report.Dir != "" {
		return c.Report.Dir
	}
	return c.Destination.Dir
}
