package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Catalog CatalogConfig `yaml:"catalog" mapstructure:"catalog"`
	Select  SelectConfig  `yaml:"select" mapstructure:"select"`
	Fetch   FetchConfig   `yaml:"fetch" mapstructure:"fetch"`
	Render  RenderConfig  `yaml:"render" mapstructure:"render"`
	Index   IndexConfig   `yaml:"index" mapstructure:"index"`
	Ingest  IngestConfig  `yaml:"ingest" mapstructure:"ingest"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Monitor MonitorConfig `yaml:"monitor" mapstructure:"monitor"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// CatalogConfig points at the static reference catalogs loaded at startup.
type CatalogConfig struct {
	SourcesPath   string `yaml:"sources_path" mapstructure:"sources_path"`
	DeadEndsPath  string `yaml:"dead_ends_path" mapstructure:"dead_ends_path"`
	ArbitragePath string `yaml:"arbitrage_path" mapstructure:"arbitrage_path"`
	ChainsPath    string `yaml:"chains_path" mapstructure:"chains_path"`
}

// SelectConfig configures source selection defaults.
type SelectConfig struct {
	MaxSources    int  `yaml:"max_sources" mapstructure:"max_sources"`
	IncludeGlobal bool `yaml:"include_global" mapstructure:"include_global"`
}

// FetchConfig configures direct retrieval behavior.
type FetchConfig struct {
	TimeoutSecs     int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxInFlight     int     `yaml:"max_in_flight" mapstructure:"max_in_flight"`
	Retries         int     `yaml:"retries" mapstructure:"retries"`
	PerHostRPS      float64 `yaml:"per_host_rps" mapstructure:"per_host_rps"`
	PerHostBurst    int     `yaml:"per_host_burst" mapstructure:"per_host_burst"`
	UserAgent       string  `yaml:"user_agent" mapstructure:"user_agent"`
	MinContentBytes int     `yaml:"min_content_bytes" mapstructure:"min_content_bytes"`
	CacheTTLHours   int     `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
}

// RenderConfig holds managed rendering fallback settings.
type RenderConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// IndexConfig holds document index settings. The index is optional; when no
// addresses are configured every index-backed feature is skipped.
type IndexConfig struct {
	Addresses      []string `yaml:"addresses" mapstructure:"addresses"`
	Username       string   `yaml:"username" mapstructure:"username"`
	Password       string   `yaml:"password" mapstructure:"password"`
	SourcesIndex   string   `yaml:"sources_index" mapstructure:"sources_index"`
	ResponsesIndex string   `yaml:"responses_index" mapstructure:"responses_index"`
}

// IngestConfig configures entity consolidation batches.
type IngestConfig struct {
	BatchSize int `yaml:"batch_size" mapstructure:"batch_size"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// MonitorConfig configures the background health checker. Webhook alerts are
// disabled when no URL is set; the checker still logs its findings.
type MonitorConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	DegradedSourcesMin   int     `yaml:"degraded_sources_min" mapstructure:"degraded_sources_min"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("DRAGNET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "dragnet.db")
	v.SetDefault("catalog.sources_path", "catalogs/sources")
	v.SetDefault("catalog.dead_ends_path", "catalogs/dead_ends.json")
	v.SetDefault("catalog.arbitrage_path", "catalogs/arbitrage.json")
	v.SetDefault("catalog.chains_path", "catalogs/chains.json")
	v.SetDefault("select.max_sources", 5)
	v.SetDefault("select.include_global", true)
	v.SetDefault("fetch.timeout_secs", 15)
	v.SetDefault("fetch.max_in_flight", 8)
	v.SetDefault("fetch.retries", 1)
	v.SetDefault("fetch.per_host_rps", 1.0)
	v.SetDefault("fetch.per_host_burst", 2)
	v.SetDefault("fetch.user_agent", "dragnet/1.0 (+https://github.com/osintops/dragnet)")
	v.SetDefault("fetch.min_content_bytes", 64)
	v.SetDefault("fetch.cache_ttl_hours", 24)
	v.SetDefault("render.base_url", "https://api.renderproxy.dev/v1")
	v.SetDefault("render.timeout_secs", 30)
	v.SetDefault("index.sources_index", "dragnet-sources")
	v.SetDefault("index.responses_index", "dragnet-responses")
	v.SetDefault("ingest.batch_size", 200)
	v.SetDefault("server.port", 8080)
	v.SetDefault("monitor.check_interval_secs", 300)
	v.SetDefault("monitor.lookback_window_hours", 24)
	v.SetDefault("monitor.failure_rate_threshold", 0.5)
	v.SetDefault("monitor.degraded_sources_min", 1)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
