package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	API        APIConfig        `yaml:"api" mapstructure:"api"`
	Search     SearchConfig     `yaml:"search" mapstructure:"search"`
	Progress   ProgressConfig   `yaml:"progress" mapstructure:"progress"`
	Reprocess  ReprocessConfig  `yaml:"reprocess" mapstructure:"reprocess"`
	Auth       AuthConfig       `yaml:"auth" mapstructure:"auth"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
	Salesforce SalesforceConfig `yaml:"salesforce" mapstructure:"salesforce"`
	Replay     ReplayConfig     `yaml:"replay" mapstructure:"replay"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// APIConfig locates the lead backend.
type APIConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// Timeout is the per-request timeout for non-streaming calls.
func (c APIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// SearchConfig holds search defaults.
type SearchConfig struct {
	MaxResults int      `yaml:"max_results" mapstructure:"max_results"`
	Domains    []string `yaml:"domains" mapstructure:"domains"`
	Streaming  bool     `yaml:"streaming" mapstructure:"streaming"`
}

// ProgressConfig tunes the progress estimator.
type ProgressConfig struct {
	TickMS   int `yaml:"tick_ms" mapstructure:"tick_ms"`
	SettleMS int `yaml:"settle_ms" mapstructure:"settle_ms"`
}

// Tick is the simulated progress interval.
func (c ProgressConfig) Tick() time.Duration {
	return time.Duration(c.TickMS) * time.Millisecond
}

// Settle is how long 100 is shown before progress returns to 0.
func (c ProgressConfig) Settle() time.Duration {
	return time.Duration(c.SettleMS) * time.Millisecond
}

// ReprocessConfig bounds bulk re-enrichment.
type ReprocessConfig struct {
	Concurrency int     `yaml:"concurrency" mapstructure:"concurrency"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// AuthConfig configures the login poll.
type AuthConfig struct {
	PollIntervalMS   int `yaml:"poll_interval_ms" mapstructure:"poll_interval_ms"`
	LoginTimeoutSecs int `yaml:"login_timeout_secs" mapstructure:"login_timeout_secs"`
}

// PollInterval is the session poll period while waiting for login.
func (c AuthConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// LoginTimeout bounds the wait for login.
func (c AuthConfig) LoginTimeout() time.Duration {
	return time.Duration(c.LoginTimeoutSecs) * time.Second
}

// StoreConfig selects the search history backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// NotionConfig holds Notion export settings.
type NotionConfig struct {
	Token      string  `yaml:"token" mapstructure:"token"`
	LeadDB     string  `yaml:"lead_db" mapstructure:"lead_db"`
	RatePerSec float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Retries    int     `yaml:"retries" mapstructure:"retries"`
}

// SalesforceConfig holds Salesforce JWT auth settings.
type SalesforceConfig struct {
	ClientID string `yaml:"client_id" mapstructure:"client_id"`
	Username string `yaml:"username" mapstructure:"username"`
	KeyPath  string `yaml:"key_path" mapstructure:"key_path"`
	LoginURL string `yaml:"login_url" mapstructure:"login_url"`
}

// ReplayConfig configures the offline replay backend.
type ReplayConfig struct {
	Port    int `yaml:"port" mapstructure:"port"`
	DelayMS int `yaml:"delay_ms" mapstructure:"delay_ms"`
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
	v.SetEnvPrefix("LEADFINDER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("api.base_url", "http://localhost:8000")
	v.SetDefault("api.timeout_secs", 30)
	v.SetDefault("search.max_results", 5)
	v.SetDefault("search.domains", []string{})
	v.SetDefault("search.streaming", true)
	v.SetDefault("progress.tick_ms", 400)
	v.SetDefault("progress.settle_ms", 1000)
	v.SetDefault("reprocess.concurrency", 4)
	v.SetDefault("reprocess.rate_per_sec", 2)
	v.SetDefault("auth.poll_interval_ms", 500)
	v.SetDefault("auth.login_timeout_secs", 300)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "lead-finder.db")
	v.SetDefault("notion.token", "")
	v.SetDefault("notion.lead_db", "")
	v.SetDefault("notion.rate_per_sec", 3)
	v.SetDefault("notion.retries", 3)
	v.SetDefault("salesforce.client_id", "")
	v.SetDefault("salesforce.username", "")
	v.SetDefault("salesforce.key_path", "")
	v.SetDefault("salesforce.login_url", "https://login.salesforce.com")
	v.SetDefault("replay.port", 8000)
	v.SetDefault("replay.delay_ms", 250)
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

// Validate checks the settings required by mode: "search", "notion",
// "salesforce" or "replay". All problems are reported together.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "search":
		if c.API.BaseURL == "" {
			errs = append(errs, "api.base_url is required")
		}
		if c.Search.MaxResults < 0 {
			errs = append(errs, fmt.Sprintf("search.max_results must be >= 0, got %d", c.Search.MaxResults))
		}
		if c.Reprocess.Concurrency < 1 || c.Reprocess.Concurrency > 32 {
			errs = append(errs, fmt.Sprintf("reprocess.concurrency must be between 1 and 32, got %d", c.Reprocess.Concurrency))
		}
		if c.Reprocess.RatePerSec < 0 {
			errs = append(errs, "reprocess.rate_per_sec must be >= 0")
		}
		switch strings.ToLower(c.Store.Driver) {
		case "sqlite", "postgres", "postgresql", "pgx":
		default:
			errs = append(errs, fmt.Sprintf("unsupported store driver %q", c.Store.Driver))
		}
	case "notion":
		if c.Notion.Token == "" {
			errs = append(errs, "notion.token is required")
		}
		if c.Notion.LeadDB == "" {
			errs = append(errs, "notion.lead_db is required")
		}
	case "salesforce":
		if c.Salesforce.ClientID == "" {
			errs = append(errs, "salesforce.client_id is required")
		}
		if c.Salesforce.Username == "" {
			errs = append(errs, "salesforce.username is required")
		}
		if c.Salesforce.KeyPath == "" {
			errs = append(errs, "salesforce.key_path is required")
		}
	case "replay":
		if c.Replay.Port <= 0 || c.Replay.Port > 65535 {
			errs = append(errs, fmt.Sprintf("replay.port must be > 0 and <= 65535, got %d", c.Replay.Port))
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
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
