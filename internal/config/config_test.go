package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8000", cfg.API.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.API.Timeout())
	assert.Equal(t, 5, cfg.Search.MaxResults)
	assert.Empty(t, cfg.Search.Domains)
	assert.True(t, cfg.Search.Streaming)
	assert.Equal(t, 400*time.Millisecond, cfg.Progress.Tick())
	assert.Equal(t, time.Second, cfg.Progress.Settle())
	assert.Equal(t, 4, cfg.Reprocess.Concurrency)
	assert.InDelta(t, 2.0, cfg.Reprocess.RatePerSec, 0.001)
	assert.Equal(t, 500*time.Millisecond, cfg.Auth.PollInterval())
	assert.Equal(t, 5*time.Minute, cfg.Auth.LoginTimeout())
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "lead-finder.db", cfg.Store.DatabaseURL)
	assert.InDelta(t, 3.0, cfg.Notion.RatePerSec, 0.001)
	assert.Equal(t, 3, cfg.Notion.Retries)
	assert.Equal(t, "https://login.salesforce.com", cfg.Salesforce.LoginURL)
	assert.Equal(t, 8000, cfg.Replay.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
api:
  base_url: https://leads.example.com
search:
  max_results: 20
  domains: [orcid.org, researchgate.net]
  streaming: false
store:
  driver: postgres
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://leads.example.com", cfg.API.BaseURL)
	assert.Equal(t, 20, cfg.Search.MaxResults)
	assert.Equal(t, []string{"orcid.org", "researchgate.net"}, cfg.Search.Domains)
	assert.False(t, cfg.Search.Streaming)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	// Defaults still apply for unset values
	assert.Equal(t, 4, cfg.Reprocess.Concurrency)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("LEADFINDER_STORE_DRIVER", "postgres")
	t.Setenv("LEADFINDER_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("LEADFINDER_API_BASE_URL", "http://backend:9000")
	t.Setenv("LEADFINDER_REPLAY_PORT", "3000")
	t.Setenv("LEADFINDER_NOTION_RATE_PER_SEC", "0.5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://backend:9000", cfg.API.BaseURL)
	assert.Equal(t, 3000, cfg.Replay.Port)
	assert.InDelta(t, 0.5, cfg.Notion.RatePerSec, 0.001)
}

func TestLoadInvalidFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("api: [unclosed"), 0644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.API.BaseURL = "http://localhost:8000"
	cfg.Search.MaxResults = 5
	cfg.Reprocess.Concurrency = 4
	cfg.Reprocess.RatePerSec = 2
	cfg.Store.Driver = "sqlite"
	cfg.Replay.Port = 8000
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mode    string
		mutate  func(*Config)
		wantErr []string
	}{
		{name: "search ok", mode: "search"},
		{
			name:    "search missing base url",
			mode:    "search",
			mutate:  func(c *Config) { c.API.BaseURL = "" },
			wantErr: []string{"api.base_url is required"},
		},
		{
			name: "search bounds",
			mode: "search",
			mutate: func(c *Config) {
				c.Search.MaxResults = -1
				c.Reprocess.Concurrency = 0
				c.Store.Driver = "mysql"
			},
			wantErr: []string{"search.max_results must be >= 0", "reprocess.concurrency must be between 1 and 32", `unsupported store driver "mysql"`},
		},
		{
			name:    "notion missing",
			mode:    "notion",
			wantErr: []string{"notion.token is required", "notion.lead_db is required"},
		},
		{
			name: "notion ok",
			mode: "notion",
			mutate: func(c *Config) {
				c.Notion.Token = "ntn_token"
				c.Notion.LeadDB = "db"
			},
		},
		{
			name:    "salesforce missing",
			mode:    "salesforce",
			mutate:  func(c *Config) { c.Salesforce.ClientID = "id" },
			wantErr: []string{"salesforce.username is required", "salesforce.key_path is required"},
		},
		{
			name:    "replay port",
			mode:    "replay",
			mutate:  func(c *Config) { c.Replay.Port = 0 },
			wantErr: []string{"replay.port must be > 0"},
		},
		{
			name:    "unknown mode",
			mode:    "bogus",
			wantErr: []string{"unknown mode"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validDefaults()
			if tt.mutate != nil {
				tt.mutate(cfg)
			}
			err := cfg.Validate(tt.mode)
			if len(tt.wantErr) == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			for _, want := range tt.wantErr {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
}
