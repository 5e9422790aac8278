package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 0.5, cfg.Weights.Market)
	assert.Equal(t, 0.5, cfg.Weights.Sentiment)
	assert.Equal(t, 5, cfg.Weights.MinCoverageForFullWeight)
	assert.Equal(t, 0.2, cfg.Aggregation.MinRelevance)
	assert.Equal(t, 5*time.Minute, cfg.Cache.Window.Duration)
	assert.Equal(t, 10*time.Minute, cfg.Selection.MinLeadTime.Duration)
	assert.Equal(t, 20, cfg.Sources.Polymarket.MaxEvents)
	assert.Equal(t, []string{"polymarket"}, cfg.Sources.Enabled)
	assert.True(t, cfg.Cache.Enabled)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
[weights]
market = 0.3
sentiment = 0.7

[concurrency]
per_lookup_timeout = "750ms"

[cache]
enabled = false

[sources]
enabled = ["file"]

[sources.file]
path = "markets.json"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.3, cfg.Weights.Market)
	assert.Equal(t, 0.7, cfg.Weights.Sentiment)
	assert.Equal(t, 750*time.Millisecond, cfg.Concurrency.PerLookupTimeout.Duration)
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, []string{"file"}, cfg.Sources.Enabled)
	// Untouched sections keep their defaults.
	assert.Equal(t, 20*time.Second, cfg.Concurrency.OverallDeadline.Duration)
}

func TestLoad_EnvOverridesAPIKey(t *testing.T) {
	t.Setenv(newsAPIKeyEnv, "from-env")
	path := writeConfig(t, "[news]\napi_key = \"from-file\"\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.News.APIKey)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
}

func TestValidate_WeightsMustSumToOne(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Weights.Market = 0.6
	cfg.Weights.Sentiment = 0.6

	err := cfg.Validate()
	var cerr *ConfigurationError
	require.True(t, errors.As(err, &cerr), "expected ConfigurationError, got %v", err)
	assert.Equal(t, "weights", cerr.Field)
}

func TestValidate_RejectsOutOfRange(t *testing.T) {
	cases := map[string]func(*Config){
		"negative weight":     func(c *Config) { c.Weights.Market = -0.5; c.Weights.Sentiment = 1.5 },
		"zero coverage":       func(c *Config) { c.Weights.MinCoverageForFullWeight = 0 },
		"confidence above 1":  func(c *Config) { c.Selection.MinConfidence = 1.2 },
		"no parallel lookups": func(c *Config) { c.Concurrency.MaxParallelLookups = 0 },
		"zero timeout":        func(c *Config) { c.Concurrency.PerLookupTimeout = Duration{} },
		"zero max age":        func(c *Config) { c.Staleness.MaxAge = Duration{} },
		"bad backend":         func(c *Config) { c.Cache.Backend = "memcached" },
		"unknown source":      func(c *Config) { c.Sources.Enabled = []string{"kalshi"} },
		"file without path":   func(c *Config) { c.Sources.Enabled = []string{"file"} },
		"no sources":          func(c *Config) { c.Sources.Enabled = nil },
		"page size too big":   func(c *Config) { c.News.PageSize = 500 },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(cfg)
			err := cfg.Validate()
			var cerr *ConfigurationError
			assert.True(t, errors.As(err, &cerr), "expected ConfigurationError, got %v", err)
		})
	}
}

func TestValidate_MinLeadTimeMayBeZero(t *testing.T) {
	path := writeConfig(t, "[selection]\nmin_lead_time = \"0s\"\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), cfg.Selection.MinLeadTime.Duration)

	cfg.Selection.MinLeadTime = Duration{Duration: -time.Minute}
	err = cfg.Validate()
	var cerr *ConfigurationError
	require.True(t, errors.As(err, &cerr), "expected ConfigurationError, got %v", err)
	assert.Equal(t, "selection.min_lead_time", cerr.Field)
}

func TestLoad_InvalidDuration(t *testing.T) {
	path := writeConfig(t, "[staleness]\nmax_age = \"soon\"\n")
	_, err := Load(path)
	require.Error(t, err)
}
