package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
)

const newsAPIKeyEnv = "NEWSAPI_KEY"

type Config struct {
	General     GeneralConfig     `toml:"general"`
	Weights     WeightsConfig     `toml:"weights"`
	Staleness   StalenessConfig   `toml:"staleness"`
	Selection   SelectionConfig   `toml:"selection"`
	Aggregation AggregationConfig `toml:"aggregation"`
	Concurrency ConcurrencyConfig `toml:"concurrency"`
	Cache       CacheConfig       `toml:"cache"`
	Sources     SourcesConfig     `toml:"sources"`
	News        NewsConfig        `toml:"news"`
	Metrics     MetricsConfig     `toml:"metrics"`
	Schedule    ScheduleConfig    `toml:"schedule"`
}

type GeneralConfig struct {
	DBPath   string `toml:"db_path" default:"./data/polysignal.db"`
	LogLevel string `toml:"log_level" default:"info" validate:"oneof=debug info warn error"`
}

// WeightsConfig controls how market and sentiment leans are fused.
type WeightsConfig struct {
	Market                   float64 `toml:"market" default:"0.5" validate:"gte=0,lte=1"`
	Sentiment                float64 `toml:"sentiment" default:"0.5" validate:"gte=0,lte=1"`
	MinCoverageForFullWeight int     `toml:"min_coverage_for_full_weight" default:"5" validate:"gte=1"`
}

type StalenessConfig struct {
	MaxAge Duration `toml:"max_age" default:"15m"`
	// DecayWindow is how long past MaxAge the market term takes to fade to zero.
	// Zero drops the market term as soon as the price is older than MaxAge.
	DecayWindow Duration `toml:"decay_window"`
}

type SelectionConfig struct {
	MinConfidence     float64  `toml:"min_confidence" default:"0.1" validate:"gte=0,lte=1"`
	MinLeadTime       Duration `toml:"min_lead_time" default:"10m"`
	Categories        []string `toml:"categories"`
	ExcludeCategories []string `toml:"exclude_categories"`
}

type AggregationConfig struct {
	MinRelevance  float64  `toml:"min_relevance" default:"0.2" validate:"gte=0,lte=1"`
	MaxArticleAge Duration `toml:"max_article_age" default:"72h"`
}

type ConcurrencyConfig struct {
	MaxParallelLookups int      `toml:"max_parallel_lookups" default:"4" validate:"gte=1"`
	PerLookupTimeout   Duration `toml:"per_lookup_timeout" default:"5s"`
	OverallDeadline    Duration `toml:"overall_deadline" default:"20s"`
}

type CacheConfig struct {
	Enabled bool     `toml:"enabled" default:"true"`
	Window  Duration `toml:"window" default:"5m"`
	// Backend selects the shared second tier: "memory" (none), "sqlite" or "redis".
	Backend string      `toml:"backend" default:"memory" validate:"oneof=memory sqlite redis"`
	Redis   RedisConfig `toml:"redis"`
}

type RedisConfig struct {
	Addr     string `toml:"addr" default:"localhost:6379"`
	Password string `toml:"password"`
	DB       int    `toml:"db" validate:"gte=0"`
	Prefix   string `toml:"prefix" default:"polysignal:sentiment:"`
}

type SourcesConfig struct {
	Enabled    []string         `toml:"enabled"`
	Polymarket PolymarketConfig `toml:"polymarket"`
	Manifold   ManifoldConfig   `toml:"manifold"`
	File       FileSourceConfig `toml:"file"`
}

type PolymarketConfig struct {
	BaseURL   string   `toml:"base_url" default:"https://polymarket.com" validate:"url"`
	MaxEvents int      `toml:"max_events" default:"20" validate:"gte=1"`
	Timeout   Duration `toml:"timeout" default:"15s"`
}

type ManifoldConfig struct {
	Limit int64 `toml:"limit" default:"100" validate:"gte=1"`
}

type FileSourceConfig struct {
	Path string `toml:"path"`
}

type NewsConfig struct {
	APIKey            string   `toml:"api_key"`
	BaseURL           string   `toml:"base_url" default:"https://newsapi.org/v2" validate:"url"`
	Endpoint          string   `toml:"endpoint" default:"everything" validate:"oneof=everything top-headlines"`
	Language          string   `toml:"language" default:"en" validate:"len=2"`
	PageSize          int      `toml:"page_size" default:"20" validate:"gte=1,lte=100"`
	SortBy            string   `toml:"sort_by" default:"publishedAt" validate:"oneof=relevancy popularity publishedAt"`
	RequestsPerSecond float64  `toml:"requests_per_second" default:"2" validate:"gt=0"`
	Burst             int      `toml:"burst" default:"4" validate:"gte=1"`
	Timeout           Duration `toml:"timeout" default:"10s"`
	BreakerFailures   uint32   `toml:"breaker_failures" default:"3" validate:"gte=1"`
	BreakerCooldown   Duration `toml:"breaker_cooldown" default:"30s"`
}

type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr" default:":9102"`
	Path    string `toml:"path" default:"/metrics"`
}

type ScheduleConfig struct {
	Interval Duration `toml:"interval" default:"5m"`
	// SummaryInterval is how often watch mode logs its running decision summary.
	SummaryInterval Duration `toml:"summary_interval" default:"1h"`
}

// Duration wraps time.Duration for TOML unmarshaling.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

var validate = validator.New()

// Load reads the TOML file at path over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultConfig returns a config populated from the default struct tags.
func DefaultConfig() *Config {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		// Tags are static; a failure here is a programming error.
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	cfg.Sources.Enabled = []string{"polymarket"}
	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(newsAPIKeyEnv); v != "" {
		c.News.APIKey = v
	}
}

// Validate reports the first invalid setting as a *ConfigurationError.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &ConfigurationError{
				Field: fe.Namespace(),
				Msg:   fmt.Sprintf("failed %q (param %q)", fe.Tag(), fe.Param()),
				Err:   err,
			}
		}
		return &ConfigurationError{Field: "config", Msg: "invalid", Err: err}
	}

	if sum := c.Weights.Market + c.Weights.Sentiment; math.Abs(sum-1) > 1e-9 {
		return &ConfigurationError{
			Field: "weights",
			Msg:   fmt.Sprintf("market + sentiment must equal 1, got %.6f", sum),
		}
	}

	positive := []struct {
		field string
		d     Duration
	}{
		{"staleness.max_age", c.Staleness.MaxAge},
		{"concurrency.per_lookup_timeout", c.Concurrency.PerLookupTimeout},
		{"concurrency.overall_deadline", c.Concurrency.OverallDeadline},
		{"cache.window", c.Cache.Window},
		{"news.timeout", c.News.Timeout},
		{"sources.polymarket.timeout", c.Sources.Polymarket.Timeout},
		{"schedule.interval", c.Schedule.Interval},
		{"schedule.summary_interval", c.Schedule.SummaryInterval},
	}
	for _, p := range positive {
		if p.d.Duration <= 0 {
			return &ConfigurationError{Field: p.field, Msg: "must be a positive duration"}
		}
	}
	if c.Selection.MinLeadTime.Duration < 0 {
		return &ConfigurationError{Field: "selection.min_lead_time", Msg: "must not be negative"}
	}
	if c.Staleness.DecayWindow.Duration < 0 {
		return &ConfigurationError{Field: "staleness.decay_window", Msg: "must not be negative"}
	}
	if c.Aggregation.MaxArticleAge.Duration < 0 {
		return &ConfigurationError{Field: "aggregation.max_article_age", Msg: "must not be negative"}
	}

	for _, name := range c.Sources.Enabled {
		switch name {
		case "polymarket", "manifold":
		case "file":
			if c.Sources.File.Path == "" {
				return &ConfigurationError{Field: "sources.file.path", Msg: "required when the file source is enabled"}
			}
		default:
			return &ConfigurationError{Field: "sources.enabled", Msg: fmt.Sprintf("unknown source %q", name)}
		}
	}
	if len(c.Sources.Enabled) == 0 {
		return &ConfigurationError{Field: "sources.enabled", Msg: "at least one market source is required"}
	}

	return nil
}
