package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	Anthropic   AnthropicConfig   `yaml:"anthropic" mapstructure:"anthropic"`
	OpenAI      OpenAIConfig      `yaml:"openai" mapstructure:"openai"`
	LLM         LLMConfig         `yaml:"llm" mapstructure:"llm"`
	ScrapingBee ScrapingBeeConfig `yaml:"scrapingbee" mapstructure:"scrapingbee"`
	Foursquare  FoursquareConfig  `yaml:"foursquare" mapstructure:"foursquare"`
	Google      GoogleConfig      `yaml:"google" mapstructure:"google"`
	Tracker     TrackerConfig     `yaml:"tracker" mapstructure:"tracker"`
	Pipeline    PipelineConfig    `yaml:"pipeline" mapstructure:"pipeline"`
	Sitemaps    SitemapsConfig    `yaml:"sitemaps" mapstructure:"sitemaps"`
	Retry       RetryConfig       `yaml:"retry" mapstructure:"retry"`
	Pricing     PricingConfig     `yaml:"pricing" mapstructure:"pricing"`
	Monitoring  MonitoringConfig  `yaml:"monitoring" mapstructure:"monitoring"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// AnthropicConfig holds Anthropic API settings. The three models back the
// economy, smart and premium tiers.
type AnthropicConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	HaikuModel  string `yaml:"haiku_model" mapstructure:"haiku_model"`
	SonnetModel string `yaml:"sonnet_model" mapstructure:"sonnet_model"`
	OpusModel   string `yaml:"opus_model" mapstructure:"opus_model"`
}

// OpenAIConfig holds settings for the OpenAI-compatible chat and embedding endpoints.
type OpenAIConfig struct {
	Key            string `yaml:"key" mapstructure:"key"`
	BaseURL        string `yaml:"base_url" mapstructure:"base_url"`
	FastModel      string `yaml:"fast_model" mapstructure:"fast_model"`
	StrongModel    string `yaml:"strong_model" mapstructure:"strong_model"`
	EmbeddingModel string `yaml:"embedding_model" mapstructure:"embedding_model"`
	// EmbeddingDimension must match the width of the stored vector column.
	EmbeddingDimension int `yaml:"embedding_dimension" mapstructure:"embedding_dimension"`
}

// LLMConfig selects the chat completion provider.
type LLMConfig struct {
	Provider string `yaml:"provider" mapstructure:"provider"`
}

// ScrapingBeeConfig holds the fetch proxy settings.
type ScrapingBeeConfig struct {
	Key          string  `yaml:"key" mapstructure:"key"`
	BaseURL      string  `yaml:"base_url" mapstructure:"base_url"`
	RenderJS     bool    `yaml:"render_js" mapstructure:"render_js"`
	PremiumProxy bool    `yaml:"premium_proxy" mapstructure:"premium_proxy"`
	TimeoutSecs  int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RateLimit    float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// FoursquareConfig holds Places API settings.
type FoursquareConfig struct {
	Key          string  `yaml:"key" mapstructure:"key"`
	BaseURL      string  `yaml:"base_url" mapstructure:"base_url"`
	SearchRadius int     `yaml:"search_radius" mapstructure:"search_radius"`
	SearchLimit  int     `yaml:"search_limit" mapstructure:"search_limit"`
	MaxPhotos    int     `yaml:"max_photos" mapstructure:"max_photos"`
	RateLimit    float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// GoogleConfig holds Google Geocoding credentials.
type GoogleConfig struct {
	GeocodeKey string  `yaml:"geocode_key" mapstructure:"geocode_key"`
	RateLimit  float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// TrackerConfig selects where per-item work status is kept.
type TrackerConfig struct {
	Backend    string `yaml:"backend" mapstructure:"backend"`
	BadgerPath string `yaml:"badger_path" mapstructure:"badger_path"`
}

// PipelineConfig configures the ingestion and enrichment runs.
type PipelineConfig struct {
	ModelTier           string  `yaml:"model_tier" mapstructure:"model_tier"`
	TargetScope         string  `yaml:"target_scope" mapstructure:"target_scope"`
	RateLimit           float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	SimilarityThreshold float64 `yaml:"similarity_threshold" mapstructure:"similarity_threshold"`
	MatchCount          int     `yaml:"match_count" mapstructure:"match_count"`
	MinContentLength    int     `yaml:"min_content_length" mapstructure:"min_content_length"`
	CheckpointInterval  int     `yaml:"checkpoint_interval" mapstructure:"checkpoint_interval"`
	ProgressInterval    int     `yaml:"progress_interval" mapstructure:"progress_interval"`
	ETAInterval         int     `yaml:"eta_interval" mapstructure:"eta_interval"`
	CheckpointDir       string  `yaml:"checkpoint_dir" mapstructure:"checkpoint_dir"`
	SourceName          string  `yaml:"source_name" mapstructure:"source_name"`
	SourceBaseURL       string  `yaml:"source_base_url" mapstructure:"source_base_url"`
	Force               bool    `yaml:"force" mapstructure:"force"`
}

// SitemapsConfig lists sitemap paths per priority scope, relative to the
// source base URL.
type SitemapsConfig struct {
	High   []string `yaml:"high" mapstructure:"high"`
	Medium []string `yaml:"medium" mapstructure:"medium"`
	Low    []string `yaml:"low" mapstructure:"low"`
}

// RetryConfig configures backoff for outbound HTTP and LLM calls.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// PricingConfig holds per-provider pricing rates.
type PricingConfig struct {
	Anthropic   map[string]ModelPricing `yaml:"anthropic" mapstructure:"anthropic"`
	PerURL      TierPricing             `yaml:"per_url" mapstructure:"per_url"`
	ScrapingBee ScrapingBeePricing      `yaml:"scrapingbee" mapstructure:"scrapingbee"`
	Embedding   float64                 `yaml:"embedding" mapstructure:"embedding"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// TierPricing is the flat per-URL LLM cost estimate for each model tier.
type TierPricing struct {
	Economy float64 `yaml:"economy" mapstructure:"economy"`
	Smart   float64 `yaml:"smart" mapstructure:"smart"`
	Premium float64 `yaml:"premium" mapstructure:"premium"`
}

// ScrapingBeePricing holds the fetch proxy pricing.
type ScrapingBeePricing struct {
	FreeRequests int     `yaml:"free_requests" mapstructure:"free_requests"`
	PerRequest   float64 `yaml:"per_request" mapstructure:"per_request"`
}

// MonitoringConfig holds run alert thresholds.
type MonitoringConfig struct {
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	MinProcessed         int     `yaml:"min_processed" mapstructure:"min_processed"`
	CostThresholdUSD     float64 `yaml:"cost_threshold_usd" mapstructure:"cost_threshold_usd"`
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load builds the configuration from defaults, an optional YAML file and
// YORIMICHI_* environment variables, later sources winning. With file empty
// it looks for ./config.yaml and carries on without one; an explicit file
// must exist.
func Load(file string) (*Config, error) {
	v := viper.New()
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	// Environment
	v.SetEnvPrefix("YORIMICHI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Secrets default to "" so AutomaticEnv can still bind them.
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("llm.provider", "anthropic")
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.haiku_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.sonnet_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.opus_model", "claude-opus-4-6")
	v.SetDefault("openai.key", "")
	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.fast_model", "gpt-3.5-turbo")
	v.SetDefault("openai.strong_model", "gpt-4")
	v.SetDefault("openai.embedding_model", "text-embedding-ada-002")
	v.SetDefault("openai.embedding_dimension", 1536)
	v.SetDefault("scrapingbee.key", "")
	v.SetDefault("scrapingbee.base_url", "https://app.scrapingbee.com/api/v1/")
	v.SetDefault("scrapingbee.render_js", false)
	v.SetDefault("scrapingbee.premium_proxy", false)
	v.SetDefault("scrapingbee.timeout_secs", 60)
	v.SetDefault("scrapingbee.rate_limit", 5.0)
	v.SetDefault("foursquare.key", "")
	v.SetDefault("foursquare.base_url", "https://api.foursquare.com/v3")
	v.SetDefault("foursquare.search_radius", 1000)
	v.SetDefault("foursquare.search_limit", 20)
	v.SetDefault("foursquare.max_photos", 5)
	v.SetDefault("foursquare.rate_limit", 2.0)
	v.SetDefault("google.geocode_key", "")
	v.SetDefault("google.rate_limit", 10.0)
	v.SetDefault("tracker.backend", "store")
	v.SetDefault("tracker.badger_path", ".yorimichi/work")
	v.SetDefault("pipeline.model_tier", string(TierSmart))
	v.SetDefault("pipeline.target_scope", string(ScopeHigh))
	v.SetDefault("pipeline.rate_limit", 1/1.5)
	v.SetDefault("pipeline.similarity_threshold", 0.92)
	v.SetDefault("pipeline.match_count", 1)
	v.SetDefault("pipeline.min_content_length", 200)
	v.SetDefault("pipeline.checkpoint_interval", 25)
	v.SetDefault("pipeline.progress_interval", 25)
	v.SetDefault("pipeline.eta_interval", 100)
	v.SetDefault("pipeline.checkpoint_dir", ".yorimichi")
	v.SetDefault("pipeline.source_name", "Tokyo Cheapo")
	v.SetDefault("pipeline.source_base_url", "https://tokyocheapo.com/")
	v.SetDefault("pipeline.force", false)
	v.SetDefault("sitemaps.high", []string{"place-sitemap1.xml", "place-sitemap2.xml", "place-sitemap3.xml"})
	v.SetDefault("sitemaps.medium", []string{"restaurant-sitemap1.xml", "accommodation-sitemap.xml"})
	v.SetDefault("sitemaps.low", []string{"restaurant-sitemap2.xml", "event-sitemap1.xml", "event-sitemap2.xml", "tour-sitemap.xml"})
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 1000)
	v.SetDefault("retry.max_backoff_ms", 30000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.25)
	v.SetDefault("pricing.per_url.economy", 0.02)
	v.SetDefault("pricing.per_url.smart", 0.05)
	v.SetDefault("pricing.per_url.premium", 0.10)
	v.SetDefault("pricing.scrapingbee.free_requests", 1000)
	v.SetDefault("pricing.scrapingbee.per_request", 0.01)
	v.SetDefault("pricing.embedding", 0.0001)
	v.SetDefault("monitoring.failure_rate_threshold", 0.5)
	v.SetDefault("monitoring.min_processed", 20)
	v.SetDefault("monitoring.cost_threshold_usd", 0)
	v.SetDefault("monitoring.webhook_url", "")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the settings required by a command are present.
// Every problem is reported in a single error.
func (c *Config) Validate(mode string) error {
	var errs []string
	require := func(ok bool, key string) {
		if !ok {
			errs = append(errs, key+" is required")
		}
	}
	requireDB := func() {
		if c.Store.Driver != "sqlite" {
			require(c.Store.DatabaseURL != "", "store.database_url")
		}
	}
	requireLLM := func() {
		if c.LLM.Provider == "openai" {
			require(c.OpenAI.Key != "", "openai.key")
		} else {
			require(c.Anthropic.Key != "", "anthropic.key")
		}
	}

	switch mode {
	case "crawl":
		requireDB()
		require(c.ScrapingBee.Key != "", "scrapingbee.key")
		// Embeddings always go through the OpenAI-compatible endpoint.
		require(c.OpenAI.Key != "", "openai.key")
		requireLLM()
	case "enrich":
		requireDB()
		require(c.Foursquare.Key != "", "foursquare.key")
		requireLLM()
	case "geocode":
		requireDB()
		require(c.Google.GeocodeKey != "", "google.geocode_key")
	case "reembed":
		requireDB()
		require(c.OpenAI.Key != "", "openai.key")
	case "store":
		requireDB()
	case "estimate":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if _, err := ParseTier(c.Pipeline.ModelTier); err != nil {
		errs = append(errs, "pipeline.model_tier must be economy, smart or premium")
	}
	if _, err := ParseScope(c.Pipeline.TargetScope); err != nil {
		errs = append(errs, "pipeline.target_scope must be high, medium, low or all")
	}
	if c.Pipeline.SimilarityThreshold <= 0 || c.Pipeline.SimilarityThreshold > 1 {
		errs = append(errs, "pipeline.similarity_threshold must be in (0, 1]")
	}
	if c.Pipeline.MinContentLength < 0 {
		errs = append(errs, "pipeline.min_content_length must be >= 0")
	}
	switch c.LLM.Provider {
	case "anthropic", "openai":
	default:
		errs = append(errs, "llm.provider must be anthropic or openai")
	}
	switch c.Tracker.Backend {
	case "store", "badger":
	default:
		errs = append(errs, "tracker.backend must be store or badger")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// CheckpointPath returns the checkpoint file for a named pass.
func (c *Config) CheckpointPath(pass string) string {
	dir := strings.TrimRight(c.Pipeline.CheckpointDir, "/")
	if dir == "" {
		dir = "."
	}
	return fmt.Sprintf("%s/%s_checkpoint.json", dir, pass)
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
