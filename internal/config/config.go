package config

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Data       DataConfig       `yaml:"data" mapstructure:"data"`
	Match      MatchConfig      `yaml:"match" mapstructure:"match"`
	Audit      AuditConfig      `yaml:"audit" mapstructure:"audit"`
	Planner    PlannerConfig    `yaml:"planner" mapstructure:"planner"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Auxiliary  AuxiliaryConfig  `yaml:"auxiliary" mapstructure:"auxiliary"`
	Jina       JinaConfig       `yaml:"jina" mapstructure:"jina"`
	Perplexity PerplexityConfig `yaml:"perplexity" mapstructure:"perplexity"`
	Resilience ResilienceConfig `yaml:"resilience" mapstructure:"resilience"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// DataConfig locates the invoice, purchase order and receipt datasets.
type DataConfig struct {
	Source      string `yaml:"source" mapstructure:"source"` // "files" or "postgres"
	Dir         string `yaml:"dir" mapstructure:"dir"`
	Charset     string `yaml:"charset" mapstructure:"charset"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// MatchConfig holds the three-way match policy. Weights apply to total,
// unit price and quantity variance respectively.
type MatchConfig struct {
	Tolerance          float64 `yaml:"tolerance" mapstructure:"tolerance"`
	TotalWeight        float64 `yaml:"total_weight" mapstructure:"total_weight"`
	PriceWeight        float64 `yaml:"price_weight" mapstructure:"price_weight"`
	QuantityWeight     float64 `yaml:"quantity_weight" mapstructure:"quantity_weight"`
	Epsilon            float64 `yaml:"epsilon" mapstructure:"epsilon"`
	NotFoundConfidence float64 `yaml:"not_found_confidence" mapstructure:"not_found_confidence"`
	ConfidenceBase     float64 `yaml:"confidence_base" mapstructure:"confidence_base"`
	ConfidenceSlope    float64 `yaml:"confidence_slope" mapstructure:"confidence_slope"`
	ConfidenceGain     float64 `yaml:"confidence_gain" mapstructure:"confidence_gain"`
	ConfidenceCap      float64 `yaml:"confidence_cap" mapstructure:"confidence_cap"`
}

// AuditConfig configures the JSONL audit trail.
type AuditConfig struct {
	Dir    string `yaml:"dir" mapstructure:"dir"`
	Layout string `yaml:"layout" mapstructure:"layout"` // "per_session" or "shared"
}

// PlannerConfig selects the query routing strategy.
type PlannerConfig struct {
	Strategy      string `yaml:"strategy" mapstructure:"strategy"` // "rule" or "llm"
	ContextWindow int    `yaml:"context_window" mapstructure:"context_window"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// AuxiliaryConfig configures the vendor/compliance signal lookup.
type AuxiliaryConfig struct {
	Provider    string  `yaml:"provider" mapstructure:"provider"` // "jina", "perplexity", "static" or "none"
	MaxResults  int     `yaml:"max_results" mapstructure:"max_results"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	SignalsFile string  `yaml:"signals_file" mapstructure:"signals_file"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// JinaConfig holds Jina AI search settings.
type JinaConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	SearchBaseURL string `yaml:"search_base_url" mapstructure:"search_base_url"`
}

// PerplexityConfig holds Perplexity API settings.
type PerplexityConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// ResilienceConfig configures retries and circuit breaking around external
// collaborators.
type ResilienceConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// StoreConfig configures the run and approval database.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`

	// SessionIdleMins is how long a session stays in memory without
	// activity. 0 keeps sessions for the process lifetime.
	SessionIdleMins int `yaml:"session_idle_mins" mapstructure:"session_idle_mins"`
}

// MonitoringConfig configures the background run checker and its alert
// webhook.
type MonitoringConfig struct {
	Enabled             bool    `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL          string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs   int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	FlagRateThreshold   float64 `yaml:"flag_rate_threshold" mapstructure:"flag_rate_threshold"`
	MinConfidence       float64 `yaml:"min_confidence" mapstructure:"min_confidence"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from .env, config file and environment.
func Load() (*Config, error) {
	// A missing .env is not an error.
	_ = godotenv.Load()

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("RECON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("data.source", "files")
	v.SetDefault("data.dir", "data")
	v.SetDefault("data.charset", "utf-8")
	v.SetDefault("match.tolerance", 0.05)
	v.SetDefault("match.total_weight", 0.5)
	v.SetDefault("match.price_weight", 0.3)
	v.SetDefault("match.quantity_weight", 0.2)
	v.SetDefault("match.epsilon", 1e-9)
	v.SetDefault("match.not_found_confidence", 0.9)
	v.SetDefault("match.confidence_base", 0.5)
	v.SetDefault("match.confidence_slope", 0.4)
	v.SetDefault("match.confidence_gain", 5.0)
	v.SetDefault("match.confidence_cap", 0.95)
	v.SetDefault("audit.dir", "logs")
	v.SetDefault("audit.layout", "per_session")
	v.SetDefault("planner.strategy", "rule")
	v.SetDefault("planner.context_window", 3)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("auxiliary.provider", "static")
	v.SetDefault("auxiliary.max_results", 3)
	v.SetDefault("auxiliary.rate_per_sec", 2.0)
	v.SetDefault("auxiliary.signals_file", "data/signals.yaml")
	v.SetDefault("auxiliary.timeout_secs", 15)
	v.SetDefault("jina.search_base_url", "https://s.jina.ai")
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar-pro")
	v.SetDefault("resilience.max_attempts", 2)
	v.SetDefault("resilience.initial_backoff_ms", 250)
	v.SetDefault("resilience.max_backoff_ms", 2000)
	v.SetDefault("resilience.failure_threshold", 5)
	v.SetDefault("resilience.reset_timeout_secs", 30)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "recon.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.session_idle_mins", 120)
	v.SetDefault("monitoring.enabled", false)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.flag_rate_threshold", 0.5)
	v.SetDefault("monitoring.min_confidence", 0.6)
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

// Validate checks the configuration for the given mode ("reconcile" or
// "serve") and reports every problem found in a single error.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "reconcile":
	case "serve":
		if c.Server.SessionIdleMins < 0 {
			errs = append(errs, "server.session_idle_mins must be >= 0")
		}
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Data.Source {
	case "files":
		if c.Data.Dir == "" {
			errs = append(errs, "data.dir is required")
		}
	case "postgres":
		if c.Data.DatabaseURL == "" {
			errs = append(errs, "data.database_url is required for data.source=postgres")
		}
	default:
		errs = append(errs, "data.source must be files or postgres")
	}

	m := c.Match
	if m.Tolerance < 0 || m.Tolerance > 1 {
		errs = append(errs, "match.tolerance must be between 0 and 1")
	}
	if m.TotalWeight < 0 || m.PriceWeight < 0 || m.QuantityWeight < 0 {
		errs = append(errs, "match weights must be >= 0")
	}
	if m.Epsilon <= 0 {
		errs = append(errs, "match.epsilon must be > 0")
	}
	if m.ConfidenceCap < 0 || m.ConfidenceCap > 1 {
		errs = append(errs, "match.confidence_cap must be between 0 and 1")
	}
	if m.NotFoundConfidence < 0 || m.NotFoundConfidence > 1 {
		errs = append(errs, "match.not_found_confidence must be between 0 and 1")
	}

	switch c.Audit.Layout {
	case "per_session", "shared":
	default:
		errs = append(errs, "audit.layout must be per_session or shared")
	}

	switch c.Planner.Strategy {
	case "rule":
	case "llm":
		if c.Anthropic.Key == "" {
			errs = append(errs, "anthropic.key is required for planner.strategy=llm")
		}
	default:
		errs = append(errs, "planner.strategy must be rule or llm")
	}

	switch c.Auxiliary.Provider {
	case "none", "static":
	case "jina":
		if c.Jina.Key == "" {
			errs = append(errs, "jina.key is required for auxiliary.provider=jina")
		}
	case "perplexity":
		if c.Perplexity.Key == "" {
			errs = append(errs, "perplexity.key is required for auxiliary.provider=perplexity")
		}
	default:
		errs = append(errs, "auxiliary.provider must be one of none, static, jina, perplexity")
	}

	switch c.Store.Driver {
	case "none", "sqlite":
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for postgres")
		}
	default:
		errs = append(errs, "store.driver must be none, sqlite or postgres")
	}

	if mon := c.Monitoring; mon.Enabled {
		if mon.LookbackWindowHours <= 0 {
			errs = append(errs, "monitoring.lookback_window_hours must be > 0")
		}
		if mon.FlagRateThreshold < 0 || mon.FlagRateThreshold > 1 {
			errs = append(errs, "monitoring.flag_rate_threshold must be between 0 and 1")
		}
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
