// Package config loads application configuration from file and environment
// and initializes the global logger.
package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/parkpulse/parkpulse/internal/model"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	QueueTimes QueueTimesConfig `yaml:"queuetimes" mapstructure:"queuetimes"`
	Weather    WeatherConfig    `yaml:"weather" mapstructure:"weather"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Classify   ClassifyConfig   `yaml:"classify" mapstructure:"classify"`
	Score      ScoreConfig      `yaml:"score" mapstructure:"score"`
	Collect    CollectConfig    `yaml:"collect" mapstructure:"collect"`
	Aggregate  AggregateConfig  `yaml:"aggregate" mapstructure:"aggregate"`
	Retention  RetentionConfig  `yaml:"retention" mapstructure:"retention"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// QueueTimesConfig configures the upstream park-status API.
type QueueTimesConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	// StaleAfterMins flags readings whose source timestamp lags observed_at
	// by more than this many minutes as a stale-source quality issue.
	StaleAfterMins int `yaml:"stale_after_mins" mapstructure:"stale_after_mins"`
}

// WeatherConfig configures the read-only forecast context source.
type WeatherConfig struct {
	Enabled     bool   `yaml:"enabled" mapstructure:"enabled"`
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// AnthropicConfig holds Anthropic API settings for the AI tier fallback.
type AnthropicConfig struct {
	Key           string  `yaml:"key" mapstructure:"key"`
	Model         string  `yaml:"model" mapstructure:"model"`
	MaxTokens     int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	RatePerSecond float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
}

// ClassifyConfig configures the classification engine.
type ClassifyConfig struct {
	// CacheDriver selects the durable cache backend: "postgres" or "sqlite".
	CacheDriver string `yaml:"cache_driver" mapstructure:"cache_driver"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	// SchemaVersion invalidates cache entries written under older formats
	// without deleting them.
	SchemaVersion int `yaml:"schema_version" mapstructure:"schema_version"`
	// PromoteThreshold is the minimum confidence for caching an AI or
	// pattern result.
	PromoteThreshold float64 `yaml:"promote_threshold" mapstructure:"promote_threshold"`
	// ReviewThreshold flags AI results below it for human review.
	ReviewThreshold float64 `yaml:"review_threshold" mapstructure:"review_threshold"`
	// Workers bounds concurrent AI fallback calls during batch resolution.
	Workers int `yaml:"workers" mapstructure:"workers"`
}

// ScoreConfig configures severity score computation. Weights are fixed per
// deployment; changing them mid-flight makes stored scores incomparable.
type ScoreConfig struct {
	TierWeights map[int]float64 `yaml:"tier_weights" mapstructure:"tier_weights"`
}

// Weight returns the configured weight for a tier, or 0 if unset.
func (s ScoreConfig) Weight(t model.Tier) float64 {
	return s.TierWeights[int(t)]
}

// CollectConfig configures the ingestion cycle.
type CollectConfig struct {
	// ParkIDs restricts collection to these upstream park IDs. Empty means
	// every park the catalog sync has marked active.
	ParkIDs      []int64 `yaml:"park_ids" mapstructure:"park_ids"`
	IntervalMins int     `yaml:"interval_mins" mapstructure:"interval_mins"`
	// ParkWorkers bounds concurrent per-park processing within one cycle.
	ParkWorkers int `yaml:"park_workers" mapstructure:"park_workers"`
}

// AggregateConfig configures the rollup scheduler.
type AggregateConfig struct {
	MaxAttempts int `yaml:"max_attempts" mapstructure:"max_attempts"`
	// RetryOffsetMins is the fixed wall-clock spacing between attempts.
	RetryOffsetMins int `yaml:"retry_offset_mins" mapstructure:"retry_offset_mins"`
	// LookbackDays bounds how far back discovery scans for closed periods
	// that never got a ledger entry (outage backfill).
	LookbackDays int `yaml:"lookback_days" mapstructure:"lookback_days"`
}

// RetryOffset returns the retry spacing as a duration.
func (a AggregateConfig) RetryOffset() time.Duration {
	return time.Duration(a.RetryOffsetMins) * time.Minute
}

// Lookback returns the discovery backfill horizon as a duration.
func (a AggregateConfig) Lookback() time.Duration {
	days := a.LookbackDays
	if days <= 0 {
		days = 7
	}
	return time.Duration(days) * 24 * time.Hour
}

// RetentionConfig configures raw-table cleanup.
type RetentionConfig struct {
	RawHours int `yaml:"raw_hours" mapstructure:"raw_hours"`
}

// MonitoringConfig configures operational alerting.
type MonitoringConfig struct {
	WebhookURL string `yaml:"webhook_url" mapstructure:"webhook_url"`
	// QualityIssueThreshold alerts when one cycle records more unresolved
	// issues than this. Zero disables the check.
	QualityIssueThreshold int `yaml:"quality_issue_threshold" mapstructure:"quality_issue_threshold"`
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
	v.SetEnvPrefix("PARKPULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Secret-bearing keys default empty so AutomaticEnv can bind
	// them without a config file.
	v.SetDefault("store.database_url", "")
	v.SetDefault("anthropic.key", "")
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("queuetimes.base_url", "https://queue-times.com")
	v.SetDefault("queuetimes.timeout_secs", 30)
	v.SetDefault("queuetimes.stale_after_mins", 60)
	v.SetDefault("weather.enabled", false)
	v.SetDefault("weather.base_url", "https://api.open-meteo.com")
	v.SetDefault("weather.timeout_secs", 10)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 256)
	v.SetDefault("anthropic.rate_per_second", 2.0)
	v.SetDefault("classify.cache_driver", "postgres")
	v.SetDefault("classify.sqlite_path", "classification_cache.db")
	v.SetDefault("classify.schema_version", 2)
	v.SetDefault("classify.promote_threshold", 0.85)
	v.SetDefault("classify.review_threshold", 0.5)
	v.SetDefault("classify.workers", 4)
	v.SetDefault("score.tier_weights", map[string]float64{"1": 3, "2": 2, "3": 1})
	v.SetDefault("collect.interval_mins", 10)
	v.SetDefault("collect.park_workers", 8)
	v.SetDefault("aggregate.max_attempts", 3)
	v.SetDefault("aggregate.retry_offset_mins", 60)
	v.SetDefault("aggregate.lookback_days", 7)
	v.SetDefault("retention.raw_hours", 24)
	v.SetDefault("monitoring.quality_issue_threshold", 50)

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
