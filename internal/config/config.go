package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/libroscan/catalog-cli/internal/store"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Filter    FilterConfig    `yaml:"filter" mapstructure:"filter"`
	Keyword   KeywordConfig   `yaml:"keyword" mapstructure:"keyword"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
	Series    SeriesConfig    `yaml:"series" mapstructure:"series"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string            `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string            `yaml:"database_url" mapstructure:"database_url"`
	Pool        *store.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// FilterConfig configures origin filter evaluation.
type FilterConfig struct {
	// FullMatch anchors leaf regexes so the whole property value must match.
	FullMatch bool `yaml:"full_match" mapstructure:"full_match"`

	// RejectUnfiltered makes sites without filter rows reject every record.
	RejectUnfiltered bool `yaml:"reject_unfiltered" mapstructure:"reject_unfiltered"`
}

// KeywordConfig configures publisher keyword matching.
type KeywordConfig struct {
	// CaseFold enables Unicode case folding of keywords before matching.
	CaseFold bool `yaml:"case_fold" mapstructure:"case_fold"`
}

// BatchConfig configures bulk ingestion.
type BatchConfig struct {
	Workers        int     `yaml:"workers" mapstructure:"workers"`
	RatePerSecond  float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	FailureSummary int     `yaml:"failure_summary" mapstructure:"failure_summary"`
}

// SeriesConfig configures series organization.
type SeriesConfig struct {
	// Normalizer selects the title normalizer: "heuristic" or "model".
	Normalizer string `yaml:"normalizer" mapstructure:"normalizer"`
	Limit      int    `yaml:"limit" mapstructure:"limit"`
}

// AnthropicConfig holds Anthropic API settings for the model-backed series
// normalizer.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
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
	v.SetEnvPrefix("CATALOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "catalog.db")
	v.SetDefault("filter.full_match", false)
	v.SetDefault("filter.reject_unfiltered", false)
	v.SetDefault("keyword.case_fold", true)
	v.SetDefault("batch.workers", 4)
	v.SetDefault("batch.rate_per_second", 0)
	v.SetDefault("batch.failure_summary", 10)
	v.SetDefault("series.normalizer", "heuristic")
	v.SetDefault("series.limit", 0)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
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
