// Package config loads application configuration from config.yaml and the
// environment, and owns global logger setup.
package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mergerwatch/casecrawl/internal/store"
)

// Config holds the full application configuration.
type Config struct {
	Store   store.Config  `yaml:"store" mapstructure:"store"`
	Crawl   CrawlConfig   `yaml:"crawl" mapstructure:"crawl"`
	Fetch   FetchConfig   `yaml:"fetch" mapstructure:"fetch"`
	Paths   PathsConfig   `yaml:"paths" mapstructure:"paths"`
	Sources SourcesConfig `yaml:"sources" mapstructure:"sources"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// CrawlConfig bounds a crawl run.
type CrawlConfig struct {
	MaxPages     int  `yaml:"max_pages" mapstructure:"max_pages"`
	DelayMinMS   int  `yaml:"delay_min_ms" mapstructure:"delay_min_ms"`
	DelayMaxMS   int  `yaml:"delay_max_ms" mapstructure:"delay_max_ms"`
	Concurrency  int  `yaml:"concurrency" mapstructure:"concurrency"`
	RetryLimit   int  `yaml:"retry_limit" mapstructure:"retry_limit"`
	RetryDelayMS int  `yaml:"retry_delay_ms" mapstructure:"retry_delay_ms"`
	Verify       bool `yaml:"verify" mapstructure:"verify"`
}

// DelayMin returns the lower pacing bound.
func (c CrawlConfig) DelayMin() time.Duration {
	return time.Duration(c.DelayMinMS) * time.Millisecond
}

// DelayMax returns the upper pacing bound.
func (c CrawlConfig) DelayMax() time.Duration {
	return time.Duration(c.DelayMaxMS) * time.Millisecond
}

// RetryDelay returns the fixed pause between retry attempts.
func (c CrawlConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMS) * time.Millisecond
}

// FetchConfig configures the HTTP layer.
type FetchConfig struct {
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// Timeout returns the per-request timeout.
func (c FetchConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// PathsConfig locates on-disk artifacts.
type PathsConfig struct {
	Attachments string `yaml:"attachments" mapstructure:"attachments"`
	Workbook    string `yaml:"workbook" mapstructure:"workbook"`
}

// SourcesConfig points at an optional per-source overrides file.
type SourcesConfig struct {
	OverridesFile string `yaml:"overrides_file" mapstructure:"overrides_file"`
}

// LogConfig configures the global logger.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from config.yaml (optional) and CASECRAWL_*
// environment variables, over built-in defaults.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CASECRAWL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "cases.db")
	v.SetDefault("crawl.max_pages", 50)
	v.SetDefault("crawl.delay_min_ms", 1000)
	v.SetDefault("crawl.delay_max_ms", 3000)
	v.SetDefault("crawl.concurrency", 2)
	v.SetDefault("crawl.retry_limit", 3)
	v.SetDefault("crawl.retry_delay_ms", 5000)
	v.SetDefault("fetch.timeout_secs", 60)
	v.SetDefault("paths.attachments", "attachments")
	v.SetDefault("paths.workbook", "cases.xlsx")
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
