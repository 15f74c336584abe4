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

	"github.com/fmatlas/lattes-harvester/internal/discovery"
	"github.com/fmatlas/lattes-harvester/internal/enrich"
	"github.com/fmatlas/lattes-harvester/internal/lattes"
	"github.com/fmatlas/lattes-harvester/internal/resilience"
)

// Config holds the full application configuration.
type Config struct {
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	Source SourceConfig `yaml:"source" mapstructure:"source"`
	Search SearchConfig `yaml:"search" mapstructure:"search"`
	Enrich EnrichConfig `yaml:"enrich" mapstructure:"enrich"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// SourceConfig configures the HTTP session against the profile service.
type SourceConfig struct {
	BaseURL        string `yaml:"base_url" mapstructure:"base_url"`
	UserAgent      string `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs    int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RequestDelayMS int    `yaml:"request_delay_ms" mapstructure:"request_delay_ms"`
	InsecureTLS    bool   `yaml:"insecure_tls" mapstructure:"insecure_tls"`
	MaxRetries     int    `yaml:"max_retries" mapstructure:"max_retries"`
}

// SearchConfig configures result-page discovery.
type SearchConfig struct {
	PageSize    int  `yaml:"page_size" mapstructure:"page_size"`
	MaxPages    int  `yaml:"max_pages" mapstructure:"max_pages"`
	AsyncPaging bool `yaml:"async_paging" mapstructure:"async_paging"`
	Concurrency int  `yaml:"concurrency" mapstructure:"concurrency"`
	PageDelayMS int  `yaml:"page_delay_ms" mapstructure:"page_delay_ms"`
}

// EnrichConfig configures the detail-fetch worker pool.
type EnrichConfig struct {
	Workers          int  `yaml:"workers" mapstructure:"workers"`
	BatchSize        int  `yaml:"batch_size" mapstructure:"batch_size"`
	GetDetails       bool `yaml:"get_details" mapstructure:"get_details"`
	BreakerThreshold int  `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
}

// ServerConfig configures the read-only HTTP API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
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
	v.SetEnvPrefix("LATTES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "lattes.db")
	v.SetDefault("source.base_url", lattes.DefaultBaseURL)
	v.SetDefault("source.timeout_secs", 30)
	v.SetDefault("source.request_delay_ms", 1500)
	v.SetDefault("source.insecure_tls", true)
	v.SetDefault("source.max_retries", 3)
	v.SetDefault("search.page_size", 10)
	v.SetDefault("search.async_paging", true)
	v.SetDefault("search.concurrency", 3)
	v.SetDefault("search.page_delay_ms", 2000)
	v.SetDefault("enrich.workers", 4)
	v.SetDefault("enrich.batch_size", 25)
	v.SetDefault("enrich.get_details", true)
	v.SetDefault("enrich.breaker_threshold", 10)
	v.SetDefault("server.port", 8080)
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

// SessionConfig converts the source section into session settings.
func (c *Config) SessionConfig() lattes.SessionConfig {
	return lattes.SessionConfig{
		BaseURL:      c.Source.BaseURL,
		UserAgent:    c.Source.UserAgent,
		Timeout:      time.Duration(c.Source.TimeoutSecs) * time.Second,
		RequestDelay: time.Duration(c.Source.RequestDelayMS) * time.Millisecond,
		InsecureTLS:  c.Source.InsecureTLS,
		Retry:        resilience.RetryConfig{MaxAttempts: c.Source.MaxRetries},
	}
}

// DiscoveryConfig converts the search section into discovery settings.
func (c *Config) DiscoveryConfig() discovery.Config {
	return discovery.Config{
		PageSize:    c.Search.PageSize,
		MaxPages:    c.Search.MaxPages,
		AsyncPaging: c.Search.AsyncPaging,
		Concurrency: c.Search.Concurrency,
		PageDelay:   time.Duration(c.Search.PageDelayMS) * time.Millisecond,
	}
}

// EnrichConfig converts the enrich section into worker-pool settings.
func (c *Config) EnrichConfig() enrich.Config {
	return enrich.Config{
		Workers:          c.Enrich.Workers,
		BatchSize:        c.Enrich.BatchSize,
		GetDetails:       c.Enrich.GetDetails,
		BreakerThreshold: c.Enrich.BreakerThreshold,
	}
}

// Validate checks the fields the given mode depends on. Modes: "harvest",
// "serve".
func (c *Config) Validate(mode string) error {
	var problems []string

	switch c.Store.Driver {
	case "sqlite":
		if c.Store.Path == "" {
			problems = append(problems, "store.path is required for the sqlite driver")
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required for the postgres driver")
		}
	default:
		problems = append(problems, "store.driver must be sqlite or postgres")
	}

	switch mode {
	case "harvest":
		if c.Search.PageSize < 1 || c.Search.PageSize > 50 {
			problems = append(problems, "search.page_size must be between 1 and 50")
		}
		if c.Enrich.Workers < 1 || c.Enrich.Workers > 32 {
			problems = append(problems, "enrich.workers must be between 1 and 32")
		}
		if c.Enrich.BatchSize < 1 {
			problems = append(problems, "enrich.batch_size must be > 0")
		}
	case "serve":
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
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
