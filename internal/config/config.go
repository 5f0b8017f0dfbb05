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
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Dispatch   DispatchConfig   `yaml:"dispatch" mapstructure:"dispatch"`
	Workflow   WorkflowConfig   `yaml:"workflow" mapstructure:"workflow"`
	Search     SearchConfig     `yaml:"search" mapstructure:"search"`
	Crawl      CrawlConfig      `yaml:"crawl" mapstructure:"crawl"`
	LLM        LLMConfig        `yaml:"llm" mapstructure:"llm"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Perplexity PerplexityConfig `yaml:"perplexity" mapstructure:"perplexity"`
	Jina       JinaConfig       `yaml:"jina" mapstructure:"jina"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// DispatchConfig bounds background task execution.
type DispatchConfig struct {
	Concurrency  int  `yaml:"concurrency" mapstructure:"concurrency"`
	AutoDispatch bool `yaml:"auto_dispatch" mapstructure:"auto_dispatch"`
}

// WorkflowConfig tunes the coordinator's pollers and the profile driver.
type WorkflowConfig struct {
	PollIntervalSecs int    `yaml:"poll_interval_secs" mapstructure:"poll_interval_secs"`
	MaxPollAttempts  int    `yaml:"max_poll_attempts" mapstructure:"max_poll_attempts"`
	ProfileTickSecs  int    `yaml:"profile_tick_secs" mapstructure:"profile_tick_secs"`
	APIBaseURL       string `yaml:"api_base_url" mapstructure:"api_base_url"`
}

// PollInterval returns the poll interval as a duration.
func (w WorkflowConfig) PollInterval() time.Duration {
	return time.Duration(w.PollIntervalSecs) * time.Second
}

// ProfileTick returns the profile driver tick as a duration.
func (w WorkflowConfig) ProfileTick() time.Duration {
	return time.Duration(w.ProfileTickSecs) * time.Second
}

// SearchConfig configures the search agent.
type SearchConfig struct {
	MaxResults int `yaml:"max_results" mapstructure:"max_results"`
}

// CrawlConfig configures page fetching for the crawl agent.
type CrawlConfig struct {
	TimeoutSecs     int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxLength       int     `yaml:"max_length" mapstructure:"max_length"`
	PreviewLength   int     `yaml:"preview_length" mapstructure:"preview_length"`
	CacheTTLMinutes int     `yaml:"cache_ttl_minutes" mapstructure:"cache_ttl_minutes"`
	CacheMaxBytes   int64   `yaml:"cache_max_bytes" mapstructure:"cache_max_bytes"`
	RatePerHost     float64 `yaml:"rate_per_host" mapstructure:"rate_per_host"`
	UseJinaFallback bool    `yaml:"use_jina_fallback" mapstructure:"use_jina_fallback"`
}

// LLMConfig selects the completion backend used by extraction.
type LLMConfig struct {
	Provider      string `yaml:"provider" mapstructure:"provider"`
	MaxTokens     int    `yaml:"max_tokens" mapstructure:"max_tokens"`
	MaxInputChars int    `yaml:"max_input_chars" mapstructure:"max_input_chars"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// PerplexityConfig holds Perplexity API settings.
type PerplexityConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// JinaConfig holds Jina AI Reader and Search settings.
type JinaConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	BaseURL       string `yaml:"base_url" mapstructure:"base_url"`
	SearchBaseURL string `yaml:"search_base_url" mapstructure:"search_base_url"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("RESEARCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "research.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("dispatch.concurrency", 4)
	v.SetDefault("dispatch.auto_dispatch", true)
	v.SetDefault("workflow.poll_interval_secs", 5)
	v.SetDefault("workflow.max_poll_attempts", 12)
	v.SetDefault("workflow.profile_tick_secs", 5)
	v.SetDefault("workflow.api_base_url", "http://localhost:8080")
	v.SetDefault("search.max_results", 5)
	v.SetDefault("crawl.timeout_secs", 30)
	v.SetDefault("crawl.max_length", 5000)
	v.SetDefault("crawl.preview_length", 200)
	v.SetDefault("crawl.cache_ttl_minutes", 60)
	v.SetDefault("crawl.cache_max_bytes", 64<<20)
	v.SetDefault("crawl.rate_per_host", 2.0)
	v.SetDefault("crawl.use_jina_fallback", true)
	v.SetDefault("llm.provider", "anthropic")
	v.SetDefault("llm.max_tokens", 2048)
	v.SetDefault("llm.max_input_chars", 15000)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar-pro")
	v.SetDefault("jina.base_url", "https://r.jina.ai")
	v.SetDefault("jina.search_base_url", "https://s.jina.ai")

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

// Validate checks the settings a command mode depends on. Modes are
// "serve", "worker" (anything that runs agents) and "migrate".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q must be sqlite or postgres", c.Store.Driver))
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}

	switch mode {
	case "migrate":
	case "serve", "worker":
		if mode == "serve" && c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if c.Dispatch.Concurrency < 1 || c.Dispatch.Concurrency > 64 {
			errs = append(errs, "dispatch.concurrency must be between 1 and 64")
		}
		if c.Workflow.MaxPollAttempts < 1 {
			errs = append(errs, "workflow.max_poll_attempts must be >= 1")
		}
		if c.Workflow.PollIntervalSecs < 1 {
			errs = append(errs, "workflow.poll_interval_secs must be >= 1")
		}
		switch c.LLM.Provider {
		case "anthropic":
			if c.Anthropic.Key == "" {
				errs = append(errs, "anthropic.key is required")
			}
		case "perplexity":
			if c.Perplexity.Key == "" {
				errs = append(errs, "perplexity.key is required")
			}
		default:
			errs = append(errs, fmt.Sprintf("llm.provider %q must be anthropic or perplexity", c.LLM.Provider))
		}
		if c.Jina.Key == "" {
			errs = append(errs, "jina.key is required")
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
