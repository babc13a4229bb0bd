// Package config loads CottBot configuration from YAML with environment
// overrides for secrets.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all gateway configuration.
type Config struct {
	// Bot identity
	Bot BotConfig `yaml:"bot"`

	// Completion endpoint
	OpenRouter OpenRouterConfig `yaml:"openrouter"`

	// Pipeline limits
	Limits LimitsConfig `yaml:"limits"`

	// Prompt variants
	Prompts PromptsConfig `yaml:"prompts"`

	// Preference store
	Database DatabaseConfig `yaml:"database"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// BotConfig identifies the bot to the context builder.
type BotConfig struct {
	Name string `yaml:"name"`
	// SelfID is the bot's own opaque identity on the chat platform.
	SelfID string `yaml:"self_id"`
	// DataDir is the root for logs, usage stats and the preference DB.
	DataDir string `yaml:"data_dir"`
}

// OpenRouterConfig configures the completion client.
type OpenRouterConfig struct {
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
	Timeout  string `yaml:"timeout"`
	SiteURL  string `yaml:"site_url"`  // Optional: for OpenRouter analytics
	SiteName string `yaml:"site_name"` // Optional: for OpenRouter analytics
}

// LimitsConfig bounds one trigger event's resource use.
type LimitsConfig struct {
	RateLimitSeconds int `yaml:"rate_limit_seconds"`
	SweepSeconds     int `yaml:"sweep_seconds"`
	MaxInputTokens   int `yaml:"max_input_tokens"`
	HistoryLimit     int `yaml:"history_limit"`
	MaxIterations    int `yaml:"max_iterations"`
}

// PromptsConfig configures the prompt variant resolver.
type PromptsConfig struct {
	Dir            string `yaml:"dir"`
	DefaultVariant string `yaml:"default_variant"`
}

// DatabaseConfig configures the SQLite preference store.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig mirrors logging.Settings.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"`
	Categories map[string]bool `yaml:"categories"`
}

// Default returns the reference configuration.
func Default() *Config {
	return &Config{
		Bot: BotConfig{
			Name:    "CottBot",
			DataDir: ".cottbot",
		},
		OpenRouter: OpenRouterConfig{
			BaseURL:  "https://openrouter.ai/api/v1",
			Timeout:  "2m",
			SiteName: "CottBot",
		},
		Limits: LimitsConfig{
			RateLimitSeconds: 5,
			SweepSeconds:     60,
			MaxInputTokens:   12000,
			HistoryLimit:     15,
			MaxIterations:    5,
		},
		Prompts: PromptsConfig{
			Dir:            "prompts",
			DefaultVariant: "femboy",
		},
		Database: DatabaseConfig{
			Path: filepath.Join(".cottbot", "bot.db"),
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads the config file at path, layering it over defaults and then
// applying environment overrides. A missing file is not an error; defaults
// plus environment apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays environment variables onto the config.
// Secrets never belong in the YAML file.
func (c *Config) applyEnv() {
	if v := os.Getenv("OPENROUTER_API_KEY"); v != "" {
		c.OpenRouter.APIKey = v
	}
	if v := os.Getenv("COTTBOT_DATA_DIR"); v != "" {
		c.Bot.DataDir = v
		c.Database.Path = filepath.Join(v, "bot.db")
	}
	if v := os.Getenv("COTTBOT_SELF_ID"); v != "" {
		c.Bot.SelfID = v
	}
}

// Validate checks invariants the pipeline relies on.
func (c *Config) Validate() error {
	if c.Limits.RateLimitSeconds <= 0 {
		return fmt.Errorf("limits.rate_limit_seconds must be positive")
	}
	if c.Limits.SweepSeconds < c.Limits.RateLimitSeconds {
		return fmt.Errorf("limits.sweep_seconds must be >= limits.rate_limit_seconds")
	}
	if c.Limits.MaxInputTokens <= 0 {
		return fmt.Errorf("limits.max_input_tokens must be positive")
	}
	if c.Limits.HistoryLimit <= 0 {
		return fmt.Errorf("limits.history_limit must be positive")
	}
	if c.Limits.MaxIterations <= 0 {
		return fmt.Errorf("limits.max_iterations must be positive")
	}
	if _, err := c.RequestTimeout(); err != nil {
		return fmt.Errorf("openrouter.timeout: %w", err)
	}
	return nil
}

// RequestTimeout parses the completion request timeout.
func (c *Config) RequestTimeout() (time.Duration, error) {
	if c.OpenRouter.Timeout == "" {
		return 2 * time.Minute, nil
	}
	return time.ParseDuration(c.OpenRouter.Timeout)
}

// RateLimitWindow returns the cooldown window as a duration.
func (c *Config) RateLimitWindow() time.Duration {
	return time.Duration(c.Limits.RateLimitSeconds) * time.Second
}

// SweepHorizon returns the rate-limiter sweep horizon as a duration.
func (c *Config) SweepHorizon() time.Duration {
	return time.Duration(c.Limits.SweepSeconds) * time.Second
}
