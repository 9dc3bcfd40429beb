package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the Verto gateway server.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Engine     EngineConfig
	Automation AutomationConfig
	Sweeper    SweeperConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

// EngineConfig points at the hosted workflow engine. Each request type runs
// a separate workflow app, so each carries its own API key.
type EngineConfig struct {
	BaseURL     string
	AdCopyKey   string
	AudienceKey string
	Timeout     time.Duration
}

// AutomationConfig points at the generic automation platform's webhook used
// for analytics reports.
type AutomationConfig struct {
	WebhookURL string
	Token      string
	Timeout    time.Duration
}

// SweeperConfig bounds how long a request may sit in processing before the
// staleness sweep forces it to a terminal state.
type SweeperConfig struct {
	Interval time.Duration
	Grace    time.Duration
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("VERTO_PORT", 8080),
			Env:  envString("VERTO_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Engine: EngineConfig{
			BaseURL:     os.Getenv("ENGINE_BASE_URL"),
			AdCopyKey:   os.Getenv("ENGINE_AD_COPY_KEY"),
			AudienceKey: os.Getenv("ENGINE_AUDIENCE_KEY"),
			Timeout:     envDurationSecs("ENGINE_TIMEOUT_SECS", 300*time.Second),
		},
		Automation: AutomationConfig{
			WebhookURL: os.Getenv("AUTOMATION_WEBHOOK_URL"),
			Token:      os.Getenv("AUTOMATION_TOKEN"),
			Timeout:    envDurationSecs("AUTOMATION_TIMEOUT_SECS", 300*time.Second),
		},
		Sweeper: SweeperConfig{
			Interval: envDuration("SWEEPER_INTERVAL", time.Minute),
			Grace:    envDuration("SWEEPER_GRACE", time.Minute),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Engine.BaseURL == "" {
		return fmt.Errorf("ENGINE_BASE_URL is required")
	}
	if !strings.HasPrefix(c.Engine.BaseURL, "http://") && !strings.HasPrefix(c.Engine.BaseURL, "https://") {
		return fmt.Errorf("ENGINE_BASE_URL must start with http:// or https://, got %q", c.Engine.BaseURL)
	}
	if c.Engine.AdCopyKey == "" {
		return fmt.Errorf("ENGINE_AD_COPY_KEY is required")
	}
	if c.Engine.AudienceKey == "" {
		return fmt.Errorf("ENGINE_AUDIENCE_KEY is required")
	}
	if c.Engine.Timeout <= 0 {
		return fmt.Errorf("ENGINE_TIMEOUT_SECS must be positive")
	}

	if c.Automation.WebhookURL == "" {
		return fmt.Errorf("AUTOMATION_WEBHOOK_URL is required")
	}
	if !strings.HasPrefix(c.Automation.WebhookURL, "http://") && !strings.HasPrefix(c.Automation.WebhookURL, "https://") {
		return fmt.Errorf("AUTOMATION_WEBHOOK_URL must start with http:// or https://, got %q", c.Automation.WebhookURL)
	}

	if c.Sweeper.Interval <= 0 {
		return fmt.Errorf("SWEEPER_INTERVAL must be positive")
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
