package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds runtime settings for the reader.
type Config struct {
	APIURL   string `env:"TTRSS_API_URL"`
	Username string `env:"TTRSS_USERNAME"`
	Password string `env:"TTRSS_PASSWORD"`
	DBPath   string `env:"TTRSS_DB_PATH" envDefault:"ttrss.db"`
	LogPath  string `env:"TTRSS_LOG_PATH" envDefault:"ttrss.log"`
	LogLevel string `env:"TTRSS_LOG_LEVEL" envDefault:"info"`

	// CounterIntervalSeconds is the period of the background counter resync;
	// 0 disables it.
	CounterIntervalSeconds int     `env:"TTRSS_COUNTER_INTERVAL" envDefault:"60"`
	PageSize               int     `env:"TTRSS_PAGE_SIZE" envDefault:"20"`
	RateLimit              float64 `env:"TTRSS_RATE_LIMIT" envDefault:"10"`
}

func LoadFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) CounterInterval() time.Duration {
	return time.Duration(c.CounterIntervalSeconds) * time.Second
}

func (c Config) Validate() error {
	if c.APIURL == "" {
		return errors.New("TTRSS_API_URL is required")
	}
	parsed, err := url.Parse(c.APIURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("TTRSS_API_URL must be an http(s) URL: %s", c.APIURL)
	}
	if c.Username == "" {
		return errors.New("TTRSS_USERNAME is required")
	}
	if c.DBPath == "" {
		return errors.New("DBPath is required")
	}
	if c.CounterIntervalSeconds < 0 {
		return fmt.Errorf("TTRSS_COUNTER_INTERVAL must not be negative: %d", c.CounterIntervalSeconds)
	}
	if c.PageSize < 1 || c.PageSize > 200 {
		return fmt.Errorf("TTRSS_PAGE_SIZE must be between 1 and 200: %d", c.PageSize)
	}
	if c.RateLimit <= 0 {
		return fmt.Errorf("TTRSS_RATE_LIMIT must be positive: %v", c.RateLimit)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("TTRSS_LOG_LEVEL must be debug, info, warn or error: %s", c.LogLevel)
	}
	return nil
}
