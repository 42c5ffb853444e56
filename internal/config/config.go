// Package config provides configuration loading and validation for the service.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds everything the service needs at startup. Values come from an
// optional JSON file overlaid with environment variables; env wins.
type Config struct {
	// Server
	Port int    `json:"port,omitempty"`
	Host string `json:"host,omitempty"`

	// Backing services
	DatabaseURL  string `json:"database_url,omitempty"`
	GeminiAPIKey string `json:"gemini_api_key,omitempty"`

	// Outbound model-call limiter (rolling window)
	OutboundLimit     int           `json:"outbound_limit,omitempty"`      // calls per window
	OutboundWindow    time.Duration `json:"-"`                             // window length
	OutboundSpacing   time.Duration `json:"-"`                             // min gap between calls
	OutboundWindowSec int           `json:"outbound_window_sec,omitempty"` // JSON form
	OutboundSpacingMS int           `json:"outbound_spacing_ms,omitempty"` // JSON form

	// Inbound per-client HTTP rate limit
	InboundPerMinute int `json:"inbound_per_minute,omitempty"`

	// Progress event retention for the cleanup job
	EventRetention  time.Duration `json:"-"`
	CleanupInterval time.Duration `json:"-"`

	// Local content mirror
	SaveContentLocally bool   `json:"save_content_locally,omitempty"`
	LocalContentPath   string `json:"local_content_path,omitempty"`

	// Logging
	LogLevel string `json:"log_level,omitempty"`
	LogFile  string `json:"log_file,omitempty"`
}

// Default returns the configuration used when nothing else is specified
func Default() Config {
	return Config{
		Port:             8000,
		Host:             "0.0.0.0",
		OutboundLimit:    20,
		OutboundWindow:   time.Minute,
		OutboundSpacing:  time.Second,
		InboundPerMinute: 10,
		EventRetention:   24 * time.Hour,
		CleanupInterval:  time.Hour,
		LocalContentPath: "./data/generated_content",
		LogLevel:         "info",
	}
}

// Load builds the effective configuration: defaults, then the JSON file at
// path (if non-empty), then environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
		if cfg.OutboundWindowSec > 0 {
			cfg.OutboundWindow = time.Duration(cfg.OutboundWindowSec) * time.Second
		}
		if cfg.OutboundSpacingMS > 0 {
			cfg.OutboundSpacing = time.Duration(cfg.OutboundSpacingMS) * time.Millisecond
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.DatabaseURL, "DATABASE_URL")
	setString(&c.GeminiAPIKey, "GEMINI_API_KEY")
	setString(&c.Host, "HOST")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.LogFile, "LOG_FILE")
	setString(&c.LocalContentPath, "LOCAL_CONTENT_PATH")
	setInt(&c.Port, "PORT")
	setInt(&c.OutboundLimit, "OUTBOUND_RATE_LIMIT")
	setInt(&c.InboundPerMinute, "INBOUND_RATE_LIMIT")
	setBool(&c.SaveContentLocally, "SAVE_CONTENT_LOCALLY")

	if v := os.Getenv("OUTBOUND_RATE_WINDOW_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.OutboundWindow = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("OUTBOUND_MIN_SPACING_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.OutboundSpacing = time.Duration(n) * time.Millisecond
		}
	}
	if v := os.Getenv("EVENT_RETENTION_HOURS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.EventRetention = time.Duration(n) * time.Hour
		}
	}
}

// Validate checks that required configuration is present and sane
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("config error: DATABASE_URL is required")
	}
	if c.GeminiAPIKey == "" {
		return fmt.Errorf("config error: GEMINI_API_KEY is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config error: port %d out of range", c.Port)
	}
	if c.OutboundLimit <= 0 {
		return fmt.Errorf("config error: outbound_limit must be positive")
	}
	if c.OutboundSpacing >= c.OutboundWindow {
		return fmt.Errorf("config error: outbound spacing must be shorter than the window")
	}
	if c.InboundPerMinute <= 0 {
		return fmt.Errorf("config error: inbound_per_minute must be positive")
	}
	return nil
}

// Addr returns the listen address
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
