// Package config holds the ShieldFlow configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
	"shieldflow/internal/sim"
)

// Config is the main configuration.
type Config struct {
	// Simulated latencies
	ConnectDelay    time.Duration `yaml:"connect_delay"`
	DisconnectDelay time.Duration `yaml:"disconnect_delay"`
	TickInterval    time.Duration `yaml:"tick_interval"`

	// Dashboard sizes
	TrafficWindow int `yaml:"traffic_window"`
	LogCapacity   int `yaml:"log_capacity"`

	Recommend RecommendConfig `yaml:"recommend"`

	// How long session and recommendation history is kept. Zero keeps it forever.
	HistoryRetention time.Duration `yaml:"history_retention"`
	PruneInterval    time.Duration `yaml:"prune_interval"`

	LogLevel string `yaml:"log_level"` // debug, info, warn, error
}

// RecommendConfig configures the text-generation API.
type RecommendConfig struct {
	Endpoint        string        `yaml:"endpoint"`
	Model           string        `yaml:"model"`
	APIKeyEnv       string        `yaml:"api_key_env"` // Environment variable holding the key
	Timeout         time.Duration `yaml:"timeout"`
	DefaultServerID string        `yaml:"default_server_id"`
}

// APIKey reads the key from the configured environment variable.
func (r RecommendConfig) APIKey() string {
	return strings.TrimSpace(os.Getenv(r.APIKeyEnv))
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		ConnectDelay:    2000 * time.Millisecond,
		DisconnectDelay: 1500 * time.Millisecond,
		TickInterval:    time.Second,
		TrafficWindow:   sim.DefaultWindow,
		LogCapacity:     sim.DefaultLogCapacity,
		Recommend: RecommendConfig{
			Endpoint:        "https://generativelanguage.googleapis.com/v1beta",
			Model:           "gemini-3-flash-preview",
			APIKeyEnv:       "API_KEY",
			Timeout:         15 * time.Second,
			DefaultServerID: "us-east-1",
		},
		HistoryRetention: 30 * 24 * time.Hour,
		PruneInterval:    time.Hour,
		LogLevel:         "info",
	}
}

// Load reads the configuration from path. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.ConnectDelay <= 0 {
		return fmt.Errorf("connect_delay must be positive")
	}
	if c.DisconnectDelay <= 0 {
		return fmt.Errorf("disconnect_delay must be positive")
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick_interval must be positive")
	}
	if c.TrafficWindow < 2 || c.TrafficWindow > 600 {
		return fmt.Errorf("traffic_window must be between 2 and 600")
	}
	if c.LogCapacity < 1 || c.LogCapacity > 10000 {
		return fmt.Errorf("log_capacity must be between 1 and 10000")
	}
	if c.Recommend.Endpoint == "" {
		return fmt.Errorf("recommend.endpoint is required")
	}
	if c.Recommend.Model == "" {
		return fmt.Errorf("recommend.model is required")
	}
	if c.Recommend.DefaultServerID == "" {
		return fmt.Errorf("recommend.default_server_id is required")
	}
	if c.Recommend.Timeout <= 0 {
		return fmt.Errorf("recommend.timeout must be positive")
	}
	if c.HistoryRetention < 0 {
		return fmt.Errorf("history_retention must not be negative")
	}
	if c.HistoryRetention > 0 && c.PruneInterval <= 0 {
		return fmt.Errorf("prune_interval must be positive when history_retention is set")
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level must be debug, info, warn or error (current: %q)", c.LogLevel)
	}
	return nil
}

// Simulator returns the simulator timings.
func (c *Config) Simulator() sim.Config {
	return sim.Config{
		ConnectDelay:    c.ConnectDelay,
		DisconnectDelay: c.DisconnectDelay,
		TickInterval:    c.TickInterval,
		TrafficWindow:   c.TrafficWindow,
		LogCapacity:     c.LogCapacity,
	}
}

// Save writes the configuration to path, creating the directory if needed.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}
