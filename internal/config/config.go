// Package config provides configuration management for the WordQuizzle server.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the full server configuration. The six mandatory values
// (TCPPort, UDPPort, MatchMinutes, InvitationSeconds, WordsPerMatch,
// WorkerThreads) come from the required CLI positional arguments; everything
// else is ambient and may be layered in from an optional TOML file.
type Config struct {
	TCPPort           int
	UDPPort           int
	MatchMinutes      int
	InvitationSeconds int
	WordsPerMatch     int
	WorkerThreads     int

	LogLevel       string             `toml:"log_level"`
	DatabasePath   string             `toml:"database_path"`
	DictionaryPath string             `toml:"dictionary_path"`
	Translator     TranslatorConfig   `toml:"translator"`
	Registration   RegistrationConfig `toml:"registration"`
	Metrics        MetricsConfig      `toml:"metrics"`
	ReadBufferSize int                `toml:"read_buffer_size"`

	// MaxConnections caps concurrent client sessions; 0 means unlimited.
	MaxConnections int `toml:"max_connections"`
}

// TranslatorConfig configures the external translation vendor.
type TranslatorConfig struct {
	BaseURL    string `toml:"base_url"`
	TimeoutRaw string `toml:"timeout"`
}

// Timeout returns the parsed request timeout, defaulting to 5s.
func (t TranslatorConfig) Timeout() time.Duration {
	if t.TimeoutRaw == "" {
		return 5 * time.Second
	}
	d, err := time.ParseDuration(t.TimeoutRaw)
	if err != nil {
		return 5 * time.Second
	}
	return d
}

// RegistrationConfig configures the gRPC registration endpoint.
type RegistrationConfig struct {
	Address string `toml:"address"`
}

// MetricsConfig holds configuration for the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Address string `toml:"address"`
	Path    string `toml:"path"`
}

// Default returns a Config with sensible default values for everything the
// CLI does not mandate.
func Default() Config {
	return Config{
		LogLevel:       "info",
		DatabasePath:   "Database.json",
		DictionaryPath: "",
		Translator: TranslatorConfig{
			BaseURL:    "http://localhost:8089/translate",
			TimeoutRaw: "5s",
		},
		Registration: RegistrationConfig{
			Address: ":5678",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Address: ":9101",
			Path:    "/metrics",
		},
		ReadBufferSize: 512,
		MaxConnections: 0,
	}
}

// Validate checks that the configuration is internally consistent.
// It does not re-validate the CLI-mandated fields; ParseArgs validates those
// while parsing argv.
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return errors.New("database_path is required")
	}
	if c.Translator.BaseURL == "" {
		return errors.New("translator.base_url is required")
	}
	if c.Translator.TimeoutRaw != "" {
		if _, err := time.ParseDuration(c.Translator.TimeoutRaw); err != nil {
			return fmt.Errorf("invalid translator timeout: %w", err)
		}
	}
	if c.Metrics.Enabled {
		if c.Metrics.Address == "" {
			return errors.New("metrics address is required when metrics are enabled")
		}
		if c.Metrics.Path == "" {
			return errors.New("metrics path is required when metrics are enabled")
		}
	}
	if c.ReadBufferSize <= 0 {
		return errors.New("read_buffer_size must be positive")
	}
	if c.MaxConnections < 0 {
		return errors.New("max_connections must not be negative")
	}
	if c.Registration.Address == "" {
		return errors.New("registration.address is required")
	}
	return nil
}

// MatchDuration returns the configured match duration as a time.Duration.
func (c *Config) MatchDuration() time.Duration {
	return time.Duration(c.MatchMinutes) * time.Minute
}

// InvitationDuration returns the configured invitation acceptance window.
func (c *Config) InvitationDuration() time.Duration {
	return time.Duration(c.InvitationSeconds) * time.Second
}
