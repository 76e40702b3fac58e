// Package config provides configuration management for the mail gateway.
package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Config holds the complete gateway configuration.
type Config struct {
	LogLevel string                  `toml:"log_level"`
	Server   ServerConfig            `toml:"server"`
	Timeouts TimeoutsConfig          `toml:"timeouts"`
	Webhook  WebhookClientConfig     `toml:"webhook"`
	Metrics  MetricsConfig           `toml:"metrics"`
	Archive  ArchiveConfig           `toml:"archive"`
	Webhooks map[string]WebhookEntry `toml:"webhooks"`
}

// ServerConfig defines the SMTP listener settings.
type ServerConfig struct {
	SMTPBindAddress string `toml:"smtp_bind_address"`
	Hostname        string `toml:"hostname"`
	MaxSize         int64  `toml:"max_size"`
	CertPath        string `toml:"cert_path"`
	KeyPath         string `toml:"key_path"`
	MinVersion      string `toml:"min_tls_version"`
}

// WebhookEntry maps a recipient pattern to its delivery endpoint.
// Patterns are either literal addresses or wildcards of the form "*@domain".
type WebhookEntry struct {
	URL    string `toml:"url"`
	APIKey string `toml:"api_key"`
}

// WebhookClientConfig holds settings for the outbound HTTP client.
type WebhookClientConfig struct {
	Timeout string `toml:"timeout"`
}

// TimeoutsConfig defines timeout durations.
type TimeoutsConfig struct {
	Connection string `toml:"connection"`
	Command    string `toml:"command"`
}

// MetricsConfig holds configuration for Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Address string `toml:"address"`
	Path    string `toml:"path"`
}

// ArchiveConfig controls the raw-message archive.
// An empty Dir disables archiving.
type ArchiveConfig struct {
	Dir string `toml:"dir"`
}

// Default returns a Config with sensible default values.
func Default() Config {
	return Config{
		LogLevel: "info",
		Server: ServerConfig{
			SMTPBindAddress: ":25",
			Hostname:        "localhost",
			MaxSize:         26214400, // 25 MB
			MinVersion:      "1.2",
		},
		Timeouts: TimeoutsConfig{
			Connection: "5m",
			Command:    "1m",
		},
		Webhook: WebhookClientConfig{
			Timeout: "30s",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Address: ":9100",
			Path:    "/metrics",
		},
	}
}

// Validate checks that the configuration is valid and returns an error if not.
func (c *Config) Validate() error {
	if c.Server.SMTPBindAddress == "" {
		return errors.New("smtp_bind_address is required")
	}

	if c.Server.Hostname == "" {
		return errors.New("hostname is required")
	}

	if c.Server.MaxSize <= 0 {
		return errors.New("max_size must be positive")
	}

	if (c.Server.CertPath == "") != (c.Server.KeyPath == "") {
		return errors.New("cert_path and key_path must be set together")
	}

	if c.Server.MinVersion != "" {
		if _, ok := minTLSVersions[c.Server.MinVersion]; !ok {
			return fmt.Errorf("invalid TLS min_version %q (valid: 1.0, 1.1, 1.2, 1.3)", c.Server.MinVersion)
		}
	}

	if c.Timeouts.Connection != "" {
		if _, err := time.ParseDuration(c.Timeouts.Connection); err != nil {
			return fmt.Errorf("invalid connection timeout: %w", err)
		}
	}

	if c.Timeouts.Command != "" {
		if _, err := time.ParseDuration(c.Timeouts.Command); err != nil {
			return fmt.Errorf("invalid command timeout: %w", err)
		}
	}

	if c.Webhook.Timeout != "" {
		if _, err := time.ParseDuration(c.Webhook.Timeout); err != nil {
			return fmt.Errorf("invalid webhook timeout: %w", err)
		}
	}

	for pattern, entry := range c.Webhooks {
		if pattern == "" {
			return errors.New("webhook pattern must not be empty")
		}
		if entry.URL == "" {
			return fmt.Errorf("webhook %q: url is required", pattern)
		}
		u, err := url.Parse(entry.URL)
		if err != nil {
			return fmt.Errorf("webhook %q: invalid url: %w", pattern, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("webhook %q: url must be http or https", pattern)
		}
		if entry.APIKey == "" {
			return fmt.Errorf("webhook %q: api_key is required", pattern)
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

	return nil
}

// MinTLSVersion returns the crypto/tls constant for the configured minimum TLS version.
// Returns tls.VersionTLS12 if not configured or invalid.
func (c *ServerConfig) MinTLSVersion() uint16 {
	if v, ok := minTLSVersions[c.MinVersion]; ok {
		return v
	}
	return tls.VersionTLS12
}

// ConnectionTimeout returns the connection timeout as a time.Duration.
// Returns 5 minutes if not configured or invalid.
func (c *TimeoutsConfig) ConnectionTimeout() time.Duration {
	if c.Connection == "" {
		return 5 * time.Minute
	}
	d, err := time.ParseDuration(c.Connection)
	if err != nil {
		return 5 * time.Minute
	}
	return d
}

// CommandTimeout returns the command timeout as a time.Duration.
// Returns 1 minute if not configured or invalid.
func (c *TimeoutsConfig) CommandTimeout() time.Duration {
	if c.Command == "" {
		return 1 * time.Minute
	}
	d, err := time.ParseDuration(c.Command)
	if err != nil {
		return 1 * time.Minute
	}
	return d
}

// RequestTimeout returns the webhook request timeout as a time.Duration.
// Returns 30 seconds if not configured or invalid.
func (c *WebhookClientConfig) RequestTimeout() time.Duration {
	if c.Timeout == "" {
		return 30 * time.Second
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

var minTLSVersions = map[string]uint16{
	"1.0": tls.VersionTLS10,
	"1.1": tls.VersionTLS11,
	"1.2": tls.VersionTLS12,
	"1.3": tls.VersionTLS13,
}
