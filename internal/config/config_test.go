package config

import (
	"crypto/tls"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.LogLevel != "info" {
		t.Errorf("expected log_level 'info', got %q", cfg.LogLevel)
	}

	if cfg.Server.SMTPBindAddress != ":25" {
		t.Errorf("expected smtp_bind_address ':25', got %q", cfg.Server.SMTPBindAddress)
	}

	if cfg.Server.Hostname != "localhost" {
		t.Errorf("expected hostname 'localhost', got %q", cfg.Server.Hostname)
	}

	if cfg.Server.MaxSize != 26214400 {
		t.Errorf("expected max_size 26214400, got %d", cfg.Server.MaxSize)
	}

	if cfg.Server.MinVersion != "1.2" {
		t.Errorf("expected TLS min_version '1.2', got %q", cfg.Server.MinVersion)
	}

	if cfg.Timeouts.Connection != "5m" {
		t.Errorf("expected connection timeout '5m', got %q", cfg.Timeouts.Connection)
	}

	if cfg.Timeouts.Command != "1m" {
		t.Errorf("expected command timeout '1m', got %q", cfg.Timeouts.Command)
	}

	if cfg.Webhook.Timeout != "30s" {
		t.Errorf("expected webhook timeout '30s', got %q", cfg.Webhook.Timeout)
	}

	if cfg.Archive.Dir != "" {
		t.Errorf("expected archive disabled by default, got dir %q", cfg.Archive.Dir)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "empty bind address",
			modify:  func(c *Config) { c.Server.SMTPBindAddress = "" },
			wantErr: true,
		},
		{
			name:    "empty hostname",
			modify:  func(c *Config) { c.Server.Hostname = "" },
			wantErr: true,
		},
		{
			name:    "zero max_size",
			modify:  func(c *Config) { c.Server.MaxSize = 0 },
			wantErr: true,
		},
		{
			name:    "negative max_size",
			modify:  func(c *Config) { c.Server.MaxSize = -1 },
			wantErr: true,
		},
		{
			name:    "cert without key",
			modify:  func(c *Config) { c.Server.CertPath = "/etc/ssl/cert.pem" },
			wantErr: true,
		},
		{
			name:    "key without cert",
			modify:  func(c *Config) { c.Server.KeyPath = "/etc/ssl/key.pem" },
			wantErr: true,
		},
		{
			name: "cert and key together",
			modify: func(c *Config) {
				c.Server.CertPath = "/etc/ssl/cert.pem"
				c.Server.KeyPath = "/etc/ssl/key.pem"
			},
			wantErr: false,
		},
		{
			name:    "invalid TLS min_version",
			modify:  func(c *Config) { c.Server.MinVersion = "1.4" },
			wantErr: true,
		},
		{
			name:    "invalid connection timeout",
			modify:  func(c *Config) { c.Timeouts.Connection = "invalid" },
			wantErr: true,
		},
		{
			name:    "invalid command timeout",
			modify:  func(c *Config) { c.Timeouts.Command = "invalid" },
			wantErr: true,
		},
		{
			name:    "invalid webhook timeout",
			modify:  func(c *Config) { c.Webhook.Timeout = "soon" },
			wantErr: true,
		},
		{
			name: "valid webhook entry",
			modify: func(c *Config) {
				c.Webhooks = map[string]WebhookEntry{
					"support@example.com": {URL: "https://api.example.com/inbound", APIKey: "key-1"},
				}
			},
			wantErr: false,
		},
		{
			name: "valid wildcard entry",
			modify: func(c *Config) {
				c.Webhooks = map[string]WebhookEntry{
					"*@example.com": {URL: "http://localhost:8080/hook", APIKey: "key-2"},
				}
			},
			wantErr: false,
		},
		{
			name: "webhook entry missing url",
			modify: func(c *Config) {
				c.Webhooks = map[string]WebhookEntry{
					"support@example.com": {APIKey: "key-1"},
				}
			},
			wantErr: true,
		},
		{
			name: "webhook entry missing api_key",
			modify: func(c *Config) {
				c.Webhooks = map[string]WebhookEntry{
					"support@example.com": {URL: "https://api.example.com/inbound"},
				}
			},
			wantErr: true,
		},
		{
			name: "webhook entry with non-http url",
			modify: func(c *Config) {
				c.Webhooks = map[string]WebhookEntry{
					"support@example.com": {URL: "ftp://example.com/inbound", APIKey: "key-1"},
				}
			},
			wantErr: true,
		},
		{
			name: "metrics enabled without address",
			modify: func(c *Config) {
				c.Metrics.Enabled = true
				c.Metrics.Address = ""
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMinTLSVersion(t *testing.T) {
	tests := []struct {
		version  string
		expected uint16
	}{
		{"1.0", tls.VersionTLS10},
		{"1.1", tls.VersionTLS11},
		{"1.2", tls.VersionTLS12},
		{"1.3", tls.VersionTLS13},
		{"", tls.VersionTLS12},        // default
		{"invalid", tls.VersionTLS12}, // invalid falls back to default
	}

	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			cfg := ServerConfig{MinVersion: tt.version}
			if got := cfg.MinTLSVersion(); got != tt.expected {
				t.Errorf("MinTLSVersion() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestConnectionTimeout(t *testing.T) {
	tests := []struct {
		value    string
		expected time.Duration
	}{
		{"5m", 5 * time.Minute},
		{"1h", 1 * time.Hour},
		{"30s", 30 * time.Second},
		{"", 5 * time.Minute},        // default
		{"invalid", 5 * time.Minute}, // invalid falls back to default
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			cfg := TimeoutsConfig{Connection: tt.value}
			if got := cfg.ConnectionTimeout(); got != tt.expected {
				t.Errorf("ConnectionTimeout() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestRequestTimeout(t *testing.T) {
	tests := []struct {
		value    string
		expected time.Duration
	}{
		{"30s", 30 * time.Second},
		{"2m", 2 * time.Minute},
		{"", 30 * time.Second},        // default
		{"invalid", 30 * time.Second}, // invalid falls back to default
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			cfg := WebhookClientConfig{Timeout: tt.value}
			if got := cfg.RequestTimeout(); got != tt.expected {
				t.Errorf("RequestTimeout() = %v, want %v", got, tt.expected)
			}
		})
	}
}
