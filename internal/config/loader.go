package config

import (
	"flag"
	"fmt"
	"os"

	toml "github.com/pelletier/go-toml/v2"
)

// Flags holds command-line flag values.
type Flags struct {
	ConfigPath string
	Hostname   string
	LogLevel   string
	Listen     string
	TLSCert    string
	TLSKey     string
	MaxSize    int64
	ArchiveDir string
}

// ParseFlags parses command-line flags and returns a Flags struct.
func ParseFlags() *Flags {
	f := &Flags{}

	flag.StringVar(&f.ConfigPath, "config", "./mailforged.toml", "Path to configuration file")
	flag.StringVar(&f.Hostname, "hostname", "", "Server hostname used in SMTP banners")
	flag.StringVar(&f.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flag.StringVar(&f.Listen, "listen", "", "SMTP listen address")
	flag.StringVar(&f.TLSCert, "tls-cert", "", "TLS certificate file path")
	flag.StringVar(&f.TLSKey, "tls-key", "", "TLS key file path")
	flag.Int64Var(&f.MaxSize, "max-size", 0, "Maximum message size in bytes")
	flag.StringVar(&f.ArchiveDir, "archive-dir", "", "Directory for raw message archive")

	flag.Parse()
	return f
}

// Load parses a TOML configuration file and returns the Config.
// If the file does not exist, returns the default configuration.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config file: %w", err)
	}

	var fileConfig Config
	if err := toml.Unmarshal(data, &fileConfig); err != nil {
		return cfg, fmt.Errorf("parsing config file: %w", err)
	}

	// Merge file config into defaults
	cfg = mergeConfig(cfg, fileConfig)

	return cfg, nil
}

// ApplyFlags merges command-line flag values into the config.
// Non-zero/non-empty flag values override config file values.
func ApplyFlags(cfg Config, f *Flags) Config {
	if f.Hostname != "" {
		cfg.Server.Hostname = f.Hostname
	}

	if f.LogLevel != "" {
		cfg.LogLevel = f.LogLevel
	}

	if f.Listen != "" {
		cfg.Server.SMTPBindAddress = f.Listen
	}

	if f.TLSCert != "" {
		cfg.Server.CertPath = f.TLSCert
	}

	if f.TLSKey != "" {
		cfg.Server.KeyPath = f.TLSKey
	}

	if f.MaxSize > 0 {
		cfg.Server.MaxSize = f.MaxSize
	}

	if f.ArchiveDir != "" {
		cfg.Archive.Dir = f.ArchiveDir
	}

	return cfg
}

// LoadWithFlags loads configuration from the path specified in flags,
// applies environment overrides, then applies flag overrides.
func LoadWithFlags(f *Flags) (Config, error) {
	cfg, err := Load(f.ConfigPath)
	if err != nil {
		return cfg, err
	}
	cfg = ApplyEnv(cfg)
	return ApplyFlags(cfg, f), nil
}

// mergeConfig merges non-zero values from src into dst.
func mergeConfig(dst, src Config) Config {
	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}

	if src.Server.SMTPBindAddress != "" {
		dst.Server.SMTPBindAddress = src.Server.SMTPBindAddress
	}

	if src.Server.Hostname != "" {
		dst.Server.Hostname = src.Server.Hostname
	}

	if src.Server.MaxSize > 0 {
		dst.Server.MaxSize = src.Server.MaxSize
	}

	if src.Server.CertPath != "" {
		dst.Server.CertPath = src.Server.CertPath
	}

	if src.Server.KeyPath != "" {
		dst.Server.KeyPath = src.Server.KeyPath
	}

	if src.Server.MinVersion != "" {
		dst.Server.MinVersion = src.Server.MinVersion
	}

	if src.Timeouts.Connection != "" {
		dst.Timeouts.Connection = src.Timeouts.Connection
	}

	if src.Timeouts.Command != "" {
		dst.Timeouts.Command = src.Timeouts.Command
	}

	if src.Webhook.Timeout != "" {
		dst.Webhook.Timeout = src.Webhook.Timeout
	}

	// Metrics: enabled is explicitly set (boolean), so we merge if source has any non-zero value
	if src.Metrics.Enabled {
		dst.Metrics.Enabled = src.Metrics.Enabled
	}

	if src.Metrics.Address != "" {
		dst.Metrics.Address = src.Metrics.Address
	}

	if src.Metrics.Path != "" {
		dst.Metrics.Path = src.Metrics.Path
	}

	if src.Archive.Dir != "" {
		dst.Archive.Dir = src.Archive.Dir
	}

	if len(src.Webhooks) > 0 {
		dst.Webhooks = src.Webhooks
	}

	return dst
}
