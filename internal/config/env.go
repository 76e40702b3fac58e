package config

import "os"

// ApplyEnv applies environment variable overrides to the configuration.
// Environment variables take precedence over TOML config but are overridden by command-line flags.
func ApplyEnv(cfg Config) Config {
	if v := os.Getenv("MAILFORGE_HOSTNAME"); v != "" {
		cfg.Server.Hostname = v
	}
	if v := os.Getenv("MAILFORGE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("MAILFORGE_BIND_ADDRESS"); v != "" {
		cfg.Server.SMTPBindAddress = v
	}
	if v := os.Getenv("MAILFORGE_TLS_CERT_PATH"); v != "" {
		cfg.Server.CertPath = v
	}
	if v := os.Getenv("MAILFORGE_TLS_KEY_PATH"); v != "" {
		cfg.Server.KeyPath = v
	}
	if v := os.Getenv("MAILFORGE_ARCHIVE_DIR"); v != "" {
		cfg.Archive.Dir = v
	}
	return cfg
}
