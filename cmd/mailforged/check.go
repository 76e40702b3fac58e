package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/mailforge/mailforged/internal/config"
)

// runCheck loads and validates the configuration, then prints a summary of
// the resolved settings and routing table. Useful before a restart.
func runCheck() {
	flags := config.ParseFlags()

	cfg, err := config.LoadWithFlags(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("configuration OK")
	fmt.Printf("  hostname:  %s\n", cfg.Server.Hostname)
	fmt.Printf("  listen:    %s\n", cfg.Server.SMTPBindAddress)
	fmt.Printf("  max size:  %d bytes\n", cfg.Server.MaxSize)
	fmt.Printf("  tls:       %v\n", cfg.Server.CertPath != "")
	if cfg.Archive.Dir != "" {
		fmt.Printf("  archive:   %s\n", cfg.Archive.Dir)
	}
	fmt.Printf("  routes:    %d\n", len(cfg.Webhooks))

	patterns := make([]string, 0, len(cfg.Webhooks))
	for p := range cfg.Webhooks {
		patterns = append(patterns, p)
	}
	sort.Strings(patterns)
	for _, p := range patterns {
		fmt.Printf("    %-32s %s\n", p, cfg.Webhooks[p].URL)
	}
}
