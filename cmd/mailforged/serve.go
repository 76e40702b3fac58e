package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mailforge/mailforged/internal/archive"
	"github.com/mailforge/mailforged/internal/config"
	"github.com/mailforge/mailforged/internal/logging"
	"github.com/mailforge/mailforged/internal/metrics"
	"github.com/mailforge/mailforged/internal/server"
	"github.com/mailforge/mailforged/internal/smtp"
	"github.com/mailforge/mailforged/internal/webhook"
)

func runServe() {
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

	logger := logging.NewLogger(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received signal, shutting down", "signal", sig.String())
		cancel()
	}()

	collector, metricsServer := metrics.New(metrics.Config{
		Enabled: cfg.Metrics.Enabled,
		Address: cfg.Metrics.Address,
		Path:    cfg.Metrics.Path,
	})
	go func() {
		if err := metricsServer.Start(ctx); err != nil && err != context.Canceled {
			logger.Error("metrics server error", "error", err)
		}
	}()

	var tlsConfig *tls.Config
	if cfg.Server.CertPath != "" {
		cert, err := tls.LoadX509KeyPair(cfg.Server.CertPath, cfg.Server.KeyPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error loading TLS certificate: %v\n", err)
			os.Exit(1)
		}
		tlsConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   cfg.Server.MinTLSVersion(),
		}
	}

	var store *archive.Store
	if cfg.Archive.Dir != "" {
		if err := os.MkdirAll(cfg.Archive.Dir, 0o750); err != nil {
			fmt.Fprintf(os.Stderr, "error creating archive directory: %v\n", err)
			os.Exit(1)
		}
		store = archive.New(cfg.Archive.Dir)
	}

	router := webhook.NewRouter(cfg.Webhooks)
	dispatcher := webhook.NewDispatcher(cfg.Webhook.RequestTimeout(), logger)

	handler := smtp.Handler(smtp.HandlerConfig{
		Hostname:  cfg.Server.Hostname,
		MaxSize:   cfg.Server.MaxSize,
		TLSConfig: tlsConfig,
		Router:    router,
		Forwarder: dispatcher,
		Archive:   store,
		Collector: collector,
	})

	logger.Info("starting mailforged",
		"hostname", cfg.Server.Hostname,
		"listen", cfg.Server.SMTPBindAddress,
		"routes", len(cfg.Webhooks),
		"tls", tlsConfig != nil)

	listener := server.NewListener(server.ListenerConfig{
		Address:        cfg.Server.SMTPBindAddress,
		IdleTimeout:    cfg.Timeouts.ConnectionTimeout(),
		CommandTimeout: cfg.Timeouts.CommandTimeout(),
		LogTransaction: cfg.LogLevel == "debug",
		Logger:         logger,
		Handler:        handler,
	})
	if err := listener.Start(ctx); err != nil && err != context.Canceled {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}
