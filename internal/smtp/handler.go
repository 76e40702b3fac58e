package smtp

import (
	"context"
	"crypto/tls"

	"github.com/mailforge/mailforged/internal/archive"
	"github.com/mailforge/mailforged/internal/logging"
	"github.com/mailforge/mailforged/internal/metrics"
	"github.com/mailforge/mailforged/internal/server"
	"github.com/mailforge/mailforged/internal/webhook"
)

// HandlerConfig carries the shared dependencies every session uses.
// Router and Forwarder are required. TLSConfig nil disables STARTTLS,
// Archive nil disables archiving, Collector nil disables metrics.
type HandlerConfig struct {
	Hostname  string
	MaxSize   int64
	TLSConfig *tls.Config
	Router    *webhook.Router
	Forwarder Forwarder
	Archive   *archive.Store
	Collector metrics.Collector
}

// Handler returns a ConnectionHandler that runs one SMTP session per
// accepted connection.
func Handler(cfg HandlerConfig) server.ConnectionHandler {
	if cfg.Collector == nil {
		cfg.Collector = &metrics.NoopCollector{}
	}

	return func(ctx context.Context, conn *server.Connection) {
		logger := logging.FromContext(ctx)

		cfg.Collector.ConnectionOpened()
		defer cfg.Collector.ConnectionClosed()

		NewSession(conn, cfg, logger).Serve(ctx)
	}
}

// Interface implementation assertion
var _ Forwarder = (*webhook.Dispatcher)(nil)
