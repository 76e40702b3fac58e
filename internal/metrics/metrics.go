// Package metrics provides interfaces and implementations for collecting
// mail gateway metrics. This package defines the Collector interface for
// recording metrics and the Server interface for exposing them.
package metrics

import "context"

// Collector defines the interface for recording gateway metrics.
type Collector interface {
	// Connection metrics (no domain - happens before HELO)
	ConnectionOpened()
	ConnectionClosed()
	TLSConnectionEstablished()

	// Message metrics (recipient domain first)
	MessageReceived(recipientDomain string, sizeBytes int64)
	MessageRejected(recipientDomain string, reason string)

	// Command metrics (no domain - too granular)
	CommandProcessed(command string)

	// Webhook delivery metrics (recipient domain first)
	// result should be "success", "http_error", "transport_error",
	// "parse_error" or "unroutable"
	DeliveryCompleted(recipientDomain string, result string)
}

// Server defines the interface for a metrics HTTP server.
type Server interface {
	// Start begins serving metrics. It blocks until the context is canceled
	// or an error occurs.
	Start(ctx context.Context) error

	// Shutdown gracefully stops the metrics server.
	Shutdown(ctx context.Context) error
}
