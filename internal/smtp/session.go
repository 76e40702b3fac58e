package smtp

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/mailforge/mailforged/internal/archive"
	"github.com/mailforge/mailforged/internal/config"
	"github.com/mailforge/mailforged/internal/metrics"
	"github.com/mailforge/mailforged/internal/server"
	"github.com/mailforge/mailforged/internal/webhook"
)

// Forwarder delivers one accepted message to the endpoint serving a
// single recipient. Implementations must be safe for concurrent use;
// fan-out invokes Forward once per accepted recipient.
type Forwarder interface {
	Forward(ctx context.Context, entry config.WebhookEntry, recipient string, raw []byte) error
}

// Session holds the state of one SMTP connection: the HELO identity
// and the envelope being accumulated, plus the shared dependencies
// every connection uses. A Session is owned by a single goroutine.
type Session struct {
	conn      *server.Connection
	hostname  string
	maxSize   int64
	tlsConfig *tls.Config
	router    *webhook.Router
	forwarder Forwarder
	archive   *archive.Store
	collector metrics.Collector
	logger    *slog.Logger

	helo     string
	mailFrom string
	rcptTo   []string
}

// NewSession creates a Session for one accepted connection.
func NewSession(conn *server.Connection, cfg HandlerConfig, logger *slog.Logger) *Session {
	return &Session{
		conn:      conn,
		hostname:  cfg.Hostname,
		maxSize:   cfg.MaxSize,
		tlsConfig: cfg.TLSConfig,
		router:    cfg.Router,
		forwarder: cfg.Forwarder,
		archive:   cfg.Archive,
		collector: cfg.Collector,
		logger:    logger,
	}
}

// Serve runs the SMTP dialog until the client quits, the connection
// fails, or the message size limit is breached. The connection itself
// is closed by the caller.
func (s *Session) Serve(ctx context.Context) {
	if err := s.reply("220 " + s.hostname + " Mail Forge SMTP Server Ready"); err != nil {
		s.logger.Debug("failed to send greeting", slog.String("error", err.Error()))
		return
	}
	if err := s.conn.ResetIdleTimeout(); err != nil {
		s.logger.Debug("failed to reset idle timeout", slog.String("error", err.Error()))
		return
	}

	for {
		_ = s.conn.SetCommandTimeout()
		line, err := s.conn.ReadLine()
		if err != nil {
			if err != io.EOF {
				s.logger.Debug("failed to read command", slog.String("error", err.Error()))
			}
			return
		}
		_ = s.conn.ResetIdleTimeout()

		verb, args := splitCommand(line)
		s.collector.CommandProcessed(commandLabel(verb))

		switch verb {
		case "HELO":
			s.helo = args
			err = s.reply("250 " + s.hostname + " Mail Forge ESMTP Server Ready")
		case "EHLO":
			s.helo = args
			err = s.handleEhlo()
		case "STARTTLS":
			err = s.handleStartTLS()
		case "MAIL":
			err = s.handleMail(args)
		case "RCPT":
			err = s.handleRcpt(args)
		case "DATA":
			err = s.handleData(ctx)
		case "RSET":
			s.reset()
			err = s.reply("250 OK")
		case "NOOP":
			err = s.reply("250 OK")
		case "QUIT":
			if err := s.reply("221 Bye"); err != nil {
				s.logger.Debug("failed to send quit reply", slog.String("error", err.Error()))
			}
			return
		default:
			err = s.reply("500 Syntax error, command unrecognized")
		}

		if err != nil {
			s.logger.Debug("session ended",
				slog.String("verb", verb),
				slog.String("error", err.Error()))
			return
		}
	}
}

// handleEhlo writes the capability banner. STARTTLS and SIZE are the
// only extensions offered, and the banner is the same before and after
// a TLS upgrade.
func (s *Session) handleEhlo() error {
	w := s.conn.Writer()
	if _, err := fmt.Fprintf(w, "250-%s Mail Forge ESMTP Server Ready\r\n", s.hostname); err != nil {
		return err
	}
	if _, err := w.WriteString("250-STARTTLS\r\n"); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "250 SIZE %d\r\n", s.maxSize); err != nil {
		return err
	}
	return s.conn.Flush()
}

// handleStartTLS upgrades the connection in place. A repeated STARTTLS
// is refused without dropping the session; a failed handshake ends it.
// The envelope accumulated before the upgrade is kept.
func (s *Session) handleStartTLS() error {
	if s.conn.IsTLS() {
		return s.reply("503 TLS already active")
	}
	if s.tlsConfig == nil {
		return s.reply("454 4.7.0 TLS not available")
	}
	if err := s.reply("220 Ready to start TLS"); err != nil {
		return err
	}
	if err := s.conn.StartTLS(s.tlsConfig); err != nil {
		s.logger.Debug("tls handshake failed", slog.String("error", err.Error()))
		return err
	}
	s.collector.TLSConnectionEstablished()
	return nil
}

func (s *Session) handleMail(args string) error {
	addr, ok := cutAddress(args, "FROM:")
	if !ok {
		return s.reply("501 5.5.2 Syntax error in parameters or arguments")
	}
	if addr == "" {
		return s.reply("501 5.5.2 Syntax error: Empty email address")
	}
	s.mailFrom = addr
	s.logger.Debug("MAIL FROM", slog.String("from", addr))
	return s.reply("250 2.1.0 OK")
}

func (s *Session) handleRcpt(args string) error {
	if s.mailFrom == "" {
		return s.reply("503 Bad sequence of commands")
	}
	addr, ok := cutAddress(args, "TO:")
	if !ok {
		return s.reply("501 5.5.2 Syntax error in parameters or arguments")
	}
	if addr == "" {
		return s.reply("501 5.5.2 Syntax error: Empty recipient address")
	}
	if _, ok := s.router.Resolve(addr); !ok {
		s.collector.MessageRejected(addressDomain(addr), "relay_denied")
		s.logger.Debug("recipient refused", slog.String("to", addr))
		return s.reply("550 5.7.1 Unable to relay")
	}
	s.rcptTo = append(s.rcptTo, addr)
	s.logger.Debug("RCPT TO", slog.String("to", addr))
	return s.reply("250 2.1.5 Recipient OK")
}

// handleData collects the message body and fans it out to every
// accepted recipient. The transaction succeeds when at least one
// delivery succeeded; the envelope is cleared either way.
func (s *Session) handleData(ctx context.Context) error {
	if s.mailFrom == "" || len(s.rcptTo) == 0 {
		return s.reply("503 Bad sequence of commands")
	}
	if err := s.reply("354 End data with <CR><LF>.<CR><LF>"); err != nil {
		return err
	}

	raw, err := s.collectData()
	if err != nil {
		if errors.Is(err, ErrMessageTooLarge) {
			s.collector.MessageRejected(addressDomain(s.rcptTo[0]), "too_large")
			s.logger.Info("message rejected: size limit exceeded",
				slog.Int64("limit", s.maxSize))
			if err := s.reply("552 Message size exceeds maximum permitted"); err != nil {
				s.logger.Debug("failed to send size reply", slog.String("error", err.Error()))
			}
			return ErrMessageTooLarge
		}
		s.logger.Debug("data collection failed", slog.String("error", err.Error()))
		return err
	}

	if s.archive != nil {
		if path, err := s.archive.Save(raw); err != nil {
			s.logger.Warn("failed to archive message", slog.String("error", err.Error()))
		} else {
			s.logger.Debug("message archived", slog.String("path", path))
		}
	}

	delivered := s.fanOut(ctx, raw)

	var replyLine string
	if delivered > 0 {
		s.collector.MessageReceived(addressDomain(s.rcptTo[0]), int64(len(raw)))
		s.logger.Info("message accepted",
			slog.Int("size", len(raw)),
			slog.Int("recipients", len(s.rcptTo)),
			slog.Int("delivered", delivered))
		replyLine = "250 OK"
	} else {
		s.collector.MessageRejected(addressDomain(s.rcptTo[0]), "all_recipients_failed")
		s.logger.Warn("all recipient deliveries failed",
			slog.Int("recipients", len(s.rcptTo)))
		replyLine = "554 Failed to process email for all recipients."
	}
	s.resetEnvelope()
	return s.reply(replyLine)
}

// collectData reads body lines until the bare-dot terminator. Byte
// accounting uses wire lengths; dot-stuffed lines are unstuffed after
// accounting, so the stored message carries the client's original
// leading dots.
func (s *Session) collectData() ([]byte, error) {
	var buf bytes.Buffer
	var total int64

	for {
		line, err := s.conn.ReadLine()
		if err != nil {
			if err == io.EOF {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
		total += int64(len(line))
		if line == ".\r\n" {
			break
		}
		if s.maxSize > 0 && total > s.maxSize {
			return nil, ErrMessageTooLarge
		}
		buf.WriteString(strings.TrimPrefix(line, "."))
	}

	return buf.Bytes(), nil
}

// fanOut delivers the message to every rcpt_to occurrence, duplicates
// included, and returns the number of successful deliveries. Per-
// recipient failures are logged and recorded but never surface to the
// client individually.
func (s *Session) fanOut(ctx context.Context, raw []byte) int {
	var delivered atomic.Int64
	var g errgroup.Group

	for _, rcpt := range s.rcptTo {
		rcpt := rcpt
		entry, ok := s.router.Resolve(rcpt)
		if !ok {
			s.collector.DeliveryCompleted(addressDomain(rcpt), "unroutable")
			s.logger.Warn("no route for accepted recipient", slog.String("recipient", rcpt))
			continue
		}
		g.Go(func() error {
			err := s.forwarder.Forward(ctx, entry, rcpt, raw)
			s.collector.DeliveryCompleted(addressDomain(rcpt), webhook.DeliveryResult(err))
			if err != nil {
				s.logger.Warn("webhook delivery failed",
					slog.String("recipient", rcpt),
					slog.String("error", err.Error()))
				return err
			}
			delivered.Add(1)
			return nil
		})
	}

	_ = g.Wait()
	return int(delivered.Load())
}

// reply writes a single reply line and flushes it.
func (s *Session) reply(line string) error {
	if _, err := fmt.Fprintf(s.conn.Writer(), "%s\r\n", line); err != nil {
		return err
	}
	return s.conn.Flush()
}

// reset clears the session back to its just-connected state, HELO
// identity included.
func (s *Session) reset() {
	s.helo = ""
	s.resetEnvelope()
}

// resetEnvelope clears the envelope accumulated by MAIL and RCPT.
func (s *Session) resetEnvelope() {
	s.mailFrom = ""
	s.rcptTo = nil
}

// addressDomain extracts the domain of an address for metric labels.
func addressDomain(addr string) string {
	if idx := strings.LastIndex(addr, "@"); idx >= 0 {
		return addr[idx+1:]
	}
	return "unknown"
}
