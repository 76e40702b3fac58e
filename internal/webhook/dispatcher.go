// Package webhook routes accepted messages to per-recipient HTTP endpoints
// and forwards them as signed multipart/form-data POSTs.
package webhook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mailforge/mailforged/internal/config"
	"github.com/mailforge/mailforged/internal/logging"
	"github.com/mailforge/mailforged/internal/message"
)

// ErrMalformedMessage reports a message the MIME parser could not decode.
var ErrMalformedMessage = errors.New("malformed message")

// StatusError reports a webhook endpoint response outside the 2xx range.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webhook returned status %d", e.Code)
}

// DeliveryResult maps a Forward error to the result label recorded by the
// metrics collector.
func DeliveryResult(err error) string {
	var statusErr *StatusError
	switch {
	case err == nil:
		return "success"
	case errors.As(err, &statusErr):
		return "http_error"
	case errors.Is(err, ErrMalformedMessage):
		return "parse_error"
	default:
		return "transport_error"
	}
}

// Dispatcher forwards parsed messages to webhook endpoints. Each Forward
// call is single-shot: no retries, no queueing.
type Dispatcher struct {
	client  *http.Client
	logger  *slog.Logger
	tempDir string
}

// NewDispatcher creates a Dispatcher whose requests time out after the
// given duration. Attachments are staged under the system temp directory.
func NewDispatcher(timeout time.Duration, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
		tempDir: os.TempDir(),
	}
}

// Forward parses raw, signs the payload with the entry's API key and POSTs
// it to the entry's URL as multipart/form-data. A nil return means the
// endpoint acknowledged the delivery with a 2xx status.
func (d *Dispatcher) Forward(ctx context.Context, entry config.WebhookEntry, recipient string, raw []byte) error {
	deliveryID := uuid.New().String()
	logger := logging.WithDelivery(d.logger, deliveryID, recipient)

	msg, err := message.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	timestamp := Timestamp()
	token, err := NewToken()
	if err != nil {
		return err
	}
	signature := Sign(entry.APIKey, timestamp, token)

	staged, err := d.stageAttachments(msg.Attachments)
	if err != nil {
		return fmt.Errorf("staging attachments: %w", err)
	}
	defer func() {
		for _, sf := range staged {
			if err := os.Remove(sf.path); err != nil {
				logger.Debug("removing staged attachment", "path", sf.path, "error", err.Error())
			}
		}
	}()

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	fields := []struct{ name, value string }{
		{"timestamp", timestamp},
		{"token", token},
		{"signature", signature},
		{"subject", msg.Subject},
		{"from", msg.From},
		{"to", msg.To},
		{"date", msg.Date},
		{"body-plain", msg.BodyPlain},
		{"body-html", msg.BodyHTML},
	}
	for _, f := range fields {
		if err := form.WriteField(f.name, f.value); err != nil {
			return fmt.Errorf("writing field %s: %w", f.name, err)
		}
	}
	for i, sf := range staged {
		if err := attachFile(form, fmt.Sprintf("attachment-%d", i+1), sf); err != nil {
			return err
		}
	}
	if err := form.Close(); err != nil {
		return fmt.Errorf("finalizing form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, entry.URL, &body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	logger.Debug("posting to webhook", "url", entry.URL, "attachments", len(staged))

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		logger.Warn("webhook rejected delivery",
			"url", entry.URL,
			"status", resp.StatusCode,
			"body", strings.TrimSpace(string(excerpt)))
		return &StatusError{Code: resp.StatusCode}
	}

	logger.Info("message forwarded",
		"url", entry.URL,
		"status", resp.StatusCode,
		"attachments", len(staged))
	return nil
}

// stagedFile is an attachment written to the temp directory. name keeps the
// sanitized original filename for the form part; path may carry a collision
// suffix.
type stagedFile struct {
	path string
	name string
}

// stageAttachments writes each attachment to the temp directory and returns
// the staged files in message order. On error the files written so far are
// removed.
func (d *Dispatcher) stageAttachments(attachments []message.Attachment) ([]stagedFile, error) {
	staged := make([]stagedFile, 0, len(attachments))
	for _, att := range attachments {
		sf, err := d.stageAttachment(att)
		if err != nil {
			for _, s := range staged {
				_ = os.Remove(s.path)
			}
			return nil, err
		}
		staged = append(staged, sf)
	}
	return staged, nil
}

// stageAttachment creates a file for one attachment, appending _1, _2, ...
// before the extension until an unused name is found.
func (d *Dispatcher) stageAttachment(att message.Attachment) (stagedFile, error) {
	name := sanitizeFilename(att.Filename)
	path := filepath.Join(d.tempDir, name)
	for n := 1; ; n++ {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if err == nil {
			_, werr := f.Write(att.Data)
			cerr := f.Close()
			if werr != nil {
				_ = os.Remove(path)
				return stagedFile{}, fmt.Errorf("writing %s: %w", path, werr)
			}
			if cerr != nil {
				_ = os.Remove(path)
				return stagedFile{}, fmt.Errorf("closing %s: %w", path, cerr)
			}
			return stagedFile{path: path, name: name}, nil
		}
		if !os.IsExist(err) {
			return stagedFile{}, fmt.Errorf("creating %s: %w", path, err)
		}
		path = filepath.Join(d.tempDir, numberedName(name, n))
	}
}

// sanitizeFilename strips path components and control characters from an
// attachment filename so it is safe to create under the temp directory.
func sanitizeFilename(name string) string {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	var b strings.Builder
	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			continue
		}
		b.WriteRune(r)
	}
	name = strings.TrimSpace(b.String())
	if name == "" || name == "." || name == ".." {
		return "unnamed_attachment"
	}
	return name
}

// numberedName inserts a collision counter before the extension, so
// report.pdf becomes report_1.pdf rather than report.pdf_1.
func numberedName(name string, n int) string {
	ext := filepath.Ext(name)
	return fmt.Sprintf("%s_%d%s", strings.TrimSuffix(name, ext), n, ext)
}

// attachFile streams a staged attachment into the form as a file part under
// its sanitized original filename.
func attachFile(form *multipart.Writer, field string, sf stagedFile) error {
	f, err := os.Open(sf.path)
	if err != nil {
		return fmt.Errorf("opening attachment: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	part, err := form.CreateFormFile(field, sf.name)
	if err != nil {
		return fmt.Errorf("creating part %s: %w", field, err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("copying %s: %w", field, err)
	}
	return nil
}
