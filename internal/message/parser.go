// Package message parses raw RFC 822 messages into the header fields, text
// bodies and attachments forwarded to webhook endpoints.
package message

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"

	gomessage "github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
)

// Message is the parsed form of an inbound email.
type Message struct {
	Subject     string
	From        string
	To          string
	Date        string
	BodyPlain   string
	BodyHTML    string
	Attachments []Attachment
}

// Attachment is a decoded MIME attachment.
type Attachment struct {
	Filename string
	Data     []byte
}

// Parse decodes raw into headers, the first text/plain and text/html bodies
// and the attachment list. Part content is transfer-decoded by the reader;
// unknown charsets are tolerated and left undecoded.
func Parse(raw []byte) (*Message, error) {
	ent, err := gomessage.Read(bytes.NewReader(raw))
	if err != nil && !gomessage.IsUnknownCharset(err) {
		return nil, fmt.Errorf("reading message: %w", err)
	}

	msg := &Message{
		Subject: ent.Header.Get("Subject"),
		From:    bareAddress(ent.Header.Get("From")),
		To:      bareAddress(ent.Header.Get("To")),
		Date:    ent.Header.Get("Date"),
	}
	w := &walker{msg: msg}
	if err := w.walk(ent); err != nil {
		return nil, err
	}
	return msg, nil
}

// walker visits the MIME tree depth-first, filling the first text/plain and
// text/html leaves and collecting attachments in encounter order.
type walker struct {
	msg      *Message
	plainSet bool
	htmlSet  bool
}

func (w *walker) walk(ent *gomessage.Entity) error {
	mr := ent.MultipartReader()
	if mr == nil {
		return w.leaf(ent)
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil && !gomessage.IsUnknownCharset(err) {
			return fmt.Errorf("reading part: %w", err)
		}
		if err := w.walk(part); err != nil {
			return err
		}
	}
}

func (w *walker) leaf(ent *gomessage.Entity) error {
	disposition := ent.Header.Get("Content-Disposition")
	if isAttachment(disposition) {
		data, err := io.ReadAll(ent.Body)
		if err != nil {
			return fmt.Errorf("reading attachment: %w", err)
		}
		w.msg.Attachments = append(w.msg.Attachments, Attachment{
			Filename: attachmentName(ent.Header, disposition),
			Data:     data,
		})
		return nil
	}

	mediaType, _, err := ent.Header.ContentType()
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(ent.Header.Get("Content-Type")))
	}
	switch {
	case strings.HasPrefix(mediaType, "text/plain") && !w.plainSet:
		body, err := io.ReadAll(ent.Body)
		if err != nil {
			return fmt.Errorf("reading text part: %w", err)
		}
		w.msg.BodyPlain = string(body)
		w.plainSet = true
	case strings.HasPrefix(mediaType, "text/html") && !w.htmlSet:
		body, err := io.ReadAll(ent.Body)
		if err != nil {
			return fmt.Errorf("reading html part: %w", err)
		}
		w.msg.BodyHTML = string(body)
		w.htmlSet = true
	}
	return nil
}

// isAttachment classifies a part from its raw Content-Disposition value: a
// disposition of attachment, or any value carrying a filename parameter.
func isAttachment(disposition string) bool {
	if disposition == "" {
		return false
	}
	lower := strings.ToLower(disposition)
	return strings.HasPrefix(lower, "attachment") || strings.Contains(lower, "filename=")
}

// attachmentName resolves an attachment's filename: a dedicated Filename
// header first, then the filename parameter of Content-Disposition, else
// unnamed_attachment.
func attachmentName(h gomessage.Header, disposition string) string {
	if name := h.Get("Filename"); name != "" {
		return name
	}
	if name := dispositionFilename(disposition); name != "" {
		return name
	}
	return "unnamed_attachment"
}

// dispositionFilename extracts the filename parameter from a raw
// Content-Disposition value, tolerating values that omit the disposition
// type itself (e.g. `filename="x.bin"`).
func dispositionFilename(disposition string) string {
	if _, params, err := mime.ParseMediaType(disposition); err == nil {
		if name := params["filename"]; name != "" {
			return name
		}
	}
	lower := strings.ToLower(disposition)
	i := strings.Index(lower, "filename=")
	if i < 0 {
		return ""
	}
	value := disposition[i+len("filename="):]
	if j := strings.IndexByte(value, ';'); j >= 0 {
		value = value[:j]
	}
	return strings.Trim(strings.TrimSpace(value), `"`)
}

// bareAddress returns the address inside the first <...> pair, or the whole
// trimmed value when no brackets are present.
func bareAddress(value string) string {
	if i := strings.IndexByte(value, '<'); i >= 0 {
		rest := value[i+1:]
		if j := strings.IndexByte(rest, '>'); j >= 0 {
			return rest[:j]
		}
	}
	return strings.TrimSpace(value)
}
