// Package mime assembles RFC 5322 messages for submission through the Gmail
// API: a single text/plain part, or multipart/mixed when attachments are
// present.
package mime

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	stdmime "mime"
	"mime/multipart"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultContentType is used for attachments that do not name one.
const DefaultContentType = "application/octet-stream"

const lineLength = 76

// ErrInvalidAttachment reports attachment content that is not base64.
var ErrInvalidAttachment = errors.New("attachment content is not valid base64")

// Attachment carries base64 content exactly as received from the caller.
type Attachment struct {
	Filename    string
	ContentType string
	Content     string
}

// Envelope is a message ready for assembly. Addresses are already
// formatted.
type Envelope struct {
	To          []string
	Cc          []string
	Bcc         []string
	Subject     string
	Body        string
	Attachments []Attachment
}

var newBoundary = func() string {
	return fmt.Sprintf("----=_Part_%d_%s", time.Now().UnixNano(), strings.ReplaceAll(uuid.NewString(), "-", ""))
}

// Build renders env with CRLF line endings.
func Build(env *Envelope) ([]byte, error) {
	parts := make([]preparedAttachment, 0, len(env.Attachments))
	for _, a := range env.Attachments {
		p, err := prepare(a)
		if err != nil {
			return nil, err
		}
		parts = append(parts, p)
	}

	var buf bytes.Buffer
	writeHeader(&buf, "To", strings.Join(env.To, ", "))
	writeHeader(&buf, "Subject", stdmime.QEncoding.Encode("utf-8", clean(env.Subject)))
	if len(env.Cc) > 0 {
		writeHeader(&buf, "Cc", strings.Join(env.Cc, ", "))
	}
	if len(env.Bcc) > 0 {
		writeHeader(&buf, "Bcc", strings.Join(env.Bcc, ", "))
	}
	writeHeader(&buf, "MIME-Version", "1.0")

	if len(parts) == 0 {
		writeHeader(&buf, "Content-Type", "text/plain; charset=utf-8")
		buf.WriteString("\r\n")
		buf.WriteString(env.Body)
		return buf.Bytes(), nil
	}

	w := multipart.NewWriter(&buf)
	if err := w.SetBoundary(newBoundary()); err != nil {
		return nil, fmt.Errorf("w.SetBoundary failed: %w", err)
	}
	writeHeader(&buf, "Content-Type", fmt.Sprintf("multipart/mixed; boundary=%q", w.Boundary()))
	buf.WriteString("\r\n")

	text, err := w.CreatePart(textproto.MIMEHeader{"Content-Type": {"text/plain; charset=utf-8"}})
	if err != nil {
		return nil, fmt.Errorf("failed to create body part: %w", err)
	}
	if _, err := text.Write([]byte(env.Body)); err != nil {
		return nil, fmt.Errorf("failed to write body part: %w", err)
	}

	for _, p := range parts {
		part, err := w.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {fmt.Sprintf("%s; name=%q", p.contentType, p.filename)},
			"Content-Disposition":       {fmt.Sprintf("attachment; filename=%q", p.filename)},
			"Content-Transfer-Encoding": {"base64"},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create attachment part: %w", err)
		}
		if _, err := part.Write([]byte(p.payload)); err != nil {
			return nil, fmt.Errorf("failed to write attachment part: %w", err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("w.Close failed: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeRaw encodes an assembled message for the Gmail raw field.
func EncodeRaw(msg []byte) string {
	return base64.RawURLEncoding.EncodeToString(msg)
}

type preparedAttachment struct {
	filename    string
	contentType string
	payload     string
}

func prepare(a Attachment) (preparedAttachment, error) {
	data, err := DecodeContent(a.Content)
	if err != nil {
		return preparedAttachment{}, fmt.Errorf("%s: %w", a.Filename, err)
	}

	contentType := clean(a.ContentType)
	if contentType == "" {
		contentType = DefaultContentType
	}

	return preparedAttachment{
		filename:    stdmime.QEncoding.Encode("utf-8", strings.ReplaceAll(clean(a.Filename), `"`, "'")),
		contentType: contentType,
		payload:     wrap(base64.StdEncoding.EncodeToString(data), lineLength),
	}, nil
}

// DecodeContent decodes attachment content. Whitespace and a leading data
// URL prefix are ignored; the URL-safe alphabet and missing padding are
// accepted.
func DecodeContent(content string) ([]byte, error) {
	s := strings.Join(strings.Fields(content), "")
	if strings.HasPrefix(s, "data:") {
		if i := strings.Index(s, ";base64,"); i >= 0 {
			s = s[i+len(";base64,"):]
		}
	}
	if s == "" {
		return nil, ErrInvalidAttachment
	}

	s = strings.TrimRight(s, "=")
	if strings.ContainsAny(s, "-_") {
		if data, err := base64.RawURLEncoding.DecodeString(s); err == nil {
			return data, nil
		}
		return nil, ErrInvalidAttachment
	}
	data, err := base64.RawStdEncoding.DecodeString(s)
	if err != nil {
		return nil, ErrInvalidAttachment
	}
	return data, nil
}

func wrap(s string, n int) string {
	var sb strings.Builder
	for len(s) > n {
		sb.WriteString(s[:n])
		sb.WriteString("\r\n")
		s = s[n:]
	}
	sb.WriteString(s)
	return sb.String()
}

func writeHeader(buf *bytes.Buffer, name, value string) {
	buf.WriteString(name)
	buf.WriteString(": ")
	buf.WriteString(clean(value))
	buf.WriteString("\r\n")
}

// clean strips line breaks so a value cannot start a new header.
func clean(s string) string {
	return strings.TrimSpace(strings.NewReplacer("\r", " ", "\n", " ").Replace(s))
}
