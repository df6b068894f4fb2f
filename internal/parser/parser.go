// Package parser extracts a header summary from captured message bodies.
// Captured bodies are whatever the peer sent, so a body without RFC 5322
// headers is normal and reported as an error for the caller to ignore.
package parser

import (
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	netmail "net/mail"
	"strings"

	"github.com/shineum/haxmail/internal/mail"
)

var wordDecoder = new(mime.WordDecoder)

// Summarize parses body as an RFC 5322 message and returns its subject,
// author, message ID, media type and plain-text content. Multipart messages
// contribute the first text/plain part found, searching nested parts.
func Summarize(body string) (mail.Summary, error) {
	msg, err := netmail.ReadMessage(strings.NewReader(body))
	if err != nil {
		return mail.Summary{}, fmt.Errorf("failed to parse message: %w", err)
	}

	s := mail.Summary{
		Subject:   decodeHeader(msg.Header.Get("Subject")),
		From:      parseFrom(msg.Header.Get("From")),
		MessageID: strings.TrimSpace(msg.Header.Get("Message-Id")),
	}

	contentType := msg.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "text/plain"
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		slog.Debug("failed to parse content type, treating as plain text",
			"content_type", contentType,
			"error", err,
		)
		mediaType = "text/plain"
	}
	s.ContentType = mediaType

	encoding := msg.Header.Get("Content-Transfer-Encoding")

	switch {
	case strings.HasPrefix(mediaType, "multipart/"):
		boundary := params["boundary"]
		if boundary == "" {
			return s, fmt.Errorf("multipart message missing boundary")
		}
		text, err := firstTextPart(msg.Body, boundary)
		if err != nil {
			return s, fmt.Errorf("failed to parse multipart message: %w", err)
		}
		s.TextBody = text
	case mediaType == "text/plain":
		content, err := decodeContent(msg.Body, encoding)
		if err != nil {
			return s, fmt.Errorf("failed to read message body: %w", err)
		}
		s.TextBody = string(content)
	}

	return s, nil
}

// firstTextPart returns the first text/plain part in a multipart body,
// descending into nested multiparts.
func firstTextPart(body io.Reader, boundary string) (string, error) {
	reader := multipart.NewReader(body, boundary)

	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			return "", nil
		}
		if err != nil {
			return "", fmt.Errorf("failed to read next part: %w", err)
		}

		partContentType := part.Header.Get("Content-Type")
		if partContentType == "" {
			partContentType = "text/plain"
		}

		mediaType, params, err := mime.ParseMediaType(partContentType)
		if err != nil {
			slog.Debug("failed to parse part content type, skipping",
				"content_type", partContentType,
				"error", err,
			)
			continue
		}

		if strings.HasPrefix(part.Header.Get("Content-Disposition"), "attachment") {
			continue
		}

		if strings.HasPrefix(mediaType, "multipart/") {
			nested := params["boundary"]
			if nested == "" {
				continue
			}
			text, err := firstTextPart(part, nested)
			if err != nil {
				slog.Debug("failed to parse nested multipart", "error", err)
				continue
			}
			if text != "" {
				return text, nil
			}
			continue
		}

		if mediaType != "text/plain" {
			continue
		}

		// multipart.Part already decodes quoted-printable.
		content, err := decodeContent(part, part.Header.Get("Content-Transfer-Encoding"))
		if err != nil {
			slog.Debug("failed to read part content", "error", err)
			continue
		}
		return string(content), nil
	}
}

// decodeContent reads r, undoing a base64 or quoted-printable
// Content-Transfer-Encoding.
func decodeContent(r io.Reader, encoding string) ([]byte, error) {
	encoding = strings.ToLower(strings.TrimSpace(encoding))

	if encoding == "quoted-printable" {
		return io.ReadAll(quotedprintable.NewReader(r))
	}

	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	if encoding != "base64" {
		return raw, nil
	}

	cleaned := strings.NewReplacer("\r", "", "\n", "").Replace(string(raw))
	decoded, err := base64.StdEncoding.DecodeString(cleaned)
	if err != nil {
		// Unpadded base64
		decoded, err = base64.RawStdEncoding.DecodeString(cleaned)
		if err != nil {
			return nil, fmt.Errorf("failed to decode base64 content: %w", err)
		}
	}
	return decoded, nil
}

// decodeHeader decodes RFC 2047 encoded words, returning the raw value if
// decoding fails.
func decodeHeader(v string) string {
	decoded, err := wordDecoder.DecodeHeader(v)
	if err != nil {
		return v
	}
	return decoded
}

// parseFrom returns the address of a From header, or the raw header if it
// does not parse.
func parseFrom(raw string) string {
	if raw == "" {
		return ""
	}
	addr, err := netmail.ParseAddress(raw)
	if err != nil {
		return strings.TrimSpace(raw)
	}
	return addr.Address
}
