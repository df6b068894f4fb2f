// Package stdout implements a Store that prints captured messages to standard output.
package stdout

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/shineum/haxmail/internal/mail"
)

// Store prints messages in a human-readable format. It is not safe for
// concurrent use; wrap it with store.Serialized.
type Store struct {
	// writer is the output destination, defaulting to os.Stdout.
	writer io.Writer
}

// New creates a new stdout Store that writes to os.Stdout.
func New() *Store {
	return &Store{writer: os.Stdout}
}

// NewWithWriter creates a new stdout Store that writes to the given writer.
func NewWithWriter(w io.Writer) *Store {
	return &Store{writer: w}
}

// Store prints the record. Write failures are returned to the caller.
func (s *Store) Store(_ context.Context, rec *mail.Record) error {
	var b strings.Builder

	b.WriteString("========================================\n")
	b.WriteString(fmt.Sprintf("ID: %s\n", rec.ID))
	b.WriteString(fmt.Sprintf("Received: %s\n", rec.ReceivedAt.UTC().Format(time.RFC3339)))
	b.WriteString(fmt.Sprintf("From: %s\n", rec.Message.Sender))
	b.WriteString(fmt.Sprintf("To: %s\n", strings.Join(rec.Message.Recipients, ", ")))

	if rec.Summary.Subject != "" {
		b.WriteString(fmt.Sprintf("Subject: %s\n", rec.Summary.Subject))
	}
	if rec.Partial {
		b.WriteString("Partial: connection closed before end of data\n")
	}

	b.WriteString(fmt.Sprintf("Data (%s):\n", formatSize(len(rec.Message.Body))))
	b.WriteString(rec.Message.Body + "\n")
	b.WriteString("========================================\n")

	if _, err := io.WriteString(s.writer, b.String()); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// Name returns the backend name.
func (s *Store) Name() string {
	return "stdout"
}

// formatSize formats a byte count into a human-readable string.
func formatSize(bytes int) string {
	const (
		kb = 1024
		mb = kb * 1024
	)

	switch {
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
