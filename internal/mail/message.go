// Package mail defines the captured message model shared by the SMTP
// session, the header parser and the storage backends.
package mail

import (
	"time"

	"github.com/google/uuid"
)

// Message is a single mail transaction as assembled by an SMTP session:
// the envelope sender, the envelope recipients in the order they were
// given, and the body text without the terminating dot line.
type Message struct {
	Sender     string
	Recipients []string
	Body       string
}

// Clone returns a copy of m that shares no mutable state with it.
func (m Message) Clone() Message {
	c := m
	if m.Recipients != nil {
		c.Recipients = make([]string, len(m.Recipients))
		copy(c.Recipients, m.Recipients)
	}
	return c
}

// Summary holds header fields extracted from a captured body.
// All fields are empty when the body carries no parseable headers.
type Summary struct {
	Subject     string
	From        string
	MessageID   string
	ContentType string
	TextBody    string
}

// Record is the unit handed to a storage backend.
type Record struct {
	ID         uuid.UUID
	ReceivedAt time.Time

	// Partial is set when the peer disconnected before the body was terminated.
	Partial bool

	Summary Summary
	Message Message
}

// NewRecord wraps msg for storage. The capture time is supplied by the
// caller at handoff.
func NewRecord(msg Message, receivedAt time.Time, partial bool) *Record {
	return &Record{
		ID:         uuid.New(),
		ReceivedAt: receivedAt,
		Partial:    partial,
		Message:    msg.Clone(),
	}
}
