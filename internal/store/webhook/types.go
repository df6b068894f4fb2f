package webhook

import (
	"time"

	"github.com/shineum/haxmail/internal/mail"
)

// payload is the JSON document posted for each captured message.
type payload struct {
	ID         string    `json:"id"`
	ReceivedAt time.Time `json:"received_at"`
	Sender     string    `json:"sender"`
	Recipients []string  `json:"recipients"`
	Subject    string    `json:"subject,omitempty"`
	MessageID  string    `json:"message_id,omitempty"`
	Body       string    `json:"body"`
	Partial    bool      `json:"partial"`
}

// tokenResponse is the OAuth2 token endpoint response.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// buildPayload converts a record into the posted document.
func buildPayload(rec *mail.Record) payload {
	recipients := rec.Message.Recipients
	if recipients == nil {
		recipients = []string{}
	}
	return payload{
		ID:         rec.ID.String(),
		ReceivedAt: rec.ReceivedAt.UTC(),
		Sender:     rec.Message.Sender,
		Recipients: recipients,
		Subject:    rec.Summary.Subject,
		MessageID:  rec.Summary.MessageID,
		Body:       rec.Message.Body,
		Partial:    rec.Partial,
	}
}
