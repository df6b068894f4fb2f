// Package webhook implements a Store that posts captured messages as JSON
// to an HTTP endpoint, optionally authenticated with an OAuth2
// client-credentials bearer token.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shineum/haxmail/internal/mail"
)

// defaultTimeout bounds a single POST including the token request.
const defaultTimeout = 30 * time.Second

// maxErrorBody caps how much of an error response is kept for the error message.
const maxErrorBody = 4096

// Config holds the configuration for creating a webhook Store.
type Config struct {
	URL string

	// TokenURL enables bearer authentication when set, together with
	// ClientID and ClientSecret.
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scope        string

	Timeout time.Duration
}

// Store posts one JSON document per message. Any 2xx status is success.
type Store struct {
	url        string
	httpClient *http.Client
	token      *tokenCache
}

// New creates a webhook Store.
func New(cfg Config) *Store {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return NewWithClient(cfg, &http.Client{Timeout: timeout})
}

// NewWithClient creates a webhook Store using the given HTTP client.
func NewWithClient(cfg Config, client *http.Client) *Store {
	s := &Store{
		url:        cfg.URL,
		httpClient: client,
	}
	if cfg.TokenURL != "" {
		s.token = newTokenCache(cfg.TokenURL, cfg.ClientID, cfg.ClientSecret, cfg.Scope, client)
	}
	return s
}

// Store posts the record. A single attempt is made; a 401 response drops
// the cached token so that the next message authenticates afresh.
func (s *Store) Store(ctx context.Context, rec *mail.Record) error {
	body, err := json.Marshal(buildPayload(rec))
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", rec.ID.String())

	if s.token != nil {
		token, err := s.token.Token(ctx)
		if err != nil {
			return fmt.Errorf("failed to get access token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	if resp.StatusCode == http.StatusUnauthorized && s.token != nil {
		s.token.Invalidate()
	}

	msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{StatusCode: resp.StatusCode, Body: string(msg)}
}

// Name returns the backend name.
func (s *Store) Name() string {
	return "webhook"
}

// StatusError is returned when the endpoint answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webhook returned HTTP %d: %s", e.StatusCode, e.Body)
}
