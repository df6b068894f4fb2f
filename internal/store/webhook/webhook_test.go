package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shineum/haxmail/internal/mail"
)

func testRecord() *mail.Record {
	rec := mail.NewRecord(mail.Message{
		Sender:     "<a@x.com>",
		Recipients: []string{"<b@y.com>", "<c@y.com>"},
		Body:       "Subject: hi\n\nhello",
	}, time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC), false)
	rec.Summary.Subject = "hi"
	return rec
}

func TestBuildPayload(t *testing.T) {
	t.Parallel()

	rec := testRecord()
	p := buildPayload(rec)

	if p.ID != rec.ID.String() {
		t.Errorf("ID: got %q, want %q", p.ID, rec.ID.String())
	}
	if p.Sender != "<a@x.com>" {
		t.Errorf("Sender: got %q", p.Sender)
	}
	if len(p.Recipients) != 2 || p.Recipients[1] != "<c@y.com>" {
		t.Errorf("Recipients: got %v", p.Recipients)
	}
	if p.Subject != "hi" {
		t.Errorf("Subject: got %q", p.Subject)
	}
	if p.Body != "Subject: hi\n\nhello" {
		t.Errorf("Body: got %q", p.Body)
	}
}

func TestBuildPayload_JSONMarshaling(t *testing.T) {
	t.Parallel()

	rec := testRecord()
	rec.Message.Recipients = nil
	rec.Summary = mail.Summary{}

	data, err := json.Marshal(buildPayload(rec))
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if _, ok := raw["subject"]; ok {
		t.Error("empty subject should be omitted")
	}
	if r, ok := raw["recipients"].([]any); !ok || len(r) != 0 {
		t.Errorf("recipients should be an empty array, got %v", raw["recipients"])
	}
	if raw["received_at"] != "2026-02-03T04:05:06Z" {
		t.Errorf("received_at: got %v", raw["received_at"])
	}
}

func TestStore_Name(t *testing.T) {
	t.Parallel()

	if got := New(Config{URL: "http://example.invalid"}).Name(); got != "webhook" {
		t.Errorf("Name(): got %q, want %q", got, "webhook")
	}
}

func TestStore_PostsRecord(t *testing.T) {
	t.Parallel()

	rec := testRecord()
	var got payload

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method: got %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type: got %q", ct)
		}
		if key := r.Header.Get("Idempotency-Key"); key != rec.ID.String() {
			t.Errorf("Idempotency-Key: got %q", key)
		}
		if auth := r.Header.Get("Authorization"); auth != "" {
			t.Errorf("Authorization should be empty without token config, got %q", auth)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("bad JSON: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	s := NewWithClient(Config{URL: server.URL}, server.Client())
	if err := s.Store(context.Background(), rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got.ID != rec.ID.String() || got.Sender != "<a@x.com>" {
		t.Errorf("posted payload: got %+v", got)
	}
}

func TestStore_BearerToken(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(tokenResponse{AccessToken: "secret-token", ExpiresIn: 3600})
	})
	mux.HandleFunc("/hook", func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer secret-token" {
			t.Errorf("Authorization: got %q", auth)
		}
		w.WriteHeader(http.StatusOK)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	s := NewWithClient(Config{
		URL:          server.URL + "/hook",
		TokenURL:     server.URL + "/token",
		ClientID:     "cid",
		ClientSecret: "csecret",
	}, server.Client())

	if err := s.Store(context.Background(), testRecord()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestStore_UnauthorizedInvalidatesToken(t *testing.T) {
	t.Parallel()

	var tokenCalls, hookCalls atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls.Add(1)
		json.NewEncoder(w).Encode(tokenResponse{AccessToken: "tok", ExpiresIn: 3600})
	})
	mux.HandleFunc("/hook", func(w http.ResponseWriter, r *http.Request) {
		if hookCalls.Add(1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	s := NewWithClient(Config{URL: server.URL + "/hook", TokenURL: server.URL + "/token"}, server.Client())

	err := s.Store(context.Background(), testRecord())
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("first store: got %v, want 401 StatusError", err)
	}
	if got := hookCalls.Load(); got != 1 {
		t.Errorf("hook calls after 401: got %d, want 1 (no retry)", got)
	}

	if err := s.Store(context.Background(), testRecord()); err != nil {
		t.Fatalf("second store: unexpected error: %v", err)
	}
	if got := tokenCalls.Load(); got != 2 {
		t.Errorf("token calls: got %d, want 2", got)
	}
}

func TestStore_ServerError(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("down for maintenance"))
	}))
	defer server.Close()

	s := NewWithClient(Config{URL: server.URL}, server.Client())

	err := s.Store(context.Background(), testRecord())
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected *StatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("StatusCode: got %d", statusErr.StatusCode)
	}
	if statusErr.Body != "down for maintenance" {
		t.Errorf("Body: got %q", statusErr.Body)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("calls: got %d, want 1", got)
	}
}

func TestStore_ContextCancellation(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewWithClient(Config{URL: server.URL}, server.Client())
	if err := s.Store(ctx, testRecord()); err == nil {
		t.Fatal("expected error with cancelled context")
	}
}

func TestStatusError_Error(t *testing.T) {
	t.Parallel()

	err := &StatusError{StatusCode: 500, Body: "boom"}
	if got := err.Error(); got != "webhook returned HTTP 500: boom" {
		t.Errorf("Error(): got %q", got)
	}
}
