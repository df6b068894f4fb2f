// Package store defines the interface for backends that persist captured
// messages.
package store

import (
	"context"
	"sync"

	"github.com/shineum/haxmail/internal/mail"
)

// Store is the interface that persistence backends must implement.
// Implementations are called from many connection goroutines at once
// unless wrapped with Serialized.
type Store interface {
	// Store durably records one captured message.
	Store(ctx context.Context, rec *mail.Record) error

	// Name returns the human-readable name of this backend.
	Name() string
}

// Serialized wraps s so that at most one Store call runs at a time.
func Serialized(s Store) Store {
	return &serialized{next: s}
}

type serialized struct {
	mu   sync.Mutex
	next Store
}

func (s *serialized) Store(ctx context.Context, rec *mail.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next.Store(ctx, rec)
}

func (s *serialized) Name() string {
	return s.next.Name()
}
