package memory

import (
	"context"
	"sync"

	"solana-wallet-tracker/internal/domain"
	"solana-wallet-tracker/internal/storage"
)

// EventStore is an in-memory implementation of storage.EventStore.
type EventStore struct {
	mu   sync.RWMutex
	data []*domain.Event
	keys map[string]bool
}

// NewEventStore creates a new in-memory event store.
func NewEventStore() *EventStore {
	return &EventStore{
		data: make([]*domain.Event, 0),
		keys: make(map[string]bool),
	}
}

// Insert appends an event. Returns ErrDuplicateKey if the event key exists.
func (s *EventStore) Insert(_ context.Context, e *domain.Event) error {
	if err := e.Validate(); err != nil {
		return storage.ErrInvalidInput
	}

	key := e.Key()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.keys[key] {
		return storage.ErrDuplicateKey
	}

	// Store a copy
	copy := *e
	s.data = append(s.data, &copy)
	s.keys[key] = true

	return nil
}

// Exists reports whether an event with key is stored.
func (s *EventStore) Exists(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.keys[key], nil
}

// List returns events newest first (reverse insertion order).
func (s *EventStore) List(_ context.Context, filter storage.EventFilter) ([]*domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Event
	for i := len(s.data) - 1; i >= 0; i-- {
		e := s.data[i]
		if filter.Wallet != "" && e.Wallet != filter.Wallet {
			continue
		}
		copy := *e
		result = append(result, &copy)
		if filter.Limit > 0 && len(result) >= filter.Limit {
			break
		}
	}

	return result, nil
}

// Len returns the number of stored events.
func (s *EventStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Verify interface compliance at compile time.
var _ storage.EventStore = (*EventStore)(nil)
