package memory

import (
	"context"
	"sync"

	"solana-wallet-tracker/internal/storage"
)

// SeenStore is an in-memory implementation of storage.SeenStore.
type SeenStore struct {
	mu    sync.RWMutex
	data  map[string][]string
	saves int
}

// NewSeenStore creates a new in-memory seen store.
func NewSeenStore() *SeenStore {
	return &SeenStore{data: make(map[string][]string)}
}

// Load returns a deep copy of the last snapshot.
func (s *SeenStore) Load(_ context.Context) (map[string][]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copySeen(s.data), nil
}

// Save replaces the snapshot.
func (s *SeenStore) Save(_ context.Context, seen map[string][]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = copySeen(seen)
	s.saves++
	return nil
}

// Saves returns how many snapshots were written.
func (s *SeenStore) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}

func copySeen(in map[string][]string) map[string][]string {
	out := make(map[string][]string, len(in))
	for wallet, sigs := range in {
		out[wallet] = append([]string(nil), sigs...)
	}
	return out
}

// Verify interface compliance at compile time.
var _ storage.SeenStore = (*SeenStore)(nil)
