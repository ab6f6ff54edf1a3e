package memory

import (
	"context"
	"sync"

	"solana-wallet-tracker/internal/storage"
)

// WalletStore is an in-memory implementation of storage.WalletStore.
type WalletStore struct {
	mu      sync.RWMutex
	wallets []string
	saves   int
}

// NewWalletStore creates a new in-memory wallet store.
func NewWalletStore(initial ...string) *WalletStore {
	return &WalletStore{wallets: append([]string(nil), initial...)}
}

// Load returns a copy of the stored wallets, or nil if nothing was saved.
func (s *WalletStore) Load(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.wallets == nil {
		return nil, nil
	}
	return append([]string{}, s.wallets...), nil
}

// Save replaces the stored wallets.
func (s *WalletStore) Save(_ context.Context, wallets []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wallets = append([]string{}, wallets...)
	s.saves++
	return nil
}

// Saves returns how many times Save was called.
func (s *WalletStore) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}

// Verify interface compliance at compile time.
var _ storage.WalletStore = (*WalletStore)(nil)
