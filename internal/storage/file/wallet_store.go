package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"solana-wallet-tracker/internal/storage"
)

// WalletStore persists the watched wallet list as a JSON array.
type WalletStore struct {
	mu   sync.Mutex
	path string
}

// NewWalletStore creates a WalletStore writing to dir/wallets.json.
func NewWalletStore(dir string) (*WalletStore, error) {
	if err := ensureDir(dir); err != nil {
		return nil, err
	}
	return &WalletStore{path: filepath.Join(dir, WalletsFile)}, nil
}

// Compile-time interface check.
var _ storage.WalletStore = (*WalletStore)(nil)

// Load returns the persisted list, or nil when the file does not exist yet.
func (s *WalletStore) Load(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}

	var wallets []string
	if err := json.Unmarshal(data, &wallets); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	return wallets, nil
}

// Save atomically replaces the persisted list.
func (s *WalletStore) Save(_ context.Context, wallets []string) error {
	if wallets == nil {
		wallets = []string{}
	}
	data, err := json.MarshalIndent(wallets, "", "  ")
	if err != nil {
		return fmt.Errorf("encode wallets: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := writeFileAtomic(s.path, data, 0o644); err != nil {
		return fmt.Errorf("save %s: %w", s.path, err)
	}
	return nil
}
