package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"solana-wallet-tracker/internal/storage"
)

// SeenStore persists the seen set as a JSON object of wallet to sorted
// signature list.
type SeenStore struct {
	mu   sync.Mutex
	path string
}

// NewSeenStore creates a SeenStore writing to dir/seen_signatures.json.
func NewSeenStore(dir string) (*SeenStore, error) {
	if err := ensureDir(dir); err != nil {
		return nil, err
	}
	return &SeenStore{path: filepath.Join(dir, SeenFile)}, nil
}

// Compile-time interface check.
var _ storage.SeenStore = (*SeenStore)(nil)

// Load returns the persisted seen set. A missing file is an empty set.
func (s *SeenStore) Load(_ context.Context) (map[string][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string][]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}

	seen := make(map[string][]string)
	if err := json.Unmarshal(data, &seen); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	return seen, nil
}

// Save atomically writes the full snapshot. Signatures are sorted so the
// file is stable between runs.
func (s *SeenStore) Save(_ context.Context, seen map[string][]string) error {
	out := make(map[string][]string, len(seen))
	for wallet, sigs := range seen {
		sorted := append([]string{}, sigs...)
		sort.Strings(sorted)
		out[wallet] = sorted
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("encode seen set: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := writeFileAtomic(s.path, data, 0o644); err != nil {
		return fmt.Errorf("save %s: %w", s.path, err)
	}
	return nil
}
