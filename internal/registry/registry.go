// Package registry holds the set of watched wallet addresses.
package registry

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"solana-wallet-tracker/internal/domain"
	"solana-wallet-tracker/internal/observability"
	"solana-wallet-tracker/internal/storage"
)

var (
	// ErrAlreadyExists is returned when adding a wallet that is registered.
	ErrAlreadyExists = errors.New("wallet already registered")
	// ErrNotFound is returned when removing a wallet that is not registered.
	ErrNotFound = errors.New("wallet not registered")
)

// Registry is the watched wallet set. Readers get an immutable snapshot;
// writers are serialized and persist before the new snapshot is published.
type Registry struct {
	mu       sync.Mutex
	snapshot atomic.Pointer[[]string]
	store    storage.WalletStore
	logger   *zap.Logger
}

// Open loads the persisted wallet list. When nothing was persisted, the valid
// seed addresses are registered and saved; invalid seeds are logged and
// skipped.
func Open(ctx context.Context, store storage.WalletStore, seed []string, logger *zap.Logger) (*Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{store: store, logger: logger}

	persisted, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load wallets: %w", err)
	}

	if persisted != nil {
		wallets := make([]string, 0, len(persisted))
		for _, w := range persisted {
			if err := domain.ValidateWalletAddress(w); err != nil {
				logger.Warn("dropping invalid persisted wallet", zap.String("wallet", w), zap.Error(err))
				continue
			}
			if !slices.Contains(wallets, w) {
				wallets = append(wallets, w)
			}
		}
		r.publish(wallets)
		return r, nil
	}

	wallets := make([]string, 0, len(seed))
	for _, w := range seed {
		if err := domain.ValidateWalletAddress(w); err != nil {
			logger.Warn("skipping invalid seed wallet", zap.String("wallet", w), zap.Error(err))
			continue
		}
		if !slices.Contains(wallets, w) {
			wallets = append(wallets, w)
		}
	}
	if err := store.Save(ctx, wallets); err != nil {
		return nil, fmt.Errorf("save seed wallets: %w", err)
	}
	logger.Info("registered seed wallets", zap.Int("count", len(wallets)))
	r.publish(wallets)
	return r, nil
}

// List returns a copy of the current wallets in insertion order.
func (r *Registry) List() []string {
	return slices.Clone(*r.snapshot.Load())
}

// Contains reports whether address is registered.
func (r *Registry) Contains(address string) bool {
	return slices.Contains(*r.snapshot.Load(), address)
}

// Len returns the number of registered wallets.
func (r *Registry) Len() int {
	return len(*r.snapshot.Load())
}

// Add validates and registers address.
func (r *Registry) Add(ctx context.Context, address string) error {
	if err := domain.ValidateWalletAddress(address); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current := *r.snapshot.Load()
	if slices.Contains(current, address) {
		return ErrAlreadyExists
	}

	next := append(slices.Clone(current), address)
	if err := r.store.Save(ctx, next); err != nil {
		return fmt.Errorf("persist wallets: %w", err)
	}
	r.publish(next)
	r.logger.Info("wallet added", zap.String("wallet", address), zap.Bool("on_curve", domain.IsOnCurve(address)))
	return nil
}

// Remove unregisters address. Past events and seen signatures are kept.
func (r *Registry) Remove(ctx context.Context, address string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := *r.snapshot.Load()
	idx := slices.Index(current, address)
	if idx < 0 {
		return ErrNotFound
	}

	next := slices.Delete(slices.Clone(current), idx, idx+1)
	if err := r.store.Save(ctx, next); err != nil {
		return fmt.Errorf("persist wallets: %w", err)
	}
	r.publish(next)
	r.logger.Info("wallet removed", zap.String("wallet", address))
	return nil
}

func (r *Registry) publish(wallets []string) {
	r.snapshot.Store(&wallets)
	observability.UpdateWatchedWallets(len(wallets))
}
