package storage

import (
	"context"

	"solana-wallet-tracker/internal/domain"
)

// WalletStore persists the watched wallet list.
type WalletStore interface {
	// Load returns the persisted wallets in registration order. It returns
	// nil when no list was ever saved and a non-nil empty slice when the
	// saved list is empty.
	Load(ctx context.Context) ([]string, error)

	// Save replaces the persisted list. Must be durable when it returns nil.
	Save(ctx context.Context, wallets []string) error
}

// SeenStore persists the per-wallet set of processed signatures.
type SeenStore interface {
	// Load returns wallet -> signatures. Order of signatures is not significant.
	Load(ctx context.Context) (map[string][]string, error)

	// Save writes a full snapshot. A failed Save must leave the previous snapshot readable.
	Save(ctx context.Context, seen map[string][]string) error
}

// EventFilter narrows event listings.
type EventFilter struct {
	Wallet string // empty = all wallets
	Limit  int    // <= 0 = no limit
}

// EventStore provides access to the append-only event log.
type EventStore interface {
	// Insert appends an event. Returns ErrDuplicateKey if an event with the
	// same key (signature, mint, action, amount) exists.
	Insert(ctx context.Context, e *domain.Event) error

	// Exists reports whether an event with the given key is stored.
	Exists(ctx context.Context, key string) (bool, error)

	// List returns events newest first.
	List(ctx context.Context, filter EventFilter) ([]*domain.Event, error)
}
