package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"solana-wallet-tracker/internal/storage"
)

// WalletStore implements storage.WalletStore using PostgreSQL.
type WalletStore struct {
	pool *Pool
}

// NewWalletStore creates a new WalletStore.
func NewWalletStore(pool *Pool) *WalletStore {
	return &WalletStore{pool: pool}
}

// Compile-time interface check.
var _ storage.WalletStore = (*WalletStore)(nil)

// Load returns the registered wallets in insertion order. It returns nil
// when no list was ever saved and an empty slice when the saved list is empty.
func (s *WalletStore) Load(ctx context.Context) ([]string, error) {
	var saved bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM wallet_registry_state)`).Scan(&saved)
	if err != nil {
		return nil, fmt.Errorf("query wallet registry state: %w", err)
	}
	if !saved {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx, `SELECT address FROM watched_wallets ORDER BY position ASC`)
	if err != nil {
		return nil, fmt.Errorf("query watched wallets: %w", err)
	}

	wallets, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan watched wallets: %w", err)
	}
	if wallets == nil {
		wallets = []string{}
	}
	return wallets, nil
}

// Save replaces the registered wallet list in one transaction.
func (s *WalletStore) Save(ctx context.Context, wallets []string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM watched_wallets`); err != nil {
		return fmt.Errorf("clear watched wallets: %w", err)
	}

	positions := make([]int32, len(wallets))
	for i := range wallets {
		positions[i] = int32(i)
	}
	if len(wallets) > 0 {
		_, err = tx.Exec(ctx, `
			INSERT INTO watched_wallets (address, position)
			SELECT * FROM unnest($1::text[], $2::int[])
		`, wallets, positions)
		if err != nil {
			if isDuplicateKeyError(err) {
				return fmt.Errorf("save watched wallets: %w", storage.ErrDuplicateKey)
			}
			return fmt.Errorf("insert watched wallets: %w", err)
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO wallet_registry_state (id, saved_at) VALUES (TRUE, now())
		ON CONFLICT (id) DO UPDATE SET saved_at = EXCLUDED.saved_at
	`)
	if err != nil {
		return fmt.Errorf("mark wallet registry saved: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
