package postgres

import (
	"context"
	"fmt"

	"solana-wallet-tracker/internal/storage"
)

// SeenStore implements storage.SeenStore using PostgreSQL. The seen set only
// grows, so Save inserts the snapshot and ignores rows already present.
type SeenStore struct {
	pool *Pool
}

// NewSeenStore creates a new SeenStore.
func NewSeenStore(pool *Pool) *SeenStore {
	return &SeenStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SeenStore = (*SeenStore)(nil)

// Load returns every seen signature grouped by wallet.
func (s *SeenStore) Load(ctx context.Context) (map[string][]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT wallet, signature FROM seen_signatures
		ORDER BY wallet, signature
	`)
	if err != nil {
		return nil, fmt.Errorf("query seen signatures: %w", err)
	}
	defer rows.Close()

	seen := make(map[string][]string)
	for rows.Next() {
		var wallet, sig string
		if err := rows.Scan(&wallet, &sig); err != nil {
			return nil, fmt.Errorf("scan seen signature: %w", err)
		}
		seen[wallet] = append(seen[wallet], sig)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate seen signatures: %w", err)
	}
	return seen, nil
}

// Save writes the snapshot in one statement.
func (s *SeenStore) Save(ctx context.Context, seen map[string][]string) error {
	var wallets, sigs []string
	for wallet, list := range seen {
		for _, sig := range list {
			wallets = append(wallets, wallet)
			sigs = append(sigs, sig)
		}
	}
	if len(sigs) == 0 {
		return nil
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO seen_signatures (wallet, signature)
		SELECT * FROM unnest($1::text[], $2::text[])
		ON CONFLICT (wallet, signature) DO NOTHING
	`, wallets, sigs)
	if err != nil {
		return fmt.Errorf("insert seen signatures: %w", err)
	}
	return nil
}
