package migrations

import (
	"context"
	"fmt"

	"solana-wallet-tracker/internal/storage/postgres"
)

// RunPostgresMigrations applies all embedded SQL files in lexical order.
// Every migration is idempotent, so this runs on each startup.
func RunPostgresMigrations(ctx context.Context, pool *postgres.Pool) error {
	files, err := readMigrations(PostgresFS, "postgres")
	if err != nil {
		return err
	}

	for _, m := range files {
		if _, err := pool.Exec(ctx, m.sql); err != nil {
			return fmt.Errorf("apply migration %s: %w", m.name, err)
		}
	}
	return nil
}
