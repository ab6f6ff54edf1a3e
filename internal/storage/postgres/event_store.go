package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"solana-wallet-tracker/internal/domain"
	"solana-wallet-tracker/internal/storage"
)

// EventStore implements storage.EventStore using PostgreSQL.
type EventStore struct {
	pool *Pool
}

// NewEventStore creates a new EventStore.
func NewEventStore(pool *Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Compile-time interface check.
var _ storage.EventStore = (*EventStore)(nil)

// Insert adds a new event. Returns ErrDuplicateKey if event_id exists.
func (s *EventStore) Insert(ctx context.Context, e *domain.Event) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	query := `
		INSERT INTO wallet_events (
			event_id, wallet, signature, mint, action, amount, fee, occurred_at, block_time
		) VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8, $9)
	`

	_, err := s.pool.Exec(ctx, query,
		e.Key(),
		e.Wallet,
		e.Signature,
		e.Mint,
		string(e.Action),
		e.Amount.String(),
		e.Fee.String(),
		e.OccurredAt.UTC(),
		e.BlockTime,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert wallet event: %w", err)
	}
	return nil
}

// Exists reports whether an event with the given key is stored.
func (s *EventStore) Exists(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM wallet_events WHERE event_id = $1)`, key).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check wallet event: %w", err)
	}
	return exists, nil
}

// List returns events newest first.
func (s *EventStore) List(ctx context.Context, filter storage.EventFilter) ([]*domain.Event, error) {
	query := `
		SELECT wallet, signature, mint, action, amount::text, fee::text, occurred_at, block_time
		FROM wallet_events
		WHERE ($1::text = '' OR wallet = $1::text)
		ORDER BY id DESC
	`
	args := []any{filter.Wallet}
	if filter.Limit > 0 {
		query += ` LIMIT $2`
		args = append(args, filter.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query wallet events: %w", err)
	}
	defer rows.Close()

	var events []*domain.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate wallet events: %w", err)
	}
	return events, nil
}

func scanEvent(row pgx.Row) (*domain.Event, error) {
	var (
		e           domain.Event
		action      string
		amount, fee string
		blockTime   *time.Time
	)
	if err := row.Scan(&e.Wallet, &e.Signature, &e.Mint, &action, &amount, &fee, &e.OccurredAt, &blockTime); err != nil {
		return nil, fmt.Errorf("scan wallet event: %w", err)
	}

	var err error
	if e.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	if e.Fee, err = decimal.NewFromString(fee); err != nil {
		return nil, fmt.Errorf("parse fee %q: %w", fee, err)
	}
	e.Action = domain.Action(action)
	e.OccurredAt = e.OccurredAt.UTC()
	if blockTime != nil {
		bt := blockTime.UTC()
		e.BlockTime = &bt
	}
	return &e, nil
}
