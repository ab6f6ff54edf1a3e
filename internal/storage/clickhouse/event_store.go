package clickhouse

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"solana-wallet-tracker/internal/domain"
	"solana-wallet-tracker/internal/storage"
)

// EventStore implements storage.EventStore using ClickHouse. MergeTree does
// not enforce uniqueness, so Insert checks for the key first; the mutex
// closes the check-then-insert window within one process.
type EventStore struct {
	conn *Conn
	mu   sync.Mutex
}

// NewEventStore creates a new EventStore.
func NewEventStore(conn *Conn) *EventStore {
	return &EventStore{conn: conn}
}

// Compile-time interface check.
var _ storage.EventStore = (*EventStore)(nil)

// Insert adds an event. Returns ErrDuplicateKey if its key already exists.
func (s *EventStore) Insert(ctx context.Context, e *domain.Event) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}
	key := e.Key()

	s.mu.Lock()
	defer s.mu.Unlock()

	exists, err := s.Exists(ctx, key)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO wallet_events (
			event_id, wallet, signature, mint, action, amount, fee, occurred_at, block_time
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	var blockTime *time.Time
	if e.BlockTime != nil {
		bt := e.BlockTime.UTC()
		blockTime = &bt
	}

	err = batch.Append(
		key, e.Wallet, e.Signature, e.Mint, string(e.Action),
		e.Amount.String(), e.Fee.String(), e.OccurredAt.UTC(), blockTime,
	)
	if err != nil {
		return fmt.Errorf("append to batch: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// Exists reports whether an event with the given key is stored.
func (s *EventStore) Exists(ctx context.Context, key string) (bool, error) {
	var count uint64
	err := s.conn.QueryRow(ctx, `SELECT count(*) FROM wallet_events WHERE event_id = ?`, key).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// List returns events newest first by occurrence time.
func (s *EventStore) List(ctx context.Context, filter storage.EventFilter) ([]*domain.Event, error) {
	query := `
		SELECT wallet, signature, mint, action, amount, fee, occurred_at, block_time
		FROM wallet_events FINAL
		WHERE (? = '' OR wallet = ?)
		ORDER BY occurred_at DESC, inserted_at DESC
	`
	args := []any{filter.Wallet, filter.Wallet}
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, uint64(filter.Limit))
	}

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query wallet events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// chRows is the subset of driver.Rows used for scanning.
type chRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanEvents(rows chRows) ([]*domain.Event, error) {
	var events []*domain.Event

	for rows.Next() {
		var (
			e           domain.Event
			action      string
			amount, fee string
			blockTime   *time.Time
		)
		if err := rows.Scan(&e.Wallet, &e.Signature, &e.Mint, &action, &amount, &fee, &e.OccurredAt, &blockTime); err != nil {
			return nil, fmt.Errorf("scan wallet event row: %w", err)
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
		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate wallet event rows: %w", err)
	}
	return events, nil
}
