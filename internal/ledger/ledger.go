// Package ledger is the source of truth for processed signatures and
// committed events.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"solana-wallet-tracker/internal/domain"
	"solana-wallet-tracker/internal/observability"
	"solana-wallet-tracker/internal/storage"
)

// CommitResult is the outcome of committing one event.
type CommitResult int

const (
	// CommittedNew means the event was appended.
	CommittedNew CommitResult = iota
	// AlreadyExists means an event with the same key was already stored.
	AlreadyExists
)

func (r CommitResult) String() string {
	switch r {
	case CommittedNew:
		return "committed_new"
	case AlreadyExists:
		return "already_exists"
	}
	return fmt.Sprintf("CommitResult(%d)", int(r))
}

// Ledger combines the event store with the in-memory seen set and its
// persisted snapshot.
type Ledger struct {
	events storage.EventStore
	store  storage.SeenStore
	logger *zap.Logger

	mu    sync.RWMutex
	seen  map[string]map[string]struct{}
	dirty bool
}

// Open loads the persisted seen set.
func Open(ctx context.Context, events storage.EventStore, seen storage.SeenStore, logger *zap.Logger) (*Ledger, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	snapshot, err := seen.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load seen set: %w", err)
	}

	l := &Ledger{
		events: events,
		store:  seen,
		logger: logger,
		seen:   make(map[string]map[string]struct{}, len(snapshot)),
	}
	total := 0
	for wallet, sigs := range snapshot {
		set := make(map[string]struct{}, len(sigs))
		for _, sig := range sigs {
			set[sig] = struct{}{}
		}
		l.seen[wallet] = set
		total += len(set)
	}

	logger.Info("seen set loaded", zap.Int("wallets", len(l.seen)), zap.Int("signatures", total))
	return l, nil
}

// Commit appends e unless an event with the same key exists.
func (l *Ledger) Commit(ctx context.Context, e *domain.Event) (CommitResult, error) {
	err := l.events.Insert(ctx, e)
	if errors.Is(err, storage.ErrDuplicateKey) {
		observability.RecordEventDuplicate()
		return AlreadyExists, nil
	}
	if err != nil {
		return 0, fmt.Errorf("commit event %s/%s: %w", e.Signature, e.Mint, err)
	}
	observability.RecordEventCommitted(string(e.Action))
	return CommittedNew, nil
}

// CommitSignature commits every event of one signature and then marks it
// seen. It returns the events that were new. On error the signature stays
// unseen so the next cycle re-delivers it; already committed events are then
// deduplicated by key.
func (l *Ledger) CommitSignature(ctx context.Context, wallet, signature string, events []*domain.Event) ([]*domain.Event, error) {
	var fresh []*domain.Event
	for _, e := range events {
		res, err := l.Commit(ctx, e)
		if err != nil {
			return fresh, err
		}
		if res == CommittedNew {
			fresh = append(fresh, e)
		}
	}
	l.MarkSeen(wallet, signature)
	return fresh, nil
}

// MarkSeen records signature as processed for wallet.
func (l *Ledger) MarkSeen(wallet, signature string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	set, ok := l.seen[wallet]
	if !ok {
		set = make(map[string]struct{})
		l.seen[wallet] = set
	}
	if _, ok := set[signature]; ok {
		return
	}
	set[signature] = struct{}{}
	l.dirty = true
}

// IsSeen reports whether signature was processed for wallet.
func (l *Ledger) IsSeen(wallet, signature string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.seen[wallet][signature]
	return ok
}

// SeenCount returns the number of processed signatures for wallet.
func (l *Ledger) SeenCount(wallet string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.seen[wallet])
}

func (l *Ledger) snapshotLocked() map[string][]string {
	out := make(map[string][]string, len(l.seen))
	for wallet, set := range l.seen {
		sigs := make([]string, 0, len(set))
		for sig := range set {
			sigs = append(sigs, sig)
		}
		sort.Strings(sigs)
		out[wallet] = sigs
	}
	return out
}

// Persist writes a full snapshot when anything changed since the last
// successful write. On failure the in-memory set is kept and stays dirty.
func (l *Ledger) Persist(ctx context.Context) error {
	l.mu.Lock()
	if !l.dirty {
		l.mu.Unlock()
		return nil
	}
	snapshot := l.snapshotLocked()
	l.dirty = false
	l.mu.Unlock()

	if err := l.store.Save(ctx, snapshot); err != nil {
		l.mu.Lock()
		l.dirty = true
		l.mu.Unlock()
		observability.RecordSeenPersistError()
		return fmt.Errorf("persist seen set: %w", err)
	}
	return nil
}

// Events returns the underlying event store for read access.
func (l *Ledger) Events() storage.EventStore {
	return l.events
}
