package file

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"solana-wallet-tracker/internal/domain"
	"solana-wallet-tracker/internal/storage"
)

// eventHeader is the fixed column layout of the event log.
var eventHeader = []string{"timestamp", "wallet", "signature", "action", "mint", "amount", "fee", "block_time"}

// ErrHeaderMismatch is returned when an existing log has a different header.
var ErrHeaderMismatch = errors.New("event log header mismatch")

// EventLog is an append-only CSV event store. Existing rows are loaded on
// open to rebuild the key index and serve reads.
type EventLog struct {
	mu      sync.RWMutex
	path    string
	f       *os.File
	w       *csv.Writer
	sync    func() error
	keys    map[string]struct{}
	events  []*domain.Event
	skipped int
}

// OpenEventLog opens or creates dir/wallet_ca_events.csv.
func OpenEventLog(dir string) (*EventLog, error) {
	if err := ensureDir(dir); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, EventsFile)

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	l := &EventLog{
		path: path,
		f:    f,
		keys: make(map[string]struct{}),
	}
	if err := l.load(); err != nil {
		f.Close()
		return nil, err
	}

	end, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("seek %s: %w", path, err)
	}
	if err := terminateLastLine(f, end); err != nil {
		f.Close()
		return nil, fmt.Errorf("repair %s: %w", path, err)
	}
	l.w = csv.NewWriter(f)
	l.sync = f.Sync
	return l, nil
}

// Compile-time interface check.
var _ storage.EventStore = (*EventLog)(nil)

func (l *EventLog) load() error {
	info, err := l.f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", l.path, err)
	}
	if info.Size() == 0 {
		w := csv.NewWriter(l.f)
		if err := w.Write(eventHeader); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
		return l.f.Sync()
	}

	r := csv.NewReader(l.f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return fmt.Errorf("read header of %s: %w", l.path, err)
	}
	if !slices.Equal(header, eventHeader) {
		return fmt.Errorf("%s: %w: got %v", l.path, ErrHeaderMismatch, header)
	}

	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// A torn final line after a crash; keep what parsed.
			l.skipped++
			continue
		}
		e, err := parseRecord(record)
		if err != nil {
			l.skipped++
			continue
		}
		key := e.Key()
		if _, ok := l.keys[key]; ok {
			continue
		}
		l.keys[key] = struct{}{}
		l.events = append(l.events, e)
	}
	return nil
}

// Insert appends one row and fsyncs. Returns ErrDuplicateKey if an event with
// the same key is already in the log.
func (l *EventLog) Insert(_ context.Context, e *domain.Event) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}
	key := e.Key()

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.w == nil {
		return fmt.Errorf("%s: event log closed", l.path)
	}
	if _, ok := l.keys[key]; ok {
		return storage.ErrDuplicateKey
	}

	offset, err := l.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return fmt.Errorf("seek %s: %w", l.path, err)
	}
	if err := l.append(formatRecord(e)); err != nil {
		if rerr := l.rollback(offset); rerr != nil {
			return fmt.Errorf("append event: %w (rollback: %v)", err, rerr)
		}
		return fmt.Errorf("append event: %w", err)
	}

	stored := *e
	l.keys[key] = struct{}{}
	l.events = append(l.events, &stored)
	return nil
}

func (l *EventLog) append(record []string) error {
	if err := l.w.Write(record); err != nil {
		return err
	}
	l.w.Flush()
	if err := l.w.Error(); err != nil {
		return err
	}
	if err := l.sync(); err != nil {
		return fmt.Errorf("sync %s: %w", l.path, err)
	}
	return nil
}

// rollback cuts the file back to offset and replaces the writer, whose
// buffered error would otherwise fail every later append.
func (l *EventLog) rollback(offset int64) error {
	l.w = csv.NewWriter(l.f)
	if err := l.f.Truncate(offset); err != nil {
		return err
	}
	if _, err := l.f.Seek(offset, io.SeekStart); err != nil {
		return err
	}
	return l.sync()
}

// Exists reports whether an event with the given key was logged.
func (l *EventLog) Exists(_ context.Context, key string) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.keys[key]
	return ok, nil
}

// List returns logged events newest first.
func (l *EventLog) List(_ context.Context, filter storage.EventFilter) ([]*domain.Event, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []*domain.Event
	for i := len(l.events) - 1; i >= 0; i-- {
		e := l.events[i]
		if filter.Wallet != "" && e.Wallet != filter.Wallet {
			continue
		}
		cp := *e
		out = append(out, &cp)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

// Len returns the number of events in the log.
func (l *EventLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// Skipped returns the number of unreadable rows found on open.
func (l *EventLog) Skipped() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.skipped
}

// Close flushes and closes the underlying file.
func (l *EventLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.w == nil {
		return nil
	}
	l.w.Flush()
	l.w = nil
	return l.f.Close()
}

// terminateLastLine appends a newline when a torn row left the file without
// one, so the next append starts on its own line.
func terminateLastLine(f *os.File, size int64) error {
	if size == 0 {
		return nil
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, size-1); err != nil {
		return err
	}
	if last[0] == '\n' {
		return nil
	}
	_, err := f.Write([]byte("\n"))
	return err
}

func formatRecord(e *domain.Event) []string {
	blockTime := ""
	if e.BlockTime != nil {
		blockTime = e.BlockTime.UTC().Format(time.RFC3339)
	}
	return []string{
		e.OccurredAt.UTC().Format(time.RFC3339Nano),
		e.Wallet,
		e.Signature,
		string(e.Action),
		e.Mint,
		e.Amount.String(),
		e.Fee.String(),
		blockTime,
	}
}

func parseRecord(record []string) (*domain.Event, error) {
	if len(record) != len(eventHeader) {
		return nil, fmt.Errorf("expected %d fields, got %d", len(eventHeader), len(record))
	}

	occurredAt, err := time.Parse(time.RFC3339Nano, record[0])
	if err != nil {
		return nil, fmt.Errorf("parse timestamp: %w", err)
	}
	amount, err := decimal.NewFromString(record[5])
	if err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}
	fee, err := decimal.NewFromString(record[6])
	if err != nil {
		return nil, fmt.Errorf("parse fee: %w", err)
	}

	e := &domain.Event{
		OccurredAt: occurredAt.UTC(),
		Wallet:     record[1],
		Signature:  record[2],
		Action:     domain.Action(record[3]),
		Mint:       record[4],
		Amount:     amount,
		Fee:        fee,
	}
	if record[7] != "" {
		bt, err := time.Parse(time.RFC3339, record[7])
		if err != nil {
			return nil, fmt.Errorf("parse block_time: %w", err)
		}
		bt = bt.UTC()
		e.BlockTime = &bt
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}
