package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"solana-wallet-tracker/internal/domain"
	"solana-wallet-tracker/internal/storage"
)

func testEvent(sig, mint string, action domain.Action, amount string) *domain.Event {
	return &domain.Event{
		Wallet:     "wallet1",
		Signature:  sig,
		Mint:       mint,
		Action:     action,
		Amount:     decimal.RequireFromString(amount),
		Fee:        decimal.RequireFromString("0.000005"),
		OccurredAt: time.Unix(1700000000, 0).UTC(),
	}
}

func TestEventStore_InsertAndList(t *testing.T) {
	store := NewEventStore()
	ctx := context.Background()

	if err := store.Insert(ctx, testEvent("sig1", "mintA", domain.ActionBuy, "5")); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := store.Insert(ctx, testEvent("sig2", "mintA", domain.ActionSell, "2")); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	events, err := store.List(ctx, storage.EventFilter{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(events))
	}
	if events[0].Signature != "sig2" {
		t.Errorf("Expected newest first, got %s", events[0].Signature)
	}
}

func TestEventStore_DuplicateKey(t *testing.T) {
	store := NewEventStore()
	ctx := context.Background()

	if err := store.Insert(ctx, testEvent("sig1", "mintA", domain.ActionBuy, "5")); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}

	// Same key with a differently scaled amount.
	err := store.Insert(ctx, testEvent("sig1", "mintA", domain.ActionBuy, "5.00"))
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}

	if store.Len() != 1 {
		t.Errorf("Expected exactly one stored event, got %d", store.Len())
	}

	exists, err := store.Exists(ctx, testEvent("sig1", "mintA", domain.ActionBuy, "5").Key())
	if err != nil || !exists {
		t.Errorf("Expected key to exist, got %v, %v", exists, err)
	}
}

func TestEventStore_InvalidInput(t *testing.T) {
	store := NewEventStore()
	err := store.Insert(context.Background(), &domain.Event{Signature: "sig1"})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}

func TestEventStore_ListFilter(t *testing.T) {
	store := NewEventStore()
	ctx := context.Background()

	for i, sig := range []string{"sig1", "sig2", "sig3"} {
		e := testEvent(sig, "mintA", domain.ActionBuy, "1")
		if i == 1 {
			e.Wallet = "wallet2"
		}
		if err := store.Insert(ctx, e); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	events, _ := store.List(ctx, storage.EventFilter{Wallet: "wallet1"})
	if len(events) != 2 {
		t.Errorf("Expected 2 events for wallet1, got %d", len(events))
	}

	events, _ = store.List(ctx, storage.EventFilter{Limit: 1})
	if len(events) != 1 || events[0].Signature != "sig3" {
		t.Errorf("Expected only newest event, got %+v", events)
	}
}
