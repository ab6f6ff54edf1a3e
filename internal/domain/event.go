package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"solana-wallet-tracker/internal/idhash"
)

// Action classifies the effect of a transaction on a wallet's token balance.
type Action string

const (
	ActionBuy      Action = "BUY"
	ActionSell     Action = "SELL"
	ActionTransfer Action = "TRANSFER"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionBuy, ActionSell, ActionTransfer:
		return true
	}
	return false
}

// Event is one derived balance change for a watched wallet.
// Events are immutable once created.
type Event struct {
	Wallet     string          `json:"wallet"`
	Signature  string          `json:"signature"`
	Mint       string          `json:"mint"`
	Action     Action          `json:"action"`
	Amount     decimal.Decimal `json:"amount"`
	Fee        decimal.Decimal `json:"fee"` // in SOL
	OccurredAt time.Time       `json:"occurred_at"`
	// BlockTime is nil when the chain did not report one; OccurredAt then
	// holds the processing wall-clock time.
	BlockTime *time.Time `json:"block_time,omitempty"`
}

// Key returns the deduplication key of the event.
func (e *Event) Key() string {
	return idhash.ComputeEventID(e.Signature, e.Mint, string(e.Action), e.Amount.String())
}

// Validate checks required fields and non-negative amounts.
func (e *Event) Validate() error {
	if e == nil {
		return errors.New("nil event")
	}
	if e.Wallet == "" || e.Signature == "" || e.Mint == "" {
		return errors.New("event missing wallet, signature or mint")
	}
	if !e.Action.Valid() {
		return errors.New("event has unknown action " + string(e.Action))
	}
	if e.Amount.IsNegative() || e.Fee.IsNegative() {
		return errors.New("event amount and fee must be non-negative")
	}
	return nil
}
