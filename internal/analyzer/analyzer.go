// Package analyzer derives balance-change events from Solana transactions.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"solana-wallet-tracker/internal/domain"
	"solana-wallet-tracker/internal/solana"
)

// TransferPolicy decides what happens to a mint whose balance did not move.
type TransferPolicy string

const (
	// TransferDrop emits nothing for an unchanged balance.
	TransferDrop TransferPolicy = "drop"
	// TransferEmit emits a TRANSFER event with amount 0.
	TransferEmit TransferPolicy = "emit"
)

// Valid reports whether p is a known policy.
func (p TransferPolicy) Valid() bool {
	return p == TransferDrop || p == TransferEmit
}

var (
	// DefaultEpsilon is the threshold below which a delta counts as unchanged.
	DefaultEpsilon = decimal.New(1, -9)

	lamportsPerSOL = decimal.New(1, 9)
)

var (
	// ErrIncomplete marks a transaction missing a section the analysis needs.
	ErrIncomplete = errors.New("incomplete transaction")
	// ErrMalformed marks a token balance with no parsable amount.
	ErrMalformed = errors.New("malformed token balance")
)

// Options configures an Analyzer.
type Options struct {
	Epsilon        decimal.Decimal
	TransferPolicy TransferPolicy
	// Now supplies the processing time used when a block time is missing.
	Now    func() time.Time
	Logger *zap.Logger
}

// Analyzer fetches transactions and classifies their token-balance deltas.
type Analyzer struct {
	rpc     solana.RPCClient
	epsilon decimal.Decimal
	policy  TransferPolicy
	now     func() time.Time
	logger  *zap.Logger
}

// New creates an Analyzer.
func New(rpc solana.RPCClient, opts Options) *Analyzer {
	a := &Analyzer{
		rpc:     rpc,
		epsilon: opts.Epsilon,
		policy:  opts.TransferPolicy,
		now:     opts.Now,
		logger:  opts.Logger,
	}
	if a.epsilon.IsZero() {
		a.epsilon = DefaultEpsilon
	}
	if !a.policy.Valid() {
		a.policy = TransferDrop
	}
	if a.now == nil {
		a.now = time.Now
	}
	if a.logger == nil {
		a.logger = zap.NewNop()
	}
	return a
}

// Analyze fetches one transaction and derives its events for wallet.
// A fetch failure is returned so the caller can retry the signature later.
// A malformed or incomplete payload is logged and yields no events.
func (a *Analyzer) Analyze(ctx context.Context, signature, wallet string) ([]*domain.Event, error) {
	tx, err := a.rpc.GetTransaction(ctx, signature)
	if err != nil {
		return nil, fmt.Errorf("get transaction %s: %w", signature, err)
	}
	if tx != nil && tx.Signature == "" {
		tx.Signature = signature
	}

	events, err := a.Derive(tx, wallet)
	if err != nil {
		level := zap.WarnLevel
		if errors.Is(err, ErrIncomplete) {
			level = zap.DebugLevel
		}
		a.logger.Log(level, "no events derived",
			zap.String("wallet", wallet),
			zap.String("signature", signature),
			zap.Error(err))
		return nil, nil
	}
	return events, nil
}

// Derive classifies the token-balance changes of tx for wallet. It performs
// no I/O apart from reading the clock when the block time is missing.
func (a *Analyzer) Derive(tx *solana.Transaction, wallet string) ([]*domain.Event, error) {
	if tx == nil {
		return nil, fmt.Errorf("%w: no transaction", ErrIncomplete)
	}
	if tx.Meta == nil {
		return nil, fmt.Errorf("%w: no meta", ErrIncomplete)
	}
	if tx.Message == nil {
		return nil, fmt.Errorf("%w: no transaction body", ErrIncomplete)
	}
	if tx.Meta.Fee == nil {
		return nil, fmt.Errorf("%w: no fee", ErrIncomplete)
	}

	pre, err := sumByMint(tx.Meta.PreTokenBalances, wallet)
	if err != nil {
		return nil, fmt.Errorf("pre balances: %w", err)
	}
	post, err := sumByMint(tx.Meta.PostTokenBalances, wallet)
	if err != nil {
		return nil, fmt.Errorf("post balances: %w", err)
	}

	mints := make([]string, 0, len(pre)+len(post))
	for mint := range pre {
		mints = append(mints, mint)
	}
	for mint := range post {
		if _, ok := pre[mint]; !ok {
			mints = append(mints, mint)
		}
	}
	sort.Strings(mints)

	fee := decimal.NewFromUint64(*tx.Meta.Fee).Div(lamportsPerSOL)

	var occurredAt time.Time
	var blockTime *time.Time
	if tx.BlockTime != nil {
		bt := time.Unix(*tx.BlockTime, 0).UTC()
		occurredAt = bt
		blockTime = &bt
	} else {
		occurredAt = a.now().UTC()
	}

	var events []*domain.Event
	for _, mint := range mints {
		delta := post[mint].Sub(pre[mint])

		var action domain.Action
		amount := delta.Abs()
		switch {
		case delta.GreaterThan(a.epsilon):
			action = domain.ActionBuy
		case delta.LessThan(a.epsilon.Neg()):
			action = domain.ActionSell
		case a.policy == TransferEmit:
			action = domain.ActionTransfer
			amount = decimal.Zero
		default:
			continue
		}

		e := &domain.Event{
			Wallet:     wallet,
			Signature:  tx.Signature,
			Mint:       mint,
			Action:     action,
			Amount:     amount,
			Fee:        fee,
			OccurredAt: occurredAt,
		}
		if blockTime != nil {
			bt := *blockTime
			e.BlockTime = &bt
		}
		events = append(events, e)
	}
	return events, nil
}

// sumByMint totals the balances owned by wallet per mint.
func sumByMint(balances []solana.TokenBalance, wallet string) (map[string]decimal.Decimal, error) {
	sums := make(map[string]decimal.Decimal)
	for _, b := range balances {
		if b.Owner != wallet || b.Mint == "" {
			continue
		}
		v, err := balanceValue(b.UITokenAmount)
		if err != nil {
			return nil, fmt.Errorf("mint %s account %d: %w", b.Mint, b.AccountIndex, err)
		}
		sums[b.Mint] = sums[b.Mint].Add(v)
	}
	return sums, nil
}

// balanceValue reads a token amount: the raw integer shifted by decimals,
// then uiAmountString, then uiAmount.
func balanceValue(u solana.UITokenAmount) (decimal.Decimal, error) {
	if u.Amount != "" && u.Decimals != nil {
		if raw, err := decimal.NewFromString(u.Amount); err == nil {
			return raw.Shift(-int32(*u.Decimals)), nil
		}
	}
	if u.UIAmountString != "" {
		if v, err := decimal.NewFromString(u.UIAmountString); err == nil {
			return v, nil
		}
	}
	if u.UIAmount != nil {
		return decimal.NewFromFloat(*u.UIAmount), nil
	}
	return decimal.Decimal{}, ErrMalformed
}
