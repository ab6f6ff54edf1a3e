package tracker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-wallet-tracker/internal/analyzer"
	"solana-wallet-tracker/internal/domain"
	"solana-wallet-tracker/internal/feed"
	"solana-wallet-tracker/internal/ledger"
	"solana-wallet-tracker/internal/scanner"
	"solana-wallet-tracker/internal/solana"
	"solana-wallet-tracker/internal/solana/stub"
	"solana-wallet-tracker/internal/storage"
	"solana-wallet-tracker/internal/storage/memory"
)

const (
	walletA = "4Vgu5AHT1ndczhdgqAipNDqLsCPjBS5jMXkEg8yzhT9c"
	walletB = "GrkYZgtiQGmZrSbSc7MPJfo6UL9zo2uP5sKPNB7nUyEa"
)

type staticWallets []string

func (w staticWallets) List() []string { return append([]string(nil), w...) }

func ptr[T any](v T) *T { return &v }

// transferTx builds a transaction moving wallet's balance of mint from pre to post.
func transferTx(sig, wallet, mint, pre, post string) *solana.Transaction {
	return &solana.Transaction{
		Signature: sig,
		BlockTime: ptr(int64(1700000000)),
		Meta: &solana.TransactionMeta{
			Fee: ptr(uint64(5000)),
			PreTokenBalances: []solana.TokenBalance{
				{Owner: wallet, Mint: mint, UITokenAmount: solana.UITokenAmount{UIAmountString: pre}},
			},
			PostTokenBalances: []solana.TokenBalance{
				{Owner: wallet, Mint: mint, UITokenAmount: solana.UITokenAmount{UIAmountString: post}},
			},
		},
		Message: &solana.TransactionMessage{AccountKeys: []string{wallet}},
	}
}

type harness struct {
	rpc    *stub.RPCClient
	events *memory.EventStore
	seen   *memory.SeenStore
	ledger *ledger.Ledger
	feed   *feed.Feed
	runner *Runner
}

func newHarness(t *testing.T, wallets []string, mutate func(*RunnerOptions)) *harness {
	t.Helper()
	ctx := context.Background()

	h := &harness{
		rpc:    stub.NewRPCClient(),
		events: memory.NewEventStore(),
		seen:   memory.NewSeenStore(),
		feed:   feed.New(feed.Options{}),
	}
	var err error
	h.ledger, err = ledger.Open(ctx, h.events, h.seen, nil)
	require.NoError(t, err)

	opts := RunnerOptions{
		Wallets:              staticWallets(wallets),
		Scanner:              scanner.New(h.rpc, h.ledger, 20),
		Analyzer:             analyzer.New(h.rpc, analyzer.Options{}),
		Ledger:               h.ledger,
		Publisher:            h.feed,
		PollInterval:         time.Millisecond,
		Throttle:             -1,
		MaxConsecutiveErrors: 3,
		ErrorPause:           -1,
	}
	if mutate != nil {
		mutate(&opts)
	}
	h.runner = NewRunner(opts)
	return h
}

func TestRunCycle_EndToEnd(t *testing.T) {
	h := newHarness(t, []string{walletA}, nil)
	h.rpc.AddSignatures(walletA, "sig2", "sig1")
	h.rpc.AddTransaction(transferTx("sig1", walletA, "M", "10", "15"))
	h.rpc.AddTransaction(transferTx("sig2", walletA, "M", "15", "12"))

	sub := h.feed.Subscribe()
	defer sub.Close()

	result := h.runner.RunCycle(context.Background())
	assert.False(t, result.Failed)
	assert.Equal(t, 2, result.Signatures)
	assert.Equal(t, 2, result.Events)

	// Oldest signature is committed and published first.
	first := <-sub.C()
	second := <-sub.C()
	assert.Equal(t, "sig1", first.Signature)
	assert.Equal(t, domain.ActionBuy, first.Action)
	assert.True(t, first.Amount.Equal(decimal.NewFromInt(5)))
	assert.Equal(t, "sig2", second.Signature)
	assert.Equal(t, domain.ActionSell, second.Action)

	assert.True(t, h.ledger.IsSeen(walletA, "sig1"))
	assert.True(t, h.ledger.IsSeen(walletA, "sig2"))
	assert.Equal(t, 1, h.seen.Saves())

	// A second cycle fetches nothing new and writes nothing.
	result = h.runner.RunCycle(context.Background())
	assert.Equal(t, 0, result.Signatures)
	assert.Equal(t, 1, h.rpc.TransactionCalls("sig1"))
	assert.Equal(t, 2, h.events.Len())
	assert.Equal(t, 1, h.seen.Saves())
}

func TestRunCycle_WalletIsolation(t *testing.T) {
	h := newHarness(t, []string{walletA, walletB}, nil)
	h.rpc.FailSignatures(walletA, solana.ErrUnavailable)
	h.rpc.AddSignatures(walletB, "sigB")
	h.rpc.AddTransaction(transferTx("sigB", walletB, "M", "0", "1"))

	result := h.runner.RunCycle(context.Background())
	assert.False(t, result.Failed, "one healthy wallet keeps the cycle alive")
	assert.Equal(t, 1, result.FailedWallets)
	assert.Equal(t, 1, result.Events)
	assert.True(t, h.ledger.IsSeen(walletB, "sigB"))
	assert.Equal(t, 0, h.runner.Status().ConsecutiveFailures)
}

type panickyScanner struct {
	Scanner
	wallet string
}

func (s panickyScanner) Scan(ctx context.Context, wallet string) ([]string, error) {
	if wallet == s.wallet {
		panic("boom")
	}
	return s.Scanner.Scan(ctx, wallet)
}

func TestRunCycle_PanicIsolated(t *testing.T) {
	h := newHarness(t, []string{walletA, walletB}, func(o *RunnerOptions) {
		o.Scanner = panickyScanner{Scanner: o.Scanner, wallet: walletA}
	})
	h.rpc.AddSignatures(walletB, "sigB")
	h.rpc.AddTransaction(transferTx("sigB", walletB, "M", "0", "1"))

	result := h.runner.RunCycle(context.Background())
	assert.Equal(t, 1, result.FailedWallets)
	assert.Equal(t, 1, result.Events)
}

func TestRunCycle_FetchFailureLeavesSignatureUnseen(t *testing.T) {
	h := newHarness(t, []string{walletA}, nil)
	h.rpc.AddSignatures(walletA, "sig2", "sig1")
	h.rpc.AddTransaction(transferTx("sig2", walletA, "M", "0", "1"))

	result := h.runner.RunCycle(context.Background())
	assert.False(t, result.Failed)
	assert.False(t, h.ledger.IsSeen(walletA, "sig1"))
	assert.True(t, h.ledger.IsSeen(walletA, "sig2"))

	// Once the transaction is available it is picked up.
	h.rpc.AddTransaction(transferTx("sig1", walletA, "M", "5", "1"))
	result = h.runner.RunCycle(context.Background())
	assert.Equal(t, 1, result.Events)
	assert.True(t, h.ledger.IsSeen(walletA, "sig1"))
	assert.Equal(t, 1, h.rpc.TransactionCalls("sig2"))
}

func TestRunCycle_IncompletePayloadMarkedSeen(t *testing.T) {
	h := newHarness(t, []string{walletA}, nil)
	h.rpc.AddSignatures(walletA, "sig1")
	tx := transferTx("sig1", walletA, "M", "0", "1")
	tx.Meta = nil
	h.rpc.AddTransaction(tx)

	result := h.runner.RunCycle(context.Background())
	assert.Equal(t, 0, result.Events)
	assert.True(t, h.ledger.IsSeen(walletA, "sig1"))
}

// failingLedger refuses every commit.
type failingLedger struct {
	*ledger.Ledger
}

func (failingLedger) CommitSignature(context.Context, string, string, []*domain.Event) ([]*domain.Event, error) {
	return nil, storage.ErrInvalidInput
}

func TestRunCycle_CommitFailureFailsWallet(t *testing.T) {
	h := newHarness(t, []string{walletA}, func(o *RunnerOptions) {
		o.Ledger = failingLedger{o.Ledger.(*ledger.Ledger)}
	})
	h.rpc.AddSignatures(walletA, "sig1")
	h.rpc.AddTransaction(transferTx("sig1", walletA, "M", "0", "1"))

	result := h.runner.RunCycle(context.Background())
	assert.True(t, result.Failed)
	assert.Equal(t, 1, h.runner.Status().ConsecutiveFailures)
	assert.False(t, h.ledger.IsSeen(walletA, "sig1"))
}

func TestRunCycle_EmptyRegistryIsNotAFailure(t *testing.T) {
	h := newHarness(t, nil, nil)
	result := h.runner.RunCycle(context.Background())
	assert.False(t, result.Failed)
	assert.Equal(t, 1, h.runner.Status().Cycles)
}

func TestRun_StopsAfterConsecutiveFailures(t *testing.T) {
	h := newHarness(t, []string{walletA, walletB}, nil)
	h.rpc.FailSignatures(walletA, solana.ErrUnavailable)
	h.rpc.FailSignatures(walletB, solana.ErrUnavailable)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := h.runner.Run(ctx)
	require.ErrorIs(t, err, ErrTooManyFailures)

	status := h.runner.Status()
	assert.Equal(t, StateStopped, status.State)
	assert.Equal(t, 3, status.Cycles)
	assert.Equal(t, 3, status.ConsecutiveFailures)
	assert.NotEmpty(t, status.StopReason)
}

// flakyScanner fails two calls out of every three.
type flakyScanner struct {
	mu    sync.Mutex
	calls int
}

func (s *flakyScanner) Scan(context.Context, string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls%3 != 0 {
		return nil, errors.New("rpc down")
	}
	return nil, nil
}

func TestRun_SuccessResetsFailureCounter(t *testing.T) {
	h := newHarness(t, []string{walletA}, func(o *RunnerOptions) {
		o.Scanner = &flakyScanner{}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err := h.runner.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, h.runner.Status().ConsecutiveFailures, 3)
	assert.Greater(t, h.runner.Status().Cycles, 3)
}

func TestRun_CancelFlushesSeenSet(t *testing.T) {
	h := newHarness(t, []string{walletA}, func(o *RunnerOptions) {
		o.PollInterval = time.Hour
	})
	h.rpc.AddSignatures(walletA, "sig1")
	h.rpc.AddTransaction(transferTx("sig1", walletA, "M", "0", "1"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.runner.Run(ctx) }()

	require.Eventually(t, func() bool {
		return h.runner.Status().Cycles == 1
	}, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	persisted, err := h.seen.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"sig1"}, persisted[walletA])
	assert.Equal(t, StateStopped, h.runner.Status().State)
}

func TestRunCycle_CancelledContextStillPersists(t *testing.T) {
	h := newHarness(t, []string{walletA}, nil)
	h.ledger.MarkSeen(walletA, "old")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result := h.runner.RunCycle(ctx)

	assert.False(t, result.Failed)
	assert.Equal(t, 1, h.seen.Saves())
}
