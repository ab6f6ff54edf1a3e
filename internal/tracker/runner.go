// Package tracker runs the periodic scan, analyze, commit and publish cycle.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"solana-wallet-tracker/internal/domain"
	"solana-wallet-tracker/internal/observability"
)

// Defaults for RunnerOptions.
const (
	DefaultPollInterval         = 20 * time.Second
	DefaultThrottle             = 120 * time.Millisecond
	DefaultMaxConsecutiveErrors = 10
	DefaultErrorPause           = 5 * time.Second
)

// ErrTooManyFailures is returned by Run when the consecutive failed cycle
// limit is reached.
var ErrTooManyFailures = errors.New("too many consecutive failed cycles")

// WalletSource provides the wallets to scan.
type WalletSource interface {
	List() []string
}

// Scanner returns the unseen signatures of a wallet, newest first.
type Scanner interface {
	Scan(ctx context.Context, wallet string) ([]string, error)
}

// Analyzer derives the events of one signature for a wallet.
type Analyzer interface {
	Analyze(ctx context.Context, signature, wallet string) ([]*domain.Event, error)
}

// Ledger commits events and tracks processed signatures.
type Ledger interface {
	CommitSignature(ctx context.Context, wallet, signature string, events []*domain.Event) ([]*domain.Event, error)
	Persist(ctx context.Context) error
}

// Publisher receives newly committed events.
type Publisher interface {
	Publish(e *domain.Event)
}

// RunnerOptions contains configuration for creating a Runner.
type RunnerOptions struct {
	Wallets   WalletSource
	Scanner   Scanner
	Analyzer  Analyzer
	Ledger    Ledger
	Publisher Publisher // optional

	PollInterval         time.Duration // Default: 20s
	Throttle             time.Duration // Delay before each transaction fetch. Default: 120ms, negative disables
	MaxConsecutiveErrors int           // Default: 10
	ErrorPause           time.Duration // Extra sleep after a failed cycle. Default: 5s
	Logger               *zap.Logger
}

// Runner drives the tracking loop.
type Runner struct {
	wallets   WalletSource
	scanner   Scanner
	analyzer  Analyzer
	ledger    Ledger
	publisher Publisher

	pollInterval time.Duration
	throttle     time.Duration
	maxFailures  int
	errorPause   time.Duration
	logger       *zap.Logger

	mu     sync.RWMutex
	status Status
}

// NewRunner creates a new Runner.
func NewRunner(opts RunnerOptions) *Runner {
	r := &Runner{
		wallets:      opts.Wallets,
		scanner:      opts.Scanner,
		analyzer:     opts.Analyzer,
		ledger:       opts.Ledger,
		publisher:    opts.Publisher,
		pollInterval: opts.PollInterval,
		throttle:     opts.Throttle,
		maxFailures:  opts.MaxConsecutiveErrors,
		errorPause:   opts.ErrorPause,
		logger:       opts.Logger,
	}
	if r.pollInterval <= 0 {
		r.pollInterval = DefaultPollInterval
	}
	if r.throttle == 0 {
		r.throttle = DefaultThrottle
	}
	if r.throttle < 0 {
		r.throttle = 0
	}
	if r.maxFailures <= 0 {
		r.maxFailures = DefaultMaxConsecutiveErrors
	}
	if r.errorPause < 0 {
		r.errorPause = 0
	} else if r.errorPause == 0 {
		r.errorPause = DefaultErrorPause
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	r.status.State = StateIdle
	return r
}

// Run executes a cycle immediately and then every poll interval until ctx is
// cancelled or the failure limit is reached. On cancellation the seen set is
// flushed and ctx.Err() is returned.
func (r *Runner) Run(ctx context.Context) error {
	r.setState(StateRunning, "")
	r.logger.Info("tracker started",
		zap.Duration("poll_interval", r.pollInterval),
		zap.Duration("throttle", r.throttle),
		zap.Int("max_consecutive_errors", r.maxFailures))

	for {
		result := r.RunCycle(ctx)

		if ctx.Err() != nil {
			r.setState(StateStopped, "shutdown")
			r.logger.Info("tracker stopped", zap.Error(ctx.Err()))
			return ctx.Err()
		}

		if failures := r.Status().ConsecutiveFailures; failures >= r.maxFailures {
			reason := fmt.Sprintf("%d consecutive failed cycles", failures)
			r.setState(StateStopped, reason)
			r.logger.Error("tracker stopped: failure limit reached", zap.Int("consecutive_failures", failures))
			return fmt.Errorf("%w: %s", ErrTooManyFailures, reason)
		}

		wait := r.pollInterval
		if result.Failed {
			wait += r.errorPause
		}
		if !sleep(ctx, wait) {
			r.setState(StateStopped, "shutdown")
			r.logger.Info("tracker stopped", zap.Error(ctx.Err()))
			return ctx.Err()
		}
	}
}

// RunCycle scans every registered wallet once and persists the seen set.
func (r *Runner) RunCycle(ctx context.Context) CycleResult {
	started := time.Now()
	wallets := r.wallets.List()
	result := CycleResult{StartedAt: started.UTC(), Wallets: len(wallets)}

	attempted := 0
	for _, wallet := range wallets {
		if ctx.Err() != nil {
			break
		}
		attempted++
		wr := r.processWallet(ctx, wallet)
		result.Signatures += wr.signatures
		result.Events += wr.events
		if wr.err != nil {
			result.FailedWallets++
			observability.RecordWalletError()
			r.logger.Warn("wallet processing failed",
				zap.String("wallet", wallet),
				zap.Error(wr.err))
		}
	}

	// Commit work above is already durable in the event store; flush the
	// seen set even when ctx was cancelled.
	if err := r.ledger.Persist(context.WithoutCancel(ctx)); err != nil {
		r.logger.Error("failed to persist seen set", zap.Error(err))
	}

	result.Duration = time.Since(started)
	result.Failed = attempted > 0 && attempted == len(wallets) && result.FailedWallets == attempted
	r.finishCycle(result)
	return result
}

type walletResult struct {
	signatures int
	events     int
	err        error
}

// processWallet handles one wallet. A panic is converted into the wallet's
// failure so sibling wallets still run.
func (r *Runner) processWallet(ctx context.Context, wallet string) (res walletResult) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("panic while processing wallet",
				zap.String("wallet", wallet),
				zap.Any("panic", rec),
				zap.String("stack", string(debug.Stack())))
			res.err = fmt.Errorf("panic: %v", rec)
		}
	}()

	sigs, err := r.scanner.Scan(ctx, wallet)
	if err != nil {
		res.err = err
		return res
	}
	if len(sigs) == 0 {
		return res
	}

	// Oldest first so the log reads chronologically.
	sigs = slices.Clone(sigs)
	slices.Reverse(sigs)

	var fetchErrs []error
	for _, sig := range sigs {
		if r.throttle > 0 && !sleep(ctx, r.throttle) {
			return res
		}
		if ctx.Err() != nil {
			return res
		}

		events, err := r.analyzer.Analyze(ctx, sig, wallet)
		if err != nil {
			if ctx.Err() != nil {
				return res
			}
			// Left unseen; retried next cycle.
			fetchErrs = append(fetchErrs, err)
			r.logger.Debug("transaction fetch failed",
				zap.String("wallet", wallet),
				zap.String("signature", sig),
				zap.Error(err))
			continue
		}
		observability.RecordSignatureAnalyzed()
		res.signatures++

		fresh, err := r.ledger.CommitSignature(context.WithoutCancel(ctx), wallet, sig, events)
		for _, e := range fresh {
			res.events++
			r.logger.Info("event committed",
				zap.String("wallet", wallet),
				zap.String("signature", sig),
				zap.String("action", string(e.Action)),
				zap.String("mint", e.Mint),
				zap.String("amount", e.Amount.String()))
			if r.publisher != nil {
				r.publisher.Publish(e)
			}
		}
		if err != nil {
			res.err = fmt.Errorf("commit %s: %w", sig, err)
			return res
		}
	}

	if len(fetchErrs) > 0 && res.signatures == 0 {
		res.err = fmt.Errorf("all %d transaction fetches failed: %w", len(fetchErrs), errors.Join(fetchErrs...))
	}
	return res
}

func (r *Runner) finishCycle(result CycleResult) {
	r.mu.Lock()
	r.status.Cycles++
	if result.Failed {
		r.status.ConsecutiveFailures++
	} else {
		r.status.ConsecutiveFailures = 0
	}
	at := result.StartedAt
	r.status.LastCycleAt = &at
	last := result
	r.status.LastCycle = &last
	consecutive := r.status.ConsecutiveFailures
	r.mu.Unlock()

	status := "ok"
	if result.Failed {
		status = "failed"
	} else {
		observability.RecordSuccessfulCycle(time.Now().Unix())
	}
	observability.RecordCycle(status, result.Duration.Seconds(), consecutive)

	r.logger.Info("cycle finished",
		zap.String("status", status),
		zap.Int("wallets", result.Wallets),
		zap.Int("failed_wallets", result.FailedWallets),
		zap.Int("signatures", result.Signatures),
		zap.Int("events", result.Events),
		zap.Duration("duration", result.Duration),
		zap.Int("consecutive_failures", consecutive))
}

// sleep waits for d or until ctx is done. It reports whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
