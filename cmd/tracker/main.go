// Command tracker watches Solana wallets, records their token balance
// changes and serves the management API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"solana-wallet-tracker/internal/analyzer"
	"solana-wallet-tracker/internal/config"
	"solana-wallet-tracker/internal/feed"
	"solana-wallet-tracker/internal/ledger"
	"solana-wallet-tracker/internal/logging"
	"solana-wallet-tracker/internal/registry"
	"solana-wallet-tracker/internal/scanner"
	"solana-wallet-tracker/internal/server"
	"solana-wallet-tracker/internal/solana"
	"solana-wallet-tracker/internal/storage"
	chstore "solana-wallet-tracker/internal/storage/clickhouse"
	"solana-wallet-tracker/internal/storage/file"
	"solana-wallet-tracker/internal/storage/memory"
	"solana-wallet-tracker/internal/storage/migrations"
	pgstore "solana-wallet-tracker/internal/storage/postgres"
	"solana-wallet-tracker/internal/tracker"
)

const shutdownGrace = 30 * time.Second

// stores groups the persistence backends selected by configuration.
type stores struct {
	wallets storage.WalletStore
	seen    storage.SeenStore
	events  storage.EventStore
	closers []func()
}

func (s *stores) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogEncoding)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("tracker failed", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.close()

	reg, err := registry.Open(ctx, st.wallets, cfg.WatchedWallets, logger.Named("registry"))
	if err != nil {
		return fmt.Errorf("open registry: %w", err)
	}

	led, err := ledger.Open(ctx, st.events, st.seen, logger.Named("ledger"))
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}

	var sinks []feed.Sink
	if cfg.RedisAddr != "" {
		rdb, err := feed.NewRedisClient(ctx, cfg.RedisAddr)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		defer rdb.Close()
		sink := feed.NewRedisSink(rdb, cfg.RedisChannel, logger.Named("redis"))
		defer sink.Close()
		sinks = append(sinks, sink)
	}
	events := feed.New(feed.Options{Buffer: cfg.FeedBuffer, Sinks: sinks, Logger: logger.Named("feed")})
	defer events.Close()

	rpc := solana.NewHTTPClient(cfg.RPCEndpoints,
		solana.WithTimeout(cfg.RPCTimeout),
		solana.WithMaxAttempts(cfg.RPCMaxAttempts),
		solana.WithRetryDelay(cfg.RPCRetryDelay),
		solana.WithLogger(logger.Named("rpc")),
	)

	runner := tracker.NewRunner(tracker.RunnerOptions{
		Wallets: reg,
		Scanner: scanner.New(rpc, led, cfg.SigLimit),
		Analyzer: analyzer.New(rpc, analyzer.Options{
			TransferPolicy: cfg.TransferPolicy,
			Logger:         logger.Named("analyzer"),
		}),
		Ledger:               led,
		Publisher:            events,
		PollInterval:         cfg.PollInterval,
		Throttle:             disabledIfZero(cfg.Throttle),
		MaxConsecutiveErrors: cfg.MaxConsecutiveErrors,
		ErrorPause:           disabledIfZero(cfg.ErrorPause),
		Logger:               logger.Named("tracker"),
	})

	api := server.New(server.Options{
		Wallets: reg,
		Seen:    led,
		Events:  led.Events(),
		Feed:    events,
		Status:  runner,
		Logger:  logger.Named("http"),
	})
	httpServer := api.HTTPServer(cfg.HTTPAddr)
	ln, err := server.Listen(cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	// Channel to signal completion
	done := make(chan struct{})
	defer close(done)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received signal, initiating graceful shutdown", zap.Stringer("signal", sig))
			cancel()
		case <-done:
			return
		}

		select {
		case sig := <-sigCh:
			logger.Error("received second signal, forcing immediate shutdown", zap.Stringer("signal", sig))
			os.Exit(1)
		case <-time.After(shutdownGrace):
			logger.Error("graceful shutdown timed out, forcing exit", zap.Duration("grace", shutdownGrace))
			os.Exit(1)
		case <-done:
		}
	}()

	httpErr := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server", zap.String("addr", ln.Addr().String()))
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErr <- err
		}
		close(httpErr)
	}()

	logger.Info("tracker started",
		zap.Int("wallets", reg.Len()),
		zap.Strings("rpc_endpoints", rpc.Endpoints()),
		zap.String("storage", cfg.Storage),
		zap.Duration("poll_interval", cfg.PollInterval))

	runErr := runner.Run(ctx)
	switch {
	case errors.Is(runErr, context.Canceled):
		runErr = nil
	case errors.Is(runErr, tracker.ErrTooManyFailures):
		// The API keeps serving until a signal arrives.
		logger.Error("tracking stopped, API still serving", zap.Error(runErr))
		select {
		case <-ctx.Done():
		case err := <-httpErr:
			if err != nil {
				return fmt.Errorf("http server: %w", err)
			}
		}
		runErr = nil
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown failed", zap.Error(err))
	}
	if err := <-httpErr; err != nil {
		return fmt.Errorf("http server: %w", err)
	}

	if err := led.Persist(context.Background()); err != nil {
		logger.Error("final seen-set flush failed", zap.Error(err))
	}
	return runErr
}

// openStores wires the configured backends. The clickhouse event store, when
// selected, replaces the primary backend's event store.
func openStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*stores, error) {
	st := &stores{}

	switch cfg.Storage {
	case config.StorageMemory:
		st.wallets = memory.NewWalletStore()
		st.seen = memory.NewSeenStore()
		st.events = memory.NewEventStore()

	case config.StorageFile:
		wallets, err := file.NewWalletStore(cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("open wallet file: %w", err)
		}
		seen, err := file.NewSeenStore(cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("open seen file: %w", err)
		}
		st.wallets, st.seen = wallets, seen

		if cfg.EventStore == config.EventStoreDefault {
			eventLog, err := file.OpenEventLog(cfg.DataDir)
			if err != nil {
				return nil, fmt.Errorf("open event log: %w", err)
			}
			if n := eventLog.Skipped(); n > 0 {
				logger.Warn("skipped unreadable event log rows", zap.Int("rows", n))
			}
			st.events = eventLog
			st.closers = append(st.closers, func() { _ = eventLog.Close() })
		}

	case config.StoragePostgres:
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		st.closers = append(st.closers, pool.Close)
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			st.close()
			return nil, fmt.Errorf("postgres migrations: %w", err)
		}
		st.wallets = pgstore.NewWalletStore(pool)
		st.seen = pgstore.NewSeenStore(pool)
		if cfg.EventStore == config.EventStoreDefault {
			st.events = pgstore.NewEventStore(pool)
		}
	}

	if cfg.EventStore == config.EventStoreCH {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
		if err != nil {
			st.close()
			return nil, fmt.Errorf("clickhouse migrations: %w", err)
		}
		st.closers = append(st.closers, func() { _ = conn.Close() })
		st.events = chstore.NewEventStore(conn)
	}

	return st, nil
}

func disabledIfZero(d time.Duration) time.Duration {
	if d == 0 {
		return -1
	}
	return d
}
