// Package config loads tracker settings from .env, the environment and
// command-line flags. Flags win over the environment, which wins over .env.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"solana-wallet-tracker/internal/analyzer"
)

// DefaultRPCEndpoints are the public endpoints tried in order.
var DefaultRPCEndpoints = []string{
	"https://rpc.ankr.com/solana",
	"https://api.mainnet-beta.solana.com",
	"https://solana-rpc.publicnode.com",
}

// Storage backends.
const (
	StorageFile       = "file"
	StorageMemory     = "memory"
	StoragePostgres   = "postgres"
	EventStoreDefault = ""
	EventStoreCH      = "clickhouse"
)

// Config holds all runtime settings.
type Config struct {
	RPCEndpoints   []string
	WatchedWallets []string

	DataDir       string
	Storage       string
	EventStore    string
	PostgresDSN   string
	ClickhouseDSN string
	RedisAddr     string
	RedisChannel  string

	HTTPAddr string

	PollInterval         time.Duration
	Throttle             time.Duration
	SigLimit             int
	RPCTimeout           time.Duration
	RPCMaxAttempts       int
	RPCRetryDelay        time.Duration
	MaxConsecutiveErrors int
	ErrorPause           time.Duration
	FeedBuffer           int
	TransferPolicy       analyzer.TransferPolicy

	LogLevel    string
	LogEncoding string
}

// Load reads .env (existing variables are not overridden), then parses args
// with environment values as flag defaults.
func Load(args []string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return parse(args)
}

func parse(args []string) (*Config, error) {
	fs := flag.NewFlagSet("tracker", flag.ContinueOnError)

	var (
		cfg            Config
		endpoints      string
		wallets        string
		transferPolicy string
		err            error
	)

	fs.StringVar(&endpoints, "rpc-endpoints", env("RPC_ENDPOINTS", strings.Join(DefaultRPCEndpoints, ",")), "Comma-separated Solana RPC endpoints in priority order")
	fs.StringVar(&wallets, "wallets", env("WATCHED_WALLETS", ""), "Comma-separated wallets registered when none are persisted")
	fs.StringVar(&cfg.DataDir, "data-dir", env("DATA_DIR", "."), "Directory for file storage")
	fs.StringVar(&cfg.Storage, "storage", env("STORAGE", StorageFile), "Storage backend: file, postgres or memory")
	fs.StringVar(&cfg.EventStore, "event-store", env("EVENT_STORE", EventStoreDefault), "Event store override: clickhouse")
	fs.StringVar(&cfg.PostgresDSN, "postgres-dsn", env("POSTGRES_DSN", ""), "PostgreSQL connection string")
	fs.StringVar(&cfg.ClickhouseDSN, "clickhouse-dsn", env("CLICKHOUSE_DSN", ""), "ClickHouse connection string")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", env("REDIS_ADDR", ""), "Redis address for mirroring the live feed")
	fs.StringVar(&cfg.RedisChannel, "redis-channel", env("REDIS_CHANNEL", "wallet-tracker:events"), "Redis Pub/Sub channel")
	fs.StringVar(&cfg.HTTPAddr, "http-addr", env("HTTP_ADDR", defaultHTTPAddr()), "HTTP listen address")
	fs.StringVar(&transferPolicy, "transfer-policy", env("TRANSFER_POLICY", string(analyzer.TransferDrop)), "Unchanged balance policy: drop or emit")
	fs.StringVar(&cfg.LogLevel, "log-level", env("LOG_LEVEL", "info"), "Log level: debug, info, warn, error")
	fs.StringVar(&cfg.LogEncoding, "log-encoding", env("LOG_ENCODING", "json"), "Log encoding: json or console")

	durations := []struct {
		dst  *time.Duration
		name string
		key  string
		def  time.Duration
		help string
	}{
		{&cfg.PollInterval, "poll-interval", "POLL_INTERVAL", 20 * time.Second, "Delay between cycles"},
		{&cfg.Throttle, "throttle", "THROTTLE", 120 * time.Millisecond, "Delay before each transaction fetch"},
		{&cfg.RPCTimeout, "rpc-timeout", "RPC_TIMEOUT", 30 * time.Second, "Per-request RPC timeout"},
		{&cfg.RPCRetryDelay, "rpc-retry-delay", "RPC_RETRY_DELAY", time.Second, "Linear RPC backoff step"},
		{&cfg.ErrorPause, "error-pause", "ERROR_PAUSE", 5 * time.Second, "Extra pause after a failed cycle"},
	}
	for _, d := range durations {
		def, err := envDuration(d.key, d.def)
		if err != nil {
			return nil, err
		}
		fs.DurationVar(d.dst, d.name, def, d.help)
	}

	ints := []struct {
		dst  *int
		name string
		key  string
		def  int
		help string
	}{
		{&cfg.SigLimit, "sig-limit", "SIG_LIMIT", 20, "Signatures fetched per wallet per cycle"},
		{&cfg.RPCMaxAttempts, "rpc-max-attempts", "RPC_MAX_ATTEMPTS", 3, "Passes over the endpoint list per call"},
		{&cfg.MaxConsecutiveErrors, "max-consecutive-errors", "MAX_CONSECUTIVE_ERRORS", 10, "Failed cycles before the loop stops"},
		{&cfg.FeedBuffer, "feed-buffer", "FEED_BUFFER", 64, "Live feed queue length per subscriber"},
	}
	for _, i := range ints {
		def, err := envInt(i.key, i.def)
		if err != nil {
			return nil, err
		}
		fs.IntVar(i.dst, i.name, def, i.help)
	}

	if err = fs.Parse(args); err != nil {
		return nil, err
	}

	cfg.RPCEndpoints = splitList(endpoints)
	cfg.WatchedWallets = splitList(wallets)
	cfg.TransferPolicy = analyzer.TransferPolicy(strings.ToLower(transferPolicy))
	return &cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case len(c.RPCEndpoints) == 0:
		return errors.New("at least one RPC endpoint is required")
	case c.Storage != StorageFile && c.Storage != StorageMemory && c.Storage != StoragePostgres:
		return fmt.Errorf("unknown storage backend %q", c.Storage)
	case c.Storage == StoragePostgres && c.PostgresDSN == "":
		return errors.New("--postgres-dsn is required for postgres storage")
	case c.Storage == StorageFile && c.DataDir == "":
		return errors.New("--data-dir is required for file storage")
	case c.EventStore != EventStoreDefault && c.EventStore != EventStoreCH:
		return fmt.Errorf("unknown event store %q", c.EventStore)
	case c.EventStore == EventStoreCH && c.ClickhouseDSN == "":
		return errors.New("--clickhouse-dsn is required for the clickhouse event store")
	case c.PollInterval <= 0:
		return errors.New("poll interval must be positive")
	case c.Throttle < 0:
		return errors.New("throttle must not be negative")
	case c.SigLimit <= 0 || c.SigLimit > 1000:
		return errors.New("signature limit must be between 1 and 1000")
	case c.RPCTimeout <= 0:
		return errors.New("rpc timeout must be positive")
	case c.RPCMaxAttempts <= 0:
		return errors.New("rpc max attempts must be positive")
	case c.RPCRetryDelay < 0:
		return errors.New("rpc retry delay must not be negative")
	case c.MaxConsecutiveErrors <= 0:
		return errors.New("max consecutive errors must be positive")
	case c.ErrorPause < 0:
		return errors.New("error pause must not be negative")
	case c.FeedBuffer <= 0:
		return errors.New("feed buffer must be positive")
	case !c.TransferPolicy.Valid():
		return fmt.Errorf("unknown transfer policy %q", c.TransferPolicy)
	case c.HTTPAddr == "":
		return errors.New("http address is required")
	}
	return nil
}

func defaultHTTPAddr() string {
	if port := os.Getenv("PORT"); port != "" {
		return ":" + port
	}
	return ":8000"
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envDuration accepts Go durations ("20s") and bare seconds ("0.12").
func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d, nil
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q", key, v)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q", key, v)
	}
	return n, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
