// Package server exposes the management and dashboard HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"solana-wallet-tracker/internal/feed"
	"solana-wallet-tracker/internal/observability"
	"solana-wallet-tracker/internal/storage"
	"solana-wallet-tracker/internal/tracker"
)

// DefaultEventLimit caps /api/events when no limit is given.
const DefaultEventLimit = 100

// maxEventLimit caps any requested limit.
const maxEventLimit = 1000

// Wallets is the registry surface used by the API.
type Wallets interface {
	List() []string
	Add(ctx context.Context, address string) error
	Remove(ctx context.Context, address string) error
}

// SeenCounter reports how many signatures were processed per wallet.
type SeenCounter interface {
	SeenCount(wallet string) int
}

// StatusSource reports runner state.
type StatusSource interface {
	Status() tracker.Status
}

// Options configures Server. Feed and Status may be nil.
type Options struct {
	Wallets Wallets
	Seen    SeenCounter
	Events  storage.EventStore
	Feed    *feed.Feed
	Status  StatusSource
	Logger  *zap.Logger
}

// Server serves the management API.
type Server struct {
	wallets Wallets
	seen    SeenCounter
	events  storage.EventStore
	feed    *feed.Feed
	status  StatusSource
	logger  *zap.Logger
}

// New creates a Server.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		wallets: opts.Wallets,
		seen:    opts.Seen,
		events:  opts.Events,
		feed:    opts.Feed,
		status:  opts.Status,
		logger:  logger,
	}
}

// Router returns the API routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.Handle("/metrics", observability.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/wallets", s.handleListWallets).Methods(http.MethodGet)
	api.HandleFunc("/wallets", s.handleAddWallet).Methods(http.MethodPost)
	api.HandleFunc("/wallets/{address}", s.handleRemoveWallet).Methods(http.MethodDelete)
	api.HandleFunc("/events", s.handleListEvents).Methods(http.MethodGet)
	api.HandleFunc("/ws", s.handleWebSocket).Methods(http.MethodGet)

	return r
}

// HTTPServer wraps Router in an http.Server listening on addr.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

var errNoRunner = errors.New("runner status unavailable")
