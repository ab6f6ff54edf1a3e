package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"solana-wallet-tracker/internal/domain"
	"solana-wallet-tracker/internal/registry"
	"solana-wallet-tracker/internal/storage"
)

// WalletView is one entry of GET /api/wallets.
type WalletView struct {
	Address        string `json:"address"`
	OnCurve        bool   `json:"on_curve"`
	SeenSignatures int    `json:"seen_signatures"`
}

type addWalletRequest struct {
	Address string `json:"address"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	if s.status == nil {
		writeError(w, http.StatusServiceUnavailable, errNoRunner)
		return
	}
	writeJSON(w, http.StatusOK, s.status.Status())
}

func (s *Server) handleListWallets(w http.ResponseWriter, _ *http.Request) {
	wallets := s.wallets.List()
	views := make([]WalletView, 0, len(wallets))
	for _, addr := range wallets {
		v := WalletView{Address: addr, OnCurve: domain.IsOnCurve(addr)}
		if s.seen != nil {
			v.SeenSignatures = s.seen.SeenCount(addr)
		}
		views = append(views, v)
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleAddWallet(w http.ResponseWriter, r *http.Request) {
	var req addWalletRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	err := s.wallets.Add(r.Context(), req.Address)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, WalletView{Address: req.Address, OnCurve: domain.IsOnCurve(req.Address)})
	case errors.Is(err, domain.ErrInvalidAddress):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, registry.ErrAlreadyExists):
		writeError(w, http.StatusConflict, err)
	default:
		s.logger.Error("add wallet failed", zap.String("wallet", req.Address), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
	}
}

func (s *Server) handleRemoveWallet(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]

	err := s.wallets.Remove(r.Context(), address)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, registry.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	default:
		s.logger.Error("remove wallet failed", zap.String("wallet", address), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
	}
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := DefaultEventLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", raw))
			return
		}
		limit = min(n, maxEventLimit)
	}

	events, err := s.events.List(r.Context(), storage.EventFilter{
		Wallet: q.Get("wallet"),
		Limit:  limit,
	})
	if err != nil {
		s.logger.Error("list events failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if events == nil {
		events = []*domain.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}
