// Package scanner finds signatures for a wallet that have not been processed.
package scanner

import (
	"context"
	"fmt"

	"solana-wallet-tracker/internal/solana"
)

// DefaultLimit is the number of recent signatures requested per wallet.
const DefaultLimit = 20

// SeenChecker reports whether a signature was already processed for a wallet.
type SeenChecker interface {
	IsSeen(wallet, signature string) bool
}

// Scanner fetches recent signatures and filters out processed ones.
type Scanner struct {
	rpc   solana.RPCClient
	seen  SeenChecker
	limit int
}

// New creates a Scanner. A non-positive limit uses DefaultLimit.
func New(rpc solana.RPCClient, seen SeenChecker, limit int) *Scanner {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Scanner{rpc: rpc, seen: seen, limit: limit}
}

// Scan returns the unseen signatures for wallet, newest first as reported
// upstream. It never marks anything seen.
func (s *Scanner) Scan(ctx context.Context, wallet string) ([]string, error) {
	infos, err := s.rpc.GetSignaturesForAddress(ctx, wallet, &solana.SignaturesOpts{Limit: s.limit})
	if err != nil {
		return nil, fmt.Errorf("get signatures for %s: %w", wallet, err)
	}

	var unseen []string
	dup := make(map[string]struct{}, len(infos))
	for _, info := range infos {
		if info.Signature == "" {
			continue
		}
		if _, ok := dup[info.Signature]; ok {
			continue
		}
		dup[info.Signature] = struct{}{}
		if s.seen.IsSeen(wallet, info.Signature) {
			continue
		}
		unseen = append(unseen, info.Signature)
	}
	return unseen, nil
}
