package stub

import (
	"context"
	"errors"
	"sync"

	"solana-wallet-tracker/internal/solana"
)

// ErrNotFound is returned when a transaction is not found.
var ErrNotFound = errors.New("not found")

// RPCClient implements solana.RPCClient for testing.
type RPCClient struct {
	mu           sync.Mutex
	Transactions map[string]*solana.Transaction
	Signatures   map[string][]solana.SignatureInfo
	// SignatureErrors makes GetSignaturesForAddress fail for an address.
	SignatureErrors map[string]error

	txCalls map[string]int
}

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Transactions:    make(map[string]*solana.Transaction),
		Signatures:      make(map[string][]solana.SignatureInfo),
		SignatureErrors: make(map[string]error),
		txCalls:         make(map[string]int),
	}
}

// GetTransaction retrieves a transaction by signature from the stub store.
func (c *RPCClient) GetTransaction(_ context.Context, signature string) (*solana.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.txCalls[signature]++
	tx, ok := c.Transactions[signature]
	if !ok {
		return nil, ErrNotFound
	}
	return tx, nil
}

// GetSignaturesForAddress retrieves signatures for an address from the stub store.
func (c *RPCClient) GetSignaturesForAddress(_ context.Context, address string, opts *solana.SignaturesOpts) ([]solana.SignatureInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.SignatureErrors[address]; err != nil {
		return nil, err
	}

	sigs, ok := c.Signatures[address]
	if !ok {
		return nil, nil
	}

	// Apply limit if specified
	if opts != nil && opts.Limit > 0 && opts.Limit < len(sigs) {
		sigs = sigs[:opts.Limit]
	}

	return append([]solana.SignatureInfo(nil), sigs...), nil
}

// AddTransaction adds a transaction to the stub store.
func (c *RPCClient) AddTransaction(tx *solana.Transaction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Transactions[tx.Signature] = tx
}

// AddSignatures sets signatures for an address, newest first.
func (c *RPCClient) AddSignatures(address string, sigs ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	infos := make([]solana.SignatureInfo, len(sigs))
	for i, s := range sigs {
		infos[i] = solana.SignatureInfo{Signature: s}
	}
	c.Signatures[address] = infos
}

// FailSignatures makes signature lookups for address return err.
func (c *RPCClient) FailSignatures(address string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.SignatureErrors[address] = err
}

// TransactionCalls returns how many times a signature was fetched.
func (c *RPCClient) TransactionCalls(signature string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.txCalls[signature]
}

var _ solana.RPCClient = (*RPCClient)(nil)
