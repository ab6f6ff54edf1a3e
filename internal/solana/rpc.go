package solana

import "context"

// RPCClient defines the Solana RPC read interface used by the tracker.
type RPCClient interface {
	// GetTransaction retrieves a transaction by signature.
	GetTransaction(ctx context.Context, signature string) (*Transaction, error)

	// GetSignaturesForAddress retrieves the most recent signatures for an address, newest first.
	GetSignaturesForAddress(ctx context.Context, address string, opts *SignaturesOpts) ([]SignatureInfo, error)
}

// Transaction represents a Solana transaction.
type Transaction struct {
	Slot      int64
	Signature string
	BlockTime *int64 // Unix timestamp (seconds), nil when not reported
	Meta      *TransactionMeta
	Message   *TransactionMessage
}

// TransactionMeta contains transaction metadata.
type TransactionMeta struct {
	Err               interface{}
	Fee               *uint64 // lamports
	PreTokenBalances  []TokenBalance
	PostTokenBalances []TokenBalance
	LogMessages       []string
}

// TransactionMessage contains parsed transaction message.
type TransactionMessage struct {
	AccountKeys []string
}

// TokenBalance is one SPL token account balance reported in transaction metadata.
type TokenBalance struct {
	AccountIndex  int
	Mint          string
	Owner         string
	UITokenAmount UITokenAmount
}

// UITokenAmount carries a token amount in raw and UI representations.
// Any field may be absent depending on the RPC provider.
type UITokenAmount struct {
	Amount         string   // raw integer amount
	Decimals       *int     // nil when not reported
	UIAmount       *float64 // deprecated by upstream, may be null
	UIAmountString string
}

// SignatureInfo from getSignaturesForAddress.
type SignatureInfo struct {
	Signature string
	Slot      int64
	BlockTime *int64
	Err       interface{}
}

// SignaturesOpts defines optional pagination parameters for getSignaturesForAddress.
type SignaturesOpts struct {
	Before string // Start searching backwards from this signature
	Until  string // Search until this signature
	Limit  int    // Maximum number of signatures to return
}
