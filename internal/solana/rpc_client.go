package solana

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"solana-wallet-tracker/internal/observability"
)

// Default configuration values.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = 1 * time.Second
)

// ErrUnavailable is returned when every endpoint failed on every attempt.
var ErrUnavailable = errors.New("all rpc endpoints failed")

// HTTPClient implements RPCClient using HTTP JSON-RPC 2.0 against an ordered
// list of equivalent endpoints. Endpoints are always tried in list order.
type HTTPClient struct {
	endpoints   []string
	client      *http.Client
	maxAttempts int
	retryDelay  time.Duration
	logger      *zap.Logger
	requestID   atomic.Uint64
}

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets HTTP client timeout for a single endpoint attempt.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.client.Timeout = d
	}
}

// WithMaxAttempts sets the number of passes over the endpoint list.
func WithMaxAttempts(n int) ClientOption {
	return func(c *HTTPClient) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithRetryDelay sets the linear backoff step between passes.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.retryDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// WithLogger sets the logger used for endpoint failures.
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *HTTPClient) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewHTTPClient creates a new Solana RPC HTTP client over the given endpoints.
func NewHTTPClient(endpoints []string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		endpoints:   append([]string(nil), endpoints...),
		client:      &http.Client{Timeout: DefaultTimeout},
		maxAttempts: DefaultMaxAttempts,
		retryDelay:  DefaultRetryDelay,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoints returns the configured endpoints in priority order.
func (c *HTTPClient) Endpoints() []string {
	return append([]string(nil), c.endpoints...)
}

// rpcRequest represents a JSON-RPC 2.0 request.
type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

// rpcResponse represents a JSON-RPC 2.0 response.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError represents a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// Call performs a JSON-RPC call with endpoint failover and linear backoff.
// The result is decoded into result when non-nil.
func (c *HTTPClient) Call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	if len(c.endpoints) == 0 {
		return fmt.Errorf("%s: no endpoints configured: %w", method, ErrUnavailable)
	}

	reqBody := rpcRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  method,
		Params:  params,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	start := time.Now()
	defer func() {
		observability.RecordRPCLatency(method, time.Since(start).Seconds())
	}()

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			delay := c.retryDelay * time.Duration(attempt-1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		for _, endpoint := range c.endpoints {
			raw, err := c.callEndpoint(ctx, endpoint, body)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				lastErr = fmt.Errorf("%s: %w", endpoint, err)
				observability.RecordRPCEndpointFailure(endpoint)
				c.logger.Debug("RPC endpoint failed",
					zap.String("method", method),
					zap.String("endpoint", endpoint),
					zap.Int("attempt", attempt),
					zap.Error(err))
				continue
			}

			if result != nil {
				if err := json.Unmarshal(raw, result); err != nil {
					lastErr = fmt.Errorf("%s: unmarshal %s result: %w", endpoint, method, err)
					observability.RecordRPCEndpointFailure(endpoint)
					c.logger.Debug("RPC endpoint returned unusable result",
						zap.String("method", method),
						zap.String("endpoint", endpoint),
						zap.Int("attempt", attempt),
						zap.Error(err))
					continue
				}
			}
			return nil
		}
	}

	observability.RecordRPCFailure(method)
	return fmt.Errorf("%s after %d attempts: %w: %w", method, c.maxAttempts, ErrUnavailable, lastErr)
}

// callEndpoint performs one request against one endpoint and returns the raw result.
func (c *HTTPClient) callEndpoint(ctx context.Context, endpoint string, body []byte) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}

	if len(rpcResp.Result) == 0 || string(rpcResp.Result) == "null" {
		return nil, errors.New("response has no result")
	}

	return rpcResp.Result, nil
}

// GetTransaction retrieves a transaction by signature.
func (c *HTTPClient) GetTransaction(ctx context.Context, signature string) (*Transaction, error) {
	params := []interface{}{
		signature,
		map[string]interface{}{
			"encoding":                       "json",
			"maxSupportedTransactionVersion": 0,
		},
	}

	var result getTransactionResult
	if err := c.Call(ctx, "getTransaction", params, &result); err != nil {
		return nil, err
	}

	return result.toTransaction(signature), nil
}

// getTransactionResult is the raw RPC response for getTransaction.
// Every section is optional; callers validate what they need.
type getTransactionResult struct {
	Slot        int64               `json:"slot"`
	BlockTime   *int64              `json:"blockTime"`
	Meta        *getTransactionMeta `json:"meta"`
	Transaction *getTransactionTx   `json:"transaction"`
}

type getTransactionMeta struct {
	Err               interface{}       `json:"err"`
	Fee               *uint64           `json:"fee"`
	PreTokenBalances  []rawTokenBalance `json:"preTokenBalances"`
	PostTokenBalances []rawTokenBalance `json:"postTokenBalances"`
	LogMessages       []string          `json:"logMessages"`
}

type rawTokenBalance struct {
	AccountIndex  int               `json:"accountIndex"`
	Mint          string            `json:"mint"`
	Owner         string            `json:"owner"`
	UITokenAmount *rawUITokenAmount `json:"uiTokenAmount"`
}

type rawUITokenAmount struct {
	Amount         string   `json:"amount"`
	Decimals       *int     `json:"decimals"`
	UIAmount       *float64 `json:"uiAmount"`
	UIAmountString string   `json:"uiAmountString"`
}

type getTransactionTx struct {
	Signatures []string               `json:"signatures"`
	Message    *getTransactionMessage `json:"message"`
}

// accountKeys is a list of strings with encoding "json"; with "jsonParsed"
// entries are objects, which are skipped here.
type getTransactionMessage struct {
	AccountKeys []json.RawMessage `json:"accountKeys"`
}

func (r *getTransactionResult) toTransaction(signature string) *Transaction {
	tx := &Transaction{
		Slot:      r.Slot,
		Signature: signature,
		BlockTime: r.BlockTime,
	}

	if r.Meta != nil {
		tx.Meta = &TransactionMeta{
			Err:               r.Meta.Err,
			Fee:               r.Meta.Fee,
			PreTokenBalances:  convertTokenBalances(r.Meta.PreTokenBalances),
			PostTokenBalances: convertTokenBalances(r.Meta.PostTokenBalances),
			LogMessages:       r.Meta.LogMessages,
		}
	}

	if r.Transaction != nil && r.Transaction.Message != nil {
		msg := &TransactionMessage{}
		for _, raw := range r.Transaction.Message.AccountKeys {
			var key string
			if err := json.Unmarshal(raw, &key); err == nil {
				msg.AccountKeys = append(msg.AccountKeys, key)
			}
		}
		tx.Message = msg
	}

	return tx
}

func convertTokenBalances(raw []rawTokenBalance) []TokenBalance {
	if len(raw) == 0 {
		return nil
	}
	out := make([]TokenBalance, 0, len(raw))
	for _, b := range raw {
		tb := TokenBalance{
			AccountIndex: b.AccountIndex,
			Mint:         b.Mint,
			Owner:        b.Owner,
		}
		if b.UITokenAmount != nil {
			tb.UITokenAmount = UITokenAmount{
				Amount:         b.UITokenAmount.Amount,
				Decimals:       b.UITokenAmount.Decimals,
				UIAmount:       b.UITokenAmount.UIAmount,
				UIAmountString: b.UITokenAmount.UIAmountString,
			}
		}
		out = append(out, tb)
	}
	return out
}

// GetSignaturesForAddress retrieves signatures for an address, newest first.
func (c *HTTPClient) GetSignaturesForAddress(ctx context.Context, address string, opts *SignaturesOpts) ([]SignatureInfo, error) {
	config := make(map[string]interface{})
	if opts != nil {
		if opts.Before != "" {
			config["before"] = opts.Before
		}
		if opts.Until != "" {
			config["until"] = opts.Until
		}
		if opts.Limit > 0 {
			config["limit"] = opts.Limit
		}
	}

	params := []interface{}{address}
	if len(config) > 0 {
		params = append(params, config)
	}

	var result []getSignaturesResult
	if err := c.Call(ctx, "getSignaturesForAddress", params, &result); err != nil {
		return nil, err
	}

	sigs := make([]SignatureInfo, len(result))
	for i, r := range result {
		sigs[i] = SignatureInfo{
			Signature: r.Signature,
			Slot:      r.Slot,
			BlockTime: r.BlockTime,
			Err:       r.Err,
		}
	}

	return sigs, nil
}

// getSignaturesResult is the raw RPC response item for getSignaturesForAddress.
type getSignaturesResult struct {
	Signature string      `json:"signature"`
	Slot      int64       `json:"slot"`
	BlockTime *int64      `json:"blockTime"`
	Err       interface{} `json:"err"`
}

// Compile-time interface check.
var _ RPCClient = (*HTTPClient)(nil)
