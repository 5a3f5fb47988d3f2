// Package ledger talks to the Solana ledger: a JSON-RPC 2.0 client, a
// websocket signature subscriber, and transaction signing.
package ledger

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/kpizzy812/solana-sniper-sub000/internal/backoff"
	"github.com/kpizzy812/solana-sniper-sub000/internal/domain"
	"github.com/kpizzy812/solana-sniper-sub000/internal/ratelimit"
)

// Default configuration values.
const (
	DefaultTimeout        = 10 * time.Second
	DefaultCommitment     = domain.CommitmentConfirmed
	DefaultSendMaxRetries = 3
)

// HTTPClient implements domain.Ledger over HTTP JSON-RPC 2.0. Every attempt,
// retries included, takes a token from the limiter first.
type HTTPClient struct {
	endpoint       string
	client         *http.Client
	policy         backoff.Policy
	sleep          backoff.Sleeper
	limiter        ratelimit.Acquirer
	commitment     string
	sendMaxRetries int
	requestID      atomic.Uint64
}

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.client.Timeout = d
	}
}

// WithBackoff sets the retry policy for transport errors and 429s.
func WithBackoff(p backoff.Policy) ClientOption {
	return func(c *HTTPClient) {
		c.policy = p
	}
}

// WithSleeper replaces the retry sleeper.
func WithSleeper(s backoff.Sleeper) ClientOption {
	return func(c *HTTPClient) {
		c.sleep = s
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// WithLimiter gates every request through l.
func WithLimiter(l ratelimit.Acquirer) ClientOption {
	return func(c *HTTPClient) {
		c.limiter = l
	}
}

// WithCommitment sets the commitment used for reads and simulation.
func WithCommitment(commitment string) ClientOption {
	return func(c *HTTPClient) {
		c.commitment = commitment
	}
}

// WithSendMaxRetries sets the node-side rebroadcast count for sendTransaction.
func WithSendMaxRetries(n int) ClientOption {
	return func(c *HTTPClient) {
		c.sendMaxRetries = n
	}
}

// NewHTTPClient creates a new Solana RPC HTTP client.
func NewHTTPClient(endpoint string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		endpoint:       endpoint,
		client:         &http.Client{Timeout: DefaultTimeout},
		policy:         backoff.Default(),
		sleep:          backoff.Sleep,
		limiter:        ratelimit.Unlimited{},
		commitment:     DefaultCommitment,
		sendMaxRetries: DefaultSendMaxRetries,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is a JSON-RPC error object returned by the node.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// call performs a JSON-RPC call. Transport failures, non-200 responses and
// 429s are retried per the backoff policy; RPC errors are not retried.
func (c *HTTPClient) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("ledger: %s: marshal request: %w", method, err)
	}

	var raw json.RawMessage
	err = c.policy.Do(ctx, c.sleep, func(int) (bool, error) {
		if err := c.limiter.Acquire(ctx); err != nil {
			return false, err
		}
		var retry bool
		raw, retry, err = c.post(ctx, body)
		return retry, err
	})
	if err != nil {
		return fmt.Errorf("ledger: %s: %w", method, err)
	}

	if result != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, result); err != nil {
			return fmt.Errorf("ledger: %s: unmarshal result: %w", method, err)
		}
	}
	return nil
}

func (c *HTTPClient) post(ctx context.Context, body []byte) (json.RawMessage, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		return nil, true, fmt.Errorf("%w: http request: %v", domain.ErrTransientNetwork, err)
	}
	respBody, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, true, fmt.Errorf("%w: read response: %v", domain.ErrTransientNetwork, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, true, fmt.Errorf("%w: %w: status 429", domain.ErrTransientNetwork, domain.ErrRateLimited)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, false, fmt.Errorf("%w: status %d", domain.ErrUnauthorized, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, true, fmt.Errorf("%w: unexpected status %d: %s", domain.ErrTransientNetwork, resp.StatusCode, truncate(respBody, 200))
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, true, fmt.Errorf("%w: unmarshal response: %v", domain.ErrTransientNetwork, err)
	}
	if rpcResp.Error != nil {
		return nil, false, rpcResp.Error
	}
	return rpcResp.Result, false, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

type contextValue[T any] struct {
	Context struct {
		Slot uint64 `json:"slot"`
	} `json:"context"`
	Value T `json:"value"`
}

// GetBalance returns the lamport balance of account.
func (c *HTTPClient) GetBalance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	var res contextValue[uint64]
	params := []interface{}{
		account.String(),
		map[string]interface{}{"commitment": c.commitment},
	}
	if err := c.call(ctx, "getBalance", params, &res); err != nil {
		return 0, err
	}
	return res.Value, nil
}

// GetLatestBlockhash returns a recent block reference.
func (c *HTTPClient) GetLatestBlockhash(ctx context.Context) (*domain.BlockhashInfo, error) {
	var res contextValue[struct {
		Blockhash            string `json:"blockhash"`
		LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
	}]
	params := []interface{}{map[string]interface{}{"commitment": c.commitment}}
	if err := c.call(ctx, "getLatestBlockhash", params, &res); err != nil {
		return nil, err
	}
	if res.Value.Blockhash == "" {
		return nil, fmt.Errorf("ledger: getLatestBlockhash: empty blockhash")
	}
	return &domain.BlockhashInfo{
		Blockhash:            res.Value.Blockhash,
		LastValidBlockHeight: res.Value.LastValidBlockHeight,
	}, nil
}

// SimulateTransaction runs a signed transaction against current ledger state
// without submitting it.
func (c *HTTPClient) SimulateTransaction(ctx context.Context, wireTx []byte) (*domain.SimulationResult, error) {
	var res contextValue[struct {
		Err           json.RawMessage `json:"err"`
		Logs          []string        `json:"logs"`
		UnitsConsumed uint64          `json:"unitsConsumed"`
	}]
	params := []interface{}{
		base64.StdEncoding.EncodeToString(wireTx),
		map[string]interface{}{
			"encoding":               "base64",
			"sigVerify":              false,
			"replaceRecentBlockhash": false,
			"commitment":             c.commitment,
		},
	}
	if err := c.call(ctx, "simulateTransaction", params, &res); err != nil {
		return nil, err
	}
	return &domain.SimulationResult{
		Err:           res.Value.Err,
		Logs:          res.Value.Logs,
		UnitsConsumed: res.Value.UnitsConsumed,
	}, nil
}

// SendTransaction submits a signed transaction and returns its signature.
// Preflight is skipped; simulation is the executor's job. A node rejection
// is reported as domain.ErrSubmissionFailed.
func (c *HTTPClient) SendTransaction(ctx context.Context, wireTx []byte) (string, error) {
	var sig string
	params := []interface{}{
		base64.StdEncoding.EncodeToString(wireTx),
		map[string]interface{}{
			"encoding":            "base64",
			"skipPreflight":       true,
			"preflightCommitment": c.commitment,
			"maxRetries":          c.sendMaxRetries,
		},
	}
	if err := c.call(ctx, "sendTransaction", params, &sig); err != nil {
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) {
			return "", fmt.Errorf("%w: %w", domain.ErrSubmissionFailed, err)
		}
		return "", err
	}
	if sig == "" {
		return "", fmt.Errorf("%w: empty signature", domain.ErrSubmissionFailed)
	}
	return sig, nil
}

// GetSignatureStatus returns the status of one signature, or
// domain.ErrNotFound if the node has not seen it yet.
func (c *HTTPClient) GetSignatureStatus(ctx context.Context, signature string) (*domain.SignatureStatus, error) {
	var res contextValue[[]*struct {
		Slot               uint64          `json:"slot"`
		Err                json.RawMessage `json:"err"`
		ConfirmationStatus string          `json:"confirmationStatus"`
	}]
	params := []interface{}{
		[]string{signature},
		map[string]interface{}{"searchTransactionHistory": false},
	}
	if err := c.call(ctx, "getSignatureStatuses", params, &res); err != nil {
		return nil, err
	}
	if len(res.Value) == 0 || res.Value[0] == nil {
		return nil, domain.ErrNotFound
	}
	st := res.Value[0]
	return &domain.SignatureStatus{
		Slot:               st.Slot,
		ConfirmationStatus: st.ConfirmationStatus,
		Err:                st.Err,
	}, nil
}

// Compile-time interface check.
var _ domain.Ledger = (*HTTPClient)(nil)
