// Package jupiter is the client for the Jupiter swap aggregator: quotes,
// unsigned swap transactions and spot prices, served from a paid
// (authenticated) and a free (lite) endpoint tier.
package jupiter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kpizzy812/solana-sniper-sub000/internal/backoff"
	"github.com/kpizzy812/solana-sniper-sub000/internal/domain"
	"github.com/kpizzy812/solana-sniper-sub000/internal/observability"
	"github.com/kpizzy812/solana-sniper-sub000/internal/ratelimit"
)

// Default endpoints.
const (
	DefaultPaidURL  = "https://api.jup.ag/swap/v1"
	DefaultFreeURL  = "https://lite-api.jup.ag/swap/v1"
	DefaultPriceURL = "https://lite-api.jup.ag/price/v2"

	DefaultTimeout     = 5 * time.Second
	DefaultCacheTTL    = 2 * time.Second
	DefaultMaxAccounts = 64
)

// USDCMint is quoted against by HealthCheck.
const USDCMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

// Config holds the client settings.
type Config struct {
	PaidURL  string
	FreeURL  string
	PriceURL string
	// APIKey authenticates paid tier calls and makes paid the preferred
	// tier unless PreferFree is set.
	APIKey string
	// PreferFree tries the free tier first even when a key is configured.
	PreferFree  bool
	Timeout     time.Duration
	CacheTTL    time.Duration
	MaxAccounts int
}

func (c *Config) applyDefaults() {
	if c.PaidURL == "" {
		c.PaidURL = DefaultPaidURL
	}
	if c.FreeURL == "" {
		c.FreeURL = DefaultFreeURL
	}
	if c.PriceURL == "" {
		c.PriceURL = DefaultPriceURL
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = DefaultCacheTTL
	}
	if c.MaxAccounts <= 0 {
		c.MaxAccounts = DefaultMaxAccounts
	}
}

// Client talks to the Jupiter swap API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limits     *ratelimit.Registry
	cache      domain.QuoteCache
	metrics    *observability.Metrics
	now        func() time.Time
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithCache replaces the in-memory quote cache, e.g. with the Redis one.
func WithCache(cache domain.QuoteCache) Option {
	return func(c *Client) { c.cache = cache }
}

// WithRateLimits gates each tier through its bucket in reg.
func WithRateLimits(reg *ratelimit.Registry) Option {
	return func(c *Client) { c.limits = reg }
}

// WithMetrics records request outcomes.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithClock overrides the time source used for quote timestamps and the
// default cache.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// New creates a Jupiter client.
func New(cfg Config, logger *slog.Logger, opts ...Option) *Client {
	cfg.applyDefaults()
	c := &Client{
		cfg:    cfg,
		now:    time.Now,
		logger: logger.With(slog.String("component", "jupiter")),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if c.cache == nil {
		c.cache = NewMemoryCache(c.now)
	}
	return c
}

// PreferredTier is paid when an API key is configured and PreferFree is not
// set, free otherwise.
func (c *Client) PreferredTier() domain.Tier {
	if c.cfg.APIKey != "" && !c.cfg.PreferFree {
		return domain.TierPaid
	}
	return domain.TierFree
}

// tiers returns both tiers, preferred first.
func (c *Client) tiers() []domain.Tier {
	if c.PreferredTier() == domain.TierPaid {
		return []domain.Tier{domain.TierPaid, domain.TierFree}
	}
	return []domain.Tier{domain.TierFree, domain.TierPaid}
}

// QuoteKey is the cache key of a quote request.
func QuoteKey(req domain.QuoteRequest) string {
	return fmt.Sprintf("%s:%s:%d:%d", req.InputMint, req.OutputMint, req.Amount, req.SlippageBps)
}

// GetQuote returns a quote for req, from cache when a fresh one exists.
func (c *Client) GetQuote(ctx context.Context, req domain.QuoteRequest) (*domain.Quote, error) {
	if req.Amount == 0 {
		return nil, fmt.Errorf("jupiter: get quote: amount must be positive")
	}
	key := QuoteKey(req)
	if q, err := c.cache.Get(ctx, key); err == nil {
		c.metrics.RecordQuoteCacheHit()
		return q, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		c.logger.WarnContext(ctx, "quote cache read failed", slog.String("error", err.Error()))
	}

	var quote *domain.Quote
	err := c.withFallback(ctx, "quote", func(tier domain.Tier) error {
		q, err := c.fetchQuote(ctx, tier, req)
		if err != nil {
			return err
		}
		quote = q
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("jupiter: get quote: %w", err)
	}

	if err := c.cache.Set(ctx, key, quote, c.cfg.CacheTTL); err != nil {
		c.logger.WarnContext(ctx, "quote cache write failed", slog.String("error", err.Error()))
	}
	return quote, nil
}

func (c *Client) fetchQuote(ctx context.Context, tier domain.Tier, req domain.QuoteRequest) (*domain.Quote, error) {
	q := url.Values{}
	q.Set("inputMint", req.InputMint)
	q.Set("outputMint", req.OutputMint)
	q.Set("amount", strconv.FormatUint(req.Amount, 10))
	q.Set("slippageBps", strconv.Itoa(req.SlippageBps))
	q.Set("onlyDirectRoutes", "false")
	q.Set("asLegacyTransaction", "false")
	q.Set("maxAccounts", strconv.Itoa(c.cfg.MaxAccounts))

	body, err := c.do(ctx, tier, http.MethodGet, c.baseURL(tier)+"/quote?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	return parseQuote(body, tier, c.now())
}

// GetSwapTransaction asks the service to build the unsigned swap
// transaction for req.Quote.
func (c *Client) GetSwapTransaction(ctx context.Context, req domain.SwapRequest) (*domain.SwapTransaction, error) {
	if req.Quote == nil || len(req.Quote.Raw) == 0 {
		return nil, fmt.Errorf("jupiter: get swap transaction: %w: request has no quote", domain.ErrQuoteParse)
	}
	payload, err := json.Marshal(apiSwapRequest{
		QuoteResponse:             req.Quote.Raw,
		UserPublicKey:             req.UserPublicKey.String(),
		WrapAndUnwrapSol:          req.WrapAndUnwrapSOL,
		AsLegacyTransaction:       false,
		UseTokenLedger:            false,
		DynamicComputeUnitLimit:   true,
		PrioritizationFeeLamports: req.PrioritizationFeeLamports,
		FeeAccount:                req.FeeAccount,
	})
	if err != nil {
		return nil, fmt.Errorf("jupiter: marshal swap request: %w", err)
	}

	var swap *domain.SwapTransaction
	err = c.withFallback(ctx, "swap", func(tier domain.Tier) error {
		body, err := c.do(ctx, tier, http.MethodPost, c.baseURL(tier)+"/swap", payload)
		if err != nil {
			return err
		}
		swap, err = parseSwap(body, tier)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("jupiter: get swap transaction: %w", err)
	}
	return swap, nil
}

// GetPrice returns the price of mint denominated in SOL.
func (c *Client) GetPrice(ctx context.Context, mint string) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("ids", mint)
	q.Set("vsToken", domain.WrappedSOLMint)

	if err := c.acquire(ctx, ratelimit.ServiceJupiterPrice); err != nil {
		return decimal.Zero, err
	}
	body, err := c.send(ctx, http.MethodGet, c.cfg.PriceURL+"?"+q.Encode(), nil, "")
	if err != nil {
		return decimal.Zero, fmt.Errorf("jupiter: get price %s: %w", mint, err)
	}

	var resp apiPriceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("jupiter: decode price: %w", err)
	}
	entry, ok := resp.Data[mint]
	if !ok || entry == nil {
		return decimal.Zero, fmt.Errorf("jupiter: get price %s: %w", mint, domain.ErrNotFound)
	}
	return entry.Price, nil
}

// HealthStatus is the result of HealthCheck.
type HealthStatus struct {
	Healthy          bool          `json:"healthy"`
	Tier             domain.Tier   `json:"tier,omitempty"`
	PreferredTier    domain.Tier   `json:"preferred_tier"`
	APIKeyConfigured bool          `json:"api_key_configured"`
	CacheSize        int           `json:"cache_size"`
	Latency          time.Duration `json:"latency_ns"`
	Error            string        `json:"error,omitempty"`
}

// HealthCheck quotes a small SOL to USDC swap, bypassing the cache.
func (c *Client) HealthCheck(ctx context.Context) HealthStatus {
	st := HealthStatus{
		PreferredTier:    c.PreferredTier(),
		APIKeyConfigured: c.cfg.APIKey != "",
		CacheSize:        c.cache.Len(ctx),
	}
	start := time.Now()
	req := domain.QuoteRequest{
		InputMint:   domain.WrappedSOLMint,
		OutputMint:  USDCMint,
		Amount:      1_000_000,
		SlippageBps: 50,
	}
	err := c.withFallback(ctx, "health", func(tier domain.Tier) error {
		if _, err := c.fetchQuote(ctx, tier, req); err != nil {
			return err
		}
		st.Tier = tier
		return nil
	})
	st.Latency = time.Since(start)
	if err != nil {
		st.Error = err.Error()
		return st
	}
	st.Healthy = true
	return st
}

// ClearCache drops every cached quote.
func (c *Client) ClearCache(ctx context.Context) error {
	return c.cache.Clear(ctx)
}

// CacheSize reports the number of cached quotes.
func (c *Client) CacheSize(ctx context.Context) int {
	return c.cache.Len(ctx)
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// fallbackPolicy tries each tier once with no delay in between.
func (c *Client) fallbackPolicy() backoff.Policy {
	return backoff.Policy{MaxAttempts: len(c.tiers())}
}

// withFallback runs fn against the preferred tier and, if that fails for
// any reason other than a missing route or cancellation, once more against
// the alternate tier.
func (c *Client) withFallback(ctx context.Context, op string, fn func(tier domain.Tier) error) error {
	tiers := c.tiers()
	return c.fallbackPolicy().Do(ctx, nil, func(attempt int) (bool, error) {
		tier := tiers[attempt]
		err := fn(tier)
		if err == nil {
			c.metrics.RecordQuoteRequest(string(tier), op, "ok")
			return false, nil
		}
		c.metrics.RecordQuoteRequest(string(tier), op, string(domain.Classify(err)))
		if ctx.Err() != nil || errors.Is(err, domain.ErrQuoteUnavailable) {
			return false, err
		}
		if attempt+1 < len(tiers) {
			c.logger.WarnContext(ctx, "tier failed, falling back",
				slog.String("op", op),
				slog.String("tier", string(tier)),
				slog.String("fallback", string(tiers[attempt+1])),
				slog.String("error", err.Error()),
			)
		}
		return true, err
	})
}

func (c *Client) baseURL(tier domain.Tier) string {
	if tier == domain.TierPaid {
		return c.cfg.PaidURL
	}
	return c.cfg.FreeURL
}

func (c *Client) acquire(ctx context.Context, service string) error {
	if c.limits == nil {
		return ctx.Err()
	}
	return c.limits.Acquire(ctx, service)
}

// do issues one request against tier after taking a token from that tier's
// bucket.
func (c *Client) do(ctx context.Context, tier domain.Tier, method, rawURL string, body []byte) ([]byte, error) {
	service := ratelimit.ServiceJupiterFree
	apiKey := ""
	if tier == domain.TierPaid {
		service = ratelimit.ServiceJupiterPaid
		apiKey = c.cfg.APIKey
	}
	if err := c.acquire(ctx, service); err != nil {
		return nil, err
	}
	return c.send(ctx, method, rawURL, body, apiKey)
}

func (c *Client) send(ctx context.Context, method, rawURL string, body []byte, apiKey string) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if apiKey != "" {
		req.Header.Set("x-api-key", apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: http request: %v", domain.ErrTransientNetwork, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", domain.ErrTransientNetwork, err)
	}
	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

// checkHTTPStatus maps non-2xx status codes to domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := truncate(body, 200)
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return fmt.Errorf("%w: status %d: %s", domain.ErrUnauthorized, statusCode, bodyStr)
	case statusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	case statusCode >= 500:
		return fmt.Errorf("%w: status %d: %s", domain.ErrTransientNetwork, statusCode, bodyStr)
	case isNoRoute(body):
		return fmt.Errorf("%w: %s", domain.ErrQuoteUnavailable, bodyStr)
	case statusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

var _ domain.SwapClient = (*Client)(nil)
