package jupiter

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kpizzy812/solana-sniper-sub000/internal/domain"
	"github.com/kpizzy812/solana-sniper-sub000/internal/ratelimit"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// tierServer fakes one Jupiter tier. handler sees every request; calls
// counts them.
type tierServer struct {
	*httptest.Server
	calls atomic.Int32
}

func newTierServer(t *testing.T, handler http.HandlerFunc) *tierServer {
	t.Helper()
	ts := &tierServer{}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.calls.Add(1)
		handler(w, r)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func okQuote(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(quoteBody(t, quoteFields("0.5")))
	}
}

func status(code int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(code)
		_, _ = w.Write([]byte(body))
	}
}

var testReq = domain.QuoteRequest{
	InputMint:   domain.WrappedSOLMint,
	OutputMint:  testMint,
	Amount:      100_000_000,
	SlippageBps: 500,
}

func TestGetQuote_PaidAuthFailureFallsBackToFree(t *testing.T) {
	paid := newTierServer(t, status(http.StatusUnauthorized, `{"message":"Invalid API key"}`))
	free := newTierServer(t, okQuote(t))

	c := New(Config{PaidURL: paid.URL, FreeURL: free.URL, APIKey: "k"}, discardLogger())
	q, err := c.GetQuote(context.Background(), testReq)
	require.NoError(t, err)

	assert.Equal(t, domain.TierFree, q.Tier)
	assert.Equal(t, int32(1), paid.calls.Load())
	assert.Equal(t, int32(1), free.calls.Load())
}

func TestGetQuote_PaidPreferredWithKey(t *testing.T) {
	paid := newTierServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "k", r.Header.Get("x-api-key"))
		assert.Equal(t, "/quote", r.URL.Path)
		assert.Equal(t, "100000000", r.URL.Query().Get("amount"))
		assert.Equal(t, "500", r.URL.Query().Get("slippageBps"))
		assert.Equal(t, "64", r.URL.Query().Get("maxAccounts"))
		okQuote(t)(w, r)
	})
	free := newTierServer(t, okQuote(t))

	c := New(Config{PaidURL: paid.URL, FreeURL: free.URL, APIKey: "k"}, discardLogger())
	q, err := c.GetQuote(context.Background(), testReq)
	require.NoError(t, err)
	assert.Equal(t, domain.TierPaid, q.Tier)
	assert.Equal(t, int32(0), free.calls.Load())
}

func TestGetQuote_NoKeyFallsBackToPaid(t *testing.T) {
	paid := newTierServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("x-api-key"))
		okQuote(t)(w, r)
	})
	free := newTierServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("x-api-key"))
		status(http.StatusServiceUnavailable, "")(w, r)
	})

	c := New(Config{PaidURL: paid.URL, FreeURL: free.URL}, discardLogger())
	assert.Equal(t, domain.TierFree, c.PreferredTier())

	q, err := c.GetQuote(context.Background(), testReq)
	require.NoError(t, err)
	assert.Equal(t, domain.TierPaid, q.Tier)
	assert.Equal(t, int32(1), free.calls.Load())
	assert.Equal(t, int32(1), paid.calls.Load())
}

func TestGetQuote_PreferFreeWithKey(t *testing.T) {
	paid := newTierServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "k", r.Header.Get("x-api-key"))
		okQuote(t)(w, r)
	})
	free := newTierServer(t, status(http.StatusBadGateway, ""))

	c := New(Config{PaidURL: paid.URL, FreeURL: free.URL, APIKey: "k", PreferFree: true}, discardLogger())
	assert.Equal(t, domain.TierFree, c.PreferredTier())

	q, err := c.GetQuote(context.Background(), testReq)
	require.NoError(t, err)
	assert.Equal(t, domain.TierPaid, q.Tier)
	assert.Equal(t, int32(1), free.calls.Load())
}

func TestGetQuote_BothTiersFail(t *testing.T) {
	paid := newTierServer(t, status(http.StatusServiceUnavailable, ""))
	free := newTierServer(t, status(http.StatusTooManyRequests, ""))

	c := New(Config{PaidURL: paid.URL, FreeURL: free.URL, APIKey: "k"}, discardLogger())
	_, err := c.GetQuote(context.Background(), testReq)
	require.ErrorIs(t, err, domain.ErrRateLimited, "the last tier's error is returned")
	assert.Equal(t, int32(1), paid.calls.Load())
	assert.Equal(t, int32(1), free.calls.Load())
}

func TestGetQuote_NoRouteDoesNotFallBack(t *testing.T) {
	paid := newTierServer(t, status(http.StatusBadRequest, `{"error":"No routes found","errorCode":"COULD_NOT_FIND_ANY_ROUTE"}`))
	free := newTierServer(t, okQuote(t))

	c := New(Config{PaidURL: paid.URL, FreeURL: free.URL, APIKey: "k"}, discardLogger())
	_, err := c.GetQuote(context.Background(), testReq)
	require.ErrorIs(t, err, domain.ErrQuoteUnavailable)
	assert.Equal(t, int32(0), free.calls.Load())
}

func TestGetQuote_ParseFailureFallsBack(t *testing.T) {
	paid := newTierServer(t, func(w http.ResponseWriter, r *http.Request) {
		fields := quoteFields("0.5")
		delete(fields, "otherAmountThreshold")
		_, _ = w.Write(quoteBody(t, fields))
	})
	free := newTierServer(t, okQuote(t))

	c := New(Config{PaidURL: paid.URL, FreeURL: free.URL, APIKey: "k"}, discardLogger())
	q, err := c.GetQuote(context.Background(), testReq)
	require.NoError(t, err)
	assert.Equal(t, domain.TierFree, q.Tier)
}

func TestGetQuote_Cache(t *testing.T) {
	free := newTierServer(t, okQuote(t))

	var mu sync.Mutex
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		now = now.Add(d)
		mu.Unlock()
	}

	c := New(Config{FreeURL: free.URL, CacheTTL: 2 * time.Second}, discardLogger(), WithClock(clock))
	ctx := context.Background()

	_, err := c.GetQuote(ctx, testReq)
	require.NoError(t, err)
	_, err = c.GetQuote(ctx, testReq)
	require.NoError(t, err)
	assert.Equal(t, int32(1), free.calls.Load(), "second call served from cache")
	assert.Equal(t, 1, c.CacheSize(ctx))

	other := testReq
	other.SlippageBps = 100
	_, err = c.GetQuote(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, int32(2), free.calls.Load(), "slippage is part of the key")

	advance(2 * time.Second)
	_, err = c.GetQuote(ctx, testReq)
	require.NoError(t, err)
	assert.Equal(t, int32(3), free.calls.Load(), "expired entry refetched")

	require.NoError(t, c.ClearCache(ctx))
	assert.Equal(t, 0, c.CacheSize(ctx))
}

func TestGetQuote_RateLimitedPerTier(t *testing.T) {
	paid := newTierServer(t, status(http.StatusUnauthorized, ""))
	free := newTierServer(t, okQuote(t))

	reg := ratelimit.NewRegistry(map[string]ratelimit.Limit{
		ratelimit.ServiceJupiterPaid: {Rate: 100, Burst: 10},
		ratelimit.ServiceJupiterFree: {Rate: 100, Burst: 10},
	}, ratelimit.Limit{Rate: 100, Burst: 10}, nil)

	var mu sync.Mutex
	seen := map[string]int{}
	reg.OnWait(func(service string, _ time.Duration) {
		mu.Lock()
		seen[service]++
		mu.Unlock()
	})

	c := New(Config{PaidURL: paid.URL, FreeURL: free.URL, APIKey: "k"}, discardLogger(), WithRateLimits(reg))
	_, err := c.GetQuote(context.Background(), testReq)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, seen[ratelimit.ServiceJupiterPaid])
	assert.Equal(t, 1, seen[ratelimit.ServiceJupiterFree])
}

func TestGetQuote_ZeroAmount(t *testing.T) {
	c := New(Config{}, discardLogger())
	req := testReq
	req.Amount = 0
	_, err := c.GetQuote(context.Background(), req)
	require.Error(t, err)
}

func TestGetSwapTransaction(t *testing.T) {
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	paid := newTierServer(t, status(http.StatusInternalServerError, ""))
	free := newTierServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/swap", r.URL.Path)

		var body map[string]json.RawMessage
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.JSONEq(t, `"`+key.PublicKey().String()+`"`, string(body["userPublicKey"]))
		assert.JSONEq(t, `true`, string(body["wrapAndUnwrapSol"]))
		assert.JSONEq(t, `true`, string(body["dynamicComputeUnitLimit"]))
		assert.JSONEq(t, `false`, string(body["asLegacyTransaction"]))
		assert.JSONEq(t, `100000`, string(body["prioritizationFeeLamports"]))
		assert.JSONEq(t, `"52340000000"`, string(mustField(t, body["quoteResponse"], "outAmount")))

		_, _ = w.Write([]byte(`{"swapTransaction":"AQAB","lastValidBlockHeight":42}`))
	})

	c := New(Config{PaidURL: paid.URL, FreeURL: free.URL, APIKey: "k"}, discardLogger())
	q, err := parseQuote(quoteBody(t, quoteFields("0.5")), domain.TierPaid, time.Now())
	require.NoError(t, err)

	tx, err := c.GetSwapTransaction(context.Background(), domain.SwapRequest{
		Quote:                     q,
		UserPublicKey:             key.PublicKey(),
		PrioritizationFeeLamports: 100_000,
		WrapAndUnwrapSOL:          true,
	})
	require.NoError(t, err)
	assert.Equal(t, "AQAB", tx.Transaction)
	assert.Equal(t, domain.TierFree, tx.Tier)
	assert.Equal(t, int32(1), paid.calls.Load())
}

func TestGetSwapTransaction_MissingTransaction(t *testing.T) {
	missing := func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"lastValidBlockHeight":42}`))
	}
	paid, free := newTierServer(t, missing), newTierServer(t, missing)
	c := New(Config{PaidURL: paid.URL, FreeURL: free.URL}, discardLogger())
	q, err := parseQuote(quoteBody(t, quoteFields("0.5")), domain.TierFree, time.Now())
	require.NoError(t, err)

	_, err = c.GetSwapTransaction(context.Background(), domain.SwapRequest{Quote: q})
	require.ErrorIs(t, err, domain.ErrQuoteParse)

	_, err = c.GetSwapTransaction(context.Background(), domain.SwapRequest{})
	require.ErrorIs(t, err, domain.ErrQuoteParse)
}

func mustField(t *testing.T, raw json.RawMessage, field string) json.RawMessage {
	t.Helper()
	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &m))
	return m[field]
}

func TestGetPrice(t *testing.T) {
	srv := newTierServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, domain.WrappedSOLMint, r.URL.Query().Get("vsToken"))
		_, _ = w.Write([]byte(`{"data":{"` + testMint + `":{"id":"` + testMint + `","type":"derivedPrice","price":"0.0000019107"}},"timeTaken":0.003}`))
	})

	c := New(Config{PriceURL: srv.URL}, discardLogger())
	price, err := c.GetPrice(context.Background(), testMint)
	require.NoError(t, err)
	assert.Equal(t, "0.0000019107", price.String())

	_, err = c.GetPrice(context.Background(), "unknownMint")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestHealthCheck(t *testing.T) {
	paid := newTierServer(t, status(http.StatusForbidden, ""))
	free := newTierServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, USDCMint, r.URL.Query().Get("outputMint"))
		okQuote(t)(w, r)
	})

	c := New(Config{PaidURL: paid.URL, FreeURL: free.URL, APIKey: "k"}, discardLogger())
	st := c.HealthCheck(context.Background())
	assert.True(t, st.Healthy)
	assert.Equal(t, domain.TierFree, st.Tier)
	assert.Equal(t, domain.TierPaid, st.PreferredTier)
	assert.True(t, st.APIKeyConfigured)
	assert.Empty(t, st.Error)
}

func TestHealthCheck_Unhealthy(t *testing.T) {
	paid := newTierServer(t, status(http.StatusUnauthorized, ""))
	free := newTierServer(t, status(http.StatusBadGateway, ""))
	c := New(Config{PaidURL: paid.URL, FreeURL: free.URL}, discardLogger())
	st := c.HealthCheck(context.Background())
	assert.False(t, st.Healthy)
	assert.NotEmpty(t, st.Error)
	assert.False(t, st.APIKeyConfigured)
	assert.Equal(t, int32(1), paid.calls.Load())
}
