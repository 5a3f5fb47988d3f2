package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kpizzy812/solana-sniper-sub000/internal/config"
	"github.com/kpizzy812/solana-sniper-sub000/internal/crypto"
	"github.com/kpizzy812/solana-sniper-sub000/internal/domain"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// rpcServer answers getBalance with 1 SOL for every account.
func rpcServer(t *testing.T) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     uint64 `json:"id"`
			Method string `json:"method"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Method != "getBalance" {
			http.Error(w, "unexpected method", http.StatusBadRequest)
			return
		}
		calls.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  map[string]any{"context": map[string]any{"slot": 1}, "value": 1_000_000_000},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func testConfig(t *testing.T, rpcURL string, wallets int) *config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.Solana.RPCURL = rpcURL
	cfg.Metrics.Enabled = false
	cfg.MultiWallet.BalanceBatchDelay.Duration = 0
	cfg.MultiWallet.InitialDelay.Duration = 0
	for i := 0; i < wallets; i++ {
		key, err := crypto.GenerateKey()
		require.NoError(t, err)
		cfg.Wallet.PrivateKeys = append(cfg.Wallet.PrivateKeys, crypto.EncodePrivateKey(key))
	}
	require.NoError(t, cfg.Validate())
	return &cfg
}

func TestWire_SingleWallet(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1", 2)

	deps, cleanup, err := Wire(context.Background(), cfg, discard())
	require.NoError(t, err)
	defer cleanup()

	assert.False(t, deps.MultiWallet())
	require.NotNil(t, deps.Orchestrator)
	assert.Equal(t, deps.Keys[0].PublicKey(), deps.Orchestrator.Wallet().Address)
	assert.Nil(t, deps.Redis)
	assert.Nil(t, deps.Locks)
	assert.Equal(t, domain.TierFree, deps.Jupiter.PreferredTier())
}

func TestWire_RejectsBadKeys(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1", 1)
	cfg.Wallet.PrivateKeys = []string{"not-a-key"}

	_, _, err := Wire(context.Background(), cfg, discard())
	require.ErrorContains(t, err, "wire: wallet keys")
}

func TestBalances_MultiWallet(t *testing.T) {
	rpc, calls := rpcServer(t)
	cfg := testConfig(t, rpc.URL, 3)
	cfg.MultiWallet.Enabled = true
	cfg.MultiWallet.BalanceBatchSize = 2

	a := New(cfg, discard())
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st, err := a.Balances(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(3), calls.Load())
	assert.Equal(t, 3, st.Wallets)
	assert.Equal(t, "3", st.TotalBalanceSOL)
	// 0.02 SOL gas reserve per wallet.
	assert.Equal(t, "2.94", st.TotalAvailableSOL)
	assert.Equal(t, 3, st.Eligible)
}

func TestBuy_RejectedTargetNeverTrades(t *testing.T) {
	rpc, calls := rpcServer(t)
	cfg := testConfig(t, rpc.URL, 1)

	a := New(cfg, discard())
	defer a.Close()

	_, err := a.Buy(context.Background(), domain.Trigger{TargetMint: domain.WrappedSOLMint})
	require.ErrorIs(t, err, domain.ErrTargetRejected)
	assert.Zero(t, calls.Load())
}
