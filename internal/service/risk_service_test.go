package service

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kpizzy812/solana-sniper-sub000/internal/domain"
)

const target = "7GCihgDB8fe6KNjn2MYtkzZcRjQy3t9GHdC8uHYmW2hr"

func newRisk(cfg RiskConfig) *RiskService {
	return NewRiskService(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestCheckTarget(t *testing.T) {
	s := newRisk(RiskConfig{Blacklist: []string{" DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263 "}})
	ctx := context.Background()

	require.NoError(t, s.CheckTarget(ctx, target))

	for _, mint := range []string{
		"",
		"not-base58!",
		domain.WrappedSOLMint,
		"DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263",
	} {
		err := s.CheckTarget(ctx, mint)
		assert.ErrorIs(t, err, domain.ErrTargetRejected, mint)
	}
}

func TestCheckQuote_PriceImpact(t *testing.T) {
	s := newRisk(RiskConfig{MaxPriceImpactPct: decimal.NewFromInt(15)})
	ctx := context.Background()

	q := &domain.Quote{OutAmount: 1000, OtherAmountThreshold: 950, PriceImpactPct: decimal.NewFromInt(20)}
	err := s.CheckQuote(ctx, q)
	require.ErrorIs(t, err, domain.ErrPriceImpactExceeded)
	assert.Equal(t, domain.KindPriceImpact, domain.Classify(err))

	q.PriceImpactPct = decimal.NewFromInt(15)
	assert.NoError(t, s.CheckQuote(ctx, q), "ceiling is inclusive")

	q.PriceImpactPct = decimal.RequireFromString("0.0123")
	assert.NoError(t, s.CheckQuote(ctx, q))
}

func TestCheckQuote_Slippage(t *testing.T) {
	s := newRisk(RiskConfig{MaxPriceImpactPct: decimal.NewFromInt(15), SlippageBps: 500, CheckSlippage: true})
	ctx := context.Background()

	ok := &domain.Quote{OutAmount: 1_000_000, OtherAmountThreshold: 950_000}
	assert.NoError(t, s.CheckQuote(ctx, ok))

	bad := &domain.Quote{OutAmount: 1_000_000, OtherAmountThreshold: 900_000}
	assert.ErrorIs(t, s.CheckQuote(ctx, bad), domain.ErrSlippageExceeded)

	off := newRisk(RiskConfig{SlippageBps: 500})
	assert.NoError(t, off.CheckQuote(ctx, bad))
}

func TestMinimumOutput(t *testing.T) {
	assert.Equal(t, uint64(950), MinimumOutput(1000, 500))
	assert.Equal(t, uint64(1000), MinimumOutput(1000, 0))
	assert.Equal(t, uint64(0), MinimumOutput(1000, 10_000))
	assert.Equal(t, uint64(17_524_406_870_024_074_034), MinimumOutput(18_446_744_073_709_551_615, 500))
}
