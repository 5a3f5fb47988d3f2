package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kpizzy812/solana-sniper-sub000/internal/domain"
	"github.com/kpizzy812/solana-sniper-sub000/internal/ledger"
	"github.com/kpizzy812/solana-sniper-sub000/internal/ledger/ledgertest"
	"github.com/kpizzy812/solana-sniper-sub000/internal/service"
)

const target = "7GCihgDB8fe6KNjn2MYtkzZcRjQy3t9GHdC8uHYmW2hr"

type fakeSwaps struct {
	mu sync.Mutex

	impact   decimal.Decimal
	quoteErr error
	swapErr  error

	quotes    int
	swaps     int
	lastQuote domain.QuoteRequest
}

func (f *fakeSwaps) GetQuote(ctx context.Context, req domain.QuoteRequest) (*domain.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quotes++
	f.lastQuote = req
	if f.quoteErr != nil {
		return nil, f.quoteErr
	}
	return &domain.Quote{
		InputMint:            req.InputMint,
		OutputMint:           req.OutputMint,
		InAmount:             req.Amount,
		OutAmount:            req.Amount * 10,
		OtherAmountThreshold: req.Amount * 10 * 95 / 100,
		SlippageBps:          req.SlippageBps,
		PriceImpactPct:       f.impact,
		Tier:                 domain.TierFree,
	}, nil
}

func (f *fakeSwaps) GetSwapTransaction(ctx context.Context, req domain.SwapRequest) (*domain.SwapTransaction, error) {
	f.mu.Lock()
	f.swaps++
	err := f.swapErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	tx, err := ledgertest.UnsignedTransaction(req.UserPublicKey)
	if err != nil {
		return nil, err
	}
	return &domain.SwapTransaction{Transaction: tx, Tier: req.Quote.Tier}, nil
}

type fixture struct {
	swaps  *fakeSwaps
	ledger *ledgertest.Ledger
	exec   *Executor
	wallet *domain.Wallet
}

func newFixture(t *testing.T, cfg Config, mutate func(*fakeSwaps, *ledgertest.Ledger)) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	swaps := &fakeSwaps{impact: decimal.RequireFromString("0.5")}
	led := &ledgertest.Ledger{}
	if mutate != nil {
		mutate(swaps, led)
	}

	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	risk := service.NewRiskService(service.RiskConfig{MaxPriceImpactPct: decimal.NewFromInt(15)}, logger)
	confirmer := ledger.NewPollConfirmer(led, 5*time.Millisecond, logger)

	// Each call to now advances 10ms so latency is deterministic.
	var mu sync.Mutex
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(10 * time.Millisecond)
		return clock
	}

	return &fixture{
		swaps:  swaps,
		ledger: led,
		exec:   New(cfg, swaps, led, confirmer, risk, logger, WithClock(now)),
		wallet: domain.NewWallet(0, key, 0),
	}
}

func (f *fixture) run(amount uint64) domain.TradeResult {
	return f.exec.Execute(context.Background(), Request{Wallet: f.wallet, TargetMint: target, Amount: amount, Index: 2})
}

func TestExecute_Success(t *testing.T) {
	f := newFixture(t, Config{SlippageBps: 500, Simulate: true, ConfirmTimeout: time.Second}, nil)

	res := f.run(100_000_000)

	require.True(t, res.Success, res.Error())
	assert.False(t, res.Unconfirmed)
	assert.Equal(t, "sig-a", res.Signature)
	assert.Equal(t, domain.KindNone, res.ErrorKind)
	assert.Equal(t, 2, res.Index)
	assert.Equal(t, f.wallet.Address.String(), res.Wallet)
	assert.Equal(t, uint64(100_000_000), res.InputAmount)
	require.NotNil(t, res.OutputAmount)
	// The slippage floor, not the quoted estimate.
	assert.Equal(t, uint64(950_000_000), *res.OutputAmount)
	require.NotNil(t, res.PriceImpactPct)
	assert.Equal(t, "0.5", res.PriceImpactPct.String())
	assert.Equal(t, domain.TierFree, res.Tier)
	assert.Equal(t, 10*time.Millisecond, res.Latency)

	assert.Equal(t, domain.WrappedSOLMint, f.swaps.lastQuote.InputMint)
	assert.Equal(t, target, f.swaps.lastQuote.OutputMint)
	assert.Equal(t, 500, f.swaps.lastQuote.SlippageBps)

	_, sims, sends, _ := f.ledger.Counts()
	assert.Equal(t, 1, sims)
	assert.Equal(t, 1, sends)
	assert.Equal(t, int64(1), f.exec.Submissions())

	// The executor never touches wallet bookkeeping.
	assert.Equal(t, 0, f.wallet.Trades())
}

func TestExecute_PriceImpactAbortsBeforeSubmission(t *testing.T) {
	f := newFixture(t, Config{Simulate: true}, func(s *fakeSwaps, _ *ledgertest.Ledger) {
		s.impact = decimal.NewFromInt(20)
	})

	res := f.run(100_000_000)

	assert.False(t, res.Success)
	assert.Equal(t, domain.KindPriceImpact, res.ErrorKind)
	assert.ErrorIs(t, res.Err, domain.ErrPriceImpactExceeded)
	assert.Empty(t, res.Signature)
	require.NotNil(t, res.PriceImpactPct)
	assert.Equal(t, "20", res.PriceImpactPct.String())

	assert.Equal(t, 0, f.swaps.swaps, "no transaction is built")
	_, sims, sends, _ := f.ledger.Counts()
	assert.Zero(t, sims)
	assert.Zero(t, sends)
	assert.Zero(t, f.exec.Submissions())
}

func TestExecute_QuoteErrorsAreClassified(t *testing.T) {
	cases := []struct {
		err  error
		kind domain.ErrorKind
	}{
		{domain.ErrQuoteUnavailable, domain.KindQuoteUnavailable},
		{domain.ErrRateLimited, domain.KindRateLimited},
		{domain.ErrQuoteParse, domain.KindQuoteParse},
		{domain.ErrTransientNetwork, domain.KindTransientNetwork},
	}
	for _, tc := range cases {
		t.Run(string(tc.kind), func(t *testing.T) {
			f := newFixture(t, Config{}, func(s *fakeSwaps, _ *ledgertest.Ledger) { s.quoteErr = tc.err })
			res := f.run(1_000)
			assert.False(t, res.Success)
			assert.Equal(t, tc.kind, res.ErrorKind)
			assert.Nil(t, res.PriceImpactPct)
			assert.Zero(t, f.exec.Submissions())
		})
	}
}

func TestExecute_SimulationFailureSkipsSubmission(t *testing.T) {
	f := newFixture(t, Config{Simulate: true}, func(_ *fakeSwaps, l *ledgertest.Ledger) {
		l.SimulationFails = true
	})

	res := f.run(1_000)

	assert.False(t, res.Success)
	assert.Equal(t, domain.KindSimulation, res.ErrorKind)
	assert.Contains(t, res.Error(), "InstructionError")
	_, _, sends, _ := f.ledger.Counts()
	assert.Zero(t, sends)
}

func TestExecute_SimulationUnavailableStillSubmits(t *testing.T) {
	f := newFixture(t, Config{Simulate: true, ConfirmTimeout: time.Second}, func(_ *fakeSwaps, l *ledgertest.Ledger) {
		l.SimulateErr = errors.New("connection reset")
	})

	res := f.run(1_000)

	assert.True(t, res.Success, res.Error())
	_, _, sends, _ := f.ledger.Counts()
	assert.Equal(t, 1, sends)
}

func TestExecute_SimulationDisabled(t *testing.T) {
	f := newFixture(t, Config{Simulate: false, ConfirmTimeout: time.Second}, func(_ *fakeSwaps, l *ledgertest.Ledger) {
		l.SimulationFails = true
	})

	res := f.run(1_000)

	assert.True(t, res.Success, res.Error())
	_, sims, _, _ := f.ledger.Counts()
	assert.Zero(t, sims)
}

func TestExecute_SendRejected(t *testing.T) {
	f := newFixture(t, Config{}, func(_ *fakeSwaps, l *ledgertest.Ledger) {
		l.SendErr = fmt.Errorf("%w: %w", domain.ErrSubmissionFailed,
			&ledger.RPCError{Code: -32002, Message: "blockhash not found"})
	})

	res := f.run(1_000)

	assert.False(t, res.Success)
	assert.Equal(t, domain.KindSubmission, res.ErrorKind)
	assert.Contains(t, res.Error(), "blockhash not found")
	assert.Empty(t, res.Signature)
	assert.Equal(t, int64(1), f.exec.Submissions())
	_, _, _, statuses := f.ledger.Counts()
	assert.Zero(t, statuses)
}

func TestExecute_SendTimeoutTracksLocalSignature(t *testing.T) {
	sendTimeout := fmt.Errorf("%w: http request: context deadline exceeded", domain.ErrTransientNetwork)

	t.Run("landed", func(t *testing.T) {
		f := newFixture(t, Config{ConfirmTimeout: time.Second}, func(_ *fakeSwaps, l *ledgertest.Ledger) {
			l.SendErr = sendTimeout
		})

		res := f.run(1_000)

		require.True(t, res.Success, res.Error())
		assert.False(t, res.Unconfirmed)
		require.NotEmpty(t, res.Signature)
		_, err := solana.SignatureFromBase58(res.Signature)
		require.NoError(t, err)
		require.NotNil(t, res.OutputAmount)
	})

	t.Run("never observed", func(t *testing.T) {
		f := newFixture(t, Config{ConfirmTimeout: 30 * time.Millisecond}, func(_ *fakeSwaps, l *ledgertest.Ledger) {
			l.SendErr = sendTimeout
			l.Unconfirmed = true
		})

		res := f.run(1_000)

		assert.True(t, res.Success)
		assert.True(t, res.Unconfirmed)
		assert.NotEmpty(t, res.Signature)
		assert.Equal(t, domain.KindConfirmationTimeout, res.ErrorKind)
	})

	t.Run("failed on chain", func(t *testing.T) {
		f := newFixture(t, Config{ConfirmTimeout: time.Second}, func(_ *fakeSwaps, l *ledgertest.Ledger) {
			l.SendErr = sendTimeout
			l.ChainErr = true
		})

		res := f.run(1_000)

		assert.False(t, res.Success)
		assert.NotEmpty(t, res.Signature)
		assert.Equal(t, domain.KindSubmission, res.ErrorKind)
	})
}

func TestExecute_UnconfirmedCountsAsSuccess(t *testing.T) {
	f := newFixture(t, Config{ConfirmTimeout: 30 * time.Millisecond}, func(_ *fakeSwaps, l *ledgertest.Ledger) {
		l.Unconfirmed = true
	})

	res := f.run(1_000)

	assert.True(t, res.Success)
	assert.True(t, res.Unconfirmed)
	assert.Equal(t, "sig-a", res.Signature)
	assert.Equal(t, domain.KindConfirmationTimeout, res.ErrorKind)
	require.NotNil(t, res.OutputAmount)
}

func TestExecute_ChainErrorIsFailureWithSignature(t *testing.T) {
	f := newFixture(t, Config{ConfirmTimeout: time.Second}, func(_ *fakeSwaps, l *ledgertest.Ledger) {
		l.ChainErr = true
	})

	res := f.run(1_000)

	assert.False(t, res.Success)
	assert.Equal(t, "sig-a", res.Signature)
	assert.Equal(t, domain.KindSubmission, res.ErrorKind)
	assert.Nil(t, res.OutputAmount)
}

func TestExecute_BuildFailure(t *testing.T) {
	f := newFixture(t, Config{}, func(s *fakeSwaps, _ *ledgertest.Ledger) {
		s.swapErr = domain.ErrUnauthorized
	})

	res := f.run(1_000)

	assert.False(t, res.Success)
	assert.Equal(t, domain.KindAuthorization, res.ErrorKind)
	assert.Zero(t, f.exec.Submissions())
}
