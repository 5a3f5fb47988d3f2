package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kpizzy812/solana-sniper-sub000/internal/domain"
	"github.com/kpizzy812/solana-sniper-sub000/internal/executor"
	"github.com/kpizzy812/solana-sniper-sub000/internal/observability"
)

const target = "7GCihgDB8fe6KNjn2MYtkzZcRjQy3t9GHdC8uHYmW2hr"

func TestSmartSplit_ThreeWay(t *testing.T) {
	total := domain.SOLFloatToLamports(0.3)
	got := SmartSplit(total, 3)

	assert.Equal(t, []uint64{150_000_000, 90_000_000, 60_000_000}, got)
	assert.Equal(t, total, sum(got))
	for i := 1; i < len(got); i++ {
		assert.LessOrEqual(t, got[i], got[i-1], "amounts must be non-increasing")
	}
}

func TestSmartSplit_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for iter := 0; iter < 2000; iter++ {
		n := 2 + rng.Intn(20)
		total := uint64(rng.Int63n(1_000 * domain.LamportsPerSOL))
		if iter%10 == 0 {
			total = uint64(rng.Intn(50))
		}

		amounts := SmartSplit(total, n)
		require.Len(t, amounts, n)
		require.Equal(t, total, sum(amounts), "n=%d total=%d", n, total)

		remaining := total
		for i := 0; i < n-1; i++ {
			require.LessOrEqual(t, amounts[i]*10, remaining*6, "slot %d exceeds 60%% of %d", i, remaining)
			remaining -= amounts[i]
		}
	}
}

func TestSmartSplit_Edges(t *testing.T) {
	assert.Nil(t, SmartSplit(100, 0))
	assert.Equal(t, []uint64{100}, SmartSplit(100, 1))
	assert.Equal(t, uint64(18_446_744_073_709_551_615), sum(SmartSplit(18_446_744_073_709_551_615, 4)))
}

func TestPlanAmounts(t *testing.T) {
	cfg := Config{DefaultCount: 2, DefaultAmount: 50_000_000, MaxTradeAmount: 300_000_000}

	assert.Equal(t, []uint64{50_000_000, 50_000_000}, PlanAmounts(cfg, domain.Trigger{}, 0))
	assert.Equal(t, []uint64{7, 7, 7}, PlanAmounts(cfg, domain.Trigger{TradeCount: 3, AmountPerTrade: 7}, 0))

	cfg.SmartSplit = true
	assert.Equal(t, []uint64{150_000_000, 90_000_000, 60_000_000},
		PlanAmounts(cfg, domain.Trigger{TradeCount: 3, AmountPerTrade: 100_000_000}, 0))

	// Max balance mode ignores count and amount.
	assert.Equal(t, []uint64{200_000_000}, PlanAmounts(cfg, domain.Trigger{UseMaxBalance: true, TradeCount: 5}, 200_000_000))
	assert.Equal(t, []uint64{300_000_000}, PlanAmounts(cfg, domain.Trigger{UseMaxBalance: true}, 900_000_000))
	assert.Empty(t, PlanAmounts(cfg, domain.Trigger{UseMaxBalance: true}, 0))

	// Max balance mode never plans at or below the dust floor.
	cfg.DustFloor = 1_000_000
	assert.Empty(t, PlanAmounts(cfg, domain.Trigger{UseMaxBalance: true}, 1))
	assert.Empty(t, PlanAmounts(cfg, domain.Trigger{UseMaxBalance: true}, 1_000_000))
	assert.Equal(t, []uint64{1_000_001}, PlanAmounts(cfg, domain.Trigger{UseMaxBalance: true}, 1_000_001))
	assert.Empty(t, PlanAmounts(Config{MaxTradeAmount: 500, DustFloor: 1_000}, domain.Trigger{UseMaxBalance: true}, 900_000))
	cfg.DustFloor = 0

	// Dust totals drop the zero slots.
	assert.Equal(t, []uint64{1}, PlanAmounts(cfg, domain.Trigger{TradeCount: 1, AmountPerTrade: 1}, 0))
	assert.Empty(t, PlanAmounts(Config{}, domain.Trigger{TradeCount: 3}, 0))
}

type fakeLocks struct {
	err      error
	released int
}

func (f *fakeLocks) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if f.err != nil {
		return nil, f.err
	}
	return func() { f.released++ }, nil
}

func TestGuard(t *testing.T) {
	ctx := context.Background()

	g := NewGuard(nil, "pool", 0)
	release, err := g.Enter(ctx)
	require.NoError(t, err)
	_, err = g.Enter(ctx)
	require.ErrorIs(t, err, domain.ErrSessionInProgress)
	release()
	release, err = g.Enter(ctx)
	require.NoError(t, err)
	release()

	locks := &fakeLocks{}
	g = NewGuard(locks, "pool", time.Minute)
	release, err = g.Enter(ctx)
	require.NoError(t, err)
	release()
	assert.Equal(t, 1, locks.released)

	locks.err = domain.ErrLockHeld
	_, err = g.Enter(ctx)
	require.ErrorIs(t, err, domain.ErrSessionInProgress)

	locks.err = errors.New("redis down")
	_, err = g.Enter(ctx)
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrSessionInProgress)

	// A failed remote acquire must not leave the local lock held.
	locks.err = nil
	release, err = g.Enter(ctx)
	require.NoError(t, err)
	release()
}

type fakeTrader struct {
	mu       sync.Mutex
	requests []executor.Request
	fail     map[int]bool
	inFlight atomic.Int32
	peak     atomic.Int32
	hold     time.Duration
}

func (f *fakeTrader) Execute(ctx context.Context, req executor.Request) domain.TradeResult {
	cur := f.inFlight.Add(1)
	for {
		p := f.peak.Load()
		if cur <= p || f.peak.CompareAndSwap(p, cur) {
			break
		}
	}
	if f.hold > 0 {
		time.Sleep(f.hold)
	}
	f.inFlight.Add(-1)

	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	res := domain.TradeResult{
		Index:       req.Index,
		Wallet:      req.Wallet.Address.String(),
		InputAmount: req.Amount,
		Latency:     time.Duration(req.Index+1) * 100 * time.Millisecond,
	}
	if f.fail[req.Index] {
		res.Err = domain.ErrQuoteUnavailable
		res.ErrorKind = domain.KindQuoteUnavailable
		return res
	}
	out := req.Amount * 2
	res.Success = true
	res.Signature = "sig"
	res.OutputAmount = &out
	return res
}

type fakeBalances struct{ balance uint64 }

func (f fakeBalances) GetBalance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	return f.balance, nil
}

func newWallet(t *testing.T, reserve uint64) *domain.Wallet {
	t.Helper()
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return domain.NewWallet(0, key, reserve)
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestOrchestrator_Concurrent(t *testing.T) {
	w := newWallet(t, 0)
	trader := &fakeTrader{fail: map[int]bool{2: true}, hold: 50 * time.Millisecond}
	metrics := observability.NewMetrics("test")
	o := NewOrchestrator(Config{SmartSplit: true, Concurrent: true}, w, trader, discard(),
		WithBalances(fakeBalances{balance: domain.LamportsPerSOL}), WithMetrics(metrics))

	s, err := o.Run(context.Background(), domain.Trigger{TargetMint: target, TradeCount: 3, AmountPerTrade: 100_000_000})
	require.NoError(t, err)

	assert.Equal(t, []uint64{150_000_000, 90_000_000, 60_000_000}, s.Planned)
	require.Len(t, s.Results, 3)
	assert.Equal(t, 3, int(trader.peak.Load()), "all trades launched together")

	sum := s.Summarize()
	assert.Equal(t, domain.OutcomePartial, sum.Outcome)
	assert.Equal(t, 2, sum.Successes)
	assert.Equal(t, "0.24", sum.TotalSpentSOL)
	assert.Equal(t, uint64(480_000_000), sum.TotalAcquired)
	assert.Equal(t, int64(150), sum.AvgLatencyMs)

	// Every attempt counted once; only successes reduce the balance.
	assert.Equal(t, 3, w.Trades())
	assert.Equal(t, uint64(760_000_000), w.Balance())
}

func TestOrchestrator_SequentialWithDelay(t *testing.T) {
	w := newWallet(t, 0)
	trader := &fakeTrader{}
	var slept []time.Duration
	sleeper := func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	o := NewOrchestrator(Config{DefaultCount: 3, DefaultAmount: 10, TradeDelay: time.Second}, w, trader, discard(),
		WithSleeper(sleeper))

	s, err := o.Run(context.Background(), domain.Trigger{TargetMint: target})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSuccess, s.Outcome())
	assert.Equal(t, []time.Duration{time.Second, time.Second}, slept)
	assert.Equal(t, int32(1), trader.peak.Load())
	for i, req := range trader.requests {
		assert.Equal(t, i, req.Index)
	}
}

func TestOrchestrator_SequentialCancelled(t *testing.T) {
	w := newWallet(t, 0)
	trader := &fakeTrader{}
	sleeper := func(ctx context.Context, d time.Duration) error { return context.Canceled }
	o := NewOrchestrator(Config{DefaultCount: 3, DefaultAmount: 10, TradeDelay: time.Second}, w, trader, discard(),
		WithSleeper(sleeper))

	s, err := o.Run(context.Background(), domain.Trigger{TargetMint: target})
	require.NoError(t, err)
	assert.Len(t, s.Results, 1)
}

func TestOrchestrator_EmptyPlan(t *testing.T) {
	w := newWallet(t, domain.LamportsPerSOL)
	trader := &fakeTrader{}
	o := NewOrchestrator(Config{MaxTradeAmount: 100}, w, trader, discard(),
		WithBalances(fakeBalances{balance: 1000}))

	s, err := o.Run(context.Background(), domain.Trigger{TargetMint: target, UseMaxBalance: true})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeEmptyPlan, s.Outcome())
	assert.Empty(t, trader.requests)
	assert.Equal(t, 0, w.Trades())
}

func TestOrchestrator_RejectsOverlappingSession(t *testing.T) {
	w := newWallet(t, 0)
	g := NewGuard(nil, "single", 0)
	release, err := g.Enter(context.Background())
	require.NoError(t, err)
	defer release()

	o := NewOrchestrator(Config{DefaultCount: 1, DefaultAmount: 10}, w, &fakeTrader{}, discard(), WithGuard(g))
	_, err = o.Run(context.Background(), domain.Trigger{TargetMint: target})
	assert.ErrorIs(t, err, domain.ErrSessionInProgress)
}

func sum(xs []uint64) uint64 {
	var s uint64
	for _, x := range xs {
		s += x
	}
	return s
}
