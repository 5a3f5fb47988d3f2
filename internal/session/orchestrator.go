package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kpizzy812/solana-sniper-sub000/internal/backoff"
	"github.com/kpizzy812/solana-sniper-sub000/internal/domain"
	"github.com/kpizzy812/solana-sniper-sub000/internal/executor"
	"github.com/kpizzy812/solana-sniper-sub000/internal/observability"
)

// Trader executes one planned trade.
type Trader interface {
	Execute(ctx context.Context, req executor.Request) domain.TradeResult
}

// BalanceReader reads a wallet's ledger balance.
type BalanceReader interface {
	GetBalance(ctx context.Context, account solana.PublicKey) (uint64, error)
}

// Config controls how a single-wallet session is planned and dispatched.
type Config struct {
	DefaultCount   int
	DefaultAmount  uint64
	MaxTradeAmount uint64
	// DustFloor is the smallest spendable balance worth a max-balance trade.
	DustFloor  uint64
	SmartSplit bool
	// Concurrent launches every trade at once; otherwise trades run one
	// after another with TradeDelay between them.
	Concurrent bool
	TradeDelay time.Duration
}

// Orchestrator runs sessions for one wallet.
type Orchestrator struct {
	cfg      Config
	wallet   *domain.Wallet
	trader   Trader
	balances BalanceReader
	guard    *Guard
	metrics  *observability.Metrics
	sleep    backoff.Sleeper
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithGuard replaces the default in-process guard.
func WithGuard(g *Guard) Option { return func(o *Orchestrator) { o.guard = g } }

// WithBalances refreshes the wallet balance before planning.
func WithBalances(b BalanceReader) Option { return func(o *Orchestrator) { o.balances = b } }

// WithMetrics records session outcomes.
func WithMetrics(m *observability.Metrics) Option { return func(o *Orchestrator) { o.metrics = m } }

// WithSleeper overrides the inter-trade sleep.
func WithSleeper(s backoff.Sleeper) Option { return func(o *Orchestrator) { o.sleep = s } }

// WithClock overrides the session clock.
func WithClock(now func() time.Time) Option { return func(o *Orchestrator) { o.now = now } }

// NewOrchestrator creates an Orchestrator for wallet.
func NewOrchestrator(cfg Config, wallet *domain.Wallet, trader Trader, logger *slog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:    cfg,
		wallet: wallet,
		trader: trader,
		sleep:  backoff.Sleep,
		now:    time.Now,
		logger: logger.With(slog.String("component", "session")),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.guard == nil {
		o.guard = NewGuard(nil, wallet.Address.String(), 0)
	}
	return o
}

// Wallet returns the wallet this orchestrator trades with.
func (o *Orchestrator) Wallet() *domain.Wallet { return o.wallet }

// Run executes one trigger. It fails only when another session holds the
// wallet; trade failures are reported inside the session.
func (o *Orchestrator) Run(ctx context.Context, t domain.Trigger) (*domain.TradingSession, error) {
	release, err := o.guard.Enter(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	s := &domain.TradingSession{
		ID:         uuid.NewString(),
		TargetMint: t.TargetMint,
		Source:     t.Source,
		StartedAt:  o.now(),
	}
	log := o.logger.With(
		slog.String("session", s.ID),
		slog.String("target", t.TargetMint),
	)

	if o.balances != nil {
		bal, err := o.balances.GetBalance(ctx, o.wallet.Address)
		if err != nil {
			log.Warn("balance refresh failed, using last known balance", slog.String("error", err.Error()))
		} else {
			o.wallet.SetBalance(bal)
		}
	}

	s.Planned = PlanAmounts(o.cfg, t, o.wallet.Available())
	if len(s.Planned) == 0 {
		s.FinishedAt = o.now()
		log.Warn("empty plan, nothing sent")
		o.metrics.RecordSession(string(s.Outcome()))
		return s, nil
	}

	log.Info("session started",
		slog.Int("trades", len(s.Planned)),
		slog.Bool("concurrent", o.cfg.Concurrent),
		slog.String("wallet", domain.ShortAddress(o.wallet.Address.String())),
	)

	if o.cfg.Concurrent {
		s.Results = o.runConcurrent(ctx, t.TargetMint, s.Planned)
	} else {
		s.Results = o.runSequential(ctx, t.TargetMint, s.Planned)
	}
	s.FinishedAt = o.now()

	sum := s.Summarize()
	o.metrics.RecordSession(string(sum.Outcome))
	log.Info("session finished",
		slog.String("outcome", string(sum.Outcome)),
		slog.Int("successes", sum.Successes),
		slog.Int("failures", sum.Failures),
		slog.String("spent_sol", sum.TotalSpentSOL),
		slog.Int64("elapsed_ms", sum.ElapsedMs),
	)
	return s, nil
}

func (o *Orchestrator) runConcurrent(ctx context.Context, mint string, amounts []uint64) []domain.TradeResult {
	results := make([]domain.TradeResult, len(amounts))
	var g errgroup.Group
	for i, amount := range amounts {
		g.Go(func() error {
			results[i] = o.trader.Execute(ctx, executor.Request{
				Wallet: o.wallet, TargetMint: mint, Amount: amount, Index: i,
			})
			return nil
		})
	}
	_ = g.Wait()

	// Write back after every attempt has resolved, in plan order.
	for _, r := range results {
		o.wallet.RecordAttempt(r.InputAmount, r.Success, o.now())
	}
	return results
}

func (o *Orchestrator) runSequential(ctx context.Context, mint string, amounts []uint64) []domain.TradeResult {
	results := make([]domain.TradeResult, 0, len(amounts))
	for i, amount := range amounts {
		if i > 0 && o.cfg.TradeDelay > 0 {
			if err := o.sleep(ctx, o.cfg.TradeDelay); err != nil {
				o.logger.Warn("session cancelled between trades", slog.Int("remaining", len(amounts)-i))
				break
			}
		}
		r := o.trader.Execute(ctx, executor.Request{
			Wallet: o.wallet, TargetMint: mint, Amount: amount, Index: i,
		})
		o.wallet.RecordAttempt(r.InputAmount, r.Success, o.now())
		results = append(results, r)
	}
	return results
}
