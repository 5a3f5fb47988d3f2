package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kpizzy812/solana-sniper-sub000/internal/backoff"
	"github.com/kpizzy812/solana-sniper-sub000/internal/domain"
	"github.com/kpizzy812/solana-sniper-sub000/internal/executor"
	"github.com/kpizzy812/solana-sniper-sub000/internal/observability"
	"github.com/kpizzy812/solana-sniper-sub000/internal/session"
)

// Config controls a multi-wallet session.
type Config struct {
	Plan PlanConfig

	DefaultCount  int
	DefaultAmount uint64

	// InitialDelay runs before the first balance refresh of every session.
	InitialDelay time.Duration

	BatchSize  int
	BatchDelay time.Duration
	// Entries after the first in a batch wait a random jitter in
	// [JitterMin, JitterMax) before dispatch.
	JitterMin time.Duration
	JitterMax time.Duration

	BalanceBatchSize  int
	BalanceBatchDelay time.Duration
}

func (c *Config) defaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 4
	}
	if c.BalanceBatchSize <= 0 {
		c.BalanceBatchSize = 5
	}
	if c.JitterMax < c.JitterMin {
		c.JitterMax = c.JitterMin
	}
}

// Stats are lifetime totals for one manager.
type Stats struct {
	Sessions      int       `json:"sessions"`
	Successes     int       `json:"successful_trades"`
	Failures      int       `json:"failed_trades"`
	SpentLamports uint64    `json:"spent_lamports"`
	SpentSOL      string    `json:"spent_sol"`
	SuccessRate   float64   `json:"success_rate"`
	LastSession   time.Time `json:"last_session,omitempty"`
}

// Manager plans and dispatches trades across a wallet pool.
type Manager struct {
	cfg      Config
	pool     *Pool
	trader   session.Trader
	balances session.BalanceReader
	planner  *Planner
	rng      *rand.Rand
	guard    *session.Guard
	metrics  *observability.Metrics
	sleep    backoff.Sleeper
	now      func() time.Time
	logger   *slog.Logger

	mu    sync.Mutex
	stats Stats
}

// Option configures a Manager.
type Option func(*Manager)

// WithGuard replaces the default in-process session guard.
func WithGuard(g *session.Guard) Option { return func(m *Manager) { m.guard = g } }

// WithMetrics records sessions and pool gauges.
func WithMetrics(mt *observability.Metrics) Option { return func(m *Manager) { m.metrics = mt } }

// WithSleeper overrides every delay.
func WithSleeper(s backoff.Sleeper) Option { return func(m *Manager) { m.sleep = s } }

// WithRand fixes the random source for planning and jitter.
func WithRand(r *rand.Rand) Option { return func(m *Manager) { m.rng = r } }

// WithClock overrides the session clock.
func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

// NewManager creates a Manager.
func NewManager(
	cfg Config,
	pool *Pool,
	trader session.Trader,
	balances session.BalanceReader,
	logger *slog.Logger,
	opts ...Option,
) *Manager {
	cfg.defaults()
	m := &Manager{
		cfg:      cfg,
		pool:     pool,
		trader:   trader,
		balances: balances,
		sleep:    backoff.Sleep,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "wallet_manager")),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.rng == nil {
		m.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if m.guard == nil {
		m.guard = session.NewGuard(nil, "pool", 0)
	}
	m.planner = NewPlanner(cfg.Plan, m.rng)
	return m
}

// Pool returns the managed pool.
func (m *Manager) Pool() *Pool { return m.pool }

// Execute runs one trigger across the pool. Only one session runs at a time;
// an overlapping call gets domain.ErrSessionInProgress. Trade failures are
// reported inside the returned session.
func (m *Manager) Execute(ctx context.Context, t domain.Trigger) (*domain.TradingSession, error) {
	release, err := m.guard.Enter(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	s := &domain.TradingSession{
		ID:         uuid.NewString(),
		TargetMint: t.TargetMint,
		Source:     t.Source,
		StartedAt:  m.now(),
	}
	log := m.logger.With(slog.String("session", s.ID), slog.String("target", t.TargetMint))

	if m.cfg.InitialDelay > 0 {
		log.Info("waiting before trading", slog.Duration("delay", m.cfg.InitialDelay))
		if err := m.sleep(ctx, m.cfg.InitialDelay); err != nil {
			return nil, fmt.Errorf("wallet: initial delay: %w", err)
		}
		s.DelayedStart = true
	}

	if err := m.RefreshBalances(ctx); err != nil {
		log.Warn("balance refresh incomplete, planning on last known balances", slog.String("error", err.Error()))
	}

	plan := m.Plan(t)
	for _, e := range plan {
		s.Planned = append(s.Planned, e.Amount)
	}
	if len(plan) == 0 {
		s.FinishedAt = m.now()
		m.finish(s, log)
		return s, nil
	}
	log.Info("plan ready",
		slog.Int("trades", len(plan)),
		slog.Int("wallets", countWallets(plan)),
		slog.Int("batch_size", m.cfg.BatchSize),
	)

	s.Results = m.dispatch(ctx, t.TargetMint, plan, log)
	s.FinishedAt = m.now()
	m.finish(s, log)
	return s, nil
}

// Plan computes the trade plan for t against the pool's current state
// without executing anything.
func (m *Manager) Plan(t domain.Trigger) []Entry {
	states := m.pool.Snapshot()
	if t.UseMaxBalance || m.cfg.Plan.SpendAll {
		return m.planner.PlanSpendAll(states)
	}
	n := t.TradeCount
	if n <= 0 {
		n = m.cfg.DefaultCount
	}
	amount := t.AmountPerTrade
	if amount == 0 {
		amount = m.cfg.DefaultAmount
	}
	return m.planner.PlanFixed(states, amount, n)
}

// dispatch runs the plan batch by batch. A batch fully resolves before the
// next starts; wallets are updated once per attempt after their batch.
func (m *Manager) dispatch(ctx context.Context, mint string, plan []Entry, log *slog.Logger) []domain.TradeResult {
	results := make([]domain.TradeResult, 0, len(plan))
	size := m.cfg.BatchSize

	for start := 0; start < len(plan); start += size {
		end := min(start+size, len(plan))
		if start > 0 && m.cfg.BatchDelay > 0 {
			if err := m.sleep(ctx, m.cfg.BatchDelay); err != nil {
				log.Warn("session cancelled between batches", slog.Int("skipped", len(plan)-start))
				break
			}
		}

		batch := plan[start:end]
		jitter := make([]time.Duration, len(batch))
		for j := 1; j < len(batch); j++ {
			jitter[j] = m.jitter()
		}

		out := make([]domain.TradeResult, len(batch))
		attempted := make([]bool, len(batch))
		var g errgroup.Group
		for j, e := range batch {
			g.Go(func() error {
				w := m.pool.Get(e.Wallet)
				if jitter[j] > 0 {
					if err := m.sleep(ctx, jitter[j]); err != nil {
						out[j] = domain.TradeResult{
							Index:       start + j,
							Wallet:      w.Address.String(),
							InputAmount: e.Amount,
							Err:         err,
							ErrorKind:   domain.Classify(err),
						}
						return nil
					}
				}
				out[j] = m.trader.Execute(ctx, executor.Request{
					Wallet:     w,
					TargetMint: mint,
					Amount:     e.Amount,
					Index:      start + j,
				})
				attempted[j] = true
				return nil
			})
		}
		_ = g.Wait()

		at := m.now()
		for j, e := range batch {
			if attempted[j] {
				m.pool.Get(e.Wallet).RecordAttempt(e.Amount, out[j].Success, at)
			}
		}
		results = append(results, out...)
		log.Debug("batch done", slog.Int("from", start+1), slog.Int("to", end))
	}
	return results
}

func (m *Manager) jitter() time.Duration {
	span := m.cfg.JitterMax - m.cfg.JitterMin
	if span <= 0 {
		return m.cfg.JitterMin
	}
	return m.cfg.JitterMin + time.Duration(m.rng.Int63n(int64(span)))
}

func (m *Manager) finish(s *domain.TradingSession, log *slog.Logger) {
	sum := s.Summarize()

	m.mu.Lock()
	m.stats.Sessions++
	m.stats.Successes += sum.Successes
	m.stats.Failures += sum.Failures
	m.stats.SpentLamports += s.TotalSpent()
	m.stats.LastSession = s.FinishedAt
	m.mu.Unlock()

	m.metrics.RecordSession(string(sum.Outcome))
	m.updatePoolMetrics()

	if sum.Outcome == domain.OutcomeEmptyPlan {
		log.Warn("empty plan, no wallet can cover the request")
		return
	}
	log.Info("session finished",
		slog.String("outcome", string(sum.Outcome)),
		slog.Int("successes", sum.Successes),
		slog.Int("failures", sum.Failures),
		slog.String("spent_sol", sum.TotalSpentSOL),
		slog.Float64("success_rate", sum.SuccessRate),
		slog.Int64("elapsed_ms", sum.ElapsedMs),
	)
}

// RefreshBalances reads every wallet balance from the ledger in batches.
// Wallets whose read fails keep their last known balance.
func (m *Manager) RefreshBalances(ctx context.Context) error {
	wallets := m.pool.Wallets()
	size := m.cfg.BalanceBatchSize
	errs := make([]error, len(wallets))

	for start := 0; start < len(wallets); start += size {
		if start > 0 && m.cfg.BalanceBatchDelay > 0 {
			if err := m.sleep(ctx, m.cfg.BalanceBatchDelay); err != nil {
				return err
			}
		}
		end := min(start+size, len(wallets))
		var g errgroup.Group
		for i := start; i < end; i++ {
			w := wallets[i]
			g.Go(func() error {
				bal, err := m.balances.GetBalance(ctx, w.Address)
				if err != nil {
					errs[i] = fmt.Errorf("wallet %d (%s): %w", w.Index, domain.ShortAddress(w.Address.String()), err)
					return nil
				}
				w.SetBalance(bal)
				return nil
			})
		}
		_ = g.Wait()
	}

	m.updatePoolMetrics()
	return errors.Join(errs...)
}

func (m *Manager) updatePoolMetrics() {
	st := m.pool.Stats(m.cfg.Plan)
	m.metrics.UpdatePool(st.TotalAvailable, st.Eligible)
}

// PoolStats summarises the pool under the manager's planning rules.
func (m *Manager) PoolStats() PoolStats {
	return m.pool.Stats(m.cfg.Plan)
}

// Stats returns lifetime totals.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	st := m.stats
	m.mu.Unlock()

	st.SpentSOL = domain.FormatSOL(st.SpentLamports)
	if total := st.Successes + st.Failures; total > 0 {
		st.SuccessRate = float64(st.Successes) / float64(total) * 100
	}
	return st
}

// ResetTradeCounts clears per-wallet trade counters so capped wallets can
// trade again.
func (m *Manager) ResetTradeCounts() {
	m.pool.ResetTradeCounts()
	m.logger.Info("wallet trade counters reset")
}

func countWallets(plan []Entry) int {
	seen := make(map[int]struct{}, len(plan))
	for _, e := range plan {
		seen[e.Wallet] = struct{}{}
	}
	return len(seen)
}
