// Package intake turns incoming triggers into trading sessions. It checks
// the target, drops repeats, dispatches and reports the result.
package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kpizzy812/solana-sniper-sub000/internal/domain"
	"github.com/kpizzy812/solana-sniper-sub000/internal/notify"
)

// ErrDuplicate is returned for a target already triggered within the dedup
// window.
var ErrDuplicate = errors.New("duplicate trigger")

// DispatchFunc runs one session. The wallet manager's Execute and the
// single-wallet orchestrator's Run both fit.
type DispatchFunc func(ctx context.Context, t domain.Trigger) (*domain.TradingSession, error)

// TargetChecker validates a target before any money moves.
type TargetChecker interface {
	CheckTarget(ctx context.Context, mint string) error
}

// PriceSource looks up a token's market price in SOL.
type PriceSource interface {
	GetPrice(ctx context.Context, mint string) (decimal.Decimal, error)
}

// SummaryPublisher broadcasts finished sessions.
type SummaryPublisher interface {
	PublishSummary(ctx context.Context, channel string, s domain.Summary) error
}

// Fanout publishes to every publisher in turn. One failing publisher does
// not stop the others.
type Fanout []SummaryPublisher

// PublishSummary implements SummaryPublisher.
func (f Fanout) PublishSummary(ctx context.Context, channel string, s domain.Summary) error {
	var errs []error
	for _, p := range f {
		if err := p.PublishSummary(ctx, channel, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Config controls intake.
type Config struct {
	DedupTTL        time.Duration
	CleanupInterval time.Duration
	// SummaryChannel is where summaries are published when a publisher is
	// set.
	SummaryChannel string
	PriceTimeout   time.Duration
}

// Intake processes triggers one at a time.
type Intake struct {
	cfg       Config
	dispatch  DispatchFunc
	targets   TargetChecker
	dedup     *Dedup
	notifier  *notify.Notifier
	publisher SummaryPublisher
	prices    PriceSource
	logger    *slog.Logger
}

// Option configures an Intake.
type Option func(*Intake)

// WithNotifier sends session alerts.
func WithNotifier(n *notify.Notifier) Option { return func(i *Intake) { i.notifier = n } }

// WithPublisher publishes session summaries.
func WithPublisher(p SummaryPublisher) Option { return func(i *Intake) { i.publisher = p } }

// WithPrices attaches the target's price to summaries of sessions that
// bought something.
func WithPrices(p PriceSource) Option { return func(i *Intake) { i.prices = p } }

// WithClock overrides the dedup clock.
func WithClock(now func() time.Time) Option {
	return func(i *Intake) { i.dedup = NewDedup(i.cfg.DedupTTL, now) }
}

// New creates an Intake.
func New(cfg Config, dispatch DispatchFunc, targets TargetChecker, logger *slog.Logger, opts ...Option) *Intake {
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 30 * time.Second
	}
	if cfg.PriceTimeout <= 0 {
		cfg.PriceTimeout = 2 * time.Second
	}
	i := &Intake{
		cfg:      cfg,
		dispatch: dispatch,
		targets:  targets,
		dedup:    NewDedup(cfg.DedupTTL, nil),
		logger:   logger.With(slog.String("component", "intake")),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Run consumes triggers until ctx ends or the channel closes. Triggers still
// buffered at shutdown are logged and dropped.
func (i *Intake) Run(ctx context.Context, triggers <-chan domain.Trigger) error {
	i.logger.Info("intake started")
	defer i.logger.Info("intake stopped")

	cleanup := time.NewTicker(i.cfg.CleanupInterval)
	defer cleanup.Stop()

	for {
		select {
		case <-ctx.Done():
			i.drain(triggers)
			return ctx.Err()

		case t, ok := <-triggers:
			if !ok {
				return nil
			}
			if _, err := i.Submit(ctx, t); err != nil && !errors.Is(err, ErrDuplicate) {
				i.logger.Warn("trigger not executed",
					slog.String("target", t.TargetMint),
					slog.String("error", err.Error()),
				)
			}

		case <-cleanup.C:
			i.dedup.Cleanup()
		}
	}
}

// Submit processes one trigger synchronously and returns its session.
func (i *Intake) Submit(ctx context.Context, t domain.Trigger) (*domain.TradingSession, error) {
	log := i.logger.With(slog.String("target", t.TargetMint))
	for k, v := range t.Source {
		log = log.With(slog.String("source_"+k, v))
	}

	// 1. Target guard.
	if err := i.targets.CheckTarget(ctx, t.TargetMint); err != nil {
		log.Warn("target rejected", slog.String("error", err.Error()))
		_ = i.notifier.NotifyRejected(ctx, t, err)
		return nil, err
	}

	// 2. Deduplication.
	if i.dedup.Seen(t.TargetMint) {
		log.Debug("duplicate trigger, skipping")
		return nil, fmt.Errorf("%w: %s", ErrDuplicate, t.TargetMint)
	}

	// 3. Dispatch.
	log.Info("trigger accepted",
		slog.Int("trade_count", t.TradeCount),
		slog.Uint64("amount_per_trade", t.AmountPerTrade),
		slog.Bool("use_max_balance", t.UseMaxBalance),
	)
	s, err := i.dispatch(ctx, t)
	if err != nil {
		// Nothing ran, so a later trigger for the same target may retry.
		i.dedup.Forget(t.TargetMint)
		if errors.Is(err, domain.ErrSessionInProgress) {
			log.Warn("session already running, trigger refused")
		}
		return nil, err
	}

	// 4. Report. Delivery problems never fail the session.
	if i.prices != nil && s.Successes() > 0 {
		pctx, cancel := context.WithTimeout(ctx, i.cfg.PriceTimeout)
		price, err := i.prices.GetPrice(pctx, t.TargetMint)
		cancel()
		if err != nil {
			log.Debug("price lookup failed", slog.String("error", err.Error()))
		} else {
			s.PriceSOL = price.String()
		}
	}
	sum := s.Summarize()
	if err := i.notifier.NotifySession(ctx, sum); err != nil {
		log.Warn("session notification failed", slog.String("error", err.Error()))
	}
	if i.publisher != nil && i.cfg.SummaryChannel != "" {
		if err := i.publisher.PublishSummary(ctx, i.cfg.SummaryChannel, sum); err != nil {
			log.Warn("summary publish failed", slog.String("error", err.Error()))
		}
	}
	return s, nil
}

func (i *Intake) drain(triggers <-chan domain.Trigger) {
	for {
		select {
		case t, ok := <-triggers:
			if !ok {
				return
			}
			i.logger.Warn("dropping trigger received during shutdown", slog.String("target", t.TargetMint))
		default:
			return
		}
	}
}
