package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kpizzy812/solana-sniper-sub000/internal/domain"
	"github.com/kpizzy812/solana-sniper-sub000/internal/intake"
	"github.com/kpizzy812/solana-sniper-sub000/internal/ratelimit"
	"github.com/kpizzy812/solana-sniper-sub000/internal/server"
	"github.com/kpizzy812/solana-sniper-sub000/internal/server/handler"
	"github.com/kpizzy812/solana-sniper-sub000/internal/server/ws"
	"github.com/kpizzy812/solana-sniper-sub000/internal/wallet"
)

// ServeMode takes triggers until ctx is cancelled. "server" accepts them over
// HTTP, "listener" from the Redis trigger channel, "full" from both. Either
// way they pass through one intake so dedup and the session guard apply to
// every source.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies, mode string) error {
	a.logger.InfoContext(ctx, "starting serve mode", slog.String("mode", mode))

	g, ctx := errgroup.WithContext(ctx)

	httpOn := a.cfg.Server.Enabled && mode != "listener"
	var hub *ws.Hub
	if httpOn {
		hub = ws.NewHub(a.logger, ws.Config{Mode: mode, StartedAt: time.Now().UTC()})
		g.Go(func() error { return hub.Run(ctx) })
	}

	var pubs intake.Fanout
	if deps.TriggerBus != nil {
		pubs = append(pubs, deps.TriggerBus)
	}
	if hub != nil {
		pubs = append(pubs, hub)
	}
	in := a.newIntake(deps, pubs)

	if deps.MultiWallet() {
		a.refreshPool(ctx, deps.Manager)
	}

	if mode != "server" {
		if deps.TriggerBus == nil {
			return fmt.Errorf("serve mode: %s mode needs redis for the trigger channel", mode)
		}
		triggers, err := deps.TriggerBus.Triggers(ctx, a.cfg.Redis.TriggerChannel)
		if err != nil {
			return fmt.Errorf("serve mode: %w", err)
		}
		a.logger.InfoContext(ctx, "listening for triggers",
			slog.String("channel", a.cfg.Redis.TriggerChannel),
		)
		g.Go(func() error { return in.Run(ctx, triggers) })
	}

	if httpOn {
		a.startHTTPServer(ctx, g, deps, in, hub, mode)
	} else if mode == "server" {
		a.logger.WarnContext(ctx, "server mode with server.enabled=false: nothing will accept triggers")
		g.Go(func() error {
			<-ctx.Done()
			return ctx.Err()
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// BuyMode runs a single trigger to completion.
func (a *App) BuyMode(ctx context.Context, deps *Dependencies, t domain.Trigger) (*domain.Summary, error) {
	if deps.MultiWallet() {
		a.refreshPool(ctx, deps.Manager)
	}

	var pubs intake.Fanout
	if deps.TriggerBus != nil {
		pubs = append(pubs, deps.TriggerBus)
	}
	in := a.newIntake(deps, pubs)

	s, err := in.Submit(ctx, t)
	if err != nil {
		return nil, err
	}
	sum := s.Summarize()
	if sum.Outcome == domain.OutcomeEmptyPlan {
		return &sum, fmt.Errorf("buy: %w", domain.ErrEmptyPlan)
	}
	return &sum, nil
}

// BalancesMode reads every wallet balance. A partial refresh still returns
// the pool, with the failures joined in the error.
func (a *App) BalancesMode(ctx context.Context, deps *Dependencies) (wallet.PoolStats, error) {
	err := deps.Manager.RefreshBalances(ctx)
	return deps.Manager.PoolStats(), err
}

func (a *App) newIntake(deps *Dependencies, pubs intake.Fanout) *intake.Intake {
	opts := []intake.Option{
		intake.WithNotifier(deps.Notifier),
		intake.WithPrices(deps.Jupiter),
	}
	if len(pubs) > 0 {
		opts = append(opts, intake.WithPublisher(pubs))
	}
	return intake.New(intake.Config{
		DedupTTL:       a.cfg.Trading.DedupTTL.Duration,
		SummaryChannel: a.cfg.Redis.SummaryChannel,
	}, deps.Dispatch, deps.Risk, a.logger, opts...)
}

// refreshPool loads balances before the first session so pool stats and
// the initial log line are accurate. Failures are logged; sessions refresh
// again before planning.
func (a *App) refreshPool(ctx context.Context, m *wallet.Manager) {
	if err := m.RefreshBalances(ctx); err != nil {
		a.logger.WarnContext(ctx, "initial balance refresh incomplete", slog.String("error", err.Error()))
	}
	st := m.PoolStats()
	a.logger.InfoContext(ctx, "wallet pool ready",
		slog.Int("wallets", st.Wallets),
		slog.Int("eligible", st.Eligible),
		slog.String("total_sol", st.TotalBalanceSOL),
		slog.String("available_sol", st.TotalAvailableSOL),
	)
}

// startHTTPServer adds the HTTP server to g. It is shut down gracefully when
// ctx is cancelled.
func (a *App) startHTTPServer(
	ctx context.Context,
	g *errgroup.Group,
	deps *Dependencies,
	in *intake.Intake,
	hub *ws.Hub,
	mode string,
) {
	handlers := server.Handlers{
		Health: handler.NewHealthHandler(mode, len(deps.Keys), a.logger,
			handler.WithProbe("ledger", func(ctx context.Context) (any, error) {
				bh, err := deps.Ledger.GetLatestBlockhash(ctx)
				if err != nil {
					return nil, err
				}
				return map[string]any{"blockhash": bh.Blockhash, "last_valid_block_height": bh.LastValidBlockHeight}, nil
			}),
			handler.WithProbe("jupiter", func(ctx context.Context) (any, error) {
				st := deps.Jupiter.HealthCheck(ctx)
				if !st.Healthy {
					return st, errors.New(st.Error)
				}
				return st, nil
			}),
		),
		Trigger: handler.NewTriggerHandler(ctx, in, a.logger),
	}
	if deps.MultiWallet() {
		handlers.Wallets = handler.NewWalletHandler(deps.Manager, a.logger)
	}
	if deps.Metrics != nil {
		handlers.Metrics = deps.Metrics.Handler()
	}

	var limiter *ratelimit.Registry
	if a.cfg.Server.RequestsPerSecond > 0 {
		limiter = ratelimit.NewRegistry(nil, ratelimit.Limit{
			Rate:  a.cfg.Server.RequestsPerSecond,
			Burst: a.cfg.Server.Burst,
		}, nil)
	}

	// A synchronous trigger holds the response for the whole session.
	budget := a.cfg.MultiWallet.InitialDelay.Duration + 2*a.cfg.Trading.ConfirmTimeout.Duration + time.Minute
	srv := server.NewServer(server.Config{
		Port:         a.cfg.Server.Port,
		APIKey:       a.cfg.Server.APIKey,
		WriteTimeout: budget,
	}, handlers, hub, limiter, a.logger)

	g.Go(srv.Start)

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
