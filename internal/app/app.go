// Package app provides the top-level application lifecycle for the sniper.
// It wires the ledger, quote, wallet and notification dependencies and runs
// the selected mode.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kpizzy812/solana-sniper-sub000/internal/config"
	"github.com/kpizzy812/solana-sniper-sub000/internal/domain"
	"github.com/kpizzy812/solana-sniper-sub000/internal/wallet"
)

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

func (a *App) wire(ctx context.Context) (*Dependencies, error) {
	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return nil, fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)
	return deps, nil
}

// Run wires all dependencies, starts the configured serving mode and blocks
// until the context is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, err := a.wire(ctx)
	if err != nil {
		return err
	}

	switch mode := strings.ToLower(a.cfg.Mode); mode {
	case "server", "listener", "full":
		return a.ServeMode(ctx, deps, mode)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
}

// Buy runs one session for t and returns its summary. A session that planned
// no trade is reported with domain.ErrEmptyPlan alongside its summary.
func (a *App) Buy(ctx context.Context, t domain.Trigger) (*domain.Summary, error) {
	deps, err := a.wire(ctx)
	if err != nil {
		return nil, err
	}
	return a.BuyMode(ctx, deps, t)
}

// Balances refreshes and returns the wallet pool.
func (a *App) Balances(ctx context.Context) (wallet.PoolStats, error) {
	deps, err := a.wire(ctx)
	if err != nil {
		return wallet.PoolStats{}, err
	}
	return a.BalancesMode(ctx, deps)
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
