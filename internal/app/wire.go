package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"github.com/kpizzy812/solana-sniper-sub000/internal/cache/redis"
	"github.com/kpizzy812/solana-sniper-sub000/internal/config"
	"github.com/kpizzy812/solana-sniper-sub000/internal/crypto"
	"github.com/kpizzy812/solana-sniper-sub000/internal/domain"
	"github.com/kpizzy812/solana-sniper-sub000/internal/executor"
	"github.com/kpizzy812/solana-sniper-sub000/internal/intake"
	"github.com/kpizzy812/solana-sniper-sub000/internal/ledger"
	"github.com/kpizzy812/solana-sniper-sub000/internal/notify"
	"github.com/kpizzy812/solana-sniper-sub000/internal/observability"
	"github.com/kpizzy812/solana-sniper-sub000/internal/platform/jupiter"
	"github.com/kpizzy812/solana-sniper-sub000/internal/ratelimit"
	"github.com/kpizzy812/solana-sniper-sub000/internal/service"
	"github.com/kpizzy812/solana-sniper-sub000/internal/session"
	"github.com/kpizzy812/solana-sniper-sub000/internal/wallet"
)

// Dependencies bundles everything the run modes need. It is constructed by
// Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Keys []solana.PrivateKey

	// Infrastructure
	Limits    *ratelimit.Registry
	Metrics   *observability.Metrics
	Ledger    *ledger.HTTPClient
	Confirmer domain.Confirmer
	Jupiter   *jupiter.Client

	// Redis, nil when disabled.
	Redis      *redis.Client
	Locks      domain.LockManager
	TriggerBus *redis.TriggerBus

	// Trading
	Risk         *service.RiskService
	Executor     *executor.Executor
	Manager      *wallet.Manager
	Orchestrator *session.Orchestrator // single-wallet mode only
	Dispatch     intake.DispatchFunc

	// Notifications
	Notifier *notify.Notifier
}

// MultiWallet reports whether sessions are spread over the wallet pool.
func (d *Dependencies) MultiWallet() bool { return d.Orchestrator == nil }

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Wallet keys ---
	keys, err := crypto.LoadKeys(crypto.KeyConfig{
		RawPrivateKeys:    cfg.Wallet.PrivateKeys,
		EncryptedKeyPaths: cfg.Wallet.EncryptedKeyPaths,
		KeyPassword:       cfg.Wallet.KeyPassword,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("wire: wallet keys: %w", err)
	}
	deps.Keys = keys

	// --- Metrics ---
	if cfg.Metrics.Enabled {
		deps.Metrics = observability.NewMetrics(cfg.Metrics.Namespace)
	}

	// --- Rate limits ---
	limits := make(map[string]ratelimit.Limit, len(cfg.RateLimits))
	for name, rl := range cfg.RateLimits {
		limits[name] = ratelimit.Limit{Rate: rl.RPS, Burst: rl.Burst}
	}
	fallback := cfg.Limit(config.LimitDefault)
	deps.Limits = ratelimit.NewRegistry(limits, ratelimit.Limit{Rate: fallback.RPS, Burst: fallback.Burst}, nil)
	if deps.Metrics != nil {
		deps.Limits.OnWait(deps.Metrics.RecordRateLimitWait)
	}

	// --- Solana RPC ---
	rpcLimit := deps.Limits.For(ratelimit.ServiceSolanaRPC)
	deps.Ledger = ledger.NewHTTPClient(cfg.Solana.RPCURL,
		ledger.WithTimeout(cfg.Solana.Timeout.Duration),
		ledger.WithLimiter(rpcLimit),
		ledger.WithCommitment(cfg.Solana.Commitment),
		ledger.WithSendMaxRetries(cfg.Solana.MaxRetries),
	)
	poll := ledger.NewPollConfirmer(deps.Ledger, cfg.Trading.ConfirmPollInterval.Duration, logger)
	deps.Confirmer = poll
	if cfg.Solana.WSURL != "" {
		deps.Confirmer = ledger.NewWSConfirmer(cfg.Solana.WSURL, cfg.Solana.Commitment, rpcLimit, poll, logger)
	}

	// --- Redis (optional) ---
	jupOpts := []jupiter.Option{
		jupiter.WithRateLimits(deps.Limits),
		jupiter.WithMetrics(deps.Metrics),
	}
	if cfg.Redis.Enabled {
		rc, err := redis.New(ctx, redis.ClientConfig{
			URL:        cfg.Redis.URL,
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  cfg.Redis.KeyPrefix,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = rc.Close() })

		deps.Redis = rc
		deps.Locks = redis.NewLockManager(rc)
		deps.TriggerBus = redis.NewTriggerBus(rc, logger)
		if cfg.Redis.QuoteCache {
			jupOpts = append(jupOpts, jupiter.WithCache(redis.NewQuoteCache(rc)))
		}
	}

	// --- Jupiter ---
	deps.Jupiter = jupiter.New(jupiter.Config{
		PaidURL:     cfg.Jupiter.PaidURL,
		FreeURL:     cfg.Jupiter.FreeURL,
		PriceURL:    cfg.Jupiter.PriceURL,
		APIKey:      cfg.Jupiter.APIKey,
		PreferFree:  cfg.Jupiter.PreferFree,
		Timeout:     cfg.Jupiter.Timeout.Duration,
		CacheTTL:    cfg.Jupiter.QuoteCacheTTL.Duration,
		MaxAccounts: cfg.Jupiter.MaxAccounts,
	}, logger, jupOpts...)

	// --- Risk + executor ---
	deps.Risk = service.NewRiskService(service.RiskConfig{
		MaxPriceImpactPct: decimal.NewFromFloat(cfg.Trading.MaxPriceImpactPct),
		SlippageBps:       cfg.Trading.SlippageBps,
		CheckSlippage:     cfg.Trading.CheckSlippage,
		Blacklist:         cfg.Security.BlacklistedTokens,
	}, logger)

	deps.Executor = executor.New(executor.Config{
		SlippageBps:         cfg.Trading.SlippageBps,
		PriorityFeeLamports: cfg.Trading.PriorityFeeLamports,
		WrapAndUnwrapSOL:    cfg.Trading.WrapAndUnwrapSOL,
		FeeAccount:          cfg.Trading.FeeAccount,
		Simulate:            cfg.Trading.Simulate,
		ConfirmTimeout:      cfg.Trading.ConfirmTimeout.Duration,
	}, deps.Jupiter, deps.Ledger, deps.Confirmer, deps.Risk, logger,
		executor.WithMetrics(deps.Metrics),
	)

	// --- Wallet pool ---
	pool, err := wallet.NewPool(keys, cfg.MultiWallet.GasReserve())
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: wallet pool: %w", err)
	}
	strategy, err := wallet.ParseStrategy(cfg.MultiWallet.Strategy)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: %w", err)
	}
	lockTTL := cfg.Redis.LockTTL.Duration

	deps.Manager = wallet.NewManager(wallet.Config{
		Plan: wallet.PlanConfig{
			Strategy:           strategy,
			MaxTradesPerWallet: cfg.MultiWallet.MaxTradesPerWallet,
			MinBalance:         cfg.MultiWallet.MinBalance(),
			DustFloor:          cfg.MultiWallet.DustFloor(),
			MaxTradeAmount:     cfg.Trading.MaxTradeAmount(),
			Randomize:          cfg.MultiWallet.RandomizeAmounts,
			VariationPct:       cfg.MultiWallet.AmountVariationPct,
			SpendAll:           cfg.MultiWallet.UseMaxAvailableBalance,
		},
		DefaultCount:      cfg.Trading.NumPurchases,
		DefaultAmount:     cfg.Trading.TradeAmount(),
		InitialDelay:      cfg.MultiWallet.InitialDelay.Duration,
		BatchSize:         cfg.MultiWallet.BatchSize,
		BatchDelay:        cfg.MultiWallet.BatchDelay.Duration,
		JitterMin:         cfg.MultiWallet.JitterMin.Duration,
		JitterMax:         cfg.MultiWallet.JitterMax.Duration,
		BalanceBatchSize:  cfg.MultiWallet.BalanceBatchSize,
		BalanceBatchDelay: cfg.MultiWallet.BalanceBatchDelay.Duration,
	}, pool, deps.Executor, deps.Ledger, logger,
		wallet.WithGuard(session.NewGuard(deps.Locks, "pool", lockTTL)),
		wallet.WithMetrics(deps.Metrics),
	)
	deps.Dispatch = deps.Manager.Execute

	if !cfg.MultiWallet.Enabled {
		w := pool.Get(0)
		deps.Orchestrator = session.NewOrchestrator(session.Config{
			DefaultCount:   cfg.Trading.NumPurchases,
			DefaultAmount:  cfg.Trading.TradeAmount(),
			MaxTradeAmount: cfg.Trading.MaxTradeAmount(),
			DustFloor:      cfg.MultiWallet.DustFloor(),
			SmartSplit:     cfg.Trading.SmartSplit,
			Concurrent:     cfg.Trading.Concurrent,
			TradeDelay:     cfg.Trading.TradeDelay.Duration,
		}, w, deps.Executor, logger,
			session.WithGuard(session.NewGuard(deps.Locks, w.Address.String(), lockTTL)),
			session.WithBalances(deps.Ledger),
			session.WithMetrics(deps.Metrics),
		)
		deps.Dispatch = deps.Orchestrator.Run
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			"",
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	names := make([]string, 0, len(senders))
	for _, s := range senders {
		names = append(names, s.Name())
	}
	logger.InfoContext(ctx, "dependencies wired",
		slog.Int("wallets", len(keys)),
		slog.Bool("multi_wallet", deps.MultiWallet()),
		slog.String("jupiter_tier", string(deps.Jupiter.PreferredTier())),
		slog.Bool("redis", deps.Redis != nil),
		slog.Bool("ws_confirm", cfg.Solana.WSURL != ""),
		slog.String("notifiers", strings.Join(names, ",")),
	)

	return deps, cleanup, nil
}
