// Package executor runs one swap attempt for one wallet: quote, risk check,
// build, sign, simulate, submit and confirm.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/kpizzy812/solana-sniper-sub000/internal/domain"
	"github.com/kpizzy812/solana-sniper-sub000/internal/ledger"
	"github.com/kpizzy812/solana-sniper-sub000/internal/observability"
)

// Config holds the per-trade settings.
type Config struct {
	SlippageBps         int
	PriorityFeeLamports uint64
	WrapAndUnwrapSOL    bool
	FeeAccount          string
	// Simulate runs every signed transaction through simulateTransaction
	// before it is submitted.
	Simulate       bool
	ConfirmTimeout time.Duration
}

// QuoteChecker validates a quote before any transaction is built.
type QuoteChecker interface {
	CheckQuote(ctx context.Context, q *domain.Quote) error
}

// Request is one planned trade.
type Request struct {
	Wallet     *domain.Wallet
	TargetMint string
	Amount     uint64
	Index      int
}

// Executor executes single trades. It never retries a failed trade; the
// caller decides what to do with the result.
type Executor struct {
	cfg       Config
	swaps     domain.SwapClient
	ledger    domain.Ledger
	confirmer domain.Confirmer
	risk      QuoteChecker
	metrics   *observability.Metrics
	now       func() time.Time
	logger    *slog.Logger

	submissions atomic.Int64
}

// Option configures an Executor.
type Option func(*Executor)

// WithMetrics records trade outcomes.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// WithClock overrides the latency clock.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

// New creates an Executor.
func New(
	cfg Config,
	swaps domain.SwapClient,
	led domain.Ledger,
	confirmer domain.Confirmer,
	risk QuoteChecker,
	logger *slog.Logger,
	opts ...Option,
) *Executor {
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 30 * time.Second
	}
	e := &Executor{
		cfg:       cfg,
		swaps:     swaps,
		ledger:    led,
		confirmer: confirmer,
		risk:      risk,
		now:       time.Now,
		logger:    logger.With(slog.String("component", "executor")),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Submissions returns how many transactions this executor has sent.
func (e *Executor) Submissions() int64 {
	return e.submissions.Load()
}

// Execute runs one trade. Every outcome, including failures, is reported in
// the returned result rather than as an error.
func (e *Executor) Execute(ctx context.Context, req Request) domain.TradeResult {
	start := e.now()
	res := domain.TradeResult{
		Index:       req.Index,
		Wallet:      req.Wallet.Address.String(),
		InputAmount: req.Amount,
	}
	log := e.logger.With(
		slog.Int("trade", req.Index+1),
		slog.String("wallet", domain.ShortAddress(res.Wallet)),
		slog.String("amount_sol", domain.FormatSOL(req.Amount)),
	)

	e.run(ctx, req, &res, log)

	res.Latency = e.now().Sub(start)
	res.ErrorKind = domain.Classify(res.Err)
	e.metrics.RecordTrade(string(res.ErrorKind), res.Success, res.Latency, res.InputAmount)

	attrs := []any{
		slog.Duration("latency", res.Latency),
		slog.String("signature", res.Signature),
	}
	switch {
	case res.Success && res.Unconfirmed:
		log.Warn("trade submitted, confirmation not observed", attrs...)
	case res.Success:
		log.Info("trade confirmed", attrs...)
	default:
		log.Warn("trade failed", append(attrs,
			slog.String("kind", string(res.ErrorKind)),
			slog.String("error", res.Error()),
		)...)
	}
	return res
}

func (e *Executor) run(ctx context.Context, req Request, res *domain.TradeResult, log *slog.Logger) {
	// 1. Quote.
	quote, err := e.swaps.GetQuote(ctx, domain.QuoteRequest{
		InputMint:   domain.WrappedSOLMint,
		OutputMint:  req.TargetMint,
		Amount:      req.Amount,
		SlippageBps: e.cfg.SlippageBps,
	})
	if err != nil {
		res.Err = err
		return
	}
	impact := quote.PriceImpactPct
	res.PriceImpactPct = &impact
	res.Tier = quote.Tier

	// 2. Risk. Nothing is built for a quote that fails here.
	if e.risk != nil {
		if err := e.risk.CheckQuote(ctx, quote); err != nil {
			res.Err = err
			return
		}
	}

	// 3. Build.
	swap, err := e.swaps.GetSwapTransaction(ctx, domain.SwapRequest{
		Quote:                     quote,
		UserPublicKey:             req.Wallet.Address,
		PrioritizationFeeLamports: e.cfg.PriorityFeeLamports,
		WrapAndUnwrapSOL:          e.cfg.WrapAndUnwrapSOL,
		FeeAccount:                e.cfg.FeeAccount,
	})
	if err != nil {
		res.Err = err
		return
	}

	// 4. Sign.
	wire, localSig, err := ledger.SignTransaction(swap.Transaction, req.Wallet.Key)
	if err != nil {
		res.Err = err
		return
	}

	// 5. Simulate. Only a definite on-chain failure stops the trade; an
	// unreachable simulator is not evidence the swap would fail.
	if e.cfg.Simulate {
		sim, err := e.ledger.SimulateTransaction(ctx, wire)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				res.Err = ctx.Err()
				return
			}
			log.Warn("simulation unavailable, submitting anyway", slog.String("error", err.Error()))
		case sim.Failed():
			res.Err = fmt.Errorf("%w: %s", domain.ErrSimulationFailed, string(sim.Err))
			log.Debug("simulation logs", slog.Any("logs", sim.Logs))
			return
		}
	}

	// 6. Submit.
	e.submissions.Add(1)
	e.metrics.RecordSubmission()
	sig, err := e.ledger.SendTransaction(ctx, wire)
	if err != nil {
		// A node rejection means nothing landed. Any other failure leaves
		// the transaction possibly in flight, so it is tracked by its
		// local signature like a normal submission.
		if errors.Is(err, domain.ErrSubmissionFailed) || errors.Is(err, domain.ErrUnauthorized) {
			if !errors.Is(err, domain.ErrSubmissionFailed) {
				err = fmt.Errorf("%w: %w", domain.ErrSubmissionFailed, err)
			}
			res.Err = err
			return
		}
		log.Warn("submission outcome unknown, confirming by local signature",
			slog.String("signature", localSig.String()),
			slog.String("error", err.Error()),
		)
		sig = ""
	}
	if sig == "" {
		sig = localSig.String()
	}
	res.Signature = sig

	// 7. Confirm. The signature is ground truth from here on: not observing
	// confirmation is reported, not treated as failure.
	confirmCtx, cancel := context.WithTimeout(ctx, e.cfg.ConfirmTimeout)
	defer cancel()
	st, err := e.confirmer.Confirm(confirmCtx, sig)
	if err != nil {
		res.Success = true
		res.Unconfirmed = true
		if !errors.Is(err, domain.ErrConfirmationTimeout) {
			err = fmt.Errorf("%w: %w", domain.ErrConfirmationTimeout, err)
		}
		res.Err = err
		out := quote.OtherAmountThreshold
		res.OutputAmount = &out
		return
	}
	if st.Failed() {
		res.Err = fmt.Errorf("%w: transaction %s failed on-chain: %s", domain.ErrSubmissionFailed, sig, string(st.Err))
		return
	}

	res.Success = true
	out := quote.OtherAmountThreshold
	res.OutputAmount = &out
}
