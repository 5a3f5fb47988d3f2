// Package service holds pre-trade checks shared by every execution path.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"github.com/kpizzy812/solana-sniper-sub000/internal/domain"
)

// RiskConfig holds the tunable parameters for pre-trade risk checks.
type RiskConfig struct {
	// MaxPriceImpactPct is the price impact ceiling in percent.
	MaxPriceImpactPct decimal.Decimal
	// SlippageBps is the tolerance requested with each quote. When
	// CheckSlippage is set the quote's minimum output must honour it.
	SlippageBps   int
	CheckSlippage bool
	Blacklist     []string
}

// RiskService provides pre-trade risk checks so a trade that fails one never
// reaches transaction building.
type RiskService struct {
	cfg       RiskConfig
	blacklist map[string]struct{}
	logger    *slog.Logger
}

// NewRiskService creates a RiskService.
func NewRiskService(cfg RiskConfig, logger *slog.Logger) *RiskService {
	bl := make(map[string]struct{}, len(cfg.Blacklist))
	for _, m := range cfg.Blacklist {
		if m = strings.TrimSpace(m); m != "" {
			bl[m] = struct{}{}
		}
	}
	return &RiskService{
		cfg:       cfg,
		blacklist: bl,
		logger:    logger.With(slog.String("component", "risk_service")),
	}
}

// CheckTarget rejects targets that can never be bought: malformed keys,
// wrapped SOL itself, and blacklisted mints.
func (s *RiskService) CheckTarget(ctx context.Context, mint string) error {
	if _, err := solana.PublicKeyFromBase58(mint); err != nil {
		return fmt.Errorf("%w: %q is not a valid mint address", domain.ErrTargetRejected, mint)
	}
	if mint == domain.WrappedSOLMint {
		return fmt.Errorf("%w: target is the base asset", domain.ErrTargetRejected)
	}
	if _, ok := s.blacklist[mint]; ok {
		s.logger.WarnContext(ctx, "blacklisted target", slog.String("mint", mint))
		return fmt.Errorf("%w: %s is blacklisted", domain.ErrTargetRejected, mint)
	}
	return nil
}

// CheckQuote enforces the price impact ceiling and, if enabled, that the
// quote's minimum output is consistent with the requested slippage.
func (s *RiskService) CheckQuote(ctx context.Context, q *domain.Quote) error {
	if s.cfg.MaxPriceImpactPct.IsPositive() && q.PriceImpactPct.GreaterThan(s.cfg.MaxPriceImpactPct) {
		s.logger.WarnContext(ctx, "price impact above ceiling",
			slog.String("impact_pct", q.PriceImpactPct.String()),
			slog.String("max_pct", s.cfg.MaxPriceImpactPct.String()),
		)
		return fmt.Errorf("%w: %s%% > %s%%", domain.ErrPriceImpactExceeded,
			q.PriceImpactPct.String(), s.cfg.MaxPriceImpactPct.String())
	}

	if s.cfg.CheckSlippage && q.OutAmount > 0 {
		floor := MinimumOutput(q.OutAmount, s.cfg.SlippageBps)
		if q.OtherAmountThreshold < floor {
			return fmt.Errorf("%w: minimum output %d below %d", domain.ErrSlippageExceeded,
				q.OtherAmountThreshold, floor)
		}
	}
	return nil
}

// MinimumOutput is out reduced by slippageBps, rounded down.
func MinimumOutput(out uint64, slippageBps int) uint64 {
	if slippageBps <= 0 {
		return out
	}
	if slippageBps >= 10_000 {
		return 0
	}
	keep := decimal.NewFromInt(int64(10_000 - slippageBps))
	return decimal.NewFromUint64(out).Mul(keep).Div(decimal.NewFromInt(10_000)).Floor().BigInt().Uint64()
}
