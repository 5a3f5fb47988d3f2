package wallet

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/kpizzy812/solana-sniper-sub000/internal/domain"
)

// Strategy ranks eligible wallets for the next planned trade.
type Strategy string

const (
	// StrategyBalanced picks the wallet with the most available balance.
	StrategyBalanced Strategy = "balanced"
	// StrategySequential picks the wallet with the fewest trades.
	StrategySequential Strategy = "sequential"
	// StrategyRandom picks uniformly.
	StrategyRandom Strategy = "random"
)

// ParseStrategy validates a strategy name.
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(strings.ToLower(strings.TrimSpace(s))); st {
	case StrategyBalanced, StrategySequential, StrategyRandom:
		return st, nil
	default:
		return "", fmt.Errorf("wallet: unknown strategy %q", s)
	}
}

// amountPrecision is the randomization rounding step: 4 SOL decimals.
const amountPrecision = 100_000

// PlanConfig holds the planning rules.
type PlanConfig struct {
	Strategy Strategy
	// MaxTradesPerWallet caps trades per wallet for the process lifetime.
	// Zero means no cap.
	MaxTradesPerWallet int
	// MinBalance gates fixed-amount planning.
	MinBalance uint64
	// DustFloor gates spend-all planning: only wallets with more available
	// than this take part.
	DustFloor uint64
	// MaxTradeAmount caps every spend-all amount. Zero means no cap.
	MaxTradeAmount uint64
	Randomize      bool
	VariationPct   float64
	SpendAll       bool
}

func (c PlanConfig) underCap(trades int) bool {
	return c.MaxTradesPerWallet <= 0 || trades < c.MaxTradesPerWallet
}

// eligible reports whether a wallet could take at least one trade.
func (c PlanConfig) eligible(s domain.WalletState) bool {
	if !c.underCap(s.Trades) {
		return false
	}
	if c.SpendAll {
		return s.Available > c.DustFloor
	}
	return s.Balance >= c.MinBalance && s.Available > 0
}

// Entry is one planned trade.
type Entry struct {
	// Wallet is the wallet's pool index.
	Wallet int
	Amount uint64
}

// Planner computes trade plans. It only reads the snapshot it is given, so a
// plan is a function of (snapshot, config, random source).
type Planner struct {
	cfg PlanConfig
	rng *rand.Rand
}

// NewPlanner creates a Planner. rng drives randomization and the random
// strategy.
func NewPlanner(cfg PlanConfig, rng *rand.Rand) *Planner {
	return &Planner{cfg: cfg, rng: rng}
}

// Config returns the planning rules.
func (p *Planner) Config() PlanConfig { return p.cfg }

// candidate is a wallet's planning-time state.
type candidate struct {
	state     domain.WalletState
	available uint64
	planned   int
}

// PlanFixed plans n trades of roughly base lamports each. Every slot picks a
// wallet afresh against the availability left by earlier slots; a slot with
// no eligible wallet is skipped.
func (p *Planner) PlanFixed(states []domain.WalletState, base uint64, n int) []Entry {
	cands := make([]*candidate, len(states))
	for i, s := range states {
		cands[i] = &candidate{state: s, available: s.Available}
	}

	var plan []Entry
	for slot := 0; slot < n; slot++ {
		amount := p.Randomize(base)
		if amount == 0 {
			continue
		}

		var eligible []*candidate
		for _, c := range cands {
			if c.state.Balance >= p.cfg.MinBalance &&
				c.available >= amount &&
				p.cfg.underCap(c.state.Trades+c.planned) {
				eligible = append(eligible, c)
			}
		}
		pick := p.pick(eligible)
		if pick == nil {
			continue
		}
		pick.available -= amount
		pick.planned++
		plan = append(plan, Entry{Wallet: pick.state.Index, Amount: amount})
	}
	return plan
}

// PlanSpendAll plans one trade per wallet for its whole available balance,
// capped at MaxTradeAmount. Wallets at or below the dust floor are left out,
// and so is every amount the cap would push to or below it.
func (p *Planner) PlanSpendAll(states []domain.WalletState) []Entry {
	var plan []Entry
	for _, s := range states {
		if s.Available <= p.cfg.DustFloor || !p.cfg.underCap(s.Trades) {
			continue
		}
		amount := s.Available
		if p.cfg.MaxTradeAmount > 0 && amount > p.cfg.MaxTradeAmount {
			amount = p.cfg.MaxTradeAmount
		}
		if amount <= p.cfg.DustFloor {
			continue
		}
		plan = append(plan, Entry{Wallet: s.Index, Amount: amount})
	}
	return plan
}

// pick ranks candidates by strategy. Ties go to the lower pool index.
func (p *Planner) pick(cands []*candidate) *candidate {
	if len(cands) == 0 {
		return nil
	}
	switch p.cfg.Strategy {
	case StrategyRandom:
		return cands[p.rng.Intn(len(cands))]
	case StrategySequential:
		best := cands[0]
		for _, c := range cands[1:] {
			if c.state.Trades+c.planned < best.state.Trades+best.planned {
				best = c
			}
		}
		return best
	default:
		best := cands[0]
		for _, c := range cands[1:] {
			if c.available > best.available {
				best = c
			}
		}
		return best
	}
}

// Randomize varies base by up to ±VariationPct and rounds to 4 SOL decimals.
// It never turns a positive amount into zero.
func (p *Planner) Randomize(base uint64) uint64 {
	if !p.cfg.Randomize || p.cfg.VariationPct <= 0 || base == 0 {
		return base
	}
	variation := (p.rng.Float64()*2 - 1) * p.cfg.VariationPct / 100
	step := decimal.NewFromInt(amountPrecision)
	v := decimal.NewFromUint64(base).
		Mul(decimal.NewFromInt(1).Add(decimal.NewFromFloat(variation))).
		Div(step).Round(0).Mul(step)
	if v.Sign() <= 0 {
		return base
	}
	return v.BigInt().Uint64()
}
