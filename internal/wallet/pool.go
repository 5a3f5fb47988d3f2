// Package wallet manages a pool of funded wallets: planning which wallet
// buys how much, dispatching the plan in batches, and keeping balances fresh.
package wallet

import (
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/kpizzy812/solana-sniper-sub000/internal/domain"
)

// Pool is an ordered, fixed set of wallets.
type Pool struct {
	wallets []*domain.Wallet
}

// NewPool creates a pool from private keys. Every wallet gets the same fee
// reserve. Duplicate keys are rejected.
func NewPool(keys []solana.PrivateKey, reserve uint64) (*Pool, error) {
	if len(keys) == 0 {
		return nil, domain.ErrNoWallets
	}
	seen := make(map[solana.PublicKey]int, len(keys))
	wallets := make([]*domain.Wallet, 0, len(keys))
	for i, k := range keys {
		w := domain.NewWallet(i, k, reserve)
		if j, dup := seen[w.Address]; dup {
			return nil, fmt.Errorf("wallet: key %d duplicates key %d (%s)", i, j, w.Address)
		}
		seen[w.Address] = i
		wallets = append(wallets, w)
	}
	return &Pool{wallets: wallets}, nil
}

// Wallets returns the wallets in pool order.
func (p *Pool) Wallets() []*domain.Wallet { return p.wallets }

// Len returns the number of wallets.
func (p *Pool) Len() int { return len(p.wallets) }

// Get returns the wallet at index i.
func (p *Pool) Get(i int) *domain.Wallet { return p.wallets[i] }

// Snapshot copies the current state of every wallet.
func (p *Pool) Snapshot() []domain.WalletState {
	out := make([]domain.WalletState, len(p.wallets))
	for i, w := range p.wallets {
		out[i] = w.Snapshot()
	}
	return out
}

// WalletSummary is the diagnostic view of one wallet.
type WalletSummary struct {
	Index        int    `json:"index"`
	Address      string `json:"address"`
	BalanceSOL   string `json:"balance_sol"`
	AvailableSOL string `json:"available_sol"`
	Trades       int    `json:"trades"`
	Eligible     bool   `json:"eligible"`
	LastUsed     string `json:"last_used,omitempty"`
}

// PoolStats aggregates the pool.
type PoolStats struct {
	Wallets           int             `json:"wallets"`
	Eligible          int             `json:"eligible"`
	TotalBalance      uint64          `json:"total_balance_lamports"`
	TotalAvailable    uint64          `json:"total_available_lamports"`
	TotalBalanceSOL   string          `json:"total_balance_sol"`
	TotalAvailableSOL string          `json:"total_available_sol"`
	PerWallet         []WalletSummary `json:"per_wallet"`
}

// Stats summarises the pool. A wallet is eligible when it could take at
// least one more trade under cfg.
func (p *Pool) Stats(cfg PlanConfig) PoolStats {
	st := PoolStats{Wallets: len(p.wallets)}
	for _, s := range p.Snapshot() {
		ok := cfg.eligible(s)
		if ok {
			st.Eligible++
		}
		st.TotalBalance += s.Balance
		st.TotalAvailable += s.Available

		ws := WalletSummary{
			Index:        s.Index,
			Address:      domain.ShortAddress(s.Address),
			BalanceSOL:   domain.FormatSOL(s.Balance),
			AvailableSOL: domain.FormatSOL(s.Available),
			Trades:       s.Trades,
			Eligible:     ok,
		}
		if !s.LastUsed.IsZero() {
			ws.LastUsed = s.LastUsed.UTC().Format(time.RFC3339)
		}
		st.PerWallet = append(st.PerWallet, ws)
	}
	st.TotalBalanceSOL = domain.FormatSOL(st.TotalBalance)
	st.TotalAvailableSOL = domain.FormatSOL(st.TotalAvailable)
	return st
}

// ResetTradeCounts clears every wallet's trade counter.
func (p *Pool) ResetTradeCounts() {
	for _, w := range p.wallets {
		w.ResetTrades()
	}
}
