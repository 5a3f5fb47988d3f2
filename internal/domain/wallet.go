package domain

import (
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
)

// Wallet is one funded signing identity. Balance bookkeeping is kept in
// lamports; Available is always max(0, balance-reserve).
//
// The mutable fields are guarded by a per-wallet mutex so diagnostics can read
// a wallet while a session is writing back its own attempt results.
type Wallet struct {
	Index   int
	Address solana.PublicKey
	Key     solana.PrivateKey

	mu       sync.RWMutex
	balance  uint64
	reserve  uint64
	trades   int
	lastUsed time.Time
}

// NewWallet creates a wallet from its private key. reserve is the fee reserve
// that is never planned for spending.
func NewWallet(index int, key solana.PrivateKey, reserve uint64) *Wallet {
	return &Wallet{
		Index:   index,
		Address: key.PublicKey(),
		Key:     key,
		reserve: reserve,
	}
}

// Balance returns the last known ledger balance in lamports.
func (w *Wallet) Balance() uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.balance
}

// Reserve returns the fee reserve in lamports.
func (w *Wallet) Reserve() uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.reserve
}

// Available returns max(0, balance-reserve).
func (w *Wallet) Available() uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return available(w.balance, w.reserve)
}

// Trades returns the number of attempts made with this wallet in this process.
func (w *Wallet) Trades() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.trades
}

// LastUsed returns the time of the last attempt, zero if never used.
func (w *Wallet) LastUsed() time.Time {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lastUsed
}

// SetBalance records a fresh balance read from the ledger.
func (w *Wallet) SetBalance(lamports uint64) {
	w.mu.Lock()
	w.balance = lamports
	w.mu.Unlock()
}

// RecordAttempt writes back the outcome of one trade attempt. It is called
// exactly once per attempt, success or failure. When spent is true the
// amount is deducted from the known balance.
func (w *Wallet) RecordAttempt(amount uint64, spent bool, at time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.trades++
	w.lastUsed = at
	if spent {
		if amount >= w.balance {
			w.balance = 0
		} else {
			w.balance -= amount
		}
	}
}

// ResetTrades clears the per-process trade counter.
func (w *Wallet) ResetTrades() {
	w.mu.Lock()
	w.trades = 0
	w.mu.Unlock()
}

// Snapshot returns an immutable copy of the wallet's mutable state.
func (w *Wallet) Snapshot() WalletState {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return WalletState{
		Index:     w.Index,
		Address:   w.Address.String(),
		Balance:   w.balance,
		Reserve:   w.reserve,
		Available: available(w.balance, w.reserve),
		Trades:    w.trades,
		LastUsed:  w.lastUsed,
	}
}

// WalletState is a point-in-time copy of a wallet used by planners and
// diagnostics.
type WalletState struct {
	Index     int       `json:"index"`
	Address   string    `json:"address"`
	Balance   uint64    `json:"balance_lamports"`
	Reserve   uint64    `json:"reserve_lamports"`
	Available uint64    `json:"available_lamports"`
	Trades    int       `json:"trades"`
	LastUsed  time.Time `json:"last_used,omitempty"`
}

func available(balance, reserve uint64) uint64 {
	if balance <= reserve {
		return 0
	}
	return balance - reserve
}
