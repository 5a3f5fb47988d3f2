// Package session turns one trigger into a set of trades for a single
// wallet and aggregates their results.
package session

import (
	"math/bits"

	"github.com/kpizzy812/solana-sniper-sub000/internal/domain"
)

// SmartSplit divides total lamports into n front-loaded amounts. Slot i
// (i < n-1) gets the equal share scaled by 1 + (n-i)/(2n), capped at 60% of
// what is still unallocated. The last slot takes the exact remainder, so the
// amounts always sum to total.
func SmartSplit(total uint64, n int) []uint64 {
	if n <= 0 {
		return nil
	}
	if n == 1 {
		return []uint64{total}
	}

	nn := uint64(n)
	equal := total / nn
	remaining := total
	out := make([]uint64, n)
	for i := 0; i < n-1; i++ {
		amount := mulDiv(equal, 2*nn+(nn-uint64(i)), 2*nn)
		if limit := mulDiv(remaining, 6, 10); amount > limit {
			amount = limit
		}
		out[i] = amount
		remaining -= amount
	}
	out[n-1] = remaining
	return out
}

// EvenSplit returns n copies of amount.
func EvenSplit(amount uint64, n int) []uint64 {
	if n <= 0 {
		return nil
	}
	out := make([]uint64, n)
	for i := range out {
		out[i] = amount
	}
	return out
}

// PlanAmounts decides the trade amounts for one trigger. available is the
// wallet's spendable balance and only matters in max-balance mode, where a
// wallet at or below the dust floor plans nothing. Zero amounts are dropped,
// so an empty result means nothing should be sent.
func PlanAmounts(cfg Config, t domain.Trigger, available uint64) []uint64 {
	if t.UseMaxBalance {
		if available <= cfg.DustFloor {
			return nil
		}
		amount := available
		if cfg.MaxTradeAmount > 0 && amount > cfg.MaxTradeAmount {
			amount = cfg.MaxTradeAmount
		}
		if amount == 0 || amount <= cfg.DustFloor {
			return nil
		}
		return []uint64{amount}
	}

	n := t.TradeCount
	if n <= 0 {
		n = cfg.DefaultCount
	}
	amount := t.AmountPerTrade
	if amount == 0 {
		amount = cfg.DefaultAmount
	}

	var planned []uint64
	if cfg.SmartSplit && n > 1 {
		total, overflow := bits.Mul64(amount, uint64(n))
		if overflow != 0 {
			return nil
		}
		planned = SmartSplit(total, n)
	} else {
		planned = EvenSplit(amount, n)
	}

	out := planned[:0]
	for _, a := range planned {
		if a > 0 {
			out = append(out, a)
		}
	}
	return out
}

// mulDiv computes a*b/c without intermediate overflow. The quotient must fit
// in 64 bits.
func mulDiv(a, b, c uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	q, _ := bits.Div64(hi, lo, c)
	return q
}
