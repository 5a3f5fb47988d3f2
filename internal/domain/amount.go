package domain

import "github.com/shopspring/decimal"

// LamportsPerSOL is the number of base units in one SOL.
const LamportsPerSOL = 1_000_000_000

// WrappedSOLMint is the mint address of wrapped SOL, the base asset every
// buy is paid in.
const WrappedSOLMint = "So11111111111111111111111111111111111111112"

var lamportsPerSOL = decimal.NewFromInt(LamportsPerSOL)

// SOLToLamports converts a SOL amount to lamports, truncating anything below
// one lamport. Negative amounts map to zero.
func SOLToLamports(sol decimal.Decimal) uint64 {
	if sol.Sign() <= 0 {
		return 0
	}
	return uint64(sol.Mul(lamportsPerSOL).Truncate(0).IntPart())
}

// SOLFloatToLamports converts a configuration float (e.g. 0.1) to lamports
// without the binary rounding error of multiplying floats directly.
func SOLFloatToLamports(sol float64) uint64 {
	return SOLToLamports(decimal.NewFromFloat(sol))
}

// LamportsToSOL converts lamports to an exact SOL decimal.
func LamportsToSOL(lamports uint64) decimal.Decimal {
	return decimal.NewFromUint64(lamports).Div(lamportsPerSOL)
}

// FormatSOL renders lamports as a SOL string with up to 9 decimals.
func FormatSOL(lamports uint64) string {
	return LamportsToSOL(lamports).String()
}

// ShortAddress elides an address to its first and last four characters.
func ShortAddress(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:4] + "…" + addr[len(addr)-4:]
}
