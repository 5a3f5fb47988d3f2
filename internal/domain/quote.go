package domain

import (
	"encoding/json"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

// Tier identifies which swap API endpoint served a response.
type Tier string

const (
	TierPaid Tier = "paid"
	TierFree Tier = "free"
)

// Other returns the alternate tier.
func (t Tier) Other() Tier {
	if t == TierPaid {
		return TierFree
	}
	return TierPaid
}

// QuoteRequest identifies a quote; it is also the quote cache key.
type QuoteRequest struct {
	InputMint   string
	OutputMint  string
	Amount      uint64
	SlippageBps int
}

// Quote is a priced, time-bounded swap proposal. Amounts are base units.
type Quote struct {
	InputMint            string
	OutputMint           string
	InAmount             uint64
	OutAmount            uint64
	OtherAmountThreshold uint64
	SwapMode             string
	SlippageBps          int
	// PriceImpactPct is the estimated price impact in percent (20 means 20%).
	PriceImpactPct decimal.Decimal
	RoutePlan      json.RawMessage
	Tier           Tier
	FetchedAt      time.Time

	// Raw is the verbatim response body, echoed back when building the swap.
	Raw json.RawMessage
}

// SwapRequest asks the swap service to build an unsigned transaction for a
// quote on behalf of a signer.
type SwapRequest struct {
	Quote                     *Quote
	UserPublicKey             solana.PublicKey
	PrioritizationFeeLamports uint64
	WrapAndUnwrapSOL          bool
	FeeAccount                string
}

// SwapTransaction is the unsigned transaction produced for a SwapRequest.
type SwapTransaction struct {
	// Transaction is the base64 wire transaction as returned by the service.
	Transaction          string
	LastValidBlockHeight uint64
	Tier                 Tier
}
