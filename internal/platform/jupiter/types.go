package jupiter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kpizzy812/solana-sniper-sub000/internal/domain"
)

// --------------------------------------------------------------------------
// Quote API DTOs
// --------------------------------------------------------------------------

// apiQuote is the /quote response. Every field is a pointer so a missing
// field can be told apart from a zero value.
type apiQuote struct {
	InputMint            *string         `json:"inputMint"`
	OutputMint           *string         `json:"outputMint"`
	InAmount             *string         `json:"inAmount"`
	OutAmount            *string         `json:"outAmount"`
	OtherAmountThreshold *string         `json:"otherAmountThreshold"`
	SwapMode             *string         `json:"swapMode"`
	SlippageBps          *int            `json:"slippageBps"`
	PriceImpactPct       *string         `json:"priceImpactPct"`
	RoutePlan            json.RawMessage `json:"routePlan"`
}

// parseQuote decodes a /quote body. Missing or malformed required fields are
// an ErrQuoteParse; a well-formed quote with no route is ErrQuoteUnavailable.
func parseQuote(body []byte, tier domain.Tier, fetchedAt time.Time) (*domain.Quote, error) {
	var a apiQuote
	if err := json.Unmarshal(body, &a); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrQuoteParse, err)
	}

	var missing []string
	if a.InputMint == nil {
		missing = append(missing, "inputMint")
	}
	if a.OutputMint == nil {
		missing = append(missing, "outputMint")
	}
	if a.InAmount == nil {
		missing = append(missing, "inAmount")
	}
	if a.OutAmount == nil {
		missing = append(missing, "outAmount")
	}
	if a.OtherAmountThreshold == nil {
		missing = append(missing, "otherAmountThreshold")
	}
	if a.SwapMode == nil || *a.SwapMode == "" {
		missing = append(missing, "swapMode")
	}
	if a.PriceImpactPct == nil {
		missing = append(missing, "priceImpactPct")
	}
	if len(a.RoutePlan) == 0 || bytes.Equal(a.RoutePlan, []byte("null")) {
		missing = append(missing, "routePlan")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %s", domain.ErrQuoteParse, strings.Join(missing, ", "))
	}

	q := &domain.Quote{
		InputMint:  *a.InputMint,
		OutputMint: *a.OutputMint,
		SwapMode:   *a.SwapMode,
		RoutePlan:  a.RoutePlan,
		Tier:       tier,
		FetchedAt:  fetchedAt,
		Raw:        append(json.RawMessage(nil), body...),
	}
	var err error
	if q.InAmount, err = parseAmount("inAmount", *a.InAmount); err != nil {
		return nil, err
	}
	if q.OutAmount, err = parseAmount("outAmount", *a.OutAmount); err != nil {
		return nil, err
	}
	if q.OtherAmountThreshold, err = parseAmount("otherAmountThreshold", *a.OtherAmountThreshold); err != nil {
		return nil, err
	}
	if q.PriceImpactPct, err = decimal.NewFromString(*a.PriceImpactPct); err != nil {
		return nil, fmt.Errorf("%w: priceImpactPct %q: %v", domain.ErrQuoteParse, *a.PriceImpactPct, err)
	}
	if a.SlippageBps != nil {
		q.SlippageBps = *a.SlippageBps
	}

	var steps []json.RawMessage
	if err := json.Unmarshal(a.RoutePlan, &steps); err != nil {
		return nil, fmt.Errorf("%w: routePlan: %v", domain.ErrQuoteParse, err)
	}
	if len(steps) == 0 || q.OutAmount == 0 {
		return nil, fmt.Errorf("%w: empty route", domain.ErrQuoteUnavailable)
	}
	return q, nil
}

func parseAmount(field, s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q is not a base-unit integer", domain.ErrQuoteParse, field, s)
	}
	return v, nil
}

// --------------------------------------------------------------------------
// Swap API DTOs
// --------------------------------------------------------------------------

type apiSwapRequest struct {
	QuoteResponse             json.RawMessage `json:"quoteResponse"`
	UserPublicKey             string          `json:"userPublicKey"`
	WrapAndUnwrapSol          bool            `json:"wrapAndUnwrapSol"`
	AsLegacyTransaction       bool            `json:"asLegacyTransaction"`
	UseTokenLedger            bool            `json:"useTokenLedger"`
	DynamicComputeUnitLimit   bool            `json:"dynamicComputeUnitLimit"`
	PrioritizationFeeLamports uint64          `json:"prioritizationFeeLamports,omitempty"`
	FeeAccount                string          `json:"feeAccount,omitempty"`
}

type apiSwapResponse struct {
	SwapTransaction      *string `json:"swapTransaction"`
	LastValidBlockHeight uint64  `json:"lastValidBlockHeight"`
}

func parseSwap(body []byte, tier domain.Tier) (*domain.SwapTransaction, error) {
	var a apiSwapResponse
	if err := json.Unmarshal(body, &a); err != nil {
		return nil, fmt.Errorf("%w: swap response: %v", domain.ErrQuoteParse, err)
	}
	if a.SwapTransaction == nil || *a.SwapTransaction == "" {
		return nil, fmt.Errorf("%w: missing swapTransaction", domain.ErrQuoteParse)
	}
	return &domain.SwapTransaction{
		Transaction:          *a.SwapTransaction,
		LastValidBlockHeight: a.LastValidBlockHeight,
		Tier:                 tier,
	}, nil
}

// --------------------------------------------------------------------------
// Price API DTOs
// --------------------------------------------------------------------------

type apiPriceResponse struct {
	Data map[string]*struct {
		ID    string          `json:"id"`
		Price decimal.Decimal `json:"price"`
	} `json:"data"`
}

// --------------------------------------------------------------------------
// Errors
// --------------------------------------------------------------------------

type apiError struct {
	Error     string `json:"error"`
	ErrorCode string `json:"errorCode"`
}

var noRouteCodes = map[string]bool{
	"COULD_NOT_FIND_ANY_ROUTE":                   true,
	"NO_ROUTES_FOUND":                            true,
	"TOKEN_NOT_TRADABLE":                         true,
	"ROUTE_PLAN_DOES_NOT_CONSUME_ALL_THE_AMOUNT": true,
	"CIRCULAR_ARBITRAGE_IS_DISABLED":             true,
}

// isNoRoute reports whether a 4xx body says no route exists.
func isNoRoute(body []byte) bool {
	var e apiError
	if err := json.Unmarshal(body, &e); err != nil {
		return false
	}
	if noRouteCodes[e.ErrorCode] {
		return true
	}
	msg := strings.ToLower(e.Error)
	return strings.Contains(msg, "route") || strings.Contains(msg, "not tradable")
}
