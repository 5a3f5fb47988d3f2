package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trigger is the request to acquire a target asset, supplied by the
// detection subsystem. TargetMint has already been validated upstream.
type Trigger struct {
	TargetMint     string            `json:"target_mint"`
	Source         map[string]string `json:"source,omitempty"`
	TradeCount     int               `json:"trade_count"`
	AmountPerTrade uint64            `json:"amount_per_trade_lamports"`
	UseMaxBalance  bool              `json:"use_max_balance"`
}

// TradeResult is the outcome of one swap attempt.
type TradeResult struct {
	Index     int       `json:"index"`
	Wallet    string    `json:"wallet"`
	Success   bool      `json:"success"`
	Signature string    `json:"signature,omitempty"`
	Err       error     `json:"-"`
	ErrorKind ErrorKind `json:"error_kind,omitempty"`
	// Unconfirmed is set when a signature exists but confirmation was not
	// observed before the timeout. Such a result still counts as a success.
	Unconfirmed bool   `json:"unconfirmed,omitempty"`
	InputAmount uint64 `json:"input_lamports"`
	// OutputAmount is the quote's minimum output after slippage.
	OutputAmount   *uint64          `json:"output_amount,omitempty"`
	PriceImpactPct *decimal.Decimal `json:"price_impact_pct,omitempty"`
	Tier           Tier             `json:"tier,omitempty"`
	Latency        time.Duration    `json:"latency_ns"`
}

// Error returns the error message, empty on success.
func (r TradeResult) Error() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// SessionOutcome summarises how a session ended.
type SessionOutcome string

const (
	OutcomeSuccess   SessionOutcome = "success"
	OutcomePartial   SessionOutcome = "partial"
	OutcomeAllFailed SessionOutcome = "all_failed"
	// OutcomeEmptyPlan means no attempt was planned and no trade touched
	// the network.
	OutcomeEmptyPlan SessionOutcome = "empty_plan"
)

// TradingSession accumulates the results of one trigger.
type TradingSession struct {
	ID         string            `json:"id"`
	TargetMint string            `json:"target_mint"`
	Source     map[string]string `json:"source,omitempty"`
	Planned    []uint64          `json:"planned_lamports"`
	Results    []TradeResult     `json:"results"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	// DelayedStart records whether a pre-session delay was applied.
	DelayedStart bool `json:"delayed_start,omitempty"`
	// PriceSOL is the target's market price after the session, when known.
	PriceSOL string `json:"price_sol,omitempty"`
}

// Successes returns the number of successful attempts.
func (s *TradingSession) Successes() int {
	n := 0
	for _, r := range s.Results {
		if r.Success {
			n++
		}
	}
	return n
}

// Failures returns the number of failed attempts.
func (s *TradingSession) Failures() int {
	return len(s.Results) - s.Successes()
}

// TotalSpent sums the input amount of successful attempts.
func (s *TradingSession) TotalSpent() uint64 {
	var total uint64
	for _, r := range s.Results {
		if r.Success {
			total += r.InputAmount
		}
	}
	return total
}

// TotalAcquired sums the guaranteed minimum output of successful attempts.
// Attempts with no known output contribute zero, so the total is a lower
// bound.
func (s *TradingSession) TotalAcquired() uint64 {
	var total uint64
	for _, r := range s.Results {
		if r.Success && r.OutputAmount != nil {
			total += *r.OutputAmount
		}
	}
	return total
}

// SuccessRate returns successes/attempts in percent, zero when nothing ran.
func (s *TradingSession) SuccessRate() float64 {
	if len(s.Results) == 0 {
		return 0
	}
	return float64(s.Successes()) / float64(len(s.Results)) * 100
}

// AverageLatency is the mean latency of successful attempts.
func (s *TradingSession) AverageLatency() time.Duration {
	var sum time.Duration
	n := 0
	for _, r := range s.Results {
		if r.Success {
			sum += r.Latency
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / time.Duration(n)
}

// Signatures returns the signatures of successful attempts in result order.
func (s *TradingSession) Signatures() []string {
	var out []string
	for _, r := range s.Results {
		if r.Success && r.Signature != "" {
			out = append(out, r.Signature)
		}
	}
	return out
}

// Outcome classifies the session.
func (s *TradingSession) Outcome() SessionOutcome {
	switch ok := s.Successes(); {
	case len(s.Results) == 0:
		return OutcomeEmptyPlan
	case ok == 0:
		return OutcomeAllFailed
	case ok < len(s.Results):
		return OutcomePartial
	default:
		return OutcomeSuccess
	}
}

// Summary is the JSON-friendly aggregate view of a session.
type Summary struct {
	ID             string         `json:"id"`
	TargetMint     string         `json:"target_mint"`
	Outcome        SessionOutcome `json:"outcome"`
	Attempts       int            `json:"attempts"`
	Successes      int            `json:"successes"`
	Failures       int            `json:"failures"`
	TotalSpentSOL  string         `json:"total_spent_sol"`
	TotalAcquired  uint64         `json:"total_acquired"`
	SuccessRate    float64        `json:"success_rate"`
	AvgLatencyMs   int64          `json:"avg_latency_ms"`
	ElapsedMs      int64          `json:"elapsed_ms"`
	Signatures     []string       `json:"signatures,omitempty"`
	Results        []TradeResult  `json:"results"`
	DelayedStart   bool           `json:"delayed_start,omitempty"`
	UnconfirmedSig int            `json:"unconfirmed,omitempty"`
	// PriceSOL is the target's market price after the session, when known.
	PriceSOL string `json:"price_sol,omitempty"`
}

// Summarize builds the aggregate view of the session.
func (s *TradingSession) Summarize() Summary {
	unconfirmed := 0
	for _, r := range s.Results {
		if r.Success && r.Unconfirmed {
			unconfirmed++
		}
	}
	return Summary{
		ID:             s.ID,
		TargetMint:     s.TargetMint,
		Outcome:        s.Outcome(),
		Attempts:       len(s.Results),
		Successes:      s.Successes(),
		Failures:       s.Failures(),
		TotalSpentSOL:  FormatSOL(s.TotalSpent()),
		TotalAcquired:  s.TotalAcquired(),
		SuccessRate:    s.SuccessRate(),
		AvgLatencyMs:   s.AverageLatency().Milliseconds(),
		ElapsedMs:      s.FinishedAt.Sub(s.StartedAt).Milliseconds(),
		Signatures:     s.Signatures(),
		Results:        s.Results,
		DelayedStart:   s.DelayedStart,
		UnconfirmedSig: unconfirmed,
		PriceSOL:       s.PriceSOL,
	}
}
