package domain

import (
	"context"
	"errors"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrRateLimited   = errors.New("rate limited")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrSigningFailed = errors.New("signing failed")
	ErrWSDisconnect  = errors.New("websocket disconnected")
	ErrLockHeld      = errors.New("lock already held")

	// Trade taxonomy.
	ErrTransientNetwork    = errors.New("transient network error")
	ErrQuoteUnavailable    = errors.New("quote unavailable")
	ErrQuoteParse          = errors.New("quote response parse failure")
	ErrPriceImpactExceeded = errors.New("price impact exceeded")
	ErrSlippageExceeded    = errors.New("slippage exceeded")
	ErrSimulationFailed    = errors.New("simulation failed")
	ErrSubmissionFailed    = errors.New("submission failed")
	ErrConfirmationTimeout = errors.New("confirmation timeout")
	ErrTargetRejected      = errors.New("target rejected")

	// Session level.
	ErrSessionInProgress = errors.New("session already in progress")
	ErrEmptyPlan         = errors.New("empty trade plan")
	ErrNoWallets         = errors.New("no wallets configured")
)

// ErrorKind is the stable, loggable name of an error class.
type ErrorKind string

const (
	KindNone                ErrorKind = ""
	KindTransientNetwork    ErrorKind = "transient_network"
	KindAuthorization       ErrorKind = "authorization"
	KindRateLimited         ErrorKind = "rate_limited"
	KindQuoteUnavailable    ErrorKind = "quote_unavailable"
	KindQuoteParse          ErrorKind = "quote_parse"
	KindPriceImpact         ErrorKind = "price_impact_exceeded"
	KindSlippage            ErrorKind = "slippage_exceeded"
	KindSimulation          ErrorKind = "simulation_failure"
	KindSubmission          ErrorKind = "submission_failure"
	KindConfirmationTimeout ErrorKind = "confirmation_timeout"
	KindSigning             ErrorKind = "signing_failure"
	KindTargetRejected      ErrorKind = "target_rejected"
	KindCancelled           ErrorKind = "cancelled"
	KindUnknown             ErrorKind = "unknown"
)

// Classify maps err onto the trade error taxonomy. Order matters: the more
// specific pre-submission aborts are checked before infrastructure errors.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrPriceImpactExceeded):
		return KindPriceImpact
	case errors.Is(err, ErrSlippageExceeded):
		return KindSlippage
	case errors.Is(err, ErrTargetRejected):
		return KindTargetRejected
	case errors.Is(err, ErrSimulationFailed):
		return KindSimulation
	case errors.Is(err, ErrSubmissionFailed):
		return KindSubmission
	case errors.Is(err, ErrConfirmationTimeout):
		return KindConfirmationTimeout
	case errors.Is(err, ErrSigningFailed):
		return KindSigning
	case errors.Is(err, ErrQuoteParse):
		return KindQuoteParse
	case errors.Is(err, ErrQuoteUnavailable):
		return KindQuoteUnavailable
	case errors.Is(err, ErrUnauthorized):
		return KindAuthorization
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	case errors.Is(err, ErrTransientNetwork):
		return KindTransientNetwork
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCancelled
	default:
		return KindUnknown
	}
}
