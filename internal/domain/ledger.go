package domain

import (
	"context"
	"encoding/json"

	"github.com/gagliardetto/solana-go"
)

// Commitment levels reported by the ledger, in increasing order of finality.
const (
	CommitmentProcessed = "processed"
	CommitmentConfirmed = "confirmed"
	CommitmentFinalized = "finalized"
)

// SimulationResult is the ledger's verdict on a simulated transaction.
type SimulationResult struct {
	// Err is the raw transaction error, nil when the simulation succeeded.
	Err           json.RawMessage
	Logs          []string
	UnitsConsumed uint64
}

// Failed reports whether the simulation definitely failed.
func (r *SimulationResult) Failed() bool {
	return len(r.Err) > 0 && string(r.Err) != "null"
}

// SignatureStatus is the ledger's view of a submitted transaction.
type SignatureStatus struct {
	Slot               uint64
	ConfirmationStatus string
	Err                json.RawMessage
}

// Landed reports whether the transaction reached at least confirmed.
func (s *SignatureStatus) Landed() bool {
	return s.ConfirmationStatus == CommitmentConfirmed || s.ConfirmationStatus == CommitmentFinalized
}

// Failed reports whether the transaction executed with an error.
func (s *SignatureStatus) Failed() bool {
	return len(s.Err) > 0 && string(s.Err) != "null"
}

// BlockhashInfo is a recent block reference.
type BlockhashInfo struct {
	Blockhash            string
	LastValidBlockHeight uint64
}

// Ledger is the subset of the Solana JSON-RPC surface the engine uses.
// Implementations gate every call through the ledger rate limiter.
type Ledger interface {
	GetBalance(ctx context.Context, account solana.PublicKey) (uint64, error)
	GetLatestBlockhash(ctx context.Context) (*BlockhashInfo, error)
	SimulateTransaction(ctx context.Context, wireTx []byte) (*SimulationResult, error)
	SendTransaction(ctx context.Context, wireTx []byte) (string, error)
	// GetSignatureStatus returns ErrNotFound while the signature is unknown.
	GetSignatureStatus(ctx context.Context, signature string) (*SignatureStatus, error)
}

// SwapClient is the quoting/transaction-building service.
type SwapClient interface {
	GetQuote(ctx context.Context, req QuoteRequest) (*Quote, error)
	GetSwapTransaction(ctx context.Context, req SwapRequest) (*SwapTransaction, error)
}

// Confirmer waits for a submitted signature to land. It returns
// ErrConfirmationTimeout when ctx expires first.
type Confirmer interface {
	Confirm(ctx context.Context, signature string) (*SignatureStatus, error)
}
