// Package ledgertest provides in-memory ledger fakes and transaction
// fixtures for tests.
package ledgertest

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"sync"

	"github.com/gagliardetto/solana-go"

	"github.com/kpizzy812/solana-sniper-sub000/internal/domain"
)

// UnsignedTransaction builds a base64 wire transaction paid by payer with
// an empty signature slot, shaped like the swap service's output.
func UnsignedTransaction(payer solana.PublicKey) (string, error) {
	program := solana.MustPublicKeyFromBase58("MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr")
	ix := solana.NewInstruction(program, solana.AccountMetaSlice{
		solana.Meta(payer).WRITE().SIGNER(),
	}, []byte("swap"))

	tx, err := solana.NewTransaction([]solana.Instruction{ix}, solana.Hash{1, 2, 3}, solana.TransactionPayer(payer))
	if err != nil {
		return "", err
	}
	tx.Signatures = make([]solana.Signature, tx.Message.Header.NumRequiredSignatures)
	wire, err := tx.MarshalBinary()
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(wire), nil
}

// Ledger is a scriptable domain.Ledger. Zero value: every wallet has zero
// balance, simulations pass, submissions return "sig-<n>", and statuses are
// confirmed.
type Ledger struct {
	mu sync.Mutex

	Balances    map[solana.PublicKey]uint64
	BalanceErr  error
	SimulateErr error
	// SimulationFails makes every simulation report an on-chain error.
	SimulationFails bool
	SendErr         error
	// Unconfirmed makes GetSignatureStatus report ErrNotFound forever.
	Unconfirmed bool
	// ChainErr makes landed transactions report an execution error.
	ChainErr bool

	BalanceCalls  int
	SimulateCalls int
	SendCalls     int
	StatusCalls   int
	Sent          [][]byte
}

// SetBalance sets the balance of one account.
func (l *Ledger) SetBalance(pub solana.PublicKey, lamports uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Balances == nil {
		l.Balances = make(map[solana.PublicKey]uint64)
	}
	l.Balances[pub] = lamports
}

// Counts returns a snapshot of the call counters.
func (l *Ledger) Counts() (balance, simulate, send, status int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.BalanceCalls, l.SimulateCalls, l.SendCalls, l.StatusCalls
}

func (l *Ledger) GetBalance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.BalanceCalls++
	if l.BalanceErr != nil {
		return 0, l.BalanceErr
	}
	return l.Balances[account], nil
}

func (l *Ledger) GetLatestBlockhash(ctx context.Context) (*domain.BlockhashInfo, error) {
	return &domain.BlockhashInfo{Blockhash: solana.Hash{9}.String(), LastValidBlockHeight: 100}, nil
}

func (l *Ledger) SimulateTransaction(ctx context.Context, wireTx []byte) (*domain.SimulationResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.SimulateCalls++
	if l.SimulateErr != nil {
		return nil, l.SimulateErr
	}
	if l.SimulationFails {
		return &domain.SimulationResult{
			Err:  json.RawMessage(`{"InstructionError":[0,{"Custom":6001}]}`),
			Logs: []string{"Program log: slippage tolerance exceeded"},
		}, nil
	}
	return &domain.SimulationResult{UnitsConsumed: 120_000}, nil
}

func (l *Ledger) SendTransaction(ctx context.Context, wireTx []byte) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.SendCalls++
	if l.SendErr != nil {
		return "", l.SendErr
	}
	l.Sent = append(l.Sent, wireTx)
	return "sig-" + string(rune('a'+len(l.Sent)-1)), nil
}

func (l *Ledger) GetSignatureStatus(ctx context.Context, signature string) (*domain.SignatureStatus, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.StatusCalls++
	if l.Unconfirmed {
		return nil, domain.ErrNotFound
	}
	st := &domain.SignatureStatus{Slot: 1, ConfirmationStatus: domain.CommitmentConfirmed}
	if l.ChainErr {
		st.Err = json.RawMessage(`{"InstructionError":[2,"Custom"]}`)
	}
	return st, nil
}

var _ domain.Ledger = (*Ledger)(nil)
