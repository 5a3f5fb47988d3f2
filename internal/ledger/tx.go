package ledger

import (
	"encoding/base64"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/kpizzy812/solana-sniper-sub000/internal/domain"
)

// SignTransaction decodes a base64 wire transaction built by the swap
// service, signs its message with key in key's signer slot, and returns the
// re-encoded wire bytes plus the transaction signature (the fee payer's).
// Legacy and v0 messages are both supported.
func SignTransaction(b64 string, key solana.PrivateKey) ([]byte, solana.Signature, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, solana.Signature{}, fmt.Errorf("%w: decode base64: %v", domain.ErrSigningFailed, err)
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, solana.Signature{}, fmt.Errorf("%w: decode transaction: %v", domain.ErrSigningFailed, err)
	}

	required := int(tx.Message.Header.NumRequiredSignatures)
	pub := key.PublicKey()
	slot := -1
	for i := 0; i < required && i < len(tx.Message.AccountKeys); i++ {
		if tx.Message.AccountKeys[i] == pub {
			slot = i
			break
		}
	}
	if slot < 0 {
		return nil, solana.Signature{}, fmt.Errorf("%w: %s is not a required signer", domain.ErrSigningFailed, pub)
	}

	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return nil, solana.Signature{}, fmt.Errorf("%w: encode message: %v", domain.ErrSigningFailed, err)
	}
	sig, err := key.Sign(msg)
	if err != nil {
		return nil, solana.Signature{}, fmt.Errorf("%w: %v", domain.ErrSigningFailed, err)
	}

	for len(tx.Signatures) < required {
		tx.Signatures = append(tx.Signatures, solana.Signature{})
	}
	tx.Signatures[slot] = sig

	wire, err := tx.MarshalBinary()
	if err != nil {
		return nil, solana.Signature{}, fmt.Errorf("%w: encode transaction: %v", domain.ErrSigningFailed, err)
	}
	return wire, tx.Signatures[0], nil
}
