// Package crypto handles wallet secret material: parsing Solana keypairs,
// generating new ones, and storing them in password-encrypted key files.
package crypto

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"filippo.io/edwards25519"
	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

// ParsePrivateKey decodes a 64-byte ed25519 secret given either as base58
// (Phantom export format) or as a JSON byte array (solana-keygen format).
// The public half must be a valid curve point matching the seed.
func ParsePrivateKey(s string) (solana.PrivateKey, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("crypto: empty private key")
	}

	var raw []byte
	if strings.HasPrefix(s, "[") {
		var ints []int
		if err := json.Unmarshal([]byte(s), &ints); err != nil {
			return nil, fmt.Errorf("crypto: parse key byte array: %w", err)
		}
		raw = make([]byte, len(ints))
		for i, v := range ints {
			if v < 0 || v > 255 {
				return nil, fmt.Errorf("crypto: key byte %d out of range", i)
			}
			raw[i] = byte(v)
		}
	} else {
		decoded, err := base58.Decode(s)
		if err != nil {
			return nil, fmt.Errorf("crypto: decode base58 key: %w", err)
		}
		raw = decoded
	}

	if err := checkKeypair(raw); err != nil {
		return nil, err
	}
	return solana.PrivateKey(raw), nil
}

// checkKeypair verifies that raw is seed||public and that the public half is
// the key derived from the seed.
func checkKeypair(raw []byte) error {
	if len(raw) != ed25519.PrivateKeySize {
		return fmt.Errorf("crypto: expected %d-byte keypair, got %d bytes", ed25519.PrivateKeySize, len(raw))
	}
	pub := raw[ed25519.SeedSize:]
	if !IsOnCurve(pub) {
		return errors.New("crypto: public key is not a valid curve point")
	}
	derived := ed25519.NewKeyFromSeed(raw[:ed25519.SeedSize]).Public().(ed25519.PublicKey)
	if !bytes.Equal(derived, pub) {
		return errors.New("crypto: public key does not match seed")
	}
	return nil
}

// IsOnCurve reports whether b encodes a point on the ed25519 curve. Program
// derived addresses are deliberately off-curve and cannot sign.
func IsOnCurve(b []byte) bool {
	if len(b) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(b)
	return err == nil
}

// GenerateKey creates a fresh random keypair.
func GenerateKey() (solana.PrivateKey, error) {
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("crypto: generate key: %w", err)
	}
	return key, nil
}

// EncodePrivateKey renders a keypair in base58.
func EncodePrivateKey(key solana.PrivateKey) string {
	return base58.Encode(key)
}
