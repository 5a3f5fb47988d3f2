package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gagliardetto/solana-go"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// pbkdf2Iterations is the OWASP-recommended minimum for HMAC-SHA256.
	pbkdf2Iterations = 480_000
	saltLen          = 16
	aesKeyLen        = 32
	currentVersion   = 1
)

// encryptedKeyJSON is the on-disk format for an encrypted wallet keypair.
type encryptedKeyJSON struct {
	Version    int    `json:"version"`
	Address    string `json:"address"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// KeyConfig lists every source of wallet secrets.
type KeyConfig struct {
	// RawPrivateKeys are base58 or JSON-array keypairs.
	RawPrivateKeys []string
	// EncryptedKeyPaths are files or glob patterns of files written by
	// EncryptKey.
	EncryptedKeyPaths []string
	KeyPassword       string
}

// EncryptKey encrypts a keypair with PBKDF2-HMAC-SHA256 key derivation and
// AES-256-GCM. The wallet address is stored in clear so files can be
// identified without the password.
func EncryptKey(key solana.PrivateKey, password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("crypto: password must not be empty")
	}
	if err := checkKeypair(key); err != nil {
		return nil, err
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: generating salt: %w", err)
	}
	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: generating nonce: %w", err)
	}

	address := key.PublicKey().String()
	// The address is bound as associated data so it cannot be swapped.
	ciphertext := gcm.Seal(nil, nonce, key, []byte(address))

	return json.MarshalIndent(encryptedKeyJSON{
		Version:    currentVersion,
		Address:    address,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
	}, "", "  ")
}

// DecryptKey reverses EncryptKey.
func DecryptKey(encryptedJSON []byte, password string) (solana.PrivateKey, error) {
	if password == "" {
		return nil, errors.New("crypto: password must not be empty")
	}

	var stored encryptedKeyJSON
	if err := json.Unmarshal(encryptedJSON, &stored); err != nil {
		return nil, fmt.Errorf("crypto: parsing encrypted key JSON: %w", err)
	}
	if stored.Version != currentVersion {
		return nil, fmt.Errorf("crypto: unsupported version %d", stored.Version)
	}

	salt, err := base64.StdEncoding.DecodeString(stored.Salt)
	if err != nil {
		return nil, fmt.Errorf("crypto: decoding salt: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(stored.Nonce)
	if err != nil {
		return nil, fmt.Errorf("crypto: decoding nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(stored.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("crypto: decoding ciphertext: %w", err)
	}

	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, []byte(stored.Address))
	if err != nil {
		return nil, fmt.Errorf("crypto: decryption failed (wrong password?): %w", err)
	}
	if err := checkKeypair(plaintext); err != nil {
		return nil, err
	}
	return solana.PrivateKey(plaintext), nil
}

func newGCM(password string, salt []byte) (cipher.AEAD, error) {
	derived := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, aesKeyLen, sha256.New)
	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating GCM: %w", err)
	}
	return gcm, nil
}

// LoadKeys resolves every configured wallet secret. Raw keys come first, in
// order, followed by encrypted files sorted by path. Duplicate addresses are
// rejected.
func LoadKeys(cfg KeyConfig) ([]solana.PrivateKey, error) {
	var keys []solana.PrivateKey
	seen := make(map[solana.PublicKey]bool)

	add := func(k solana.PrivateKey, source string) error {
		pub := k.PublicKey()
		if seen[pub] {
			return fmt.Errorf("crypto: duplicate wallet %s from %s", pub, source)
		}
		seen[pub] = true
		keys = append(keys, k)
		return nil
	}

	for i, raw := range cfg.RawPrivateKeys {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		k, err := ParsePrivateKey(raw)
		if err != nil {
			return nil, fmt.Errorf("crypto: raw key %d: %w", i, err)
		}
		if err := add(k, fmt.Sprintf("raw key %d", i)); err != nil {
			return nil, err
		}
	}

	paths, err := expandPaths(cfg.EncryptedKeyPaths)
	if err != nil {
		return nil, err
	}
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("crypto: reading encrypted key file: %w", err)
		}
		k, err := DecryptKey(data, cfg.KeyPassword)
		if err != nil {
			return nil, fmt.Errorf("crypto: %s: %w", p, err)
		}
		if err := add(k, p); err != nil {
			return nil, err
		}
	}

	if len(keys) == 0 {
		return nil, errors.New("crypto: no wallet keys configured (set private keys or encrypted key paths)")
	}
	return keys, nil
}

func expandPaths(patterns []string) ([]string, error) {
	var out []string
	for _, pat := range patterns {
		if strings.TrimSpace(pat) == "" {
			continue
		}
		matches, err := filepath.Glob(pat)
		if err != nil {
			return nil, fmt.Errorf("crypto: bad key path pattern %q: %w", pat, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("crypto: no key files match %q", pat)
		}
		sort.Strings(matches)
		out = append(out, matches...)
	}
	return out, nil
}

// WriteKeyFile encrypts key and writes it to dir/<address>.json with owner
// only permissions. It returns the file path.
func WriteKeyFile(dir string, key solana.PrivateKey, password string) (string, error) {
	data, err := EncryptKey(key, password)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("crypto: create key dir: %w", err)
	}
	path := filepath.Join(dir, key.PublicKey().String()+".json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("crypto: write key file: %w", err)
	}
	return path, nil
}
