// Package cryptox implements the symmetric cipher used by the credential
// vault. Plaintext secrets are sealed with AES-256-GCM into opaque string
// tokens safe to store in a text column.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"github.com/dmitrijs2005/debatekeeper/internal/common"
)

const keySize = 32

// Cipher seals and opens credential secrets under a key derived once from the
// configured master secret. It is stateless and safe for concurrent use.
type Cipher struct {
	aead cipher.AEAD
}

// DeriveKey turns a master secret of arbitrary length into a 32-byte AES key.
// A secret that is already exactly 32 bytes is used as-is; anything else is
// hashed with SHA-256. The derivation is deterministic so a redeployment with
// the same configured secret can decrypt previously stored tokens.
func DeriveKey(masterSecret string) []byte {
	if len(masterSecret) == keySize {
		return []byte(masterSecret)
	}
	sum := sha256.Sum256([]byte(masterSecret))
	return sum[:]
}

// New constructs a Cipher from the configured master secret.
func New(masterSecret string) (*Cipher, error) {
	if masterSecret == "" {
		return nil, fmt.Errorf("%w: empty master secret", common.ErrValidation)
	}

	block, err := aes.NewCipher(DeriveKey(masterSecret))
	if err != nil {
		return nil, fmt.Errorf("cipher init error: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm init error: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt seals plaintext into a token of the form base64url(nonce || ciphertext).
// A fresh random nonce is generated per call, so encrypting the same plaintext
// twice yields different tokens.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	nonce := common.GenerateRandByteArray(c.aead.NonceSize())

	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a token produced by Encrypt. It returns common.ErrInvalidToken
// (wrapped) when the token is malformed or was sealed under a different master
// key, so callers can tell a misconfigured key apart from a missing record.
func (c *Cipher) Decrypt(token string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", fmt.Errorf("%w: not base64url", common.ErrInvalidToken)
	}

	ns := c.aead.NonceSize()
	if len(raw) < ns {
		return "", fmt.Errorf("%w: token too short", common.ErrInvalidToken)
	}

	plaintext, err := c.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", fmt.Errorf("%w: authentication failed", common.ErrInvalidToken)
	}
	return string(plaintext), nil
}
