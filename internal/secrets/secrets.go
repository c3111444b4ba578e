// Package secrets seals payment-method tokens and nonces at rest. Plaintext
// secrets exist only transiently, inside a charge request being built.
package secrets

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
)

const keySize = 32

var ErrDecrypt = errors.New("secrets: cannot open sealed value")

type Box struct {
	key [keySize]byte
}

// NewBox expects a hex-encoded 32-byte key (BILLING_SECRET_KEY).
func NewBox(hexKey string) (*Box, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("secrets: decode key: %w", err)
	}
	if len(raw) != keySize {
		return nil, fmt.Errorf("secrets: key must be %d bytes, got %d", keySize, len(raw))
	}
	b := &Box{}
	copy(b.key[:], raw)
	return b, nil
}

// Seal encrypts plaintext with a random nonce prepended to the ciphertext.
func (b *Box) Seal(plaintext string) []byte {
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		// crypto/rand failing means the host is broken; no useful recovery.
		panic(err)
	}
	return secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &b.key)
}

// Open decrypts a sealed value. Tampered or truncated input yields ErrDecrypt.
func (b *Box) Open(sealed []byte) (string, error) {
	if len(sealed) < 24 {
		return "", ErrDecrypt
	}
	var nonce [24]byte
	copy(nonce[:], sealed[:24])
	plain, ok := secretbox.Open(nil, sealed[24:], &nonce, &b.key)
	if !ok {
		return "", ErrDecrypt
	}
	return string(plain), nil
}
