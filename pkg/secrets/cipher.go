// Package secrets encrypts credentials at rest. The router password is
// stored encrypted and decrypted only for the duration of a control
// connection; the cipher is an interface so key management can move to
// a KMS without touching the callers.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// ErrDecrypt is returned when a stored credential cannot be decrypted,
// typically after a key rotation mismatch. Callers surface it verbatim
// so the operator knows administrative action is needed.
var ErrDecrypt = errors.New("credential decryption failed")

// KeySize is the required key length in bytes (AES-256).
const KeySize = 32

// Cipher encrypts and decrypts credential strings.
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// StaticKeyCipher is an AES-256-GCM cipher with a fixed key supplied
// from configuration. The wire form is base64(nonce || ciphertext).
type StaticKeyCipher struct {
	aead cipher.AEAD
}

// NewStaticKeyCipher builds a cipher from a 32-byte key.
func NewStaticKeyCipher(key []byte) (*StaticKeyCipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("cipher key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize GCM: %w", err)
	}
	return &StaticKeyCipher{aead: aead}, nil
}

// Encrypt seals plaintext under a fresh random nonce.
func (c *StaticKeyCipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt.
func (c *StaticKeyCipher) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: not base64", ErrDecrypt)
	}
	if len(raw) < c.aead.NonceSize() {
		return "", fmt.Errorf("%w: value too short", ErrDecrypt)
	}
	nonce, sealed := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plain, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return string(plain), nil
}
