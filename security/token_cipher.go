package security

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	keySize   = 32
	nonceSize = 12
	tagSize   = 16
)

// ErrAuthenticationFailed reports that a stored blob did not pass
// authenticated decryption: wrong key, truncation, or tamper.
var ErrAuthenticationFailed = errors.New("security: token authentication failed")

// TokenCipher seals bearer tokens with AES-256-GCM. The blob layout is
// base64(nonce || tag || ciphertext) with a 12-byte nonce and a 16-byte tag,
// so records written by other runtimes sharing the key stay readable.
type TokenCipher struct {
	aead cipher.AEAD
}

// NewTokenCipher builds a cipher over the raw 32-byte key. Anything other
// than exactly 32 bytes is rejected; key problems must fail at start-up, not
// on the first token write.
func NewTokenCipher(key []byte) (*TokenCipher, error) {
	if len(key) != keySize {
		return nil, fmt.Errorf("security: key must be %d bytes, got %d", keySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("security: create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("security: create gcm: %w", err)
	}
	return &TokenCipher{aead: aead}, nil
}

// NewTokenCipherFromBase64 decodes a standard-base64 key and builds the
// cipher from it.
func NewTokenCipherFromBase64(encoded string) (*TokenCipher, error) {
	trimmed := strings.TrimSpace(encoded)
	if trimmed == "" {
		return nil, fmt.Errorf("security: key is required")
	}
	raw, err := base64.StdEncoding.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("security: decode key: %w", err)
	}
	return NewTokenCipher(raw)
}

func (c *TokenCipher) Encrypt(_ context.Context, plaintext []byte) (string, error) {
	if c == nil || c.aead == nil {
		return "", fmt.Errorf("security: token cipher is nil")
	}
	if len(plaintext) == 0 {
		return "", fmt.Errorf("security: plaintext is required")
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("security: nonce generation failed: %w", err)
	}

	// Seal appends the tag after the ciphertext; the wire layout wants it
	// between the nonce and the ciphertext.
	sealed := c.aead.Seal(nil, nonce, plaintext, nil)
	ciphertext := sealed[:len(sealed)-tagSize]
	tag := sealed[len(sealed)-tagSize:]

	blob := make([]byte, 0, nonceSize+tagSize+len(ciphertext))
	blob = append(blob, nonce...)
	blob = append(blob, tag...)
	blob = append(blob, ciphertext...)

	return base64.StdEncoding.EncodeToString(blob), nil
}

func (c *TokenCipher) Decrypt(_ context.Context, blob string) ([]byte, error) {
	if c == nil || c.aead == nil {
		return nil, fmt.Errorf("security: token cipher is nil")
	}
	trimmed := strings.TrimSpace(blob)
	if trimmed == "" {
		return nil, fmt.Errorf("security: blob is required")
	}

	raw, err := base64.StdEncoding.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: blob is not base64", ErrAuthenticationFailed)
	}
	if len(raw) < nonceSize+tagSize {
		return nil, fmt.Errorf("%w: blob too short: %d bytes", ErrAuthenticationFailed, len(raw))
	}

	nonce := raw[:nonceSize]
	tag := raw[nonceSize : nonceSize+tagSize]
	ciphertext := raw[nonceSize+tagSize:]

	sealed := make([]byte, 0, len(ciphertext)+tagSize)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	return plaintext, nil
}
