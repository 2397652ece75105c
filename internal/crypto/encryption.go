// Package crypto provides cryptographic utilities for the application.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const hkdfInfo = "calbook-token-encryption"

// Encryptor handles AES-256-GCM encryption of OAuth tokens at rest.
type Encryptor struct {
	aead cipher.AEAD
}

// NewEncryptor creates an Encryptor from a base64-encoded 32 byte key, or
// derives one from an arbitrary secret with HKDF-SHA256.
func NewEncryptor(keyOrSecret string) (*Encryptor, error) {
	if keyOrSecret == "" {
		return nil, fmt.Errorf("encryption key is empty")
	}

	key, err := base64.StdEncoding.DecodeString(keyOrSecret)
	if err != nil || len(key) != 32 {
		key, err = deriveKey([]byte(keyOrSecret), nil, hkdfInfo)
		if err != nil {
			return nil, fmt.Errorf("failed to derive encryption key: %w", err)
		}
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Encryptor{aead: aead}, nil
}

// deriveKey uses HKDF-SHA256 to derive a 32-byte key from input material.
func deriveKey(secret, salt []byte, info string) ([]byte, error) {
	if salt == nil {
		salt = make([]byte, 32)
	}

	r := hkdf.New(sha256.New, secret, salt, []byte(info))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}

// Encrypt seals plaintext. The random nonce is prepended to the result.
func (e *Encryptor) Encrypt(plaintext string) ([]byte, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return e.aead.Seal(nonce, nonce, []byte(plaintext), nil), nil
}

// Decrypt opens ciphertext produced by Encrypt.
func (e *Encryptor) Decrypt(ciphertext []byte) (string, error) {
	n := e.aead.NonceSize()
	if len(ciphertext) < n {
		return "", fmt.Errorf("ciphertext too short")
	}

	plaintext, err := e.aead.Open(nil, ciphertext[:n], ciphertext[n:], nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}
	return string(plaintext), nil
}

// EncryptOptional encrypts s, mapping the empty string to nil so nullable
// columns stay NULL.
func (e *Encryptor) EncryptOptional(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	return e.Encrypt(s)
}

// DecryptOptional is the inverse of EncryptOptional.
func (e *Encryptor) DecryptOptional(b []byte) (string, error) {
	if len(b) == 0 {
		return "", nil
	}
	return e.Decrypt(b)
}
