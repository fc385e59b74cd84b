// Package vault provides authenticated encryption for provider secrets
// before they reach the database. The envelope layout is
// base64(nonce(12) || tag(16) || ciphertext) under AES-256-GCM with a
// key derived from the configured master secret.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
)

const (
	nonceSize = 12
	tagSize   = 16
)

// ErrDecrypt is returned when an envelope fails to authenticate or
// parse. Decryption fails closed: a bad tag never yields plaintext.
var ErrDecrypt = errors.New("vault: decryption failed")

// Vault encrypts and decrypts credential material with a key derived
// from the master secret.
type Vault struct {
	aead cipher.AEAD
}

// New derives a fixed-length key by hashing the master secret and
// prepares the AEAD cipher.
func New(masterKey string) (*Vault, error) {
	if masterKey == "" {
		return nil, fmt.Errorf("vault: master key is required")
	}

	key := sha256.Sum256([]byte(masterKey))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("vault: cipher init: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("vault: gcm init: %w", err)
	}

	return &Vault{aead: aead}, nil
}

// Encrypt seals plaintext into a single encoded envelope. Every call
// draws a fresh random nonce; nonce reuse under a fixed key breaks GCM.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("vault: nonce generation: %w", err)
	}

	// Seal appends ciphertext||tag; the envelope wants nonce||tag||ciphertext.
	sealed := v.aead.Seal(nil, nonce, []byte(plaintext), nil)
	ct := sealed[:len(sealed)-tagSize]
	tag := sealed[len(sealed)-tagSize:]

	envelope := make([]byte, 0, nonceSize+tagSize+len(ct))
	envelope = append(envelope, nonce...)
	envelope = append(envelope, tag...)
	envelope = append(envelope, ct...)

	return base64.StdEncoding.EncodeToString(envelope), nil
}

// Decrypt splits the envelope back into nonce, tag, and ciphertext and
// authenticates before returning the plaintext.
func (v *Vault) Decrypt(envelope string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(envelope)
	if err != nil {
		return "", ErrDecrypt
	}
	if len(raw) < nonceSize+tagSize {
		return "", ErrDecrypt
	}

	nonce := raw[:nonceSize]
	tag := raw[nonceSize : nonceSize+tagSize]
	ct := raw[nonceSize+tagSize:]

	sealed := make([]byte, 0, len(ct)+tagSize)
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)

	plaintext, err := v.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrDecrypt
	}
	return string(plaintext), nil
}
