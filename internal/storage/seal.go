// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// SealedPrefix marks an encrypted value: ENC:base64(nonce|ciphertext|tag).
	SealedPrefix = "ENC:"

	keySize  = 32
	saltSize = 32

	// DefaultKDFIterations follows the OWASP 2023 figure for PBKDF2-SHA-256.
	DefaultKDFIterations = 600000
)

var (
	ErrInvalidCiphertext = errors.New("invalid ciphertext format")
	ErrDecryptionFailed  = errors.New("decryption failed: wrong sealing key or tampered data")
	ErrSealed            = errors.New("value is sealed but no sealing key is configured")
)

// sealer encrypts credential blobs. A nil sealer stores values in the clear.
type sealer struct {
	aead cipher.AEAD
}

func newSealer(passphrase string, salt []byte, iterations int) (*sealer, error) {
	if iterations <= 0 {
		iterations = DefaultKDFIterations
	}
	key := pbkdf2.Key([]byte(passphrase), salt, iterations, keySize, sha256.New)
	defer zero(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &sealer{aead: aead}, nil
}

func (s *sealer) seal(plain []byte) (string, error) {
	if s == nil {
		return string(plain), nil
	}
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	out := s.aead.Seal(nonce, nonce, plain, nil)
	return SealedPrefix + base64.StdEncoding.EncodeToString(out), nil
}

func (s *sealer) open(value string) ([]byte, error) {
	if !strings.HasPrefix(value, SealedPrefix) {
		return []byte(value), nil
	}
	if s == nil {
		return nil, ErrSealed
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, SealedPrefix))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCiphertext, err)
	}
	ns := s.aead.NonceSize()
	if len(raw) < ns+s.aead.Overhead() {
		return nil, ErrInvalidCiphertext
	}
	plain, err := s.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plain, nil
}

func generateSalt() ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return salt, nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
