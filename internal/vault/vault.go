/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"

	"klytic-pay-go/internal/models"

	"go.uber.org/zap"
	"golang.org/x/crypto/hkdf"
)

const (
	SecretSize = 32
	nonceSize  = 16
	tagSize    = 16
)

var hkdfInfo = []byte("klytic-pay wallet key v1")

// Vault seals wallet private keys with AES-256-GCM under a process-wide secret.
// Sealed blobs are hex(nonce || ciphertext || tag).
type Vault struct {
	aead cipher.AEAD
}

// New derives the sealing key from a 32-byte secret.
func New(secret []byte) (*Vault, error) {
	if len(secret) != SecretSize {
		return nil, fmt.Errorf("encryption secret must be %d bytes, got %d: %w", SecretSize, len(secret), models.ErrValidation)
	}

	key := make([]byte, SecretSize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, hkdfInfo), key); err != nil {
		return nil, fmt.Errorf("unable to derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("unable to create cipher: %w", err)
	}

	aead, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, fmt.Errorf("unable to create gcm: %w", err)
	}

	zap.L().Debug("Key vault initialized")
	return &Vault{aead: aead}, nil
}

// NewFromBase64 decodes the configured secret and builds a Vault.
func NewFromBase64(encoded string) (*Vault, error) {
	secret, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("encryption secret is not valid base64: %w", models.ErrValidation)
	}
	return New(secret)
}

// Encrypt seals plaintext under a fresh random nonce.
func (v *Vault) Encrypt(plaintext []byte) (string, error) {
	nonce := make([]byte, nonceSize, nonceSize+len(plaintext)+tagSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("unable to generate nonce: %w", err)
	}

	sealed := v.aead.Seal(nonce, nonce, plaintext, nil)
	return hex.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Any malformed or tampered input yields models.ErrDecryption.
func (v *Vault) Decrypt(blob string) ([]byte, error) {
	raw, err := hex.DecodeString(blob)
	if err != nil {
		return nil, fmt.Errorf("blob is not hex: %w", models.ErrDecryption)
	}
	if len(raw) < nonceSize+tagSize {
		return nil, fmt.Errorf("blob too short (%d bytes): %w", len(raw), models.ErrDecryption)
	}

	plaintext, err := v.aead.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("authentication failed: %w", models.ErrDecryption)
	}
	return plaintext, nil
}
