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

package custody

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"klytic-pay-go/internal/models"
	"klytic-pay-go/internal/store"
	"klytic-pay-go/internal/vault"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/mr-tron/base58"
	"go.uber.org/zap"
)

const (
	minAddressLength = 32
	maxAddressLength = 44
	base58Alphabet   = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"
)

type Service struct {
	vault *vault.Vault
	store store.WalletStore
}

func NewService(v *vault.Vault, walletStore store.WalletStore) *Service {
	return &Service{vault: v, store: walletStore}
}

// Generate creates a new keypair and seals its private half. It has no side effects.
func (s *Service) Generate() (*models.GeneratedWallet, error) {
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("unable to generate keypair: %w", err)
	}

	sealed, err := s.vault.Encrypt([]byte(base64.StdEncoding.EncodeToString(key)))
	if err != nil {
		return nil, fmt.Errorf("unable to seal private key: %w", err)
	}

	return &models.GeneratedWallet{
		PublicKey:           key.PublicKey().String(),
		EncryptedPrivateKey: sealed,
	}, nil
}

// CreateUserWithWallet registers a user and its freshly generated wallet in one write.
func (s *Service) CreateUserWithWallet(ctx context.Context, name, email string) (*models.User, string, error) {
	if strings.TrimSpace(name) == "" || strings.TrimSpace(email) == "" {
		return nil, "", fmt.Errorf("name and email are required: %w", models.ErrValidation)
	}

	wallet, err := s.Generate()
	if err != nil {
		return nil, "", err
	}

	user, err := s.store.CreateUserWithWallet(ctx, uuid.New().String(), name, email, *wallet)
	if err != nil {
		return nil, "", err
	}

	zap.L().Info("Custodial wallet created",
		zap.String("user_id", user.Id),
		zap.String("public_key", wallet.PublicKey))
	return user, wallet.PublicKey, nil
}

// Rehydrate loads and decrypts the user's signing key.
func (s *Service) Rehydrate(ctx context.Context, userId string) (solana.PrivateKey, error) {
	wallet, err := s.store.GetUserWallet(ctx, userId)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("user %s: %w", userId, models.ErrWalletNotFound)
		}
		return nil, err
	}
	if wallet.EncryptedPrivateKey == "" || wallet.PublicKey == "" {
		return nil, fmt.Errorf("user %s: %w", userId, models.ErrWalletNotFound)
	}

	encoded, err := s.vault.Decrypt(wallet.EncryptedPrivateKey)
	if err != nil {
		zap.L().Error("Failed to decrypt wallet", zap.String("user_id", userId), zap.Error(err))
		return nil, fmt.Errorf("user %s: %w: %w", userId, models.ErrWalletCorrupt, err)
	}

	raw, err := base64.StdEncoding.DecodeString(string(encoded))
	if err != nil {
		return nil, fmt.Errorf("user %s: key is not base64: %w", userId, models.ErrWalletCorrupt)
	}

	key := solana.PrivateKey(raw)
	if len(key) != 64 {
		return nil, fmt.Errorf("user %s: key is %d bytes: %w", userId, len(key), models.ErrWalletCorrupt)
	}
	if key.PublicKey().String() != wallet.PublicKey {
		zap.L().Error("Wallet public key mismatch", zap.String("user_id", userId))
		return nil, fmt.Errorf("user %s: public key mismatch: %w", userId, models.ErrWalletCorrupt)
	}

	return key, nil
}

// PublicKey returns the stored address for a user without touching the private key.
func (s *Service) PublicKey(ctx context.Context, userId string) (solana.PublicKey, error) {
	wallet, err := s.store.GetUserWallet(ctx, userId)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return solana.PublicKey{}, fmt.Errorf("user %s: %w", userId, models.ErrWalletNotFound)
		}
		return solana.PublicKey{}, err
	}
	if wallet.PublicKey == "" {
		return solana.PublicKey{}, fmt.Errorf("user %s: %w", userId, models.ErrWalletNotFound)
	}

	pub, err := solana.PublicKeyFromBase58(wallet.PublicKey)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("user %s: %w", userId, models.ErrWalletCorrupt)
	}
	return pub, nil
}

// IsValidAddress checks address format offline: length bounds, base58 alphabet,
// and a 32-byte decoded key.
func IsValidAddress(address string) bool {
	if len(address) < minAddressLength || len(address) > maxAddressLength {
		return false
	}
	for _, r := range address {
		if !strings.ContainsRune(base58Alphabet, r) {
			return false
		}
	}

	decoded, err := base58.Decode(address)
	return err == nil && len(decoded) == solana.PublicKeyLength
}
