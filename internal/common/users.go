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

package common

import (
	"context"
	"errors"
	"fmt"

	"klytic-pay-go/internal/models"
	"klytic-pay-go/internal/store"

	"go.uber.org/zap"
)

// UserInfo represents simplified user information for command-line utilities
type UserInfo struct {
	Id        string
	Name      string
	Email     string
	PublicKey string
}

// InitializeUsers retrieves users based on an optional email filter.
// If emailFilter is provided, returns a single user with that email.
// If emailFilter is empty, returns all users.
func InitializeUsers(ctx context.Context, walletStore store.WalletStore, emailFilter string, logger *zap.Logger) ([]UserInfo, error) {
	var users []UserInfo

	if emailFilter != "" {
		logger.Info("Looking up user by email", zap.String("email", emailFilter))
		user, err := walletStore.GetUserByEmail(ctx, emailFilter)
		if err != nil {
			return nil, fmt.Errorf("user not found: %w", err)
		}
		users = append(users, UserInfo{
			Id:    user.Id,
			Name:  user.Name,
			Email: user.Email,
		})
	} else {
		allUsers, err := walletStore.GetUsers(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get users: %w", err)
		}
		for _, u := range allUsers {
			users = append(users, UserInfo{
				Id:    u.Id,
				Name:  u.Name,
				Email: u.Email,
			})
		}
	}

	for i := range users {
		wallet, err := walletStore.GetUserWallet(ctx, users[i].Id)
		if err != nil {
			logger.Warn("Failed to get wallet for user", zap.String("user_id", users[i].Id), zap.Error(err))
			continue
		}
		users[i].PublicKey = wallet.PublicKey
	}

	logger.Info("Retrieved users", zap.Int("count", len(users)))
	return users, nil
}

// WalletRegistrar creates a user together with its custodial wallet
type WalletRegistrar interface {
	CreateUserWithWallet(ctx context.Context, name, email string) (*models.User, string, error)
}

type DemoUser struct {
	Name  string
	Email string
}

var DemoUsers = []DemoUser{
	{"Alice Johnson", "alice.johnson@example.com"},
	{"Bob Smith", "bob.smith@example.com"},
	{"Carol Williams", "carol.williams@example.com"},
}

// SeedDemoUsers registers each demo user with a wallet unless the email is
// already taken. It returns how many were created and the emails that failed.
func SeedDemoUsers(ctx context.Context, walletStore store.WalletStore, registrar WalletRegistrar, logger *zap.Logger) (int, []string) {
	var created int
	var failed []string
	for _, u := range DemoUsers {
		existing, err := walletStore.GetUserByEmail(ctx, u.Email)
		if err == nil {
			logger.Info("User already exists", zap.String("id", existing.Id), zap.String("email", u.Email))
			continue
		}
		if !errors.Is(err, models.ErrNotFound) {
			logger.Error("Failed to look up demo user", zap.String("email", u.Email), zap.Error(err))
			failed = append(failed, u.Email)
			continue
		}

		user, publicKey, err := registrar.CreateUserWithWallet(ctx, u.Name, u.Email)
		if err != nil {
			logger.Error("Failed to create demo user", zap.String("email", u.Email), zap.Error(err))
			failed = append(failed, u.Email)
			continue
		}
		logger.Info("Created demo user",
			zap.String("id", user.Id),
			zap.String("email", user.Email),
			zap.String("wallet", publicKey))
		created++
	}
	return created, failed
}
