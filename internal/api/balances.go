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

package api

import (
	"context"
	"errors"
	"fmt"

	"klytic-pay-go/internal/chain"
	"klytic-pay-go/internal/models"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const dashboardListLen = 5

// GetWalletBalances reads the custodial wallet's on-chain native and token
// balances and values them at current rates.
func (s *PaymentService) GetWalletBalances(ctx context.Context, userId string) (*models.WalletBalances, error) {
	if userId == "" {
		return nil, fmt.Errorf("user_id is required: %w", models.ErrValidation)
	}
	if s.ledger == nil {
		return nil, fmt.Errorf("ledger is not configured")
	}

	owner, err := s.custody.PublicKey(ctx, userId)
	if err != nil {
		return nil, err
	}

	lamports, err := s.ledger.GetNativeBalance(ctx, owner)
	if err != nil {
		zap.L().Error("Failed to get native balance", zap.String("user_id", userId), zap.Error(err))
		return nil, fmt.Errorf("failed to retrieve native balance: %w", err)
	}

	tokenUnits, err := s.tokenBalance(ctx, owner)
	if err != nil {
		zap.L().Error("Failed to get token balance", zap.String("user_id", userId), zap.Error(err))
		return nil, fmt.Errorf("failed to retrieve token balance: %w", err)
	}

	rates := s.prices.GetRates(ctx)
	native := decimal.NewFromUint64(lamports).Shift(-s.assets.Native.Decimals)
	token := decimal.NewFromUint64(tokenUnits).Shift(-s.assets.Token.Decimals)

	return &models.WalletBalances{
		PublicKey:   owner.String(),
		Native:      native,
		Token:       token,
		NativeUsd:   native.Mul(rates.NativeUsd).Round(2),
		TokenUsd:    token.Mul(rates.TokenUsd).Round(2),
		RatesSource: rates.Source,
	}, nil
}

// tokenBalance treats a missing token account as an empty balance.
func (s *PaymentService) tokenBalance(ctx context.Context, owner solana.PublicKey) (uint64, error) {
	mint, err := solana.PublicKeyFromBase58(s.assets.Token.Mint)
	if err != nil {
		return 0, fmt.Errorf("invalid token mint %q: %w", s.assets.Token.Mint, models.ErrValidation)
	}
	account, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return 0, err
	}

	balance, err := s.ledger.GetTokenBalance(ctx, account)
	if errors.Is(err, chain.ErrAccountNotFound) {
		return 0, nil
	}
	return balance, err
}

// GetDashboardSummary aggregates invoice and payroll activity for a user.
func (s *PaymentService) GetDashboardSummary(ctx context.Context, userId string) (*models.DashboardSummary, error) {
	invoiceStats, err := s.store.GetInvoiceStats(ctx, userId)
	if err != nil {
		return nil, err
	}
	payrollStats, err := s.store.GetPayrollStats(ctx, userId)
	if err != nil {
		return nil, err
	}
	recent, err := s.store.ListInvoices(ctx, userId, "", dashboardListLen, 0)
	if err != nil {
		return nil, err
	}
	upcoming, err := s.store.ListUpcomingPayrolls(ctx, userId, dashboardListLen)
	if err != nil {
		return nil, err
	}

	return &models.DashboardSummary{
		Invoices:         *invoiceStats,
		Payroll:          *payrollStats,
		RecentInvoices:   recent,
		UpcomingPayrolls: upcoming,
	}, nil
}
