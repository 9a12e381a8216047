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
	"fmt"
	"strings"
	"time"

	"klytic-pay-go/internal/custody"
	"klytic-pay-go/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	oneTimeDelay = 24 * time.Hour
	weeklyDelay  = 7 * 24 * time.Hour
)

// CreatePayrollParams are the inputs to CreatePayrollSchedule
type CreatePayrollParams struct {
	UserId        string
	PayeeName     string
	WalletAddress string
	AmountUsd     decimal.Decimal
	Currency      string
	Frequency     string
}

// CreatePayrollSchedule validates and stores a schedule, converting the USD
// amount to the payout asset at creation time.
func (s *PaymentService) CreatePayrollSchedule(ctx context.Context, params CreatePayrollParams) (*models.PayrollSchedule, error) {
	if strings.TrimSpace(params.PayeeName) == "" || params.WalletAddress == "" {
		return nil, fmt.Errorf("payee name and wallet address are required: %w", models.ErrValidation)
	}
	if !custody.IsValidAddress(params.WalletAddress) {
		return nil, fmt.Errorf("invalid wallet address %q: %w", params.WalletAddress, models.ErrValidation)
	}
	if !params.AmountUsd.IsPositive() {
		return nil, fmt.Errorf("amount must be greater than 0: %w", models.ErrValidation)
	}

	if params.Currency != models.CurrencySOL && params.Currency != models.CurrencyUSDC {
		return nil, fmt.Errorf("currency must be SOL or USDC: %w", models.ErrValidation)
	}

	var delay time.Duration
	switch params.Frequency {
	case models.FrequencyOneTime:
		delay = oneTimeDelay
	case models.FrequencyWeekly:
		delay = weeklyDelay
	default:
		return nil, fmt.Errorf("frequency must be oneTime or weekly: %w", models.ErrValidation)
	}

	if _, err := s.store.GetUserById(ctx, params.UserId); err != nil {
		return nil, err
	}

	active, err := s.store.CountActivePayrolls(ctx, params.UserId)
	if err != nil {
		return nil, err
	}
	if active >= s.maxActivePayrolls {
		return nil, fmt.Errorf("maximum %d active payroll schedules allowed: %w", s.maxActivePayrolls, models.ErrValidation)
	}

	schedule := &models.PayrollSchedule{
		Id:                 uuid.New().String(),
		UserId:             params.UserId,
		PayeeName:          params.PayeeName,
		PayeeWalletAddress: params.WalletAddress,
		AmountUsd:          params.AmountUsd,
		Currency:           params.Currency,
		Frequency:          params.Frequency,
	}

	switch params.Currency {
	case models.CurrencySOL:
		amount, err := s.prices.UsdToNative(ctx, params.AmountUsd)
		if err != nil {
			return nil, err
		}
		schedule.AmountSol = decimal.NewNullDecimal(amount)
	case models.CurrencyUSDC:
		amount, err := s.prices.UsdToToken(ctx, params.AmountUsd)
		if err != nil {
			return nil, err
		}
		schedule.AmountUsdc = decimal.NewNullDecimal(amount)
	}

	next := s.now().UTC().Add(delay)
	schedule.NextPaymentDate = &next

	created, err := s.store.InsertPayrollSchedule(ctx, schedule, s.maxActivePayrolls)
	if err != nil {
		return nil, err
	}

	zap.L().Info("Payroll scheduled",
		zap.String("payroll_id", created.Id),
		zap.String("payee", created.PayeeName),
		zap.Time("next_payment_date", next))
	return created, nil
}

func (s *PaymentService) GetPayrollSchedule(ctx context.Context, userId, payrollId string) (*models.PayrollSchedule, error) {
	return s.store.GetPayrollSchedule(ctx, userId, payrollId)
}

func (s *PaymentService) ListPayrollSchedules(ctx context.Context, userId, status string) ([]models.PayrollSchedule, error) {
	return s.store.ListPayrollSchedules(ctx, userId, status)
}

func (s *PaymentService) CancelPayrollSchedule(ctx context.Context, userId, payrollId string) (*models.PayrollSchedule, error) {
	return s.store.CancelPayrollSchedule(ctx, userId, payrollId)
}
