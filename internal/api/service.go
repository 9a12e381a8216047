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
	"time"

	"klytic-pay-go/internal/chain"
	"klytic-pay-go/internal/models"
	"klytic-pay-go/internal/store"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

const (
	DefaultStatusTimeout     = 5 * time.Second
	DefaultReconcileTimeout  = 30 * time.Second
	DefaultMaxActivePayrolls = 5
	reconcileConcurrency     = 8
)

// WalletCustody resolves a user's custodial wallet address.
type WalletCustody interface {
	PublicKey(ctx context.Context, userId string) (solana.PublicKey, error)
}

type PriceOracle interface {
	GetRates(ctx context.Context) models.Rates
	UsdToNative(ctx context.Context, usd decimal.Decimal) (decimal.Decimal, error)
	UsdToToken(ctx context.Context, usd decimal.Decimal) (decimal.Decimal, error)
}

// PaymentMonitor confirms inbound payments on the ledger.
type PaymentMonitor interface {
	Await(ctx context.Context, reference string, timeout time.Duration) (*models.PaymentVerification, error)
	Verify(ctx context.Context, txId string) (*models.PaymentVerification, error)
}

type SettlementRecorder interface {
	Record(ctx context.Context, params models.SettlementParams) (*models.Settlement, error)
}

type PayrollRunner interface {
	RunDuePayrolls(ctx context.Context) (*models.PayrollRunSummary, error)
}

// PaymentServiceConfig contains the collaborators of a PaymentService
type PaymentServiceConfig struct {
	Store             store.PaymentStore
	Custody           WalletCustody
	Prices            PriceOracle
	Monitor           PaymentMonitor
	Recorder          SettlementRecorder
	Payroll           PayrollRunner
	Ledger            chain.Ledger
	Assets            models.AssetPair
	MaxActivePayrolls int
	StatusTimeout     time.Duration
	ReconcileTimeout  time.Duration
}

// PaymentService exposes invoice, payment status and payroll operations
type PaymentService struct {
	store             store.PaymentStore
	custody           WalletCustody
	prices            PriceOracle
	monitor           PaymentMonitor
	recorder          SettlementRecorder
	payroll           PayrollRunner
	ledger            chain.Ledger
	assets            models.AssetPair
	maxActivePayrolls int
	statusTimeout     time.Duration
	reconcileTimeout  time.Duration
	now               func() time.Time
}

func NewPaymentService(cfg PaymentServiceConfig) *PaymentService {
	svc := &PaymentService{
		store:             cfg.Store,
		custody:           cfg.Custody,
		prices:            cfg.Prices,
		monitor:           cfg.Monitor,
		recorder:          cfg.Recorder,
		payroll:           cfg.Payroll,
		ledger:            cfg.Ledger,
		assets:            cfg.Assets,
		maxActivePayrolls: cfg.MaxActivePayrolls,
		statusTimeout:     cfg.StatusTimeout,
		reconcileTimeout:  cfg.ReconcileTimeout,
		now:               time.Now,
	}
	if svc.maxActivePayrolls <= 0 {
		svc.maxActivePayrolls = DefaultMaxActivePayrolls
	}
	if svc.statusTimeout <= 0 {
		svc.statusTimeout = DefaultStatusTimeout
	}
	if svc.reconcileTimeout <= 0 {
		svc.reconcileTimeout = DefaultReconcileTimeout
	}
	return svc
}

func (s *PaymentService) HealthCheck(ctx context.Context) error {
	if _, err := s.store.GetUsers(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	if s.ledger != nil {
		if err := s.ledger.Health(ctx); err != nil {
			return fmt.Errorf("ledger health check failed: %w", err)
		}
	}
	return nil
}

// RequiresFiatBridge reports whether settling in currency needs an on/off ramp,
// i.e. it is not one of the on-chain assets.
func (s *PaymentService) RequiresFiatBridge(currency string) bool {
	_, onChain := s.assets.ForCurrency(currency)
	return !onChain
}

// RunDuePayrolls is the scheduler entry point; repeated calls are safe.
func (s *PaymentService) RunDuePayrolls(ctx context.Context) (*models.PayrollRunSummary, error) {
	if s.payroll == nil {
		return nil, fmt.Errorf("payroll scheduler is not configured")
	}
	return s.payroll.RunDuePayrolls(ctx)
}
