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

package payroll

import (
	"context"
	"fmt"
	"time"

	"klytic-pay-go/internal/models"
	"klytic-pay-go/internal/store"
	"klytic-pay-go/internal/transfer"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	DefaultInterval = time.Hour
	weeklyInterval  = 7 * 24 * time.Hour
)

// SignerSource rehydrates a user's custodial signing key.
type SignerSource interface {
	Rehydrate(ctx context.Context, userId string) (solana.PrivateKey, error)
}

// TransferResolver picks the transferrer for an asset variant.
type TransferResolver interface {
	For(asset models.Asset) (transfer.Transferrer, error)
}

type SettlementRecorder interface {
	Record(ctx context.Context, params models.SettlementParams) (*models.Settlement, error)
}

// RateConverter converts USD when a schedule carries no stored asset amount.
type RateConverter interface {
	UsdToNative(ctx context.Context, usd decimal.Decimal) (decimal.Decimal, error)
	UsdToToken(ctx context.Context, usd decimal.Decimal) (decimal.Decimal, error)
}

// SchedulerConfig contains the collaborators of a Scheduler
type SchedulerConfig struct {
	Store     store.PayrollStore
	Signers   SignerSource
	Transfers TransferResolver
	Recorder  SettlementRecorder
	Prices    RateConverter
	Assets    models.AssetPair
	Interval  time.Duration
}

// Scheduler executes due payroll schedules. Schedules within one pass run
// sequentially so a signer is never used by two transfers at once.
type Scheduler struct {
	store     store.PayrollStore
	signers   SignerSource
	transfers TransferResolver
	recorder  SettlementRecorder
	prices    RateConverter
	assets    models.AssetPair
	interval  time.Duration
	now       func() time.Time

	stopChan chan struct{}
	doneChan chan struct{}
}

func NewScheduler(cfg SchedulerConfig) *Scheduler {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		store:     cfg.Store,
		signers:   cfg.Signers,
		transfers: cfg.Transfers,
		recorder:  cfg.Recorder,
		prices:    cfg.Prices,
		assets:    cfg.Assets,
		interval:  interval,
		now:       time.Now,
		stopChan:  make(chan struct{}),
		doneChan:  make(chan struct{}),
	}
}

// Start runs a pass immediately and then one per interval until Stop or ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	zap.L().Info("Starting payroll scheduler", zap.Duration("interval", s.interval))
	go s.runLoop(ctx)
}

// Stop waits for the loop to exit. Start must have been called.
func (s *Scheduler) Stop() {
	zap.L().Info("Stopping payroll scheduler")
	close(s.stopChan)
	<-s.doneChan
	zap.L().Info("Payroll scheduler stopped")
}

func (s *Scheduler) runLoop(ctx context.Context) {
	defer close(s.doneChan)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.runPass(ctx)

	for {
		select {
		case <-ticker.C:
			s.runPass(ctx)
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) runPass(ctx context.Context) {
	if _, err := s.RunDuePayrolls(ctx); err != nil {
		zap.L().Error("Payroll pass failed", zap.Error(err))
	}
}

// RunDuePayrolls executes every schedule due at or before now. Only a failure
// to list due schedules aborts the pass; each schedule fails independently.
func (s *Scheduler) RunDuePayrolls(ctx context.Context) (*models.PayrollRunSummary, error) {
	now := s.now().UTC()
	due, err := s.store.ListDuePayrolls(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("unable to list due payrolls: %w", err)
	}

	summary := &models.PayrollRunSummary{Due: len(due)}
	if len(due) == 0 {
		zap.L().Debug("No payrolls due", zap.Time("now", now))
		return summary, nil
	}

	zap.L().Info("Running due payrolls", zap.Int("due", len(due)))

	for i := range due {
		switch s.process(ctx, &due[i], now) {
		case outcomeSucceeded:
			summary.Succeeded++
		case outcomeSkipped:
			summary.Skipped++
		default:
			summary.Failed++
		}
	}

	zap.L().Info("Payroll pass complete",
		zap.Int("due", summary.Due),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped))
	return summary, nil
}

type outcome int

const (
	outcomeFailed outcome = iota
	outcomeSucceeded
	outcomeSkipped
)

func (s *Scheduler) process(ctx context.Context, schedule *models.PayrollSchedule, now time.Time) outcome {
	claimed, err := s.store.ClaimPayroll(ctx, schedule.Id, now)
	if err != nil {
		zap.L().Error("Failed to claim payroll", zap.String("payroll_id", schedule.Id), zap.Error(err))
		return outcomeFailed
	}
	if !claimed {
		zap.L().Info("Payroll already claimed by another pass", zap.String("payroll_id", schedule.Id))
		return outcomeSkipped
	}

	receipt, err := s.execute(ctx, schedule)
	if err != nil {
		zap.L().Error("Payroll execution failed, releasing for retry",
			zap.String("payroll_id", schedule.Id),
			zap.String("user_id", schedule.UserId),
			zap.Error(err))
		if releaseErr := s.store.ReleasePayroll(ctx, schedule.Id); releaseErr != nil {
			zap.L().Error("Failed to release payroll", zap.String("payroll_id", schedule.Id), zap.Error(releaseErr))
		}
		return outcomeFailed
	}

	// Funds have moved; from here the schedule must advance, never be retried.
	if _, err := s.recorder.Record(ctx, models.SettlementParams{
		UserId:          schedule.UserId,
		PayrollId:       schedule.Id,
		TransactionHash: receipt.TransactionId,
		AmountUsd:       schedule.AmountUsd,
		Currency:        schedule.Currency,
		BlockTime:       receipt.BlockTime,
	}); err != nil {
		zap.L().Error("Failed to record payroll settlement",
			zap.String("payroll_id", schedule.Id),
			zap.String("transaction_hash", receipt.TransactionId),
			zap.Error(err))
	}

	ranAt := s.now().UTC()
	var next *time.Time
	if schedule.Frequency == models.FrequencyWeekly {
		n := ranAt.Add(weeklyInterval)
		next = &n
	}
	if err := s.store.CompletePayroll(ctx, schedule.Id, ranAt, next); err != nil {
		zap.L().Error("Failed to advance payroll after transfer; left processing",
			zap.String("payroll_id", schedule.Id),
			zap.String("transaction_hash", receipt.TransactionId),
			zap.Error(err))
	}

	zap.L().Info("Payroll paid",
		zap.String("payroll_id", schedule.Id),
		zap.String("payee", schedule.PayeeName),
		zap.String("currency", schedule.Currency),
		zap.String("transaction_hash", receipt.TransactionId))
	return outcomeSucceeded
}

func (s *Scheduler) execute(ctx context.Context, schedule *models.PayrollSchedule) (*models.TransferReceipt, error) {
	signer, err := s.signers.Rehydrate(ctx, schedule.UserId)
	if err != nil {
		return nil, err
	}

	asset, ok := s.assets.ForCurrency(schedule.Currency)
	if !ok {
		return nil, fmt.Errorf("unsupported payroll currency %q: %w", schedule.Currency, models.ErrValidation)
	}

	amount, err := s.transferAmount(ctx, schedule, asset)
	if err != nil {
		return nil, err
	}

	transferrer, err := s.transfers.For(asset)
	if err != nil {
		return nil, err
	}
	return transferrer.Transfer(ctx, signer, schedule.PayeeWalletAddress, amount)
}

// transferAmount prefers the amount converted at creation time.
func (s *Scheduler) transferAmount(ctx context.Context, schedule *models.PayrollSchedule, asset models.Asset) (decimal.Decimal, error) {
	if amount, ok := schedule.TransferAmount(); ok && amount.IsPositive() {
		return amount, nil
	}
	if s.prices == nil {
		return decimal.Zero, fmt.Errorf("payroll %s has no %s amount: %w", schedule.Id, schedule.Currency, models.ErrValidation)
	}

	if asset.Kind == models.AssetNative {
		return s.prices.UsdToNative(ctx, schedule.AmountUsd)
	}
	return s.prices.UsdToToken(ctx, schedule.AmountUsd)
}
