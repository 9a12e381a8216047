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

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"klytic-pay-go/internal/models"
	"klytic-pay-go/internal/store"

	"go.uber.org/zap"
)

func scanPayroll(row rowScanner) (*models.PayrollSchedule, error) {
	var payroll models.PayrollSchedule
	var nextPayment, lastPayment sql.NullTime
	err := row.Scan(
		&payroll.Id, &payroll.UserId, &payroll.PayeeName, &payroll.PayeeWalletAddress,
		&payroll.AmountUsd, &payroll.AmountSol, &payroll.AmountUsdc, &payroll.Currency,
		&payroll.Frequency, &nextPayment, &lastPayment, &payroll.Status,
		&payroll.CreatedAt, &payroll.UpdatedAt)
	if err != nil {
		return nil, err
	}
	payroll.NextPaymentDate = timePtr(nextPayment)
	payroll.LastPaymentDate = timePtr(lastPayment)
	payroll.CreatedAt = payroll.CreatedAt.UTC()
	payroll.UpdatedAt = payroll.UpdatedAt.UTC()
	return &payroll, nil
}

func (s *Service) queryPayroll(ctx context.Context, query string, args ...any) (*models.PayrollSchedule, error) {
	payroll, err := scanPayroll(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("payroll schedule: %w", models.ErrNotFound)
		}
		return nil, fmt.Errorf("unable to query payroll schedule: %w", err)
	}
	return payroll, nil
}

func (s *Service) queryPayrolls(ctx context.Context, query string, args ...any) ([]models.PayrollSchedule, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("unable to query payroll schedules: %w", err)
	}
	defer closeRows(rows)

	var payrolls []models.PayrollSchedule
	for rows.Next() {
		payroll, err := scanPayroll(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan payroll row: %w", err)
		}
		payrolls = append(payrolls, *payroll)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payroll rows: %w", err)
	}
	return payrolls, nil
}

// InsertPayrollSchedule creates a scheduled row unless the user already has
// maxActive scheduled or processing rows. The count and the insert run as one
// statement.
func (s *Service) InsertPayrollSchedule(ctx context.Context, payroll *models.PayrollSchedule, maxActive int) (*models.PayrollSchedule, error) {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, queryInsertPayroll,
		payroll.Id, payroll.UserId, payroll.PayeeName, payroll.PayeeWalletAddress,
		payroll.AmountUsd.String(), payroll.AmountSol, payroll.AmountUsdc, payroll.Currency,
		payroll.Frequency, nullTime(payroll.NextPaymentDate), now, now,
		payroll.UserId, maxActive)
	if err != nil {
		zap.L().Error("Failed to insert payroll schedule", zap.String("payroll_id", payroll.Id), zap.Error(err))
		return nil, fmt.Errorf("unable to insert payroll schedule: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("unable to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return nil, fmt.Errorf("user %s already has %d active payroll schedules: %w",
			payroll.UserId, maxActive, models.ErrValidation)
	}

	zap.L().Info("Payroll schedule created",
		zap.String("payroll_id", payroll.Id),
		zap.String("user_id", payroll.UserId),
		zap.String("frequency", payroll.Frequency),
		zap.String("currency", payroll.Currency))
	return s.queryPayroll(ctx, queryGetPayrollById, payroll.Id)
}

func (s *Service) GetPayrollSchedule(ctx context.Context, userId, payrollId string) (*models.PayrollSchedule, error) {
	return s.queryPayroll(ctx, queryGetPayroll, payrollId, userId)
}

func (s *Service) ListPayrollSchedules(ctx context.Context, userId, status string) ([]models.PayrollSchedule, error) {
	return s.queryPayrolls(ctx, queryListPayrolls, userId, status, status)
}

func (s *Service) ListDuePayrolls(ctx context.Context, now time.Time) ([]models.PayrollSchedule, error) {
	return s.queryPayrolls(ctx, queryListDuePayrolls, now.UTC())
}

func (s *Service) ListUpcomingPayrolls(ctx context.Context, userId string, limit int) ([]models.PayrollSchedule, error) {
	if limit <= 0 {
		limit = 5
	}
	return s.queryPayrolls(ctx, queryListUpcomingPayrolls, userId, limit)
}

func (s *Service) CountActivePayrolls(ctx context.Context, userId string) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, queryCountActivePayrolls, userId).Scan(&count); err != nil {
		return 0, fmt.Errorf("unable to count active payrolls: %w", err)
	}
	return count, nil
}

// ClaimPayroll moves a schedule that is still due at now from scheduled to
// processing. Only the caller that sees true owns the execution.
func (s *Service) ClaimPayroll(ctx context.Context, payrollId string, now time.Time) (bool, error) {
	now = now.UTC()
	result, err := s.db.ExecContext(ctx, queryClaimPayroll, now, payrollId, now)
	if err != nil {
		return false, fmt.Errorf("unable to claim payroll: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("unable to get rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}

// CompletePayroll finishes a claimed run. A nil next marks the schedule completed,
// otherwise it is rescheduled for next.
func (s *Service) CompletePayroll(ctx context.Context, payrollId string, ranAt time.Time, next *time.Time) error {
	var result sql.Result
	var err error
	if next == nil {
		result, err = s.db.ExecContext(ctx, queryCompletePayrollOneTime, ranAt.UTC(), time.Now().UTC(), payrollId)
	} else {
		result, err = s.db.ExecContext(ctx, queryCompletePayrollRecurring, ranAt.UTC(), next.UTC(), time.Now().UTC(), payrollId)
	}
	if err != nil {
		return fmt.Errorf("unable to complete payroll: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("unable to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("payroll %s is not processing: %w", payrollId, store.ErrConcurrentModification)
	}
	return nil
}

// ReleasePayroll reverts a processing schedule to scheduled with its next run untouched.
func (s *Service) ReleasePayroll(ctx context.Context, payrollId string) error {
	result, err := s.db.ExecContext(ctx, queryReleasePayroll, time.Now().UTC(), payrollId)
	if err != nil {
		return fmt.Errorf("unable to release payroll: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("unable to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		zap.L().Warn("Payroll was not processing on release", zap.String("payroll_id", payrollId))
	}
	return nil
}

func (s *Service) CancelPayrollSchedule(ctx context.Context, userId, payrollId string) (*models.PayrollSchedule, error) {
	result, err := s.db.ExecContext(ctx, queryCancelPayroll, time.Now().UTC(), payrollId, userId)
	if err != nil {
		return nil, fmt.Errorf("unable to cancel payroll: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("unable to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		existing, err := s.GetPayrollSchedule(ctx, userId, payrollId)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("payroll %s is %s, only scheduled payrolls can be cancelled: %w",
			payrollId, existing.Status, models.ErrValidation)
	}

	zap.L().Info("Payroll schedule cancelled", zap.String("payroll_id", payrollId), zap.String("user_id", userId))
	return s.GetPayrollSchedule(ctx, userId, payrollId)
}

func (s *Service) GetPayrollStats(ctx context.Context, userId string) (*models.PayrollStats, error) {
	var stats models.PayrollStats
	if err := s.db.QueryRowContext(ctx, queryPayrollStats, userId).Scan(&stats.Scheduled, &stats.Processing); err != nil {
		return nil, fmt.Errorf("unable to query payroll stats: %w", err)
	}
	return &stats, nil
}
