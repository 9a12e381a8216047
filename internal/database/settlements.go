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

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func scanSettlement(row rowScanner) (*models.Settlement, error) {
	var settlement models.Settlement
	var blockTime sql.NullTime
	err := row.Scan(
		&settlement.Id, &settlement.InvoiceId, &settlement.PayrollId, &settlement.TransactionHash,
		&settlement.AmountUsd, &settlement.Currency, &settlement.Status, &blockTime,
		&settlement.CreatedAt, &settlement.UpdatedAt)
	if err != nil {
		return nil, err
	}
	settlement.BlockTime = timePtr(blockTime)
	settlement.CreatedAt = settlement.CreatedAt.UTC()
	settlement.UpdatedAt = settlement.UpdatedAt.UTC()
	return &settlement, nil
}

// UpsertSettlement records a confirmed transfer keyed by its transaction hash.
// Recording the same hash again updates the existing row in place. A hash
// already linked to a different invoice or payroll is rejected.
func (s *Service) UpsertSettlement(ctx context.Context, params models.SettlementParams) (*models.Settlement, error) {
	if params.TransactionHash == "" {
		return nil, fmt.Errorf("transaction hash is required: %w", models.ErrValidation)
	}
	if params.InvoiceId != "" && params.PayrollId != "" {
		return nil, fmt.Errorf("settlement cannot reference both invoice and payroll: %w", models.ErrValidation)
	}

	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, queryUpsertSettlement,
		uuid.New().String(), nullString(params.InvoiceId), nullString(params.PayrollId),
		params.TransactionHash, params.AmountUsd.String(), params.Currency,
		nullTime(params.BlockTime), now, now)
	if err != nil {
		zap.L().Error("Failed to upsert settlement",
			zap.String("transaction_hash", params.TransactionHash),
			zap.Error(err))
		return nil, fmt.Errorf("unable to upsert settlement: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("unable to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		zap.L().Warn("Settlement already linked to a different record",
			zap.String("transaction_hash", params.TransactionHash),
			zap.String("invoice_id", params.InvoiceId),
			zap.String("payroll_id", params.PayrollId))
		return nil, fmt.Errorf("transaction %s already settles a different invoice or payroll: %w",
			params.TransactionHash, models.ErrValidation)
	}

	return s.GetSettlementByHash(ctx, params.TransactionHash)
}

func (s *Service) GetSettlementByHash(ctx context.Context, txHash string) (*models.Settlement, error) {
	settlement, err := scanSettlement(s.db.QueryRowContext(ctx, queryGetSettlementByHash, txHash))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("settlement %s: %w", txHash, models.ErrNotFound)
		}
		return nil, fmt.Errorf("unable to query settlement: %w", err)
	}
	return settlement, nil
}
