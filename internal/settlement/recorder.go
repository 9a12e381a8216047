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

package settlement

import (
	"context"
	"fmt"

	"klytic-pay-go/internal/models"
	"klytic-pay-go/internal/store"

	"go.uber.org/zap"
)

// Mirror receives every recorded settlement. Implementations must be idempotent
// on the transaction hash.
type Mirror interface {
	MirrorSettlement(ctx context.Context, userId string, settlement *models.Settlement) error
}

// Recorder writes confirmed transfers to the store. The store is the system of
// record; the optional mirror is best effort.
type Recorder struct {
	store  store.SettlementStore
	mirror Mirror
}

func NewRecorder(settlementStore store.SettlementStore, mirror Mirror) *Recorder {
	return &Recorder{store: settlementStore, mirror: mirror}
}

// Record upserts the settlement keyed by transaction hash. Recording the same
// hash twice leaves one row carrying the latest values.
func (r *Recorder) Record(ctx context.Context, params models.SettlementParams) (*models.Settlement, error) {
	if params.TransactionHash == "" {
		return nil, fmt.Errorf("transaction hash is required: %w", models.ErrValidation)
	}
	if params.InvoiceId != "" && params.PayrollId != "" {
		return nil, fmt.Errorf("settlement %s cannot reference both invoice and payroll: %w", params.TransactionHash, models.ErrValidation)
	}

	settlement, err := r.store.UpsertSettlement(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("unable to record settlement %s: %w", params.TransactionHash, err)
	}

	zap.L().Info("Settlement recorded",
		zap.String("transaction_hash", settlement.TransactionHash),
		zap.String("invoice_id", settlement.InvoiceId),
		zap.String("payroll_id", settlement.PayrollId),
		zap.String("amount_usd", settlement.AmountUsd.String()),
		zap.String("currency", settlement.Currency))

	if r.mirror != nil {
		if err := r.mirror.MirrorSettlement(ctx, params.UserId, settlement); err != nil {
			zap.L().Warn("Failed to mirror settlement",
				zap.String("transaction_hash", settlement.TransactionHash),
				zap.Error(err))
		}
	}

	return settlement, nil
}
