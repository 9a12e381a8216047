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

package formance

import (
	"context"
	"fmt"

	"klytic-pay-go/internal/models"

	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"go.uber.org/zap"
)

const numscriptInvoiceSettled = `vars {
  asset $asset
  number $amount
  account $user_id
  string $invoice_id
  string $transaction_hash
  string $currency
  string $amount_usd
}

send [$asset $amount] (
  source = @world
  destination = @users:$user_id
)

set_tx_meta("event_type", "invoice_settled")
set_tx_meta("invoice_id", $invoice_id)
set_tx_meta("transaction_hash", $transaction_hash)
set_tx_meta("currency", $currency)
set_tx_meta("amount_usd", $amount_usd)
`

const numscriptPayrollSettled = `vars {
  asset $asset
  number $amount
  account $user_id
  string $payroll_id
  string $transaction_hash
  string $currency
  string $amount_usd
}

send [$asset $amount] (
  source = @users:$user_id allowing unbounded overdraft
  destination = @world
)

set_tx_meta("event_type", "payroll_settled")
set_tx_meta("payroll_id", $payroll_id)
set_tx_meta("transaction_hash", $transaction_hash)
set_tx_meta("currency", $currency)
set_tx_meta("amount_usd", $amount_usd)
`

// settlementPosting builds the ledger transaction for a recorded settlement.
// Amounts are posted in USD cents; the on-chain currency travels as metadata.
func settlementPosting(userId string, settlement *models.Settlement) (shared.V2PostTransaction, error) {
	if userId == "" {
		return shared.V2PostTransaction{}, fmt.Errorf("settlement %s has no owning user: %w", settlement.TransactionHash, models.ErrValidation)
	}

	script := numscriptInvoiceSettled
	vars := map[string]string{
		"asset":            formanceAsset(models.CurrencyUSD),
		"amount":           settlement.AmountUsd.Shift(int32(precisionFor(models.CurrencyUSD))).Round(0).BigInt().String(),
		"user_id":          userId,
		"transaction_hash": settlement.TransactionHash,
		"currency":         settlement.Currency,
		"amount_usd":       settlement.AmountUsd.StringFixed(2),
	}

	switch {
	case settlement.InvoiceId != "":
		vars["invoice_id"] = settlement.InvoiceId
	case settlement.PayrollId != "":
		script = numscriptPayrollSettled
		vars["payroll_id"] = settlement.PayrollId
	default:
		return shared.V2PostTransaction{}, fmt.Errorf("settlement %s references neither invoice nor payroll: %w", settlement.TransactionHash, models.ErrValidation)
	}

	postTx := shared.V2PostTransaction{
		Reference: strPtr(settlement.TransactionHash),
		Script: &shared.V2PostTransactionScript{
			Plain: script,
			Vars:  vars,
		},
	}
	if settlement.BlockTime != nil {
		postTx.Timestamp = settlement.BlockTime
	}
	return postTx, nil
}

// MirrorSettlement posts a recorded settlement keyed by its transaction hash.
// A reference conflict means the settlement is already mirrored.
func (s *Service) MirrorSettlement(ctx context.Context, userId string, settlement *models.Settlement) error {
	postTx, err := settlementPosting(userId, settlement)
	if err != nil {
		return err
	}

	_, err = s.client.Ledger.V2.CreateTransaction(ctx, operations.V2CreateTransactionRequest{
		Ledger:            s.ledger,
		V2PostTransaction: postTx,
	})
	if err != nil {
		if isConflictError(err) {
			zap.L().Debug("Settlement already mirrored", zap.String("transaction_hash", settlement.TransactionHash))
			return nil
		}
		return fmt.Errorf("error mirroring settlement: %w", err)
	}

	zap.L().Info("Settlement mirrored in Formance",
		zap.String("transaction_hash", settlement.TransactionHash),
		zap.String("user_id", userId),
		zap.String("amount_usd", settlement.AmountUsd.String()))
	return nil
}
