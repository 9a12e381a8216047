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

package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"klytic-pay-go/internal/chain"
	"klytic-pay-go/internal/models"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
)

const DefaultPollInterval = time.Second

// Monitor waits for inbound transactions tagged with one-time reference keys.
type Monitor struct {
	ledger   chain.Ledger
	interval time.Duration
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewMonitor(ledger chain.Ledger) *Monitor {
	return &Monitor{
		ledger:   ledger,
		interval: DefaultPollInterval,
		now:      time.Now,
		sleep:    sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Await polls until a transaction carrying reference is found or timeout elapses.
// Only "not found yet" is retried; any other lookup error is returned at once.
func (m *Monitor) Await(ctx context.Context, reference string, timeout time.Duration) (*models.PaymentVerification, error) {
	ref, err := solana.PublicKeyFromBase58(reference)
	if err != nil {
		return nil, fmt.Errorf("invalid reference %q: %w", reference, models.ErrValidation)
	}

	start := m.now()
	attempts := 0
	for {
		attempts++
		found, err := m.ledger.FindReference(ctx, ref)
		if err == nil {
			return m.confirm(ctx, found)
		}
		if !errors.Is(err, chain.ErrReferenceNotFound) {
			zap.L().Warn("Reference lookup failed",
				zap.String("reference", reference),
				zap.Int("attempts", attempts),
				zap.Error(err))
			return nil, fmt.Errorf("unable to look up reference: %w", err)
		}

		if m.now().Sub(start) >= timeout {
			zap.L().Debug("Reference not seen before timeout",
				zap.String("reference", reference),
				zap.Duration("timeout", timeout),
				zap.Int("attempts", attempts))
			return &models.PaymentVerification{Confirmed: false}, nil
		}

		if err := m.sleep(ctx, m.interval); err != nil {
			return nil, err
		}
	}
}

func (m *Monitor) confirm(ctx context.Context, found *chain.SignatureInfo) (*models.PaymentVerification, error) {
	verification := &models.PaymentVerification{
		Confirmed:     true,
		TransactionId: found.Signature,
		BlockTime:     found.BlockTime,
	}

	tx, err := m.ledger.GetTransaction(ctx, found.Signature)
	switch {
	case err == nil:
		if tx.BlockTime != nil {
			verification.BlockTime = tx.BlockTime
		}
	case errors.Is(err, chain.ErrTransactionNotFound):
		zap.L().Debug("Transaction details not yet available", zap.String("signature", found.Signature))
	default:
		return nil, fmt.Errorf("unable to fetch transaction %s: %w", found.Signature, err)
	}

	zap.L().Info("Reference payment confirmed", zap.String("signature", found.Signature))
	return verification, nil
}

// Verify re-checks a known transaction id with a single lookup.
func (m *Monitor) Verify(ctx context.Context, txId string) (*models.PaymentVerification, error) {
	tx, err := m.ledger.GetTransaction(ctx, txId)
	if err != nil {
		if errors.Is(err, chain.ErrTransactionNotFound) {
			return &models.PaymentVerification{Confirmed: false, TransactionId: txId}, nil
		}
		return nil, fmt.Errorf("unable to verify transaction %s: %w", txId, err)
	}

	return &models.PaymentVerification{
		Confirmed:     !tx.Failed,
		TransactionId: txId,
		BlockTime:     tx.BlockTime,
	}, nil
}
