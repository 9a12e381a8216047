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
	"net/url"
	"strings"
	"sync"
	"time"

	"klytic-pay-go/internal/models"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	invoiceLabel          = "Klytic Pay Invoice"
	defaultInvoicePageLen = 50
)

// CreateInvoiceParams are the inputs to CreateInvoice
type CreateInvoiceParams struct {
	UserId      string
	ClientEmail string
	AmountUsd   decimal.Decimal
	Currency    string
	Description string
}

// CreateInvoice persists a pending invoice with a fresh payment reference and
// returns the Solana Pay request the payer scans.
func (s *PaymentService) CreateInvoice(ctx context.Context, params CreateInvoiceParams) (*models.InvoiceWithPayment, error) {
	if strings.TrimSpace(params.ClientEmail) == "" {
		return nil, fmt.Errorf("client email is required: %w", models.ErrValidation)
	}
	if !params.AmountUsd.IsPositive() {
		return nil, fmt.Errorf("amount must be greater than 0: %w", models.ErrValidation)
	}
	switch params.Currency {
	case models.CurrencyUSD, models.CurrencySOL, models.CurrencyUSDC:
	default:
		return nil, fmt.Errorf("currency must be USD, SOL or USDC: %w", models.ErrValidation)
	}

	if _, err := s.store.GetUserById(ctx, params.UserId); err != nil {
		return nil, err
	}
	recipient, err := s.custody.PublicKey(ctx, params.UserId)
	if err != nil {
		return nil, err
	}

	invoice := &models.Invoice{
		Id:                 uuid.New().String(),
		UserId:             params.UserId,
		ClientEmail:        params.ClientEmail,
		AmountUsd:          params.AmountUsd,
		Currency:           params.Currency,
		Description:        params.Description,
		ReferencePublicKey: solana.NewWallet().PublicKey().String(),
	}

	if params.Currency == models.CurrencyUSD || params.Currency == models.CurrencySOL {
		amount, err := s.prices.UsdToNative(ctx, params.AmountUsd)
		if err != nil {
			return nil, err
		}
		invoice.AmountSol = decimal.NewNullDecimal(amount)
	}
	if params.Currency == models.CurrencyUSD || params.Currency == models.CurrencyUSDC {
		amount, err := s.prices.UsdToToken(ctx, params.AmountUsd)
		if err != nil {
			return nil, err
		}
		invoice.AmountUsdc = decimal.NewNullDecimal(amount)
	}

	created, err := s.store.InsertInvoice(ctx, invoice)
	if err != nil {
		return nil, err
	}

	return &models.InvoiceWithPayment{
		Invoice: created,
		QrCode:  s.paymentRequest(recipient.String(), created),
	}, nil
}

// paymentRequest builds the solana: transfer request URL. USD invoices are paid in the native asset.
func (s *PaymentService) paymentRequest(recipient string, invoice *models.Invoice) *models.PaymentRequest {
	amount := invoice.AmountSol.Decimal
	splToken := ""
	if invoice.Currency == models.CurrencyUSDC {
		amount = invoice.AmountUsdc.Decimal
		splToken = s.assets.Token.Mint
	}

	params := [][2]string{{"amount", amount.String()}}
	if splToken != "" {
		params = append(params, [2]string{"spl-token", splToken})
	}
	params = append(params,
		[2]string{"reference", invoice.ReferencePublicKey},
		[2]string{"label", invoiceLabel},
		[2]string{"message", "Invoice #" + invoice.Id[:8]},
		[2]string{"memo", "Invoice-" + invoice.Id},
	)

	var query strings.Builder
	for i, kv := range params {
		if i > 0 {
			query.WriteByte('&')
		}
		query.WriteString(url.QueryEscape(kv[0]))
		query.WriteByte('=')
		query.WriteString(url.QueryEscape(kv[1]))
	}

	return &models.PaymentRequest{
		Url:       "solana:" + url.PathEscape(recipient) + "?" + query.String(),
		Reference: invoice.ReferencePublicKey,
	}
}

func (s *PaymentService) GetInvoice(ctx context.Context, userId, invoiceId string) (*models.Invoice, error) {
	return s.store.GetInvoice(ctx, userId, invoiceId)
}

func (s *PaymentService) ListInvoices(ctx context.Context, userId, status string, limit, offset int) ([]models.Invoice, error) {
	if limit <= 0 {
		limit = defaultInvoicePageLen
	}
	return s.store.ListInvoices(ctx, userId, status, limit, offset)
}

func (s *PaymentService) CancelInvoice(ctx context.Context, userId, invoiceId string) (*models.Invoice, error) {
	return s.store.CancelInvoice(ctx, userId, invoiceId)
}

// CheckPaymentStatus accepts an invoice reference key or a transaction signature.
// A pending invoice is awaited briefly and marked paid on confirmation.
func (s *PaymentService) CheckPaymentStatus(ctx context.Context, referenceOrTxId string) (*models.PaymentVerification, error) {
	key := strings.TrimSpace(referenceOrTxId)
	if key == "" {
		return nil, fmt.Errorf("reference is required: %w", models.ErrValidation)
	}

	invoice, err := s.store.GetInvoiceByReference(ctx, key)
	if err == nil {
		return s.checkInvoice(ctx, invoice, s.statusTimeout)
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	invoice, err = s.store.GetInvoiceByTransactionHash(ctx, key)
	if err == nil {
		result, err := s.monitor.Verify(ctx, key)
		if err != nil {
			return nil, err
		}
		result.InvoiceId = invoice.Id
		return result, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	if _, err := solana.SignatureFromBase58(key); err == nil {
		return s.monitor.Verify(ctx, key)
	}
	return nil, fmt.Errorf("payment reference %s: %w", key, models.ErrNotFound)
}

func (s *PaymentService) checkInvoice(ctx context.Context, invoice *models.Invoice, timeout time.Duration) (*models.PaymentVerification, error) {
	switch invoice.Status {
	case models.InvoiceStatusPaid:
		if invoice.TransactionHash != "" {
			result, err := s.monitor.Verify(ctx, invoice.TransactionHash)
			if err != nil {
				return nil, err
			}
			result.InvoiceId = invoice.Id
			return result, nil
		}
	case models.InvoiceStatusCancelled:
		return &models.PaymentVerification{InvoiceId: invoice.Id}, nil
	}

	result, err := s.monitor.Await(ctx, invoice.ReferencePublicKey, timeout)
	if err != nil {
		return nil, err
	}
	result.InvoiceId = invoice.Id

	if result.Confirmed && result.TransactionId != "" {
		if err := s.settleInvoice(ctx, invoice, result); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// settleInvoice marks the invoice paid once and records its settlement. The
// settlement upsert is repeated safely when another caller won the transition.
func (s *PaymentService) settleInvoice(ctx context.Context, invoice *models.Invoice, result *models.PaymentVerification) error {
	paidAt := s.now().UTC()
	if result.BlockTime != nil {
		paidAt = result.BlockTime.UTC()
	}

	marked, err := s.store.MarkInvoicePaid(ctx, invoice.Id, result.TransactionId, paidAt)
	if err != nil {
		return err
	}
	if !marked {
		zap.L().Info("Invoice already settled", zap.String("invoice_id", invoice.Id))
	}

	_, err = s.recorder.Record(ctx, models.SettlementParams{
		UserId:          invoice.UserId,
		InvoiceId:       invoice.Id,
		TransactionHash: result.TransactionId,
		AmountUsd:       invoice.AmountUsd,
		Currency:        invoice.Currency,
		BlockTime:       result.BlockTime,
	})
	return err
}

// ReconcilePendingInvoices awaits every pending invoice with the reconcile
// timeout, settling those that confirmed since they were created.
func (s *PaymentService) ReconcilePendingInvoices(ctx context.Context) (*models.ReconcileSummary, error) {
	pending, err := s.store.ListPendingInvoices(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("unable to list pending invoices: %w", err)
	}

	summary := &models.ReconcileSummary{Checked: len(pending)}
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(reconcileConcurrency)
	for i := range pending {
		invoice := &pending[i]
		g.Go(func() error {
			result, err := s.checkInvoice(ctx, invoice, s.reconcileTimeout)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				summary.Failed++
				zap.L().Warn("Failed to reconcile invoice", zap.String("invoice_id", invoice.Id), zap.Error(err))
				return nil
			}
			if result.Confirmed {
				summary.Confirmed++
			}
			return nil
		})
	}
	_ = g.Wait()

	zap.L().Info("Invoice reconciliation complete",
		zap.Int("checked", summary.Checked),
		zap.Int("confirmed", summary.Confirmed),
		zap.Int("failed", summary.Failed))
	return summary, nil
}
