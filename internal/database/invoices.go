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

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvoice(row rowScanner) (*models.Invoice, error) {
	var invoice models.Invoice
	var paidAt sql.NullTime
	err := row.Scan(
		&invoice.Id, &invoice.UserId, &invoice.ClientEmail, &invoice.AmountUsd,
		&invoice.AmountSol, &invoice.AmountUsdc, &invoice.Currency, &invoice.Description,
		&invoice.ReferencePublicKey, &invoice.Status, &invoice.TransactionHash,
		&paidAt, &invoice.CreatedAt, &invoice.UpdatedAt)
	if err != nil {
		return nil, err
	}
	invoice.PaidAt = timePtr(paidAt)
	invoice.CreatedAt = invoice.CreatedAt.UTC()
	invoice.UpdatedAt = invoice.UpdatedAt.UTC()
	return &invoice, nil
}

func (s *Service) queryInvoice(ctx context.Context, query string, args ...any) (*models.Invoice, error) {
	invoice, err := scanInvoice(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("invoice: %w", models.ErrNotFound)
		}
		return nil, fmt.Errorf("unable to query invoice: %w", err)
	}
	return invoice, nil
}

func (s *Service) queryInvoices(ctx context.Context, query string, args ...any) ([]models.Invoice, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("unable to query invoices: %w", err)
	}
	defer closeRows(rows)

	var invoices []models.Invoice
	for rows.Next() {
		invoice, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan invoice row: %w", err)
		}
		invoices = append(invoices, *invoice)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating invoice rows: %w", err)
	}
	return invoices, nil
}

func (s *Service) InsertInvoice(ctx context.Context, invoice *models.Invoice) (*models.Invoice, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, queryInsertInvoice,
		invoice.Id, invoice.UserId, invoice.ClientEmail, invoice.AmountUsd.String(),
		invoice.AmountSol, invoice.AmountUsdc, invoice.Currency, nullString(invoice.Description),
		invoice.ReferencePublicKey, now, now)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return nil, fmt.Errorf("reference %s: %w", invoice.ReferencePublicKey, store.ErrDuplicateReference)
		}
		zap.L().Error("Failed to insert invoice", zap.String("invoice_id", invoice.Id), zap.Error(err))
		return nil, fmt.Errorf("unable to insert invoice: %w", err)
	}

	zap.L().Info("Invoice created",
		zap.String("invoice_id", invoice.Id),
		zap.String("user_id", invoice.UserId),
		zap.String("amount_usd", invoice.AmountUsd.String()),
		zap.String("currency", invoice.Currency))
	return s.queryInvoice(ctx, queryGetInvoiceById, invoice.Id)
}

func (s *Service) GetInvoice(ctx context.Context, userId, invoiceId string) (*models.Invoice, error) {
	return s.queryInvoice(ctx, queryGetInvoice, invoiceId, userId)
}

func (s *Service) GetInvoiceByReference(ctx context.Context, reference string) (*models.Invoice, error) {
	return s.queryInvoice(ctx, queryGetInvoiceByReference, reference)
}

func (s *Service) GetInvoiceByTransactionHash(ctx context.Context, txHash string) (*models.Invoice, error) {
	return s.queryInvoice(ctx, queryGetInvoiceByTransactionHash, txHash)
}

func (s *Service) ListInvoices(ctx context.Context, userId, status string, limit, offset int) ([]models.Invoice, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.queryInvoices(ctx, queryListInvoices, userId, status, status, limit, offset)
}

func (s *Service) ListPendingInvoices(ctx context.Context, limit int) ([]models.Invoice, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.queryInvoices(ctx, queryListPendingInvoices, limit)
}

// MarkInvoicePaid performs the single pending->paid transition. It reports false
// when the invoice was no longer pending.
func (s *Service) MarkInvoicePaid(ctx context.Context, invoiceId, txHash string, paidAt time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, queryMarkInvoicePaid, txHash, paidAt.UTC(), time.Now().UTC(), invoiceId)
	if err != nil {
		return false, fmt.Errorf("unable to mark invoice paid: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("unable to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		zap.L().Debug("Invoice already left pending state", zap.String("invoice_id", invoiceId))
		return false, nil
	}

	zap.L().Info("Invoice marked paid",
		zap.String("invoice_id", invoiceId),
		zap.String("transaction_hash", txHash))
	return true, nil
}

// CancelInvoice cancels a pending invoice owned by userId.
func (s *Service) CancelInvoice(ctx context.Context, userId, invoiceId string) (*models.Invoice, error) {
	result, err := s.db.ExecContext(ctx, queryCancelInvoice, time.Now().UTC(), invoiceId, userId)
	if err != nil {
		return nil, fmt.Errorf("unable to cancel invoice: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("unable to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		existing, err := s.GetInvoice(ctx, userId, invoiceId)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("invoice %s is %s, only pending invoices can be cancelled: %w",
			invoiceId, existing.Status, models.ErrValidation)
	}

	zap.L().Info("Invoice cancelled", zap.String("invoice_id", invoiceId), zap.String("user_id", userId))
	return s.GetInvoice(ctx, userId, invoiceId)
}

func (s *Service) GetInvoiceStats(ctx context.Context, userId string) (*models.InvoiceStats, error) {
	var stats models.InvoiceStats
	err := s.db.QueryRowContext(ctx, queryInvoiceStats, userId).Scan(&stats.Total, &stats.Pending, &stats.Paid)
	if err != nil {
		return nil, fmt.Errorf("unable to query invoice stats: %w", err)
	}

	// Amounts are stored as text, so the sum is computed here to stay exact.
	rows, err := s.db.QueryContext(ctx, queryPaidInvoiceAmounts, userId)
	if err != nil {
		return nil, fmt.Errorf("unable to query paid invoice amounts: %w", err)
	}
	defer closeRows(rows)

	stats.TotalPaidAmount = decimal.Zero
	for rows.Next() {
		var amount decimal.Decimal
		if err := rows.Scan(&amount); err != nil {
			return nil, fmt.Errorf("unable to scan paid amount: %w", err)
		}
		stats.TotalPaidAmount = stats.TotalPaidAmount.Add(amount)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating paid amounts: %w", err)
	}

	return &stats, nil
}
