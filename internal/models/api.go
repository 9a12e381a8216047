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

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// GeneratedWallet is a freshly generated custodial keypair. The private key is
// only ever present in encrypted form.
type GeneratedWallet struct {
	PublicKey           string
	EncryptedPrivateKey string
}

// PaymentRequest is the QR payload handed to the payer
type PaymentRequest struct {
	Url       string `json:"url"`
	Reference string `json:"reference"`
}

// InvoiceWithPayment is returned from invoice creation
type InvoiceWithPayment struct {
	Invoice *Invoice        `json:"invoice"`
	QrCode  *PaymentRequest `json:"qr_code"`
}

// SettlementParams are the inputs to an idempotent settlement record
type SettlementParams struct {
	// UserId owns the custodial wallet; it is carried to the ledger mirror, not persisted.
	UserId          string
	InvoiceId       string
	PayrollId       string
	TransactionHash string
	AmountUsd       decimal.Decimal
	Currency        string
	BlockTime       *time.Time
}

// PayrollRunSummary reports the outcome of one scheduler pass
type PayrollRunSummary struct {
	Due       int `json:"due"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// InvoiceStats aggregates a user's invoices
type InvoiceStats struct {
	Total           int             `json:"total"`
	Pending         int             `json:"pending"`
	Paid            int             `json:"paid"`
	TotalPaidAmount decimal.Decimal `json:"total_paid_amount"`
}

// PayrollStats aggregates a user's active payroll schedules
type PayrollStats struct {
	Scheduled  int `json:"scheduled"`
	Processing int `json:"processing"`
}

// DashboardSummary is the per-user overview
type DashboardSummary struct {
	Invoices         InvoiceStats      `json:"invoices"`
	Payroll          PayrollStats      `json:"payroll"`
	RecentInvoices   []Invoice         `json:"recent_invoices"`
	UpcomingPayrolls []PayrollSchedule `json:"upcoming_payrolls"`
}

// ReconcileSummary reports one sweep over pending invoices
type ReconcileSummary struct {
	Checked   int `json:"checked"`
	Confirmed int `json:"confirmed"`
	Failed    int `json:"failed"`
}

// WalletBalances is the on-chain balance of a user's custodial wallet
type WalletBalances struct {
	PublicKey   string          `json:"public_key"`
	Native      decimal.Decimal `json:"native"`
	Token       decimal.Decimal `json:"token"`
	NativeUsd   decimal.Decimal `json:"native_usd"`
	TokenUsd    decimal.Decimal `json:"token_usd"`
	RatesSource string          `json:"rates_source"`
}
