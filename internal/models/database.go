package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Invoice statuses
const (
	InvoiceStatusPending   = "pending"
	InvoiceStatusPaid      = "paid"
	InvoiceStatusCancelled = "cancelled"
)

// Payroll statuses
const (
	PayrollStatusScheduled  = "scheduled"
	PayrollStatusProcessing = "processing"
	PayrollStatusCompleted  = "completed"
	PayrollStatusCancelled  = "cancelled"
)

// Payroll frequencies
const (
	FrequencyOneTime = "oneTime"
	FrequencyWeekly  = "weekly"
)

// Currencies accepted on invoices and payroll schedules
const (
	CurrencyUSD  = "USD"
	CurrencySOL  = "SOL"
	CurrencyUSDC = "USDC"
)

// SettlementStatusConfirmed is the only status a settlement is recorded with today
const SettlementStatusConfirmed = "confirmed"

// User represents a user in the system
type User struct {
	Id        string    `db:"id"`
	Name      string    `db:"name"`
	Email     string    `db:"email"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// UserWallet is the custodial wallet stored on the user row. EncryptedPrivateKey
// must never be logged or returned over any boundary.
type UserWallet struct {
	UserId              string `db:"id"`
	PublicKey           string `db:"wallet_public_key"`
	EncryptedPrivateKey string `db:"encrypted_wallet_private_key"`
}

// PriceSnapshot is one cached USD price per tracked asset
type PriceSnapshot struct {
	Token     string          `db:"token"`
	PriceUsd  decimal.Decimal `db:"price_usd"`
	Source    string          `db:"source"`
	UpdatedAt time.Time       `db:"updated_at"`
}

// Invoice represents an expected inbound payment
type Invoice struct {
	Id                 string              `db:"id" json:"id"`
	UserId             string              `db:"user_id" json:"user_id"`
	ClientEmail        string              `db:"client_email" json:"client_email"`
	AmountUsd          decimal.Decimal     `db:"amount_usd" json:"amount_usd"`
	AmountSol          decimal.NullDecimal `db:"amount_sol" json:"amount_sol"`
	AmountUsdc         decimal.NullDecimal `db:"amount_usdc" json:"amount_usdc"`
	Currency           string              `db:"currency" json:"currency"`
	Description        string              `db:"description" json:"description,omitempty"`
	ReferencePublicKey string              `db:"reference_public_key" json:"reference_public_key"`
	Status             string              `db:"status" json:"status"`
	TransactionHash    string              `db:"transaction_hash" json:"transaction_hash,omitempty"`
	PaidAt             *time.Time          `db:"paid_at" json:"paid_at,omitempty"`
	CreatedAt          time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time           `db:"updated_at" json:"updated_at"`
}

// PayrollSchedule represents a recurring or one-time outbound obligation
type PayrollSchedule struct {
	Id                 string              `db:"id" json:"id"`
	UserId             string              `db:"user_id" json:"user_id"`
	PayeeName          string              `db:"payee_name" json:"payee_name"`
	PayeeWalletAddress string              `db:"payee_wallet_address" json:"payee_wallet_address"`
	AmountUsd          decimal.Decimal     `db:"amount_usd" json:"amount_usd"`
	AmountSol          decimal.NullDecimal `db:"amount_sol" json:"amount_sol"`
	AmountUsdc         decimal.NullDecimal `db:"amount_usdc" json:"amount_usdc"`
	Currency           string              `db:"currency" json:"currency"`
	Frequency          string              `db:"frequency" json:"frequency"`
	NextPaymentDate    *time.Time          `db:"next_payment_date" json:"next_payment_date,omitempty"`
	LastPaymentDate    *time.Time          `db:"last_payment_date" json:"last_payment_date,omitempty"`
	Status             string              `db:"status" json:"status"`
	CreatedAt          time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time           `db:"updated_at" json:"updated_at"`
}

// TransferAmount returns the pre-converted asset amount matching the schedule currency
func (p *PayrollSchedule) TransferAmount() (decimal.Decimal, bool) {
	switch p.Currency {
	case CurrencySOL:
		return p.AmountSol.Decimal, p.AmountSol.Valid
	case CurrencyUSDC:
		return p.AmountUsdc.Decimal, p.AmountUsdc.Valid
	}
	return decimal.Zero, false
}

// Settlement represents a confirmed on-ledger transfer (payments table)
type Settlement struct {
	Id              string          `db:"id"`
	InvoiceId       string          `db:"invoice_id"`
	PayrollId       string          `db:"payroll_id"`
	TransactionHash string          `db:"transaction_hash"`
	AmountUsd       decimal.Decimal `db:"amount_usd"`
	Currency        string          `db:"currency"`
	Status          string          `db:"status"`
	BlockTime       *time.Time      `db:"block_time"`
	CreatedAt       time.Time       `db:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at"`
}
