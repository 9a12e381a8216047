package store

import (
	"context"
	"errors"
	"time"

	"klytic-pay-go/internal/models"
)

// Sentinel errors shared across all backend implementations.
var (
	ErrDuplicateReference     = errors.New("duplicate payment reference")
	ErrUserExists             = errors.New("user already exists")
	ErrConcurrentModification = errors.New("concurrent modification detected")
)

// WalletStore is the custody slice of the store.
type WalletStore interface {
	CreateUserWithWallet(ctx context.Context, userId, name, email string, wallet models.GeneratedWallet) (*models.User, error)
	GetUserWallet(ctx context.Context, userId string) (*models.UserWallet, error)
	GetUserById(ctx context.Context, userId string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUsers(ctx context.Context) ([]models.User, error)
}

// PriceStore persists one snapshot row per tracked asset.
type PriceStore interface {
	GetPriceSnapshot(ctx context.Context, token string) (*models.PriceSnapshot, error)
	UpsertPriceSnapshot(ctx context.Context, snapshot models.PriceSnapshot) error
}

// SettlementStore persists confirmed transfers keyed by transaction hash.
type SettlementStore interface {
	UpsertSettlement(ctx context.Context, params models.SettlementParams) (*models.Settlement, error)
	GetSettlementByHash(ctx context.Context, txHash string) (*models.Settlement, error)
}

// InvoiceStore persists invoices and their single pending->paid transition.
type InvoiceStore interface {
	InsertInvoice(ctx context.Context, invoice *models.Invoice) (*models.Invoice, error)
	GetInvoice(ctx context.Context, userId, invoiceId string) (*models.Invoice, error)
	GetInvoiceByReference(ctx context.Context, reference string) (*models.Invoice, error)
	GetInvoiceByTransactionHash(ctx context.Context, txHash string) (*models.Invoice, error)
	ListInvoices(ctx context.Context, userId, status string, limit, offset int) ([]models.Invoice, error)
	ListPendingInvoices(ctx context.Context, limit int) ([]models.Invoice, error)
	MarkInvoicePaid(ctx context.Context, invoiceId, txHash string, paidAt time.Time) (bool, error)
	CancelInvoice(ctx context.Context, userId, invoiceId string) (*models.Invoice, error)
	GetInvoiceStats(ctx context.Context, userId string) (*models.InvoiceStats, error)
}

// PayrollStore persists payroll schedules and the processing-lock transitions.
type PayrollStore interface {
	InsertPayrollSchedule(ctx context.Context, schedule *models.PayrollSchedule, maxActive int) (*models.PayrollSchedule, error)
	GetPayrollSchedule(ctx context.Context, userId, payrollId string) (*models.PayrollSchedule, error)
	ListPayrollSchedules(ctx context.Context, userId, status string) ([]models.PayrollSchedule, error)
	ListDuePayrolls(ctx context.Context, now time.Time) ([]models.PayrollSchedule, error)
	ListUpcomingPayrolls(ctx context.Context, userId string, limit int) ([]models.PayrollSchedule, error)
	CountActivePayrolls(ctx context.Context, userId string) (int, error)
	ClaimPayroll(ctx context.Context, payrollId string, now time.Time) (bool, error)
	CompletePayroll(ctx context.Context, payrollId string, ranAt time.Time, next *time.Time) error
	ReleasePayroll(ctx context.Context, payrollId string) error
	CancelPayrollSchedule(ctx context.Context, userId, payrollId string) (*models.PayrollSchedule, error)
	GetPayrollStats(ctx context.Context, userId string) (*models.PayrollStats, error)
}

// PaymentStore defines the contract that every persistence backend must satisfy.
type PaymentStore interface {
	WalletStore
	PriceStore
	SettlementStore
	InvoiceStore
	PayrollStore

	// --- Lifecycle ---
	Close()
}
