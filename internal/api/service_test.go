package api

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"klytic-pay-go/internal/chain/chaintest"
	"klytic-pay-go/internal/custody"
	"klytic-pay-go/internal/database"
	"klytic-pay-go/internal/models"
	"klytic-pay-go/internal/prices"
	"klytic-pay-go/internal/settlement"
	"klytic-pay-go/internal/vault"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var testNow = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

type unreachableFeed struct{}

func (unreachableFeed) FetchUsdPrices(context.Context, ...string) (map[string]decimal.Decimal, error) {
	return nil, errors.New("dial tcp: connection refused")
}

type fakeMonitor struct {
	mu        sync.Mutex
	confirmed map[string]string
	blockTime time.Time
	awaits    int
	verifies  int
}

func newFakeMonitor() *fakeMonitor {
	return &fakeMonitor{confirmed: make(map[string]string), blockTime: time.Unix(1700000000, 0).UTC()}
}

func (m *fakeMonitor) Await(_ context.Context, reference string, _ time.Duration) (*models.PaymentVerification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.awaits++
	signature, ok := m.confirmed[reference]
	if !ok {
		return &models.PaymentVerification{}, nil
	}
	blockTime := m.blockTime
	return &models.PaymentVerification{Confirmed: true, TransactionId: signature, BlockTime: &blockTime}, nil
}

func (m *fakeMonitor) Verify(_ context.Context, txId string) (*models.PaymentVerification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verifies++
	blockTime := m.blockTime
	return &models.PaymentVerification{Confirmed: true, TransactionId: txId, BlockTime: &blockTime}, nil
}

type testEnv struct {
	db      *sql.DB
	store   *database.Service
	custody *custody.Service
	ledger  *chaintest.Ledger
	monitor *fakeMonitor
	service *PaymentService
	assets  models.AssetPair
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	svc := database.NewServiceFromDB(db)
	if err := svc.InitSchema(); err != nil {
		t.Fatalf("Failed to create test schema: %v", err)
	}

	v, err := vault.New(bytes.Repeat([]byte{3}, vault.SecretSize))
	if err != nil {
		t.Fatalf("vault.New failed: %v", err)
	}

	assets := models.DefaultAssetPair("")
	env := &testEnv{
		db:      db,
		store:   svc,
		custody: custody.NewService(v, svc),
		ledger:  chaintest.NewLedger(),
		monitor: newFakeMonitor(),
		assets:  assets,
	}
	env.service = NewPaymentService(PaymentServiceConfig{
		Store:    svc,
		Custody:  env.custody,
		Prices:   prices.NewOracle(svc, unreachableFeed{}, nil, assets, time.Minute),
		Monitor:  env.monitor,
		Recorder: settlement.NewRecorder(svc, nil),
		Ledger:   env.ledger,
		Assets:   assets,
	})
	env.service.now = func() time.Time { return testNow }
	return env
}

func (e *testEnv) createUser(t *testing.T) (string, solana.PublicKey) {
	t.Helper()
	user, publicKey, err := e.custody.CreateUserWithWallet(context.Background(), "Merchant", uuid.New().String()+"@example.com")
	if err != nil {
		t.Fatalf("CreateUserWithWallet failed: %v", err)
	}
	return user.Id, solana.MustPublicKeyFromBase58(publicKey)
}

func (e *testEnv) createInvoice(t *testing.T, userId, currency string) *models.InvoiceWithPayment {
	t.Helper()
	created, err := e.service.CreateInvoice(context.Background(), CreateInvoiceParams{
		UserId:      userId,
		ClientEmail: "client@example.com",
		AmountUsd:   decimal.NewFromInt(100),
		Currency:    currency,
	})
	if err != nil {
		t.Fatalf("CreateInvoice failed: %v", err)
	}
	return created
}

func parsePaymentUrl(t *testing.T, raw string) (string, url.Values) {
	t.Helper()
	parsed, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("invalid payment url %q: %v", raw, err)
	}
	if parsed.Scheme != "solana" {
		t.Fatalf("expected solana scheme, got %q", parsed.Scheme)
	}
	return parsed.Opaque, parsed.Query()
}

func TestCreateInvoice_UsdUsesFallbackRate(t *testing.T) {
	env := setupTestEnv(t)
	userId, owner := env.createUser(t)

	created := env.createInvoice(t, userId, models.CurrencyUSD)
	invoice := created.Invoice

	if invoice.Status != models.InvoiceStatusPending {
		t.Errorf("Expected pending, got %s", invoice.Status)
	}
	if !invoice.AmountSol.Valid || !invoice.AmountSol.Decimal.Equal(decimal.RequireFromString("0.666666667")) {
		t.Errorf("Expected 0.666666667 SOL at the fallback rate, got %v", invoice.AmountSol)
	}
	if !invoice.AmountUsdc.Valid || !invoice.AmountUsdc.Decimal.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Expected 100 USDC, got %v", invoice.AmountUsdc)
	}

	recipient, query := parsePaymentUrl(t, created.QrCode.Url)
	if recipient != owner.String() {
		t.Errorf("Expected recipient %s, got %s", owner, recipient)
	}
	if query.Get("amount") != "0.666666667" {
		t.Errorf("Expected native amount, got %s", query.Get("amount"))
	}
	if query.Get("spl-token") != "" {
		t.Error("USD invoices are paid in the native asset")
	}
	if query.Get("reference") != invoice.ReferencePublicKey || created.QrCode.Reference != invoice.ReferencePublicKey {
		t.Errorf("Expected reference %s in payment request", invoice.ReferencePublicKey)
	}
	if query.Get("label") != "Klytic Pay Invoice" {
		t.Errorf("Unexpected label %q", query.Get("label"))
	}
	if query.Get("message") != "Invoice #"+invoice.Id[:8] {
		t.Errorf("Unexpected message %q", query.Get("message"))
	}
	if query.Get("memo") != "Invoice-"+invoice.Id {
		t.Errorf("Unexpected memo %q", query.Get("memo"))
	}
}

func TestCreateInvoice_UsdcRequestsToken(t *testing.T) {
	env := setupTestEnv(t)
	userId, _ := env.createUser(t)

	created := env.createInvoice(t, userId, models.CurrencyUSDC)
	if created.Invoice.AmountSol.Valid {
		t.Error("USDC invoices carry no native amount")
	}

	_, query := parsePaymentUrl(t, created.QrCode.Url)
	if query.Get("spl-token") != env.assets.Token.Mint {
		t.Errorf("Expected spl-token %s, got %q", env.assets.Token.Mint, query.Get("spl-token"))
	}
	if query.Get("amount") != "100" {
		t.Errorf("Expected amount 100, got %s", query.Get("amount"))
	}
	if !strings.Contains(created.QrCode.Url, "label=Klytic+Pay+Invoice") {
		t.Errorf("Expected form-encoded label in %s", created.QrCode.Url)
	}
}

func TestCreateInvoice_Validation(t *testing.T) {
	env := setupTestEnv(t)
	userId, _ := env.createUser(t)

	tests := []struct {
		name   string
		params CreateInvoiceParams
	}{
		{"missing email", CreateInvoiceParams{UserId: userId, AmountUsd: decimal.NewFromInt(1), Currency: models.CurrencyUSD}},
		{"zero amount", CreateInvoiceParams{UserId: userId, ClientEmail: "a@b.c", Currency: models.CurrencyUSD}},
		{"negative amount", CreateInvoiceParams{UserId: userId, ClientEmail: "a@b.c", AmountUsd: decimal.NewFromInt(-5), Currency: models.CurrencyUSD}},
		{"unknown currency", CreateInvoiceParams{UserId: userId, ClientEmail: "a@b.c", AmountUsd: decimal.NewFromInt(1), Currency: "EUR"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := env.service.CreateInvoice(context.Background(), tt.params); !errors.Is(err, models.ErrValidation) {
				t.Errorf("Expected ErrValidation, got %v", err)
			}
		})
	}

	_, err := env.service.CreateInvoice(context.Background(), CreateInvoiceParams{
		UserId: "missing", ClientEmail: "a@b.c", AmountUsd: decimal.NewFromInt(1), Currency: models.CurrencySOL,
	})
	if !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown user, got %v", err)
	}
}

func TestCheckPaymentStatus_ConfirmsAndSettlesOnce(t *testing.T) {
	env := setupTestEnv(t)
	userId, _ := env.createUser(t)
	invoice := env.createInvoice(t, userId, models.CurrencySOL).Invoice
	signature := solana.Signature{4, 2}.String()
	env.monitor.confirmed[invoice.ReferencePublicKey] = signature

	result, err := env.service.CheckPaymentStatus(context.Background(), invoice.ReferencePublicKey)
	if err != nil {
		t.Fatalf("CheckPaymentStatus failed: %v", err)
	}
	if !result.Confirmed || result.TransactionId != signature || result.InvoiceId != invoice.Id {
		t.Fatalf("Unexpected result: %+v", result)
	}

	paid, err := env.service.GetInvoice(context.Background(), userId, invoice.Id)
	if err != nil {
		t.Fatalf("GetInvoice failed: %v", err)
	}
	if paid.Status != models.InvoiceStatusPaid || paid.TransactionHash != signature {
		t.Errorf("Expected paid with %s, got %s %s", signature, paid.Status, paid.TransactionHash)
	}
	if paid.PaidAt == nil || !paid.PaidAt.Equal(env.monitor.blockTime) {
		t.Errorf("Expected paid at block time, got %v", paid.PaidAt)
	}

	recorded, err := env.store.GetSettlementByHash(context.Background(), signature)
	if err != nil {
		t.Fatalf("Expected settlement: %v", err)
	}
	if recorded.InvoiceId != invoice.Id || !recorded.AmountUsd.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Unexpected settlement: %+v", recorded)
	}

	// A paid invoice is re-verified, never polled again
	if _, err := env.service.CheckPaymentStatus(context.Background(), invoice.ReferencePublicKey); err != nil {
		t.Fatalf("second CheckPaymentStatus failed: %v", err)
	}
	if env.monitor.awaits != 1 || env.monitor.verifies != 1 {
		t.Errorf("Expected 1 await and 1 verify, got %d and %d", env.monitor.awaits, env.monitor.verifies)
	}
}

func TestCheckPaymentStatus_Unconfirmed(t *testing.T) {
	env := setupTestEnv(t)
	userId, _ := env.createUser(t)
	invoice := env.createInvoice(t, userId, models.CurrencySOL).Invoice

	result, err := env.service.CheckPaymentStatus(context.Background(), invoice.ReferencePublicKey)
	if err != nil {
		t.Fatalf("CheckPaymentStatus failed: %v", err)
	}
	if result.Confirmed {
		t.Error("Expected unconfirmed")
	}

	stillPending, _ := env.service.GetInvoice(context.Background(), userId, invoice.Id)
	if stillPending.Status != models.InvoiceStatusPending {
		t.Errorf("Expected pending, got %s", stillPending.Status)
	}
	var count int
	if err := env.db.QueryRow("SELECT COUNT(*) FROM payments").Scan(&count); err != nil || count != 0 {
		t.Errorf("Expected no settlements, got %d (%v)", count, err)
	}
}

func TestCheckPaymentStatus_CancelledInvoiceIsNotPolled(t *testing.T) {
	env := setupTestEnv(t)
	userId, _ := env.createUser(t)
	invoice := env.createInvoice(t, userId, models.CurrencySOL).Invoice
	if _, err := env.service.CancelInvoice(context.Background(), userId, invoice.Id); err != nil {
		t.Fatalf("CancelInvoice failed: %v", err)
	}

	result, err := env.service.CheckPaymentStatus(context.Background(), invoice.ReferencePublicKey)
	if err != nil {
		t.Fatalf("CheckPaymentStatus failed: %v", err)
	}
	if result.Confirmed || env.monitor.awaits != 0 {
		t.Errorf("Expected no polling for a cancelled invoice, got %+v after %d awaits", result, env.monitor.awaits)
	}
}

func TestCheckPaymentStatus_Lookups(t *testing.T) {
	env := setupTestEnv(t)
	userId, _ := env.createUser(t)
	invoice := env.createInvoice(t, userId, models.CurrencySOL).Invoice
	signature := solana.Signature{8}.String()
	env.monitor.confirmed[invoice.ReferencePublicKey] = signature
	if _, err := env.service.CheckPaymentStatus(context.Background(), invoice.ReferencePublicKey); err != nil {
		t.Fatalf("CheckPaymentStatus failed: %v", err)
	}

	byHash, err := env.service.CheckPaymentStatus(context.Background(), signature)
	if err != nil {
		t.Fatalf("lookup by hash failed: %v", err)
	}
	if byHash.InvoiceId != invoice.Id {
		t.Errorf("Expected invoice %s for hash lookup, got %q", invoice.Id, byHash.InvoiceId)
	}

	unknown := solana.Signature{9, 9}.String()
	bare, err := env.service.CheckPaymentStatus(context.Background(), unknown)
	if err != nil {
		t.Fatalf("lookup by bare signature failed: %v", err)
	}
	if bare.InvoiceId != "" || bare.TransactionId != unknown {
		t.Errorf("Unexpected bare verification: %+v", bare)
	}

	if _, err := env.service.CheckPaymentStatus(context.Background(), "nothing-like-a-key"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if _, err := env.service.CheckPaymentStatus(context.Background(), "  "); !errors.Is(err, models.ErrValidation) {
		t.Errorf("Expected ErrValidation, got %v", err)
	}
}

func TestReconcilePendingInvoices(t *testing.T) {
	env := setupTestEnv(t)
	userId, _ := env.createUser(t)
	paid := env.createInvoice(t, userId, models.CurrencyUSD).Invoice
	env.createInvoice(t, userId, models.CurrencyUSDC)
	env.monitor.confirmed[paid.ReferencePublicKey] = solana.Signature{1, 1}.String()

	summary, err := env.service.ReconcilePendingInvoices(context.Background())
	if err != nil {
		t.Fatalf("ReconcilePendingInvoices failed: %v", err)
	}
	if summary.Checked != 2 || summary.Confirmed != 1 || summary.Failed != 0 {
		t.Errorf("Unexpected summary: %+v", summary)
	}

	pending, err := env.service.ListInvoices(context.Background(), userId, models.InvoiceStatusPending, 0, 0)
	if err != nil {
		t.Fatalf("ListInvoices failed: %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("Expected one invoice left pending, got %d", len(pending))
	}
}

func TestCreatePayrollSchedule(t *testing.T) {
	env := setupTestEnv(t)
	userId, _ := env.createUser(t)
	payee := solana.NewWallet().PublicKey().String()

	weekly, err := env.service.CreatePayrollSchedule(context.Background(), CreatePayrollParams{
		UserId: userId, PayeeName: "Dev", WalletAddress: payee,
		AmountUsd: decimal.NewFromInt(300), Currency: models.CurrencySOL, Frequency: models.FrequencyWeekly,
	})
	if err != nil {
		t.Fatalf("CreatePayrollSchedule failed: %v", err)
	}
	if !weekly.AmountSol.Valid || !weekly.AmountSol.Decimal.Equal(decimal.NewFromInt(2)) {
		t.Errorf("Expected 2 SOL at the fallback rate, got %v", weekly.AmountSol)
	}
	if weekly.NextPaymentDate == nil || !weekly.NextPaymentDate.Equal(testNow.Add(7*24*time.Hour)) {
		t.Errorf("Expected first run in 7 days, got %v", weekly.NextPaymentDate)
	}

	oneTime, err := env.service.CreatePayrollSchedule(context.Background(), CreatePayrollParams{
		UserId: userId, PayeeName: "Designer", WalletAddress: payee,
		AmountUsd: decimal.NewFromInt(50), Currency: models.CurrencyUSDC, Frequency: models.FrequencyOneTime,
	})
	if err != nil {
		t.Fatalf("CreatePayrollSchedule failed: %v", err)
	}
	if !oneTime.AmountUsdc.Valid || oneTime.AmountSol.Valid {
		t.Errorf("Expected only a USDC amount, got %v / %v", oneTime.AmountUsdc, oneTime.AmountSol)
	}
	if oneTime.NextPaymentDate == nil || !oneTime.NextPaymentDate.Equal(testNow.Add(24*time.Hour)) {
		t.Errorf("Expected first run tomorrow, got %v", oneTime.NextPaymentDate)
	}
}

func TestCreatePayrollSchedule_Validation(t *testing.T) {
	env := setupTestEnv(t)
	userId, _ := env.createUser(t)
	payee := solana.NewWallet().PublicKey().String()
	valid := CreatePayrollParams{
		UserId: userId, PayeeName: "Dev", WalletAddress: payee,
		AmountUsd: decimal.NewFromInt(10), Currency: models.CurrencySOL, Frequency: models.FrequencyOneTime,
	}

	tests := []struct {
		name   string
		mutate func(p *CreatePayrollParams)
	}{
		{"missing payee", func(p *CreatePayrollParams) { p.PayeeName = "" }},
		{"bad address", func(p *CreatePayrollParams) { p.WalletAddress = "0OIl" + payee[4:] }},
		{"short address", func(p *CreatePayrollParams) { p.WalletAddress = "abc" }},
		{"zero amount", func(p *CreatePayrollParams) { p.AmountUsd = decimal.Zero }},
		{"usd currency", func(p *CreatePayrollParams) { p.Currency = models.CurrencyUSD }},
		{"monthly", func(p *CreatePayrollParams) { p.Frequency = "monthly" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := valid
			tt.mutate(&params)
			if _, err := env.service.CreatePayrollSchedule(context.Background(), params); !errors.Is(err, models.ErrValidation) {
				t.Errorf("Expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestCreatePayrollSchedule_MaxActive(t *testing.T) {
	env := setupTestEnv(t)
	userId, _ := env.createUser(t)
	params := CreatePayrollParams{
		UserId: userId, PayeeName: "Dev", WalletAddress: solana.NewWallet().PublicKey().String(),
		AmountUsd: decimal.NewFromInt(10), Currency: models.CurrencyUSDC, Frequency: models.FrequencyWeekly,
	}

	for i := 0; i < DefaultMaxActivePayrolls; i++ {
		if _, err := env.service.CreatePayrollSchedule(context.Background(), params); err != nil {
			t.Fatalf("schedule %d failed: %v", i, err)
		}
	}
	if _, err := env.service.CreatePayrollSchedule(context.Background(), params); !errors.Is(err, models.ErrValidation) {
		t.Fatalf("Expected ErrValidation for the sixth schedule, got %v", err)
	}

	schedules, err := env.service.ListPayrollSchedules(context.Background(), userId, "")
	if err != nil {
		t.Fatalf("ListPayrollSchedules failed: %v", err)
	}
	if len(schedules) != DefaultMaxActivePayrolls {
		t.Errorf("Expected %d rows, got %d", DefaultMaxActivePayrolls, len(schedules))
	}
}

func TestGetDashboardSummary(t *testing.T) {
	env := setupTestEnv(t)
	userId, _ := env.createUser(t)
	paid := env.createInvoice(t, userId, models.CurrencySOL).Invoice
	env.createInvoice(t, userId, models.CurrencyUSDC)
	env.monitor.confirmed[paid.ReferencePublicKey] = solana.Signature{5}.String()
	if _, err := env.service.CheckPaymentStatus(context.Background(), paid.ReferencePublicKey); err != nil {
		t.Fatalf("CheckPaymentStatus failed: %v", err)
	}
	if _, err := env.service.CreatePayrollSchedule(context.Background(), CreatePayrollParams{
		UserId: userId, PayeeName: "Dev", WalletAddress: solana.NewWallet().PublicKey().String(),
		AmountUsd: decimal.NewFromInt(10), Currency: models.CurrencySOL, Frequency: models.FrequencyWeekly,
	}); err != nil {
		t.Fatalf("CreatePayrollSchedule failed: %v", err)
	}

	summary, err := env.service.GetDashboardSummary(context.Background(), userId)
	if err != nil {
		t.Fatalf("GetDashboardSummary failed: %v", err)
	}
	if summary.Invoices.Total != 2 || summary.Invoices.Paid != 1 || summary.Invoices.Pending != 1 {
		t.Errorf("Unexpected invoice stats: %+v", summary.Invoices)
	}
	if !summary.Invoices.TotalPaidAmount.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Expected 100 paid, got %s", summary.Invoices.TotalPaidAmount)
	}
	if summary.Payroll.Scheduled != 1 || len(summary.UpcomingPayrolls) != 1 || len(summary.RecentInvoices) != 2 {
		t.Errorf("Unexpected payroll summary: %+v", summary)
	}
}

func TestGetWalletBalances(t *testing.T) {
	env := setupTestEnv(t)
	userId, owner := env.createUser(t)
	env.ledger.NativeBalances[owner] = 2_500_000_000

	balances, err := env.service.GetWalletBalances(context.Background(), userId)
	if err != nil {
		t.Fatalf("GetWalletBalances failed: %v", err)
	}
	if !balances.Native.Equal(decimal.RequireFromString("2.5")) || !balances.Token.IsZero() {
		t.Errorf("Unexpected balances: %+v", balances)
	}
	if !balances.NativeUsd.Equal(decimal.NewFromInt(375)) {
		t.Errorf("Expected 375 USD at the fallback rate, got %s", balances.NativeUsd)
	}

	mint := solana.MustPublicKeyFromBase58(env.assets.Token.Mint)
	account, _, _ := solana.FindAssociatedTokenAddress(owner, mint)
	env.ledger.TokenBalances[account] = 12_340_000
	balances, err = env.service.GetWalletBalances(context.Background(), userId)
	if err != nil {
		t.Fatalf("GetWalletBalances failed: %v", err)
	}
	if !balances.Token.Equal(decimal.RequireFromString("12.34")) {
		t.Errorf("Expected 12.34 tokens, got %s", balances.Token)
	}

	if _, err := env.service.GetWalletBalances(context.Background(), "missing"); !errors.Is(err, models.ErrWalletNotFound) {
		t.Errorf("Expected ErrWalletNotFound, got %v", err)
	}
}

func TestHealthCheckAndFiatBridge(t *testing.T) {
	env := setupTestEnv(t)
	if err := env.service.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck failed: %v", err)
	}
	env.ledger.HealthErr = errors.New("node is behind")
	if err := env.service.HealthCheck(context.Background()); err == nil {
		t.Error("Expected ledger health failure")
	}

	if !env.service.RequiresFiatBridge(models.CurrencyUSD) {
		t.Error("USD settlement needs a fiat bridge")
	}
	if env.service.RequiresFiatBridge(models.CurrencySOL) || env.service.RequiresFiatBridge(models.CurrencyUSDC) {
		t.Error("On-chain assets need no fiat bridge")
	}
}

func TestRunDuePayrolls_NotConfigured(t *testing.T) {
	env := setupTestEnv(t)
	if _, err := env.service.RunDuePayrolls(context.Background()); err == nil {
		t.Error("Expected an error without a scheduler")
	}
}
