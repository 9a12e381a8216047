package payroll

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"klytic-pay-go/internal/chain/chaintest"
	"klytic-pay-go/internal/custody"
	"klytic-pay-go/internal/database"
	"klytic-pay-go/internal/models"
	"klytic-pay-go/internal/settlement"
	"klytic-pay-go/internal/transfer"
	"klytic-pay-go/internal/vault"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var testNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type testEnv struct {
	db      *sql.DB
	store   *database.Service
	custody *custody.Service
	ledger  *chaintest.Ledger
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

	v, err := vault.New(bytes.Repeat([]byte{9}, vault.SecretSize))
	if err != nil {
		t.Fatalf("vault.New failed: %v", err)
	}

	return &testEnv{
		db:      db,
		store:   svc,
		custody: custody.NewService(v, svc),
		ledger:  chaintest.NewLedger(),
		assets:  models.DefaultAssetPair(""),
	}
}

func (e *testEnv) scheduler() *Scheduler {
	s := NewScheduler(SchedulerConfig{
		Store:     e.store,
		Signers:   e.custody,
		Transfers: transfer.NewExecutor(e.ledger),
		Recorder:  settlement.NewRecorder(e.store, nil),
		Assets:    e.assets,
	})
	s.now = func() time.Time { return testNow }
	return s
}

func (e *testEnv) createUser(t *testing.T) (string, solana.PublicKey) {
	t.Helper()
	user, publicKey, err := e.custody.CreateUserWithWallet(context.Background(), "Employer", uuid.New().String()+"@example.com")
	if err != nil {
		t.Fatalf("CreateUserWithWallet failed: %v", err)
	}
	return user.Id, solana.MustPublicKeyFromBase58(publicKey)
}

func (e *testEnv) createSchedule(t *testing.T, userId, currency, frequency, destination string) *models.PayrollSchedule {
	t.Helper()
	next := testNow.Add(-time.Hour)
	schedule := &models.PayrollSchedule{
		Id:                 uuid.New().String(),
		UserId:             userId,
		PayeeName:          "Payee",
		PayeeWalletAddress: destination,
		AmountUsd:          decimal.NewFromInt(75),
		Currency:           currency,
		Frequency:          frequency,
		NextPaymentDate:    &next,
	}
	switch currency {
	case models.CurrencySOL:
		schedule.AmountSol = decimal.NewNullDecimal(decimal.RequireFromString("0.5"))
	case models.CurrencyUSDC:
		schedule.AmountUsdc = decimal.NewNullDecimal(decimal.NewFromInt(75))
	}

	created, err := e.store.InsertPayrollSchedule(context.Background(), schedule, 5)
	if err != nil {
		t.Fatalf("InsertPayrollSchedule failed: %v", err)
	}
	return created
}

func (e *testEnv) reload(t *testing.T, schedule *models.PayrollSchedule) *models.PayrollSchedule {
	t.Helper()
	reloaded, err := e.store.GetPayrollSchedule(context.Background(), schedule.UserId, schedule.Id)
	if err != nil {
		t.Fatalf("GetPayrollSchedule failed: %v", err)
	}
	return reloaded
}

func (e *testEnv) settlementCount(t *testing.T) int {
	t.Helper()
	var count int
	if err := e.db.QueryRow("SELECT COUNT(*) FROM payments").Scan(&count); err != nil {
		t.Fatalf("count settlements: %v", err)
	}
	return count
}

func TestRunDuePayrolls_OneTimeCompletes(t *testing.T) {
	env := setupTestEnv(t)
	userId, _ := env.createUser(t)
	schedule := env.createSchedule(t, userId, models.CurrencySOL, models.FrequencyOneTime, solana.NewWallet().PublicKey().String())
	scheduler := env.scheduler()

	summary, err := scheduler.RunDuePayrolls(context.Background())
	if err != nil {
		t.Fatalf("RunDuePayrolls failed: %v", err)
	}
	if summary.Due != 1 || summary.Succeeded != 1 {
		t.Fatalf("Unexpected summary: %+v", summary)
	}

	reloaded := env.reload(t, schedule)
	if reloaded.Status != models.PayrollStatusCompleted {
		t.Errorf("Expected completed, got %s", reloaded.Status)
	}
	if reloaded.NextPaymentDate != nil {
		t.Errorf("Expected next run cleared, got %v", reloaded.NextPaymentDate)
	}

	submissions := env.ledger.Submissions()
	if len(submissions) != 1 {
		t.Fatalf("Expected one transfer, got %d", len(submissions))
	}
	recorded, err := env.store.GetSettlementByHash(context.Background(), submissions[0].Signature)
	if err != nil {
		t.Fatalf("Expected a settlement for the transfer: %v", err)
	}
	if recorded.PayrollId != schedule.Id || !recorded.AmountUsd.Equal(decimal.NewFromInt(75)) {
		t.Errorf("Unexpected settlement: %+v", recorded)
	}

	summary, err = scheduler.RunDuePayrolls(context.Background())
	if err != nil {
		t.Fatalf("second RunDuePayrolls failed: %v", err)
	}
	if summary.Due != 0 || len(env.ledger.Submissions()) != 1 {
		t.Errorf("A completed schedule must not run again: %+v", summary)
	}
}

func TestRunDuePayrolls_WeeklyAdvances(t *testing.T) {
	env := setupTestEnv(t)
	userId, _ := env.createUser(t)
	schedule := env.createSchedule(t, userId, models.CurrencySOL, models.FrequencyWeekly, solana.NewWallet().PublicKey().String())

	if _, err := env.scheduler().RunDuePayrolls(context.Background()); err != nil {
		t.Fatalf("RunDuePayrolls failed: %v", err)
	}

	reloaded := env.reload(t, schedule)
	if reloaded.Status != models.PayrollStatusScheduled {
		t.Errorf("Expected scheduled, got %s", reloaded.Status)
	}
	if reloaded.NextPaymentDate == nil || !reloaded.NextPaymentDate.Equal(testNow.Add(7*24*time.Hour)) {
		t.Errorf("Expected next run at %v, got %v", testNow.Add(7*24*time.Hour), reloaded.NextPaymentDate)
	}
	if reloaded.LastPaymentDate == nil || !reloaded.LastPaymentDate.Equal(testNow) {
		t.Errorf("Expected last run at %v, got %v", testNow, reloaded.LastPaymentDate)
	}
}

func TestRunDuePayrolls_TransferFailureReleases(t *testing.T) {
	env := setupTestEnv(t)
	env.ledger.SendErr = errors.New("transaction expired")
	userId, _ := env.createUser(t)
	schedule := env.createSchedule(t, userId, models.CurrencySOL, models.FrequencyWeekly, solana.NewWallet().PublicKey().String())

	summary, err := env.scheduler().RunDuePayrolls(context.Background())
	if err != nil {
		t.Fatalf("RunDuePayrolls failed: %v", err)
	}
	if summary.Failed != 1 {
		t.Errorf("Expected one failure, got %+v", summary)
	}

	reloaded := env.reload(t, schedule)
	if reloaded.Status != models.PayrollStatusScheduled {
		t.Errorf("Expected scheduled after failure, got %s", reloaded.Status)
	}
	if reloaded.NextPaymentDate == nil || !reloaded.NextPaymentDate.Equal(*schedule.NextPaymentDate) {
		t.Errorf("Expected next run unchanged at %v, got %v", schedule.NextPaymentDate, reloaded.NextPaymentDate)
	}
	if count := env.settlementCount(t); count != 0 {
		t.Errorf("Expected no settlement rows, got %d", count)
	}
}

func TestRunDuePayrolls_MissingWalletReleases(t *testing.T) {
	env := setupTestEnv(t)
	schedule := env.createSchedule(t, uuid.New().String(), models.CurrencySOL, models.FrequencyOneTime, solana.NewWallet().PublicKey().String())

	summary, err := env.scheduler().RunDuePayrolls(context.Background())
	if err != nil {
		t.Fatalf("RunDuePayrolls failed: %v", err)
	}
	if summary.Failed != 1 {
		t.Errorf("Expected wallet lookup to fail the schedule, got %+v", summary)
	}
	if reloaded := env.reload(t, schedule); reloaded.Status != models.PayrollStatusScheduled {
		t.Errorf("Expected scheduled, got %s", reloaded.Status)
	}
	if len(env.ledger.Submissions()) != 0 {
		t.Error("No transfer should be submitted without a wallet")
	}
}

func TestRunDuePayrolls_FailureDoesNotBlockBatch(t *testing.T) {
	env := setupTestEnv(t)
	userId, _ := env.createUser(t)
	bad := env.createSchedule(t, userId, models.CurrencySOL, models.FrequencyOneTime, "not-a-valid-address")
	good := env.createSchedule(t, userId, models.CurrencySOL, models.FrequencyOneTime, solana.NewWallet().PublicKey().String())

	summary, err := env.scheduler().RunDuePayrolls(context.Background())
	if err != nil {
		t.Fatalf("RunDuePayrolls failed: %v", err)
	}
	if summary.Due != 2 || summary.Succeeded != 1 || summary.Failed != 1 {
		t.Errorf("Unexpected summary: %+v", summary)
	}
	if reloaded := env.reload(t, bad); reloaded.Status != models.PayrollStatusScheduled {
		t.Errorf("Expected failing schedule released, got %s", reloaded.Status)
	}
	if reloaded := env.reload(t, good); reloaded.Status != models.PayrollStatusCompleted {
		t.Errorf("Expected good schedule completed, got %s", reloaded.Status)
	}
}

func TestRunDuePayrolls_TokenScheduleConvertsWhenUnpriced(t *testing.T) {
	env := setupTestEnv(t)
	userId, owner := env.createUser(t)
	mint := solana.MustPublicKeyFromBase58(env.assets.Token.Mint)
	senderAta, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		t.Fatalf("derive ata: %v", err)
	}
	env.ledger.TokenBalances[senderAta] = 1_000_000_000
	env.ledger.MintDecimals[mint] = 6

	schedule := env.createSchedule(t, userId, models.CurrencyUSDC, models.FrequencyOneTime, solana.NewWallet().PublicKey().String())
	if _, err := env.db.Exec("UPDATE payroll SET amount_usdc = NULL WHERE id = ?", schedule.Id); err != nil {
		t.Fatalf("clear amount: %v", err)
	}

	scheduler := env.scheduler()
	prices := &fixedRates{}
	scheduler.prices = prices

	summary, err := scheduler.RunDuePayrolls(context.Background())
	if err != nil {
		t.Fatalf("RunDuePayrolls failed: %v", err)
	}
	if summary.Succeeded != 1 {
		t.Fatalf("Expected success, got %+v", summary)
	}
	if prices.tokenCalls != 1 {
		t.Errorf("Expected one USD to token conversion, got %d", prices.tokenCalls)
	}
}

type fixedRates struct {
	tokenCalls int
}

func (f *fixedRates) UsdToNative(_ context.Context, usd decimal.Decimal) (decimal.Decimal, error) {
	return usd.Div(decimal.NewFromInt(150)), nil
}

func (f *fixedRates) UsdToToken(_ context.Context, usd decimal.Decimal) (decimal.Decimal, error) {
	f.tokenCalls++
	return usd, nil
}

// racingStore lets another pass claim every schedule between listing and claiming.
type racingStore struct {
	*database.Service
}

func (r racingStore) ListDuePayrolls(ctx context.Context, now time.Time) ([]models.PayrollSchedule, error) {
	due, err := r.Service.ListDuePayrolls(ctx, now)
	if err != nil {
		return nil, err
	}
	for _, schedule := range due {
		if _, err := r.Service.ClaimPayroll(ctx, schedule.Id, now); err != nil {
			return nil, err
		}
	}
	return due, nil
}

func TestRunDuePayrolls_SkipsScheduleClaimedElsewhere(t *testing.T) {
	env := setupTestEnv(t)
	userId, _ := env.createUser(t)
	env.createSchedule(t, userId, models.CurrencySOL, models.FrequencyOneTime, solana.NewWallet().PublicKey().String())

	scheduler := env.scheduler()
	scheduler.store = racingStore{env.store}

	summary, err := scheduler.RunDuePayrolls(context.Background())
	if err != nil {
		t.Fatalf("RunDuePayrolls failed: %v", err)
	}
	if summary.Skipped != 1 || summary.Succeeded != 0 {
		t.Errorf("Expected the schedule skipped, got %+v", summary)
	}
	if len(env.ledger.Submissions()) != 0 {
		t.Error("A skipped schedule must not transfer")
	}
}

func TestRunDuePayrolls_ConcurrentPassesTransferOnce(t *testing.T) {
	env := setupTestEnv(t)
	userId, _ := env.createUser(t)
	env.createSchedule(t, userId, models.CurrencySOL, models.FrequencyOneTime, solana.NewWallet().PublicKey().String())

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := env.scheduler().RunDuePayrolls(context.Background()); err != nil {
				t.Errorf("RunDuePayrolls failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if n := len(env.ledger.Submissions()); n != 1 {
		t.Errorf("Expected exactly one transfer across both passes, got %d", n)
	}
}

// staleListStore replays a due list captured before another pass ran.
type staleListStore struct {
	*database.Service
	due []models.PayrollSchedule
}

func (s staleListStore) ListDuePayrolls(context.Context, time.Time) ([]models.PayrollSchedule, error) {
	return s.due, nil
}

func TestRunDuePayrolls_StaleDueListTransfersOnce(t *testing.T) {
	env := setupTestEnv(t)
	userId, _ := env.createUser(t)
	schedule := env.createSchedule(t, userId, models.CurrencySOL, models.FrequencyWeekly, solana.NewWallet().PublicKey().String())

	captured, err := env.store.ListDuePayrolls(context.Background(), testNow)
	if err != nil || len(captured) != 1 {
		t.Fatalf("Expected one due schedule, got %d, %v", len(captured), err)
	}

	if _, err := env.scheduler().RunDuePayrolls(context.Background()); err != nil {
		t.Fatalf("first RunDuePayrolls failed: %v", err)
	}

	late := env.scheduler()
	late.store = staleListStore{Service: env.store, due: captured}
	summary, err := late.RunDuePayrolls(context.Background())
	if err != nil {
		t.Fatalf("second RunDuePayrolls failed: %v", err)
	}
	if summary.Skipped != 1 || summary.Succeeded != 0 {
		t.Errorf("Expected the advanced schedule skipped, got %+v", summary)
	}
	if n := len(env.ledger.Submissions()); n != 1 {
		t.Errorf("Expected exactly one transfer, got %d", n)
	}

	reloaded := env.reload(t, schedule)
	if reloaded.NextPaymentDate == nil || !reloaded.NextPaymentDate.Equal(testNow.Add(7*24*time.Hour)) {
		t.Errorf("Expected next run a week out, got %v", reloaded.NextPaymentDate)
	}
}

type failingRecorder struct {
	calls int
}

func (f *failingRecorder) Record(context.Context, models.SettlementParams) (*models.Settlement, error) {
	f.calls++
	return nil, errors.New("disk full")
}

func TestRunDuePayrolls_RecordFailureStillAdvances(t *testing.T) {
	env := setupTestEnv(t)
	userId, _ := env.createUser(t)
	schedule := env.createSchedule(t, userId, models.CurrencySOL, models.FrequencyWeekly, solana.NewWallet().PublicKey().String())

	recorder := &failingRecorder{}
	scheduler := env.scheduler()
	scheduler.recorder = recorder

	summary, err := scheduler.RunDuePayrolls(context.Background())
	if err != nil {
		t.Fatalf("RunDuePayrolls failed: %v", err)
	}
	if summary.Succeeded != 1 || recorder.calls != 1 {
		t.Errorf("Expected one paid schedule and one record attempt, got %+v, %d calls", summary, recorder.calls)
	}

	reloaded := env.reload(t, schedule)
	if reloaded.Status != models.PayrollStatusScheduled {
		t.Errorf("Expected scheduled, got %s", reloaded.Status)
	}
	if reloaded.NextPaymentDate == nil || !reloaded.NextPaymentDate.Equal(testNow.Add(7*24*time.Hour)) {
		t.Errorf("Expected next run advanced a week, got %v", reloaded.NextPaymentDate)
	}
	if count := env.settlementCount(t); count != 0 {
		t.Errorf("Expected no settlement rows, got %d", count)
	}

	summary, err = scheduler.RunDuePayrolls(context.Background())
	if err != nil {
		t.Fatalf("second RunDuePayrolls failed: %v", err)
	}
	if summary.Due != 0 || len(env.ledger.Submissions()) != 1 {
		t.Errorf("The schedule must not be retried after funds moved: %+v", summary)
	}
}

// stuckStore fails every completion after the transfer.
type stuckStore struct {
	*database.Service
}

func (s stuckStore) CompletePayroll(context.Context, string, time.Time, *time.Time) error {
	return errors.New("database is locked")
}

func TestRunDuePayrolls_CompleteFailureLeavesProcessing(t *testing.T) {
	env := setupTestEnv(t)
	userId, _ := env.createUser(t)
	schedule := env.createSchedule(t, userId, models.CurrencySOL, models.FrequencyWeekly, solana.NewWallet().PublicKey().String())

	scheduler := env.scheduler()
	scheduler.store = stuckStore{env.store}

	if _, err := scheduler.RunDuePayrolls(context.Background()); err != nil {
		t.Fatalf("RunDuePayrolls failed: %v", err)
	}

	reloaded := env.reload(t, schedule)
	if reloaded.Status != models.PayrollStatusProcessing {
		t.Errorf("Expected processing, got %s", reloaded.Status)
	}
	if count := env.settlementCount(t); count != 1 {
		t.Errorf("Expected the transfer recorded, got %d settlements", count)
	}

	summary, err := env.scheduler().RunDuePayrolls(context.Background())
	if err != nil {
		t.Fatalf("second RunDuePayrolls failed: %v", err)
	}
	if summary.Due != 0 {
		t.Errorf("A processing schedule must not be selected again, got %+v", summary)
	}
	if n := len(env.ledger.Submissions()); n != 1 {
		t.Errorf("Expected exactly one transfer, got %d", n)
	}
}

func TestRunDuePayrolls_NothingDue(t *testing.T) {
	env := setupTestEnv(t)
	summary, err := env.scheduler().RunDuePayrolls(context.Background())
	if err != nil {
		t.Fatalf("RunDuePayrolls failed: %v", err)
	}
	if summary.Due != 0 {
		t.Errorf("Expected nothing due, got %+v", summary)
	}
}

func TestStartStop(t *testing.T) {
	env := setupTestEnv(t)
	userId, _ := env.createUser(t)
	env.createSchedule(t, userId, models.CurrencySOL, models.FrequencyOneTime, solana.NewWallet().PublicKey().String())

	scheduler := env.scheduler()
	scheduler.Start(context.Background())

	deadline := time.Now().Add(5 * time.Second)
	for len(env.ledger.Submissions()) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	scheduler.Stop()

	if len(env.ledger.Submissions()) != 1 {
		t.Error("Expected the immediate pass to pay the due schedule")
	}
}
