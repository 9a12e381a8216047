package common

import (
	"bytes"
	"context"
	"database/sql"
	"testing"
	"time"

	"klytic-pay-go/internal/custody"
	"klytic-pay-go/internal/database"
	"klytic-pay-go/internal/vault"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func TestInitializeUsers(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)
	defer db.Close()

	dbService := database.NewServiceFromDB(db)
	if err := dbService.InitSchema(); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}
	v, err := vault.New(bytes.Repeat([]byte{1}, vault.SecretSize))
	if err != nil {
		t.Fatalf("vault.New failed: %v", err)
	}
	custodian := custody.NewService(v, dbService)

	ctx := context.Background()
	_, aliceKey, err := custodian.CreateUserWithWallet(ctx, "Alice", "alice@example.com")
	if err != nil {
		t.Fatalf("CreateUserWithWallet failed: %v", err)
	}
	if _, _, err := custodian.CreateUserWithWallet(ctx, "Bob", "bob@example.com"); err != nil {
		t.Fatalf("CreateUserWithWallet failed: %v", err)
	}

	all, err := InitializeUsers(ctx, dbService, "", zap.NewNop())
	if err != nil {
		t.Fatalf("InitializeUsers failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("Expected 2 users, got %d", len(all))
	}

	filtered, err := InitializeUsers(ctx, dbService, "alice@example.com", zap.NewNop())
	if err != nil {
		t.Fatalf("InitializeUsers failed: %v", err)
	}
	if len(filtered) != 1 || filtered[0].PublicKey != aliceKey {
		t.Errorf("Expected Alice with wallet %s, got %+v", aliceKey, filtered)
	}

	if _, err := InitializeUsers(ctx, dbService, "nobody@example.com", zap.NewNop()); err == nil {
		t.Error("Expected error for unknown email")
	}
}

func TestSeedDemoUsers(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)
	defer db.Close()

	dbService := database.NewServiceFromDB(db)
	if err := dbService.InitSchema(); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}
	v, err := vault.New(bytes.Repeat([]byte{2}, vault.SecretSize))
	if err != nil {
		t.Fatalf("vault.New failed: %v", err)
	}
	custodian := custody.NewService(v, dbService)
	ctx := context.Background()

	created, failed := SeedDemoUsers(ctx, dbService, custodian, zap.NewNop())
	if created != len(DemoUsers) || len(failed) != 0 {
		t.Fatalf("Expected %d created and none failed, got %d, %v", len(DemoUsers), created, failed)
	}

	users, err := dbService.GetUsers(ctx)
	if err != nil {
		t.Fatalf("GetUsers failed: %v", err)
	}
	if len(users) != len(DemoUsers) {
		t.Fatalf("Expected %d users, got %d", len(DemoUsers), len(users))
	}
	for _, u := range users {
		if _, err := custodian.Rehydrate(ctx, u.Id); err != nil {
			t.Errorf("Demo user %s has no usable wallet: %v", u.Email, err)
		}
	}

	created, failed = SeedDemoUsers(ctx, dbService, custodian, zap.NewNop())
	if created != 0 || len(failed) != 0 {
		t.Errorf("Second seed should be a no-op, got %d created, %v failed", created, failed)
	}
}

func TestFormatting(t *testing.T) {
	if got := FormatUsd(decimal.RequireFromString("12.5")); got != "$12.50" {
		t.Errorf("FormatUsd = %s", got)
	}
	if got := FormatOptional(decimal.NullDecimal{}, "SOL"); got != "-" {
		t.Errorf("FormatOptional(null) = %s", got)
	}
	if got := FormatOptional(decimal.NewNullDecimal(decimal.RequireFromString("0.5")), "SOL"); got != "0.5 SOL" {
		t.Errorf("FormatOptional = %s", got)
	}
	if got := ShortId("5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnb"); got != "5VERv8NM..." {
		t.Errorf("ShortId = %s", got)
	}
	if got := FormatTime(nil); got != "never" {
		t.Errorf("FormatTime(nil) = %s", got)
	}
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	if got := FormatTime(&at); got != "2026-01-02 03:04:05" {
		t.Errorf("FormatTime = %s", got)
	}
}
