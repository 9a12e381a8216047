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

package common

import (
	"context"
	"fmt"
	"log"
	"strings"

	"klytic-pay-go/internal/api"
	"klytic-pay-go/internal/chain"
	"klytic-pay-go/internal/custody"
	"klytic-pay-go/internal/database"
	"klytic-pay-go/internal/formance"
	"klytic-pay-go/internal/models"
	"klytic-pay-go/internal/payments"
	"klytic-pay-go/internal/payroll"
	"klytic-pay-go/internal/prices"
	"klytic-pay-go/internal/settlement"
	"klytic-pay-go/internal/transfer"
	"klytic-pay-go/internal/vault"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// init loads environment variables from .env file if it exists
func init() {
	// Environment variables can be set via other means (shell export, docker, etc.)
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
		log.Println("Make sure to set environment variables via export or other means")
	} else {
		log.Println("✓ Loaded environment variables from .env file")
	}
}

type Services struct {
	DbService      *database.Service
	Custody        *custody.Service
	Ledger         *chain.RpcLedger
	Oracle         *prices.Oracle
	RateCache      *prices.RedisRateCache
	Formance       *formance.Service
	Recorder       *settlement.Recorder
	Scheduler      *payroll.Scheduler
	PaymentService *api.PaymentService
	Assets         models.AssetPair
}

func InitializeLogger() (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

// InitializeServices wires the full engine: store, custody, chain adapter,
// price oracle, settlement recorder, payroll scheduler and the payment service.
func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	assets, err := LoadAssetPair(cfg.Solana.AssetsFile, cfg.Solana.UsdcMint)
	if err != nil {
		return nil, err
	}

	keyVault, err := vault.NewFromBase64(cfg.Vault.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("unable to initialize key vault: %w", err)
	}

	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	services := &Services{DbService: dbService, Assets: assets}

	zap.L().Info("Connecting to Solana RPC",
		zap.String("network", cfg.Solana.Network),
		zap.String("rpc_url", cfg.Solana.RpcUrl))
	ledger, err := chain.NewRpcLedger(cfg.Solana.RpcUrl, cfg.Solana.ConfirmTimeout)
	if err != nil {
		services.Close()
		return nil, err
	}
	services.Ledger = ledger

	feed, err := prices.NewCoinGeckoFeed(cfg.Prices.FeedUrl, cfg.Prices.RequestTimeout)
	if err != nil {
		services.Close()
		return nil, err
	}

	var rateCache prices.RateCache
	if cfg.Redis.Addr != "" {
		services.RateCache = prices.NewRedisRateCache(cfg.Redis)
		if err := services.RateCache.Ping(ctx); err != nil {
			zap.L().Warn("Redis rate cache unreachable, continuing with snapshots only",
				zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		rateCache = services.RateCache
	}
	services.Oracle = prices.NewOracle(dbService, feed, rateCache, assets, cfg.Prices.FreshnessWindow)

	var mirror settlement.Mirror
	if cfg.Formance.StackURL != "" {
		formanceService, err := formance.NewService(ctx, cfg.Formance)
		if err != nil {
			services.Close()
			return nil, fmt.Errorf("unable to initialize settlement ledger: %w", err)
		}
		services.Formance = formanceService
		mirror = formanceService
	}
	services.Recorder = settlement.NewRecorder(dbService, mirror)

	services.Custody = custody.NewService(keyVault, dbService)
	if cfg.Database.CreateDummyUsers {
		created, failed := SeedDemoUsers(ctx, dbService, services.Custody, zap.L())
		zap.L().Info("Demo users seeded", zap.Int("created", created), zap.Strings("failed", failed))
	}

	services.Scheduler = payroll.NewScheduler(payroll.SchedulerConfig{
		Store:     dbService,
		Signers:   services.Custody,
		Transfers: transfer.NewExecutor(ledger),
		Recorder:  services.Recorder,
		Prices:    services.Oracle,
		Assets:    assets,
		Interval:  cfg.Scheduler.PayrollInterval,
	})

	services.PaymentService = api.NewPaymentService(api.PaymentServiceConfig{
		Store:             dbService,
		Custody:           services.Custody,
		Prices:            services.Oracle,
		Monitor:           payments.NewMonitor(ledger),
		Recorder:          services.Recorder,
		Payroll:           services.Scheduler,
		Ledger:            ledger,
		Assets:            assets,
		MaxActivePayrolls: cfg.Scheduler.MaxActivePayrolls,
		StatusTimeout:     cfg.Scheduler.StatusTimeout,
		ReconcileTimeout:  cfg.Scheduler.ReconcileTimeout,
	})

	zap.L().Info("Services initialized",
		zap.String("native", assets.Native.Symbol),
		zap.String("token", assets.Token.Symbol),
		zap.String("token_mint", assets.Token.Mint),
		zap.Bool("rate_cache", rateCache != nil),
		zap.Bool("settlement_mirror", mirror != nil))

	return services, nil
}

// InitializeDatabaseOnly initializes just the database service without chain access
// Useful for read-only operations like listing invoices
func InitializeDatabaseOnly(ctx context.Context, cfg *models.Config) (*database.Service, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	return dbService, nil
}

func (cs *Services) Close() {
	if cs.Formance != nil {
		cs.Formance.Close()
	}
	if cs.RateCache != nil {
		if err := cs.RateCache.Close(); err != nil {
			zap.L().Warn("Failed to close rate cache", zap.Error(err))
		}
	}
	if cs.Ledger != nil {
		cs.Ledger.Close()
	}
	if cs.DbService != nil {
		cs.DbService.Close()
	}
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
