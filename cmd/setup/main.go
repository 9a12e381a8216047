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

package main

import (
	"context"
	"flag"
	"fmt"

	"klytic-pay-go/internal/common"
	"klytic-pay-go/internal/config"

	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	seed := flag.Bool("seed", false, "Create demo merchants with custodial wallets")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	// Opening the services creates the schema and validates the vault secret and chain endpoint
	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	if err := services.PaymentService.HealthCheck(ctx); err != nil {
		zap.L().Warn("Health check failed", zap.Error(err))
	}

	rates := services.Oracle.GetRates(ctx)
	zap.L().Info("Price oracle ready",
		zap.String("native_usd", rates.NativeUsd.String()),
		zap.String("token_usd", rates.TokenUsd.String()),
		zap.String("source", rates.Source))

	var createdCount int
	var failed []string
	if *seed {
		createdCount, failed = common.SeedDemoUsers(ctx, services.DbService, services.Custody, zap.L())
	}

	users, err := common.InitializeUsers(ctx, services.DbService, "", zap.L())
	if err != nil {
		zap.L().Fatal("Failed to read users from database", zap.Error(err))
	}

	common.PrintHeader("SETUP COMPLETE", common.DefaultWidth)
	fmt.Printf("Database:     %s\n", cfg.Database.Path)
	fmt.Printf("Network:      %s\n", cfg.Solana.Network)
	fmt.Printf("Token mint:   %s\n", services.Assets.Token.Mint)
	fmt.Printf("Users:        %d (%d created)\n", len(users), createdCount)
	if len(failed) > 0 {
		fmt.Printf("Failed:       %v\n", failed)
	}
	common.PrintSeparator("=", common.DefaultWidth)
}
