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

func printUser(user common.UserInfo, isLast bool) {
	symbol := common.BoxPrefix(isLast)
	wallet := user.PublicKey
	if wallet == "" {
		wallet = "(no custodial wallet)"
	}
	fmt.Printf("%s %-28s %-32s → %s\n", symbol, user.Name, user.Email, wallet)

	detailSymbol := common.BoxDetailPrefix(isLast)
	fmt.Printf("%s   ID: %s\n", detailSymbol, user.Id)
}

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	emailFlag := flag.String("email", "", "Filter by specific user email (optional)")
	flag.Parse()

	logger.Info("Starting wallet query")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	// Read-only: no chain access needed
	logger.Info("Connecting to database", zap.String("path", cfg.Database.Path))
	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	users, err := common.InitializeUsers(ctx, dbService, *emailFlag, logger)
	if err != nil {
		logger.Fatal("Failed to initialize users", zap.Error(err))
	}

	common.PrintHeader("CUSTODIAL WALLETS REPORT", common.WideWidth)

	withWallet := 0
	for i, user := range users {
		printUser(user, i == len(users)-1)
		if user.PublicKey != "" {
			withWallet++
		}
	}

	summary := fmt.Sprintf("SUMMARY: %d of %d users hold a custodial wallet", withWallet, len(users))
	common.PrintFooter(summary, common.WideWidth)

	logger.Info("Wallet query completed",
		zap.Int("users_queried", len(users)),
		zap.Int("users_with_wallets", withWallet))
}
