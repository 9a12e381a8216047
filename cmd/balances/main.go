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
	"klytic-pay-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type balanceStats struct {
	totalUsers int
	totalUsd   decimal.Decimal
	failed     int
}

func printUserHeader(user common.UserInfo) {
	fmt.Printf("\n┌─ User: %s (%s)\n", user.Name, user.Email)
	fmt.Printf("│  ID: %s\n", user.Id)
	fmt.Printf("│  Wallet: %s\n", user.PublicKey)
	common.PrintBoxSeparator(78)
}

func printBalances(balances *models.WalletBalances, assets models.AssetPair, settled string) {
	fmt.Printf("%s %-8s: %20s (%s)\n", common.BoxPrefix(false),
		assets.Native.Symbol, balances.Native.String(), common.FormatUsd(balances.NativeUsd))
	fmt.Printf("%s %-8s: %20s (%s)\n", common.BoxPrefix(settled == ""),
		assets.Token.Symbol, balances.Token.String(), common.FormatUsd(balances.TokenUsd))
	if settled != "" {
		fmt.Printf("%s %-8s: %20s\n", common.BoxPrefix(true), "Settled", settled)
	}
}

func processUser(ctx context.Context, services *common.Services, user common.UserInfo) (*models.WalletBalances, error) {
	balances, err := services.PaymentService.GetWalletBalances(ctx, user.Id)
	if err != nil {
		return nil, err
	}

	// Net settled USD according to the settlement ledger mirror, when configured
	settled := ""
	if services.Formance != nil {
		net, err := services.Formance.GetSettledBalance(ctx, user.Id)
		if err != nil {
			zap.L().Warn("Failed to read settled balance", zap.String("user_id", user.Id), zap.Error(err))
		} else {
			settled = common.FormatUsd(net)
		}
	}

	printUserHeader(user)
	printBalances(balances, services.Assets, settled)
	return balances, nil
}

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	emailFlag := flag.String("email", "", "Filter by specific user email (optional)")
	flag.Parse()

	logger.Info("Starting balance query")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	users, err := common.InitializeUsers(ctx, services.DbService, *emailFlag, logger)
	if err != nil {
		logger.Fatal("Failed to initialize users", zap.Error(err))
	}

	common.PrintHeader("ON-CHAIN WALLET BALANCES", common.DefaultWidth)

	stats := balanceStats{}
	for _, user := range users {
		stats.totalUsers++
		balances, err := processUser(ctx, services, user)
		if err != nil {
			stats.failed++
			logger.Error("Failed to process user",
				zap.String("user_id", user.Id),
				zap.String("user_name", user.Name),
				zap.Error(err))
			continue
		}
		stats.totalUsd = stats.totalUsd.Add(balances.NativeUsd).Add(balances.TokenUsd)
	}

	summary := fmt.Sprintf("SUMMARY: %d users, %s held in custody (%d failed)",
		stats.totalUsers, common.FormatUsd(stats.totalUsd), stats.failed)
	common.PrintFooter(summary, common.DefaultWidth)

	logger.Info("Balance query completed",
		zap.Int("users_queried", stats.totalUsers),
		zap.Int("failed", stats.failed))
}
