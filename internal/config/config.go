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

package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"time"

	"klytic-pay-go/internal/models"

	"github.com/gagliardetto/solana-go/rpc"
)

const encryptionKeySize = 32

func Load() (*models.Config, error) {
	encryptionKey, err := requireEncryptionKey("ENCRYPTION_KEY")
	if err != nil {
		return nil, err
	}

	network := getEnvString("SOLANA_NETWORK", "devnet")
	rpcUrl, usdcMint, err := networkDefaults(network)
	if err != nil {
		return nil, err
	}

	connMaxLifetime, err := getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	connMaxIdleTime, err := getEnvDuration("DB_CONN_MAX_IDLE_TIME", 30*time.Second)
	if err != nil {
		return nil, err
	}

	pingTimeout, err := getEnvDuration("DB_PING_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	confirmTimeout, err := getEnvDuration("SOLANA_CONFIRM_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, err
	}

	freshnessWindow, err := getEnvDuration("PRICE_FRESHNESS_WINDOW", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	feedTimeout, err := getEnvDuration("PRICE_FEED_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	payrollInterval, err := getEnvDuration("PAYROLL_INTERVAL", time.Hour)
	if err != nil {
		return nil, err
	}

	reconcileInterval, err := getEnvDuration("RECONCILE_INTERVAL", 30*time.Second)
	if err != nil {
		return nil, err
	}

	reconcileTimeout, err := getEnvDuration("RECONCILE_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}

	statusTimeout, err := getEnvDuration("STATUS_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	return &models.Config{
		Database: models.DatabaseConfig{
			Path:             getEnvString("DATABASE_PATH", "klytic.db"),
			MaxOpenConns:     getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:     getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime:  connMaxLifetime,
			ConnMaxIdleTime:  connMaxIdleTime,
			PingTimeout:      pingTimeout,
			CreateDummyUsers: getEnvBool("CREATE_DUMMY_USERS", false),
		},
		Vault: models.VaultConfig{
			EncryptionKey: encryptionKey,
		},
		Solana: models.SolanaConfig{
			RpcUrl:         getEnvString("SOLANA_RPC_URL", rpcUrl),
			Network:        network,
			UsdcMint:       getEnvString("SOLANA_USDC_MINT", usdcMint),
			ConfirmTimeout: confirmTimeout,
			AssetsFile:     getEnvString("ASSETS_FILE", ""),
		},
		Prices: models.PriceConfig{
			FeedUrl:         getEnvString("PRICE_FEED_API_URL", ""),
			FreshnessWindow: freshnessWindow,
			RequestTimeout:  feedTimeout,
		},
		Redis: models.RedisConfig{
			Addr:     getEnvString("REDIS_ADDR", ""),
			Password: getEnvString("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Scheduler: models.SchedulerConfig{
			PayrollInterval:   payrollInterval,
			ReconcileInterval: reconcileInterval,
			ReconcileTimeout:  reconcileTimeout,
			StatusTimeout:     statusTimeout,
			MaxActivePayrolls: getEnvInt("MAX_ACTIVE_PAYROLLS", 5),
		},
		Formance: models.FormanceConfig{
			StackURL:     getEnvString("FORMANCE_STACK_URL", ""),
			ClientID:     getEnvString("FORMANCE_CLIENT_ID", ""),
			ClientSecret: getEnvString("FORMANCE_CLIENT_SECRET", ""),
			LedgerName:   getEnvString("FORMANCE_LEDGER", ""),
		},
	}, nil
}

// requireEncryptionKey refuses to start without a base64 secret that decodes to 32 bytes
func requireEncryptionKey(key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	secret, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return "", fmt.Errorf("%s must be base64: %w", key, err)
	}
	if len(secret) != encryptionKeySize {
		return "", fmt.Errorf("%s must decode to %d bytes, got %d", key, encryptionKeySize, len(secret))
	}
	return value, nil
}

func networkDefaults(network string) (rpcUrl, usdcMint string, err error) {
	switch network {
	case "devnet":
		return rpc.DevNet.RPC, models.DevnetUsdcMint, nil
	case "testnet":
		return rpc.TestNet.RPC, models.DevnetUsdcMint, nil
	case "mainnet-beta":
		return rpc.MainNetBeta.RPC, models.DefaultUsdcMint, nil
	}
	return "", "", fmt.Errorf("invalid SOLANA_NETWORK %q: expected devnet, testnet or mainnet-beta", network)
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
