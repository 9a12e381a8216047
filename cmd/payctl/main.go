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
	"encoding/json"
	"fmt"
	"os"

	"klytic-pay-go/internal/common"
	"klytic-pay-go/internal/config"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var Version = "dev"

var (
	userFlag  string
	emailFlag string
	jsonFlag  bool
)

func main() {
	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	rootCmd := &cobra.Command{
		Use:           "payctl",
		Short:         "Operate the Klytic Pay invoice and payroll engine",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&userFlag, "user", "u", "", "acting user id")
	rootCmd.PersistentFlags().StringVarP(&emailFlag, "email", "e", "", "acting user email (alternative to --user)")
	rootCmd.PersistentFlags().BoolVar(&jsonFlag, "json", false, "output as JSON")

	rootCmd.AddCommand(invoiceCmd())
	rootCmd.AddCommand(payrollCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(reconcileCmd())
	rootCmd.AddCommand(dashboardCmd())
	rootCmd.AddCommand(ratesCmd())
	rootCmd.AddCommand(healthCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		loggerCleanup()
		os.Exit(1)
	}
}

// withServices loads config, wires the engine and runs fn against it
func withServices(cmd *cobra.Command, fn func(ctx context.Context, services *common.Services) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	defer services.Close()

	return fn(ctx, services)
}

// resolveUser maps --user or --email to a user id
func resolveUser(ctx context.Context, services *common.Services) (string, error) {
	if userFlag != "" {
		return userFlag, nil
	}
	if emailFlag == "" {
		return "", fmt.Errorf("one of --user or --email is required")
	}
	user, err := services.DbService.GetUserByEmail(ctx, emailFlag)
	if err != nil {
		return "", fmt.Errorf("user %s: %w", emailFlag, err)
	}
	zap.L().Debug("Resolved user", zap.String("email", emailFlag), zap.String("id", user.Id))
	return user.Id, nil
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
