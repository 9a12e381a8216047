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
	"fmt"

	"klytic-pay-go/internal/common"

	"github.com/spf13/cobra"
)

func dashboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Summarize a user's invoices, payroll and wallet",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd, func(ctx context.Context, services *common.Services) error {
				userId, err := resolveUser(ctx, services)
				if err != nil {
					return err
				}
				summary, err := services.PaymentService.GetDashboardSummary(ctx, userId)
				if err != nil {
					return err
				}
				balances, err := services.PaymentService.GetWalletBalances(ctx, userId)
				if err != nil {
					return err
				}
				if jsonFlag {
					return printJSON(map[string]any{"summary": summary, "balances": balances})
				}

				common.PrintHeader("DASHBOARD", common.DefaultWidth)
				fmt.Printf("Wallet:     %s\n", balances.PublicKey)
				fmt.Printf("Balances:   %s %s (%s), %s %s (%s)\n",
					balances.Native, services.Assets.Native.Symbol, common.FormatUsd(balances.NativeUsd),
					balances.Token, services.Assets.Token.Symbol, common.FormatUsd(balances.TokenUsd))
				fmt.Printf("Invoices:   %d total, %d pending, %d paid (%s collected)\n",
					summary.Invoices.Total, summary.Invoices.Pending, summary.Invoices.Paid,
					common.FormatUsd(summary.Invoices.TotalPaidAmount))
				fmt.Printf("Payroll:    %d scheduled, %d processing\n",
					summary.Payroll.Scheduled, summary.Payroll.Processing)

				if len(summary.UpcomingPayrolls) > 0 {
					fmt.Println("\nUpcoming payouts:")
					for i, p := range summary.UpcomingPayrolls {
						fmt.Printf("%s %s  %-20s %s %s\n", common.BoxPrefix(i == len(summary.UpcomingPayrolls)-1),
							common.FormatTime(p.NextPaymentDate), p.PayeeName, common.FormatUsd(p.AmountUsd), p.Currency)
					}
				}
				if len(summary.RecentInvoices) > 0 {
					fmt.Println("\nRecent invoices:")
					for i, inv := range summary.RecentInvoices {
						fmt.Printf("%s %s  %-9s %s %s\n", common.BoxPrefix(i == len(summary.RecentInvoices)-1),
							common.ShortId(inv.Id), inv.Status, common.FormatUsd(inv.AmountUsd), inv.ClientEmail)
					}
				}
				common.PrintSeparator("=", common.DefaultWidth)
				return nil
			})
		},
	}
}

func ratesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rates",
		Short: "Show current USD rates",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd, func(ctx context.Context, services *common.Services) error {
				rates := services.Oracle.GetRates(ctx)
				if jsonFlag {
					return printJSON(rates)
				}
				fmt.Printf("%s: %s\n", services.Assets.Native.Symbol, common.FormatUsd(rates.NativeUsd))
				fmt.Printf("%s: %s\n", services.Assets.Token.Symbol, rates.TokenUsd.String())
				fmt.Printf("source: %s\n", rates.Source)
				return nil
			})
		},
	}
}

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check database and chain connectivity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd, func(ctx context.Context, services *common.Services) error {
				if err := services.PaymentService.HealthCheck(ctx); err != nil {
					return fmt.Errorf("unhealthy: %w", err)
				}
				fmt.Println("✓ healthy")
				return nil
			})
		},
	}
}
