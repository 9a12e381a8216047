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

	"klytic-pay-go/internal/api"
	"klytic-pay-go/internal/common"
	"klytic-pay-go/internal/models"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func payrollCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "payroll",
		Short: "Schedule and run outbound payroll transfers",
	}
	cmd.AddCommand(payrollCreateCmd())
	cmd.AddCommand(payrollListCmd())
	cmd.AddCommand(payrollCancelCmd())
	cmd.AddCommand(payrollRunCmd())
	return cmd
}

func payrollCreateCmd() *cobra.Command {
	var payee, wallet, amount, currency, frequency string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Schedule a one-time or weekly payout",
		Long: `Schedule a payout from the user's custodial wallet. The USD amount is converted
at creation time; the first run is one day (oneTime) or seven days (weekly) out.

Examples:
  payctl payroll create -e alice@example.com --payee Dev --wallet <address> --amount 300 --currency SOL --frequency weekly`,
		RunE: func(cmd *cobra.Command, args []string) error {
			amountUsd, err := decimal.NewFromString(amount)
			if err != nil {
				return fmt.Errorf("invalid --amount %q: %w", amount, err)
			}

			return withServices(cmd, func(ctx context.Context, services *common.Services) error {
				userId, err := resolveUser(ctx, services)
				if err != nil {
					return err
				}

				schedule, err := services.PaymentService.CreatePayrollSchedule(ctx, api.CreatePayrollParams{
					UserId:        userId,
					PayeeName:     payee,
					WalletAddress: wallet,
					AmountUsd:     amountUsd,
					Currency:      currency,
					Frequency:     frequency,
				})
				if err != nil {
					return err
				}
				if jsonFlag {
					return printJSON(schedule)
				}
				fmt.Printf("✓ Payroll %s scheduled for %s\n", schedule.Id, common.FormatTime(schedule.NextPaymentDate))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&payee, "payee", "", "payee name (required)")
	cmd.Flags().StringVar(&wallet, "wallet", "", "payee wallet address (required)")
	cmd.Flags().StringVar(&amount, "amount", "", "amount in USD (required)")
	cmd.Flags().StringVar(&currency, "currency", models.CurrencyUSDC, "SOL or USDC")
	cmd.Flags().StringVar(&frequency, "frequency", models.FrequencyOneTime, "oneTime or weekly")
	_ = cmd.MarkFlagRequired("payee")
	_ = cmd.MarkFlagRequired("wallet")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func payrollListCmd() *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a user's payroll schedules",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd, func(ctx context.Context, services *common.Services) error {
				userId, err := resolveUser(ctx, services)
				if err != nil {
					return err
				}
				schedules, err := services.PaymentService.ListPayrollSchedules(ctx, userId, status)
				if err != nil {
					return err
				}
				if jsonFlag {
					return printJSON(schedules)
				}

				common.PrintHeader(fmt.Sprintf("PAYROLL SCHEDULES (%d)", len(schedules)), common.WideWidth)
				for i, s := range schedules {
					isLast := i == len(schedules)-1
					amount, _ := s.TransferAmount()
					fmt.Printf("%s %-11s %-10s %-8s %-20s %10s → %s %s\n",
						common.BoxPrefix(isLast), common.ShortId(s.Id), s.Status, s.Frequency,
						s.PayeeName, common.FormatUsd(s.AmountUsd), amount.String(), s.Currency)
					fmt.Printf("%s   next: %s  last: %s  wallet: %s\n",
						common.BoxDetailPrefix(isLast), common.FormatTime(s.NextPaymentDate),
						common.FormatTime(s.LastPaymentDate), s.PayeeWalletAddress)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "filter by status (scheduled, processing, completed, cancelled)")
	return cmd
}

func payrollCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel [payroll-id]",
		Short: "Cancel a scheduled payout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd, func(ctx context.Context, services *common.Services) error {
				userId, err := resolveUser(ctx, services)
				if err != nil {
					return err
				}
				schedule, err := services.PaymentService.CancelPayrollSchedule(ctx, userId, args[0])
				if err != nil {
					return err
				}
				if jsonFlag {
					return printJSON(schedule)
				}
				fmt.Printf("✓ Payroll %s cancelled\n", schedule.Id)
				return nil
			})
		},
	}
}

func payrollRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Execute every due payroll schedule once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd, func(ctx context.Context, services *common.Services) error {
				summary, err := services.PaymentService.RunDuePayrolls(ctx)
				if err != nil {
					return err
				}
				if jsonFlag {
					return printJSON(summary)
				}
				fmt.Printf("Due %d, succeeded %d, failed %d, skipped %d\n",
					summary.Due, summary.Succeeded, summary.Failed, summary.Skipped)
				return nil
			})
		},
	}
}
