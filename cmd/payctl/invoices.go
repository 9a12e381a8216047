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

func invoiceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invoice",
		Short: "Create and manage invoices",
	}
	cmd.AddCommand(invoiceCreateCmd())
	cmd.AddCommand(invoiceGetCmd())
	cmd.AddCommand(invoiceListCmd())
	cmd.AddCommand(invoiceCancelCmd())
	return cmd
}

func invoiceCreateCmd() *cobra.Command {
	var client, amount, currency, description string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an invoice and print its payment request",
		Long: `Create an invoice payable to the user's custodial wallet.

Examples:
  payctl invoice create -e alice@example.com --client bob@example.com --amount 100
  payctl invoice create -u <id> --client bob@example.com --amount 25 --currency USDC`,
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

				created, err := services.PaymentService.CreateInvoice(ctx, api.CreateInvoiceParams{
					UserId:      userId,
					ClientEmail: client,
					AmountUsd:   amountUsd,
					Currency:    currency,
					Description: description,
				})
				if err != nil {
					return err
				}
				if jsonFlag {
					return printJSON(created)
				}

				printInvoice(created.Invoice)
				fmt.Printf("\nPayment request:\n  %s\n", created.QrCode.Url)
				if services.PaymentService.RequiresFiatBridge(currency) {
					fmt.Println("\nNote: USD is not an on-chain asset; the payer settles in SOL or USDC at the quoted amounts.")
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&client, "client", "", "payer email (required)")
	cmd.Flags().StringVar(&amount, "amount", "", "amount in USD (required)")
	cmd.Flags().StringVar(&currency, "currency", models.CurrencyUSD, "USD, SOL or USDC")
	cmd.Flags().StringVar(&description, "description", "", "free-form description")
	_ = cmd.MarkFlagRequired("client")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func invoiceGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get [invoice-id]",
		Short: "Show one invoice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd, func(ctx context.Context, services *common.Services) error {
				userId, err := resolveUser(ctx, services)
				if err != nil {
					return err
				}
				invoice, err := services.PaymentService.GetInvoice(ctx, userId, args[0])
				if err != nil {
					return err
				}
				if jsonFlag {
					return printJSON(invoice)
				}
				printInvoice(invoice)
				return nil
			})
		},
	}
}

func invoiceListCmd() *cobra.Command {
	var status string
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a user's invoices, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd, func(ctx context.Context, services *common.Services) error {
				userId, err := resolveUser(ctx, services)
				if err != nil {
					return err
				}
				invoices, err := services.PaymentService.ListInvoices(ctx, userId, status, limit, offset)
				if err != nil {
					return err
				}
				if jsonFlag {
					return printJSON(invoices)
				}

				common.PrintHeader(fmt.Sprintf("INVOICES (%d)", len(invoices)), common.WideWidth)
				for i, invoice := range invoices {
					fmt.Printf("%s %-11s %-9s %10s %-5s %-28s %s\n",
						common.BoxPrefix(i == len(invoices)-1),
						common.ShortId(invoice.Id), invoice.Status, common.FormatUsd(invoice.AmountUsd),
						invoice.Currency, invoice.ClientEmail, invoice.CreatedAt.Format("2006-01-02 15:04"))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "filter by status (pending, paid, cancelled)")
	cmd.Flags().IntVarP(&limit, "limit", "l", 50, "maximum results")
	cmd.Flags().IntVar(&offset, "offset", 0, "results to skip")
	return cmd
}

func invoiceCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel [invoice-id]",
		Short: "Cancel a pending invoice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd, func(ctx context.Context, services *common.Services) error {
				userId, err := resolveUser(ctx, services)
				if err != nil {
					return err
				}
				invoice, err := services.PaymentService.CancelInvoice(ctx, userId, args[0])
				if err != nil {
					return err
				}
				if jsonFlag {
					return printJSON(invoice)
				}
				fmt.Printf("✓ Invoice %s cancelled\n", invoice.Id)
				return nil
			})
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [reference-or-signature]",
		Short: "Check payment status by invoice reference key or transaction signature",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd, func(ctx context.Context, services *common.Services) error {
				result, err := services.PaymentService.CheckPaymentStatus(ctx, args[0])
				if err != nil {
					return err
				}
				if jsonFlag {
					return printJSON(result)
				}

				if !result.Confirmed {
					fmt.Println("✗ Not confirmed")
					return nil
				}
				fmt.Printf("✓ Confirmed %s at %s\n", result.TransactionId, common.FormatTime(result.BlockTime))
				if result.InvoiceId != "" {
					fmt.Printf("  Invoice: %s\n", result.InvoiceId)
				}
				return nil
			})
		},
	}
}

func reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Sweep all pending invoices once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd, func(ctx context.Context, services *common.Services) error {
				summary, err := services.PaymentService.ReconcilePendingInvoices(ctx)
				if err != nil {
					return err
				}
				if jsonFlag {
					return printJSON(summary)
				}
				fmt.Printf("Checked %d, confirmed %d, failed %d\n", summary.Checked, summary.Confirmed, summary.Failed)
				return nil
			})
		},
	}
}

func printInvoice(invoice *models.Invoice) {
	common.PrintHeader("INVOICE "+invoice.Id, common.DefaultWidth)
	fmt.Printf("Status:     %s\n", invoice.Status)
	fmt.Printf("Client:     %s\n", invoice.ClientEmail)
	fmt.Printf("Amount:     %s (%s)\n", common.FormatUsd(invoice.AmountUsd), invoice.Currency)
	fmt.Printf("SOL:        %s\n", common.FormatOptional(invoice.AmountSol, models.CurrencySOL))
	fmt.Printf("USDC:       %s\n", common.FormatOptional(invoice.AmountUsdc, models.CurrencyUSDC))
	fmt.Printf("Reference:  %s\n", invoice.ReferencePublicKey)
	if invoice.TransactionHash != "" {
		fmt.Printf("Tx:         %s\n", invoice.TransactionHash)
		fmt.Printf("Paid at:    %s\n", common.FormatTime(invoice.PaidAt))
	}
	common.PrintSeparator("=", common.DefaultWidth)
}
