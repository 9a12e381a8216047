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

package listener

import (
	"context"
	"fmt"
	"time"

	"klytic-pay-go/internal/models"

	"go.uber.org/zap"
)

// DefaultPollingInterval is the pause between background sweeps.
const DefaultPollingInterval = 30 * time.Second

// Reconciler settles pending invoices whose payments have confirmed on chain.
type Reconciler interface {
	ReconcilePendingInvoices(ctx context.Context) (*models.ReconcileSummary, error)
}

// InvoiceListenerConfig contains configuration for InvoiceListener
type InvoiceListenerConfig struct {
	Reconciler      Reconciler
	PollingInterval time.Duration
	Quiet           bool
}

// InvoiceListener periodically sweeps pending invoices so that payments made
// while nobody was checking status still settle.
type InvoiceListener struct {
	reconciler      Reconciler
	pollingInterval time.Duration
	quiet           bool

	// Control channels
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewInvoiceListener creates a new invoice listener
func NewInvoiceListener(cfg InvoiceListenerConfig) *InvoiceListener {
	interval := cfg.PollingInterval
	if interval <= 0 {
		interval = DefaultPollingInterval
	}
	return &InvoiceListener{
		reconciler:      cfg.Reconciler,
		pollingInterval: interval,
		quiet:           cfg.Quiet,
		stopChan:        make(chan struct{}),
		doneChan:        make(chan struct{}),
	}
}

// Start runs a recovery sweep and then begins polling in the background
func (l *InvoiceListener) Start(ctx context.Context) error {
	zap.L().Info("Starting invoice listener")

	if l.reconciler == nil {
		return fmt.Errorf("no reconciler configured")
	}

	// Catch payments that confirmed while the listener was down
	if _, err := l.reconciler.ReconcilePendingInvoices(ctx); err != nil {
		zap.L().Error("Startup recovery failed", zap.Error(err))
		return fmt.Errorf("startup recovery failed: %w", err)
	}

	go l.pollLoop(ctx)

	zap.L().Info("Invoice listener started successfully",
		zap.Duration("polling_interval", l.pollingInterval))
	return nil
}

// Stop gracefully stops the invoice listener
func (l *InvoiceListener) Stop() {
	zap.L().Info("Stopping invoice listener")
	close(l.stopChan)
	<-l.doneChan
	zap.L().Info("Invoice listener stopped")
}

func (l *InvoiceListener) pollLoop(ctx context.Context) {
	defer close(l.doneChan)

	ticker := time.NewTicker(l.pollingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.sweep(ctx)
		case <-l.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// ANSI color helpers for console output.
const (
	colorReset = "\033[0m"
	colorRed   = "\033[31m"
	colorGreen = "\033[32m"
	colorCyan  = "\033[36m"
	colorGray  = "\033[90m"
)

func (l *InvoiceListener) sweep(ctx context.Context) {
	l.printf("\n%s[%s] Reconciling pending invoices%s\n", colorCyan, time.Now().Format("15:04:05"), colorReset)

	summary, err := l.reconciler.ReconcilePendingInvoices(ctx)
	if err != nil {
		l.printf("  %s✗ %s%s\n", colorRed, err, colorReset)
		zap.L().Error("Failed to reconcile invoices", zap.Error(err))
		return
	}

	switch {
	case summary.Checked == 0:
		l.printf("  %s- no pending invoices%s\n", colorGray, colorReset)
	case summary.Failed > 0:
		l.printf("  %s✗ %d checked, %d confirmed, %d failed%s\n",
			colorRed, summary.Checked, summary.Confirmed, summary.Failed, colorReset)
	default:
		l.printf("  %s✓ %d checked, %d confirmed%s\n",
			colorGreen, summary.Checked, summary.Confirmed, colorReset)
	}
}

func (l *InvoiceListener) printf(format string, args ...any) {
	if l.quiet {
		return
	}
	fmt.Printf(format, args...)
}
