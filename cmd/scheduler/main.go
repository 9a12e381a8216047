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
	"os"
	"os/signal"
	"syscall"
	"time"

	"klytic-pay-go/internal/common"
	"klytic-pay-go/internal/config"
	"klytic-pay-go/internal/listener"

	"go.uber.org/zap"
)

func main() {
	skipPayroll := flag.Bool("no-payroll", false, "Only reconcile invoices, do not execute payroll transfers")
	quiet := flag.Bool("quiet", false, "Suppress console sweep output")
	flag.Parse()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	zap.L().Info("Starting Klytic Pay scheduler")

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	invoiceListener := listener.NewInvoiceListener(listener.InvoiceListenerConfig{
		Reconciler:      services.PaymentService,
		PollingInterval: cfg.Scheduler.ReconcileInterval,
		Quiet:           *quiet,
	})
	if err := invoiceListener.Start(ctx); err != nil {
		zap.L().Fatal("Failed to start invoice listener", zap.Error(err))
	}

	if !*skipPayroll {
		services.Scheduler.Start(ctx)
	}

	zap.L().Info("Scheduler running",
		zap.Duration("payroll_interval", cfg.Scheduler.PayrollInterval),
		zap.Duration("reconcile_interval", cfg.Scheduler.ReconcileInterval),
		zap.Bool("payroll_enabled", !*skipPayroll))
	zap.L().Info("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	zap.L().Info("Shutdown signal received, stopping loops...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		invoiceListener.Stop()
		if !*skipPayroll {
			services.Scheduler.Stop()
		}
		close(done)
	}()

	select {
	case <-done:
		zap.L().Info("All loops stopped gracefully")
	case <-shutdownCtx.Done():
		zap.L().Warn("Forced shutdown after timeout")
	}
}
