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

package database

const (
	// User queries
	queryGetActiveUsers = `
		SELECT id, name, email, created_at, updated_at
		FROM users
		WHERE active = 1
		ORDER BY created_at`

	queryInsertUserWithWallet = `
		INSERT OR IGNORE INTO users (id, name, email, wallet_public_key, encrypted_wallet_private_key)
		VALUES (?, ?, ?, ?, ?)`

	queryGetUserById = `
		SELECT id, name, email, created_at, updated_at
		FROM users
		WHERE id = ? AND active = 1`

	queryGetUserByEmail = `
		SELECT id, name, email, created_at, updated_at
		FROM users
		WHERE email = ? AND active = 1`

	queryGetUserWallet = `
		SELECT id, COALESCE(wallet_public_key, ''), COALESCE(encrypted_wallet_private_key, '')
		FROM users
		WHERE id = ?`

	// Price queries
	queryGetPriceSnapshot = `
		SELECT token, price_usd, source, updated_at
		FROM price_feeds
		WHERE token = ?`

	queryUpsertPriceSnapshot = `
		INSERT INTO price_feeds (token, price_usd, source, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (token) DO UPDATE
		SET price_usd = excluded.price_usd, source = excluded.source, updated_at = excluded.updated_at`

	// Invoice queries
	invoiceColumns = `
		id, user_id, client_email, amount_usd, amount_sol, amount_usdc, currency,
		COALESCE(description, ''), reference_public_key, status, COALESCE(transaction_hash, ''),
		paid_at, created_at, updated_at`

	queryInsertInvoice = `
		INSERT INTO invoices (
			id, user_id, client_email, amount_usd, amount_sol, amount_usdc, currency,
			description, reference_public_key, status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 'pending', ?, ?)`

	queryGetInvoice = `
		SELECT` + invoiceColumns + `
		FROM invoices
		WHERE id = ? AND user_id = ?`

	queryGetInvoiceById = `
		SELECT` + invoiceColumns + `
		FROM invoices
		WHERE id = ?`

	queryGetInvoiceByReference = `
		SELECT` + invoiceColumns + `
		FROM invoices
		WHERE reference_public_key = ?`

	queryGetInvoiceByTransactionHash = `
		SELECT` + invoiceColumns + `
		FROM invoices
		WHERE transaction_hash = ?`

	queryListInvoices = `
		SELECT` + invoiceColumns + `
		FROM invoices
		WHERE user_id = ? AND (? = '' OR status = ?)
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?`

	queryListPendingInvoices = `
		SELECT` + invoiceColumns + `
		FROM invoices
		WHERE status = 'pending'
		ORDER BY created_at
		LIMIT ?`

	queryMarkInvoicePaid = `
		UPDATE invoices
		SET status = 'paid', transaction_hash = ?, paid_at = ?, updated_at = ?
		WHERE id = ? AND status = 'pending'`

	queryCancelInvoice = `
		UPDATE invoices
		SET status = 'cancelled', updated_at = ?
		WHERE id = ? AND user_id = ? AND status = 'pending'`

	queryInvoiceStats = `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'paid' THEN 1 ELSE 0 END), 0)
		FROM invoices
		WHERE user_id = ?`

	queryPaidInvoiceAmounts = `
		SELECT amount_usd FROM invoices WHERE user_id = ? AND status = 'paid'`

	// Payroll queries
	payrollColumns = `
		id, user_id, payee_name, payee_wallet_address, amount_usd, amount_sol, amount_usdc,
		currency, frequency, next_payment_date, last_payment_date, status, created_at, updated_at`

	queryCountActivePayrolls = `
		SELECT COUNT(*) FROM payroll
		WHERE user_id = ? AND status IN ('scheduled', 'processing')`

	queryInsertPayroll = `
		INSERT INTO payroll (
			id, user_id, payee_name, payee_wallet_address, amount_usd, amount_sol, amount_usdc,
			currency, frequency, next_payment_date, status, created_at, updated_at
		)
		SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'scheduled', ?, ?
		WHERE (
			SELECT COUNT(*) FROM payroll
			WHERE user_id = ? AND status IN ('scheduled', 'processing')
		) < ?`

	queryGetPayroll = `
		SELECT` + payrollColumns + `
		FROM payroll
		WHERE id = ? AND user_id = ?`

	queryGetPayrollById = `
		SELECT` + payrollColumns + `
		FROM payroll
		WHERE id = ?`

	queryListPayrolls = `
		SELECT` + payrollColumns + `
		FROM payroll
		WHERE user_id = ? AND (? = '' OR status = ?)
		ORDER BY created_at DESC`

	queryListDuePayrolls = `
		SELECT` + payrollColumns + `
		FROM payroll
		WHERE status = 'scheduled'
		  AND next_payment_date IS NOT NULL
		  AND next_payment_date <= ?
		ORDER BY next_payment_date`

	queryListUpcomingPayrolls = `
		SELECT` + payrollColumns + `
		FROM payroll
		WHERE user_id = ? AND status = 'scheduled' AND next_payment_date IS NOT NULL
		ORDER BY next_payment_date
		LIMIT ?`

	queryClaimPayroll = `
		UPDATE payroll
		SET status = 'processing', updated_at = ?
		WHERE id = ? AND status = 'scheduled'
		  AND next_payment_date IS NOT NULL
		  AND next_payment_date <= ?`

	queryCompletePayrollRecurring = `
		UPDATE payroll
		SET status = 'scheduled', last_payment_date = ?, next_payment_date = ?, updated_at = ?
		WHERE id = ? AND status = 'processing'`

	queryCompletePayrollOneTime = `
		UPDATE payroll
		SET status = 'completed', last_payment_date = ?, next_payment_date = NULL, updated_at = ?
		WHERE id = ? AND status = 'processing'`

	queryReleasePayroll = `
		UPDATE payroll
		SET status = 'scheduled', updated_at = ?
		WHERE id = ? AND status = 'processing'`

	queryCancelPayroll = `
		UPDATE payroll
		SET status = 'cancelled', next_payment_date = NULL, updated_at = ?
		WHERE id = ? AND user_id = ? AND status = 'scheduled'`

	queryPayrollStats = `
		SELECT
			COALESCE(SUM(CASE WHEN status = 'scheduled' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'processing' THEN 1 ELSE 0 END), 0)
		FROM payroll
		WHERE user_id = ?`

	// Settlement queries
	settlementColumns = `
		id, COALESCE(invoice_id, ''), COALESCE(payroll_id, ''), transaction_hash, amount_usd,
		currency, status, block_time, created_at, updated_at`

	queryUpsertSettlement = `
		INSERT INTO payments (
			id, invoice_id, payroll_id, transaction_hash, amount_usd, currency, status, block_time,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, 'confirmed', ?, ?, ?)
		ON CONFLICT (transaction_hash) DO UPDATE
		SET status = 'confirmed',
		    amount_usd = excluded.amount_usd,
		    currency = excluded.currency,
		    block_time = excluded.block_time,
		    invoice_id = COALESCE(excluded.invoice_id, payments.invoice_id),
		    payroll_id = COALESCE(excluded.payroll_id, payments.payroll_id),
		    updated_at = excluded.updated_at
		WHERE (excluded.invoice_id IS NULL OR payments.invoice_id IS NULL OR excluded.invoice_id = payments.invoice_id)
		  AND (excluded.payroll_id IS NULL OR payments.payroll_id IS NULL OR excluded.payroll_id = payments.payroll_id)
		  AND (COALESCE(excluded.invoice_id, payments.invoice_id) IS NULL
		       OR COALESCE(excluded.payroll_id, payments.payroll_id) IS NULL)`

	queryGetSettlementByHash = `
		SELECT` + settlementColumns + `
		FROM payments
		WHERE transaction_hash = ?`
)
