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

package chain

import (
	"context"
	"errors"
	"time"

	"github.com/gagliardetto/solana-go"
)

var (
	ErrReferenceNotFound   = errors.New("reference not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrAccountNotFound     = errors.New("account not found")
	ErrNotConfirmed        = errors.New("transaction not confirmed")
)

// SignatureInfo is one transaction that touched a watched address.
type SignatureInfo struct {
	Signature string
	Slot      uint64
	BlockTime *time.Time
}

// TransactionInfo is the confirmed view of a single transaction.
type TransactionInfo struct {
	Signature string
	Slot      uint64
	BlockTime *time.Time
	Failed    bool
}

// Ledger is the slice of the Solana RPC surface the engine depends on.
type Ledger interface {
	// FindReference returns the earliest successful transaction that includes
	// reference as an account key, or ErrReferenceNotFound.
	FindReference(ctx context.Context, reference solana.PublicKey) (*SignatureInfo, error)
	// GetTransaction returns ErrTransactionNotFound for unknown or unconfirmed signatures.
	GetTransaction(ctx context.Context, signature string) (*TransactionInfo, error)
	GetNativeBalance(ctx context.Context, account solana.PublicKey) (uint64, error)
	// GetTokenBalance returns the raw base-unit balance of a token account, or ErrAccountNotFound.
	GetTokenBalance(ctx context.Context, tokenAccount solana.PublicKey) (uint64, error)
	AccountExists(ctx context.Context, account solana.PublicKey) (bool, error)
	GetMintDecimals(ctx context.Context, mint solana.PublicKey) (uint8, error)
	// SendAndConfirm signs with payer, submits, and waits for confirmed commitment.
	SendAndConfirm(ctx context.Context, instructions []solana.Instruction, payer solana.PrivateKey) (*TransactionInfo, error)
	Health(ctx context.Context) error
}
