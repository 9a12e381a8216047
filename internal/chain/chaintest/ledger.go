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

// Package chaintest provides an in-memory chain.Ledger for engine tests.
package chaintest

import (
	"context"
	"sync"
	"time"

	"klytic-pay-go/internal/chain"

	"github.com/gagliardetto/solana-go"
)

// Submission is one SendAndConfirm call as seen by the fake.
type Submission struct {
	Payer        solana.PublicKey
	Instructions []solana.Instruction
	Signature    string
}

type Ledger struct {
	mu sync.Mutex

	FindReferenceFunc  func(ctx context.Context, reference solana.PublicKey) (*chain.SignatureInfo, error)
	GetTransactionFunc func(ctx context.Context, signature string) (*chain.TransactionInfo, error)

	NativeBalances map[solana.PublicKey]uint64
	TokenBalances  map[solana.PublicKey]uint64
	Accounts       map[solana.PublicKey]bool
	MintDecimals   map[solana.PublicKey]uint8

	SendErr   error
	BlockTime time.Time
	HealthErr error

	submissions []Submission
}

var _ chain.Ledger = (*Ledger)(nil)

func NewLedger() *Ledger {
	return &Ledger{
		NativeBalances: make(map[solana.PublicKey]uint64),
		TokenBalances:  make(map[solana.PublicKey]uint64),
		Accounts:       make(map[solana.PublicKey]bool),
		MintDecimals:   make(map[solana.PublicKey]uint8),
		BlockTime:      time.Unix(1700000000, 0).UTC(),
	}
}

func (l *Ledger) FindReference(ctx context.Context, reference solana.PublicKey) (*chain.SignatureInfo, error) {
	if l.FindReferenceFunc == nil {
		return nil, chain.ErrReferenceNotFound
	}
	return l.FindReferenceFunc(ctx, reference)
}

func (l *Ledger) GetTransaction(ctx context.Context, signature string) (*chain.TransactionInfo, error) {
	if l.GetTransactionFunc != nil {
		return l.GetTransactionFunc(ctx, signature)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, s := range l.submissions {
		if s.Signature == signature {
			blockTime := l.BlockTime
			return &chain.TransactionInfo{Signature: signature, BlockTime: &blockTime}, nil
		}
	}
	return nil, chain.ErrTransactionNotFound
}

func (l *Ledger) GetNativeBalance(_ context.Context, account solana.PublicKey) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.NativeBalances[account], nil
}

func (l *Ledger) GetTokenBalance(_ context.Context, tokenAccount solana.PublicKey) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	balance, ok := l.TokenBalances[tokenAccount]
	if !ok {
		return 0, chain.ErrAccountNotFound
	}
	return balance, nil
}

func (l *Ledger) AccountExists(_ context.Context, account solana.PublicKey) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Accounts[account] {
		return true, nil
	}
	_, ok := l.TokenBalances[account]
	return ok, nil
}

func (l *Ledger) GetMintDecimals(_ context.Context, mint solana.PublicKey) (uint8, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	decimals, ok := l.MintDecimals[mint]
	if !ok {
		return 0, chain.ErrAccountNotFound
	}
	return decimals, nil
}

func (l *Ledger) SendAndConfirm(_ context.Context, instructions []solana.Instruction, payer solana.PrivateKey) (*chain.TransactionInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.SendErr != nil {
		return nil, l.SendErr
	}

	sig := solana.Signature{byte(len(l.submissions) + 1), 0xfe}
	l.submissions = append(l.submissions, Submission{
		Payer:        payer.PublicKey(),
		Instructions: instructions,
		Signature:    sig.String(),
	})

	blockTime := l.BlockTime
	return &chain.TransactionInfo{Signature: sig.String(), BlockTime: &blockTime}, nil
}

func (l *Ledger) Health(_ context.Context) error {
	return l.HealthErr
}

// Submissions returns every successful SendAndConfirm call so far.
func (l *Ledger) Submissions() []Submission {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Submission(nil), l.submissions...)
}
