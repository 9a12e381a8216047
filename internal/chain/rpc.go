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
	"fmt"
	"strconv"
	"strings"
	"time"

	"klytic-pay-go/internal/transport"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"go.uber.org/zap"
)

const (
	referenceScanLimit = 100
	sendMaxRetries     = 3
	statusPollInterval = 500 * time.Millisecond
)

var maxTransactionVersion uint64

// Compile-time check: *RpcLedger must satisfy Ledger.
var _ Ledger = (*RpcLedger)(nil)

type RpcLedger struct {
	client         *rpc.Client
	confirmTimeout time.Duration
}

// NewRpcLedger connects to a Solana JSON-RPC endpoint over the shared HTTP/2 transport.
func NewRpcLedger(endpoint string, confirmTimeout time.Duration) (*RpcLedger, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("rpc endpoint cannot be empty")
	}
	if confirmTimeout <= 0 {
		confirmTimeout = 60 * time.Second
	}

	httpClient, err := transport.NewHttpClient(confirmTimeout)
	if err != nil {
		return nil, fmt.Errorf("unable to create http client: %w", err)
	}

	rpcClient := jsonrpc.NewClientWithOpts(endpoint, &jsonrpc.RPCClientOpts{HTTPClient: httpClient})

	zap.L().Info("Solana RPC client created", zap.String("endpoint", endpoint))
	return &RpcLedger{
		client:         rpc.NewWithCustomRPCClient(rpcClient),
		confirmTimeout: confirmTimeout,
	}, nil
}

func (l *RpcLedger) Close() {
	if err := l.client.Close(); err != nil {
		zap.L().Warn("Failed to close rpc client", zap.Error(err))
	}
}

func (l *RpcLedger) FindReference(ctx context.Context, reference solana.PublicKey) (*SignatureInfo, error) {
	limit := referenceScanLimit
	signatures, err := l.client.GetSignaturesForAddressWithOpts(ctx, reference, &rpc.GetSignaturesForAddressOpts{
		Limit:      &limit,
		Commitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to query signatures for %s: %w", reference, err)
	}

	// Newest first; the payment is the oldest successful entry.
	for i := len(signatures) - 1; i >= 0; i-- {
		sig := signatures[i]
		if sig == nil || sig.Err != nil {
			continue
		}
		return &SignatureInfo{
			Signature: sig.Signature.String(),
			Slot:      sig.Slot,
			BlockTime: blockTime(sig.BlockTime),
		}, nil
	}

	return nil, ErrReferenceNotFound
}

func (l *RpcLedger) GetTransaction(ctx context.Context, signature string) (*TransactionInfo, error) {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return nil, fmt.Errorf("invalid signature %q: %w", signature, err)
	}

	result, err := l.client.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Commitment:                     rpc.CommitmentConfirmed,
		MaxSupportedTransactionVersion: &maxTransactionVersion,
	})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("unable to get transaction %s: %w", signature, err)
	}

	return &TransactionInfo{
		Signature: signature,
		Slot:      result.Slot,
		BlockTime: blockTime(result.BlockTime),
		Failed:    result.Meta != nil && result.Meta.Err != nil,
	}, nil
}

func (l *RpcLedger) GetNativeBalance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	result, err := l.client.GetBalance(ctx, account, rpc.CommitmentConfirmed)
	if err != nil {
		return 0, fmt.Errorf("unable to get balance of %s: %w", account, err)
	}
	return result.Value, nil
}

func (l *RpcLedger) GetTokenBalance(ctx context.Context, tokenAccount solana.PublicKey) (uint64, error) {
	result, err := l.client.GetTokenAccountBalance(ctx, tokenAccount, rpc.CommitmentConfirmed)
	if err != nil {
		if isAccountNotFound(err) {
			return 0, ErrAccountNotFound
		}
		return 0, fmt.Errorf("unable to get token balance of %s: %w", tokenAccount, err)
	}
	if result == nil || result.Value == nil {
		return 0, ErrAccountNotFound
	}

	amount, err := strconv.ParseUint(result.Value.Amount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid token amount %q: %w", result.Value.Amount, err)
	}
	return amount, nil
}

func (l *RpcLedger) AccountExists(ctx context.Context, account solana.PublicKey) (bool, error) {
	_, err := l.client.GetAccountInfo(ctx, account)
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("unable to get account %s: %w", account, err)
	}
	return true, nil
}

func (l *RpcLedger) GetMintDecimals(ctx context.Context, mint solana.PublicKey) (uint8, error) {
	result, err := l.client.GetTokenSupply(ctx, mint, rpc.CommitmentConfirmed)
	if err != nil {
		return 0, fmt.Errorf("unable to get token supply of %s: %w", mint, err)
	}
	if result == nil || result.Value == nil {
		return 0, fmt.Errorf("mint %s: %w", mint, ErrAccountNotFound)
	}
	return result.Value.Decimals, nil
}

func (l *RpcLedger) SendAndConfirm(ctx context.Context, instructions []solana.Instruction, payer solana.PrivateKey) (*TransactionInfo, error) {
	payerKey := payer.PublicKey()

	recent, err := l.client.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return nil, fmt.Errorf("unable to get latest blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(instructions, recent.Value.Blockhash, solana.TransactionPayer(payerKey))
	if err != nil {
		return nil, fmt.Errorf("unable to build transaction: %w", err)
	}

	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(payerKey) {
			return &payer
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("unable to sign transaction: %w", err)
	}

	maxRetries := uint(sendMaxRetries)
	sig, err := l.client.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: rpc.CommitmentConfirmed,
		MaxRetries:          &maxRetries,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to send transaction: %w", err)
	}

	zap.L().Info("Transaction submitted",
		zap.String("signature", sig.String()),
		zap.String("payer", payerKey.String()))

	if err := l.awaitConfirmation(ctx, sig); err != nil {
		return nil, err
	}

	info := &TransactionInfo{Signature: sig.String()}
	if confirmed, err := l.GetTransaction(ctx, sig.String()); err == nil {
		info = confirmed
	} else {
		zap.L().Debug("Block time not yet available", zap.String("signature", sig.String()), zap.Error(err))
	}
	return info, nil
}

func (l *RpcLedger) awaitConfirmation(ctx context.Context, sig solana.Signature) error {
	ctx, cancel := context.WithTimeout(ctx, l.confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(statusPollInterval)
	defer ticker.Stop()

	for {
		statuses, err := l.client.GetSignatureStatuses(ctx, true, sig)
		if err != nil && !errors.Is(err, rpc.ErrNotFound) {
			zap.L().Debug("Signature status lookup failed", zap.String("signature", sig.String()), zap.Error(err))
		}
		if err == nil && len(statuses.Value) > 0 && statuses.Value[0] != nil {
			status := statuses.Value[0]
			if status.Err != nil {
				return fmt.Errorf("transaction %s failed on chain: %v", sig, status.Err)
			}
			if status.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
				status.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("transaction %s: %w", sig, ErrNotConfirmed)
		case <-ticker.C:
		}
	}
}

func (l *RpcLedger) Health(ctx context.Context) error {
	status, err := l.client.GetHealth(ctx)
	if err != nil {
		return fmt.Errorf("rpc health check failed: %w", err)
	}
	if status != rpc.HealthOk {
		return fmt.Errorf("rpc node unhealthy: %s", status)
	}
	return nil
}

func blockTime(t *solana.UnixTimeSeconds) *time.Time {
	if t == nil {
		return nil
	}
	v := t.Time().UTC()
	return &v
}

func isAccountNotFound(err error) bool {
	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) {
		return strings.Contains(strings.ToLower(rpcErr.Message), "could not find account")
	}
	return strings.Contains(strings.ToLower(err.Error()), "could not find account")
}
