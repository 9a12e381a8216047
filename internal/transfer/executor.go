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

package transfer

import (
	"context"
	"errors"
	"fmt"

	"klytic-pay-go/internal/chain"
	"klytic-pay-go/internal/models"

	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const nativeDecimals = 9

// Transferrer moves one asset from a custodial signer to a destination address.
// Calls are not idempotent on chain; callers must not blindly retry.
type Transferrer interface {
	Transfer(ctx context.Context, signer solana.PrivateKey, destination string, amount decimal.Decimal) (*models.TransferReceipt, error)
}

type Executor struct {
	ledger chain.Ledger
}

func NewExecutor(ledger chain.Ledger) *Executor {
	return &Executor{ledger: ledger}
}

// For resolves the transferrer for an asset variant.
func (e *Executor) For(asset models.Asset) (Transferrer, error) {
	switch asset.Kind {
	case models.AssetNative:
		return &NativeTransfer{ledger: e.ledger}, nil
	case models.AssetToken:
		mint, err := solana.PublicKeyFromBase58(asset.Mint)
		if err != nil {
			return nil, fmt.Errorf("invalid mint %q: %w", asset.Mint, models.ErrValidation)
		}
		return &TokenTransfer{ledger: e.ledger, mint: mint}, nil
	}
	return nil, fmt.Errorf("unsupported asset kind %s: %w", asset.Kind, models.ErrValidation)
}

func (e *Executor) TransferNative(ctx context.Context, signer solana.PrivateKey, destination string, amount decimal.Decimal) (*models.TransferReceipt, error) {
	return (&NativeTransfer{ledger: e.ledger}).Transfer(ctx, signer, destination, amount)
}

func (e *Executor) TransferToken(ctx context.Context, signer solana.PrivateKey, destination string, amount decimal.Decimal, mint string) (*models.TransferReceipt, error) {
	transferrer, err := e.For(models.TokenAsset("", mint))
	if err != nil {
		return nil, err
	}
	return transferrer.Transfer(ctx, signer, destination, amount)
}

type NativeTransfer struct {
	ledger chain.Ledger
}

func (t *NativeTransfer) Transfer(ctx context.Context, signer solana.PrivateKey, destination string, amount decimal.Decimal) (*models.TransferReceipt, error) {
	dest, err := parseDestination(destination)
	if err != nil {
		return nil, err
	}

	lamports, err := toBaseUnits(amount, nativeDecimals)
	if err != nil {
		return nil, err
	}

	from := signer.PublicKey()
	instruction := system.NewTransferInstruction(lamports, from, dest).Build()

	zap.L().Info("Submitting native transfer",
		zap.String("from", from.String()),
		zap.String("to", dest.String()),
		zap.Uint64("lamports", lamports))

	return submit(ctx, t.ledger, []solana.Instruction{instruction}, signer)
}

type TokenTransfer struct {
	ledger chain.Ledger
	mint   solana.PublicKey
}

func (t *TokenTransfer) Transfer(ctx context.Context, signer solana.PrivateKey, destination string, amount decimal.Decimal) (*models.TransferReceipt, error) {
	dest, err := parseDestination(destination)
	if err != nil {
		return nil, err
	}

	owner := signer.PublicKey()
	sourceAccount, _, err := solana.FindAssociatedTokenAddress(owner, t.mint)
	if err != nil {
		return nil, fmt.Errorf("unable to derive sender token account: %w", err)
	}
	destinationAccount, _, err := solana.FindAssociatedTokenAddress(dest, t.mint)
	if err != nil {
		return nil, fmt.Errorf("unable to derive recipient token account: %w", err)
	}

	balance, err := t.ledger.GetTokenBalance(ctx, sourceAccount)
	if err != nil {
		if errors.Is(err, chain.ErrAccountNotFound) {
			return nil, fmt.Errorf("sender %s holds no %s: %w", owner, t.mint, models.ErrInsufficientBalance)
		}
		return nil, fmt.Errorf("unable to read sender balance: %w: %w", models.ErrTransferFailed, err)
	}

	decimals, err := t.ledger.GetMintDecimals(ctx, t.mint)
	if err != nil {
		return nil, fmt.Errorf("unable to read mint decimals: %w: %w", models.ErrTransferFailed, err)
	}

	units, err := toBaseUnits(amount, int32(decimals))
	if err != nil {
		return nil, err
	}
	if units > balance {
		return nil, fmt.Errorf("balance %d below requested %d base units: %w", balance, units, models.ErrInsufficientBalance)
	}

	exists, err := t.ledger.AccountExists(ctx, destinationAccount)
	if err != nil {
		return nil, fmt.Errorf("unable to check recipient token account: %w: %w", models.ErrTransferFailed, err)
	}

	var instructions []solana.Instruction
	if !exists {
		zap.L().Info("Creating recipient token account",
			zap.String("owner", dest.String()),
			zap.String("account", destinationAccount.String()))
		instructions = append(instructions, associatedtokenaccount.NewCreateInstruction(owner, dest, t.mint).Build())
	}
	instructions = append(instructions,
		token.NewTransferCheckedInstruction(units, decimals, sourceAccount, t.mint, destinationAccount, owner, nil).Build())

	zap.L().Info("Submitting token transfer",
		zap.String("from", owner.String()),
		zap.String("to", dest.String()),
		zap.String("mint", t.mint.String()),
		zap.Uint64("units", units))

	return submit(ctx, t.ledger, instructions, signer)
}

func submit(ctx context.Context, ledger chain.Ledger, instructions []solana.Instruction, signer solana.PrivateKey) (*models.TransferReceipt, error) {
	tx, err := ledger.SendAndConfirm(ctx, instructions, signer)
	if err != nil {
		zap.L().Error("Transfer failed", zap.String("from", signer.PublicKey().String()), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", models.ErrTransferFailed, err)
	}

	zap.L().Info("Transfer confirmed", zap.String("signature", tx.Signature))
	return &models.TransferReceipt{TransactionId: tx.Signature, BlockTime: tx.BlockTime}, nil
}

func parseDestination(destination string) (solana.PublicKey, error) {
	dest, err := solana.PublicKeyFromBase58(destination)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid destination %q: %w", destination, models.ErrValidation)
	}
	return dest, nil
}

// toBaseUnits shifts a human amount to integer base units, flooring any excess precision.
func toBaseUnits(amount decimal.Decimal, decimals int32) (uint64, error) {
	units := amount.Shift(decimals).Floor()
	if !units.IsPositive() {
		return 0, fmt.Errorf("amount %s is below one base unit: %w", amount, models.ErrValidation)
	}
	if units.GreaterThan(decimal.NewFromUint64(^uint64(0))) {
		return 0, fmt.Errorf("amount %s overflows base units: %w", amount, models.ErrValidation)
	}
	return units.BigInt().Uint64(), nil
}
