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

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AssetKind tags the two transferable asset variants
type AssetKind int

const (
	AssetNative AssetKind = iota
	AssetToken
)

func (k AssetKind) String() string {
	if k == AssetToken {
		return "token"
	}
	return "native"
}

// Asset is a transferable asset: the chain's native coin, or a fungible token
// identified by its mint address.
type Asset struct {
	Kind   AssetKind
	Symbol string
	Mint   string
}

// NativeAsset returns the native asset variant
func NativeAsset(symbol string) Asset {
	return Asset{Kind: AssetNative, Symbol: symbol}
}

// TokenAsset returns the token asset variant for the given mint
func TokenAsset(symbol, mint string) Asset {
	return Asset{Kind: AssetToken, Symbol: symbol, Mint: mint}
}

// TransferReceipt is the confirmed outcome of an outbound transfer
type TransferReceipt struct {
	TransactionId string
	BlockTime     *time.Time
}

// PaymentVerification is the result of a reference await or a transaction verify
type PaymentVerification struct {
	Confirmed     bool       `json:"confirmed"`
	TransactionId string     `json:"transaction_hash,omitempty"`
	BlockTime     *time.Time `json:"block_time,omitempty"`
	InvoiceId     string     `json:"invoice_id,omitempty"`
}

// Rates holds USD prices for the two tracked assets
type Rates struct {
	NativeUsd decimal.Decimal `json:"native_usd"`
	TokenUsd  decimal.Decimal `json:"token_usd"`
	Source    string          `json:"source"`
	// UpdatedAt is when the oldest of the two prices was fetched. Zero for fallback rates.
	UpdatedAt time.Time `json:"updated_at"`
}

// AssetConfig describes one tracked asset as loaded from the assets file
type AssetConfig struct {
	Symbol   string `yaml:"symbol"`
	Kind     string `yaml:"kind"`
	PriceId  string `yaml:"price_id"`
	Decimals int32  `yaml:"decimals"`
	Mint     string `yaml:"mint,omitempty"`
}

// AssetPair is the native coin and the stable token the engine prices and transfers
type AssetPair struct {
	Native AssetConfig
	Token  AssetConfig
}

// Mainnet USDC mint, used when no mint is configured
const DefaultUsdcMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

func DefaultAssetPair(tokenMint string) AssetPair {
	if tokenMint == "" {
		tokenMint = DefaultUsdcMint
	}
	return AssetPair{
		Native: AssetConfig{Symbol: CurrencySOL, Kind: "native", PriceId: "solana", Decimals: 9},
		Token:  AssetConfig{Symbol: CurrencyUSDC, Kind: "token", PriceId: "usd-coin", Decimals: 6, Mint: tokenMint},
	}
}

// ForCurrency maps a payroll currency to its transferable asset
func (p AssetPair) ForCurrency(currency string) (Asset, bool) {
	switch currency {
	case p.Native.Symbol:
		return NativeAsset(p.Native.Symbol), true
	case p.Token.Symbol:
		return TokenAsset(p.Token.Symbol, p.Token.Mint), true
	}
	return Asset{}, false
}

// Devnet USDC mint, the default on devnet and testnet
const DevnetUsdcMint = "4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU"
