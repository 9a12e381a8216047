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

package prices

import (
	"context"
	"fmt"
	"time"

	"klytic-pay-go/internal/models"
	"klytic-pay-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultFreshnessWindow = 5 * time.Minute
	fallbackSource         = "fallback"
	snapshotSource         = "snapshot"
	cacheSource            = "cache"
)

var (
	FallbackNativeUsd = decimal.NewFromFloat(150.0)
	FallbackTokenUsd  = decimal.NewFromFloat(1.0)
)

// Oracle serves freshness-bounded USD rates for the native coin and the stable token.
type Oracle struct {
	store     store.PriceStore
	feed      Feed
	cache     RateCache
	assets    models.AssetPair
	freshness time.Duration
	now       func() time.Time
	group     singleflight.Group
}

// NewOracle builds an oracle. cache may be nil.
func NewOracle(priceStore store.PriceStore, feed Feed, cache RateCache, assets models.AssetPair, freshness time.Duration) *Oracle {
	if freshness <= 0 {
		freshness = DefaultFreshnessWindow
	}
	return &Oracle{
		store:     priceStore,
		feed:      feed,
		cache:     cache,
		assets:    assets,
		freshness: freshness,
		now:       time.Now,
	}
}

// GetRates never fails: a stale cache with an unreachable feed degrades to the fallback rates.
func (o *Oracle) GetRates(ctx context.Context) models.Rates {
	if o.cache != nil {
		cached, err := o.cache.GetRates(ctx)
		if err != nil {
			zap.L().Warn("Rate cache read failed", zap.Error(err))
		} else if cached != nil && cached.NativeUsd.IsPositive() && o.isFreshAt(cached.UpdatedAt) {
			cached.Source = cacheSource
			return *cached
		}
	}

	if rates, ok := o.freshSnapshots(ctx); ok {
		o.writeCache(ctx, rates)
		return rates
	}

	// Shared by every collapsed caller, so detached from the first caller's cancellation.
	refreshCtx := context.WithoutCancel(ctx)
	result, _, _ := o.group.Do("rates", func() (interface{}, error) {
		return o.refresh(refreshCtx), nil
	})
	return result.(models.Rates)
}

func (o *Oracle) freshSnapshots(ctx context.Context) (models.Rates, bool) {
	native, err := o.store.GetPriceSnapshot(ctx, o.assets.Native.PriceId)
	if err != nil {
		zap.L().Warn("Price snapshot read failed", zap.String("token", o.assets.Native.PriceId), zap.Error(err))
		return models.Rates{}, false
	}
	token, err := o.store.GetPriceSnapshot(ctx, o.assets.Token.PriceId)
	if err != nil {
		zap.L().Warn("Price snapshot read failed", zap.String("token", o.assets.Token.PriceId), zap.Error(err))
		return models.Rates{}, false
	}
	if native == nil || token == nil || !o.isFresh(native) || !o.isFresh(token) {
		return models.Rates{}, false
	}

	updatedAt := native.UpdatedAt
	if token.UpdatedAt.Before(updatedAt) {
		updatedAt = token.UpdatedAt
	}
	return models.Rates{NativeUsd: native.PriceUsd, TokenUsd: token.PriceUsd, Source: snapshotSource, UpdatedAt: updatedAt}, true
}

func (o *Oracle) isFresh(snapshot *models.PriceSnapshot) bool {
	return o.isFreshAt(snapshot.UpdatedAt)
}

func (o *Oracle) isFreshAt(updatedAt time.Time) bool {
	return !updatedAt.IsZero() && o.now().Sub(updatedAt) <= o.freshness
}

func (o *Oracle) refresh(ctx context.Context) models.Rates {
	nativeId, tokenId := o.assets.Native.PriceId, o.assets.Token.PriceId

	quotes, err := o.feed.FetchUsdPrices(ctx, nativeId, tokenId)
	if err != nil {
		zap.L().Warn("Price feed unavailable, using fallback rates", zap.Error(err))
		return fallbackRates()
	}
	if !quotes[nativeId].IsPositive() {
		zap.L().Warn("Price feed returned no native price, using fallback rates",
			zap.String("native_usd", quotes[nativeId].String()))
		return fallbackRates()
	}

	updatedAt := o.now().UTC()
	rates := models.Rates{NativeUsd: quotes[nativeId], TokenUsd: quotes[tokenId], Source: feedSource, UpdatedAt: updatedAt}
	if !rates.TokenUsd.IsPositive() {
		rates.TokenUsd = FallbackTokenUsd
	}

	for token, price := range map[string]decimal.Decimal{nativeId: rates.NativeUsd, tokenId: rates.TokenUsd} {
		err := o.store.UpsertPriceSnapshot(ctx, models.PriceSnapshot{
			Token:     token,
			PriceUsd:  price,
			Source:    feedSource,
			UpdatedAt: updatedAt,
		})
		if err != nil {
			zap.L().Warn("Failed to persist price snapshot", zap.String("token", token), zap.Error(err))
		}
	}
	o.writeCache(ctx, rates)

	zap.L().Info("Prices refreshed",
		zap.String("native_usd", rates.NativeUsd.String()),
		zap.String("token_usd", rates.TokenUsd.String()))
	return rates
}

// writeCache keeps rates only for what is left of their freshness window.
func (o *Oracle) writeCache(ctx context.Context, rates models.Rates) {
	if o.cache == nil {
		return
	}
	ttl := o.freshness - o.now().Sub(rates.UpdatedAt)
	if rates.UpdatedAt.IsZero() || ttl <= 0 {
		return
	}
	if err := o.cache.SetRates(ctx, rates, ttl); err != nil {
		zap.L().Warn("Rate cache write failed", zap.Error(err))
	}
}

func fallbackRates() models.Rates {
	return models.Rates{NativeUsd: FallbackNativeUsd, TokenUsd: FallbackTokenUsd, Source: fallbackSource}
}

func (o *Oracle) UsdToNative(ctx context.Context, usd decimal.Decimal) (decimal.Decimal, error) {
	return divide(usd, o.GetRates(ctx).NativeUsd, o.assets.Native.Decimals)
}

func (o *Oracle) UsdToToken(ctx context.Context, usd decimal.Decimal) (decimal.Decimal, error) {
	return divide(usd, o.GetRates(ctx).TokenUsd, o.assets.Token.Decimals)
}

func (o *Oracle) NativeToUsd(ctx context.Context, amount decimal.Decimal) (decimal.Decimal, error) {
	return multiply(amount, o.GetRates(ctx).NativeUsd)
}

func (o *Oracle) TokenToUsd(ctx context.Context, amount decimal.Decimal) (decimal.Decimal, error) {
	return multiply(amount, o.GetRates(ctx).TokenUsd)
}

func divide(usd, rate decimal.Decimal, places int32) (decimal.Decimal, error) {
	if !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("rate is %s: %w", rate, models.ErrPriceUnavailable)
	}
	return usd.DivRound(rate, places), nil
}

func multiply(amount, rate decimal.Decimal) (decimal.Decimal, error) {
	if !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("rate is %s: %w", rate, models.ErrPriceUnavailable)
	}
	return amount.Mul(rate).Round(2), nil
}
