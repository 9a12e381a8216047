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
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"klytic-pay-go/internal/models"

	"github.com/redis/go-redis/v9"
)

const ratesCacheKey = "klytic:prices:rates"

// RateCache is a shared tier in front of the persisted snapshots. A miss is (nil, nil).
type RateCache interface {
	GetRates(ctx context.Context) (*models.Rates, error)
	SetRates(ctx context.Context, rates models.Rates, ttl time.Duration) error
}

type RedisRateCache struct {
	client *redis.Client
}

func NewRedisRateCache(cfg models.RedisConfig) *RedisRateCache {
	return &RedisRateCache{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
	}
}

func (c *RedisRateCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisRateCache) GetRates(ctx context.Context) (*models.Rates, error) {
	raw, err := c.client.Get(ctx, ratesCacheKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("unable to read cached rates: %w", err)
	}

	var rates models.Rates
	if err := json.Unmarshal(raw, &rates); err != nil {
		return nil, fmt.Errorf("unable to decode cached rates: %w", err)
	}
	return &rates, nil
}

func (c *RedisRateCache) SetRates(ctx context.Context, rates models.Rates, ttl time.Duration) error {
	raw, err := json.Marshal(rates)
	if err != nil {
		return fmt.Errorf("unable to encode rates: %w", err)
	}
	if err := c.client.Set(ctx, ratesCacheKey, raw, ttl).Err(); err != nil {
		return fmt.Errorf("unable to cache rates: %w", err)
	}
	return nil
}

func (c *RedisRateCache) Close() error {
	return c.client.Close()
}
