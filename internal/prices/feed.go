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
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"klytic-pay-go/internal/models"
	"klytic-pay-go/internal/transport"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	DefaultFeedUrl = "https://api.coingecko.com/api/v3"
	feedSource     = "coingecko"
)

// Feed fetches current USD quotes for a set of price ids.
type Feed interface {
	FetchUsdPrices(ctx context.Context, ids ...string) (map[string]decimal.Decimal, error)
}

type CoinGeckoFeed struct {
	baseUrl    string
	httpClient *http.Client
}

func NewCoinGeckoFeed(baseUrl string, timeout time.Duration) (*CoinGeckoFeed, error) {
	if baseUrl == "" {
		baseUrl = DefaultFeedUrl
	}

	httpClient, err := transport.NewHttpClient(timeout)
	if err != nil {
		return nil, fmt.Errorf("unable to create http client: %w", err)
	}

	return &CoinGeckoFeed{
		baseUrl:    strings.TrimRight(baseUrl, "/"),
		httpClient: httpClient,
	}, nil
}

// FetchUsdPrices calls /simple/price. Every requested id must be present in the answer.
func (f *CoinGeckoFeed) FetchUsdPrices(ctx context.Context, ids ...string) (map[string]decimal.Decimal, error) {
	query := url.Values{}
	query.Set("ids", strings.Join(ids, ","))
	query.Set("vs_currencies", "usd")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseUrl+"/simple/price?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("unable to build price request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("price feed request failed: %w", err)
	}
	defer func(body io.ReadCloser) {
		if err := body.Close(); err != nil {
			zap.L().Debug("Failed to close price feed body", zap.Error(err))
		}
	}(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("price feed returned status %d", resp.StatusCode)
	}

	var payload map[string]map[string]decimal.Decimal
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("unable to decode price feed response: %w", err)
	}

	quotes := make(map[string]decimal.Decimal, len(ids))
	for _, id := range ids {
		entry, ok := payload[id]
		if !ok {
			return nil, fmt.Errorf("price feed response missing %s: %w", id, models.ErrPriceUnavailable)
		}
		usd, ok := entry["usd"]
		if !ok {
			return nil, fmt.Errorf("price feed response missing usd quote for %s: %w", id, models.ErrPriceUnavailable)
		}
		quotes[id] = usd
	}

	return quotes, nil
}
