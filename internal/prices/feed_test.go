package prices

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"klytic-pay-go/internal/models"

	"github.com/shopspring/decimal"
)

func TestCoinGeckoFeed_FetchUsdPrices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/simple/price" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if ids := r.URL.Query().Get("ids"); ids != "solana,usd-coin" {
			t.Errorf("Unexpected ids %q", ids)
		}
		if vs := r.URL.Query().Get("vs_currencies"); vs != "usd" {
			t.Errorf("Unexpected vs_currencies %q", vs)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"solana":{"usd":151.37},"usd-coin":{"usd":0.999912}}`))
	}))
	defer server.Close()

	feed, err := NewCoinGeckoFeed(server.URL+"/", time.Second)
	if err != nil {
		t.Fatalf("NewCoinGeckoFeed failed: %v", err)
	}

	quotes, err := feed.FetchUsdPrices(context.Background(), "solana", "usd-coin")
	if err != nil {
		t.Fatalf("FetchUsdPrices failed: %v", err)
	}
	if !quotes["solana"].Equal(decimal.RequireFromString("151.37")) {
		t.Errorf("Expected 151.37, got %s", quotes["solana"])
	}
	if !quotes["usd-coin"].Equal(decimal.RequireFromString("0.999912")) {
		t.Errorf("Expected 0.999912, got %s", quotes["usd-coin"])
	}
}

func TestCoinGeckoFeed_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		target error
	}{
		{"server error", http.StatusTooManyRequests, `{}`, nil},
		{"missing id", http.StatusOK, `{"solana":{"usd":150}}`, models.ErrPriceUnavailable},
		{"missing usd", http.StatusOK, `{"solana":{"eur":140},"usd-coin":{"usd":1}}`, models.ErrPriceUnavailable},
		{"malformed", http.StatusOK, `not json`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			feed, _ := NewCoinGeckoFeed(server.URL, time.Second)
			_, err := feed.FetchUsdPrices(context.Background(), "solana", "usd-coin")
			if err == nil {
				t.Fatal("Expected an error")
			}
			if tt.target != nil && !errors.Is(err, tt.target) {
				t.Errorf("Expected %v, got %v", tt.target, err)
			}
		})
	}
}
