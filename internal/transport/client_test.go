package transport

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewHttpClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client, err := NewHttpClient(2 * time.Second)
	if err != nil {
		t.Fatalf("NewHttpClient failed: %v", err)
	}
	if client.Timeout != 2*time.Second {
		t.Errorf("Expected 2s timeout, got %v", client.Timeout)
	}

	resp, err := client.Get(server.URL)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", resp.StatusCode)
	}

	def, err := NewHttpClient(0)
	if err != nil {
		t.Fatalf("NewHttpClient failed: %v", err)
	}
	if def.Timeout != 60*time.Second {
		t.Errorf("Expected default 60s timeout, got %v", def.Timeout)
	}
}
