package chain

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
)

type rpcRequest struct {
	Id     any             `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// newRpcServer answers JSON-RPC calls from a method -> result/error table.
func newRpcServer(t *testing.T, results map[string]any, errs map[string]string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad rpc request: %v", err)
			return
		}

		resp := map[string]any{"jsonrpc": "2.0", "id": req.Id}
		if msg, ok := errs[req.Method]; ok {
			resp["error"] = map[string]any{"code": -32602, "message": msg}
		} else {
			resp["result"] = results[req.Method]
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestFindReference_OldestSuccessful(t *testing.T) {
	newest := solana.Signature{1}
	oldestOk := solana.Signature{2}
	failed := solana.Signature{3}

	server := newRpcServer(t, map[string]any{
		"getSignaturesForAddress": []map[string]any{
			{"signature": newest.String(), "slot": 30, "err": nil, "blockTime": 1700000300},
			{"signature": oldestOk.String(), "slot": 20, "err": nil, "blockTime": 1700000200},
			{"signature": failed.String(), "slot": 10, "err": map[string]any{"InstructionError": []any{0, "Custom"}}, "blockTime": 1700000100},
		},
	}, nil)
	defer server.Close()

	ledger, err := NewRpcLedger(server.URL, time.Second)
	if err != nil {
		t.Fatalf("NewRpcLedger failed: %v", err)
	}

	info, err := ledger.FindReference(context.Background(), solana.NewWallet().PublicKey())
	if err != nil {
		t.Fatalf("FindReference failed: %v", err)
	}
	if info.Signature != oldestOk.String() {
		t.Errorf("Expected %s, got %s", oldestOk, info.Signature)
	}
	if info.BlockTime == nil || info.BlockTime.Unix() != 1700000200 {
		t.Errorf("Unexpected block time %v", info.BlockTime)
	}
}

func TestFindReference_NotFound(t *testing.T) {
	server := newRpcServer(t, map[string]any{"getSignaturesForAddress": []any{}}, nil)
	defer server.Close()

	ledger, _ := NewRpcLedger(server.URL, time.Second)
	_, err := ledger.FindReference(context.Background(), solana.NewWallet().PublicKey())
	if !errors.Is(err, ErrReferenceNotFound) {
		t.Errorf("Expected ErrReferenceNotFound, got %v", err)
	}
}

func TestGetTransaction_NotFound(t *testing.T) {
	server := newRpcServer(t, map[string]any{"getTransaction": nil}, nil)
	defer server.Close()

	ledger, _ := NewRpcLedger(server.URL, time.Second)
	_, err := ledger.GetTransaction(context.Background(), solana.Signature{9}.String())
	if !errors.Is(err, ErrTransactionNotFound) {
		t.Errorf("Expected ErrTransactionNotFound, got %v", err)
	}

	if _, err := ledger.GetTransaction(context.Background(), "not-base58-0OIl"); err == nil {
		t.Error("Expected error for malformed signature")
	}
}

func TestGetTokenBalance(t *testing.T) {
	server := newRpcServer(t, map[string]any{
		"getTokenAccountBalance": map[string]any{
			"context": map[string]any{"slot": 1},
			"value":   map[string]any{"amount": "2500000", "decimals": 6, "uiAmountString": "2.5"},
		},
	}, nil)
	defer server.Close()

	ledger, _ := NewRpcLedger(server.URL, time.Second)
	balance, err := ledger.GetTokenBalance(context.Background(), solana.NewWallet().PublicKey())
	if err != nil {
		t.Fatalf("GetTokenBalance failed: %v", err)
	}
	if balance != 2500000 {
		t.Errorf("Expected 2500000, got %d", balance)
	}
}

func TestGetTokenBalance_MissingAccount(t *testing.T) {
	server := newRpcServer(t, nil, map[string]string{
		"getTokenAccountBalance": "Invalid param: could not find account",
	})
	defer server.Close()

	ledger, _ := NewRpcLedger(server.URL, time.Second)
	_, err := ledger.GetTokenBalance(context.Background(), solana.NewWallet().PublicKey())
	if !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("Expected ErrAccountNotFound, got %v", err)
	}
}

func TestHealth(t *testing.T) {
	server := newRpcServer(t, map[string]any{"getHealth": "ok"}, nil)
	defer server.Close()

	ledger, _ := NewRpcLedger(server.URL, time.Second)
	if err := ledger.Health(context.Background()); err != nil {
		t.Errorf("Expected healthy node, got %v", err)
	}
}

func TestNewRpcLedger_EmptyEndpoint(t *testing.T) {
	if _, err := NewRpcLedger("", time.Second); err == nil {
		t.Error("Expected error for empty endpoint")
	}
}
