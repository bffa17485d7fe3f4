package smeplug

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"vtuplatform/internal/common/money"
	"vtuplatform/internal/provider"
)

type stubCreds struct {
	baseURL string
}

func (s *stubCreds) Credentials(ctx context.Context, code string) (provider.Credentials, error) {
	return provider.Credentials{BaseURL: s.baseURL, APIKey: "test-key"}, nil
}

func newTestClient(baseURL string) *Client {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewClient(Config{Timeout: 5 * time.Second}, &stubCreds{baseURL: baseURL}, logger)
}

func TestBalanceToleratesBothShapes(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantMinor int64
	}{
		{"flat balance", `{"status":true,"balance":"1500.50"}`, 150050},
		{"nested balance", `{"status":true,"data":{"balance":"200.00"}}`, 20000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
					t.Errorf("Authorization = %q", got)
				}
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			balance, err := newTestClient(server.URL).Balance(context.Background())
			if err != nil {
				t.Fatalf("Balance: %v", err)
			}
			if !balance.Equal(money.New(tt.wantMinor, money.NGN)) {
				t.Fatalf("balance = %+v, want %d minor NGN", balance, tt.wantMinor)
			}
		})
	}
}

func TestBalanceUnparseable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":true,"balance":"not-a-number"}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Balance(context.Background())
	if err == nil {
		t.Fatal("expected error for unparseable balance")
	}
}

func TestPurchaseAirtimeForwardsReferenceAndNetwork(t *testing.T) {
	var received map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		w.Write([]byte(`{"status":true,"msg":"delivered","reference":"SP-999"}`))
	}))
	defer server.Close()

	result, err := newTestClient(server.URL).PurchaseAirtime(context.Background(), provider.AirtimeRequest{
		Network:   "9mobile",
		Phone:     "08090000000",
		Amount:    money.NewFromMajor(200, money.NGN),
		Reference: "SMEPLUG-ABC123",
	})
	if err != nil {
		t.Fatalf("PurchaseAirtime: %v", err)
	}

	if result.Status != provider.ResultSuccess {
		t.Fatalf("status = %s, want success", result.Status)
	}
	if result.ProviderReference != "SP-999" {
		t.Fatalf("provider reference = %s", result.ProviderReference)
	}
	if got := received["customer_reference"]; got != "SMEPLUG-ABC123" {
		t.Fatalf("customer_reference = %v, want SMEPLUG-ABC123", got)
	}
	if got := received["network_id"]; got != "3" {
		t.Fatalf("network_id = %v, want 3 (9mobile on this vendor)", got)
	}
	if got := received["amount"]; got != 200.0 {
		t.Fatalf("amount = %v, want 200", got)
	}
}

func TestPurchaseAirtimeUnknownNetwork(t *testing.T) {
	_, err := newTestClient("http://unused").PurchaseAirtime(context.Background(), provider.AirtimeRequest{
		Network: "vodafone",
		Phone:   "08012345678",
		Amount:  money.NewFromMajor(100, money.NGN),
	})
	if err == nil {
		t.Fatal("expected error for unknown network")
	}
}

func TestPurchaseFailureMapsToFailedResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":false,"msg":"insufficient vendor balance"}`))
	}))
	defer server.Close()

	result, err := newTestClient(server.URL).PurchaseAirtime(context.Background(), provider.AirtimeRequest{
		Network:   "mtn",
		Phone:     "08030000000",
		Amount:    money.NewFromMajor(100, money.NGN),
		Reference: "SMEPLUG-X",
	})
	if err != nil {
		t.Fatalf("PurchaseAirtime: %v", err)
	}
	if result.Status != provider.ResultFailed {
		t.Fatalf("status = %s, want failed", result.Status)
	}
	if result.Message != "insufficient vendor balance" {
		t.Fatalf("message = %q", result.Message)
	}
}

func TestUpstreamHTTPErrorSurfaces(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`upstream timeout`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).PurchaseData(context.Background(), provider.DataRequest{
		Network:   "mtn",
		PlanID:    "12",
		Phone:     "08030000000",
		Reference: "SMEPLUG-Y",
	})
	if err == nil {
		t.Fatal("expected error for 502 response")
	}
}

func TestTransactionStatusMapping(t *testing.T) {
	tests := []struct {
		vendor string
		want   provider.ResultStatus
	}{
		{"success", provider.ResultSuccess},
		{"pending", provider.ResultPending},
		{"processing", provider.ResultPending},
		{"failed", provider.ResultFailed},
		{"reversed", provider.ResultFailed},
	}

	for _, tt := range tests {
		t.Run(tt.vendor, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"status":true,"data":{"status":"` + tt.vendor + `"}}`))
			}))
			defer server.Close()

			got, err := newTestClient(server.URL).TransactionStatus(context.Background(), "SMEPLUG-Z")
			if err != nil {
				t.Fatalf("TransactionStatus: %v", err)
			}
			if got != tt.want {
				t.Fatalf("status = %s, want %s", got, tt.want)
			}
		})
	}
}
