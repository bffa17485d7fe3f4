package vtpass

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
	return provider.Credentials{BaseURL: s.baseURL, APIKey: "pk", SecretKey: "sk"}, nil
}

func newTestClient(baseURL string) *Client {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewClient(Config{Timeout: 5 * time.Second}, &stubCreds{baseURL: baseURL}, logger)
}

func TestPayResponseCodeMapping(t *testing.T) {
	tests := []struct {
		name string
		body string
		want provider.ResultStatus
	}{
		{"delivered", `{"code":"000","content":{"transactions":{"status":"delivered","transactionId":"VT1"}}}`, provider.ResultSuccess},
		{"processing", `{"code":"099","response_description":"TRANSACTION PROCESSING"}`, provider.ResultPending},
		{"rejected", `{"code":"016","response_description":"TRANSACTION FAILED"}`, provider.ResultFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var received map[string]interface{}
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if got := r.Header.Get("api-key"); got != "pk" {
					t.Errorf("api-key = %q", got)
				}
				if got := r.Header.Get("secret-key"); got != "sk" {
					t.Errorf("secret-key = %q", got)
				}
				json.NewDecoder(r.Body).Decode(&received)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			result, err := newTestClient(server.URL).PurchaseAirtime(context.Background(), provider.AirtimeRequest{
				Network:   "mtn",
				Phone:     "08030000000",
				Amount:    money.NewFromMajor(500, money.NGN),
				Reference: "VTPASS-REF",
			})
			if err != nil {
				t.Fatalf("PurchaseAirtime: %v", err)
			}
			if result.Status != tt.want {
				t.Fatalf("status = %s, want %s", result.Status, tt.want)
			}
			if got := received["request_id"]; got != "VTPASS-REF" {
				t.Fatalf("request_id = %v, want VTPASS-REF", got)
			}
			if got := received["serviceID"]; got != "mtn" {
				t.Fatalf("serviceID = %v, want mtn", got)
			}
		})
	}
}

func TestElectricityPayload(t *testing.T) {
	var received map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&received)
		w.Write([]byte(`{"code":"000","content":{"transactions":{"status":"delivered","transactionId":"VT2"}}}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).PurchaseBill(context.Background(), provider.BillRequest{
		Service:   provider.ServiceElectricity,
		Biller:    "ikeja-electric",
		Account:   "45028937621",
		Variation: "prepaid",
		Amount:    money.NewFromMajor(3000, money.NGN),
		Phone:     "08030000000",
		Reference: "VTPASS-ELEC",
	})
	if err != nil {
		t.Fatalf("PurchaseBill: %v", err)
	}

	if got := received["serviceID"]; got != "ikeja-electric" {
		t.Fatalf("serviceID = %v", got)
	}
	if got := received["billersCode"]; got != "45028937621" {
		t.Fatalf("billersCode = %v", got)
	}
	if got := received["variation_code"]; got != "prepaid" {
		t.Fatalf("variation_code = %v", got)
	}
	if got := received["amount"]; got != 3000.0 {
		t.Fatalf("amount = %v", got)
	}
}

func TestExamPinNotSupported(t *testing.T) {
	_, err := newTestClient("http://unused").PurchaseBill(context.Background(), provider.BillRequest{
		Service: provider.ServiceExamPin,
		Biller:  "waec",
	})
	if err != provider.ErrNotSupported {
		t.Fatalf("error = %v, want ErrNotSupported", err)
	}
}

func TestRequeryStatusMapping(t *testing.T) {
	tests := []struct {
		name string
		body string
		want provider.ResultStatus
	}{
		{"delivered", `{"code":"000","content":{"transactions":{"status":"delivered"}}}`, provider.ResultSuccess},
		{"initiated", `{"code":"000","content":{"transactions":{"status":"initiated"}}}`, provider.ResultPending},
		{"processing", `{"code":"099"}`, provider.ResultPending},
		{"failed", `{"code":"016"}`, provider.ResultFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			got, err := newTestClient(server.URL).TransactionStatus(context.Background(), "VTPASS-Q")
			if err != nil {
				t.Fatalf("TransactionStatus: %v", err)
			}
			if got != tt.want {
				t.Fatalf("status = %s, want %s", got, tt.want)
			}
		})
	}
}
