package topupmate

import (
	"context"
	"encoding/json"
	"fmt"
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

func airtimeRequest() provider.AirtimeRequest {
	return provider.AirtimeRequest{
		Network:   "mtn",
		Phone:     "08012345678",
		Amount:    money.New(20000, money.NGN),
		Reference: "TOPUPMATE-REF-1",
	}
}

func TestPurchaseStatusMapping(t *testing.T) {
	tests := []struct {
		vendorStatus string
		want         provider.ResultStatus
	}{
		{"success", provider.ResultSuccess},
		{"successful", provider.ResultSuccess},
		{"pending", provider.ResultPending},
		{"processing", provider.ResultPending},
		{"failed", provider.ResultFailed},
		{"error", provider.ResultFailed},
	}

	for _, tt := range tests {
		t.Run(tt.vendorStatus, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if got := r.Header.Get("Authorization"); got != "Token test-key" {
					t.Errorf("Authorization = %q", got)
				}
				fmt.Fprintf(w, `{"status":%q,"transaction_id":"T1"}`, tt.vendorStatus)
			}))
			defer server.Close()

			result, err := newTestClient(server.URL).PurchaseAirtime(context.Background(), airtimeRequest())
			if err != nil {
				t.Fatalf("PurchaseAirtime: %v", err)
			}
			if result.Status != tt.want {
				t.Fatalf("vendor status %q mapped to %q, want %q", tt.vendorStatus, result.Status, tt.want)
			}
		})
	}
}

func TestPendingPurchaseIsNotFailed(t *testing.T) {
	// A pending vendor answer must never look like a failure: the
	// orchestrator refunds failures, and refunding a purchase the
	// vendor later delivers is a double spend.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"pending","transaction_id":"T1","message":"queued"}`))
	}))
	defer server.Close()

	result, err := newTestClient(server.URL).PurchaseAirtime(context.Background(), airtimeRequest())
	if err != nil {
		t.Fatalf("PurchaseAirtime: %v", err)
	}
	if result.Status == provider.ResultFailed {
		t.Fatal("pending vendor status mapped to failed")
	}
	if result.Status != provider.ResultPending {
		t.Fatalf("result status = %q, want %q", result.Status, provider.ResultPending)
	}
	if result.ProviderReference != "T1" {
		t.Fatalf("provider reference = %q, want T1", result.ProviderReference)
	}
}

func TestPurchaseDataForwardsPlanAndReference(t *testing.T) {
	var received map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		w.Write([]byte(`{"status":"successful","transaction_id":"T2"}`))
	}))
	defer server.Close()

	result, err := newTestClient(server.URL).PurchaseData(context.Background(), provider.DataRequest{
		Network:   "9mobile",
		Phone:     "08012345678",
		PlanID:    "44",
		Reference: "TOPUPMATE-REF-2",
	})
	if err != nil {
		t.Fatalf("PurchaseData: %v", err)
	}
	if result.Status != provider.ResultSuccess {
		t.Fatalf("result status = %q", result.Status)
	}
	if received["network"] != "4" {
		t.Errorf("network = %v, want 4", received["network"])
	}
	if received["plan"] != "44" {
		t.Errorf("plan = %v, want 44", received["plan"])
	}
	if received["reference"] != "TOPUPMATE-REF-2" {
		t.Errorf("reference = %v", received["reference"])
	}
}

func TestElectricityNotSupported(t *testing.T) {
	_, err := newTestClient("http://unused").PurchaseBill(context.Background(), provider.BillRequest{
		Service: provider.ServiceElectricity,
		Biller:  "ikeja-electric",
		Account: "12345",
	})
	if err != provider.ErrNotSupported {
		t.Fatalf("err = %v, want ErrNotSupported", err)
	}
}
