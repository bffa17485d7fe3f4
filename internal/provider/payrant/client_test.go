package payrant

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"vtuplatform/internal/provider"
)

type stubCreds struct {
	creds provider.Credentials
}

func (s *stubCreds) Credentials(ctx context.Context, code string) (provider.Credentials, error) {
	return s.creds, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(baseURL, secret string) (*Client, *[]time.Duration) {
	client := NewClient(Config{Timeout: 5 * time.Second}, &stubCreds{creds: provider.Credentials{
		BaseURL:   baseURL,
		APIKey:    "key",
		SecretKey: secret,
	}}, discardLogger())

	var sleeps []time.Duration
	client.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	return client, &sleeps
}

func TestCreateVirtualAccountRetriesWithBackoff(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"error","message":"overloaded"}`))
			return
		}
		w.Write([]byte(`{
			"status": "success",
			"data": {
				"account_number": "9012345678",
				"account_name": "Test User",
				"bank_name": "Test Bank",
				"reference": "VA-1"
			}
		}`))
	}))
	defer server.Close()

	client, sleeps := newTestClient(server.URL, "secret")
	details, err := client.CreateVirtualAccount(context.Background(), provider.VirtualAccountRequest{
		UserID: "u1", Email: "u1@example.com", Name: "Test User",
	})
	if err != nil {
		t.Fatalf("CreateVirtualAccount: %v", err)
	}
	if details.AccountNumber != "9012345678" {
		t.Fatalf("account number = %s", details.AccountNumber)
	}
	if calls.Load() != 3 {
		t.Fatalf("upstream calls = %d, want 3", calls.Load())
	}

	want := []time.Duration{time.Second, 2 * time.Second}
	if len(*sleeps) != len(want) {
		t.Fatalf("backoff sleeps = %v, want %v", *sleeps, want)
	}
	for i, d := range want {
		if (*sleeps)[i] != d {
			t.Fatalf("backoff sleeps = %v, want %v", *sleeps, want)
		}
	}
}

func TestCreateVirtualAccountGivesUpAfterThreeAttempts(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client, _ := newTestClient(server.URL, "secret")
	_, err := client.CreateVirtualAccount(context.Background(), provider.VirtualAccountRequest{UserID: "u1"})
	if err == nil {
		t.Fatal("expected error after exhausted retries")
	}
	if calls.Load() != 3 {
		t.Fatalf("upstream calls = %d, want 3", calls.Load())
	}

	var upstream *provider.UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("error = %v, want UpstreamError", err)
	}
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyWebhook(t *testing.T) {
	client, _ := newTestClient("http://unused", "topsecret")
	body := []byte(`{"event":"deposit.success"}`)

	if err := client.VerifyWebhook(context.Background(), sign("topsecret", body), body); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}
	if err := client.VerifyWebhook(context.Background(), sign("wrongsecret", body), body); !errors.Is(err, provider.ErrBadSignature) {
		t.Fatalf("forged signature error = %v, want ErrBadSignature", err)
	}
	if err := client.VerifyWebhook(context.Background(), "not-hex", body); !errors.Is(err, provider.ErrBadSignature) {
		t.Fatalf("garbage signature error = %v, want ErrBadSignature", err)
	}
}

func TestParseWebhook(t *testing.T) {
	client, _ := newTestClient("http://unused", "secret")

	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{
			name: "valid deposit",
			body: `{"event":"deposit.success","data":{"account_number":"9012345678","amount":"5000.00","reference":"DEP-1"}}`,
		},
		{
			name:    "wrong event type",
			body:    `{"event":"deposit.failed","data":{"account_number":"9012345678","amount":"5000"}}`,
			wantErr: true,
		},
		{
			name:    "missing account number",
			body:    `{"event":"deposit.success","data":{"amount":"5000"}}`,
			wantErr: true,
		},
		{
			name:    "malformed json",
			body:    `{`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := client.ParseWebhook([]byte(tt.body))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected parse error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseWebhook: %v", err)
			}
			if event.AccountNumber != "9012345678" {
				t.Fatalf("account number = %s", event.AccountNumber)
			}
			if event.Amount.AmountMinor != 500000 {
				t.Fatalf("amount minor = %d, want 500000", event.Amount.AmountMinor)
			}
		})
	}
}
