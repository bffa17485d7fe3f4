package funding

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"vtuplatform/internal/common/money"
	"vtuplatform/internal/provider"
)

func newWebhookTestServer(t *testing.T) (*httptest.Server, *fakeWalletStore) {
	t.Helper()

	wallets := &fakeWalletStore{balances: map[string]int64{"u1": 0}}
	accounts := newFakeAccounts()
	accounts.Create(context.Background(), &VirtualAccount{
		UserID: "u1", Provider: "payrant", AccountNumber: "9012345678",
	})

	svc := newTestFundingService(wallets, newFakeTxStore(), accounts, nil)
	svc.RegisterWebhookSource("payrant", &fakeSource{
		signature: "good",
		event: &provider.FundingEvent{
			Reference:     "DEP-7",
			AccountNumber: "9012345678",
			Amount:        money.NewFromMajor(1000, money.NGN),
		},
	})

	handler := NewHandler(svc, nil, discardLogger())
	r := chi.NewRouter()
	handler.WebhookRoutes(r)

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return server, wallets
}

func postWebhook(t *testing.T, url, signature string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(`{"event":"deposit.success"}`))
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	if signature != "" {
		req.Header.Set(SignatureHeader, signature)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("posting webhook: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestWebhookEndpointStatuses(t *testing.T) {
	server, wallets := newWebhookTestServer(t)
	url := server.URL + "/payment/webhook/payrant"

	if resp := postWebhook(t, url, ""); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unsigned webhook status = %d, want 401", resp.StatusCode)
	}
	if resp := postWebhook(t, url, "forged"); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("forged signature status = %d, want 401", resp.StatusCode)
	}
	if wallets.credits != 0 {
		t.Fatal("rejected webhooks must not credit")
	}

	if resp := postWebhook(t, url, "good"); resp.StatusCode != http.StatusOK {
		t.Fatalf("valid webhook status = %d, want 200", resp.StatusCode)
	}
	if wallets.credits != 1 {
		t.Fatalf("credits = %d, want 1", wallets.credits)
	}

	// Replay: 200 again, no further credit.
	if resp := postWebhook(t, url, "good"); resp.StatusCode != http.StatusOK {
		t.Fatalf("replay status = %d, want 200", resp.StatusCode)
	}
	if wallets.credits != 1 {
		t.Fatalf("credits after replay = %d, want still 1", wallets.credits)
	}

	if resp := postWebhook(t, server.URL+"/payment/webhook/nosuch", "good"); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown provider status = %d, want 404", resp.StatusCode)
	}
}

func TestWebhookEndpointUnknownAccount(t *testing.T) {
	wallets := &fakeWalletStore{balances: map[string]int64{"u1": 0}}
	svc := newTestFundingService(wallets, newFakeTxStore(), newFakeAccounts(), nil)
	svc.RegisterWebhookSource("payrant", &fakeSource{
		signature: "good",
		event: &provider.FundingEvent{
			Reference:     "DEP-8",
			AccountNumber: "1111111111",
			Amount:        money.NewFromMajor(100, money.NGN),
		},
	})

	r := chi.NewRouter()
	NewHandler(svc, nil, discardLogger()).WebhookRoutes(r)
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)

	resp := postWebhook(t, server.URL+"/payment/webhook/payrant", "good")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown account status = %d, want 404", resp.StatusCode)
	}
	if wallets.credits != 0 {
		t.Fatal("unknown account must not credit")
	}
}
