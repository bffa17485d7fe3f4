// Package vtpay provides the VTpay funding adapter. VTpay hosts a
// checkout page per funding attempt and notifies completion by
// webhook keyed on our reference.
package vtpay

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"vtuplatform/internal/common/money"
	"vtuplatform/internal/provider"
)

// ProviderCode identifies this adapter in the registry and config store.
const ProviderCode = "vtpay"

// Config holds environment-fallback credentials for VTpay.
type Config struct {
	BaseURL   string        `envconfig:"VTPAY_BASE_URL" default:"https://api.vtpay.ng/v1"`
	APIKey    string        `envconfig:"VTPAY_API_KEY"`
	SecretKey string        `envconfig:"VTPAY_SECRET_KEY"`
	Timeout   time.Duration `envconfig:"VTPAY_TIMEOUT" default:"30s"`
}

// Client is the VTpay funding client.
type Client struct {
	provider.Unsupported

	httpClient *http.Client
	creds      provider.CredentialSource
	logger     *slog.Logger
}

// NewClient creates a VTpay client.
func NewClient(cfg Config, creds provider.CredentialSource, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		creds:      creds,
		logger:     logger,
	}
}

// Code implements provider.Client.
func (c *Client) Code() string { return ProviderCode }

// Capabilities implements provider.Client. Checkout funding is modeled
// under the funding capability alongside virtual accounts.
func (c *Client) Capabilities() provider.Capabilities {
	return provider.Capabilities{VirtualAccounts: true}
}

func (c *Client) headers(creds provider.Credentials) map[string]string {
	return map[string]string{"Authorization": "Bearer " + creds.APIKey}
}

type checkoutResponse struct {
	Status string `json:"status"`
	Data   struct {
		CheckoutURL string `json:"checkout_url"`
		Reference   string `json:"reference"`
	} `json:"data"`
	Message string `json:"message"`
}

// InitiateCheckout opens a hosted payment session for the given amount.
// The reference is ours and round-trips through the completion webhook.
func (c *Client) InitiateCheckout(ctx context.Context, reference, email string, amount money.Money) (*provider.CheckoutSession, error) {
	creds, err := c.creds.Credentials(ctx, ProviderCode)
	if err != nil {
		return nil, err
	}

	var resp checkoutResponse
	_, err = provider.DoJSON(ctx, c.httpClient, ProviderCode, http.MethodPost,
		creds.BaseURL+"/checkout", c.headers(creds), map[string]interface{}{
			"reference": reference,
			"email":     email,
			"amount":    amount.ToMajor(),
			"currency":  string(amount.Currency),
		}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Status != "success" {
		return nil, fmt.Errorf("vtpay: checkout rejected: %s", resp.Message)
	}

	return &provider.CheckoutSession{
		Reference:   resp.Data.Reference,
		CheckoutURL: resp.Data.CheckoutURL,
	}, nil
}

// VerifyWebhook checks the hex-encoded HMAC-SHA256 signature of a raw
// webhook body against the provider secret key.
func (c *Client) VerifyWebhook(ctx context.Context, signature string, body []byte) error {
	creds, err := c.creds.Credentials(ctx, ProviderCode)
	if err != nil {
		return err
	}

	mac := hmac.New(sha256.New, []byte(creds.SecretKey))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return provider.ErrBadSignature
	}
	return nil
}

type webhookPayload struct {
	Event string `json:"event"`
	Data  struct {
		Reference string      `json:"reference"`
		Amount    json.Number `json:"amount"`
		Status    string      `json:"status"`
	} `json:"data"`
}

// ParseWebhook decodes a verified payment notification. VTpay keys
// completions by the reference we supplied at checkout.
func (c *Client) ParseWebhook(body []byte) (*provider.FundingEvent, error) {
	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("vtpay: malformed webhook body: %w", err)
	}
	if payload.Event != "payment.completed" || payload.Data.Status != "successful" {
		return nil, fmt.Errorf("vtpay: unhandled webhook event %q", payload.Event)
	}
	if payload.Data.Reference == "" {
		return nil, errors.New("vtpay: webhook missing reference")
	}

	major, err := payload.Data.Amount.Float64()
	if err != nil {
		return nil, fmt.Errorf("vtpay: unparseable amount %q", payload.Data.Amount)
	}

	return &provider.FundingEvent{
		Reference: payload.Data.Reference,
		Amount:    money.NewFromMajor(major, money.NGN),
		Raw:       json.RawMessage(body),
	}, nil
}
