// Package payrant provides the Payrant funding adapter. Payrant issues
// dedicated virtual bank accounts and notifies deposits by webhook.
package payrant

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
const ProviderCode = "payrant"

// Config holds environment-fallback credentials for Payrant.
type Config struct {
	BaseURL   string        `envconfig:"PAYRANT_BASE_URL" default:"https://api.payrant.com/v1"`
	APIKey    string        `envconfig:"PAYRANT_API_KEY"`
	SecretKey string        `envconfig:"PAYRANT_SECRET_KEY"`
	Timeout   time.Duration `envconfig:"PAYRANT_TIMEOUT" default:"30s"`
}

// createAccountAttempts bounds the retry loop for account reservation.
// Payrant's account-issuing backend sheds load under bursts, so the
// call is retried with 1s, 2s, 4s waits before giving up.
const createAccountAttempts = 3

// Client is the Payrant funding client.
type Client struct {
	provider.Unsupported

	httpClient *http.Client
	creds      provider.CredentialSource
	logger     *slog.Logger

	// sleep is replaced in tests to avoid real backoff waits.
	sleep func(context.Context, time.Duration) error
}

// NewClient creates a Payrant client.
func NewClient(cfg Config, creds provider.CredentialSource, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		creds:      creds,
		logger:     logger,
		sleep:      sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Code implements provider.Client.
func (c *Client) Code() string { return ProviderCode }

// Capabilities implements provider.Client.
func (c *Client) Capabilities() provider.Capabilities {
	return provider.Capabilities{VirtualAccounts: true}
}

func (c *Client) headers(creds provider.Credentials) map[string]string {
	return map[string]string{"Authorization": "Bearer " + creds.APIKey}
}

type createAccountResponse struct {
	Status string `json:"status"`
	Data   struct {
		AccountNumber string `json:"account_number"`
		AccountName   string `json:"account_name"`
		BankName      string `json:"bank_name"`
		Reference     string `json:"reference"`
	} `json:"data"`
	Message string `json:"message"`
}

// CreateVirtualAccount reserves a dedicated account for the user.
// Retries transient upstream failures with exponential backoff.
func (c *Client) CreateVirtualAccount(ctx context.Context, req provider.VirtualAccountRequest) (*provider.VirtualAccountDetails, error) {
	creds, err := c.creds.Credentials(ctx, ProviderCode)
	if err != nil {
		return nil, err
	}

	body := map[string]interface{}{
		"customer_id": req.UserID,
		"email":       req.Email,
		"name":        req.Name,
		"phone":       req.Phone,
	}

	var lastErr error
	backoff := time.Second
	for attempt := 1; attempt <= createAccountAttempts; attempt++ {
		if attempt > 1 {
			if err := c.sleep(ctx, backoff); err != nil {
				return nil, err
			}
			backoff *= 2
		}

		var resp createAccountResponse
		_, err := provider.DoJSON(ctx, c.httpClient, ProviderCode, http.MethodPost,
			creds.BaseURL+"/virtual-accounts", c.headers(creds), body, &resp)
		if err != nil {
			lastErr = err
			c.logger.Warn("payrant account creation failed",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()))
			continue
		}
		if resp.Status != "success" {
			lastErr = fmt.Errorf("payrant: account creation rejected: %s", resp.Message)
			continue
		}

		return &provider.VirtualAccountDetails{
			AccountNumber: resp.Data.AccountNumber,
			AccountName:   resp.Data.AccountName,
			BankName:      resp.Data.BankName,
			Reference:     resp.Data.Reference,
		}, nil
	}
	return nil, lastErr
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
		AccountNumber string      `json:"account_number"`
		Amount        json.Number `json:"amount"`
		Reference     string      `json:"reference"`
	} `json:"data"`
}

// ParseWebhook decodes a verified deposit notification. Payrant keys
// deposits by the receiving account number; the vendor reference is
// carried along for audit.
func (c *Client) ParseWebhook(body []byte) (*provider.FundingEvent, error) {
	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("payrant: malformed webhook body: %w", err)
	}
	if payload.Event != "deposit.success" {
		return nil, fmt.Errorf("payrant: unhandled webhook event %q", payload.Event)
	}
	if payload.Data.AccountNumber == "" {
		return nil, errors.New("payrant: webhook missing account number")
	}

	major, err := payload.Data.Amount.Float64()
	if err != nil {
		return nil, fmt.Errorf("payrant: unparseable amount %q", payload.Data.Amount)
	}

	return &provider.FundingEvent{
		Reference:     payload.Data.Reference,
		AccountNumber: payload.Data.AccountNumber,
		Amount:        money.NewFromMajor(major, money.NGN),
		Raw:           json.RawMessage(body),
	}, nil
}
