// Package vtpass provides the VTpass bill-payment adapter. VTpass is
// the primary route for electricity and a secondary route for cable,
// airtime and data.
package vtpass

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"vtuplatform/internal/common/money"
	"vtuplatform/internal/provider"
)

// ProviderCode identifies this adapter in the registry and config store.
const ProviderCode = "vtpass"

// Config holds environment-fallback credentials for VTpass.
type Config struct {
	BaseURL   string        `envconfig:"VTPASS_BASE_URL" default:"https://vtpass.com/api"`
	APIKey    string        `envconfig:"VTPASS_API_KEY"`
	SecretKey string        `envconfig:"VTPASS_SECRET_KEY"`
	Timeout   time.Duration `envconfig:"VTPASS_TIMEOUT" default:"30s"`
}

// VTpass routes purchases by serviceID rather than numeric network IDs.
var airtimeServiceIDs = map[string]string{
	"mtn":     "mtn",
	"glo":     "glo",
	"airtel":  "airtel",
	"9mobile": "etisalat",
}

var dataServiceIDs = map[string]string{
	"mtn":     "mtn-data",
	"glo":     "glo-data",
	"airtel":  "airtel-data",
	"9mobile": "etisalat-data",
}

// Client is the VTpass capability client.
type Client struct {
	provider.Unsupported

	httpClient *http.Client
	creds      provider.CredentialSource
	logger     *slog.Logger
}

// NewClient creates a VTpass client.
func NewClient(cfg Config, creds provider.CredentialSource, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		creds:      creds,
		logger:     logger,
	}
}

// Code implements provider.Client.
func (c *Client) Code() string { return ProviderCode }

// Capabilities implements provider.Client.
func (c *Client) Capabilities() provider.Capabilities {
	return provider.Capabilities{
		DataPlans:   true,
		Airtime:     true,
		Data:        true,
		Cable:       true,
		Electricity: true,
		Status:      true,
	}
}

func (c *Client) headers(creds provider.Credentials) map[string]string {
	return map[string]string{
		"api-key":    creds.APIKey,
		"secret-key": creds.SecretKey,
	}
}

// payResponse: code "000" means delivered; anything else is a failure
// except "099" which means the transaction is still processing.
type payResponse struct {
	Code    string `json:"code"`
	Content struct {
		Transactions struct {
			Status        string `json:"status"`
			TransactionID string `json:"transactionId"`
		} `json:"transactions"`
	} `json:"content"`
	ResponseDescription string `json:"response_description"`
}

func (c *Client) pay(ctx context.Context, body map[string]interface{}) (*provider.PurchaseResult, error) {
	creds, err := c.creds.Credentials(ctx, ProviderCode)
	if err != nil {
		return nil, err
	}

	var resp payResponse
	raw, err := provider.DoJSON(ctx, c.httpClient, ProviderCode, http.MethodPost,
		creds.BaseURL+"/pay", c.headers(creds), body, &resp)
	if err != nil {
		return nil, err
	}

	result := &provider.PurchaseResult{
		ProviderReference: resp.Content.Transactions.TransactionID,
		Message:           resp.ResponseDescription,
		Raw:               raw,
	}
	switch resp.Code {
	case "000":
		result.Status = provider.ResultSuccess
	case "099":
		result.Status = provider.ResultPending
	default:
		result.Status = provider.ResultFailed
	}
	return result, nil
}

// PurchaseAirtime implements the airtime capability. The request_id
// doubles as the vendor-side idempotency key.
func (c *Client) PurchaseAirtime(ctx context.Context, req provider.AirtimeRequest) (*provider.PurchaseResult, error) {
	serviceID, ok := airtimeServiceIDs[req.Network]
	if !ok {
		return nil, fmt.Errorf("vtpass: unknown network %q", req.Network)
	}
	return c.pay(ctx, map[string]interface{}{
		"request_id": req.Reference,
		"serviceID":  serviceID,
		"amount":     req.Amount.ToMajor(),
		"phone":      req.Phone,
	})
}

// PurchaseData implements the data capability.
func (c *Client) PurchaseData(ctx context.Context, req provider.DataRequest) (*provider.PurchaseResult, error) {
	serviceID, ok := dataServiceIDs[req.Network]
	if !ok {
		return nil, fmt.Errorf("vtpass: unknown network %q", req.Network)
	}
	return c.pay(ctx, map[string]interface{}{
		"request_id":     req.Reference,
		"serviceID":      serviceID,
		"billersCode":    req.Phone,
		"variation_code": req.PlanID,
		"phone":          req.Phone,
	})
}

// PurchaseBill implements cable and electricity. Biller maps directly
// to a VTpass serviceID (dstv, gotv, ikeja-electric, eko-electric).
func (c *Client) PurchaseBill(ctx context.Context, req provider.BillRequest) (*provider.PurchaseResult, error) {
	switch req.Service {
	case provider.ServiceCable:
		return c.pay(ctx, map[string]interface{}{
			"request_id":     req.Reference,
			"serviceID":      req.Biller,
			"billersCode":    req.Account,
			"variation_code": req.Variation,
			"phone":          req.Phone,
		})
	case provider.ServiceElectricity:
		return c.pay(ctx, map[string]interface{}{
			"request_id":     req.Reference,
			"serviceID":      req.Biller,
			"billersCode":    req.Account,
			"variation_code": req.Variation, // prepaid or postpaid
			"amount":         req.Amount.ToMajor(),
			"phone":          req.Phone,
		})
	default:
		return nil, provider.ErrNotSupported
	}
}

type variationsResponse struct {
	Content struct {
		Variations []struct {
			Code   string `json:"variation_code"`
			Name   string `json:"name"`
			Amount string `json:"variation_amount"`
		} `json:"varations"` // sic, the vendor misspells the field
	} `json:"content"`
}

// DataPlans implements the plan catalog capability via the
// service-variations endpoint.
func (c *Client) DataPlans(ctx context.Context, network string) ([]provider.DataPlan, error) {
	serviceID, ok := dataServiceIDs[network]
	if !ok {
		return nil, fmt.Errorf("vtpass: unknown network %q", network)
	}

	creds, err := c.creds.Credentials(ctx, ProviderCode)
	if err != nil {
		return nil, err
	}

	var resp variationsResponse
	if _, err := provider.DoJSON(ctx, c.httpClient, ProviderCode, http.MethodGet,
		creds.BaseURL+"/service-variations?serviceID="+serviceID, c.headers(creds), nil, &resp); err != nil {
		return nil, err
	}

	plans := make([]provider.DataPlan, 0, len(resp.Content.Variations))
	for _, v := range resp.Content.Variations {
		amount, _ := strconv.ParseFloat(v.Amount, 64)
		plans = append(plans, provider.DataPlan{
			ID:      v.Code,
			Network: network,
			Name:    v.Name,
			Amount:  money.NewFromMajor(amount, money.NGN),
		})
	}
	return plans, nil
}

// TransactionStatus implements the status-query capability via requery.
func (c *Client) TransactionStatus(ctx context.Context, reference string) (provider.ResultStatus, error) {
	creds, err := c.creds.Credentials(ctx, ProviderCode)
	if err != nil {
		return "", err
	}

	var resp payResponse
	if _, err := provider.DoJSON(ctx, c.httpClient, ProviderCode, http.MethodPost,
		creds.BaseURL+"/requery", c.headers(creds),
		map[string]interface{}{"request_id": reference}, &resp); err != nil {
		return "", err
	}

	switch resp.Code {
	case "000":
		if resp.Content.Transactions.Status == "delivered" {
			return provider.ResultSuccess, nil
		}
		return provider.ResultPending, nil
	case "099":
		return provider.ResultPending, nil
	default:
		return provider.ResultFailed, nil
	}
}
