// Package smeplug provides the SMEPlug VTU adapter (airtime and data).
package smeplug

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"vtuplatform/internal/common/money"
	"vtuplatform/internal/provider"
)

// ProviderCode identifies this adapter in the registry and config store.
const ProviderCode = "smeplug"

// Config holds environment-fallback credentials for SMEPlug.
type Config struct {
	BaseURL string        `envconfig:"SMEPLUG_BASE_URL" default:"https://smeplug.ng/api/v1"`
	APIKey  string        `envconfig:"SMEPLUG_API_KEY"`
	Timeout time.Duration `envconfig:"SMEPLUG_TIMEOUT" default:"30s"`
}

// SMEPlug numbers networks differently from the other vendors; MTN is 1
// here but 3 on topupmate.
var networkIDs = map[string]string{
	"mtn":     "1",
	"airtel":  "2",
	"9mobile": "3",
	"glo":     "4",
}

// Client is the SMEPlug capability client.
type Client struct {
	provider.Unsupported

	httpClient *http.Client
	creds      provider.CredentialSource
	logger     *slog.Logger
}

// NewClient creates a SMEPlug client.
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
		Balance:   true,
		Networks:  true,
		DataPlans: true,
		Airtime:   true,
		Data:      true,
		Status:    true,
	}
}

func (c *Client) headers(creds provider.Credentials) map[string]string {
	return map[string]string{"Authorization": "Bearer " + creds.APIKey}
}

type balanceResponse struct {
	Status  bool   `json:"status"`
	Balance string `json:"balance"`
	Data    *struct {
		Balance string `json:"balance"`
	} `json:"data"`
}

// Balance implements the balance capability. SMEPlug has shipped both a
// flat balance field and a nested data.balance variant; both are
// tolerated.
func (c *Client) Balance(ctx context.Context) (money.Money, error) {
	creds, err := c.creds.Credentials(ctx, ProviderCode)
	if err != nil {
		return money.Money{}, err
	}

	var resp balanceResponse
	raw, err := provider.DoJSON(ctx, c.httpClient, ProviderCode, http.MethodGet,
		creds.BaseURL+"/balance", c.headers(creds), nil, &resp)
	if err != nil {
		return money.Money{}, err
	}

	balanceStr := resp.Balance
	if balanceStr == "" && resp.Data != nil {
		balanceStr = resp.Data.Balance
	}

	major, err := strconv.ParseFloat(balanceStr, 64)
	if err != nil {
		return money.Money{}, &provider.UpstreamError{
			Provider: ProviderCode,
			Message:  fmt.Sprintf("unparseable balance %q", balanceStr),
			Body:     raw,
		}
	}

	return money.NewFromMajor(major, money.NGN), nil
}

type networksResponse struct {
	Status   bool `json:"status"`
	Networks []struct {
		ID   json.Number `json:"id"`
		Name string      `json:"name"`
	} `json:"networks"`
}

// Networks implements the network catalog capability.
func (c *Client) Networks(ctx context.Context) ([]provider.Network, error) {
	creds, err := c.creds.Credentials(ctx, ProviderCode)
	if err != nil {
		return nil, err
	}

	var resp networksResponse
	if _, err := provider.DoJSON(ctx, c.httpClient, ProviderCode, http.MethodGet,
		creds.BaseURL+"/networks", c.headers(creds), nil, &resp); err != nil {
		return nil, err
	}

	networks := make([]provider.Network, 0, len(resp.Networks))
	for _, n := range resp.Networks {
		networks = append(networks, provider.Network{ID: n.ID.String(), Name: n.Name})
	}
	return networks, nil
}

type plansResponse struct {
	Status bool `json:"status"`
	Data   map[string][]struct {
		ID       json.Number `json:"id"`
		Name     string      `json:"name"`
		Price    string      `json:"price"`
		Validity string      `json:"validity"`
	} `json:"data"`
}

// DataPlans implements the plan catalog capability for a network name.
func (c *Client) DataPlans(ctx context.Context, network string) ([]provider.DataPlan, error) {
	creds, err := c.creds.Credentials(ctx, ProviderCode)
	if err != nil {
		return nil, err
	}

	var resp plansResponse
	if _, err := provider.DoJSON(ctx, c.httpClient, ProviderCode, http.MethodGet,
		creds.BaseURL+"/data/plans", c.headers(creds), nil, &resp); err != nil {
		return nil, err
	}

	var plans []provider.DataPlan
	for vendorNetwork, vendorPlans := range resp.Data {
		if network != "" && vendorNetwork != network {
			continue
		}
		for _, p := range vendorPlans {
			price, _ := strconv.ParseFloat(p.Price, 64)
			plans = append(plans, provider.DataPlan{
				ID:       p.ID.String(),
				Network:  vendorNetwork,
				Name:     p.Name,
				Amount:   money.NewFromMajor(price, money.NGN),
				Validity: p.Validity,
			})
		}
	}
	return plans, nil
}

type purchaseResponse struct {
	Status    bool   `json:"status"`
	Message   string `json:"msg"`
	Reference string `json:"reference"`
}

// PurchaseAirtime implements the airtime capability. The caller's
// reference is forwarded as customer_reference, SMEPlug's idempotency
// field.
func (c *Client) PurchaseAirtime(ctx context.Context, req provider.AirtimeRequest) (*provider.PurchaseResult, error) {
	creds, err := c.creds.Credentials(ctx, ProviderCode)
	if err != nil {
		return nil, err
	}

	networkID, ok := networkIDs[req.Network]
	if !ok {
		return nil, fmt.Errorf("smeplug: unknown network %q", req.Network)
	}

	body := map[string]interface{}{
		"network_id":         networkID,
		"phone":              req.Phone,
		"amount":             req.Amount.ToMajor(),
		"customer_reference": req.Reference,
	}

	var resp purchaseResponse
	raw, err := provider.DoJSON(ctx, c.httpClient, ProviderCode, http.MethodPost,
		creds.BaseURL+"/airtime/purchase", c.headers(creds), body, &resp)
	if err != nil {
		return nil, err
	}

	return c.toResult(resp, raw), nil
}

// PurchaseData implements the data capability.
func (c *Client) PurchaseData(ctx context.Context, req provider.DataRequest) (*provider.PurchaseResult, error) {
	creds, err := c.creds.Credentials(ctx, ProviderCode)
	if err != nil {
		return nil, err
	}

	networkID, ok := networkIDs[req.Network]
	if !ok {
		return nil, fmt.Errorf("smeplug: unknown network %q", req.Network)
	}

	body := map[string]interface{}{
		"network_id":         networkID,
		"plan_id":            req.PlanID,
		"phone":              req.Phone,
		"customer_reference": req.Reference,
	}

	var resp purchaseResponse
	raw, err := provider.DoJSON(ctx, c.httpClient, ProviderCode, http.MethodPost,
		creds.BaseURL+"/data/purchase", c.headers(creds), body, &resp)
	if err != nil {
		return nil, err
	}

	return c.toResult(resp, raw), nil
}

type statusResponse struct {
	Status bool `json:"status"`
	Data   struct {
		Status string `json:"status"` // success, failed, pending
	} `json:"data"`
}

// TransactionStatus implements the status-query capability, used for
// out-of-band reconciliation of timed-out purchases.
func (c *Client) TransactionStatus(ctx context.Context, reference string) (provider.ResultStatus, error) {
	creds, err := c.creds.Credentials(ctx, ProviderCode)
	if err != nil {
		return "", err
	}

	var resp statusResponse
	if _, err := provider.DoJSON(ctx, c.httpClient, ProviderCode, http.MethodGet,
		creds.BaseURL+"/transaction/status/"+reference, c.headers(creds), nil, &resp); err != nil {
		return "", err
	}

	switch resp.Data.Status {
	case "success":
		return provider.ResultSuccess, nil
	case "pending", "processing":
		return provider.ResultPending, nil
	default:
		return provider.ResultFailed, nil
	}
}

func (c *Client) toResult(resp purchaseResponse, raw []byte) *provider.PurchaseResult {
	result := &provider.PurchaseResult{
		Status:            provider.ResultFailed,
		ProviderReference: resp.Reference,
		Message:           resp.Message,
		Raw:               raw,
	}
	if resp.Status {
		result.Status = provider.ResultSuccess
	}
	return result
}
