// Package topupmate provides the Topupmate VTU adapter. Topupmate is
// the hardcoded fallback provider when no configuration matches.
package topupmate

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
const ProviderCode = "topupmate"

// Config holds environment-fallback credentials for Topupmate.
type Config struct {
	BaseURL string        `envconfig:"TOPUPMATE_BASE_URL" default:"https://topupmate.com/api"`
	APIKey  string        `envconfig:"TOPUPMATE_API_KEY"`
	Timeout time.Duration `envconfig:"TOPUPMATE_TIMEOUT" default:"30s"`
}

// Topupmate's network scheme; differs from SMEPlug's.
var networkIDs = map[string]string{
	"mtn":     "1",
	"glo":     "2",
	"airtel":  "3",
	"9mobile": "4",
}

// Exam body codes for result-checker pin purchases.
var examIDs = map[string]string{
	"waec":   "1",
	"neco":   "2",
	"nabteb": "3",
}

// Client is the Topupmate capability client.
type Client struct {
	provider.Unsupported

	httpClient *http.Client
	creds      provider.CredentialSource
	logger     *slog.Logger
}

// NewClient creates a Topupmate client.
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
		Cable:     true,
		ExamPin:   true,
		Status:    true,
	}
}

func (c *Client) headers(creds provider.Credentials) map[string]string {
	return map[string]string{"Authorization": "Token " + creds.APIKey}
}

type userResponse struct {
	Status string `json:"status"`
	Data   struct {
		Balance json.Number `json:"balance"`
	} `json:"data"`
	Balance json.Number `json:"balance"`
}

// Balance implements the balance capability. The account balance lives
// under data.balance on current deployments; the older flat field is
// still accepted.
func (c *Client) Balance(ctx context.Context) (money.Money, error) {
	creds, err := c.creds.Credentials(ctx, ProviderCode)
	if err != nil {
		return money.Money{}, err
	}

	var resp userResponse
	raw, err := provider.DoJSON(ctx, c.httpClient, ProviderCode, http.MethodGet,
		creds.BaseURL+"/user/", c.headers(creds), nil, &resp)
	if err != nil {
		return money.Money{}, err
	}

	balance := resp.Data.Balance
	if balance == "" {
		balance = resp.Balance
	}

	major, err := strconv.ParseFloat(balance.String(), 64)
	if err != nil {
		return money.Money{}, &provider.UpstreamError{
			Provider: ProviderCode,
			Message:  fmt.Sprintf("unparseable balance %q", balance),
			Body:     raw,
		}
	}

	return money.NewFromMajor(major, money.NGN), nil
}

// Networks implements the network catalog capability. Topupmate has no
// catalog endpoint; the translation table is the catalog.
func (c *Client) Networks(ctx context.Context) ([]provider.Network, error) {
	networks := make([]provider.Network, 0, len(networkIDs))
	for name, id := range networkIDs {
		networks = append(networks, provider.Network{ID: id, Name: name})
	}
	return networks, nil
}

type planListResponse struct {
	Status string `json:"status"`
	Data   []struct {
		PlanID   json.Number `json:"plan_id"`
		Network  string      `json:"network"`
		Name     string      `json:"plan_name"`
		Amount   json.Number `json:"amount"`
		Validity string      `json:"validity"`
	} `json:"data"`
}

// DataPlans implements the plan catalog capability.
func (c *Client) DataPlans(ctx context.Context, network string) ([]provider.DataPlan, error) {
	creds, err := c.creds.Credentials(ctx, ProviderCode)
	if err != nil {
		return nil, err
	}

	var resp planListResponse
	if _, err := provider.DoJSON(ctx, c.httpClient, ProviderCode, http.MethodGet,
		creds.BaseURL+"/data/plans/", c.headers(creds), nil, &resp); err != nil {
		return nil, err
	}

	var plans []provider.DataPlan
	for _, p := range resp.Data {
		if network != "" && p.Network != network {
			continue
		}
		amount, _ := strconv.ParseFloat(p.Amount.String(), 64)
		plans = append(plans, provider.DataPlan{
			ID:       p.PlanID.String(),
			Network:  p.Network,
			Name:     p.Name,
			Amount:   money.NewFromMajor(amount, money.NGN),
			Validity: p.Validity,
		})
	}
	return plans, nil
}

type purchaseResponse struct {
	Status    string `json:"status"` // success, failed, pending
	Message   string `json:"message"`
	Reference string `json:"transaction_id"`
}

// PurchaseAirtime implements the airtime capability.
func (c *Client) PurchaseAirtime(ctx context.Context, req provider.AirtimeRequest) (*provider.PurchaseResult, error) {
	creds, err := c.creds.Credentials(ctx, ProviderCode)
	if err != nil {
		return nil, err
	}

	networkID, ok := networkIDs[req.Network]
	if !ok {
		return nil, fmt.Errorf("topupmate: unknown network %q", req.Network)
	}

	body := map[string]interface{}{
		"network":       networkID,
		"mobile_number": req.Phone,
		"amount":        req.Amount.ToMajor(),
		"reference":     req.Reference,
		"airtime_type":  "VTU",
	}

	var resp purchaseResponse
	raw, err := provider.DoJSON(ctx, c.httpClient, ProviderCode, http.MethodPost,
		creds.BaseURL+"/topup/", c.headers(creds), body, &resp)
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
		return nil, fmt.Errorf("topupmate: unknown network %q", req.Network)
	}

	body := map[string]interface{}{
		"network":       networkID,
		"mobile_number": req.Phone,
		"plan":          req.PlanID,
		"reference":     req.Reference,
	}

	var resp purchaseResponse
	raw, err := provider.DoJSON(ctx, c.httpClient, ProviderCode, http.MethodPost,
		creds.BaseURL+"/data/", c.headers(creds), body, &resp)
	if err != nil {
		return nil, err
	}

	return c.toResult(resp, raw), nil
}

// PurchaseBill implements cable subscriptions and exam pins. Electricity
// is not offered by Topupmate.
func (c *Client) PurchaseBill(ctx context.Context, req provider.BillRequest) (*provider.PurchaseResult, error) {
	creds, err := c.creds.Credentials(ctx, ProviderCode)
	if err != nil {
		return nil, err
	}

	var path string
	var body map[string]interface{}

	switch req.Service {
	case provider.ServiceCable:
		path = "/cablesub/"
		body = map[string]interface{}{
			"cablename":         req.Biller,
			"cableplan":         req.Variation,
			"smart_card_number": req.Account,
			"reference":         req.Reference,
		}
	case provider.ServiceExamPin:
		examID, ok := examIDs[req.Biller]
		if !ok {
			return nil, fmt.Errorf("topupmate: unknown exam body %q", req.Biller)
		}
		body = map[string]interface{}{
			"exam_name": examID,
			"quantity":  req.Account,
			"reference": req.Reference,
		}
		path = "/epin/"
	default:
		return nil, provider.ErrNotSupported
	}

	var resp purchaseResponse
	raw, err := provider.DoJSON(ctx, c.httpClient, ProviderCode, http.MethodPost,
		creds.BaseURL+path, c.headers(creds), body, &resp)
	if err != nil {
		return nil, err
	}

	return c.toResult(resp, raw), nil
}

type statusQueryResponse struct {
	Status string `json:"status"`
}

// TransactionStatus implements the status-query capability.
func (c *Client) TransactionStatus(ctx context.Context, reference string) (provider.ResultStatus, error) {
	creds, err := c.creds.Credentials(ctx, ProviderCode)
	if err != nil {
		return "", err
	}

	var resp statusQueryResponse
	if _, err := provider.DoJSON(ctx, c.httpClient, ProviderCode, http.MethodGet,
		creds.BaseURL+"/transaction/?reference="+reference, c.headers(creds), nil, &resp); err != nil {
		return "", err
	}

	switch resp.Status {
	case "success", "successful":
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
	switch resp.Status {
	case "success", "successful":
		result.Status = provider.ResultSuccess
	case "pending", "processing":
		result.Status = provider.ResultPending
	}
	return result
}
