// Package provider defines the uniform capability surface every upstream
// VTU vendor adapter implements, and the registry that routes purchase
// requests to the right adapter.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"vtuplatform/internal/common/money"
)

// Service names a purchasable service used for provider eligibility.
type Service string

const (
	ServiceAirtime     Service = "airtime"
	ServiceData        Service = "data"
	ServiceCable       Service = "cable"
	ServiceElectricity Service = "electricity"
	ServiceExamPin     Service = "exampin"
	ServiceFunding     Service = "funding"
)

// Capabilities declares which operations a client supports. Checked at
// registration and during routing, never via per-call reflection.
type Capabilities struct {
	Balance         bool
	Networks        bool
	DataPlans       bool
	Airtime         bool
	Data            bool
	Cable           bool
	Electricity     bool
	ExamPin         bool
	Status          bool
	VirtualAccounts bool
}

// Supports reports whether the capability set covers a service.
func (c Capabilities) Supports(svc Service) bool {
	switch svc {
	case ServiceAirtime:
		return c.Airtime
	case ServiceData:
		return c.Data
	case ServiceCable:
		return c.Cable
	case ServiceElectricity:
		return c.Electricity
	case ServiceExamPin:
		return c.ExamPin
	case ServiceFunding:
		return c.VirtualAccounts
	default:
		return false
	}
}

// ResultStatus is the normalized outcome of a purchase call.
type ResultStatus string

const (
	ResultSuccess ResultStatus = "success"
	ResultFailed  ResultStatus = "failed"
	ResultPending ResultStatus = "pending"
)

// PurchaseResult is the normalized response of a purchase capability.
// Raw carries the vendor's response verbatim for the transaction record.
type PurchaseResult struct {
	Status            ResultStatus    `json:"status"`
	ProviderReference string          `json:"provider_reference,omitempty"`
	Message           string          `json:"message,omitempty"`
	Raw               json.RawMessage `json:"raw,omitempty"`
}

// Network is a mobile network operator as the vendor names it.
type Network struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// DataPlan is a purchasable data bundle.
type DataPlan struct {
	ID       string      `json:"id"`
	Network  string      `json:"network"`
	Name     string      `json:"name"`
	Amount   money.Money `json:"amount"`
	Validity string      `json:"validity,omitempty"`
}

// AirtimeRequest is a request to purchase airtime. Reference is the
// caller-generated idempotency key, forwarded to the vendor.
type AirtimeRequest struct {
	Network   string
	Phone     string
	Amount    money.Money
	Reference string
}

// DataRequest is a request to purchase a data bundle.
type DataRequest struct {
	Network   string
	PlanID    string
	Phone     string
	Reference string
}

// BillRequest is a request to pay a bill (cable, electricity, exam pin).
type BillRequest struct {
	Service   Service
	Biller    string // e.g. dstv, ikeja-electric, waec
	Account   string // smartcard / meter number / quantity holder
	Variation string // bouquet or meter type variation code
	Amount    money.Money
	Phone     string
	Reference string
}

// Client is the uniform capability surface of an upstream vendor.
// Operations outside the declared Capabilities return ErrNotSupported.
type Client interface {
	Code() string
	Capabilities() Capabilities

	Balance(ctx context.Context) (money.Money, error)
	Networks(ctx context.Context) ([]Network, error)
	DataPlans(ctx context.Context, network string) ([]DataPlan, error)
	PurchaseAirtime(ctx context.Context, req AirtimeRequest) (*PurchaseResult, error)
	PurchaseData(ctx context.Context, req DataRequest) (*PurchaseResult, error)
	PurchaseBill(ctx context.Context, req BillRequest) (*PurchaseResult, error)
	TransactionStatus(ctx context.Context, reference string) (ResultStatus, error)
}

// ErrNotSupported is returned by a capability the vendor does not offer.
var ErrNotSupported = errors.New("capability not supported by provider")

// CredentialSource resolves connection credentials for a provider code
// at call time, so admin credential rotation is picked up without a
// process restart.
type CredentialSource interface {
	Credentials(ctx context.Context, code string) (Credentials, error)
}

// Unsupported is an embeddable base returning ErrNotSupported for every
// capability. Adapters embed it and override what they implement.
type Unsupported struct{}

func (Unsupported) Balance(context.Context) (money.Money, error) {
	return money.Money{}, ErrNotSupported
}
func (Unsupported) Networks(context.Context) ([]Network, error) { return nil, ErrNotSupported }
func (Unsupported) DataPlans(context.Context, string) ([]DataPlan, error) {
	return nil, ErrNotSupported
}
func (Unsupported) PurchaseAirtime(context.Context, AirtimeRequest) (*PurchaseResult, error) {
	return nil, ErrNotSupported
}
func (Unsupported) PurchaseData(context.Context, DataRequest) (*PurchaseResult, error) {
	return nil, ErrNotSupported
}
func (Unsupported) PurchaseBill(context.Context, BillRequest) (*PurchaseResult, error) {
	return nil, ErrNotSupported
}
func (Unsupported) TransactionStatus(context.Context, string) (ResultStatus, error) {
	return "", ErrNotSupported
}

// UpstreamError is a vendor HTTP failure: non-2xx status, timeout, or a
// malformed body.
type UpstreamError struct {
	Provider   string
	StatusCode int
	Message    string
	Body       []byte
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s upstream error: status=%d %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s upstream error: %s", e.Provider, e.Message)
}

// DoJSON performs a JSON request against a vendor API and decodes the
// response into out (when non-nil). The raw body is always returned so
// adapters can attach it to the transaction record. Non-2xx statuses and
// undecodable bodies surface as *UpstreamError.
func DoJSON(ctx context.Context, client *http.Client, providerCode, method, url string, headers map[string]string, body, out interface{}) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &UpstreamError{Provider: providerCode, Message: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &UpstreamError{Provider: providerCode, StatusCode: resp.StatusCode, Message: "reading response body"}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return respBody, &UpstreamError{
			Provider:   providerCode,
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
			Body:       respBody,
		}
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return respBody, &UpstreamError{
				Provider:   providerCode,
				StatusCode: resp.StatusCode,
				Message:    "malformed response body",
				Body:       respBody,
			}
		}
	}

	return respBody, nil
}
