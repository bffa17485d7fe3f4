package provider

import (
	"encoding/json"
	"errors"

	"vtuplatform/internal/common/money"
)

// ErrBadSignature is returned when a webhook signature does not match
// the shared secret. Callers must reject the delivery.
var ErrBadSignature = errors.New("webhook signature mismatch")

// VirtualAccountRequest asks a funding vendor to reserve a dedicated
// bank account for a user.
type VirtualAccountRequest struct {
	UserID string
	Email  string
	Name   string
	Phone  string
}

// VirtualAccountDetails is the reserved account a customer pays into.
type VirtualAccountDetails struct {
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
	BankName      string `json:"bank_name"`
	Reference     string `json:"reference"`
}

// CheckoutSession is a vendor-hosted payment page for one funding
// attempt.
type CheckoutSession struct {
	Reference   string `json:"reference"`
	CheckoutURL string `json:"checkout_url"`
}

// FundingEvent is a normalized payment notification. Reference is set
// for checkout-style vendors, AccountNumber for virtual-account
// vendors; exactly one of the two identifies the credit target.
type FundingEvent struct {
	Reference     string
	AccountNumber string
	Amount        money.Money
	Raw           json.RawMessage
}
