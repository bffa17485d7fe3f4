// Package transaction is the durable record of every attempted purchase
// or funding event.
package transaction

import (
	"encoding/json"
	"errors"
	"time"

	"vtuplatform/internal/common/money"
)

// Type classifies what a transaction paid for.
type Type string

const (
	TypeAirtime       Type = "airtime"
	TypeData          Type = "data"
	TypeCable         Type = "cable"
	TypeElectricity   Type = "electricity"
	TypeExamPin       Type = "exampin"
	TypeWalletTopup   Type = "wallet_topup"
	TypeWalletFunding Type = "wallet_funding"
	TypeCredit        Type = "credit"
)

// IsPurchase reports whether the transaction reserved wallet funds up
// front, meaning a failure must return them.
func (t Type) IsPurchase() bool {
	switch t {
	case TypeAirtime, TypeData, TypeCable, TypeElectricity, TypeExamPin:
		return true
	}
	return false
}

// Status is the transaction lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusSuccessful Status = "successful"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusRefunded   Status = "refunded"
	StatusCancelled  Status = "cancelled"
)

// IsTerminalSuccess reports whether a status is a terminal success state.
func (s Status) IsTerminalSuccess() bool {
	return s == StatusSuccessful || s == StatusCompleted
}

// IsTerminal reports whether a status is terminal.
func (s Status) IsTerminal() bool {
	return s.IsTerminalSuccess() || s == StatusFailed || s == StatusRefunded || s == StatusCancelled
}

// Transaction is the durable record of one purchase or funding attempt.
// ReferenceNumber is the idempotency key: globally unique, enforced by a
// unique index.
type Transaction struct {
	ID                 string          `json:"id"`
	UserID             string          `json:"user_id"`
	WalletID           string          `json:"wallet_id"`
	Type               Type            `json:"type"`
	Amount             money.Money     `json:"amount"`
	Fee                money.Money     `json:"fee"`
	TotalCharged       money.Money     `json:"total_charged"`
	Status             Status          `json:"status"`
	ReferenceNumber    string          `json:"reference_number"`
	PaymentMethod      string          `json:"payment_method"`
	Provider           string          `json:"provider,omitempty"`
	ProviderResponse   json.RawMessage `json:"provider_response,omitempty"`
	DestinationAccount string          `json:"destination_account,omitempty"`
	ErrorMessage       string          `json:"error_message,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

var (
	// ErrDuplicateReference is returned when a reference number collides
	// with an existing transaction.
	ErrDuplicateReference = errors.New("duplicate reference number")

	// ErrAlreadySettled is returned when a terminal transaction is asked
	// to transition again.
	ErrAlreadySettled = errors.New("transaction already settled")
)
