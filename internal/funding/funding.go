// Package funding credits wallets from inbound payments: dedicated
// virtual bank accounts and hosted checkout sessions, reconciled
// through signed vendor webhooks.
package funding

import (
	"errors"
	"time"
)

// VirtualAccount is a vendor-issued dedicated bank account bound to one
// user. Deposits into it fund the user's wallet.
type VirtualAccount struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	Provider      string    `json:"provider"`
	AccountNumber string    `json:"account_number"`
	AccountName   string    `json:"account_name"`
	BankName      string    `json:"bank_name"`
	Reference     string    `json:"reference,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

var (
	// ErrUnknownWebhookProvider is returned for a webhook path naming a
	// provider with no registered parser.
	ErrUnknownWebhookProvider = errors.New("unknown webhook provider")

	// ErrUnknownReference is returned when a webhook names a reference
	// or account number with no matching record.
	ErrUnknownReference = errors.New("unknown funding reference")

	// ErrAlreadyProcessed is returned when a webhook replays a payment
	// that already credited the wallet. No state is mutated.
	ErrAlreadyProcessed = errors.New("payment already processed")
)
