// Package wallet owns all balance mutation for user wallets. No other
// package writes the balance column.
package wallet

import (
	"errors"
	"time"

	"vtuplatform/internal/common/money"
)

// Wallet is a user's single spending wallet. One row per user.
type Wallet struct {
	ID                string      `json:"id"`
	UserID            string      `json:"user_id"`
	Balance           money.Money `json:"balance"`
	LastTransactionAt *time.Time  `json:"last_transaction_at,omitempty"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

var (
	// ErrInsufficientBalance is returned when a debit would drive the
	// balance negative. The balance is left untouched.
	ErrInsufficientBalance = errors.New("insufficient wallet balance")

	// ErrInvalidAmount is returned for zero or negative mutation amounts.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrCurrencyMismatch is returned when a mutation's currency differs
	// from the wallet's currency.
	ErrCurrencyMismatch = errors.New("wallet currency mismatch")
)
