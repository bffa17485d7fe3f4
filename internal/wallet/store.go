package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"

	"vtuplatform/internal/common/database"
	"vtuplatform/internal/common/money"
)

// Store provides wallet data access. Mutation methods accept an optional
// Querier so callers can run them inside an enclosing transaction (the
// webhook reconciler does); passing nil uses the pool.
type Store struct {
	db *database.DB
}

// NewStore creates a new wallet store
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

func (s *Store) querier(q database.Querier) database.Querier {
	if q != nil {
		return q
	}
	return s.db
}

const walletColumns = `id, user_id, balance, currency, last_transaction_at, created_at, updated_at`

// Get retrieves a wallet by user ID
func (s *Store) Get(ctx context.Context, q database.Querier, userID string) (*Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE user_id = $1`
	return scanWallet(s.querier(q).QueryRow(ctx, query, userID))
}

// Create creates a wallet with a zero balance for a user
func (s *Store) Create(ctx context.Context, q database.Querier, userID string, currency money.Currency) (*Wallet, error) {
	query := `
		INSERT INTO wallets (id, user_id, balance, currency)
		VALUES ($1, $2, 0, $3)
		RETURNING ` + walletColumns

	w, err := scanWallet(s.querier(q).QueryRow(ctx, query, ulid.Make().String(), userID, currency))
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, fmt.Errorf("wallet for user %s: %w", userID, database.ErrAlreadyExists)
		}
		return nil, err
	}
	return w, nil
}

// Credit atomically increases the wallet balance
func (s *Store) Credit(ctx context.Context, q database.Querier, userID string, amount money.Money) (*Wallet, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	query := `
		UPDATE wallets
		SET balance = balance + $2, last_transaction_at = now(), updated_at = now()
		WHERE user_id = $1
		RETURNING ` + walletColumns

	return scanWallet(s.querier(q).QueryRow(ctx, query, userID, amount.AmountMinor))
}

// Debit atomically decreases the wallet balance. The WHERE clause makes
// the read-check-write a single linearizable statement per wallet row:
// two concurrent debits cannot both pass the balance check.
func (s *Store) Debit(ctx context.Context, q database.Querier, userID string, amount money.Money) (*Wallet, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	query := `
		UPDATE wallets
		SET balance = balance - $2, last_transaction_at = now(), updated_at = now()
		WHERE user_id = $1 AND balance >= $2
		RETURNING ` + walletColumns

	w, err := scanWallet(s.querier(q).QueryRow(ctx, query, userID, amount.AmountMinor))
	if err == nil {
		return w, nil
	}
	if !database.IsNotFound(err) {
		return nil, err
	}

	// No row updated: either the wallet is missing or the balance was short.
	if _, getErr := s.Get(ctx, q, userID); getErr != nil {
		return nil, getErr
	}
	return nil, ErrInsufficientBalance
}

func scanWallet(row pgx.Row) (*Wallet, error) {
	var w Wallet
	var balance int64
	var currency string
	err := row.Scan(&w.ID, &w.UserID, &balance, &currency, &w.LastTransactionAt, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, database.ErrNotFound
		}
		return nil, fmt.Errorf("scanning wallet: %w", err)
	}
	w.Balance = money.New(balance, money.Currency(currency))
	return &w, nil
}
