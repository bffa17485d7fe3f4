package transaction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"vtuplatform/internal/common/database"
	"vtuplatform/internal/common/money"
)

// Store provides transaction data access. Mutation methods accept an
// optional Querier for callers running inside a transaction; nil uses
// the pool.
type Store struct {
	db *database.DB
}

// NewStore creates a new transaction store
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

func (s *Store) querier(q database.Querier) database.Querier {
	if q != nil {
		return q
	}
	return s.db
}

const txColumns = `id, user_id, wallet_id, type, amount, fee, total_charged, currency,
	status, reference_number, payment_method, provider, provider_response,
	destination_account, error_message, created_at, updated_at`

// Create inserts a new transaction. A reference collision surfaces as
// ErrDuplicateReference via the unique index.
func (s *Store) Create(ctx context.Context, q database.Querier, t *Transaction) error {
	query := `
		INSERT INTO transactions (
			id, user_id, wallet_id, type, amount, fee, total_charged, currency,
			status, reference_number, payment_method, provider, provider_response,
			destination_account, error_message
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15
		)
		RETURNING created_at, updated_at
	`

	err := s.querier(q).QueryRow(ctx, query,
		t.ID,
		t.UserID,
		t.WalletID,
		t.Type,
		t.Amount.AmountMinor,
		t.Fee.AmountMinor,
		t.TotalCharged.AmountMinor,
		t.Amount.Currency,
		t.Status,
		t.ReferenceNumber,
		t.PaymentMethod,
		nullable(t.Provider),
		t.ProviderResponse,
		nullable(t.DestinationAccount),
		nullable(t.ErrorMessage),
	).Scan(&t.CreatedAt, &t.UpdatedAt)

	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("reference %s: %w", t.ReferenceNumber, ErrDuplicateReference)
		}
		return fmt.Errorf("creating transaction: %w", err)
	}

	return nil
}

// GetByReference retrieves a transaction by reference number
func (s *Store) GetByReference(ctx context.Context, q database.Querier, reference string) (*Transaction, error) {
	query := `SELECT ` + txColumns + ` FROM transactions WHERE reference_number = $1`
	return scanTransaction(s.querier(q).QueryRow(ctx, query, reference))
}

// ListByUser lists a user's transactions newest first
func (s *Store) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*Transaction, int64, error) {
	var total int64
	if err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM transactions WHERE user_id = $1`, userID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting transactions: %w", err)
	}

	query := `SELECT ` + txColumns + `
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := s.db.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("listing transactions: %w", err)
	}
	defer rows.Close()

	txs, err := scanTransactions(rows)
	return txs, total, err
}

// MarkSuccessful transitions a pending transaction to a terminal success
// state and attaches the raw provider response. Terminal transactions
// are left untouched and reported via ErrAlreadySettled.
func (s *Store) MarkSuccessful(ctx context.Context, q database.Querier, reference string, status Status, providerResponse json.RawMessage) error {
	if !status.IsTerminalSuccess() {
		return fmt.Errorf("status %s is not a success state", status)
	}
	return s.settle(ctx, q, reference, status, providerResponse, "")
}

// MarkFailed transitions a pending transaction to failed with an error
// message.
func (s *Store) MarkFailed(ctx context.Context, q database.Querier, reference string, errorMessage string) error {
	return s.settle(ctx, q, reference, StatusFailed, nil, errorMessage)
}

func (s *Store) settle(ctx context.Context, q database.Querier, reference string, status Status, providerResponse json.RawMessage, errorMessage string) error {
	query := `
		UPDATE transactions
		SET status = $2,
		    provider_response = COALESCE($3, provider_response),
		    error_message = COALESCE(NULLIF($4, ''), error_message),
		    updated_at = now()
		WHERE reference_number = $1 AND status = 'pending'
	`

	tag, err := s.querier(q).Exec(ctx, query, reference, status, providerResponse, errorMessage)
	if err != nil {
		return fmt.Errorf("settling transaction %s: %w", reference, err)
	}
	if tag.RowsAffected() == 0 {
		existing, getErr := s.GetByReference(ctx, q, reference)
		if getErr != nil {
			return getErr
		}
		if existing.Status.IsTerminal() {
			return ErrAlreadySettled
		}
		return fmt.Errorf("transaction %s in unexpected state %s", reference, existing.Status)
	}
	return nil
}

// ListStalePending returns pending transactions older than the cutoff,
// oldest first. Used by the reconciliation sweeper.
func (s *Store) ListStalePending(ctx context.Context, olderThan time.Duration, limit int) ([]*Transaction, error) {
	query := `SELECT ` + txColumns + `
		FROM transactions
		WHERE status = 'pending' AND created_at < $1
		ORDER BY created_at
		LIMIT $2`

	rows, err := s.db.Query(ctx, query, time.Now().UTC().Add(-olderThan), limit)
	if err != nil {
		return nil, fmt.Errorf("listing stale pending transactions: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanInto(row rowScanner) (*Transaction, error) {
	var t Transaction
	var amount, fee, totalCharged int64
	var currency string
	var provider, destinationAccount, errorMessage *string

	err := row.Scan(
		&t.ID, &t.UserID, &t.WalletID, &t.Type, &amount, &fee, &totalCharged, &currency,
		&t.Status, &t.ReferenceNumber, &t.PaymentMethod, &provider, &t.ProviderResponse,
		&destinationAccount, &errorMessage, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	c := money.Currency(currency)
	t.Amount = money.New(amount, c)
	t.Fee = money.New(fee, c)
	t.TotalCharged = money.New(totalCharged, c)
	if provider != nil {
		t.Provider = *provider
	}
	if destinationAccount != nil {
		t.DestinationAccount = *destinationAccount
	}
	if errorMessage != nil {
		t.ErrorMessage = *errorMessage
	}
	return &t, nil
}

func scanTransaction(row pgx.Row) (*Transaction, error) {
	t, err := scanInto(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, database.ErrNotFound
		}
		return nil, fmt.Errorf("scanning transaction: %w", err)
	}
	return t, nil
}

func scanTransactions(rows pgx.Rows) ([]*Transaction, error) {
	var txs []*Transaction
	for rows.Next() {
		t, err := scanInto(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning transaction: %w", err)
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}
