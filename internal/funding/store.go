package funding

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"

	"vtuplatform/internal/common/database"
)

// Store provides virtual account data access.
type Store struct {
	db *database.DB
}

// NewStore creates a new virtual account store
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

const accountColumns = `id, user_id, provider, account_number, account_name, bank_name, reference, created_at`

// Create persists a newly issued virtual account. A user holds at most
// one account per provider.
func (s *Store) Create(ctx context.Context, va *VirtualAccount) error {
	if va.ID == "" {
		va.ID = ulid.Make().String()
	}

	query := `
		INSERT INTO virtual_accounts (id, user_id, provider, account_number, account_name, bank_name, reference)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`

	err := s.db.QueryRow(ctx, query,
		va.ID, va.UserID, va.Provider, va.AccountNumber, va.AccountName, va.BankName, va.Reference,
	).Scan(&va.CreatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("virtual account for user %s at %s: %w", va.UserID, va.Provider, database.ErrAlreadyExists)
		}
		return fmt.Errorf("creating virtual account: %w", err)
	}
	return nil
}

// GetByUser retrieves a user's virtual account at a provider.
func (s *Store) GetByUser(ctx context.Context, userID, providerCode string) (*VirtualAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM virtual_accounts WHERE user_id = $1 AND provider = $2`
	return scanAccount(s.db.QueryRow(ctx, query, userID, providerCode))
}

// GetByAccountNumber resolves a deposit notification to its owner.
func (s *Store) GetByAccountNumber(ctx context.Context, accountNumber string) (*VirtualAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM virtual_accounts WHERE account_number = $1`
	return scanAccount(s.db.QueryRow(ctx, query, accountNumber))
}

func scanAccount(row pgx.Row) (*VirtualAccount, error) {
	var va VirtualAccount
	err := row.Scan(&va.ID, &va.UserID, &va.Provider, &va.AccountNumber, &va.AccountName, &va.BankName, &va.Reference, &va.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, database.ErrNotFound
		}
		return nil, fmt.Errorf("scanning virtual account: %w", err)
	}
	return &va, nil
}
