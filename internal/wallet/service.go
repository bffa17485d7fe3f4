package wallet

import (
	"context"
	"errors"
	"log/slog"

	"vtuplatform/internal/common/database"
	"vtuplatform/internal/common/events"
	"vtuplatform/internal/common/money"
)

// Publisher publishes wallet events. May be nil (events disabled).
type Publisher interface {
	Publish(ctx context.Context, event *events.Event) error
}

// Service provides wallet ledger operations
type Service struct {
	store     *Store
	publisher Publisher
	logger    *slog.Logger
}

// NewService creates a new wallet service
func NewService(store *Store, publisher Publisher, logger *slog.Logger) *Service {
	return &Service{
		store:     store,
		publisher: publisher,
		logger:    logger,
	}
}

// GetByUserID retrieves a user's wallet
func (s *Service) GetByUserID(ctx context.Context, userID string) (*Wallet, error) {
	return s.store.Get(ctx, nil, userID)
}

// Ensure retrieves a user's wallet, creating an empty one on first use
func (s *Service) Ensure(ctx context.Context, userID string, currency money.Currency) (*Wallet, error) {
	w, err := s.store.Get(ctx, nil, userID)
	if err == nil {
		return w, nil
	}
	if !database.IsNotFound(err) {
		return nil, err
	}

	w, err = s.store.Create(ctx, nil, userID, currency)
	if err != nil {
		// Lost a create race with a concurrent request; re-read.
		if errors.Is(err, database.ErrAlreadyExists) {
			return s.store.Get(ctx, nil, userID)
		}
		return nil, err
	}

	s.logger.Info("wallet created", "wallet_id", w.ID, "user_id", userID)
	return w, nil
}

// Credit increases a wallet balance
func (s *Service) Credit(ctx context.Context, userID string, amount money.Money, description string) (*Wallet, error) {
	w, err := s.store.Credit(ctx, nil, userID, amount)
	if err != nil {
		return nil, err
	}

	s.logger.Info("wallet credited",
		"wallet_id", w.ID,
		"user_id", userID,
		"amount", amount.AmountMinor,
		"balance", w.Balance.AmountMinor,
	)

	s.publishMovement(ctx, events.EventWalletCredited, w, amount, description)
	return w, nil
}

// Debit decreases a wallet balance, failing with ErrInsufficientBalance
// if the wallet cannot cover the amount
func (s *Service) Debit(ctx context.Context, userID string, amount money.Money, description string) (*Wallet, error) {
	w, err := s.store.Debit(ctx, nil, userID, amount)
	if err != nil {
		return nil, err
	}

	s.logger.Info("wallet debited",
		"wallet_id", w.ID,
		"user_id", userID,
		"amount", amount.AmountMinor,
		"balance", w.Balance.AmountMinor,
	)

	s.publishMovement(ctx, events.EventWalletDebited, w, amount, description)
	return w, nil
}

func (s *Service) publishMovement(ctx context.Context, eventType string, w *Wallet, amount money.Money, description string) {
	if s.publisher == nil {
		return
	}

	data := events.WalletMovementData{
		UserID:      w.UserID,
		WalletID:    w.ID,
		AmountMinor: amount.AmountMinor,
		Currency:    string(amount.Currency),
		Balance:     w.Balance.AmountMinor,
		Description: description,
	}

	event, err := events.NewEvent(eventType, "wallet", w.ID, data)
	if err != nil {
		s.logger.Error("failed to build wallet event", "error", err)
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Error("failed to publish wallet event", "error", err, "type", eventType)
	}
}
