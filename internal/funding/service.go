package funding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"

	"vtuplatform/internal/common/database"
	"vtuplatform/internal/common/events"
	"vtuplatform/internal/common/money"
	"vtuplatform/internal/provider"
	"vtuplatform/internal/transaction"
	"vtuplatform/internal/wallet"
)

// AccountIssuer issues dedicated virtual accounts at a funding vendor.
type AccountIssuer interface {
	Code() string
	CreateVirtualAccount(ctx context.Context, req provider.VirtualAccountRequest) (*provider.VirtualAccountDetails, error)
}

// CheckoutInitiator opens hosted payment sessions at a funding vendor.
type CheckoutInitiator interface {
	Code() string
	InitiateCheckout(ctx context.Context, reference, email string, amount money.Money) (*provider.CheckoutSession, error)
}

// WebhookSource verifies and decodes one vendor's funding webhooks.
type WebhookSource interface {
	VerifyWebhook(ctx context.Context, signature string, body []byte) error
	ParseWebhook(body []byte) (*provider.FundingEvent, error)
}

// TxRunner runs a function inside a database transaction. Satisfied by
// *database.DB.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error
}

// WalletStore is the reconciler's view of wallet mutation.
type WalletStore interface {
	Credit(ctx context.Context, q database.Querier, userID string, amount money.Money) (*wallet.Wallet, error)
}

// TransactionStore is the reconciler's view of the transaction record.
type TransactionStore interface {
	Create(ctx context.Context, q database.Querier, t *transaction.Transaction) error
	GetByReference(ctx context.Context, q database.Querier, reference string) (*transaction.Transaction, error)
	MarkSuccessful(ctx context.Context, q database.Querier, reference string, status transaction.Status, providerResponse json.RawMessage) error
}

// AccountStore is the reconciler's view of virtual account records.
type AccountStore interface {
	Create(ctx context.Context, va *VirtualAccount) error
	GetByUser(ctx context.Context, userID, providerCode string) (*VirtualAccount, error)
	GetByAccountNumber(ctx context.Context, accountNumber string) (*VirtualAccount, error)
}

// Publisher publishes funding events. May be nil (events disabled).
type Publisher interface {
	Publish(ctx context.Context, event *events.Event) error
}

// Service owns wallet funding: virtual account issuance, checkout
// initiation and webhook reconciliation.
type Service struct {
	db           TxRunner
	wallets      WalletStore
	transactions TransactionStore
	accounts     AccountStore
	issuer       AccountIssuer
	checkout     CheckoutInitiator
	sources      map[string]WebhookSource
	publisher    Publisher
	logger       *slog.Logger
}

// NewService creates a funding service. issuer and checkout may be nil
// when the matching vendor is not configured.
func NewService(db TxRunner, wallets WalletStore, transactions TransactionStore, accounts AccountStore,
	issuer AccountIssuer, checkout CheckoutInitiator, publisher Publisher, logger *slog.Logger) *Service {
	return &Service{
		db:           db,
		wallets:      wallets,
		transactions: transactions,
		accounts:     accounts,
		issuer:       issuer,
		checkout:     checkout,
		sources:      make(map[string]WebhookSource),
		publisher:    publisher,
		logger:       logger,
	}
}

// RegisterWebhookSource binds a vendor's webhook parser to its code.
func (s *Service) RegisterWebhookSource(code string, src WebhookSource) {
	s.sources[code] = src
}

// FundingAccount returns the user's virtual account, issuing one at the
// vendor on first use.
func (s *Service) FundingAccount(ctx context.Context, userID, email, name, phone string) (*VirtualAccount, error) {
	if s.issuer == nil {
		return nil, errors.New("virtual account funding is not configured")
	}

	va, err := s.accounts.GetByUser(ctx, userID, s.issuer.Code())
	if err == nil {
		return va, nil
	}
	if !database.IsNotFound(err) {
		return nil, err
	}

	details, err := s.issuer.CreateVirtualAccount(ctx, provider.VirtualAccountRequest{
		UserID: userID,
		Email:  email,
		Name:   name,
		Phone:  phone,
	})
	if err != nil {
		return nil, fmt.Errorf("issuing virtual account: %w", err)
	}

	va = &VirtualAccount{
		UserID:        userID,
		Provider:      s.issuer.Code(),
		AccountNumber: details.AccountNumber,
		AccountName:   details.AccountName,
		BankName:      details.BankName,
		Reference:     details.Reference,
	}
	if err := s.accounts.Create(ctx, va); err != nil {
		// Lost an issue race with a concurrent request; re-read.
		if errors.Is(err, database.ErrAlreadyExists) {
			return s.accounts.GetByUser(ctx, userID, s.issuer.Code())
		}
		return nil, err
	}

	s.logger.Info("virtual account issued",
		"user_id", userID,
		"provider", va.Provider,
		"account_number", va.AccountNumber)
	return va, nil
}

// InitiateCheckout opens a hosted payment session and records a pending
// wallet_topup transaction keyed by our reference. The completion
// webhook settles it.
func (s *Service) InitiateCheckout(ctx context.Context, userID, email string, walletID string, amount money.Money) (*provider.CheckoutSession, error) {
	if s.checkout == nil {
		return nil, errors.New("checkout funding is not configured")
	}
	if !amount.IsPositive() {
		return nil, wallet.ErrInvalidAmount
	}

	reference := fmt.Sprintf("FUND-%s", ulid.Make().String())
	tx := &transaction.Transaction{
		ID:              ulid.Make().String(),
		UserID:          userID,
		WalletID:        walletID,
		Type:            transaction.TypeWalletTopup,
		Amount:          amount,
		Fee:             money.New(0, amount.Currency),
		TotalCharged:    amount,
		Status:          transaction.StatusPending,
		ReferenceNumber: reference,
		PaymentMethod:   "checkout",
		Provider:        s.checkout.Code(),
	}
	if err := s.transactions.Create(ctx, nil, tx); err != nil {
		return nil, err
	}

	session, err := s.checkout.InitiateCheckout(ctx, reference, email, amount)
	if err != nil {
		return nil, err
	}
	return session, nil
}

// HandleWebhook reconciles one funding notification. Verification is
// mandatory: an unverifiable payload never reaches the parse step. The
// transaction settle and the wallet credit commit atomically.
func (s *Service) HandleWebhook(ctx context.Context, providerCode, signature string, body []byte) error {
	src, ok := s.sources[providerCode]
	if !ok {
		return ErrUnknownWebhookProvider
	}

	if err := src.VerifyWebhook(ctx, signature, body); err != nil {
		return err
	}

	event, err := src.ParseWebhook(body)
	if err != nil {
		return err
	}

	if event.AccountNumber != "" {
		return s.creditDeposit(ctx, providerCode, event)
	}
	return s.settleCheckout(ctx, event)
}

// creditDeposit handles a virtual account deposit. The transaction row
// is created on the webhook using the vendor's reference; the unique
// index on reference_number makes replays collide.
func (s *Service) creditDeposit(ctx context.Context, providerCode string, event *provider.FundingEvent) error {
	va, err := s.accounts.GetByAccountNumber(ctx, event.AccountNumber)
	if err != nil {
		if database.IsNotFound(err) {
			return ErrUnknownReference
		}
		return err
	}

	reference := depositReference(providerCode, event.Reference)
	if _, err := s.transactions.GetByReference(ctx, nil, reference); err == nil {
		return ErrAlreadyProcessed
	} else if !database.IsNotFound(err) {
		return err
	}

	var w *wallet.Wallet
	err = s.db.WithTx(ctx, func(tx pgx.Tx) error {
		record := &transaction.Transaction{
			ID:                 ulid.Make().String(),
			UserID:             va.UserID,
			WalletID:           "",
			Type:               transaction.TypeWalletFunding,
			Amount:             event.Amount,
			Fee:                money.New(0, event.Amount.Currency),
			TotalCharged:       event.Amount,
			Status:             transaction.StatusSuccessful,
			ReferenceNumber:    reference,
			PaymentMethod:      "bank_transfer",
			Provider:           providerCode,
			ProviderResponse:   event.Raw,
			DestinationAccount: event.AccountNumber,
		}

		credited, err := s.wallets.Credit(ctx, tx, va.UserID, event.Amount)
		if err != nil {
			return err
		}
		record.WalletID = credited.ID
		w = credited

		return s.transactions.Create(ctx, tx, record)
	})
	if err != nil {
		if errors.Is(err, transaction.ErrDuplicateReference) {
			return ErrAlreadyProcessed
		}
		return err
	}

	s.logger.Info("wallet funded by deposit",
		"user_id", va.UserID,
		"provider", providerCode,
		"amount", event.Amount.AmountMinor,
		"balance", w.Balance.AmountMinor)
	s.publishFunded(ctx, va.UserID, w, event)
	return nil
}

// settleCheckout handles a checkout completion keyed by the reference
// recorded at initiation.
func (s *Service) settleCheckout(ctx context.Context, event *provider.FundingEvent) error {
	record, err := s.transactions.GetByReference(ctx, nil, event.Reference)
	if err != nil {
		if database.IsNotFound(err) {
			return ErrUnknownReference
		}
		return err
	}
	if record.Status.IsTerminalSuccess() {
		return ErrAlreadyProcessed
	}

	var w *wallet.Wallet
	err = s.db.WithTx(ctx, func(tx pgx.Tx) error {
		if err := s.transactions.MarkSuccessful(ctx, tx, event.Reference, transaction.StatusSuccessful, event.Raw); err != nil {
			return err
		}
		credited, err := s.wallets.Credit(ctx, tx, record.UserID, event.Amount)
		if err != nil {
			return err
		}
		w = credited
		return nil
	})
	if err != nil {
		// A concurrent delivery won the settle race.
		if errors.Is(err, transaction.ErrAlreadySettled) {
			return ErrAlreadyProcessed
		}
		return err
	}

	s.logger.Info("wallet funded by checkout",
		"user_id", record.UserID,
		"reference", event.Reference,
		"amount", event.Amount.AmountMinor,
		"balance", w.Balance.AmountMinor)
	s.publishFunded(ctx, record.UserID, w, event)
	return nil
}

// depositReference namespaces vendor references so two vendors reusing
// the same string cannot collide on the unique index.
func depositReference(providerCode, vendorReference string) string {
	return fmt.Sprintf("%s-%s", providerCode, vendorReference)
}

func (s *Service) publishFunded(ctx context.Context, userID string, w *wallet.Wallet, event *provider.FundingEvent) {
	if s.publisher == nil {
		return
	}

	data := events.WalletMovementData{
		UserID:      userID,
		WalletID:    w.ID,
		AmountMinor: event.Amount.AmountMinor,
		Currency:    string(event.Amount.Currency),
		Balance:     w.Balance.AmountMinor,
		Description: "wallet funding",
	}
	evt, err := events.NewEvent(events.EventWalletFunded, "wallet", w.ID, data)
	if err != nil {
		s.logger.Error("failed to build funding event", "error", err)
		return
	}
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.logger.Error("failed to publish funding event", "error", err)
	}
}
