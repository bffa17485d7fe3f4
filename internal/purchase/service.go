package purchase

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"vtuplatform/internal/common/database"
	"vtuplatform/internal/common/events"
	"vtuplatform/internal/common/money"
	"vtuplatform/internal/provider"
	"vtuplatform/internal/transaction"
	"vtuplatform/internal/wallet"

	"github.com/oklog/ulid/v2"
)

// WalletLedger is the orchestrator's view of wallet operations.
type WalletLedger interface {
	GetByUserID(ctx context.Context, userID string) (*wallet.Wallet, error)
	Debit(ctx context.Context, userID string, amount money.Money, description string) (*wallet.Wallet, error)
	Credit(ctx context.Context, userID string, amount money.Money, description string) (*wallet.Wallet, error)
}

// TransactionStore is the orchestrator's view of the transaction record.
type TransactionStore interface {
	Create(ctx context.Context, q database.Querier, t *transaction.Transaction) error
	GetByReference(ctx context.Context, q database.Querier, reference string) (*transaction.Transaction, error)
	MarkSuccessful(ctx context.Context, q database.Querier, reference string, status transaction.Status, providerResponse json.RawMessage) error
	MarkFailed(ctx context.Context, q database.Querier, reference string, errorMessage string) error
	ListStalePending(ctx context.Context, olderThan time.Duration, limit int) ([]*transaction.Transaction, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*transaction.Transaction, int64, error)
}

// Router resolves provider clients.
type Router interface {
	Get(code string) provider.Client
	PreferredFor(ctx context.Context, svc provider.Service) (provider.Client, error)
}

// Publisher publishes transaction events. May be nil (events disabled).
type Publisher interface {
	Publish(ctx context.Context, event *events.Event) error
}

// defaultCallTimeout bounds a single provider purchase call. A timeout
// is treated as a provider failure and triggers the refund path; the
// sweeper later reconciles against the vendor's view.
const defaultCallTimeout = 30 * time.Second

// Service is the purchase orchestrator. All dependencies are injected
// at construction and shared across requests.
type Service struct {
	wallets      WalletLedger
	transactions TransactionStore
	providers    Router
	publisher    Publisher
	logger       *slog.Logger
	callTimeout  time.Duration
}

// NewService creates a purchase orchestrator.
func NewService(wallets WalletLedger, transactions TransactionStore, providers Router, publisher Publisher, logger *slog.Logger) *Service {
	return &Service{
		wallets:      wallets,
		transactions: transactions,
		providers:    providers,
		publisher:    publisher,
		logger:       logger,
		callTimeout:  defaultCallTimeout,
	}
}

// Airtime purchases airtime from the user's wallet.
func (s *Service) Airtime(ctx context.Context, userID string, req AirtimeRequest) (*transaction.Transaction, error) {
	return s.execute(ctx, executeParams{
		userID:      userID,
		txType:      transaction.TypeAirtime,
		service:     provider.ServiceAirtime,
		provider:    req.Provider,
		amount:      req.Amount,
		destination: req.Phone,
	}, func(ctx context.Context, client provider.Client, reference string) (*provider.PurchaseResult, error) {
		return client.PurchaseAirtime(ctx, provider.AirtimeRequest{
			Network:   req.Network,
			Phone:     req.Phone,
			Amount:    req.Amount,
			Reference: reference,
		})
	})
}

// Data purchases a data bundle from the user's wallet.
func (s *Service) Data(ctx context.Context, userID string, req DataRequest) (*transaction.Transaction, error) {
	return s.execute(ctx, executeParams{
		userID:      userID,
		txType:      transaction.TypeData,
		service:     provider.ServiceData,
		provider:    req.Provider,
		amount:      req.Amount,
		destination: req.Phone,
	}, func(ctx context.Context, client provider.Client, reference string) (*provider.PurchaseResult, error) {
		return client.PurchaseData(ctx, provider.DataRequest{
			Network:   req.Network,
			PlanID:    req.PlanID,
			Phone:     req.Phone,
			Reference: reference,
		})
	})
}

// Bill pays a cable, electricity or exam pin bill from the user's wallet.
func (s *Service) Bill(ctx context.Context, userID string, req BillRequest) (*transaction.Transaction, error) {
	var txType transaction.Type
	switch req.Service {
	case provider.ServiceCable:
		txType = transaction.TypeCable
	case provider.ServiceElectricity:
		txType = transaction.TypeElectricity
	case provider.ServiceExamPin:
		txType = transaction.TypeExamPin
	default:
		return nil, provider.ErrNotSupported
	}

	return s.execute(ctx, executeParams{
		userID:      userID,
		txType:      txType,
		service:     req.Service,
		provider:    req.Provider,
		amount:      req.Amount,
		destination: req.Account,
	}, func(ctx context.Context, client provider.Client, reference string) (*provider.PurchaseResult, error) {
		return client.PurchaseBill(ctx, provider.BillRequest{
			Service:   req.Service,
			Biller:    req.Biller,
			Account:   req.Account,
			Variation: req.Variation,
			Amount:    req.Amount,
			Phone:     req.Phone,
			Reference: reference,
		})
	})
}

// Status returns the current state of one of the user's transactions.
func (s *Service) Status(ctx context.Context, userID, reference string) (*transaction.Transaction, error) {
	t, err := s.transactions.GetByReference(ctx, nil, reference)
	if err != nil {
		return nil, err
	}
	if t.UserID != userID {
		return nil, database.ErrNotFound
	}
	return t, nil
}

// List returns a page of the user's transactions, newest first.
func (s *Service) List(ctx context.Context, userID string, limit, offset int) ([]*transaction.Transaction, int64, error) {
	return s.transactions.ListByUser(ctx, userID, limit, offset)
}

// Networks lists the networks offered by the resolved data provider.
func (s *Service) Networks(ctx context.Context, providerCode string) ([]provider.Network, error) {
	client, err := s.resolve(ctx, provider.ServiceData, providerCode)
	if err != nil {
		return nil, err
	}
	if !client.Capabilities().Networks {
		return nil, provider.ErrNotSupported
	}
	return client.Networks(ctx)
}

// DataPlans lists the resolved data provider's plans for a network.
func (s *Service) DataPlans(ctx context.Context, providerCode, network string) ([]provider.DataPlan, error) {
	client, err := s.resolve(ctx, provider.ServiceData, providerCode)
	if err != nil {
		return nil, err
	}
	if !client.Capabilities().DataPlans {
		return nil, provider.ErrNotSupported
	}
	return client.DataPlans(ctx, network)
}

type executeParams struct {
	userID      string
	txType      transaction.Type
	service     provider.Service
	provider    string
	amount      money.Money
	destination string
}

type providerCall func(ctx context.Context, client provider.Client, reference string) (*provider.PurchaseResult, error)

// execute runs the purchase state machine: validate, reserve funds,
// record pending, call provider, settle or refund. The refund is issued
// before this function returns on any failure after the debit.
func (s *Service) execute(ctx context.Context, p executeParams, call providerCall) (*transaction.Transaction, error) {
	start := time.Now()

	if p.amount.AmountMinor <= 0 {
		return nil, wallet.ErrInvalidAmount
	}

	w, err := s.wallets.GetByUserID(ctx, p.userID)
	if err != nil {
		return nil, err
	}
	if w.Balance.Currency != p.amount.Currency {
		return nil, wallet.ErrCurrencyMismatch
	}
	if w.Balance.LessThan(p.amount) {
		return nil, wallet.ErrInsufficientBalance
	}

	client, err := s.resolve(ctx, p.service, p.provider)
	if err != nil {
		return nil, err
	}
	code := client.Code()
	reference := NewReference(code)

	// Funds reserved. Everything past this point must either settle the
	// transaction or refund the wallet before returning.
	if _, err := s.wallets.Debit(ctx, p.userID, p.amount, string(p.txType)+" purchase "+reference); err != nil {
		return nil, err
	}

	tx := &transaction.Transaction{
		ID:                 ulid.Make().String(),
		UserID:             p.userID,
		WalletID:           w.ID,
		Type:               p.txType,
		Amount:             p.amount,
		Fee:                money.New(0, p.amount.Currency),
		TotalCharged:       p.amount,
		Status:             transaction.StatusPending,
		ReferenceNumber:    reference,
		PaymentMethod:      "wallet",
		Provider:           code,
		DestinationAccount: p.destination,
	}
	if err := s.transactions.Create(ctx, nil, tx); err != nil {
		s.refund(ctx, p, reference, code)
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	result, err := call(callCtx, client, reference)
	cancel()

	if err != nil {
		s.settleFailed(ctx, p, tx, code, err.Error())
		purchasesTotal.WithLabelValues(string(p.service), code, "failed").Inc()
		return nil, err
	}

	switch result.Status {
	case provider.ResultSuccess:
		if err := s.transactions.MarkSuccessful(ctx, nil, reference, transaction.StatusSuccessful, result.Raw); err != nil {
			// The vendor delivered; never refund here. The record stays
			// pending and the sweeper completes it.
			s.logger.Error("failed to settle successful purchase",
				"reference", reference, "error", err)
		} else {
			tx.Status = transaction.StatusSuccessful
			tx.ProviderResponse = result.Raw
		}
		s.publishOutcome(ctx, tx, events.EventTransactionSuccessful)
		purchasesTotal.WithLabelValues(string(p.service), code, "success").Inc()
		purchaseDuration.WithLabelValues(string(p.service), code).Observe(time.Since(start).Seconds())
		return tx, nil

	case provider.ResultPending:
		// The vendor is still processing. Funds stay reserved and the
		// sweeper resolves the outcome via status query.
		tx.ProviderResponse = result.Raw
		purchasesTotal.WithLabelValues(string(p.service), code, "pending").Inc()
		return tx, nil

	default:
		s.settleFailed(ctx, p, tx, code, result.Message)
		purchasesTotal.WithLabelValues(string(p.service), code, "failed").Inc()
		return tx, &provider.UpstreamError{
			Provider: code,
			Message:  result.Message,
			Body:     result.Raw,
		}
	}
}

func (s *Service) resolve(ctx context.Context, svc provider.Service, code string) (provider.Client, error) {
	if code != "" {
		client := s.providers.Get(code)
		if client == nil || !client.Capabilities().Supports(svc) {
			return nil, ErrUnknownProvider
		}
		return client, nil
	}
	return s.providers.PreferredFor(ctx, svc)
}

// settleFailed refunds the reserved amount and marks the transaction
// failed. Runs before the caller's response is written.
func (s *Service) settleFailed(ctx context.Context, p executeParams, tx *transaction.Transaction, code, message string) {
	s.refund(ctx, p, tx.ReferenceNumber, code)

	if err := s.transactions.MarkFailed(ctx, nil, tx.ReferenceNumber, message); err != nil {
		if !errors.Is(err, transaction.ErrAlreadySettled) {
			s.logger.Error("failed to mark transaction failed",
				"reference", tx.ReferenceNumber, "error", err)
		}
	} else {
		tx.Status = transaction.StatusFailed
		tx.ErrorMessage = message
	}

	s.publishOutcome(ctx, tx, events.EventTransactionFailed)
}

func (s *Service) refund(ctx context.Context, p executeParams, reference, code string) {
	if _, err := s.wallets.Credit(ctx, p.userID, p.amount, "refund "+reference); err != nil {
		// Funds are stuck reserved. Loud log for manual intervention.
		s.logger.Error("refund failed after provider failure",
			"reference", reference,
			"user_id", p.userID,
			"amount", p.amount.AmountMinor,
			"error", err)
		return
	}
	refundsTotal.WithLabelValues(string(p.service), code).Inc()
}

func (s *Service) publishOutcome(ctx context.Context, tx *transaction.Transaction, eventType string) {
	if s.publisher == nil {
		return
	}

	data := events.TransactionNotificationData{
		UserID:          tx.UserID,
		TransactionID:   tx.ID,
		Type:            string(tx.Type),
		Status:          string(tx.Status),
		AmountMinor:     tx.Amount.AmountMinor,
		Currency:        string(tx.Amount.Currency),
		ReferenceNumber: tx.ReferenceNumber,
		Provider:        tx.Provider,
		ErrorMessage:    tx.ErrorMessage,
	}
	event, err := events.NewEvent(eventType, "transaction", tx.ID, data)
	if err != nil {
		s.logger.Error("failed to build transaction event", "error", err)
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Error("failed to publish transaction event",
			"error", err, "type", eventType)
	}
}
