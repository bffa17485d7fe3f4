package funding

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"vtuplatform/internal/common/api"
	"vtuplatform/internal/common/database"
	"vtuplatform/internal/common/middleware"
	"vtuplatform/internal/common/money"
	"vtuplatform/internal/provider"
	"vtuplatform/internal/wallet"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw webhook body.
const SignatureHeader = "X-Webhook-Signature"

// maxWebhookBody bounds webhook payload reads.
const maxWebhookBody = 1 << 20

// WalletReader is the handler's view of wallet lookups.
type WalletReader interface {
	Ensure(ctx context.Context, userID string, currency money.Currency) (*wallet.Wallet, error)
}

// Handler serves wallet and funding endpoints.
type Handler struct {
	service *Service
	wallets WalletReader
	logger  *slog.Logger
}

// NewHandler creates a funding API handler.
func NewHandler(service *Service, wallets WalletReader, logger *slog.Logger) *Handler {
	return &Handler{service: service, wallets: wallets, logger: logger}
}

// Routes mounts the authenticated wallet endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/wallet", h.Wallet)
	r.Get("/wallet/funding-account", h.FundingAccount)
	r.Post("/wallet/checkout", h.Checkout)
}

// WebhookRoutes mounts the unauthenticated webhook endpoint.
func (h *Handler) WebhookRoutes(r chi.Router) {
	r.Post("/payment/webhook/{provider}", h.Webhook)
}

// Wallet handles GET /wallet.
func (h *Handler) Wallet(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentity(r.Context())
	if !ok {
		api.Unauthorized(w, "authentication required")
		return
	}

	wal, err := h.wallets.Ensure(r.Context(), identity.ID, money.NGN)
	if err != nil {
		h.logger.Error("wallet lookup failed", "user_id", identity.ID, "error", err)
		api.InternalError(w, "could not load wallet")
		return
	}
	api.WriteData(w, http.StatusOK, "wallet", wal)
}

// FundingAccount handles GET /wallet/funding-account.
func (h *Handler) FundingAccount(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentity(r.Context())
	if !ok {
		api.Unauthorized(w, "authentication required")
		return
	}

	va, err := h.service.FundingAccount(r.Context(), identity.ID, identity.Email, identity.Email, "")
	if err != nil {
		h.logger.Error("funding account lookup failed", "user_id", identity.ID, "error", err)
		api.InternalError(w, "could not provision funding account")
		return
	}
	api.WriteData(w, http.StatusOK, "funding account", va)
}

type checkoutRequest struct {
	Amount float64 `json:"amount" validate:"required,gt=0"`
}

// Checkout handles POST /wallet/checkout.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentity(r.Context())
	if !ok {
		api.Unauthorized(w, "authentication required")
		return
	}

	var req checkoutRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}

	wal, err := h.wallets.Ensure(r.Context(), identity.ID, money.NGN)
	if err != nil {
		h.logger.Error("wallet lookup failed", "user_id", identity.ID, "error", err)
		api.InternalError(w, "could not load wallet")
		return
	}

	session, err := h.service.InitiateCheckout(r.Context(), identity.ID, identity.Email,
		wal.ID, money.NewFromMajor(req.Amount, money.NGN))
	if err != nil {
		if errors.Is(err, wallet.ErrInvalidAmount) {
			api.BadRequest(w, "amount must be positive")
			return
		}
		h.logger.Error("checkout initiation failed", "user_id", identity.ID, "error", err)
		api.InternalError(w, "could not initiate checkout")
		return
	}
	api.WriteData(w, http.StatusOK, "checkout session created", session)
}

// Webhook handles POST /payment/webhook/{provider}. Replays of an
// already-credited payment return 200 without mutating anything;
// unverifiable payloads never reach business logic.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	providerCode := chi.URLParam(r, "provider")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		webhooksTotal.WithLabelValues(providerCode, "malformed").Inc()
		api.BadRequest(w, "unreadable payload")
		return
	}

	signature := r.Header.Get(SignatureHeader)
	if signature == "" {
		webhooksTotal.WithLabelValues(providerCode, "unsigned").Inc()
		api.Unauthorized(w, "missing signature")
		return
	}

	err = h.service.HandleWebhook(r.Context(), providerCode, signature, body)
	switch {
	case err == nil:
		webhooksTotal.WithLabelValues(providerCode, "processed").Inc()
		api.WriteData(w, http.StatusOK, "processed", nil)

	case errors.Is(err, ErrAlreadyProcessed):
		webhooksTotal.WithLabelValues(providerCode, "replay").Inc()
		api.WriteData(w, http.StatusOK, "already processed", nil)

	case errors.Is(err, ErrUnknownWebhookProvider):
		webhooksTotal.WithLabelValues(providerCode, "unknown_provider").Inc()
		api.NotFound(w, "unknown provider")

	case errors.Is(err, ErrUnknownReference), database.IsNotFound(err):
		webhooksTotal.WithLabelValues(providerCode, "unknown_reference").Inc()
		h.logger.Warn("webhook for unknown reference",
			"provider", providerCode,
			"correlation_id", middleware.GetCorrelationID(r.Context()))
		api.NotFound(w, "unknown reference")

	case errors.Is(err, provider.ErrBadSignature):
		webhooksTotal.WithLabelValues(providerCode, "bad_signature").Inc()
		h.logger.Warn("webhook signature rejected", "provider", providerCode)
		api.Unauthorized(w, "invalid signature")

	default:
		webhooksTotal.WithLabelValues(providerCode, "error").Inc()
		h.logger.Error("webhook processing failed",
			"provider", providerCode, "error", err)
		api.BadRequest(w, "could not process payload")
	}
}
