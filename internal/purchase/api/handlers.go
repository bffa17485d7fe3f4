// Package api exposes the purchase and transaction HTTP endpoints.
package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"vtuplatform/internal/common/api"
	"vtuplatform/internal/common/database"
	"vtuplatform/internal/common/middleware"
	"vtuplatform/internal/common/money"
	"vtuplatform/internal/provider"
	"vtuplatform/internal/purchase"
	"vtuplatform/internal/wallet"
)

// Handler serves purchase and transaction endpoints.
type Handler struct {
	service *purchase.Service
	logger  *slog.Logger
}

// NewHandler creates a purchase API handler.
func NewHandler(service *purchase.Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Routes mounts the purchase endpoints on a router.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/purchase/airtime", h.Airtime)
	r.Post("/purchase/data", h.Data)
	r.Post("/purchase/cable", h.Cable)
	r.Post("/purchase/electricity", h.Electricity)
	r.Post("/purchase/exampin", h.ExamPin)
	r.Get("/purchase/networks", h.Networks)
	r.Get("/purchase/data-plans", h.DataPlans)
	r.Get("/transactions", h.List)
	r.Get("/transactions/{reference}/status", h.Status)
}

// Networks handles GET /purchase/networks.
func (h *Handler) Networks(w http.ResponseWriter, r *http.Request) {
	networks, err := h.service.Networks(r.Context(), r.URL.Query().Get("provider"))
	if err != nil {
		h.writeCatalogError(w, r, err)
		return
	}
	api.WriteData(w, http.StatusOK, "networks", networks)
}

// DataPlans handles GET /purchase/data-plans.
func (h *Handler) DataPlans(w http.ResponseWriter, r *http.Request) {
	network := r.URL.Query().Get("network")
	if network == "" {
		api.BadRequest(w, "network query parameter is required")
		return
	}
	plans, err := h.service.DataPlans(r.Context(), r.URL.Query().Get("provider"), network)
	if err != nil {
		h.writeCatalogError(w, r, err)
		return
	}
	api.WriteData(w, http.StatusOK, "data plans", plans)
}

func (h *Handler) writeCatalogError(w http.ResponseWriter, r *http.Request, err error) {
	var upstream *provider.UpstreamError

	switch {
	case errors.Is(err, purchase.ErrUnknownProvider), errors.Is(err, provider.ErrNoProvider):
		api.NotFound(w, "no provider available for this service")
	case errors.Is(err, provider.ErrNotSupported):
		api.NotFound(w, "provider does not publish a catalog")
	case errors.As(err, &upstream):
		api.BadRequest(w, "catalog fetch failed: "+upstream.Message)
	default:
		h.logger.Error("catalog fetch failed",
			"error", err,
			"correlation_id", middleware.GetCorrelationID(r.Context()))
		api.InternalError(w, "could not load catalog")
	}
}

type airtimeRequest struct {
	Network  string  `json:"network" validate:"required,oneof=mtn glo airtel 9mobile"`
	Phone    string  `json:"phone" validate:"required,min=11,max=14"`
	Amount   float64 `json:"amount" validate:"required,gt=0"`
	Provider string  `json:"provider" validate:"omitempty,alphanum"`
}

// Airtime handles POST /purchase/airtime.
func (h *Handler) Airtime(w http.ResponseWriter, r *http.Request) {
	var req airtimeRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}

	identity, ok := middleware.GetIdentity(r.Context())
	if !ok {
		api.Unauthorized(w, "authentication required")
		return
	}

	tx, err := h.service.Airtime(r.Context(), identity.ID, purchase.AirtimeRequest{
		Network:  req.Network,
		Phone:    req.Phone,
		Amount:   money.NewFromMajor(req.Amount, money.NGN),
		Provider: req.Provider,
	})
	if err != nil {
		h.writePurchaseError(w, r, err)
		return
	}
	api.WriteData(w, http.StatusOK, "airtime purchase processed", tx)
}

type dataRequest struct {
	Network  string  `json:"network" validate:"required,oneof=mtn glo airtel 9mobile"`
	Phone    string  `json:"phone" validate:"required,min=11,max=14"`
	Plan     string  `json:"plan" validate:"required"`
	Amount   float64 `json:"amount" validate:"required,gt=0"`
	Provider string  `json:"provider" validate:"omitempty,alphanum"`
}

// Data handles POST /purchase/data.
func (h *Handler) Data(w http.ResponseWriter, r *http.Request) {
	var req dataRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}

	identity, ok := middleware.GetIdentity(r.Context())
	if !ok {
		api.Unauthorized(w, "authentication required")
		return
	}

	tx, err := h.service.Data(r.Context(), identity.ID, purchase.DataRequest{
		Network:  req.Network,
		Phone:    req.Phone,
		PlanID:   req.Plan,
		Amount:   money.NewFromMajor(req.Amount, money.NGN),
		Provider: req.Provider,
	})
	if err != nil {
		h.writePurchaseError(w, r, err)
		return
	}
	api.WriteData(w, http.StatusOK, "data purchase processed", tx)
}

type cableRequest struct {
	Biller    string  `json:"biller" validate:"required"`
	SmartCard string  `json:"smartcard" validate:"required"`
	Variation string  `json:"variation" validate:"required"`
	Amount    float64 `json:"amount" validate:"required,gt=0"`
	Phone     string  `json:"phone" validate:"omitempty,min=11,max=14"`
	Provider  string  `json:"provider" validate:"omitempty,alphanum"`
}

// Cable handles POST /purchase/cable.
func (h *Handler) Cable(w http.ResponseWriter, r *http.Request) {
	var req cableRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}
	h.bill(w, r, purchase.BillRequest{
		Service:   provider.ServiceCable,
		Biller:    req.Biller,
		Account:   req.SmartCard,
		Variation: req.Variation,
		Amount:    money.NewFromMajor(req.Amount, money.NGN),
		Phone:     req.Phone,
		Provider:  req.Provider,
	}, "cable subscription processed")
}

type electricityRequest struct {
	Biller    string  `json:"biller" validate:"required"`
	Meter     string  `json:"meter" validate:"required"`
	MeterType string  `json:"meter_type" validate:"required,oneof=prepaid postpaid"`
	Amount    float64 `json:"amount" validate:"required,gt=0"`
	Phone     string  `json:"phone" validate:"omitempty,min=11,max=14"`
	Provider  string  `json:"provider" validate:"omitempty,alphanum"`
}

// Electricity handles POST /purchase/electricity.
func (h *Handler) Electricity(w http.ResponseWriter, r *http.Request) {
	var req electricityRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}
	h.bill(w, r, purchase.BillRequest{
		Service:   provider.ServiceElectricity,
		Biller:    req.Biller,
		Account:   req.Meter,
		Variation: req.MeterType,
		Amount:    money.NewFromMajor(req.Amount, money.NGN),
		Phone:     req.Phone,
		Provider:  req.Provider,
	}, "electricity purchase processed")
}

type examPinRequest struct {
	Exam     string  `json:"exam" validate:"required,oneof=waec neco nabteb"`
	Quantity string  `json:"quantity" validate:"required,number"`
	Amount   float64 `json:"amount" validate:"required,gt=0"`
	Provider string  `json:"provider" validate:"omitempty,alphanum"`
}

// ExamPin handles POST /purchase/exampin.
func (h *Handler) ExamPin(w http.ResponseWriter, r *http.Request) {
	var req examPinRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}
	h.bill(w, r, purchase.BillRequest{
		Service:  provider.ServiceExamPin,
		Biller:   req.Exam,
		Account:  req.Quantity,
		Amount:   money.NewFromMajor(req.Amount, money.NGN),
		Provider: req.Provider,
	}, "exam pin purchase processed")
}

func (h *Handler) bill(w http.ResponseWriter, r *http.Request, req purchase.BillRequest, message string) {
	identity, ok := middleware.GetIdentity(r.Context())
	if !ok {
		api.Unauthorized(w, "authentication required")
		return
	}

	tx, err := h.service.Bill(r.Context(), identity.ID, req)
	if err != nil {
		h.writePurchaseError(w, r, err)
		return
	}
	api.WriteData(w, http.StatusOK, message, tx)
}

// Status handles GET /transactions/{reference}/status.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentity(r.Context())
	if !ok {
		api.Unauthorized(w, "authentication required")
		return
	}

	reference := chi.URLParam(r, "reference")
	tx, err := h.service.Status(r.Context(), identity.ID, reference)
	if err != nil {
		if database.IsNotFound(err) {
			api.NotFound(w, "transaction not found")
			return
		}
		h.logger.Error("transaction status lookup failed",
			"reference", reference, "error", err)
		api.InternalError(w, "could not load transaction")
		return
	}
	api.WriteData(w, http.StatusOK, "transaction status", tx)
}

// List handles GET /transactions.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentity(r.Context())
	if !ok {
		api.Unauthorized(w, "authentication required")
		return
	}

	page, limit := api.ParsePagination(r, 20, 100)
	txs, total, err := h.service.List(r.Context(), identity.ID, limit, (page-1)*limit)
	if err != nil {
		h.logger.Error("transaction list failed", "user_id", identity.ID, "error", err)
		api.InternalError(w, "could not load transactions")
		return
	}
	api.WritePaginated(w, "transactions", txs, api.NewPagination(page, limit, total))
}

// writePurchaseError maps orchestrator failures onto the response
// envelope. Refunds have already been issued by the time this runs.
func (h *Handler) writePurchaseError(w http.ResponseWriter, r *http.Request, err error) {
	var upstream *provider.UpstreamError

	switch {
	case errors.Is(err, wallet.ErrInsufficientBalance):
		api.BadRequest(w, "insufficient wallet balance")
	case errors.Is(err, wallet.ErrInvalidAmount):
		api.BadRequest(w, "amount must be positive")
	case errors.Is(err, wallet.ErrCurrencyMismatch):
		api.BadRequest(w, "currency does not match wallet currency")
	case errors.Is(err, purchase.ErrUnknownProvider), errors.Is(err, provider.ErrNoProvider):
		api.NotFound(w, "no provider available for this service")
	case database.IsNotFound(err):
		api.NotFound(w, "wallet not found")
	case errors.As(err, &upstream):
		// Vendor message is safe to surface; the purchase was refunded.
		api.BadRequest(w, "purchase failed: "+upstream.Message)
	default:
		h.logger.Error("purchase failed",
			"error", err,
			"correlation_id", middleware.GetCorrelationID(r.Context()))
		api.InternalError(w, "purchase could not be completed")
	}
}
