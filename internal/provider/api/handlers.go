// Package api exposes the admin provider configuration endpoints.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"vtuplatform/internal/common/api"
	"vtuplatform/internal/common/database"
	"vtuplatform/internal/provider"
)

// Handler serves provider configuration CRUD for admin users.
type Handler struct {
	configs *provider.ConfigStore
	logger  *slog.Logger
}

// NewHandler creates an admin provider API handler.
func NewHandler(configs *provider.ConfigStore, logger *slog.Logger) *Handler {
	return &Handler{configs: configs, logger: logger}
}

// Routes mounts the admin endpoints. Callers wrap them with the admin
// role requirement.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/providers", h.List)
	r.Post("/providers", h.Create)
	r.Get("/providers/{code}", h.Get)
	r.Put("/providers/{code}", h.Update)
	r.Delete("/providers/{code}", h.Delete)
}

type configRequest struct {
	Code              string          `json:"code" validate:"required,alphanum,lowercase"`
	Name              string          `json:"name" validate:"required"`
	BaseURL           string          `json:"base_url" validate:"omitempty,url"`
	APIKey            string          `json:"api_key"`
	SecretKey         string          `json:"secret_key"`
	Active            bool            `json:"active"`
	Priority          int             `json:"priority" validate:"gte=0"`
	SupportedServices []string        `json:"supported_services" validate:"required,min=1,dive,oneof=airtime data cable electricity exampin funding"`
	Metadata          json.RawMessage `json:"metadata"`
}

// List handles GET /providers.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	configs, err := h.configs.List(r.Context())
	if err != nil {
		h.logger.Error("provider list failed", "error", err)
		api.InternalError(w, "could not load providers")
		return
	}
	api.WriteData(w, http.StatusOK, "providers", configs)
}

// Get handles GET /providers/{code}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	cfg, err := h.configs.GetByCode(r.Context(), code)
	if err != nil {
		if database.IsNotFound(err) {
			api.NotFound(w, "provider not found")
			return
		}
		h.logger.Error("provider lookup failed", "code", code, "error", err)
		api.InternalError(w, "could not load provider")
		return
	}
	api.WriteData(w, http.StatusOK, "provider", cfg)
}

// Create handles POST /providers.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req configRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}

	cfg := &provider.Config{
		Code:              req.Code,
		Name:              req.Name,
		BaseURL:           req.BaseURL,
		APIKey:            req.APIKey,
		SecretKey:         req.SecretKey,
		Active:            req.Active,
		Priority:          req.Priority,
		SupportedServices: req.SupportedServices,
		Metadata:          req.Metadata,
	}
	if err := h.configs.Create(r.Context(), cfg); err != nil {
		if errors.Is(err, database.ErrAlreadyExists) {
			api.Conflict(w, "provider code already exists")
			return
		}
		h.logger.Error("provider create failed", "code", req.Code, "error", err)
		api.InternalError(w, "could not create provider")
		return
	}
	api.WriteData(w, http.StatusCreated, "provider created", cfg)
}

// Update handles PUT /providers/{code}. Cached credentials for the code
// are invalidated so rotation takes effect immediately.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	var req configRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}
	if req.Code != code {
		api.BadRequest(w, "provider code cannot be changed")
		return
	}

	cfg := &provider.Config{
		Code:              code,
		Name:              req.Name,
		BaseURL:           req.BaseURL,
		APIKey:            req.APIKey,
		SecretKey:         req.SecretKey,
		Active:            req.Active,
		Priority:          req.Priority,
		SupportedServices: req.SupportedServices,
		Metadata:          req.Metadata,
	}
	if err := h.configs.Update(r.Context(), cfg); err != nil {
		if database.IsNotFound(err) {
			api.NotFound(w, "provider not found")
			return
		}
		h.logger.Error("provider update failed", "code", code, "error", err)
		api.InternalError(w, "could not update provider")
		return
	}

	h.configs.Invalidate(code)
	api.WriteData(w, http.StatusOK, "provider updated", cfg)
}

// Delete handles DELETE /providers/{code}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if err := h.configs.Delete(r.Context(), code); err != nil {
		if database.IsNotFound(err) {
			api.NotFound(w, "provider not found")
			return
		}
		h.logger.Error("provider delete failed", "code", code, "error", err)
		api.InternalError(w, "could not delete provider")
		return
	}

	h.configs.Invalidate(code)
	api.WriteData(w, http.StatusOK, "provider deleted", nil)
}
