package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// DefaultProviderCode is tried when no configured provider matches a
// service.
const DefaultProviderCode = "topupmate"

// ConfigSource is the registry's read view of provider configuration.
type ConfigSource interface {
	ActiveForService(ctx context.Context, svc Service) ([]*Config, error)
}

// ErrNoProvider is returned when no registered provider can service a
// request.
var ErrNoProvider = errors.New("no provider available for service")

// Registry maps provider codes to registered clients and resolves the
// preferred provider for a service from persisted configuration.
// Routing is deterministic: ascending priority, then name; no health
// demotion. A broken provider ranked first is still tried first, and
// its failure is handled by the orchestrator's refund path.
type Registry struct {
	configs ConfigSource
	clients map[string]Client
	logger  *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(configs ConfigSource, logger *slog.Logger) *Registry {
	return &Registry{
		configs: configs,
		clients: make(map[string]Client),
		logger:  logger,
	}
}

// Register adds a client. Capability declarations are validated here,
// once, rather than reflected over per call.
func (r *Registry) Register(c Client) error {
	code := c.Code()
	if code == "" {
		return errors.New("provider client has no code")
	}
	if _, exists := r.clients[code]; exists {
		return fmt.Errorf("provider %s already registered", code)
	}

	caps := c.Capabilities()
	if caps == (Capabilities{}) {
		return fmt.Errorf("provider %s declares no capabilities", code)
	}

	r.clients[code] = c
	r.logger.Info("provider registered", "provider", code)
	return nil
}

// Get returns the client for a code, or nil if none is registered.
func (r *Registry) Get(code string) Client {
	return r.clients[code]
}

// PreferredFor resolves the provider that should service a request:
// active configs supporting the service in (priority, name) order, first
// one with a registered client that declares the capability wins. Falls
// back to the hardcoded default provider when nothing is configured.
func (r *Registry) PreferredFor(ctx context.Context, svc Service) (Client, error) {
	configs, err := r.configs.ActiveForService(ctx, svc)
	if err != nil {
		return nil, fmt.Errorf("resolving providers for %s: %w", svc, err)
	}

	for _, cfg := range configs {
		client, ok := r.clients[cfg.Code]
		if !ok {
			r.logger.Warn("configured provider has no registered client",
				"provider", cfg.Code,
				"service", string(svc),
			)
			continue
		}
		if !client.Capabilities().Supports(svc) {
			r.logger.Warn("configured provider does not support service",
				"provider", cfg.Code,
				"service", string(svc),
			)
			continue
		}
		return client, nil
	}

	if fallback, ok := r.clients[DefaultProviderCode]; ok && fallback.Capabilities().Supports(svc) {
		r.logger.Debug("falling back to default provider",
			"provider", DefaultProviderCode,
			"service", string(svc),
		)
		return fallback, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrNoProvider, svc)
}
