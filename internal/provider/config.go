package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"

	"vtuplatform/internal/common/database"
)

// Config is a persisted provider configuration row. Mutated only through
// the admin API; read by the registry and the credential resolver.
type Config struct {
	ID                string          `json:"id"`
	Code              string          `json:"code"`
	Name              string          `json:"name"`
	BaseURL           string          `json:"base_url"`
	APIKey            string          `json:"-"`
	SecretKey         string          `json:"-"`
	Active            bool            `json:"active"`
	Priority          int             `json:"priority"`
	SupportedServices []string        `json:"supported_services"`
	Metadata          json.RawMessage `json:"metadata,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// Credentials are the resolved connection parameters for one vendor.
type Credentials struct {
	BaseURL   string
	APIKey    string
	SecretKey string
}

// ConfigStore persists provider configurations and resolves credentials
// through a short-lived cache so admin edits take effect without a
// restart. The cache is invalidated explicitly on admin updates and
// expires on its own after the TTL as a backstop.
type ConfigStore struct {
	db  *database.DB
	ttl time.Duration

	mu        sync.Mutex
	cache     map[string]cachedCredentials
	fallbacks map[string]Credentials
}

type cachedCredentials struct {
	creds     Credentials
	fetchedAt time.Time
}

// NewConfigStore creates a config store with the given credential cache TTL.
func NewConfigStore(db *database.DB, ttl time.Duration) *ConfigStore {
	return &ConfigStore{
		db:        db,
		ttl:       ttl,
		cache:     make(map[string]cachedCredentials),
		fallbacks: make(map[string]Credentials),
	}
}

// SetFallback registers process-environment credentials used when no
// config row exists for a provider, or when a row leaves fields blank.
func (s *ConfigStore) SetFallback(code string, creds Credentials) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fallbacks[code] = creds
}

// Invalidate drops the cached credentials for a provider. Called by the
// admin API after a config update.
func (s *ConfigStore) Invalidate(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cache, code)
}

// Credentials resolves credentials for a provider: config row first,
// environment fallback for any blank field.
func (s *ConfigStore) Credentials(ctx context.Context, code string) (Credentials, error) {
	s.mu.Lock()
	if cached, ok := s.cache[code]; ok && time.Since(cached.fetchedAt) < s.ttl {
		creds := cached.creds
		s.mu.Unlock()
		return creds, nil
	}
	fallback := s.fallbacks[code]
	s.mu.Unlock()

	creds := fallback
	cfg, err := s.GetByCode(ctx, code)
	switch {
	case err == nil:
		if cfg.BaseURL != "" {
			creds.BaseURL = cfg.BaseURL
		}
		if cfg.APIKey != "" {
			creds.APIKey = cfg.APIKey
		}
		if cfg.SecretKey != "" {
			creds.SecretKey = cfg.SecretKey
		}
	case database.IsNotFound(err):
		// no row, environment fallback only
	default:
		return Credentials{}, err
	}

	if creds.BaseURL == "" {
		return Credentials{}, fmt.Errorf("provider %s has no base URL configured", code)
	}

	s.mu.Lock()
	s.cache[code] = cachedCredentials{creds: creds, fetchedAt: time.Now()}
	s.mu.Unlock()

	return creds, nil
}

const configColumns = `id, code, name, base_url, api_key, secret_key, active, priority,
	supported_services, metadata, created_at, updated_at`

// Create inserts a provider config. A duplicate code surfaces as
// database.ErrAlreadyExists for the admin API to map to 409.
func (s *ConfigStore) Create(ctx context.Context, cfg *Config) error {
	if cfg.ID == "" {
		cfg.ID = ulid.Make().String()
	}

	query := `
		INSERT INTO provider_configs (
			id, code, name, base_url, api_key, secret_key, active, priority,
			supported_services, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`

	err := s.db.QueryRow(ctx, query,
		cfg.ID, cfg.Code, cfg.Name, cfg.BaseURL, cfg.APIKey, cfg.SecretKey,
		cfg.Active, cfg.Priority, cfg.SupportedServices, cfg.Metadata,
	).Scan(&cfg.CreatedAt, &cfg.UpdatedAt)

	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("provider code %s: %w", cfg.Code, database.ErrAlreadyExists)
		}
		return fmt.Errorf("creating provider config: %w", err)
	}
	return nil
}

// Update rewrites a provider config by code.
func (s *ConfigStore) Update(ctx context.Context, cfg *Config) error {
	query := `
		UPDATE provider_configs
		SET name = $2, base_url = $3, api_key = $4, secret_key = $5,
		    active = $6, priority = $7, supported_services = $8, metadata = $9,
		    updated_at = now()
		WHERE code = $1
		RETURNING id, created_at, updated_at
	`

	err := s.db.QueryRow(ctx, query,
		cfg.Code, cfg.Name, cfg.BaseURL, cfg.APIKey, cfg.SecretKey,
		cfg.Active, cfg.Priority, cfg.SupportedServices, cfg.Metadata,
	).Scan(&cfg.ID, &cfg.CreatedAt, &cfg.UpdatedAt)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.ErrNotFound
		}
		return fmt.Errorf("updating provider config: %w", err)
	}
	return nil
}

// Delete removes a provider config by code.
func (s *ConfigStore) Delete(ctx context.Context, code string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM provider_configs WHERE code = $1`, code)
	if err != nil {
		return fmt.Errorf("deleting provider config: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return database.ErrNotFound
	}
	return nil
}

// GetByCode retrieves a provider config by code.
func (s *ConfigStore) GetByCode(ctx context.Context, code string) (*Config, error) {
	query := `SELECT ` + configColumns + ` FROM provider_configs WHERE code = $1`
	return scanConfig(s.db.QueryRow(ctx, query, code))
}

// List returns all provider configs ordered by priority then name.
func (s *ConfigStore) List(ctx context.Context) ([]*Config, error) {
	query := `SELECT ` + configColumns + ` FROM provider_configs ORDER BY priority, name`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing provider configs: %w", err)
	}
	defer rows.Close()

	return scanConfigs(rows)
}

// ActiveForService returns active configs supporting a service, ordered
// by ascending priority with name as the deterministic tie-break.
func (s *ConfigStore) ActiveForService(ctx context.Context, svc Service) ([]*Config, error) {
	query := `SELECT ` + configColumns + `
		FROM provider_configs
		WHERE active = true AND $1 = ANY(supported_services)
		ORDER BY priority, name`

	rows, err := s.db.Query(ctx, query, string(svc))
	if err != nil {
		return nil, fmt.Errorf("listing active providers for %s: %w", svc, err)
	}
	defer rows.Close()

	return scanConfigs(rows)
}

func scanConfig(row pgx.Row) (*Config, error) {
	var c Config
	err := row.Scan(
		&c.ID, &c.Code, &c.Name, &c.BaseURL, &c.APIKey, &c.SecretKey,
		&c.Active, &c.Priority, &c.SupportedServices, &c.Metadata,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, database.ErrNotFound
		}
		return nil, fmt.Errorf("scanning provider config: %w", err)
	}
	return &c, nil
}

func scanConfigs(rows pgx.Rows) ([]*Config, error) {
	var configs []*Config
	for rows.Next() {
		c, err := scanConfig(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, c)
	}
	return configs, rows.Err()
}
