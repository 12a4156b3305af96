// Package postgres provides a live authentication settings source backed by
// PostgreSQL. It uses pgx/v5 for connection pooling and keeps the bearer
// token settings in a JSONB column.
//
// The source serves an in-memory snapshot. Run reloads it periodically so
// that changes written by an operator take effect without a restart.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rhuss/lens/pkg/auth/apikey"
	"github.com/rhuss/lens/pkg/debug"
	"github.com/rhuss/lens/pkg/observability"
	"github.com/rhuss/lens/pkg/settings"
)

// ErrNotFound is returned when the configured settings row does not exist.
var ErrNotFound = errors.New("auth settings not found")

// ErrNotLoaded is returned by Current before any snapshot was loaded.
var ErrNotLoaded = errors.New("auth settings not loaded")

const sourceLabel = "postgres"

// Source is a PostgreSQL-backed apikey.Source.
type Source struct {
	pool     *pgxpool.Pool
	name     string
	interval time.Duration
	logger   *slog.Logger
	current  atomic.Pointer[settings.Auth]
}

var _ apikey.Source = (*Source)(nil)

// Option configures a Source.
type Option func(*Source)

// WithLogger sets the logger for refresh and migration messages.
func WithLogger(l *slog.Logger) Option {
	return func(s *Source) { s.logger = l }
}

// New connects to the database and loads the initial snapshot. If
// MigrateOnStart is true, schema migrations are applied first. A missing
// settings row is not an error here: Current reports ErrNotLoaded until a
// row is written or found by a later refresh.
func New(ctx context.Context, cfg Config, opts ...Option) (*Source, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Source{
		pool:     pool,
		name:     cfg.Name,
		interval: cfg.RefreshInterval,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	if err := s.Refresh(ctx); err != nil && !errors.Is(err, ErrNotFound) {
		pool.Close()
		return nil, fmt.Errorf("loading auth settings: %w", err)
	}

	return s, nil
}

// Current implements apikey.Source. It returns the last loaded snapshot
// without touching the database.
func (s *Source) Current(context.Context) (settings.Auth, error) {
	cfg := s.current.Load()
	if cfg == nil {
		return settings.Auth{}, ErrNotLoaded
	}
	return *cfg, nil
}

// Refresh reloads the snapshot from the database. On failure the previous
// snapshot stays in place.
func (s *Source) Refresh(ctx context.Context) error {
	cfg, err := s.load(ctx)
	if err != nil {
		status := "error"
		if errors.Is(err, ErrNotFound) {
			status = "missing"
		}
		observability.SettingsRefreshTotal.WithLabelValues(sourceLabel, status).Inc()
		return err
	}

	s.current.Store(&cfg)
	observability.SettingsRefreshTotal.WithLabelValues(sourceLabel, "ok").Inc()
	debug.Log("settings", "snapshot loaded",
		"name", s.name,
		"type", cfg.Discriminator(),
	)
	return nil
}

// Put writes cfg as the settings row and makes it the current snapshot.
func (s *Source) Put(ctx context.Context, cfg settings.Auth) error {
	var headerName, secret *string
	if cfg.APIKey != nil {
		headerName = &cfg.APIKey.HeaderName
		secret = &cfg.APIKey.SharedSecret
	}

	var bearerJSON []byte
	if cfg.AzureAD != nil {
		var err error
		bearerJSON, err = json.Marshal(toBearerRecord(*cfg.AzureAD))
		if err != nil {
			return fmt.Errorf("marshaling azuread settings: %w", err)
		}
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO auth_settings (
			name, authentication_type, strict,
			apikey_header_name, apikey_shared_secret, azuread, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (name) DO UPDATE SET
			authentication_type  = EXCLUDED.authentication_type,
			strict               = EXCLUDED.strict,
			apikey_header_name   = EXCLUDED.apikey_header_name,
			apikey_shared_secret = EXCLUDED.apikey_shared_secret,
			azuread              = EXCLUDED.azuread,
			updated_at           = now()
	`,
		s.name, cfg.AuthenticationType, cfg.Strict,
		headerName, secret, nullJSON(bearerJSON),
	)
	if err != nil {
		return fmt.Errorf("writing auth settings: %w", err)
	}

	return s.Refresh(ctx)
}

// Run reloads the snapshot every refresh interval until ctx is done.
// Refresh failures are logged and the previous snapshot is kept.
func (s *Source) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.Refresh(ctx); err != nil && ctx.Err() == nil {
				s.logger.WarnContext(ctx, "auth settings refresh failed",
					"name", s.name,
					"error", err,
				)
			}
		}
	}
}

// Close releases the connection pool.
func (s *Source) Close() {
	s.pool.Close()
}

func (s *Source) load(ctx context.Context) (settings.Auth, error) {
	var (
		cfg        settings.Auth
		headerName *string
		secret     *string
		bearerJSON []byte
	)

	err := s.pool.QueryRow(ctx, `
		SELECT authentication_type, strict,
		       apikey_header_name, apikey_shared_secret, azuread
		FROM auth_settings
		WHERE name = $1
	`, s.name).Scan(&cfg.AuthenticationType, &cfg.Strict, &headerName, &secret, &bearerJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return settings.Auth{}, ErrNotFound
		}
		return settings.Auth{}, fmt.Errorf("querying auth settings: %w", err)
	}

	if headerName != nil || secret != nil {
		key := settings.APIKey{}
		if headerName != nil {
			key.HeaderName = *headerName
		}
		if secret != nil {
			key.SharedSecret = *secret
		}
		key = key.WithDefaults()
		cfg.APIKey = &key
	}

	if len(bearerJSON) > 0 {
		var rec bearerRecord
		if err := json.Unmarshal(bearerJSON, &rec); err != nil {
			return settings.Auth{}, fmt.Errorf("unmarshaling azuread settings: %w", err)
		}
		bearer := rec.settings()
		cfg.AzureAD = &bearer
	}

	return cfg, nil
}

// bearerRecord is the JSONB layout of the azuread column.
type bearerRecord struct {
	AllowedIssuers            []string          `json:"allowed_issuers"`
	RequiredScopes            []string          `json:"required_scopes,omitempty"`
	RequiredAppRoles          []string          `json:"required_app_roles,omitempty"`
	IncludeConfigInAuthHeader bool              `json:"include_config_in_auth_header,omitempty"`
	RolesForApplicationsOnly  bool              `json:"roles_for_applications_only,omitempty"`
	Audience                  string            `json:"audience,omitempty"`
	ClientID                  string            `json:"client_id,omitempty"`
	AuthorizationURL          string            `json:"authorization_url,omitempty"`
	TokenURL                  string            `json:"token_url,omitempty"`
	KeySetURLs                map[string]string `json:"key_set_urls,omitempty"`
	KeyCacheTTL               string            `json:"key_cache_ttl,omitempty"`
	ClockSkew                 string            `json:"clock_skew,omitempty"`
}

func toBearerRecord(b settings.BearerToken) bearerRecord {
	rec := bearerRecord{
		AllowedIssuers:            b.AllowedIssuers,
		RequiredScopes:            b.RequiredScopes,
		RequiredAppRoles:          b.RequiredAppRoles,
		IncludeConfigInAuthHeader: b.IncludeConfigInAuthHeader,
		RolesForApplicationsOnly:  b.RolesForApplicationsOnly,
		Audience:                  b.Audience,
		ClientID:                  b.ClientID,
		AuthorizationURL:          b.AuthorizationURL,
		TokenURL:                  b.TokenURL,
		KeySetURLs:                b.KeySetURLs,
	}
	if b.KeyCacheTTL > 0 {
		rec.KeyCacheTTL = b.KeyCacheTTL.String()
	}
	if b.ClockSkew > 0 {
		rec.ClockSkew = b.ClockSkew.String()
	}
	return rec
}

// settings converts the record back. Unparsable durations fall back to
// the defaults.
func (r bearerRecord) settings() settings.BearerToken {
	b := settings.BearerToken{
		AllowedIssuers:            r.AllowedIssuers,
		RequiredScopes:            r.RequiredScopes,
		RequiredAppRoles:          r.RequiredAppRoles,
		IncludeConfigInAuthHeader: r.IncludeConfigInAuthHeader,
		RolesForApplicationsOnly:  r.RolesForApplicationsOnly,
		Audience:                  r.Audience,
		ClientID:                  r.ClientID,
		AuthorizationURL:          r.AuthorizationURL,
		TokenURL:                  r.TokenURL,
		KeySetURLs:                r.KeySetURLs,
	}
	b.KeyCacheTTL, _ = time.ParseDuration(r.KeyCacheTTL)
	b.ClockSkew, _ = time.ParseDuration(r.ClockSkew)
	return b.WithDefaults()
}

// nullJSON converts nil/empty byte slices to nil for nullable JSONB columns.
func nullJSON(b []byte) *[]byte {
	if len(b) == 0 {
		return nil
	}
	return &b
}
