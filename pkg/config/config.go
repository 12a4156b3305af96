// Package config provides unified configuration for the lens server.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (LENS_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
//
// Strategy-specific checks such as a missing shared secret are not part of
// validation here. They surface as configuration errors when the strategy
// is constructed.
package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rhuss/lens/pkg/settings"
)

// Environments recognized by server.environment.
const (
	EnvironmentProduction  = "production"
	EnvironmentDevelopment = "development"
)

// Settings source types.
const (
	SourceStatic   = "static"
	SourcePostgres = "postgres"
)

// Config holds all configuration for the lens server.
type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Auth           AuthConfig           `yaml:"auth"`
	Docs           DocsConfig           `yaml:"docs"`
	SettingsSource SettingsSourceConfig `yaml:"settings_source"`
	Observability  ObservabilityConfig  `yaml:"observability"`
	Logging        LoggingConfig        `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port              int           `yaml:"port"`                // default: 8080
	Environment       string        `yaml:"environment"`         // "production" or "development", default: "production"
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"` // default: 10s
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`    // default: 30s
}

// AuthConfig selects and parameterizes the authentication strategy.
type AuthConfig struct {
	Type    string        `yaml:"type"`   // "anonymous", "apikey" or "azuread"; unknown falls back to anonymous
	Strict  bool          `yaml:"strict"` // fail startup on an unknown type instead
	APIKey  APIKeyConfig  `yaml:"apikey"`
	AzureAD AzureADConfig `yaml:"azuread"`
}

// APIKeyConfig holds the shared-secret header settings.
type APIKeyConfig struct {
	HeaderName       string `yaml:"header_name"` // default: "X-Api-Key"
	SharedSecret     string `yaml:"shared_secret"`
	SharedSecretFile string `yaml:"shared_secret_file"` // _file variant for shared_secret
}

// AzureADConfig holds the bearer token settings.
type AzureADConfig struct {
	AllowedIssuers            []string          `yaml:"allowed_issuers"`
	RequiredScopes            []string          `yaml:"required_scopes"`
	RequiredAppRoles          []string          `yaml:"required_app_roles"`
	IncludeConfigInAuthHeader bool              `yaml:"include_config_in_auth_header"`
	RolesForApplicationsOnly  bool              `yaml:"roles_for_applications_only"`
	Audience                  string            `yaml:"audience"`
	ClientID                  string            `yaml:"client_id"`
	AuthorizationURL          string            `yaml:"authorization_url"`
	TokenURL                  string            `yaml:"token_url"`
	KeySetURLs                map[string]string `yaml:"key_set_urls"`
	KeyCacheTTL               time.Duration     `yaml:"key_cache_ttl"` // default: 1h
	ClockSkew                 time.Duration     `yaml:"clock_skew"`    // default: 1m
}

// DocsConfig holds the API documentation metadata.
type DocsConfig struct {
	AppName     string `yaml:"app_name"` // default: "Protected API"
	Version     string `yaml:"version"`  // default: "v1"
	Description string `yaml:"description"`
}

// SettingsSourceConfig selects where the request-time guard reads settings.
type SettingsSourceConfig struct {
	Type     string         `yaml:"type"` // "static" or "postgres", default: "static"
	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	DSNFile         string        `yaml:"dsn_file"`         // _file variant for dsn
	Name            string        `yaml:"name"`             // settings row, default: "default"
	MaxConns        int32         `yaml:"max_conns"`        // default: 25
	RefreshInterval time.Duration `yaml:"refresh_interval"` // default: 30s
	MigrateOnStart  bool          `yaml:"migrate_on_start"` // default: false
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"` // default: true
}

// LoggingConfig holds log output settings. LENS_LOG_LEVEL and LENS_DEBUG
// take precedence over level and debug.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // TRACE, DEBUG, INFO, WARN, ERROR; default: INFO
	Format string `yaml:"format"` // "text" or "json", default: "text"
	Debug  string `yaml:"debug"`  // comma-separated debug categories
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:              8080,
			Environment:       EnvironmentProduction,
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownTimeout:   30 * time.Second,
		},
		Auth: AuthConfig{
			Type: settings.Anonymous,
			APIKey: APIKeyConfig{
				HeaderName: settings.DefaultAPIKeyHeader,
			},
			AzureAD: AzureADConfig{
				KeyCacheTTL: time.Hour,
				ClockSkew:   time.Minute,
			},
		},
		Docs: DocsConfig{
			AppName: "Protected API",
			Version: "v1",
		},
		SettingsSource: SettingsSourceConfig{
			Type: SourceStatic,
			Postgres: PostgresConfig{
				Name:            "default",
				MaxConns:        25,
				RefreshInterval: 30 * time.Second,
			},
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
			},
		},
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "text",
		},
	}
}

// Addr returns the listen address for server.port.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

// IsDevelopment reports whether verbose diagnostics may be exposed to
// clients.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Server.Environment, EnvironmentDevelopment)
}

// AuthSettings builds the settings snapshot for the strategy factory. Only
// the sub-record matching auth.type is populated.
func (c *Config) AuthSettings() settings.Auth {
	out := settings.Auth{
		AuthenticationType: c.Auth.Type,
		Strict:             c.Auth.Strict,
	}

	switch settings.Normalize(c.Auth.Type) {
	case settings.APIKeyType:
		out.APIKey = &settings.APIKey{
			HeaderName:   c.Auth.APIKey.HeaderName,
			SharedSecret: c.Auth.APIKey.SharedSecret,
		}
	case settings.AzureAD:
		az := c.Auth.AzureAD
		out.AzureAD = &settings.BearerToken{
			AllowedIssuers:            slices.Clone(az.AllowedIssuers),
			RequiredScopes:            slices.Clone(az.RequiredScopes),
			RequiredAppRoles:          slices.Clone(az.RequiredAppRoles),
			IncludeConfigInAuthHeader: az.IncludeConfigInAuthHeader,
			RolesForApplicationsOnly:  az.RolesForApplicationsOnly,
			Audience:                  az.Audience,
			ClientID:                  az.ClientID,
			AuthorizationURL:          az.AuthorizationURL,
			TokenURL:                  az.TokenURL,
			KeySetURLs:                az.KeySetURLs,
			KeyCacheTTL:               az.KeyCacheTTL,
			ClockSkew:                 az.ClockSkew,
		}
	}

	return out
}

// DocsSettings returns the documentation metadata.
func (c *Config) DocsSettings() settings.Docs {
	return settings.Docs{
		Title:       c.Docs.AppName,
		Version:     c.Docs.Version,
		Description: c.Docs.Description,
	}
}
