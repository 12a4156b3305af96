package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks the configuration for required fields and valid values.
// Returns an error with a descriptive field path on failure.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}

	switch strings.ToLower(c.Server.Environment) {
	case EnvironmentProduction, EnvironmentDevelopment:
	default:
		errs = append(errs, fmt.Errorf("server.environment must be %q or %q, got %q",
			EnvironmentProduction, EnvironmentDevelopment, c.Server.Environment))
	}

	if c.Server.ShutdownTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.shutdown_timeout must not be negative"))
	}

	// auth.type is not checked: unknown values fall back to anonymous
	// unless auth.strict is set, which the strategy factory handles.

	if c.Auth.AzureAD.KeyCacheTTL < 0 {
		errs = append(errs, fmt.Errorf("auth.azuread.key_cache_ttl must not be negative"))
	}
	if c.Auth.AzureAD.ClockSkew < 0 {
		errs = append(errs, fmt.Errorf("auth.azuread.clock_skew must not be negative"))
	}

	if c.Docs.AppName == "" {
		errs = append(errs, fmt.Errorf("docs.app_name is required"))
	}

	switch c.SettingsSource.Type {
	case SourceStatic:
	case SourcePostgres:
		if c.SettingsSource.Postgres.DSN == "" && c.SettingsSource.Postgres.DSNFile == "" {
			errs = append(errs, fmt.Errorf("settings_source.postgres.dsn or settings_source.postgres.dsn_file is required when settings_source.type is \"postgres\""))
		}
	default:
		errs = append(errs, fmt.Errorf("settings_source.type must be %q or %q, got %q",
			SourceStatic, SourcePostgres, c.SettingsSource.Type))
	}

	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be \"text\" or \"json\", got %q", c.Logging.Format))
	}

	return errors.Join(errs...)
}
