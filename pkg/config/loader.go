package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, LENS_CONFIG env, ./config.yaml, /etc/lens/config.yaml)
//  3. Environment variable overrides
//  4. File reference resolution (_file suffix)
//  5. Validation
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. LENS_CONFIG environment variable
// 3. ./config.yaml in the current directory
// 4. /etc/lens/config.yaml
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}

	if envPath := os.Getenv("LENS_CONFIG"); envPath != "" {
		return envPath
	}

	candidates := []string{
		"config.yaml",
		"/etc/lens/config.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides maps LENS_* environment variables to config fields.
// Malformed numeric, boolean and duration values are reported rather than
// silently ignored.
func applyEnvOverrides(cfg *Config) error {
	var errs []string
	bad := func(name string, err error) {
		errs = append(errs, fmt.Sprintf("%s: %v", name, err))
	}

	if v := os.Getenv("LENS_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			bad("LENS_PORT", err)
		} else {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("LENS_ENVIRONMENT"); v != "" {
		cfg.Server.Environment = v
	}
	if v := os.Getenv("LENS_SHUTDOWN_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			bad("LENS_SHUTDOWN_TIMEOUT", err)
		} else {
			cfg.Server.ShutdownTimeout = d
		}
	}

	if v := os.Getenv("LENS_AUTH_TYPE"); v != "" {
		cfg.Auth.Type = v
	}
	if v := os.Getenv("LENS_AUTH_STRICT"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			bad("LENS_AUTH_STRICT", err)
		} else {
			cfg.Auth.Strict = b
		}
	}
	if v := os.Getenv("LENS_APIKEY_HEADER"); v != "" {
		cfg.Auth.APIKey.HeaderName = v
	}
	if v := os.Getenv("LENS_APIKEY_SECRET"); v != "" {
		cfg.Auth.APIKey.SharedSecret = v
	}

	if v := os.Getenv("LENS_AZUREAD_ISSUERS"); v != "" {
		cfg.Auth.AzureAD.AllowedIssuers = splitList(v)
	}
	if v := os.Getenv("LENS_AZUREAD_SCOPES"); v != "" {
		cfg.Auth.AzureAD.RequiredScopes = splitList(v)
	}
	if v := os.Getenv("LENS_AZUREAD_APP_ROLES"); v != "" {
		cfg.Auth.AzureAD.RequiredAppRoles = splitList(v)
	}
	if v := os.Getenv("LENS_AZUREAD_AUDIENCE"); v != "" {
		cfg.Auth.AzureAD.Audience = v
	}
	if v := os.Getenv("LENS_AZUREAD_CLIENT_ID"); v != "" {
		cfg.Auth.AzureAD.ClientID = v
	}

	// LENS_AZUREAD_KEY_SET_URLS: JSON object mapping issuer to JWKS URL.
	if v := os.Getenv("LENS_AZUREAD_KEY_SET_URLS"); v != "" {
		urls, err := parseKeySetURLsJSON(v)
		if err != nil {
			bad("LENS_AZUREAD_KEY_SET_URLS", err)
		} else {
			cfg.Auth.AzureAD.KeySetURLs = urls
		}
	}

	if v := os.Getenv("LENS_DOCS_APP_NAME"); v != "" {
		cfg.Docs.AppName = v
	}

	if v := os.Getenv("LENS_SETTINGS_SOURCE"); v != "" {
		cfg.SettingsSource.Type = v
	}
	if v := os.Getenv("LENS_POSTGRES_DSN"); v != "" {
		cfg.SettingsSource.Postgres.DSN = v
	}

	if v := os.Getenv("LENS_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// parseKeySetURLsJSON parses a JSON object of issuer to key set URL.
func parseKeySetURLsJSON(jsonStr string) (map[string]string, error) {
	var urls map[string]string
	if err := json.Unmarshal([]byte(jsonStr), &urls); err != nil {
		return nil, fmt.Errorf("parsing key set URLs JSON: %w", err)
	}
	return urls, nil
}

// splitList splits a comma-separated list and drops empty entries.
func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// resolveFileReferences reads _file fields and populates the corresponding value fields.
// For each field ending in _file, if the value field is empty and the file field is set,
// the file is read, whitespace is trimmed, and the value field is populated.
func resolveFileReferences(cfg *Config) error {
	// auth.apikey.shared_secret_file -> auth.apikey.shared_secret
	if cfg.Auth.APIKey.SharedSecretFile != "" && cfg.Auth.APIKey.SharedSecret == "" {
		val, err := readSecretFile(cfg.Auth.APIKey.SharedSecretFile)
		if err != nil {
			return fmt.Errorf("auth.apikey.shared_secret_file: %w", err)
		}
		cfg.Auth.APIKey.SharedSecret = val
	}

	// settings_source.postgres.dsn_file -> settings_source.postgres.dsn
	if cfg.SettingsSource.Postgres.DSNFile != "" && cfg.SettingsSource.Postgres.DSN == "" {
		val, err := readSecretFile(cfg.SettingsSource.Postgres.DSNFile)
		if err != nil {
			return fmt.Errorf("settings_source.postgres.dsn_file: %w", err)
		}
		cfg.SettingsSource.Postgres.DSN = val
	}

	return nil
}

// readSecretFile reads a file and returns its content with surrounding whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
