// Package settings defines the typed authentication settings that select and
// parameterize the active lens authentication strategy.
//
// A settings value is a plain snapshot. It carries a discriminator naming the
// strategy and one optional sub-record per strategy. Only the sub-record that
// matches the discriminator is consulted.
package settings

import (
	"strings"
	"time"
)

// Strategy discriminators. Matching is case-insensitive.
const (
	Anonymous  = "anonymous"
	APIKeyType = "apikey"
	AzureAD    = "azuread"
)

// DefaultAPIKeyHeader is the header carrying the shared secret when no
// header name is configured.
const DefaultAPIKeyHeader = "X-Api-Key"

// Auth is the authentication settings snapshot.
type Auth struct {
	// AuthenticationType names the strategy. Empty means not configured.
	AuthenticationType string

	// Strict turns an unknown discriminator into a startup failure instead
	// of an anonymous fallback.
	Strict bool

	APIKey  *APIKey
	AzureAD *BearerToken
}

// Discriminator returns the normalized strategy name.
func (a Auth) Discriminator() string {
	return Normalize(a.AuthenticationType)
}

// Is reports whether the snapshot selects the named strategy.
func (a Auth) Is(name string) bool {
	return a.Discriminator() == Normalize(name)
}

// Normalize lowercases and trims a discriminator.
func Normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// APIKey holds the shared-secret header strategy settings.
type APIKey struct {
	// HeaderName is the request header carrying the secret.
	HeaderName string

	// SharedSecret is the expected header value. Compared case-sensitively.
	SharedSecret string
}

// WithDefaults returns a copy with the default header name applied.
func (k APIKey) WithDefaults() APIKey {
	if k.HeaderName == "" {
		k.HeaderName = DefaultAPIKeyHeader
	}
	return k
}

// BearerToken holds the issuer-validated bearer token strategy settings.
type BearerToken struct {
	// AllowedIssuers is the set of accepted iss values. Must be non-empty.
	AllowedIssuers []string

	// RequiredScopes are accepted with OR semantics. Enforced only when non-empty.
	RequiredScopes []string

	// RequiredAppRoles are accepted with OR semantics. Enforced only when non-empty.
	RequiredAppRoles []string

	// IncludeConfigInAuthHeader surfaces the client id and scopes in the
	// interactive docs UI.
	IncludeConfigInAuthHeader bool

	// RolesForApplicationsOnly limits the app-role check to service identities.
	RolesForApplicationsOnly bool

	// Audience is the expected aud claim. Empty skips the check.
	Audience string

	// ClientID is the public client id offered by the docs UI.
	ClientID string

	// AuthorizationURL and TokenURL describe the OAuth2 authorization code
	// flow for the docs. When empty the docs point at OIDC discovery.
	AuthorizationURL string
	TokenURL         string

	// KeySetURLs overrides key set discovery per issuer.
	KeySetURLs map[string]string

	// KeyCacheTTL controls how long fetched signing keys are reused. Default: 1h.
	KeyCacheTTL time.Duration

	// ClockSkew is the leeway applied to exp and nbf. Default: 1m.
	ClockSkew time.Duration
}

// WithDefaults returns a copy with zero durations replaced by defaults.
func (b BearerToken) WithDefaults() BearerToken {
	if b.KeyCacheTTL == 0 {
		b.KeyCacheTTL = time.Hour
	}
	if b.ClockSkew == 0 {
		b.ClockSkew = time.Minute
	}
	return b
}

// IssuerAllowed reports whether iss is in the allow-list. Trailing slashes
// are ignored on both sides, so "https://idp.example" and
// "https://idp.example/" name the same issuer.
func (b BearerToken) IssuerAllowed(iss string) bool {
	for _, allowed := range b.AllowedIssuers {
		if strings.TrimRight(allowed, "/") == strings.TrimRight(iss, "/") {
			return true
		}
	}
	return false
}

// Docs holds the application metadata rendered into the API documentation.
type Docs struct {
	Title       string
	Version     string
	Description string
}
