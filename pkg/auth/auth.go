package auth

import (
	"context"
	"net/http"
	"slices"
	"time"

	"github.com/bondowe/webfram/openapi"

	"github.com/rhuss/lens/pkg/settings"
)

// Strategy is one way of authenticating callers. Exactly one strategy is
// active per process. Implementations are immutable after construction and
// safe for concurrent use.
type Strategy interface {
	// Name returns the stable discriminator, e.g. "apikey".
	Name() string

	// Configure registers the request-time verification into the pipeline.
	// The hooks may be nil. Calling Configure twice with the same builder
	// does not double-register because builders deduplicate by name.
	Configure(b PipelineBuilder, authz func(*AuthorizationOptions), tokens func(*TokenValidationOptions)) error

	// ApplyRequestFilters adds the per-request filters the strategy needs.
	ApplyRequestFilters(r FilterRegistry)

	// DescribeForAPIDocs emits the strategy's security scheme.
	DescribeForAPIDocs(d DocBuilder, docs settings.Docs)
}

// PipelineBuilder is the host pipeline that strategies register into.
type PipelineBuilder interface {
	FilterRegistry

	// AddMiddleware appends a stage. A second stage with the same name is ignored.
	AddMiddleware(stage Stage)

	// RegisterAuthorizationRequirement adds a requirement evaluated after
	// authentication. A second requirement with the same name is ignored.
	RegisterAuthorizationRequirement(req Requirement)
}

// FilterRegistry accepts per-request filters.
type FilterRegistry interface {
	// AddRequestFilter appends a filter. A second filter with the same name is ignored.
	AddRequestFilter(f Filter)
}

// DocBuilder is the API documentation builder strategies describe themselves to.
type DocBuilder interface {
	AddSecurityScheme(name string, scheme openapi.SecurityScheme)
	AddSecurityRequirement(name string, scopes []string)
	SetUIAuth(ui UIAuth)
}

// UIAuth is the interactive docs sign-in configuration.
type UIAuth struct {
	ClientID string
	Scopes   []string
	UsePKCE  bool
}

// Stage is a named middleware stage.
type Stage struct {
	Name string
	Wrap func(http.Handler) http.Handler
}

// Filter inspects a request before the handler runs. Allow returns false
// after it has written a response.
type Filter interface {
	Name() string
	Allow(w http.ResponseWriter, r *http.Request) bool
}

// Requirement is an authorization rule evaluated against the request identity.
// Evaluate returns nil when the identity satisfies it.
type Requirement interface {
	Name() string
	Evaluate(id *Identity) error
}

// AuthorizationOptions collects the requirements a strategy registers.
// The host may add its own through the Configure hook.
type AuthorizationOptions struct {
	Requirements []Requirement
}

// AddRequirement appends req unless one with the same name is present.
func (o *AuthorizationOptions) AddRequirement(req Requirement) {
	if slices.ContainsFunc(o.Requirements, func(r Requirement) bool { return r.Name() == req.Name() }) {
		return
	}
	o.Requirements = append(o.Requirements, req)
}

// TokenValidationOptions tunes bearer token validation.
type TokenValidationOptions struct {
	// Audience is the expected aud claim. Empty skips the check.
	Audience string

	// ClockSkew is the leeway for exp and nbf.
	ClockSkew time.Duration

	// HTTPClient is used for discovery and key set fetches.
	HTTPClient *http.Client

	// ShowDetails includes the validation failure reason in 401 bodies.
	ShowDetails bool
}

// Identity represents an authenticated caller.
type Identity struct {
	// Subject is the unique identifier (required, non-empty).
	Subject string

	// Issuer is the token issuer, empty for non-token strategies.
	Issuer string

	// Strategy names the strategy that produced the identity.
	Strategy string

	// Scopes lists the delegated scopes granted.
	Scopes []string

	// Roles lists the application roles granted.
	Roles []string

	// Application is true for service identities acting on their own behalf.
	Application bool

	// Metadata carries strategy-specific data. The key "tenant_id" holds
	// the directory tenant when the issuer provides one.
	Metadata map[string]string
}

// TenantID returns the tenant identifier from metadata, or empty string.
func (id *Identity) TenantID() string {
	if id == nil || id.Metadata == nil {
		return ""
	}
	return id.Metadata["tenant_id"]
}

// HasAnyScope reports whether the identity carries at least one of scopes.
func (id *Identity) HasAnyScope(scopes ...string) bool {
	return id != nil && containsAny(id.Scopes, scopes)
}

// HasAnyRole reports whether the identity carries at least one of roles.
func (id *Identity) HasAnyRole(roles ...string) bool {
	return id != nil && containsAny(id.Roles, roles)
}

func containsAny(have, want []string) bool {
	for _, w := range want {
		if slices.Contains(have, w) {
			return true
		}
	}
	return false
}

// Decision represents the three possible outcomes of authentication.
type Decision int

const (
	// Yes means credentials are valid and the identity is used.
	Yes Decision = iota

	// No means credentials are present but invalid. The request is rejected.
	No

	// Abstain means the request carries no credential this authenticator
	// handles. The request continues without identity.
	Abstain
)

// Result carries the outcome of an authentication attempt.
type Result struct {
	Decision Decision
	Identity *Identity // populated only when Decision == Yes
	Err      error     // populated only when Decision == No

	// Challenge is sent as WWW-Authenticate on rejection when non-empty.
	Challenge string
}

// Authenticator examines request credentials and returns a three-outcome vote.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) Result
}
