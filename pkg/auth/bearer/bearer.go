// Package bearer provides the issuer-validated bearer token strategy.
//
// Tokens must be JWTs issued by one of the allowed issuers. The issuer is
// checked before any key lookup. Signatures are verified against the
// issuer's published key set, which is discovered through OpenID Connect
// metadata and cached per issuer. Scope and app-role checks are registered
// as authorization requirements and evaluated by the host pipeline.
package bearer

import (
	"errors"
	"net/http"
	"strings"

	"github.com/bondowe/webfram/openapi"

	"github.com/rhuss/lens/pkg/auth"
	"github.com/rhuss/lens/pkg/settings"
)

// Security scheme names used in the API documentation.
const (
	OAuth2SchemeName = "oauth2"
	HTTPSchemeName   = "Bearer"
)

// Strategy is the bearer token strategy.
type Strategy struct {
	settings   settings.BearerToken
	keys       KeyResolver
	customKeys bool
}

var _ auth.Strategy = (*Strategy)(nil)

// Option configures a Strategy.
type Option func(*Strategy)

// WithKeyResolver replaces the discovery-backed key set.
func WithKeyResolver(r KeyResolver) Option {
	return func(s *Strategy) {
		s.keys = r
		s.customKeys = true
	}
}

// WithHTTPClient sets the client used for discovery and key set fetches.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Strategy) {
		if !s.customKeys {
			s.keys = NewKeySet(c, s.settings.KeyCacheTTL, s.settings.KeySetURLs)
		}
	}
}

// New validates the settings and builds the strategy.
func New(cfg settings.BearerToken, opts ...Option) (*Strategy, error) {
	cfg = cfg.WithDefaults()

	issuers := cfg.AllowedIssuers[:0:0]
	for _, iss := range cfg.AllowedIssuers {
		if iss = strings.TrimSpace(iss); iss != "" {
			issuers = append(issuers, iss)
		}
	}
	if len(issuers) == 0 {
		return nil, &auth.ConfigurationError{
			Strategy: settings.AzureAD,
			Field:    "allowed_issuers",
			Reason:   "must contain at least one issuer",
		}
	}
	cfg.AllowedIssuers = issuers

	if (cfg.AuthorizationURL == "") != (cfg.TokenURL == "") {
		return nil, &auth.ConfigurationError{
			Strategy: settings.AzureAD,
			Field:    "authorization_url/token_url",
			Reason:   "must be set together",
		}
	}

	s := &Strategy{settings: cfg}
	s.keys = NewKeySet(nil, cfg.KeyCacheTTL, cfg.KeySetURLs)
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Strategy) Name() string { return settings.AzureAD }

// Requirements returns the authorization requirements derived from the
// settings. Empty lists produce no requirement.
func (s *Strategy) Requirements() []auth.Requirement {
	var reqs []auth.Requirement
	if len(s.settings.RequiredScopes) > 0 {
		reqs = append(reqs, ScopeRequirement{Scopes: s.settings.RequiredScopes})
	}
	if len(s.settings.RequiredAppRoles) > 0 {
		reqs = append(reqs, AppRoleRequirement{
			Roles:            s.settings.RequiredAppRoles,
			ApplicationsOnly: s.settings.RolesForApplicationsOnly,
		})
	}
	return reqs
}

// Configure registers the token validation stage and the scope and app-role
// requirements. The token hook may adjust audience, clock skew, HTTP client
// and error detail before the stage is built.
func (s *Strategy) Configure(b auth.PipelineBuilder, authz func(*auth.AuthorizationOptions), tokens func(*auth.TokenValidationOptions)) error {
	if b == nil {
		return errors.New("bearer: nil pipeline builder")
	}

	tokenOpts := auth.TokenValidationOptions{
		Audience:  s.settings.Audience,
		ClockSkew: s.settings.ClockSkew,
	}
	if tokens != nil {
		tokens(&tokenOpts)
	}

	keys := s.keys
	if tokenOpts.HTTPClient != nil && !s.customKeys {
		keys = NewKeySet(tokenOpts.HTTPClient, s.settings.KeyCacheTTL, s.settings.KeySetURLs)
	}

	authn := &Authenticator{settings: s.settings, keys: keys, opts: tokenOpts}
	b.AddMiddleware(auth.Stage{Name: settings.AzureAD, Wrap: auth.Middleware(settings.AzureAD, authn)})

	var authzOpts auth.AuthorizationOptions
	for _, req := range s.Requirements() {
		authzOpts.AddRequirement(req)
	}
	if authz != nil {
		authz(&authzOpts)
	}
	for _, req := range authzOpts.Requirements {
		b.RegisterAuthorizationRequirement(req)
	}
	return nil
}

// ApplyRequestFilters adds the default authorize filter.
func (s *Strategy) ApplyRequestFilters(r auth.FilterRegistry) {
	r.AddRequestFilter(auth.AuthorizeFilter{})
}

// DescribeForAPIDocs emits an OAuth2 scheme when authorization and token
// endpoints are configured, otherwise an OpenID Connect discovery scheme.
// A plain HTTP bearer scheme is always added for pasted tokens.
func (s *Strategy) DescribeForAPIDocs(d auth.DocBuilder, docs settings.Docs) {
	include := s.settings.IncludeConfigInAuthHeader

	scopes := map[string]string{}
	var requested []string
	if include {
		for _, sc := range s.settings.RequiredScopes {
			scopes[sc] = "Access " + docs.Title
			requested = append(requested, sc)
		}
	}

	scheme := openapi.SecurityScheme{
		Description: "Sign in with the identity provider of " + docs.Title,
	}
	if s.settings.AuthorizationURL != "" {
		scheme.Type = "oauth2"
		scheme.Flows = openapi.OAuthFlows{
			AuthorizationCode: &openapi.OAuthFlow{
				AuthorizationURL: s.settings.AuthorizationURL,
				TokenURL:         s.settings.TokenURL,
				Scopes:           scopes,
			},
		}
	} else {
		scheme.Type = "openIdConnect"
		scheme.OpenIdConnectURL = strings.TrimRight(s.settings.AllowedIssuers[0], "/") + "/.well-known/openid-configuration"
	}
	d.AddSecurityScheme(OAuth2SchemeName, scheme)
	d.AddSecurityRequirement(OAuth2SchemeName, requested)

	d.AddSecurityScheme(HTTPSchemeName, openapi.SecurityScheme{
		Type:         "http",
		Description:  "JWT access token issued by an allowed issuer",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	})
	d.AddSecurityRequirement(HTTPSchemeName, nil)

	if include {
		d.SetUIAuth(auth.UIAuth{
			ClientID: s.settings.ClientID,
			Scopes:   requested,
			UsePKCE:  true,
		})
	}
}
