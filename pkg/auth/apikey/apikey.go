// Package apikey provides the shared-secret header strategy. A fixed header
// must carry a secret equal to the configured one. The secret is compared
// as SHA-256 digests in constant time.
package apikey

import (
	"context"
	"errors"

	"github.com/bondowe/webfram/openapi"

	"github.com/rhuss/lens/pkg/auth"
	"github.com/rhuss/lens/pkg/settings"
)

// SchemeName is the security scheme name used in the API documentation.
const SchemeName = "ApiKey"

// Source supplies the authentication settings snapshot consulted on every
// request. A failing source is treated as a misconfiguration.
type Source interface {
	Current(ctx context.Context) (settings.Auth, error)
}

// StaticSource serves a fixed snapshot.
type StaticSource settings.Auth

// Current implements Source.
func (s StaticSource) Current(context.Context) (settings.Auth, error) {
	return settings.Auth(s), nil
}

// Strategy is the shared-secret header strategy.
type Strategy struct {
	settings settings.APIKey
	guard    *Guard
}

var _ auth.Strategy = (*Strategy)(nil)

// Option configures a Strategy.
type Option func(*Strategy)

// WithSource replaces the startup snapshot with a live settings source.
func WithSource(src Source) Option {
	return func(s *Strategy) { s.guard = NewGuard(src) }
}

// New validates the settings and builds the strategy. The default header
// name is applied when empty. An empty secret is a configuration error.
func New(cfg settings.APIKey, opts ...Option) (*Strategy, error) {
	cfg = cfg.WithDefaults()
	if cfg.SharedSecret == "" {
		return nil, &auth.ConfigurationError{
			Strategy: settings.APIKeyType,
			Field:    "shared_secret",
			Reason:   "must not be empty",
		}
	}

	s := &Strategy{settings: cfg}
	s.guard = NewGuard(StaticSource(settings.Auth{
		AuthenticationType: settings.APIKeyType,
		APIKey:             &cfg,
	}))
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Strategy) Name() string { return settings.APIKeyType }

// Guard returns the request-time guard.
func (s *Strategy) Guard() *Guard { return s.guard }

// Configure adds the guard as the "apikey" middleware stage and registers
// any requirements the host adds through the authorization hook.
func (s *Strategy) Configure(b auth.PipelineBuilder, authz func(*auth.AuthorizationOptions), _ func(*auth.TokenValidationOptions)) error {
	if b == nil {
		return errors.New("apikey: nil pipeline builder")
	}

	b.AddMiddleware(auth.Stage{Name: settings.APIKeyType, Wrap: s.guard.Middleware})

	var opts auth.AuthorizationOptions
	if authz != nil {
		authz(&opts)
	}
	for _, req := range opts.Requirements {
		b.RegisterAuthorizationRequirement(req)
	}
	return nil
}

// ApplyRequestFilters adds the default authorize filter.
func (s *Strategy) ApplyRequestFilters(r auth.FilterRegistry) {
	r.AddRequestFilter(auth.AuthorizeFilter{})
}

// DescribeForAPIDocs emits an apiKey header scheme.
func (s *Strategy) DescribeForAPIDocs(d auth.DocBuilder, docs settings.Docs) {
	d.AddSecurityScheme(SchemeName, openapi.SecurityScheme{
		Type:        "apiKey",
		Description: "Shared secret for " + docs.Title + " sent in the " + s.settings.HeaderName + " header",
		Name:        s.settings.HeaderName,
		In:          "header",
	})
	d.AddSecurityRequirement(SchemeName, nil)
}
