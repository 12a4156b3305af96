// Package factory selects the active authentication strategy from settings.
//
// The set of strategies is a closed mapping from discriminator to
// constructor. A Factory builds exactly one strategy and returns the same
// instance on later calls. It is an explicit value created by the host at
// startup; there is no package-level selection.
package factory

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/rhuss/lens/pkg/auth"
	"github.com/rhuss/lens/pkg/auth/anonymous"
	"github.com/rhuss/lens/pkg/auth/apikey"
	"github.com/rhuss/lens/pkg/auth/bearer"
	"github.com/rhuss/lens/pkg/observability"
	"github.com/rhuss/lens/pkg/settings"
)

// Constructor builds a strategy from a settings snapshot.
type Constructor func(f *Factory, cfg settings.Auth) (auth.Strategy, error)

var constructors = map[string]Constructor{
	settings.Anonymous:  newAnonymous,
	settings.APIKeyType: newAPIKey,
	settings.AzureAD:    newBearer,
}

// Names returns the known strategy discriminators, sorted.
func Names() []string {
	names := make([]string, 0, len(constructors))
	for name := range constructors {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Factory constructs and caches the active strategy.
type Factory struct {
	logger       *slog.Logger
	apiKeySource apikey.Source
	httpClient   *http.Client

	mu       sync.Mutex
	selected atomic.Pointer[auth.Strategy]
	warnings []error
}

// Option configures a Factory.
type Option func(*Factory)

// WithAPIKeySource makes the API key strategy consult src on every request
// instead of the startup snapshot.
func WithAPIKeySource(src apikey.Source) Option {
	return func(f *Factory) { f.apiKeySource = src }
}

// WithHTTPClient sets the client the bearer strategy uses for discovery
// and key set fetches.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Factory) { f.httpClient = c }
}

// New creates a Factory. A nil logger uses slog.Default.
func New(logger *slog.Logger, opts ...Option) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	f := &Factory{logger: logger}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Select returns the active strategy, constructing it on the first call.
// Later calls return the cached instance regardless of cfg.
//
// An unknown or empty discriminator selects the anonymous strategy and
// records a warning. With cfg.Strict set it returns *auth.UnknownStrategyError
// instead. Construction errors are returned and nothing is cached.
func (f *Factory) Select(ctx context.Context, cfg settings.Auth) (auth.Strategy, error) {
	if s := f.selected.Load(); s != nil {
		return *s, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if s := f.selected.Load(); s != nil {
		return *s, nil
	}

	name := cfg.Discriminator()
	construct, ok := constructors[name]
	if !ok {
		unknown := &auth.UnknownStrategyError{Name: cfg.AuthenticationType}
		if cfg.Strict {
			return nil, unknown
		}
		f.logger.WarnContext(ctx, "unknown authentication strategy, falling back to anonymous",
			"authentication_type", cfg.AuthenticationType,
			"known", Names(),
		)
		f.warnings = append(f.warnings, unknown)
		construct = newAnonymous
	}

	strategy, err := construct(f, cfg)
	if err != nil {
		return nil, err
	}

	f.selected.Store(&strategy)
	observability.ActiveStrategy.WithLabelValues(strategy.Name()).Set(1)
	f.logger.InfoContext(ctx, "authentication strategy selected", "strategy", strategy.Name())
	return strategy, nil
}

// Warnings returns the warnings recorded during selection.
func (f *Factory) Warnings() []error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.warnings)
}

func newAnonymous(_ *Factory, _ settings.Auth) (auth.Strategy, error) {
	return anonymous.New(), nil
}

func newAPIKey(f *Factory, cfg settings.Auth) (auth.Strategy, error) {
	if cfg.APIKey == nil {
		return nil, &auth.ConfigurationError{
			Strategy: settings.APIKeyType,
			Field:    "apikey",
			Reason:   "settings section is missing",
		}
	}
	var opts []apikey.Option
	if f.apiKeySource != nil {
		opts = append(opts, apikey.WithSource(f.apiKeySource))
	}
	return apikey.New(*cfg.APIKey, opts...)
}

func newBearer(f *Factory, cfg settings.Auth) (auth.Strategy, error) {
	if cfg.AzureAD == nil {
		return nil, &auth.ConfigurationError{
			Strategy: settings.AzureAD,
			Field:    "azuread",
			Reason:   "settings section is missing",
		}
	}
	var opts []bearer.Option
	if f.httpClient != nil {
		opts = append(opts, bearer.WithHTTPClient(f.httpClient))
	}
	return bearer.New(*cfg.AzureAD, opts...)
}
