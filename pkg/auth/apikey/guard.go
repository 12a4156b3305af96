package apikey

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/rhuss/lens/pkg/auth"
	"github.com/rhuss/lens/pkg/debug"
	"github.com/rhuss/lens/pkg/observability"
	"github.com/rhuss/lens/pkg/settings"
)

// State is the outcome of one guard evaluation.
type State int

const (
	// Disabled means another strategy is active. The request passes untouched.
	Disabled State = iota

	// Misconfigured means the secret or header name is empty (500).
	Misconfigured

	// Missing means the header is absent (400).
	Missing

	// Invalid means the header value does not match (401).
	Invalid

	// Accepted means the header value matches.
	Accepted
)

func (s State) String() string {
	switch s {
	case Disabled:
		return "disabled"
	case Misconfigured:
		return "misconfigured"
	case Missing:
		return "missing"
	case Invalid:
		return "invalid"
	case Accepted:
		return "accepted"
	default:
		return "unknown"
	}
}

// ClientSubject is the identity subject stored for accepted requests.
const ClientSubject = "apikey-client"

// Guard verifies the shared-secret header on each request. It re-reads the
// settings from its source every time.
type Guard struct {
	source Source
	logger *slog.Logger

	// disabledWarned is set once a Disabled evaluation has been logged and
	// cleared by any other state, so each switch away from apikey warns once.
	disabledWarned atomic.Bool
}

// NewGuard creates a guard reading settings from src.
func NewGuard(src Source) *Guard {
	return &Guard{source: src}
}

// Evaluate runs the guard state machine. The first failing check is
// terminal. The returned error is nil for Disabled and Accepted.
func (g *Guard) Evaluate(ctx context.Context, h http.Header) (State, error) {
	current, err := g.source.Current(ctx)
	if err != nil {
		return Misconfigured, &auth.ConfigurationError{
			Strategy: settings.APIKeyType,
			Reason:   "settings unavailable: " + err.Error(),
		}
	}

	if !current.Is(settings.APIKeyType) {
		return Disabled, nil
	}

	var cfg settings.APIKey
	if current.APIKey != nil {
		cfg = *current.APIKey
	}
	if cfg.SharedSecret == "" || cfg.HeaderName == "" {
		return Misconfigured, &auth.ConfigurationError{
			Strategy: settings.APIKeyType,
			Field:    "shared_secret/header_name",
			Reason:   "must not be empty",
		}
	}

	values := h.Values(cfg.HeaderName)
	if len(values) == 0 {
		return Missing, &auth.CredentialMissingError{Credential: "API key", Param: cfg.HeaderName}
	}

	if !secretsEqual(values[0], cfg.SharedSecret) {
		return Invalid, &auth.CredentialInvalidError{Credential: "API key", Param: cfg.HeaderName}
	}

	return Accepted, nil
}

// Middleware wraps next with the guard. Only Accepted and Disabled requests
// reach next. Accepted requests carry an identity in their context.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		state, err := g.Evaluate(r.Context(), r.Header)
		observability.AuthDecisionsTotal.WithLabelValues(settings.APIKeyType, state.String()).Inc()

		if state == Disabled {
			if g.disabledWarned.CompareAndSwap(false, true) {
				g.log().Warn("api key guard disabled: live settings select another strategy, protected endpoints answer 401 until restart",
					"path", r.URL.Path,
				)
			}
			debug.Log("auth", "apikey guard disabled for request", "path", r.URL.Path)
			next.ServeHTTP(w, r)
			return
		}
		g.disabledWarned.Store(false)

		switch state {
		case Accepted:
			ctx := auth.SetIdentity(r.Context(), &auth.Identity{
				Subject:  ClientSubject,
				Strategy: settings.APIKeyType,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		case Misconfigured:
			g.log().Error("api key authentication misconfigured", "path", r.URL.Path, "error", err)
			auth.WriteError(w, err)
		default:
			g.log().Warn("api key rejected",
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
				"state", state.String(),
			)
			auth.WriteError(w, err)
		}
	})
}

func (g *Guard) log() *slog.Logger {
	if g.logger != nil {
		return g.logger
	}
	return slog.Default()
}

// secretsEqual compares the SHA-256 digests of both values in constant time.
func secretsEqual(got, want string) bool {
	gotHash := sha256.Sum256([]byte(got))
	wantHash := sha256.Sum256([]byte(want))
	return subtle.ConstantTimeCompare(gotHash[:], wantHash[:]) == 1
}
