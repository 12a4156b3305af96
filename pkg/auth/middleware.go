package auth

import (
	"log/slog"
	"net/http"

	"github.com/rhuss/lens/pkg/observability"
)

// Middleware creates HTTP middleware from an Authenticator. A Yes decision
// stores the identity in the request context, No rejects the request with
// the mapped status, and Abstain continues without identity.
func Middleware(strategy string, authn Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			result := authn.Authenticate(r.Context(), r)

			switch result.Decision {
			case Abstain:
				observability.AuthDecisionsTotal.WithLabelValues(strategy, "abstain").Inc()
				next.ServeHTTP(w, r)
				return

			case No:
				slog.Warn("authentication failed",
					"strategy", strategy,
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
					"error", result.Err,
				)
				observability.AuthDecisionsTotal.WithLabelValues(strategy, Outcome(result.Err)).Inc()
				if result.Challenge != "" {
					w.Header().Set("WWW-Authenticate", result.Challenge)
				}
				WriteError(w, result.Err)
				return
			}

			if result.Identity == nil || result.Identity.Subject == "" {
				slog.Error("authenticator returned identity with empty subject", "strategy", strategy)
				WriteError(w, &ConfigurationError{Strategy: strategy, Reason: "empty subject"})
				return
			}

			slog.Debug("authentication succeeded",
				"strategy", strategy,
				"subject", result.Identity.Subject,
				"path", r.URL.Path,
			)
			observability.AuthDecisionsTotal.WithLabelValues(strategy, "accepted").Inc()

			next.ServeHTTP(w, r.WithContext(SetIdentity(r.Context(), result.Identity)))
		})
	}
}

// Outcome returns the metrics label for an auth error.
func Outcome(err error) string {
	switch StatusCode(err) {
	case http.StatusOK:
		return "accepted"
	case http.StatusBadRequest:
		return "missing"
	case http.StatusUnauthorized:
		return "invalid"
	case http.StatusForbidden:
		return "forbidden"
	default:
		return "misconfigured"
	}
}

// DefaultBypassEndpoints lists endpoints that skip authentication.
var DefaultBypassEndpoints = []string{"/health", "/healthz", "/readyz", "/metrics"}
