package auth

import (
	"log/slog"
	"net/http"
)

// AuthorizeFilterName is the registry name of the default authorize filter.
const AuthorizeFilterName = "authorize"

// AuthorizeFilter rejects requests that reach a protected endpoint without
// an identity. Endpoints marked with AllowAnonymous pass.
type AuthorizeFilter struct{}

// Name implements Filter.
func (AuthorizeFilter) Name() string { return AuthorizeFilterName }

// Allow implements Filter.
func (AuthorizeFilter) Allow(w http.ResponseWriter, r *http.Request) bool {
	if AnonymousAllowed(r.Context()) || IdentityFromContext(r.Context()) != nil {
		return true
	}
	slog.Debug("request rejected by authorize filter", "path", r.URL.Path)
	WriteError(w, ErrUnauthenticated)
	return false
}
