package auth

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/rhuss/lens/pkg/api"
)

// Sentinel errors.
var (
	ErrUnauthenticated   = errors.New("authentication required")
	ErrCredentialMissing = errors.New("credential missing")
	ErrCredentialInvalid = errors.New("credential invalid")
	ErrForbidden         = errors.New("access denied")
)

// ConfigurationError reports strategy settings that cannot serve requests.
// At startup it is fatal. At request time it maps to 500.
type ConfigurationError struct {
	Strategy string
	Field    string
	Reason   string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("auth strategy %q: %s", e.Strategy, e.Reason)
	}
	return fmt.Sprintf("auth strategy %q: %s: %s", e.Strategy, e.Field, e.Reason)
}

// CredentialMissingError reports a request without the expected credential.
type CredentialMissingError struct {
	// Credential is the human name, e.g. "API key".
	Credential string

	// Param names where the credential was expected, e.g. the header.
	Param string
}

func (e *CredentialMissingError) Error() string {
	return e.Credential + " is missing"
}

func (e *CredentialMissingError) Is(target error) bool { return target == ErrCredentialMissing }

// CredentialInvalidError reports a credential that did not verify.
type CredentialInvalidError struct {
	Credential string
	Param      string

	// Detail is shown to the client only when non-empty.
	Detail string

	// Cause is logged but never written to the response.
	Cause error
}

func (e *CredentialInvalidError) Error() string {
	if e.Detail != "" {
		return "invalid " + e.Credential + ": " + e.Detail
	}
	return "invalid " + e.Credential
}

func (e *CredentialInvalidError) Is(target error) bool { return target == ErrCredentialInvalid }

func (e *CredentialInvalidError) Unwrap() error { return e.Cause }

// RequirementError reports an identity that failed an authorization requirement.
type RequirementError struct {
	Requirement string
	Reason      string
}

func (e *RequirementError) Error() string {
	return fmt.Sprintf("access denied: %s: %s", e.Requirement, e.Reason)
}

func (e *RequirementError) Is(target error) bool { return target == ErrForbidden }

// UnknownStrategyError reports a discriminator outside the known set.
type UnknownStrategyError struct {
	Name string
}

func (e *UnknownStrategyError) Error() string {
	if e.Name == "" {
		return "no authentication strategy configured"
	}
	return fmt.Sprintf("unknown authentication strategy %q", e.Name)
}

// StatusCode maps an auth error to its HTTP status.
func StatusCode(err error) int {
	var cfgErr *ConfigurationError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &cfgErr):
		return http.StatusInternalServerError
	case errors.Is(err, ErrCredentialMissing):
		return http.StatusBadRequest
	case errors.Is(err, ErrCredentialInvalid), errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// APIError converts an auth error into the wire error body. Configuration
// details are never exposed.
func APIError(err error) *api.APIError {
	var (
		cfgErr     *ConfigurationError
		missingErr *CredentialMissingError
		invalidErr *CredentialInvalidError
		reqErr     *RequirementError
	)
	switch {
	case errors.As(err, &cfgErr):
		return api.NewConfigurationError(displayName(cfgErr.Strategy) + " authentication is used, but not configured correctly")
	case errors.As(err, &missingErr):
		return api.NewMissingCredentialError(missingErr.Param, missingErr.Error())
	case errors.As(err, &invalidErr):
		return api.NewInvalidCredentialError(invalidErr.Param, invalidErr.Error())
	case errors.Is(err, ErrUnauthenticated):
		return api.NewUnauthenticatedError(ErrUnauthenticated.Error())
	case errors.As(err, &reqErr):
		return api.NewForbiddenError(reqErr.Error())
	case errors.Is(err, ErrForbidden):
		return api.NewForbiddenError(ErrForbidden.Error())
	default:
		return api.NewServerError("internal authentication error")
	}
}

// WriteError writes err as a JSON error response with the mapped status.
func WriteError(w http.ResponseWriter, err error) {
	api.WriteError(w, APIError(err), StatusCode(err))
}

func displayName(strategy string) string {
	switch strategy {
	case "apikey":
		return "API key"
	case "azuread":
		return "Bearer token"
	default:
		return strategy
	}
}
