package api

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// ErrorType represents the category of an API error.
type ErrorType string

const (
	ErrorTypeServerError       ErrorType = "server_error"
	ErrorTypeInvalidRequest    ErrorType = "invalid_request"
	ErrorTypeNotFound          ErrorType = "not_found"
	ErrorTypeConfiguration     ErrorType = "configuration_error"
	ErrorTypeMissingCredential ErrorType = "missing_credential"
	ErrorTypeInvalidCredential ErrorType = "invalid_credential"
	ErrorTypeUnauthenticated   ErrorType = "unauthenticated"
	ErrorTypeForbidden         ErrorType = "forbidden"
)

// APIError represents a structured API error with type, code, param, and message.
type APIError struct {
	Type    ErrorType `json:"type"`
	Code    string    `json:"code,omitempty"`
	Param   string    `json:"param,omitempty"`
	Message string    `json:"message"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("%s: %s (param: %s)", e.Type, e.Message, e.Param)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// ErrorResponse wraps an APIError for JSON serialization as the top-level error response.
type ErrorResponse struct {
	Error *APIError `json:"error"`
}

// NewInvalidRequestError creates an APIError for invalid request parameters.
func NewInvalidRequestError(param, message string) *APIError {
	return &APIError{
		Type:    ErrorTypeInvalidRequest,
		Param:   param,
		Message: message,
	}
}

// NewNotFoundError creates an APIError for resources that cannot be found.
func NewNotFoundError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeNotFound,
		Message: message,
	}
}

// NewServerError creates an APIError for internal server errors.
func NewServerError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeServerError,
		Message: message,
	}
}

// NewConfigurationError creates an APIError for a server-side
// authentication setup that cannot serve requests.
func NewConfigurationError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeConfiguration,
		Message: message,
	}
}

// NewMissingCredentialError creates an APIError for a request that did not
// carry the credential the active strategy expects.
func NewMissingCredentialError(param, message string) *APIError {
	return &APIError{
		Type:    ErrorTypeMissingCredential,
		Param:   param,
		Message: message,
	}
}

// NewInvalidCredentialError creates an APIError for a credential that was
// present but did not verify.
func NewInvalidCredentialError(param, message string) *APIError {
	return &APIError{
		Type:    ErrorTypeInvalidCredential,
		Param:   param,
		Message: message,
	}
}

// NewUnauthenticatedError creates an APIError for requests that reached a
// protected endpoint without an identity.
func NewUnauthenticatedError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeUnauthenticated,
		Message: message,
	}
}

// NewForbiddenError creates an APIError for an authenticated caller that
// does not satisfy an authorization requirement.
func NewForbiddenError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeForbidden,
		Message: message,
	}
}

// WriteError writes a JSON error response using the ErrorResponse wrapper.
// It sets the Content-Type header and writes the HTTP status code.
func WriteError(w http.ResponseWriter, apiErr *APIError, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{Error: apiErr})
}
