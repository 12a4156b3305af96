// Package api defines the wire types shared by every lens HTTP surface.
//
// Errors are returned to clients wrapped in a single envelope:
//
//	{"error": {"type": "invalid_credential", "param": "X-Api-Key", "message": "invalid API key"}}
//
// The package has no external dependencies and performs no I/O beyond
// encoding an [ErrorResponse] onto an http.ResponseWriter.
package api
