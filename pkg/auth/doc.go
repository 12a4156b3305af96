// Package auth defines the pluggable authentication strategy contract for lens.
//
// Exactly one [Strategy] is selected at startup. It wires itself into three
// places through narrow builder interfaces:
//
//   - the request pipeline ([PipelineBuilder]): middleware stages, request
//     filters and authorization requirements
//   - the API documentation ([DocBuilder]): security scheme metadata
//   - per-request filters ([FilterRegistry]), normally the default
//     [AuthorizeFilter]
//
// Strategies that verify tokens implement [Authenticator] and reuse
// [Middleware], which uses three-outcome voting: Yes (identity found),
// No (credential invalid) or Abstain (no credential of this kind).
//
// Failures are reported with a small error taxonomy that maps to HTTP:
// configuration 500, missing credential 400, invalid credential 401,
// failed requirement 403.
package auth
