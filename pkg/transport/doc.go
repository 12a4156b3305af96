// Package transport provides the request pipeline and the cross-cutting
// HTTP middleware of the lens server.
//
// # Pipeline
//
// Pipeline is the surface the active authentication strategy registers
// into. It collects three kinds of registrations, each deduplicated by name:
//
//   - Stages are authentication middleware applied to every request except
//     bypassed infrastructure paths such as /health and /metrics.
//   - Filters run per endpoint after routing. The default authorize filter
//     rejects requests without an identity unless the endpoint allows
//     anonymous access.
//   - Requirements are authorization rules evaluated against the request
//     identity. A failing requirement responds 403.
//
// # Middleware
//
// Built-in middleware provides panic recovery, request ID assignment
// (X-Request-ID), and structured access logging via log/slog. Chain
// composes them with the pipeline stages.
package transport
