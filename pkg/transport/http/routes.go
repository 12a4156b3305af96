package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"

	"github.com/bondowe/webfram/openapi"

	"github.com/rhuss/lens/pkg/apidocs"
	"github.com/rhuss/lens/pkg/auth"
	"github.com/rhuss/lens/pkg/observability"
	"github.com/rhuss/lens/pkg/transport"
)

// Paths served by NewHandler.
const (
	HealthPath      = "/health"
	MetricsPath     = "/metrics"
	OpenAPIJSONPath = "/openapi.json"
	OpenAPIYAMLPath = "/openapi.yaml"
	UIConfigPath    = "/openapi/ui-config"
	WhoAmIPath      = "/v1/whoami"
	DebugAuthPath   = "/debug/auth"
)

// PublicEndpoints are the paths that skip authentication stages: the
// infrastructure endpoints plus the API documentation.
var PublicEndpoints = append(slices.Clone(auth.DefaultBypassEndpoints),
	OpenAPIJSONPath,
	OpenAPIYAMLPath,
	UIConfigPath,
)

// HandlerConfig holds what NewHandler wires together. Strategy, Pipeline
// and Docs are required.
type HandlerConfig struct {
	Strategy auth.Strategy
	Pipeline *transport.Pipeline
	Docs     *apidocs.Builder
	Logger   *slog.Logger

	// Warnings are surfaced by the auth debug endpoint, typically the
	// strategy factory warnings.
	Warnings []error

	// DisableMetrics leaves the Prometheus endpoint unmounted.
	DisableMetrics bool
}

// NewHandler builds the routed handler with the full middleware chain:
// recovery, request ID, access logging, metrics, then the authentication
// stages registered in the pipeline.
func NewHandler(cfg HandlerConfig) (http.Handler, error) {
	if cfg.Strategy == nil || cfg.Pipeline == nil || cfg.Docs == nil {
		return nil, errors.New("http: handler requires a strategy, a pipeline and a docs builder")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	p := cfg.Pipeline
	mux := http.NewServeMux()

	route := func(method, path string, h http.Handler, op openapi.Operation, public bool) {
		mux.Handle(method+" "+path, h)
		cfg.Docs.AddOperation(method, path, op, public)
	}

	route(http.MethodGet, HealthPath, http.HandlerFunc(handleHealth),
		openapi.Operation{
			Summary:     "Liveness probe",
			OperationID: "health",
			Tags:        []string{"infrastructure"},
			Responses:   okResponse("Server is up"),
		}, true)

	route(http.MethodGet, OpenAPIJSONPath, cfg.Docs.JSONHandler(),
		openapi.Operation{
			Summary:     "API document (JSON)",
			OperationID: "openapiJSON",
			Tags:        []string{"docs"},
			Responses:   okResponse("OpenAPI document"),
		}, true)

	route(http.MethodGet, OpenAPIYAMLPath, cfg.Docs.YAMLHandler(),
		openapi.Operation{
			Summary:     "API document (YAML)",
			OperationID: "openapiYAML",
			Tags:        []string{"docs"},
			Responses:   okResponse("OpenAPI document"),
		}, true)

	route(http.MethodGet, UIConfigPath, cfg.Docs.UIConfigHandler(),
		openapi.Operation{
			Summary:     "Interactive sign-in settings for the docs UI",
			OperationID: "uiConfig",
			Tags:        []string{"docs"},
			Responses:   okResponse("Client ID, scopes and PKCE flag"),
		}, true)

	route(http.MethodGet, WhoAmIPath, p.Endpoint(whoAmI(cfg.Strategy.Name())),
		openapi.Operation{
			Summary:     "Describe the authenticated caller",
			OperationID: "whoami",
			Tags:        []string{"identity"},
			Responses:   okResponse("Caller identity"),
		}, false)

	route(http.MethodGet, DebugAuthPath, p.Endpoint(debugAuth(cfg.Strategy.Name(), p, cfg.Warnings)),
		openapi.Operation{
			Summary:     "Show the active strategy and its pipeline registrations",
			OperationID: "debugAuth",
			Tags:        []string{"identity"},
			Responses:   okResponse("Strategy name and registrations"),
		}, false)

	if !cfg.DisableMetrics {
		mux.Handle("GET "+MetricsPath, observability.Handler())
	}

	chain := transport.Chain(
		transport.Recovery(logger),
		transport.RequestID(),
		transport.Logging(logger),
		observability.MetricsMiddleware,
		p.Middleware(),
	)
	return chain(mux), nil
}

func okResponse(description string) map[string]openapi.ResponseOrRef {
	return map[string]openapi.ResponseOrRef{
		"200": {Response: &openapi.Response{Description: description}},
	}
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

type whoAmIResponse struct {
	Authenticated bool              `json:"authenticated"`
	Strategy      string            `json:"strategy"`
	Subject       string            `json:"subject,omitempty"`
	Issuer        string            `json:"issuer,omitempty"`
	Application   bool              `json:"application,omitempty"`
	Scopes        []string          `json:"scopes,omitempty"`
	Roles         []string          `json:"roles,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

func whoAmI(strategy string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := auth.IdentityFromContext(r.Context())
		if id == nil {
			writeJSON(w, whoAmIResponse{Strategy: strategy})
			return
		}
		writeJSON(w, whoAmIResponse{
			Authenticated: true,
			Strategy:      id.Strategy,
			Subject:       id.Subject,
			Issuer:        id.Issuer,
			Application:   id.Application,
			Scopes:        id.Scopes,
			Roles:         id.Roles,
			Metadata:      id.Metadata,
		})
	})
}

type debugAuthResponse struct {
	Strategy     string                 `json:"strategy"`
	Registration transport.Registration `json:"registration"`
	Warnings     []string               `json:"warnings"`
}

func debugAuth(strategy string, p *transport.Pipeline, warnings []error) http.Handler {
	msgs := make([]string, 0, len(warnings))
	for _, w := range warnings {
		msgs = append(msgs, w.Error())
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, debugAuthResponse{
			Strategy:     strategy,
			Registration: p.Registration(),
			Warnings:     msgs,
		})
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
