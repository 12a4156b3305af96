// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring the lens gateway.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// FetchBuckets defines histogram buckets suited for outbound discovery and
// key set fetches, ranging from 10ms to 10s.
var FetchBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

var (
	// RequestsTotal counts all HTTP requests by method and status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lens_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "status"},
	)

	// RequestDuration records HTTP request duration in seconds by method.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lens_request_duration_seconds",
			Help:    "Request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// InFlightRequests tracks the number of requests being served.
	InFlightRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lens_requests_in_flight",
			Help: "In-flight requests",
		},
	)

	// AuthDecisionsTotal counts authentication and authorization outcomes
	// by strategy. Outcomes: accepted, abstain, missing, invalid, forbidden,
	// misconfigured, disabled.
	AuthDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lens_auth_decisions_total",
			Help: "Authentication decisions",
		},
		[]string{"strategy", "outcome"},
	)

	// ActiveStrategy is 1 for the strategy selected at startup.
	ActiveStrategy = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lens_auth_strategy_active",
			Help: "Selected authentication strategy",
		},
		[]string{"strategy"},
	)

	// KeySetFetchesTotal counts signing key set fetches by issuer and result.
	KeySetFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lens_keyset_fetches_total",
			Help: "Signing key set fetches",
		},
		[]string{"issuer", "status"},
	)

	// KeySetFetchDuration records key set fetch latency in seconds.
	KeySetFetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lens_keyset_fetch_duration_seconds",
			Help:    "Signing key set fetch latency",
			Buckets: FetchBuckets,
		},
		[]string{"issuer"},
	)

	// SettingsRefreshTotal counts live settings reloads by source and result.
	SettingsRefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lens_settings_refresh_total",
			Help: "Live settings refreshes",
		},
		[]string{"source", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		InFlightRequests,
		AuthDecisionsTotal,
		ActiveStrategy,
		KeySetFetchesTotal,
		KeySetFetchDuration,
		SettingsRefreshTotal,
	)
}

// Handler returns the Prometheus scrape handler for the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
