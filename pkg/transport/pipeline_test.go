package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/rhuss/lens/pkg/auth"
	"github.com/rhuss/lens/pkg/auth/anonymous"
	"github.com/rhuss/lens/pkg/auth/apikey"
	"github.com/rhuss/lens/pkg/settings"
)

// newTestServer configures strategy into a fresh pipeline and serves a mux
// with a protected /v1/ping, an anonymous /v1/public and a bypassed /health.
func newTestServer(t *testing.T, strategy auth.Strategy, authz func(*auth.AuthorizationOptions)) (*Pipeline, http.Handler) {
	t.Helper()

	p := NewPipeline()
	if err := strategy.Configure(p, authz, nil); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	strategy.ApplyRequestFilters(p)

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	mux := http.NewServeMux()
	mux.Handle("GET /v1/ping", p.Endpoint(ok))
	mux.Handle("GET /v1/public", p.Endpoint(ok, AllowAnonymous()))
	mux.Handle("GET /health", ok)

	return p, p.Middleware()(mux)
}

func serve(h http.Handler, path string, header map[string]string) int {
	r := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		r.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec.Code
}

func TestPipeline_APIKeyScenario(t *testing.T) {
	s, err := apikey.New(settings.APIKey{HeaderName: "X-Api-Key", SharedSecret: "s3cr3t"})
	if err != nil {
		t.Fatalf("apikey.New: %v", err)
	}
	_, h := newTestServer(t, s, nil)

	tests := []struct {
		name   string
		path   string
		header map[string]string
		want   int
	}{
		{"correct secret", "/v1/ping", map[string]string{"X-Api-Key": "s3cr3t"}, http.StatusOK},
		{"wrong secret", "/v1/ping", map[string]string{"X-Api-Key": "wrong"}, http.StatusUnauthorized},
		{"no header", "/v1/ping", nil, http.StatusBadRequest},
		{"bypassed health", "/health", nil, http.StatusOK},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := serve(h, tc.path, tc.header); got != tc.want {
				t.Errorf("status = %d, want %d", got, tc.want)
			}
		})
	}
}

type swappableSource struct {
	cfg atomic.Pointer[settings.Auth]
}

func (s *swappableSource) Current(context.Context) (settings.Auth, error) {
	return *s.cfg.Load(), nil
}

func TestPipeline_APIKeyMisconfiguredAtRequestTime(t *testing.T) {
	src := &swappableSource{}
	src.cfg.Store(&settings.Auth{AuthenticationType: "apikey", APIKey: &settings.APIKey{HeaderName: "X-Api-Key", SharedSecret: "s3cr3t"}})

	s, err := apikey.New(settings.APIKey{SharedSecret: "s3cr3t"}, apikey.WithSource(src))
	if err != nil {
		t.Fatalf("apikey.New: %v", err)
	}
	_, h := newTestServer(t, s, nil)

	if got := serve(h, "/v1/ping", map[string]string{"X-Api-Key": "s3cr3t"}); got != http.StatusOK {
		t.Fatalf("before: status = %d, want 200", got)
	}

	src.cfg.Store(&settings.Auth{AuthenticationType: "apikey", APIKey: &settings.APIKey{}})

	for _, header := range []map[string]string{nil, {"X-Api-Key": "s3cr3t"}, {"X-Api-Key": ""}} {
		if got := serve(h, "/v1/ping", header); got != http.StatusInternalServerError {
			t.Errorf("header %v: status = %d, want 500", header, got)
		}
	}
}

func TestPipeline_Anonymous(t *testing.T) {
	p, h := newTestServer(t, anonymous.New(), nil)

	want := Registration{Stages: []string{}, Filters: []string{}, Requirements: []string{}}
	if diff := cmp.Diff(want, p.Registration()); diff != "" {
		t.Errorf("Registration mismatch (-want +got):\n%s", diff)
	}

	for _, path := range []string{"/v1/ping", "/v1/public", "/health"} {
		if got := serve(h, path, nil); got != http.StatusOK {
			t.Errorf("%s: status = %d, want 200", path, got)
		}
	}
}

func TestPipeline_ConfigureTwiceDoesNotDoubleRegister(t *testing.T) {
	s, err := apikey.New(settings.APIKey{SharedSecret: "s3cr3t"})
	if err != nil {
		t.Fatalf("apikey.New: %v", err)
	}

	p := NewPipeline()
	for i := 0; i < 2; i++ {
		if err := s.Configure(p, nil, nil); err != nil {
			t.Fatalf("Configure: %v", err)
		}
		s.ApplyRequestFilters(p)
	}

	want := Registration{
		Stages:       []string{settings.APIKeyType},
		Filters:      []string{auth.AuthorizeFilterName},
		Requirements: []string{},
	}
	if diff := cmp.Diff(want, p.Registration()); diff != "" {
		t.Errorf("Registration mismatch (-want +got):\n%s", diff)
	}
}

// stubStrategy authenticates with a fixed result.
type stubStrategy struct {
	result auth.Result
}

func (s stubStrategy) Name() string { return "stub" }

func (s stubStrategy) Authenticate(context.Context, *http.Request) auth.Result { return s.result }

func (s stubStrategy) Configure(b auth.PipelineBuilder, authz func(*auth.AuthorizationOptions), _ func(*auth.TokenValidationOptions)) error {
	b.AddMiddleware(auth.Stage{Name: "stub", Wrap: auth.Middleware("stub", s)})
	var opts auth.AuthorizationOptions
	if authz != nil {
		authz(&opts)
	}
	for _, req := range opts.Requirements {
		b.RegisterAuthorizationRequirement(req)
	}
	return nil
}

func (s stubStrategy) ApplyRequestFilters(r auth.FilterRegistry) {
	r.AddRequestFilter(auth.AuthorizeFilter{})
}

func (s stubStrategy) DescribeForAPIDocs(auth.DocBuilder, settings.Docs) {}

type roleRequirement string

func (r roleRequirement) Name() string { return "role:" + string(r) }

func (r roleRequirement) Evaluate(id *auth.Identity) error {
	if id.HasAnyRole(string(r)) {
		return nil
	}
	return &auth.RequirementError{Requirement: r.Name(), Reason: "missing role"}
}

func TestPipeline_AllowAnonymous(t *testing.T) {
	_, h := newTestServer(t, stubStrategy{result: auth.Result{Decision: auth.Abstain}}, nil)

	if got := serve(h, "/v1/ping", nil); got != http.StatusUnauthorized {
		t.Errorf("protected: status = %d, want 401", got)
	}
	if got := serve(h, "/v1/public", nil); got != http.StatusOK {
		t.Errorf("anonymous: status = %d, want 200", got)
	}
}

func TestPipeline_Requirements(t *testing.T) {
	tests := []struct {
		name  string
		roles []string
		want  int
	}{
		{"role present", []string{"Writer"}, http.StatusOK},
		{"role missing", []string{"Reader"}, http.StatusForbidden},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			strategy := stubStrategy{result: auth.Result{
				Decision: auth.Yes,
				Identity: &auth.Identity{Subject: "app", Roles: tc.roles},
			}}
			authz := func(o *auth.AuthorizationOptions) { o.AddRequirement(roleRequirement("Writer")) }
			p, h := newTestServer(t, strategy, authz)

			if got := serve(h, "/v1/ping", nil); got != tc.want {
				t.Errorf("status = %d, want %d", got, tc.want)
			}
			if diff := cmp.Diff([]string{"role:Writer"}, p.Registration().Requirements); diff != "" {
				t.Errorf("Requirements mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPipeline_BypassSubtree(t *testing.T) {
	p := NewPipeline(WithBypass("/docs/"))
	p.AddMiddleware(auth.Stage{Name: "deny", Wrap: func(http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		})
	}})

	h := p.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	if got := serve(h, "/docs/index.html", nil); got != http.StatusOK {
		t.Errorf("bypassed: status = %d, want 200", got)
	}
	if got := serve(h, "/v1/ping", nil); got != http.StatusTeapot {
		t.Errorf("protected: status = %d, want 418", got)
	}
}
