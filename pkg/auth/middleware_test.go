package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

type mockAuthn struct {
	result Result
}

func (m *mockAuthn) Authenticate(_ context.Context, _ *http.Request) Result {
	return m.result
}

func serve(t *testing.T, h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

func TestMiddleware_Abstain_PassesWithoutIdentity(t *testing.T) {
	mw := Middleware("test", &mockAuthn{result: Result{Decision: Abstain}})

	var sawIdentity bool
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawIdentity = IdentityFromContext(r.Context()) != nil
		w.WriteHeader(http.StatusOK)
	}))

	rec := serve(t, handler, httptest.NewRequest("GET", "/v1/items", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if sawIdentity {
		t.Error("abstain should not inject an identity")
	}
}

func TestMiddleware_No_Rejects(t *testing.T) {
	mw := Middleware("test", &mockAuthn{result: Result{
		Decision:  No,
		Err:       &CredentialInvalidError{Credential: "bearer token"},
		Challenge: `Bearer error="invalid_token"`,
	}})

	called := false
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rec := serve(t, handler, httptest.NewRequest("GET", "/v1/items", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if called {
		t.Error("handler must not run after rejection")
	}
	if got := rec.Header().Get("WWW-Authenticate"); got != `Bearer error="invalid_token"` {
		t.Errorf("WWW-Authenticate = %q", got)
	}
}

func TestMiddleware_Yes_InjectsIdentity(t *testing.T) {
	mw := Middleware("test", &mockAuthn{result: Result{
		Decision: Yes,
		Identity: &Identity{Subject: "alice", Metadata: map[string]string{"tenant_id": "org-1"}},
	}})

	var got *Identity
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	rec := serve(t, handler, httptest.NewRequest("GET", "/v1/items", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if got == nil || got.Subject != "alice" {
		t.Fatalf("identity = %+v, want subject alice", got)
	}
	if got.TenantID() != "org-1" {
		t.Errorf("TenantID() = %q, want org-1", got.TenantID())
	}
}

func TestMiddleware_Yes_EmptySubject(t *testing.T) {
	mw := Middleware("test", &mockAuthn{result: Result{Decision: Yes, Identity: &Identity{}}})
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not run")
	}))

	rec := serve(t, handler, httptest.NewRequest("GET", "/v1/items", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestAuthorizeFilter(t *testing.T) {
	f := AuthorizeFilter{}
	if f.Name() != AuthorizeFilterName {
		t.Errorf("Name() = %q, want %q", f.Name(), AuthorizeFilterName)
	}

	t.Run("no identity", func(t *testing.T) {
		rec := httptest.NewRecorder()
		if f.Allow(rec, httptest.NewRequest("GET", "/v1/items", nil)) {
			t.Fatal("Allow() = true without identity")
		}
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("identity", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/v1/items", nil)
		r = r.WithContext(SetIdentity(r.Context(), &Identity{Subject: "alice"}))
		if !f.Allow(httptest.NewRecorder(), r) {
			t.Error("Allow() = false with identity")
		}
	})

	t.Run("anonymous endpoint", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/v1/public", nil)
		r = r.WithContext(AllowAnonymous(r.Context()))
		if !f.Allow(httptest.NewRecorder(), r) {
			t.Error("Allow() = false on anonymous endpoint")
		}
	})
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "accepted"},
		{&CredentialMissingError{Credential: "API key"}, "missing"},
		{&CredentialInvalidError{Credential: "API key"}, "invalid"},
		{&RequirementError{Requirement: "scope"}, "forbidden"},
		{&ConfigurationError{Strategy: "apikey"}, "misconfigured"},
	}
	for _, tt := range tests {
		if got := Outcome(tt.err); got != tt.want {
			t.Errorf("Outcome(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
