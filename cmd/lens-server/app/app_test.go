package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"

	"github.com/rhuss/lens/pkg/auth"
	"github.com/rhuss/lens/pkg/config"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

const apiKeyConfig = `
auth:
  type: apikey
  apikey:
    shared_secret: s3cr3t
docs:
  app_name: Orders API
`

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(out, "lens-server dev") {
		t.Errorf("output = %q, want lens-server dev prefix", out)
	}
}

func TestOpenAPICommand_JSON(t *testing.T) {
	out, err := execute(t, "openapi", "--config", writeConfig(t, apiKeyConfig))
	if err != nil {
		t.Fatalf("openapi: %v", err)
	}

	var doc struct {
		OpenAPI    string `json:"openapi"`
		Components struct {
			SecuritySchemes map[string]struct {
				Type string `json:"type"`
				In   string `json:"in"`
				Name string `json:"name"`
			} `json:"securitySchemes"`
		} `json:"components"`
		Paths map[string]json.RawMessage `json:"paths"`
	}
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("decoding output: %v\n%s", err, out)
	}

	scheme, ok := doc.Components.SecuritySchemes["ApiKey"]
	if !ok {
		t.Fatalf("securitySchemes = %v, want ApiKey", doc.Components.SecuritySchemes)
	}
	if scheme.Type != "apiKey" || scheme.In != "header" || scheme.Name != "X-Api-Key" {
		t.Errorf("ApiKey scheme = %+v", scheme)
	}
	for _, path := range []string{"/v1/whoami", "/health", "/openapi.json"} {
		if _, ok := doc.Paths[path]; !ok {
			t.Errorf("paths missing %s", path)
		}
	}
}

func TestOpenAPICommand_YAMLToFile(t *testing.T) {
	outFile := filepath.Join(t.TempDir(), "openapi.yaml")
	if _, err := execute(t, "openapi", "-c", writeConfig(t, apiKeyConfig), "-f", "yaml", "-o", outFile); err != nil {
		t.Fatalf("openapi: %v", err)
	}

	data, err := os.ReadFile(outFile)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		t.Fatalf("decoding yaml: %v", err)
	}
	if doc["openapi"] == nil {
		t.Errorf("document has no openapi version: %s", data)
	}
}

func TestOpenAPICommand_Errors(t *testing.T) {
	tests := []struct {
		name   string
		config string
		args   []string
	}{
		{"unknown format", apiKeyConfig, []string{"--format", "toml"}},
		{"strict unknown strategy", "auth:\n  type: kerberos\n  strict: true\n", nil},
		{"apikey without secret", "auth:\n  type: apikey\n", nil},
		{"invalid config", "server:\n  port: -1\n", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"openapi", "--config", writeConfig(t, tt.config)}, tt.args...)
			if _, err := execute(t, args...); err == nil {
				t.Fatal("openapi succeeded, want error")
			}
		})
	}
}

func TestBuildStack_ConfigurationErrorIsTyped(t *testing.T) {
	cfg := config.Defaults()
	cfg.Auth.Type = "azuread"

	_, err := buildStack(context.Background(), &cfg, quietLogger, cfg.AuthSettings(), nil)

	var cfgErr *auth.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("err = %v, want *auth.ConfigurationError", err)
	}
}

func TestBuildStack_APIKey(t *testing.T) {
	cfg := config.Defaults()
	cfg.Auth.Type = "apikey"
	cfg.Auth.APIKey.SharedSecret = "s3cr3t"

	st, err := buildStack(context.Background(), &cfg, quietLogger, cfg.AuthSettings(), nil)
	if err != nil {
		t.Fatalf("buildStack: %v", err)
	}

	tests := []struct {
		name   string
		path   string
		secret string
		want   int
	}{
		{"protected with secret", "/v1/whoami", "s3cr3t", http.StatusOK},
		{"protected with wrong secret", "/v1/whoami", "nope", http.StatusUnauthorized},
		{"protected without secret", "/v1/whoami", "", http.StatusBadRequest},
		{"docs are public", "/openapi.json", "", http.StatusOK},
		{"health is public", "/health", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.secret != "" {
				r.Header.Set("X-Api-Key", tt.secret)
			}
			rec := httptest.NewRecorder()
			st.handler.ServeHTTP(rec, r)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestBuildStack_UnknownStrategyFallsBack(t *testing.T) {
	cfg := config.Defaults()
	cfg.Auth.Type = "kerberos"

	st, err := buildStack(context.Background(), &cfg, quietLogger, cfg.AuthSettings(), nil)
	if err != nil {
		t.Fatalf("buildStack: %v", err)
	}
	if st.strategy.Name() != "anonymous" {
		t.Errorf("strategy = %q, want anonymous", st.strategy.Name())
	}

	r := httptest.NewRequest(http.MethodGet, "/debug/auth", nil)
	rec := httptest.NewRecorder()
	st.handler.ServeHTTP(rec, r)

	var got struct {
		Strategy string   `json:"strategy"`
		Warnings []string `json:"warnings"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Strategy != "anonymous" || len(got.Warnings) != 1 {
		t.Errorf("debug = %+v, want anonymous with one warning", got)
	}
}

func TestBuildStack_DevelopmentShowsTokenDetails(t *testing.T) {
	cfg := config.Defaults()
	cfg.Server.Environment = config.EnvironmentDevelopment
	cfg.Auth.Type = "azuread"
	cfg.Auth.AzureAD.AllowedIssuers = []string{"https://login.example.com/tenant/v2.0"}

	st, err := buildStack(context.Background(), &cfg, quietLogger, cfg.AuthSettings(), nil)
	if err != nil {
		t.Fatalf("buildStack: %v", err)
	}

	r := httptest.NewRequest(http.MethodGet, "/v1/whoami", nil)
	r.Header.Set("Authorization", "Bearer not-a-jwt")
	rec := httptest.NewRecorder()
	st.handler.ServeHTTP(rec, r)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if !strings.Contains(rec.Header().Get("WWW-Authenticate"), "error_description") {
		t.Errorf("WWW-Authenticate = %q, want error_description in development", rec.Header().Get("WWW-Authenticate"))
	}
}

func TestServe_StopsOnCancel(t *testing.T) {
	cfg := config.Defaults()
	cfg.Server.Port = 0
	cfg.Server.ShutdownTimeout = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, &cfg, quietLogger) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop after cancellation")
	}
}

func TestRootCommandListsSubcommands(t *testing.T) {
	var names []string
	for _, c := range NewRootCmd().Commands() {
		names = append(names, c.Name())
	}
	want := []string{"openapi", "serve", "version"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("subcommands mismatch (-want +got):\n%s", diff)
	}
}
