// Command mock-idp runs a deterministic OpenID Connect issuer for local
// testing of the azuread strategy. It publishes discovery metadata and a
// signing key set, and mints tokens on request.
//
// Configuration:
//
//	MOCK_IDP_PORT   - Listen port (default: 9091)
//	MOCK_IDP_ISSUER - Issuer URL (default: http://localhost:<port>)
//
// Mint a token:
//
//	curl -s -X POST localhost:9091/token \
//	  -d '{"subject":"alice","scopes":["api.read"],"audience":"api://lens"}'
package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rhuss/lens/pkg/auth/bearer/bearertest"
)

func main() {
	port := os.Getenv("MOCK_IDP_PORT")
	if port == "" {
		port = "9091"
	}
	issuerURL := os.Getenv("MOCK_IDP_ISSUER")
	if issuerURL == "" {
		issuerURL = "http://localhost:" + port
	}

	issuer, err := bearertest.New(issuerURL)
	if err != nil {
		slog.Error("creating issuer", "error", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.Handle("GET "+bearertest.DiscoveryPath, issuer.Handler())
	mux.Handle("GET "+bearertest.KeysPath, issuer.Handler())
	mux.HandleFunc("POST /token", handleToken(issuer))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})

	srv := &http.Server{Addr: ":" + port, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("mock identity provider starting", "port", port, "issuer", issuer.URL())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("mock identity provider failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("mock identity provider shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
}

type tokenRequest struct {
	Subject  string   `json:"subject"`
	Audience string   `json:"audience"`
	Scopes   []string `json:"scopes"`
	Roles    []string `json:"roles"`
	TenantID string   `json:"tenant_id"`
	AppID    string   `json:"app_id"`
	TTL      string   `json:"ttl"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

func handleToken(issuer *bearertest.Issuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req tokenRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
		if req.Subject == "" {
			req.Subject = "mock-user"
		}

		ttl := time.Hour
		if req.TTL != "" {
			d, err := time.ParseDuration(req.TTL)
			if err != nil {
				http.Error(w, "invalid ttl", http.StatusBadRequest)
				return
			}
			ttl = d
		}

		token, err := issuer.Mint(bearertest.Token{
			Subject:  req.Subject,
			Audience: req.Audience,
			Scopes:   req.Scopes,
			Roles:    req.Roles,
			TenantID: req.TenantID,
			AppID:    req.AppID,
			TTL:      ttl,
		})
		if err != nil {
			slog.Error("minting token", "error", err)
			http.Error(w, "minting failed", http.StatusInternalServerError)
			return
		}

		slog.Info("token minted", "subject", req.Subject, "scopes", req.Scopes, "roles", req.Roles)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(tokenResponse{
			AccessToken: token,
			TokenType:   "Bearer",
			ExpiresIn:   int(ttl.Seconds()),
		})
	}
}
