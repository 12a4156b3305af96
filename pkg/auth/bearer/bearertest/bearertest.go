// Package bearertest provides an in-process identity provider for testing
// the bearer token strategy. An Issuer publishes OIDC discovery metadata
// and a signing key set, and mints RS256 tokens that the strategy accepts.
package bearertest

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v3/jwk"
)

// Paths served by Issuer.Handler.
const (
	DiscoveryPath = "/.well-known/openid-configuration"
	KeysPath      = "/keys"
)

// Issuer signs tokens with a single RSA key.
type Issuer struct {
	url  string
	kid  string
	key  *rsa.PrivateKey
	jwks []byte
	mux  *http.ServeMux

	keyFetches atomic.Int64
}

// New creates an issuer whose iss claim and discovery base is issuerURL.
func New(issuerURL string) (*Issuer, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("generating signing key: %w", err)
	}

	iss := &Issuer{
		url: strings.TrimRight(issuerURL, "/"),
		kid: fmt.Sprintf("key-%d", time.Now().UnixNano()),
		key: key,
	}

	pub, err := jwk.Import(&key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("importing public key: %w", err)
	}
	if err := pub.Set(jwk.KeyIDKey, iss.kid); err != nil {
		return nil, err
	}
	if err := pub.Set(jwk.AlgorithmKey, "RS256"); err != nil {
		return nil, err
	}
	if err := pub.Set(jwk.KeyUsageKey, "sig"); err != nil {
		return nil, err
	}

	set := jwk.NewSet()
	if err := set.AddKey(pub); err != nil {
		return nil, err
	}
	iss.jwks, err = json.Marshal(set)
	if err != nil {
		return nil, fmt.Errorf("encoding key set: %w", err)
	}

	iss.mux = http.NewServeMux()
	iss.mux.HandleFunc("GET "+DiscoveryPath, iss.serveDiscovery)
	iss.mux.HandleFunc("GET "+KeysPath, iss.serveKeys)

	return iss, nil
}

// URL returns the issuer identifier.
func (i *Issuer) URL() string { return i.url }

// KeySetURL returns the URL of the published key set.
func (i *Issuer) KeySetURL() string { return i.url + KeysPath }

// KeyFetches returns how often the key set was served.
func (i *Issuer) KeyFetches() int64 { return i.keyFetches.Load() }

// Handler serves discovery metadata and the key set.
func (i *Issuer) Handler() http.Handler { return i.mux }

func (i *Issuer) serveDiscovery(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"issuer":                                i.url,
		"jwks_uri":                              i.KeySetURL(),
		"authorization_endpoint":                i.url + "/authorize",
		"token_endpoint":                        i.url + "/token",
		"response_types_supported":              []string{"code"},
		"subject_types_supported":               []string{"public"},
		"id_token_signing_alg_values_supported": []string{"RS256"},
	})
}

func (i *Issuer) serveKeys(w http.ResponseWriter, _ *http.Request) {
	i.keyFetches.Add(1)
	w.Header().Set("Content-Type", "application/json")
	w.Write(i.jwks)
}

// Token describes the claims of a minted token.
type Token struct {
	Subject  string
	Audience string
	Scopes   []string
	Roles    []string
	TenantID string

	// AppID marks an application token: it sets azp and, with no
	// scopes, the token carries roles only.
	AppID string

	// TTL defaults to one hour. A negative TTL yields an expired token.
	TTL time.Duration

	// Extra claims are merged last.
	Extra map[string]any
}

// Mint signs a token for t.
func (i *Issuer) Mint(t Token) (string, error) {
	ttl := t.TTL
	if ttl == 0 {
		ttl = time.Hour
	}
	now := time.Now()

	claims := jwtlib.MapClaims{
		"iss": i.url,
		"iat": now.Unix(),
		"nbf": now.Add(-time.Minute).Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	if t.Subject != "" {
		claims["sub"] = t.Subject
	}
	if t.Audience != "" {
		claims["aud"] = t.Audience
	}
	if len(t.Scopes) > 0 {
		claims["scp"] = strings.Join(t.Scopes, " ")
	}
	if len(t.Roles) > 0 {
		claims["roles"] = t.Roles
	}
	if t.TenantID != "" {
		claims["tid"] = t.TenantID
	}
	if t.AppID != "" {
		claims["azp"] = t.AppID
	}
	for k, v := range t.Extra {
		claims[k] = v
	}

	token := jwtlib.NewWithClaims(jwtlib.SigningMethodRS256, claims)
	token.Header["kid"] = i.kid
	return token.SignedString(i.key)
}

// Server is an Issuer served by an httptest.Server.
type Server struct {
	*Issuer
	srv *httptest.Server
}

// NewServer starts an issuer on a local listener. The issuer URL is the
// server URL, so OIDC discovery against it succeeds.
func NewServer() (*Server, error) {
	s := &Server{}
	s.srv = httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.Issuer.Handler().ServeHTTP(w, r)
	}))
	s.srv.Start()

	iss, err := New(s.srv.URL)
	if err != nil {
		s.srv.Close()
		return nil, err
	}
	s.Issuer = iss
	return s, nil
}

// Close shuts the server down.
func (s *Server) Close() { s.srv.Close() }
