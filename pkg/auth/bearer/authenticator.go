package bearer

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/rhuss/lens/pkg/auth"
	"github.com/rhuss/lens/pkg/debug"
	"github.com/rhuss/lens/pkg/settings"
)

// validMethods lists the accepted signing algorithms.
var validMethods = []string{"RS256", "RS384", "RS512", "PS256", "PS384", "PS512", "ES256", "ES384", "ES512"}

// Authenticator validates bearer tokens from allowed issuers.
type Authenticator struct {
	settings settings.BearerToken
	keys     KeyResolver
	opts     auth.TokenValidationOptions
}

var _ auth.Authenticator = (*Authenticator)(nil)

// Authenticate extracts a bearer token from the Authorization header,
// validates it, and returns an identity on success.
//
// Decision outcomes:
//   - Abstain: no Authorization header or not a Bearer scheme
//   - No: token present but malformed, from a foreign issuer, badly signed or expired
//   - Yes: valid token with populated Identity
func (a *Authenticator) Authenticate(ctx context.Context, r *http.Request) auth.Result {
	header := r.Header.Get("Authorization")
	scheme, tokenStr, ok := strings.Cut(header, " ")
	if header == "" || !ok || !strings.EqualFold(scheme, "Bearer") {
		return auth.Result{Decision: auth.Abstain}
	}

	tokenStr = strings.TrimSpace(tokenStr)
	if tokenStr == "" {
		return a.reject("empty bearer token", nil)
	}

	// The issuer must be checked before any key is fetched for it.
	unverified, _, err := jwtlib.NewParser().ParseUnverified(tokenStr, jwtlib.MapClaims{})
	if err != nil {
		return a.reject("malformed token", err)
	}
	issuer := claimString(unverified.Claims.(jwtlib.MapClaims), "iss")
	if !a.settings.IssuerAllowed(issuer) {
		return a.reject("issuer not allowed", fmt.Errorf("issuer %q is not in the allow-list", issuer))
	}

	token, err := jwtlib.Parse(tokenStr, func(token *jwtlib.Token) (interface{}, error) {
		kid, ok := token.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, fmt.Errorf("token missing kid header")
		}

		key, fetchErr := a.keys.Key(ctx, issuer, kid)
		if fetchErr != nil {
			return nil, fmt.Errorf("fetching key %q for %s: %w", kid, issuer, fetchErr)
		}
		return key, nil
	}, a.parserOptions(issuer)...)
	if err != nil {
		return a.reject("token validation failed", err)
	}

	claims, ok := token.Claims.(jwtlib.MapClaims)
	if !ok || !token.Valid {
		return a.reject("invalid claims", nil)
	}

	sub := subject(claims)
	if sub == "" {
		return a.reject("token has no subject", nil)
	}

	debug.Trace("auth", "bearer token claims", "claims", claims)

	id := &auth.Identity{
		Subject:     sub,
		Issuer:      issuer,
		Strategy:    settings.AzureAD,
		Scopes:      scopes(claims),
		Roles:       claimList(claims, "roles"),
		Application: isApplication(claims),
		Metadata:    make(map[string]string),
	}
	if tid := claimString(claims, "tid"); tid != "" {
		id.Metadata["tenant_id"] = tid
	}
	if appID := claimString(claims, "azp"); appID != "" {
		id.Metadata["app_id"] = appID
	} else if appID := claimString(claims, "appid"); appID != "" {
		id.Metadata["app_id"] = appID
	}

	return auth.Result{Decision: auth.Yes, Identity: id}
}

// parserOptions builds JWT parser options for a token from issuer.
func (a *Authenticator) parserOptions(issuer string) []jwtlib.ParserOption {
	opts := []jwtlib.ParserOption{
		jwtlib.WithValidMethods(validMethods),
		jwtlib.WithIssuer(issuer),
		jwtlib.WithExpirationRequired(),
		jwtlib.WithLeeway(a.opts.ClockSkew),
	}
	if a.opts.Audience != "" {
		opts = append(opts, jwtlib.WithAudience(a.opts.Audience))
	}
	return opts
}

// reject builds a No result. The reason reaches the client only when
// ShowDetails is enabled.
func (a *Authenticator) reject(reason string, cause error) auth.Result {
	err := &auth.CredentialInvalidError{
		Credential: "bearer token",
		Param:      "Authorization",
		Cause:      cause,
	}
	challenge := `Bearer error="invalid_token"`
	if a.opts.ShowDetails {
		err.Detail = reason
		if cause != nil {
			err.Detail = reason + ": " + cause.Error()
		}
		challenge += fmt.Sprintf(`, error_description=%q`, reason)
	}
	return auth.Result{Decision: auth.No, Err: err, Challenge: challenge}
}
