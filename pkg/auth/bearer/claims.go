package bearer

import (
	"strings"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// claimString extracts a string value from JWT claims.
// Returns empty string if the claim is missing or not a string.
func claimString(claims jwtlib.MapClaims, key string) string {
	s, _ := claims[key].(string)
	return s
}

// claimList extracts a list claim. The value can be a space-separated
// string or a JSON array of strings.
func claimList(claims jwtlib.MapClaims, key string) []string {
	switch val := claims[key].(type) {
	case string:
		parts := strings.Fields(val)
		if len(parts) == 0 {
			return nil
		}
		return parts
	case []interface{}:
		var out []string
		for _, item := range val {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// scopes reads delegated scopes from "scp", falling back to "scope".
func scopes(claims jwtlib.MapClaims) []string {
	if s := claimList(claims, "scp"); len(s) > 0 {
		return s
	}
	return claimList(claims, "scope")
}

// isApplication reports whether the token represents a service identity
// with no delegated user. An explicit idtyp claim wins. Otherwise a token
// without any delegated scope is an application token.
func isApplication(claims jwtlib.MapClaims) bool {
	switch claimString(claims, "idtyp") {
	case "app":
		return true
	case "user":
		return false
	}
	_, hasScp := claims["scp"]
	_, hasScope := claims["scope"]
	return !hasScp && !hasScope
}

// subject prefers "sub" and falls back to the object id claim.
func subject(claims jwtlib.MapClaims) string {
	if s := claimString(claims, "sub"); s != "" {
		return s
	}
	return claimString(claims, "oid")
}
