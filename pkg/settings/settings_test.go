package settings

import (
	"testing"
	"time"
)

func TestDiscriminator(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"apikey", "apikey"},
		{"ApiKey", "apikey"},
		{"  AzureAD ", "azuread"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			a := Auth{AuthenticationType: tt.in}
			if got := a.Discriminator(); got != tt.want {
				t.Errorf("Discriminator() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIs(t *testing.T) {
	a := Auth{AuthenticationType: "APIKEY"}
	if !a.Is(APIKeyType) {
		t.Error("Is(apikey) = false, want true")
	}
	if a.Is(AzureAD) {
		t.Error("Is(azuread) = true, want false")
	}
}

func TestAPIKeyDefaults(t *testing.T) {
	k := APIKey{SharedSecret: "s3cret"}.WithDefaults()
	if k.HeaderName != DefaultAPIKeyHeader {
		t.Errorf("HeaderName = %q, want %q", k.HeaderName, DefaultAPIKeyHeader)
	}

	k = APIKey{HeaderName: "X-Custom"}.WithDefaults()
	if k.HeaderName != "X-Custom" {
		t.Errorf("HeaderName = %q, want X-Custom", k.HeaderName)
	}
}

func TestBearerTokenDefaults(t *testing.T) {
	b := BearerToken{}.WithDefaults()
	if b.KeyCacheTTL != time.Hour {
		t.Errorf("KeyCacheTTL = %v, want 1h", b.KeyCacheTTL)
	}
	if b.ClockSkew != time.Minute {
		t.Errorf("ClockSkew = %v, want 1m", b.ClockSkew)
	}
}

func TestIssuerAllowed(t *testing.T) {
	b := BearerToken{AllowedIssuers: []string{
		"https://login.example.com/tenant-a/v2.0",
		"https://sts.example.com/tenant-b/",
	}}

	tests := []struct {
		iss  string
		want bool
	}{
		{"https://login.example.com/tenant-a/v2.0", true},
		{"https://login.example.com/tenant-a/v2.0/", true},
		{"https://sts.example.com/tenant-b", true},
		{"https://evil.example.com/tenant-a/v2.0", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := b.IssuerAllowed(tt.iss); got != tt.want {
			t.Errorf("IssuerAllowed(%q) = %v, want %v", tt.iss, got, tt.want)
		}
	}
}
