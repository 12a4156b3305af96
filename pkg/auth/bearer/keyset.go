package bearer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"golang.org/x/sync/singleflight"

	"github.com/rhuss/lens/pkg/debug"
	"github.com/rhuss/lens/pkg/observability"
)

// KeyResolver returns the verification key for a token signed by issuer
// with the given key id.
type KeyResolver interface {
	Key(ctx context.Context, issuer, kid string) (any, error)
}

// DefaultMinRefreshInterval is the shortest time between two fetches of an
// issuer's key set outside the regular TTL expiry.
const DefaultMinRefreshInterval = 30 * time.Second

// ErrKeyNotFound is returned when a key id is not in the issuer's key set.
var ErrKeyNotFound = errors.New("signing key not found")

// KeySet caches signing keys per issuer. The key set URL of an issuer is
// taken from the override map or discovered through the issuer's OpenID
// configuration. It is safe for concurrent use.
//
// An unknown key id triggers a refetch, but at most once per issuer within
// the minimum refresh interval. A failed fetch is throttled the same way and
// the last good key set stays in use. Concurrent fetches for one issuer are
// collapsed into a single request, and no lock is held during network I/O.
//
// All network calls use the caller's context, so a cancelled request
// cancels its in-flight discovery or key fetch.
type KeySet struct {
	mu         sync.RWMutex
	issuers    map[string]*issuerKeys
	overrides  map[string]string
	ttl        time.Duration
	minRefresh time.Duration
	client     *http.Client
	flights    singleflight.Group
	now        func() time.Time
}

type issuerKeys struct {
	jwksURL   string
	keys      jwk.Set
	fetchedAt time.Time

	// attemptedAt is the completion time of the last fetch, successful or not.
	attemptedAt time.Time
}

// NewKeySet creates an empty key set cache.
func NewKeySet(client *http.Client, ttl time.Duration, overrides map[string]string) *KeySet {
	if client == nil {
		client = http.DefaultClient
	}
	if ttl == 0 {
		ttl = time.Hour
	}
	normalized := make(map[string]string, len(overrides))
	for iss, u := range overrides {
		normalized[normalizeIssuer(iss)] = u
	}
	return &KeySet{
		issuers:    make(map[string]*issuerKeys),
		overrides:  normalized,
		ttl:        ttl,
		minRefresh: min(DefaultMinRefreshInterval, ttl),
		client:     client,
		now:        time.Now,
	}
}

// Key returns the raw public key for kid. It fetches the issuer's key set
// if the cache is expired or the kid is unknown, unless the issuer was
// fetched within the minimum refresh interval.
func (k *KeySet) Key(ctx context.Context, rawIssuer, kid string) (any, error) {
	issuer := normalizeIssuer(rawIssuer)

	k.mu.RLock()
	set, fresh, throttled := k.state(issuer)
	k.mu.RUnlock()

	if set != nil && (fresh || throttled) {
		if key, ok := lookup(set, kid); ok {
			return key, nil
		}
	}
	if throttled {
		observability.KeySetFetchesTotal.WithLabelValues(issuer, "throttled").Inc()
		debug.Log("keys", "key set refresh throttled", "issuer", issuer, "kid", kid)
		return nil, fmt.Errorf("%w: %q for %s", ErrKeyNotFound, kid, issuer)
	}

	v, err, _ := k.flights.Do(issuer, func() (any, error) {
		return k.refresh(ctx, rawIssuer, issuer)
	})
	if err != nil {
		return nil, err
	}

	key, ok := lookup(v.(jwk.Set), kid)
	if !ok {
		return nil, fmt.Errorf("%w: %q in key set of %s", ErrKeyNotFound, kid, issuer)
	}
	return key, nil
}

// state reports the cached set of issuer, whether it is within its TTL and
// whether a new fetch must wait. Must be called with a lock held.
func (k *KeySet) state(issuer string) (set jwk.Set, fresh, throttled bool) {
	entry := k.issuers[issuer]
	if entry == nil {
		return nil, false, false
	}
	now := k.now()
	fresh = entry.keys != nil && now.Sub(entry.fetchedAt) < k.ttl
	throttled = !entry.attemptedAt.IsZero() && now.Sub(entry.attemptedAt) < k.minRefresh
	return entry.keys, fresh, throttled
}

// refresh resolves the key set URL if needed and fetches the key set. It
// runs at most once at a time per issuer and holds no lock during I/O.
func (k *KeySet) refresh(ctx context.Context, rawIssuer, issuer string) (jwk.Set, error) {
	k.mu.RLock()
	var jwksURL string
	if entry := k.issuers[issuer]; entry != nil {
		jwksURL = entry.jwksURL
	}
	// A fetch that completed while this caller waited is reused.
	set, _, throttled := k.state(issuer)
	k.mu.RUnlock()
	if set != nil && throttled {
		return set, nil
	}

	var err error
	if jwksURL == "" {
		jwksURL, err = k.resolveURL(ctx, rawIssuer)
	}
	if err == nil {
		set, err = k.fetch(ctx, issuer, jwksURL)
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	entry := k.issuers[issuer]
	if entry == nil {
		entry = &issuerKeys{}
		k.issuers[issuer] = entry
	}
	if jwksURL != "" {
		entry.jwksURL = jwksURL
	}
	// A cancelled caller says nothing about the issuer.
	if ctx.Err() == nil {
		entry.attemptedAt = k.now()
	}
	if err != nil {
		return nil, err
	}
	entry.keys = set
	entry.fetchedAt = k.now()
	return set, nil
}

// resolveURL returns the key set URL for issuer. Discovery uses the issuer
// exactly as it appears in the token.
func (k *KeySet) resolveURL(ctx context.Context, issuer string) (string, error) {
	if u, ok := k.overrides[normalizeIssuer(issuer)]; ok {
		return u, nil
	}

	debug.Log("keys", "discovering issuer metadata", "issuer", issuer)
	provider, err := oidc.NewProvider(oidc.ClientContext(ctx, k.client), issuer)
	if err != nil {
		return "", fmt.Errorf("discovering %s: %w", issuer, err)
	}

	var doc struct {
		JWKSURI string `json:"jwks_uri"`
	}
	if err := provider.Claims(&doc); err != nil {
		return "", fmt.Errorf("reading discovery document of %s: %w", issuer, err)
	}
	if doc.JWKSURI == "" {
		return "", fmt.Errorf("discovery document of %s has no jwks_uri", issuer)
	}
	return doc.JWKSURI, nil
}

// fetch downloads and parses the key set at jwksURL.
func (k *KeySet) fetch(ctx context.Context, issuer, jwksURL string) (set jwk.Set, err error) {
	start := time.Now()
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
		}
		observability.KeySetFetchesTotal.WithLabelValues(issuer, status).Inc()
		observability.KeySetFetchDuration.WithLabelValues(issuer).Observe(time.Since(start).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, jwksURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating key set request: %w", err)
	}

	resp, err := k.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching key set: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("key set endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading key set response: %w", err)
	}

	set, err = jwk.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("parsing key set: %w", err)
	}

	debug.Log("keys", "key set refreshed", "issuer", issuer, "keys", set.Len(), "url", jwksURL)
	return set, nil
}

// lookup finds kid in set and exports the raw public key.
func lookup(set jwk.Set, kid string) (any, bool) {
	key, ok := set.LookupKeyID(kid)
	if !ok {
		return nil, false
	}
	var raw any
	if err := jwk.Export(key, &raw); err != nil {
		return nil, false
	}
	return raw, true
}

func normalizeIssuer(iss string) string {
	return strings.TrimRight(iss, "/")
}
