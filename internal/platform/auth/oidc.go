package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	jwt "github.com/golang-jwt/jwt/v4"
)

// GoogleCertsURL publishes the keys that sign Google-issued OIDC tokens (Cloud Scheduler, Pub/Sub push).
const GoogleCertsURL = "https://www.googleapis.com/oauth2/v3/certs"

var (
	// ErrJWKSKeyNotFound is returned when the requested key ID is absent from the key set.
	ErrJWKSKeyNotFound = errors.New("auth: jwks key not found")
	// ErrJWKSFetchFailed wraps transport or decoding errors while refreshing the key set.
	ErrJWKSFetchFailed = errors.New("auth: jwks fetch failed")
)

const defaultJWKSValidity = 15 * time.Minute

// JWKSCache fetches the signing keys on demand and keeps them until the Cache-Control max-age lapses.
// An unknown kid forces one refetch so key rotation is picked up immediately.
type JWKSCache struct {
	url    string
	client *http.Client
	now    func() time.Time

	mu     sync.Mutex
	keys   map[string]jose.JSONWebKey
	expiry time.Time
}

// JWKSOption customises JWKSCache behaviour.
type JWKSOption func(*JWKSCache)

// WithJWKSHTTPClient overrides the HTTP client used to fetch the key set.
func WithJWKSHTTPClient(client *http.Client) JWKSOption {
	return func(c *JWKSCache) {
		if client != nil {
			c.client = client
		}
	}
}

// WithJWKSClock injects a custom clock.
func WithJWKSClock(now func() time.Time) JWKSOption {
	return func(c *JWKSCache) {
		if now != nil {
			c.now = now
		}
	}
}

// NewJWKSCache constructs a key cache for url.
func NewJWKSCache(url string, opts ...JWKSOption) *JWKSCache {
	cache := &JWKSCache{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cache)
		}
	}
	return cache
}

// Key resolves the public key for kid.
func (c *JWKSCache) Key(ctx context.Context, kid string) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.keys) == 0 || !c.now().Before(c.expiry) {
		if err := c.refreshLocked(ctx); err != nil {
			return nil, err
		}
	}
	if jwk, ok := c.keys[kid]; ok {
		return jwk.Key, nil
	}
	if err := c.refreshLocked(ctx); err != nil {
		return nil, err
	}
	if jwk, ok := c.keys[kid]; ok {
		return jwk.Key, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrJWKSKeyNotFound, kid)
}

func (c *JWKSCache) refreshLocked(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrJWKSFetchFailed, err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrJWKSFetchFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: unexpected status %d", ErrJWKSFetchFailed, resp.StatusCode)
	}

	var set jose.JSONWebKeySet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return fmt.Errorf("%w: decode jwks: %v", ErrJWKSFetchFailed, err)
	}
	keys := make(map[string]jose.JSONWebKey, len(set.Keys))
	for _, jwk := range set.Keys {
		if jwk.KeyID != "" && jwk.Valid() {
			keys[jwk.KeyID] = jwk
		}
	}
	if len(keys) == 0 {
		return fmt.Errorf("%w: empty key set", ErrJWKSFetchFailed)
	}

	validity := maxAge(resp.Header.Get("Cache-Control"))
	if validity <= 0 {
		validity = defaultJWKSValidity
	}
	c.keys = keys
	c.expiry = c.now().Add(validity)
	return nil
}

func maxAge(cacheControl string) time.Duration {
	for _, directive := range strings.Split(cacheControl, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(directive), "=")
		if !ok || !strings.EqualFold(name, "max-age") {
			continue
		}
		if seconds, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	return 0
}

// ServiceIdentity captures the Google service account that called an internal endpoint.
type ServiceIdentity struct {
	Subject string
	Email   string
	Issuer  string
}

type serviceIdentityContextKey struct{}

// ServiceIdentityFromContext retrieves the identity stored by RequireOIDC.
func ServiceIdentityFromContext(ctx context.Context) (*ServiceIdentity, bool) {
	identity, ok := ctx.Value(serviceIdentityContextKey{}).(*ServiceIdentity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}

// OIDCValidator authenticates internal calls (notification retries triggered by Cloud Scheduler)
// with Google-signed ID tokens.
type OIDCValidator struct {
	cache         *JWKSCache
	audience      string
	issuers       map[string]struct{}
	serviceEmails map[string]struct{}

	logger  Logger
	metrics MetricsRecorder
	now     func() time.Time
}

// OIDCOption customises the validator.
type OIDCOption func(*OIDCValidator)

// WithOIDCIssuers restricts accepted token issuers.
func WithOIDCIssuers(issuers ...string) OIDCOption {
	return func(v *OIDCValidator) {
		for _, issuer := range issuers {
			if issuer = strings.TrimSpace(issuer); issuer != "" {
				v.issuers[issuer] = struct{}{}
			}
		}
	}
}

// WithOIDCServiceAccounts restricts the email claim to the listed service accounts.
func WithOIDCServiceAccounts(emails ...string) OIDCOption {
	return func(v *OIDCValidator) {
		for _, email := range emails {
			if email = strings.ToLower(strings.TrimSpace(email)); email != "" {
				v.serviceEmails[email] = struct{}{}
			}
		}
	}
}

// WithOIDCLogger overrides the validator logger.
func WithOIDCLogger(logger Logger) OIDCOption {
	return func(v *OIDCValidator) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// WithOIDCMetrics sets the metrics recorder.
func WithOIDCMetrics(recorder MetricsRecorder) OIDCOption {
	return func(v *OIDCValidator) {
		v.metrics = recorder
	}
}

// WithOIDCClock injects a custom clock used for expiry checks.
func WithOIDCClock(now func() time.Time) OIDCOption {
	return func(v *OIDCValidator) {
		if now != nil {
			v.now = now
		}
	}
}

// NewOIDCValidator constructs an OIDCValidator expecting tokens minted for audience.
func NewOIDCValidator(cache *JWKSCache, audience string, opts ...OIDCOption) *OIDCValidator {
	v := &OIDCValidator{
		cache:         cache,
		audience:      strings.TrimSpace(audience),
		issuers:       make(map[string]struct{}),
		serviceEmails: make(map[string]struct{}),
		logger:        log.Default(),
		now:           time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v
}

// Verify parses and validates the raw token. The returned reason is suitable for metrics.
func (v *OIDCValidator) Verify(ctx context.Context, raw string) (*ServiceIdentity, string, error) {
	if v == nil || v.cache == nil || v.audience == "" {
		return nil, "not_configured", errors.New("auth: oidc validator not configured")
	}

	claims := jwt.MapClaims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}), jwt.WithoutClaimsValidation())
	_, err := parser.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("auth: token missing kid header")
		}
		return v.cache.Key(ctx, kid)
	})
	if err != nil {
		if errors.Is(err, ErrJWKSFetchFailed) {
			return nil, "jwks_unavailable", err
		}
		return nil, "token_invalid", err
	}

	now := v.now().Unix()
	if !claims.VerifyExpiresAt(now, true) || !claims.VerifyIssuedAt(now+60, false) {
		return nil, "token_expired", errors.New("auth: oidc token expired or not yet valid")
	}
	if !claims.VerifyAudience(v.audience, true) {
		return nil, "audience_mismatch", errors.New("auth: oidc audience mismatch")
	}
	issuer, _ := claims["iss"].(string)
	if len(v.issuers) > 0 {
		if _, ok := v.issuers[issuer]; !ok {
			return nil, "issuer_mismatch", fmt.Errorf("auth: oidc issuer %q not allowed", issuer)
		}
	}
	email, _ := claims["email"].(string)
	email = strings.ToLower(strings.TrimSpace(email))
	if len(v.serviceEmails) > 0 {
		if _, ok := v.serviceEmails[email]; !ok {
			return nil, "caller_not_allowed", fmt.Errorf("auth: service account %q not allowed", email)
		}
	}
	subject, _ := claims["sub"].(string)
	return &ServiceIdentity{Subject: subject, Email: email, Issuer: issuer}, "ok", nil
}

// RequireOIDC rejects requests without a valid Google-signed bearer token.
func (v *OIDCValidator) RequireOIDC() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := v.now()
			ctx := r.Context()

			raw, ok := extractBearerToken(r.Header.Get("Authorization"))
			if !ok {
				v.record(ctx, false, "token_missing", start)
				respondAuthError(w, r, http.StatusUnauthorized, "unauthenticated", "oidc token missing")
				return
			}

			identity, reason, err := v.Verify(ctx, raw)
			if err != nil {
				v.record(ctx, false, reason, start)
				if v != nil && v.logger != nil {
					v.logger.Printf("auth: oidc verification failed (%s): %v", reason, err)
				}
				status := http.StatusUnauthorized
				if reason == "jwks_unavailable" || reason == "not_configured" {
					status = http.StatusServiceUnavailable
				}
				respondAuthError(w, r, status, "invalid_token", "oidc token verification failed")
				return
			}

			v.record(ctx, true, reason, start)
			next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, serviceIdentityContextKey{}, identity)))
		})
	}
}

func (v *OIDCValidator) record(ctx context.Context, success bool, reason string, start time.Time) {
	if v == nil || v.metrics == nil {
		return
	}
	v.metrics.RecordVerification(ctx, "oidc", success, reason, v.now().Sub(start))
}
