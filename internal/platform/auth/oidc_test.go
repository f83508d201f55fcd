package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	jwt "github.com/golang-jwt/jwt/v4"
)

const testAudience = "https://api.turismo.example/internal"

type noopLogger struct{}

func (noopLogger) Printf(string, ...any) {}

type recordingMetrics struct {
	mu      sync.Mutex
	records []verificationRecord
}

type verificationRecord struct {
	kind    string
	success bool
	reason  string
}

func (m *recordingMetrics) RecordVerification(_ context.Context, kind string, success bool, reason string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, verificationRecord{kind: kind, success: success, reason: reason})
}

func (m *recordingMetrics) last() verificationRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.records) == 0 {
		return verificationRecord{}
	}
	return m.records[len(m.records)-1]
}

type oidcFixture struct {
	key      *rsa.PrivateKey
	server   *httptest.Server
	requests int
	mu       sync.Mutex
	now      time.Time
}

func newOIDCFixture(t *testing.T) *oidcFixture {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	f := &oidcFixture{key: key, now: time.Unix(1_700_000_000, 0)}
	jwk := jose.JSONWebKey{Key: &key.PublicKey, KeyID: "svc-key", Algorithm: jwt.SigningMethodRS256.Alg(), Use: "sig"}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.requests++
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "public, max-age=600")
		_ = json.NewEncoder(w).Encode(jose.JSONWebKeySet{Keys: []jose.JSONWebKey{jwk}})
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *oidcFixture) sign(t *testing.T, mutate func(jwt.MapClaims)) string {
	t.Helper()
	claims := jwt.MapClaims{
		"aud":   testAudience,
		"iss":   "https://accounts.google.com",
		"sub":   "1234567890",
		"email": "scheduler@turismo.iam.gserviceaccount.com",
		"exp":   float64(f.now.Add(time.Hour).Unix()),
		"iat":   float64(f.now.Unix()),
	}
	if mutate != nil {
		mutate(claims)
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = "svc-key"
	signed, err := token.SignedString(f.key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func (f *oidcFixture) validator(metrics MetricsRecorder, opts ...OIDCOption) *OIDCValidator {
	clock := func() time.Time { return f.now }
	base := []OIDCOption{
		WithOIDCIssuers("https://accounts.google.com"),
		WithOIDCServiceAccounts("scheduler@turismo.iam.gserviceaccount.com"),
		WithOIDCLogger(noopLogger{}),
		WithOIDCMetrics(metrics),
		WithOIDCClock(clock),
	}
	return NewOIDCValidator(NewJWKSCache(f.server.URL, WithJWKSClock(clock)), testAudience, append(base, opts...)...)
}

func TestJWKSCacheCachesKeys(t *testing.T) {
	f := newOIDCFixture(t)
	cache := NewJWKSCache(f.server.URL, WithJWKSClock(func() time.Time { return f.now }))

	for i := 0; i < 2; i++ {
		key, err := cache.Key(context.Background(), "svc-key")
		if err != nil {
			t.Fatalf("cache.Key: %v", err)
		}
		if _, ok := key.(*rsa.PublicKey); !ok {
			t.Fatalf("expected *rsa.PublicKey, got %T", key)
		}
	}
	if f.requests != 1 {
		t.Fatalf("expected a single fetch, got %d", f.requests)
	}

	if _, err := cache.Key(context.Background(), "rotated"); err == nil {
		t.Fatalf("expected unknown kid error")
	}
	if f.requests != 2 {
		t.Fatalf("expected unknown kid to force a refetch, got %d fetches", f.requests)
	}
}

func TestRequireOIDC(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(jwt.MapClaims)
		wantStatus int
		wantReason string
	}{
		{name: "valid", wantStatus: http.StatusNoContent, wantReason: "ok"},
		{name: "audience mismatch", mutate: func(c jwt.MapClaims) { c["aud"] = "https://other" }, wantStatus: http.StatusUnauthorized, wantReason: "audience_mismatch"},
		{name: "issuer mismatch", mutate: func(c jwt.MapClaims) { c["iss"] = "https://evil.example" }, wantStatus: http.StatusUnauthorized, wantReason: "issuer_mismatch"},
		{name: "unknown caller", mutate: func(c jwt.MapClaims) { c["email"] = "someone@else.com" }, wantStatus: http.StatusUnauthorized, wantReason: "caller_not_allowed"},
		{name: "expired", mutate: func(c jwt.MapClaims) { c["exp"] = float64(1_600_000_000) }, wantStatus: http.StatusUnauthorized, wantReason: "token_expired"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newOIDCFixture(t)
			metrics := &recordingMetrics{}
			handler := f.validator(metrics).RequireOIDC()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				identity, ok := ServiceIdentityFromContext(r.Context())
				if !ok || identity.Email != "scheduler@turismo.iam.gserviceaccount.com" {
					t.Fatalf("expected service identity, got %+v", identity)
				}
				w.WriteHeader(http.StatusNoContent)
			}))

			req := httptest.NewRequest(http.MethodPost, "/internal/notifications:retry", nil)
			req.Header.Set("Authorization", "Bearer "+f.sign(t, tc.mutate))
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d", tc.wantStatus, rec.Code)
			}
			if got := metrics.last(); got.kind != "oidc" || got.reason != tc.wantReason {
				t.Fatalf("expected reason %q, got %+v", tc.wantReason, got)
			}
		})
	}
}

func TestRequireOIDCMissingToken(t *testing.T) {
	f := newOIDCFixture(t)
	metrics := &recordingMetrics{}
	handler := f.validator(metrics).RequireOIDC()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler should not be called")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/internal/notifications:retry", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if metrics.last().reason != "token_missing" {
		t.Fatalf("unexpected metrics %+v", metrics.records)
	}
}

func TestRequireOIDCJWKSUnavailable(t *testing.T) {
	f := newOIDCFixture(t)
	metrics := &recordingMetrics{}
	token := f.sign(t, nil)
	clock := func() time.Time { return f.now }
	validator := NewOIDCValidator(NewJWKSCache("http://127.0.0.1:1/certs", WithJWKSClock(clock)), testAudience,
		WithOIDCLogger(noopLogger{}), WithOIDCMetrics(metrics), WithOIDCClock(clock))

	handler := validator.RequireOIDC()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler should not be called")
	}))
	req := httptest.NewRequest(http.MethodPost, "/internal/notifications:retry", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if metrics.last().reason != "jwks_unavailable" {
		t.Fatalf("unexpected metrics %+v", metrics.records)
	}
}

func TestMaxAge(t *testing.T) {
	if got := maxAge("public, max-age=3600, must-revalidate"); got != time.Hour {
		t.Fatalf("expected 1h, got %s", got)
	}
	if got := maxAge("no-store"); got != 0 {
		t.Fatalf("expected 0, got %s", got)
	}
}
