package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	firebaseauth "firebase.google.com/go/v4/auth"
)

type stubTokenVerifier struct {
	token    *firebaseauth.Token
	err      error
	received string
}

func (s *stubTokenVerifier) VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error) {
	s.received = idToken
	if s.err != nil {
		return nil, s.err
	}
	return s.token, nil
}

func TestRequireFirebaseAuth_AllowsValidToken(t *testing.T) {
	verifier := &stubTokenVerifier{
		token: &firebaseauth.Token{
			UID: "uid-123",
			Claims: map[string]interface{}{
				"role":   []interface{}{"employee", "admin"},
				"locale": "pt-BR",
				"email":  "Guide@Example.com",
				"name":   "Ana",
			},
		},
	}

	authn := NewAuthenticator(verifier)

	handlerCalled := false
	handler := authn.RequireFirebaseAuth(RoleStaff)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true

		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			t.Fatalf("expected identity in context")
		}
		if identity.UID != "uid-123" {
			t.Fatalf("unexpected uid: %s", identity.UID)
		}
		if !identity.HasRole(RoleStaff) || !identity.IsOperator() {
			t.Fatalf("expected employee claim to map to staff, got %v", identity.Roles)
		}
		if identity.Locale != "pt-BR" {
			t.Fatalf("expected locale pt-BR, got %s", identity.Locale)
		}
		if identity.Email != "guide@example.com" {
			t.Fatalf("expected lower-cased email, got %s", identity.Email)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer token-abc")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !handlerCalled {
		t.Fatalf("expected handler to be called")
	}
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rec.Code)
	}
	if verifier.received != "token-abc" {
		t.Fatalf("expected verifier to receive token, got %q", verifier.received)
	}
}

func TestRequireFirebaseAuth_MissingHeader(t *testing.T) {
	authn := NewAuthenticator(&stubTokenVerifier{})
	handler := authn.RequireFirebaseAuth()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler should not be called")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/protected", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["error"] != "unauthenticated" {
		t.Fatalf("unexpected error code %v", body["error"])
	}
}

func TestRequireFirebaseAuth_InvalidToken(t *testing.T) {
	authn := NewAuthenticator(&stubTokenVerifier{err: ErrTokenExpired})
	handler := authn.RequireFirebaseAuth()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer expired")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRequireFirebaseAuth_InsufficientRoleIsForbidden(t *testing.T) {
	authn := NewAuthenticator(&stubTokenVerifier{token: &firebaseauth.Token{UID: "uid", Claims: map[string]interface{}{"role": "client"}}})
	handler := authn.RequireFirebaseAuth(RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer t")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestRequireFirebaseAuth_RoleLookupAndFallback(t *testing.T) {
	tests := []struct {
		name   string
		lookup RoleLookup
		want   string
	}{
		{name: "stored role", lookup: func(context.Context, string) (string, error) { return "EMPLOYEE", nil }, want: RoleStaff},
		{name: "lookup error", lookup: func(context.Context, string) (string, error) { return "", errors.New("boom") }, want: RoleUser},
		{name: "unknown stored role", lookup: func(context.Context, string) (string, error) { return "root", nil }, want: RoleUser},
		{name: "no lookup", want: RoleUser},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			authn := NewAuthenticator(&stubTokenVerifier{token: &firebaseauth.Token{UID: "uid"}}, WithRoleLookup(tc.lookup))
			var roles []string
			handler := authn.RequireFirebaseAuth()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				identity, _ := IdentityFromContext(r.Context())
				roles = identity.Roles
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", "Bearer t")
			handler.ServeHTTP(httptest.NewRecorder(), req)
			if len(roles) != 1 || roles[0] != tc.want {
				t.Fatalf("expected roles [%s], got %v", tc.want, roles)
			}
		})
	}
}

func TestRolesFromClaimsShapes(t *testing.T) {
	claims := map[string]interface{}{
		"a": "Admin",
		"b": []string{"staff", "STAFF", ""},
		"c": map[string]interface{}{"admin": true, "staff": false},
	}
	if got := rolesFromClaims(claims, "a"); len(got) != 1 || got[0] != RoleAdmin {
		t.Fatalf("unexpected roles %v", got)
	}
	if got := rolesFromClaims(claims, "b"); len(got) != 1 || got[0] != RoleStaff {
		t.Fatalf("unexpected roles %v", got)
	}
	if got := rolesFromClaims(claims, "c"); len(got) != 1 || got[0] != RoleAdmin {
		t.Fatalf("unexpected roles %v", got)
	}
	if got := rolesFromClaims(claims, "missing"); len(got) != 0 {
		t.Fatalf("expected no roles, got %v", got)
	}
}
