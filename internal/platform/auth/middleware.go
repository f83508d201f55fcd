package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	firebaseauth "firebase.google.com/go/v4/auth"

	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/platform/httpx"
)

const (
	defaultRoleClaim     = "role"
	defaultVerifyTimeout = 5 * time.Second
)

var (
	// ErrTokenExpired signals that the provided Firebase ID token has expired.
	ErrTokenExpired = errors.New("auth: firebase id token expired")
	// ErrTokenInvalid signals that the provided Firebase ID token is invalid for other reasons.
	ErrTokenInvalid = errors.New("auth: firebase id token invalid")
)

// TokenVerifier verifies Firebase ID tokens.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error)
}

// RoleLookup resolves the stored role of a user whose token carries no role claim.
type RoleLookup func(ctx context.Context, uid string) (string, error)

// Authenticator wires Firebase token verification into HTTP middleware.
type Authenticator struct {
	verifier   TokenVerifier
	roleLookup RoleLookup

	roleClaim    string
	fallbackRole string
	timeout      time.Duration
}

// Option customises Authenticator behaviour.
type Option func(*Authenticator)

// WithRoleClaim overrides the custom claim used for role extraction.
func WithRoleClaim(claim string) Option {
	return func(a *Authenticator) {
		claim = strings.TrimSpace(claim)
		if claim != "" {
			a.roleClaim = claim
		}
	}
}

// WithRoleLookup consults the user profile when the token has no role claim yet, which happens
// between an admin role change and the client's next token refresh.
func WithRoleLookup(lookup RoleLookup) Option {
	return func(a *Authenticator) {
		a.roleLookup = lookup
	}
}

// WithFallbackRole sets the default role when neither the claim nor the profile carries one.
func WithFallbackRole(role string) Option {
	return func(a *Authenticator) {
		role = NormaliseRole(role)
		if role != "" {
			a.fallbackRole = role
		}
	}
}

// WithVerificationTimeout bounds token verification and role lookups.
func WithVerificationTimeout(d time.Duration) Option {
	return func(a *Authenticator) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// NewAuthenticator constructs a Firebase Authenticator for middleware composition.
func NewAuthenticator(verifier TokenVerifier, opts ...Option) *Authenticator {
	a := &Authenticator{
		verifier:     verifier,
		roleClaim:    defaultRoleClaim,
		fallbackRole: RoleUser,
		timeout:      defaultVerifyTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// RequireFirebaseAuth verifies the Authorization bearer token. When roles are given the identity must
// hold at least one of them, otherwise the request is rejected with 403.
func (a *Authenticator) RequireFirebaseAuth(allowedRoles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(allowedRoles))
	for _, role := range allowedRoles {
		if role = NormaliseRole(role); role != "" {
			allowed[role] = struct{}{}
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr, ok := extractBearerToken(r.Header.Get("Authorization"))
			if !ok {
				respondAuthError(w, r, http.StatusUnauthorized, "unauthenticated", "authorization header missing or invalid")
				return
			}
			if a == nil || a.verifier == nil {
				respondAuthError(w, r, http.StatusUnauthorized, "unauthenticated", "authorization service unavailable")
				return
			}

			ctx, cancel := a.contextWithTimeout(r.Context())
			defer cancel()

			token, err := a.verifier.VerifyIDToken(ctx, tokenStr)
			if err != nil {
				respondVerificationError(w, r, err)
				return
			}

			identity := a.identify(ctx, token)
			if len(allowed) > 0 && !hasAllowedRole(identity.Roles, allowed) {
				respondAuthError(w, r, http.StatusForbidden, "insufficient_role", "identity does not have required role")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// identify maps token claims onto an Identity. Role resolution order: token claim, stored
// profile role, fallback role.
func (a *Authenticator) identify(ctx context.Context, token *firebaseauth.Token) *Identity {
	claim := func(key string) string {
		v, _ := token.Claims[key].(string)
		return strings.TrimSpace(v)
	}
	identity := &Identity{
		UID:    token.UID,
		Email:  strings.ToLower(claim("email")),
		Name:   claim("name"),
		Phone:  claim("phone_number"),
		Locale: claim("locale"),
		Roles:  rolesFromClaims(token.Claims, a.roleClaim),
	}
	if len(identity.Roles) == 0 && a.roleLookup != nil {
		if role, err := a.roleLookup(ctx, token.UID); err == nil && ValidRole(role) {
			identity.Roles = []string{NormaliseRole(role)}
		}
	}
	if len(identity.Roles) == 0 && a.fallbackRole != "" {
		identity.Roles = []string{a.fallbackRole}
	}
	return identity
}

func (a *Authenticator) contextWithTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a == nil || a.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.timeout)
}

func hasAllowedRole(identityRoles []string, allowed map[string]struct{}) bool {
	for _, role := range identityRoles {
		if _, ok := allowed[NormaliseRole(role)]; ok {
			return true
		}
	}
	return false
}

// rolesFromClaims accepts a single string, a list, or a {role: true} map.
func rolesFromClaims(claims map[string]interface{}, key string) []string {
	var candidates []string
	switch v := claims[key].(type) {
	case string:
		candidates = []string{v}
	case []string:
		candidates = v
	case []interface{}:
		for _, item := range v {
			if str, ok := item.(string); ok {
				candidates = append(candidates, str)
			}
		}
	case map[string]interface{}:
		for role, enabled := range v {
			if on, ok := enabled.(bool); ok && on {
				candidates = append(candidates, role)
			}
		}
	}

	out := make([]string, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))
	for _, candidate := range candidates {
		role := NormaliseRole(candidate)
		if role == "" {
			continue
		}
		if _, dup := seen[role]; dup {
			continue
		}
		seen[role] = struct{}{}
		out = append(out, role)
	}
	return out
}

func extractBearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func respondAuthError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	httpx.WriteError(r.Context(), w, httpx.NewError(code, message, status))
}

func respondVerificationError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, ErrTokenExpired) || firebaseauth.IsIDTokenExpired(err) {
		respondAuthError(w, r, http.StatusUnauthorized, "token_expired", "firebase id token expired")
		return
	}
	respondAuthError(w, r, http.StatusUnauthorized, "invalid_token", "firebase id token invalid")
}
