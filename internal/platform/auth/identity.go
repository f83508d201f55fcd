package auth

import (
	"context"
	"strings"
)

// Roles recognised by the booking API. Legacy claim values are folded into these by NormaliseRole.
const (
	RoleUser  = "user"
	RoleStaff = "staff"
	RoleAdmin = "admin"
)

var roleAliases = map[string]string{
	"client":   RoleUser,
	"customer": RoleUser,
	"employee": RoleStaff,
}

// NormaliseRole lower-cases the role and maps legacy names (client, employee) onto the API roles.
func NormaliseRole(role string) string {
	role = strings.ToLower(strings.TrimSpace(role))
	if alias, ok := roleAliases[role]; ok {
		return alias
	}
	return role
}

// ValidRole reports whether role names one of the API roles after normalisation.
func ValidRole(role string) bool {
	switch NormaliseRole(role) {
	case RoleUser, RoleStaff, RoleAdmin:
		return true
	}
	return false
}

// Identity captures the authenticated customer or operator extracted from a Firebase ID token.
type Identity struct {
	UID    string
	Email  string
	Name   string
	Phone  string
	Roles  []string
	Locale string
}

// HasRole reports whether the identity includes the requested role (case-insensitive).
func (i *Identity) HasRole(role string) bool {
	if i == nil {
		return false
	}
	role = NormaliseRole(role)
	if role == "" {
		return false
	}
	for _, r := range i.Roles {
		if NormaliseRole(r) == role {
			return true
		}
	}
	return false
}

// HasAnyRole reports whether the identity includes any of the provided roles.
func (i *Identity) HasAnyRole(roles ...string) bool {
	for _, role := range roles {
		if i.HasRole(role) {
			return true
		}
	}
	return false
}

// IsOperator reports whether the identity acts for the agency (staff or admin).
func (i *Identity) IsOperator() bool {
	return i.HasAnyRole(RoleStaff, RoleAdmin)
}

type contextKey string

const identityContextKey contextKey = "github.com/GuilhermeDesoler/BACK-TURISMO/internal/platform/auth/identity"

// WithIdentity stores the identity within the context for downstream handlers.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

// IdentityFromContext retrieves the identity previously stored in context.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(*Identity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}
