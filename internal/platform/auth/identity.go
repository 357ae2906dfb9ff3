package auth

import (
	"context"

	"golang.org/x/text/language"
)

// Role values carried in Firebase custom claims.
const (
	RoleCustomer = "customer"
	RoleStaff    = "staff"
	RoleAdmin    = "admin"
)

// Identity is the authenticated caller attached to a request context.
type Identity struct {
	// UID is the Firebase user id.
	UID string
	// Email is the verified email address, when present in the token.
	Email string
	// Roles holds the custom claim roles assigned to the user.
	Roles []string
	// Locale is the preferred locale claimed by the token ("ar" or "en").
	Locale language.Tag
}

// HasRole reports whether the identity carries the given role.
func (i *Identity) HasRole(role string) bool {
	if i == nil {
		return false
	}
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasAnyRole reports whether the identity carries at least one of the roles.
func (i *Identity) HasAnyRole(roles ...string) bool {
	for _, role := range roles {
		if i.HasRole(role) {
			return true
		}
	}
	return false
}

type contextKey string

const identityContextKey contextKey = "github.com/jam3a-shop/api/internal/platform/auth/identity"

// WithIdentity returns a context carrying the authenticated identity.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	if identity == nil {
		return ctx
	}
	return context.WithValue(ctx, identityContextKey, identity)
}

// IdentityFromContext extracts the authenticated identity, if any.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(*Identity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}
