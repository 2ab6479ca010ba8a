package orgcontext

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// OrgContextKey is the request context key for the caller's organization ID.
type OrgContextKey struct{}

// PrincipalContextKey is the request context key for the authenticated principal.
type PrincipalContextKey struct{}

// WithPrincipal stores the principal id asserted by the identity provider.
func WithPrincipal(ctx context.Context, principalID string) context.Context {
	return context.WithValue(ctx, PrincipalContextKey{}, strings.TrimSpace(principalID))
}

// PrincipalFromContext returns the principal id, if set.
func PrincipalFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	value, ok := ctx.Value(PrincipalContextKey{}).(string)
	if !ok || value == "" {
		return "", false
	}
	return value, true
}

// WithOrgID stores the org ID in the context.
func WithOrgID(ctx context.Context, orgID uuid.UUID) context.Context {
	return context.WithValue(ctx, OrgContextKey{}, orgID)
}

// OrgIDFromContext returns the org ID from context, if set.
func OrgIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	if ctx == nil {
		return uuid.Nil, false
	}

	switch typed := ctx.Value(OrgContextKey{}).(type) {
	case uuid.UUID:
		return typed, typed != uuid.Nil
	case string:
		parsed, err := uuid.Parse(strings.TrimSpace(typed))
		if err == nil && parsed != uuid.Nil {
			return parsed, true
		}
	}
	return uuid.Nil, false
}
