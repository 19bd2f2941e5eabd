package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/gosuda/ideaboard/internal/auth"
)

type contextKey string

const ContextKeyPrincipal contextKey = "principal"

// PrincipalFromContext returns the authenticated caller, if any.
func PrincipalFromContext(ctx context.Context) (*auth.Principal, bool) {
	p, ok := ctx.Value(ContextKeyPrincipal).(*auth.Principal)
	return p, ok && p != nil
}

// UserIDFromContext returns the caller's user id, or uuid.Nil and false for
// anonymous requests.
func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	p, ok := PrincipalFromContext(ctx)
	if !ok {
		return uuid.Nil, false
	}
	return p.ID, true
}
