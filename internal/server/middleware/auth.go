package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gosuda/ideaboard/internal/auth"
)

// Auth rejects requests without a valid access token. The token is read from
// the Authorization header, or from the "token" query parameter for
// transports that cannot set headers (browser WebSocket, EventSource).
func Auth(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tok := extractToken(r); tok != "" {
				if p, err := auth.Authenticate(jwtSecret, tok); err == nil {
					next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
					return
				}
			}

			writeUnauthorized(w)
		})
	}
}

// OptionalAuth attaches a principal when a valid token is present and lets
// the request through anonymously otherwise. A present but invalid token is
// still rejected.
func OptionalAuth(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok := extractToken(r)
			if tok == "" {
				next.ServeHTTP(w, r)
				return
			}

			p, err := auth.Authenticate(jwtSecret, tok)
			if err != nil {
				writeUnauthorized(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p *auth.Principal) context.Context {
	return context.WithValue(ctx, ContextKeyPrincipal, p)
}

func extractToken(r *http.Request) string {
	if tok := extractBearer(r); tok != "" {
		return tok
	}
	return r.URL.Query().Get("token")
}

func extractBearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"title":"Unauthorized","status":401,"detail":"missing or invalid credentials"}`))
}
