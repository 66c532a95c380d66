package middleware

import (
	"context"
	"net/http"

	"github.com/sogshop/storefront/internal/models"
)

type contextKey int

const contextKeyAuthPayload contextKey = iota

const authCookieName = "auth_token"

// TokenVerifier verifies session tokens.
type TokenVerifier interface {
	VerifyToken(tokenString string) (*models.TokenPayload, error)
}

// OptionalAuth attaches the verified identity to the context when an auth
// cookie is present and valid, and passes through otherwise. Guest checkout
// depends on the pass-through.
func OptionalAuth(ts TokenVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(authCookieName)
			if err == nil {
				if payload, err := ts.VerifyToken(cookie.Value); err == nil {
					r = r.WithContext(context.WithValue(r.Context(), contextKeyAuthPayload, payload))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAuth rejects requests without a valid auth cookie.
func RequireAuth(ts TokenVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(authCookieName)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			payload, err := ts.VerifyToken(cookie.Value)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), contextKeyAuthPayload, payload)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AuthPayload extracts the verified identity from the context, if any.
func AuthPayload(ctx context.Context) (*models.TokenPayload, bool) {
	payload, ok := ctx.Value(contextKeyAuthPayload).(*models.TokenPayload)
	return payload, ok
}

// WithAuthPayload returns a context carrying the given identity. Used by
// handler tests.
func WithAuthPayload(ctx context.Context, payload *models.TokenPayload) context.Context {
	return context.WithValue(ctx, contextKeyAuthPayload, payload)
}
