package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/marcuspat/devxplatform/internal/platform/httpx"
)

type claimsContextKey struct{}

// ContextWithClaims stores verified claims in context.
func ContextWithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey{}, claims)
}

// ClaimsFromContext extracts verified claims from context.
func ClaimsFromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(claimsContextKey{}).(*Claims)
	return claims
}

// RequireAuth rejects requests lacking a valid bearer token.
func RequireAuth(tokens *TokenManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" || !strings.HasPrefix(header, "Bearer ") {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing bearer token")
				return
			}
			claims, err := tokens.Parse(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithClaims(r.Context(), claims)))
		})
	}
}
