// Package middleware provides HTTP middleware for the ArtStore APIs.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/artstore/artstore/internal/logger"
	"github.com/artstore/artstore/pkg/api"
	"github.com/artstore/artstore/pkg/auth"
)

// Context key type for storing claims
type contextKey string

const claimsContextKey contextKey = "claims"

// GetClaimsFromContext retrieves JWT claims from the request context.
// Returns nil if no claims are present.
//
// This function should only be called within API handler code that runs
// after the JWTAuth middleware has processed the request. If called before
// authentication, or in routes without JWTAuth middleware, it will return
// nil.
func GetClaimsFromContext(ctx context.Context) *auth.Claims {
	claims, ok := ctx.Value(claimsContextKey).(*auth.Claims)
	if !ok {
		return nil
	}
	return claims
}

// WithClaims stores claims in the context. Exposed for handler tests.
func WithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}

// extractBearerToken extracts the token from a Bearer Authorization header.
// Returns the token string and true if successful, or empty string and false
// if not.
func extractBearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}

	return parts[1], true
}

// JWTAuth validates Bearer tokens in the Authorization header.
// If valid, the claims are stored in the request context and the logger
// context picks up the token subject. If invalid or missing, responds
// 401 with a problem document.
func JWTAuth(verifier *auth.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := extractBearerToken(r)
			if !ok {
				api.Unauthorized(w, "authorization header required")
				return
			}

			claims, err := verifier.Verify(r.Context(), tokenString)
			if err != nil {
				api.Unauthorized(w, "invalid or expired token")
				return
			}

			ctx := WithClaims(r.Context(), claims)
			if lc := logger.FromContext(ctx); lc != nil {
				ctx = logger.WithContext(ctx, lc.WithSubject(claims.Subject))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole blocks principals whose role claim ranks below min.
// Must be used after JWTAuth middleware.
func RequireRole(min string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetClaimsFromContext(r.Context())
			if claims == nil {
				api.Unauthorized(w, "authentication required")
				return
			}

			if !auth.RoleAtLeast(claims.Role, min) {
				api.Forbidden(w, min+" role required")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdminUser blocks service accounts. Interactive endpoints (password
// change, admin-user management) accept admin-user tokens only.
// Must be used after JWTAuth middleware.
func RequireAdminUser() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetClaimsFromContext(r.Context())
			if claims == nil {
				api.Unauthorized(w, "authentication required")
				return
			}

			if !claims.IsAdminUser() {
				api.Forbidden(w, "admin user access required")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// OptionalJWTAuth is like JWTAuth but doesn't require authentication.
// If a valid token is present, claims are stored in context.
// If no token or invalid token, request continues without claims.
func OptionalJWTAuth(verifier *auth.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := extractBearerToken(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := verifier.Verify(r.Context(), tokenString)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			ctx := WithClaims(r.Context(), claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
