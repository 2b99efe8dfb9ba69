package middleware

import (
	"context"
	"net/http"
	"strings"

	"pickupd/internal/model"
)

type contextKey string

const ClaimsKey contextKey = "claims"

// TokenValidator checks bearer tokens
type TokenValidator interface {
	ValidateToken(token string) (*model.PlayerClaims, error)
}

// AuthMiddleware provides JWT authentication middleware
type AuthMiddleware struct {
	auth TokenValidator
}

// NewAuthMiddleware creates a new auth middleware
func NewAuthMiddleware(auth TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{auth: auth}
}

// RequireAdmin validates the bearer token and requires an admin role
func (m *AuthMiddleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractBearerToken(r)
		if token == "" {
			http.Error(w, `{"error":"missing authorization header"}`, http.StatusUnauthorized)
			return
		}

		claims, err := m.auth.ValidateToken(token)
		if err != nil {
			http.Error(w, `{"error":"invalid or expired token"}`, http.StatusUnauthorized)
			return
		}
		if !claims.IsAdmin() {
			http.Error(w, `{"error":"admin role required"}`, http.StatusForbidden)
			return
		}

		ctx := context.WithValue(r.Context(), ClaimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetClaims extracts the authenticated claims from context
func GetClaims(ctx context.Context) *model.PlayerClaims {
	if v, ok := ctx.Value(ClaimsKey).(*model.PlayerClaims); ok {
		return v
	}
	return nil
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}
