package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/BradenHooton/springboard/internal/models"
	pkghttp "github.com/BradenHooton/springboard/pkg/http"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	// UserContextKey is the key for storing the authenticated user in context
	UserContextKey contextKey = "user"
)

// UserRepository is the lookup the middleware needs to resolve a token subject.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// AuthMiddleware resolves the access token from the Authorization header or
// the access_token cookie and injects the current user into the context.
func AuthMiddleware(tm *TokenManager, users UserRepository, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := ExtractAccessToken(r)
			if tokenString == "" {
				pkghttp.WriteError(w, http.StatusUnauthorized, "invalid_token", "Could not validate credentials")
				return
			}

			claims, ok := tm.Verify(tokenString)
			// Refresh tokens are only accepted by /auth/refresh
			if !ok || claims.Type != models.TokenTypeAccess {
				pkghttp.WriteError(w, http.StatusUnauthorized, "invalid_token", "Could not validate credentials")
				return
			}

			user, err := users.GetByID(r.Context(), claims.Subject)
			if err != nil {
				if errors.Is(err, models.ErrNotFound) {
					pkghttp.WriteError(w, http.StatusUnauthorized, "invalid_token", "Could not validate credentials")
					return
				}
				logger.Error("failed to resolve token subject", slog.Any("error", err))
				pkghttp.WriteInternalError(w, "Internal server error")
				return
			}
			if user.IsDeleted {
				pkghttp.WriteError(w, http.StatusUnauthorized, "invalid_token", "Could not validate credentials")
				return
			}
			if !user.IsActive {
				pkghttp.WriteError(w, http.StatusForbidden, "account_inactive", "Inactive user")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// ExtractAccessToken prefers a Bearer Authorization header and falls back to
// the access_token cookie.
func ExtractAccessToken(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	return GetCookieValue(r, AccessTokenCookie)
}

// RequireAdmin rejects requests whose authenticated user is not an admin.
// Must be mounted after AuthMiddleware.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := GetUserFromContext(r)
		if user == nil {
			pkghttp.WriteError(w, http.StatusUnauthorized, "invalid_token", "Could not validate credentials")
			return
		}
		if !user.IsAdmin() {
			pkghttp.WriteForbidden(w, "Not enough permissions")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// WithUser stores user in ctx.
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, UserContextKey, user)
}

// GetUserFromContext extracts the authenticated user from request context
func GetUserFromContext(r *http.Request) *models.User {
	user, ok := r.Context().Value(UserContextKey).(*models.User)
	if !ok {
		return nil
	}
	return user
}
