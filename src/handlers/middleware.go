package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/username/tradeclarity/backend/src/logger"
	"github.com/username/tradeclarity/backend/src/security"
	"github.com/username/tradeclarity/backend/src/utils"
)

type contextKey string

const userIDContextKey contextKey = "userID"

// AuthMiddleware guards routes behind bearer-token authentication. Tokens are
// issued by the managed auth backend; we only verify them here.
type AuthMiddleware struct {
	authService *security.AuthService
}

func NewAuthMiddleware(authService *security.AuthService) *AuthMiddleware {
	return &AuthMiddleware{authService: authService}
}

func (m *AuthMiddleware) Require(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			logger.L.Debug("AuthMiddleware: Authorization header missing", "path", r.URL.Path)
			utils.SendJSONError(w, "Authorization header required", http.StatusUnauthorized)
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == "" {
			logger.L.Debug("AuthMiddleware: Token string empty", "path", r.URL.Path)
			utils.SendJSONError(w, "Malformed token", http.StatusUnauthorized)
			return
		}

		userID, err := m.authService.ValidateToken(tokenString)
		if err != nil {
			logger.L.Warn("AuthMiddleware: Token validation failed", "path", r.URL.Path, "error", err)
			utils.SendJSONError(w, "Invalid or expired token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), userIDContextKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

// RequireOrInternal is like Require but also accepts a service-to-service key
// in the X-Internal-Key header. Internal callers do not carry a user token, so
// the handler must resolve the target user from the request body instead.
func (m *AuthMiddleware) RequireOrInternal(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if key := r.Header.Get("X-Internal-Key"); key != "" {
			if !m.authService.ValidateInternalKey(key) {
				logger.L.Warn("AuthMiddleware: Invalid internal service key", "path", r.URL.Path, "remoteAddr", r.RemoteAddr)
				utils.SendJSONError(w, "Invalid internal service key", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
			return
		}
		m.Require(next).ServeHTTP(w, r)
	}
}

// GetUserIDFromContext pulls the authenticated user id out of the request
// context. ok is false on internal-key requests, which carry no user.
func GetUserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	return userID, ok && userID != ""
}
