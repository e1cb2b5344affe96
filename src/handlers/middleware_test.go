package handlers

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/tradeclarity/backend/src/logger"
	"github.com/username/tradeclarity/backend/src/security"
)

func TestMain(m *testing.M) {
	logger.InitLogger("error")
	os.Exit(m.Run())
}

// computeChain builds the exact middleware stack the compute route uses:
// internal-key exemption around CSRF, then auth-or-internal-key.
func computeChain(authService *security.AuthService, csrfAuthKey []byte, handlerReached *bool, seenUserID *string) http.Handler {
	authMiddleware := NewAuthMiddleware(authService)
	final := func(w http.ResponseWriter, r *http.Request) {
		*handlerReached = true
		if seenUserID != nil {
			*seenUserID, _ = GetUserIDFromContext(r.Context())
		}
		w.WriteHeader(http.StatusOK)
	}
	return CSRFExemptInternal(CSRFMiddleware(csrfAuthKey), authMiddleware.RequireOrInternal(final))
}

func TestComputeChain_InternalKeyBypassesCSRF(t *testing.T) {
	authService := security.NewAuthService("test-jwt-secret", "internal-key")
	reached := false
	var userID string
	chain := computeChain(authService, []byte("csrf-auth-key-32-bytes-long!!!!!"), &reached, &userID)

	req := httptest.NewRequest(http.MethodPost, "/api/analytics/compute", nil)
	req.Header.Set("X-Internal-Key", "internal-key")
	rec := httptest.NewRecorder()
	chain.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, reached, "an internal-key caller carries no CSRF cookie and must still get through")
	assert.Empty(t, userID, "internal callers have no user in context")
}

func TestComputeChain_InvalidInternalKeyRejected(t *testing.T) {
	authService := security.NewAuthService("test-jwt-secret", "internal-key")
	reached := false
	chain := computeChain(authService, []byte("csrf-auth-key-32-bytes-long!!!!!"), &reached, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/analytics/compute", nil)
	req.Header.Set("X-Internal-Key", "wrong-key")
	rec := httptest.NewRecorder()
	chain.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, reached)
}

func TestComputeChain_BrowserRequestStillNeedsCSRF(t *testing.T) {
	authService := security.NewAuthService("test-jwt-secret", "internal-key")
	reached := false
	chain := computeChain(authService, []byte("csrf-auth-key-32-bytes-long!!!!!"), &reached, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/analytics/compute", nil)
	rec := httptest.NewRecorder()
	chain.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, reached)
}

func TestComputeChain_BrowserRequestWithTokenAndCSRF(t *testing.T) {
	authService := security.NewAuthService("test-jwt-secret", "internal-key")
	reached := false
	var userID string
	chain := computeChain(authService, []byte("csrf-auth-key-32-bytes-long!!!!!"), &reached, &userID)

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "user-1"}).
		SignedString([]byte("test-jwt-secret"))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/analytics/compute", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	req.Header.Set("X-CSRF-Token", "double-submit-token")
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "double-submit-token"})
	rec := httptest.NewRecorder()
	chain.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, reached)
	assert.Equal(t, "user-1", userID)
}
