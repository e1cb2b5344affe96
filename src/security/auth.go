package security

import (
	"crypto/subtle"
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// AuthService validates session tokens issued by the managed auth backend.
// Token issuance (signup, login, refresh) lives with that backend; this
// service only verifies the HS256 signature and extracts the subject.
type AuthService struct {
	jwtSecret          string
	internalServiceKey string
}

func NewAuthService(jwtSecret, internalServiceKey string) *AuthService {
	return &AuthService{
		jwtSecret:          jwtSecret,
		internalServiceKey: internalServiceKey,
	}
}

// ValidateToken returns the user id carried in the token's 'sub' claim.
func (a *AuthService) ValidateToken(tokenString string) (string, error) {
	if a.jwtSecret == "" {
		return "", errors.New("JWT secret not configured")
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(a.jwtSecret), nil
	})
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", errors.New("invalid token")
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", errors.New("invalid token: 'sub' claim missing or not a string")
	}
	return sub, nil
}

// ValidateInternalKey checks a service-to-service key in constant time.
// An empty configured key disables internal access entirely.
func (a *AuthService) ValidateInternalKey(presented string) bool {
	if a.internalServiceKey == "" || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a.internalServiceKey), []byte(presented)) == 1
}
