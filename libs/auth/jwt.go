package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrStaleReauth  = errors.New("re-authentication expired")
)

const (
	PurposeAccess = "access"
	PurposeReauth = "reauth"
)

// Claims is shared by the identity service (which signs) and every backend
// service (which verifies). SessionID ties a reauth token to the login session
// that requested it.
type Claims struct {
	Roles     []string `json:"roles"`
	Scopes    []string `json:"scopes"`
	SessionID string   `json:"sid"`
	Purpose   string   `json:"purpose"`
	jwt.RegisteredClaims
}

func Sign(claims Claims, secret []byte) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

func ParseJWT(tokenString string, secret []byte) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, ErrInvalidToken
		}
		return secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// VerifyReauth checks that a reauth token belongs to the same user and login
// session as the access token and was issued no longer than maxAge ago.
func VerifyReauth(tokenString string, secret []byte, subject, sessionID string, maxAge time.Duration, now time.Time) error {
	claims, err := ParseJWT(tokenString, secret)
	if err != nil {
		return err
	}
	if claims.Purpose != PurposeReauth || claims.Subject != subject {
		return ErrInvalidToken
	}
	if sessionID == "" || claims.SessionID != sessionID {
		return ErrInvalidToken
	}
	if claims.IssuedAt == nil || now.Sub(claims.IssuedAt.Time) > maxAge {
		return ErrStaleReauth
	}
	return nil
}

func ExtractBearer(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
