package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/osiastedian/syshub/libs/auth"
)

// TokenGenerator produces opaque bearer secrets (refresh and reset tokens)
// together with the hash that is stored.
type TokenGenerator interface {
	New() (token string, hash string, err error)
}

type DefaultTokenGenerator struct{}

func (DefaultTokenGenerator) New() (string, string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(buf)
	return token, HashToken(token), nil
}

func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

type Signer struct {
	Secret    []byte
	Issuer    string
	AccessTTL time.Duration
	ReauthTTL time.Duration
}

// Access signs the login credential for a session.
func (s Signer) Access(userID, sessionID string, now time.Time) (string, error) {
	return auth.Sign(auth.Claims{
		Roles:     []string{"user"},
		Scopes:    []string{"read", "write"},
		SessionID: sessionID,
		Purpose:   auth.PurposeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.Issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.AccessTTL)),
		},
	}, s.Secret)
}

// Reauth signs a short-lived proof that the password was just re-entered
// within the given session.
func (s Signer) Reauth(userID, sessionID string, now time.Time) (string, error) {
	return auth.Sign(auth.Claims{
		SessionID: sessionID,
		Purpose:   auth.PurposeReauth,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.Issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ReauthTTL)),
		},
	}, s.Secret)
}
