package testutil

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/osiastedian/syshub/libs/auth"
)

// Seeded accounts, see cmd/seed.
var (
	DemoUserID   = uuid.MustParse("00000000-0000-0000-0000-000000000001")
	SecureUserID = uuid.MustParse("00000000-0000-0000-0000-000000000002")
)

const (
	DemoEmail    = "demo@example.com"
	SecureEmail  = "secure@example.com"
	SeedPassword = "Sentry-Node-1"
	// SecureTOTPSecret is the authenticator secret of SecureEmail.
	SecureTOTPSecret = "JBSWY3DPEHPK3PXPJBSWY3DPEHPK3PXP"
)

// GenerateJWT signs an access token for userID bound to sessionID.
func GenerateJWT(userID uuid.UUID, sessionID string, secret []byte, ttl time.Duration, now time.Time) (string, error) {
	return auth.Sign(auth.Claims{
		Roles:     []string{"user"},
		Scopes:    []string{"read", "write"},
		SessionID: sessionID,
		Purpose:   auth.PurposeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "syshub-auth",
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}, secret)
}

func GenerateReauthJWT(userID uuid.UUID, sessionID string, secret []byte, issued time.Time) (string, error) {
	return auth.Sign(auth.Claims{
		SessionID: sessionID,
		Purpose:   auth.PurposeReauth,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "syshub-auth",
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(issued.Add(5 * time.Minute)),
		},
	}, secret)
}
