package storage

import (
	"time"

	"github.com/google/uuid"

	"github.com/osiastedian/syshub/libs/challenge"
)

type User struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	Status       string
	SMSEnabled   bool
	GAuthEnabled bool
	TOTPSecret   *string
	Phone        *string
}

func (u *User) Factors() challenge.Factors {
	f := challenge.Factors{SMS: u.SMSEnabled, GAuth: u.GAuthEnabled}
	if u.TOTPSecret != nil {
		f.Secret = *u.TOTPSecret
	}
	return f
}

type RefreshToken struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	SessionID uuid.UUID
	TokenHash string
	ExpiresAt time.Time
	RevokedAt *time.Time
}

// AuditLog records a security-relevant action.
type AuditLog struct {
	ActorID   uuid.UUID
	Action    string
	EntityID  *uuid.UUID
	IP        string
	UserAgent string
}
