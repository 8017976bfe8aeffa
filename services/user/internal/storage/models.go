package storage

import (
	"time"

	"github.com/google/uuid"

	"github.com/osiastedian/syshub/libs/challenge"
)

type User struct {
	ID            uuid.UUID
	Email         string
	PasswordHash  string
	Status        string
	Phone         *string
	VotingAddress *string
	SMSEnabled    bool
	GAuthEnabled  bool
	TOTPSecret    *string
	CreatedAt     time.Time
}

func (u *User) Factors() challenge.Factors {
	f := challenge.Factors{SMS: u.SMSEnabled, GAuth: u.GAuthEnabled}
	if u.TOTPSecret != nil {
		f.Secret = *u.TOTPSecret
	}
	return f
}

// UserUpdate lists the columns to change; nil fields are left alone. An empty
// string clears Phone, VotingAddress or TOTPSecret.
type UserUpdate struct {
	Phone         *string
	VotingAddress *string
	SMSEnabled    *bool
	GAuthEnabled  *bool
	TOTPSecret    *string
}

func (u UserUpdate) Empty() bool {
	return u.Phone == nil && u.VotingAddress == nil && u.SMSEnabled == nil && u.GAuthEnabled == nil && u.TOTPSecret == nil
}

// Deletion reports what went with a deleted account.
type Deletion struct {
	MasternodesReleased int64
	VotesRemoved        int64
}

// AuditLog captures a read or write on the user's own record.
type AuditLog struct {
	ActorID    uuid.UUID
	ActorType  string
	Action     string
	EntityType string
	EntityID   *uuid.UUID
	IP         string
	UserAgent  string
}

// SMSOnly is the factor set used to confirm a phone before SMS verification
// is switched on.
func SMSOnly() challenge.Factors {
	return challenge.Factors{SMS: true}
}
