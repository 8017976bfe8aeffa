package kafka

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	TopicUserDeleted            = "user.deleted"
	TopicTwoFactorChanged       = "twofactor.changed"
	TopicPasswordResetRequested = "auth.password_reset_requested"
	TopicProposalVoted          = "proposal.voted"
	TopicDeadLetter             = "dead_letter"
)

type Envelope struct {
	EventID       string    `json:"event_id"`
	EventType     string    `json:"event_type"`
	EventVersion  int       `json:"event_version"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// UserDeletedEvent is published once the user row and everything it owns are gone.
type UserDeletedEvent struct {
	Envelope
	UserID string `json:"user_id"`
}

type TwoFactorChangedEvent struct {
	Envelope
	UserID       string `json:"user_id"`
	SMSEnabled   bool   `json:"sms_enabled"`
	GAuthEnabled bool   `json:"gauth_enabled"`
}

// PasswordResetRequestedEvent carries the raw reset token; the mailer is the only consumer.
type PasswordResetRequestedEvent struct {
	Envelope
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type ProposalVotedEvent struct {
	Envelope
	ProposalID  string   `json:"proposal_id"`
	UserID      string   `json:"user_id"`
	Outcome     string   `json:"outcome"`
	Masternodes []string `json:"masternodes"`
}

func NewEnvelope(eventType string, version int, correlationID string) (Envelope, error) {
	if eventType == "" {
		return Envelope{}, fmt.Errorf("event_type is required")
	}
	if version <= 0 {
		return Envelope{}, fmt.Errorf("event_version must be positive")
	}

	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  version,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
	}, nil
}

// DeterministicEventID derives a stable id so retried publishes deduplicate downstream.
func DeterministicEventID(parts ...string) string {
	joined := strings.Join(parts, "|")
	if joined == "" {
		return uuid.Nil.String()
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(joined)).String()
}

func (e Envelope) Validate() error {
	if e.EventID == "" {
		return fmt.Errorf("event_id is required")
	}
	if e.EventType == "" {
		return fmt.Errorf("event_type is required")
	}
	if e.EventVersion <= 0 {
		return fmt.Errorf("event_version must be positive")
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}
	return nil
}
