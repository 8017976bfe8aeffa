package kafka

import (
	"context"
	"testing"
)

func TestEnvelopeValidation(t *testing.T) {
	env, err := NewEnvelope(TopicUserDeleted, 1, "corr-1")
	if err != nil {
		t.Fatalf("new envelope: %v", err)
	}
	if err := env.Validate(); err != nil {
		t.Fatalf("expected valid envelope: %v", err)
	}
	if _, err := NewEnvelope("", 1, ""); err == nil {
		t.Fatalf("expected missing type error")
	}
	if _, err := NewEnvelope(TopicUserDeleted, 0, ""); err == nil {
		t.Fatalf("expected version error")
	}
}

func TestDeterministicEventID(t *testing.T) {
	a := DeterministicEventID("user.deleted", "u-1")
	b := DeterministicEventID("user.deleted", "u-1")
	c := DeterministicEventID("user.deleted", "u-2")
	if a != b || a == c {
		t.Fatalf("expected stable distinct ids: %s %s %s", a, b, c)
	}
}

func TestLogPublisherNeverFails(t *testing.T) {
	p := NewLogPublisher(nil)
	if _, _, err := p.PublishJSON(context.Background(), TopicProposalVoted, "p-1", ProposalVotedEvent{ProposalID: "p-1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
