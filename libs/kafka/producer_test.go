package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
)

type stubPublisher struct {
	mu    sync.Mutex
	calls []publishCall
	err   error
}

type publishCall struct {
	topic string
	key   string
	value any
}

func (s *stubPublisher) PublishJSON(_ context.Context, topic, key string, value any) (int32, int64, error) {
	s.mu.Lock()
	s.calls = append(s.calls, publishCall{topic: topic, key: key, value: value})
	s.mu.Unlock()
	return 0, 0, s.err
}

func (s *stubPublisher) Close() error { return nil }

func voteEvent(t *testing.T, proposalID, userID string) ProposalVotedEvent {
	t.Helper()
	env, err := NewEnvelope(TopicProposalVoted, 1, "req-"+proposalID)
	if err != nil {
		t.Fatalf("envelope: %v", err)
	}
	return ProposalVotedEvent{
		Envelope:    env,
		ProposalID:  proposalID,
		UserID:      userID,
		Outcome:     "yes",
		Masternodes: []string{"sentry-1", "sentry-2"},
	}
}

func TestFailedVotePublishIsDeadLetteredWithVoter(t *testing.T) {
	primary := &stubPublisher{err: errors.New("broker unavailable")}
	dlq := &stubPublisher{}
	publisher := NewDLQPublisher(primary, dlq, TopicDeadLetter, slog.Default())

	proposalID := uuid.NewString()
	voter := uuid.NewString()
	event := voteEvent(t, proposalID, voter)

	if _, _, err := publisher.PublishJSON(context.Background(), TopicProposalVoted, proposalID, event); err == nil {
		t.Fatalf("expected publish error")
	}
	if len(dlq.calls) != 1 {
		t.Fatalf("expected one dead letter, got %d", len(dlq.calls))
	}
	call := dlq.calls[0]
	if call.topic != TopicDeadLetter || call.key != proposalID {
		t.Fatalf("unexpected dead letter route %s/%s", call.topic, call.key)
	}
	letter, ok := call.value.(DeadLetter)
	if !ok {
		t.Fatalf("expected DeadLetter, got %T", call.value)
	}
	if letter.Source != SourcePublish || letter.Reason != ReasonPublishFailed {
		t.Fatalf("unexpected source/reason %s/%s", letter.Source, letter.Reason)
	}
	if letter.Topic != TopicProposalVoted || letter.EventType != TopicProposalVoted {
		t.Fatalf("expected proposal.voted, got topic=%s type=%s", letter.Topic, letter.EventType)
	}
	if letter.UserID != voter {
		t.Fatalf("expected voter %s, got %s", voter, letter.UserID)
	}
	if letter.EventID != event.EventID || letter.CorrelationID != "req-"+proposalID {
		t.Fatalf("envelope not carried: %+v", letter)
	}
	if letter.Error != "broker unavailable" {
		t.Fatalf("unexpected error %q", letter.Error)
	}

	var replay ProposalVotedEvent
	if err := json.Unmarshal(letter.Payload, &replay); err != nil {
		t.Fatalf("payload should replay: %v", err)
	}
	if replay.ProposalID != proposalID || len(replay.Masternodes) != 2 {
		t.Fatalf("unexpected replayed event %+v", replay)
	}
}

func TestTwoFactorChangePublishSkipsDeadLetter(t *testing.T) {
	primary := &stubPublisher{}
	dlq := &stubPublisher{}
	publisher := NewDLQPublisher(primary, dlq, TopicDeadLetter, slog.Default())

	userID := uuid.NewString()
	env, err := NewEnvelope(TopicTwoFactorChanged, 1, "")
	if err != nil {
		t.Fatalf("envelope: %v", err)
	}
	event := TwoFactorChangedEvent{Envelope: env, UserID: userID, GAuthEnabled: true}

	if _, _, err := publisher.PublishJSON(context.Background(), TopicTwoFactorChanged, userID, event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(primary.calls) != 1 || primary.calls[0].key != userID {
		t.Fatalf("expected event keyed by user, got %+v", primary.calls)
	}
	if len(dlq.calls) != 0 {
		t.Fatalf("expected no dead letter, got %d", len(dlq.calls))
	}
}

func TestDeadLetterKeepsUnencodableValue(t *testing.T) {
	letter := PublishedDeadLetter(TopicUserDeleted, "u-1", make(chan int), errors.New("encode"), fixedNow)
	if letter.Payload != nil {
		t.Fatalf("expected no json payload, got %s", letter.Payload)
	}
	if len(letter.RawPayload) == 0 {
		t.Fatalf("expected raw payload fallback")
	}
	if letter.EventType != "" || letter.UserID != "" {
		t.Fatalf("expected no event fields, got %+v", letter)
	}
	if !letter.FailedAt.Equal(fixedNow) {
		t.Fatalf("unexpected failed_at %s", letter.FailedAt)
	}
}
