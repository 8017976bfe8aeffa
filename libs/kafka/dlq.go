package kafka

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
)

// Dead-letter reasons.
const (
	ReasonEmpty         = "empty"
	ReasonDecode        = "decode"
	ReasonValidation    = "validation"
	ReasonMaxAttempts   = "max_attempts"
	ReasonPublishFailed = "publish_failed"
)

// Dead-letter sources.
const (
	SourceConsume = "consume"
	SourcePublish = "publish"
)

// RejectError marks a message that will never succeed and must skip retries.
type RejectError struct {
	Err    error
	Reason string
}

func (e *RejectError) Error() string {
	if e == nil {
		return ""
	}
	if e.Reason == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *RejectError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Reject wraps err so the consumer dead-letters the message immediately.
func Reject(err error, reason string) error {
	if err == nil {
		return nil
	}
	return &RejectError{Err: err, Reason: reason}
}

// DeadLetter is the record written to TopicDeadLetter. The event fields are
// lifted from the failed payload's envelope so operators can find the
// affected user without decoding the body.
type DeadLetter struct {
	Source        string          `json:"source"`
	Topic         string          `json:"topic"`
	Partition     int32           `json:"partition,omitempty"`
	Offset        int64           `json:"offset,omitempty"`
	Key           string          `json:"key,omitempty"`
	EventID       string          `json:"event_id,omitempty"`
	EventType     string          `json:"event_type,omitempty"`
	EventVersion  int             `json:"event_version,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	UserID        string          `json:"user_id,omitempty"`
	Reason        string          `json:"reason"`
	Error         string          `json:"error"`
	Attempts      int             `json:"attempts"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	RawPayload    []byte          `json:"raw_payload,omitempty"`
	FailedAt      time.Time       `json:"failed_at"`
}

// eventHeader matches the leading fields every syshub event shares.
type eventHeader struct {
	Envelope
	UserID string `json:"user_id"`
}

func (d *DeadLetter) attach(raw []byte) {
	if len(raw) == 0 {
		return
	}
	if !json.Valid(raw) {
		d.RawPayload = raw
		return
	}
	d.Payload = json.RawMessage(raw)
	var header eventHeader
	if err := json.Unmarshal(raw, &header); err != nil {
		return
	}
	d.EventID = header.EventID
	d.EventType = header.EventType
	d.EventVersion = header.EventVersion
	d.CorrelationID = header.CorrelationID
	d.UserID = header.UserID
}

// ConsumedDeadLetter describes a consumed message that exhausted its handler.
func ConsumedDeadLetter(msg *sarama.ConsumerMessage, err error, attempts int, now time.Time) DeadLetter {
	d := DeadLetter{
		Source:   SourceConsume,
		Reason:   ReasonMaxAttempts,
		Attempts: attempts,
		FailedAt: now.UTC(),
	}
	if err != nil {
		d.Error = err.Error()
		var rejected *RejectError
		if errors.As(err, &rejected) {
			d.Reason = rejected.Reason
			if rejected.Err != nil {
				d.Error = rejected.Err.Error()
			}
		}
	}
	if msg == nil {
		return d
	}
	d.Topic = msg.Topic
	d.Partition = msg.Partition
	d.Offset = msg.Offset
	d.Key = string(msg.Key)
	d.attach(msg.Value)
	return d
}

// PublishedDeadLetter describes an event the primary producer could not deliver.
func PublishedDeadLetter(topic, key string, value any, err error, now time.Time) DeadLetter {
	d := DeadLetter{
		Source:   SourcePublish,
		Topic:    topic,
		Key:      key,
		Reason:   ReasonPublishFailed,
		Attempts: 1,
		FailedAt: now.UTC(),
	}
	if err != nil {
		d.Error = err.Error()
	}
	if value == nil {
		return d
	}
	raw, marshalErr := json.Marshal(value)
	if marshalErr != nil {
		d.RawPayload = []byte(fmt.Sprintf("%v", value))
		return d
	}
	d.attach(raw)
	return d
}
