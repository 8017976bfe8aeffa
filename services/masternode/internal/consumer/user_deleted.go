package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/IBM/sarama"
	"github.com/google/uuid"

	"github.com/osiastedian/syshub/libs/kafka"
	"github.com/osiastedian/syshub/services/masternode/internal/handlers"
)

type Store interface {
	ReleaseOwner(ctx context.Context, ownerID uuid.UUID) (int64, error)
}

// UserDeletedConsumer frees masternodes whose owner account is gone. The user
// service already releases them in its own transaction; this covers rows
// registered between that commit and the event.
type UserDeletedConsumer struct {
	store   Store
	logger  *slog.Logger
	metrics *handlers.Metrics
}

func NewUserDeletedConsumer(store Store, logger *slog.Logger, metrics *handlers.Metrics) *UserDeletedConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserDeletedConsumer{store: store, logger: logger, metrics: metrics}
}

func (c *UserDeletedConsumer) HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	if msg == nil || len(msg.Value) == 0 {
		return kafka.Reject(fmt.Errorf("empty kafka message"), kafka.ReasonEmpty)
	}

	var event kafka.UserDeletedEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return kafka.Reject(fmt.Errorf("decode user.deleted: %w", err), kafka.ReasonDecode)
	}
	ownerID, err := validate(event)
	if err != nil {
		return kafka.Reject(err, kafka.ReasonValidation)
	}

	released, err := c.store.ReleaseOwner(ctx, ownerID)
	if err != nil {
		return err
	}
	if released > 0 {
		c.logger.Info("masternodes released", "user_id", ownerID, "count", released, "event_id", event.EventID)
		if c.metrics != nil {
			c.metrics.Released.Add(float64(released))
		}
	}
	return nil
}

func validate(event kafka.UserDeletedEvent) (uuid.UUID, error) {
	if err := event.Envelope.Validate(); err != nil {
		return uuid.Nil, err
	}
	if event.EventType != kafka.TopicUserDeleted {
		return uuid.Nil, fmt.Errorf("unexpected event_type: %s", event.EventType)
	}
	id := strings.TrimSpace(event.UserID)
	if id == "" {
		return uuid.Nil, fmt.Errorf("user_id is required")
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid user_id")
	}
	return parsed, nil
}
