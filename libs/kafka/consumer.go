package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"log/slog"
)

type MessageHandler interface {
	HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error
}

type Consumer struct {
	group        sarama.ConsumerGroup
	logger       *slog.Logger
	dlqPublisher Publisher
	dlqTopic     string
	maxAttempts  int
}

type ConsumerOption func(*Consumer)

// WithDLQ routes poison messages to topic after maxAttempts failed deliveries.
func WithDLQ(publisher Publisher, topic string, maxAttempts int) ConsumerOption {
	return func(c *Consumer) {
		c.dlqPublisher = publisher
		c.dlqTopic = topic
		if maxAttempts > 0 {
			c.maxAttempts = maxAttempts
		}
	}
}

func NewConsumer(brokers []string, groupID string, logger *slog.Logger, opts ...ConsumerOption) (*Consumer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers required")
	}
	if groupID == "" {
		return nil, fmt.Errorf("kafka consumer group required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V3_6_0_0
	cfg.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRange()}
	cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	cfg.Consumer.Group.Session.Timeout = 30 * time.Second
	cfg.Consumer.Group.Heartbeat.Interval = 3 * time.Second
	cfg.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(brokers, groupID, cfg)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer group: %w", err)
	}

	c := &Consumer{
		group:       group,
		logger:      logger,
		maxAttempts: 3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Consumer) Consume(ctx context.Context, topics []string, handler MessageHandler) error {
	if handler == nil {
		return fmt.Errorf("message handler required")
	}

	cgHandler := &consumerGroupHandler{
		handler:      handler,
		logger:       c.logger,
		dlqPublisher: c.dlqPublisher,
		dlqTopic:     c.dlqTopic,
		retryTracker: newRetryTracker(c.maxAttempts, 10*time.Minute),
	}

	for {
		if err := c.group.Consume(ctx, topics, cgHandler); err != nil {
			c.logger.Error("kafka consume error", "error", err)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			time.Sleep(2 * time.Second)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (c *Consumer) Close() error {
	if c.group == nil {
		return nil
	}
	return c.group.Close()
}

type consumerGroupHandler struct {
	handler      MessageHandler
	logger       *slog.Logger
	dlqPublisher Publisher
	dlqTopic     string
	retryTracker *retryTracker
}

func (h *consumerGroupHandler) Setup(_ sarama.ConsumerGroupSession) error   { return nil }
func (h *consumerGroupHandler) Cleanup(_ sarama.ConsumerGroupSession) error { return nil }

func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		err := h.handler.HandleMessage(session.Context(), msg)
		if err == nil {
			h.retryTracker.forget(msg)
			session.MarkMessage(msg, "")
			continue
		}

		var rejected *RejectError
		attempts := h.retryTracker.record(msg)
		if !errors.As(err, &rejected) && attempts < h.retryTracker.max {
			h.logger.Warn("kafka message handler error", "topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "attempt", attempts, "error", err)
			continue
		}

		letter := ConsumedDeadLetter(msg, err, attempts, time.Now())
		h.logger.Error("kafka message dead-lettered", "topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "event_type", letter.EventType, "user_id", letter.UserID, "reason", letter.Reason, "error", err)
		if h.dlqPublisher != nil && h.dlqTopic != "" {
			if _, _, pubErr := h.dlqPublisher.PublishJSON(session.Context(), h.dlqTopic, string(msg.Key), letter); pubErr != nil {
				h.logger.Error("dlq publish failed", "topic", h.dlqTopic, "error", pubErr)
			}
		}
		h.retryTracker.forget(msg)
		session.MarkMessage(msg, "")
	}
	return nil
}

type retryKey struct {
	topic     string
	partition int32
	offset    int64
}

type retryEntry struct {
	attempts int
	seen     time.Time
}

type retryTracker struct {
	mu      sync.Mutex
	max     int
	ttl     time.Duration
	entries map[retryKey]*retryEntry
}

func newRetryTracker(max int, ttl time.Duration) *retryTracker {
	if max <= 0 {
		max = 1
	}
	return &retryTracker{max: max, ttl: ttl, entries: map[retryKey]*retryEntry{}}
}

func (r *retryTracker) record(msg *sarama.ConsumerMessage) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	for k, e := range r.entries {
		if now.Sub(e.seen) > r.ttl {
			delete(r.entries, k)
		}
	}

	key := retryKey{topic: msg.Topic, partition: msg.Partition, offset: msg.Offset}
	e, ok := r.entries[key]
	if !ok {
		e = &retryEntry{}
		r.entries[key] = e
	}
	e.attempts++
	e.seen = now
	return e.attempts
}

func (r *retryTracker) forget(msg *sarama.ConsumerMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, retryKey{topic: msg.Topic, partition: msg.Partition, offset: msg.Offset})
}
