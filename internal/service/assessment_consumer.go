package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-gradebook-api/pkg/events"
)

// AssessmentEventConsumer drops cached grade views when new scores are recorded.
type AssessmentEventConsumer struct {
	subscriber message.Subscriber
	topic      string
	cache      *CacheService
	metrics    *MetricsService
	logger     *zap.Logger
}

// NewAssessmentEventConsumer constructs the consumer.
func NewAssessmentEventConsumer(subscriber message.Subscriber, topic string, cache *CacheService, metrics *MetricsService, logger *zap.Logger) *AssessmentEventConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssessmentEventConsumer{subscriber: subscriber, topic: topic, cache: cache, metrics: metrics, logger: logger}
}

// Run consumes until ctx is cancelled or the subscription closes. Every message is acked:
// a malformed event cannot succeed on redelivery, and a failed invalidation is bounded by the cache TTL.
func (c *AssessmentEventConsumer) Run(ctx context.Context) error {
	messages, err := c.subscriber.Subscribe(ctx, c.topic)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", c.topic, err)
	}
	c.logger.Info("assessment consumer started", zap.String("topic", c.topic))
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			err := c.Handle(ctx, msg.Payload)
			c.metrics.RecordEvent(c.topic, err == nil)
			if err != nil {
				c.logger.Warn("assessment event not applied", zap.String("message_id", msg.UUID), zap.Error(err))
			}
			msg.Ack()
		}
	}
}

// Handle applies one assessment.recorded payload.
func (c *AssessmentEventConsumer) Handle(ctx context.Context, payload []byte) error {
	var event events.AssessmentRecorded
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("decode assessment event: %w", err)
	}
	if event.TenantID == "" || event.StudentID == "" {
		return fmt.Errorf("assessment event missing tenant or student")
	}
	if err := c.cache.Invalidate(ctx, studentPatterns(event.TenantID, event.StudentID, event.ClassID)...); err != nil {
		return err
	}
	c.logger.Debug("invalidated student grade cache", zap.String("tenant_id", event.TenantID), zap.String("student_id", event.StudentID))
	return nil
}
