package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-gradebook-api/pkg/config"
)

// Publisher emits JSON encoded domain events.
type Publisher interface {
	Publish(ctx context.Context, topic, eventType string, payload interface{}) error
	Close() error
}

// Bus bundles the broker handles used by the service.
type Bus struct {
	Publisher  Publisher
	Subscriber message.Subscriber
}

// Close releases both sides of the bus.
func (b *Bus) Close() error {
	var firstErr error
	if b.Publisher != nil {
		firstErr = b.Publisher.Close()
	}
	if b.Subscriber != nil {
		if err := b.Subscriber.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// NewBus builds the bus selected by cfg. Disabled events get a no-op publisher and no subscriber.
func NewBus(cfg config.EventsConfig, logger *zap.Logger) (*Bus, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Enabled {
		return &Bus{Publisher: NopPublisher{}}, nil
	}
	adapter := NewZapAdapter(logger)

	switch cfg.Publisher {
	case config.EventsPublisherKafka:
		if len(cfg.KafkaBrokers) == 0 {
			return nil, fmt.Errorf("kafka publisher requires at least one broker")
		}
		pub, err := kafka.NewPublisher(kafka.PublisherConfig{
			Brokers:   cfg.KafkaBrokers,
			Marshaler: kafka.DefaultMarshaler{},
		}, adapter)
		if err != nil {
			return nil, fmt.Errorf("create kafka publisher: %w", err)
		}
		sub, err := kafka.NewSubscriber(kafka.SubscriberConfig{
			Brokers:       cfg.KafkaBrokers,
			Unmarshaler:   kafka.DefaultMarshaler{},
			ConsumerGroup: cfg.ConsumerGroup,
		}, adapter)
		if err != nil {
			_ = pub.Close()
			return nil, fmt.Errorf("create kafka subscriber: %w", err)
		}
		logger.Info("event bus ready", zap.String("publisher", cfg.Publisher), zap.Strings("brokers", cfg.KafkaBrokers))
		return &Bus{Publisher: NewJSONPublisher(pub, logger), Subscriber: sub}, nil
	case config.EventsPublisherMemory, "":
		channel := NewMemoryPubSub(adapter)
		logger.Info("event bus ready", zap.String("publisher", config.EventsPublisherMemory))
		return &Bus{Publisher: NewJSONPublisher(channel, logger), Subscriber: channel}, nil
	default:
		return nil, fmt.Errorf("unknown events publisher %q", cfg.Publisher)
	}
}

// NewMemoryPubSub returns an in-process pub/sub usable as both publisher and subscriber.
func NewMemoryPubSub(logger watermill.LoggerAdapter) *gochannel.GoChannel {
	return gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, logger)
}

// JSONPublisher marshals payloads and forwards them to a watermill publisher.
type JSONPublisher struct {
	publisher message.Publisher
	logger    *zap.Logger
}

// NewJSONPublisher wraps a watermill publisher.
func NewJSONPublisher(publisher message.Publisher, logger *zap.Logger) *JSONPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JSONPublisher{publisher: publisher, logger: logger}
}

// Publish sends payload to topic with the event type and timestamp in metadata.
func (p *JSONPublisher) Publish(ctx context.Context, topic, eventType string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}
	msg := message.NewMessage(uuid.NewString(), body)
	msg.SetContext(ctx)
	msg.Metadata.Set("event_type", eventType)
	msg.Metadata.Set("timestamp", time.Now().UTC().Format(time.RFC3339))
	if err := p.publisher.Publish(topic, msg); err != nil {
		p.logger.Error("failed to publish event", zap.String("topic", topic), zap.String("event_type", eventType), zap.Error(err))
		return fmt.Errorf("publish %s event: %w", eventType, err)
	}
	p.logger.Debug("published event", zap.String("topic", topic), zap.String("event_type", eventType), zap.String("message_id", msg.UUID))
	return nil
}

// Close closes the underlying publisher.
func (p *JSONPublisher) Close() error {
	return p.publisher.Close()
}

// NopPublisher drops every event.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, string, string, interface{}) error { return nil }

// Close implements Publisher.
func (NopPublisher) Close() error { return nil }
