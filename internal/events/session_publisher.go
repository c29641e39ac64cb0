package events

import (
	"context"

	"voicebroker/internal/adapters/kafka"
	"voicebroker/internal/domain/session"
	"voicebroker/internal/metrics"
	"voicebroker/pkg/logger"
)

const source = "voicebroker"

// Producer is the subset of the Kafka producer the publisher needs
type Producer interface {
	Publish(ctx context.Context, topic string, key string, event interface{}) error
}

// SessionPublisher publishes session lifecycle events. Publishing is best effort:
// failures are logged and counted, never returned.
type SessionPublisher struct {
	producer Producer
	log      *logger.Logger
}

// NewSessionPublisher creates a new session event publisher
func NewSessionPublisher(producer Producer) *SessionPublisher {
	return &SessionPublisher{
		producer: producer,
		log:      logger.Get().With("component", "session_publisher"),
	}
}

// PublishSessionStarted publishes a started event keyed by user id
func (p *SessionPublisher) PublishSessionStarted(ctx context.Context, s *session.Session) {
	p.publish(ctx, kafka.TopicSessionStarted, s.UserID, NewSessionStartedEvent(s))
}

// PublishSessionEnded publishes an ended event keyed by user id
func (p *SessionPublisher) PublishSessionEnded(ctx context.Context, s *session.Session, reason, usageDate string) {
	p.publish(ctx, kafka.TopicSessionEnded, s.UserID, NewSessionEndedEvent(s, reason, usageDate))
}

func (p *SessionPublisher) publish(ctx context.Context, topic, key string, event interface{}) {
	err := p.producer.Publish(ctx, topic, key, event)
	metrics.RecordKafkaMessage(topic, "produce", err)
	if err != nil {
		p.log.Warnw("Failed to publish session event", "topic", topic, "error", err)
	}
}

// NoopPublisher drops every event. Used when Kafka is disabled.
type NoopPublisher struct{}

func (NoopPublisher) PublishSessionStarted(context.Context, *session.Session) {}

func (NoopPublisher) PublishSessionEnded(context.Context, *session.Session, string, string) {}
