package consumers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	kafkaadapter "voicebroker/internal/adapters/kafka"
	"voicebroker/internal/domain/analytics"
	"voicebroker/internal/events"
	"voicebroker/internal/metrics"
	"voicebroker/pkg/errors"
	"voicebroker/pkg/logger"
)

// MessageSource delivers Kafka messages to a handler until ctx is cancelled
type MessageSource interface {
	Consume(ctx context.Context, handler kafkaadapter.MessageHandler) error
	Close() error
}

// AnalyticsStore buffers analytics rows and flushes them in the background
type AnalyticsStore interface {
	Store(ctx context.Context, r *analytics.SessionRecord) error
	Start(ctx context.Context)
	Stop(ctx context.Context) error
}

// SessionAnalyticsConsumer reads session ended events and writes them to ClickHouse in batches
type SessionAnalyticsConsumer struct {
	source MessageSource
	store  AnalyticsStore
	log    *logger.Logger
}

// NewSessionAnalyticsConsumer creates a new session analytics consumer
func NewSessionAnalyticsConsumer(source MessageSource, store AnalyticsStore) *SessionAnalyticsConsumer {
	return &SessionAnalyticsConsumer{
		source: source,
		store:  store,
		log:    logger.Get().With("component", "session_analytics_consumer"),
	}
}

// Start consumes until ctx is cancelled, then flushes the batch writer and closes the reader
func (c *SessionAnalyticsConsumer) Start(ctx context.Context) error {
	c.log.Info("Starting session analytics consumer")

	c.store.Start(ctx)

	defer func() {
		if err := c.source.Close(); err != nil {
			c.log.Errorw("Failed to close session analytics consumer", "error", err)
		}
	}()

	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.store.Stop(stopCtx); err != nil {
			c.log.Errorw("Failed to stop session analytics batch writer", "error", err)
		}
	}()

	err := c.source.Consume(ctx, c.handleMessage)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// handleMessage converts one ended event into an analytics row
func (c *SessionAnalyticsConsumer) handleMessage(ctx context.Context, msg kafka.Message) (err error) {
	defer func() { metrics.RecordKafkaMessage(msg.Topic, "consume", err) }()

	var ev events.SessionEndedEvent
	if err = json.Unmarshal(msg.Value, &ev); err != nil {
		return errors.Wrap(err, "unmarshal session ended event")
	}
	if ev.SessionID == "" {
		return errors.Wrap(errors.ErrInvalidInput, "session ended event without session id")
	}

	duration := ev.DurationSeconds
	if duration < 0 {
		duration = 0
	}

	rec := &analytics.SessionRecord{
		EventID:         ev.ID,
		SessionID:       ev.SessionID,
		UserID:          ev.UserID,
		AgentID:         ev.AgentID,
		ClientType:      ev.ClientType,
		Status:          ev.Status,
		Reason:          ev.Reason,
		StartTime:       ev.StartTime,
		EndTime:         ev.EndTime,
		DurationSeconds: uint32(duration),
		UsageDate:       ev.UsageDate,
		CreatedAt:       time.Now().UTC(),
	}

	if err = c.store.Store(ctx, rec); err != nil {
		return errors.Wrap(err, "failed to store session analytics")
	}

	c.log.Debugw("Session analytics buffered", "session_id", ev.SessionID, "agent_id", ev.AgentID)
	return nil
}
