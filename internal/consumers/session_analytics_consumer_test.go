package consumers

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kafkaadapter "voicebroker/internal/adapters/kafka"
	"voicebroker/internal/domain/analytics"
	"voicebroker/internal/domain/session"
	"voicebroker/internal/events"
)

type recordingStore struct {
	mu      sync.Mutex
	records []*analytics.SessionRecord
	started bool
	stopped bool
}

func (s *recordingStore) Store(_ context.Context, r *analytics.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, r)
	return nil
}

func (s *recordingStore) Start(context.Context) { s.started = true }

func (s *recordingStore) Stop(context.Context) error {
	s.stopped = true
	return nil
}

// sliceSource replays fixed messages and then waits for cancellation
type sliceSource struct {
	messages []kafka.Message
	closed   bool
}

func (s *sliceSource) Consume(ctx context.Context, handler kafkaadapter.MessageHandler) error {
	for _, msg := range s.messages {
		_ = handler(ctx, msg)
	}
	<-ctx.Done()
	return ctx.Err()
}

func (s *sliceSource) Close() error {
	s.closed = true
	return nil
}

func endedMessage(t *testing.T) kafka.Message {
	t.Helper()

	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(42 * time.Second)
	s := &session.Session{
		ID:              "s-1",
		UserID:          "user-1",
		AgentID:         "assistant",
		ClientType:      session.ClientWeb,
		Status:          session.StatusEnded,
		StartTime:       start,
		EndTime:         &end,
		DurationSeconds: 42,
	}

	data, err := json.Marshal(events.NewSessionEndedEvent(s, events.ReasonClient, "2026-03-01"))
	require.NoError(t, err)
	return kafka.Message{Topic: kafkaadapter.TopicSessionEnded, Value: data}
}

func TestSessionAnalyticsConsumer_BuffersEndedEvents(t *testing.T) {
	store := &recordingStore{}
	source := &sliceSource{messages: []kafka.Message{
		endedMessage(t),
		{Topic: kafkaadapter.TopicSessionEnded, Value: []byte("not json")},
		{Topic: kafkaadapter.TopicSessionEnded, Value: []byte(`{"type":"session.ended"}`)},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	consumer := NewSessionAnalyticsConsumer(source, store)
	go func() { done <- consumer.Start(ctx) }()

	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.records) == 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	assert.True(t, store.started)
	assert.True(t, store.stopped)
	assert.True(t, source.closed)

	rec := store.records[0]
	assert.Equal(t, "s-1", rec.SessionID)
	assert.Equal(t, uint32(42), rec.DurationSeconds)
	assert.Equal(t, "client", rec.Reason)
	assert.Equal(t, "2026-03-01", rec.UsageDate)
}
