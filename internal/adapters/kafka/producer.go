package kafka

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"voicebroker/pkg/errors"
	"voicebroker/pkg/logger"
)

// Producer handles Kafka message publishing
type Producer struct {
	mu           sync.Mutex
	writers      map[string]*kafka.Writer
	brokers      []string
	writeTimeout time.Duration
	log          *logger.Logger
}

// ProducerConfig holds producer configuration
type ProducerConfig struct {
	Brokers      []string
	WriteTimeout time.Duration
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg ProducerConfig) *Producer {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	return &Producer{
		writers:      make(map[string]*kafka.Writer),
		brokers:      cfg.Brokers,
		writeTimeout: cfg.WriteTimeout,
		log:          logger.Get().With("component", "kafka_producer"),
	}
}

func (p *Producer) getWriter(topic string) *kafka.Writer {
	p.mu.Lock()
	defer p.mu.Unlock()

	if w, ok := p.writers[topic]; ok {
		return w
	}

	w := &kafka.Writer{
		Addr:                   kafka.TCP(p.brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{}, // same user lands on the same partition
		WriteTimeout:           p.writeTimeout,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}

	p.writers[topic] = w
	return w
}

// Publish sends a JSON-encoded event to a topic
func (p *Producer) Publish(ctx context.Context, topic string, key string, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "marshal event")
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: data,
		Time:  time.Now(),
	}

	if err := p.getWriter(topic).WriteMessages(ctx, msg); err != nil {
		return errors.Wrapf(err, "publish to %s", topic)
	}

	p.log.Debugw("Published event", "topic", topic, "key", key)
	return nil
}

// Close closes all writers
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs errors.MultiError
	for topic, w := range p.writers {
		if err := w.Close(); err != nil {
			errs.Add(errors.Wrapf(err, "close writer for %s", topic))
		}
	}
	return errs.ToError()
}
