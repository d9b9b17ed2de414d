// Package events publishes generation outcomes to Kafka so downstream
// consumers (cache warmers, search indexers) learn about new thumbnails.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/jamesainslie/pregen/pkg/pregen/logging"
	"github.com/jamesainslie/pregen/pkg/pregen/metrics"
)

var logger = logging.Get("events")

// Event types.
const (
	TypeGenerated = "thumbnail.generated"
	TypeFailed    = "thumbnail.failed"
)

// DefaultTopic is used when no topic is configured.
const DefaultTopic = "pregen.thumbnails"

// ErrNoBrokers is returned when Kafka publishing is requested without brokers.
var ErrNoBrokers = errors.New("no kafka brokers configured")

// Event describes the outcome of one generation attempt.
type Event struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	Time         time.Time `json:"time"`
	Collection   string    `json:"collection"`
	OriginalKey  string    `json:"original_key"`
	ThumbnailKey string    `json:"thumbnail_key,omitempty"`
	Scale        int       `json:"scale"`
	Size         int64     `json:"size,omitempty"`
	ContentType  string    `json:"content_type,omitempty"`
	Error        string    `json:"error,omitempty"`
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Nop discards events.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, Event) error { return nil }

// Close implements Publisher.
func (Nop) Close() error { return nil }

// Config configures the Kafka publisher.
type Config struct {
	Brokers      []string
	Topic        string
	BatchTimeout time.Duration
}

// messageWriter is the subset of *kafka.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes events as JSON messages keyed by original key, so every
// event for one original lands on the same partition.
type Kafka struct {
	w       messageWriter
	topic   string
	metrics *metrics.Metrics
}

// NewKafka creates a synchronous Kafka publisher.
func NewKafka(cfg Config, m *metrics.Metrics) (*Kafka, error) {
	if len(cfg.Brokers) == 0 {
		return nil, ErrNoBrokers
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 10 * time.Millisecond
	}

	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           cfg.BatchTimeout,
		AllowAutoTopicCreation: true,
	}
	logger.Debug("kafka publisher created", "brokers", cfg.Brokers, "topic", cfg.Topic)
	return &Kafka{w: w, topic: cfg.Topic, metrics: m}, nil
}

// Topic returns the destination topic.
func (k *Kafka) Topic() string { return k.topic }

// Publish implements Publisher. ID and Time are filled in when empty.
func (k *Kafka) Publish(ctx context.Context, e Event) error {
	msg, err := toMessage(e)
	if err != nil {
		return err
	}
	err = k.w.WriteMessages(ctx, msg)
	k.metrics.EventPublished(err)
	if err != nil {
		return fmt.Errorf("publishing %s for %s: %w", e.Type, e.OriginalKey, err)
	}
	return nil
}

// Close flushes pending messages and closes the writer.
func (k *Kafka) Close() error {
	return k.w.Close()
}

func toMessage(e Event) (kafka.Message, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(e.OriginalKey),
		Value: data,
		Time:  e.Time,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(e.Type)},
		},
	}, nil
}
