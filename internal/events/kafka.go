package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/helixir/paper-search-service/internal/domain"
)

// DefaultSource identifies this service in emitted events.
const DefaultSource = "paper-search-service"

// MessageWriter is the subset of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConfig configures a KafkaPublisher.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	Source       string
}

// KafkaPublisher writes events to a Kafka topic.
type KafkaPublisher struct {
	writer MessageWriter
	source string
	logger zerolog.Logger
}

// NewKafkaPublisher creates a publisher backed by a kafka.Writer.
func NewKafkaPublisher(cfg KafkaConfig, logger zerolog.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: false,
	}
	return NewKafkaPublisherWithWriter(writer, cfg.Source, logger)
}

// NewKafkaPublisherWithWriter creates a publisher over an existing writer.
func NewKafkaPublisherWithWriter(writer MessageWriter, source string, logger zerolog.Logger) *KafkaPublisher {
	if source == "" {
		source = DefaultSource
	}
	return &KafkaPublisher{
		writer: writer,
		source: source,
		logger: logger.With().Str("component", "event_publisher").Logger(),
	}
}

func (p *KafkaPublisher) PublishSearchCompleted(ctx context.Context, resp *domain.SearchResponse) error {
	event := NewSearchCompletedEvent(p.source, resp)
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.ProjectID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "event_id", Value: []byte(event.EventID)},
		},
		Time: event.OccurredAt,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write %s event: %w", event.EventType, err)
	}

	p.logger.Debug().
		Str("event_id", event.EventID).
		Str("project_id", event.ProjectID).
		Int("paper_count", event.PaperCount).
		Msg("search event published")
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
