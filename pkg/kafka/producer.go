// Package kafka publishes issue lifecycle events.
package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"

	"github.com/hostelops/warden/pkg/metrics"
	"github.com/hostelops/warden/pkg/tracing"
)

// Issue event types.
const (
	EventIssueCreated       = "issue.created"
	EventIssueStatusChanged = "issue.status_changed"
	EventIssuesMerged       = "issue.merged"
)

// IssueEvent is the wire format for issue lifecycle events.
type IssueEvent struct {
	EventType      string          `json:"event_type"`
	IssueID        string          `json:"issue_id"`
	Category       string          `json:"category,omitempty"`
	Status         string          `json:"status,omitempty"`
	ActorID        string          `json:"actor_id,omitempty"`
	MergedIssueIDs []string        `json:"merged_issue_ids,omitempty"`
	Data           json.RawMessage `json:"data,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
}

// Producer handles Kafka event emission
type Producer struct {
	writer *kafka.Writer
	logger ectologger.Logger
	topic  string
}

// ProducerConfig holds Kafka producer configuration
type ProducerConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int
	Compression  string
}

var compressionCodecs = map[string]kafka.Compression{
	"snappy": kafka.Snappy,
	"gzip":   kafka.Gzip,
	"lz4":    kafka.Lz4,
	"zstd":   kafka.Zstd,
	"none":   0,
}

// NewProducer creates a new Kafka producer. Unknown compression names
// fall back to snappy.
func NewProducer(cfg ProducerConfig, logger ectologger.Logger) *Producer {
	compression, ok := compressionCodecs[cfg.Compression]
	if !ok {
		compression = kafka.Snappy
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.LeastBytes{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:            compression,
		AllowAutoTopicCreation: true,
	}

	return &Producer{
		writer: writer,
		logger: logger,
		topic:  cfg.Topic,
	}
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// PublishIssueEvent publishes an issue event to Kafka, keyed by issue ID
// so events for one issue stay ordered within a partition.
func (p *Producer) PublishIssueEvent(ctx context.Context, event *IssueEvent) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishIssueEvent")
	defer span.End()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Topic: p.topic,
		Key:   []byte(event.IssueID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}
	if traceparent := tracing.GetTraceParent(ctx); traceparent != "" {
		msg.Headers = append(msg.Headers, kafka.Header{Key: "traceparent", Value: []byte(traceparent)})
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		metrics.RecordKafkaPublish(p.topic, "error")
		p.logger.WithContext(ctx).WithError(err).Error("Failed to publish issue event")
		return err
	}
	metrics.RecordKafkaPublish(p.topic, "success")

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"event_type": event.EventType,
		"issue_id":   event.IssueID,
	}).Debug("Published issue event")

	return nil
}
