package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// Logical event names emitted by the core. An external delivery subsystem
// (webhooks, websockets) fans these out; the core never blocks on delivery.
const (
	AccountCreated       = "account.created"
	AccountClosed        = "account.closed"
	TransactionCreated   = "transaction.created"
	TransactionCompleted = "transaction.completed"
	TransactionFailed    = "transaction.failed"
)

// Topic is the Kafka topic all ledger events are published to.
const Topic = "ledger.events"

// Event is a logical domain event.
type Event struct {
	Name         string         `json:"name"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id"`
	Payload      map[string]any `json:"payload,omitempty"`
	OccurredAt   time.Time      `json:"occurred_at"`
}

// Publisher delivers events to downstream systems.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Kafka publishes events to a Kafka topic.
type Kafka struct {
	writer *kafka.Writer
}

// NewKafka constructs a Kafka publisher for the provided brokers.
func NewKafka(brokers []string) *Kafka {
	return &Kafka{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    Topic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

// Publish writes the event keyed by resource id so events for one resource
// stay ordered within a partition.
func (p *Kafka) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.ResourceID),
		Value: data,
	})
}

// Close releases the underlying writer.
func (p *Kafka) Close() error {
	return p.writer.Close()
}

// Logger is a stub publisher that writes events to the structured logger.
// Used in development and tests when no brokers are configured.
type Logger struct {
	logger *slog.Logger
}

// NewLogger constructs a logging publisher.
func NewLogger(logger *slog.Logger) *Logger {
	return &Logger{logger: logger}
}

// Publish writes the event to the logger.
func (p *Logger) Publish(_ context.Context, event Event) error {
	if p == nil || p.logger == nil {
		return nil
	}
	p.logger.Info("event", "name", event.Name, "resource_type", event.ResourceType, "resource_id", event.ResourceID)
	return nil
}
