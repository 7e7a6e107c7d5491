package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/moolen/vigil/internal/logging"
)

// Publisher tees audit entries onto a Kafka topic for downstream reporting
// while delegating persistence and idempotency to the wrapped trail.
// Publishing is best-effort: a broker failure never fails the append.
type Publisher struct {
	inner  Trail
	writer *kafka.Writer
	logger *logging.Logger
}

// NewPublisher wraps a trail with a Kafka mirror.
func NewPublisher(inner Trail, brokers []string, topic string) *Publisher {
	return &Publisher{
		inner: inner,
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
		logger: logging.GetLogger("audit.publisher"),
	}
}

// Append persists the entry via the wrapped trail, then mirrors it.
func (p *Publisher) Append(entry Entry) error {
	if err := p.inner.Append(entry); err != nil {
		return err
	}

	data, err := json.Marshal(entry)
	if err != nil {
		p.logger.ErrorWithErr("failed to marshal audit entry for publish", err)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(entry.CustomerID),
		Value: data,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.ErrorWithErr("failed to publish audit entry for customer %s", err, entry.CustomerID)
	}
	return nil
}

// Seen delegates to the wrapped trail.
func (p *Publisher) Seen(customerID, correlationID string) bool {
	return p.inner.Seen(customerID, correlationID)
}

// Close closes the Kafka writer and the wrapped trail.
func (p *Publisher) Close() error {
	if err := p.writer.Close(); err != nil {
		p.logger.ErrorWithErr("failed to close kafka writer", err)
	}
	return p.inner.Close()
}
