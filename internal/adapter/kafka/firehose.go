// Package kafka publishes every stored or merged event to a Kafka topic for
// downstream consumers. The firehose is an optional persister; it shares the
// store's best-effort async write path.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/greyledger/sitrep/internal/domain"
)

// Firehose produces event messages to a Kafka topic. It implements
// store.Persister.
type Firehose struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewFirehose creates a Kafka producer for the event topic.
func NewFirehose(brokers []string, topic string, logger *slog.Logger) *Firehose {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Firehose{writer: w, logger: logger}
}

// Persist serializes and publishes one event. Messages are keyed by event ID
// so per-event merge updates stay ordered within a partition.
func (f *Firehose) Persist(ctx context.Context, event domain.Event) error {
	msg, err := serializeToMessage(event)
	if err != nil {
		return err
	}
	return f.writer.WriteMessages(ctx, msg)
}

func (f *Firehose) Close() error {
	return f.writer.Close()
}

// serializeToMessage marshals an Event into a Kafka message.
func serializeToMessage(event domain.Event) (kafkago.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(event.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "category", Value: []byte(event.Category)},
			{Key: "source_class", Value: []byte(event.Class)},
			{Key: "last_seen", Value: []byte(event.LastSeen.Format(time.RFC3339))},
		},
	}, nil
}
