package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	otelkafka "github.com/Trendyol/otel-kafka-konsumer"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/rl1809/event-inventory/internal/core/domain"
)

const (
	BatchTimeout = 10 * time.Millisecond
	BatchSize    = 1
	clientID     = "event-inventory"
)

// MessageProducer is satisfied by the traced kafka writer.
type MessageProducer interface {
	WriteMessage(ctx context.Context, msg kafka.Message) error
	Close() error
}

type movementMessage struct {
	ID            string    `json:"id"`
	ItemID        string    `json:"item_id"`
	QuantityMoved int       `json:"quantity_moved"`
	MovementType  string    `json:"movement_type"`
	EventID       string    `json:"event_id"`
	Timestamp     time.Time `json:"timestamp"`
}

// MovementPublisher streams movement records to a Kafka topic, keyed by item
// so every change to one item lands on the same partition in order.
type MovementPublisher struct {
	producer MessageProducer
}

func NewMovementPublisher(producer MessageProducer) *MovementPublisher {
	return &MovementPublisher{producer: producer}
}

// NewKafkaMovementPublisher builds a traced writer for topic on broker.
func NewKafkaMovementPublisher(broker, topic string, tp trace.TracerProvider) (*MovementPublisher, error) {
	baseWriter := &kafka.Writer{
		Addr:         kafka.TCP(broker),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: BatchTimeout,
		BatchSize:    BatchSize,
	}

	writer, err := otelkafka.NewWriter(baseWriter,
		otelkafka.WithTracerProvider(tp),
		otelkafka.WithPropagator(propagation.TraceContext{}),
		otelkafka.WithAttributes(
			[]attribute.KeyValue{
				attribute.String("messaging.destination.name", topic),
				attribute.String("messaging.kafka.client_id", clientID),
			},
		),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka writer: %w", err)
	}
	return NewMovementPublisher(writer), nil
}

// Append publishes one record. WriteMessage is used instead of the batch
// variant so the trace context travels with each message.
func (p *MovementPublisher) Append(ctx context.Context, record domain.MovementRecord) error {
	payload, err := json.Marshal(movementMessage{
		ID:            record.ID,
		ItemID:        record.ItemID,
		QuantityMoved: record.QuantityMoved,
		MovementType:  string(record.MovementType),
		EventID:       record.EventID,
		Timestamp:     record.Timestamp.UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode movement: %w", err)
	}

	err = p.producer.WriteMessage(ctx, kafka.Message{
		Key:   []byte(record.ItemID),
		Value: payload,
	})
	if err != nil {
		return fmt.Errorf("publish movement %s: %w", record.ID, err)
	}
	return nil
}

func (p *MovementPublisher) Close() error {
	return p.producer.Close()
}
