package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// KafkaClickPublisher publishes ClickRecorded events to Kafka. It
// satisfies the click sink interface so the accountant can hand clicks
// to Kafka instead of incrementing the store directly; a separate
// consumer applies them.
type KafkaClickPublisher struct {
	writer *kafka.Writer
	topic  string
}

func NewKafkaClickPublisher(brokers []string, topic string) *KafkaClickPublisher {
	return &KafkaClickPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.LeastBytes{},
			BatchTimeout:           10 * time.Millisecond,
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
		},
		topic: topic,
	}
}

func (p *KafkaClickPublisher) Apply(ctx context.Context, code string, at time.Time) error {
	event := ClickRecorded{
		EventID:    uuid.NewString(),
		Code:       code,
		OccurredAt: at.UTC().Format(time.RFC3339Nano),
	}
	value, err := json.Marshal(event)
	if err != nil {
		return err
	}

	tracer := otel.Tracer("click-publisher")
	ctx, span := tracer.Start(
		ctx,
		"kafka.publish.click_recorded",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination.name", p.topic),
			attribute.String("messaging.operation", "publish"),
			attribute.String("messaging.message.id", event.EventID),
			attribute.String("messaging.kafka.message_key", code),
		),
	)
	defer span.End()

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(code),
		Value:   value,
		Time:    at.UTC(),
		Headers: carrierToKafkaHeaders(carrier),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "kafka publish failed")
		return err
	}
	return nil
}

func (p *KafkaClickPublisher) Close() error {
	return p.writer.Close()
}

func carrierToKafkaHeaders(carrier propagation.MapCarrier) []kafka.Header {
	headers := make([]kafka.Header, 0, len(carrier))
	for _, key := range carrier.Keys() {
		headers = append(headers, kafka.Header{
			Key:   key,
			Value: []byte(carrier.Get(key)),
		})
	}
	return headers
}
