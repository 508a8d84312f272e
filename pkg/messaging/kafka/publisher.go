package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/messaging"
	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/tracing"
)

// Publisher writes messages synchronously, waiting for all in-sync replicas.
// Messages are hashed by key so every message of one order lands on the same
// partition.
type Publisher struct {
	w *kafka.Writer
}

func NewPublisher(brokers []string) *Publisher {
	return &Publisher{
		w: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
			BatchTimeout:           10 * time.Millisecond,
		},
	}
}

func (p *Publisher) Publish(ctx context.Context, msgs ...messaging.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	out := make([]kafka.Message, 0, len(msgs))
	for _, m := range msgs {
		headers := make(map[string]string, len(m.Headers)+2)
		for k, v := range m.Headers {
			headers[k] = v
		}
		out = append(out, kafka.Message{
			Topic:   m.Queue,
			Key:     []byte(m.Key),
			Value:   m.Payload,
			Headers: toKafkaHeaders(tracing.InjectHeaders(ctx, headers)),
		})
	}
	if err := p.w.WriteMessages(ctx, out...); err != nil {
		return fmt.Errorf("kafka write to %s: %w", msgs[0].Queue, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.w.Close()
}

func toKafkaHeaders(h map[string]string) []kafka.Header {
	out := make([]kafka.Header, 0, len(h))
	for k, v := range h {
		out = append(out, kafka.Header{Key: k, Value: []byte(v)})
	}
	return out
}

func fromKafkaHeaders(h []kafka.Header) map[string]string {
	out := make(map[string]string, len(h))
	for _, hh := range h {
		out[hh.Key] = string(hh.Value)
	}
	return out
}
