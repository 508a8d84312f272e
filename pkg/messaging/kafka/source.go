package kafka

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/messaging"
)

type SourceConfig struct {
	Brokers  []string
	Topic    string
	GroupID  string
	Prefetch int
}

// Source reads one topic as part of a consumer group. Offsets are committed
// only through Ack.
type Source struct {
	r *kafka.Reader
}

func NewSource(cfg SourceConfig) *Source {
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 16
	}
	return &Source{
		r: kafka.NewReader(kafka.ReaderConfig{
			Brokers:        cfg.Brokers,
			Topic:          cfg.Topic,
			GroupID:        cfg.GroupID,
			QueueCapacity:  cfg.Prefetch,
			StartOffset:    kafka.FirstOffset,
			MinBytes:       1,
			MaxBytes:       10e6,
			MaxWait:        500 * time.Millisecond,
			CommitInterval: 0,
		}),
	}
}

func (s *Source) Fetch(ctx context.Context) (messaging.Delivery, error) {
	m, err := s.r.FetchMessage(ctx)
	if err != nil {
		return messaging.Delivery{}, err
	}
	return messaging.Delivery{
		Message: messaging.Message{
			Queue:   m.Topic,
			Key:     string(m.Key),
			Payload: m.Value,
			Headers: fromKafkaHeaders(m.Headers),
		},
		Partition: m.Partition,
		Offset:    m.Offset,
	}, nil
}

func (s *Source) Ack(ctx context.Context, d messaging.Delivery) error {
	return s.r.CommitMessages(ctx, kafka.Message{
		Topic:     d.Queue,
		Partition: d.Partition,
		Offset:    d.Offset,
	})
}

func (s *Source) Close() error {
	return s.r.Close()
}
