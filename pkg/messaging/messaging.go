// Package messaging is the broker-neutral side of the saga transport:
// publishing, consuming with manual acknowledgement, bounded retries and
// dead-lettering. pkg/messaging/kafka binds it to Kafka.
package messaging

import (
	"context"
)

type Message struct {
	Queue   string
	Key     string
	Payload []byte
	Headers map[string]string
}

type Publisher interface {
	Publish(ctx context.Context, msgs ...Message) error
}

// Delivery is a message handed to a consumer together with its position in
// the queue. Attempt starts at 1 and grows with every retry.
type Delivery struct {
	Message
	Partition int
	Offset    int64
	Attempt   int
}

type Handler func(ctx context.Context, d Delivery) error

// Source is the consume side of a broker binding. Fetch blocks until a
// delivery is available; Ack marks it (and everything before it on the same
// partition) as processed.
type Source interface {
	Fetch(ctx context.Context) (Delivery, error)
	Ack(ctx context.Context, d Delivery) error
	Close() error
}

func cloneHeaders(h map[string]string) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}
