package outbox

import (
	"context"
	"log/slog"

	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/messaging"
	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/tracing"
)

type Dispatcher struct {
	log       *slog.Logger
	publisher messaging.Publisher
}

func NewDispatcher(log *slog.Logger, publisher messaging.Publisher) *Dispatcher {
	return &Dispatcher{log: log, publisher: publisher}
}

// Dispatch publishes e under the trace it was enqueued in.
func (d *Dispatcher) Dispatch(ctx context.Context, e Event) error {
	ctx = tracing.ExtractHeaders(ctx, e.Headers)
	msg := messaging.Message{
		Queue:   e.Queue,
		Key:     e.Key,
		Payload: e.Payload,
		Headers: e.Headers,
	}
	if err := d.publisher.Publish(ctx, msg); err != nil {
		d.log.ErrorContext(ctx, "outbox dispatch failed", "event_id", e.ID, "queue", e.Queue, "err", err)
		return err
	}
	d.log.InfoContext(ctx, "outbox dispatched", "event_id", e.ID, "queue", e.Queue, "key", e.Key)
	return nil
}
