package outbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/messaging"
	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/tracing"
)

type Enqueuer interface {
	Enqueue(ctx context.Context, msgs ...messaging.Message) error
}

// FallbackPublisher publishes straight to the broker and, when that fails,
// parks the messages in the outbox for the relay. By default the broker
// error is still returned so callers can report the delay.
type FallbackPublisher struct {
	log        *slog.Logger
	primary    messaging.Publisher
	outbox     Enqueuer
	parkedIsOK bool
}

type FallbackOption func(*FallbackPublisher)

// ParkedAsSent makes Publish succeed once the messages are in the outbox.
// Consumers use it so a broker outage does not turn into redelivered input
// and duplicate output.
func ParkedAsSent() FallbackOption {
	return func(p *FallbackPublisher) { p.parkedIsOK = true }
}

func NewFallbackPublisher(log *slog.Logger, primary messaging.Publisher, outbox Enqueuer, opts ...FallbackOption) *FallbackPublisher {
	p := &FallbackPublisher{log: log, primary: primary, outbox: outbox}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *FallbackPublisher) Publish(ctx context.Context, msgs ...messaging.Message) error {
	err := p.primary.Publish(ctx, msgs...)
	if err == nil {
		return nil
	}

	parked := make([]messaging.Message, len(msgs))
	for i, m := range msgs {
		headers := make(map[string]string, len(m.Headers)+2)
		for k, v := range m.Headers {
			headers[k] = v
		}
		m.Headers = tracing.InjectHeaders(ctx, headers)
		parked[i] = m
	}
	if qerr := p.outbox.Enqueue(context.WithoutCancel(ctx), parked...); qerr != nil {
		return errors.Join(err, fmt.Errorf("outbox enqueue: %w", qerr))
	}
	p.log.WarnContext(ctx, "publish failed, queued in outbox", "messages", len(msgs), "err", err)
	if p.parkedIsOK {
		return nil
	}
	return fmt.Errorf("publish deferred to outbox: %w", err)
}
