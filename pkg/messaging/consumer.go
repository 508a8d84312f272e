package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/tracing"
)

const (
	HeaderError         = "x-error"
	HeaderAttempts      = "x-attempts"
	HeaderOriginalQueue = "x-original-queue"
)

const (
	OutcomeAck        = "ack"
	OutcomeDrop       = "drop"
	OutcomeDeadLetter = "dead_letter"
)

type Config struct {
	Queue           string
	DeadLetterQueue string
	// Prefetch bounds how many fetched deliveries wait for the handler.
	Prefetch       int
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	AckTimeout     time.Duration
}

func (c Config) withDefaults() Config {
	if c.DeadLetterQueue == "" {
		c.DeadLetterQueue = c.Queue + ".dlq"
	}
	if c.Prefetch <= 0 {
		c.Prefetch = 16
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 200 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 10 * time.Second
	}
	if c.AckTimeout <= 0 {
		c.AckTimeout = 5 * time.Second
	}
	return c
}

// Observer receives one call per finished delivery.
type Observer interface {
	Observe(queue, outcome string, took time.Duration)
}

type Option func(*Consumer)

func WithObserver(o Observer) Option {
	return func(c *Consumer) { c.observer = o }
}

type noopObserver struct{}

func (noopObserver) Observe(string, string, time.Duration) {}

// Consumer drives one queue: a fetch goroutine fills a bounded buffer and a
// single processing loop handles deliveries in order, acking each only after
// the handler succeeded, dropped it, or it was dead-lettered.
type Consumer struct {
	log      *slog.Logger
	source   Source
	dead     Publisher
	handler  Handler
	cfg      Config
	observer Observer
	tracer   trace.Tracer
	running  atomic.Bool
}

func NewConsumer(log *slog.Logger, source Source, dead Publisher, handler Handler, cfg Config, opts ...Option) *Consumer {
	cfg = cfg.withDefaults()
	c := &Consumer{
		log:      log.With("queue", cfg.Queue),
		source:   source,
		dead:     dead,
		handler:  handler,
		cfg:      cfg,
		observer: noopObserver{},
		tracer:   otel.Tracer("github.com/dmehra2102/Order-Fulfillment-Saga/pkg/messaging"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Consumer) Queue() string { return c.cfg.Queue }

// Running reports whether Run is currently active.
func (c *Consumer) Running() bool { return c.running.Load() }

// Run consumes until ctx is cancelled or the source fails. On cancellation
// the delivery being handled is finished and acked; buffered deliveries that
// were not started stay unacked and are redelivered later.
func (c *Consumer) Run(ctx context.Context) error {
	c.running.Store(true)
	defer c.running.Store(false)

	fetchCtx, stop := context.WithCancel(ctx)
	defer stop()

	buf := make(chan Delivery, c.cfg.Prefetch)
	fetchErr := make(chan error, 1)
	go func() {
		defer close(buf)
		for {
			d, err := c.source.Fetch(fetchCtx)
			if err != nil {
				if fetchCtx.Err() == nil {
					fetchErr <- err
				}
				return
			}
			select {
			case buf <- d:
			case <-fetchCtx.Done():
				return
			}
		}
	}()

	c.log.Info("consumer started", "prefetch", c.cfg.Prefetch, "max_attempts", c.cfg.MaxAttempts)
	for {
		select {
		case <-ctx.Done():
			c.log.Info("consumer stopping")
			return nil
		case d, ok := <-buf:
			if !ok {
				select {
				case err := <-fetchErr:
					return fmt.Errorf("fetch %s: %w", c.cfg.Queue, err)
				default:
					return nil
				}
			}
			if ctx.Err() != nil {
				c.log.Info("consumer stopping")
				return nil
			}
			if err := c.process(ctx, d); err != nil {
				return err
			}
		}
	}
}

func (c *Consumer) process(ctx context.Context, d Delivery) error {
	start := time.Now()

	hctx := tracing.ExtractHeaders(context.WithoutCancel(ctx), d.Headers)
	hctx, span := c.tracer.Start(hctx, "consume "+c.cfg.Queue,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.destination.name", c.cfg.Queue),
			attribute.String("messaging.message.key", d.Key),
			attribute.Int("messaging.kafka.partition", d.Partition),
			attribute.Int64("messaging.kafka.offset", d.Offset),
		),
	)
	defer span.End()

	attempts, err := c.handle(ctx, hctx, d)
	span.SetAttributes(attribute.Int("messaging.attempts", attempts))

	outcome := OutcomeAck
	switch {
	case err == nil:
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		c.log.InfoContext(hctx, "retry interrupted by shutdown, leaving delivery unacked",
			"offset", d.Offset, "attempts", attempts)
		return nil
	case IsDrop(err):
		outcome = OutcomeDrop
		c.log.WarnContext(hctx, "dropping delivery", "offset", d.Offset, "key", d.Key, "err", err)
	default:
		outcome = OutcomeDeadLetter
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if dlqErr := c.deadLetter(hctx, d, attempts, err); dlqErr != nil {
			c.log.ErrorContext(hctx, "dead-letter publish failed", "offset", d.Offset, "err", dlqErr)
			return fmt.Errorf("dead-letter %s offset %d: %w", c.cfg.Queue, d.Offset, dlqErr)
		}
		c.log.ErrorContext(hctx, "delivery dead-lettered",
			"offset", d.Offset, "key", d.Key, "attempts", attempts, "dlq", c.cfg.DeadLetterQueue, "err", err)
	}

	ackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.AckTimeout)
	defer cancel()
	if err := c.source.Ack(ackCtx, d); err != nil {
		return fmt.Errorf("ack %s offset %d: %w", c.cfg.Queue, d.Offset, err)
	}
	c.observer.Observe(c.cfg.Queue, outcome, time.Since(start))
	return nil
}

// handle runs the handler with exponential backoff. Retry waits stop early
// when ctx is cancelled; the handler itself always runs on hctx, which is
// detached from cancellation.
func (c *Consumer) handle(ctx, hctx context.Context, d Delivery) (int, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.InitialBackoff
	b.MaxInterval = c.cfg.MaxBackoff
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.cfg.MaxAttempts-1)), ctx)

	attempts := 0
	op := func() error {
		attempts++
		d.Attempt = attempts
		err := c.invoke(hctx, d)
		if err != nil && (IsDrop(err) || IsPermanent(err)) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		c.log.WarnContext(hctx, "handler failed, retrying",
			"offset", d.Offset, "attempt", attempts, "retry_in", wait, "err", err)
	}
	err := backoff.RetryNotify(op, policy, notify)
	return attempts, err
}

func (c *Consumer) invoke(ctx context.Context, d Delivery) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return c.handler(ctx, d)
}

func (c *Consumer) deadLetter(ctx context.Context, d Delivery, attempts int, cause error) error {
	headers := cloneHeaders(d.Headers)
	headers[HeaderError] = cause.Error()
	headers[HeaderAttempts] = strconv.Itoa(attempts)
	headers[HeaderOriginalQueue] = c.cfg.Queue
	return c.dead.Publish(ctx, Message{
		Queue:   c.cfg.DeadLetterQueue,
		Key:     d.Key,
		Payload: d.Payload,
		Headers: headers,
	})
}
