package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/messaging"
)

// Loop is a supervised consumer for one topic. Each restart opens a new
// Reader, so deliveries the failed run fetched but never acked are fetched
// again from the last committed offset.
type Loop struct {
	log     *slog.Logger
	source  SourceConfig
	dead    messaging.Publisher
	handler messaging.Handler
	cfg     messaging.Config
	opts    []messaging.Option
	current atomic.Pointer[messaging.Consumer]
}

func NewLoop(log *slog.Logger, source SourceConfig, dead messaging.Publisher, handler messaging.Handler, cfg messaging.Config, opts ...messaging.Option) *Loop {
	if cfg.Queue == "" {
		cfg.Queue = source.Topic
	}
	if source.Prefetch == 0 {
		source.Prefetch = cfg.Prefetch
	}
	return &Loop{log: log, source: source, dead: dead, handler: handler, cfg: cfg, opts: opts}
}

func (l *Loop) Queue() string { return l.cfg.Queue }

// Running reports whether the current consumer run is active.
func (l *Loop) Running() bool {
	c := l.current.Load()
	return c != nil && c.Running()
}

// Check adapts Running to a health check.
func (l *Loop) Check() error {
	if !l.Running() {
		return fmt.Errorf("consumer for %s is not running", l.cfg.Queue)
	}
	return nil
}

func (l *Loop) Run(ctx context.Context) error {
	return messaging.Supervise(ctx, l.log, "consumer "+l.cfg.Queue, func(ctx context.Context) error {
		src := NewSource(l.source)
		defer func() {
			if err := src.Close(); err != nil {
				l.log.Warn("close reader", "queue", l.cfg.Queue, "err", err)
			}
		}()
		c := messaging.NewConsumer(l.log, src, l.dead, l.handler, l.cfg, l.opts...)
		l.current.Store(c)
		return c.Run(ctx)
	})
}
