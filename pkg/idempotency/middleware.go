package idempotency

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/messaging"
)

type Recorder interface {
	Key(queue, messageKey string) string
	Seen(ctx context.Context, key string) (bool, error)
	Mark(ctx context.Context, key string) error
}

// Middleware skips deliveries whose key was already recorded. A key is
// recorded only once the handler has returned nil or dropped the delivery,
// so a failed, panicking or abandoned attempt leaves it unrecorded and the
// redelivery runs the handler again. Each queue is handled by a single
// processing loop, so the check and the mark never race for one key.
func Middleware(store Recorder, log *slog.Logger, next messaging.Handler) messaging.Handler {
	return func(ctx context.Context, d messaging.Delivery) error {
		key := store.Key(d.Queue, d.Key)
		seen, err := store.Seen(ctx, key)
		if err != nil {
			return fmt.Errorf("idempotency check %s: %w", key, err)
		}
		if seen {
			log.InfoContext(ctx, "duplicate message skipped", "key", key, "offset", d.Offset)
			return nil
		}

		err = next(ctx, d)
		if err != nil && !messaging.IsDrop(err) {
			return err
		}
		if merr := store.Mark(ctx, key); merr != nil {
			// The handler already ran; retrying it would repeat its effects.
			log.WarnContext(ctx, "idempotency mark failed", "key", key, "err", merr)
		}
		return err
	}
}
