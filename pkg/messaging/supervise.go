package messaging

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Supervise keeps run alive until ctx is cancelled, restarting it with capped
// exponential backoff whenever it returns. A run that stayed up for a minute
// resets the backoff.
func Supervise(ctx context.Context, log *slog.Logger, name string, run func(context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0

	for {
		started := time.Now()
		err := run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			err = errors.New("exited without error")
		}
		if time.Since(started) > time.Minute {
			b.Reset()
		}
		wait := b.NextBackOff()
		log.Error("worker stopped, restarting", "worker", name, "retry_in", wait, "err", err)

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}
