package outbox

import (
	"context"
	"log/slog"
	"time"
)

// Store is the relay's view of the outbox table. LockBatch hands out pending
// rows, failed rows still under the retry limit and rows whose lease expired.
type Store interface {
	LockBatch(ctx context.Context, relayID string, batchSize int, lease time.Duration) ([]Event, error)
	MarkSent(ctx context.Context, ids []int64) error
	MarkFailed(ctx context.Context, id int64, errMsg string) error
	ExtendLease(ctx context.Context, relayID string, ids []int64, lease time.Duration) error
}

type Relay struct {
	log       *slog.Logger
	store     Store
	dispatch  *Dispatcher
	relayID   string
	batchSize int
	interval  time.Duration
	lease     time.Duration
}

func NewRelay(log *slog.Logger, store Store, dispatch *Dispatcher, relayID string) *Relay {
	return &Relay{
		log:       log,
		store:     store,
		dispatch:  dispatch,
		relayID:   relayID,
		batchSize: 100,
		interval:  500 * time.Millisecond,
		lease:     5 * time.Second,
	}
}

func (r *Relay) Run(ctx context.Context) error {
	t := time.NewTicker(r.interval)
	defer t.Stop()

	r.log.Info("relay started", "relay_id", r.relayID)
	for {
		select {
		case <-ctx.Done():
			r.log.Info("relay stopping", "relay_id", r.relayID)
			return nil
		case <-t.C:
			if _, err := r.RunOnce(ctx); err != nil {
				r.log.Error("relay lock batch error", "err", err)
			}
		}
	}
}

// RunOnce dispatches one batch and returns how many events were sent.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	events, err := r.store.LockBatch(ctx, r.relayID, r.batchSize, r.lease)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}

	leasedAt := time.Now()
	ids := make([]int64, 0, len(events))
	for i, e := range events {
		if time.Since(leasedAt) > r.lease/2 {
			r.extend(ctx, events[i:])
			leasedAt = time.Now()
		}
		if err := r.dispatch.Dispatch(ctx, e); err != nil {
			if merr := r.store.MarkFailed(ctx, e.ID, err.Error()); merr != nil {
				r.log.Error("relay mark failed error", "event_id", e.ID, "err", merr)
			}
			continue
		}
		ids = append(ids, e.ID)
	}
	if len(ids) > 0 {
		if err := r.store.MarkSent(ctx, ids); err != nil {
			r.log.Error("relay mark sent error", "err", err)
		}
	}
	return len(ids), nil
}

func (r *Relay) extend(ctx context.Context, rest []Event) {
	ids := make([]int64, 0, len(rest))
	for _, e := range rest {
		ids = append(ids, e.ID)
	}
	if err := r.store.ExtendLease(ctx, r.relayID, ids, r.lease); err != nil {
		r.log.Warn("relay extend lease error", "err", err)
	}
}
