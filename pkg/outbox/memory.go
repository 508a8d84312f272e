package outbox

import (
	"context"
	"sync"
	"time"

	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/messaging"
)

// MemoryStore keeps the outbox in process. It backs tests and the relay when
// no database is configured.
type MemoryStore struct {
	mu         sync.Mutex
	maxRetries int
	next       int64
	events     []*memoryEvent
}

type memoryEvent struct {
	Event
	relayID    string
	leaseUntil time.Time
}

func NewMemoryStore(maxRetries int) *MemoryStore {
	return &MemoryStore{maxRetries: maxRetries}
}

func (s *MemoryStore) Enqueue(_ context.Context, msgs ...messaging.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range msgs {
		s.next++
		s.events = append(s.events, &memoryEvent{Event: Event{
			ID:        s.next,
			Queue:     m.Queue,
			Key:       m.Key,
			Payload:   m.Payload,
			Headers:   m.Headers,
			CreatedAt: time.Now().UTC(),
			Status:    StatusPending,
		}})
	}
	return nil
}

func (s *MemoryStore) LockBatch(_ context.Context, relayID string, batchSize int, lease time.Duration) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	var out []Event
	for _, e := range s.events {
		if len(out) == batchSize {
			break
		}
		if !s.eligible(e, now) {
			continue
		}
		e.Status = StatusInProgress
		e.relayID = relayID
		e.leaseUntil = now.Add(lease)
		out = append(out, e.Event)
	}
	return out, nil
}

func (s *MemoryStore) eligible(e *memoryEvent, now time.Time) bool {
	switch e.Status {
	case StatusPending:
		return true
	case StatusFailed:
		return e.RetryCount < s.maxRetries
	case StatusInProgress:
		return now.After(e.leaseUntil)
	default:
		return false
	}
}

func (s *MemoryStore) MarkSent(_ context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.find(ids) {
		e.Status = StatusSent
	}
	return nil
}

func (s *MemoryStore) MarkFailed(_ context.Context, id int64, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.find([]int64{id}) {
		e.Status = StatusFailed
		e.RetryCount++
		e.LastError = &errMsg
	}
	return nil
}

func (s *MemoryStore) ExtendLease(_ context.Context, relayID string, ids []int64, lease time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.find(ids) {
		if e.relayID == relayID {
			e.leaseUntil = time.Now().Add(lease)
		}
	}
	return nil
}

// Events returns a snapshot of every stored event.
func (s *MemoryStore) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Event)
	}
	return out
}

func (s *MemoryStore) find(ids []int64) []*memoryEvent {
	var out []*memoryEvent
	for _, e := range s.events {
		for _, id := range ids {
			if e.ID == id {
				out = append(out, e)
			}
		}
	}
	return out
}

var (
	_ Store    = (*MemoryStore)(nil)
	_ Enqueuer = (*MemoryStore)(nil)
)
