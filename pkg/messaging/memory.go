package messaging

import (
	"context"
	"sync"
)

// MemoryBus is an in-process broker for tests and local wiring. Every queue
// is a single partition; Ack only records what was acknowledged.
type MemoryBus struct {
	mu         sync.Mutex
	queues     map[string]*memoryQueue
	publishErr error
}

type memoryQueue struct {
	ch        chan Delivery
	next      int64
	published []Message
	acked     []Delivery
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{queues: make(map[string]*memoryQueue)}
}

func (b *MemoryBus) queue(name string) *memoryQueue {
	q, ok := b.queues[name]
	if !ok {
		q = &memoryQueue{ch: make(chan Delivery, 1024)}
		b.queues[name] = q
	}
	return q
}

// FailPublishes makes every following Publish return err; nil restores it.
func (b *MemoryBus) FailPublishes(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.publishErr = err
}

func (b *MemoryBus) Publish(ctx context.Context, msgs ...Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.publishErr != nil {
		return b.publishErr
	}
	for _, m := range msgs {
		m.Headers = cloneHeaders(m.Headers)
		q := b.queue(m.Queue)
		q.published = append(q.published, m)
		d := Delivery{Message: m, Offset: q.next}
		q.next++
		select {
		case q.ch <- d:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (b *MemoryBus) Published(queue string) []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Message(nil), b.queue(queue).published...)
}

func (b *MemoryBus) Acked(queue string) []Delivery {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Delivery(nil), b.queue(queue).acked...)
}

func (b *MemoryBus) Source(queue string) Source {
	b.mu.Lock()
	defer b.mu.Unlock()
	return &memorySource{bus: b, name: queue, ch: b.queue(queue).ch}
}

type memorySource struct {
	bus  *MemoryBus
	name string
	ch   chan Delivery
}

func (s *memorySource) Fetch(ctx context.Context) (Delivery, error) {
	select {
	case d := <-s.ch:
		return d, nil
	case <-ctx.Done():
		return Delivery{}, ctx.Err()
	}
}

func (s *memorySource) Ack(_ context.Context, d Delivery) error {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	q := s.bus.queue(s.name)
	q.acked = append(q.acked, d)
	return nil
}

func (s *memorySource) Close() error { return nil }
