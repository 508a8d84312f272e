package messaging_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/logging"
	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/messaging"
)

const queue = "test-queue"

type publisherFunc func(ctx context.Context, msgs ...messaging.Message) error

func (f publisherFunc) Publish(ctx context.Context, msgs ...messaging.Message) error {
	return f(ctx, msgs...)
}

func fastConfig(maxAttempts int) messaging.Config {
	return messaging.Config{
		Queue:          queue,
		Prefetch:       4,
		MaxAttempts:    maxAttempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}
}

// run starts c and returns a stop function that cancels it and waits for Run.
func run(t *testing.T, c *messaging.Consumer) func() error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	return func() error {
		cancel()
		select {
		case err := <-done:
			return err
		case <-time.After(5 * time.Second):
			t.Fatal("consumer did not stop")
			return nil
		}
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func publish(t *testing.T, bus *messaging.MemoryBus, payloads ...string) {
	t.Helper()
	for _, p := range payloads {
		err := bus.Publish(context.Background(), messaging.Message{
			Queue:   queue,
			Key:     "k-" + p,
			Payload: []byte(p),
			Headers: map[string]string{"message_kind": "Test"},
		})
		if err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
}

func TestConsumerOutcomes(t *testing.T) {
	errBoom := errors.New("boom")

	tests := []struct {
		name         string
		maxAttempts  int
		handler      func(calls int32) error
		wantCalls    int32
		wantDLQ      bool
		wantAttempts string
	}{
		{
			name:        "success acks once",
			maxAttempts: 3,
			handler:     func(int32) error { return nil },
			wantCalls:   1,
		},
		{
			name:        "drop acks without dead-lettering",
			maxAttempts: 3,
			handler:     func(int32) error { return messaging.Drop(errBoom) },
			wantCalls:   1,
		},
		{
			name:         "permanent skips retries",
			maxAttempts:  3,
			handler:      func(int32) error { return messaging.Permanent(errBoom) },
			wantCalls:    1,
			wantDLQ:      true,
			wantAttempts: "1",
		},
		{
			name:        "transient failure recovers on retry",
			maxAttempts: 3,
			handler: func(calls int32) error {
				if calls < 3 {
					return errBoom
				}
				return nil
			},
			wantCalls: 3,
		},
		{
			name:         "exhausted retries dead-letter",
			maxAttempts:  3,
			handler:      func(int32) error { return errBoom },
			wantCalls:    3,
			wantDLQ:      true,
			wantAttempts: "3",
		},
		{
			name:         "panic is treated as failure",
			maxAttempts:  2,
			handler:      func(int32) error { panic("kaboom") },
			wantCalls:    2,
			wantDLQ:      true,
			wantAttempts: "2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			bus := messaging.NewMemoryBus()
			var calls atomic.Int32
			handler := func(ctx context.Context, d messaging.Delivery) error {
				return tt.handler(calls.Add(1))
			}
			c := messaging.NewConsumer(logging.Discard(), bus.Source(queue), bus, handler, fastConfig(tt.maxAttempts))
			stop := run(t, c)

			// Act
			publish(t, bus, "one")
			eventually(t, "ack", func() bool { return len(bus.Acked(queue)) == 1 })

			// Assert
			if err := stop(); err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if got := calls.Load(); got != tt.wantCalls {
				t.Errorf("handler calls = %d, want %d", got, tt.wantCalls)
			}
			dlq := bus.Published(queue + ".dlq")
			if tt.wantDLQ != (len(dlq) == 1) {
				t.Fatalf("dead-lettered = %d messages, want dlq=%v", len(dlq), tt.wantDLQ)
			}
			if tt.wantDLQ {
				m := dlq[0]
				if string(m.Payload) != "one" || m.Key != "k-one" {
					t.Errorf("dead letter = %q/%q, want original payload and key", m.Key, m.Payload)
				}
				if m.Headers[messaging.HeaderAttempts] != tt.wantAttempts {
					t.Errorf("x-attempts = %q, want %q", m.Headers[messaging.HeaderAttempts], tt.wantAttempts)
				}
				if m.Headers[messaging.HeaderError] == "" {
					t.Error("x-error header missing")
				}
				if m.Headers["message_kind"] != "Test" {
					t.Error("original headers were not carried over")
				}
			}
		})
	}
}

func TestConsumerProcessesInOrder(t *testing.T) {
	// Arrange
	bus := messaging.NewMemoryBus()
	var seen []string
	handler := func(ctx context.Context, d messaging.Delivery) error {
		seen = append(seen, string(d.Payload))
		return nil
	}
	c := messaging.NewConsumer(logging.Discard(), bus.Source(queue), bus, handler, fastConfig(1))
	stop := run(t, c)

	// Act
	publish(t, bus, "a", "b", "c", "d", "e")
	eventually(t, "all acks", func() bool { return len(bus.Acked(queue)) == 5 })
	if err := stop(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// Assert
	want := []string{"a", "b", "c", "d", "e"}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("order = %v, want %v", seen, want)
		}
	}
	for i, d := range bus.Acked(queue) {
		if d.Offset != int64(i) {
			t.Errorf("ack %d has offset %d", i, d.Offset)
		}
	}
}

func TestConsumerDeadLetterFailureLeavesDeliveryUnacked(t *testing.T) {
	// Arrange
	bus := messaging.NewMemoryBus()
	dead := publisherFunc(func(context.Context, ...messaging.Message) error {
		return errors.New("broker down")
	})
	handler := func(context.Context, messaging.Delivery) error { return messaging.Permanent(errors.New("bad")) }
	c := messaging.NewConsumer(logging.Discard(), bus.Source(queue), dead, handler, fastConfig(1))
	publish(t, bus, "one")

	// Act
	err := c.Run(context.Background())

	// Assert
	if err == nil {
		t.Fatal("Run() should fail when the dead-letter publish fails")
	}
	if got := len(bus.Acked(queue)); got != 0 {
		t.Errorf("acked = %d, want 0", got)
	}
	if c.Running() {
		t.Error("Running() should be false after Run returned")
	}
}

func TestConsumerShutdownFinishesInFlightDelivery(t *testing.T) {
	// Arrange
	bus := messaging.NewMemoryBus()
	started := make(chan struct{})
	release := make(chan struct{})
	var handlerCtxErr atomic.Value
	handler := func(ctx context.Context, d messaging.Delivery) error {
		if string(d.Payload) == "first" {
			close(started)
			<-release
		}
		if ctx.Err() != nil {
			handlerCtxErr.Store(ctx.Err())
		}
		return nil
	}
	c := messaging.NewConsumer(logging.Discard(), bus.Source(queue), bus, handler, fastConfig(1))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	publish(t, bus, "first", "second")
	<-started
	eventually(t, "running", c.Running)

	// Act
	cancel()
	close(release)
	err := <-done

	// Assert
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	acked := bus.Acked(queue)
	if len(acked) != 1 || string(acked[0].Payload) != "first" {
		t.Fatalf("acked = %v, want only the in-flight delivery", acked)
	}
	if v := handlerCtxErr.Load(); v != nil {
		t.Errorf("handler context was cancelled: %v", v)
	}
}

func TestSuperviseRestartsFailedRuns(t *testing.T) {
	// Arrange
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var runs atomic.Int32
	worker := func(ctx context.Context) error {
		if runs.Add(1) < 3 {
			return errors.New("lost connection")
		}
		<-ctx.Done()
		return nil
	}
	done := make(chan error, 1)

	// Act
	go func() { done <- messaging.Supervise(ctx, logging.Discard(), "worker", worker) }()
	eventually(t, "third run", func() bool { return runs.Load() == 3 })
	cancel()

	// Assert
	if err := <-done; err != nil {
		t.Fatalf("Supervise() error = %v", err)
	}
	if got := runs.Load(); got != 3 {
		t.Errorf("runs = %d, want 3", got)
	}
}
