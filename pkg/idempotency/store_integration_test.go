//go:build integration

package idempotency_test

import (
	"context"
	"testing"
	"time"

	"github.com/dmehra2102/Order-Fulfillment-Saga/internal/testenv"
	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/idempotency"
)

func TestStoreAgainstRedis(t *testing.T) {
	ctx := context.Background()
	rdb := testenv.Redis(t)
	store := idempotency.NewStore(rdb, time.Minute)
	key := store.Key("order-validated", "order-1")

	seen, err := store.Seen(ctx, key)
	if err != nil || seen {
		t.Fatalf("Seen before Mark = %v, %v", seen, err)
	}
	if err := store.Mark(ctx, key); err != nil {
		t.Fatalf("Mark: %v", err)
	}
	seen, err = store.Seen(ctx, key)
	if err != nil || !seen {
		t.Fatalf("Seen after Mark = %v, %v", seen, err)
	}
	if ttl := rdb.TTL(ctx, key).Val(); ttl <= 0 || ttl > time.Minute {
		t.Errorf("ttl = %v, want within one minute", ttl)
	}
}
