package kafka_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dmehra2102/Order-Fulfillment-Saga/internal/inventory/application"
	invkafka "github.com/dmehra2102/Order-Fulfillment-Saga/internal/inventory/infrastructure/kafka"
	"github.com/dmehra2102/Order-Fulfillment-Saga/internal/inventory/infrastructure/memory"
	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/contracts"
	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/logging"
	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/messaging"
)

func delivery(t *testing.T, m contracts.Message) messaging.Delivery {
	t.Helper()
	msg, err := contracts.Encode(m)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return messaging.Delivery{Message: msg}
}

func TestHandlersClassifyFailures(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	bus := messaging.NewMemoryBus()
	svc := application.NewService(logging.Discard(), store, store, store, bus)
	p, err := svc.CreateProduct(ctx, application.CreateProductCommand{Name: "Pen", Price: decimal.NewFromInt(2), Stock: 1})
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}
	items := []contracts.LineItem{{ProductID: p.ID(), Quantity: 2}}
	failing := messaging.NewMemoryBus()
	failing.FailPublishes(errors.New("broker down"))
	failingSvc := application.NewService(logging.Discard(), store, store, store, failing)

	tests := []struct {
		name          string
		handler       messaging.Handler
		delivery      messaging.Delivery
		wantErr       bool
		wantDrop      bool
		wantPermanent bool
	}{
		{
			name:     "validation answers",
			handler:  invkafka.ValidationRequestedHandler(svc),
			delivery: delivery(t, contracts.StockValidationRequested{OrderID: uuid.New(), Items: items}),
		},
		{
			name:     "malformed validation is dropped",
			handler:  invkafka.ValidationRequestedHandler(svc),
			delivery: messaging.Delivery{Message: messaging.Message{Payload: []byte(`{"orderId":"x"}`)}},
			wantErr:  true,
			wantDrop: true,
		},
		{
			name:     "broker failure is retried",
			handler:  invkafka.ValidationRequestedHandler(failingSvc),
			delivery: delivery(t, contracts.StockValidationRequested{OrderID: uuid.New(), Items: items}),
			wantErr:  true,
		},
		{
			name:          "overdrawn stock is dead-lettered",
			handler:       invkafka.DecrementRequestedHandler(svc),
			delivery:      delivery(t, contracts.StockDecrementRequested{OrderID: uuid.New(), Items: items}),
			wantErr:       true,
			wantPermanent: true,
		},
		{
			name:     "malformed decrement is dropped",
			handler:  invkafka.DecrementRequestedHandler(svc),
			delivery: messaging.Delivery{Message: messaging.Message{Payload: []byte("{")}},
			wantErr:  true,
			wantDrop: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.handler(ctx, tt.delivery)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if messaging.IsDrop(err) != tt.wantDrop || messaging.IsPermanent(err) != tt.wantPermanent {
				t.Errorf("error = %v, want drop=%v permanent=%v", err, tt.wantDrop, tt.wantPermanent)
			}
		})
	}
	if got := len(bus.Published(contracts.QueueOrderValidated)); got != 1 {
		t.Errorf("published %d StockValidated, want 1", got)
	}
}
