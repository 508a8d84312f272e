package application_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dmehra2102/Order-Fulfillment-Saga/internal/order/application"
	"github.com/dmehra2102/Order-Fulfillment-Saga/internal/order/domain"
	"github.com/dmehra2102/Order-Fulfillment-Saga/internal/order/infrastructure/memory"
	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/apperr"
	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/contracts"
	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/logging"
	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/messaging"
)

type fixture struct {
	svc   *application.Service
	repo  *memory.Repository
	bus   *messaging.MemoryBus
	audit *memory.AuditLog
	user  uuid.UUID
}

func setup(t *testing.T) *fixture {
	t.Helper()
	repo := memory.NewRepository()
	bus := messaging.NewMemoryBus()
	audit := memory.NewAuditLog()
	return &fixture{
		svc:   application.NewService(logging.Discard(), repo, repo, bus, audit),
		repo:  repo,
		bus:   bus,
		audit: audit,
		user:  uuid.New(),
	}
}

func (f *fixture) create(t *testing.T, items ...application.CreateOrderItem) *domain.Order {
	t.Helper()
	if len(items) == 0 {
		items = []application.CreateOrderItem{{ProductID: 1, Quantity: 2}, {ProductID: 2, Quantity: 1}}
	}
	o, err := f.svc.CreateOrder(context.Background(), application.CreateOrderCommand{UserID: f.user, Items: items})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	return o
}

// advance drives a fresh order to the wanted status through the service.
func (f *fixture) advance(t *testing.T, to domain.Status) *domain.Order {
	t.Helper()
	ctx := context.Background()
	o := f.create(t)
	if to == domain.StatusCreated {
		return o
	}
	valid := to != domain.StatusRejected
	if err := f.svc.ApplyStockValidation(ctx, contracts.StockValidated{OrderID: o.ID(), IsValid: valid}); err != nil {
		t.Fatalf("ApplyStockValidation: %v", err)
	}
	switch to {
	case domain.StatusInSeparation, domain.StatusFinished:
		if _, err := f.svc.StartSeparation(ctx, o.ID()); err != nil {
			t.Fatalf("StartSeparation: %v", err)
		}
	case domain.StatusCancelled:
		if _, err := f.svc.Cancel(ctx, o.ID(), f.user); err != nil {
			t.Fatalf("Cancel: %v", err)
		}
	}
	if to == domain.StatusFinished {
		if _, err := f.svc.Finish(ctx, o.ID()); err != nil {
			t.Fatalf("Finish: %v", err)
		}
	}
	return f.load(t, o.ID())
}

func (f *fixture) load(t *testing.T, id domain.OrderID) *domain.Order {
	t.Helper()
	o, err := f.repo.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	return o
}

func TestCreateOrderRejectsInvalidCommands(t *testing.T) {
	tests := []struct {
		name string
		cmd  application.CreateOrderCommand
	}{
		{name: "missing user", cmd: application.CreateOrderCommand{Items: []application.CreateOrderItem{{ProductID: 1, Quantity: 1}}}},
		{name: "no items", cmd: application.CreateOrderCommand{UserID: uuid.New()}},
		{name: "zero quantity", cmd: application.CreateOrderCommand{UserID: uuid.New(), Items: []application.CreateOrderItem{{ProductID: 1, Quantity: 0}}}},
		{name: "negative quantity", cmd: application.CreateOrderCommand{UserID: uuid.New(), Items: []application.CreateOrderItem{{ProductID: 1, Quantity: -4}}}},
		{name: "missing product", cmd: application.CreateOrderCommand{UserID: uuid.New(), Items: []application.CreateOrderItem{{Quantity: 1}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			f := setup(t)

			// Act
			o, err := f.svc.CreateOrder(context.Background(), tt.cmd)

			// Assert
			if !apperr.IsArgument(err) {
				t.Fatalf("CreateOrder() error = %v, want ArgumentError", err)
			}
			if o != nil {
				t.Error("no order should be returned")
			}
			if f.repo.Saves() != 0 || len(f.bus.Published(contracts.QueueStockValidation)) != 0 {
				t.Error("invalid command touched state")
			}
		})
	}
}

func TestCreateOrderPersistsAndRequestsValidation(t *testing.T) {
	// Arrange
	f := setup(t)

	// Act
	o := f.create(t,
		application.CreateOrderItem{ProductID: 10, Quantity: 2},
		application.CreateOrderItem{ProductID: 11, Quantity: 1},
		application.CreateOrderItem{ProductID: 10, Quantity: 3},
	)

	// Assert
	stored := f.load(t, o.ID())
	if stored.Status() != domain.StatusCreated || !stored.IsOwnedBy(f.user) {
		t.Fatalf("stored order = %s owned by %s", stored.Status(), stored.UserID())
	}
	if len(stored.Items()) != 2 {
		t.Fatalf("items = %d, want duplicates merged into 2 lines", len(stored.Items()))
	}
	if !stored.Total().Equal(decimal.NewFromInt(6)) {
		t.Errorf("total = %s, want 6 at placeholder price", stored.Total())
	}

	published := f.bus.Published(contracts.QueueStockValidation)
	if len(published) != 1 {
		t.Fatalf("published %d validation requests, want 1", len(published))
	}
	req, err := contracts.Decode[contracts.StockValidationRequested](published[0].Payload)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if req.OrderID != o.ID() || len(req.Items) != 2 || req.Items[0] != (contracts.LineItem{ProductID: 10, Quantity: 5}) {
		t.Errorf("request = %+v", req)
	}
	if published[0].Key != o.ID().String() {
		t.Errorf("message key = %q, want order id", published[0].Key)
	}
}

func TestCreateOrderPublishFailureKeepsOrder(t *testing.T) {
	// Arrange
	f := setup(t)
	errBroker := errors.New("broker down")
	f.bus.FailPublishes(errBroker)

	// Act
	o, err := f.svc.CreateOrder(context.Background(), application.CreateOrderCommand{
		UserID: f.user,
		Items:  []application.CreateOrderItem{{ProductID: 1, Quantity: 1}},
	})

	// Assert
	if !apperr.IsTransport(err) || !errors.Is(err, errBroker) {
		t.Fatalf("CreateOrder() error = %v, want TransportError wrapping the broker error", err)
	}
	if o == nil {
		t.Fatal("the committed order should be returned with the transport error")
	}
	if stored := f.load(t, o.ID()); stored.Status() != domain.StatusCreated {
		t.Errorf("stored status = %s, want Created", stored.Status())
	}
}

func TestApplyStockValidation(t *testing.T) {
	tests := []struct {
		name       string
		isValid    bool
		items      func(o *domain.Order) []contracts.ValidatedItem
		wantStatus domain.Status
		wantPrices map[int64]string
	}{
		{
			name:    "valid confirms with inventory prices",
			isValid: true,
			items: func(*domain.Order) []contracts.ValidatedItem {
				return []contracts.ValidatedItem{
					{ProductID: 1, Quantity: 2, Price: decimal.RequireFromString("10.50"), HasStock: true},
					{ProductID: 2, Quantity: 1, Price: decimal.RequireFromString("3"), HasStock: true},
				}
			},
			wantStatus: domain.StatusConfirmed,
			wantPrices: map[int64]string{1: "10.50", 2: "3"},
		},
		{
			name:    "invalid rejects",
			isValid: false,
			items: func(*domain.Order) []contracts.ValidatedItem {
				return []contracts.ValidatedItem{
					{ProductID: 1, Quantity: 2, Price: decimal.RequireFromString("10"), HasStock: false},
					{ProductID: 2, Quantity: 1, Price: decimal.Zero, HasStock: false},
				}
			},
			wantStatus: domain.StatusRejected,
			wantPrices: map[int64]string{1: "10", 2: "1"},
		},
		{
			name:    "unknown lines are ignored",
			isValid: true,
			items: func(*domain.Order) []contracts.ValidatedItem {
				return []contracts.ValidatedItem{{ProductID: 99, Quantity: 1, Price: decimal.RequireFromString("7"), HasStock: true}}
			},
			wantStatus: domain.StatusConfirmed,
			wantPrices: map[int64]string{1: "1", 2: "1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			f := setup(t)
			o := f.create(t)

			// Act
			err := f.svc.ApplyStockValidation(context.Background(), contracts.StockValidated{
				OrderID: o.ID(),
				IsValid: tt.isValid,
				Items:   tt.items(o),
			})

			// Assert
			if err != nil {
				t.Fatalf("ApplyStockValidation() error = %v", err)
			}
			stored := f.load(t, o.ID())
			if stored.Status() != tt.wantStatus {
				t.Errorf("status = %s, want %s", stored.Status(), tt.wantStatus)
			}
			sum := decimal.Zero
			for productID, want := range tt.wantPrices {
				item, ok := stored.Item(productID)
				if !ok || !item.Price().Equal(decimal.RequireFromString(want)) {
					t.Errorf("product %d price = %s, want %s", productID, item.Price(), want)
				}
				sum = sum.Add(item.Subtotal())
			}
			if !stored.Total().Equal(sum) {
				t.Errorf("total = %s, want %s", stored.Total(), sum)
			}
		})
	}
}

func TestApplyStockValidationErrors(t *testing.T) {
	t.Run("unknown order is not found", func(t *testing.T) {
		f := setup(t)
		err := f.svc.ApplyStockValidation(context.Background(), contracts.StockValidated{OrderID: uuid.New(), IsValid: true})
		if !apperr.IsNotFound(err) {
			t.Errorf("error = %v, want NotFound", err)
		}
	})

	t.Run("second validation is an invalid transition", func(t *testing.T) {
		// Arrange
		f := setup(t)
		o := f.advance(t, domain.StatusConfirmed)

		// Act
		err := f.svc.ApplyStockValidation(context.Background(), contracts.StockValidated{
			OrderID: o.ID(),
			IsValid: false,
			Items:   []contracts.ValidatedItem{{ProductID: 1, Quantity: 2, Price: decimal.NewFromInt(50)}},
		})

		// Assert
		if !errors.Is(err, domain.ErrInvalidTransition) {
			t.Fatalf("error = %v, want invalid transition", err)
		}
		stored := f.load(t, o.ID())
		if stored.Status() != domain.StatusConfirmed || !stored.Total().Equal(o.Total()) {
			t.Errorf("order changed to %s / %s", stored.Status(), stored.Total())
		}
	})
}

func TestStatusCoordinatorTransitions(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		from    domain.Status
		op      func(f *fixture, id domain.OrderID) (*domain.Order, error)
		want    domain.Status
		wantErr bool
	}{
		{name: "separation from confirmed", from: domain.StatusConfirmed, op: startSeparation, want: domain.StatusInSeparation},
		{name: "separation from created", from: domain.StatusCreated, op: startSeparation, want: domain.StatusCreated, wantErr: true},
		{name: "cancel confirmed", from: domain.StatusConfirmed, op: cancelAsOwner, want: domain.StatusCancelled},
		{name: "cancel in separation", from: domain.StatusInSeparation, op: cancelAsOwner, want: domain.StatusCancelled},
		{name: "cancel created", from: domain.StatusCreated, op: cancelAsOwner, want: domain.StatusCreated, wantErr: true},
		{name: "cancel finished", from: domain.StatusFinished, op: cancelAsOwner, want: domain.StatusFinished, wantErr: true},
		{name: "finish in separation", from: domain.StatusInSeparation, op: finish, want: domain.StatusFinished},
		{name: "finish confirmed", from: domain.StatusConfirmed, op: finish, want: domain.StatusConfirmed, wantErr: true},
		{name: "finish rejected", from: domain.StatusRejected, op: finish, want: domain.StatusRejected, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			f := setup(t)
			o := f.advance(t, tt.from)

			// Act
			_, err := tt.op(f, o.ID())

			// Assert
			if tt.wantErr {
				var ite *domain.InvalidTransitionError
				if !errors.As(err, &ite) || ite.From != tt.from {
					t.Fatalf("error = %v, want InvalidTransitionError from %s", err, tt.from)
				}
			} else if err != nil {
				t.Fatalf("error = %v", err)
			}
			if got := f.load(t, o.ID()).Status(); got != tt.want {
				t.Errorf("status = %s, want %s", got, tt.want)
			}
		})
	}

	t.Run("missing order", func(t *testing.T) {
		f := setup(t)
		for name, op := range map[string]func(*fixture, domain.OrderID) (*domain.Order, error){
			"separation": startSeparation, "cancel": cancelAsOwner, "finish": finish,
		} {
			if _, err := op(f, uuid.New()); !apperr.IsNotFound(err) {
				t.Errorf("%s error = %v, want NotFound", name, err)
			}
		}
		if _, err := f.svc.GetOrder(ctx, uuid.New()); !errors.Is(err, domain.ErrOrderNotFound) {
			t.Errorf("GetOrder error = %v", err)
		}
	})
}

func startSeparation(f *fixture, id domain.OrderID) (*domain.Order, error) {
	return f.svc.StartSeparation(context.Background(), id)
}

func cancelAsOwner(f *fixture, id domain.OrderID) (*domain.Order, error) {
	return f.svc.Cancel(context.Background(), id, f.user)
}

func finish(f *fixture, id domain.OrderID) (*domain.Order, error) {
	return f.svc.Finish(context.Background(), id)
}

func TestCancelByNonOwner(t *testing.T) {
	// Arrange
	f := setup(t)
	o := f.advance(t, domain.StatusConfirmed)

	// Act
	_, err := f.svc.Cancel(context.Background(), o.ID(), uuid.New())

	// Assert
	if !apperr.IsAuthorization(err) || apperr.IsNotFound(err) {
		t.Fatalf("error = %v, want AuthorizationError", err)
	}
	if got := f.load(t, o.ID()).Status(); got != domain.StatusConfirmed {
		t.Errorf("status = %s, want Confirmed", got)
	}
}

func TestFinishPublishesOneDecrement(t *testing.T) {
	// Arrange
	f := setup(t)
	o := f.advance(t, domain.StatusInSeparation)

	// Act
	finished, err := f.svc.Finish(context.Background(), o.ID())

	// Assert
	if err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	if finished.Status() != domain.StatusFinished {
		t.Errorf("status = %s", finished.Status())
	}
	published := f.bus.Published(contracts.QueueOrderFinished)
	if len(published) != 1 {
		t.Fatalf("published %d decrement requests, want exactly 1", len(published))
	}
	req, err := contracts.Decode[contracts.StockDecrementRequested](published[0].Payload)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := map[int64]int{1: 2, 2: 1}
	if req.OrderID != o.ID() || len(req.Items) != len(want) {
		t.Fatalf("request = %+v", req)
	}
	for _, it := range req.Items {
		if want[it.ProductID] != it.Quantity {
			t.Errorf("line %+v, want quantities %v", it, want)
		}
	}

	if _, err := f.svc.Finish(context.Background(), o.ID()); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("second Finish error = %v", err)
	}
	if got := len(f.bus.Published(contracts.QueueOrderFinished)); got != 1 {
		t.Errorf("published %d after repeated Finish, want 1", got)
	}
}

func TestFinishPublishFailureKeepsFinished(t *testing.T) {
	// Arrange
	f := setup(t)
	o := f.advance(t, domain.StatusInSeparation)
	f.bus.FailPublishes(errors.New("broker down"))

	// Act
	got, err := f.svc.Finish(context.Background(), o.ID())

	// Assert
	if !apperr.IsTransport(err) {
		t.Fatalf("error = %v, want TransportError", err)
	}
	if got == nil || f.load(t, o.ID()).Status() != domain.StatusFinished {
		t.Error("order should stay Finished after a failed publish")
	}
}

func TestHistoryFollowsTransitions(t *testing.T) {
	// Arrange
	f := setup(t)
	o := f.advance(t, domain.StatusFinished)

	// Act
	entries, err := f.svc.History(context.Background(), o.ID())

	// Assert
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	want := []domain.Status{domain.StatusCreated, domain.StatusConfirmed, domain.StatusInSeparation, domain.StatusFinished}
	if len(entries) != len(want) {
		t.Fatalf("entries = %+v", entries)
	}
	for i, e := range entries {
		if e.To != want[i] {
			t.Errorf("entry %d to %s, want %s", i, e.To, want[i])
		}
	}
	if _, err := f.svc.History(context.Background(), uuid.New()); !apperr.IsNotFound(err) {
		t.Errorf("History(unknown) error = %v", err)
	}
}
