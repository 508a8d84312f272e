//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dmehra2102/Order-Fulfillment-Saga/internal/inventory/application"
	"github.com/dmehra2102/Order-Fulfillment-Saga/internal/inventory/domain"
	invpg "github.com/dmehra2102/Order-Fulfillment-Saga/internal/inventory/infrastructure/postgres"
	"github.com/dmehra2102/Order-Fulfillment-Saga/internal/testenv"
	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/apperr"
	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/contracts"
	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/logging"
	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/messaging"
	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/transaction"
)

func TestDecrementAgainstPostgres(t *testing.T) {
	ctx := context.Background()
	pool := testenv.Postgres(t)
	repo := invpg.NewRepository(pool)
	if err := repo.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	svc := application.NewService(logging.Discard(), repo, repo, transaction.NewPgxScope(pool), messaging.NewMemoryBus())

	create := func(name string, stock int) int64 {
		t.Helper()
		p, err := svc.CreateProduct(ctx, application.CreateProductCommand{Name: name, Price: decimal.RequireFromString("9.99"), Stock: stock})
		if err != nil {
			t.Fatalf("CreateProduct(%s): %v", name, err)
		}
		return p.ID()
	}
	stock := func(id int64) int {
		t.Helper()
		p, err := svc.GetProduct(ctx, id)
		if err != nil {
			t.Fatalf("GetProduct: %v", err)
		}
		return p.Stock()
	}
	a := create("Widget", 5)
	b := create("Gadget", 1)

	t.Run("duplicate name is a conflict", func(t *testing.T) {
		_, err := svc.CreateProduct(ctx, application.CreateProductCommand{Name: "WIDGET", Price: decimal.NewFromInt(1)})
		if !apperr.IsConflict(err) {
			t.Errorf("error = %v, want ConflictError", err)
		}
	})

	t.Run("price survives the numeric column", func(t *testing.T) {
		p, err := svc.GetProduct(ctx, a)
		if err != nil {
			t.Fatalf("GetProduct: %v", err)
		}
		if !p.Price().Equal(decimal.RequireFromString("9.99")) {
			t.Errorf("price = %s", p.Price())
		}
	})

	t.Run("insufficient stock rolls back every line", func(t *testing.T) {
		req := contracts.StockDecrementRequested{
			OrderID: uuid.New(),
			Items:   []contracts.LineItem{{ProductID: a, Quantity: 2}, {ProductID: b, Quantity: 3}},
		}
		if err := svc.DecrementStock(ctx, req); !errors.Is(err, domain.ErrInsufficientStock) {
			t.Fatalf("error = %v, want ErrInsufficientStock", err)
		}
		if stock(a) != 5 || stock(b) != 1 {
			t.Errorf("stock = %d/%d, want 5/1", stock(a), stock(b))
		}
	})

	t.Run("redelivered decrement applies once", func(t *testing.T) {
		req := contracts.StockDecrementRequested{
			OrderID: uuid.New(),
			Items:   []contracts.LineItem{{ProductID: a, Quantity: 2}, {ProductID: b, Quantity: 1}},
		}
		for i := 0; i < 2; i++ {
			if err := svc.DecrementStock(ctx, req); err != nil {
				t.Fatalf("delivery %d: %v", i+1, err)
			}
		}
		if stock(a) != 3 || stock(b) != 0 {
			t.Errorf("stock = %d/%d, want 3/0", stock(a), stock(b))
		}
	})
}
