package application

import (
	"context"
	"time"

	"github.com/dmehra2102/Order-Fulfillment-Saga/internal/order/domain"
)

// OrderRepository loads and stores whole aggregates. Get returns
// domain.ErrOrderNotFound for unknown ids and locks the row when called
// inside a transaction scope.
type OrderRepository interface {
	Get(ctx context.Context, id domain.OrderID) (*domain.Order, error)
	Save(ctx context.Context, o *domain.Order) error
}

type AuditEntry struct {
	OrderID domain.OrderID
	From    domain.Status
	To      domain.Status
	At      time.Time
	TraceID string
	SpanID  string
}

// AuditLog is the append-only history of status changes.
type AuditLog interface {
	Record(ctx context.Context, changes []domain.StatusChange) error
	History(ctx context.Context, id domain.OrderID) ([]AuditEntry, error)
}

type nopAuditLog struct{}

func (nopAuditLog) Record(context.Context, []domain.StatusChange) error { return nil }

func (nopAuditLog) History(context.Context, domain.OrderID) ([]AuditEntry, error) {
	return nil, nil
}
