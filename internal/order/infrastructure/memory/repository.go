// Package memory keeps orders in process. It backs the application, HTTP
// and saga tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmehra2102/Order-Fulfillment-Saga/internal/order/application"
	"github.com/dmehra2102/Order-Fulfillment-Saga/internal/order/domain"
	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/transaction"
)

type row struct {
	id        domain.OrderID
	userID    uuid.UUID
	status    domain.Status
	items     []domain.Item
	createdAt time.Time
	updatedAt time.Time
}

func snapshot(o *domain.Order) row {
	return row{
		id:        o.ID(),
		userID:    o.UserID(),
		status:    o.Status(),
		items:     o.Items(),
		createdAt: o.CreatedAt(),
		updatedAt: o.UpdatedAt(),
	}
}

func (r row) order() *domain.Order {
	return domain.Reconstitute(r.id, r.userID, r.status, r.items, r.createdAt, r.updatedAt)
}

type stagedKey struct{}

type staged map[domain.OrderID]row

// Repository stores snapshots, so changes to a loaded order stay invisible
// until Save. It is also a transaction.Scope: writes inside Execute are
// applied only when fn succeeds, and scopes run one at a time.
type Repository struct {
	txMu   sync.Mutex
	mu     sync.RWMutex
	orders map[domain.OrderID]row
	saves  int
}

func NewRepository() *Repository {
	return &Repository{orders: make(map[domain.OrderID]row)}
}

func (r *Repository) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(stagedKey{}).(staged); ok {
		return fn(ctx)
	}
	r.txMu.Lock()
	defer r.txMu.Unlock()

	writes := staged{}
	if err := fn(context.WithValue(ctx, stagedKey{}, writes)); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, w := range writes {
		r.orders[id] = w
		r.saves++
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, id domain.OrderID) (*domain.Order, error) {
	if writes, ok := ctx.Value(stagedKey{}).(staged); ok {
		if w, ok := writes[id]; ok {
			return w.order(), nil
		}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return w.order(), nil
}

func (r *Repository) Save(ctx context.Context, o *domain.Order) error {
	if writes, ok := ctx.Value(stagedKey{}).(staged); ok {
		writes[o.ID()] = snapshot(o)
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[o.ID()] = snapshot(o)
	r.saves++
	return nil
}

// Saves counts committed writes.
func (r *Repository) Saves() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.saves
}

var (
	_ application.OrderRepository = (*Repository)(nil)
	_ transaction.Scope           = (*Repository)(nil)
)
