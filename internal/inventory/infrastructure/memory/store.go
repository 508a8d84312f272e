// Package memory keeps products in process. It backs the application, HTTP
// and saga tests.
package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/dmehra2102/Order-Fulfillment-Saga/internal/inventory/application"
	"github.com/dmehra2102/Order-Fulfillment-Saga/internal/inventory/domain"
	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/transaction"
)

type row struct {
	id          int64
	name        string
	description string
	price       decimal.Decimal
	stock       int
}

func snapshot(p *domain.Product) row {
	return row{id: p.ID(), name: p.Name(), description: p.Description(), price: p.Price(), stock: p.Stock()}
}

func (r row) product() *domain.Product {
	return domain.Reconstitute(r.id, r.name, r.description, r.price, r.stock)
}

type stagedKey struct{}

type staged struct {
	products  map[int64]row
	processed map[string]bool
}

// Store holds products and processed-message marks. As a transaction.Scope
// it applies staged writes only when the function succeeds.
type Store struct {
	txMu      sync.Mutex
	mu        sync.RWMutex
	products  map[int64]row
	processed map[string]bool
	nextID    int64
}

func NewStore() *Store {
	return &Store{products: make(map[int64]row), processed: make(map[string]bool)}
}

func (s *Store) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(stagedKey{}).(*staged); ok {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	writes := &staged{products: map[int64]row{}, processed: map[string]bool{}}
	if err := fn(context.WithValue(ctx, stagedKey{}, writes)); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, r := range writes.products {
		s.products[id] = r
	}
	for k := range writes.processed {
		s.processed[k] = true
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id int64) (*domain.Product, error) {
	if writes, ok := ctx.Value(stagedKey{}).(*staged); ok {
		if r, ok := writes.products[id]; ok {
			return r.product(), nil
		}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.products[id]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	return r.product(), nil
}

func (s *Store) Create(_ context.Context, p *domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.products {
		if strings.EqualFold(r.name, p.Name()) {
			return nil, domain.ErrDuplicateName
		}
	}
	s.nextID++
	r := snapshot(p)
	r.id = s.nextID
	s.products[r.id] = r
	return r.product(), nil
}

func (s *Store) Save(ctx context.Context, p *domain.Product) error {
	if writes, ok := ctx.Value(stagedKey{}).(*staged); ok {
		writes.products[p.ID()] = snapshot(p)
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[p.ID()]; !ok {
		return domain.ErrProductNotFound
	}
	s.products[p.ID()] = snapshot(p)
	return nil
}

func (s *Store) MarkProcessed(ctx context.Context, queue, messageID string) (bool, error) {
	key := queue + "/" + messageID
	writes, inTx := ctx.Value(stagedKey{}).(*staged)
	if inTx && writes.processed[key] {
		return false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.processed[key] {
		return false, nil
	}
	if inTx {
		writes.processed[key] = true
	} else {
		s.processed[key] = true
	}
	return true, nil
}

var (
	_ application.ProductRepository = (*Store)(nil)
	_ application.ProcessedMessages = (*Store)(nil)
	_ transaction.Scope             = (*Store)(nil)
)
