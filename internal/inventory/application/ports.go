package application

import (
	"context"

	"github.com/dmehra2102/Order-Fulfillment-Saga/internal/inventory/domain"
)

// ProductRepository returns domain.ErrProductNotFound for unknown ids. Get
// locks the row when called inside a transaction scope.
type ProductRepository interface {
	Get(ctx context.Context, id int64) (*domain.Product, error)
	// Create assigns the id and fails with domain.ErrDuplicateName when the
	// name is taken.
	Create(ctx context.Context, p *domain.Product) (*domain.Product, error)
	Save(ctx context.Context, p *domain.Product) error
}

// ProcessedMessages remembers which messages already changed stock. It must
// take part in the surrounding transaction so a rollback forgets the mark.
type ProcessedMessages interface {
	// MarkProcessed reports false when the message was seen before.
	MarkProcessed(ctx context.Context, queue, messageID string) (bool, error)
}
