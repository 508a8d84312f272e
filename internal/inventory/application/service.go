package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/Order-Fulfillment-Saga/internal/inventory/domain"
	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/apperr"
	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/contracts"
	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/messaging"
	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/transaction"
)

type Service struct {
	log       *slog.Logger
	products  ProductRepository
	processed ProcessedMessages
	scope     transaction.Scope
	publisher messaging.Publisher
	tracer    trace.Tracer
}

func NewService(log *slog.Logger, products ProductRepository, processed ProcessedMessages, scope transaction.Scope, publisher messaging.Publisher) *Service {
	return &Service{
		log:       log,
		products:  products,
		processed: processed,
		scope:     scope,
		publisher: publisher,
		tracer:    otel.Tracer("inventory-service"),
	}
}

// ValidateStock answers a validation request with one StockValidated. It
// never changes stock. Unknown products come back without stock and with a
// zero price.
func (s *Service) ValidateStock(ctx context.Context, req contracts.StockValidationRequested) error {
	ctx, span := s.tracer.Start(ctx, "ValidateStock", trace.WithAttributes(attribute.String("order.id", req.OrderID.String())))
	defer span.End()

	resp := contracts.StockValidated{
		OrderID: req.OrderID,
		Items:   make([]contracts.ValidatedItem, 0, len(req.Items)),
		IsValid: true,
	}
	for _, it := range req.Items {
		line := contracts.ValidatedItem{ProductID: it.ProductID, Quantity: it.Quantity, Price: decimal.Zero}
		p, err := s.products.Get(ctx, it.ProductID)
		switch {
		case err == nil:
			line.Price = p.Price()
			line.HasStock = p.HasStock(it.Quantity)
		case apperr.IsNotFound(err):
			s.log.WarnContext(ctx, "validation for unknown product", "order_id", req.OrderID, "product_id", it.ProductID)
		default:
			return fmt.Errorf("load product %d: %w", it.ProductID, err)
		}
		resp.IsValid = resp.IsValid && line.HasStock
		resp.Items = append(resp.Items, line)
	}
	span.SetAttributes(attribute.Bool("stock.valid", resp.IsValid))

	if err := s.publish(ctx, resp); err != nil {
		return err
	}
	s.log.InfoContext(ctx, "stock validated", "order_id", req.OrderID, "valid", resp.IsValid, "items", len(resp.Items))
	return nil
}

// DecrementStock takes a finished order's items out of stock exactly once.
// A line that would overdraw its product fails the whole message and
// nothing, including the processed mark, is kept.
func (s *Service) DecrementStock(ctx context.Context, req contracts.StockDecrementRequested) error {
	ctx, span := s.tracer.Start(ctx, "DecrementStock", trace.WithAttributes(attribute.String("order.id", req.OrderID.String())))
	defer span.End()

	var duplicate bool
	err := s.scope.Execute(ctx, func(ctx context.Context) error {
		first, err := s.processed.MarkProcessed(ctx, contracts.QueueOrderFinished, req.OrderID.String())
		if err != nil {
			return fmt.Errorf("mark processed: %w", err)
		}
		if !first {
			duplicate = true
			return nil
		}
		for _, it := range req.Items {
			p, err := s.products.Get(ctx, it.ProductID)
			if apperr.IsNotFound(err) {
				s.log.WarnContext(ctx, "decrement for unknown product skipped", "order_id", req.OrderID, "product_id", it.ProductID)
				continue
			}
			if err != nil {
				return fmt.Errorf("load product %d: %w", it.ProductID, err)
			}
			if err := p.Decrease(it.Quantity); err != nil {
				return err
			}
			if err := s.products.Save(ctx, p); err != nil {
				return fmt.Errorf("save product %d: %w", it.ProductID, err)
			}
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return err
	}
	if duplicate {
		s.log.InfoContext(ctx, "duplicate decrement ignored", "order_id", req.OrderID)
		return nil
	}
	s.log.InfoContext(ctx, "stock decremented", "order_id", req.OrderID, "items", len(req.Items))
	return nil
}

type CreateProductCommand struct {
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int
}

func (s *Service) CreateProduct(ctx context.Context, cmd CreateProductCommand) (*domain.Product, error) {
	p, err := domain.NewProduct(cmd.Name, cmd.Description, cmd.Price, cmd.Stock)
	if err != nil {
		return nil, err
	}
	created, err := s.products.Create(ctx, p)
	if err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "product created", "product_id", created.ID(), "stock", created.Stock())
	return created, nil
}

func (s *Service) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	return s.products.Get(ctx, id)
}

func (s *Service) Restock(ctx context.Context, id int64, quantity int) (*domain.Product, error) {
	p, err := transaction.ExecuteWithResult(ctx, s.scope, func(ctx context.Context) (*domain.Product, error) {
		p, err := s.products.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := p.Increase(quantity); err != nil {
			return nil, err
		}
		if err := s.products.Save(ctx, p); err != nil {
			return nil, fmt.Errorf("save product %d: %w", id, err)
		}
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "product restocked", "product_id", id, "added", quantity, "stock", p.Stock())
	return p, nil
}

func (s *Service) publish(ctx context.Context, m contracts.Message) error {
	msg, err := contracts.Encode(m)
	if err != nil {
		return err
	}
	if err := s.publisher.Publish(ctx, msg); err != nil {
		s.log.ErrorContext(ctx, "publish failed", "kind", m.Kind(), "queue", m.Queue(), "key", m.Key(), "err", err)
		return apperr.Transport("publish "+string(m.Kind()), err)
	}
	return nil
}
