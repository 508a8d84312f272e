package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/Order-Fulfillment-Saga/internal/order/domain"
	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/apperr"
	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/contracts"
	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/messaging"
	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/transaction"
)

type Service struct {
	log       *slog.Logger
	repo      OrderRepository
	scope     transaction.Scope
	publisher messaging.Publisher
	audit     AuditLog
	tracer    trace.Tracer
}

func NewService(log *slog.Logger, repo OrderRepository, scope transaction.Scope, publisher messaging.Publisher, audit AuditLog) *Service {
	if audit == nil {
		audit = nopAuditLog{}
	}
	return &Service{
		log:       log,
		repo:      repo,
		scope:     scope,
		publisher: publisher,
		audit:     audit,
		tracer:    otel.Tracer("order-service"),
	}
}

type CreateOrderItem struct {
	ProductID int64
	Quantity  int
}

type CreateOrderCommand struct {
	UserID uuid.UUID
	Items  []CreateOrderItem
}

func (c CreateOrderCommand) validate() error {
	if c.UserID == uuid.Nil {
		return domain.ErrMissingUser
	}
	if len(c.Items) == 0 {
		return apperr.Argument("items", "must contain at least one item")
	}
	for _, it := range c.Items {
		if it.ProductID <= 0 {
			return domain.ErrInvalidProduct
		}
		if it.Quantity <= 0 {
			return domain.ErrInvalidQuantity
		}
	}
	return nil
}

// CreateOrder persists a new order in Created and asks inventory to validate
// it. When the request cannot be published the committed order is returned
// together with an *apperr.TransportError.
func (s *Service) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "CreateOrder")
	defer span.End()

	if err := cmd.validate(); err != nil {
		return nil, err
	}
	o, err := domain.New(cmd.UserID)
	if err != nil {
		return nil, err
	}
	for _, it := range cmd.Items {
		if err := o.AddUnpricedItem(it.ProductID, it.Quantity); err != nil {
			return nil, err
		}
	}
	span.SetAttributes(attribute.String("order.id", o.ID().String()))

	if err := s.scope.Execute(ctx, func(ctx context.Context) error {
		return s.repo.Save(ctx, o)
	}); err != nil {
		return nil, fmt.Errorf("save order: %w", err)
	}
	s.record(ctx, o)
	s.log.InfoContext(ctx, "order created", "order_id", o.ID(), "items", len(o.Items()))

	req := contracts.StockValidationRequested{OrderID: o.ID(), Items: lineItems(o)}
	if err := s.publish(ctx, req); err != nil {
		return o, err
	}
	return o, nil
}

func (s *Service) GetOrder(ctx context.Context, id domain.OrderID) (*domain.Order, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) History(ctx context.Context, id domain.OrderID) ([]AuditEntry, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.audit.History(ctx, id)
}

// ApplyStockValidation prices the order with inventory's figures and confirms
// or rejects it. Lines whose product is gone or reported without a positive
// price keep their current price.
func (s *Service) ApplyStockValidation(ctx context.Context, msg contracts.StockValidated) error {
	ctx, span := s.tracer.Start(ctx, "ApplyStockValidation",
		trace.WithAttributes(attribute.String("order.id", msg.OrderID.String()), attribute.Bool("stock.valid", msg.IsValid)))
	defer span.End()

	target := domain.StatusRejected
	if msg.IsValid {
		target = domain.StatusConfirmed
	}

	o, err := s.mutate(ctx, msg.OrderID, func(o *domain.Order) error {
		if _, err := o.Status().Next(target); err != nil {
			return err
		}
		for _, it := range msg.Items {
			if !it.Price.IsPositive() {
				continue
			}
			if _, ok := o.Item(it.ProductID); !ok {
				continue
			}
			if err := o.UpdateItemPrice(it.ProductID, it.Price); err != nil {
				return err
			}
		}
		if msg.IsValid {
			return o.Confirm()
		}
		return o.Reject()
	})
	if err != nil {
		return err
	}
	s.log.InfoContext(ctx, "stock validation applied", "order_id", o.ID(), "status", o.Status(), "total", o.Total().String())
	return nil
}

func (s *Service) StartSeparation(ctx context.Context, id domain.OrderID) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "StartSeparation", trace.WithAttributes(attribute.String("order.id", id.String())))
	defer span.End()

	return s.mutate(ctx, id, (*domain.Order).StartSeparation)
}

// Cancel is only allowed for the order's owner.
func (s *Service) Cancel(ctx context.Context, id domain.OrderID, userID uuid.UUID) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "Cancel", trace.WithAttributes(attribute.String("order.id", id.String())))
	defer span.End()

	if userID == uuid.Nil {
		return nil, domain.ErrMissingUser
	}
	return s.mutate(ctx, id, func(o *domain.Order) error {
		if !o.IsOwnedBy(userID) {
			return domain.ErrNotOwner
		}
		return o.Cancel()
	})
}

// Finish closes the order and asks inventory to take the items out of stock.
func (s *Service) Finish(ctx context.Context, id domain.OrderID) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "Finish", trace.WithAttributes(attribute.String("order.id", id.String())))
	defer span.End()

	o, err := s.mutate(ctx, id, (*domain.Order).Finish)
	if err != nil {
		return nil, err
	}
	req := contracts.StockDecrementRequested{OrderID: o.ID(), Items: lineItems(o)}
	if err := s.publish(ctx, req); err != nil {
		return o, err
	}
	return o, nil
}

// mutate loads, changes and saves one order in a single transaction, then
// writes the audit trail.
func (s *Service) mutate(ctx context.Context, id domain.OrderID, change func(*domain.Order) error) (*domain.Order, error) {
	o, err := transaction.ExecuteWithResult(ctx, s.scope, func(ctx context.Context) (*domain.Order, error) {
		o, err := s.repo.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := change(o); err != nil {
			return nil, err
		}
		if err := s.repo.Save(ctx, o); err != nil {
			return nil, fmt.Errorf("save order %s: %w", id, err)
		}
		return o, nil
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, o)
	return o, nil
}

func (s *Service) record(ctx context.Context, o *domain.Order) {
	changes := o.PullChanges()
	if len(changes) == 0 {
		return
	}
	if err := s.audit.Record(ctx, changes); err != nil {
		s.log.WarnContext(ctx, "audit log write failed", "order_id", o.ID(), "err", err)
	}
	for _, c := range changes {
		s.log.InfoContext(ctx, "order status changed", "order_id", c.OrderID, "from", c.From.String(), "to", c.To.String())
	}
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
	s.log.InfoContext(ctx, "message published", "kind", m.Kind(), "queue", m.Queue(), "key", m.Key())
	return nil
}

func lineItems(o *domain.Order) []contracts.LineItem {
	items := o.Items()
	out := make([]contracts.LineItem, 0, len(items))
	for _, it := range items {
		out = append(out, contracts.LineItem{ProductID: it.ProductID(), Quantity: it.Quantity()})
	}
	return out
}
