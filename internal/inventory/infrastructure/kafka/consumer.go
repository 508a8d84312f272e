package kafka

import (
	"context"
	"errors"

	"github.com/dmehra2102/Order-Fulfillment-Saga/internal/inventory/application"
	"github.com/dmehra2102/Order-Fulfillment-Saga/internal/inventory/domain"
	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/apperr"
	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/contracts"
	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/messaging"
)

// ValidationRequestedHandler answers stock-validation-queue deliveries.
func ValidationRequestedHandler(svc *application.Service) messaging.Handler {
	return func(ctx context.Context, d messaging.Delivery) error {
		req, err := contracts.Decode[contracts.StockValidationRequested](d.Payload)
		if err != nil {
			return messaging.Drop(err)
		}
		return classify(svc.ValidateStock(ctx, req))
	}
}

// DecrementRequestedHandler applies order-finished deliveries to stock.
func DecrementRequestedHandler(svc *application.Service) messaging.Handler {
	return func(ctx context.Context, d messaging.Delivery) error {
		req, err := contracts.Decode[contracts.StockDecrementRequested](d.Payload)
		if err != nil {
			return messaging.Drop(err)
		}
		return classify(svc.DecrementStock(ctx, req))
	}
}

// classify dead-letters overdrawn stock and bad input straight away; it
// needs an operator, not another attempt.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrInsufficientStock), apperr.IsArgument(err):
		return messaging.Permanent(err)
	default:
		return err
	}
}
