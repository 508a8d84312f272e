package kafka

import (
	"context"
	"errors"

	"github.com/dmehra2102/Order-Fulfillment-Saga/internal/order/application"
	"github.com/dmehra2102/Order-Fulfillment-Saga/internal/order/domain"
	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/apperr"
	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/contracts"
	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/messaging"
)

// StockValidatedHandler feeds order-validated deliveries to the reactor.
func StockValidatedHandler(svc *application.Service) messaging.Handler {
	return func(ctx context.Context, d messaging.Delivery) error {
		msg, err := contracts.Decode[contracts.StockValidated](d.Payload)
		if err != nil {
			return messaging.Drop(err)
		}
		return classify(svc.ApplyStockValidation(ctx, msg))
	}
}

// classify tells the consumer what to do with a failed delivery: orders that
// no longer exist are dropped, refused transitions are dead-lettered and
// everything else is retried.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case apperr.IsNotFound(err):
		return messaging.Drop(err)
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrItemsFrozen):
		return messaging.Permanent(err)
	default:
		return err
	}
}
