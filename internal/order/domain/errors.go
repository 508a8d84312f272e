package domain

import (
	"errors"
	"fmt"

	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/apperr"
)

var (
	ErrOrderNotFound   = &apperr.NotFoundError{Resource: "order"}
	ErrItemNotFound    = &apperr.NotFoundError{Resource: "order item"}
	ErrInvalidQuantity = &apperr.ArgumentError{Field: "quantity", Reason: "must be greater than zero"}
	ErrInvalidPrice    = &apperr.ArgumentError{Field: "price", Reason: "must be greater than zero"}
	ErrInvalidProduct  = &apperr.ArgumentError{Field: "productId", Reason: "must be greater than zero"}
	ErrMissingUser     = &apperr.ArgumentError{Field: "userId", Reason: "is required"}
	ErrNotOwner        = &apperr.AuthorizationError{Reason: "only the order owner may cancel it"}

	// ErrItemsFrozen is returned for item changes once the order left Created.
	ErrItemsFrozen = errors.New("order items can only change while the order is Created")
)

// ErrInvalidTransition matches every *InvalidTransitionError via errors.Is.
var ErrInvalidTransition = errors.New("invalid order status transition")

type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot move order from %s to %s", e.From, e.To)
}

func (e *InvalidTransitionError) Is(target error) bool { return target == ErrInvalidTransition }
