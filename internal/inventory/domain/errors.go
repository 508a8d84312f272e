package domain

import (
	"errors"
	"fmt"

	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/apperr"
)

var (
	ErrProductNotFound = &apperr.NotFoundError{Resource: "product"}
	ErrInvalidName     = &apperr.ArgumentError{Field: "name", Reason: "is required"}
	ErrInvalidPrice    = &apperr.ArgumentError{Field: "price", Reason: "must be greater than zero"}
	ErrInvalidStock    = &apperr.ArgumentError{Field: "stock", Reason: "must not be negative"}
	ErrInvalidQuantity = &apperr.ArgumentError{Field: "quantity", Reason: "must be greater than zero"}
	ErrDuplicateName   = &apperr.ConflictError{Resource: "product", Reason: "name already exists"}
)

// ErrInsufficientStock matches every *InsufficientStockError via errors.Is.
var ErrInsufficientStock = errors.New("insufficient stock")

type InsufficientStockError struct {
	ProductID int64
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("product %d: requested %d, only %d in stock", e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }
