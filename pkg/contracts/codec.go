package contracts

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/messaging"
)

// ErrMalformed is returned by Decode for payloads a consumer can never process.
var ErrMalformed = errors.New("malformed message")

// Encode turns m into a transport message addressed to m's queue.
func Encode(m Message) (messaging.Message, error) {
	payload, err := json.Marshal(m)
	if err != nil {
		return messaging.Message{}, fmt.Errorf("encode %s: %w", m.Kind(), err)
	}
	return messaging.Message{
		Queue:   m.Queue(),
		Key:     m.Key(),
		Payload: payload,
		Headers: map[string]string{KindHeader: string(m.Kind())},
	}, nil
}

type decodable interface {
	StockValidationRequested | StockValidated | StockDecrementRequested
}

// Decode parses and checks a payload of the expected message type.
func Decode[T decodable](payload []byte) (T, error) {
	var m T
	if err := json.Unmarshal(payload, &m); err != nil {
		return m, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := validate(any(m)); err != nil {
		return m, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return m, nil
}

func validate(m any) error {
	switch v := m.(type) {
	case StockValidationRequested:
		return validateRequest(v.OrderID, v.Items)
	case StockDecrementRequested:
		return validateRequest(v.OrderID, v.Items)
	case StockValidated:
		if v.OrderID == uuid.Nil {
			return errors.New("orderId is required")
		}
		for _, it := range v.Items {
			if it.Price.IsNegative() {
				return fmt.Errorf("product %d: negative price", it.ProductID)
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported message %T", m)
	}
}

func validateRequest(orderID uuid.UUID, items []LineItem) error {
	if orderID == uuid.Nil {
		return errors.New("orderId is required")
	}
	for _, it := range items {
		if it.Quantity <= 0 {
			return fmt.Errorf("product %d: quantity must be positive", it.ProductID)
		}
	}
	return nil
}
