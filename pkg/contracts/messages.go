// Package contracts defines the messages exchanged between the order and
// inventory services and the queues that carry them.
package contracts

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	QueueStockValidation = "stock-validation-queue"
	QueueOrderValidated  = "order-validated"
	QueueOrderFinished   = "order-finished"
)

// DeadLetterQueue names the queue that receives messages a consumer gave up on.
func DeadLetterQueue(queue string) string { return queue + ".dlq" }

type Kind string

const (
	KindStockValidationRequested Kind = "StockValidationRequested"
	KindStockValidated           Kind = "StockValidated"
	KindStockDecrementRequested  Kind = "StockDecrementRequested"
)

// KindHeader carries the message kind next to the payload.
const KindHeader = "message_kind"

// Message is implemented only by the saga message types in this package.
type Message interface {
	Kind() Kind
	Queue() string
	// Key partitions messages so all messages of one order stay ordered.
	Key() string
	sealed()
}

type LineItem struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}

// StockValidationRequested asks inventory to check availability for an order.
type StockValidationRequested struct {
	OrderID uuid.UUID  `json:"orderId"`
	Items   []LineItem `json:"items"`
}

func (StockValidationRequested) Kind() Kind    { return KindStockValidationRequested }
func (StockValidationRequested) Queue() string { return QueueStockValidation }
func (m StockValidationRequested) Key() string { return m.OrderID.String() }
func (StockValidationRequested) sealed()       {}

type ValidatedItem struct {
	ProductID int64           `json:"productId"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	HasStock  bool            `json:"hasStock"`
}

// MarshalJSON writes Price as a JSON number rather than a quoted string.
func (v ValidatedItem) MarshalJSON() ([]byte, error) {
	type plain ValidatedItem
	return json.Marshal(struct {
		plain
		Price json.Number `json:"price"`
	}{plain(v), json.Number(v.Price.String())})
}

// StockValidated is inventory's answer to a StockValidationRequested.
type StockValidated struct {
	OrderID uuid.UUID       `json:"orderId"`
	Items   []ValidatedItem `json:"items"`
	IsValid bool            `json:"isValid"`
}

func (StockValidated) Kind() Kind    { return KindStockValidated }
func (StockValidated) Queue() string { return QueueOrderValidated }
func (m StockValidated) Key() string { return m.OrderID.String() }
func (StockValidated) sealed()       {}

// StockDecrementRequested is emitted once an order is Finished.
type StockDecrementRequested struct {
	OrderID uuid.UUID  `json:"orderId"`
	Items   []LineItem `json:"items"`
}

func (StockDecrementRequested) Kind() Kind    { return KindStockDecrementRequested }
func (StockDecrementRequested) Queue() string { return QueueOrderFinished }
func (m StockDecrementRequested) Key() string { return m.OrderID.String() }
func (StockDecrementRequested) sealed()       {}
