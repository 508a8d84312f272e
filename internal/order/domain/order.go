package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PlaceholderPrice is used for lines added before inventory has priced them.
var PlaceholderPrice = decimal.NewFromInt(1)

type OrderID = uuid.UUID

func NewOrderID() OrderID {
	return uuid.Must(uuid.NewV7())
}

func ParseOrderID(v string) (OrderID, error) {
	id, err := uuid.Parse(v)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse order id %q: %w", v, err)
	}
	return id, nil
}

type Item struct {
	id        uuid.UUID
	productID int64
	quantity  int
	price     decimal.Decimal
}

func NewItem(productID int64, quantity int, price decimal.Decimal) (Item, error) {
	if productID <= 0 {
		return Item{}, ErrInvalidProduct
	}
	if quantity <= 0 {
		return Item{}, ErrInvalidQuantity
	}
	if !price.IsPositive() {
		return Item{}, ErrInvalidPrice
	}
	return Item{id: uuid.Must(uuid.NewV7()), productID: productID, quantity: quantity, price: price}, nil
}

// ReconstituteItem rebuilds a persisted line without validation.
func ReconstituteItem(id uuid.UUID, productID int64, quantity int, price decimal.Decimal) Item {
	return Item{id: id, productID: productID, quantity: quantity, price: price}
}

func (i Item) ID() uuid.UUID          { return i.id }
func (i Item) ProductID() int64       { return i.productID }
func (i Item) Quantity() int          { return i.quantity }
func (i Item) Price() decimal.Decimal { return i.price }
func (i Item) Subtotal() decimal.Decimal {
	return i.price.Mul(decimal.NewFromInt(int64(i.quantity)))
}

// Order is the aggregate root of the order service.
type Order struct {
	id        OrderID
	userID    uuid.UUID
	status    Status
	items     []Item
	total     decimal.Decimal
	createdAt time.Time
	updatedAt time.Time

	changes []StatusChange
}

func New(userID uuid.UUID) (*Order, error) {
	if userID == uuid.Nil {
		return nil, ErrMissingUser
	}
	now := time.Now().UTC()
	o := &Order{
		id:        NewOrderID(),
		userID:    userID,
		status:    StatusCreated,
		total:     decimal.Zero,
		createdAt: now,
		updatedAt: now,
	}
	o.changes = []StatusChange{{OrderID: o.id, To: StatusCreated, At: now}}
	return o, nil
}

// Reconstitute rebuilds an order from storage. The total is derived from the
// items, never read back.
func Reconstitute(id OrderID, userID uuid.UUID, status Status, items []Item, createdAt, updatedAt time.Time) *Order {
	o := &Order{
		id:        id,
		userID:    userID,
		status:    status,
		items:     append([]Item(nil), items...),
		createdAt: createdAt,
		updatedAt: updatedAt,
	}
	o.recalculate()
	return o
}

func (o *Order) ID() OrderID                { return o.id }
func (o *Order) UserID() uuid.UUID          { return o.userID }
func (o *Order) Status() Status             { return o.status }
func (o *Order) Total() decimal.Decimal     { return o.total }
func (o *Order) CreatedAt() time.Time       { return o.createdAt }
func (o *Order) UpdatedAt() time.Time       { return o.updatedAt }
func (o *Order) Items() []Item              { return append([]Item(nil), o.items...) }
func (o *Order) IsOwnedBy(u uuid.UUID) bool { return o.userID == u }

func (o *Order) Item(productID int64) (Item, bool) {
	if i := o.indexOf(productID); i >= 0 {
		return o.items[i], true
	}
	return Item{}, false
}

// AddItem merges into an existing line for the same product or appends one.
// A merged line keeps its current price.
func (o *Order) AddItem(productID int64, quantity int, price decimal.Decimal) error {
	if err := o.ensureEditable(); err != nil {
		return err
	}
	if i := o.indexOf(productID); i >= 0 {
		if quantity <= 0 {
			return ErrInvalidQuantity
		}
		o.items[i].quantity += quantity
	} else {
		item, err := NewItem(productID, quantity, price)
		if err != nil {
			return err
		}
		o.items = append(o.items, item)
	}
	o.touchItems()
	return nil
}

// AddUnpricedItem adds a line at PlaceholderPrice until inventory prices it.
func (o *Order) AddUnpricedItem(productID int64, quantity int) error {
	return o.AddItem(productID, quantity, PlaceholderPrice)
}

func (o *Order) RemoveItem(productID int64) error {
	if err := o.ensureEditable(); err != nil {
		return err
	}
	i := o.indexOf(productID)
	if i < 0 {
		return fmt.Errorf("product %d: %w", productID, ErrItemNotFound)
	}
	o.items = append(o.items[:i], o.items[i+1:]...)
	o.touchItems()
	return nil
}

func (o *Order) UpdateItemPrice(productID int64, price decimal.Decimal) error {
	if err := o.ensureEditable(); err != nil {
		return err
	}
	i := o.indexOf(productID)
	if i < 0 {
		return fmt.Errorf("product %d: %w", productID, ErrItemNotFound)
	}
	if !price.IsPositive() {
		return ErrInvalidPrice
	}
	o.items[i].price = price
	o.touchItems()
	return nil
}

func (o *Order) UpdateItemQuantity(productID int64, quantity int) error {
	if err := o.ensureEditable(); err != nil {
		return err
	}
	i := o.indexOf(productID)
	if i < 0 {
		return fmt.Errorf("product %d: %w", productID, ErrItemNotFound)
	}
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	o.items[i].quantity = quantity
	o.touchItems()
	return nil
}

func (o *Order) Confirm() error         { return o.transition(StatusConfirmed) }
func (o *Order) Reject() error          { return o.transition(StatusRejected) }
func (o *Order) StartSeparation() error { return o.transition(StatusInSeparation) }
func (o *Order) Cancel() error          { return o.transition(StatusCancelled) }
func (o *Order) Finish() error          { return o.transition(StatusFinished) }

// PullChanges returns the transitions recorded since the last call and
// clears them.
func (o *Order) PullChanges() []StatusChange {
	changes := o.changes
	o.changes = nil
	return changes
}

func (o *Order) transition(to Status) error {
	next, err := o.status.Next(to)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	o.changes = append(o.changes, StatusChange{OrderID: o.id, From: o.status, To: next, At: now})
	o.status = next
	o.updatedAt = now
	return nil
}

func (o *Order) ensureEditable() error {
	if o.status != StatusCreated {
		return fmt.Errorf("order %s is %s: %w", o.id, o.status, ErrItemsFrozen)
	}
	return nil
}

func (o *Order) indexOf(productID int64) int {
	for i := range o.items {
		if o.items[i].productID == productID {
			return i
		}
	}
	return -1
}

func (o *Order) touchItems() {
	o.recalculate()
	o.updatedAt = time.Now().UTC()
}

func (o *Order) recalculate() {
	total := decimal.Zero
	for _, item := range o.items {
		total = total.Add(item.Subtotal())
	}
	o.total = total
}
