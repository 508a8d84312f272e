package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Product is the inventory aggregate. Stock never goes below zero.
type Product struct {
	id          int64
	name        string
	description string
	price       decimal.Decimal
	stock       int
}

// NewProduct validates a product that has no id yet; the repository
// assigns one on creation.
func NewProduct(name, description string, price decimal.Decimal, stock int) (*Product, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidName
	}
	if !price.IsPositive() {
		return nil, ErrInvalidPrice
	}
	if stock < 0 {
		return nil, ErrInvalidStock
	}
	return &Product{name: name, description: description, price: price, stock: stock}, nil
}

func Reconstitute(id int64, name, description string, price decimal.Decimal, stock int) *Product {
	return &Product{id: id, name: name, description: description, price: price, stock: stock}
}

func (p *Product) ID() int64              { return p.id }
func (p *Product) Name() string           { return p.name }
func (p *Product) Description() string    { return p.description }
func (p *Product) Price() decimal.Decimal { return p.price }
func (p *Product) Stock() int             { return p.stock }

func (p *Product) HasStock(quantity int) bool {
	return p.stock >= quantity
}

func (p *Product) Decrease(quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if p.stock < quantity {
		return &InsufficientStockError{ProductID: p.id, Requested: quantity, Available: p.stock}
	}
	p.stock -= quantity
	return nil
}

func (p *Product) Increase(quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	p.stock += quantity
	return nil
}
