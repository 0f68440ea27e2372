package domain

import (
	"context"
	"time"
)

type Order struct {
	ID          string
	SagaID      string
	CustomerID  string
	Items       []OrderItem
	TotalAmount float64
	Status      OrderStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type OrderItem struct {
	SKU       string  `json:"sku"`
	Quantity  int     `json:"qty"`
	UnitPrice float64 `json:"price"`
}

func (i OrderItem) Subtotal() float64 {
	return float64(i.Quantity) * i.UnitPrice
}

// Total sums the subtotals of items.
func Total(items []OrderItem) float64 {
	var total float64
	for _, it := range items {
		total += it.Subtotal()
	}
	return total
}

type OrderStatus string

const (
	StatusCreated   OrderStatus = "CREATED"
	StatusCancelled OrderStatus = "CANCELLED"
)

// Repository persists orders. There is at most one order per saga.
type Repository interface {
	// Create inserts o unless an order for o.SagaID exists, and returns the
	// stored order either way.
	Create(ctx context.Context, o Order) (Order, error)

	// Cancel marks the saga's order CANCELLED. Cancelling twice, or
	// cancelling an unknown saga, is not an error.
	Cancel(ctx context.Context, sagaID string) error
}
