package domain

import (
	"context"
	"time"
)

type Payment struct {
	ID          string
	SagaID      string
	OrderID     string
	Amount      float64
	MethodToken string
	Status      PaymentStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type PaymentStatus string

const (
	StatusCharged  PaymentStatus = "CHARGED"
	StatusRefunded PaymentStatus = "REFUNDED"
)

// Repository persists payments, at most one per saga.
type Repository interface {
	// Charge inserts p unless a payment for p.SagaID exists, and returns the
	// stored payment either way.
	Charge(ctx context.Context, p Payment) (Payment, error)

	// Refund marks the saga's payment REFUNDED. Refunding twice, or
	// refunding an unknown saga, is not an error.
	Refund(ctx context.Context, sagaID string) error
}
