package domain

import (
	"context"
	"time"
)

type Shipment struct {
	ID        string
	SagaID    string
	OrderID   string
	Address   string
	Status    ShipmentStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

type ShipmentStatus string

const (
	StatusCreated   ShipmentStatus = "CREATED"
	StatusCancelled ShipmentStatus = "CANCELLED"
)

// Repository persists shipments, at most one per saga.
type Repository interface {
	// Create inserts s unless a shipment for s.SagaID exists, and returns
	// the stored shipment either way.
	Create(ctx context.Context, s Shipment) (Shipment, error)

	FindBySaga(ctx context.Context, sagaID string) (Shipment, bool, error)

	// Cancel marks the saga's shipment CANCELLED. It is a no-op when the
	// shipment is already cancelled or does not exist.
	Cancel(ctx context.Context, sagaID string) error
}
