// Package app implements the shipping participant: it creates and cancels
// shipments on command from the orchestrator.
package app

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/jcmexdev/saga-orchestrator/internal/pkg/broker"
	"github.com/jcmexdev/saga-orchestrator/internal/pkg/messaging"
	"github.com/jcmexdev/saga-orchestrator/internal/pkg/participant"
	"github.com/jcmexdev/saga-orchestrator/internal/shipping-service/domain"
)

const SimulatedFailure = "Simulated shipping failure"

// unknownShipment is reported when a cancel arrives for a saga that never
// got a shipment.
const unknownShipment = "unknown"

type Service struct {
	repo  domain.Repository
	pub   broker.Publisher
	newID func() string
}

func NewService(repo domain.Repository, pub broker.Publisher) *Service {
	return &Service{repo: repo, pub: pub, newID: uuid.NewString}
}

func (s *Service) Register(r *participant.Router) {
	r.On(messaging.ShippingCreateCommand, s.HandleShippingCreate).
		On(messaging.ShippingCancelCommand, s.HandleShippingCancel)
}

// HandleShippingCreate creates the saga's shipment, or reports the stored
// one on redelivery.
func (s *Service) HandleShippingCreate(ctx context.Context, cmd messaging.Raw) error {
	env, err := participant.Decode[messaging.ShippingCreate](cmd)
	if err != nil {
		return err
	}
	if env.Payload.FailAt == messaging.StageShipping {
		slog.InfoContext(ctx, "simulating shipping failure", "saga_id", cmd.SagaID)
		return participant.Emit(ctx, s.pub, cmd.SagaID, messaging.ShippingCreateFailedEvent, messaging.Failure{Reason: SimulatedFailure})
	}

	shipment, err := s.repo.Create(ctx, domain.Shipment{
		ID:      s.newID(),
		SagaID:  cmd.SagaID,
		OrderID: env.Payload.OrderID,
		Address: env.Payload.Address,
		Status:  domain.StatusCreated,
	})
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "shipment created", "saga_id", cmd.SagaID, "shipment_id", shipment.ID)

	return participant.Emit(ctx, s.pub, cmd.SagaID, messaging.ShippingCreatedEvent, messaging.ShippingCreated{
		ShipmentID: shipment.ID,
		OrderID:    shipment.OrderID,
	})
}

// HandleShippingCancel cancels the saga's shipment and always confirms, even
// when there was nothing to cancel.
func (s *Service) HandleShippingCancel(ctx context.Context, cmd messaging.Raw) error {
	env, err := participant.Decode[messaging.OrderRef](cmd)
	if err != nil {
		return err
	}

	shipmentID := unknownShipment
	shipment, found, err := s.repo.FindBySaga(ctx, cmd.SagaID)
	if err != nil {
		return err
	}
	if found {
		shipmentID = shipment.ID
	}
	if err := s.repo.Cancel(ctx, cmd.SagaID); err != nil {
		return err
	}
	slog.InfoContext(ctx, "shipment cancelled", "saga_id", cmd.SagaID, "shipment_id", shipmentID)

	return participant.Emit(ctx, s.pub, cmd.SagaID, messaging.ShippingCancelledEvent, messaging.ShippingCreated{
		ShipmentID: shipmentID,
		OrderID:    env.Payload.OrderID,
	})
}
