// Package app holds the order service's use cases: opening a saga from an
// HTTP order and cancelling the order as a compensation.
package app

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/jcmexdev/saga-orchestrator/internal/order-service/domain"
	"github.com/jcmexdev/saga-orchestrator/internal/pkg/broker"
	"github.com/jcmexdev/saga-orchestrator/internal/pkg/messaging"
	"github.com/jcmexdev/saga-orchestrator/internal/pkg/participant"
)

// SimulatedFailure is the reason reported when failAt selects this stage.
const SimulatedFailure = "Simulated order failure"

// CreateOrder is the validated input of POST /orders.
type CreateOrder struct {
	CustomerID         string
	Items              []domain.OrderItem
	ShippingAddress    string
	PaymentMethodToken string
	FailAt             messaging.Stage
}

type Service struct {
	repo  domain.Repository
	pub   broker.Publisher
	newID func() string
}

func NewService(repo domain.Repository, pub broker.Publisher) *Service {
	return &Service{repo: repo, pub: pub, newID: uuid.NewString}
}

// Register binds the service's command handlers to r.
func (s *Service) Register(r *participant.Router) {
	r.On(messaging.OrderCancelCommand, s.HandleOrderCancel)
}

// CreateOrder persists the order for sagaID and announces the outcome.
// With failAt=order nothing is written and OrderCreateFailedEvent is
// published instead, carrying the order facts so the orchestrator can
// record the saga.
func (s *Service) CreateOrder(ctx context.Context, sagaID string, in CreateOrder) (domain.Order, error) {
	total := domain.Total(in.Items)
	items := toMessageItems(in.Items)

	if in.FailAt == messaging.StageOrder {
		slog.InfoContext(ctx, "simulating order failure", "saga_id", sagaID)
		err := participant.Emit(ctx, s.pub, sagaID, messaging.OrderCreateFailedEvent, messaging.OrderCreateFailed{
			Reason:             SimulatedFailure,
			CustomerID:         in.CustomerID,
			TotalAmount:        total,
			ShippingAddress:    in.ShippingAddress,
			PaymentMethodToken: in.PaymentMethodToken,
			Items:              items,
			FailAt:             in.FailAt,
		})
		return domain.Order{}, err
	}

	order, err := s.repo.Create(ctx, domain.Order{
		ID:          s.newID(),
		SagaID:      sagaID,
		CustomerID:  in.CustomerID,
		Items:       in.Items,
		TotalAmount: total,
		Status:      domain.StatusCreated,
	})
	if err != nil {
		return domain.Order{}, err
	}
	slog.InfoContext(ctx, "order created", "saga_id", sagaID, "order_id", order.ID, "total", total)

	err = participant.Emit(ctx, s.pub, sagaID, messaging.OrderCreatedEvent, messaging.OrderCreated{
		OrderID:            order.ID,
		CustomerID:         in.CustomerID,
		TotalAmount:        total,
		ShippingAddress:    in.ShippingAddress,
		PaymentMethodToken: in.PaymentMethodToken,
		Items:              items,
		FailAt:             in.FailAt,
	})
	return order, err
}

// HandleOrderCancel cancels the saga's order and confirms with
// OrderCancelledEvent. It is safe to run twice.
func (s *Service) HandleOrderCancel(ctx context.Context, cmd messaging.Raw) error {
	env, err := participant.Decode[messaging.OrderRef](cmd)
	if err != nil {
		return err
	}
	if err := s.repo.Cancel(ctx, cmd.SagaID); err != nil {
		return err
	}
	slog.InfoContext(ctx, "order cancelled", "saga_id", cmd.SagaID, "order_id", env.Payload.OrderID)
	return participant.Emit(ctx, s.pub, cmd.SagaID, messaging.OrderCancelledEvent, messaging.OrderRef{OrderID: env.Payload.OrderID})
}

func toMessageItems(items []domain.OrderItem) []messaging.Item {
	out := make([]messaging.Item, len(items))
	for i, it := range items {
		out[i] = messaging.Item{SKU: it.SKU, Qty: it.Quantity, Price: it.UnitPrice}
	}
	return out
}
