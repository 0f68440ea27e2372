// Package app implements the payment participant: it charges and refunds
// on command from the orchestrator.
package app

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/jcmexdev/saga-orchestrator/internal/payment-service/domain"
	"github.com/jcmexdev/saga-orchestrator/internal/pkg/broker"
	"github.com/jcmexdev/saga-orchestrator/internal/pkg/messaging"
	"github.com/jcmexdev/saga-orchestrator/internal/pkg/participant"
)

const SimulatedFailure = "Simulated payment failure"

type Service struct {
	repo  domain.Repository
	pub   broker.Publisher
	newID func() string
}

func NewService(repo domain.Repository, pub broker.Publisher) *Service {
	return &Service{repo: repo, pub: pub, newID: uuid.NewString}
}

func (s *Service) Register(r *participant.Router) {
	r.On(messaging.PaymentChargeCommand, s.HandlePaymentCharge).
		On(messaging.PaymentRefundCommand, s.HandlePaymentRefund)
}

func (s *Service) HandlePaymentCharge(ctx context.Context, cmd messaging.Raw) error {
	env, err := participant.Decode[messaging.PaymentCharge](cmd)
	if err != nil {
		return err
	}
	if env.Payload.FailAt == messaging.StagePayment {
		slog.InfoContext(ctx, "simulating payment failure", "saga_id", cmd.SagaID)
		return participant.Emit(ctx, s.pub, cmd.SagaID, messaging.PaymentChargeFailedEvent, messaging.Failure{Reason: SimulatedFailure})
	}

	payment, err := s.repo.Charge(ctx, domain.Payment{
		ID:          s.newID(),
		SagaID:      cmd.SagaID,
		OrderID:     env.Payload.OrderID,
		Amount:      env.Payload.Amount,
		MethodToken: env.Payload.PaymentMethodToken,
		Status:      domain.StatusCharged,
	})
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "payment charged", "saga_id", cmd.SagaID, "payment_id", payment.ID, "amount", payment.Amount)

	return participant.Emit(ctx, s.pub, cmd.SagaID, messaging.PaymentChargedEvent, messaging.PaymentCharged{
		PaymentID: payment.ID,
		OrderID:   payment.OrderID,
	})
}

// HandlePaymentRefund refunds the saga's payment. The orchestrator never
// issues it today; it is kept so an operator can drive a refund by hand.
func (s *Service) HandlePaymentRefund(ctx context.Context, cmd messaging.Raw) error {
	env, err := participant.Decode[messaging.OrderRef](cmd)
	if err != nil {
		return err
	}
	if err := s.repo.Refund(ctx, cmd.SagaID); err != nil {
		return err
	}
	slog.InfoContext(ctx, "payment refunded", "saga_id", cmd.SagaID)
	return participant.Emit(ctx, s.pub, cmd.SagaID, messaging.PaymentRefundedEvent, messaging.OrderRef{OrderID: env.Payload.OrderID})
}
