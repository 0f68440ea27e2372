package coordinator

import (
	"context"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/jcmexdev/saga-orchestrator/internal/pkg/broker"
	"github.com/jcmexdev/saga-orchestrator/internal/pkg/messaging"
)

// Dispatcher routes events from the orchestrator queue to the Runner.
type Dispatcher struct {
	runner *Runner
	logger *slog.Logger
}

func NewDispatcher(runner *Runner, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{runner: runner, logger: logger}
}

// Handle is a broker.Handler. Envelopes that break the contract can never
// succeed and are dead-lettered without retry.
func (d *Dispatcher) Handle(ctx context.Context, msg amqp.Delivery) error {
	raw, err := messaging.Parse(msg.Body)
	if err != nil {
		return broker.Permanent(err)
	}
	ev, err := Decode(raw)
	if err != nil {
		return broker.Permanent(err)
	}
	return d.Dispatch(ctx, ev)
}

// Dispatch invokes the Runner handler for ev.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) error {
	m := ev.meta()
	d.logger.DebugContext(ctx, "dispatching event",
		"saga_id", m.SagaID,
		"type", m.Type,
		"message_id", m.MessageID,
	)

	switch e := ev.(type) {
	case OrderCreated:
		return d.runner.OnOrderCreated(ctx, e)
	case OrderCreateFailed:
		return d.runner.OnOrderCreateFailed(ctx, e)
	case OrderCancelled:
		return d.runner.OnOrderCancelled(ctx, e)
	case ShippingCreated:
		return d.runner.OnShippingCreated(ctx, e)
	case ShippingCreateFailed:
		return d.runner.OnShippingCreateFailed(ctx, e)
	case ShippingCancelled:
		return d.runner.OnShippingCancelled(ctx, e)
	case PaymentCharged:
		return d.runner.OnPaymentCharged(ctx, e)
	case PaymentChargeFailed:
		return d.runner.OnPaymentChargeFailed(ctx, e)
	case PaymentRefunded:
		d.logger.InfoContext(ctx, "payment refunded, nothing to orchestrate",
			"saga_id", m.SagaID, "order_id", e.Payload.OrderID)
		return nil
	default:
		d.logger.WarnContext(ctx, "ignoring unknown event type",
			"saga_id", m.SagaID, "type", m.Type, "message_id", m.MessageID)
		return nil
	}
}
