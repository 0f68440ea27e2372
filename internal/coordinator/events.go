package coordinator

import (
	"fmt"

	"github.com/jcmexdev/saga-orchestrator/internal/pkg/messaging"
)

// Meta is the envelope metadata shared by every inbound event.
type Meta struct {
	MessageID string
	SagaID    string
	Type      messaging.Type
}

// Event is the closed set of participant events the orchestrator consumes.
// Only the variants declared in this file implement it.
type Event interface {
	meta() Meta
}

func (m Meta) meta() Meta { return m }

type (
	OrderCreated struct {
		Meta
		Payload messaging.OrderCreated
	}
	OrderCreateFailed struct {
		Meta
		Payload messaging.OrderCreateFailed
	}
	OrderCancelled struct {
		Meta
		Payload messaging.OrderRef
	}
	ShippingCreated struct {
		Meta
		Payload messaging.ShippingCreated
	}
	ShippingCreateFailed struct {
		Meta
		Payload messaging.Failure
	}
	ShippingCancelled struct {
		Meta
		Payload messaging.ShippingCreated
	}
	PaymentCharged struct {
		Meta
		Payload messaging.PaymentCharged
	}
	PaymentChargeFailed struct {
		Meta
		Payload messaging.Failure
	}
	PaymentRefunded struct {
		Meta
		Payload messaging.OrderRef
	}

	// Unknown carries a type the orchestrator does not recognise, including
	// commands that were misrouted to the event queue.
	Unknown struct {
		Meta
	}
)

// Decode turns a validated envelope into its event variant.
func Decode(raw messaging.Raw) (Event, error) {
	m := Meta{MessageID: raw.MessageID, SagaID: raw.SagaID, Type: raw.Type}

	switch raw.Type {
	case messaging.OrderCreatedEvent:
		p, err := payload[messaging.OrderCreated](raw)
		return OrderCreated{m, p}, err
	case messaging.OrderCreateFailedEvent:
		p, err := payload[messaging.OrderCreateFailed](raw)
		return OrderCreateFailed{m, p}, err
	case messaging.OrderCancelledEvent:
		p, err := payload[messaging.OrderRef](raw)
		return OrderCancelled{m, p}, err
	case messaging.ShippingCreatedEvent:
		p, err := payload[messaging.ShippingCreated](raw)
		return ShippingCreated{m, p}, err
	case messaging.ShippingCreateFailedEvent:
		p, err := payload[messaging.Failure](raw)
		return ShippingCreateFailed{m, p}, err
	case messaging.ShippingCancelledEvent:
		p, err := payload[messaging.ShippingCreated](raw)
		return ShippingCancelled{m, p}, err
	case messaging.PaymentChargedEvent:
		p, err := payload[messaging.PaymentCharged](raw)
		return PaymentCharged{m, p}, err
	case messaging.PaymentChargeFailedEvent:
		p, err := payload[messaging.Failure](raw)
		return PaymentChargeFailed{m, p}, err
	case messaging.PaymentRefundedEvent:
		p, err := payload[messaging.OrderRef](raw)
		return PaymentRefunded{m, p}, err
	default:
		return Unknown{m}, nil
	}
}

func payload[T any](raw messaging.Raw) (T, error) {
	env, err := messaging.DecodePayload[T](raw)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("coordinator: %w", err)
	}
	return env.Payload, nil
}
