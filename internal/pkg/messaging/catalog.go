package messaging

// Type is the discriminant carried in every envelope.
type Type string

// Commands.
const (
	ShippingCreateCommand Type = "ShippingCreateCommand"
	ShippingCancelCommand Type = "ShippingCancelCommand"
	PaymentChargeCommand  Type = "PaymentChargeCommand"
	PaymentRefundCommand  Type = "PaymentRefundCommand"
	OrderCancelCommand    Type = "OrderCancelCommand"
)

// Events.
const (
	OrderCreatedEvent         Type = "OrderCreatedEvent"
	OrderCreateFailedEvent    Type = "OrderCreateFailedEvent"
	OrderCancelledEvent       Type = "OrderCancelledEvent"
	ShippingCreatedEvent      Type = "ShippingCreatedEvent"
	ShippingCreateFailedEvent Type = "ShippingCreateFailedEvent"
	ShippingCancelledEvent    Type = "ShippingCancelledEvent"
	PaymentChargedEvent       Type = "PaymentChargedEvent"
	PaymentChargeFailedEvent  Type = "PaymentChargeFailedEvent"
	PaymentRefundedEvent      Type = "PaymentRefundedEvent"
)

// Exchange is the durable topic exchange every message is published to.
const Exchange = "saga.exchange"

// Queue names. Each one is paired with a "<name>.dlq" dead-letter queue.
const (
	QueueOrderCommands      = "order.commands"
	QueueShippingCommands   = "shipping.commands"
	QueuePaymentCommands    = "payment.commands"
	QueueOrchestratorEvents = "orchestrator.events"
)

// EventBindingKey matches every event routing key.
const EventBindingKey = "event.#"

var routingKeys = map[Type]string{
	OrderCancelCommand:    "command.order.cancel",
	ShippingCreateCommand: "command.shipping.create",
	ShippingCancelCommand: "command.shipping.cancel",
	PaymentChargeCommand:  "command.payment.charge",
	PaymentRefundCommand:  "command.payment.refund",

	OrderCreatedEvent:         "event.order.created",
	OrderCreateFailedEvent:    "event.order.create_failed",
	OrderCancelledEvent:       "event.order.cancelled",
	ShippingCreatedEvent:      "event.shipping.created",
	ShippingCreateFailedEvent: "event.shipping.create_failed",
	ShippingCancelledEvent:    "event.shipping.cancelled",
	PaymentChargedEvent:       "event.payment.charged",
	PaymentChargeFailedEvent:  "event.payment.charge_failed",
	PaymentRefundedEvent:      "event.payment.refunded",
}

// RoutingKey returns the routing key a message type is published with.
func RoutingKey(t Type) (string, bool) {
	key, ok := routingKeys[t]
	return key, ok
}

// CommandBindings lists the routing keys each participant command queue binds.
func CommandBindings() map[string][]string {
	return map[string][]string{
		QueueOrderCommands:    {routingKeys[OrderCancelCommand]},
		QueueShippingCommands: {routingKeys[ShippingCreateCommand], routingKeys[ShippingCancelCommand]},
		QueuePaymentCommands:  {routingKeys[PaymentChargeCommand], routingKeys[PaymentRefundCommand]},
	}
}

// Stage names a forward step of the saga. It doubles as the simulated
// failure flag carried through the saga (failAt).
type Stage string

const (
	StageOrder    Stage = "order"
	StageShipping Stage = "shipping"
	StagePayment  Stage = "payment"
)

// Valid reports whether s is one of the known stages.
func (s Stage) Valid() bool {
	switch s {
	case StageOrder, StageShipping, StagePayment:
		return true
	}
	return false
}

// Item is a single order line.
type Item struct {
	SKU   string  `json:"sku"`
	Qty   int     `json:"qty"`
	Price float64 `json:"price"`
}

// OrderCreated is the payload of OrderCreatedEvent.
type OrderCreated struct {
	OrderID            string  `json:"orderId"`
	CustomerID         string  `json:"customerId"`
	TotalAmount        float64 `json:"totalAmount"`
	ShippingAddress    string  `json:"shippingAddress"`
	PaymentMethodToken string  `json:"paymentMethodToken"`
	Items              []Item  `json:"items"`
	FailAt             Stage   `json:"failAt,omitempty"`
}

// OrderCreateFailed is the payload of OrderCreateFailedEvent. It repeats the
// order facts so the orchestrator can open a saga record for it.
type OrderCreateFailed struct {
	Reason             string  `json:"reason"`
	CustomerID         string  `json:"customerId"`
	TotalAmount        float64 `json:"totalAmount"`
	ShippingAddress    string  `json:"shippingAddress"`
	PaymentMethodToken string  `json:"paymentMethodToken"`
	Items              []Item  `json:"items"`
	FailAt             Stage   `json:"failAt,omitempty"`
}

// ShippingCreate is the payload of ShippingCreateCommand.
type ShippingCreate struct {
	OrderID string `json:"orderId"`
	Address string `json:"address"`
	FailAt  Stage  `json:"failAt,omitempty"`
}

// ShippingCreated is the payload of ShippingCreatedEvent and ShippingCancelledEvent.
type ShippingCreated struct {
	ShipmentID string `json:"shipmentId"`
	OrderID    string `json:"orderId"`
}

// PaymentCharge is the payload of PaymentChargeCommand.
type PaymentCharge struct {
	OrderID            string  `json:"orderId"`
	Amount             float64 `json:"amount"`
	PaymentMethodToken string  `json:"paymentMethodToken"`
	FailAt             Stage   `json:"failAt,omitempty"`
}

// PaymentCharged is the payload of PaymentChargedEvent.
type PaymentCharged struct {
	PaymentID string `json:"paymentId"`
	OrderID   string `json:"orderId"`
}

// Failure is the payload of every *FailedEvent emitted by a participant.
type Failure struct {
	Reason string `json:"reason"`
}

// OrderRef is the payload of the cancel and refund commands and of
// OrderCancelledEvent and PaymentRefundedEvent.
type OrderRef struct {
	OrderID string `json:"orderId"`
}
