package messaging

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_SetsCorrelationAndFreshIDs(t *testing.T) {
	sagaID := uuid.NewString()

	a := New(sagaID, OrderCancelCommand, OrderRef{OrderID: "o-1"})
	b := New(sagaID, OrderCancelCommand, OrderRef{OrderID: "o-1"})

	assert.Equal(t, sagaID, a.SagaID)
	assert.Equal(t, sagaID, a.CorrelationID)
	assert.Equal(t, OrderCancelCommand, a.Type)
	assert.False(t, a.Timestamp.IsZero())
	assert.NotEqual(t, a.MessageID, b.MessageID)
	_, err := uuid.Parse(a.MessageID)
	assert.NoError(t, err)
}

func TestParse_RoundTripsTypedPayload(t *testing.T) {
	env := New(uuid.NewString(), OrderCreatedEvent, OrderCreated{
		OrderID:     "o-1",
		CustomerID:  "cust-1",
		TotalAmount: 40,
		Items:       []Item{{SKU: "sku-1", Qty: 2, Price: 20}},
		FailAt:      StageShipping,
	})
	body, err := json.Marshal(env)
	require.NoError(t, err)

	raw, err := Parse(body)
	require.NoError(t, err)
	assert.Equal(t, OrderCreatedEvent, raw.Type)

	typed, err := DecodePayload[OrderCreated](raw)
	require.NoError(t, err)
	assert.Equal(t, env.MessageID, typed.MessageID)
	assert.Equal(t, StageShipping, typed.Payload.FailAt)
	assert.Equal(t, []Item{{SKU: "sku-1", Qty: 2, Price: 20}}, typed.Payload.Items)
}

func TestParse_RejectsContractViolations(t *testing.T) {
	sagaID := uuid.NewString()
	cases := map[string]string{
		"not json":           `{`,
		"missing payload":    `{"messageId":"` + uuid.NewString() + `","correlationId":"` + sagaID + `","sagaId":"` + sagaID + `","type":"X","timestamp":"2024-01-01T00:00:00Z"}`,
		"non uuid saga":      `{"messageId":"` + uuid.NewString() + `","correlationId":"abc","sagaId":"abc","type":"X","timestamp":"2024-01-01T00:00:00Z","payload":{}}`,
		"bad timestamp":      `{"messageId":"` + uuid.NewString() + `","correlationId":"` + sagaID + `","sagaId":"` + sagaID + `","type":"X","timestamp":"yesterday","payload":{}}`,
		"empty type":         `{"messageId":"` + uuid.NewString() + `","correlationId":"` + sagaID + `","sagaId":"` + sagaID + `","type":"","timestamp":"2024-01-01T00:00:00Z","payload":{}}`,
		"payload not object": `{"messageId":"` + uuid.NewString() + `","correlationId":"` + sagaID + `","sagaId":"` + sagaID + `","type":"X","timestamp":"2024-01-01T00:00:00Z","payload":[1]}`,
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(body))
			assert.Error(t, err)
		})
	}
}

func TestParse_CorrelationMismatch(t *testing.T) {
	env := New(uuid.NewString(), OrderCancelledEvent, OrderRef{OrderID: "o-1"})
	env.CorrelationID = uuid.NewString()
	body, err := json.Marshal(env)
	require.NoError(t, err)

	_, err = Parse(body)
	assert.ErrorIs(t, err, ErrCorrelationMismatch)
}

func TestRoutingKeys_CoverCatalog(t *testing.T) {
	types := []Type{
		ShippingCreateCommand, ShippingCancelCommand, PaymentChargeCommand, PaymentRefundCommand, OrderCancelCommand,
		OrderCreatedEvent, OrderCreateFailedEvent, OrderCancelledEvent, ShippingCreatedEvent,
		ShippingCreateFailedEvent, ShippingCancelledEvent, PaymentChargedEvent, PaymentChargeFailedEvent,
		PaymentRefundedEvent,
	}
	seen := make(map[string]Type)
	for _, typ := range types {
		key, ok := RoutingKey(typ)
		require.True(t, ok, typ)
		prev, dup := seen[key]
		assert.False(t, dup, "%s shares %s with %s", typ, key, prev)
		seen[key] = typ
	}

	_, ok := RoutingKey("SomethingElse")
	assert.False(t, ok)
}

func TestCommandBindings_OnlyOwnRoutingKeys(t *testing.T) {
	b := CommandBindings()
	assert.Equal(t, []string{"command.order.cancel"}, b[QueueOrderCommands])
	assert.ElementsMatch(t, []string{"command.shipping.create", "command.shipping.cancel"}, b[QueueShippingCommands])
	assert.ElementsMatch(t, []string{"command.payment.charge", "command.payment.refund"}, b[QueuePaymentCommands])
	_, ok := b[QueueOrchestratorEvents]
	assert.False(t, ok)
}
