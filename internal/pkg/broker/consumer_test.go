package broker

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcmexdev/saga-orchestrator/internal/pkg/constants"
	"github.com/jcmexdev/saga-orchestrator/internal/pkg/messaging"
	"github.com/jcmexdev/saga-orchestrator/internal/pkg/metrics"
)

const queue = "orchestrator.events"

func TestProcess_SuccessAcknowledges(t *testing.T) {
	ch := newFakeChannel()
	c := NewClient(ch, Config{MaxRetries: 3})
	acker := &fakeAcker{}

	c.process(context.Background(), queue, delivery(acker, `{}`, nil), func(context.Context, amqp.Delivery) error {
		return nil
	})

	assert.Equal(t, 1, acker.acks)
	assert.Zero(t, acker.rejects)
	assert.Empty(t, ch.published)
}

func TestProcess_FailureRepublishesToTailWithRetryHeader(t *testing.T) {
	ch := newFakeChannel()
	c := NewClient(ch, Config{MaxRetries: 3})
	acker := &fakeAcker{}
	headers := amqp.Table{"x-custom": "keep-me", constants.HeaderXRetry: int32(1)}

	c.process(context.Background(), queue, delivery(acker, `{"a":1}`, headers), func(context.Context, amqp.Delivery) error {
		return errors.New("boom")
	})

	require.Len(t, ch.published, 1)
	p := ch.lastPublished()
	assert.Equal(t, "", p.exchange)
	assert.Equal(t, queue, p.key)
	assert.Equal(t, []byte(`{"a":1}`), p.msg.Body)
	assert.Equal(t, amqp.Persistent, p.msg.DeliveryMode)
	assert.Equal(t, contentTypeJSON, p.msg.ContentType)
	assert.Equal(t, "keep-me", p.msg.Headers["x-custom"])
	assert.Equal(t, int32(2), p.msg.Headers[constants.HeaderXRetry])

	assert.Equal(t, 1, acker.acks, "original is acknowledged once the retry is enqueued")
	assert.Zero(t, acker.rejects)
	assert.Equal(t, int32(1), headers[constants.HeaderXRetry], "original headers are not mutated")
}

func TestProcess_AlwaysFailingHandlerEndsInDeadLetter(t *testing.T) {
	const maxRetries = 3
	ch := newFakeChannel()
	m := metrics.New()
	c := NewClient(ch, Config{MaxRetries: maxRetries, Metrics: m})

	var calls int
	failing := func(context.Context, amqp.Delivery) error {
		calls++
		return errors.New("always fails")
	}

	// Feed each republished copy back through the loop as the broker would.
	var seen []int
	d := delivery(&fakeAcker{}, `{"n":1}`, nil)
	for i := 0; i < 10; i++ {
		acker := d.Acknowledger.(*fakeAcker)
		seen = append(seen, RetryCount(d.Headers))
		before := len(ch.published)

		c.process(context.Background(), queue, d, failing)

		if acker.rejects > 0 {
			assert.False(t, acker.requeue, "dead-lettering must not requeue")
			break
		}
		require.Equal(t, before+1, len(ch.published))
		next := ch.lastPublished()
		d = delivery(&fakeAcker{}, string(next.msg.Body), next.msg.Headers)
	}

	assert.Equal(t, []int{0, 1, 2, 3}, seen)
	assert.Equal(t, maxRetries+1, calls)
	assert.Len(t, ch.published, maxRetries, "no republish after the final rejection")
	assert.Equal(t, float64(maxRetries), consumedCount(t, m, metrics.OutcomeRetried))
	assert.Equal(t, 1.0, consumedCount(t, m, metrics.OutcomeDeadLettered))
}

func TestProcess_PermanentErrorSkipsRetries(t *testing.T) {
	ch := newFakeChannel()
	c := NewClient(ch, Config{MaxRetries: 5})
	acker := &fakeAcker{}

	c.process(context.Background(), queue, delivery(acker, `{}`, nil), func(context.Context, amqp.Delivery) error {
		return Permanent(errors.New("saga does not exist"))
	})

	assert.Equal(t, 1, acker.rejects)
	assert.False(t, acker.requeue)
	assert.Zero(t, acker.acks)
	assert.Empty(t, ch.published)
}

func TestProcess_RepublishFailureRequeuesOriginal(t *testing.T) {
	ch := newFakeChannel()
	ch.publishErr = errors.New("channel closed")
	c := NewClient(ch, Config{MaxRetries: 3})
	acker := &fakeAcker{}

	c.process(context.Background(), queue, delivery(acker, `{}`, nil), func(context.Context, amqp.Delivery) error {
		return errors.New("boom")
	})

	assert.Equal(t, 1, acker.nacks)
	assert.True(t, acker.requeue)
	assert.Zero(t, acker.acks)
}

func TestConsume_SerialHandlingAndGracefulStop(t *testing.T) {
	ch := newFakeChannel()
	c := NewClient(ch, Config{MaxRetries: 1, Prefetch: 4})

	var inFlight, maxInFlight, handled atomic.Int32
	release := make(chan struct{})
	handler := func(ctx context.Context, d amqp.Delivery) error {
		n := inFlight.Add(1)
		if n > maxInFlight.Load() {
			maxInFlight.Store(n)
		}
		<-release
		inFlight.Add(-1)
		handled.Add(1)
		return nil
	}

	ackers := []*fakeAcker{{}, {}, {}}
	for _, a := range ackers {
		ch.deliveries <- delivery(a, `{}`, nil)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Consume(ctx, queue, handler) }()

	for i := 0; i < len(ackers); i++ {
		release <- struct{}{}
	}
	require.Eventually(t, func() bool { return handled.Load() == 3 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("consume did not stop")
	}

	assert.Equal(t, int32(1), maxInFlight.Load())
	assert.Equal(t, 4, ch.qos)
	require.Len(t, ch.cancelled, 1)
	for _, a := range ackers {
		assert.Equal(t, 1, a.acks)
	}
}

func TestConsume_ClosedDeliveryChannel(t *testing.T) {
	ch := newFakeChannel()
	close(ch.deliveries)
	c := NewClient(ch, Config{})

	err := c.Consume(context.Background(), queue, func(context.Context, amqp.Delivery) error { return nil })
	assert.ErrorIs(t, err, ErrDeliveriesClosed)
}

func TestPublish_DurableJSONWithHeaders(t *testing.T) {
	ch := newFakeChannel()
	c := NewClient(ch, Config{})
	ctx := context.WithValue(context.Background(), constants.ContextKeyRequestID, "req-42")

	env := messaging.New(uuid.NewString(), messaging.OrderCancelCommand, messaging.OrderRef{OrderID: "o-1"})
	require.NoError(t, c.Publish(ctx, "command.order.cancel", env, amqp.Table{"x-tenant": "acme"}))

	p := ch.lastPublished()
	assert.Equal(t, messaging.Exchange, p.exchange)
	assert.Equal(t, "command.order.cancel", p.key)
	assert.Equal(t, "application/json", p.msg.ContentType)
	assert.Equal(t, amqp.Persistent, p.msg.DeliveryMode)
	assert.Equal(t, "acme", p.msg.Headers["x-tenant"])
	assert.Equal(t, "req-42", p.msg.Headers[constants.HeaderXRequestId])

	var decoded messaging.Envelope[messaging.OrderRef]
	require.NoError(t, json.Unmarshal(p.msg.Body, &decoded))
	assert.Equal(t, env.MessageID, decoded.MessageID)
	assert.Equal(t, "o-1", decoded.Payload.OrderID)
}

func TestPublishEnvelope_UsesCatalogRoutingKey(t *testing.T) {
	ch := newFakeChannel()
	c := NewClient(ch, Config{})

	env := messaging.New(uuid.NewString(), messaging.ShippingCreateCommand, messaging.ShippingCreate{OrderID: "o-1"})
	require.NoError(t, PublishEnvelope(context.Background(), c, env))
	assert.Equal(t, "command.shipping.create", ch.lastPublished().key)

	unknown := messaging.New(uuid.NewString(), messaging.Type("Mystery"), struct{}{})
	err := PublishEnvelope(context.Background(), c, unknown)
	assert.True(t, IsPermanent(err))
}

func TestExtractContext_RestoresRequestID(t *testing.T) {
	ctx := extractContext(context.Background(), amqp.Table{constants.HeaderXRequestId: "req-7"})
	assert.Equal(t, "req-7", ctx.Value(constants.ContextKeyRequestID))
}

func TestRetryCount(t *testing.T) {
	cases := []struct {
		name    string
		headers amqp.Table
		want    int
	}{
		{"missing", nil, 0},
		{"int32", amqp.Table{constants.HeaderXRetry: int32(2)}, 2},
		{"int64", amqp.Table{constants.HeaderXRetry: int64(3)}, 3},
		{"int", amqp.Table{constants.HeaderXRetry: 1}, 1},
		{"float", amqp.Table{constants.HeaderXRetry: float64(4)}, 4},
		{"string", amqp.Table{constants.HeaderXRetry: "2"}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, RetryCount(tc.headers))
		})
	}
}

func consumedCount(t *testing.T, m *metrics.Metrics, outcome string) float64 {
	t.Helper()
	families, err := m.Gatherer().Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != "saga_messages_consumed_total" {
			continue
		}
		for _, metric := range f.GetMetric() {
			for _, l := range metric.GetLabel() {
				if l.GetName() == "outcome" && l.GetValue() == outcome {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}
