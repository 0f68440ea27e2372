package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jcmexdev/saga-orchestrator/internal/pkg/messaging"
)

const contentTypeJSON = "application/json"

// Publisher publishes JSON messages to the saga exchange.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, v any, headers amqp.Table) error
}

// Publish encodes v as JSON and publishes it, persistent, to the saga
// exchange. Caller headers are preserved; trace context and request id from
// ctx are added.
func (c *Client) Publish(ctx context.Context, routingKey string, v any, headers amqp.Table) error {
	body, err := json.Marshal(v)
	if err != nil {
		return Permanent(fmt.Errorf("broker: encode %s: %w", routingKey, err))
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, routingKey+" publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.system", "rabbitmq"),
			attribute.String("messaging.destination.name", messaging.Exchange),
			attribute.String("messaging.rabbitmq.destination.routing_key", routingKey),
		),
	)
	defer span.End()

	h := make(amqp.Table, len(headers)+2)
	for k, v := range headers {
		h[k] = v
	}
	injectContext(ctx, h)

	msg := amqp.Publishing{
		ContentType:  contentTypeJSON,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Headers:      h,
		Body:         body,
	}
	if err := c.ch.PublishWithContext(ctx, messaging.Exchange, routingKey, false, false, msg); err != nil {
		span.RecordError(err)
		return fmt.Errorf("broker: publish to %s: %w", routingKey, err)
	}

	c.cfg.Metrics.IncPublished(routingKey)
	return nil
}

// PublishEnvelope publishes env with the routing key of its message type.
func PublishEnvelope[T any](ctx context.Context, p Publisher, env messaging.Envelope[T]) error {
	key, ok := messaging.RoutingKey(env.Type)
	if !ok {
		return Permanent(fmt.Errorf("broker: no routing key for message type %q", env.Type))
	}
	return p.Publish(ctx, key, env, nil)
}
