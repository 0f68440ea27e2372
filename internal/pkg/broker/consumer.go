package broker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jcmexdev/saga-orchestrator/internal/pkg/constants"
	"github.com/jcmexdev/saga-orchestrator/internal/pkg/metrics"
)

// ErrDeliveriesClosed is returned by Consume when the broker closes the
// delivery channel, typically because the connection was lost.
var ErrDeliveriesClosed = errors.New("broker: delivery channel closed")

// Handler processes one delivery. A nil return acknowledges the message.
type Handler func(ctx context.Context, d amqp.Delivery) error

// Consume runs h for every message on queue, one at a time: the next
// delivery is not processed until the previous handler has returned.
//
// On success the message is acknowledged. On failure the retry count is
// read from the x-retry header; below MaxRetries the body is republished to
// the tail of the same queue with the count incremented and the original is
// acknowledged. At or above MaxRetries, or when the error is Permanent, the
// message is rejected without requeue and the broker dead-letters it.
//
// Consume returns nil once ctx is cancelled and the in-flight handler, if
// any, has finished. Handlers run on a context that is not cancelled with ctx.
func (c *Client) Consume(ctx context.Context, queue string, h Handler) error {
	if err := c.ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("broker: set qos on %s: %w", queue, err)
	}

	tag := queue + "-" + uuid.NewString()[:8]
	deliveries, err := c.ch.Consume(queue, tag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("broker: consume %s: %w", queue, err)
	}

	c.cfg.Logger.InfoContext(ctx, "consumer started", "queue", queue, "consumer_tag", tag, "max_retries", c.cfg.MaxRetries)

	for {
		select {
		case <-ctx.Done():
			if err := c.ch.Cancel(tag, false); err != nil {
				c.cfg.Logger.WarnContext(ctx, "consumer cancel failed", "queue", queue, "error", err)
			}
			c.cfg.Logger.InfoContext(ctx, "consumer stopped", "queue", queue)
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return ErrDeliveriesClosed
			}
			c.process(context.WithoutCancel(ctx), queue, d, h)
		}
	}
}

// process runs the handler for a single delivery and settles it.
func (c *Client) process(ctx context.Context, queue string, d amqp.Delivery, h Handler) {
	ctx = extractContext(ctx, d.Headers)
	ctx, span := otel.Tracer(tracerName).Start(ctx, queue+" process",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "rabbitmq"),
			attribute.String("messaging.source.name", queue),
			attribute.String("messaging.rabbitmq.destination.routing_key", d.RoutingKey),
		),
	)
	defer span.End()

	start := time.Now()
	err := h(ctx, d)
	c.cfg.Metrics.ObserveHandler(queue, time.Since(start))

	if err == nil {
		if ackErr := d.Ack(false); ackErr != nil {
			c.cfg.Logger.ErrorContext(ctx, "ack failed", "queue", queue, "error", ackErr)
			return
		}
		c.cfg.Metrics.IncConsumed(queue, metrics.OutcomeAcked)
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	retries := RetryCount(d.Headers)
	log := c.cfg.Logger.With("queue", queue, "routing_key", d.RoutingKey, "retry", retries, "error", err)

	if IsPermanent(err) || retries >= c.cfg.MaxRetries {
		log.ErrorContext(ctx, "handler failed, dead-lettering message", "permanent", IsPermanent(err))
		if rejErr := d.Reject(false); rejErr != nil {
			log.ErrorContext(ctx, "reject failed", "reject_error", rejErr)
			return
		}
		c.cfg.Metrics.IncConsumed(queue, metrics.OutcomeDeadLettered)
		return
	}

	if pubErr := c.republish(ctx, queue, d, retries+1); pubErr != nil {
		// Leave the message on the queue rather than lose it.
		log.ErrorContext(ctx, "retry republish failed, requeueing original", "publish_error", pubErr)
		if nackErr := d.Nack(false, true); nackErr != nil {
			log.ErrorContext(ctx, "nack failed", "nack_error", nackErr)
			return
		}
		c.cfg.Metrics.IncConsumed(queue, metrics.OutcomeRequeued)
		return
	}

	if ackErr := d.Ack(false); ackErr != nil {
		log.ErrorContext(ctx, "ack after retry republish failed", "ack_error", ackErr)
		return
	}
	log.WarnContext(ctx, "handler failed, message scheduled for retry", "next_retry", retries+1)
	c.cfg.Metrics.IncConsumed(queue, metrics.OutcomeRetried)
}

// republish sends the delivery's body back to the tail of queue through the
// default exchange with x-retry set to retry.
func (c *Client) republish(ctx context.Context, queue string, d amqp.Delivery, retry int) error {
	headers := make(amqp.Table, len(d.Headers)+1)
	for k, v := range d.Headers {
		headers[k] = v
	}
	headers[constants.HeaderXRetry] = int32(retry)

	contentType := d.ContentType
	if contentType == "" {
		contentType = contentTypeJSON
	}

	return c.ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  contentType,
		DeliveryMode: amqp.Persistent,
		MessageId:    d.MessageId,
		Timestamp:    time.Now().UTC(),
		Headers:      headers,
		Body:         d.Body,
	})
}

// RetryCount reads the x-retry header. Missing or non-numeric values count as 0.
func RetryCount(headers amqp.Table) int {
	switch v := headers[constants.HeaderXRetry].(type) {
	case int:
		return v
	case int8:
		return int(v)
	case int16:
		return int(v)
	case int32:
		return int(v)
	case int64:
		return int(v)
	case uint8:
		return int(v)
	case uint16:
		return int(v)
	case uint32:
		return int(v)
	case float32:
		return int(v)
	case float64:
		if math.IsNaN(v) {
			return 0
		}
		return int(v)
	default:
		return 0
	}
}
