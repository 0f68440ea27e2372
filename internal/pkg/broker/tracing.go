package broker

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/jcmexdev/saga-orchestrator/internal/pkg/constants"
)

const tracerName = "github.com/jcmexdev/saga-orchestrator/internal/pkg/broker"

// headerCarrier adapts AMQP headers to the OTel TextMapCarrier interface so
// the W3C traceparent travels with every message.
type headerCarrier amqp.Table

var _ propagation.TextMapCarrier = headerCarrier(nil)

func (h headerCarrier) Get(key string) string {
	switch v := h[key].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func (h headerCarrier) Set(key, value string) { h[key] = value }

func (h headerCarrier) Keys() []string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	return keys
}

// injectContext writes the trace context and request id of ctx into headers.
func injectContext(ctx context.Context, headers amqp.Table) {
	otel.GetTextMapPropagator().Inject(ctx, headerCarrier(headers))
	if id, ok := ctx.Value(constants.ContextKeyRequestID).(string); ok && id != "" {
		headers[constants.HeaderXRequestId] = id
	}
}

// extractContext restores the trace context and request id carried by headers.
func extractContext(ctx context.Context, headers amqp.Table) context.Context {
	if headers == nil {
		return ctx
	}
	ctx = otel.GetTextMapPropagator().Extract(ctx, headerCarrier(headers))
	if id := headerCarrier(headers).Get(constants.HeaderXRequestId); id != "" {
		ctx = context.WithValue(ctx, constants.ContextKeyRequestID, id)
	}
	return ctx
}
