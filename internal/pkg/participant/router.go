// Package participant routes commands consumed by a participant service to
// its handlers, skipping messages that were already processed.
package participant

import (
	"context"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/jcmexdev/saga-orchestrator/internal/pkg/broker"
	"github.com/jcmexdev/saga-orchestrator/internal/pkg/cache"
	"github.com/jcmexdev/saga-orchestrator/internal/pkg/messaging"
)

// CommandHandler handles one decoded command envelope.
type CommandHandler func(ctx context.Context, cmd messaging.Raw) error

// Router is a broker.Handler for a participant command queue.
type Router struct {
	handlers map[messaging.Type]CommandHandler
	dedupe   cache.Dedupe
	logger   *slog.Logger
}

// NewRouter returns an empty router. A nil dedupe disables deduplication.
func NewRouter(dedupe cache.Dedupe, logger *slog.Logger) *Router {
	if dedupe == nil {
		dedupe = cache.Noop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		handlers: make(map[messaging.Type]CommandHandler),
		dedupe:   dedupe,
		logger:   logger,
	}
}

// On registers h for commands of type t.
func (r *Router) On(t messaging.Type, h CommandHandler) *Router {
	r.handlers[t] = h
	return r
}

// Handle implements broker.Handler.
func (r *Router) Handle(ctx context.Context, d amqp.Delivery) error {
	cmd, err := messaging.Parse(d.Body)
	if err != nil {
		return broker.Permanent(err)
	}
	log := r.logger.With("saga_id", cmd.SagaID, "type", cmd.Type, "message_id", cmd.MessageID)

	h, ok := r.handlers[cmd.Type]
	if !ok {
		log.WarnContext(ctx, "ignoring unknown command type")
		return nil
	}

	// A lookup failure only costs a duplicate run, which handlers tolerate.
	seen, err := r.dedupe.Seen(ctx, cmd.MessageID)
	if err != nil {
		log.WarnContext(ctx, "dedupe lookup failed", "error", err)
	}
	if seen {
		log.InfoContext(ctx, "command already processed, skipping")
		return nil
	}

	if err := h(ctx, cmd); err != nil {
		return fmt.Errorf("participant: handle %s: %w", cmd.Type, err)
	}

	if err := r.dedupe.MarkProcessed(ctx, cmd.MessageID); err != nil {
		log.WarnContext(ctx, "dedupe mark failed", "error", err)
	}
	return nil
}

// Decode is a helper for handlers: it decodes the payload of cmd and marks
// a malformed payload as permanent.
func Decode[T any](cmd messaging.Raw) (messaging.Envelope[T], error) {
	env, err := messaging.DecodePayload[T](cmd)
	if err != nil {
		return env, broker.Permanent(err)
	}
	return env, nil
}

// Emit publishes an event for the saga of cmd.
func Emit[T any](ctx context.Context, pub broker.Publisher, sagaID string, typ messaging.Type, payload T) error {
	return broker.PublishEnvelope(ctx, pub, messaging.New(sagaID, typ, payload))
}
