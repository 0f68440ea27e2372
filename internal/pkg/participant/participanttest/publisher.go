// Package participanttest provides a recording publisher for tests of
// participant services.
package participanttest

import (
	"context"
	"encoding/json"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/jcmexdev/saga-orchestrator/internal/pkg/messaging"
)

// Publisher records every published envelope after checking it against the
// envelope contract. Set Err to make Publish fail.
type Publisher struct {
	mu   sync.Mutex
	sent []messaging.Raw
	keys []string
	Err  error
}

func (p *Publisher) Publish(_ context.Context, routingKey string, v any, _ amqp.Table) error {
	if p.Err != nil {
		return p.Err
	}
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	raw, err := messaging.Parse(body)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, raw)
	p.keys = append(p.keys, routingKey)
	return nil
}

// Sent returns a copy of the published envelopes in order.
func (p *Publisher) Sent() []messaging.Raw {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]messaging.Raw(nil), p.sent...)
}

// Keys returns the routing keys used, in publish order.
func (p *Publisher) Keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.keys...)
}

// Last returns the most recent envelope. It panics when nothing was sent.
func (p *Publisher) Last() messaging.Raw {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sent[len(p.sent)-1]
}

// Command builds the delivery a participant would receive for a command.
func Command[T any](sagaID string, typ messaging.Type, payload T) amqp.Delivery {
	body, err := json.Marshal(messaging.New(sagaID, typ, payload))
	if err != nil {
		panic(err)
	}
	return amqp.Delivery{Body: body}
}
