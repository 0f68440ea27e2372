package broker

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/jcmexdev/saga-orchestrator/internal/pkg/messaging"
)

// Declarer is the part of a channel used to declare topology.
type Declarer interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

// DeadLetterQueue returns the name of the dead-letter queue paired with queue.
func DeadLetterQueue(queue string) string {
	return queue + ".dlq"
}

// DeclareQueueWithDLQ declares queue and its dead-letter queue. Rejected
// messages on queue are routed through the default exchange into the DLQ.
// Declaring identical queues again is a no-op on the broker.
func DeclareQueueWithDLQ(ch Declarer, queue string) error {
	dlq := DeadLetterQueue(queue)
	if _, err := ch.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
		return fmt.Errorf("broker: declare %s: %w", dlq, err)
	}

	args := amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": dlq,
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, args); err != nil {
		return fmt.Errorf("broker: declare %s: %w", queue, err)
	}
	return nil
}

// SetupTopology declares the saga exchange, every command and event queue
// with its DLQ, and their bindings. It is safe to run from every service on
// every start.
func SetupTopology(ch Declarer) error {
	if err := ch.ExchangeDeclare(messaging.Exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("broker: declare exchange %s: %w", messaging.Exchange, err)
	}

	queues := []string{
		messaging.QueueOrderCommands,
		messaging.QueueShippingCommands,
		messaging.QueuePaymentCommands,
		messaging.QueueOrchestratorEvents,
	}
	for _, q := range queues {
		if err := DeclareQueueWithDLQ(ch, q); err != nil {
			return err
		}
	}

	bindings := messaging.CommandBindings()
	for _, q := range queues[:3] {
		for _, key := range bindings[q] {
			if err := ch.QueueBind(q, key, messaging.Exchange, false, nil); err != nil {
				return fmt.Errorf("broker: bind %s to %s: %w", q, key, err)
			}
		}
	}
	if err := ch.QueueBind(messaging.QueueOrchestratorEvents, messaging.EventBindingKey, messaging.Exchange, false, nil); err != nil {
		return fmt.Errorf("broker: bind %s: %w", messaging.QueueOrchestratorEvents, err)
	}
	return nil
}

// SetupTopology declares the saga topology on the client's channel.
func (c *Client) SetupTopology() error {
	return SetupTopology(c.ch)
}
