// Package broker is the reliable messaging substrate shared by every
// service: connection with bounded retry, idempotent exchange/queue/
// dead-letter topology, durable JSON publishing and a consume loop that
// retries failed messages through the tail of their queue before
// dead-lettering them.
package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/jcmexdev/saga-orchestrator/internal/pkg/metrics"
)

// Channel is the subset of *amqp.Channel the substrate relies on.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Cancel(consumer string, noWait bool) error
	Close() error
}

var _ Channel = (*amqp.Channel)(nil)

// Config configures a Client.
type Config struct {
	// MaxRetries is how many times a failed message is republished before
	// it is dead-lettered.
	MaxRetries int

	// Prefetch bounds unacknowledged deliveries per consumer. Default 1.
	Prefetch int

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

func (c Config) applyDefaults() Config {
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.Prefetch <= 0 {
		c.Prefetch = 1
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Client is an explicitly owned handle on one broker channel and, when it
// was created by Connect, the connection behind it.
type Client struct {
	cfg  Config
	ch   Channel
	conn *amqp.Connection

	mu     sync.Mutex
	closed bool
}

// NewClient wraps an already open channel.
func NewClient(ch Channel, cfg Config) *Client {
	return &Client{cfg: cfg.applyDefaults(), ch: ch}
}

// ConnectConfig configures Connect.
type ConnectConfig struct {
	URL      string
	Attempts int
	Delay    time.Duration
}

// Connect dials the broker, retrying up to cfg.Attempts times with a fixed
// delay between attempts, and opens a channel. Exhausting the attempts
// returns the last dial error.
func Connect(ctx context.Context, cc ConnectConfig, cfg Config) (*Client, error) {
	cfg = cfg.applyDefaults()

	conn, err := retry(ctx, cc.Attempts, cc.Delay, func(attempt int) (*amqp.Connection, error) {
		conn, err := amqp.Dial(cc.URL)
		if err != nil {
			cfg.Logger.WarnContext(ctx, "broker connection failed", "attempt", attempt, "max_attempts", cc.Attempts, "error", err)
		}
		return conn, err
	}, sleepWithContext)
	if err != nil {
		return nil, fmt.Errorf("broker: connect: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("broker: open channel: %w", err)
	}

	cfg.Logger.InfoContext(ctx, "broker connected")
	return &Client{cfg: cfg, ch: ch, conn: conn}, nil
}

// Close closes the channel and, if owned, the connection. It is safe to
// call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	var errs []error
	if err := c.ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		errs = append(errs, fmt.Errorf("broker: close channel: %w", err))
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, fmt.Errorf("broker: close connection: %w", err))
		}
	}
	return errors.Join(errs...)
}

// retry calls fn until it succeeds or attempts are exhausted, sleeping a
// fixed delay between attempts.
func retry[T any](ctx context.Context, attempts int, delay time.Duration, fn func(attempt int) (T, error), sleep func(context.Context, time.Duration) error) (T, error) {
	if attempts < 1 {
		attempts = 1
	}

	var zero T
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		v, err := fn(attempt)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if attempt == attempts {
			break
		}
		if err := sleep(ctx, delay); err != nil {
			return zero, err
		}
	}
	return zero, fmt.Errorf("gave up after %d attempts: %w", attempts, lastErr)
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
